package aggregator

import (
	"sync"

	"github.com/atikulmunna/loglens/internal/model"
)

// DefaultTopN is the length of the top-N tables in a Summary.
const DefaultTopN = 10

// errorLevel marks free-text records whose message is tracked.
const errorLevel = "ERROR"

// serverErrorStatus is the lowest access status whose request is tracked as an error.
const serverErrorStatus = 500

// Aggregator accumulates the statistics of one run. It is safe to Snapshot
// from another goroutine while records are observed.
type Aggregator struct {
	mu     sync.RWMutex
	format model.Format
	topN   int

	total  int64
	failed int64
	bytes  int64

	categories *Counter
	errors     *Counter
	endpoints  *Counter
	ips        *Counter
}

// New creates an Aggregator for the given format.
func New(format model.Format, topN int) *Aggregator {
	if topN <= 0 {
		topN = DefaultTopN
	}
	return &Aggregator{
		format:     format,
		topN:       topN,
		categories: NewCounter(),
		errors:     NewCounter(),
		endpoints:  NewCounter(),
		ips:        NewCounter(),
	}
}

// Observe adds a successfully parsed record.
func (a *Aggregator) Observe(rec model.Record) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.total++
	a.categories.Add(rec.Category())

	switch r := rec.(type) {
	case model.TextRecord:
		if r.Level == errorLevel {
			a.errors.Add(r.Message)
		}
	case model.AccessRecord:
		a.bytes += r.Size
		a.endpoints.Add(r.Endpoint)
		a.ips.Add(r.IP)
		if r.Status >= serverErrorStatus {
			a.errors.Add(r.Method + " " + r.Endpoint)
		}
	}
}

// ObserveFailure counts a line that failed to parse.
func (a *Aggregator) ObserveFailure() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.failed++
}

// Snapshot returns the running totals.
func (a *Aggregator) Snapshot() model.Summary {
	a.mu.RLock()
	defer a.mu.RUnlock()

	s := model.Summary{
		Format:       a.format,
		TotalRecords: a.total,
		TotalFailed:  a.failed,
		TotalBytes:   a.bytes,
		Categories:   a.categories.Map(),
		TopErrors:    a.errors.Top(a.topN),
	}
	if a.format == model.FormatAccess {
		s.TopEndpoints = a.endpoints.Top(a.topN)
		s.TopIPs = a.ips.Top(a.topN)
	}
	return s
}
