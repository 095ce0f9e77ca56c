package aggregator

import (
	"slices"
	"sort"

	"github.com/atikulmunna/loglens/internal/model"
)

// Counter is a frequency table that remembers the order keys were first seen.
type Counter struct {
	index map[string]int
	items []model.Frequency
}

// NewCounter returns an empty Counter.
func NewCounter() *Counter {
	return &Counter{index: make(map[string]int)}
}

// Add increments key by one.
func (c *Counter) Add(key string) {
	if i, ok := c.index[key]; ok {
		c.items[i].Count++
		return
	}
	c.index[key] = len(c.items)
	c.items = append(c.items, model.Frequency{Key: key, Count: 1})
}

// Get returns the count for key.
func (c *Counter) Get(key string) int64 {
	if i, ok := c.index[key]; ok {
		return c.items[i].Count
	}
	return 0
}

// Map copies the counts into a plain map.
func (c *Counter) Map() map[string]int64 {
	out := make(map[string]int64, len(c.items))
	for _, f := range c.items {
		out[f.Key] = f.Count
	}
	return out
}

// Top returns the n most frequent keys, highest count first. Keys with equal
// counts keep the order they were first seen in. n <= 0 returns every key.
func (c *Counter) Top(n int) []model.Frequency {
	out := slices.Clone(c.items)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Count > out[j].Count
	})
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	if out == nil {
		out = []model.Frequency{}
	}
	return out
}
