package model

import "time"

// Frequency is one entry of a top-N table.
type Frequency struct {
	Key   string `json:"key" yaml:"key"`
	Count int64  `json:"count" yaml:"count"`
}

// Summary holds the aggregate statistics of one run.
type Summary struct {
	Source       string           `json:"source" yaml:"source"`
	Format       Format           `json:"format" yaml:"format"`
	StartIndex   uint64           `json:"start_index" yaml:"start_index"`
	TotalRecords int64            `json:"total_records" yaml:"total_records"`
	TotalFailed  int64            `json:"total_failed" yaml:"total_failed"`
	TotalBytes   int64            `json:"total_bytes" yaml:"total_bytes"`
	Categories   map[string]int64 `json:"counts_by_category" yaml:"counts_by_category"`
	TopErrors    []Frequency      `json:"top_error_messages" yaml:"top_error_messages"`
	TopEndpoints []Frequency      `json:"top_endpoints,omitempty" yaml:"top_endpoints,omitempty"`
	TopIPs       []Frequency      `json:"top_ips,omitempty" yaml:"top_ips,omitempty"`
}

// Analysis is what a finished run hands to reporting and transport layers.
type Analysis struct {
	Summary        Summary           `json:"summary" yaml:"summary"`
	Invalid        []ParseError      `json:"invalid_lines" yaml:"invalid_lines"`
	InvalidDropped int64             `json:"invalid_dropped,omitempty" yaml:"invalid_dropped,omitempty"`
	Reports        map[string]string `json:"reports,omitempty" yaml:"reports,omitempty"`
}

// Progress is a point-in-time status of a running pipeline.
type Progress struct {
	Time    time.Time `json:"time"`
	Source  string    `json:"source"`
	State   string    `json:"state"`
	Index   uint64    `json:"index"`
	Records int64     `json:"records"`
	Failed  int64     `json:"failed"`
}
