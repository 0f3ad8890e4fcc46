package models

import "time"

// Snapshot is the query-time aggregation over a time-bounded slice of the
// event store. It is derived, never stored.
type Snapshot struct {
	From       time.Time         `json:"from"`
	To         time.Time         `json:"to"`
	Total      int               `json:"total"`
	ByType     map[EventType]int `json:"byType"`
	BySeverity map[Severity]int  `json:"bySeverity"`
	TopIPs     []IPCount         `json:"topIPs"`
}

// IPCount pairs a client address with its event count for top-N reporting.
type IPCount struct {
	IP    string `json:"ip"`
	Count int    `json:"count"`
}
