package analytics

import "time"

type EventType string

const (
	EventQuery    EventType = "query"
	EventRejected EventType = "rejected"
)

// Result labels, shared with the query metrics.
const (
	ResultExists      = "exists"
	ResultNotFound    = "not_found"
	ResultMalformed   = "malformed"
	ResultEncoding    = "invalid_encoding"
	ResultUnavailable = "unavailable"
	ResultError       = "error"
	ResultRejected    = "rejected"
)

// QueryEvent describes one handled connection.
type QueryEvent struct {
	Type          EventType `json:"type"`
	ConnID        uint64    `json:"conn_id"`
	Query         string    `json:"query"`
	Result        string    `json:"result"`
	Mode          string    `json:"mode"`
	LatencyMicros int64     `json:"latency_us"`
	SnapshotLines int       `json:"snapshot_lines"`
	RemoteAddr    string    `json:"remote_addr"`
	TLS           bool      `json:"tls"`
	Timestamp     time.Time `json:"timestamp"`
}
