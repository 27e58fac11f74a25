package models

import (
	"encoding/json"
	"time"
)

// IngestResult is returned for every persisted event.
type IngestResult struct {
	ID        int64
	SessionID string
	Timestamp time.Time
}

// BatchItemResult describes one persisted batch item.
type BatchItemResult struct {
	Index int       `json:"index"`
	ID    int64     `json:"id"`
	Slot  string    `json:"slot"`
	Event EventType `json:"event"`
}

// BatchItemError describes one rejected batch item, echoing it as received.
type BatchItemError struct {
	Index int             `json:"index"`
	Error string          `json:"error"`
	Event json.RawMessage `json:"event"`
}

// BatchResult summarizes a batch. Results and Errors are in input order.
type BatchResult struct {
	Results   []BatchItemResult
	Errors    []BatchItemError
	Timestamp time.Time
}

// Processed is the number of items persisted.
func (r *BatchResult) Processed() int {
	return len(r.Results)
}

// ErrorCount is the number of items rejected.
func (r *BatchResult) ErrorCount() int {
	return len(r.Errors)
}
