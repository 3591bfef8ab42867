// Package audit keeps a trail of the expense workflow: who submitted, edited,
// approved or rejected a sheet and how the finance bundle delivery went.
// Records are built from bus events and kept by a Store.
package audit

import (
	"context"
	"time"
)

// Event names of a Record.
const (
	EventSubmitted = "submitted"
	EventUpdated   = "updated"
	EventApproved  = "approved"
	EventRejected  = "rejected"
	EventDSFSent   = "dsf_sent"
	EventDSFFailed = "dsf_failed"
)

// Record is one line of the audit trail.
type Record struct {
	Time       time.Time `json:"time"`
	Event      string    `json:"event"`
	SheetID    string    `json:"sheet_id"`
	UserID     string    `json:"user_id,omitempty"`
	By         string    `json:"by,omitempty"`
	Department string    `json:"department,omitempty"`
	Amount     float64   `json:"amount,omitempty"`
	Reason     string    `json:"reason,omitempty"`
	Recipients []string  `json:"recipients,omitempty"`
	Error      string    `json:"error,omitempty"`
}

// Query filters records. Zero fields match everything. Limit keeps the most
// recent matches.
type Query struct {
	Event   string
	SheetID string
	UserID  string
	Since   time.Time
	Until   time.Time
	Limit   int
}

// Match reports whether r passes every filter of q except Limit.
func (q Query) Match(r Record) bool {
	if q.Event != "" && r.Event != q.Event {
		return false
	}
	if q.SheetID != "" && r.SheetID != q.SheetID {
		return false
	}
	if q.UserID != "" && r.UserID != q.UserID && r.By != q.UserID {
		return false
	}
	if !q.Since.IsZero() && r.Time.Before(q.Since) {
		return false
	}
	if !q.Until.IsZero() && !r.Time.Before(q.Until) {
		return false
	}
	return true
}

// Store persists the trail.
type Store interface {
	Append(ctx context.Context, r Record) error
	// Query returns matching records, oldest first.
	Query(ctx context.Context, q Query) ([]Record, error)
	Close() error
}
