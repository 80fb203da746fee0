package replication

import (
	"context"
	"time"

	"envelopes/internal/core"
)

// Direction names which side a sync copied from.
type Direction string

const (
	DirectionPush Direction = "push"
	DirectionPull Direction = "pull"
)

// SyncReport describes one push or pull. A table that failed is rolled back
// and listed in Errors; the other table may still have been copied.
type SyncReport struct {
	ID                 string    `json:"sync_id"`
	Direction          Direction `json:"direction"`
	StartedAt          time.Time `json:"started_at"`
	FinishedAt         time.Time `json:"finished_at"`
	EnvelopesSynced    int       `json:"envelopes_synced"`
	TransactionsSynced int       `json:"transactions_synced"`
	Errors             []string  `json:"errors"`
}

// OK reports whether every table was copied.
func (r SyncReport) OK() bool {
	return len(r.Errors) == 0
}

func (r SyncReport) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// Status is the connectivity and freshness view of the ledger.
type Status struct {
	Mode              string          `json:"mode"`
	Connected         bool            `json:"connected"`
	LastSyncDirection Direction       `json:"last_sync_direction,omitempty"`
	LastSyncAt        *time.Time      `json:"last_sync_at,omitempty"`
	LocalCounts       *core.RowCounts `json:"local_counts,omitempty"`
	RemoteCounts      *core.RowCounts `json:"remote_counts,omitempty"`
	SyncNeeded        bool            `json:"sync_needed"`
	Error             string          `json:"error,omitempty"`
}

// EventPublisher is told about every finished sync.
type EventPublisher interface {
	PublishSyncReport(ctx context.Context, report SyncReport) error
}
