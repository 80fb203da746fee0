package amqp

import (
	"encoding/json"
	"time"

	"envelopes/internal/replication"
)

// SyncEventMessage announces a finished push or pull. Consumers read the
// ledger themselves; the message only carries the outcome.
type SyncEventMessage struct {
	SyncID             string    `json:"sync_id"`
	Direction          string    `json:"direction"`
	EnvelopesSynced    int       `json:"envelopes_synced"`
	TransactionsSynced int       `json:"transactions_synced"`
	Errors             []string  `json:"errors,omitempty"`
	StartedAt          time.Time `json:"started_at"`
	FinishedAt         time.Time `json:"finished_at"`
	Timestamp          time.Time `json:"timestamp"`
}

// NewSyncEventMessage creates a message from a sync report
func NewSyncEventMessage(r replication.SyncReport) *SyncEventMessage {
	return &SyncEventMessage{
		SyncID:             r.ID,
		Direction:          string(r.Direction),
		EnvelopesSynced:    r.EnvelopesSynced,
		TransactionsSynced: r.TransactionsSynced,
		Errors:             r.Errors,
		StartedAt:          r.StartedAt,
		FinishedAt:         r.FinishedAt,
		Timestamp:          time.Now(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *SyncEventMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// SyncEventMessageFromJSON creates a message from JSON bytes
func SyncEventMessageFromJSON(data []byte) (*SyncEventMessage, error) {
	var msg SyncEventMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
