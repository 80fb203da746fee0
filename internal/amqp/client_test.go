package amqp

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rabbitmq/amqp091-go"

	applog "envelopes/internal/log"
	"envelopes/internal/replication"
)

type recordingPublisher struct {
	exchange string
	key      string
	msg      amqp091.Publishing
	err      error
}

func (p *recordingPublisher) PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp091.Publishing) error {
	p.exchange, p.key, p.msg = exchange, key, msg
	return p.err
}

func testReport() replication.SyncReport {
	start := time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC)
	return replication.SyncReport{
		ID:                 "2b0c7f4e-4d7b-4a51-9a0c-6c3f0f2d8f11",
		Direction:          replication.DirectionPush,
		StartedAt:          start,
		FinishedAt:         start.Add(2 * time.Second),
		EnvelopesSynced:    3,
		TransactionsSynced: 12,
		Errors:             []string{},
	}
}

func TestPublishSyncReport(t *testing.T) {
	pub := &recordingPublisher{}
	c := &Client{pub: pub, exchangeName: "envelopes", routingKey: "ledger.sync", logger: applog.Discard()}

	if err := c.PublishSyncReport(context.Background(), testReport()); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if pub.exchange != "envelopes" || pub.key != "ledger.sync" {
		t.Fatalf("published to %s/%s", pub.exchange, pub.key)
	}
	if pub.msg.DeliveryMode != amqp091.Persistent || pub.msg.ContentType != "application/json" {
		t.Fatalf("unexpected publishing: %+v", pub.msg)
	}
	if pub.msg.MessageId != testReport().ID {
		t.Fatalf("message id should be the sync id, got %q", pub.msg.MessageId)
	}

	msg, err := SyncEventMessageFromJSON(pub.msg.Body)
	if err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if msg.Direction != "push" || msg.EnvelopesSynced != 3 || msg.TransactionsSynced != 12 {
		t.Fatalf("unexpected message: %+v", msg)
	}
}

func TestPublishSyncReportError(t *testing.T) {
	pub := &recordingPublisher{err: errors.New("channel closed")}
	c := &Client{pub: pub, exchangeName: "envelopes", routingKey: "ledger.sync", logger: applog.Discard()}

	if err := c.PublishSyncReport(context.Background(), testReport()); err == nil {
		t.Fatalf("expected publish error")
	}
}

func TestSyncEventMessageFromJSONInvalid(t *testing.T) {
	if _, err := SyncEventMessageFromJSON([]byte("{not json")); err == nil {
		t.Fatalf("expected error for malformed body")
	}
}

func TestCloseWithoutConnection(t *testing.T) {
	if err := (&Client{}).Close(); err != nil {
		t.Fatalf("close of unconnected client: %v", err)
	}
}
