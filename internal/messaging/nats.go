// Package messaging publishes verification lifecycle events over NATS.
// Publishing is optional; the service runs fine without a broker.
package messaging

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"

	"por-go/internal/por"
)

const defaultSubject = "por.verification.completed"

// NATSNotifier publishes completion events as JSON messages.
type NATSNotifier struct {
	conn    *nats.Conn
	subject string
	log     por.Logger
}

// NewNATSNotifier connects to the broker at url. An empty subject falls back
// to the default.
func NewNATSNotifier(url, subject string, log por.Logger) (*NATSNotifier, error) {
	if log == nil {
		log = por.NopLogger{}
	}
	if subject == "" {
		subject = defaultSubject
	}

	conn, err := nats.Connect(url,
		nats.Name("porv"),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, fmt.Errorf("connecting to nats at %s: %w", url, err)
	}

	return &NATSNotifier{conn: conn, subject: subject, log: log}, nil
}

var _ por.Notifier = (*NATSNotifier)(nil)

type completedEvent struct {
	ID             int64  `json:"id"`
	FileHash       string `json:"file_hash"`
	ProofTimestamp int64  `json:"proof_timestamp"`
	Valid          *bool  `json:"valid"`
}

// PublishVerificationCompleted emits one event for a job that reached a
// terminal state.
func (n *NATSNotifier) PublishVerificationCompleted(ctx context.Context, rec *por.VerificationRecord) error {
	data, err := json.Marshal(completedEvent{
		ID:             rec.ID,
		FileHash:       rec.FileHash,
		ProofTimestamp: rec.ProofTimestamp,
		Valid:          rec.Valid,
	})
	if err != nil {
		return fmt.Errorf("encoding event: %w", err)
	}

	if err := n.conn.Publish(n.subject, data); err != nil {
		return fmt.Errorf("publishing to %s: %w", n.subject, err)
	}

	n.log.Debug("completion event published", "subject", n.subject, "id", rec.ID)
	return nil
}

// Close flushes pending messages and drops the connection.
func (n *NATSNotifier) Close() {
	if err := n.conn.Flush(); err != nil {
		n.log.Warn("flushing nats connection failed", "error", err)
	}
	n.conn.Close()
}
