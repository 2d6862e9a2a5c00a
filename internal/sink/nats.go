package sink

import (
	"encoding/json"
	"fmt"

	"netsentry/internal/logger"
	"netsentry/internal/model"

	"github.com/nats-io/nats.go"
)

// NATSWriter broadcasts alert records on a subject for live consumers
// (dashboards, SOC tooling). Delivery is at-most-once; the audit chain is
// the durable record.
type NATSWriter struct {
	conn    *nats.Conn
	subject string
}

// NewNATSWriter publishes on the given subject over an existing connection.
// The writer does not own the connection.
func NewNATSWriter(conn *nats.Conn, subject string) *NATSWriter {
	return &NATSWriter{conn: conn, subject: subject}
}

// WriteRecord publishes the record as JSON.
func (w *NATSWriter) WriteRecord(rec model.AlertRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal alert record: %w", err)
	}
	if err := w.conn.Publish(w.subject, data); err != nil {
		return fmt.Errorf("publish alert record: %w", err)
	}
	return nil
}

// Close flushes pending publishes; the shared connection stays open.
func (w *NATSWriter) Close() error {
	if err := w.conn.Flush(); err != nil {
		logger.Warnf("sink: nats flush: %v", err)
	}
	return nil
}
