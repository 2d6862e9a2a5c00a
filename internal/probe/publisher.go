package probe

import (
	"context"
	"encoding/json"
	"fmt"

	"netsentry/internal/logger"
	"netsentry/internal/model"

	"github.com/nats-io/nats.go"
)

// Publisher ships packet events from a sensor to the detection engine over
// NATS. Events are JSON-encoded; a lost message costs one packet of
// telemetry, which the flow layer absorbs.
type Publisher struct {
	conn    *nats.Conn
	subject string
}

// NewPublisher wraps an existing connection.
func NewPublisher(conn *nats.Conn, subject string) *Publisher {
	return &Publisher{conn: conn, subject: subject}
}

// Run drains the capture channel until it closes or ctx is cancelled.
func (p *Publisher) Run(ctx context.Context, in <-chan *model.PacketEvent) error {
	var published, failed uint64
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-in:
			if !ok {
				logger.Infof("probe: publisher done, %d published, %d failed", published, failed)
				return p.conn.Flush()
			}
			if err := p.publish(ev); err != nil {
				failed++
				if failed%1000 == 1 {
					logger.Warnf("probe: publish failed: %v", err)
				}
				continue
			}
			published++
		}
	}
}

func (p *Publisher) publish(ev *model.PacketEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal packet event: %w", err)
	}
	return p.conn.Publish(p.subject, data)
}
