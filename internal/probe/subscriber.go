package probe

import (
	"context"
	"encoding/json"

	"netsentry/internal/capture"
	"netsentry/internal/logger"
	"netsentry/internal/metrics"
	"netsentry/internal/model"

	"github.com/nats-io/nats.go"
)

// NATSSource is a capture.Source that receives packet events published by
// remote sensors. It lets the detection engine run on a different host than
// the capture points.
type NATSSource struct {
	conn    *nats.Conn
	subject string
}

// NewNATSSource wraps an existing connection.
func NewNATSSource(conn *nats.Conn, subject string) *NATSSource {
	return &NATSSource{conn: conn, subject: subject}
}

// Run subscribes and forwards decoded events until ctx is cancelled. All
// deliveries happen on this goroutine, so once Run returns the output
// channel sees no further sends.
func (s *NATSSource) Run(ctx context.Context, out chan *model.PacketEvent) error {
	msgCh := make(chan *nats.Msg, 1024)
	sub, err := s.conn.ChanSubscribe(s.subject, msgCh)
	if err != nil {
		return err
	}
	logger.Infof("probe: subscribed to %s", s.subject)

	for {
		select {
		case <-ctx.Done():
			if err := sub.Unsubscribe(); err != nil {
				logger.Warnf("probe: unsubscribe: %v", err)
			}
			return ctx.Err()
		case msg := <-msgCh:
			var ev model.PacketEvent
			if err := json.Unmarshal(msg.Data, &ev); err != nil {
				metrics.ParseErrorsTotal.Inc()
				continue
			}
			capture.Deliver(out, &ev)
		}
	}
}
