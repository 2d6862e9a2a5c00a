package capture

import (
	"context"
	"strconv"
	"time"

	"netsentry/internal/logger"
	"netsentry/internal/metrics"
	"netsentry/internal/model"

	"github.com/google/gopacket"
	"github.com/google/gopacket/pcap"
)

// Source feeds decoded packet events into the pipeline. Run blocks until the
// context is cancelled or the source is exhausted, and never closes out. The
// channel is bidirectional so sources can evict the oldest queued event when
// the consumer falls behind.
type Source interface {
	Run(ctx context.Context, out chan *model.PacketEvent) error
}

// LiveSource captures from a network interface and survives interface flaps
// by reopening the handle with exponential backoff.
type LiveSource struct {
	Interface   string
	BPF         string
	SnapshotLen int32
	Promiscuous bool
	MinBackoff  time.Duration
	MaxBackoff  time.Duration
}

// Run opens the interface and pumps packets until ctx is cancelled. Capture
// errors trigger a reconnect rather than a shutdown; the pipeline downstream
// keeps running on whatever the source can deliver.
func (s *LiveSource) Run(ctx context.Context, out chan *model.PacketEvent) error {
	backoff := s.MinBackoff
	for {
		handle, err := pcap.OpenLive(s.Interface, s.SnapshotLen, s.Promiscuous, pcap.BlockForever)
		if err == nil && s.BPF != "" {
			if ferr := handle.SetBPFFilter(s.BPF); ferr != nil {
				handle.Close()
				err = ferr
			}
		}
		if err != nil {
			logger.Errorf("capture: open %s failed: %v, retrying in %v", s.Interface, err, backoff)
			metrics.CaptureReconnectsTotal.Inc()
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > s.MaxBackoff {
				backoff = s.MaxBackoff
			}
			continue
		}

		logger.Infof("capture: listening on %s (bpf=%q)", s.Interface, s.BPF)
		backoff = s.MinBackoff
		err = s.pump(ctx, handle, out)
		handle.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		logger.Warnf("capture: stream on %s ended: %v, reconnecting", s.Interface, err)
		metrics.CaptureReconnectsTotal.Inc()
	}
}

func (s *LiveSource) pump(ctx context.Context, handle *pcap.Handle, out chan *model.PacketEvent) error {
	src := gopacket.NewPacketSource(handle, handle.LinkType())
	src.NoCopy = true
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case packet, ok := <-src.Packets():
			if !ok {
				return nil
			}
			ev, err := ParsePacket(packet.Data())
			if err != nil {
				metrics.ParseErrorsTotal.Inc()
				continue
			}
			ev.Timestamp = packet.Metadata().Timestamp
			Deliver(out, ev)
		}
	}
}

// Deliver enqueues a packet event, evicting the oldest queued event when the
// buffer is full. Ingest never blocks on a slow consumer.
func Deliver(out chan *model.PacketEvent, ev *model.PacketEvent) {
	metrics.PacketsTotal.WithLabelValues(strconv.Itoa(int(ev.FiveTuple.Protocol))).Inc()
	select {
	case out <- ev:
		return
	default:
	}
	select {
	case <-out:
		metrics.DroppedTotal.WithLabelValues("capture").Inc()
	default:
	}
	select {
	case out <- ev:
	default:
		// Lost a race with a faster producer; shed the new event instead.
		metrics.DroppedTotal.WithLabelValues("capture").Inc()
	}
}
