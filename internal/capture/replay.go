package capture

import (
	"context"
	"fmt"

	"netsentry/internal/logger"
	"netsentry/internal/metrics"
	"netsentry/internal/model"

	"github.com/google/gopacket"
	"github.com/google/gopacket/pcap"
)

// ReplaySource reads a capture file and replays it through the pipeline.
// Used for offline analysis and regression runs against recorded traffic.
type ReplaySource struct {
	Path string
	BPF  string
}

// Run replays the file to completion and returns nil, or ctx.Err() if
// cancelled mid-file. Packet timestamps come from the capture file, so flow
// windows reflect the original traffic timing.
func (s *ReplaySource) Run(ctx context.Context, out chan *model.PacketEvent) error {
	handle, err := pcap.OpenOffline(s.Path)
	if err != nil {
		return fmt.Errorf("open pcap %s: %w", s.Path, err)
	}
	defer handle.Close()

	if s.BPF != "" {
		if err := handle.SetBPFFilter(s.BPF); err != nil {
			return fmt.Errorf("set bpf filter: %w", err)
		}
	}

	src := gopacket.NewPacketSource(handle, handle.LinkType())
	var total, parsed int
	for packet := range src.Packets() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		total++
		ev, err := ParsePacket(packet.Data())
		if err != nil {
			metrics.ParseErrorsTotal.Inc()
			continue
		}
		ev.Timestamp = packet.Metadata().Timestamp
		parsed++
		Deliver(out, ev)
	}
	logger.Infof("replay: %s done, %d/%d packets parsed", s.Path, parsed, total)
	return nil
}
