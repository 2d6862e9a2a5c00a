package flow

import (
	"net"
	"testing"
	"time"

	"netsentry/internal/config"
	"netsentry/internal/model"
)

func testConfig() config.FlowConfig {
	cfg := config.FlowConfig{
		Window:        10 * time.Second,
		PacketCap:     100,
		SweepInterval: time.Hour, // sweeps driven manually in tests
		NumShards:     16,
		OutputBuffer:  64,
	}
	return cfg
}

func packetAt(ts time.Time, flags uint8) *model.PacketEvent {
	return &model.PacketEvent{
		Timestamp: ts,
		FiveTuple: model.FiveTuple{
			SrcIP:    net.ParseIP("192.168.0.1"),
			DstIP:    net.ParseIP("8.8.8.8"),
			SrcPort:  12345,
			DstPort:  53,
			Protocol: 6,
		},
		Length:   100,
		TCPFlags: flags,
	}
}

func collect(t *testing.T, out chan model.FlowRecord, n int) []model.FlowRecord {
	t.Helper()
	var recs []model.FlowRecord
	timeout := time.After(time.Second)
	for len(recs) < n {
		select {
		case rec := <-out:
			recs = append(recs, rec)
		case <-timeout:
			t.Fatalf("Timed out waiting for flow records. Got %d of %d.", len(recs), n)
		}
	}
	return recs
}

func TestAggregatorWindowClose(t *testing.T) {
	agg := NewAggregator(testConfig())
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	agg.Process(packetAt(base, model.FlagSYN))
	agg.Process(packetAt(base.Add(time.Second), model.FlagACK))
	agg.Process(packetAt(base.Add(2*time.Second), model.FlagACK))

	if got := agg.ActiveCount(); got != 1 {
		t.Fatalf("ActiveCount = %d, want 1", got)
	}

	// A packet past the window end closes the record and opens a new one.
	agg.Process(packetAt(base.Add(11*time.Second), model.FlagACK))

	recs := collect(t, agg.Out, 1)
	rec := recs[0]
	if rec.PacketCount != 3 {
		t.Errorf("PacketCount = %d, want 3", rec.PacketCount)
	}
	if rec.ByteCount != 300 {
		t.Errorf("ByteCount = %d, want 300", rec.ByteCount)
	}
	if !rec.WindowStart.Equal(base) {
		t.Errorf("WindowStart = %v, want %v", rec.WindowStart, base)
	}
	if rec.Duration() != 2*time.Second {
		t.Errorf("Duration = %v, want 2s", rec.Duration())
	}
	if got := agg.ActiveCount(); got != 1 {
		t.Errorf("ActiveCount after rollover = %d, want 1", got)
	}
}

func TestAggregatorWindowsNeverOverlap(t *testing.T) {
	agg := NewAggregator(testConfig())
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	// 30 packets one second apart: three 10s windows of 10 packets each.
	for i := 0; i < 30; i++ {
		agg.Process(packetAt(base.Add(time.Duration(i)*time.Second), model.FlagACK))
	}
	agg.Sweep(base.Add(41 * time.Second))

	recs := collect(t, agg.Out, 3)
	var total uint64
	for i, rec := range recs {
		total += rec.PacketCount
		if rec.PacketCount != 10 {
			t.Errorf("window %d PacketCount = %d, want 10", i, rec.PacketCount)
		}
		if i > 0 && recs[i].WindowStart.Before(recs[i-1].WindowEnd) {
			t.Errorf("window %d starts before window %d ends", i, i-1)
		}
	}
	if total != 30 {
		t.Errorf("total packets across windows = %d, want 30", total)
	}
}

func TestAggregatorPacketCap(t *testing.T) {
	cfg := testConfig()
	cfg.PacketCap = 5
	agg := NewAggregator(cfg)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		agg.Process(packetAt(base.Add(time.Duration(i)*time.Millisecond), model.FlagACK))
	}

	recs := collect(t, agg.Out, 1)
	if recs[0].PacketCount != 5 {
		t.Errorf("PacketCount = %d, want 5", recs[0].PacketCount)
	}
	if got := agg.ActiveCount(); got != 0 {
		t.Errorf("ActiveCount after cap close = %d, want 0", got)
	}
}

func TestAggregatorFINAndRSTClose(t *testing.T) {
	agg := NewAggregator(testConfig())
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	agg.Process(packetAt(base, model.FlagSYN))
	agg.Process(packetAt(base.Add(time.Second), model.FlagFIN|model.FlagACK))

	recs := collect(t, agg.Out, 1)
	if !recs[0].FINSeen {
		t.Error("FINSeen not set on FIN-closed record")
	}

	agg.Process(packetAt(base.Add(2*time.Second), model.FlagSYN))
	agg.Process(packetAt(base.Add(3*time.Second), model.FlagRST))

	recs = collect(t, agg.Out, 1)
	if !recs[0].RSTSeen {
		t.Error("RSTSeen not set on RST-closed record")
	}
	if got := agg.ActiveCount(); got != 0 {
		t.Errorf("ActiveCount = %d, want 0", got)
	}
}

func TestAggregatorEarlyCloseNeverOverlapsReopen(t *testing.T) {
	cfg := testConfig()
	cfg.PacketCap = 3
	agg := NewAggregator(cfg)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	// Three packets hit the cap milliseconds into a 10s window.
	for i := 0; i < 3; i++ {
		agg.Process(packetAt(base.Add(time.Duration(i)*time.Millisecond), model.FlagACK))
	}
	closed := collect(t, agg.Out, 1)[0]
	if !closed.WindowEnd.Equal(closed.LastSeen) {
		t.Fatalf("cap-closed WindowEnd = %v, want truncated to LastSeen %v", closed.WindowEnd, closed.LastSeen)
	}

	// The same key reopens; its window must start at or after the closed end.
	agg.Process(packetAt(base.Add(10*time.Millisecond), model.FlagACK))
	agg.Process(packetAt(base.Add(11*time.Millisecond), model.FlagFIN))

	reopened := collect(t, agg.Out, 1)[0]
	if reopened.WindowStart.Before(closed.WindowEnd) {
		t.Errorf("reopened window [%v, %v) overlaps closed window ending %v",
			reopened.WindowStart, reopened.WindowEnd, closed.WindowEnd)
	}
	if !reopened.WindowEnd.Equal(reopened.LastSeen) {
		t.Errorf("FIN-closed WindowEnd = %v, want truncated to LastSeen %v", reopened.WindowEnd, reopened.LastSeen)
	}
}

func TestAggregatorSweepClosesExpired(t *testing.T) {
	agg := NewAggregator(testConfig())
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	agg.Process(packetAt(base, model.FlagACK))
	agg.Sweep(base.Add(5 * time.Second))
	if got := agg.ActiveCount(); got != 1 {
		t.Fatalf("flow swept before window end, ActiveCount = %d", got)
	}

	agg.Sweep(base.Add(10 * time.Second))
	if got := agg.ActiveCount(); got != 0 {
		t.Errorf("ActiveCount after sweep = %d, want 0", got)
	}
	collect(t, agg.Out, 1)
}

func TestAggregatorIATStatistics(t *testing.T) {
	agg := NewAggregator(testConfig())
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	// Inter-arrival gaps of exactly 1s each.
	for i := 0; i < 4; i++ {
		agg.Process(packetAt(base.Add(time.Duration(i)*time.Second), model.FlagACK))
	}
	agg.Sweep(base.Add(10 * time.Second))

	recs := collect(t, agg.Out, 1)
	rec := recs[0]
	if rec.IATCount != 3 {
		t.Fatalf("IATCount = %d, want 3", rec.IATCount)
	}
	if rec.IATMean < 0.999 || rec.IATMean > 1.001 {
		t.Errorf("IATMean = %f, want 1.0", rec.IATMean)
	}
	if v := rec.IATVariance(); v > 0.001 {
		t.Errorf("IATVariance = %f, want ~0 for constant gaps", v)
	}
}

func TestAggregatorStopDrainsOpenFlows(t *testing.T) {
	agg := NewAggregator(testConfig())
	agg.Start(2)

	agg.In <- packetAt(time.Now(), model.FlagACK)
	agg.Stop()

	var recs []model.FlowRecord
	for rec := range agg.Out {
		recs = append(recs, rec)
	}
	if len(recs) != 1 {
		t.Fatalf("drained %d records, want 1", len(recs))
	}
	if recs[0].PacketCount != 1 {
		t.Errorf("PacketCount = %d, want 1", recs[0].PacketCount)
	}
}
