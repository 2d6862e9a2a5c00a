package feature

import (
	"net"
	"testing"
	"time"

	"netsentry/internal/model"
)

func sampleRecord() model.FlowRecord {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	return model.FlowRecord{
		Key: "10.0.0.1-10.0.0.2-1234-443-6",
		FiveTuple: model.FiveTuple{
			SrcIP:    net.ParseIP("10.0.0.1"),
			DstIP:    net.ParseIP("10.0.0.2"),
			SrcPort:  1234,
			DstPort:  443,
			Protocol: 6,
		},
		WindowStart: start,
		WindowEnd:   start.Add(10 * time.Second),
		FirstSeen:   start,
		LastSeen:    start.Add(4 * time.Second),
		PacketCount: 8,
		ByteCount:   1600,
		FlagCounts:  [6]uint64{0, 1, 0, 2, 7, 0},
		IATCount:    7,
		IATMean:     0.5,
		IATM2:       0.7,
	}
}

func TestExtractBasicFeatures(t *testing.T) {
	v := Extract(sampleRecord())

	if v[FDuration] != 4 {
		t.Errorf("duration = %f, want 4", v[FDuration])
	}
	if v[FPacketCount] != 8 || v[FByteCount] != 1600 {
		t.Errorf("counts = %f/%f, want 8/1600", v[FPacketCount], v[FByteCount])
	}
	if v[FPacketRate] != 2 {
		t.Errorf("packet rate = %f, want 2", v[FPacketRate])
	}
	if v[FByteRate] != 400 {
		t.Errorf("byte rate = %f, want 400", v[FByteRate])
	}
	if v[FMeanPktSize] != 200 {
		t.Errorf("mean packet size = %f, want 200", v[FMeanPktSize])
	}
	if v[FSYNRate] != 0.125 {
		t.Errorf("SYN rate = %f, want 0.125", v[FSYNRate])
	}
	if v[FACKRate] != 0.875 {
		t.Errorf("ACK rate = %f, want 0.875", v[FACKRate])
	}
	if v[FProtoTCP] != 1 || v[FProtoUDP] != 0 || v[FProtoICMP] != 0 {
		t.Errorf("protocol one-hot = %f/%f/%f, want 1/0/0", v[FProtoTCP], v[FProtoUDP], v[FProtoICMP])
	}
	if v[FDstPortClass] != 0 {
		t.Errorf("port class = %f, want 0 for port 443", v[FDstPortClass])
	}
}

func TestExtractIsDeterministic(t *testing.T) {
	rec := sampleRecord()
	a := Extract(rec)
	b := Extract(rec)
	if a != b {
		t.Error("identical records produced different feature vectors")
	}
}

func TestExtractZeroDurationFlow(t *testing.T) {
	rec := sampleRecord()
	rec.LastSeen = rec.FirstSeen
	rec.PacketCount = 1
	rec.ByteCount = 60
	rec.IATCount = 0
	rec.IATMean = 0
	rec.IATM2 = 0

	v := Extract(rec)
	if v[FPacketRate] != 0 || v[FByteRate] != 0 {
		t.Errorf("zero-duration rates = %f/%f, want 0/0", v[FPacketRate], v[FByteRate])
	}
	if v[FMeanPktSize] != 60 {
		t.Errorf("mean packet size = %f, want 60", v[FMeanPktSize])
	}
	for i, f := range v {
		if f != f { // NaN check
			t.Errorf("feature %d is NaN", i)
		}
	}
}

func TestExtractEmptyRecord(t *testing.T) {
	v := Extract(model.FlowRecord{})
	for i, f := range v {
		if f != 0 {
			t.Errorf("feature %d = %f, want 0 for empty record", i, f)
		}
	}
}

func TestPortClassBuckets(t *testing.T) {
	cases := []struct {
		port uint16
		want float64
	}{
		{53, 0},
		{1023, 0},
		{1024, 0.5},
		{8080, 0.5},
		{49151, 0.5},
		{49152, 1},
		{65535, 1},
	}
	for _, c := range cases {
		if got := portClass(c.port); got != c.want {
			t.Errorf("portClass(%d) = %f, want %f", c.port, got, c.want)
		}
	}
}
