package model

import (
	"fmt"
	"net"
	"time"
)

// FiveTuple identifies a flow: source/destination address, ports and protocol.
type FiveTuple struct {
	SrcIP    net.IP
	DstIP    net.IP
	SrcPort  uint16
	DstPort  uint16
	Protocol uint8 // e.g., TCP, UDP, ICMP
}

// Key returns the canonical string key for the tuple. It is the unit of
// flow aggregation and shard selection.
func (ft FiveTuple) Key() string {
	return fmt.Sprintf("%s-%s-%d-%d-%d", ft.SrcIP, ft.DstIP, ft.SrcPort, ft.DstPort, ft.Protocol)
}

// PacketEvent holds the metadata extracted from a single captured packet.
// It is immutable once produced by a capture source.
type PacketEvent struct {
	Timestamp time.Time `json:"timestamp"`
	FiveTuple FiveTuple `json:"five_tuple"`
	Length    int       `json:"length"`
	TCPFlags  uint8     `json:"tcp_flags,omitempty"` // raw TCP flag byte, zero for non-TCP
	TTL       uint8     `json:"ttl,omitempty"`
}

// TCP flag bits as they appear on the wire.
const (
	FlagFIN = 0x01
	FlagSYN = 0x02
	FlagRST = 0x04
	FlagPSH = 0x08
	FlagACK = 0x10
	FlagURG = 0x20
)

// FlowRecord is the aggregate of all packets sharing a FiveTuple within one
// tumbling window. It is owned by the flow aggregator until closed, then
// handed downstream by value.
type FlowRecord struct {
	Key         string
	FiveTuple   FiveTuple
	WindowStart time.Time
	WindowEnd   time.Time
	FirstSeen   time.Time
	LastSeen    time.Time
	PacketCount uint64
	ByteCount   uint64

	// FlagCounts indexes the six classic TCP flags in wire-bit order:
	// FIN, SYN, RST, PSH, ACK, URG.
	FlagCounts [6]uint64

	// Inter-arrival statistics maintained with Welford's algorithm.
	IATCount uint64
	IATMean  float64
	IATM2    float64

	FINSeen bool
	RSTSeen bool
}

// IATVariance returns the variance of packet inter-arrival times in seconds.
func (f *FlowRecord) IATVariance() float64 {
	if f.IATCount < 2 {
		return 0
	}
	return f.IATM2 / float64(f.IATCount)
}

// Duration returns the observed span of the flow within its window, from the
// first to the last packet.
func (f *FlowRecord) Duration() time.Duration {
	if f.FirstSeen.IsZero() || f.LastSeen.Before(f.FirstSeen) {
		return 0
	}
	return f.LastSeen.Sub(f.FirstSeen)
}

// NumFeatures is the width of a FeatureVector. The feature ordering is a
// contract shared between the extractor and the classifier and must not
// change without bumping the feature set version.
const NumFeatures = 18

// FeatureVector is the fixed-width numeric summary of one FlowRecord.
type FeatureVector [NumFeatures]float64
