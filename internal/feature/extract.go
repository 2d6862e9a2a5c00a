package feature

import (
	"math"

	"netsentry/internal/model"
)

// SetVersion identifies the feature ordering below. Trained models embed the
// version they were fitted against; the classifier refuses a mismatch.
const SetVersion = 1

// Feature vector indices. Order is frozen for SetVersion 1.
const (
	FDuration = iota
	FPacketCount
	FByteCount
	FPacketRate
	FByteRate
	FMeanPktSize
	FIATMean
	FIATStd
	FFINRate
	FSYNRate
	FRSTRate
	FPSHRate
	FACKRate
	FURGRate
	FProtoTCP
	FProtoUDP
	FProtoICMP
	FDstPortClass
)

const (
	protoICMP = 1
	protoTCP  = 6
	protoUDP  = 17
)

// Extract computes the fixed-width feature vector for one closed flow record.
// Pure: no I/O, no shared state, deterministic for a given record. Zero-length
// and single-packet flows yield zero rates rather than infinities.
func Extract(rec model.FlowRecord) model.FeatureVector {
	var v model.FeatureVector

	d := rec.Duration().Seconds()
	v[FDuration] = d
	v[FPacketCount] = float64(rec.PacketCount)
	v[FByteCount] = float64(rec.ByteCount)
	if d > 0 {
		v[FPacketRate] = float64(rec.PacketCount) / d
		v[FByteRate] = float64(rec.ByteCount) / d
	}
	if rec.PacketCount > 0 {
		v[FMeanPktSize] = float64(rec.ByteCount) / float64(rec.PacketCount)
	}
	v[FIATMean] = rec.IATMean
	v[FIATStd] = math.Sqrt(rec.IATVariance())

	if rec.PacketCount > 0 {
		n := float64(rec.PacketCount)
		for i := 0; i < 6; i++ {
			v[FFINRate+i] = float64(rec.FlagCounts[i]) / n
		}
	}

	switch rec.FiveTuple.Protocol {
	case protoTCP:
		v[FProtoTCP] = 1
	case protoUDP:
		v[FProtoUDP] = 1
	case protoICMP:
		v[FProtoICMP] = 1
	}

	v[FDstPortClass] = portClass(rec.FiveTuple.DstPort)
	return v
}

// portClass buckets the destination port into well-known (0), registered
// (0.5) and ephemeral (1) ranges.
func portClass(port uint16) float64 {
	switch {
	case port < 1024:
		return 0
	case port < 49152:
		return 0.5
	default:
		return 1
	}
}
