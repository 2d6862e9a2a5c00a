package capture

import (
	"fmt"
	"time"

	"netsentry/internal/model"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

// ParsePacket decodes a raw Ethernet frame and extracts the metadata needed
// for feature extraction. Non-IPv4 packets and transports other than
// TCP/UDP/ICMP are rejected with an error; callers count and discard them.
func ParsePacket(data []byte) (*model.PacketEvent, error) {
	packet := gopacket.NewPacket(data, layers.LayerTypeEthernet, gopacket.Default)

	ev := &model.PacketEvent{
		Timestamp: time.Now(), // overwritten by capture metadata when available
		Length:    len(data),
	}
	if meta := packet.Metadata(); meta != nil && !meta.Timestamp.IsZero() {
		ev.Timestamp = meta.Timestamp
	}

	ipLayer := packet.Layer(layers.LayerTypeIPv4)
	if ipLayer == nil {
		return nil, fmt.Errorf("not an IPv4 packet")
	}
	ip := ipLayer.(*layers.IPv4)
	ev.FiveTuple.SrcIP = ip.SrcIP
	ev.FiveTuple.DstIP = ip.DstIP
	ev.FiveTuple.Protocol = uint8(ip.Protocol)
	ev.TTL = ip.TTL

	switch {
	case packet.Layer(layers.LayerTypeTCP) != nil:
		tcp := packet.Layer(layers.LayerTypeTCP).(*layers.TCP)
		ev.FiveTuple.SrcPort = uint16(tcp.SrcPort)
		ev.FiveTuple.DstPort = uint16(tcp.DstPort)
		ev.TCPFlags = tcpFlagByte(tcp)
	case packet.Layer(layers.LayerTypeUDP) != nil:
		udp := packet.Layer(layers.LayerTypeUDP).(*layers.UDP)
		ev.FiveTuple.SrcPort = uint16(udp.SrcPort)
		ev.FiveTuple.DstPort = uint16(udp.DstPort)
	case packet.Layer(layers.LayerTypeICMPv4) != nil:
		// ICMP has no ports; the type/code pair stands in so that echo
		// floods aggregate into one flow per source.
		icmp := packet.Layer(layers.LayerTypeICMPv4).(*layers.ICMPv4)
		ev.FiveTuple.SrcPort = uint16(icmp.TypeCode.Type())
		ev.FiveTuple.DstPort = uint16(icmp.TypeCode.Code())
	default:
		return nil, fmt.Errorf("unsupported transport protocol %d", ip.Protocol)
	}

	return ev, nil
}

func tcpFlagByte(tcp *layers.TCP) uint8 {
	var f uint8
	if tcp.FIN {
		f |= model.FlagFIN
	}
	if tcp.SYN {
		f |= model.FlagSYN
	}
	if tcp.RST {
		f |= model.FlagRST
	}
	if tcp.PSH {
		f |= model.FlagPSH
	}
	if tcp.ACK {
		f |= model.FlagACK
	}
	if tcp.URG {
		f |= model.FlagURG
	}
	return f
}
