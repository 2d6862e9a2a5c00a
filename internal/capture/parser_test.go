package capture

import (
	"net"
	"testing"

	"netsentry/internal/model"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

func buildPacket(t *testing.T, ip *layers.IPv4, transport gopacket.SerializableLayer, payload []byte) []byte {
	t.Helper()
	eth := &layers.Ethernet{
		SrcMAC:       net.HardwareAddr{0x00, 0x11, 0x22, 0x33, 0x44, 0x55},
		DstMAC:       net.HardwareAddr{0x66, 0x77, 0x88, 0x99, 0xaa, 0xbb},
		EthernetType: layers.EthernetTypeIPv4,
	}
	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	err := gopacket.SerializeLayers(buf, opts, eth, ip, transport, gopacket.Payload(payload))
	if err != nil {
		t.Fatalf("Failed to serialize packet: %v", err)
	}
	return buf.Bytes()
}

func TestParsePacketTCP(t *testing.T) {
	ip := &layers.IPv4{
		Version:  4,
		IHL:      5,
		TTL:      64,
		Protocol: layers.IPProtocolTCP,
		SrcIP:    net.IPv4(10, 0, 0, 1),
		DstIP:    net.IPv4(10, 0, 0, 2),
	}
	tcp := &layers.TCP{
		SrcPort: 54321,
		DstPort: 443,
		SYN:     true,
		ACK:     true,
		Seq:     1,
	}
	tcp.SetNetworkLayerForChecksum(ip)

	data := buildPacket(t, ip, tcp, nil)
	ev, err := ParsePacket(data)
	if err != nil {
		t.Fatalf("ParsePacket failed: %v", err)
	}

	if !ev.FiveTuple.SrcIP.Equal(net.IPv4(10, 0, 0, 1)) {
		t.Errorf("SrcIP = %s, want 10.0.0.1", ev.FiveTuple.SrcIP)
	}
	if ev.FiveTuple.SrcPort != 54321 || ev.FiveTuple.DstPort != 443 {
		t.Errorf("ports = %d->%d, want 54321->443", ev.FiveTuple.SrcPort, ev.FiveTuple.DstPort)
	}
	if ev.FiveTuple.Protocol != uint8(layers.IPProtocolTCP) {
		t.Errorf("Protocol = %d, want TCP", ev.FiveTuple.Protocol)
	}
	if ev.TTL != 64 {
		t.Errorf("TTL = %d, want 64", ev.TTL)
	}
	if ev.TCPFlags != model.FlagSYN|model.FlagACK {
		t.Errorf("TCPFlags = %#x, want SYN|ACK", ev.TCPFlags)
	}
	if ev.Length != len(data) {
		t.Errorf("Length = %d, want %d", ev.Length, len(data))
	}
}

func TestParsePacketUDP(t *testing.T) {
	ip := &layers.IPv4{
		Version:  4,
		IHL:      5,
		TTL:      128,
		Protocol: layers.IPProtocolUDP,
		SrcIP:    net.IPv4(192, 168, 1, 10),
		DstIP:    net.IPv4(8, 8, 8, 8),
	}
	udp := &layers.UDP{SrcPort: 40000, DstPort: 53}
	udp.SetNetworkLayerForChecksum(ip)

	ev, err := ParsePacket(buildPacket(t, ip, udp, []byte("query")))
	if err != nil {
		t.Fatalf("ParsePacket failed: %v", err)
	}
	if ev.FiveTuple.DstPort != 53 {
		t.Errorf("DstPort = %d, want 53", ev.FiveTuple.DstPort)
	}
	if ev.TCPFlags != 0 {
		t.Errorf("TCPFlags = %#x, want 0 for UDP", ev.TCPFlags)
	}
}

func TestParsePacketICMP(t *testing.T) {
	ip := &layers.IPv4{
		Version:  4,
		IHL:      5,
		TTL:      64,
		Protocol: layers.IPProtocolICMPv4,
		SrcIP:    net.IPv4(10, 0, 0, 1),
		DstIP:    net.IPv4(10, 0, 0, 2),
	}
	icmp := &layers.ICMPv4{
		TypeCode: layers.CreateICMPv4TypeCode(layers.ICMPv4TypeEchoRequest, 0),
	}

	ev, err := ParsePacket(buildPacket(t, ip, icmp, []byte("ping")))
	if err != nil {
		t.Fatalf("ParsePacket failed: %v", err)
	}
	if ev.FiveTuple.SrcPort != uint16(layers.ICMPv4TypeEchoRequest) {
		t.Errorf("SrcPort = %d, want echo request type", ev.FiveTuple.SrcPort)
	}
}

func TestParsePacketRejectsNonIPv4(t *testing.T) {
	eth := &layers.Ethernet{
		SrcMAC:       net.HardwareAddr{0x00, 0x11, 0x22, 0x33, 0x44, 0x55},
		DstMAC:       net.HardwareAddr{0x66, 0x77, 0x88, 0x99, 0xaa, 0xbb},
		EthernetType: layers.EthernetTypeARP,
	}
	arp := &layers.ARP{
		AddrType:          layers.LinkTypeEthernet,
		Protocol:          layers.EthernetTypeIPv4,
		HwAddressSize:     6,
		ProtAddressSize:   4,
		Operation:         layers.ARPRequest,
		SourceHwAddress:   []byte{0x00, 0x11, 0x22, 0x33, 0x44, 0x55},
		SourceProtAddress: []byte{10, 0, 0, 1},
		DstHwAddress:      []byte{0, 0, 0, 0, 0, 0},
		DstProtAddress:    []byte{10, 0, 0, 2},
	}
	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true}
	if err := gopacket.SerializeLayers(buf, opts, eth, arp); err != nil {
		t.Fatalf("Failed to serialize ARP packet: %v", err)
	}

	if _, err := ParsePacket(buf.Bytes()); err == nil {
		t.Error("Expected error for non-IPv4 packet, got nil")
	}
}

func TestDeliverDropsOldest(t *testing.T) {
	ch := make(chan *model.PacketEvent, 2)
	mk := func(port uint16) *model.PacketEvent {
		return &model.PacketEvent{FiveTuple: model.FiveTuple{SrcPort: port}}
	}
	Deliver(ch, mk(1))
	Deliver(ch, mk(2))
	Deliver(ch, mk(3)) // evicts 1

	first := <-ch
	if first.FiveTuple.SrcPort != 2 {
		t.Errorf("oldest surviving event has port %d, want 2", first.FiveTuple.SrcPort)
	}
	second := <-ch
	if second.FiveTuple.SrcPort != 3 {
		t.Errorf("newest event has port %d, want 3", second.FiveTuple.SrcPort)
	}
}
