// Package packet converts network packets to instances for anomaly scoring.
package packet

import (
	"fmt"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"

	"github.com/hed1ad/brminer/pkg/dataset"
	detio "github.com/hed1ad/brminer/pkg/io"
)

var _ detio.FeatureExtractor = (*FeatureExtractor)(nil)

// Feature positions in the packet schema.
const (
	PacketSize = iota
	InterArrival
	Protocol
	SrcPort
	DstPort
	TCPFlags
	TTL
	PayloadSize
)

// Protocol codes.
const (
	ProtoOther = iota
	ProtoTCP
	ProtoUDP
	ProtoICMP
)

// NewSchema returns the schema of extracted packets. Ports, flags and TTL
// are missing when the packet has no such layer.
func NewSchema() *dataset.Schema {
	s, _ := dataset.NewSchema([]dataset.Feature{
		{Name: "packet_size", Type: dataset.Numeric},
		{Name: "inter_arrival_time", Type: dataset.Numeric},
		{Name: "protocol", Type: dataset.Categorical, Values: []string{"other", "tcp", "udp", "icmp"}},
		{Name: "src_port", Type: dataset.Numeric},
		{Name: "dst_port", Type: dataset.Numeric},
		{Name: "tcp_flags", Type: dataset.Categorical},
		{Name: "ip_ttl", Type: dataset.Numeric},
		{Name: "payload_size", Type: dataset.Numeric},
	}, -1)
	return s
}

// FeatureExtractor extracts features from network packets. It tracks the
// previous timestamp, so one extractor serves one ordered packet source.
type FeatureExtractor struct {
	schema        *dataset.Schema
	lastTimestamp time.Time
}

// NewFeatureExtractor creates a new packet feature extractor.
func NewFeatureExtractor() *FeatureExtractor {
	return &FeatureExtractor{schema: NewSchema()}
}

// Schema returns the packet schema shared by every extracted instance.
func (e *FeatureExtractor) Schema() *dataset.Schema {
	return e.schema
}

// Extract converts a gopacket.Packet to an instance.
func (e *FeatureExtractor) Extract(data any) (dataset.Instance, error) {
	packet, ok := data.(gopacket.Packet)
	if !ok {
		return dataset.Instance{}, fmt.Errorf("extract: unsupported input %T", data)
	}
	return e.ExtractPacket(packet), nil
}

// ExtractPacket converts a packet to an instance.
func (e *FeatureExtractor) ExtractPacket(packet gopacket.Packet) dataset.Instance {
	features := []float64{
		PacketSize:   float64(len(packet.Data())),
		InterArrival: 0,
		Protocol:     ProtoOther,
		SrcPort:      dataset.Missing,
		DstPort:      dataset.Missing,
		TCPFlags:     dataset.Missing,
		TTL:          dataset.Missing,
		PayloadSize:  0,
	}

	metadata := packet.Metadata()
	if metadata != nil && !metadata.Timestamp.IsZero() {
		if !e.lastTimestamp.IsZero() {
			features[InterArrival] = metadata.Timestamp.Sub(e.lastTimestamp).Seconds()
		}
		e.lastTimestamp = metadata.Timestamp
	}

	if tcpLayer := packet.Layer(layers.LayerTypeTCP); tcpLayer != nil {
		tcp := tcpLayer.(*layers.TCP)
		features[Protocol] = ProtoTCP
		features[SrcPort] = float64(tcp.SrcPort)
		features[DstPort] = float64(tcp.DstPort)
		features[TCPFlags] = encodeTCPFlags(tcp)
	} else if udpLayer := packet.Layer(layers.LayerTypeUDP); udpLayer != nil {
		udp := udpLayer.(*layers.UDP)
		features[Protocol] = ProtoUDP
		features[SrcPort] = float64(udp.SrcPort)
		features[DstPort] = float64(udp.DstPort)
	} else if packet.Layer(layers.LayerTypeICMPv4) != nil || packet.Layer(layers.LayerTypeICMPv6) != nil {
		features[Protocol] = ProtoICMP
	}

	if ipLayer := packet.Layer(layers.LayerTypeIPv4); ipLayer != nil {
		features[TTL] = float64(ipLayer.(*layers.IPv4).TTL)
	} else if ipLayer := packet.Layer(layers.LayerTypeIPv6); ipLayer != nil {
		features[TTL] = float64(ipLayer.(*layers.IPv6).HopLimit)
	}

	if appLayer := packet.ApplicationLayer(); appLayer != nil {
		features[PayloadSize] = float64(len(appLayer.Payload()))
	}

	return dataset.Instance{Values: features, Schema: e.schema}
}

// Reset forgets the previous timestamp.
func (e *FeatureExtractor) Reset() {
	e.lastTimestamp = time.Time{}
}

// encodeTCPFlags packs TCP flags into a categorical code.
func encodeTCPFlags(tcp *layers.TCP) float64 {
	var flags float64
	if tcp.SYN {
		flags += 1
	}
	if tcp.ACK {
		flags += 2
	}
	if tcp.FIN {
		flags += 4
	}
	if tcp.RST {
		flags += 8
	}
	if tcp.PSH {
		flags += 16
	}
	if tcp.URG {
		flags += 32
	}
	return flags
}
