package pcap

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hed1ad/brminer/pkg/io/packet"
)

// writeCapture writes n UDP packets, 10ms apart, to a new pcap file.
func writeCapture(t *testing.T, n int) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "capture.pcap")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	w := pcapgo.NewWriter(f)
	require.NoError(t, w.WriteFileHeader(65536, layers.LinkTypeEthernet))

	start := time.Unix(1700000000, 0)
	for i := range n {
		buf := gopacket.NewSerializeBuffer()
		udp := &layers.UDP{SrcPort: 40000, DstPort: layers.UDPPort(9000 + i)}
		ip := &layers.IPv4{
			Version:  4,
			TTL:      64,
			SrcIP:    net.IP{10, 0, 0, 1},
			DstIP:    net.IP{10, 0, 0, 2},
			Protocol: layers.IPProtocolUDP,
		}
		require.NoError(t, udp.SetNetworkLayerForChecksum(ip))
		require.NoError(t, gopacket.SerializeLayers(buf,
			gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true},
			&layers.Ethernet{
				SrcMAC:       net.HardwareAddr{0, 1, 2, 3, 4, 5},
				DstMAC:       net.HardwareAddr{6, 7, 8, 9, 10, 11},
				EthernetType: layers.EthernetTypeIPv4,
			},
			ip, udp, gopacket.Payload(make([]byte, 10+i)),
		))

		data := buf.Bytes()
		ci := gopacket.CaptureInfo{
			Timestamp:     start.Add(time.Duration(i) * 10 * time.Millisecond),
			CaptureLength: len(data),
			Length:        len(data),
		}
		require.NoError(t, w.WritePacket(ci, data))
	}
	return path
}

func TestFileReaderRead(t *testing.T) {
	r, err := NewFileReader(writeCapture(t, 5))
	require.NoError(t, err)
	defer r.Close()

	data, err := r.Read()
	require.NoError(t, err)
	require.Len(t, data, 5)

	assert.Equal(t, packet.NewSchema().Len(), r.Schema().Len())
	for i, in := range data {
		assert.Same(t, r.Schema(), in.Schema)
		assert.Equal(t, float64(packet.ProtoUDP), in.Values[packet.Protocol])
		assert.Equal(t, float64(9000+i), in.Values[packet.DstPort])
		assert.Equal(t, float64(10+i), in.Values[packet.PayloadSize])
	}
	assert.InDelta(t, 0.01, data[1].Values[packet.InterArrival], 1e-6)
}

func TestFileReaderFilter(t *testing.T) {
	r, err := NewFileReader(writeCapture(t, 5))
	require.NoError(t, err)
	defer r.Close()

	require.NoError(t, r.SetFilter("udp dst port 9002"))

	data, err := r.Read()
	require.NoError(t, err)
	require.Len(t, data, 1)
	assert.Equal(t, 9002.0, data[0].Values[packet.DstPort])
}

func TestFileReaderStream(t *testing.T) {
	r, err := NewFileReader(writeCapture(t, 3))
	require.NoError(t, err)
	defer r.Close()

	ch, err := r.Stream(context.Background())
	require.NoError(t, err)

	count := 0
	for range ch {
		count++
	}
	assert.Equal(t, 3, count)
}

func TestNewFileReaderMissing(t *testing.T) {
	_, err := NewFileReader(filepath.Join(t.TempDir(), "missing.pcap"))
	assert.Error(t, err)
}
