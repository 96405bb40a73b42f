// Package pcap reads packets from PCAP files or live interfaces as instances.
package pcap

import (
	"context"
	"errors"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/pcap"

	"github.com/hed1ad/brminer/pkg/dataset"
	detio "github.com/hed1ad/brminer/pkg/io"
	"github.com/hed1ad/brminer/pkg/io/packet"
)

var _ detio.Reader = (*Reader)(nil)

// Reader reads packets from PCAP files or live interfaces.
type Reader struct {
	handle    *pcap.Handle
	extractor *packet.FeatureExtractor
	isLive    bool
}

// NewFileReader creates a reader for PCAP files.
func NewFileReader(filename string) (*Reader, error) {
	handle, err := pcap.OpenOffline(filename)
	if err != nil {
		return nil, err
	}

	return &Reader{
		handle:    handle,
		extractor: packet.NewFeatureExtractor(),
		isLive:    false,
	}, nil
}

// NewLiveReader creates a reader for live packet capture.
func NewLiveReader(iface string, snaplen int32, promisc bool, timeout time.Duration) (*Reader, error) {
	handle, err := pcap.OpenLive(iface, snaplen, promisc, timeout)
	if err != nil {
		return nil, err
	}

	return &Reader{
		handle:    handle,
		extractor: packet.NewFeatureExtractor(),
		isLive:    true,
	}, nil
}

// SetFilter applies a BPF filter expression.
func (r *Reader) SetFilter(expr string) error {
	if r.handle == nil {
		return errors.New("reader not initialized")
	}
	return r.handle.SetBPFFilter(expr)
}

// Schema returns the packet schema.
func (r *Reader) Schema() *dataset.Schema {
	return r.extractor.Schema()
}

// Read returns all packets as instances. Live readers block until the
// capture ends, so use Stream for them.
func (r *Reader) Read() ([]dataset.Instance, error) {
	if r.handle == nil {
		return nil, errors.New("reader not initialized")
	}
	if r.isLive {
		return nil, errors.New("read: live capture has no end, use Stream")
	}

	var data []dataset.Instance
	packetSource := gopacket.NewPacketSource(r.handle, r.handle.LinkType())

	for p := range packetSource.Packets() {
		data = append(data, r.extractor.ExtractPacket(p))
	}

	return data, nil
}

// Stream returns a channel of instances for real-time processing.
func (r *Reader) Stream(ctx context.Context) (<-chan dataset.Instance, error) {
	if r.handle == nil {
		return nil, errors.New("reader not initialized")
	}

	out := make(chan dataset.Instance, 1000)
	packetSource := gopacket.NewPacketSource(r.handle, r.handle.LinkType())

	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case p, ok := <-packetSource.Packets():
				if !ok {
					return
				}
				select {
				case out <- r.extractor.ExtractPacket(p):
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}

// Close releases resources.
func (r *Reader) Close() error {
	if r.handle != nil {
		r.handle.Close()
	}
	return nil
}
