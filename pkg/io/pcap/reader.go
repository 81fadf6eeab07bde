// Package pcap turns packet captures into univariate series, one observation
// of a chosen per-packet metric for every packet.
package pcap

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcap"

	tsio "github.com/hed1ad/tsanomaly/pkg/io"
)

var _ tsio.Reader = (*Reader)(nil)

// Metric selects what a packet contributes to the series.
type Metric string

// Supported metrics.
const (
	PacketSize   Metric = "packet_size"
	InterArrival Metric = "inter_arrival"
	PayloadSize  Metric = "payload_size"
	IPTTL        Metric = "ip_ttl"
)

// ErrUnknownMetric is returned for an unsupported metric name.
var ErrUnknownMetric = errors.New("unknown packet metric")

// ParseMetric validates a metric name.
func ParseMetric(name string) (Metric, error) {
	switch m := Metric(name); m {
	case PacketSize, InterArrival, PayloadSize, IPTTL:
		return m, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownMetric, name)
	}
}

// Reader reads packets from PCAP files or live interfaces.
type Reader struct {
	handle    *pcap.Handle
	extractor *Extractor
	isLive    bool
}

// NewFileReader creates a reader for PCAP files.
func NewFileReader(filename string, metric Metric) (*Reader, error) {
	handle, err := pcap.OpenOffline(filename)
	if err != nil {
		return nil, err
	}

	return &Reader{
		handle:    handle,
		extractor: NewExtractor(metric),
		isLive:    false,
	}, nil
}

// NewLiveReader creates a reader for live packet capture.
func NewLiveReader(iface string, metric Metric, snaplen int32, promisc bool, timeout time.Duration) (*Reader, error) {
	handle, err := pcap.OpenLive(iface, snaplen, promisc, timeout)
	if err != nil {
		return nil, err
	}

	return &Reader{
		handle:    handle,
		extractor: NewExtractor(metric),
		isLive:    true,
	}, nil
}

// Read returns the metric of every packet in capture order. It blocks until
// the capture ends, so it is only useful for files.
func (r *Reader) Read() ([]float64, error) {
	if r.handle == nil {
		return nil, errors.New("reader not initialized")
	}
	if r.isLive {
		return nil, errors.New("read on live capture never ends; use Stream")
	}

	var series []float64
	packetSource := gopacket.NewPacketSource(r.handle, r.handle.LinkType())

	for packet := range packetSource.Packets() {
		if v, ok := r.extractor.Extract(packet); ok {
			series = append(series, v)
		}
	}

	return series, nil
}

// Stream returns a channel of metric values for real-time processing.
func (r *Reader) Stream(ctx context.Context) (<-chan float64, error) {
	if r.handle == nil {
		return nil, errors.New("reader not initialized")
	}

	out := make(chan float64, 1000)
	packetSource := gopacket.NewPacketSource(r.handle, r.handle.LinkType())

	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case packet, ok := <-packetSource.Packets():
				if !ok {
					return
				}
				v, ok := r.extractor.Extract(packet)
				if !ok {
					continue
				}
				select {
				case out <- v:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}

// Err always returns nil; undecodable packets are skipped.
func (r *Reader) Err() error {
	return nil
}

// Close releases resources.
func (r *Reader) Close() error {
	if r.handle != nil {
		r.handle.Close()
	}
	return nil
}

// Extractor maps packets to one metric value.
type Extractor struct {
	metric        Metric
	lastTimestamp time.Time
}

// NewExtractor creates a new packet metric extractor.
func NewExtractor(metric Metric) *Extractor {
	return &Extractor{metric: metric}
}

// Extract converts a packet to a metric value. It reports false when the
// packet does not carry the metric, e.g. the first packet for inter-arrival
// time or a non-IPv4 packet for TTL.
func (e *Extractor) Extract(packet gopacket.Packet) (float64, bool) {
	switch e.metric {
	case PacketSize:
		return float64(len(packet.Data())), true

	case InterArrival:
		metadata := packet.Metadata()
		if metadata == nil || metadata.Timestamp.IsZero() {
			return 0, false
		}
		last := e.lastTimestamp
		e.lastTimestamp = metadata.Timestamp
		if last.IsZero() {
			return 0, false
		}
		return metadata.Timestamp.Sub(last).Seconds(), true

	case PayloadSize:
		if appLayer := packet.ApplicationLayer(); appLayer != nil {
			return float64(len(appLayer.Payload())), true
		}
		return 0, true

	case IPTTL:
		if ipLayer := packet.Layer(layers.LayerTypeIPv4); ipLayer != nil {
			ip := ipLayer.(*layers.IPv4)
			return float64(ip.TTL), true
		}
		return 0, false
	}

	return 0, false
}
