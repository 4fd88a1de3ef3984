//go:build pcap
// +build pcap

package ingest

import (
	"context"
	"fmt"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcap"

	"github.com/jkastelic/tmtracktrigger/internal/monitoring"
	"github.com/jkastelic/tmtracktrigger/internal/stub"
)

// EventHandler receives one decoded bunch-crossing's stub vector at a
// time, mirroring the per-frame callback shape of the teacher's
// FrameBuilder interface in internal/lidar/network.
type EventHandler func(stubs []*stub.Stub) error

// ReadPCAPFile replays a captured front-end stub stream from a PCAP
// file, one UDP datagram per bunch crossing, calling handler for each
// decoded event. Only available when built with -tags=pcap (requires
// libpcap); see pcap_stub.go for the default stub.
func ReadPCAPFile(ctx context.Context, pcapFile string, udpPort int, handler EventHandler) error {
	handle, err := pcap.OpenOffline(pcapFile)
	if err != nil {
		return fmt.Errorf("ingest: open pcap file %s: %w", pcapFile, err)
	}
	defer handle.Close()

	filterStr := fmt.Sprintf("udp port %d", udpPort)
	if err := handle.SetBPFFilter(filterStr); err != nil {
		return fmt.Errorf("ingest: set BPF filter %q: %w", filterStr, err)
	}
	monitoring.Info("ingest", "replaying %s with filter %q", pcapFile, filterStr)

	packetSource := gopacket.NewPacketSource(handle, handle.LinkType())
	eventIndex := 0
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case packet, ok := <-packetSource.Packets():
			if !ok || packet == nil {
				monitoring.Info("ingest", "replay of %s complete, %d events decoded", pcapFile, eventIndex)
				return nil
			}
			udpLayer := packet.Layer(layers.LayerTypeUDP)
			if udpLayer == nil {
				continue
			}
			udp, ok := udpLayer.(*layers.UDP)
			if !ok || len(udp.Payload) == 0 {
				continue
			}
			stubs, err := DecodeStubStream(udp.Payload)
			if err != nil {
				return fmt.Errorf("ingest: decode event %d: %w", eventIndex, err)
			}
			if err := handler(stubs); err != nil {
				return fmt.Errorf("ingest: handler rejected event %d: %w", eventIndex, err)
			}
			eventIndex++
		}
	}
}
