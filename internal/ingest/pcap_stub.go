//go:build !pcap
// +build !pcap

package ingest

import (
	"context"
	"fmt"

	"github.com/jkastelic/tmtracktrigger/internal/stub"
)

// EventHandler receives one decoded bunch-crossing's stub vector at a
// time.
type EventHandler func(stubs []*stub.Stub) error

// ReadPCAPFile is a stub implementation used when PCAP support is
// disabled (the default build). Rebuild with -tags=pcap (and libpcap
// installed) to enable PCAP-file replay.
func ReadPCAPFile(ctx context.Context, pcapFile string, udpPort int, handler EventHandler) error {
	return fmt.Errorf("ingest: PCAP support not enabled: rebuild with -tags=pcap to replay %s", pcapFile)
}
