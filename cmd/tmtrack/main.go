// Command tmtrack is the thin CLI driver wiring internal/config through
// internal/producer to an output report (spec §4 component K,
// TMTrackProducer).
//
// Usage:
//
//	go run ./cmd/tmtrack [flags]
//
// Flags:
//
//	-config    Path to a JSON Settings overlay (optional; defaults used otherwise)
//	-bfield    Magnetic field in tesla, set on the config once at start-up (default 3.8)
//	-synthetic Run one built-in synthetic straight-track event instead of replaying a capture
//	-pcap      Path to a .pcap capture of recorded front-end stub frames (requires -tags=pcap)
//	-udp-port  UDP port the stub stream was captured on (default 6000)
//	-hwmirror  Path to a sqlite hardware-mirror database to archive fitted tracks into
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"

	"github.com/jkastelic/tmtracktrigger/internal/config"
	"github.com/jkastelic/tmtracktrigger/internal/hwmirror"
	"github.com/jkastelic/tmtracktrigger/internal/ingest"
	"github.com/jkastelic/tmtracktrigger/internal/producer"
	"github.com/jkastelic/tmtracktrigger/internal/stub"
	"github.com/jkastelic/tmtracktrigger/internal/testutil"
)

func main() {
	configPath := flag.String("config", "", "Path to a JSON Settings overlay")
	bField := flag.Float64("bfield", 3.8, "Magnetic field in tesla")
	synthetic := flag.Bool("synthetic", false, "Run one built-in synthetic straight-track event")
	pcapFile := flag.String("pcap", "", "Path to a .pcap capture of recorded front-end stubs")
	udpPort := flag.Int("udp-port", 6000, "UDP port the stub stream was captured on")
	hwmirrorPath := flag.String("hwmirror", "", "Path to a sqlite hardware-mirror database")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("tmtrack: %v", err)
	}
	if err := cfg.SetMagneticField(*bField); err != nil {
		log.Fatalf("tmtrack: %v", err)
	}

	p := producer.New(cfg)

	var mirror *hwmirror.Store
	if *hwmirrorPath != "" {
		mirror, err = hwmirror.Open(*hwmirrorPath)
		if err != nil {
			log.Fatalf("tmtrack: open hwmirror store: %v", err)
		}
		defer mirror.Close()
	}

	process := func(stubs []*stub.Stub) error {
		result := p.ProcessEvent(stubs)
		log.Printf("tmtrack: event produced %d fitted tracks (duplicate-stub count so far: %d)",
			len(result.FittedTracks), result.Counters.DuplicateStubCount())
		if mirror != nil {
			if err := mirror.RecordFittedTracks(uuid.NewString(), result.FittedTracks); err != nil {
				return fmt.Errorf("archive event: %w", err)
			}
		}
		return nil
	}

	switch {
	case *synthetic:
		if err := process(testutil.StraightStubs(0.1, 0.5)); err != nil {
			log.Fatalf("tmtrack: %v", err)
		}
	case *pcapFile != "":
		ctx, cancel := signalContext()
		defer cancel()
		if err := ingest.ReadPCAPFile(ctx, *pcapFile, *udpPort, process); err != nil {
			log.Fatalf("tmtrack: replay %s: %v", *pcapFile, err)
		}
	default:
		log.Fatal("tmtrack: one of -synthetic or -pcap must be given")
	}
}

func loadConfig(path string) (*config.Settings, error) {
	if path == "" {
		return config.NewDefaultSettings(), nil
	}
	return config.LoadSettings(path)
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()
	return ctx, cancel
}
