// Command diagserver runs one or more events through internal/producer
// and exposes the resulting occupancy heatmap and firmware-violation
// trend as an interactive go-echarts dashboard (spec §6: diagnostic
// counters, explicitly off the hot path). It optionally also writes
// static gonum/plot PNGs of the same data for archival.
//
// Usage:
//
//	go run ./cmd/diagserver [flags]
//
// Flags:
//
//	-addr      HTTP listen address (default ":8090")
//	-config    Path to a JSON Settings overlay (optional)
//	-bfield    Magnetic field in tesla (default 3.8)
//	-events    Number of synthetic events to run before serving (default 10)
//	-png-dir   If set, also write occupancy/trend PNGs to this directory
package main

import (
	"flag"
	"log"
	"net/http"
	"path/filepath"

	"github.com/jkastelic/tmtracktrigger/internal/config"
	"github.com/jkastelic/tmtracktrigger/internal/diag"
	"github.com/jkastelic/tmtracktrigger/internal/producer"
	"github.com/jkastelic/tmtracktrigger/internal/testutil"
	"github.com/jkastelic/tmtracktrigger/internal/track"
)

func main() {
	addr := flag.String("addr", ":8090", "HTTP listen address")
	configPath := flag.String("config", "", "Path to a JSON Settings overlay")
	bField := flag.Float64("bfield", 3.8, "Magnetic field in tesla")
	numEvents := flag.Int("events", 10, "Number of synthetic events to run before serving")
	pngDir := flag.String("png-dir", "", "If set, also write occupancy/trend PNGs to this directory")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("diagserver: %v", err)
	}
	if err := cfg.SetMagneticField(*bField); err != nil {
		log.Fatalf("diagserver: %v", err)
	}

	p := producer.New(cfg)

	var lastFitted []*track.FittedTrack
	trend := &diag.FirmwareTrendData{}

	// Drive a handful of synthetic events so the dashboard has something
	// to show on first load; cmd/tmtrack is the path for real replay.
	phiCentres := []float64{-0.3, -0.1, 0.1, 0.3}
	for i := 0; i < *numEvents; i++ {
		phi := phiCentres[i%len(phiCentres)]
		result := p.ProcessEvent(testutil.StraightStubs(phi, 0.5))
		lastFitted = result.FittedTracks
		trend.Sample(i, result.Counters)
	}

	heatmap := diag.PrepareOccupancyHeatmap(p.Grid(), lastFitted)

	if *pngDir != "" {
		if err := diag.SaveOccupancyHeatmapPNG(heatmap, filepath.Join(*pngDir, "occupancy.png")); err != nil {
			log.Fatalf("diagserver: %v", err)
		}
		if err := diag.SaveFirmwareTrendPNG(trend, filepath.Join(*pngDir, "firmware-trend.png")); err != nil {
			log.Fatalf("diagserver: %v", err)
		}
		log.Printf("diagserver: wrote PNGs to %s", *pngDir)
	}

	dash := diag.NewDashboard(
		func() *diag.OccupancyHeatmapData { return heatmap },
		func() *diag.FirmwareTrendData { return trend },
	)

	log.Printf("diagserver: serving dashboard on %s (/occupancy, /firmware-trend)", *addr)
	if err := http.ListenAndServe(*addr, dash.Handler()); err != nil {
		log.Fatalf("diagserver: %v", err)
	}
}

func loadConfig(path string) (*config.Settings, error) {
	if path == "" {
		return config.NewDefaultSettings(), nil
	}
	return config.LoadSettings(path)
}
