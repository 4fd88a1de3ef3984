// Package diag owns the off-hot-path diagnostics spec §6 asks for
// ("Diagnostic counters: firmware-violation fractions ... maximum
// line-gradient observed; duplicate-stub counter") plus the per-sector
// track-yield view spec §4.8 implies; there is no busy-sector-throttle
// view. It is
// never imported by internal/producer; callers (cmd/diagserver) wire the
// two together explicitly, matching the teacher's internal/lidar/monitor
// split between data preparation and rendering.
package diag

import (
	"github.com/jkastelic/tmtracktrigger/internal/monitoring"
	"github.com/jkastelic/tmtracktrigger/internal/sector"
	"github.com/jkastelic/tmtracktrigger/internal/track"
)

// HeatmapCell is one (sector, metric) point in an occupancy heatmap.
type HeatmapCell struct {
	IPhi, IEta int
	Value      float64
}

// OccupancyHeatmapData holds the prepared per-sector track-yield grid,
// decoupled from rendering exactly as the teacher's chart_data.go
// decouples data prep from echarts_handlers.go.
type OccupancyHeatmapData struct {
	Cells    []HeatmapCell
	NumPhi   int
	NumEta   int
	MaxValue float64
}

// PrepareOccupancyHeatmap counts fitted tracks per sector from a flat
// result list plus the grid's shape, for the HT occupancy heatmap (spec
// §6: diagnostic, explicitly off the hot path).
func PrepareOccupancyHeatmap(grid [][]*sector.Sector, fitted []*track.FittedTrack) *OccupancyHeatmapData {
	counts := map[[2]int]int{}
	for _, t := range fitted {
		counts[[2]int{t.IPhiSec, t.IEtaReg}]++
	}

	numPhi := len(grid)
	numEta := 0
	if numPhi > 0 {
		numEta = len(grid[0])
	}

	data := &OccupancyHeatmapData{NumPhi: numPhi, NumEta: numEta}
	for iPhi := 0; iPhi < numPhi; iPhi++ {
		for iEta := 0; iEta < numEta; iEta++ {
			v := float64(counts[[2]int{iPhi, iEta}])
			if v > data.MaxValue {
				data.MaxValue = v
			}
			data.Cells = append(data.Cells, HeatmapCell{IPhi: iPhi, IEta: iEta, Value: v})
		}
	}
	return data
}

// FirmwareTrendPoint is one job-progress sample of the firmware
// violation fractions (spec §6 diagnostic counters).
type FirmwareTrendPoint struct {
	EventIndex              int
	RphiViolationA, RphiViolationB float64
	RzViolationA, RzViolationB     float64
}

// FirmwareTrendData accumulates FirmwareTrendPoint samples across a job
// for the violation-fraction trend plot.
type FirmwareTrendData struct {
	Points []FirmwareTrendPoint
}

// Sample appends one trend point computed from counters at the current
// event index.
func (t *FirmwareTrendData) Sample(eventIndex int, counters *monitoring.FirmwareCounters) {
	ra, rb := counters.RphiViolationFractions()
	za, zb := counters.RzViolationFractions()
	t.Points = append(t.Points, FirmwareTrendPoint{
		EventIndex:     eventIndex,
		RphiViolationA: ra, RphiViolationB: rb,
		RzViolationA: za, RzViolationB: zb,
	})
}
