package diag

import (
	"net/http"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
)

// Dashboard serves the interactive per-sector track-yield heatmap and
// the firmware-violation trend that spec SF.2 wires go-echarts into,
// complementing gonum/plot's static PNGs (spec SF.2: "diagnostic-only,
// complements gonum/plot's static PNGs"). It has no busy-sector-throttle
// view.
type Dashboard struct {
	heatmap func() *OccupancyHeatmapData
	trend   func() *FirmwareTrendData
}

// NewDashboard builds a Dashboard that calls back into the caller for
// fresh data on every request, mirroring the teacher's
// handleBackgroundGridPolar pattern of pulling live state per request
// rather than snapshotting at construction time.
func NewDashboard(heatmap func() *OccupancyHeatmapData, trend func() *FirmwareTrendData) *Dashboard {
	return &Dashboard{heatmap: heatmap, trend: trend}
}

// Handler returns an http.Handler serving the occupancy heatmap at
// "/occupancy" and the firmware trend chart at "/firmware-trend".
func (d *Dashboard) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/occupancy", d.handleOccupancy)
	mux.HandleFunc("/firmware-trend", d.handleFirmwareTrend)
	return mux
}

func (d *Dashboard) handleOccupancy(w http.ResponseWriter, r *http.Request) {
	data := d.heatmap()

	hm := charts.NewHeatMap()
	etaLabels := make([]string, data.NumEta)
	for i := range etaLabels {
		etaLabels[i] = strconv.Itoa(i)
	}
	hm.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{Title: "HT occupancy by sector"}),
		charts.WithXAxisOpts(opts.XAxis{Name: "phi sector", Type: "category"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "eta region", Type: "category", Data: etaLabels}),
		charts.WithVisualMapOpts(opts.VisualMap{Max: float32(data.MaxValue), Calculable: opts.Bool(true)}),
	)

	phiLabels := make([]string, data.NumPhi)
	for i := range phiLabels {
		phiLabels[i] = strconv.Itoa(i)
	}
	hm.SetXAxis(phiLabels)

	points := make([]opts.HeatMapData, 0, len(data.Cells))
	for _, c := range data.Cells {
		points = append(points, opts.HeatMapData{Value: [3]interface{}{c.IPhi, c.IEta, c.Value}})
	}
	hm.AddSeries("track yield", points)

	hm.Render(w)
}

func (d *Dashboard) handleFirmwareTrend(w http.ResponseWriter, r *http.Request) {
	data := d.trend()

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{Title: "Firmware fill-rule violation fractions"}),
		charts.WithXAxisOpts(opts.XAxis{Name: "event index"}),
	)

	xs := make([]string, len(data.Points))
	rphiA := make([]opts.LineData, len(data.Points))
	rzA := make([]opts.LineData, len(data.Points))
	for i, pt := range data.Points {
		xs[i] = strconv.Itoa(pt.EventIndex)
		rphiA[i] = opts.LineData{Value: pt.RphiViolationA}
		rzA[i] = opts.LineData{Value: pt.RzViolationA}
	}
	line.SetXAxis(xs).
		AddSeries("r-phi violation A", rphiA).
		AddSeries("r-z violation A", rzA)

	line.Render(w)
}

