package diag

import (
	"fmt"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
)

// SaveOccupancyHeatmapPNG renders the occupancy heatmap as a static PNG
// using gonum/plot (spec SF.2 wiring: "diagnostic-only plotting,
// explicitly off the hot path"). Cells are drawn as a grid of scaled
// points since gonum/plot has no first-class heatmap plotter; this
// mirrors the scatter-based rendering the teacher's polar/cluster charts
// use for similarly irregular point data.
func SaveOccupancyHeatmapPNG(data *OccupancyHeatmapData, path string) error {
	p := plot.New()
	p.Title.Text = "HT occupancy by sector"
	p.X.Label.Text = "phi sector"
	p.Y.Label.Text = "eta region"

	pts := make(plotter.XYZs, len(data.Cells))
	for i, c := range data.Cells {
		pts[i] = plotter.XYZ{X: float64(c.IPhi), Y: float64(c.IEta), Z: c.Value}
	}

	bubbles, err := newWeightedScatter(pts, data.MaxValue)
	if err != nil {
		return fmt.Errorf("diag: build occupancy scatter: %w", err)
	}
	p.Add(bubbles)

	if err := p.Save(8*vg.Inch, 6*vg.Inch, path); err != nil {
		return fmt.Errorf("diag: save occupancy heatmap to %s: %w", path, err)
	}
	return nil
}

// newWeightedScatter builds a scatter plotter whose point radii scale
// with each cell's value, giving a heatmap-like visual without a
// dedicated heatmap plotter type.
func newWeightedScatter(pts plotter.XYZs, maxValue float64) (*plotter.Scatter, error) {
	s, err := plotter.NewScatter(pts)
	if err != nil {
		return nil, err
	}
	s.GlyphStyleFunc = func(i int) draw.GlyphStyle {
		style := plotter.DefaultGlyphStyle
		if maxValue > 0 {
			scale := pts[i].Z / maxValue
			style.Radius = vg.Points(1 + 6*scale)
		}
		return style
	}
	return s, nil
}

// SaveFirmwareTrendPNG renders the firmware-violation-fraction trend
// plot across a job's events.
func SaveFirmwareTrendPNG(data *FirmwareTrendData, path string) error {
	p := plot.New()
	p.Title.Text = "Firmware fill-rule violation fractions"
	p.X.Label.Text = "event index"
	p.Y.Label.Text = "violation fraction"

	rphiA := make(plotter.XYs, len(data.Points))
	rzA := make(plotter.XYs, len(data.Points))
	for i, pt := range data.Points {
		rphiA[i] = plotter.XY{X: float64(pt.EventIndex), Y: pt.RphiViolationA}
		rzA[i] = plotter.XY{X: float64(pt.EventIndex), Y: pt.RzViolationA}
	}

	lineRphi, err := plotter.NewLine(rphiA)
	if err != nil {
		return fmt.Errorf("diag: build rphi trend line: %w", err)
	}
	lineRz, err := plotter.NewLine(rzA)
	if err != nil {
		return fmt.Errorf("diag: build rz trend line: %w", err)
	}
	lineRz.Dashes = []vg.Length{vg.Points(4), vg.Points(2)}

	p.Add(lineRphi, lineRz)
	p.Legend.Add("r-phi violation A", lineRphi)
	p.Legend.Add("r-z violation A", lineRz)

	if err := p.Save(8*vg.Inch, 6*vg.Inch, path); err != nil {
		return fmt.Errorf("diag: save firmware trend to %s: %w", path, err)
	}
	return nil
}
