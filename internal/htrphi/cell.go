// Package htrphi owns Layer 3 (HT r-phi) of the track-trigger core: the
// HTcell accumulator and the 2-D (q/p_T, phi_T) Hough-transform array
// that fills it (spec §4.2, components D/E).
//
// Dependency rule: L3 may depend on L1 (internal/stub), L2
// (internal/sector), internal/track and internal/config, never on L4+.
package htrphi

import (
	"github.com/jkastelic/tmtracktrigger/internal/config"
	"github.com/jkastelic/tmtracktrigger/internal/stub"
)

// Cell is a single r-phi HT accumulator (spec §3 "HT cell"). It holds
// the raw stub list in insertion order, the filtered list surviving the
// bend and max-count filters, and filtered-layer counts overall and per
// eta sub-sector.
type Cell struct {
	IQoverPt int
	IPhiT    int

	Raw      []*stub.Stub
	Filtered []*stub.Stub

	// subSecMask[i] is the compatible-eta-sub-sector mask for Raw[i]
	// (spec §3: "a per-stub map of compatible eta sub-sectors").
	subSecMask [][]bool

	FilteredLayerCount       int
	FilteredLayerCountBySub  []int // best-to-worst is taken as the max
}

// Add stores s in this cell along with its eta sub-sector compatibility
// mask (possibly nil if sub-sectors are disabled).
func (c *Cell) Add(s *stub.Stub, subSecs []bool) {
	c.Raw = append(c.Raw, s)
	c.subSecMask = append(c.subSecMask, subSecs)
}

// The owning Array passes each cell's q/p_T bin range to Filter; Cell
// itself stays geometry-agnostic so it can be unit tested without an
// Array.

// Filter applies the bend filter and the max-stubs-per-cell filter (spec
// §4.2 "Cell-level filter"), then recomputes filtered-layer counts. It
// must be called exactly once, after all stubs for the event have been
// stored via Add.
//
// qOverPtLo/Hi is this cell's q/p_T bin range (daisy-chain variant);
// predictedDeltaPhi/sigma is used by the systolic variant when
// cfg.BendFilterSigmaDphi-style cut is selected by useSigmaVariant.
func (c *Cell) Filter(cfg *config.Settings, invPtToDphi, qOverPtLo, qOverPtHi float64, useSigmaVariant bool) {
	if !cfg.BendFilterEnabled {
		c.Filtered = append([]*stub.Stub(nil), c.Raw...)
	} else {
		c.Filtered = c.Filtered[:0]
		for _, s := range c.Raw {
			qpt := s.QOverPtFromBend(invPtToDphi)
			if useSigmaVariant {
				predicted := (qOverPtLo + qOverPtHi) / 2
				if absf(qpt-predicted)*invPtToDphi < cfg.BendFilterSigmaDphi {
					c.Filtered = append(c.Filtered, s)
				}
			} else {
				if qpt >= qOverPtLo && qpt <= qOverPtHi {
					c.Filtered = append(c.Filtered, s)
				}
			}
		}
	}

	// Max-stubs filter: drop the oldest, mirroring hardware FIFO
	// truncation (spec §4.2 step 2).
	if cfg.MaxStubsPerCell > 0 && len(c.Filtered) > cfg.MaxStubsPerCell {
		start := len(c.Filtered) - cfg.MaxStubsPerCell
		c.Filtered = c.Filtered[start:]
	}

	c.recomputeLayerCounts(cfg)
}

func (c *Cell) recomputeLayerCounts(cfg *config.Settings) {
	seen := map[int]bool{}
	for _, s := range c.Filtered {
		seen[layerKey(s, cfg)] = true
	}
	c.FilteredLayerCount = len(seen)

	if cfg.NumEtaSubSecs <= 0 {
		c.FilteredLayerCountBySub = nil
		return
	}
	perSub := make([]map[int]bool, cfg.NumEtaSubSecs)
	for i := range perSub {
		perSub[i] = map[int]bool{}
	}
	for i, s := range c.Filtered {
		mask := c.maskFor(s, i)
		for sub := 0; sub < cfg.NumEtaSubSecs; sub++ {
			if mask == nil || (sub < len(mask) && mask[sub]) {
				perSub[sub][layerKey(s, cfg)] = true
			}
		}
	}
	c.FilteredLayerCountBySub = make([]int, cfg.NumEtaSubSecs)
	for i, m := range perSub {
		c.FilteredLayerCountBySub[i] = len(m)
	}
}

// maskFor looks up the sub-sector mask recorded for s at its position in
// Raw (Filtered is a subset of Raw so a linear scan by pointer identity
// is used — cell occupancy is small, bounded by MaxStubsPerCell).
func (c *Cell) maskFor(s *stub.Stub, _ int) []bool {
	for i, r := range c.Raw {
		if r == s {
			return c.subSecMask[i]
		}
	}
	return nil
}

func layerKey(s *stub.Stub, cfg *config.Settings) int {
	if cfg.ReducedLayerID {
		return s.ReducedLayerID()
	}
	return s.LayerID
}

// BestSubSectorLayerCount returns the maximum filtered-layer count across
// eta sub-sectors (spec §3 invariant: "sub-sector best count <= overall
// filtered count, with equality when sub-sectors are disabled").
func (c *Cell) BestSubSectorLayerCount() int {
	if len(c.FilteredLayerCountBySub) == 0 {
		return c.FilteredLayerCount
	}
	best := 0
	for _, n := range c.FilteredLayerCountBySub {
		if n > best {
			best = n
		}
	}
	return best
}

func absf(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}
