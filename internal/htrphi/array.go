package htrphi

import (
	"math"
	"sort"

	"github.com/jkastelic/tmtracktrigger/internal/config"
	"github.com/jkastelic/tmtracktrigger/internal/monitoring"
	"github.com/jkastelic/tmtracktrigger/internal/sector"
	"github.com/jkastelic/tmtracktrigger/internal/stub"
	"github.com/jkastelic/tmtracktrigger/internal/track"
)

// Array is the 2-D (q/p_T, phi_T) accumulator of spec §4.2 ("HTrphi").
// Axes are centred on the owning sector's phi centre; bin sizes follow
// from the configured (N_qpT, N_phiT) counts. The realised maximum
// |gradient| of a stub's line across the array is recorded in the
// firmware counters; it is not forced to 1.0 (spec §3 "HT array").
type Array struct {
	sec *sector.Sector
	cfg *config.Settings

	numQoverPt int
	numPhiT    int
	binQoverPt float64
	binPhiT    float64
	maxInvPt   float64

	cells     [][]*Cell // [iQoverPt][iPhiT]
	counters  *monitoring.FirmwareCounters
	killSkip  float64 // fraction of nominally-crossed cells to drop
}

// NewArray constructs an empty HT array for one sector.
func NewArray(sec *sector.Sector, cfg *config.Settings, counters *monitoring.FirmwareCounters) *Array {
	a := &Array{
		sec: sec, cfg: cfg,
		numQoverPt: cfg.NumBinsQoverPt,
		numPhiT:    cfg.NumBinsPhiT,
		maxInvPt:   cfg.MaxInvPt(),
		counters:   counters,
		killSkip:   cfg.KillCellsFraction,
	}
	a.binQoverPt = (2 * a.maxInvPt) / float64(a.numQoverPt)
	a.binPhiT = sec.PhiHalfWidth * 2 / float64(a.numPhiT)

	// The firmware diagonal-fill constraint holds when the maximum
	// |gradient| (the slope of a stub's allowed line across the array,
	// in phi_T bins per q/p_T bin) is exactly 1.0. We report the
	// realised maximum as a diagnostic rather than re-deriving bin
	// counts from it, since Settings already pins (N_qpT, N_phiT)
	// directly (spec §4.2: "Bin sizes are either configured or computed
	// ... equal to 1.0").
	maxLeverArm := math.Max(math.Abs(sec.RefRadiusPhi), 120.0-sec.RefRadiusPhi)
	gradient := a.binQoverPt * maxLeverArm * cfg.InvPtToDphi / a.binPhiT
	if counters != nil {
		counters.RecordGradient(gradient)
	}

	a.cells = make([][]*Cell, a.numQoverPt)
	for i := range a.cells {
		a.cells[i] = make([]*Cell, a.numPhiT)
		for j := range a.cells[i] {
			a.cells[i][j] = &Cell{IQoverPt: i, IPhiT: j}
		}
	}
	return a
}

func (a *Array) qOverPtBinCentre(i int) float64 {
	return -a.maxInvPt + (float64(i)+0.5)*a.binQoverPt
}

func (a *Array) phiTBinCentre(j int) float64 {
	return a.sec.PhiCentre - a.sec.PhiHalfWidth + (float64(j)+0.5)*a.binPhiT
}

func (a *Array) phiTToBin(phiT float64) int {
	idx := int(math.Floor((phiT-(a.sec.PhiCentre-a.sec.PhiHalfWidth))/a.binPhiT + 0.5))
	if idx < 0 {
		idx = 0
	}
	if idx >= a.numPhiT {
		idx = a.numPhiT - 1
	}
	return idx
}

// representative maps (i,j) to its 2x2 merge-group representative
// (even,even) cell when low-p_T merging applies (spec §4.2 "Low-pT
// merging": "membership of a cell in a merged group is a pure function
// of its index and the merge threshold").
func (a *Array) representative(i, j int) (int, int) {
	if !a.cfg.Merge2x2Enabled {
		return i, j
	}
	if math.Abs(a.qOverPtBinCentre(i)) <= a.cfg.MergeMinInvPt {
		return i, j
	}
	return i - i%2, j - j%2
}

// Store applies the fill rule of spec §4.2 to one stub: for every q/p_T
// column, compute the compatible phi_T range and store the stub in
// every cell that range touches, subject to low-p_T merging and
// cell-kill.
func (a *Array) Store(s *stub.Stub) {
	visited := map[[2]int]bool{}
	prevJMin, prevJMax := -1, -1

	var subSecs []bool
	if a.cfg.NumEtaSubSecs > 0 {
		subSecs = a.sec.InsideSubSecs(s, a.cfg.StripHandlingEnabled)
	}

	for i := 0; i < a.numQoverPt; i++ {
		c := a.qOverPtBinCentre(i)
		phiTNominal := s.Phi - c*a.cfg.InvPtToDphi*(s.R-a.sec.RefRadiusPhi)

		halfRange := (a.binQoverPt/2)*math.Abs(s.R-a.sec.RefRadiusPhi)*a.cfg.InvPtToDphi
		if !s.Barrel {
			halfRange += a.cfg.InvPtToDphi * math.Abs(c) * s.RErr
		}
		// Sector-centre offset: the nominal phi_T is already expressed
		// relative to the sector's own centre via PhiCentre in
		// phiTToBin, so no further shift is required here.

		jMin := a.phiTToBin(phiTNominal - halfRange)
		jMax := a.phiTToBin(phiTNominal + halfRange)

		violatesB := (jMax - jMin + 1) > 2
		violatesA := prevJMin >= 0 && !chainsWithPrevious(jMin, jMax, prevJMin, prevJMax)
		if a.counters != nil {
			a.counters.RecordRphiFill(violatesA, violatesB)
		}
		prevJMin, prevJMax = jMin, jMax

		for j := jMin; j <= jMax; j++ {
			if a.killSkip > 0 && shouldKillCell(i, j, a.killSkip) {
				continue
			}
			ri, rj := a.representative(i, j)
			key := [2]int{ri, rj}
			if visited[key] {
				if a.counters != nil {
					a.counters.RecordDuplicateStub()
				}
				continue
			}
			visited[key] = true
			a.cells[ri][rj].Add(s, subSecs)
		}
	}
}

// shouldKillCell deterministically drops a configurable fraction of
// nominally-crossed cells to reduce fill rate (spec §4.2 "cell-kill
// option"). The rule is a function of the cell index alone so behaviour
// is reproducible across runs.
func shouldKillCell(i, j int, fraction float64) bool {
	if fraction <= 0 {
		return false
	}
	period := int(math.Round(1.0 / fraction))
	if period <= 0 {
		return false
	}
	return (i*31+j*17)%period == 0
}

// chainsWithPrevious implements firmware constraint (A): the filled
// cells in this column must form an NE/E/SE chain relative to the
// previous column (spec §4.2).
func chainsWithPrevious(jMin, jMax, prevJMin, prevJMax int) bool {
	return jMin >= prevJMin-1 && jMin <= prevJMax+1 && jMax >= prevJMin-1 && jMax <= prevJMax+1
}

// End materialises 2-D track candidates: runs the per-cell bend/max-
// stubs filter, applies the track-candidate predicate, busy-sector
// throttling, and emits candidates in firmware row-emission order (spec
// §4.2 "Row-emission order").
func (a *Array) End() []*track.Track2D {
	useSigma := false // daisy-chain variant is the default bend filter
	for i := 0; i < a.numQoverPt; i++ {
		lo := a.qOverPtBinCentre(i) - a.binQoverPt/2
		hi := a.qOverPtBinCentre(i) + a.binQoverPt/2
		for j := 0; j < a.numPhiT; j++ {
			a.cells[i][j].Filter(a.cfg, a.cfg.InvPtToDphi, lo, hi, useSigma)
		}
	}

	minLayers := a.cfg.MinLayers
	var candidates []*track.Track2D
	for i := 0; i < a.numQoverPt; i++ {
		threshold := minLayers
		if math.Abs(a.qOverPtBinCentre(i)) > 1.0/a.cfg.RelaxedLayerPtThreshold {
			threshold--
		}
		for j := 0; j < a.numPhiT; j++ {
			c := a.cells[i][j]
			if ri, rj := a.representative(i, j); ri != i || rj != j {
				continue // only the representative cell of a merged group emits
			}
			if c.BestSubSectorLayerCount() >= threshold && len(c.Filtered) > 0 {
				candidates = append(candidates, &track.Track2D{
					Stubs:        append([]*stub.Stub(nil), c.Filtered...),
					CellIQoverPt: i,
					CellIPhiT:    j,
					IsRphi:       true,
					QOverPt:      a.qOverPtBinCentre(i),
					Phi0:         a.phiTBinCentre(j),
					IPhiSec:      a.sec.IPhi,
					IEtaReg:      a.sec.IEta,
				})
			}
		}
	}

	sort.SliceStable(candidates, func(x, y int) bool {
		px, py := math.Abs(candidates[x].QOverPt), math.Abs(candidates[y].QOverPt)
		if px != py {
			return px < py // highest p_T (smallest |q/pT|) first
		}
		return candidates[x].QOverPt < candidates[y].QOverPt // negative charge first
	})

	return a.throttleBusySector(candidates)
}

// throttleBusySector drops tracks in order of increasing |q/p_T| until
// the total stub count is within budget (spec §4.2 "Busy-sector
// throttle").
func (a *Array) throttleBusySector(candidates []*track.Track2D) []*track.Track2D {
	if a.cfg.BusySectorMax <= 0 {
		return candidates
	}
	if !a.cfg.BusySectorEachCharge {
		return throttleOne(candidates, a.cfg.BusySectorMax)
	}
	var pos, neg []*track.Track2D
	for _, c := range candidates {
		if c.QOverPt < 0 {
			neg = append(neg, c)
		} else {
			pos = append(pos, c)
		}
	}
	pos = throttleOne(pos, a.cfg.BusySectorMax)
	neg = throttleOne(neg, a.cfg.BusySectorMax)
	kept := make(map[*track.Track2D]bool, len(pos)+len(neg))
	for _, c := range append(neg, pos...) {
		kept[c] = true
	}
	out := make([]*track.Track2D, 0, len(kept))
	for _, c := range candidates {
		if kept[c] {
			out = append(out, c)
		}
	}
	return out
}

// throttleOne assumes candidates are already ordered highest-p_T first
// and drops the lowest-p_T (highest |q/p_T|, i.e. tail) entries first
// until total stubs fit the budget.
func throttleOne(candidates []*track.Track2D, budget int) []*track.Track2D {
	total := 0
	for _, c := range candidates {
		total += len(c.Stubs)
	}
	end := len(candidates)
	for total > budget && end > 0 {
		end--
		total -= len(candidates[end].Stubs)
	}
	return candidates[:end]
}

// CellIndex maps a (q/p_T, phi0) pair back to its nominal HT cell index
// (spec §8 property 3: "helix2Dconventional"), used by the post-fit
// HT-cell-consistency duplicate-removal algorithm (id 50).
func (a *Array) CellIndex(qOverPt, phi0 float64) (int, int) {
	i := int(math.Floor((qOverPt+a.maxInvPt)/a.binQoverPt + 0.5))
	if i < 0 {
		i = 0
	}
	if i >= a.numQoverPt {
		i = a.numQoverPt - 1
	}
	return i, a.phiTToBin(phi0)
}
