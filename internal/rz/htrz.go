// Package rz owns Layer 4 (r-z) of the track-trigger core: the optional
// r-z Hough-transform array, the three-stage r-z track filter, and the
// per-sector orchestrator that drives the whole r-phi -> r-z -> 3-D
// pipeline (spec §4.3, §4.4, §4.5, components F/G/H).
//
// Dependency rule: L4 may depend on L1-L3 (internal/stub,
// internal/sector, internal/htrphi), internal/track, internal/dedup,
// internal/monitoring and internal/config, never on internal/fit.
package rz

import (
	"math"
	"sort"

	"github.com/jkastelic/tmtracktrigger/internal/config"
	"github.com/jkastelic/tmtracktrigger/internal/monitoring"
	"github.com/jkastelic/tmtracktrigger/internal/sector"
	"github.com/jkastelic/tmtracktrigger/internal/stub"
	"github.com/jkastelic/tmtracktrigger/internal/track"
)

// Cell is a single r-z HT accumulator, analogous to htrphi.Cell but over
// the (z0, zTrk) plane (spec §4.3: "Mirrors §4.2 with axes (z0, z at
// R_ref)").
type Cell struct {
	IZ0, IZref int
	Stubs      []*stub.Stub
}

// Array is the 2-D (z0, zTrk) accumulator of spec §4.3 ("HTrz"),
// instantiated per r-phi track candidate using that candidate's q/p_T as
// a curvature prior.
type Array struct {
	sec     *sector.Sector
	cfg     *config.Settings
	qOverPt float64

	numZ0, numZref int
	binZ0, binZref float64
	maxAbsZ0       float64
	minZref        float64
	maxZref        float64

	cells    [][]*Cell
	counters *monitoring.FirmwareCounters
}

// NewArray constructs an empty r-z HT array seeded with the prior q/p_T
// taken from the r-phi candidate that produced the stubs it will fill.
func NewArray(sec *sector.Sector, cfg *config.Settings, qOverPt float64, counters *monitoring.FirmwareCounters) *Array {
	a := &Array{
		sec: sec, cfg: cfg, qOverPt: qOverPt,
		numZ0: cfg.NumBinsZ0, numZref: cfg.NumBinsZref,
		counters: counters,
	}
	a.maxAbsZ0 = cfg.BeamHalfLength
	a.minZref = sec.ZTrkMin
	a.maxZref = sec.ZTrkMax
	a.binZ0 = (2 * a.maxAbsZ0) / float64(a.numZ0)
	a.binZref = (a.maxZref - a.minZref) / float64(a.numZref)

	a.cells = make([][]*Cell, a.numZ0)
	for i := range a.cells {
		a.cells[i] = make([]*Cell, a.numZref)
		for j := range a.cells[i] {
			a.cells[i][j] = &Cell{IZ0: i, IZref: j}
		}
	}
	return a
}

func (a *Array) z0BinCentre(i int) float64 {
	return -a.maxAbsZ0 + (float64(i)+0.5)*a.binZ0
}

func (a *Array) zrefBinCentre(j int) float64 {
	return a.minZref + (float64(j)+0.5)*a.binZref
}

func (a *Array) zrefToBin(zref float64) int {
	idx := int(math.Floor((zref-a.minZref)/a.binZref + 0.5))
	if idx < 0 {
		idx = 0
	}
	if idx >= a.numZref {
		idx = a.numZref - 1
	}
	return idx
}

// Store applies the r-z fill rule of spec §4.3: for each z0 column,
// compute the zTrk range consistent with a straight line through the
// stub and that z0, widened by strip-length uncertainty that is
// barrel-z-based or endcap-r-based depending on module type.
func (a *Array) Store(s *stub.Stub) {
	if s.R == 0 {
		return
	}
	refR := a.sec.RefRadiusZ
	prevJMin, prevJMax := -1, -1
	for i := 0; i < a.numZ0; i++ {
		z0 := a.z0BinCentre(i)
		tanLambda := (s.Z - z0) / s.R
		zrefNominal := z0 + tanLambda*refR

		halfRange := (a.binZ0 / 2) * math.Abs(refR-s.R) / s.R
		if s.Barrel {
			halfRange += s.ZErr * refR / s.R
		} else {
			halfRange += s.RErr * math.Abs(tanLambda)
		}

		jMin := a.zrefToBin(zrefNominal - halfRange)
		jMax := a.zrefToBin(zrefNominal + halfRange)

		violatesB := (jMax - jMin + 1) > 2
		violatesA := prevJMin >= 0 && !chainsWithPrevious(jMin, jMax, prevJMin, prevJMax)
		if a.counters != nil {
			a.counters.RecordRzFill(violatesA, violatesB)
		}
		prevJMin, prevJMax = jMin, jMax

		for j := jMin; j <= jMax; j++ {
			if a.cfg.HTrzKillCellsEnabled && shouldKillCell(i, j) {
				continue
			}
			c := a.cells[i][j]
			c.Stubs = append(c.Stubs, s)
		}
	}
}

func shouldKillCell(i, j int) bool {
	return (i+j)%2 == 0
}

func chainsWithPrevious(jMin, jMax, prevJMin, prevJMax int) bool {
	return jMin >= prevJMin-1 && jMin <= prevJMax+1 && jMax >= prevJMin-1 && jMax <= prevJMax+1
}

// End materialises r-z 2-D candidates: the acceptance predicate mirrors
// §4.2's layer-count gate, applied in the r-z plane.
func (a *Array) End(cfg *config.Settings) []*track.Track2D {
	var candidates []*track.Track2D
	for i := 0; i < a.numZ0; i++ {
		for j := 0; j < a.numZref; j++ {
			c := a.cells[i][j]
			if len(c.Stubs) == 0 {
				continue
			}
			if countLayers(c.Stubs, cfg) < cfg.MinLayers {
				continue
			}
			zref := a.zrefBinCentre(j)
			z0 := a.z0BinCentre(i)
			tanLambda := 0.0
			if a.sec.RefRadiusZ != 0 {
				tanLambda = (zref - z0) / a.sec.RefRadiusZ
			}
			candidates = append(candidates, &track.Track2D{
				Stubs:        append([]*stub.Stub(nil), c.Stubs...),
				CellIQoverPt: i,
				CellIPhiT:    j,
				IsRphi:       false,
				Z0:           z0,
				TanLambda:    tanLambda,
				IPhiSec:      a.sec.IPhi,
				IEtaReg:      a.sec.IEta,
			})
		}
	}
	sort.SliceStable(candidates, func(x, y int) bool {
		return len(candidates[x].Stubs) > len(candidates[y].Stubs)
	})
	return candidates
}

func countLayers(stubs []*stub.Stub, cfg *config.Settings) int {
	seen := map[int]bool{}
	for _, s := range stubs {
		key := s.LayerID
		if cfg.ReducedLayerID {
			key = s.ReducedLayerID()
		}
		seen[key] = true
	}
	return len(seen)
}
