// Package sector owns Layer 2 (Sector) of the track-trigger core: stub/
// sector membership in phi and eta, including sub-sectors (spec §4.1,
// component C).
//
// Dependency rule: L2 may depend on L1 (internal/stub) and
// internal/config, never on L3+.
package sector

import (
	"math"

	"github.com/jkastelic/tmtracktrigger/internal/config"
	"github.com/jkastelic/tmtracktrigger/internal/stub"
)

// Sector holds the (phi, eta) window of one grid cell of the sector
// assignment layer, plus the z-at-reference boundaries and optional
// sub-sector z boundaries derived from it (spec §3 "Sector").
//
// Lifetime: one per (iPhi, iEta), constructed at run start and immutable
// thereafter.
type Sector struct {
	IPhi, IEta int

	PhiCentre    float64
	PhiHalfWidth float64
	EtaMin       float64
	EtaMax       float64

	RefRadiusPhi   float64
	RefRadiusZ     float64
	BeamHalfLength float64 // W

	ZTrkMin float64 // R_ref,z * sinh(EtaMin)
	ZTrkMax float64 // R_ref,z * sinh(EtaMax)

	NumSubSecs    int
	SubSecZBounds []float64 // len NumSubSecs+1, z_trk edges of each sub-sector

	UseStubPhiPredicate  bool
	UseTrackPhiPredicate bool
	NominalTolerance     float64
}

// BuildGrid constructs the full (NumPhiSectors x len(EtaRegionEdges)-1)
// sector grid from settings (spec §4.5 orchestrator precondition: "the
// sector grid" is built once at run start by the producer).
func BuildGrid(cfg *config.Settings) [][]*Sector {
	nEta := len(cfg.EtaRegionEdges) - 1
	grid := make([][]*Sector, cfg.NumPhiSectors)
	for iPhi := 0; iPhi < cfg.NumPhiSectors; iPhi++ {
		grid[iPhi] = make([]*Sector, nEta)
		for iEta := 0; iEta < nEta; iEta++ {
			grid[iPhi][iEta] = New(iPhi, iEta, cfg)
		}
	}
	return grid
}

// New constructs a single sector for (iPhi, iEta).
func New(iPhi, iEta int, cfg *config.Settings) *Sector {
	width := 2 * math.Pi / float64(cfg.NumPhiSectors)
	centre := -math.Pi + (float64(iPhi)+0.5)*width

	etaMin := cfg.EtaRegionEdges[iEta]
	etaMax := cfg.EtaRegionEdges[iEta+1]

	sec := &Sector{
		IPhi: iPhi, IEta: iEta,
		PhiCentre: centre, PhiHalfWidth: width / 2,
		EtaMin: etaMin, EtaMax: etaMax,
		RefRadiusPhi: cfg.RefRadiusPhi, RefRadiusZ: cfg.RefRadiusZ,
		BeamHalfLength: cfg.BeamHalfLength,
		ZTrkMin:        cfg.RefRadiusZ * math.Sinh(etaMin),
		ZTrkMax:        cfg.RefRadiusZ * math.Sinh(etaMax),
		NumSubSecs:     cfg.NumEtaSubSecs,

		UseStubPhiPredicate:  cfg.UseStubPhiPredicate,
		UseTrackPhiPredicate: cfg.UseTrackPhiPredicate,
		NominalTolerance:     cfg.NominalTrackPhiTolerance,
	}
	sec.SubSecZBounds = make([]float64, sec.NumSubSecs+1)
	span := sec.ZTrkMax - sec.ZTrkMin
	for i := 0; i <= sec.NumSubSecs; i++ {
		sec.SubSecZBounds[i] = sec.ZTrkMin + span*float64(i)/float64(sec.NumSubSecs)
	}
	return sec
}

// zWindowAt evaluates the eta window's lower/upper z bound at radius r,
// interpolating linearly between the beam-spread points (0, ±W) and the
// reference-radius z_trk edges (spec §4.1 "eta window").
func zWindowAt(r, refR, w, zTrkMin, zTrkMax float64) (lower, upper float64) {
	if refR == 0 {
		return -w, w
	}
	lower = -w + (zTrkMin+w)*r/refR
	upper = w + (zTrkMax-w)*r/refR
	return lower, upper
}

// InsideEta reports whether s lies within the sector's eta window,
// optionally widened by the stub's strip-length (r,z) uncertainty.
func (sec *Sector) InsideEta(s *stub.Stub, handleStrips bool) bool {
	lower, upper := zWindowAt(s.R, sec.RefRadiusZ, sec.BeamHalfLength, sec.ZTrkMin, sec.ZTrkMax)
	widen := 0.0
	if handleStrips {
		widen = s.ZErr
	}
	return s.Z >= lower-widen && s.Z <= upper+widen
}

// InsideSubSecs returns one boolean per eta sub-sector (spec §3: "For
// sub-sectors, return one boolean per sub-sector").
func (sec *Sector) InsideSubSecs(s *stub.Stub, handleStrips bool) []bool {
	result := make([]bool, sec.NumSubSecs)
	widen := 0.0
	if handleStrips {
		widen = s.ZErr
	}
	for i := 0; i < sec.NumSubSecs; i++ {
		lower, upper := zWindowAt(s.R, sec.RefRadiusZ, sec.BeamHalfLength, sec.SubSecZBounds[i], sec.SubSecZBounds[i+1])
		result[i] = s.Z >= lower-widen && s.Z <= upper+widen
	}
	return result
}

func deltaPhi(a, b float64) float64 {
	d := math.Mod(a-b+math.Pi, 2*math.Pi)
	if d < 0 {
		d += 2 * math.Pi
	}
	return d - math.Pi
}

// insideStubPhi is the "stub-phi predicate" of spec §4.1: the stub's own
// azimuth must lie within the sector's half-width, widened by the
// curvature tolerance a minimum-p_T track could induce at this radius.
func (sec *Sector) insideStubPhi(s *stub.Stub, invPtToDphi, maxInvPt float64) bool {
	curvatureTol := invPtToDphi * maxInvPt * math.Abs(s.R-sec.RefRadiusPhi)
	return math.Abs(deltaPhi(s.Phi, sec.PhiCentre)) <= sec.PhiHalfWidth+curvatureTol
}

// insideTrackPhi is the "track-phi predicate" of spec §4.1: extrapolate
// the stub's bend to RefRadiusPhi and require the result to lie within
// the sector, using whichever of the nominal or bend-derived resolution
// is finer, further widened by strip length when requested.
func (sec *Sector) insideTrackPhi(s *stub.Stub, invPtToDphi float64, handleStrips bool) bool {
	qOverPt := s.QOverPtFromBend(invPtToDphi)
	phiAtRef, sigmaFromBend := s.PhiAtR(sec.RefRadiusPhi, qOverPt, invPtToDphi)

	tol := sec.NominalTolerance
	if sigmaFromBend > 0 && sigmaFromBend < tol {
		tol = sigmaFromBend
	}
	if handleStrips {
		tol += sigmaFromBend
	}
	return math.Abs(deltaPhi(phiAtRef, sec.PhiCentre)) <= sec.PhiHalfWidth+tol
}

// InsidePhi ANDs together whichever of the stub-phi/track-phi predicates
// are enabled (spec §4.1: "Two independent predicates, ANDed when both
// are enabled").
func (sec *Sector) InsidePhi(s *stub.Stub, invPtToDphi, maxInvPt float64, handleStrips bool) bool {
	ok := true
	any := false
	if sec.UseStubPhiPredicate {
		any = true
		ok = ok && sec.insideStubPhi(s, invPtToDphi, maxInvPt)
	}
	if sec.UseTrackPhiPredicate {
		any = true
		ok = ok && sec.insideTrackPhi(s, invPtToDphi, handleStrips)
	}
	if !any {
		return true
	}
	return ok
}

// Inside reports whether s lies within both the phi and eta windows.
func (sec *Sector) Inside(s *stub.Stub, invPtToDphi, maxInvPt float64, handleStrips bool) bool {
	return sec.InsidePhi(s, invPtToDphi, maxInvPt, handleStrips) && sec.InsideEta(s, handleStrips)
}
