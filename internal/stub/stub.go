// Package stub owns Layer 1 (Stub) of the track-trigger core: the Stub
// value object and its fixed-point DigitalStub companion (spec §3,
// component A/B).
//
// Dependency rule: L1 may depend only on internal/config. No layer above
// it (sector, htrphi, rz, track, fit, producer) may be imported here.
package stub

import (
	"math"
)

// Stub is a per-hit record produced by one tracker module's front-end
// electronics (spec §3 "Stub"). Stubs are created once per event and are
// immutable with respect to physics content; only the embedded
// DigitalStub may mutate, once per sector pass.
type Stub struct {
	// Identity
	Index    int // dense index into the event stub vector
	ModuleID int

	// Geometry (floating point, cm and radians)
	R, Phi, Z    float64
	RErr, ZErr   float64
	RMin, RMax   float64
	PhiMin       float64
	PhiMax       float64
	ZMin, ZMax   float64

	// Module metadata
	Barrel              bool
	LayerID             int // raw layer id
	EndcapRing          int
	IsPS                bool // pixel-strip (true) vs strip-strip ("2S", false)
	StripPitch          float64
	StripLength         float64
	PitchOverSeparation float64
	NumStrips           int
	SensorWidth         float64

	// Bend data
	Bend           float64 // signed, front-end value, strip-pitch units
	BendDegraded   float64 // post-resolution-degradation value
	NumBendsMerged int
	Rho            float64 // bend-to-delta-phi conversion factor

	// FrontEndPass is true iff the stub would survive the configured
	// front-end readout cuts.
	FrontEndPass bool

	// Digital is the fixed-point digitisation companion (spec §3
	// "DigitalStub"). Nil until first digitised.
	Digital *DigitalStub
}

// ReducedLayerID packs LayerID into at most 3 bits per eta region (spec
// glossary "Reduced layer id"). Barrel layers 1-6 map to 1-6; endcap
// disks 11-15/21-25 map to 1-5, keeping collisions across barrel/endcap
// acceptable since a given (phi,eta) sector only ever sees one kind.
func (s *Stub) ReducedLayerID() int {
	if s.Barrel {
		id := s.LayerID
		if id > 7 {
			id = 7
		}
		return id
	}
	id := s.LayerID % 10
	if id > 7 {
		id = 7
	}
	return id
}

// ZTrk extrapolates the stub to radius refR along the straight line from
// the origin through (R, Z) — spec glossary "z_trk". This is a coarse,
// single-stub estimate; the tracklet-style seed filter (internal/rz)
// instead uses pairs of stubs for a proper line fit.
func (s *Stub) ZTrk(refR float64) float64 {
	if s.R == 0 {
		return s.Z
	}
	return s.Z * refR / s.R
}

// QOverPtFromBend estimates the signed q/p_T implied by this stub's bend
// alone (spec §3 "q/p_T estimated from bend"), given the event's
// invPtToDphi conversion factor (config.Settings.InvPtToDphi).
//
//	deltaPhi ≈ bend * rho
//	deltaPhi ≈ qOverPt * invPtToDphi * r    (small-angle curvature)
func (s *Stub) QOverPtFromBend(invPtToDphi float64) float64 {
	if invPtToDphi == 0 || s.R == 0 {
		return 0
	}
	deltaPhi := s.BendDegraded * s.Rho
	return deltaPhi / (invPtToDphi * s.R)
}

// PhiAtR extrapolates the stub's azimuth to radius r given a track's
// q/p_T, following the HT's linear fill-rule model (spec §4.2), and
// returns the angular uncertainty at r induced by the stub's strip
// length (used by the sector track-phi predicate, spec §4.1).
func (s *Stub) PhiAtR(r, qOverPt, invPtToDphi float64) (phi, sigma float64) {
	phi = s.Phi + qOverPt*invPtToDphi*(r-s.R)
	if s.Barrel {
		sigma = 0
	} else if s.R != 0 {
		sigma = invPtToDphi * math.Abs(qOverPt) * s.RErr
	}
	return phi, sigma
}

// InvPtBinRange returns the inclusive [min,max] q/p_T bin indices
// compatible with this stub's bend, given the HT array's axis layout
// (spec §3 "inclusive q/p_T bin range ... compatible with the bend").
// binWidth is (2/p_T,min)/numBins; numBins is the HT's q/p_T dimension.
func (s *Stub) InvPtBinRange(invPtToDphi, maxInvPt, binWidth float64, numBins int, sigmaBins float64) (lo, hi int) {
	center := s.QOverPtFromBend(invPtToDphi)
	halfWidth := sigmaBins * binWidth
	loVal := center - halfWidth
	hiVal := center + halfWidth

	toBin := func(v float64) int {
		// Bins are centred on [-maxInvPt, +maxInvPt].
		idx := int(math.Floor((v+maxInvPt)/binWidth + 0.5))
		if idx < 0 {
			idx = 0
		}
		if idx >= numBins {
			idx = numBins - 1
		}
		return idx
	}
	lo, hi = toBin(loVal), toBin(hiVal)
	if lo > hi {
		lo, hi = hi, lo
	}
	return lo, hi
}
