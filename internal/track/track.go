// Package track holds the three track-candidate value types shared by
// every layer above L2 (spec §3: L1track2D, L1track3D, L1fittedTrack).
// It depends only on internal/stub so that internal/htrphi, internal/rz,
// internal/dedup and internal/fit can all reference the same track
// shapes without creating import cycles between themselves.
package track

import (
	"math"

	"github.com/jkastelic/tmtracktrigger/internal/stub"
)

// Track2D is the output of the r-phi (or, recursively, r-z) Hough
// transform: the stubs in one HT cell plus the two helix parameters
// appropriate to that plane (spec §3 "L1track2D").
type Track2D struct {
	Stubs []*stub.Stub

	CellIQoverPt int
	CellIPhiT    int

	// IsRphi selects which parameter pair is populated: true means
	// (QOverPt, Phi0); false means (Z0, TanLambda).
	IsRphi  bool
	QOverPt float64
	Phi0    float64
	Z0      float64
	TanLambda float64

	// HasRZHint and the estimate fields carry an optional (z0, tanLambda)
	// hint supplied by an r-z filter (spec §3).
	HasRZHint    bool
	EstZ0        float64
	EstTanLambda float64

	IPhiSec int
	IEtaReg int
}

// Track3D is a fully assembled 3-D candidate: stubs, both HT cells, and
// the full (q/p_T, phi0, z0, tanLambda) helix (spec §3 "L1track3D").
type Track3D struct {
	Stubs []*stub.Stub

	CellIQoverPt int
	CellIPhiT    int
	CellIZ0      int
	CellIZref    int
	HasRZCell    bool

	QOverPt   float64
	Phi0      float64
	Z0        float64
	TanLambda float64

	IPhiSec int
	IEtaReg int
}

// Pt returns the transverse momentum in GeV implied by QOverPt.
func (t *Track3D) Pt() float64 {
	if t.QOverPt == 0 {
		return math.Inf(1)
	}
	return 1.0 / math.Abs(t.QOverPt)
}

// Theta returns the polar angle implied by TanLambda.
func (t *Track3D) Theta() float64 {
	return math.Pi/2 - math.Atan(t.TanLambda)
}

// Eta returns the pseudorapidity implied by TanLambda.
func (t *Track3D) Eta() float64 {
	return math.Asinh(t.TanLambda)
}

// PhiAt returns the azimuth of the helix at radius r, linearised the
// same way the HT fill rule is (spec §4.2).
func (t *Track3D) PhiAt(r, refR, invPtToDphi float64) float64 {
	return t.Phi0 + t.QOverPt*invPtToDphi*(r-refR)
}

// ZAt returns the z coordinate of the helix at radius r under the
// straight r-z line model used throughout this engine.
func (t *Track3D) ZAt(r float64) float64 {
	return t.Z0 + t.TanLambda*r
}

// Merge unions t's stub set with other's, returning a new candidate.
// The HT cell indices and helix parameters are inherited from t (the
// left operand) — spec §3 deliberately makes this non-commutative to
// match a specific firmware behaviour (see DESIGN.md Open Question).
func (t *Track3D) Merge(other *Track3D) *Track3D {
	seen := make(map[int]bool, len(t.Stubs))
	merged := make([]*stub.Stub, 0, len(t.Stubs)+len(other.Stubs))
	for _, s := range t.Stubs {
		if !seen[s.Index] {
			seen[s.Index] = true
			merged = append(merged, s)
		}
	}
	for _, s := range other.Stubs {
		if !seen[s.Index] {
			seen[s.Index] = true
			merged = append(merged, s)
		}
	}
	out := *t
	out.Stubs = merged
	return &out
}

// FittedTrack is the output of a fitter: the parent 3-D candidate, the
// (possibly reduced) surviving stub list, the fitted 5-parameter helix,
// and fit quality metadata (spec §3 "L1fittedTrack").
type FittedTrack struct {
	Parent *Track3D
	Stubs  []*stub.Stub

	QOverPt   float64
	D0        float64
	Phi0      float64
	Z0        float64
	TanLambda float64

	Chi2       float64
	NumParams  int // 4 or 5
	FitterName string

	IPhiSec int
	IEtaReg int

	Accepted bool
}

// NumDOF returns 2*nStubs - nPar, the degrees of freedom spec §8
// property 5 requires to hold exactly.
func (f *FittedTrack) NumDOF() int {
	return 2*len(f.Stubs) - f.NumParams
}

// ChargeSign returns +1 or -1 from the sign of QOverPt (spec §8 property
// 5: chargeSign(qOverPt) in {-1,+1}).
func (f *FittedTrack) ChargeSign() int {
	if f.QOverPt < 0 {
		return -1
	}
	return 1
}

// CellConsistent reports whether the fitted helix maps back into the
// same r-phi HT cell that originally produced the parent candidate
// (spec §3 "cell-consistent" predicate). binIndex is the caller's
// (q/p_T, phi_T) -> cell index mapping (internal/htrphi.Array.CellIndex).
func (f *FittedTrack) CellConsistent(binIndex func(qOverPt, phi0 float64) (int, int)) bool {
	if f.Parent == nil {
		return false
	}
	iq, ip := binIndex(f.QOverPt, f.Phi0)
	return iq == f.Parent.CellIQoverPt && ip == f.Parent.CellIPhiT
}

// SectorConsistent reports whether the fitted trajectory stays within
// the sector's (phi, z) window at the reference radius (spec §3
// "sector-consistent" predicate).
func (f *FittedTrack) SectorConsistent(phiCentre, phiHalfWidth, zMin, zMax, refR float64) bool {
	phiAtRef := f.Phi0
	if math.Abs(deltaAngle(phiAtRef, phiCentre)) > phiHalfWidth {
		return false
	}
	zAtRef := f.Z0 + f.TanLambda*refR
	return zAtRef >= zMin && zAtRef <= zMax
}

func deltaAngle(a, b float64) float64 {
	d := math.Mod(a-b+math.Pi, 2*math.Pi)
	if d < 0 {
		d += 2 * math.Pi
	}
	return d - math.Pi
}
