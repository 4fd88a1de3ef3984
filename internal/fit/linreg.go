package fit

import (
	"math"

	"github.com/jkastelic/tmtracktrigger/internal/config"
	"github.com/jkastelic/tmtracktrigger/internal/sector"
	"github.com/jkastelic/tmtracktrigger/internal/stub"
	"github.com/jkastelic/tmtracktrigger/internal/track"
)

// LinearRegression implements spec §4.7.1: two independent weighted
// least-squares lines (r-phi and r-z), iterated with a worst-residual
// kill rule.
type LinearRegression struct{}

func (f *LinearRegression) Name() string { return "LinearRegression" }

func (f *LinearRegression) Fit(cand *track.Track3D, cfg *config.Settings, sec *sector.Sector) *track.FittedTrack {
	stubs := append([]*stub.Stub(nil), cand.Stubs...)

	for iter := 0; iter < cfg.MaxIterations; iter++ {
		numLayers, numPS := layerGroups(&track.Track3D{Stubs: stubs}, cfg)
		if numLayers < cfg.MinLayers || numPS < 1 {
			return &track.FittedTrack{Parent: cand, Stubs: stubs, FitterName: f.Name(), NumParams: 4, Accepted: false}
		}

		qOverPt, phi0 := fitLinePhi(stubs, sec.RefRadiusPhi, sec.PhiCentre, cfg.InvPtToDphi)
		z0, tanLambda := fitLineZ(stubs, sec.RefRadiusZ)

		residuals := make([]float64, len(stubs))
		for i, s := range stubs {
			phiPred := phi0 + qOverPt*cfg.InvPtToDphi*(s.R-sec.RefRadiusPhi)
			zPred := z0 + tanLambda*s.R
			phiSigma := s.RErr
			if phiSigma <= 0 {
				phiSigma = 1e-3
			}
			zSigma := s.ZErr
			if zSigma <= 0 {
				zSigma = 1.0
			}
			rPhiRes := math.Abs(deltaAngle(s.Phi, phiPred)) / phiSigma
			rZRes := math.Abs(s.Z-zPred) / zSigma
			residuals[i] = math.Max(rPhiRes, rZRes)
		}

		worst := maxResidualIndex(residuals)
		if worst < 0 {
			break
		}
		exceedsLayers := len(stubs) > numLayers
		if residuals[worst] > cfg.ResidualKillCut || exceedsLayers {
			stubs = removeIndex(stubs, worst)
			continue
		}

		chi2 := 0.0
		for _, r := range residuals {
			chi2 += r * r
		}
		return &track.FittedTrack{
			Parent: cand, Stubs: stubs,
			QOverPt: qOverPt, Phi0: phi0, Z0: z0, TanLambda: tanLambda,
			Chi2: chi2, NumParams: 4, FitterName: f.Name(), Accepted: true,
			IPhiSec: cand.IPhiSec, IEtaReg: cand.IEtaReg,
		}
	}
	return &track.FittedTrack{Parent: cand, Stubs: stubs, FitterName: f.Name(), NumParams: 4, Accepted: false}
}

// fitLinePhi performs a weighted least-squares fit of phi against
// r-RefRadiusPhi, returning (qOverPt, phi0) per the HT's linear fill-rule
// model (spec §4.2, reused here as the fit's forward model).
func fitLinePhi(stubs []*stub.Stub, refR, phiCentre, invPtToDphi float64) (qOverPt, phi0 float64) {
	var sw, swx, swy, swxx, swxy float64
	for _, s := range stubs {
		w := 1.0
		if s.RErr > 0 {
			w = 1.0 / (s.RErr * s.RErr)
		}
		x := s.R - refR
		y := deltaAngle(s.Phi, phiCentre)
		sw += w
		swx += w * x
		swy += w * y
		swxx += w * x * x
		swxy += w * x * y
	}
	den := sw*swxx - swx*swx
	if den == 0 || invPtToDphi == 0 {
		return 0, phiCentre
	}
	slope := (sw*swxy - swx*swy) / den
	intercept := (swy - slope*swx) / sw
	return slope / invPtToDphi, intercept + phiCentre
}

// fitLineZ performs an unweighted-by-default (ZErr-weighted) line fit of
// z against r, returning (z0, tanLambda).
func fitLineZ(stubs []*stub.Stub, refR float64) (z0, tanLambda float64) {
	var sw, swx, swy, swxx, swxy float64
	for _, s := range stubs {
		w := 1.0
		if s.ZErr > 0 {
			w = 1.0 / (s.ZErr * s.ZErr)
		}
		x := s.R
		y := s.Z
		sw += w
		swx += w * x
		swy += w * y
		swxx += w * x * x
		swxy += w * x * y
	}
	den := sw*swxx - swx*swx
	if den == 0 {
		return 0, 0
	}
	slope := (sw*swxy - swx*swy) / den
	intercept := (swy - slope*swx) / sw
	return intercept, slope
}

func deltaAngle(a, b float64) float64 {
	d := math.Mod(a-b+math.Pi, 2*math.Pi)
	if d < 0 {
		d += 2 * math.Pi
	}
	return d - math.Pi
}
