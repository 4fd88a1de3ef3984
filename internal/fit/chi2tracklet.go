package fit

import (
	"math"

	"github.com/jkastelic/tmtracktrigger/internal/config"
	"github.com/jkastelic/tmtracktrigger/internal/sector"
	"github.com/jkastelic/tmtracktrigger/internal/stub"
	"github.com/jkastelic/tmtracktrigger/internal/track"
	"gonum.org/v1/gonum/mat"
)

// ChiSquaredTracklet implements spec §4.7.2: a linearised chi-square fit
// with a closed-form derivative matrix D, solved each iteration by
// inverting the n_par x n_par normal matrix M = D^T D (done here via
// gonum/mat's Dense.Inverse rather than hand-rolled Gauss-Jordan).
type ChiSquaredTracklet struct {
	name      string
	numParams int // 4, or 5 on the final iteration per spec §4.7.2
}

func (f *ChiSquaredTracklet) Name() string { return f.name }

// state packs (qOverPt, phi0, z0, tanLambda[, d0]).
type chi2State struct {
	qOverPt, phi0, z0, tanLambda, d0 float64
	nPar                             int
}

func (s chi2State) vec() []float64 {
	if s.nPar == 5 {
		return []float64{s.qOverPt, s.phi0, s.z0, s.tanLambda, s.d0}
	}
	return []float64{s.qOverPt, s.phi0, s.z0, s.tanLambda}
}

func (s *chi2State) apply(delta []float64) {
	s.qOverPt += delta[0]
	s.phi0 += delta[1]
	s.z0 += delta[2]
	s.tanLambda += delta[3]
	if s.nPar == 5 && len(delta) == 5 {
		s.d0 += delta[4]
	}
}

func (f *ChiSquaredTracklet) Fit(cand *track.Track3D, cfg *config.Settings, sec *sector.Sector) *track.FittedTrack {
	stubs := append([]*stub.Stub(nil), cand.Stubs...)
	st := chi2State{qOverPt: cand.QOverPt, phi0: cand.Phi0, z0: cand.Z0, tanLambda: cand.TanLambda, nPar: 4}

	var lastChi2 float64
	var lastNPar int
	accepted := false

	for iter := 0; iter < cfg.MaxIterations; iter++ {
		numLayers, numPS := layerGroups(&track.Track3D{Stubs: stubs}, cfg)
		if numLayers < cfg.MinLayers || numPS < 1 {
			break
		}

		if iter == cfg.MaxIterations-1 {
			st.nPar = 5
		}

		delta, residuals, chi2, ok := chi2Step(stubs, st, sec, cfg.InvPtToDphi)
		if !ok {
			break
		}
		st.apply(delta)
		lastChi2, lastNPar = chi2, st.nPar
		accepted = true

		if !cfg.KillWorstHit {
			continue
		}
		worst := maxResidualIndex(residuals)
		if worst < 0 || math.Abs(residuals[worst]) <= cfg.ResidualKillCut {
			break
		}
		if len(stubs)-1 < cfg.MinLayers {
			break
		}
		stubs = removeIndex(stubs, worst)
	}

	if !accepted {
		return &track.FittedTrack{Parent: cand, Stubs: stubs, FitterName: f.Name(), NumParams: 4, Accepted: false}
	}
	return &track.FittedTrack{
		Parent: cand, Stubs: stubs,
		QOverPt: st.qOverPt, Phi0: st.phi0, Z0: st.z0, TanLambda: st.tanLambda, D0: st.d0,
		Chi2: lastChi2, NumParams: lastNPar, FitterName: f.Name(), Accepted: true,
		IPhiSec: cand.IPhiSec, IEtaReg: cand.IEtaReg,
	}
}

// chi2Step builds D (2N x nPar) and delta-residual vector, solves
// M x = D^T delta for Delta-x = -(M^-1 D^T) delta, and returns it along
// with the per-stub combined residual used for the kill rule and the
// total chi-square of the residuals entering this step.
func chi2Step(stubs []*stub.Stub, st chi2State, sec *sector.Sector, invPtToDphi float64) (delta []float64, residuals []float64, chi2 float64, ok bool) {
	n := len(stubs)
	nPar := st.nPar
	if n == 0 {
		return nil, nil, 0, false
	}
	D := mat.NewDense(2*n, nPar, nil)
	y := mat.NewVecDense(2*n, nil)
	residuals = make([]float64, n)

	for i, s := range stubs {
		phiSigma := s.RErr
		if phiSigma <= 0 {
			phiSigma = 1e-3
		}
		zSigma := s.ZErr
		if zSigma <= 0 {
			zSigma = 1.0
		}

		phiPred := st.phi0 + st.qOverPt*invPtToDphi*(s.R-sec.RefRadiusPhi)
		if nPar == 5 && s.R != 0 {
			phiPred += st.d0 / s.R
		}
		zPred := st.z0 + st.tanLambda*s.R

		rPhi := deltaAngle(s.Phi, phiPred) / phiSigma
		rZ := (s.Z - zPred) / zSigma
		y.SetVec(2*i, rPhi)
		y.SetVec(2*i+1, rZ)
		residuals[i] = math.Max(math.Abs(rPhi), math.Abs(rZ))
		chi2 += rPhi*rPhi + rZ*rZ

		D.Set(2*i, 0, -invPtToDphi*(s.R-sec.RefRadiusPhi)/phiSigma)
		D.Set(2*i, 1, -1.0/phiSigma)
		if nPar == 5 {
			d0Coeff := 0.0
			if s.R != 0 {
				d0Coeff = -1.0 / (s.R * phiSigma)
			}
			D.Set(2*i, 4, d0Coeff)
		}
		D.Set(2*i+1, 2, -1.0/zSigma)
		D.Set(2*i+1, 3, -s.R/zSigma)
	}

	var M mat.Dense
	M.Mul(D.T(), D)
	var Dty mat.VecDense
	Dty.MulVec(D.T(), y)

	var MInv mat.Dense
	if err := MInv.Inverse(&M); err != nil {
		return nil, residuals, chi2, false
	}
	var step mat.VecDense
	step.MulVec(&MInv, &Dty)

	delta = make([]float64, nPar)
	for i := 0; i < nPar; i++ {
		delta[i] = -step.AtVec(i)
	}
	return delta, residuals, chi2, true
}
