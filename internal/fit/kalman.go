package fit

import (
	"math"
	"sort"

	"github.com/jkastelic/tmtracktrigger/internal/config"
	"github.com/jkastelic/tmtracktrigger/internal/sector"
	"github.com/jkastelic/tmtracktrigger/internal/stub"
	"github.com/jkastelic/tmtracktrigger/internal/track"
	"gonum.org/v1/gonum/mat"
)

// paramVariant records which Kalman variant a kalmanFitter was
// registered as. The variant is not read during the fit: paramV1 and
// paramV2 both seed, propagate, update and publish in the same (1/2R,
// phi0 - phi_centre, z0, tanLambda[, d0]) basis, so KF4ParamsCombV2
// produces the same fitted parameters as KF4ParamsComb.
type paramVariant int

const (
	paramV1 paramVariant = iota
	paramV2
)

// kalmanFitter implements spec §4.7.3's combinatorial Kalman filter for
// the 4-param, 5-param, and V2 variants, sharing one arena-owned state
// tree (spec §9 design note: "avoid reference-counted smart pointers...
// prefer explicit arena + indices").
type kalmanFitter struct {
	name      string
	numParams int
	variant   paramVariant
}

func newKalman(name string, numParams int, variant paramVariant) *kalmanFitter {
	return &kalmanFitter{name: name, numParams: numParams, variant: variant}
}

func (f *kalmanFitter) Name() string { return f.name }

// kalmanNode is one entry in the arena-owned state tree. parent is an
// index into the same arena slice, -1 for the seed.
type kalmanNode struct {
	x *mat.VecDense
	p *mat.Dense

	parent          int
	stubs           []*stub.Stub
	numStubLayers   int
	numVirtualStubs int
	chi2            float64
}

type layerGroup struct {
	key    int
	radius float64
	stubs  []*stub.Stub
}

func groupByLayer(stubs []*stub.Stub, cfg *config.Settings) []layerGroup {
	groups := map[int]*layerGroup{}
	for _, s := range stubs {
		key := s.LayerID
		if cfg.ReducedLayerID {
			key = s.ReducedLayerID()
		}
		g, ok := groups[key]
		if !ok {
			g = &layerGroup{key: key, radius: s.R}
			groups[key] = g
		}
		g.stubs = append(g.stubs, s)
	}
	out := make([]layerGroup, 0, len(groups))
	for _, g := range groups {
		out = append(out, *g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].radius < out[j].radius })
	return out
}

// seedState builds the arena root from the HT 3-D candidate's helix
// parameters, with the characteristic diagonal covariance scales spec
// §4.7.3 specifies ("Seeding").
func (f *kalmanFitter) seedState(cand *track.Track3D, cfg *config.Settings, sec *sector.Sector) kalmanNode {
	nPar := f.numParams
	x := mat.NewVecDense(nPar, nil)
	halfInvR := 0.0
	if cfg.InvPtToR != 0 {
		halfInvR = cand.QOverPt * cfg.InvPtToR / 2
	}
	x.SetVec(0, halfInvR)
	x.SetVec(1, cand.Phi0-sec.PhiCentre)
	x.SetVec(2, cand.Z0)
	x.SetVec(3, cand.TanLambda)

	if nPar == 5 {
		d0 := seedD0FromFirstStub(cand, cfg)
		x.SetVec(4, d0)
	}

	p := mat.NewDense(nPar, nPar, nil)
	p.Set(0, 0, 1e-9)
	p.Set(1, 1, 1e-5)
	p.Set(2, 2, 10)
	p.Set(3, 3, 1e-2)
	if nPar == 5 {
		p.Set(4, 4, 1.0)
	}

	return kalmanNode{x: x, p: p, parent: -1}
}

// seedD0FromFirstStub seeds d0 from the first stub's bend-derived q/p_T
// (spec SF.4 "5-parameter Kalman seeded d0 from first-stub bend").
func seedD0FromFirstStub(cand *track.Track3D, cfg *config.Settings) float64 {
	if len(cand.Stubs) == 0 {
		return 0
	}
	s := cand.Stubs[0]
	qOverPtFromBend := s.QOverPtFromBend(cfg.InvPtToDphi)
	return (qOverPtFromBend - cand.QOverPt) * s.R
}

// propagateCovariance inflates p by the multiple-scattering process
// noise, weighted by cfg.MultiScatterFactor. Spec §4.7.3 describes
// material-budget tables keyed by eta bin and layer position; this
// engine uses one configurable scalar weight instead.
func propagateCovariance(p *mat.Dense, msFactor float64) *mat.Dense {
	r, c := p.Dims()
	out := mat.NewDense(r, c, nil)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			out.Set(i, j, p.At(i, j))
		}
	}
	q := 1e-6 * msFactor
	out.Set(1, 1, out.At(1, 1)+q)   // phi0 sub-block
	out.Set(3, 3, out.At(3, 3)+q)   // tanLambda sub-block
	if r == 5 {
		out.Set(4, 4, out.At(4, 4)+q) // d0 absorbs the phi arm
	}
	return out
}

// measurementModel returns the predicted measurement (phi, z), the
// Jacobian H (2 x nPar), and the measurement covariance R for stub s
// given state x at this stub's radius (spec §4.7.3: "Measurement d =
// (phi - phi_sector, z). H depends on layer type"). The state's phi0 is
// relative to phiCentre, which is added back so predPhi is comparable
// with the stub's own phi.
func measurementModel(x *mat.VecDense, s *stub.Stub, cfg *config.Settings, nPar int, phiCentre float64) (predPhi, predZ float64, H *mat.Dense, R *mat.Dense) {
	halfInvR := x.AtVec(0)
	phi0 := x.AtVec(1)
	z0 := x.AtVec(2)
	tanLambda := x.AtVec(3)
	d0 := 0.0
	if nPar == 5 {
		d0 = x.AtVec(4)
	}

	qOverPt := 0.0
	if cfg.InvPtToR != 0 {
		qOverPt = 2 * halfInvR / cfg.InvPtToR
	}
	predPhi = phiCentre + phi0 + qOverPt*cfg.InvPtToDphi*s.R
	if nPar == 5 && s.R != 0 {
		predPhi += d0 / s.R
	}
	predZ = z0 + tanLambda*s.R

	H = mat.NewDense(2, nPar, nil)
	H.Set(0, 0, (2/orOne(cfg.InvPtToR))*cfg.InvPtToDphi*s.R)
	H.Set(0, 1, 1)
	H.Set(1, 2, 1)
	H.Set(1, 3, s.R)
	if nPar == 5 {
		if s.R != 0 {
			H.Set(0, 4, 1/s.R)
		}
	}

	phiSigma := s.RErr
	if phiSigma <= 0 {
		phiSigma = 1e-3
	}
	zSigma := s.ZErr
	if zSigma <= 0 {
		zSigma = 1.0
	}
	R = mat.NewDense(2, 2, nil)
	R.Set(0, 0, phiSigma*phiSigma)
	R.Set(1, 1, zSigma*zSigma)
	return predPhi, predZ, H, R
}

func orOne(v float64) float64 {
	if v == 0 {
		return 1
	}
	return v
}

// validationGate computes chi2_gate/2 for (state, stub) and reports
// whether it passes cfg.ValidationGateCut (spec §4.7.3 step 2).
func validationGate(x *mat.VecDense, p *mat.Dense, s *stub.Stub, cfg *config.Settings, nPar int, phiCentre float64) (pass bool, predPhi, predZ float64, H, R, S *mat.Dense) {
	predPhi, predZ, H, R = measurementModel(x, s, cfg, nPar, phiCentre)

	var HP mat.Dense
	HP.Mul(H, p)
	var HPHt mat.Dense
	HPHt.Mul(&HP, H.T())
	S = mat.NewDense(2, 2, nil)
	S.Add(&HPHt, R)

	var SInv mat.Dense
	if err := SInv.Inverse(S); err != nil {
		return false, predPhi, predZ, H, R, S
	}

	resPhi := deltaAngle(s.Phi, predPhi)
	resZ := s.Z - predZ
	res := mat.NewVecDense(2, []float64{resPhi, resZ})

	var tmp mat.VecDense
	tmp.MulVec(&SInv, res)
	chi2 := resPhi*tmp.AtVec(0) + resZ*tmp.AtVec(1)

	return chi2/2 < cfg.ValidationGateCut, predPhi, predZ, H, R, S
}

// kalmanUpdate performs the standard Kalman update given the innovation
// covariance S already computed by validationGate, returning the
// updated state, covariance, and its chi-square contribution.
func kalmanUpdate(x *mat.VecDense, p *mat.Dense, s *stub.Stub, cfg *config.Settings, nPar int, predPhi, predZ float64, H, R, S *mat.Dense) (*mat.VecDense, *mat.Dense, float64) {
	var SInv mat.Dense
	_ = SInv.Inverse(S)

	var PHt mat.Dense
	PHt.Mul(p, H.T())
	var K mat.Dense
	K.Mul(&PHt, &SInv)

	resPhi := deltaAngle(s.Phi, predPhi)
	resZ := s.Z - predZ
	res := mat.NewVecDense(2, []float64{resPhi, resZ})

	var correction mat.VecDense
	correction.MulVec(&K, res)
	newX := mat.NewVecDense(nPar, nil)
	newX.AddVec(x, &correction)

	id := mat.NewDiagDense(nPar, nil)
	for i := 0; i < nPar; i++ {
		id.SetDiag(i, 1)
	}
	var KH mat.Dense
	KH.Mul(&K, H)
	var ImKH mat.Dense
	ImKH.Sub(id, &KH)
	newP := mat.NewDense(nPar, nPar, nil)
	newP.Mul(&ImKH, p)

	var tmp mat.VecDense
	tmp.MulVec(&SInv, res)
	chi2 := resPhi*tmp.AtVec(0) + resZ*tmp.AtVec(1)

	return newX, newP, chi2
}

func (f *kalmanFitter) Fit(cand *track.Track3D, cfg *config.Settings, sec *sector.Sector) *track.FittedTrack {
	nPar := f.numParams
	layers := groupByLayer(cand.Stubs, cfg)

	arena := []kalmanNode{f.seedState(cand, cfg, sec)}
	alive := []int{0}

	for _, lg := range layers {
		var next []int
		for _, idx := range alive {
			node := arena[idx]
			if node.numVirtualStubs >= cfg.MaxNumVirtualStubs && node.numStubLayers >= cfg.MinLayers {
				next = append(next, idx)
				continue
			}
			pPred := propagateCovariance(node.p, cfg.MultiScatterFactor)

			numNext := 0
			for _, s := range lg.stubs {
				if numNext >= cfg.MaxNumNextStubs {
					break
				}
				pass, predPhi, predZ, H, R, S := validationGate(node.x, pPred, s, cfg, nPar, sec.PhiCentre)
				if !pass {
					continue
				}
				newX, newP, addChi2 := kalmanUpdate(node.x, pPred, s, cfg, nPar, predPhi, predZ, H, R, S)
				child := kalmanNode{
					x: newX, p: newP, parent: idx,
					stubs:           append(append([]*stub.Stub(nil), node.stubs...), s),
					numStubLayers:   node.numStubLayers + 1,
					numVirtualStubs: node.numVirtualStubs,
					chi2:            node.chi2 + addChi2,
				}
				arena = append(arena, child)
				next = append(next, len(arena)-1)
				numNext++
			}

			if node.numVirtualStubs < cfg.MaxNumVirtualStubs {
				vchild := kalmanNode{
					x: node.x, p: pPred, parent: idx,
					stubs:           node.stubs,
					numStubLayers:   node.numStubLayers,
					numVirtualStubs: node.numVirtualStubs + 1,
					chi2:            node.chi2,
				}
				arena = append(arena, vchild)
				next = append(next, len(arena)-1)
			}
		}

		if cfg.MaxNumStatesCut > 0 && len(next) > cfg.MaxNumStatesCut {
			sort.Slice(next, func(a, b int) bool {
				na, nb := arena[next[a]], arena[next[b]]
				if na.numStubLayers != nb.numStubLayers {
					return na.numStubLayers > nb.numStubLayers
				}
				return na.chi2 < nb.chi2
			})
			next = next[:cfg.MaxNumStatesCut]
		}
		alive = next
	}

	best := -1
	for _, idx := range alive {
		n := arena[idx]
		if n.numStubLayers < cfg.MinLayers {
			continue
		}
		if best < 0 {
			best = idx
			continue
		}
		b := arena[best]
		if n.numStubLayers > b.numStubLayers ||
			(n.numStubLayers == b.numStubLayers && reducedChi2(n) < reducedChi2(b)) {
			best = idx
		}
	}

	if best < 0 {
		return &track.FittedTrack{Parent: cand, FitterName: f.Name(), NumParams: nPar, Accepted: false}
	}
	node := arena[best]

	qOverPt := 0.0
	if cfg.InvPtToR != 0 {
		qOverPt = 2 * node.x.AtVec(0) / cfg.InvPtToR
	}
	phi0 := node.x.AtVec(1) + sec.PhiCentre
	z0 := node.x.AtVec(2)
	tanLambda := node.x.AtVec(3)
	d0 := 0.0
	if nPar == 5 {
		d0 = node.x.AtVec(4)
	}

	out := &track.FittedTrack{
		Parent: cand, Stubs: node.stubs,
		QOverPt: qOverPt, Phi0: phi0, Z0: z0, TanLambda: tanLambda, D0: d0,
		Chi2: node.chi2, NumParams: nPar, FitterName: f.Name(),
		IPhiSec: cand.IPhiSec, IEtaReg: cand.IEtaReg,
		Accepted: stateGood(node, cfg),
	}
	return out
}

// reducedChi2 is chi2 / NDOF for a candidate state, guarding the
// zero/negative-dof case.
func reducedChi2(n kalmanNode) float64 {
	dof := 2*n.numStubLayers - 4
	if dof <= 0 {
		return math.Inf(1)
	}
	return n.chi2 / float64(dof)
}

// stateGood is the "good state" predicate of spec §4.7.3 ("State
// selection"): |z0| <= 20cm and, for >= 3 stubs, reduced chi2 <= the
// configured cut (grounded on original_source kalmanState.cc's
// reducedChi2Cut, per SF.4; kept local to the Kalman fitter rather than
// a shared track.KalmanState type since it is specific to this fitter's
// internal state, not a property every track candidate exposes).
func stateGood(n kalmanNode, cfg *config.Settings) bool {
	if n.numStubLayers < cfg.MinLayers {
		return false
	}
	z0 := n.x.AtVec(2)
	if math.Abs(z0) > 20 {
		return false
	}
	if len(n.stubs) >= 3 && reducedChi2(n) > cfg.ReducedChi2Cut {
		return false
	}
	return true
}
