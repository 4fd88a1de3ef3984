package rz

import (
	"math"
	"sort"

	"github.com/jkastelic/tmtracktrigger/internal/config"
	"github.com/jkastelic/tmtracktrigger/internal/stub"
)

// seedLayers is the innermost layer set the seed and zTrk filters draw
// candidate pairs from (spec §4.4: "layer in {1,2,3,11,12,13,21,22,23},
// PS module").
var seedLayers = map[int]bool{
	1: true, 2: true, 3: true,
	11: true, 12: true, 13: true,
	21: true, 22: true, 23: true,
}

const (
	etaNumBins = 64
	etaMin     = -3.1
	etaMax     = 3.1
	ztrkNumZ0  = 100 // beam-window integration samples (spec §4.4)
)

// Estimate is the optional (z0, tanLambda) hint a filter stage may
// publish for a track candidate (spec §3 L1track2D "optional (z0, tan
// lambda) hint").
type Estimate struct {
	Valid     bool
	Z0        float64
	TanLambda float64
}

// SeedCounters records the per-track seed-combination diagnostics spec
// §4.4 requires ("the seed-combination counters (total and good) are
// recorded per track for diagnostics").
type SeedCounters struct {
	NumZtrkSeedCombs int
	NumSeedCombs     int
	NumGoodSeedCombs int
}

// Filter runs the three composable r-z filter stages of spec §4.4 on one
// sector's worth of r-phi 2-D candidates. It is constructed once per
// sector by HTpair.
type Filter struct {
	cfg *config.Settings

	etaMinSector, etaMaxSector float64
	zTrkMinSector, zTrkMaxSector float64
	phiCentreSector            float64
	refRadiusZ                 float64
	beamHalfLength             float64
}

// New constructs a Filter for one sector.
func New(cfg *config.Settings, etaMinSector, etaMaxSector, phiCentreSector, refRadiusZ float64) *Filter {
	return &Filter{
		cfg: cfg,
		etaMinSector: etaMinSector, etaMaxSector: etaMaxSector,
		zTrkMinSector: refRadiusZ * math.Sinh(etaMinSector),
		zTrkMaxSector: refRadiusZ * math.Sinh(etaMaxSector),
		phiCentreSector: phiCentreSector,
		refRadiusZ:      refRadiusZ,
		beamHalfLength:  cfg.BeamHalfLength,
	}
}

// Apply runs whichever stages are enabled in cfg over stubs, in the
// order eta -> zTrk -> seed (spec §4.4: "Three independent, composable
// stages"). It returns the surviving stubs, the published estimate (only
// ever set by the seed filter, and only when a single seed is chosen),
// and the seed-combination diagnostics.
func (f *Filter) Apply(stubs []*stub.Stub, qOverPt float64) ([]*stub.Stub, Estimate, SeedCounters) {
	out := stubs
	var est Estimate
	var counters SeedCounters

	if f.cfg.UseEtaFilter {
		out = f.etaFilter(out)
	}
	if f.cfg.UseZTrkFilter {
		filtered, nCombs := f.zTrkFilter(out, qOverPt)
		counters.NumZtrkSeedCombs = nCombs
		out = filtered
	}
	if f.cfg.UseSeedFilter {
		filtered, e, nCombs, nGood := f.seedFilter(out, qOverPt)
		counters.NumSeedCombs = nCombs
		counters.NumGoodSeedCombs = nGood
		out = filtered
		est = e
	}
	return out, est, counters
}

// etaFilter histograms stub eta into fixed bins, takes the mode, and
// keeps stubs within a rapidity-dependent tolerance (spec §4.4 "eta
// filter": 0.35 - 0.0775|eta|; spec §9 Open Question notes the binning
// and tolerance are geometry-tuned).
func (f *Filter) etaFilter(stubs []*stub.Stub) []*stub.Stub {
	if len(stubs) == 0 {
		return stubs
	}
	binWidth := (etaMax - etaMin) / etaNumBins
	counts := make(map[int]int)
	etaOf := make([]float64, len(stubs))
	for i, s := range stubs {
		eta := stubEta(s)
		etaOf[i] = eta
		bin := int((eta - etaMin) / binWidth)
		if bin < 0 {
			bin = 0
		}
		if bin >= etaNumBins {
			bin = etaNumBins - 1
		}
		counts[bin]++
	}
	modeBin, modeCount := 0, -1
	for b, c := range counts {
		if c > modeCount || (c == modeCount && b < modeBin) {
			modeBin, modeCount = b, c
		}
	}
	modeEta := etaMin + (float64(modeBin)+0.5)*binWidth

	var out []*stub.Stub
	for i, s := range stubs {
		tol := 0.35 - 0.0775*math.Abs(modeEta)
		if tol < 0 {
			tol = 0
		}
		if math.Abs(etaOf[i]-modeEta) <= tol {
			out = append(out, s)
		}
	}
	return out
}

func stubEta(s *stub.Stub) float64 {
	if s.R == 0 {
		return 0
	}
	theta := math.Atan2(s.R, s.Z)
	return -math.Log(math.Tan(theta / 2))
}

// zTrkFilter computes, for each candidate seed stub in the innermost PS
// layer set, a correlation factor against every other stub using a
// beam-window integration over ztrkNumZ0 z0 samples, and retains stubs
// within the correlated zTrk resolution band of whichever seed has the
// most compatible layers (spec §4.4 "zTrk filter"). It returns the
// filtered stub list and the total number of seed combinations tried.
func (f *Filter) zTrkFilter(stubs []*stub.Stub, qOverPt float64) ([]*stub.Stub, int) {
	var seeds []*stub.Stub
	for _, s := range stubs {
		if s.IsPS && seedLayers[s.LayerID] {
			seeds = append(seeds, s)
		}
	}
	if len(seeds) == 0 {
		return stubs, 0
	}

	type candidate struct {
		stubs   []*stub.Stub
		layers  int
		meanRes float64
	}
	var best *candidate
	numCombs := 0

	for _, seed := range seeds {
		numCombs++
		band := f.ztrkResolutionBand(seed)

		var filtered []*stub.Stub
		sumRes := 0.0
		for _, s := range stubs {
			res := math.Abs(s.ZTrk(f.refRadiusZ) - seed.ZTrk(f.refRadiusZ))
			if res <= band {
				filtered = append(filtered, s)
				sumRes += res
			}
		}
		layers := countLayers(filtered, f.cfg)
		mean := 0.0
		if len(filtered) > 0 {
			mean = sumRes / float64(len(filtered))
		}
		cand := &candidate{stubs: filtered, layers: layers, meanRes: mean}
		if best == nil || cand.layers > best.layers ||
			(cand.layers == best.layers && cand.meanRes < best.meanRes) {
			best = cand
		}
	}
	if best == nil {
		return stubs, numCombs
	}
	return best.stubs, numCombs
}

// ztrkResolutionBand integrates the beam window [-W, +W] in ztrkNumZ0
// samples and returns the spread in zTrk(R_ref) the seed stub's
// measurement uncertainty implies across that range, approximating the
// firmware's beam-window-integrated correlation factor.
func (f *Filter) ztrkResolutionBand(seed *stub.Stub) float64 {
	if seed.R == 0 {
		return f.beamHalfLength
	}
	maxSpread := 0.0
	step := 2 * f.beamHalfLength / float64(ztrkNumZ0-1)
	for i := 0; i < ztrkNumZ0; i++ {
		z0 := -f.beamHalfLength + float64(i)*step
		tanLambda := (seed.Z - z0) / seed.R
		zref := z0 + tanLambda*f.refRadiusZ
		spread := math.Abs(zref - seed.ZTrk(f.refRadiusZ))
		if spread > maxSpread {
			maxSpread = spread
		}
	}
	return maxSpread + seed.ZErr
}

// seedFilter picks ordered pairs of PS seed stubs, extrapolates each
// pair to estimate (z0, tanLambda), requires |z0| <= W, optionally
// requires z at R_ref,z to lie in the sector, and for every other stub
// computes the signed distance from the seed line, retaining those
// within sigma_d + epsilon (spec §4.4 "seed filter"). It returns the
// surviving stubs, the published estimate (when a single seed is
// chosen), and the total/good seed-combination counts.
func (f *Filter) seedFilter(stubs []*stub.Stub, qOverPt float64) ([]*stub.Stub, Estimate, int, int) {
	var seeds []*stub.Stub
	for _, s := range stubs {
		if s.IsPS && seedLayers[s.LayerID] {
			seeds = append(seeds, s)
		}
	}
	sort.Slice(seeds, func(i, j int) bool { return seeds[i].R < seeds[j].R })

	type seedResult struct {
		stubs         []*stub.Stub
		layers        int
		meanResidual  float64
		z0, tanLambda float64
	}
	var results []seedResult
	numCombs, numGood := 0, 0
	maxCombs := f.cfg.MaxSeedCombinations
	if maxCombs <= 0 {
		maxCombs = len(seeds) * len(seeds)
	}

	for i := 0; i < len(seeds) && numCombs < maxCombs; i++ {
		for j := i + 1; j < len(seeds) && numCombs < maxCombs; j++ {
			numCombs++
			a, b := seeds[i], seeds[j]
			if a.R == b.R {
				continue
			}
			tanLambda := (b.Z - a.Z) / (b.R - a.R)
			z0 := a.Z - tanLambda*a.R

			z0Sigma := math.Hypot(a.ZErr, b.ZErr)
			if math.Abs(z0) > f.beamHalfLength+z0Sigma {
				continue
			}
			if f.cfg.ZTrkSectorCheck {
				zAtRef := z0 + tanLambda*f.refRadiusZ
				if zAtRef < f.zTrkMinSector || zAtRef > f.zTrkMaxSector {
					continue
				}
			}
			numGood++

			sigmaD := seedResidualSigma(a, b)
			eps := f.cfg.SeedResolutionEpsilon

			var filtered []*stub.Stub
			sumRes := 0.0
			for _, s := range stubs {
				d := signedLineDistance(a, b, s)
				if math.Abs(d) < sigmaD+eps {
					filtered = append(filtered, s)
					sumRes += math.Abs(d)
				}
			}
			mean := 0.0
			if len(filtered) > 0 {
				mean = sumRes / float64(len(filtered))
			}
			results = append(results, seedResult{
				stubs: filtered, layers: countLayers(filtered, f.cfg),
				meanResidual: mean, z0: z0, tanLambda: tanLambda,
			})
		}
	}

	if len(results) == 0 {
		return stubs, Estimate{}, numCombs, numGood
	}

	minLayers := f.cfg.MinLayers
	if math.Abs(qOverPt) > 1.0/f.cfg.RelaxedLayerPtThreshold {
		minLayers--
	}

	if f.cfg.KeepAllSeed {
		seen := map[int]bool{}
		var union []*stub.Stub
		for _, r := range results {
			if r.layers < minLayers {
				continue
			}
			for _, s := range r.stubs {
				if !seen[s.Index] {
					seen[s.Index] = true
					union = append(union, s)
				}
			}
		}
		if len(union) == 0 {
			return stubs, Estimate{}, numCombs, numGood
		}
		return union, Estimate{}, numCombs, numGood
	}

	best := results[0]
	for _, r := range results[1:] {
		if r.layers > best.layers || (r.layers == best.layers && r.meanResidual < best.meanResidual) {
			best = r
		}
	}
	est := Estimate{Valid: true, Z0: best.z0, TanLambda: best.tanLambda}
	return best.stubs, est, numCombs, numGood
}

// seedResidualSigma approximates sigma_d, the expected transverse
// scatter of the seed-pair line, from the two seeds' own z uncertainty
// propagated to the line's slope.
func seedResidualSigma(a, b *stub.Stub) float64 {
	if a.R == b.R {
		return math.Max(a.ZErr, b.ZErr)
	}
	return math.Hypot(a.ZErr, b.ZErr)
}

// signedLineDistance returns the signed distance, in z, between s and
// the straight line through seeds a and b in the (r,z) plane.
func signedLineDistance(a, b, s *stub.Stub) float64 {
	if b.R == a.R {
		return s.Z - a.Z
	}
	tanLambda := (b.Z - a.Z) / (b.R - a.R)
	z0 := a.Z - tanLambda*a.R
	predicted := z0 + tanLambda*s.R
	return s.Z - predicted
}
