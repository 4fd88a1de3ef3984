// Package fit owns Layer 5 (component J) of the track-trigger core: the
// fitter family of spec §4.7, dispatched through a name-keyed registry
// exactly as the tagged-variant design note of spec §9 asks for ("a
// runtime registry keyed by name selects the implementation").
//
// Dependency rule: L5 may depend on internal/track, internal/sector,
// internal/config and internal/stub, never on internal/producer.
package fit

import (
	"github.com/jkastelic/tmtracktrigger/internal/config"
	"github.com/jkastelic/tmtracktrigger/internal/sector"
	"github.com/jkastelic/tmtracktrigger/internal/track"
)

// Fitter is the contract every fitter implementation shares (spec §4.7:
// "fit(L1track3D, iPhiSec, iEtaReg) -> L1fittedTrack").
type Fitter interface {
	Name() string
	Fit(cand *track.Track3D, cfg *config.Settings, sec *sector.Sector) *track.FittedTrack
}

var registry = map[string]Fitter{}

// Register adds f to the registry and marks its name as a valid
// Settings.FitterNames entry, breaking the config<->fit import cycle via
// config.RegisterFitterName.
func Register(f Fitter) {
	registry[f.Name()] = f
	config.RegisterFitterName(f.Name())
}

func init() {
	Register(&LinearRegression{})
	Register(&ChiSquaredTracklet{numParams: 4, name: "ChiSquaredTracklet"})
	Register(newKalman("KF4ParamsComb", 4, paramV1))
	Register(newKalman("KF5ParamsComb", 5, paramV1))
	Register(newKalman("KF4ParamsCombV2", 4, paramV2))
}

// Lookup returns the registered fitter for name, or nil if unknown.
func Lookup(name string) Fitter {
	return registry[name]
}

// FitAll runs every fitter named in cfg.FitterNames against cand (spec
// SF.4: "the producer fits with every configured name per track
// candidate... the original runs several fitters side by side for
// comparison studies; this is preserved"). Unknown names are skipped
// silently since Settings.Validate already rejects them at config load.
func FitAll(cand *track.Track3D, cfg *config.Settings, sec *sector.Sector) []*track.FittedTrack {
	out := make([]*track.FittedTrack, 0, len(cfg.FitterNames))
	for _, name := range cfg.FitterNames {
		f := Lookup(name)
		if f == nil {
			continue
		}
		out = append(out, f.Fit(cand, cfg, sec))
	}
	return out
}

// layerGroups buckets cand's stubs by reduced (or raw) layer id and
// reports the PS-layer count, used by both the linear-regression and
// chi-square validity gates (spec §4.7.1 step 1-2).
func layerGroups(cand *track.Track3D, cfg *config.Settings) (numLayers, numPSLayers int) {
	seen := map[int]bool{}
	psSeen := map[int]bool{}
	for _, s := range cand.Stubs {
		key := s.LayerID
		if cfg.ReducedLayerID {
			key = s.ReducedLayerID()
		}
		seen[key] = true
		if s.IsPS {
			psSeen[key] = true
		}
	}
	return len(seen), len(psSeen)
}

// maxResidualIndex returns the index of the stub with the largest
// |residual| in residuals, used by every fitter's kill rule.
func maxResidualIndex(residuals []float64) int {
	idx, maxAbs := -1, -1.0
	for i, r := range residuals {
		a := r
		if a < 0 {
			a = -a
		}
		if a > maxAbs {
			maxAbs, idx = a, i
		}
	}
	return idx
}

// removeIndex returns a new slice with the element at i removed,
// preserving order.
func removeIndex[T any](s []T, i int) []T {
	out := make([]T, 0, len(s)-1)
	out = append(out, s[:i]...)
	out = append(out, s[i+1:]...)
	return out
}

