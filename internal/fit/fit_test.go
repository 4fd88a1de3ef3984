package fit

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/require"

	"github.com/jkastelic/tmtracktrigger/internal/config"
	"github.com/jkastelic/tmtracktrigger/internal/sector"
	"github.com/jkastelic/tmtracktrigger/internal/testutil"
	"github.com/jkastelic/tmtracktrigger/internal/track"
)

// helixFields is the set of FittedTrack fields spec §8 property 8
// ("given the same 3-D candidate and the same configuration, a fitter
// returns bitwise-identical helix parameters") cares about; Parent and
// Stubs are deliberately excluded since comparing by pointer identity
// would defeat the point of a value comparison.
func helixFields() cmp.Option {
	return cmpopts.IgnoreFields(track.FittedTrack{}, "Parent", "Stubs")
}

func candidateAndSector(t *testing.T) (*track.Track3D, *config.Settings, *sector.Sector) {
	t.Helper()
	cfg := config.NewDefaultSettings()
	require.NoError(t, cfg.SetMagneticField(3.8))

	stubs := testutil.StraightStubs(0.1, 0.5)
	sec := sector.New(4, 3, cfg)

	cand := &track.Track3D{
		Stubs:     stubs,
		QOverPt:   0,
		Phi0:      0.1,
		Z0:        0,
		TanLambda: 0.5,
		IPhiSec:   sec.IPhi,
		IEtaReg:   sec.IEta,
	}
	return cand, cfg, sec
}

// TestFitters_BitwiseIdenticalOnRepeat exercises spec §8 property 8 for
// every registered fitter: re-fitting the same candidate under the same
// configuration must reproduce the exact same helix parameters and chi2,
// not merely "close" ones.
func TestFitters_BitwiseIdenticalOnRepeat(t *testing.T) {
	for _, name := range []string{"LinearRegression", "ChiSquaredTracklet", "KF4ParamsComb", "KF5ParamsComb", "KF4ParamsCombV2"} {
		t.Run(name, func(t *testing.T) {
			f := Lookup(name)
			require.NotNil(t, f, "fitter %q must be registered", name)

			cand, cfg, sec := candidateAndSector(t)
			first := f.Fit(cand, cfg, sec)

			cand2, _, _ := candidateAndSector(t)
			second := f.Fit(cand2, cfg, sec)

			if diff := cmp.Diff(first, second, helixFields()); diff != "" {
				t.Errorf("%s: repeat fit differs (-first +second):\n%s", name, diff)
			}
		})
	}
}

// TestFitAll_DispatchesEveryConfiguredFitter checks the registry-driven
// fan-out spec SF.4 describes: FitAll must produce exactly one
// FittedTrack per name in cfg.FitterNames.
func TestFitAll_DispatchesEveryConfiguredFitter(t *testing.T) {
	cand, cfg, sec := candidateAndSector(t)
	cfg.FitterNames = []string{"LinearRegression", "KF4ParamsComb"}

	out := FitAll(cand, cfg, sec)
	require.Len(t, out, 2)

	names := map[string]bool{}
	for _, ft := range out {
		names[ft.FitterName] = true
	}
	require.True(t, names["LinearRegression"])
	require.True(t, names["KF4ParamsComb"])
}
