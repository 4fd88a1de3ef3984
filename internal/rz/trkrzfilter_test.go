package rz

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jkastelic/tmtracktrigger/internal/config"
	"github.com/jkastelic/tmtracktrigger/internal/testutil"
)

// TestFilter_Apply_SeedFilterStubs_S6 exercises spec §8 scenario S6: 4 PS
// stubs on a z = r*0.3 line plus 2 off-line noise stubs. The eta filter
// should already isolate the PS line (the noise stubs sit on a much
// steeper z = r*0.9 line, outside the eta tolerance around the PS mode),
// and the seed filter should retain all 4 PS stubs — including the one
// at layer 4, which isn't itself a seed-pair candidate but lies on the
// winning seed line — and publish an estimate close to (z0=0,
// tanLambda=0.3).
func TestFilter_Apply_SeedFilterStubs_S6(t *testing.T) {
	cfg := config.NewDefaultSettings()
	require.NoError(t, cfg.SetMagneticField(3.8))

	f := New(cfg, -1.0, 1.0, 0.0, cfg.RefRadiusZ)

	stubs := testutil.SeedFilterStubs(0.0, 0.3, 0.9)
	require.Len(t, stubs, 6)

	out, est, counters := f.Apply(stubs, 0.0)

	require.Len(t, out, 4, "seed filter should retain exactly the 4 PS stubs")
	for _, s := range out {
		require.True(t, s.IsPS, "surviving stub %d should be one of the PS stubs", s.Index)
	}

	require.True(t, est.Valid)
	require.InDelta(t, 0.0, est.Z0, 1e-6)
	require.InDelta(t, 0.3, est.TanLambda, 1e-6)

	require.Greater(t, counters.NumSeedCombs, 0)
	require.Greater(t, counters.NumGoodSeedCombs, 0)
}

// TestFilter_Apply_EtaFilter_RejectsNoiseLine checks the eta-filter stage
// in isolation: with the seed and zTrk stages disabled, only the 4 PS
// stubs survive.
func TestFilter_Apply_EtaFilter_RejectsNoiseLine(t *testing.T) {
	cfg := config.NewDefaultSettings()
	require.NoError(t, cfg.SetMagneticField(3.8))
	cfg.UseSeedFilter = false

	f := New(cfg, -1.0, 1.0, 0.0, cfg.RefRadiusZ)

	stubs := testutil.SeedFilterStubs(0.0, 0.3, 0.9)
	out, est, _ := f.Apply(stubs, 0.0)

	require.Len(t, out, 4)
	for _, s := range out {
		require.True(t, s.IsPS)
	}
	require.False(t, est.Valid, "eta filter alone never publishes an estimate")
}
