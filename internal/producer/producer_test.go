package producer

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jkastelic/tmtracktrigger/internal/config"
	"github.com/jkastelic/tmtracktrigger/internal/testutil"
)

// TestProcessEvent_StraightTrack exercises spec §8 scenario S1 end to
// end through the full A->J pipeline (sectorize -> HT -> r-z filter ->
// 3-D assembly -> dedup -> fit): a straight (q/p_T ~ 0) barrel track at
// phi=0.1, tanLambda=0.5 should survive sectorization, fill a single HT
// cell, and come out the far end as one accepted fitted track with
// small chi2/dof.
func TestProcessEvent_StraightTrack(t *testing.T) {
	cfg := config.NewDefaultSettings()
	require.NoError(t, cfg.SetMagneticField(3.8))

	stubs := testutil.StraightStubs(0.1, 0.5)

	p := New(cfg)
	result := p.ProcessEvent(stubs)

	require.NotEmpty(t, result.FittedTracks, "expected at least one fitted track for a clean straight-track fixture")

	found := false
	for _, ft := range result.FittedTracks {
		if ft.Accepted && len(ft.Stubs) >= cfg.MinLayers {
			found = true
			require.InDelta(t, 0.0, ft.QOverPt, 0.05)
			require.InDelta(t, 0.5, ft.TanLambda, 0.05)
			require.Less(t, ft.Chi2/float64(ft.NumDOF()), 1.0)
		}
	}
	require.True(t, found, "expected a fully accepted track with >= MinLayers stubs")
}

// TestProcessEvent_EmptyEventProducesNoTracks guards against a fitter or
// dedup path that panics or fabricates tracks from an empty stub vector.
func TestProcessEvent_EmptyEventProducesNoTracks(t *testing.T) {
	cfg := config.NewDefaultSettings()
	require.NoError(t, cfg.SetMagneticField(3.8))

	p := New(cfg)
	result := p.ProcessEvent(nil)

	require.Empty(t, result.FittedTracks)
	require.NotNil(t, result.Counters)
}
