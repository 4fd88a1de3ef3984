package htrphi

import (
	"testing"

	"github.com/jkastelic/tmtracktrigger/internal/config"
	"github.com/jkastelic/tmtracktrigger/internal/monitoring"
	"github.com/jkastelic/tmtracktrigger/internal/sector"
	"github.com/jkastelic/tmtracktrigger/internal/stub"
	"github.com/jkastelic/tmtracktrigger/internal/testutil"
	"github.com/jkastelic/tmtracktrigger/internal/track"
	"github.com/stretchr/testify/require"
)

func testArray(t *testing.T) (*Array, *config.Settings) {
	t.Helper()
	cfg := config.NewDefaultSettings()
	require.NoError(t, cfg.SetMagneticField(3.8))
	sec := sector.New(0, len(cfg.EtaRegionEdges)/2-1, cfg)
	counters := monitoring.NewFirmwareCounters()
	return NewArray(sec, cfg, counters), cfg
}

func TestNewArray_Dimensions(t *testing.T) {
	a, cfg := testArray(t)
	require.Len(t, a.cells, cfg.NumBinsQoverPt)
	require.Len(t, a.cells[0], cfg.NumBinsPhiT)
}

func TestStore_FillsNeighbouringColumns(t *testing.T) {
	a, _ := testArray(t)
	s := &stub.Stub{R: a.sec.RefRadiusPhi, Phi: a.sec.PhiCentre, Barrel: true}
	a.Store(s)

	filled := 0
	for i := range a.cells {
		for _, c := range a.cells[i] {
			filled += len(c.Raw)
		}
	}
	require.Greater(t, filled, 0)
}

func TestEnd_EmitsHighestPtFirst(t *testing.T) {
	a, cfg := testArray(t)
	cfg.MinLayers = 1
	cfg.BendFilterEnabled = false
	cfg.BusySectorMax = 0
	cfg.Merge2x2Enabled = false

	for _, iq := range []int{cfg.NumBinsQoverPt / 2, cfg.NumBinsQoverPt/2 + 5} {
		c := a.cells[iq][cfg.NumBinsPhiT/2]
		c.Add(&stub.Stub{Index: iq, LayerID: 1}, nil)
	}

	tracks := a.End()
	require.GreaterOrEqual(t, len(tracks), 2)
	for i := 1; i < len(tracks); i++ {
		require.LessOrEqual(t, abs(tracks[i-1].QOverPt), abs(tracks[i].QOverPt))
	}
}

func TestThrottleBusySector_DropsTailFirst(t *testing.T) {
	candidates := make([]*track.Track2D, 3)
	for i := range candidates {
		candidates[i] = &track.Track2D{
			QOverPt: float64(i+1) * 0.01,
			Stubs:   make([]*stub.Stub, 2),
		}
	}
	out := throttleOne(candidates, 3)
	total := 0
	for _, c := range out {
		total += len(c.Stubs)
	}
	require.LessOrEqual(t, total, 3)
	require.Less(t, len(out), len(candidates))
}

func TestCellIndex_RoundTrip(t *testing.T) {
	a, cfg := testArray(t)
	qpt := 0.1
	phi0 := a.sec.PhiCentre
	iq, ip := a.CellIndex(qpt, phi0)
	require.GreaterOrEqual(t, iq, 0)
	require.Less(t, iq, cfg.NumBinsQoverPt)
	require.GreaterOrEqual(t, ip, 0)
	require.Less(t, ip, cfg.NumBinsPhiT)
}

// TestStore_BentTrack_S2 exercises spec §8 scenario S2: a track bent by
// a non-zero q/p_T should still produce an HT candidate whose bin centre
// is within one q/p_T bin-width of the true value.
func TestStore_BentTrack_S2(t *testing.T) {
	a, cfg := testArray(t)
	cfg.MinLayers = 1
	cfg.BendFilterEnabled = false
	cfg.Merge2x2Enabled = false

	qOverPt := 0.2
	stubs := testutil.BentStubs(a.sec.PhiCentre, 0.5, cfg.InvPtToDphi, qOverPt)
	for _, s := range stubs {
		a.Store(s)
	}

	tracks := a.End()
	require.NotEmpty(t, tracks, "expected at least one HT candidate for the bent track")

	binWidth := 2 * a.maxInvPt / float64(cfg.NumBinsQoverPt)
	found := false
	for _, tr := range tracks {
		if abs(tr.QOverPt-qOverPt) <= binWidth {
			found = true
			break
		}
	}
	require.True(t, found, "expected a candidate within one bin of the true q/p_T %.3f", qOverPt)
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}
