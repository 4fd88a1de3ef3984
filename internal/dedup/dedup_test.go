package dedup

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jkastelic/tmtracktrigger/internal/config"
	"github.com/jkastelic/tmtracktrigger/internal/stub"
	"github.com/jkastelic/tmtracktrigger/internal/track"
)

func makeStub(index, layer int) *stub.Stub {
	return &stub.Stub{Index: index, LayerID: layer, R: float64(20 + 10*layer), Z: float64(layer)}
}

func sixStubs() []*stub.Stub {
	stubs := make([]*stub.Stub, 6)
	for i := range stubs {
		stubs[i] = makeStub(i, i+1)
	}
	return stubs
}

func reversed(stubs []*stub.Stub) []*stub.Stub {
	out := make([]*stub.Stub, len(stubs))
	for i, s := range stubs {
		out[len(stubs)-1-i] = s
	}
	return out
}

// TestKillDupTrks_S3_DuplicateAcrossAdjacentCells exercises spec §8
// scenario S3: the same stub list is produced by two adjacent
// (i_qpT, i_phiT) HT cells. Alg 10 (adjacent-cell kill) must reduce the
// pair to a single track; alg 2 (identity-set, order-sensitive per
// original_source's "assumes they are ordered!") must not, since the
// two cells built their stub lists in different order.
func TestKillDupTrks_S3_DuplicateAcrossAdjacentCells(t *testing.T) {
	cfg := config.NewDefaultSettings()
	stubs := sixStubs()

	a := &track.Track3D{Stubs: stubs, CellIQoverPt: 16, CellIPhiT: 32}
	b := &track.Track3D{Stubs: reversed(stubs), CellIQoverPt: 17, CellIPhiT: 32}

	kept10 := FilterTrack3D(cfg, 10, []*track.Track3D{a, b})
	require.Len(t, kept10, 1, "alg 10 should collapse the adjacent-cell duplicate")

	kept2 := FilterTrack3D(cfg, 2, []*track.Track3D{a, b})
	require.Len(t, kept2, 2, "alg 2 only catches duplicates with matching stub order")
}

// TestKillDupTrks_IdentitySet_ExactOrderMatch confirms alg 2 does
// collapse true order-for-order duplicates (the case it is documented
// to handle).
func TestKillDupTrks_IdentitySet_ExactOrderMatch(t *testing.T) {
	cfg := config.NewDefaultSettings()
	stubs := sixStubs()

	a := &track.Track3D{Stubs: stubs, CellIQoverPt: 16, CellIPhiT: 32}
	b := &track.Track3D{Stubs: append([]*stub.Stub(nil), stubs...), CellIQoverPt: 20, CellIPhiT: 40}

	kept := FilterTrack3D(cfg, 2, []*track.Track3D{a, b})
	require.Len(t, kept, 1)
}

func trackPool() []*track.Track3D {
	s := sixStubs()
	return []*track.Track3D{
		{Stubs: s[0:5], CellIQoverPt: 10, CellIPhiT: 10, QOverPt: 0.10, Phi0: 0.10, Z0: 0, TanLambda: 0.5},
		{Stubs: s[1:6], CellIQoverPt: 11, CellIPhiT: 10, QOverPt: 0.11, Phi0: 0.10, Z0: 0, TanLambda: 0.5},
		{Stubs: s[0:4], CellIQoverPt: 30, CellIPhiT: 30, QOverPt: -0.20, Phi0: -0.3, Z0: 5, TanLambda: -0.2},
		{Stubs: s[2:6], CellIQoverPt: 31, CellIPhiT: 31, QOverPt: -0.21, Phi0: -0.3, Z0: 5, TanLambda: -0.2},
		{Stubs: s[0:6], CellIQoverPt: 5, CellIPhiT: 5, QOverPt: 0.0, Phi0: 0.0, Z0: 0, TanLambda: 0.0},
	}
}

func containsPointer(tracks []*track.Track3D, t *track.Track3D) bool {
	for _, c := range tracks {
		if c == t {
			return true
		}
	}
	return false
}

// mergingTrack3DAlgIDs are the ids whose contract is "output cardinality
// <= input cardinality" rather than strict pointer-subset (spec §8
// property 9): ids 13, 14 and 17 all merge via Track3D.Merge.
var mergingTrack3DAlgIDs = map[int]bool{13: true, 14: true, 17: true}

// TestKillDupTrks_Monotonicity checks spec §8 property 9 ("the output
// track set is a subset of the input track set, except for merging
// algorithms, where output cardinality <= input cardinality") for every
// registered 3-D duplicate-removal algorithm.
func TestKillDupTrks_Monotonicity(t *testing.T) {
	cfg := config.NewDefaultSettings()
	for _, id := range []int{1, 2, 3, 7, 10, 11, 12, 13, 14, 17, 100} {
		t.Run(algName(id), func(t *testing.T) {
			require.True(t, KnownTrack3DAlgID(id))
			pool := trackPool()
			out := FilterTrack3D(cfg, id, pool)

			require.LessOrEqual(t, len(out), len(pool))
			if mergingTrack3DAlgIDs[id] {
				return
			}
			for _, o := range out {
				require.True(t, containsPointer(pool, o), "non-merging alg %d must only emit input tracks", id)
			}
		})
	}
}

func algName(id int) string {
	switch id {
	case 1:
		return "noop"
	case 2:
		return "identity-set"
	case 3:
		return "independent-stubs"
	case 7:
		return "cell-quality"
	case 10:
		return "adjacent-kill-qpt"
	case 11:
		return "adjacent-kill-qpt-samecount"
	case 12:
		return "adjacent-kill-xy"
	case 13:
		return "adjacent-merge-xy"
	case 14:
		return "adjacent-merge-all"
	case 17:
		return "helix-window-merge"
	case 100:
		return "hash-identity"
	default:
		return "unknown"
	}
}

func fittedTrackPool() []*track.FittedTrack {
	parentA := &track.Track3D{CellIQoverPt: 1, CellIPhiT: 1}
	parentB := &track.Track3D{CellIQoverPt: 1, CellIPhiT: 1}
	return []*track.FittedTrack{
		{Parent: parentA, QOverPt: 0.1, Phi0: 0.1, Z0: 0, TanLambda: 0.5, Chi2: 2.0, NumParams: 4},
		{Parent: parentB, QOverPt: 0.101, Phi0: 0.1, Z0: 0, TanLambda: 0.5, Chi2: 5.0, NumParams: 4},
		{Parent: nil, QOverPt: -0.3, Phi0: -0.2, Z0: 10, TanLambda: -0.1, Chi2: 1.0, NumParams: 4},
	}
}

func containsFittedPointer(tracks []*track.FittedTrack, t *track.FittedTrack) bool {
	for _, c := range tracks {
		if c == t {
			return true
		}
	}
	return false
}

// TestKillDupFitTrks_Monotonicity is the fitted-track analogue of
// TestKillDupTrks_Monotonicity, covering ids 20 and 50.
func TestKillDupFitTrks_Monotonicity(t *testing.T) {
	cfg := config.NewDefaultSettings()
	cfg.DupScanWindow = 1.0

	for _, id := range []int{20, 50} {
		t.Run(algName(id), func(t *testing.T) {
			require.True(t, KnownFitTrackAlgID(id))
			pool := fittedTrackPool()
			binIndex := func(qOverPt, phi0 float64) (int, int) { return 1, 1 }
			out := FilterFittedTrack(cfg, id, pool, binIndex)

			require.LessOrEqual(t, len(out), len(pool))
			for _, o := range out {
				require.True(t, containsFittedPointer(pool, o), "alg %d must only emit input tracks", id)
			}
		})
	}
}

// TestAlgPostFitCellConsistency_NilBinIndexDoesNotTriviallyAccept
// guards against the alg-50 no-op regression: with no real cell mapping
// available, a track can only survive via the "sole occupant of its
// cell" rescue rule, not via a trivially-true consistency check.
func TestAlgPostFitCellConsistency_NilBinIndexDoesNotTriviallyAccept(t *testing.T) {
	cfg := config.NewDefaultSettings()
	parent := &track.Track3D{CellIQoverPt: 2, CellIPhiT: 2}
	other := &track.Track3D{CellIQoverPt: 2, CellIPhiT: 2}
	tracks := []*track.FittedTrack{
		{Parent: parent, QOverPt: 0.1, Phi0: 0.1},
		{Parent: other, QOverPt: 0.1, Phi0: 0.1},
	}

	out := FilterFittedTrack(cfg, 50, tracks, nil)
	require.Empty(t, out, "two tracks sharing a cell with no binIndex must not both be rescued")
}

// TestAlgPostFitCellConsistency_RealBinIndexAcceptsConsistentTrack
// checks the fixed behaviour: a track whose fitted helix maps back to
// its parent's HT cell via a real binIndex is kept.
func TestAlgPostFitCellConsistency_RealBinIndexAcceptsConsistentTrack(t *testing.T) {
	cfg := config.NewDefaultSettings()
	parent := &track.Track3D{CellIQoverPt: 4, CellIPhiT: 7}
	tracks := []*track.FittedTrack{
		{Parent: parent, QOverPt: 0.05, Phi0: 0.2},
	}
	binIndex := func(qOverPt, phi0 float64) (int, int) { return 4, 7 }

	out := FilterFittedTrack(cfg, 50, tracks, binIndex)
	require.Len(t, out, 1)
}
