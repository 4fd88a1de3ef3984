// Package dedup owns the duplicate-removal registries of spec §4.6
// (component I): KillDupTrks over L1track3D and KillDupFitTrks over
// L1fittedTrack, both keyed by the same integer algorithm ids (grounded
// on original_source KillDupTrks.h's one-template-class-per-track-type
// design, expressed in Go as two small registries sharing helper
// functions rather than generics over an interface, since the 3-D and
// fitted-track algorithms need different fields).
//
// Dependency rule: depends on internal/track and internal/config only.
package dedup

import (
	"sort"

	"github.com/jkastelic/tmtracktrigger/internal/config"
	"github.com/jkastelic/tmtracktrigger/internal/track"
)

// Track3DAlg is one duplicate-removal strategy over 3-D track
// candidates, keyed by the integer ids of spec §4.6 and SF.4.
type Track3DAlg func(cfg *config.Settings, tracks []*track.Track3D) []*track.Track3D

// FitTrackAlg is the fitted-track analogue, used by the two algorithms
// that only make sense post-fit (ids 20 and 50, spec §4.6/SF.4).
// binIndex is the caller's (q/p_T, phi0) -> HT cell mapping
// (internal/htrphi.Array.CellIndex), needed by id 50's cell-consistency
// check; algorithms that don't need it simply ignore the parameter.
type FitTrackAlg func(cfg *config.Settings, tracks []*track.FittedTrack, binIndex BinIndexFunc) []*track.FittedTrack

// BinIndexFunc maps a fitted (q/p_T, phi0) pair back to its HT cell
// index, mirroring internal/htrphi.Array.CellIndex without dedup having
// to import htrphi (dedup depends only on internal/track and
// internal/config).
type BinIndexFunc func(qOverPt, phi0 float64) (int, int)

var track3DRegistry = map[int]Track3DAlg{
	1:   algNoOp,
	2:   algIdentitySet,
	3:   algIndependentStubs,
	7:   algCellQuality,
	10:  algAdjacentCellKill,
	11:  algAdjacentCellKillSameCount,
	12:  algAdjacentCellKillX,
	13:  algAdjacentCellMergeX,
	14:  algAdjacentCellMergeAll,
	17:  algHelixWindowMerge,
	100: algHashIdentity,
}

var fitTrackRegistry = map[int]FitTrackAlg{
	20: algFitHelixWindowMerge,
	50: algPostFitCellConsistency,
}

func init() {
	config.RegisterDedupAlgIDCheckers(KnownTrack3DAlgID, KnownFitTrackAlgID)
}

// FilterTrack3D eliminates duplicates from tracks using the algorithm
// registered under id (spec §4.6). An unknown id is a configuration
// error, caught at Settings.Validate time for the ids actually
// referenced by AlgRphi/AlgRz/AlgRzSeg; FilterTrack3D itself falls back
// to the no-op algorithm for safety if called with an unregistered id.
func FilterTrack3D(cfg *config.Settings, id int, tracks []*track.Track3D) []*track.Track3D {
	alg, ok := track3DRegistry[id]
	if !ok {
		return tracks
	}
	return alg(cfg, tracks)
}

// FilterFittedTrack eliminates duplicates from fitted tracks using the
// algorithm registered under id. binIndex is forwarded to whichever
// algorithm needs it (id 50's cell-consistency check); callers that
// never select id 50 may pass nil.
func FilterFittedTrack(cfg *config.Settings, id int, tracks []*track.FittedTrack, binIndex BinIndexFunc) []*track.FittedTrack {
	alg, ok := fitTrackRegistry[id]
	if !ok {
		return tracks
	}
	return alg(cfg, tracks, binIndex)
}

// KnownTrack3DAlgID reports whether id names a registered 3-D algorithm,
// used by config.Settings.Validate.
func KnownTrack3DAlgID(id int) bool {
	_, ok := track3DRegistry[id]
	return ok
}

// KnownFitTrackAlgID reports whether id names a registered fitted-track
// algorithm.
func KnownFitTrackAlgID(id int) bool {
	_, ok := fitTrackRegistry[id]
	return ok
}

// algNoOp is id 1 (SF.4): keep everything, used as an A/B baseline.
func algNoOp(_ *config.Settings, tracks []*track.Track3D) []*track.Track3D {
	return tracks
}

// stubSetKey builds an order-sensitive fingerprint of stubIndices. It
// deliberately does NOT sort: algIdentitySet (id 2) is documented in
// original_source KillDupTrks.h as "Based on Stub index() -- assumes
// they are ordered!", i.e. it only catches duplicates whose stub lists
// were built in the same order, unlike the hash-based id 100
// (fnvHash16) which canonicalises order on purpose.
func stubSetKey(stubIndices []int) string {
	b := make([]byte, 0, len(stubIndices)*5)
	for _, i := range stubIndices {
		b = append(b, byte(i>>24), byte(i>>16), byte(i>>8), byte(i), ',')
	}
	return string(b)
}

func indices(t *track.Track3D) []int {
	out := make([]int, len(t.Stubs))
	for i, s := range t.Stubs {
		out[i] = s.Index
	}
	return out
}

// algIdentitySet is id 2 (spec §4.6): drop exact stub-set duplicates,
// assuming ordered stub indices (original_source KillDupTrks.h
// filterAlg2: "Based on Stub index() -- assumes they are ordered!").
func algIdentitySet(_ *config.Settings, tracks []*track.Track3D) []*track.Track3D {
	seen := map[string]bool{}
	var out []*track.Track3D
	for _, t := range tracks {
		key := stubSetKey(indices(t))
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, t)
	}
	return out
}

func commonStubCount(a, b *track.Track3D) int {
	seen := map[int]bool{}
	for _, s := range a.Stubs {
		seen[s.Index] = true
	}
	n := 0
	for _, s := range b.Stubs {
		if seen[s.Index] {
			n++
		}
	}
	return n
}

// algIndependentStubs is id 3: keep only candidates with >= N unique
// stubs relative to every other surviving candidate (spec §4.6
// "Independent-stubs").
func algIndependentStubs(cfg *config.Settings, tracks []*track.Track3D) []*track.Track3D {
	minIndep := cfg.MinIndependentStubs
	var kept []*track.Track3D
	for _, t := range tracks {
		ok := true
		for _, k := range kept {
			unique := len(t.Stubs) - commonStubCount(t, k)
			if unique < minIndep {
				ok = false
				break
			}
		}
		if ok {
			kept = append(kept, t)
		}
	}
	return kept
}

func commonLayerCount(cfg *config.Settings, a, b *track.Track3D) int {
	layersA := map[int]bool{}
	for _, s := range a.Stubs {
		layersA[layerKey(cfg, s.LayerID, s.ReducedLayerID())] = true
	}
	seenB := map[int]bool{}
	common := map[int]bool{}
	for _, s := range b.Stubs {
		key := layerKey(cfg, s.LayerID, s.ReducedLayerID())
		if layersA[key] && !seenB[key] {
			seenB[key] = true
			common[key] = true
		}
	}
	return len(common)
}

func layerKey(cfg *config.Settings, raw, reduced int) int {
	if cfg.ReducedLayerID {
		return reduced
	}
	return raw
}

// quality ranks t for the cell-quality algorithm (id 7), implementing
// the three orderings spec §4.6 names: most stubs, fewest stubs, or
// smallest reduced r-z chi-square (approximated here with the
// straight-line r-z residual spread, since the raw chi-square is a fit
// product not available at this stage). algCellQuality always uses
// "most"; no setting selects the other two.
func quality(t *track.Track3D, mode string) float64 {
	switch mode {
	case "fewest":
		return -float64(len(t.Stubs))
	case "chi2":
		return -rzResidualSpread(t)
	default: // "most"
		return float64(len(t.Stubs))
	}
}

func rzResidualSpread(t *track.Track3D) float64 {
	sum := 0.0
	for _, s := range t.Stubs {
		predicted := t.Z0 + t.TanLambda*s.R
		d := s.Z - predicted
		sum += d * d
	}
	if len(t.Stubs) == 0 {
		return 0
	}
	return sum / float64(len(t.Stubs))
}

// algCellQuality is id 7 (spec §4.6 "Cell-quality"): for each pair
// sharing >= N common stubs in >= N layers, keep the higher-quality one.
func algCellQuality(cfg *config.Settings, tracks []*track.Track3D) []*track.Track3D {
	alive := make([]bool, len(tracks))
	for i := range alive {
		alive[i] = true
	}
	for i := 0; i < len(tracks); i++ {
		if !alive[i] {
			continue
		}
		for j := i + 1; j < len(tracks); j++ {
			if !alive[j] {
				continue
			}
			common := commonStubCount(tracks[i], tracks[j])
			if common < cfg.MinCommonStubs {
				continue
			}
			if commonLayerCount(cfg, tracks[i], tracks[j]) < cfg.MinCommonStubs {
				continue
			}
			qi := quality(tracks[i], "most")
			qj := quality(tracks[j], "most")
			if qi >= qj {
				alive[j] = false
			} else {
				alive[i] = false
				break
			}
		}
	}
	var out []*track.Track3D
	for i, t := range tracks {
		if alive[i] {
			out = append(out, t)
		}
	}
	return out
}

func cellDistance(a, b *track.Track3D) (int, int) {
	return a.CellIQoverPt - b.CellIQoverPt, a.CellIPhiT - b.CellIPhiT
}

func adjacentInQoverPt(a, b *track.Track3D) bool {
	dq, dp := cellDistance(a, b)
	return dp == 0 && abs(dq) == 1
}

func adjacentInQoverPtOrPhiT(a, b *track.Track3D) bool {
	dq, dp := cellDistance(a, b)
	return abs(dq) <= 1 && abs(dp) <= 1 && (dq != 0 || dp != 0)
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

// adjacentCellReduce is the shared shape of ids 10-14 (spec §4.6
// "Adjacent-cell kill/merge"): scan adjacent HT cells, and either delete
// the lesser candidate or merge their stub sets.
func adjacentCellReduce(tracks []*track.Track3D, adjacent func(a, b *track.Track3D) bool, sameCountOnly, merge bool) []*track.Track3D {
	alive := make([]*track.Track3D, len(tracks))
	copy(alive, tracks)
	for i := 0; i < len(alive); i++ {
		if alive[i] == nil {
			continue
		}
		for j := i + 1; j < len(alive); j++ {
			if alive[j] == nil {
				continue
			}
			if !adjacent(alive[i], alive[j]) {
				continue
			}
			if sameCountOnly && len(alive[i].Stubs) != len(alive[j].Stubs) {
				continue
			}
			if merge {
				alive[i] = alive[i].Merge(alive[j])
				alive[j] = nil
				continue
			}
			if len(alive[i].Stubs) >= len(alive[j].Stubs) {
				alive[j] = nil
			} else {
				alive[i] = nil
				break
			}
		}
	}
	var out []*track.Track3D
	for _, t := range alive {
		if t != nil {
			out = append(out, t)
		}
	}
	return out
}

// algAdjacentCellKill is id 10: delete the lesser of any pair adjacent
// in q/p_T.
func algAdjacentCellKill(_ *config.Settings, tracks []*track.Track3D) []*track.Track3D {
	return adjacentCellReduce(tracks, adjacentInQoverPt, false, false)
}

// algAdjacentCellKillSameCount is id 11: as id 10, but only acts on
// pairs with the same stub count.
func algAdjacentCellKillSameCount(_ *config.Settings, tracks []*track.Track3D) []*track.Track3D {
	return adjacentCellReduce(tracks, adjacentInQoverPt, true, false)
}

// algAdjacentCellKillX is id 12: as id 11, over full (q/p_T, phi_T)
// adjacency rather than q/p_T alone.
func algAdjacentCellKillX(_ *config.Settings, tracks []*track.Track3D) []*track.Track3D {
	return adjacentCellReduce(tracks, adjacentInQoverPtOrPhiT, true, false)
}

// algAdjacentCellMergeX is id 13: merge (rather than kill) pairs
// adjacent in full (q/p_T, phi_T).
func algAdjacentCellMergeX(_ *config.Settings, tracks []*track.Track3D) []*track.Track3D {
	return adjacentCellReduce(tracks, adjacentInQoverPtOrPhiT, false, true)
}

// algAdjacentCellMergeAll is id 14: merge all adjacent-cell pairs,
// regardless of stub count.
func algAdjacentCellMergeAll(_ *config.Settings, tracks []*track.Track3D) []*track.Track3D {
	return adjacentCellReduce(tracks, adjacentInQoverPtOrPhiT, false, true)
}

func helixWithinWindow(cfg *config.Settings, a, b *track.Track3D) bool {
	w := cfg.DupScanWindow
	return absf(a.QOverPt-b.QOverPt) <= w &&
		absf(a.Phi0-b.Phi0) <= w &&
		absf(a.Z0-b.Z0) <= w*10 &&
		absf(a.TanLambda-b.TanLambda) <= w
}

func absf(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}

// algHelixWindowMerge is id 17 (spec §4.6 "Helix-parameter window"):
// merge candidates whose four helix parameters all lie within
// configured absolute tolerances.
func algHelixWindowMerge(cfg *config.Settings, tracks []*track.Track3D) []*track.Track3D {
	alive := make([]*track.Track3D, len(tracks))
	copy(alive, tracks)
	for i := 0; i < len(alive); i++ {
		if alive[i] == nil {
			continue
		}
		for j := i + 1; j < len(alive); j++ {
			if alive[j] == nil {
				continue
			}
			if helixWithinWindow(cfg, alive[i], alive[j]) {
				alive[i] = alive[i].Merge(alive[j])
				alive[j] = nil
			}
		}
	}
	var out []*track.Track3D
	for _, t := range alive {
		if t != nil {
			out = append(out, t)
		}
	}
	return out
}

// fnvHash16 is the "hash the stub indices modulo 2^16" scheme spec SF.4
// / original_source filterAlg100 describes ("identify identical stub
// lists via their hashed fingerprint").
func fnvHash16(indices []int) uint16 {
	const offset, prime = uint32(2166136261), uint32(16777619)
	h := offset
	sorted := append([]int(nil), indices...)
	sort.Ints(sorted)
	for _, i := range sorted {
		h ^= uint32(i)
		h *= prime
	}
	return uint16(h)
}

// algHashIdentity is id 100: identify identical stub lists via their
// hashed fingerprint rather than a full ordered comparison (a faster,
// lossy approximation to id 2).
func algHashIdentity(_ *config.Settings, tracks []*track.Track3D) []*track.Track3D {
	seen := map[uint16]bool{}
	var out []*track.Track3D
	for _, t := range tracks {
		h := fnvHash16(indices(t))
		if seen[h] {
			continue
		}
		seen[h] = true
		out = append(out, t)
	}
	return out
}

// algFitHelixWindowMerge is id 20 (SF.4, the fitted-track analogue of
// id 17): of two fitted candidates whose five helix parameters lie
// within DupScanWindow of each other (ten times that for z0), keep the
// one with the lower raw Chi2 and drop the other; stub sets are not
// merged.
func algFitHelixWindowMerge(cfg *config.Settings, tracks []*track.FittedTrack, _ BinIndexFunc) []*track.FittedTrack {
	alive := make([]bool, len(tracks))
	for i := range alive {
		alive[i] = true
	}
	w := cfg.DupScanWindow
	for i := 0; i < len(tracks); i++ {
		if !alive[i] {
			continue
		}
		for j := i + 1; j < len(tracks); j++ {
			if !alive[j] {
				continue
			}
			a, b := tracks[i], tracks[j]
			if absf(a.QOverPt-b.QOverPt) <= w && absf(a.Phi0-b.Phi0) <= w &&
				absf(a.Z0-b.Z0) <= w*10 && absf(a.TanLambda-b.TanLambda) <= w && absf(a.D0-b.D0) <= w {
				if a.Chi2 <= b.Chi2 {
					alive[j] = false
				} else {
					alive[i] = false
					break
				}
			}
		}
	}
	var out []*track.FittedTrack
	for i, t := range tracks {
		if alive[i] {
			out = append(out, t)
		}
	}
	return out
}

// algPostFitCellConsistency is id 50 (spec §4.6 "Post-fit HT-cell
// consistency"): accept a fitted track if its fitted (q/p_T, phi0) maps
// to the same HT cell that originally produced it, and rescue an
// inconsistent track when no other input track came from the same
// parent HT cell. The rescue looks at the parent cell only; the cell the
// fitted parameters land in is not consulted for it. binIndex is the
// real (q/p_T, phi0) -> HT cell mapping from the sector's r-phi array
// (internal/htrphi.Array.CellIndex); a nil binIndex means no mapping is
// available, so every track falls back to the parent-cell "sole
// occupant" rescue rule instead of being trivially marked consistent.
func algPostFitCellConsistency(_ *config.Settings, tracks []*track.FittedTrack, binIndex BinIndexFunc) []*track.FittedTrack {
	cellCount := map[[2]int]int{}
	type located struct {
		t          *track.FittedTrack
		consistent bool
		cell       [2]int
	}
	var loc []located
	for _, t := range tracks {
		consistent := binIndex != nil && t.Parent != nil && t.CellConsistent(binIndex)
		cell := [2]int{0, 0}
		if t.Parent != nil {
			cell = [2]int{t.Parent.CellIQoverPt, t.Parent.CellIPhiT}
		}
		cellCount[cell]++
		loc = append(loc, located{t: t, consistent: consistent, cell: cell})
	}
	var out []*track.FittedTrack
	for _, l := range loc {
		if l.consistent {
			out = append(out, l.t)
			continue
		}
		if cellCount[l.cell] == 1 {
			out = append(out, l.t)
		}
	}
	return out
}
