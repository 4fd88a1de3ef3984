package rz

import (
	"github.com/jkastelic/tmtracktrigger/internal/config"
	"github.com/jkastelic/tmtracktrigger/internal/dedup"
	"github.com/jkastelic/tmtracktrigger/internal/htrphi"
	"github.com/jkastelic/tmtracktrigger/internal/monitoring"
	"github.com/jkastelic/tmtracktrigger/internal/sector"
	"github.com/jkastelic/tmtracktrigger/internal/stub"
	"github.com/jkastelic/tmtracktrigger/internal/track"
)

// HTpair is the per-sector orchestrator of spec §4.5 (component H): it
// owns one r-phi HT array and one r-z filter, drives the stub ->
// 2-D -> (optional r-z) -> 3-D pipeline, and runs duplicate removal over
// the resulting 3-D collection.
type HTpair struct {
	sec *sector.Sector
	cfg *config.Settings

	rphi     *htrphi.Array
	rzFilter *Filter

	counters *monitoring.FirmwareCounters

	trackCands3D []*track.Track3D
}

// NewHTpair constructs the orchestrator for one sector.
func NewHTpair(sec *sector.Sector, cfg *config.Settings, counters *monitoring.FirmwareCounters) *HTpair {
	return &HTpair{
		sec:      sec,
		cfg:      cfg,
		rphi:     htrphi.NewArray(sec, cfg, counters),
		rzFilter: New(cfg, sec.EtaMin, sec.EtaMax, sec.PhiCentre, sec.RefRadiusZ),
		counters: counters,
	}
}

// Store feeds one stub into the r-phi HT array (spec §4.5 step 1).
// Callers are responsible for the sector-membership test (internal/sector)
// before calling Store, matching the layering split between component C
// and D/E.
func (h *HTpair) Store(s *stub.Stub) {
	h.rphi.Store(s)
}

// End runs the rest of the pipeline (spec §4.5 steps 2-5) and returns the
// deduplicated 3-D track candidates.
func (h *HTpair) End() []*track.Track3D {
	rphiCands := h.rphi.End()

	var out []*track.Track3D
	for _, c := range rphiCands {
		filteredStubs, est, _ := h.rzFilter.Apply(c.Stubs, c.QOverPt)
		if len(filteredStubs) == 0 {
			continue
		}

		if h.cfg.HTrzEnabled {
			rzArr := NewArray(h.sec, h.cfg, c.QOverPt, h.counters)
			for _, s := range filteredStubs {
				rzArr.Store(s)
			}
			for _, rzCand := range rzArr.End(h.cfg) {
				out = append(out, assemble3D(c, rzCand, true))
			}
			continue
		}

		if est.Valid {
			out = append(out, assemble3DFromEstimate(c, filteredStubs, est.Z0, est.TanLambda))
			continue
		}

		// Fallback: no r-z information at all, promote using the sector
		// centre (spec §4.5 step 4b "as a fallback, the sector's centre").
		centreZ0 := 0.0
		centreTanLambda := 0.0
		if h.sec.RefRadiusZ != 0 {
			centreTanLambda = ((h.sec.ZTrkMin + h.sec.ZTrkMax) / 2) / h.sec.RefRadiusZ
		}
		out = append(out, assemble3DFromEstimate(c, filteredStubs, centreZ0, centreTanLambda))
	}

	// Which dedup id applies follows the configured path (spec §4.5
	// step 4a vs 4b): AlgRz when the r-z HT is enabled, otherwise
	// AlgRzSeg when the seed filter is enabled, otherwise AlgRphi. The
	// choice is per sector, not per track: candidates that fell back to
	// the sector centre while the seed filter is enabled also go through
	// AlgRzSeg.
	alg := h.cfg.AlgRphi
	switch {
	case h.cfg.HTrzEnabled:
		alg = h.cfg.AlgRz
	case h.cfg.UseSeedFilter:
		alg = h.cfg.AlgRzSeg
	}
	h.trackCands3D = dedup.FilterTrack3D(h.cfg, alg, out)
	return h.trackCands3D
}

// assemble3D merges an r-phi 2-D candidate with an r-z 2-D candidate into
// a full 3-D track, keeping both cells' stub sets in their intersection
// (spec §4.5 step 4a: "promote every resulting r-z candidate into a 3-D
// track").
func assemble3D(rphi, rz *track.Track2D, hasRZCell bool) *track.Track3D {
	return &track.Track3D{
		Stubs:        rz.Stubs,
		CellIQoverPt: rphi.CellIQoverPt,
		CellIPhiT:    rphi.CellIPhiT,
		CellIZ0:      rz.CellIQoverPt,
		CellIZref:    rz.CellIPhiT,
		HasRZCell:    hasRZCell,
		QOverPt:      rphi.QOverPt,
		Phi0:         rphi.Phi0,
		Z0:           rz.Z0,
		TanLambda:    rz.TanLambda,
		IPhiSec:      rphi.IPhiSec,
		IEtaReg:      rphi.IEtaReg,
	}
}

// assemble3DFromEstimate promotes an r-phi 2-D candidate directly, using
// a (z0, tanLambda) pair sourced either from the seed filter's estimate
// or the sector-centre fallback (spec §4.5 step 4b).
func assemble3DFromEstimate(rphi *track.Track2D, stubs []*stub.Stub, z0, tanLambda float64) *track.Track3D {
	return &track.Track3D{
		Stubs:        stubs,
		CellIQoverPt: rphi.CellIQoverPt,
		CellIPhiT:    rphi.CellIPhiT,
		HasRZCell:    false,
		QOverPt:      rphi.QOverPt,
		Phi0:         rphi.Phi0,
		Z0:           z0,
		TanLambda:    tanLambda,
		IPhiSec:      rphi.IPhiSec,
		IEtaReg:      rphi.IEtaReg,
	}
}

// TrackCands3D returns the deduplicated 3-D candidates produced by the
// most recent End call (spec original_source HTpair.h "trackCands3D()").
func (h *HTpair) TrackCands3D() []*track.Track3D {
	return h.trackCands3D
}

// NumTrackCands3D returns the count of deduplicated 3-D candidates.
func (h *HTpair) NumTrackCands3D() int {
	return len(h.trackCands3D)
}

// NumStubsOnTrackCands3D returns the total stub count across all
// deduplicated 3-D candidates (original_source HTpair.h
// "numStubsOnTrackCands3D()").
func (h *HTpair) NumStubsOnTrackCands3D() int {
	n := 0
	for _, t := range h.trackCands3D {
		n += len(t.Stubs)
	}
	return n
}

// RphiArray exposes the underlying r-phi HT array (original_source
// HTpair.h "getRphiHT()"), whose CellIndex the producer hands to the
// post-fit cell-consistency duplicate removal.
func (h *HTpair) RphiArray() *htrphi.Array {
	return h.rphi
}
