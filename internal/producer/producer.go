// Package producer owns Layer 6 (component K) of the track-trigger
// core: the thin TMTrackProducer driver that builds the sector grid,
// dispatches each event through sectorization -> HTpair -> fit ->
// post-fit duplicate removal, and assembles the output track collection
// plus diagnostic counters (spec §4, §6 output contract).
//
// Dependency rule: L6 may depend on every layer below it
// (internal/stub, internal/sector, internal/htrphi, internal/rz,
// internal/dedup, internal/track, internal/fit, internal/config,
// internal/monitoring), never the reverse.
package producer

import (
	"github.com/jkastelic/tmtracktrigger/internal/config"
	"github.com/jkastelic/tmtracktrigger/internal/dedup"
	"github.com/jkastelic/tmtracktrigger/internal/fit"
	"github.com/jkastelic/tmtracktrigger/internal/monitoring"
	"github.com/jkastelic/tmtracktrigger/internal/rz"
	"github.com/jkastelic/tmtracktrigger/internal/sector"
	"github.com/jkastelic/tmtracktrigger/internal/stub"
	"github.com/jkastelic/tmtracktrigger/internal/track"
)

// EventResult is the per-event output contract of spec §6: the fitted
// tracks per sector, plus the producer's job-wide diagnostic counters
// (accumulated over every event it has processed so far).
type EventResult struct {
	FittedTracks []*track.FittedTrack
	Counters     *monitoring.FirmwareCounters
}

// TMTrackProducer is the thin per-job driver (spec §4 component K). It
// owns the sector grid, built once at construction, and is reused
// across events; SetMagneticField must be called once per bunch
// crossing before ProcessEvent, matching Settings' own discipline.
type TMTrackProducer struct {
	cfg      *config.Settings
	grid     [][]*sector.Sector
	counters *monitoring.FirmwareCounters
}

// New builds the sector grid from cfg (spec §4.5 precondition: "the
// sector grid is built once at run start").
func New(cfg *config.Settings) *TMTrackProducer {
	return &TMTrackProducer{cfg: cfg, grid: sector.BuildGrid(cfg), counters: monitoring.NewFirmwareCounters()}
}

// ProcessEvent runs the full per-event pipeline over stubs: sectorize,
// run HTpair per sector, dispatch every fitter configured in
// cfg.FitterNames over the deduplicated 3-D candidates, and run post-fit
// duplicate removal (alg cfg.AlgFit) per sector.
func (p *TMTrackProducer) ProcessEvent(stubs []*stub.Stub) EventResult {
	counters := p.counters
	var allFitted []*track.FittedTrack

	for _, row := range p.grid {
		for _, sec := range row {
			pair := rz.NewHTpair(sec, p.cfg, counters)
			for _, s := range stubs {
				if !sec.Inside(s, p.cfg.InvPtToDphi, p.cfg.MaxInvPt(), p.cfg.StripHandlingEnabled) {
					continue
				}
				pair.Store(s)
			}

			cands3D := pair.End()

			var sectorFitted []*track.FittedTrack
			for _, cand := range cands3D {
				sectorFitted = append(sectorFitted, fit.FitAll(cand, p.cfg, sec)...)
			}

			sectorFitted = dedup.FilterFittedTrack(p.cfg, p.cfg.AlgFit, acceptedOnly(sectorFitted), pair.RphiArray().CellIndex)
			allFitted = append(allFitted, sectorFitted...)
		}
	}

	return EventResult{FittedTracks: allFitted, Counters: counters}
}

// acceptedOnly drops fitted tracks the fitter itself marked not
// accepted (spec §7: "algorithmic rejection ... fit tracks marked 'not
// accepted' ... these are suppressed, not reported").
func acceptedOnly(tracks []*track.FittedTrack) []*track.FittedTrack {
	out := make([]*track.FittedTrack, 0, len(tracks))
	for _, t := range tracks {
		if t.Accepted {
			out = append(out, t)
		}
	}
	return out
}

// Grid exposes the sector grid for diagnostics (internal/diag).
func (p *TMTrackProducer) Grid() [][]*sector.Sector {
	return p.grid
}
