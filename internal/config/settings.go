// Package config owns the single immutable configuration record consumed
// by every layer of the track-trigger core (L1-L6). Settings is built once
// per job from defaults plus an optional JSON overlay; the only field that
// may change after construction is the per-event magnetic field, refreshed
// via SetMagneticField at the start of every bunch crossing.
package config

import (
	"encoding/json"
	"fmt"
	"os"
)

// Speed of light in m/s, used to convert the magnetic field into the
// bend-to-curvature conversion factors every downstream layer consumes.
const speedOfLight = 2.99792458e8

// DigiField describes the fixed-point layout (bit width + representable
// range) of one digitised variable (§6 "Digitisation" group).
type DigiField struct {
	Bits int     `json:"bits"`
	Min  float64 `json:"min"`
	Max  float64 `json:"max"`
}

// Settings is the configuration record described in spec §6. It is built
// once by NewDefaultSettings/LoadSettings and never mutated afterwards,
// except for the magnetic-field-derived fields refreshed per event by
// SetMagneticField.
type Settings struct {
	// --- Sectors ---
	NumPhiSectors  int       `json:"num_phi_sectors"`
	EtaRegionEdges []float64 `json:"eta_region_edges"`
	RefRadiusPhi   float64   `json:"ref_radius_phi_cm"`
	RefRadiusZ     float64   `json:"ref_radius_z_cm"`
	BeamHalfLength float64   `json:"beam_half_length_cm"` // W

	UseStubPhiPredicate      bool    `json:"use_stub_phi_predicate"`
	UseTrackPhiPredicate     bool    `json:"use_track_phi_predicate"`
	NominalTrackPhiTolerance float64 `json:"nominal_track_phi_tolerance_rad"`

	// --- HT r-phi ---
	MinPtGeV             float64 `json:"min_pt_gev"`
	NumBinsQoverPt       int     `json:"num_bins_qoverpt"`
	NumBinsPhiT          int     `json:"num_bins_phit"`
	Merge2x2Enabled      bool    `json:"merge_2x2_enabled"`
	MergeMinInvPt        float64 `json:"merge_min_inv_pt"`
	NumEtaSubSecs        int     `json:"num_eta_subsecs"`
	KillCellsFraction    float64 `json:"kill_cells_fraction"`
	StripHandlingEnabled bool    `json:"strip_handling_enabled"`
	BendFilterEnabled    bool    `json:"bend_filter_enabled"`
	BendFilterSigmaDphi  float64 `json:"bend_filter_sigma_dphi"`
	MaxStubsPerCell      int     `json:"max_stubs_per_cell"`
	BusySectorMax        int     `json:"busy_sector_max"`
	BusySectorEachCharge bool    `json:"busy_sector_each_charge"`

	// --- HT r-z ---
	HTrzEnabled          bool `json:"htrz_enabled"`
	NumBinsZ0            int  `json:"num_bins_z0"`
	NumBinsZref          int  `json:"num_bins_zref"`
	HTrzStripHandling    bool `json:"htrz_strip_handling"`
	HTrzKillCellsEnabled bool `json:"htrz_kill_cells_enabled"`

	// --- r-z filters ---
	UseEtaFilter          bool    `json:"use_eta_filter"`
	UseZTrkFilter         bool    `json:"use_ztrk_filter"`
	UseSeedFilter         bool    `json:"use_seed_filter"`
	ZTrkRefRadius         float64 `json:"ztrk_ref_radius_cm"`
	SeedResolutionEpsilon float64 `json:"seed_resolution_epsilon_cm"`
	KeepAllSeed           bool    `json:"keep_all_seed"`
	MaxSeedCombinations   int     `json:"max_seed_combinations"`
	ZTrkSectorCheck       bool    `json:"ztrk_sector_check"`

	// --- Acceptance ---
	MinLayers               int     `json:"min_layers"`
	RelaxedLayerPtThreshold float64 `json:"relaxed_layer_pt_threshold"`
	UseLayerID              bool    `json:"use_layer_id"`
	ReducedLayerID          bool    `json:"reduced_layer_id"`

	// --- Duplicate removal ---
	AlgRphi             int     `json:"alg_rphi"`
	AlgRz               int     `json:"alg_rz"`
	AlgRzSeg            int     `json:"alg_rz_seg"`
	AlgFit              int     `json:"alg_fit"`
	MinIndependentStubs int     `json:"min_independent_stubs"`
	MinCommonStubs      int     `json:"min_common_stubs"`
	DupChi2Cut          float64 `json:"dup_chi2_cut"`
	DupScanWindow       float64 `json:"dup_scan_window"`

	// --- Fit ---
	FitterNames     []string `json:"fitter_names"`
	Chi2DofCut      float64  `json:"chi2_dof_cut"`
	MaxIterations   int      `json:"max_iterations"`
	KillWorstHit    bool     `json:"kill_worst_hit"`
	ResidualKillCut float64  `json:"residual_kill_cut"`
	GeneralCut      float64  `json:"general_cut"`

	// --- Kalman ---
	KalmanDebug            bool    `json:"kalman_debug"`
	MultiScatterFactor     float64 `json:"multi_scatter_factor"`
	ValidationGateCut      float64 `json:"validation_gate_cut"`
	SelectMostNumStubState bool    `json:"select_most_num_stub_state"`
	MaxNumNextStubs        int     `json:"max_num_next_stubs"`
	MaxNumVirtualStubs     int     `json:"max_num_virtual_stubs"`
	MaxNumStatesCut        int     `json:"max_num_states_cut"`
	ReducedChi2Cut         float64 `json:"reduced_chi2_cut"`

	// --- Digitisation ---
	DigitisationEnabled bool                 `json:"digitisation_enabled"`
	Digi                map[string]DigiField `json:"digi"`

	// --- Per-event (mutated once per bunch crossing; see SetMagneticField) ---
	MagneticFieldTesla float64 `json:"-"`
	InvPtToDphi        float64 `json:"-"` // B*c / (2e11)
	InvPtToR           float64 `json:"-"` // B*c / 1e11
}

// NewDefaultSettings returns the hand-tuned defaults used when no JSON
// overlay is supplied. These mirror the scenario constants used in
// spec.md §8 ("concrete scenarios") so the defaults are directly testable.
func NewDefaultSettings() *Settings {
	s := &Settings{
		NumPhiSectors:  9,
		EtaRegionEdges: []float64{-2.4, -1.6, -0.8, 0.0, 0.8, 1.6, 2.4},
		RefRadiusPhi:   55.0,
		RefRadiusZ:     50.0,
		BeamHalfLength: 15.0,

		UseStubPhiPredicate:      true,
		UseTrackPhiPredicate:     true,
		NominalTrackPhiTolerance: 0.01,

		MinPtGeV:             3.0,
		NumBinsQoverPt:       32,
		NumBinsPhiT:          64,
		Merge2x2Enabled:      true,
		MergeMinInvPt:        0.5 / 3.0,
		NumEtaSubSecs:        3,
		KillCellsFraction:    0.0,
		StripHandlingEnabled: true,
		BendFilterEnabled:    true,
		BendFilterSigmaDphi:  0.0005,
		MaxStubsPerCell:      32,
		BusySectorMax:        144,
		BusySectorEachCharge: false,

		HTrzEnabled:          false,
		NumBinsZ0:            16,
		NumBinsZref:          16,
		HTrzStripHandling:    true,
		HTrzKillCellsEnabled: false,

		UseEtaFilter:          true,
		UseZTrkFilter:         false,
		UseSeedFilter:         true,
		ZTrkRefRadius:         50.0,
		SeedResolutionEpsilon: 1.0,
		KeepAllSeed:           false,
		MaxSeedCombinations:   100,
		ZTrkSectorCheck:       false,

		MinLayers:               5,
		RelaxedLayerPtThreshold: 10.0,
		UseLayerID:              true,
		ReducedLayerID:          true,

		AlgRphi:             10,
		AlgRz:               10,
		AlgRzSeg:            10,
		AlgFit:              50,
		MinIndependentStubs: 2,
		MinCommonStubs:      4,
		DupChi2Cut:          10.0,
		DupScanWindow:       1.0,

		FitterNames:     []string{"LinearRegression"},
		Chi2DofCut:      10.0,
		MaxIterations:   10,
		KillWorstHit:    true,
		ResidualKillCut: 5.0,
		GeneralCut:      3.0,

		KalmanDebug:            false,
		MultiScatterFactor:     1.0,
		ValidationGateCut:      9.0,
		SelectMostNumStubState: true,
		MaxNumNextStubs:        5,
		MaxNumVirtualStubs:     2,
		MaxNumStatesCut:        40,
		ReducedChi2Cut:         10.0,

		DigitisationEnabled: false,
		Digi:                map[string]DigiField{},
	}
	return s
}

// LoadSettings builds a Settings record from defaults overlaid with the
// JSON document at path. Fields omitted from the JSON retain their
// default values — json.Unmarshal only touches keys present in the
// document, so partial configs are safe, the same guarantee the teacher's
// TuningConfig gives via pointer fields.
func LoadSettings(path string) (*Settings, error) {
	s := NewDefaultSettings()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrConfigInvalid, path, err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Validate checks the static invariants from spec §7 ("Configuration
// invalid" is a fatal error kind). It does not check the magnetic field,
// which is validated separately by SetMagneticField.
func (s *Settings) Validate() error {
	if s.Merge2x2Enabled {
		if s.NumBinsQoverPt%2 != 0 || s.NumBinsPhiT%2 != 0 {
			return fmt.Errorf("%w: merge-2x2 requires even HT dimensions, got (%d,%d)",
				ErrConfigInvalid, s.NumBinsQoverPt, s.NumBinsPhiT)
		}
	}
	if s.NumPhiSectors <= 0 {
		return fmt.Errorf("%w: num_phi_sectors must be positive", ErrConfigInvalid)
	}
	if len(s.EtaRegionEdges) < 2 {
		return fmt.Errorf("%w: need at least two eta region edges", ErrConfigInvalid)
	}
	if s.MinPtGeV <= 0 {
		return fmt.Errorf("%w: min_pt_gev must be positive", ErrConfigInvalid)
	}
	for _, name := range s.FitterNames {
		if !knownFitterNames[name] {
			return fmt.Errorf("%w: unknown fitter name %q", ErrConfigInvalid, name)
		}
	}
	if checkTrack3DAlgID != nil {
		for _, id := range []int{s.AlgRphi, s.AlgRz, s.AlgRzSeg} {
			if !checkTrack3DAlgID(id) {
				return fmt.Errorf("%w: unknown track3D dedup algorithm id %d", ErrConfigInvalid, id)
			}
		}
	}
	if checkFitTrackAlgID != nil && !checkFitTrackAlgID(s.AlgFit) {
		return fmt.Errorf("%w: unknown fitted-track dedup algorithm id %d", ErrConfigInvalid, s.AlgFit)
	}
	return nil
}

// knownFitterNames starts with the names of the fitters the fit package
// provides, so Validate accepts them even where fit is not linked in;
// fit's registry adds to it via RegisterFitterName, avoiding an import
// cycle between config and fit.
var knownFitterNames = map[string]bool{
	"LinearRegression": true, "ChiSquaredTracklet": true,
	"KF4ParamsComb": true, "KF5ParamsComb": true, "KF4ParamsCombV2": true,
}

// RegisterFitterName marks name as a valid entry for Settings.FitterNames.
// Called from fit.init().
func RegisterFitterName(name string) {
	knownFitterNames[name] = true
}

// checkTrack3DAlgID and checkFitTrackAlgID are populated by the dedup
// package via RegisterDedupAlgIDCheckers, avoiding an import cycle
// between config and dedup (the same pattern as RegisterFitterName).
var (
	checkTrack3DAlgID func(int) bool
	checkFitTrackAlgID func(int) bool
)

// RegisterDedupAlgIDCheckers wires Settings.Validate up to dedup's
// registries. Called from dedup.init().
func RegisterDedupAlgIDCheckers(checkTrack3D, checkFitTrack func(int) bool) {
	checkTrack3DAlgID = checkTrack3D
	checkFitTrackAlgID = checkFitTrack
}

// SetMagneticField refreshes the per-event magnetic field and its derived
// conversion factors (spec §6: "to be set on the configuration record at
// the start of every event"). B is in tesla.
func (s *Settings) SetMagneticField(bTesla float64) error {
	if bTesla <= 0 {
		return fmt.Errorf("%w: magnetic field must be positive, got %f", ErrConfigInvalid, bTesla)
	}
	s.MagneticFieldTesla = bTesla
	s.InvPtToDphi = bTesla * speedOfLight / 2e11
	s.InvPtToR = bTesla * speedOfLight / 1e11
	return nil
}

// MaxInvPt returns 1/p_T,min, the HT array's q/p_T axis half-range.
func (s *Settings) MaxInvPt() float64 {
	return 1.0 / s.MinPtGeV
}
