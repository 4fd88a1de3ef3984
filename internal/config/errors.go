package config

import "errors"

// Sentinel errors distinguishing the three fatal error kinds from spec §7.
// Algorithmic rejections and soft anomalies are never represented as
// errors — they reduce the output track count or a diagnostic counter.
var (
	// ErrConfigInvalid marks a configuration that cannot be used to run
	// a job (e.g. merge-2x2 requested with odd HT dimensions, an unknown
	// fitter name, or a non-positive field passed to SetMagneticField).
	// Reading the field-derived factors before SetMagneticField has been
	// called is not detected.
	ErrConfigInvalid = errors.New("config: invalid configuration")

	// ErrDigitisationOverflow marks a digitised quantity that fell
	// outside its declared range; the event aborts.
	ErrDigitisationOverflow = errors.New("config: digitisation range overflow")

	// ErrInternalInconsistent marks an internal invariant violation,
	// e.g. a sub-sector mask of the wrong length.
	ErrInternalInconsistent = errors.New("config: internal consistency violation")
)
