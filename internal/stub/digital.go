package stub

import (
	"fmt"
	"math"

	"github.com/jkastelic/tmtracktrigger/internal/config"
)

// DigiState is the lifecycle of a DigitalStub (spec §3: "three states —
// uninitialised, GP-input-digitised, HT-input-digitised").
type DigiState int

const (
	DigiUninitialised DigiState = iota
	DigiGPInput
	DigiHTInput
)

func (s DigiState) String() string {
	switch s {
	case DigiGPInput:
		return "GPInput"
	case DigiHTInput:
		return "HTInput"
	default:
		return "Uninitialised"
	}
}

// digits holds the fixed-point representation of one digitised variable,
// plus the floating-point value reconstructed from those digits — both
// are kept available per spec §3.
type digits struct {
	raw    int64
	bits   int
	lsb    float64 // quantisation step
	offset float64 // value represented by raw == 0
}

func newDigits(value float64, field config.DigiField) (digits, error) {
	if field.Bits <= 0 {
		return digits{}, fmt.Errorf("%w: digitisation field has non-positive bit width", config.ErrConfigInvalid)
	}
	if value < field.Min || value > field.Max {
		return digits{}, fmt.Errorf("%w: value %g outside declared range [%g,%g]",
			config.ErrDigitisationOverflow, value, field.Min, field.Max)
	}
	span := field.Max - field.Min
	levels := math.Pow(2, float64(field.Bits))
	lsb := span / levels
	raw := int64(math.Round((value - field.Min) / lsb))
	maxRaw := int64(levels) - 1
	if raw < 0 {
		raw = 0
	}
	if raw > maxRaw {
		raw = maxRaw
	}
	return digits{raw: raw, bits: field.Bits, lsb: lsb, offset: field.Min}, nil
}

func (d digits) float() float64 {
	return d.offset + float64(d.raw)*d.lsb
}

// DigitalStub is the fixed-point re-digitisation companion attached to
// every Stub (spec §3 "DigitalStub"). It is an explicit scoped-resource
// object: re-digitising for a different sector is a fast in-place
// operation that never restarts from DigiUninitialised — only the
// per-variable digits and the recorded sector/octant are overwritten.
type DigitalStub struct {
	state  DigiState
	sector int // current (iPhi, iEta) pass, packed as iPhi*1000+iEta
	octant int

	phiSector digits
	phiS      digits // phi relative to strip, i.e. stub phi in sector frame
	rT        digits
	z         digits
	deltaPhi  digits
	rho       digits
	phiO      digits
	bend      digits
}

// State reports the current digitisation lifecycle state.
func (d *DigitalStub) State() DigiState { return d.state }

// Sector reports the (iPhi, iEta) pass this digitisation snapshot was
// computed for, packed as iPhi*1000+iEta.
func (d *DigitalStub) Sector() int { return d.sector }

// DigitiseGPInput performs the GP-input digitisation phase (spec §6
// "Digitisation" group) for the given sector pass, digitising the
// fields phi_sector, r_T and z; phi_S is not digitised. Re-digitising for a new sector overwrites in place; the
// state advances to DigiGPInput regardless of the prior state.
func (d *DigitalStub) DigitiseGPInput(s *Stub, iPhi, iEta int, fields map[string]config.DigiField) error {
	var err error
	d.phiSector, err = newDigits(s.Phi, fields["phi_sector"])
	if err != nil {
		return err
	}
	d.rT, err = newDigits(s.R, fields["r_T"])
	if err != nil {
		return err
	}
	d.z, err = newDigits(s.Z, fields["z"])
	if err != nil {
		return err
	}
	d.sector = iPhi*1000 + iEta
	d.state = DigiGPInput
	return nil
}

// DigitiseHTInput performs the HT-input digitisation phase (fields
// delta_phi, rho, phi_O, bend). The stub must have been through
// DigitiseGPInput at least once; the state advances to DigiHTInput.
func (d *DigitalStub) DigitiseHTInput(s *Stub, octant int, fields map[string]config.DigiField) error {
	if d.state == DigiUninitialised {
		return fmt.Errorf("%w: DigitiseHTInput called before DigitiseGPInput", config.ErrInternalInconsistent)
	}
	var err error
	d.deltaPhi, err = newDigits(s.Phi-s.PhiMin, fields["delta_phi"])
	if err != nil {
		return err
	}
	d.rho, err = newDigits(s.Rho, fields["rho"])
	if err != nil {
		return err
	}
	d.phiO, err = newDigits(s.Phi, fields["phi_O"])
	if err != nil {
		return err
	}
	d.bend, err = newDigits(s.BendDegraded, fields["bend"])
	if err != nil {
		return err
	}
	d.octant = octant
	d.state = DigiHTInput
	return nil
}

// Phi reconstructs the floating-point stub phi from its phi_sector
// digits. The digitised value is the stub's own phi; no sector-centre
// offset is subtracted.
func (d *DigitalStub) Phi() (float64, error) {
	if d.state == DigiUninitialised {
		return 0, fmt.Errorf("%w: Phi read before digitisation", config.ErrInternalInconsistent)
	}
	return d.phiSector.float(), nil
}

// R reconstructs the floating-point radius from its digits.
func (d *DigitalStub) R() (float64, error) {
	if d.state == DigiUninitialised {
		return 0, fmt.Errorf("%w: R read before digitisation", config.ErrInternalInconsistent)
	}
	return d.rT.float(), nil
}

// Z reconstructs the floating-point z from its digits.
func (d *DigitalStub) Z() (float64, error) {
	if d.state == DigiUninitialised {
		return 0, fmt.Errorf("%w: Z read before digitisation", config.ErrInternalInconsistent)
	}
	return d.z.float(), nil
}

// Bend reconstructs the floating-point post-degradation bend. It is only
// available once DigitiseHTInput has run — accessing it under a
// firmware variant/phase that has not reached HT-input is an internal
// consistency violation (spec §7).
func (d *DigitalStub) Bend() (float64, error) {
	if d.state != DigiHTInput {
		return 0, fmt.Errorf("%w: Bend not available before HT-input digitisation", config.ErrInternalInconsistent)
	}
	return d.bend.float(), nil
}
