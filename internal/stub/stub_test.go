package stub

import (
	"testing"

	"github.com/jkastelic/tmtracktrigger/internal/config"
	"github.com/stretchr/testify/require"
)

func sampleStub() *Stub {
	return &Stub{
		Index: 0, R: 50, Phi: 0.1, Z: 25, RErr: 0.01, ZErr: 0.5,
		Barrel: true, LayerID: 3, Bend: 0, BendDegraded: 0, Rho: 1.0,
		FrontEndPass: true,
	}
}

func TestZTrk(t *testing.T) {
	s := sampleStub()
	// z = r*0.5 at r=50 => zTrk at refR=100 should scale proportionally.
	require.InDelta(t, 50.0, s.ZTrk(100), 1e-9)
}

func TestQOverPtFromBend_ZeroBend(t *testing.T) {
	s := sampleStub()
	require.Equal(t, 0.0, s.QOverPtFromBend(0.00057))
}

func TestQOverPtFromBend_NonZero(t *testing.T) {
	s := sampleStub()
	s.BendDegraded = 2.0
	qpt := s.QOverPtFromBend(0.00057)
	require.NotEqual(t, 0.0, qpt)
}

func digiFields() map[string]config.DigiField {
	return map[string]config.DigiField{
		"phi_sector": {Bits: 14, Min: -0.5, Max: 0.5},
		"r_T":        {Bits: 12, Min: 0, Max: 120},
		"z":          {Bits: 14, Min: -120, Max: 120},
		"delta_phi":  {Bits: 10, Min: -0.1, Max: 0.1},
		"rho":        {Bits: 8, Min: 0, Max: 2},
		"phi_O":      {Bits: 14, Min: -3.2, Max: 3.2},
		"bend":       {Bits: 8, Min: -8, Max: 8},
	}
}

func TestDigitalStub_Lifecycle(t *testing.T) {
	s := sampleStub()
	d := &DigitalStub{}
	require.Equal(t, DigiUninitialised, d.State())

	_, err := d.Bend()
	require.ErrorIs(t, err, config.ErrInternalInconsistent)

	require.NoError(t, d.DigitiseGPInput(s, 2, 1, digiFields()))
	require.Equal(t, DigiGPInput, d.State())

	phi, err := d.Phi()
	require.NoError(t, err)
	require.InDelta(t, s.Phi, phi, 1e-3)

	require.NoError(t, d.DigitiseHTInput(s, 0, digiFields()))
	require.Equal(t, DigiHTInput, d.State())

	bend, err := d.Bend()
	require.NoError(t, err)
	require.InDelta(t, s.BendDegraded, bend, 1e-1)
}

func TestDigitalStub_RedigitiseInPlace(t *testing.T) {
	s := sampleStub()
	d := &DigitalStub{}
	require.NoError(t, d.DigitiseGPInput(s, 1, 0, digiFields()))
	first := d.Sector()
	require.NoError(t, d.DigitiseGPInput(s, 5, 2, digiFields()))
	require.NotEqual(t, first, d.Sector())
	require.Equal(t, DigiGPInput, d.State()) // does not restart to Uninitialised
}

func TestDigitalStub_HTInputBeforeGPInput(t *testing.T) {
	s := sampleStub()
	d := &DigitalStub{}
	err := d.DigitiseHTInput(s, 0, digiFields())
	require.ErrorIs(t, err, config.ErrInternalInconsistent)
}

func TestDigitalStub_RangeOverflow(t *testing.T) {
	s := sampleStub()
	s.R = 1000 // outside declared [0,120] range
	d := &DigitalStub{}
	err := d.DigitiseGPInput(s, 0, 0, digiFields())
	require.ErrorIs(t, err, config.ErrDigitisationOverflow)
}
