package sector

import (
	"testing"

	"github.com/jkastelic/tmtracktrigger/internal/config"
	"github.com/jkastelic/tmtracktrigger/internal/stub"
	"github.com/stretchr/testify/require"
)

func TestBuildGrid_Dimensions(t *testing.T) {
	cfg := config.NewDefaultSettings()
	require.NoError(t, cfg.SetMagneticField(3.8))
	grid := BuildGrid(cfg)
	require.Len(t, grid, cfg.NumPhiSectors)
	require.Len(t, grid[0], len(cfg.EtaRegionEdges)-1)
}

func TestInsideEta_CentralStub(t *testing.T) {
	cfg := config.NewDefaultSettings()
	require.NoError(t, cfg.SetMagneticField(3.8))
	sec := New(0, len(cfg.EtaRegionEdges)/2-1, cfg)

	s := &stub.Stub{R: sec.RefRadiusZ, Z: 0, Phi: sec.PhiCentre}
	require.True(t, sec.InsideEta(s, false))
}

func TestInsideEta_OutsideWindow(t *testing.T) {
	cfg := config.NewDefaultSettings()
	require.NoError(t, cfg.SetMagneticField(3.8))
	sec := New(0, 0, cfg) // most negative eta region
	s := &stub.Stub{R: sec.RefRadiusZ, Z: 1000, Phi: sec.PhiCentre}
	require.False(t, sec.InsideEta(s, false))
}

func TestInsideSubSecs_Length(t *testing.T) {
	cfg := config.NewDefaultSettings()
	require.NoError(t, cfg.SetMagneticField(3.8))
	sec := New(0, 0, cfg)
	s := &stub.Stub{R: sec.RefRadiusZ, Z: sec.ZTrkMin, Phi: sec.PhiCentre}
	res := sec.InsideSubSecs(s, false)
	require.Len(t, res, cfg.NumEtaSubSecs)
}

func TestInsidePhi_CentreStubPasses(t *testing.T) {
	cfg := config.NewDefaultSettings()
	require.NoError(t, cfg.SetMagneticField(3.8))
	sec := New(0, 0, cfg)
	s := &stub.Stub{R: sec.RefRadiusPhi, Phi: sec.PhiCentre, Bend: 0, BendDegraded: 0, Rho: 1.0}
	require.True(t, sec.InsidePhi(s, cfg.InvPtToDphi, cfg.MaxInvPt(), false))
}

// Property: no stub is assigned to more than 2 eta sectors (spec §8,
// universal property 1).
func TestNoStubInMoreThanTwoEtaSectors(t *testing.T) {
	cfg := config.NewDefaultSettings()
	require.NoError(t, cfg.SetMagneticField(3.8))
	grid := BuildGrid(cfg)

	s := &stub.Stub{R: cfg.RefRadiusZ, Z: 5, Phi: grid[0][0].PhiCentre, ZErr: 0.1}
	count := 0
	for _, row := range grid[0] {
		if row.InsideEta(s, true) {
			count++
		}
	}
	require.LessOrEqual(t, count, 2)
}
