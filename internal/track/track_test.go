package track

import (
	"testing"

	"github.com/jkastelic/tmtracktrigger/internal/stub"
	"github.com/stretchr/testify/require"
)

func TestTrack3D_Merge_NonCommutative(t *testing.T) {
	s1 := &stub.Stub{Index: 1}
	s2 := &stub.Stub{Index: 2}
	s3 := &stub.Stub{Index: 3}

	left := &Track3D{Stubs: []*stub.Stub{s1, s2}, QOverPt: 0.1, CellIQoverPt: 5}
	right := &Track3D{Stubs: []*stub.Stub{s2, s3}, QOverPt: 0.2, CellIQoverPt: 9}

	merged := left.Merge(right)
	require.Len(t, merged.Stubs, 3)
	require.Equal(t, left.QOverPt, merged.QOverPt)
	require.Equal(t, left.CellIQoverPt, merged.CellIQoverPt)

	reversed := right.Merge(left)
	require.Equal(t, right.QOverPt, reversed.QOverPt)
	require.NotEqual(t, merged.QOverPt, reversed.QOverPt)
}

func TestFittedTrack_NumDOF(t *testing.T) {
	f := &FittedTrack{Stubs: make([]*stub.Stub, 6), NumParams: 4}
	require.Equal(t, 8, f.NumDOF())
}

func TestFittedTrack_ChargeSign(t *testing.T) {
	require.Equal(t, -1, (&FittedTrack{QOverPt: -0.1}).ChargeSign())
	require.Equal(t, 1, (&FittedTrack{QOverPt: 0.1}).ChargeSign())
	require.Equal(t, 1, (&FittedTrack{QOverPt: 0}).ChargeSign())
}

func TestFittedTrack_SectorConsistent(t *testing.T) {
	f := &FittedTrack{Phi0: 0.1, Z0: 0, TanLambda: 0.5}
	require.True(t, f.SectorConsistent(0.1, 0.2, -10, 60, 50))
	require.False(t, f.SectorConsistent(0.1, 0.01, -10, 60, 50))
}
