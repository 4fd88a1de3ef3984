package ingest

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jkastelic/tmtracktrigger/internal/stub"
)

func TestEncodeDecodeStubRecord_RoundTrip(t *testing.T) {
	s := &stub.Stub{
		Index: 7, ModuleID: 42,
		R: 55.5, Phi: 0.123, Z: -12.5, RErr: 0.02, ZErr: 0.4,
		Barrel: true, LayerID: 3, IsPS: true,
		Bend: 1.5, Rho: 0.9, FrontEndPass: true,
	}
	buf := EncodeStubRecord(s)
	require.Len(t, buf, RecordSize)

	got, err := DecodeStubRecord(buf)
	require.NoError(t, err)
	require.Equal(t, s.ModuleID, got.ModuleID)
	require.InDelta(t, s.R, got.R, 1e-12)
	require.InDelta(t, s.Phi, got.Phi, 1e-12)
	require.InDelta(t, s.Z, got.Z, 1e-12)
	require.Equal(t, s.Barrel, got.Barrel)
	require.Equal(t, s.LayerID, got.LayerID)
	require.Equal(t, s.IsPS, got.IsPS)
	require.InDelta(t, s.Bend, got.Bend, 1e-12)
	require.Equal(t, s.FrontEndPass, got.FrontEndPass)
}

func TestDecodeStubRecord_TooShort(t *testing.T) {
	_, err := DecodeStubRecord(make([]byte, RecordSize-1))
	require.Error(t, err)
}

func TestDecodeStubStream_AssignsDenseIndices(t *testing.T) {
	a := &stub.Stub{Index: 99, ModuleID: 1, R: 10, FrontEndPass: true}
	b := &stub.Stub{Index: 5, ModuleID: 2, R: 20, FrontEndPass: true}
	payload := append(EncodeStubRecord(a), EncodeStubRecord(b)...)

	stubs, err := DecodeStubStream(payload)
	require.NoError(t, err)
	require.Len(t, stubs, 2)
	require.Equal(t, 0, stubs[0].Index)
	require.Equal(t, 1, stubs[1].Index)
	require.Equal(t, 20.0, stubs[1].R)
}

func TestDecodeStubStream_BadLength(t *testing.T) {
	_, err := DecodeStubStream(make([]byte, RecordSize+1))
	require.Error(t, err)
}
