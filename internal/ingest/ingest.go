// Package ingest decodes a recorded front-end stub stream into the
// engine's immutable stub vector, for replay-driven testing and
// benchmarking against captured data instead of synthetic fixtures.
//
// The wire format is a fixed-width binary record per stub, carried as
// the payload of a UDP datagram (one front-end readout frame per
// packet), mirroring the way internal/lidar/network's listener decodes
// one LiDAR return per UDP payload. Decoding the record itself needs no
// packet-capture library at all; only recovering records from a .pcap
// capture file needs one, so that split lives in pcap.go/pcap_stub.go
// behind the same "pcap" build tag the teacher's PCAP reader uses.
package ingest

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/jkastelic/tmtracktrigger/internal/stub"
)

// RecordSize is the fixed wire size in bytes of one encoded stub
// record (spec §6 input contract: "Immutable sequence of stubs per
// event").
const RecordSize = 4 + 4 + 8*5 + 1 + 4 + 1 + 8*2 + 1

// DecodeStubRecord parses one fixed-width binary stub record out of buf,
// returning the reconstructed Stub. buf must be at least RecordSize
// bytes; trailing bytes (from UDP padding) are ignored.
func DecodeStubRecord(buf []byte) (*stub.Stub, error) {
	if len(buf) < RecordSize {
		return nil, fmt.Errorf("ingest: stub record too short: got %d bytes, want >= %d", len(buf), RecordSize)
	}
	var off int
	readU32 := func() uint32 {
		v := binary.BigEndian.Uint32(buf[off:])
		off += 4
		return v
	}
	readF64 := func() float64 {
		v := math.Float64frombits(binary.BigEndian.Uint64(buf[off:]))
		off += 8
		return v
	}
	readBool := func() bool {
		v := buf[off] != 0
		off++
		return v
	}

	s := &stub.Stub{}
	s.Index = int(readU32())
	s.ModuleID = int(readU32())
	s.R = readF64()
	s.Phi = readF64()
	s.Z = readF64()
	s.RErr = readF64()
	s.ZErr = readF64()
	s.Barrel = readBool()
	s.LayerID = int(readU32())
	s.IsPS = readBool()
	s.Bend = readF64()
	s.Rho = readF64()
	s.FrontEndPass = readBool()
	return s, nil
}

// EncodeStubRecord is the inverse of DecodeStubRecord, used by tooling
// that synthesises .pcap replay fixtures from in-memory stub vectors.
func EncodeStubRecord(s *stub.Stub) []byte {
	buf := make([]byte, RecordSize)
	var off int
	writeU32 := func(v uint32) {
		binary.BigEndian.PutUint32(buf[off:], v)
		off += 4
	}
	writeF64 := func(v float64) {
		binary.BigEndian.PutUint64(buf[off:], math.Float64bits(v))
		off += 8
	}
	writeBool := func(v bool) {
		if v {
			buf[off] = 1
		}
		off++
	}

	writeU32(uint32(s.Index))
	writeU32(uint32(s.ModuleID))
	writeF64(s.R)
	writeF64(s.Phi)
	writeF64(s.Z)
	writeF64(s.RErr)
	writeF64(s.ZErr)
	writeBool(s.Barrel)
	writeU32(uint32(s.LayerID))
	writeBool(s.IsPS)
	writeF64(s.Bend)
	writeF64(s.Rho)
	writeBool(s.FrontEndPass)
	return buf
}

// DecodeStubStream decodes a sequence of back-to-back stub records
// (e.g. one UDP payload carrying an entire bunch crossing's stubs) into
// an event's stub vector, assigning dense Index values in stream order
// regardless of what was encoded (spec §3: "a dense index into the
// event stub vector").
func DecodeStubStream(payload []byte) ([]*stub.Stub, error) {
	if len(payload)%RecordSize != 0 {
		return nil, fmt.Errorf("ingest: payload length %d is not a multiple of record size %d", len(payload), RecordSize)
	}
	n := len(payload) / RecordSize
	out := make([]*stub.Stub, 0, n)
	for i := 0; i < n; i++ {
		s, err := DecodeStubRecord(payload[i*RecordSize : (i+1)*RecordSize])
		if err != nil {
			return nil, err
		}
		s.Index = i
		out = append(out, s)
	}
	return out, nil
}
