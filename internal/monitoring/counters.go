package monitoring

import (
	"math"
	"sync/atomic"
)

// FirmwareCounters accumulates the soft-anomaly diagnostics of spec §4.2
// and §7 ("Soft anomalies ... counted and reported at end-of-job, never
// raised"). It is process-wide state: if sectors are processed
// concurrently (spec §5), every field here must only ever be touched
// through its atomic accessor.
//
// One instance is created per job by producer.New and handed to every
// sector's HT array; it is never reset mid-job.
type FirmwareCounters struct {
	rphiFills      int64
	rphiViolationA int64 // chain-rule violation (NE/E/SE)
	rphiViolationB int64 // >2 cells filled in a column

	rzFills      int64
	rzViolationA int64
	rzViolationB int64

	maxGradientBits uint64 // math.Float64bits of the max |gradient| seen
	duplicateStubs  int64
}

// NewFirmwareCounters returns a zeroed counter set.
func NewFirmwareCounters() *FirmwareCounters {
	return &FirmwareCounters{}
}

// RecordRphiFill registers one column fill in the r-phi HT array and
// whether it violated constraint (A) (chain rule) and/or (B) (>2 cells).
func (c *FirmwareCounters) RecordRphiFill(violatesA, violatesB bool) {
	atomic.AddInt64(&c.rphiFills, 1)
	if violatesA {
		atomic.AddInt64(&c.rphiViolationA, 1)
	}
	if violatesB {
		atomic.AddInt64(&c.rphiViolationB, 1)
	}
}

// RecordRzFill is the r-z HT array analogue of RecordRphiFill.
func (c *FirmwareCounters) RecordRzFill(violatesA, violatesB bool) {
	atomic.AddInt64(&c.rzFills, 1)
	if violatesA {
		atomic.AddInt64(&c.rzViolationA, 1)
	}
	if violatesB {
		atomic.AddInt64(&c.rzViolationB, 1)
	}
}

// RecordDuplicateStub increments the duplicate-stub counter: one count
// each time a stub's fill reaches an HT cell (or low-pT 2x2 merge group)
// it was already stored in, and the repeated store is suppressed.
func (c *FirmwareCounters) RecordDuplicateStub() {
	atomic.AddInt64(&c.duplicateStubs, 1)
}

// RphiViolationFractions returns the (A, B) violation fractions of total
// r-phi column fills, as described in spec §4.2.
func (c *FirmwareCounters) RphiViolationFractions() (a, b float64) {
	fills := atomic.LoadInt64(&c.rphiFills)
	if fills == 0 {
		return 0, 0
	}
	return float64(atomic.LoadInt64(&c.rphiViolationA)) / float64(fills),
		float64(atomic.LoadInt64(&c.rphiViolationB)) / float64(fills)
}

// RzViolationFractions is the r-z HT analogue of RphiViolationFractions.
func (c *FirmwareCounters) RzViolationFractions() (a, b float64) {
	fills := atomic.LoadInt64(&c.rzFills)
	if fills == 0 {
		return 0, 0
	}
	return float64(atomic.LoadInt64(&c.rzViolationA)) / float64(fills),
		float64(atomic.LoadInt64(&c.rzViolationB)) / float64(fills)
}

// DuplicateStubCount returns the running duplicate-stub count.
func (c *FirmwareCounters) DuplicateStubCount() int64 {
	return atomic.LoadInt64(&c.duplicateStubs)
}

// RecordGradient folds |gradient| into the running job-wide maximum
// (spec §6 diagnostic: "maximum line-gradient observed"). Safe for
// concurrent sectors via a compare-and-swap retry loop.
func (c *FirmwareCounters) RecordGradient(gradient float64) {
	g := math.Abs(gradient)
	for {
		old := atomic.LoadUint64(&c.maxGradientBits)
		if g <= math.Float64frombits(old) {
			return
		}
		if atomic.CompareAndSwapUint64(&c.maxGradientBits, old, math.Float64bits(g)) {
			return
		}
	}
}

// MaxGradient returns the largest |gradient| recorded this job.
func (c *FirmwareCounters) MaxGradient() float64 {
	return math.Float64frombits(atomic.LoadUint64(&c.maxGradientBits))
}
