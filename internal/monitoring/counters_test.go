package monitoring

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFirmwareCounters_Fractions(t *testing.T) {
	c := NewFirmwareCounters()
	c.RecordRphiFill(true, false)
	c.RecordRphiFill(false, false)
	c.RecordRphiFill(true, true)

	a, b := c.RphiViolationFractions()
	require.InDelta(t, 2.0/3.0, a, 1e-9)
	require.InDelta(t, 1.0/3.0, b, 1e-9)
}

func TestFirmwareCounters_Concurrent(t *testing.T) {
	c := NewFirmwareCounters()
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c.RecordRphiFill(i%2 == 0, false)
			c.RecordGradient(float64(i))
		}(i)
	}
	wg.Wait()
	a, _ := c.RphiViolationFractions()
	require.InDelta(t, 0.5, a, 1e-9)
	require.Equal(t, 99.0, c.MaxGradient())
}
