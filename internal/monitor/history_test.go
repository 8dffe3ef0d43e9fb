package monitor

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHistoryKeepsNewest(t *testing.T) {
	h := NewHistory(3)
	for _, v := range []float64{1, 2, 3, 4, 5} {
		h.Push("CPU0_Temp", v)
	}

	assert.Equal(t, 3, h.Count("CPU0_Temp"))
	assert.Equal(t, []float64{3, 4, 5}, h.Get("CPU0_Temp", 10))
	assert.Equal(t, []float64{4, 5}, h.Get("CPU0_Temp", 2))
	assert.Nil(t, h.Get("CPU0_Temp", 0))
	assert.Nil(t, h.Get("Fan1", 5))
}

func TestHistoryDefaultSize(t *testing.T) {
	h := NewHistory(0)
	for i := 0; i < DefaultHistorySize+10; i++ {
		h.Push("Fan1", float64(i))
	}
	assert.Equal(t, DefaultHistorySize, h.Count("Fan1"))
}

func TestHistoryStatsSkipsGaps(t *testing.T) {
	h := NewHistory(10)
	h.Push("PSU1", 12)
	h.Push("PSU1", math.NaN())
	h.Push("PSU1", 10)
	h.Push("PSU1", 14)

	lo, avg, hi, ok := h.Stats("PSU1")
	assert.True(t, ok)
	assert.Equal(t, 10.0, lo)
	assert.Equal(t, 12.0, avg)
	assert.Equal(t, 14.0, hi)

	h.Push("Gone", math.NaN())
	_, _, _, ok = h.Stats("Gone")
	assert.False(t, ok)
	_, _, _, ok = h.Stats("Unknown")
	assert.False(t, ok)
}

func TestHistoryClear(t *testing.T) {
	h := NewHistory(5)
	h.Push("a", 1)
	h.Push("b", 2)

	h.Clear("a")
	assert.Zero(t, h.Count("a"))
	assert.Equal(t, 1, h.Count("b"))

	h.ClearAll()
	assert.Zero(t, h.Count("b"))
}
