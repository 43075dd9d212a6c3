package audio

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func constantBlock(n int, v int16) []int16 {
	block := make([]int16, n)
	for i := range block {
		block[i] = v
	}
	return block
}

func TestEstimate_SilenceIsFiniteAndLow(t *testing.T) {
	for _, n := range []int{1, 160, 1024, 44100} {
		db, dbfs, ok := Estimate(make([]int16, n), 0)
		require.True(t, ok)
		assert.False(t, math.IsNaN(db))
		assert.False(t, math.IsInf(db, 0))
		assert.InDelta(t, -180.0, dbfs, 1e-9)
		assert.InDelta(t, SilenceDB, db, 1e-9)
		assert.Less(t, db, 30.0, "silence must sit below any realistic nuisance threshold")
	}
}

func TestEstimate_FullScale(t *testing.T) {
	block := constantBlock(512, math.MaxInt16)

	assert.InDelta(t, 1.0, RMS(block), 1e-4)

	_, dbfs, ok := Estimate(block, 0)
	require.True(t, ok)
	assert.InDelta(t, 0.0, dbfs, 1e-3)
}

func TestEstimate_HalfScaleScenario(t *testing.T) {
	block := constantBlock(1000, 16384)

	assert.InDelta(t, 0.5, RMS(block), 1e-12)

	db, dbfs, ok := Estimate(block, 0)
	require.True(t, ok)
	assert.InDelta(t, -6.0206, dbfs, 1e-3)
	assert.InDelta(t, 83.9794, db, 1e-3)
}

func TestEstimate_CalibrationOffsetIsAdditive(t *testing.T) {
	block := constantBlock(256, 1000)

	base, _, _ := Estimate(block, 0)
	shifted, _, _ := Estimate(block, -7.5)
	assert.InDelta(t, base-7.5, shifted, 1e-12)
}

func TestEstimate_Monotonic(t *testing.T) {
	amplitudes := []int16{0, 1, 2, 10, 100, 1000, 8000, 16384, 32000, math.MaxInt16}

	prev := math.Inf(-1)
	for _, a := range amplitudes {
		db, _, ok := Estimate(constantBlock(128, a), 0)
		require.True(t, ok)
		assert.Greater(t, db, prev, "amplitude %d", a)
		prev = db
	}
}

func TestEstimate_MonotonicMixedBlocks(t *testing.T) {
	quiet := []int16{100, -100, 50, -50}
	loud := []int16{100, -100, 5000, -50}
	require.Greater(t, RMS(loud), RMS(quiet))

	dbQuiet, _, _ := Estimate(quiet, 0)
	dbLoud, _, _ := Estimate(loud, 0)
	assert.Greater(t, dbLoud, dbQuiet)
}

func TestEstimate_Idempotent(t *testing.T) {
	block := make([]int16, 4096)
	for i := range block {
		block[i] = int16(12000 * math.Sin(2*math.Pi*440*float64(i)/44100))
	}

	first, _, _ := Estimate(block, 1.25)
	second, _, _ := Estimate(block, 1.25)
	assert.Equal(t, math.Float64bits(first), math.Float64bits(second))
}

func TestEstimate_EmptyBlockYieldsNoReading(t *testing.T) {
	_, _, ok := Estimate(nil, 0)
	assert.False(t, ok)
	_, _, ok = Estimate([]int16{}, 0)
	assert.False(t, ok)
}

func TestEstimate_NegativeFullScale(t *testing.T) {
	db, dbfs, ok := Estimate(constantBlock(64, math.MinInt16), 0)
	require.True(t, ok)
	assert.InDelta(t, 0.0, dbfs, 1e-6)
	assert.InDelta(t, ReferenceOffsetDB, db, 1e-6)
}

func TestRMS_SineWave(t *testing.T) {
	const n = 44100
	block := make([]int16, n)
	for i := range block {
		block[i] = int16(16384 * math.Sin(2*math.Pi*1000*float64(i)/n))
	}
	assert.InDelta(t, 0.5/math.Sqrt2, RMS(block), 1e-3)
}

func TestDecodeS16LE(t *testing.T) {
	values := []int16{0, 1, -1, math.MaxInt16, math.MinInt16, 12345}
	buf := make([]byte, len(values)*2+1) // trailing odd byte
	for i, v := range values {
		binary.LittleEndian.PutUint16(buf[2*i:], uint16(v))
	}

	t.Run("full", func(t *testing.T) {
		dst := make([]int16, len(values))
		n := DecodeS16LE(dst, buf)
		assert.Equal(t, len(values), n)
		assert.Equal(t, values, dst)
	})

	t.Run("short_destination", func(t *testing.T) {
		dst := make([]int16, 3)
		n := DecodeS16LE(dst, buf)
		assert.Equal(t, 3, n)
		assert.Equal(t, values[:3], dst)
	})
}

func TestFallbackBlockSamples(t *testing.T) {
	assert.Equal(t, 88200, FallbackBlockSamples(44100))
	assert.Equal(t, 32000, FallbackBlockSamples(16000))
}
