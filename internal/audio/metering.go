// Package audio provides level estimation for mono 16-bit PCM blocks and the
// platform glue needed to capture them.
package audio

import (
	"encoding/binary"
	"math"
	"time"
)

const (
	// MaxSampleValue is the full-scale magnitude for 16-bit signed audio.
	MaxSampleValue = 32768.0
	// Epsilon keeps log10 defined for silent blocks.
	Epsilon = 1e-9
	// ReferenceOffsetDB maps dBFS onto an approximate SPL scale.
	// Empirical; absolute accuracy needs a reference meter.
	ReferenceOffsetDB = 90.0
	// SilenceDB is the estimate produced for an all-zero block with no calibration offset.
	SilenceDB = -180.0 + ReferenceOffsetDB
	// BytesPerSample is the width of one mono S16 sample.
	BytesPerSample = 2
)

// Reading is one loudness estimate derived from exactly one block.
type Reading struct {
	// DB is the approximate sound pressure level in dB.
	DB float64 `json:"db"`
	// DBFS is the level relative to full scale, before any offset.
	DBFS float64 `json:"dbfs"`
	// Samples is the number of samples the estimate was computed from.
	Samples int `json:"samples"`
	// Seq numbers readings within a session, starting at 1.
	Seq uint64 `json:"seq"`
	// At is when the block finished reading.
	At time.Time `json:"at"`
}

// RMS returns the root-mean-square of the samples normalized to [-1, 1].
// It returns 0 for an empty block.
func RMS(samples []int16) float64 {
	if len(samples) == 0 {
		return 0
	}

	var sumSquares float64
	for _, s := range samples {
		v := float64(s) / MaxSampleValue
		sumSquares += v * v
	}
	return math.Sqrt(sumSquares / float64(len(samples)))
}

// DBFS converts a normalized RMS value to decibels relative to full scale.
func DBFS(rms float64) float64 {
	return 20 * math.Log10(rms+Epsilon)
}

// Estimate computes the approximate sound level of a block.
// It reports false for an empty block, which yields no reading.
func Estimate(samples []int16, calibrationOffsetDB float64) (db, dbfs float64, ok bool) {
	if len(samples) == 0 {
		return 0, 0, false
	}
	dbfs = DBFS(RMS(samples))
	return dbfs + calibrationOffsetDB + ReferenceOffsetDB, dbfs, true
}

// DecodeS16LE decodes little-endian 16-bit PCM into dst and returns the
// number of samples written. A trailing odd byte is ignored.
func DecodeS16LE(dst []int16, buf []byte) int {
	n := min(len(buf)/2, len(dst))
	for i := range n {
		dst[i] = int16(binary.LittleEndian.Uint16(buf[2*i:]))
	}
	return n
}

// FallbackBlockSamples returns the block length used when a device cannot
// report a minimum buffer size: sampleRate*2 samples, two seconds of mono audio.
func FallbackBlockSamples(sampleRate int) int {
	return sampleRate * 2
}
