// Package spectrum contains helpers for frames produced by a real-input
// transform and stored in the half-complex packed layout:
//
//	frame[k]   = Re(X[k]), k = 0..N/2
//	frame[N-k] = Im(X[k]), k = 1..N/2-1
//
// Bins 0 (DC) and N/2 (Nyquist) are pure-real.
package spectrum

import (
	"math"
)

// Epsilon is the smallest value treated as information. Anything at or
// below it is considered to be zero (the smallest normal float32).
const Epsilon = 0x1p-126

// Packed is a frame in the half-complex packed layout.
type Packed []float64

// HalfSize returns N/2.
func (p Packed) HalfSize() int {
	return len(p) / 2
}

// BinCount returns the amount of distinct bins: N/2+1.
func (p Packed) BinCount() int {
	return len(p)/2 + 1
}

// Bin returns the real and imaginary parts of bin k.
func (p Packed) Bin(k int) (float64, float64) {
	if k == 0 || k == len(p)/2 {
		return p[k], 0
	}
	return p[k], p[len(p)-k]
}

// ScaleBin multiplies both parts of bin k by g.
func (p Packed) ScaleBin(k int, g float64) {
	p[k] *= g
	if k != 0 && k != len(p)/2 {
		p[len(p)-k] *= g
	}
}

// Decompose fills power, magnitude and phase (each of length N/2+1) from
// the packed frame.
func Decompose(frame Packed, power, magnitude, phase []float64) {
	halfSize := frame.HalfSize()
	if len(power) != halfSize+1 || len(magnitude) != halfSize+1 || len(phase) != halfSize+1 {
		panic("spectrum arrays must have N/2+1 elements")
	}
	for k := 0; k <= halfSize; k++ {
		re, im := frame.Bin(k)
		p := re*re + im*im
		power[k] = p
		magnitude[k] = math.Sqrt(p)
		phase[k] = math.Atan2(im, re)
	}
}

// IsEmpty reports whether no bin carries energy above Epsilon.
func IsEmpty(power []float64) bool {
	for _, v := range power {
		if v > Epsilon {
			return false
		}
	}
	return true
}

// FromDB converts a power-domain decibel value to a linear multiplier.
func FromDB(db float64) float64 {
	return math.Pow(10, db/10)
}
