// Package whitening flattens the envelope of a residual spectrum, so the
// noise left in the output sounds white instead of colored.
package whitening

import (
	"math"

	"github.com/xaionaro-go/spectraldenoise/pkg/spectrum"
)

const (
	// DecayRate is the time constant (in milliseconds) of the decay of the
	// per-bin maximum envelope.
	DecayRate = 1000.0

	// Floor is the lowest value of the envelope.
	Floor = 0.02
)

// Whitener tracks a decaying per-bin maximum of the residual magnitude and
// normalizes the residual by it.
type Whitener struct {
	binCount   int
	decay      float64
	frameCount uint64

	envelope         []float64
	whitenedResidual []float64
}

// New returns a whitener for frames of transformSize, produced every
// hopSize samples at sampleRate.
func New(transformSize int, sampleRate float64, hopSize int) *Whitener {
	binCount := transformSize/2 + 1
	return &Whitener{
		binCount:         binCount,
		decay:            math.Exp(-1000 / (DecayRate * sampleRate / float64(hopSize))),
		envelope:         make([]float64, binCount),
		whitenedResidual: make([]float64, binCount),
	}
}

// Run whitens residual in place with the given factor in [0, 1]: each
// bin becomes (1-factor)*residual + factor*residual/envelope. A zero factor
// leaves the residual and the envelope untouched.
func (w *Whitener) Run(residual spectrum.Packed, factor float64) {
	if factor <= 0 {
		return
	}
	if residual.BinCount() != w.binCount {
		panic("residual frame size does not match the whitener")
	}

	w.frameCount++
	for k := 0; k < w.binCount; k++ {
		re, im := residual.Bin(k)
		magnitude := math.Hypot(re, im)

		envelope := math.Max(magnitude, Floor)
		if w.frameCount > 1 {
			envelope = math.Max(envelope, w.envelope[k]*w.decay)
		}
		w.envelope[k] = envelope

		if magnitude <= spectrum.Epsilon {
			w.whitenedResidual[k] = 0
			continue
		}
		w.whitenedResidual[k] = magnitude / envelope
		residual.ScaleBin(k, (1-factor)+factor/envelope)
	}
}

// Envelope returns the current per-bin envelope.
func (w *Whitener) Envelope() []float64 {
	return w.envelope
}

// WhitenedResidual returns the whitened residual magnitudes of the last
// frame.
func (w *Whitener) WhitenedResidual() []float64 {
	return w.whitenedResidual
}
