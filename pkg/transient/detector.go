// Package transient detects onsets in a sequence of power spectra using
// the half-wave rectified spectral flux compared against its running mean.
package transient

import (
	"math"
)

// ThresholdUpperLimit bounds the threshold control: the adapted threshold
// is (ThresholdUpperLimit - control) times the running mean of the flux.
const ThresholdUpperLimit = 5.0

// Detector keeps the previous power spectrum and a running mean of the
// spectral flux. The state is cold at construction: the first frame is
// compared against silence.
type Detector struct {
	halfSize      int
	previousPower []float64
	rollingMean   float64
	frameCount    uint64
	lastFlux      float64
}

// New returns a detector for spectra of transformSize/2+1 bins.
func New(transformSize int) *Detector {
	halfSize := transformSize / 2
	return &Detector{
		halfSize:      halfSize,
		previousPower: make([]float64, halfSize+1),
	}
}

// Detect updates the statistics with power and reports whether the frame
// contains a transient.
func (d *Detector) Detect(power []float64, threshold float64) bool {
	flux := d.spectralFlux(power)
	d.lastFlux = flux

	d.frameCount++
	if d.frameCount > 1 {
		d.rollingMean += (flux - d.rollingMean) / float64(d.frameCount)
	} else {
		d.rollingMean = flux
	}

	adaptedThreshold := (ThresholdUpperLimit - threshold) * d.rollingMean
	copy(d.previousPower, power)
	return flux > adaptedThreshold
}

// Flux returns the spectral flux of the last frame passed to Detect.
func (d *Detector) Flux() float64 {
	return d.lastFlux
}

// RollingMean returns the running mean of the spectral flux.
func (d *Detector) RollingMean() float64 {
	return d.rollingMean
}

func (d *Detector) spectralFlux(power []float64) float64 {
	var flux float64
	for k := 1; k <= d.halfSize; k++ {
		diff := math.Sqrt(power[k]) - math.Sqrt(d.previousPower[k])
		if diff > 0 {
			flux += diff
		}
	}
	return flux
}
