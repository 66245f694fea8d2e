// Package noiseestimator builds noise magnitude profiles out of power
// spectra.
package noiseestimator

import (
	"math"

	"github.com/xaionaro-go/spectraldenoise/pkg/noiseprofile"
	"github.com/xaionaro-go/spectraldenoise/pkg/spectrum"
)

// Estimator learns a noise profile as the per-bin mean magnitude of the
// frames it is fed. Feeding silent frames is the caller's responsibility
// to avoid.
type Estimator struct {
	binCount   int
	frameCount uint64
	available  bool
}

// New returns an estimator for spectra of transformSize/2+1 bins.
func New(transformSize int) *Estimator {
	return &Estimator{
		binCount: transformSize/2 + 1,
	}
}

// Run accumulates power into profile in place.
//
// A profile that does not hold an estimate (never learned, or reset by the
// host) restarts the average. A nil profile is ignored.
func (e *Estimator) Run(profile *noiseprofile.Profile, power []float64) {
	if profile == nil {
		return
	}
	if len(profile.Magnitudes) != e.binCount {
		profile.Magnitudes = make([]float64, e.binCount)
		profile.Size = 0
	}
	if !profile.IsAvailable(e.binCount) {
		e.frameCount = 0
	}

	e.frameCount++
	if e.frameCount == 1 {
		for k := range profile.Magnitudes {
			profile.Magnitudes[k] = math.Sqrt(power[k])
		}
	} else {
		n := float64(e.frameCount)
		for k := range profile.Magnitudes {
			profile.Magnitudes[k] += (math.Sqrt(power[k]) - profile.Magnitudes[k]) / n
		}
	}
	profile.Size = uint32(e.binCount)
	e.available = profile.IsAvailable(e.binCount)
}

// IsAvailable reports whether a learning pass produced a usable profile.
func (e *Estimator) IsAvailable() bool {
	return e.available
}

// FrameCount returns the amount of frames averaged into the current
// estimate.
func (e *Estimator) FrameCount() uint64 {
	return e.frameCount
}

const (
	// adaptiveSignalThreshold is how far above the estimate a bin may be
	// to still be treated as noise.
	adaptiveSignalThreshold = 2.0
	adaptiveRiseRate        = 0.01
	adaptiveFallRate        = 0.1
)

// Adaptive tracks the noise floor continuously on every frame it is fed,
// keeping the estimate in a profile it owns.
type Adaptive struct {
	binCount int
	profile  *noiseprofile.Profile
}

// NewAdaptive returns an adaptive estimator for spectra of
// transformSize/2+1 bins.
func NewAdaptive(transformSize int) *Adaptive {
	binCount := transformSize/2 + 1
	return &Adaptive{
		binCount: binCount,
		profile:  noiseprofile.New(binCount),
	}
}

// Run updates the estimate with power. The first non-silent frame seeds
// it; afterwards bins below the estimate are followed quickly and bins
// moderately above it slowly, while louder bins are left alone.
func (a *Adaptive) Run(power []float64) {
	if spectrum.IsEmpty(power) {
		return
	}
	magnitudes := a.profile.Magnitudes
	if a.profile.Size == 0 {
		for k := range magnitudes {
			magnitudes[k] = math.Sqrt(power[k])
		}
		a.profile.Size = uint32(a.binCount)
		return
	}
	for k := range magnitudes {
		magnitude := math.Sqrt(power[k])
		switch {
		case magnitudes[k] <= spectrum.Epsilon:
			magnitudes[k] = magnitude
		case magnitude < magnitudes[k]:
			magnitudes[k] += (magnitude - magnitudes[k]) * adaptiveFallRate
		case magnitude < adaptiveSignalThreshold*magnitudes[k]:
			magnitudes[k] += (magnitude - magnitudes[k]) * adaptiveRiseRate
		}
	}
}

// Profile returns the estimate. It is owned by the Adaptive.
func (a *Adaptive) Profile() *noiseprofile.Profile {
	return a.profile
}

// Reset forgets the estimate.
func (a *Adaptive) Reset() {
	a.profile.Reset()
}
