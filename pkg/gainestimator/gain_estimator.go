// Package gainestimator computes per-bin suppression gains out of a signal
// power spectrum and a noise magnitude profile.
//
// A SuppressionRule provides the base gain. On top of it the estimator
// relaxes suppression on transient frames, smooths decaying gains over time
// (release) and limits the suppression depth (masking ceiling).
package gainestimator

import (
	"math"

	"github.com/xaionaro-go/spectraldenoise/pkg/transient"
)

// transientDepthScale is the fraction of the suppression depth kept on a
// frame flagged as a transient.
const transientDepthScale = 0.5

// Controls are the per-frame controls of the estimator.
type Controls struct {
	// TransientThreshold is the transient detector control; 0 disables
	// transient protection.
	TransientThreshold float64

	// MaskingCeiling is the maximal suppression depth in [0, 1].
	MaskingCeiling float64

	// ReleaseTime is the release time constant in milliseconds.
	ReleaseTime float64

	// NoiseRescale multiplies the noise magnitudes before comparison.
	NoiseRescale float64
}

// GainEstimator owns the working buffers and the inter-frame state
// (previous gain, transient statistics). Previous gains start at 1.
type GainEstimator struct {
	binCount          int
	sampleRate        float64
	hopSize           int
	rule              SuppressionRule
	transientDetector *transient.Detector

	noiseThreshold []float64
	previousGain   []float64

	releaseTime        float64
	releaseCoefficient float64
	lastTransient      bool
}

// New returns an estimator for spectra of transformSize/2+1 bins, produced
// every hopSize samples at sampleRate.
func New(
	transformSize int,
	sampleRate float64,
	hopSize int,
	rule SuppressionRule,
) *GainEstimator {
	binCount := transformSize/2 + 1
	g := &GainEstimator{
		binCount:          binCount,
		sampleRate:        sampleRate,
		hopSize:           hopSize,
		rule:              rule,
		transientDetector: transient.New(transformSize),
		noiseThreshold:    make([]float64, binCount),
		previousGain:      make([]float64, binCount),
	}
	for k := range g.previousGain {
		g.previousGain[k] = 1
	}
	return g
}

// SetRule replaces the suppression rule.
func (g *GainEstimator) SetRule(rule SuppressionRule) {
	g.rule = rule
}

// Rule returns the current suppression rule.
func (g *GainEstimator) Rule() SuppressionRule {
	return g.rule
}

// Run writes the gain for signal (power) given the noise magnitudes into
// gain. All three slices must have transformSize/2+1 elements.
func (g *GainEstimator) Run(
	signal []float64,
	noiseMagnitudes []float64,
	gain []float64,
	controls Controls,
) {
	if len(signal) != g.binCount || len(noiseMagnitudes) != g.binCount || len(gain) != g.binCount {
		panic("gain estimator buffers must have transformSize/2+1 elements")
	}

	for k, magnitude := range noiseMagnitudes {
		scaled := magnitude * controls.NoiseRescale
		g.noiseThreshold[k] = scaled * scaled
	}

	g.rule.ComputeGain(signal, g.noiseThreshold, gain)

	isTransient := g.transientDetector.Detect(signal, controls.TransientThreshold)
	g.lastTransient = controls.TransientThreshold > 0 && isTransient
	if g.lastTransient {
		for k := range gain {
			gain[k] = 1 - (1-gain[k])*transientDepthScale
		}
	}

	release := g.releaseCoefficientFor(controls.ReleaseTime)
	floor := 1 - controls.MaskingCeiling
	for k := range gain {
		if gain[k] < g.previousGain[k] {
			gain[k] = release*g.previousGain[k] + (1-release)*gain[k]
		}
		if gain[k] < floor {
			gain[k] = floor
		}
		g.previousGain[k] = gain[k]
	}
}

// IsTransient reports whether transient protection kicked in on the last
// frame.
func (g *GainEstimator) IsTransient() bool {
	return g.lastTransient
}

// releaseCoefficientFor returns the one-pole coefficient for a release time
// in milliseconds; it is recomputed only when the control changes.
func (g *GainEstimator) releaseCoefficientFor(releaseTime float64) float64 {
	if releaseTime == g.releaseTime {
		return g.releaseCoefficient
	}
	g.releaseTime = releaseTime
	if releaseTime <= 0 {
		g.releaseCoefficient = 0
		return 0
	}
	framesPerMillisecond := g.sampleRate / float64(g.hopSize) / 1000
	g.releaseCoefficient = math.Exp(-1 / (releaseTime * framesPerMillisecond))
	return g.releaseCoefficient
}
