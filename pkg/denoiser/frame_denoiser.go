// Package denoiser implements the frame-wise spectral noise reduction
// pipeline: it consumes frequency-domain frames in the half-complex packed
// layout and writes the denoised frames back in place.
//
// A FrameDenoiser is not safe for concurrent use. Run never allocates and
// never blocks; all the buffers are sized at construction.
package denoiser

import (
	"context"
	"fmt"
	"math"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/xaionaro-go/spectraldenoise/pkg/gainestimator"
	"github.com/xaionaro-go/spectraldenoise/pkg/noiseestimator"
	"github.com/xaionaro-go/spectraldenoise/pkg/noiseprofile"
	"github.com/xaionaro-go/spectraldenoise/pkg/spectrum"
	"github.com/xaionaro-go/spectraldenoise/pkg/whitening"
)

// wetDryCornerFrequency is the corner frequency (Hz) of the bypass ramp.
const wetDryCornerFrequency = 25.0

type FrameDenoiser struct {
	config   Config
	halfSize int
	binCount int

	gainEstimator  *gainestimator.GainEstimator
	noiseEstimator *noiseestimator.Estimator
	adaptiveNoise  *noiseestimator.Adaptive
	whitener       *whitening.Whitener
	rules          [gainestimator.RuleNonlinearPowerSubtraction + 1]gainestimator.SuppressionRule

	tau          float64
	wetDryTarget float64
	wetDry       float64

	input     spectrum.Packed
	processed spectrum.Packed
	denoised  spectrum.Packed
	residual  spectrum.Packed

	power     []float64
	magnitude []float64
	phase     []float64
	gain      []float64
}

// New validates cfg and allocates every buffer of the pipeline.
func New(ctx context.Context, cfg Config) (*FrameDenoiser, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	d := &FrameDenoiser{
		config:         cfg,
		halfSize:       cfg.HalfSize(),
		binCount:       cfg.BinCount(),
		noiseEstimator: noiseestimator.New(cfg.TransformSize),
		adaptiveNoise:  noiseestimator.NewAdaptive(cfg.TransformSize),
		whitener:       whitening.New(cfg.TransformSize, cfg.SampleRate, cfg.HopSize),
		tau:            1 - math.Exp(-2*math.Pi*wetDryCornerFrequency*float64(cfg.HopSize)/cfg.SampleRate),
		input:          make(spectrum.Packed, cfg.TransformSize),
		processed:      make(spectrum.Packed, cfg.TransformSize),
		denoised:       make(spectrum.Packed, cfg.TransformSize),
		residual:       make(spectrum.Packed, cfg.TransformSize),
		power:          make([]float64, cfg.BinCount()),
		magnitude:      make([]float64, cfg.BinCount()),
		phase:          make([]float64, cfg.BinCount()),
		gain:           make([]float64, cfg.BinCount()),
	}
	for r := gainestimator.RuleUndefined + 1; int(r) < len(d.rules); r++ {
		rule, err := gainestimator.NewRule(r)
		if err != nil {
			return nil, fmt.Errorf("unable to initialize rule %v: %w", r, err)
		}
		d.rules[r] = rule
	}
	d.gainEstimator = gainestimator.New(cfg.TransformSize, cfg.SampleRate, cfg.HopSize, d.rules[cfg.SuppressionRule])
	for k := range d.gain {
		d.gain[k] = 1
	}

	logger.Debugf(ctx, "initialized a frame denoiser: transform size %d, hop %d, sample rate %v, rule %v, wet/dry tau %v",
		cfg.TransformSize, cfg.HopSize, cfg.SampleRate, cfg.SuppressionRule, d.tau)
	return d, nil
}

// Config returns the configuration the denoiser was built with.
func (d *FrameDenoiser) Config() Config {
	return d.config
}

// SetSuppressionRule switches the gain rule starting from the next frame.
func (d *FrameDenoiser) SetSuppressionRule(rule gainestimator.Rule) error {
	if rule <= gainestimator.RuleUndefined || int(rule) >= len(d.rules) {
		return fmt.Errorf("unknown suppression rule: %v", rule)
	}
	d.config.SuppressionRule = rule
	d.gainEstimator.SetRule(d.rules[rule])
	return nil
}

// Run denoises frame (TransformSize values, half-complex packed) in place
// using the parameter snapshot params and the host noise profile.
//
// While learning the profile is updated and the frame is passed through.
// Otherwise the profile is only read.
func (d *FrameDenoiser) Run(
	frame []float64,
	params Parameters,
	profile *noiseprofile.Profile,
) {
	if len(frame) != d.config.TransformSize {
		panic(fmt.Sprintf("frame has %d values, expected %d", len(frame), d.config.TransformSize))
	}
	params = params.Clamped()

	d.updateWetDry(params.Enable)

	copy(d.input, frame)
	copy(d.processed, frame)
	spectrum.Decompose(d.input, d.power, d.magnitude, d.phase)

	if !spectrum.IsEmpty(d.power) {
		switch {
		case params.LearnNoise:
			d.noiseEstimator.Run(profile, d.power)
		case params.AutoLearnNoise:
			d.adaptiveNoise.Run(d.power)
			d.suppress(params, d.adaptiveNoise.Profile())
		default:
			d.suppress(params, profile)
		}
	}

	wet := d.wetDry
	for idx := range frame {
		frame[idx] = (1-wet)*d.input[idx] + wet*d.processed[idx]
	}
}

func (d *FrameDenoiser) suppress(params Parameters, profile *noiseprofile.Profile) {
	if !profile.IsAvailable(d.binCount) {
		return
	}

	d.gainEstimator.Run(d.power, profile.Magnitudes, d.gain, gainestimator.Controls{
		TransientThreshold: params.TransientThreshold,
		MaskingCeiling:     params.MaskingCeilingLimit / 100,
		ReleaseTime:        params.ReleaseTime,
		NoiseRescale:       params.NoiseRescale,
	})

	copy(d.denoised, d.input)
	for k := 0; k <= d.halfSize; k++ {
		d.denoised.ScaleBin(k, d.gain[k])
	}
	for idx := range d.residual {
		d.residual[idx] = d.input[idx] - d.denoised[idx]
	}

	if params.WhiteningFactor > 0 {
		d.whitener.Run(d.residual, params.WhiteningFactor)
	}

	if params.ResidualListen {
		copy(d.processed, d.residual)
		return
	}
	reduction := spectrum.FromDB(params.ReductionAmount)
	for idx := range d.processed {
		d.processed[idx] = d.denoised[idx] + d.residual[idx]*reduction
	}
}

func (d *FrameDenoiser) updateWetDry(enable bool) {
	if enable {
		d.wetDryTarget = 1
	} else {
		d.wetDryTarget = 0
	}
	d.wetDry += d.tau * (d.wetDryTarget - d.wetDry)
	switch {
	case d.wetDry < 0:
		d.wetDry = 0
	case d.wetDry > 1:
		d.wetDry = 1
	}
}

// WetDry returns the current blend ratio between the processed (1) and the
// raw (0) spectrum.
func (d *FrameDenoiser) WetDry() float64 {
	return d.wetDry
}

// Gain returns the gain computed on the last suppressed frame. The slice is
// owned by the denoiser and is overwritten by Run.
func (d *FrameDenoiser) Gain() []float64 {
	return d.gain
}

// PowerSpectrum returns the power spectrum of the last frame.
func (d *FrameDenoiser) PowerSpectrum() []float64 {
	return d.power
}

// PhaseSpectrum returns the phase spectrum of the last frame.
func (d *FrameDenoiser) PhaseSpectrum() []float64 {
	return d.phase
}

// IsTransient reports whether the last suppressed frame was treated as a
// transient.
func (d *FrameDenoiser) IsTransient() bool {
	return d.gainEstimator.IsTransient()
}

// ResetAdaptiveNoise forgets the automatically learned noise estimate.
func (d *FrameDenoiser) ResetAdaptiveNoise() {
	d.adaptiveNoise.Reset()
}
