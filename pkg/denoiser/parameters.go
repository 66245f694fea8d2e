package denoiser

import (
	"fmt"

	"github.com/hashicorp/go-multierror"
)

// Control ranges.
const (
	MinReductionAmount     = -100.0
	MaxReductionAmount     = 0.0
	MinReleaseTime         = 0.0
	MaxReleaseTime         = 1000.0
	MinMaskingCeilingLimit = 0.0
	MaxMaskingCeilingLimit = 100.0
	MinWhiteningFactor     = 0.0
	MaxWhiteningFactor     = 1.0
	MinTransientThreshold  = 0.0
	MaxTransientThreshold  = 5.0
	MinNoiseRescale        = 0.0
	MaxNoiseRescale        = 10.0
)

// Parameters is the snapshot of the host controls. The denoiser reads it by
// value once per frame, so an update published by another goroutine is
// picked up by the next frame at the latest.
type Parameters struct {
	Enable         bool
	LearnNoise     bool
	ResidualListen bool
	AutoLearnNoise bool

	// ReductionAmount is the attenuation of the residual in dB (<= 0).
	ReductionAmount float64

	// ReleaseTime is in milliseconds.
	ReleaseTime float64

	// MaskingCeilingLimit is the maximal suppression depth in percent.
	MaskingCeilingLimit float64

	WhiteningFactor float64

	// TransientThreshold of 0 disables transient protection.
	TransientThreshold float64

	NoiseRescale float64
}

// DefaultParameters returns an enabled, moderately aggressive setup.
func DefaultParameters() Parameters {
	return Parameters{
		Enable:              true,
		ReductionAmount:     -10,
		ReleaseTime:         150,
		MaskingCeilingLimit: 100,
		WhiteningFactor:     0,
		TransientThreshold:  0,
		NoiseRescale:        1,
	}
}

// Validate reports every control that is out of range.
func (p Parameters) Validate() error {
	var mErr *multierror.Error
	check := func(name string, v, lo, hi float64) {
		if !(v >= lo && v <= hi) {
			mErr = multierror.Append(mErr, fmt.Errorf("%s must be in [%v, %v], got %v", name, lo, hi, v))
		}
	}
	check("reduction amount", p.ReductionAmount, MinReductionAmount, MaxReductionAmount)
	check("release time", p.ReleaseTime, MinReleaseTime, MaxReleaseTime)
	check("masking ceiling limit", p.MaskingCeilingLimit, MinMaskingCeilingLimit, MaxMaskingCeilingLimit)
	check("whitening factor", p.WhiteningFactor, MinWhiteningFactor, MaxWhiteningFactor)
	check("transient threshold", p.TransientThreshold, MinTransientThreshold, MaxTransientThreshold)
	check("noise rescale", p.NoiseRescale, MinNoiseRescale, MaxNoiseRescale)
	return mErr.ErrorOrNil()
}

// Clamped returns a copy with every control forced into its range; NaN
// becomes the lower bound.
func (p Parameters) Clamped() Parameters {
	p.ReductionAmount = clamp(p.ReductionAmount, MinReductionAmount, MaxReductionAmount)
	p.ReleaseTime = clamp(p.ReleaseTime, MinReleaseTime, MaxReleaseTime)
	p.MaskingCeilingLimit = clamp(p.MaskingCeilingLimit, MinMaskingCeilingLimit, MaxMaskingCeilingLimit)
	p.WhiteningFactor = clamp(p.WhiteningFactor, MinWhiteningFactor, MaxWhiteningFactor)
	p.TransientThreshold = clamp(p.TransientThreshold, MinTransientThreshold, MaxTransientThreshold)
	p.NoiseRescale = clamp(p.NoiseRescale, MinNoiseRescale, MaxNoiseRescale)
	return p
}

func clamp(v, lo, hi float64) float64 {
	switch {
	case v > hi:
		return hi
	case v >= lo:
		return v
	default:
		return lo
	}
}
