package denoiser

import (
	"fmt"

	"github.com/hashicorp/go-multierror"
	"github.com/xaionaro-go/spectraldenoise/pkg/gainestimator"
)

// Config fixes the geometry of a FrameDenoiser. It cannot change after
// construction.
type Config struct {
	TransformSize   int
	SampleRate      float64
	HopSize         int
	SuppressionRule gainestimator.Rule
}

// DefaultConfig returns a 2048-point, 4x overlap configuration at 48kHz.
func DefaultConfig() Config {
	return Config{
		TransformSize:   2048,
		SampleRate:      48000,
		HopSize:         512,
		SuppressionRule: gainestimator.RulePowerSubtraction,
	}
}

// HalfSize returns TransformSize/2.
func (cfg Config) HalfSize() int {
	return cfg.TransformSize / 2
}

// BinCount returns TransformSize/2+1.
func (cfg Config) BinCount() int {
	return cfg.TransformSize/2 + 1
}

// Validate returns all the problems of the configuration at once.
func (cfg Config) Validate() error {
	var mErr *multierror.Error
	if cfg.TransformSize < 4 || cfg.TransformSize&(cfg.TransformSize-1) != 0 {
		mErr = multierror.Append(mErr, fmt.Errorf("the transform size must be a power of two not less than 4, got %d", cfg.TransformSize))
	}
	if !(cfg.SampleRate > 0) {
		mErr = multierror.Append(mErr, fmt.Errorf("the sample rate must be positive, got %v", cfg.SampleRate))
	}
	if cfg.HopSize <= 0 || cfg.HopSize > cfg.TransformSize {
		mErr = multierror.Append(mErr, fmt.Errorf("the hop size must be in (0, %d], got %d", cfg.TransformSize, cfg.HopSize))
	}
	if _, err := gainestimator.NewRule(cfg.SuppressionRule); err != nil {
		mErr = multierror.Append(mErr, err)
	}
	return mErr.ErrorOrNil()
}
