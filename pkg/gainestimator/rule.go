package gainestimator

import (
	"fmt"
	"math"
	"strings"

	"github.com/xaionaro-go/spectraldenoise/pkg/spectrum"
)

// SuppressionRule computes a per-bin gain in [0, 1] from a signal power
// spectrum and the noise thresholds (noise power) of the same size.
//
// Bins whose noise threshold is at or below spectrum.Epsilon carry no
// information about noise and always get gain 1.
type SuppressionRule interface {
	ComputeGain(signal, noiseThreshold, gain []float64)
}

// SpectralGating opens a bin fully when it reaches its threshold and closes
// it otherwise.
type SpectralGating struct{}

var _ SuppressionRule = SpectralGating{}

func (SpectralGating) ComputeGain(signal, noiseThreshold, gain []float64) {
	for k := range gain {
		switch {
		case noiseThreshold[k] <= spectrum.Epsilon:
			gain[k] = 1
		case signal[k] >= noiseThreshold[k]:
			gain[k] = 1
		default:
			gain[k] = 0
		}
	}
}

// WidebandGating makes one open/closed decision for the whole frame from
// the summed signal and noise energies.
type WidebandGating struct{}

var _ SuppressionRule = WidebandGating{}

func (WidebandGating) ComputeGain(signal, noiseThreshold, gain []float64) {
	var signalSum, noiseSum float64
	for k := range gain {
		signalSum += signal[k]
		noiseSum += noiseThreshold[k]
	}

	open := noiseSum <= spectrum.Epsilon || signalSum >= noiseSum
	for k := range gain {
		if open || noiseThreshold[k] <= spectrum.Epsilon {
			gain[k] = 1
		} else {
			gain[k] = 0
		}
	}
}

// PowerSubtraction removes the noise power from every bin.
type PowerSubtraction struct{}

var _ SuppressionRule = PowerSubtraction{}

func (PowerSubtraction) ComputeGain(signal, noiseThreshold, gain []float64) {
	for k := range gain {
		switch {
		case noiseThreshold[k] <= spectrum.Epsilon:
			gain[k] = 1
		case signal[k] > noiseThreshold[k]:
			gain[k] = (signal[k] - noiseThreshold[k]) / signal[k]
		default:
			gain[k] = 0
		}
	}
}

// DefaultSNRInfluence is the SNR influence used by NewRule.
const DefaultSNRInfluence = 1.0

// NonlinearPowerSubtraction over-subtracts the noise by a factor that grows
// with the square root of the a posteriori SNR of the bin. A non-positive
// SNRInfluence turns the over-subtraction off.
type NonlinearPowerSubtraction struct {
	SNRInfluence float64
}

var _ SuppressionRule = NonlinearPowerSubtraction{}

func (r NonlinearPowerSubtraction) ComputeGain(signal, noiseThreshold, gain []float64) {
	for k := range gain {
		if noiseThreshold[k] <= spectrum.Epsilon {
			gain[k] = 1
			continue
		}

		var g float64
		if signal[k] > 0 {
			alpha := 1.0
			if r.SNRInfluence > 0 {
				alpha = r.SNRInfluence + math.Sqrt(signal[k]/noiseThreshold[k])
			}
			g = math.Max(signal[k]-alpha*noiseThreshold[k], 0) / signal[k]
		}

		// the clamp is on the suppression factor, not on the gain
		suppression := 1 - g
		if suppression < 0 {
			suppression = 0
		}
		if suppression > 1 || math.IsNaN(suppression) {
			suppression = 1
		}
		gain[k] = 1 - suppression
	}
}

// Rule selects one of the suppression rules.
type Rule uint

const (
	RuleUndefined = Rule(iota)
	RuleSpectralGating
	RuleWidebandGating
	RulePowerSubtraction
	RuleNonlinearPowerSubtraction
	endOfRule
)

func (r Rule) String() string {
	switch r {
	case RuleUndefined:
		return "undefined"
	case RuleSpectralGating:
		return "spectral-gating"
	case RuleWidebandGating:
		return "wideband-gating"
	case RulePowerSubtraction:
		return "power-subtraction"
	case RuleNonlinearPowerSubtraction:
		return "nonlinear-power-subtraction"
	default:
		return fmt.Sprintf("unknown_rule_%d", uint(r))
	}
}

// Set implements pflag.Value.
func (r *Rule) Set(s string) error {
	s = strings.ToLower(strings.TrimSpace(s))
	for candidate := RuleUndefined + 1; candidate < endOfRule; candidate++ {
		if candidate.String() == s {
			*r = candidate
			return nil
		}
	}
	return fmt.Errorf("unknown suppression rule '%s'", s)
}

// Type implements pflag.Value.
func (r *Rule) Type() string {
	return "rule"
}

// NewRule returns the rule implementation with its defaults.
func NewRule(r Rule) (SuppressionRule, error) {
	switch r {
	case RuleSpectralGating:
		return SpectralGating{}, nil
	case RuleWidebandGating:
		return WidebandGating{}, nil
	case RulePowerSubtraction:
		return PowerSubtraction{}, nil
	case RuleNonlinearPowerSubtraction:
		return NonlinearPowerSubtraction{SNRInfluence: DefaultSNRInfluence}, nil
	default:
		return nil, fmt.Errorf("unknown suppression rule: %v", r)
	}
}
