package noisesuppression

import (
	"context"

	"github.com/xaionaro-go/spectraldenoise/pkg/audio"
)

type NoiseSuppression interface {
	audio.AbstractAnalyzer

	// ChunkSize is the granularity (in bytes) of SuppressNoise input.
	ChunkSize() uint

	// LatencySize is the delay (in bytes) between an input sample and the
	// corresponding output sample.
	LatencySize() uint

	SuppressNoise(ctx context.Context, input []byte, outputVoice []byte) (float64, error)
}
