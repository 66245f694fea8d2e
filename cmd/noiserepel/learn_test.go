package main

import (
	"bytes"
	"context"
	"io"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/spectraldenoise/pkg/audio"
	"github.com/xaionaro-go/spectraldenoise/pkg/audio/resampler"
	"github.com/xaionaro-go/spectraldenoise/pkg/denoiser"
	"github.com/xaionaro-go/spectraldenoise/pkg/noisesuppression/implementations/spectral"
)

func newTestSuppressor(t *testing.T) *spectral.Spectral {
	cfg := spectral.DefaultConfig()
	cfg.TransformSize = 256
	cfg.HopSize = 64
	cfg.SampleRate = 8000
	cfg.PCMFormat = processingFormat
	ns, err := spectral.New(context.Background(), cfg)
	require.NoError(t, err)
	return ns
}

func noiseBytes(count int) []byte {
	rng := rand.New(rand.NewSource(0))
	samples := make([]float64, count)
	for idx := range samples {
		samples[idx] = rng.NormFloat64() * 0.05
	}
	buf := make([]byte, count*8)
	processingFormat.EncodeSlice(buf, samples)
	return buf
}

func TestLearnNoise(t *testing.T) {
	ctx := context.Background()
	ns := newTestSuppressor(t)
	noise := noiseBytes(64*40 + 10)

	n, err := learnNoise(ctx, ns, denoiser.DefaultParameters(), bytes.NewReader(noise), -1)
	require.NoError(t, err)
	require.Equal(t, int64(64*40*8), n)
	require.True(t, ns.NoiseProfile(0).IsAvailable(129))
	require.False(t, ns.Parameters().LearnNoise, "learning parameters are published only for the learning pass")

	path := filepath.Join(t.TempDir(), "profile.bin")
	require.NoError(t, saveNoiseProfiles(ns, path))

	other := newTestSuppressor(t)
	require.NoError(t, loadNoiseProfiles(other, path))
	require.Equal(t, ns.NoiseProfile(0).Magnitudes, other.NoiseProfile(0).Magnitudes)
}

func TestLearnNoise_Limit(t *testing.T) {
	ctx := context.Background()
	ns := newTestSuppressor(t)
	noise := noiseBytes(64 * 40)

	rec := newRecordingReader(bytes.NewReader(noise))
	n, err := learnNoise(ctx, ns, denoiser.DefaultParameters(), rec, 64*8*5)
	require.NoError(t, err)
	require.Equal(t, int64(64*8*5), n)

	replayed, err := io.ReadAll(rec.Replay())
	require.NoError(t, err)
	require.Equal(t, noise, replayed)

	_, err = learnNoise(ctx, newTestSuppressor(t), denoiser.DefaultParameters(), bytes.NewReader(noise[:100]), -1)
	require.Error(t, err)
}

func meanMagnitude(values []float64) float64 {
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func TestLearnNoise_SkipsFramingRampIn(t *testing.T) {
	ctx := context.Background()

	long := newTestSuppressor(t)
	_, err := learnNoise(ctx, long, denoiser.DefaultParameters(), bytes.NewReader(noiseBytes(64*400)), -1)
	require.NoError(t, err)

	// three chunks fill the framing history, two are learned from
	short := newTestSuppressor(t)
	n, err := learnNoise(ctx, short, denoiser.DefaultParameters(), bytes.NewReader(noiseBytes(64*5)), -1)
	require.NoError(t, err)
	require.Equal(t, int64(64*5*8), n)

	require.InEpsilon(t,
		meanMagnitude(long.NoiseProfile(0).Magnitudes),
		meanMagnitude(short.NoiseProfile(0).Magnitudes),
		0.2,
	)

	_, err = learnNoise(ctx, newTestSuppressor(t), denoiser.DefaultParameters(), bytes.NewReader(noiseBytes(64*3)), -1)
	require.Error(t, err, "the input ends before a single full frame")
}

func TestLearnNoise_RestoresOutOfRangeParameters(t *testing.T) {
	ctx := context.Background()
	ns := newTestSuppressor(t)
	previous := denoiser.DefaultParameters()
	previous.ReductionAmount = 20
	require.Error(t, ns.SetParameters(previous))

	_, err := learnNoise(ctx, ns, denoiser.DefaultParameters(), bytes.NewReader(noiseBytes(64*10)), -1)
	require.NoError(t, err)
	require.Equal(t, previous, ns.Parameters())
}

func TestOpenInput_Raw(t *testing.T) {
	format := resampler.Format{Channels: 2, SampleRate: 8000, PCMFormat: audio.PCMFormatS16LE}
	path := filepath.Join(t.TempDir(), "input.raw")
	_, err := openInput(path, format)
	require.Error(t, err)

	require.NoError(t, os.WriteFile(path, []byte{1, 2, 3, 4}, 0640))
	f, err := openInput(path, format)
	require.NoError(t, err)
	defer f.Close()
	require.Equal(t, format, f.Format)
	data, err := io.ReadAll(f)
	require.NoError(t, err)
	require.Equal(t, []byte{1, 2, 3, 4}, data)
}
