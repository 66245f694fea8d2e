package spectral

import (
	"bytes"
	"context"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/spectraldenoise/pkg/audio"
	"github.com/xaionaro-go/spectraldenoise/pkg/denoiser"
	"github.com/xaionaro-go/spectraldenoise/pkg/gainestimator"
	"github.com/xaionaro-go/spectraldenoise/pkg/noiseprofile"
	"github.com/xaionaro-go/spectraldenoise/pkg/stft"
)

func testConfig(channels audio.Channel) Config {
	return Config{
		Config: denoiser.Config{
			TransformSize:   512,
			SampleRate:      16000,
			HopSize:         128,
			SuppressionRule: gainestimator.RulePowerSubtraction,
		},
		Channels:  channels,
		PCMFormat: audio.PCMFormatFloat64LE,
		Backend:   stft.BackendFourier,
	}
}

func encode(samples []float64) []byte {
	buf := make([]byte, len(samples)*8)
	audio.PCMFormatFloat64LE.EncodeSlice(buf, samples)
	return buf
}

func decode(buf []byte) []float64 {
	samples := make([]float64, len(buf)/8)
	audio.PCMFormatFloat64LE.DecodeSlice(samples, buf)
	return samples
}

func whiteNoise(rng *rand.Rand, count int, amplitude float64) []float64 {
	samples := make([]float64, count)
	for idx := range samples {
		samples[idx] = amplitude * (rng.Float64()*2 - 1)
	}
	return samples
}

func TestSpectral_Geometry(t *testing.T) {
	ctx := context.Background()
	s, err := New(ctx, testConfig(2))
	require.NoError(t, err)
	defer s.Close()

	require.Equal(t, uint(128*8*2), s.ChunkSize())
	require.Equal(t, uint(384*8*2), s.LatencySize())

	enc, err := s.Encoding(ctx)
	require.NoError(t, err)
	require.Equal(t, audio.EncodingPCM{PCMFormat: audio.PCMFormatFloat64LE, SampleRate: 16000}, enc)

	channels, err := s.Channels(ctx)
	require.NoError(t, err)
	require.Equal(t, audio.Channel(2), channels)
}

func TestSpectral_InvalidConfig(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(0)
	_, err := New(ctx, cfg)
	require.Error(t, err)

	cfg = testConfig(1)
	cfg.PCMFormat = audio.PCMFormatUndefined
	_, err = New(ctx, cfg)
	require.Error(t, err)

	cfg = testConfig(1)
	cfg.TransformSize = 500
	_, err = New(ctx, cfg)
	require.Error(t, err)
}

func TestSpectral_PassThroughWithoutProfile(t *testing.T) {
	ctx := context.Background()
	s, err := New(ctx, testConfig(1))
	require.NoError(t, err)

	rng := rand.New(rand.NewSource(0))
	input := whiteNoise(rng, 128*40, 0.5)
	output := make([]byte, len(input)*8)
	ratio, err := s.SuppressNoise(ctx, encode(input), output)
	require.NoError(t, err)
	require.LessOrEqual(t, ratio, 1.0)

	result := decode(output)
	latency := int(s.LatencySize() / 8)
	for idx := latency; idx < len(result); idx++ {
		require.InDelta(t, input[idx-latency], result[idx], 1e-9, "sample %d", idx)
	}
}

func TestSpectral_LearnThenSuppress(t *testing.T) {
	ctx := context.Background()
	s, err := New(ctx, testConfig(1))
	require.NoError(t, err)

	params := denoiser.DefaultParameters()
	params.ReleaseTime = 0
	params.LearnNoise = true
	require.NoError(t, s.SetParameters(params))

	rng := rand.New(rand.NewSource(0))
	noise := encode(whiteNoise(rng, 128*200, 0.1))
	discard := make([]byte, len(noise))
	_, err = s.SuppressNoise(ctx, noise, discard)
	require.NoError(t, err)
	require.True(t, s.NoiseProfile(0).IsAvailable(257))

	params.LearnNoise = false
	require.NoError(t, s.SetParameters(params))
	s.Reset()

	noise = encode(whiteNoise(rng, 128*200, 0.1))
	output := make([]byte, len(noise))
	ratio, err := s.SuppressNoise(ctx, noise, output)
	require.NoError(t, err)
	assert.Less(t, ratio, 0.6)
	assert.Greater(t, ratio, 0.0)
}

func TestSpectral_MultiChannel(t *testing.T) {
	ctx := context.Background()
	s, err := New(ctx, testConfig(2))
	require.NoError(t, err)

	rng := rand.New(rand.NewSource(1))
	left := whiteNoise(rng, 128*20, 0.3)
	interleaved := make([]float64, 2*len(left))
	for idx, v := range left {
		interleaved[2*idx] = v
	}
	output := make([]byte, len(interleaved)*8)
	_, err = s.SuppressNoise(ctx, encode(interleaved), output)
	require.NoError(t, err)

	result := decode(output)
	latency := int(s.LatencySize() / 8 / 2)
	for idx := range left {
		require.Zero(t, result[2*idx+1], "the silent channel stays silent")
		if idx >= latency {
			require.InDelta(t, left[idx-latency], result[2*idx], 1e-9, "sample %d", idx)
		}
	}
}

func TestSpectral_InvalidInput(t *testing.T) {
	ctx := context.Background()
	s, err := New(ctx, testConfig(1))
	require.NoError(t, err)

	_, err = s.SuppressNoise(ctx, make([]byte, 1024), make([]byte, 1023))
	require.Error(t, err)
	_, err = s.SuppressNoise(ctx, make([]byte, 1000), make([]byte, 1000))
	require.Error(t, err)

	require.NoError(t, s.Close())
	require.Error(t, s.Close())
	_, err = s.SuppressNoise(ctx, make([]byte, 1024), make([]byte, 1024))
	require.Error(t, err)
}

func TestSpectral_Parameters(t *testing.T) {
	s, err := New(context.Background(), testConfig(1))
	require.NoError(t, err)
	require.Equal(t, denoiser.DefaultParameters(), s.Parameters())

	params := denoiser.DefaultParameters()
	params.ReductionAmount = 20
	require.Error(t, s.SetParameters(params))
	require.Equal(t, params, s.Parameters())

	require.NoError(t, s.SetSuppressionRule(gainestimator.RuleWidebandGating))
	require.Error(t, s.SetSuppressionRule(gainestimator.RuleUndefined))
}

func TestSpectral_NoiseProfileStore(t *testing.T) {
	ctx := context.Background()
	src, err := New(ctx, testConfig(1))
	require.NoError(t, err)

	var buf bytes.Buffer
	require.Error(t, src.SaveNoiseProfiles(&buf), "nothing is learned yet")

	params := denoiser.DefaultParameters()
	params.LearnNoise = true
	require.NoError(t, src.SetParameters(params))
	rng := rand.New(rand.NewSource(2))
	noise := encode(whiteNoise(rng, 128*10, 0.1))
	_, err = src.SuppressNoise(ctx, noise, make([]byte, len(noise)))
	require.NoError(t, err)

	buf.Reset()
	require.NoError(t, src.SaveNoiseProfiles(&buf))

	dst, err := New(ctx, testConfig(2))
	require.NoError(t, err)
	require.NoError(t, dst.LoadNoiseProfiles(bytes.NewReader(buf.Bytes())))
	for ch := audio.Channel(0); ch < 2; ch++ {
		require.Equal(t, src.NoiseProfile(0).Magnitudes, dst.NoiseProfile(ch).Magnitudes)
	}

	other := testConfig(1)
	other.TransformSize = 1024
	mismatched, err := New(ctx, other)
	require.NoError(t, err)
	require.Error(t, mismatched.LoadNoiseProfiles(bytes.NewReader(buf.Bytes())))
	require.Error(t, mismatched.LoadNoiseProfiles(bytes.NewReader(nil)))
}

func TestSpectral_LoadNoiseProfiles_Atomic(t *testing.T) {
	ctx := context.Background()
	s, err := New(ctx, testConfig(2))
	require.NoError(t, err)

	original := make([]float64, 257)
	for idx := range original {
		original[idx] = 0.5
	}
	s.NoiseProfile(0).Set(original)
	s.NoiseProfile(1).Set(original)

	valid := noiseprofile.New(257)
	for idx := range valid.Magnitudes {
		valid.Magnitudes[idx] = 2
	}
	valid.Size = 257
	mismatched := noiseprofile.New(10)
	mismatched.Size = 10

	var buf bytes.Buffer
	_, err = valid.WriteTo(&buf)
	require.NoError(t, err)
	_, err = mismatched.WriteTo(&buf)
	require.NoError(t, err)

	require.Error(t, s.LoadNoiseProfiles(bytes.NewReader(buf.Bytes())))
	require.Equal(t, original, s.NoiseProfile(0).Magnitudes, "a failed load leaves every channel untouched")
	require.Equal(t, original, s.NoiseProfile(1).Magnitudes)
}
