package stft

import (
	"fmt"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func allBackends() []Backend {
	return []Backend{BackendGoDSP, BackendFourier}
}

func TestTransform_RoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(0))
	for _, backend := range allBackends() {
		t.Run(backend.String(), func(t *testing.T) {
			tr, err := NewTransform(backend, 64)
			require.NoError(t, err)
			require.Equal(t, 64, tr.Size())

			src := make([]float64, 64)
			for idx := range src {
				src[idx] = rng.NormFloat64()
			}
			coeffs := make([]complex128, 64)
			require.NoError(t, tr.Forward(coeffs, src))

			var sum float64
			for _, v := range src {
				sum += v
			}
			require.InDelta(t, sum, real(coeffs[0]), 1e-9, "DC is unnormalized")

			dst := make([]float64, 64)
			require.NoError(t, tr.Inverse(dst, coeffs))
			require.InDeltaSlice(t, src, dst, 1e-9)
		})
	}
}

func TestNewTransform(t *testing.T) {
	_, err := NewTransform(BackendFourier, 48)
	require.Error(t, err)
	_, err = NewTransform(BackendGoDSP, 48)
	require.NoError(t, err)
	_, err = NewTransform(BackendGoDSP, 7)
	require.Error(t, err)
	_, err = NewTransform(BackendUndefined, 64)
	require.Error(t, err)
}

func TestBackendFlag(t *testing.T) {
	var b Backend
	require.NoError(t, b.Set("Fourier"))
	require.Equal(t, BackendFourier, b)
	require.NoError(t, b.Set("go-dsp"))
	require.Equal(t, BackendGoDSP, b)
	require.Error(t, b.Set("fftw"))
	require.Equal(t, "backend", b.Type())
}

func TestPackUnpack(t *testing.T) {
	coeffs := []complex128{10, 1 + 2i, 3 - 4i, 5 + 6i, -7, 5 - 6i, 3 + 4i, 1 - 2i}
	frame := make([]float64, 8)
	pack(frame, coeffs)
	require.Equal(t, []float64{10, 1, 3, 5, -7, 6, -4, 2}, frame)

	restored := make([]complex128, 8)
	unpack(restored, frame)
	require.Equal(t, coeffs, restored)
}

func TestSTFT_PerfectReconstruction(t *testing.T) {
	for _, backend := range allBackends() {
		for _, hop := range []int{64, 128} {
			t.Run(fmt.Sprintf("%s/hop%d", backend, hop), func(t *testing.T) {
				s, err := New(256, hop, backend)
				require.NoError(t, err)
				require.Equal(t, 256-hop, s.Latency())

				rng := rand.New(rand.NewSource(1))
				input := make([]float64, hop*40)
				for idx := range input {
					input[idx] = rng.Float64()*2 - 1
				}
				output := make([]float64, len(input))
				for offset := 0; offset < len(input); offset += hop {
					require.NoError(t, s.ProcessHop(input[offset:offset+hop], output[offset:offset+hop], nil))
				}

				latency := s.Latency()
				for idx := 0; idx < latency; idx++ {
					assert.InDelta(t, 0, output[idx], 1e-9)
				}
				for idx := latency; idx < len(output); idx++ {
					require.InDelta(t, input[idx-latency], output[idx], 1e-9, "sample %d", idx)
				}
			})
		}
	}
}

func TestSTFT_FrameLayout(t *testing.T) {
	s, err := New(64, 32, BackendGoDSP)
	require.NoError(t, err)

	in := make([]float64, 32)
	out := make([]float64, 32)
	var frame []float64
	for i := 0; i < 2; i++ {
		for n := range in {
			in[n] = math.Cos(2 * math.Pi * 4 * float64(i*32+n) / 64)
		}
		require.NoError(t, s.ProcessHop(in, out, func(f []float64) {
			frame = append(frame[:0], f...)
		}))
	}

	var (
		peak          int
		peakMagnitude float64
	)
	for k := 1; k < 32; k++ {
		magnitude := math.Hypot(frame[k], frame[64-k])
		if magnitude > peakMagnitude {
			peak, peakMagnitude = k, magnitude
		}
	}
	require.Equal(t, 4, peak)
}

func TestSTFT_ZeroedSpectrumIsSilent(t *testing.T) {
	s, err := New(128, 32, BackendFourier)
	require.NoError(t, err)
	in := make([]float64, 32)
	out := make([]float64, 32)
	for n := range in {
		in[n] = 1
	}
	for i := 0; i < 10; i++ {
		require.NoError(t, s.ProcessHop(in, out, func(frame []float64) {
			for k := range frame {
				frame[k] = 0
			}
		}))
		for _, v := range out {
			require.InDelta(t, 0, v, 1e-12)
		}
	}
}

func TestSTFT_WrongHop(t *testing.T) {
	s, err := New(128, 32, BackendGoDSP)
	require.NoError(t, err)
	require.Error(t, s.ProcessHop(make([]float64, 31), make([]float64, 32), nil))

	_, err = New(128, 0, BackendGoDSP)
	require.Error(t, err)
}
