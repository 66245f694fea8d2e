// Package stft turns a stream of samples into half-complex packed spectral
// frames and back using a windowed overlap-add.
package stft

import (
	"fmt"
	"math"

	"github.com/xaionaro-go/spectraldenoise/pkg/spectrum"
)

// STFT is a streaming analysis/synthesis pair. A periodic Hann window is
// applied both before the forward and after the inverse transform; the
// overlap-add is divided by the accumulated squared window.
type STFT struct {
	frameSize int
	hopSize   int
	transform Transform

	window []float64

	input    []float64
	windowed []float64
	coeffs   []complex128
	frame    spectrum.Packed
	timeBuf  []float64

	outputAccum []float64
	normAccum   []float64
}

// New returns an STFT of frameSize samples advanced by hopSize.
func New(frameSize, hopSize int, backend Backend) (*STFT, error) {
	if hopSize <= 0 || hopSize > frameSize {
		return nil, fmt.Errorf("the hop size must be in (0, %d], got %d", frameSize, hopSize)
	}
	transform, err := NewTransform(backend, frameSize)
	if err != nil {
		return nil, fmt.Errorf("unable to initialize the transform: %w", err)
	}

	s := &STFT{
		frameSize:   frameSize,
		hopSize:     hopSize,
		transform:   transform,
		window:      make([]float64, frameSize),
		input:       make([]float64, frameSize),
		windowed:    make([]float64, frameSize),
		coeffs:      make([]complex128, frameSize),
		frame:       make(spectrum.Packed, frameSize),
		timeBuf:     make([]float64, frameSize),
		outputAccum: make([]float64, frameSize),
		normAccum:   make([]float64, frameSize),
	}
	for n := range s.window {
		s.window[n] = 0.5 - 0.5*math.Cos(2*math.Pi*float64(n)/float64(frameSize))
	}
	return s, nil
}

func (s *STFT) FrameSize() int {
	return s.frameSize
}

func (s *STFT) HopSize() int {
	return s.hopSize
}

// Latency is the delay (in samples) between an input sample and its
// reconstruction in the output.
func (s *STFT) Latency() int {
	return s.frameSize - s.hopSize
}

// ProcessHop consumes exactly HopSize samples of in, calls fn with the
// packed spectrum of the current frame (fn may modify it in place) and
// writes HopSize reconstructed samples into out.
func (s *STFT) ProcessHop(in, out []float64, fn func(frame []float64)) error {
	if len(in) != s.hopSize || len(out) != s.hopSize {
		return fmt.Errorf("expected %d samples, got %d in and %d out", s.hopSize, len(in), len(out))
	}

	copy(s.input, s.input[s.hopSize:])
	copy(s.input[s.frameSize-s.hopSize:], in)
	for n, v := range s.input {
		s.windowed[n] = v * s.window[n]
	}

	if err := s.transform.Forward(s.coeffs, s.windowed); err != nil {
		return err
	}
	pack(s.frame, s.coeffs)
	if fn != nil {
		fn(s.frame)
	}
	unpack(s.coeffs, s.frame)
	if err := s.transform.Inverse(s.timeBuf, s.coeffs); err != nil {
		return err
	}

	for n, v := range s.timeBuf {
		w := s.window[n]
		s.outputAccum[n] += v * w
		s.normAccum[n] += w * w
	}
	for n := range out {
		if s.normAccum[n] > spectrum.Epsilon {
			out[n] = s.outputAccum[n] / s.normAccum[n]
		} else {
			out[n] = 0
		}
	}

	copy(s.outputAccum, s.outputAccum[s.hopSize:])
	copy(s.normAccum, s.normAccum[s.hopSize:])
	tail := s.frameSize - s.hopSize
	for n := tail; n < s.frameSize; n++ {
		s.outputAccum[n] = 0
		s.normAccum[n] = 0
	}
	return nil
}

// Reset forgets the history, as if the STFT was just created.
func (s *STFT) Reset() {
	for _, buf := range [][]float64{s.input, s.outputAccum, s.normAccum} {
		for n := range buf {
			buf[n] = 0
		}
	}
}

func pack(dst spectrum.Packed, src []complex128) {
	size := len(dst)
	half := size / 2
	for k := 0; k <= half; k++ {
		dst[k] = real(src[k])
	}
	for k := 1; k < half; k++ {
		dst[size-k] = imag(src[k])
	}
}

func unpack(dst []complex128, src spectrum.Packed) {
	size := len(src)
	half := size / 2
	dst[0] = complex(src[0], 0)
	dst[half] = complex(src[half], 0)
	for k := 1; k < half; k++ {
		re, im := src[k], src[size-k]
		dst[k] = complex(re, im)
		dst[size-k] = complex(re, -im)
	}
}
