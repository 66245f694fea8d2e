package stft

import (
	"fmt"
	"strings"

	"github.com/brettbuddin/fourier"
	"github.com/mjibson/go-dsp/fft"
)

// Transform is a forward/inverse discrete Fourier transform of a fixed size.
//
// Forward is unnormalized; Inverse divides by the size, so that
// Inverse(Forward(x)) == x.
type Transform interface {
	Size() int
	Forward(dst []complex128, src []float64) error
	Inverse(dst []float64, src []complex128) error
}

// Backend selects the FFT library behind a Transform.
type Backend uint

const (
	BackendUndefined = Backend(iota)
	BackendGoDSP
	BackendFourier
	endOfBackend
)

func (b Backend) String() string {
	switch b {
	case BackendUndefined:
		return "undefined"
	case BackendGoDSP:
		return "go-dsp"
	case BackendFourier:
		return "fourier"
	default:
		return fmt.Sprintf("unknown_backend_%d", uint(b))
	}
}

// Set implements pflag.Value.
func (b *Backend) Set(s string) error {
	s = strings.ToLower(strings.TrimSpace(s))
	for candidate := BackendUndefined + 1; candidate < endOfBackend; candidate++ {
		if candidate.String() == s {
			*b = candidate
			return nil
		}
	}
	return fmt.Errorf("unknown FFT backend '%s'", s)
}

// Type implements pflag.Value.
func (b *Backend) Type() string {
	return "backend"
}

// NewTransform returns a Transform of the given size computed by backend.
func NewTransform(backend Backend, size int) (Transform, error) {
	if size < 2 || size%2 != 0 {
		return nil, fmt.Errorf("the transform size must be even and at least 2, got %d", size)
	}
	switch backend {
	case BackendGoDSP:
		return GoDSP{size: size}, nil
	case BackendFourier:
		if size&(size-1) != 0 {
			return nil, fmt.Errorf("the fourier backend requires a power-of-two size, got %d", size)
		}
		return &Fourier{buf: make([]complex128, size)}, nil
	default:
		return nil, fmt.Errorf("unknown FFT backend: %v", backend)
	}
}

// GoDSP is backed by github.com/mjibson/go-dsp/fft and supports any even
// size. It allocates on every call.
type GoDSP struct {
	size int
}

var _ Transform = GoDSP{}

func (t GoDSP) Size() int {
	return t.size
}

func (t GoDSP) Forward(dst []complex128, src []float64) error {
	if len(src) != t.size || len(dst) != t.size {
		return fmt.Errorf("expected buffers of %d values, got %d and %d", t.size, len(src), len(dst))
	}
	copy(dst, fft.FFTReal(src))
	return nil
}

func (t GoDSP) Inverse(dst []float64, src []complex128) error {
	if len(src) != t.size || len(dst) != t.size {
		return fmt.Errorf("expected buffers of %d values, got %d and %d", t.size, len(src), len(dst))
	}
	for idx, v := range fft.IFFT(src) {
		dst[idx] = real(v)
	}
	return nil
}

// Fourier is backed by the in-place radix-2 github.com/brettbuddin/fourier.
// The inverse is computed as conj(FFT(conj(x)))/N.
type Fourier struct {
	buf []complex128
}

var _ Transform = (*Fourier)(nil)

func (t *Fourier) Size() int {
	return len(t.buf)
}

func (t *Fourier) Forward(dst []complex128, src []float64) error {
	if len(src) != len(t.buf) || len(dst) != len(t.buf) {
		return fmt.Errorf("expected buffers of %d values, got %d and %d", len(t.buf), len(src), len(dst))
	}
	for idx, v := range src {
		dst[idx] = complex(v, 0)
	}
	if err := fourier.Forward(dst); err != nil {
		return fmt.Errorf("unable to compute the forward transform: %w", err)
	}
	return nil
}

func (t *Fourier) Inverse(dst []float64, src []complex128) error {
	if len(src) != len(t.buf) || len(dst) != len(t.buf) {
		return fmt.Errorf("expected buffers of %d values, got %d and %d", len(t.buf), len(src), len(dst))
	}
	for idx, v := range src {
		t.buf[idx] = complex(real(v), -imag(v))
	}
	if err := fourier.Forward(t.buf); err != nil {
		return fmt.Errorf("unable to compute the inverse transform: %w", err)
	}
	scale := 1 / float64(len(t.buf))
	for idx, v := range t.buf {
		dst[idx] = real(v) * scale
	}
	return nil
}
