// Package noiseprofile defines the learned per-bin noise magnitudes shared
// between the host and the denoiser, and their binary representation.
package noiseprofile

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/xaionaro-go/spectraldenoise/pkg/spectrum"
)

// MaxSize is the largest profile accepted from a store.
const MaxSize = 1 << 24

// Profile is a per-bin noise magnitude estimate. A zero Size means
// no estimate is available.
//
// The profile is owned by the host. The denoiser writes it only while
// learning and reads it only while suppressing, never both in one frame.
type Profile struct {
	Size       uint32
	Magnitudes []float64
}

// New returns an empty profile with room for binCount bins.
func New(binCount int) *Profile {
	return &Profile{
		Magnitudes: make([]float64, binCount),
	}
}

// IsAvailable reports whether the profile holds a usable estimate for
// binCount bins.
func (p *Profile) IsAvailable(binCount int) bool {
	if p == nil || int(p.Size) != binCount || len(p.Magnitudes) != binCount {
		return false
	}
	for _, v := range p.Magnitudes {
		if v > spectrum.Epsilon {
			return true
		}
	}
	return false
}

// Reset forgets the estimate while keeping the storage.
func (p *Profile) Reset() {
	p.Size = 0
	for idx := range p.Magnitudes {
		p.Magnitudes[idx] = 0
	}
}

// Set replaces the estimate with a copy of magnitudes.
func (p *Profile) Set(magnitudes []float64) {
	if cap(p.Magnitudes) < len(magnitudes) {
		p.Magnitudes = make([]float64, len(magnitudes))
	}
	p.Magnitudes = p.Magnitudes[:len(magnitudes)]
	copy(p.Magnitudes, magnitudes)
	p.Size = uint32(len(magnitudes))
}

var (
	_ io.WriterTo   = (*Profile)(nil)
	_ io.ReaderFrom = (*Profile)(nil)
)

// WriteTo stores the profile as a little-endian uint32 size followed by
// Size float64 magnitudes.
func (p *Profile) WriteTo(w io.Writer) (int64, error) {
	if int(p.Size) > len(p.Magnitudes) {
		return 0, fmt.Errorf("the profile size tag exceeds the amount of magnitudes: %d > %d", p.Size, len(p.Magnitudes))
	}
	buf := make([]byte, 4+8*int(p.Size))
	binary.LittleEndian.PutUint32(buf, p.Size)
	for idx, v := range p.Magnitudes[:p.Size] {
		binary.LittleEndian.PutUint64(buf[4+8*idx:], math.Float64bits(v))
	}
	n, err := w.Write(buf)
	if err != nil {
		return int64(n), fmt.Errorf("unable to write the noise profile: %w", err)
	}
	return int64(n), nil
}

// ReadFrom replaces the profile with the one stored in r.
func (p *Profile) ReadFrom(r io.Reader) (int64, error) {
	var header [4]byte
	n, err := io.ReadFull(r, header[:])
	if err != nil {
		return int64(n), fmt.Errorf("unable to read the noise profile size: %w", err)
	}
	size := binary.LittleEndian.Uint32(header[:])
	if size > MaxSize {
		return int64(n), fmt.Errorf("the noise profile is too large: %d > %d", size, MaxSize)
	}

	body := make([]byte, 8*int(size))
	m, err := io.ReadFull(r, body)
	total := int64(n + m)
	if err != nil {
		return total, fmt.Errorf("unable to read %d noise magnitudes: %w", size, err)
	}

	magnitudes := make([]float64, size)
	for idx := range magnitudes {
		magnitudes[idx] = math.Float64frombits(binary.LittleEndian.Uint64(body[8*idx:]))
	}
	p.Set(magnitudes)
	return total, nil
}
