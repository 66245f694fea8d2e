package noiseprofile

import (
	"bytes"
	"encoding/binary"
	"io"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIsAvailable(t *testing.T) {
	p := New(4)
	require.False(t, p.IsAvailable(4), "a fresh profile carries no estimate")

	p.Set([]float64{0, 0.5, 0, 0})
	require.True(t, p.IsAvailable(4))
	require.False(t, p.IsAvailable(5), "size tag must match the bin count")

	p.Set([]float64{0, 0, 0, 0})
	require.False(t, p.IsAvailable(4), "an all-zero profile is not an estimate")

	p.Set([]float64{1, 1, 1, 1})
	p.Reset()
	require.False(t, p.IsAvailable(4))
	require.Len(t, p.Magnitudes, 4)

	var nilProfile *Profile
	require.False(t, nilProfile.IsAvailable(4))
}

func TestStore(t *testing.T) {
	p := New(3)
	p.Set([]float64{0.25, 1e-300, 3})

	var buf bytes.Buffer
	n, err := p.WriteTo(&buf)
	require.NoError(t, err)
	require.Equal(t, int64(4+3*8), n)
	require.Equal(t, uint32(3), binary.LittleEndian.Uint32(buf.Bytes()))

	restored := &Profile{}
	m, err := restored.ReadFrom(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	require.Equal(t, n, m)
	require.Equal(t, p.Size, restored.Size)
	require.Equal(t, p.Magnitudes, restored.Magnitudes)
}

func TestStoreTruncated(t *testing.T) {
	p := New(2)
	p.Set([]float64{1, 2})
	var buf bytes.Buffer
	_, err := p.WriteTo(&buf)
	require.NoError(t, err)

	restored := New(2)
	_, err = restored.ReadFrom(bytes.NewReader(buf.Bytes()[:buf.Len()-1]))
	require.ErrorIs(t, err, io.ErrUnexpectedEOF)
	require.Zero(t, restored.Size, "a failed restore must leave the profile untouched")

	_, err = restored.ReadFrom(bytes.NewReader([]byte{0xff, 0xff, 0xff, 0xff}))
	require.Error(t, err)
}
