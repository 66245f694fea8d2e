package audio

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPCMFormat_EncodeDecode(t *testing.T) {
	values := []float64{0, 0.5, -0.5, 0.25, -1}
	for f := PCMFormatUndefined + 1; f < endOfPCMFormat; f++ {
		t.Run(f.String(), func(t *testing.T) {
			buf := make([]byte, f.Size())
			for _, v := range values {
				f.Encode(buf, v)
				require.InDelta(t, v, f.Decode(buf), 1.0/128, "value %v", v)
			}
		})
	}
}

func TestPCMFormat_Clipping(t *testing.T) {
	for _, f := range []PCMFormat{PCMFormatU8, PCMFormatS16LE, PCMFormatS24BE, PCMFormatS32LE, PCMFormatS64BE} {
		t.Run(f.String(), func(t *testing.T) {
			buf := make([]byte, f.Size())
			f.Encode(buf, 3)
			high := f.Decode(buf)
			assert.Less(t, high, 1.0)
			assert.Greater(t, high, 0.99)

			f.Encode(buf, -3)
			assert.Equal(t, -1.0, f.Decode(buf))

			f.Encode(buf, math.NaN())
			assert.Equal(t, 0.0, f.Decode(buf))
		})
	}
}

func TestPCMFormat_DecodeFullScale(t *testing.T) {
	for _, f := range []PCMFormat{PCMFormatS64LE, PCMFormatS64BE} {
		t.Run(f.String(), func(t *testing.T) {
			buf := make([]byte, f.Size())
			for idx := range buf {
				buf[idx] = 0xff
			}
			if f == PCMFormatS64LE {
				buf[7] = 0x7f
			} else {
				buf[0] = 0x7f
			}
			require.Less(t, f.Decode(buf), 1.0)
			require.Greater(t, f.Decode(buf), 0.99)
		})
	}
}

func TestPCMFormat_Slices(t *testing.T) {
	src := []float64{0.125, -0.25, 0.5}
	buf := make([]byte, 3*PCMFormatS24LE.Size())
	PCMFormatS24LE.EncodeSlice(buf, src)
	dst := make([]float64, 3)
	PCMFormatS24LE.DecodeSlice(dst, buf)
	require.Equal(t, src, dst)
}

func TestPCMFormat_Flag(t *testing.T) {
	var f PCMFormat
	require.NoError(t, f.Set("S16LE"))
	require.Equal(t, PCMFormatS16LE, f)
	require.Error(t, f.Set("s12le"))
	require.Equal(t, "pcm-format", f.Type())
	require.Zero(t, PCMFormatUndefined.Size())
}

func TestEncodingPCM(t *testing.T) {
	enc := EncodingPCM{PCMFormat: PCMFormatFloat32LE, SampleRate: 48000}
	require.Equal(t, uint(4), enc.BytesPerSample())
	require.Equal(t, uint(48000*4*2/10), enc.BytesForDuration(2, 100*time.Millisecond))
	require.Equal(t, "pcm-float32le-48000", enc.String())
}
