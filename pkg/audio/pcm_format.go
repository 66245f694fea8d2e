package audio

import (
	"encoding/binary"
	"fmt"
	"math"
	"strings"
)

type PCMFormat uint

const (
	PCMFormatUndefined = PCMFormat(iota)
	PCMFormatU8
	PCMFormatS16LE
	PCMFormatS16BE
	PCMFormatS24LE
	PCMFormatS24BE
	PCMFormatS32LE
	PCMFormatS32BE
	PCMFormatS64LE
	PCMFormatS64BE
	PCMFormatFloat32LE
	PCMFormatFloat32BE
	PCMFormatFloat64LE
	PCMFormatFloat64BE
	endOfPCMFormat
)

func (f PCMFormat) String() string {
	switch f {
	case PCMFormatUndefined:
		return "undefined"
	case PCMFormatU8:
		return "u8"
	case PCMFormatS16LE:
		return "s16le"
	case PCMFormatS16BE:
		return "s16be"
	case PCMFormatS24LE:
		return "s24le"
	case PCMFormatS24BE:
		return "s24be"
	case PCMFormatS32LE:
		return "s32le"
	case PCMFormatS32BE:
		return "s32be"
	case PCMFormatS64LE:
		return "s64le"
	case PCMFormatS64BE:
		return "s64be"
	case PCMFormatFloat32LE:
		return "float32le"
	case PCMFormatFloat32BE:
		return "float32be"
	case PCMFormatFloat64LE:
		return "float64le"
	case PCMFormatFloat64BE:
		return "float64be"
	default:
		return fmt.Sprintf("unknown_format_%d", uint(f))
	}
}

// Set implements pflag.Value.
func (f *PCMFormat) Set(s string) error {
	s = strings.ToLower(strings.TrimSpace(s))
	for candidate := PCMFormatUndefined + 1; candidate < endOfPCMFormat; candidate++ {
		if candidate.String() == s {
			*f = candidate
			return nil
		}
	}
	return fmt.Errorf("unknown PCM format '%s'", s)
}

// Type implements pflag.Value.
func (f *PCMFormat) Type() string {
	return "pcm-format"
}

// Size returns the size of one sample in bytes, or 0 for an unknown format.
func (f PCMFormat) Size() uint {
	switch f {
	case PCMFormatU8:
		return 1
	case PCMFormatS16LE, PCMFormatS16BE:
		return 2
	case PCMFormatS24LE, PCMFormatS24BE:
		return 3
	case PCMFormatS32LE, PCMFormatS32BE, PCMFormatFloat32LE, PCMFormatFloat32BE:
		return 4
	case PCMFormatS64LE, PCMFormatS64BE, PCMFormatFloat64LE, PCMFormatFloat64BE:
		return 8
	default:
		return 0
	}
}

// Decode returns the sample at the beginning of p scaled to [-1, 1).
func (f PCMFormat) Decode(p []byte) float64 {
	switch f {
	case PCMFormatU8:
		return (float64(p[0]) - 128) / 128
	case PCMFormatS16LE:
		return float64(int16(binary.LittleEndian.Uint16(p))) / (1 << 15)
	case PCMFormatS16BE:
		return float64(int16(binary.BigEndian.Uint16(p))) / (1 << 15)
	case PCMFormatS24LE:
		return float64(signExtend24(uint32(p[0])|uint32(p[1])<<8|uint32(p[2])<<16)) / (1 << 23)
	case PCMFormatS24BE:
		return float64(signExtend24(uint32(p[2])|uint32(p[1])<<8|uint32(p[0])<<16)) / (1 << 23)
	case PCMFormatS32LE:
		return float64(int32(binary.LittleEndian.Uint32(p))) / (1 << 31)
	case PCMFormatS32BE:
		return float64(int32(binary.BigEndian.Uint32(p))) / (1 << 31)
	case PCMFormatS64LE:
		return decodeS64(binary.LittleEndian.Uint64(p))
	case PCMFormatS64BE:
		return decodeS64(binary.BigEndian.Uint64(p))
	case PCMFormatFloat32LE:
		return float64(math.Float32frombits(binary.LittleEndian.Uint32(p)))
	case PCMFormatFloat32BE:
		return float64(math.Float32frombits(binary.BigEndian.Uint32(p)))
	case PCMFormatFloat64LE:
		return math.Float64frombits(binary.LittleEndian.Uint64(p))
	case PCMFormatFloat64BE:
		return math.Float64frombits(binary.BigEndian.Uint64(p))
	default:
		panic(fmt.Sprintf("unknown format: %v", f))
	}
}

// Encode writes v to the beginning of p. Integer formats clip v to their
// range; float formats store it as is.
func (f PCMFormat) Encode(p []byte, v float64) {
	switch f {
	case PCMFormatU8:
		p[0] = byte(quantize(v, 8) + 128)
	case PCMFormatS16LE:
		binary.LittleEndian.PutUint16(p, uint16(int16(quantize(v, 16))))
	case PCMFormatS16BE:
		binary.BigEndian.PutUint16(p, uint16(int16(quantize(v, 16))))
	case PCMFormatS24LE:
		val := int32(quantize(v, 24))
		p[0] = byte(val)
		p[1] = byte(val >> 8)
		p[2] = byte(val >> 16)
	case PCMFormatS24BE:
		val := int32(quantize(v, 24))
		p[0] = byte(val >> 16)
		p[1] = byte(val >> 8)
		p[2] = byte(val)
	case PCMFormatS32LE:
		binary.LittleEndian.PutUint32(p, uint32(int32(quantize(v, 32))))
	case PCMFormatS32BE:
		binary.BigEndian.PutUint32(p, uint32(int32(quantize(v, 32))))
	case PCMFormatS64LE:
		binary.LittleEndian.PutUint64(p, uint64(quantize(v, 64)))
	case PCMFormatS64BE:
		binary.BigEndian.PutUint64(p, uint64(quantize(v, 64)))
	case PCMFormatFloat32LE:
		binary.LittleEndian.PutUint32(p, math.Float32bits(float32(v)))
	case PCMFormatFloat32BE:
		binary.BigEndian.PutUint32(p, math.Float32bits(float32(v)))
	case PCMFormatFloat64LE:
		binary.LittleEndian.PutUint64(p, math.Float64bits(v))
	case PCMFormatFloat64BE:
		binary.BigEndian.PutUint64(p, math.Float64bits(v))
	default:
		panic(fmt.Sprintf("unknown format: %v", f))
	}
}

// DecodeSlice decodes len(dst) consecutive samples of p.
func (f PCMFormat) DecodeSlice(dst []float64, p []byte) {
	size := int(f.Size())
	for idx := range dst {
		dst[idx] = f.Decode(p[idx*size:])
	}
}

// EncodeSlice encodes src into consecutive samples of p.
func (f PCMFormat) EncodeSlice(p []byte, src []float64) {
	size := int(f.Size())
	for idx, v := range src {
		f.Encode(p[idx*size:], v)
	}
}

// maxDecodedS64 is the largest float64 below 1: float64(math.MaxInt64)
// rounds up to 1<<63.
var maxDecodedS64 = math.Nextafter(1, 0)

func decodeS64(v uint64) float64 {
	return min(float64(int64(v))/(1<<63), maxDecodedS64)
}

func signExtend24(v uint32) int32 {
	if v&0x800000 != 0 {
		v |= 0xff000000
	}
	return int32(v)
}

// quantize scales v to a signed integer of the given bit width, rounding and
// clipping to the representable range. NaN becomes 0.
func quantize(v float64, bits uint) int64 {
	if math.IsNaN(v) {
		return 0
	}
	scale := math.Ldexp(1, int(bits)-1)
	scaled := math.Round(v * scale)
	if scaled >= scale {
		return int64(1)<<(bits-1) - 1
	}
	if scaled < -scale {
		return -(int64(1) << (bits - 1))
	}
	return int64(scaled)
}
