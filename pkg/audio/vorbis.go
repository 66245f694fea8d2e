package audio

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/jfreymuth/oggvorbis"
)

// VorbisReader decodes an Ogg Vorbis stream into interleaved
// PCMFormatFloat32LE samples.
type VorbisReader struct {
	oggReader *oggvorbis.Reader
	floatBuf  []float32
}

var _ io.Reader = (*VorbisReader)(nil)

func NewVorbisReader(rawReader io.Reader) (*VorbisReader, error) {
	oggReader, err := oggvorbis.NewReader(rawReader)
	if err != nil {
		return nil, fmt.Errorf("unable to initialize a vorbis reader: %w", err)
	}
	return &VorbisReader{
		oggReader: oggReader,
	}, nil
}

func (r *VorbisReader) SampleRate() SampleRate {
	return SampleRate(r.oggReader.SampleRate())
}

func (r *VorbisReader) Channels() Channel {
	return Channel(r.oggReader.Channels())
}

func (r *VorbisReader) PCMFormat() PCMFormat {
	return PCMFormatFloat32LE
}

func (r *VorbisReader) Read(p []byte) (int, error) {
	count := len(p) / 4
	if count == 0 {
		return 0, nil
	}
	if cap(r.floatBuf) < count {
		r.floatBuf = make([]float32, count)
	}
	buf := r.floatBuf[:count]

	n, err := r.oggReader.Read(buf)
	for idx, v := range buf[:n] {
		binary.LittleEndian.PutUint32(p[idx*4:], math.Float32bits(v))
	}
	return n * 4, err
}
