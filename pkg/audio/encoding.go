package audio

import (
	"fmt"
	"time"
)

type Channel uint

type SampleRate uint

// Encoding describes how audio is represented in a byte stream.
type Encoding interface {
	fmt.Stringer
	BytesPerSample() uint
}

// EncodingPCM is an uncompressed interleaved PCM encoding.
type EncodingPCM struct {
	PCMFormat  PCMFormat
	SampleRate SampleRate
}

var _ Encoding = EncodingPCM{}

func (e EncodingPCM) String() string {
	return fmt.Sprintf("pcm-%s-%d", e.PCMFormat, e.SampleRate)
}

func (e EncodingPCM) BytesPerSample() uint {
	return e.PCMFormat.Size()
}

// BytesForDuration returns how many bytes duration d of channels takes,
// rounded down to a whole number of samples.
func (e EncodingPCM) BytesForDuration(channels Channel, d time.Duration) uint {
	samples := uint64(d) * uint64(e.SampleRate) / uint64(time.Second)
	return uint(samples) * e.BytesPerSample() * uint(channels)
}
