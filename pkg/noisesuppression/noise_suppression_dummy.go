package noisesuppression

import (
	"context"
	"fmt"

	"github.com/xaionaro-go/spectraldenoise/pkg/audio"
)

// Dummy passes the audio through unchanged.
type Dummy struct {
	EncodingValue  audio.Encoding
	ChannelsValue  audio.Channel
	ChunkSizeValue uint
}

var _ NoiseSuppression = (*Dummy)(nil)

func NewDummy(
	encoding audio.Encoding,
	channels audio.Channel,
) *Dummy {
	return &Dummy{
		EncodingValue:  encoding,
		ChannelsValue:  channels,
		ChunkSizeValue: encoding.BytesPerSample() * uint(channels),
	}
}

func (s *Dummy) Close() error {
	return nil
}

func (s *Dummy) Encoding(context.Context) (audio.Encoding, error) {
	return s.EncodingValue, nil
}

func (s *Dummy) Channels(context.Context) (audio.Channel, error) {
	return s.ChannelsValue, nil
}

func (s *Dummy) ChunkSize() uint {
	return s.ChunkSizeValue
}

func (*Dummy) LatencySize() uint {
	return 0
}

func (s *Dummy) SuppressNoise(_ context.Context, input []byte, outputVoice []byte) (float64, error) {
	if len(input) != len(outputVoice) {
		return 0, fmt.Errorf("lengths of input and output slices are not equal: %d != %d", len(input), len(outputVoice))
	}
	copy(outputVoice, input)
	return 1, nil
}
