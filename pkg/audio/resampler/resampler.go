// Package resampler converts an interleaved PCM stream between sample
// formats, channel layouts and sample rates.
//
// Channels are converted by averaging into mono or by duplicating mono;
// sample rates are converted by picking the nearest preceding input frame.
package resampler

import (
	"fmt"
	"io"
	"sync"

	"github.com/xaionaro-go/spectraldenoise/pkg/audio"
)

const (
	distanceStep = 10000
)

type Format struct {
	Channels   audio.Channel
	SampleRate audio.SampleRate
	PCMFormat  audio.PCMFormat
}

// FrameSize returns the size in bytes of one sample of every channel.
func (f Format) FrameSize() uint {
	return f.PCMFormat.Size() * uint(f.Channels)
}

type precalculated struct {
	inSampleSize    uint
	outSampleSize   uint
	inNumAvg        uint
	outNumRepeat    uint
	outDistanceStep uint64
}

type Resampler struct {
	inReader    io.Reader
	inFormat    Format
	outFormat   Format
	inDistance  uint64
	outDistance uint64
	locker      sync.Mutex
	buffer      []byte
	leftover    int
	precalculated
}

var _ io.Reader = (*Resampler)(nil)

func NewResampler(
	inFormat Format,
	inReader io.Reader,
	outFormat Format,
) (*Resampler, error) {
	r := &Resampler{
		inReader:  inReader,
		inFormat:  inFormat,
		outFormat: outFormat,
	}
	err := r.init()
	if err != nil {
		return nil, fmt.Errorf("unable to initialize a resampler from %#+v to %#+v: %w", inFormat, outFormat, err)
	}
	return r, nil
}

func (r *Resampler) init() error {
	for _, f := range []Format{r.inFormat, r.outFormat} {
		if f.PCMFormat.Size() == 0 {
			return fmt.Errorf("unsupported PCM format %v", f.PCMFormat)
		}
		if f.Channels == 0 || f.SampleRate == 0 {
			return fmt.Errorf("the amount of channels and the sample rate must be positive: %d, %d", f.Channels, f.SampleRate)
		}
	}
	r.inSampleSize = r.inFormat.PCMFormat.Size()
	r.outSampleSize = r.outFormat.PCMFormat.Size()

	r.inNumAvg = 1
	r.outNumRepeat = 1
	if r.inFormat.Channels != r.outFormat.Channels {
		switch {
		case r.inFormat.Channels == 1:
			r.outNumRepeat = uint(r.outFormat.Channels)
		case r.outFormat.Channels == 1:
			r.inNumAvg = uint(r.inFormat.Channels)
		default:
			return fmt.Errorf("do not know how to convert %d channels to %d", r.inFormat.Channels, r.outFormat.Channels)
		}
	}

	sampleRateAdjust := float64(r.outFormat.SampleRate) / float64(r.inFormat.SampleRate)
	r.outDistanceStep = uint64(float64(distanceStep) / sampleRateAdjust)

	r.inDistance = 0
	r.outDistance = 0
	return nil
}

// Read fills p with converted frames. A trailing partial input frame is
// kept until the rest of it arrives; if the input ends on it, it is
// dropped.
func (r *Resampler) Read(p []byte) (int, error) {
	r.locker.Lock()
	defer r.locker.Unlock()

	outFrameSize := uint64(r.outSampleSize) * uint64(r.outNumRepeat)
	maxOutFrames := uint64(len(p)) / outFrameSize
	if maxOutFrames == 0 {
		return 0, nil
	}

	inFrameSize := uint64(r.inSampleSize) * uint64(r.inNumAvg)
	framesToRead := uint64(float64(maxOutFrames) * float64(r.inFormat.SampleRate) / float64(r.outFormat.SampleRate))
	if framesToRead == 0 {
		framesToRead = 1
	}
	bytesToRead := int(framesToRead*inFrameSize) + r.leftover
	if cap(r.buffer) < bytesToRead {
		buffer := make([]byte, bytesToRead)
		copy(buffer, r.buffer[:r.leftover])
		r.buffer = buffer
	}
	r.buffer = r.buffer[:bytesToRead]
	n, err := r.inReader.Read(r.buffer[r.leftover:])
	available := r.leftover + n
	framesRead := uint64(available) / inFrameSize

	dstFrameIdx := uint64(0)
	srcFrameIdx := uint64(0)
	for srcFrameIdx < framesRead && dstFrameIdx < maxOutFrames {
		for r.inDistance < r.outDistance && srcFrameIdx < framesRead {
			srcFrameIdx++
			r.inDistance += distanceStep
		}
		if srcFrameIdx >= framesRead {
			break
		}

		idxSrc := srcFrameIdx * inFrameSize
		var sum float64
		for channelIdx := uint64(0); channelIdx < uint64(r.inNumAvg); channelIdx++ {
			sum += r.inFormat.PCMFormat.Decode(r.buffer[idxSrc+channelIdx*uint64(r.inSampleSize):])
		}
		val := sum / float64(r.inNumAvg)

		for dstFrameIdx < maxOutFrames && r.outDistance <= r.inDistance {
			for repeatIdx := uint64(0); repeatIdx < uint64(r.outNumRepeat); repeatIdx++ {
				idxDst := dstFrameIdx*outFrameSize + repeatIdx*uint64(r.outSampleSize)
				r.outFormat.PCMFormat.Encode(p[idxDst:], val)
			}
			dstFrameIdx++
			r.outDistance += r.outDistanceStep
		}

		srcFrameIdx++
		r.inDistance += distanceStep
	}

	consumed := int(srcFrameIdx * inFrameSize)
	r.leftover = copy(r.buffer, r.buffer[consumed:available])
	if err == io.EOF && uint64(r.leftover) >= inFrameSize {
		err = nil
	}
	return int(dstFrameIdx * outFrameSize), err
}
