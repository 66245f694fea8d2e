// Package noisesuppressionstream wraps a NoiseSuppression into an io.Reader
// that is sample-aligned with its input: the processing latency is
// compensated and the output has exactly the length of the input.
package noisesuppressionstream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/iamcalledrob/circular"
	"github.com/xaionaro-go/observability"
	"github.com/xaionaro-go/spectraldenoise/pkg/audio"
	"github.com/xaionaro-go/spectraldenoise/pkg/noisesuppression"
)

type NoiseSuppressionStream struct {
	noisesuppression.NoiseSuppression
	encoding           audio.Encoding
	channels           audio.Channel
	outputBufferLocker sync.Mutex
	outputBuffer       *circular.Buffer
	resultError        error
	finished           bool
	readCtx            context.Context
	cancelFunc         context.CancelFunc

	noiseSuppressionOutputProgressedCh chan struct{}
	outputProgressedCh                 chan struct{}
}

var _ io.ReadCloser = (*NoiseSuppressionStream)(nil)

func New(
	ctx context.Context,
	input io.Reader,
	noiseSuppression noisesuppression.NoiseSuppression,
	outputBufferSize uint,
) (*NoiseSuppressionStream, error) {
	encoding, err := noiseSuppression.Encoding(ctx)
	if err != nil {
		return nil, fmt.Errorf("unable to get the encoding of the noise suppression: %w", err)
	}
	channels, err := noiseSuppression.Channels(ctx)
	if err != nil {
		return nil, fmt.Errorf("unable to get the amount of channels of the noise suppression: %w", err)
	}
	chunkSize := noiseSuppression.ChunkSize()
	frameSize := encoding.BytesPerSample() * uint(channels)
	if chunkSize == 0 || frameSize == 0 || chunkSize%frameSize != 0 {
		return nil, fmt.Errorf("the chunk size %d is not a positive multiple of %d*%d", chunkSize, encoding.BytesPerSample(), uint(channels))
	}
	if outputBufferSize < chunkSize {
		return nil, fmt.Errorf("the output buffer size is smaller than a chunk: %d < %d", outputBufferSize, chunkSize)
	}

	ctx, cancelFunc := context.WithCancel(ctx)
	s := &NoiseSuppressionStream{
		NoiseSuppression: noiseSuppression,
		encoding:         encoding,
		channels:         channels,
		outputBuffer:     circular.NewBuffer(int(outputBufferSize)),
		readCtx:          ctx,
		cancelFunc:       cancelFunc,

		noiseSuppressionOutputProgressedCh: make(chan struct{}),
		outputProgressedCh:                 make(chan struct{}),
	}
	logger.Debugf(ctx, "noise suppression stream: encoding:%v channels:%d chunk:%d latency:%d buffer:%d",
		encoding, channels, chunkSize, noiseSuppression.LatencySize(), outputBufferSize)

	observability.Go(ctx, func(ctx context.Context) {
		defer cancelFunc()
		err := s.noiseSuppressionLoop(ctx, input)
		s.outputBufferLocker.Lock()
		defer s.outputBufferLocker.Unlock()
		if err != nil && s.resultError == nil {
			s.resultError = fmt.Errorf("got an error from the noise suppressor loop: %w", err)
		}
		s.finished = true
		s.signalOutputProgressed(ctx)
	})
	return s, nil
}

// Close stops the processing; pending Read calls return an error.
func (s *NoiseSuppressionStream) Close() error {
	s.cancelFunc()
	return nil
}

func (s *NoiseSuppressionStream) noiseSuppressionLoop(
	ctx context.Context,
	input io.Reader,
) (_err error) {
	logger.Tracef(ctx, "noiseSuppressionLoop")
	defer func() { logger.Tracef(ctx, "/noiseSuppressionLoop: %v", _err) }()

	chunkSize := s.ChunkSize()
	frameSize := int(s.encoding.BytesPerSample()) * int(s.channels)
	toSkip := uint64(s.LatencySize())

	inputBuf := make([]byte, chunkSize)
	outputBuf := make([]byte, chunkSize)
	var (
		inputCount  uint64
		outputCount uint64
		inputEnded  bool
	)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		n := 0
		if !inputEnded {
			var err error
			n, err = io.ReadFull(input, inputBuf)
			switch {
			case err == nil:
			case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
				logger.Debugf(ctx, "the input ended after %d bytes", inputCount+uint64(n))
				inputEnded = true
			default:
				return fmt.Errorf("unable to read the input: %w", err)
			}
			n -= n % frameSize
			inputCount += uint64(n)
		}
		clear(inputBuf[n:])

		if inputEnded && outputCount >= inputCount {
			return nil
		}

		logger.Tracef(ctx, "s.NoiseSuppression.SuppressNoise")
		_, err := s.NoiseSuppression.SuppressNoise(ctx, inputBuf, outputBuf)
		logger.Tracef(ctx, "/s.NoiseSuppression.SuppressNoise: %v", err)
		if err != nil {
			return fmt.Errorf("unable to noise-suppress: %w", err)
		}

		out := outputBuf
		if toSkip > 0 {
			skip := min(toSkip, uint64(len(out)))
			out = out[skip:]
			toSkip -= skip
		}
		if inputEnded {
			if remaining := inputCount - outputCount; uint64(len(out)) > remaining {
				out = out[:remaining]
			}
		}
		if len(out) == 0 {
			continue
		}
		if err := s.writeOutput(ctx, out); err != nil {
			return err
		}
		outputCount += uint64(len(out))
	}
}

func (s *NoiseSuppressionStream) writeOutput(ctx context.Context, out []byte) error {
	logger.Tracef(ctx, "s.outputBufferLocker.Lock()")
	s.outputBufferLocker.Lock()
	defer s.outputBufferLocker.Unlock()
	logger.Tracef(ctx, "/s.outputBufferLocker.Lock()")

	for {
		w, err := s.outputBuffer.Write(out)
		if err != nil {
			if errors.Is(err, circular.ErrNoSpace) {
				s.waitForOutput(ctx)
				if err := ctx.Err(); err != nil {
					return err
				}
				continue
			}
			return fmt.Errorf("unable to write to the circular buffer: %w", err)
		}
		if w != len(out) {
			return fmt.Errorf("wrote != requested: %d != %d", w, len(out))
		}
		s.signalOutputProgressed(ctx)
		return nil
	}
}

// signalOutputProgressed must be called with outputBufferLocker held.
func (s *NoiseSuppressionStream) signalOutputProgressed(ctx context.Context) {
	logger.Tracef(ctx, "closing noiseSuppressionOutputProgressedCh")
	var oldCh chan struct{}
	oldCh, s.noiseSuppressionOutputProgressedCh = s.noiseSuppressionOutputProgressedCh, make(chan struct{})
	close(oldCh)
}

func (s *NoiseSuppressionStream) waitForOutput(ctx context.Context) {
	logger.Tracef(ctx, "waitForOutput")
	defer logger.Tracef(ctx, "/waitForOutput")

	ch := s.outputProgressedCh
	s.outputBufferLocker.Unlock()
	defer s.outputBufferLocker.Lock()
	select {
	case <-ctx.Done():
	case <-ch:
		logger.Tracef(ctx, "waitForOutput: received an event")
	}
}

func (s *NoiseSuppressionStream) Read(pcm []byte) (_ret int, _err error) {
	logger.Tracef(s.readCtx, "Read, len:%d", len(pcm))
	defer func() { logger.Tracef(s.readCtx, "/Read, len:%d: %d, %v", len(pcm), _ret, _err) }()

	if len(pcm) == 0 {
		return 0, nil
	}

	s.outputBufferLocker.Lock()
	defer s.outputBufferLocker.Unlock()
	for {
		logger.Tracef(s.readCtx, "Read: s.outputBuffer.Read()")
		n, err := s.outputBuffer.Read(pcm)
		logger.Tracef(s.readCtx, "/Read: s.outputBuffer.Read(): %v %v", n, err)
		if n > 0 {
			var oldCh chan struct{}
			oldCh, s.outputProgressedCh = s.outputProgressedCh, make(chan struct{})
			close(oldCh)
			return n, nil
		}
		if err != nil && !errors.Is(err, io.EOF) {
			return 0, err
		}
		if s.resultError != nil {
			return 0, s.resultError
		}
		if s.finished {
			return 0, io.EOF
		}
		if err := s.readCtx.Err(); err != nil {
			return 0, err
		}
		s.waitForNoiseSuppressionOutputProgressed(s.readCtx)
	}
}

func (s *NoiseSuppressionStream) waitForNoiseSuppressionOutputProgressed(ctx context.Context) {
	logger.Tracef(ctx, "waitForNoiseSuppressionOutputProgressed")
	defer logger.Tracef(ctx, "/waitForNoiseSuppressionOutputProgressed")

	ch := s.noiseSuppressionOutputProgressedCh
	s.outputBufferLocker.Unlock()
	defer s.outputBufferLocker.Lock()
	select {
	case <-ctx.Done():
	case <-ch:
		logger.Tracef(ctx, "waitForNoiseSuppressionOutputProgressed: received an event")
	}
}
