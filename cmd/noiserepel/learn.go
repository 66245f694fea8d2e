package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/xaionaro-go/spectraldenoise/pkg/denoiser"
	"github.com/xaionaro-go/spectraldenoise/pkg/noisesuppression/implementations/spectral"
)

const learnChunksPerRead = 16

// learnNoise feeds up to limit bytes of r (all of it if limit is negative)
// to ns in the learning mode and discards the output. The first LatencySize
// bytes (rounded up to whole chunks) only fill the framing history and are
// not learned from. A trailing partial chunk is ignored. It returns the
// amount of bytes consumed. The previous parameters are restored and the
// framing history is reset afterwards.
func learnNoise(
	ctx context.Context,
	ns *spectral.Spectral,
	params denoiser.Parameters,
	r io.Reader,
	limit int64,
) (_ret int64, _err error) {
	logger.Debugf(ctx, "learnNoise, limit:%d", limit)
	defer func() { logger.Debugf(ctx, "/learnNoise: %d %v", _ret, _err) }()

	previous := ns.Parameters()
	defer func() {
		if err := ns.SetParameters(previous); err != nil {
			logger.Warnf(ctx, "the restored parameters are out of range (they are clamped on use): %v", err)
		}
		ns.Reset()
	}()

	params.AutoLearnNoise = false
	params.LearnNoise = false
	if err := ns.SetParameters(params); err != nil {
		return 0, fmt.Errorf("invalid parameters: %w", err)
	}

	if limit >= 0 {
		r = io.LimitReader(r, limit)
	}

	chunkSize := int(ns.ChunkSize())
	primeSize := (int(ns.LatencySize()) + chunkSize - 1) / chunkSize * chunkSize
	input := make([]byte, max(chunkSize*learnChunksPerRead, primeSize))
	output := make([]byte, len(input))

	var total, learned int64
	feed := func(size int) (bool, error) {
		n, err := io.ReadFull(r, input[:size])
		n -= n % chunkSize
		if n > 0 {
			if _, err := ns.SuppressNoise(ctx, input[:n], output[:n]); err != nil {
				return false, fmt.Errorf("unable to process the noise: %w", err)
			}
			total += int64(n)
		}
		switch {
		case err == nil:
			return false, nil
		case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
			return true, nil
		default:
			return true, fmt.Errorf("unable to read the noise: %w", err)
		}
	}

	ended := false
	if primeSize > 0 {
		var err error
		ended, err = feed(primeSize)
		if err != nil {
			return total, err
		}
	}

	params.LearnNoise = true
	ns.SetParameters(params)
	for !ended {
		before := total
		var err error
		ended, err = feed(chunkSize * learnChunksPerRead)
		learned += total - before
		if err != nil {
			return total, err
		}
	}
	if learned == 0 {
		return total, fmt.Errorf("not enough noise to learn from: less than %d bytes", primeSize+chunkSize)
	}
	return total, nil
}

func loadNoiseProfiles(ns *spectral.Spectral, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("unable to open the noise profile: %w", err)
	}
	defer f.Close()
	return ns.LoadNoiseProfiles(f)
}

func saveNoiseProfiles(ns *spectral.Spectral, path string) (_err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("unable to create the noise profile file: %w", err)
	}
	defer func() {
		if err := f.Close(); err != nil && _err == nil {
			_err = err
		}
	}()
	return ns.SaveNoiseProfiles(f)
}
