// Package planar converts between interleaved PCM (one sample of every
// channel after another) and planar PCM (all the samples of a channel in a
// contiguous block).
package planar

import (
	"fmt"

	"github.com/xaionaro-go/spectraldenoise/pkg/audio"
)

// Planarize writes the planar layout of the interleaved input into output.
func Planarize(channels audio.Channel, sampleSize uint, output, input []byte) error {
	samplesPerChan, err := checkSizes(channels, sampleSize, output, input)
	if err != nil {
		return err
	}
	transpose(output, input, int(sampleSize), samplesPerChan, int(channels))
	return nil
}

// Unplanarize writes the interleaved layout of the planar input into output.
func Unplanarize(channels audio.Channel, sampleSize uint, output, input []byte) error {
	samplesPerChan, err := checkSizes(channels, sampleSize, output, input)
	if err != nil {
		return err
	}
	transpose(output, input, int(sampleSize), int(channels), samplesPerChan)
	return nil
}

func checkSizes(channels audio.Channel, sampleSize uint, output, input []byte) (int, error) {
	shortestMessageSize := int(channels) * int(sampleSize)
	if shortestMessageSize == 0 {
		return 0, fmt.Errorf("the amount of channels and the sample size must be positive: %d, %d", channels, sampleSize)
	}
	if len(input)%shortestMessageSize != 0 {
		return 0, fmt.Errorf("expected a message length that is a multiple of %d, but received %d", shortestMessageSize, len(input))
	}
	if len(input) != len(output) {
		return 0, fmt.Errorf("the lengths of input and output are not equal: %d != %d", len(input), len(output))
	}
	return len(input) / shortestMessageSize, nil
}

// transpose treats input as a rows x cols matrix of samples and writes its
// transposition into output.
func transpose(output, input []byte, sampleSize, rows, cols int) {
	for row := 0; row < rows; row++ {
		for col := 0; col < cols; col++ {
			inIdx := (row*cols + col) * sampleSize
			outIdx := (col*rows + row) * sampleSize
			copy(output[outIdx:outIdx+sampleSize], input[inIdx:inIdx+sampleSize])
		}
	}
}
