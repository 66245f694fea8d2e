package main

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/xaionaro-go/spectraldenoise/pkg/audio"
	"github.com/xaionaro-go/spectraldenoise/pkg/audio/resampler"
)

type inputFile struct {
	io.Reader
	io.Closer
	Format resampler.Format
}

// openInput opens an Ogg Vorbis file (detected by the extension) or a raw
// PCM file of the given format.
func openInput(path string, rawFormat resampler.Format) (*inputFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("unable to open '%s': %w", path, err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".ogg", ".oga":
		r, err := audio.NewVorbisReader(f)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("unable to decode '%s': %w", path, err)
		}
		return &inputFile{
			Reader: r,
			Closer: f,
			Format: resampler.Format{
				Channels:   r.Channels(),
				SampleRate: r.SampleRate(),
				PCMFormat:  r.PCMFormat(),
			},
		}, nil
	default:
		return &inputFile{
			Reader: f,
			Closer: f,
			Format: rawFormat,
		}, nil
	}
}

// recordingReader remembers everything read through it, so it can be read
// once more from the beginning.
type recordingReader struct {
	backend  io.Reader
	recorded bytes.Buffer
}

func newRecordingReader(backend io.Reader) *recordingReader {
	return &recordingReader{backend: backend}
}

func (r *recordingReader) Read(p []byte) (int, error) {
	n, err := r.backend.Read(p)
	r.recorded.Write(p[:n])
	return n, err
}

// Replay returns a reader of everything read so far followed by the rest of
// the backend.
func (r *recordingReader) Replay() io.Reader {
	return io.MultiReader(bytes.NewReader(r.recorded.Bytes()), r.backend)
}
