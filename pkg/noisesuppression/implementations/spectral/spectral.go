// Package spectral implements noisesuppression.NoiseSuppression on top of
// the frame denoiser: every channel is cut into overlapping frames, denoised
// in the frequency domain and overlap-added back.
package spectral

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/hashicorp/go-multierror"
	"github.com/xaionaro-go/observability"
	"github.com/xaionaro-go/spectraldenoise/pkg/audio"
	"github.com/xaionaro-go/spectraldenoise/pkg/audio/planar"
	"github.com/xaionaro-go/spectraldenoise/pkg/denoiser"
	"github.com/xaionaro-go/spectraldenoise/pkg/gainestimator"
	"github.com/xaionaro-go/spectraldenoise/pkg/noiseprofile"
	"github.com/xaionaro-go/spectraldenoise/pkg/noisesuppression"
	"github.com/xaionaro-go/spectraldenoise/pkg/stft"
)

type Config struct {
	denoiser.Config
	Channels  audio.Channel
	PCMFormat audio.PCMFormat
	Backend   stft.Backend
}

// DefaultConfig returns a mono float32 setup of denoiser.DefaultConfig.
func DefaultConfig() Config {
	return Config{
		Config:    denoiser.DefaultConfig(),
		Channels:  1,
		PCMFormat: audio.PCMFormatFloat32LE,
		Backend:   stft.BackendGoDSP,
	}
}

type channelState struct {
	denoiser *denoiser.FrameDenoiser
	stft     *stft.STFT
	profile  *noiseprofile.Profile
	input    []float64
	output   []float64
}

type Spectral struct {
	Locker     sync.Mutex
	config     Config
	channels   []*channelState
	parameters atomic.Pointer[denoiser.Parameters]
	sampleSize uint
	planarBuf  []byte
	closed     bool
}

var _ noisesuppression.NoiseSuppression = (*Spectral)(nil)

func New(
	ctx context.Context,
	cfg Config,
) (*Spectral, error) {
	if cfg.Channels == 0 {
		return nil, fmt.Errorf("the amount of channels must be positive")
	}
	if cfg.PCMFormat.Size() == 0 {
		return nil, fmt.Errorf("unsupported PCM format: %v", cfg.PCMFormat)
	}
	if cfg.SampleRate != float64(uint(cfg.SampleRate)) {
		return nil, fmt.Errorf("the sample rate must be a whole number, got %v", cfg.SampleRate)
	}

	s := &Spectral{
		config:     cfg,
		sampleSize: cfg.PCMFormat.Size(),
	}
	for ch := audio.Channel(0); ch < cfg.Channels; ch++ {
		d, err := denoiser.New(ctx, cfg.Config)
		if err != nil {
			return nil, fmt.Errorf("unable to initialize the denoiser of channel %d: %w", ch, err)
		}
		t, err := stft.New(cfg.TransformSize, cfg.HopSize, cfg.Backend)
		if err != nil {
			return nil, fmt.Errorf("unable to initialize the STFT of channel %d: %w", ch, err)
		}
		s.channels = append(s.channels, &channelState{
			denoiser: d,
			stft:     t,
			profile:  noiseprofile.New(cfg.BinCount()),
			input:    make([]float64, cfg.HopSize),
			output:   make([]float64, cfg.HopSize),
		})
	}
	params := denoiser.DefaultParameters()
	s.parameters.Store(&params)

	logger.Debugf(ctx, "initialized a spectral noise suppressor: channels:%d format:%v backend:%v chunk:%d latency:%d",
		cfg.Channels, cfg.PCMFormat, cfg.Backend, s.ChunkSize(), s.LatencySize())
	return s, nil
}

func (s *Spectral) Close() error {
	s.Locker.Lock()
	defer s.Locker.Unlock()
	if s.closed {
		return fmt.Errorf("double-close attempt")
	}
	s.closed = true
	return nil
}

func (s *Spectral) Encoding(context.Context) (audio.Encoding, error) {
	return audio.EncodingPCM{
		PCMFormat:  s.config.PCMFormat,
		SampleRate: audio.SampleRate(s.config.SampleRate),
	}, nil
}

func (s *Spectral) Channels(context.Context) (audio.Channel, error) {
	return s.config.Channels, nil
}

func (s *Spectral) ChunkSize() uint {
	return uint(s.config.HopSize) * s.sampleSize * uint(s.config.Channels)
}

func (s *Spectral) LatencySize() uint {
	return uint(s.config.TransformSize-s.config.HopSize) * s.sampleSize * uint(s.config.Channels)
}

// SetParameters publishes the controls for the following frames. Values out
// of range are reported but still published; the denoiser clamps them.
func (s *Spectral) SetParameters(params denoiser.Parameters) error {
	s.parameters.Store(&params)
	return params.Validate()
}

// Parameters returns the last published controls.
func (s *Spectral) Parameters() denoiser.Parameters {
	return *s.parameters.Load()
}

// SetSuppressionRule switches the rule of every channel.
func (s *Spectral) SetSuppressionRule(rule gainestimator.Rule) error {
	s.Locker.Lock()
	defer s.Locker.Unlock()
	for ch, state := range s.channels {
		if err := state.denoiser.SetSuppressionRule(rule); err != nil {
			return fmt.Errorf("unable to set the rule on channel %d: %w", ch, err)
		}
	}
	s.config.SuppressionRule = rule
	return nil
}

// NoiseProfile returns the noise profile of the channel. It must not be
// accessed concurrently with SuppressNoise.
func (s *Spectral) NoiseProfile(ch audio.Channel) *noiseprofile.Profile {
	return s.channels[ch].profile
}

// SaveNoiseProfiles writes the profiles of all the channels one after
// another.
func (s *Spectral) SaveNoiseProfiles(w io.Writer) error {
	s.Locker.Lock()
	defer s.Locker.Unlock()
	for ch, state := range s.channels {
		if !state.profile.IsAvailable(s.config.BinCount()) {
			return fmt.Errorf("the noise profile of channel %d is not learned", ch)
		}
		if _, err := state.profile.WriteTo(w); err != nil {
			return fmt.Errorf("unable to write the noise profile of channel %d: %w", ch, err)
		}
	}
	return nil
}

// LoadNoiseProfiles reads profiles written by SaveNoiseProfiles. If the
// source has fewer profiles than there are channels, the last one is reused
// for the rest. Nothing is changed unless every profile is valid.
func (s *Spectral) LoadNoiseProfiles(r io.Reader) error {
	s.Locker.Lock()
	defer s.Locker.Unlock()
	loaded := make([]*noiseprofile.Profile, 0, len(s.channels))
	for ch := range s.channels {
		profile := &noiseprofile.Profile{}
		_, err := profile.ReadFrom(r)
		switch {
		case errors.Is(err, io.EOF) && len(loaded) > 0:
			loaded = append(loaded, loaded[len(loaded)-1])
			continue
		case err != nil:
			return fmt.Errorf("unable to read the noise profile of channel %d: %w", ch, err)
		}
		if int(profile.Size) != s.config.BinCount() {
			return fmt.Errorf("the noise profile of channel %d has %d bins, expected %d", ch, profile.Size, s.config.BinCount())
		}
		loaded = append(loaded, profile)
	}
	for ch, state := range s.channels {
		state.profile.Set(loaded[ch].Magnitudes)
	}
	return nil
}

// Reset forgets the signal history of the framing (but not the noise
// profiles), so the next chunk is treated as the start of a new stream.
func (s *Spectral) Reset() {
	s.Locker.Lock()
	defer s.Locker.Unlock()
	for _, state := range s.channels {
		state.stft.Reset()
		state.denoiser.ResetAdaptiveNoise()
	}
}

// SuppressNoise denoises input into outputVoice and returns the ratio of
// the output energy to the input energy, capped to 1. The output is delayed
// by LatencySize bytes.
func (s *Spectral) SuppressNoise(
	ctx context.Context,
	input []byte,
	outputVoice []byte,
) (_ret float64, _err error) {
	logger.Tracef(ctx, "SuppressNoise, len:%d", len(input))
	defer func() { logger.Tracef(ctx, "/SuppressNoise, len:%d: %v %v", len(input), _ret, _err) }()

	chunkSize := int(s.ChunkSize())
	if len(input) != len(outputVoice) {
		return 0, fmt.Errorf("lengths of input and output slices are not equal: %d != %d", len(input), len(outputVoice))
	}
	if len(input)%chunkSize != 0 {
		return 0, fmt.Errorf("the size of the input is not a multiple of ChunkSize: %d %% %d != 0", len(input), chunkSize)
	}

	s.Locker.Lock()
	defer s.Locker.Unlock()
	if s.closed {
		return 0, fmt.Errorf("the noise suppressor is closed")
	}
	params := *s.parameters.Load()

	channels := len(s.channels)
	if channels == 1 {
		inEnergy, outEnergy, err := s.channels[0].process(s.config.PCMFormat, input, outputVoice, params)
		if err != nil {
			return 0, err
		}
		return energyRatio(inEnergy, outEnergy), nil
	}

	if cap(s.planarBuf) < len(input) {
		s.planarBuf = make([]byte, len(input))
	}
	buffer := s.planarBuf[:len(input)]
	if err := planar.Planarize(s.config.Channels, s.sampleSize, buffer, input); err != nil {
		return 0, fmt.Errorf("unable to planarize: %w", err)
	}

	oneChanSize := len(buffer) / channels
	var (
		locker              sync.Mutex
		wg                  sync.WaitGroup
		mErr                *multierror.Error
		inEnergy, outEnergy float64
	)
	for ch, state := range s.channels {
		data := buffer[ch*oneChanSize : (ch+1)*oneChanSize]
		wg.Add(1)
		observability.Go(ctx, func(ctx context.Context) {
			defer wg.Done()
			in, out, err := state.process(s.config.PCMFormat, data, data, params)
			locker.Lock()
			defer locker.Unlock()
			if err != nil {
				mErr = multierror.Append(mErr, fmt.Errorf("channel %d: %w", ch, err))
			}
			inEnergy += in
			outEnergy += out
		})
	}
	wg.Wait()
	if err := mErr.ErrorOrNil(); err != nil {
		return 0, err
	}

	if err := planar.Unplanarize(s.config.Channels, s.sampleSize, outputVoice, buffer); err != nil {
		return 0, fmt.Errorf("unable to unplanarize: %w", err)
	}
	return energyRatio(inEnergy, outEnergy), nil
}

// process denoises one channel; input and output may be the same slice.
func (c *channelState) process(
	format audio.PCMFormat,
	input []byte,
	output []byte,
	params denoiser.Parameters,
) (float64, float64, error) {
	hopBytes := len(c.input) * int(format.Size())
	runFrame := func(frame []float64) {
		c.denoiser.Run(frame, params, c.profile)
	}

	var inEnergy, outEnergy float64
	for offset := 0; offset < len(input); offset += hopBytes {
		format.DecodeSlice(c.input, input[offset:offset+hopBytes])
		if err := c.stft.ProcessHop(c.input, c.output, runFrame); err != nil {
			return 0, 0, fmt.Errorf("unable to process a hop: %w", err)
		}
		for idx, v := range c.input {
			inEnergy += v * v
			outEnergy += c.output[idx] * c.output[idx]
		}
		format.EncodeSlice(output[offset:offset+hopBytes], c.output)
	}
	return inEnergy, outEnergy, nil
}

func energyRatio(inEnergy, outEnergy float64) float64 {
	if inEnergy <= 0 {
		return 1
	}
	ratio := outEnergy / inEnergy
	if ratio > 1 {
		return 1
	}
	return ratio
}
