package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	_ "net/http/pprof"
	"os"
	"time"

	"github.com/facebookincubator/go-belt"
	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/facebookincubator/go-belt/tool/logger/implementation/logrus"
	"github.com/spf13/pflag"
	"github.com/xaionaro-go/datacounter"
	"github.com/xaionaro-go/observability"
	"github.com/xaionaro-go/spectraldenoise/pkg/audio"
	"github.com/xaionaro-go/spectraldenoise/pkg/audio/resampler"
	"github.com/xaionaro-go/spectraldenoise/pkg/denoiser"
	"github.com/xaionaro-go/spectraldenoise/pkg/noisesuppression/implementations/spectral"
	"github.com/xaionaro-go/spectraldenoise/pkg/noisesuppressionstream"
)

const processingFormat = audio.PCMFormatFloat64LE

func main() {
	loggerLevel := logger.LevelInfo
	pflag.Var(&loggerLevel, "log-level", "Log level")
	netPprofAddr := pflag.String("net-pprof-listen-addr", "", "an address to listen for incoming net/pprof connections")

	inputFormat := audio.PCMFormatFloat32LE
	pflag.Var(&inputFormat, "format", "PCM format of raw inputs")
	sampleRate := pflag.Uint("sample-rate", 48000, "sample rate of raw inputs")
	channels := pflag.Uint("channels", 1, "amount of interleaved channels of raw inputs")
	downmix := pflag.Bool("downmix", false, "mix all the channels into one before denoising")
	outputFormat := audio.PCMFormatFloat32LE
	pflag.Var(&outputFormat, "output-format", "PCM format of the output")

	cfg := spectral.DefaultConfig()
	pflag.IntVar(&cfg.TransformSize, "fft-size", cfg.TransformSize, "transform size (a power of two)")
	pflag.IntVar(&cfg.HopSize, "hop", cfg.HopSize, "hop size in samples")
	pflag.Var(&cfg.Backend, "backend", "FFT backend: go-dsp, fourier")
	pflag.Var(&cfg.SuppressionRule, "rule", "suppression rule: spectral-gating, wideband-gating, power-subtraction, nonlinear-power-subtraction")

	params := denoiser.DefaultParameters()
	disable := pflag.Bool("bypass", false, "do not denoise (the output is the delayed input)")
	pflag.BoolVar(&params.ResidualListen, "residual-listen", params.ResidualListen, "output only what would be removed")
	pflag.BoolVar(&params.AutoLearnNoise, "auto-learn", params.AutoLearnNoise, "track the noise profile continuously instead of using a learned one")
	pflag.Float64Var(&params.ReductionAmount, "reduction", params.ReductionAmount, "attenuation of the residual noise in dB [-100, 0]")
	pflag.Float64Var(&params.ReleaseTime, "release", params.ReleaseTime, "release time in milliseconds [0, 1000]")
	pflag.Float64Var(&params.MaskingCeilingLimit, "masking", params.MaskingCeilingLimit, "maximal suppression depth in percent [0, 100]")
	pflag.Float64Var(&params.WhiteningFactor, "whitening", params.WhiteningFactor, "residual whitening factor [0, 1]")
	pflag.Float64Var(&params.TransientThreshold, "transient-threshold", params.TransientThreshold, "transient protection threshold [0, 5], 0 disables it")
	pflag.Float64Var(&params.NoiseRescale, "noise-rescale", params.NoiseRescale, "noise profile multiplier [0, 10]")

	noiseFile := pflag.String("noise-file", "", "learn the noise profile from this noise-only file")
	learnDuration := pflag.Duration("learn-duration", 0, "learn the noise profile from the leading part of the input")
	loadProfile := pflag.String("load-profile", "", "load the noise profile from this file")
	saveProfile := pflag.String("save-profile", "", "save the learned noise profile into this file")
	bufferSize := pflag.Uint("buffer-size", 1<<20, "size of the output buffer in bytes")
	pflag.Parse()

	if pflag.NArg() != 2 {
		panic(fmt.Errorf("expected exactly two arguments: <input-file> <output-file>"))
	}
	params.Enable = !*disable

	l := logrus.Default().WithLevel(loggerLevel)
	ctx := logger.CtxWithLogger(context.Background(), l)
	logger.Default = func() logger.Logger {
		return l
	}
	defer belt.Flush(ctx)

	if *netPprofAddr != "" {
		observability.Go(ctx, func(ctx context.Context) { l.Error(http.ListenAndServe(*netPprofAddr, nil)) })
	}

	rawFormat := resampler.Format{
		Channels:   audio.Channel(*channels),
		SampleRate: audio.SampleRate(*sampleRate),
		PCMFormat:  inputFormat,
	}
	input, err := openInput(pflag.Arg(0), rawFormat)
	assertNoError(err)
	defer input.Close()

	procFormat := resampler.Format{
		Channels:   input.Format.Channels,
		SampleRate: input.Format.SampleRate,
		PCMFormat:  processingFormat,
	}
	if *downmix {
		procFormat.Channels = 1
	}
	cfg.Channels = procFormat.Channels
	cfg.SampleRate = float64(procFormat.SampleRate)
	cfg.PCMFormat = processingFormat

	ns, err := spectral.New(ctx, cfg)
	assertNoError(err)
	defer ns.Close()

	if *loadProfile != "" {
		assertNoError(loadNoiseProfiles(ns, *loadProfile))
		logger.Infof(ctx, "loaded the noise profile from '%s'", *loadProfile)
	}

	if *noiseFile != "" {
		noise, err := openInput(*noiseFile, rawFormat)
		assertNoError(err)
		converted, err := resampler.NewResampler(noise.Format, noise, procFormat)
		assertNoError(err)
		n, err := learnNoise(ctx, ns, params, converted, -1)
		noise.Close()
		assertNoError(err)
		logger.Infof(ctx, "learned the noise profile from %d bytes of '%s'", n, *noiseFile)
	}

	var source io.Reader
	source, err = resampler.NewResampler(input.Format, input, procFormat)
	assertNoError(err)

	if *learnDuration > 0 {
		encoding := audio.EncodingPCM{PCMFormat: processingFormat, SampleRate: procFormat.SampleRate}
		prefix := newRecordingReader(source)
		n, err := learnNoise(ctx, ns, params, prefix, int64(encoding.BytesForDuration(procFormat.Channels, *learnDuration)))
		assertNoError(err)
		logger.Infof(ctx, "learned the noise profile from the first %d bytes of the input", n)
		source = prefix.Replay()
	}

	if *saveProfile != "" {
		assertNoError(saveNoiseProfiles(ns, *saveProfile))
		logger.Infof(ctx, "saved the noise profile to '%s'", *saveProfile)
	}

	assertNoError(ns.SetParameters(params))

	stream, err := noisesuppressionstream.New(ctx, source, ns, *bufferSize)
	assertNoError(err)
	defer stream.Close()

	outFormat := procFormat
	outFormat.PCMFormat = outputFormat
	output, err := resampler.NewResampler(procFormat, stream, outFormat)
	assertNoError(err)

	outputFile, err := os.Create(pflag.Arg(1))
	assertNoError(err)
	defer func() {
		assertNoError(outputFile.Close())
	}()
	wc := datacounter.NewWriterCounter(outputFile)

	startedAt := time.Now()
	_, err = io.Copy(wc, output)
	assertNoError(err)
	logger.Infof(ctx, "written %d bytes (%v, %d channels at %dHz) in %v",
		wc.Count(), outputFormat, outFormat.Channels, outFormat.SampleRate, time.Since(startedAt))
}

func assertNoError(err error) {
	if err != nil {
		panic(err)
	}
}
