package main

import (
	"context"
	"flag"
	"fmt"
	"image"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/cbegin/touchpiano-go"
	"github.com/cbegin/touchpiano-go/internal/config"
	"github.com/cbegin/touchpiano-go/internal/keyboard"
	"github.com/cbegin/touchpiano-go/internal/samples"
)

func main() {
	var (
		configPath = flag.String("config", "", "path to a touchpiano.toml")
		assets     = flag.String("assets", "", "directory or URL containing assets/samples/ (overrides config)")
		scriptPath = flag.String("script", "", "gesture script (TOML, [[event]] tables)")
		outPath    = flag.String("out", "touches.wav", "output WAV path")
		width      = flag.Int("width", 0, "board width in pixels (default: config window_width)")
		height     = flag.Int("height", 0, "board height in pixels (default: config window_height)")
		debug      = flag.Bool("debug", false, "enable debug logging")
	)
	flag.Parse()

	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).With().Timestamp().Logger()
	if *debug {
		log = log.Level(zerolog.DebugLevel)
	} else {
		log = log.Level(zerolog.InfoLevel)
	}

	if err := run(log, *configPath, *assets, *scriptPath, *outPath, *width, *height); err != nil {
		log.Fatal().Err(err).Msg("render failed")
	}
}

func run(log zerolog.Logger, configPath, assets, scriptPath, outPath string, width, height int) error {
	if scriptPath == "" {
		return fmt.Errorf("-script is required")
	}
	cfg, err := config.Load(log, configPath, config.SearchPaths()...)
	if err != nil {
		return err
	}
	if assets != "" {
		cfg.Assets = assets
	}
	if width <= 0 {
		width = cfg.WindowWidth
	}
	if height <= 0 {
		height = cfg.WindowHeight
	}

	events, err := touchpiano.LoadGestureScript(scriptPath)
	if err != nil {
		return err
	}
	decoder, err := cfg.Decoder()
	if err != nil {
		return err
	}
	loader := samples.NewLoader(cfg.Fetcher(), decoder,
		samples.WithConcurrency(cfg.LoadConcurrency),
		samples.WithLogger(log))
	table, err := loader.Load(context.Background(), cfg.Notes, func(loaded, total int) {
		log.Debug().Int("loaded", loaded).Int("total", total).Msg("Loading samples")
	})
	if err != nil {
		return err
	}

	keys := keyboard.New(cfg.Notes, image.Rect(0, 0, width, height))
	out := touchpiano.RenderGesture(table, keys, events, touchpiano.RenderOptions{
		SampleRate:      cfg.SampleRate,
		ReleaseDuration: cfg.ReleaseDuration(),
		Log:             log,
	})
	if err := os.WriteFile(outPath, touchpiano.EncodeWAVFloat32LE(out, cfg.SampleRate, 2), 0o644); err != nil {
		return err
	}
	log.Info().Str("out", outPath).Int("events", len(events)).Dur("length", time.Duration(len(out)/2)*time.Second/time.Duration(cfg.SampleRate)).Msg("Rendered gesture")
	return nil
}
