package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/adrg/xdg"
	"github.com/rs/zerolog"

	"github.com/cbegin/touchpiano-go/internal/samples"
)

// Config holds the instrument settings.
type Config struct {
	// Assets is a directory or an http(s) URL containing assets/samples/.
	Assets          string   `toml:"assets"`
	Format          string   `toml:"format"` // mp3 or wav
	Notes           []string `toml:"notes"`
	SampleRate      int      `toml:"sample_rate"`
	ReleaseMs       int64    `toml:"release_ms"`
	LoadConcurrency int      `toml:"load_concurrency"`
	Volume          float64  `toml:"volume"`
	WindowWidth     int      `toml:"window_width"`
	WindowHeight    int      `toml:"window_height"`
	Debug           bool     `toml:"debug"`
}

func Default() Config {
	return Config{
		Assets:          ".",
		Format:          "mp3",
		Notes:           append([]string(nil), samples.DefaultNotes...),
		SampleRate:      48000,
		ReleaseMs:       400,
		LoadConcurrency: 1,
		Volume:          1,
		WindowWidth:     1100,
		WindowHeight:    480,
	}
}

func (c *Config) ReleaseDuration() time.Duration {
	return time.Duration(c.ReleaseMs) * time.Millisecond
}

// Remote reports whether Assets points at an HTTP server.
func (c *Config) Remote() bool {
	return strings.HasPrefix(c.Assets, "http://") || strings.HasPrefix(c.Assets, "https://")
}

func (c *Config) Validate() error {
	if c.Assets == "" {
		return errors.New("assets cannot be empty")
	}
	if _, err := samples.DecoderFor(c.Format, c.SampleRate); err != nil {
		return err
	}
	if len(c.Notes) == 0 {
		return errors.New("notes cannot be empty")
	}
	if c.SampleRate <= 0 {
		return fmt.Errorf("sample_rate must be positive, got %d", c.SampleRate)
	}
	if c.ReleaseMs < 0 {
		return errors.New("release_ms cannot be negative")
	}
	if c.LoadConcurrency < 1 {
		c.LoadConcurrency = 1
	}
	if c.Volume < 0 {
		return errors.New("volume cannot be negative")
	}
	if c.WindowWidth <= 0 || c.WindowHeight <= 0 {
		return errors.New("window size must be positive")
	}
	return nil
}

// SearchPaths lists config files in increasing priority: system, user, local.
func SearchPaths() []string {
	paths := []string{"/usr/local/etc/touchpiano.toml"}
	if p, err := xdg.SearchConfigFile("touchpiano/touchpiano.toml"); err == nil {
		paths = append(paths, p)
	}
	return append(paths, "./touchpiano.toml")
}

// Load merges the given files over the defaults; later files override
// earlier ones and missing files are skipped. An explicit path that does
// not exist is an error.
func Load(log zerolog.Logger, explicit string, paths ...string) (Config, error) {
	cfg := Default()
	for _, path := range paths {
		if err := mergeFile(&cfg, path, log); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return cfg, err
		}
	}
	if explicit != "" {
		if err := mergeFile(&cfg, explicit, log); err != nil {
			return cfg, err
		}
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func mergeFile(cfg *Config, path string, log zerolog.Logger) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	md, err := toml.Decode(string(data), cfg)
	if err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}
	for _, key := range md.Undecoded() {
		log.Warn().Str("path", path).Str("key", key.String()).Msg("Unknown config key")
	}
	log.Debug().Str("path", path).Msg("Loaded config file")
	return nil
}

// Fetcher returns the asset fetcher for Assets.
func (c *Config) Fetcher() samples.Fetcher {
	if c.Remote() {
		return &samples.HTTPFetcher{BaseURL: c.Assets, Ext: c.Format}
	}
	return &samples.FSFetcher{FS: os.DirFS(c.Assets), Ext: c.Format}
}

// Decoder returns the decoder for Format at SampleRate.
func (c *Config) Decoder() (samples.Decoder, error) {
	return samples.DecoderFor(c.Format, c.SampleRate)
}
