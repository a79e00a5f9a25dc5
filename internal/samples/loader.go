package samples

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Fetcher retrieves the raw encoded bytes of one note's asset.
type Fetcher interface {
	Fetch(ctx context.Context, note string) ([]byte, error)
}

// Decoder turns raw asset bytes into a playable buffer.
type Decoder interface {
	Decode(note string, data []byte) (*Buffer, error)
}

// ProgressFunc receives cumulative progress. It is called with (0, total)
// before the first asset and once after each asset is stored.
type ProgressFunc func(loaded, total int)

const (
	StageFetch  = "fetch"
	StageDecode = "decode"
)

// LoadError reports the note and stage at which loading failed.
type LoadError struct {
	Note  string
	Stage string
	Err   error
}

func (e *LoadError) Error() string {
	if e.Note == "" {
		return fmt.Sprintf("load samples: %v", e.Err)
	}
	return fmt.Sprintf("load sample %s: %s: %v", e.Note, e.Stage, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

type LoaderOption func(*Loader)

// WithConcurrency bounds how many assets are fetched and decoded at once.
// Values below 2 keep loading strictly sequential.
func WithConcurrency(n int) LoaderOption {
	return func(l *Loader) {
		l.concurrency = n
	}
}

func WithLogger(log zerolog.Logger) LoaderOption {
	return func(l *Loader) {
		l.log = log
	}
}

type Loader struct {
	fetcher     Fetcher
	decoder     Decoder
	concurrency int
	log         zerolog.Logger
}

func NewLoader(fetcher Fetcher, decoder Decoder, opts ...LoaderOption) *Loader {
	l := &Loader{
		fetcher:     fetcher,
		decoder:     decoder,
		concurrency: 1,
		log:         zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.log = l.log.With().Str("component", "loader").Logger()
	return l
}

// Load fetches and decodes every note and returns the completed table. Any
// failure aborts the load and no table is returned.
func (l *Loader) Load(ctx context.Context, notes []string, progress ProgressFunc) (*Table, error) {
	if err := validateNotes(notes); err != nil {
		return nil, &LoadError{Err: err}
	}
	if progress == nil {
		progress = func(int, int) {}
	}
	total := len(notes)
	progress(0, total)
	l.log.Debug().Int("total", total).Int("concurrency", l.concurrency).Msg("Loading samples")

	var (
		buffers []*Buffer
		err     error
	)
	if l.concurrency < 2 {
		buffers, err = l.loadSequential(ctx, notes, progress)
	} else {
		buffers, err = l.loadConcurrent(ctx, notes, progress)
	}
	if err != nil {
		l.log.Error().Err(err).Msg("Sample loading failed")
		return nil, err
	}

	m := make(map[string]*Buffer, total)
	for i, note := range notes {
		m[note] = buffers[i]
	}
	l.log.Debug().Int("total", total).Msg("Samples loaded")
	return newTable(notes, m), nil
}

func (l *Loader) loadSequential(ctx context.Context, notes []string, progress ProgressFunc) ([]*Buffer, error) {
	buffers := make([]*Buffer, len(notes))
	for i, note := range notes {
		b, err := l.loadOne(ctx, note)
		if err != nil {
			return nil, err
		}
		buffers[i] = b
		progress(i+1, len(notes))
	}
	return buffers, nil
}

func (l *Loader) loadConcurrent(ctx context.Context, notes []string, progress ProgressFunc) ([]*Buffer, error) {
	buffers := make([]*Buffer, len(notes))
	var (
		mu     sync.Mutex
		loaded int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(l.concurrency)
	for i, note := range notes {
		g.Go(func() error {
			b, err := l.loadOne(gctx, note)
			if err != nil {
				return err
			}
			buffers[i] = b
			// Counting and reporting under one lock keeps progress monotonic.
			mu.Lock()
			loaded++
			progress(loaded, len(notes))
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return buffers, nil
}

func (l *Loader) loadOne(ctx context.Context, note string) (*Buffer, error) {
	if err := ctx.Err(); err != nil {
		return nil, &LoadError{Note: note, Stage: StageFetch, Err: err}
	}
	data, err := l.fetcher.Fetch(ctx, note)
	if err != nil {
		return nil, &LoadError{Note: note, Stage: StageFetch, Err: err}
	}
	b, err := l.decoder.Decode(note, data)
	if err != nil {
		return nil, &LoadError{Note: note, Stage: StageDecode, Err: err}
	}
	if b.Note == "" {
		b.Note = note
	}
	l.log.Trace().Str("note", note).Int("frames", b.Len()).Msg("Loaded sample")
	return b, nil
}

func validateNotes(notes []string) error {
	seen := make(map[string]struct{}, len(notes))
	for _, n := range notes {
		if n == "" {
			return errors.New("empty note name")
		}
		if _, ok := seen[n]; ok {
			return fmt.Errorf("duplicate note %q", n)
		}
		seen[n] = struct{}{}
	}
	return nil
}
