package samples

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"strings"
)

// HTTPFetcher fetches assets relative to BaseURL.
type HTTPFetcher struct {
	Client  *http.Client
	BaseURL string
	Ext     string
}

func (f *HTTPFetcher) Fetch(ctx context.Context, note string) ([]byte, error) {
	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}
	url := strings.TrimRight(f.BaseURL, "/") + "/" + AssetPath(note, f.Ext)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("GET %s: %s", url, resp.Status)
	}
	return io.ReadAll(resp.Body)
}

// FSFetcher reads assets from a file system rooted above assets/samples.
type FSFetcher struct {
	FS  fs.FS
	Ext string
}

func (f *FSFetcher) Fetch(ctx context.Context, note string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return fs.ReadFile(f.FS, AssetPath(note, f.Ext))
}
