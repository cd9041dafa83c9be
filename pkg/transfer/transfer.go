// Package transfer abstracts the byte-transport used to retrieve artifacts.
package transfer

import (
	"context"
	"fmt"
	"io"
	"net/http"
)

// Transferrer retrieves the bytes behind a resolved URL. Any transport
// error or non-success outcome is returned as an error and must leave no
// partial state behind; retries are the caller's decision (the fetch
// pipeline never retries).
type Transferrer interface {
	Fetch(ctx context.Context, url string) (io.ReadCloser, error)
}

// HTTP is the native net/http Transferrer.
type HTTP struct {
	// Client used for requests; nil means http.DefaultClient.
	Client *http.Client
}

func (t *HTTP) client() *http.Client {
	if t.Client != nil {
		return t.Client
	}
	return http.DefaultClient
}

// Fetch performs a single blocking GET. Any status outside 2xx fails.
func (t *HTTP) Fetch(ctx context.Context, url string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "artifetch")

	resp, err := t.client().Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_ = resp.Body.Close()
		return nil, fmt.Errorf("unexpected status for %s: %s", url, resp.Status)
	}
	return resp.Body, nil
}
