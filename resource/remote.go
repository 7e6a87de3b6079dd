package resource

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"cssdata/dataurl"
)

// Doer executes http requests, *http.Client satisfies it.
type Doer interface {
	Do(*http.Request) (*http.Response, error)
}

// Remote loads images over http. Relative urls are resolved against base url.
type Remote struct {
	client Doer
	base   *url.URL
	header http.Header
}

// NewRemote creates fetcher resolving references against base url. Provided
// headers are sent with every request.
func NewRemote(client Doer, base string, header http.Header) (*Remote, error) {
	u, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("bad base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported base url scheme %q", u.Scheme)
	}
	return &Remote{client: client, base: u, header: header}, nil
}

// Relative returns fetcher for stylesheet located at path relative to the
// base url.
func (r *Remote) Relative(rel string) (*Remote, error) {
	u, err := r.base.Parse(rel)
	if err != nil {
		return nil, fmt.Errorf("bad stylesheet location %q: %w", rel, err)
	}
	return &Remote{client: r.client, base: u, header: r.header}, nil
}

func (r *Remote) Fetch(ctx context.Context, ref string) ([]byte, error) {
	u, err := r.base.Parse(ref)
	if err != nil {
		return nil, fmt.Errorf("bad reference %q: %w", ref, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	for k, v := range r.header {
		req.Header[k] = v
	}

	res, err := r.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	switch {
	case res.StatusCode == http.StatusNotFound || res.StatusCode == http.StatusGone:
		return nil, fmt.Errorf("%s: %w", u, dataurl.ErrNotFound)
	case res.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("%s: %s", u, res.Status)
	}

	data, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("body read failed %w", err)
	}
	return data, nil
}
