package dataurl

import (
	"context"
	"errors"
	"fmt"

	"github.com/h2non/filetype"
)

// DefaultSizeLimit is the largest image (in bytes) which will be inlined
// when no limit is configured.
const DefaultSizeLimit = 32 * 1024

var (
	// ErrNotFound should be returned by Fetcher when resource does not exist.
	ErrNotFound = errors.New("resource not found")
	// ErrNoFetcher is returned when inlining is requested without a way to
	// load images.
	ErrNoFetcher = errors.New("no fetcher provided")
)

// Fetcher loads raw bytes for url found in CSS. Returning empty data with
// nil error is the same as returning ErrNotFound. Implementations must be
// safe for concurrent use.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// FetcherFunc adapts ordinary function to Fetcher.
type FetcherFunc func(ctx context.Context, url string) ([]byte, error)

func (f FetcherFunc) Fetch(ctx context.Context, url string) ([]byte, error) {
	return f(ctx, url)
}

// Reason explains why reference was not inlined.
type Reason int

const (
	ReasonNone Reason = iota
	ReasonNotFound
	ReasonTooLarge
	ReasonNotImage
	ReasonFetchFailed
)

func (r Reason) String() string {
	switch r {
	case ReasonNone:
		return "none"
	case ReasonNotFound:
		return "not found"
	case ReasonTooLarge:
		return "too large"
	case ReasonNotImage:
		return "not an image"
	case ReasonFetchFailed:
		return "fetch failed"
	}
	return fmt.Sprintf("Reason(%d)", int(r))
}

// Outcome is result of resolving single reference.
type Outcome struct {
	Ref    Reference
	Data   []byte
	Size   int
	Reason Reason
	Err    error
}

// Accepted reports whether reference should be replaced.
func (o Outcome) Accepted() bool {
	return o.Reason == ReasonNone
}

// Policy decides which fetched images are inlined.
type Policy struct {
	// SizeLimit is maximum accepted image size in bytes, DefaultSizeLimit
	// when not positive.
	SizeLimit int
	// VerifyImages rejects data which does not look like an image.
	VerifyImages bool
}

func (p Policy) limit() int {
	if p.SizeLimit <= 0 {
		return DefaultSizeLimit
	}
	return p.SizeLimit
}

// Admit applies policy rules to the result of fetching ref. Fetch errors are
// never propagated, they become rejected outcomes.
func (p Policy) Admit(ref Reference, data []byte, err error) Outcome {
	o := Outcome{Ref: ref, Size: len(data), Err: err}
	switch {
	case errors.Is(err, ErrNotFound):
		o.Reason = ReasonNotFound
	case err != nil:
		o.Reason = ReasonFetchFailed
	case len(data) == 0:
		o.Reason = ReasonNotFound
	case len(data) > p.limit():
		o.Reason = ReasonTooLarge
	case p.VerifyImages && !filetype.IsImage(data):
		o.Reason = ReasonNotImage
	default:
		o.Data = data
	}
	return o
}
