package dataurl

import (
	"context"
	"fmt"
	"runtime/debug"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// DefaultConcurrency is number of images fetched in parallel when Options
// does not specify it.
const DefaultConcurrency = 4

// Options controls Inliner behavior.
type Options struct {
	// SizeLimit is the largest image (in bytes) to inline.
	SizeLimit int
	// Concurrency limits number of parallel fetches for single stylesheet.
	Concurrency int
	// ScanMode selects reference scanner.
	ScanMode ScanMode
	// VerifyImages sniffs fetched data and skips anything which is not an image.
	VerifyImages bool
}

// Inliner replaces background image references with data URIs. It keeps no
// state between calls and is safe for concurrent use when Fetcher is.
type Inliner struct {
	policy      Policy
	concurrency int
	scan        func(string) []Reference
	log         *zap.Logger
}

// Result is a complete report of single Process call.
type Result struct {
	Text     string
	Outcomes []Outcome
}

// Inlined returns number of replaced references.
func (r *Result) Inlined() int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Accepted() {
			n++
		}
	}
	return n
}

// NewInliner creates Inliner with provided options.
func NewInliner(opts Options, log *zap.Logger) *Inliner {
	if log == nil {
		log = zap.NewNop()
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}
	return &Inliner{
		policy:      Policy{SizeLimit: opts.SizeLimit, VerifyImages: opts.VerifyImages},
		concurrency: opts.Concurrency,
		scan:        opts.ScanMode.Scanner(),
		log:         log.Named("dataurl"),
	}
}

// Inline returns css with eligible background images replaced by data URIs.
// When inlining is not enabled or client does not support data URIs text is
// returned unchanged. Only missing fetcher and context cancellation are
// reported as errors, any problem with individual image simply leaves its
// reference untouched.
func (in *Inliner) Inline(ctx context.Context, css string, enabled, supported bool, f Fetcher) (string, error) {
	if !enabled || !supported {
		in.log.Debug("Skipping data URI replacement", zap.Bool("enabled", enabled), zap.Bool("supported", supported))
		return css, nil
	}
	res, err := in.Process(ctx, css, f)
	if err != nil {
		return css, err
	}
	return res.Text, nil
}

// Process scans css, resolves every reference and splices accepted ones
// back in a single pass.
func (in *Inliner) Process(ctx context.Context, css string, f Fetcher) (*Result, error) {
	if f == nil {
		return nil, ErrNoFetcher
	}

	refs := in.scan(css)
	res := &Result{Text: css, Outcomes: make([]Outcome, len(refs))}
	if len(refs) == 0 {
		return res, nil
	}

	var g errgroup.Group
	g.SetLimit(in.concurrency)
	for i, ref := range refs {
		g.Go(func() error {
			res.Outcomes[i] = in.resolve(ctx, ref, f)
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	edits := make([]Edit, 0, len(refs))
	for _, o := range res.Outcomes {
		if !o.Accepted() {
			continue
		}
		mime, known := ResolveMime(o.Ref.URL)
		if !known {
			in.log.Warn("Unknown file extension, using default MIME type", zap.String("url", o.Ref.URL), zap.String("mime", mime))
		}
		in.log.Debug("Replacing background image with inline data URI", zap.String("url", o.Ref.URL), zap.Int("size", o.Size))
		edits = append(edits, Edit{Start: o.Ref.Start, End: o.Ref.End, Replacement: encode(o.Data, mime)})
	}

	text, err := Apply(css, edits)
	if err != nil {
		// scanner never produces overlapping spans
		return nil, fmt.Errorf("unable to splice data URIs: %w", err)
	}
	res.Text = text
	return res, nil
}

// resolve fetches single reference and applies policy to it. Panics in
// fetcher are turned into rejected outcomes.
func (in *Inliner) resolve(ctx context.Context, ref Reference, f Fetcher) (o Outcome) {
	defer func() {
		if r := recover(); r != nil {
			in.log.Error("Fetch ended with panic", zap.String("url", ref.URL), zap.Any("panic", r), zap.ByteString("stack", debug.Stack()))
			o = Outcome{Ref: ref, Reason: ReasonFetchFailed, Err: fmt.Errorf("fetch panic: %v", r)}
		}
	}()

	data, err := f.Fetch(ctx, ref.URL)
	o = in.policy.Admit(ref, data, err)

	switch o.Reason {
	case ReasonNotFound:
		in.log.Info("Image not found, skipping", zap.String("url", ref.URL))
	case ReasonTooLarge:
		in.log.Info("Image is too large, skipping", zap.String("url", ref.URL), zap.Int("size", o.Size), zap.Int("limit", in.policy.limit()))
	case ReasonNotImage:
		in.log.Info("Resource is not an image, skipping", zap.String("url", ref.URL), zap.Int("size", o.Size))
	case ReasonFetchFailed:
		in.log.Error("Unable to load background image", zap.String("url", ref.URL), zap.Error(err))
	}
	return o
}

// Inline is a convenience wrapper creating Inliner for a single call.
func Inline(ctx context.Context, css string, enabled, supported bool, f Fetcher, sizeLimit int) (string, error) {
	return NewInliner(Options{SizeLimit: sizeLimit}, nil).Inline(ctx, css, enabled, supported, f)
}
