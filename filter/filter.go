// Package filter provides http middleware replacing background images in
// served stylesheets with data URIs.
package filter

import (
	"bytes"
	"mime"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"cssdata/dataurl"
	"cssdata/resource"
	"cssdata/useragent"
)

// DefaultEnableParam is request parameter turning replacement on.
const DefaultEnableParam = "useDataUri"

type Options struct {
	// EnableParam is name of query parameter which must be present in request
	// for replacement to happen.
	EnableParam string
	// AlwaysEnabled ignores EnableParam.
	AlwaysEnabled bool
}

// Filter wraps handler serving stylesheets. Images referenced from captured
// stylesheet are loaded by dispatching sub-requests to the same handler.
type Filter struct {
	next    http.Handler
	inliner *dataurl.Inliner
	opts    Options
	log     *zap.Logger
}

func New(next http.Handler, in *dataurl.Inliner, opts Options, log *zap.Logger) *Filter {
	if log == nil {
		log = zap.NewNop()
	}
	if len(opts.EnableParam) == 0 {
		opts.EnableParam = DefaultEnableParam
	}
	return &Filter{next: next, inliner: in, opts: opts, log: log.Named("filter")}
}

// Middleware returns constructor suitable for handler chains.
func Middleware(in *dataurl.Inliner, opts Options, log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return New(next, in, opts, log)
	}
}

func (f *Filter) enabled(r *http.Request) bool {
	if r.Method != http.MethodGet {
		return false
	}
	if f.opts.AlwaysEnabled {
		return true
	}
	_, ok := r.URL.Query()[f.opts.EnableParam]
	return ok
}

func (f *Filter) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	log := f.log.With(zap.String("request", uuid.NewString()), zap.String("uri", r.URL.RequestURI()))

	if !f.enabled(r) {
		log.Debug("Skipping css data URI replacement, not requested")
		f.next.ServeHTTP(w, r)
		return
	}

	supported := useragent.SupportsDataURI(r.UserAgent())
	cw := &captureWriter{w: w, rewrite: supported}
	f.next.ServeHTTP(cw, r)
	cw.commit()

	if !cw.buffering {
		if !supported {
			log.Debug("Skipping css data URI replacement, client does not support data URIs")
		}
		return
	}

	body := cw.buf.Bytes()
	res, err := f.inliner.Process(r.Context(), string(body), resource.NewHandler(f.next, r))
	if err != nil {
		log.Warn("Data URI replacement failed, serving original stylesheet", zap.Error(err))
	} else {
		log.Info("Performed background image data URI replacement", zap.Int("references", len(res.Outcomes)), zap.Int("inlined", res.Inlined()))
		body = []byte(res.Text)
	}

	w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(body); err != nil {
		log.Debug("Unable to write response", zap.Error(err))
	}
}

// captureWriter decides on the first WriteHeader whether response needs
// rewriting. Only successful stylesheets are buffered, everything else goes
// straight to the underlying writer.
type captureWriter struct {
	w         http.ResponseWriter
	rewrite   bool
	decided   bool
	buffering bool
	buf       bytes.Buffer
}

func (c *captureWriter) Header() http.Header {
	return c.w.Header()
}

func (c *captureWriter) WriteHeader(code int) {
	if c.decided {
		return
	}
	c.decided = true
	if code == http.StatusOK && isStylesheet(c.w.Header().Get("Content-Type")) {
		// response body depends on client for stylesheets
		c.w.Header().Add("Vary", "User-Agent")
		c.buffering = c.rewrite
	}
	if !c.buffering {
		c.w.WriteHeader(code)
	}
}

func (c *captureWriter) Write(p []byte) (int, error) {
	c.WriteHeader(http.StatusOK)
	if c.buffering {
		return c.buf.Write(p)
	}
	return c.w.Write(p)
}

func (c *captureWriter) Flush() {
	c.WriteHeader(http.StatusOK)
	if c.buffering {
		return
	}
	// underlying writer may not support flushing
	_ = http.NewResponseController(c.w).Flush()
}

// Unwrap gives http.ResponseController access to underlying writer.
func (c *captureWriter) Unwrap() http.ResponseWriter {
	return c.w
}

// commit makes sure decision is taken even if handler wrote nothing.
func (c *captureWriter) commit() {
	c.WriteHeader(http.StatusOK)
}

func isStylesheet(contentType string) bool {
	mt, _, err := mime.ParseMediaType(contentType)
	return err == nil && mt == "text/css"
}
