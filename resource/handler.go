package resource

import (
	"bytes"
	"context"
	"fmt"
	"net/http"

	"cssdata/dataurl"
)

// Recorder is http.ResponseWriter keeping everything written in memory.
type Recorder struct {
	Code int
	Body bytes.Buffer

	header      http.Header
	wroteHeader bool
}

// NewRecorder returns empty Recorder with status 200.
func NewRecorder() *Recorder {
	return &Recorder{Code: http.StatusOK, header: make(http.Header)}
}

func (r *Recorder) Header() http.Header {
	return r.header
}

func (r *Recorder) WriteHeader(code int) {
	if r.wroteHeader {
		return
	}
	r.wroteHeader = true
	r.Code = code
}

func (r *Recorder) Write(p []byte) (int, error) {
	r.WriteHeader(http.StatusOK)
	return r.Body.Write(p)
}

// headers which would change what downstream handler returns for image
// sub-request
var droppedHeaders = []string{
	"Accept-Encoding",
	"If-Match",
	"If-Modified-Since",
	"If-None-Match",
	"If-Range",
	"If-Unmodified-Since",
	"Range",
}

// Handler loads images by dispatching sub-requests to the http.Handler in
// the same process. Relative urls are resolved against parent request url.
type Handler struct {
	handler http.Handler
	parent  *http.Request
}

// NewHandler returns fetcher for images referenced from stylesheet served in
// response to parent.
func NewHandler(h http.Handler, parent *http.Request) *Handler {
	return &Handler{handler: h, parent: parent}
}

func (h *Handler) Fetch(ctx context.Context, ref string) ([]byte, error) {
	u, err := h.parent.URL.Parse(ref)
	if err != nil {
		return nil, fmt.Errorf("bad reference %q: %w", ref, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header = h.parent.Header.Clone()
	for _, name := range droppedHeaders {
		req.Header.Del(name)
	}
	req.Host = h.parent.Host
	req.RemoteAddr = h.parent.RemoteAddr
	req.RequestURI = u.RequestURI()

	rec := NewRecorder()
	h.handler.ServeHTTP(rec, req)

	switch {
	case rec.Code == http.StatusNotFound || rec.Code == http.StatusGone:
		return nil, fmt.Errorf("%s: %w", u.Path, dataurl.ErrNotFound)
	case rec.Code != http.StatusOK:
		return nil, fmt.Errorf("%s: unexpected status %d", u.Path, rec.Code)
	}
	return rec.Body.Bytes(), nil
}
