package serve

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"cssdata/dataurl"
	"cssdata/filter"
)

func makeRoot(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	for name, data := range map[string]string{
		"css/site.css": ".a{background-image:url(../img/a.gif)}",
		"img/a.gif":    "GIF89a",
	} {
		name = filepath.Join(dir, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(name), 0755); err != nil {
			t.Fatalf("Failed to create directory: %v", err)
		}
		if err := os.WriteFile(name, []byte(data), 0644); err != nil {
			t.Fatalf("Failed to write file: %v", err)
		}
	}
	return dir
}

func TestSite(t *testing.T) {
	log := zaptest.NewLogger(t)
	site, err := NewSite(makeRoot(t), dataurl.NewInliner(dataurl.Options{}, log), filter.Options{}, log)
	if err != nil {
		t.Fatalf("NewSite() error = %v", err)
	}
	defer site.Close()

	tests := []struct {
		target string
		want   string
	}{
		{"/css/site.css", ".a{background-image:url(../img/a.gif)}"},
		{"/css/site.css?useDataUri", ".a{background-image:url(data:image/gif;base64,R0lGODlh)}"},
		{"/img/a.gif?useDataUri", "GIF89a"},
	}
	for _, tt := range tests {
		rec := httptest.NewRecorder()
		site.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.target, nil))
		if rec.Code != http.StatusOK {
			t.Errorf("GET %s status = %d", tt.target, rec.Code)
		}
		if got := rec.Body.String(); got != tt.want {
			t.Errorf("GET %s = %q, want %q", tt.target, got, tt.want)
		}
	}

	rec := httptest.NewRecorder()
	site.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/../../etc/passwd", nil))
	if rec.Code == http.StatusOK {
		t.Error("file outside of root must not be served")
	}
}

func TestNewSite_Missing(t *testing.T) {
	if _, err := NewSite(filepath.Join(t.TempDir(), "none"), nil, filter.Options{}, nil); err == nil {
		t.Error("expected error for missing root")
	}
}

func TestServe_Shutdown(t *testing.T) {
	log := zaptest.NewLogger(t, zaptest.WrapOptions(zap.AddCaller()))
	site, err := NewSite(makeRoot(t), dataurl.NewInliner(dataurl.Options{}, log), filter.Options{AlwaysEnabled: true}, log)
	if err != nil {
		t.Fatalf("NewSite() error = %v", err)
	}
	defer site.Close()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- serve(ctx, &http.Server{Handler: site}, ln, time.Second, log)
	}()

	res, err := http.Get("http://" + ln.Addr().String() + "/css/site.css")
	if err != nil {
		t.Fatalf("GET error = %v", err)
	}
	body, _ := io.ReadAll(res.Body)
	res.Body.Close()
	if !strings.Contains(string(body), "data:image/gif;base64,") {
		t.Errorf("body = %q, want inlined image", body)
	}
	if res.ContentLength != int64(len(body)) {
		t.Errorf("Content-Length = %d, body length = %d", res.ContentLength, len(body))
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("serve() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
