package inline

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	cli "github.com/urfave/cli/v3"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"cssdata/config"
	"cssdata/dataurl"
	"cssdata/state"
)

const mainCSS = `body{background-image:url("../img/a.png")}
.logo{background:url(/img/b.gif)}
.gone{background:url(../img/none.png)}
.ext{background:url(http://example.com/c.png)}
`

var (
	pngData = []byte("\x89PNG\r\n\x1a\nPIXELS")
	gifData = []byte("GIF89a-PIXELS")
)

// setupTestEnv creates a test environment with proper context and logger
func setupTestEnv(t *testing.T) (context.Context, *state.LocalEnv) {
	cfg, err := config.LoadConfiguration("")
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	ctx := state.ContextWithEnv(context.Background())
	env := state.EnvFromContext(ctx)
	env.Log = zaptest.NewLogger(t, zaptest.WrapOptions(zap.AddCaller(), zap.AddCallerSkip(1)))
	env.Cfg = cfg
	return ctx, env
}

func writeFile(t *testing.T, name string, data []byte) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(name), 0755); err != nil {
		t.Fatalf("Failed to create directory: %v", err)
	}
	if err := os.WriteFile(name, data, 0644); err != nil {
		t.Fatalf("Failed to write file: %v", err)
	}
}

func readFile(t *testing.T, name string) string {
	t.Helper()
	data, err := os.ReadFile(name)
	if err != nil {
		t.Fatalf("Failed to read %s: %v", name, err)
	}
	return string(data)
}

func makeSite(t *testing.T) string {
	t.Helper()
	site := filepath.Join(t.TempDir(), "site")
	writeFile(t, filepath.Join(site, "css", "main.css"), []byte(mainCSS))
	writeFile(t, filepath.Join(site, "img", "a.png"), pngData)
	writeFile(t, filepath.Join(site, "img", "b.gif"), gifData)
	writeFile(t, filepath.Join(site, "img", "readme.txt"), []byte("not a stylesheet"))
	return site
}

func checkInlined(t *testing.T, got string) {
	t.Helper()
	for _, want := range []string{
		`url("data:image/png;base64,` + base64.StdEncoding.EncodeToString(pngData) + `")`,
		`url(data:image/gif;base64,` + base64.StdEncoding.EncodeToString(gifData) + `)`,
		`url(../img/none.png)`,
		`url(http://example.com/c.png)`,
	} {
		if !strings.Contains(got, want) {
			t.Errorf("output does not contain %q:\n%s", want, got)
		}
	}
}

func newTestProcessor(t *testing.T, env *state.LocalEnv, root, dst string) *processor {
	t.Helper()
	p, err := newProcessor(env, root, dst, env.Log)
	if err != nil {
		t.Fatalf("newProcessor() error = %v", err)
	}
	return p
}

func TestProcess_Directory(t *testing.T) {
	ctx, env := setupTestEnv(t)
	site, dst := makeSite(t), t.TempDir()

	p := newTestProcessor(t, env, "", dst)
	if err := p.process(ctx, site); err != nil {
		t.Fatalf("process() error = %v", err)
	}

	checkInlined(t, readFile(t, filepath.Join(dst, "css", "main.css")))
	if p.stylesheets != 1 || p.inlined != 2 {
		t.Errorf("stylesheets = %d, inlined = %d", p.stylesheets, p.inlined)
	}
}

func TestProcess_File(t *testing.T) {
	ctx, env := setupTestEnv(t)
	site, dst := makeSite(t), t.TempDir()

	// without explicit root absolute references resolve against stylesheet directory
	p := newTestProcessor(t, env, "", dst)
	if err := p.process(ctx, filepath.Join(site, "css", "main.css")); err != nil {
		t.Fatalf("process() error = %v", err)
	}
	got := readFile(t, filepath.Join(dst, "main.css"))
	if strings.Contains(got, "data:") {
		t.Errorf("nothing should be inlined outside of resolution root:\n%s", got)
	}

	env.Overwrite = true
	p = newTestProcessor(t, env, site, dst)
	if err := p.process(ctx, filepath.Join(site, "css", "main.css")); err != nil {
		t.Fatalf("process() error = %v", err)
	}
	checkInlined(t, readFile(t, filepath.Join(dst, "main.css")))
}

func TestProcess_NoOverwrite(t *testing.T) {
	ctx, env := setupTestEnv(t)
	site, dst := makeSite(t), t.TempDir()
	writeFile(t, filepath.Join(dst, "css", "main.css"), []byte("old"))

	p := newTestProcessor(t, env, "", dst)
	if err := p.process(ctx, site); err != nil {
		t.Fatalf("process() error = %v", err)
	}
	if got := readFile(t, filepath.Join(dst, "css", "main.css")); got != "old" {
		t.Errorf("existing file was overwritten: %q", got)
	}
	if p.stylesheets != 0 {
		t.Errorf("stylesheets = %d, want 0", p.stylesheets)
	}
}

func TestProcess_Archive(t *testing.T) {
	ctx, env := setupTestEnv(t)
	env.NoDirs = true
	dst := t.TempDir()

	buf := new(bytes.Buffer)
	w := zip.NewWriter(buf)
	for name, content := range map[string][]byte{
		"site/css/main.css":  []byte(mainCSS),
		"site/css/other.css": []byte(".x{background:url(../img/a.png)}"),
		"site/img/a.png":     pngData,
		"img/b.gif":          gifData,
	} {
		fw, err := w.Create(name)
		if err != nil {
			t.Fatalf("Failed to create entry %s: %v", name, err)
		}
		fw.Write(content)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Failed to close zip writer: %v", err)
	}
	arc := filepath.Join(t.TempDir(), "site.zip")
	writeFile(t, arc, buf.Bytes())

	p := newTestProcessor(t, env, "", dst)
	if err := p.process(ctx, filepath.Join(arc, "site", "css", "main.css")); err != nil {
		t.Fatalf("process() error = %v", err)
	}
	if _, err := os.Stat(filepath.Join(dst, "other.css")); !os.IsNotExist(err) {
		t.Error("only requested path inside archive should be processed")
	}

	// absolute references are resolved against archive root
	got := readFile(t, filepath.Join(dst, "main.css"))
	checkInlined(t, got)
}

func TestProcess_ArchiveInDirectory(t *testing.T) {
	ctx, env := setupTestEnv(t)
	dst := t.TempDir()
	src := filepath.Join(t.TempDir(), "src")

	buf := new(bytes.Buffer)
	w := zip.NewWriter(buf)
	fw, _ := w.Create("css/x.css")
	fw.Write([]byte(".x{background:url(../img/a.png)}"))
	fw, _ = w.Create("img/a.png")
	fw.Write(pngData)
	w.Close()
	// extension does not matter, content is sniffed
	writeFile(t, filepath.Join(src, "pack", "bundle.bin"), buf.Bytes())

	p := newTestProcessor(t, env, "", dst)
	if err := p.process(ctx, src); err != nil {
		t.Fatalf("process() error = %v", err)
	}
	got := readFile(t, filepath.Join(dst, "pack", "css", "x.css"))
	if !strings.Contains(got, "data:image/png;base64,") {
		t.Errorf("output = %q", got)
	}
}

func TestProcess_Remote(t *testing.T) {
	ctx, env := setupTestEnv(t)
	site, dst := makeSite(t), t.TempDir()

	var (
		mu     sync.Mutex
		agents []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		agents = append(agents, r.UserAgent())
		mu.Unlock()
		switch r.URL.Path {
		case "/static/img/a.png":
			w.Write(pngData)
		case "/static/img/b.gif", "/img/b.gif":
			w.Write(gifData)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	env.BaseURL = srv.URL + "/static/"
	p := newTestProcessor(t, env, "", dst)
	if err := p.process(ctx, site); err != nil {
		t.Fatalf("process() error = %v", err)
	}

	checkInlined(t, readFile(t, filepath.Join(dst, "css", "main.css")))
	if len(agents) == 0 || agents[0] != env.Cfg.Fetch.UserAgent {
		t.Errorf("user agents = %v", agents)
	}
}

func TestProcess_Errors(t *testing.T) {
	ctx, env := setupTestEnv(t)
	site := makeSite(t)
	p := newTestProcessor(t, env, "", t.TempDir())

	for _, src := range []string{
		filepath.Join(site, "nothing", "here.css"),
		filepath.Join(site, "img", "readme.txt"),
		filepath.Join(site, "css", "main.css", "tail"),
	} {
		if err := p.process(ctx, src); err == nil {
			t.Errorf("process(%s) expected error", src)
		}
	}

	canceled, cancel := context.WithCancel(ctx)
	cancel()
	if err := p.process(canceled, site); err == nil {
		t.Error("process() with canceled context expected error")
	}
}

func TestNewProcessor_BadBaseURL(t *testing.T) {
	_, env := setupTestEnv(t)
	env.BaseURL = "ftp://example.com/"
	if _, err := newProcessor(env, "", t.TempDir(), env.Log); err == nil {
		t.Error("expected error for unsupported scheme")
	}
}

func TestBuildOutputPath(t *testing.T) {
	env := &state.LocalEnv{}
	dst := filepath.FromSlash("/out")

	tests := []struct {
		src    string
		nodirs bool
		want   string
	}{
		{"main.css", false, "/out/main.css"},
		{filepath.FromSlash("css/main.css"), false, "/out/css/main.css"},
		{filepath.FromSlash("css/main.css"), true, "/out/main.css"},
		{filepath.FromSlash("../../main.css"), false, "/out/main.css"},
	}
	for _, tt := range tests {
		env.NoDirs = tt.nodirs
		if got := buildOutputPath(tt.src, dst, env); got != filepath.FromSlash(tt.want) {
			t.Errorf("buildOutputPath(%q, nodirs=%v) = %q, want %q", tt.src, tt.nodirs, got, tt.want)
		}
	}
}

func newInlineCommand() *cli.Command {
	return &cli.Command{
		Name:   "inline",
		Action: Run,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "root"},
			&cli.StringFlag{Name: "base-url"},
			&cli.BoolFlag{Name: "nodirs"},
			&cli.BoolFlag{Name: "overwrite"},
			&cli.StringFlag{Name: "force-zip-cp"},
		},
	}
}

func TestRun(t *testing.T) {
	ctx, env := setupTestEnv(t)
	site, dst := makeSite(t), t.TempDir()

	args := []string{"inline", "--nodirs", "--force-zip-cp", "windows-1251", site, dst}
	if err := newInlineCommand().Run(ctx, args); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	checkInlined(t, readFile(t, filepath.Join(dst, "main.css")))
	if !env.NoDirs || env.CodePage == nil {
		t.Errorf("environment was not updated: nodirs = %v, codepage = %v", env.NoDirs, env.CodePage)
	}

	if err := newInlineCommand().Run(ctx, []string{"inline"}); err == nil {
		t.Error("Run() without source expected error")
	}
}

func TestFormatOutcomes(t *testing.T) {
	res := &dataurl.Result{Outcomes: []dataurl.Outcome{
		{Ref: dataurl.Reference{Start: 10, End: 15, URL: "a.png"}, Size: 3},
		{Ref: dataurl.Reference{Start: 30, End: 35, URL: "b.png"}, Reason: dataurl.ReasonNotFound, Err: dataurl.ErrNotFound},
	}}
	want := "10-15\ta.png\tnone\t3\n30-35\tb.png\tnot found\t0\t" + dataurl.ErrNotFound.Error() + "\n"
	if got := string(formatOutcomes(res)); got != want {
		t.Errorf("formatOutcomes() = %q, want %q", got, want)
	}
	if got := string(formatOutcomes(&dataurl.Result{})); got != "no references\n" {
		t.Errorf("formatOutcomes() empty = %q", got)
	}
}

func TestBuildOutputPath_Cleaned(t *testing.T) {
	env := &state.LocalEnv{}
	got := buildOutputPath(filepath.Join("css", "bad\x01name.css"), filepath.FromSlash("/out"), env)
	if want := filepath.FromSlash("/out/css/badname.css"); got != want {
		t.Errorf("buildOutputPath() = %q, want %q", got, want)
	}
}
