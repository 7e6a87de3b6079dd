// Package inline implements command replacing background images in
// stylesheets stored on disk or in zip archives.
package inline

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"runtime/debug"
	"strings"
	"time"

	cli "github.com/urfave/cli/v3"
	"go.uber.org/zap"
	"golang.org/x/text/encoding/ianaindex"

	"cssdata/archive"
	"cssdata/dataurl"
	"cssdata/resource"
	"cssdata/state"
)

const defaultFetchTimeout = 10 * time.Second

func Run(ctx context.Context, cmd *cli.Command) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}

	env := state.EnvFromContext(ctx)
	log := env.Log.Named("inline")

	src := cmd.Args().Get(0)
	if len(src) == 0 {
		return errors.New("no input source has been specified")
	}
	if src, err = filepath.Abs(src); err != nil {
		return err
	}

	dst := cmd.Args().Get(1)
	if len(dst) == 0 {
		if dst, err = os.Getwd(); err != nil {
			return fmt.Errorf("unable to get working directory: %w", err)
		}
	}
	if dst, err = filepath.Abs(dst); err != nil {
		return err
	}
	if cmd.Args().Len() > 2 {
		log.Warn("Malformed command line, too many destinations", zap.Strings("ignoring", cmd.Args().Slice()[2:]))
	}

	root := cmd.String("root")
	if len(root) > 0 {
		if root, err = filepath.Abs(root); err != nil {
			return err
		}
	}

	env.NoDirs, env.Overwrite, env.BaseURL = cmd.Bool("nodirs"), cmd.Bool("overwrite"), cmd.String("base-url")

	// zip does not define file name encoding, old archives may need archaic
	// code page forced
	if cp := cmd.String("force-zip-cp"); len(cp) > 0 {
		env.CodePage, err = ianaindex.IANA.Encoding(cp)
		if err != nil || env.CodePage == nil {
			log.Warn("Unknown character set specification. Ignoring...", zap.String("charset", cp), zap.Error(err))
			env.CodePage = nil
		} else {
			n, _ := ianaindex.IANA.Name(env.CodePage)
			log.Debug("Forcefully converting all non UTF-8 file names in archives", zap.String("charset", n))
		}
	}

	p, err := newProcessor(env, root, dst, log)
	if err != nil {
		return err
	}

	log.Info("Processing starting", zap.String("source", src), zap.String("destination", dst), zap.String("base-url", env.BaseURL))
	defer func(start time.Time) {
		log.Info("Processing completed", zap.Duration("elapsed", time.Since(start)), zap.Int("stylesheets", p.stylesheets), zap.Int("inlined", p.inlined))
	}(time.Now())

	return p.process(ctx, src)
}

// processor carries everything needed to handle single invocation.
type processor struct {
	env     *state.LocalEnv
	inliner *dataurl.Inliner
	remote  *resource.Remote
	root    string
	dst     string
	log     *zap.Logger

	stylesheets int
	inlined     int
}

func newProcessor(env *state.LocalEnv, root, dst string, log *zap.Logger) (*processor, error) {
	p := &processor{
		env:     env,
		inliner: env.NewInliner(),
		root:    root,
		dst:     dst,
		log:     log,
	}
	if len(env.BaseURL) == 0 {
		return p, nil
	}

	timeout, header := defaultFetchTimeout, http.Header{}
	if env.Cfg != nil {
		timeout, header = env.Cfg.Fetch.Timeout, env.Cfg.Fetch.Header()
	}
	remote, err := resource.NewRemote(&http.Client{Timeout: timeout}, env.BaseURL, header)
	if err != nil {
		return nil, fmt.Errorf("unable to use base url: %w", err)
	}
	p.remote = remote
	return p, nil
}

// fetcher returns image source for stylesheet located at slash separated
// path rel. References are resolved over http when base url was requested,
// local source is used otherwise.
func (p *processor) fetcher(rel string, local func(base string) dataurl.Fetcher) (dataurl.Fetcher, error) {
	if p.remote == nil {
		return local(path.Dir(rel)), nil
	}
	r, err := p.remote.Relative((&url.URL{Path: rel}).String())
	if err != nil {
		return nil, err
	}
	return r, nil
}

// process determines the input type (directory, archive, or single file) and
// processes accordingly.
func (p *processor) process(ctx context.Context, src string) error {
	var head, tail string
	for head = src; len(head) != 0; head, tail = filepath.Split(head) {
		if err := ctx.Err(); err != nil {
			return err
		}

		head = strings.TrimSuffix(head, string(filepath.Separator))

		fi, err := os.Stat(head)
		if err != nil {
			// does not exists - probably path in archive
			continue
		}

		if fi.Mode().IsDir() {
			if len(tail) != 0 {
				return fmt.Errorf("input source was not found (%s) => (%s)", head, strings.TrimPrefix(src, head))
			}
			if err := p.processDir(ctx, head); err != nil {
				return fmt.Errorf("unable to process directory: %w", err)
			}
			break
		}

		if !fi.Mode().IsRegular() {
			return fmt.Errorf("unexpected path mode for (%s) => (%s)", head, strings.TrimPrefix(src, head))
		}

		arc, err := isArchiveFile(head)
		if err != nil {
			return fmt.Errorf("unable to check archive type: %w", err)
		}
		if arc {
			tail = strings.TrimPrefix(strings.TrimPrefix(src, head), string(filepath.Separator))
			if err := p.processArchive(ctx, head, tail, ""); err != nil {
				return fmt.Errorf("unable to process archive: %w", err)
			}
			break
		}

		if isStylesheetName(head) && len(tail) == 0 {
			if err := p.processFile(ctx, head); err != nil {
				p.log.Error("Unable to process file", zap.String("file", head), zap.Error(err))
			}
			break
		}
		return fmt.Errorf("input was not recognized as stylesheet (%s)", head)
	}
	if len(head) == 0 {
		return fmt.Errorf("input source was not found (%s)", src)
	}
	return nil
}

// resolutionRoot returns directory absolute references are resolved against.
func (p *processor) resolutionRoot(dir string) string {
	if len(p.root) > 0 {
		return p.root
	}
	return dir
}

func (p *processor) processFile(ctx context.Context, file string) error {
	d, err := resource.OpenDir(p.resolutionRoot(filepath.Dir(file)))
	if err != nil {
		return err
	}
	defer d.Close()

	return p.processLocal(ctx, d, file, filepath.Base(file))
}

// processDir walks directory tree finding stylesheets and archives and
// processes them.
func (p *processor) processDir(ctx context.Context, dir string) (err error) {
	d, err := resource.OpenDir(p.resolutionRoot(dir))
	if err != nil {
		return err
	}
	defer d.Close()

	count := 0
	defer func() {
		if err == nil && count == 0 {
			p.log.Debug("Nothing to process", zap.String("dir", dir))
		}
	}()

	return filepath.Walk(dir, func(name string, info os.FileInfo, err error) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err != nil {
			p.log.Warn("Skipping path", zap.String("path", name), zap.Error(err))
			return nil
		}
		if !info.Mode().IsRegular() {
			return nil
		}

		rel := strings.TrimPrefix(strings.TrimPrefix(name, dir), string(filepath.Separator))

		if isStylesheetName(name) {
			count++
			if err := p.processLocal(ctx, d, name, rel); err != nil {
				p.log.Error("Unable to process file", zap.String("file", name), zap.Error(err))
			}
			return nil
		}

		arc, err := isArchiveFile(name)
		if err != nil {
			p.log.Warn("Skipping file", zap.String("file", name), zap.Error(err))
			return nil
		}
		if !arc {
			p.log.Debug("Skipping file, not recognized as stylesheet or archive", zap.String("file", name))
			return nil
		}
		count++
		if err := p.processArchive(ctx, name, "", filepath.Dir(rel)); err != nil {
			p.log.Error("Unable to process archive", zap.String("file", name), zap.Error(err))
		}
		return nil
	})
}

// processLocal handles stylesheet from the file system. "src" is path of the
// stylesheet relative to the source.
func (p *processor) processLocal(ctx context.Context, d *resource.Dir, file, src string) error {
	rel, err := filepath.Rel(d.Name(), file)
	if err != nil {
		return err
	}
	rel = filepath.ToSlash(rel)
	if rel == ".." || strings.HasPrefix(rel, "../") {
		return fmt.Errorf("stylesheet is outside of resolution root %s", d.Name())
	}

	fetch, err := p.fetcher(rel, func(base string) dataurl.Fetcher { return d.Relative(base) })
	if err != nil {
		return err
	}

	f, err := os.Open(file)
	if err != nil {
		return err
	}
	defer f.Close()

	return p.processStylesheet(ctx, f, src, fetch)
}

// processArchive walks all files inside archive, finds stylesheets under
// "pathIn" and processes them. Images are looked up in the same archive.
func (p *processor) processArchive(ctx context.Context, name, pathIn, pathOut string) (err error) {
	zr, err := zip.OpenReader(name)
	if err != nil {
		return err
	}
	defer zr.Close()

	z := resource.NewZip(&zr.Reader)
	cp := p.env.CodePage

	count := 0
	defer func() {
		if err == nil && count == 0 {
			p.log.Debug("Nothing to process", zap.String("archive", name))
		}
	}()

	return archive.Walk(&zr.Reader, name, filepath.ToSlash(pathIn), func(arc string, f *zip.File) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !isStylesheetInArchive(f) {
			p.log.Debug("Skipping file, not recognized as stylesheet", zap.String("archive", arc), zap.String("file", f.FileHeader.Name))
			return nil
		}

		count++

		pathInArchive := f.FileHeader.Name
		if cp != nil && f.FileHeader.NonUTF8 {
			if n, err := cp.NewDecoder().String(pathInArchive); err == nil {
				pathInArchive = n
			} else {
				n, _ = ianaindex.IANA.Name(cp)
				p.log.Warn("Unable to convert archive name from specified encoding",
					zap.String("charset", n), zap.String("path", pathInArchive), zap.Error(err))
			}
		}

		fetch, err := p.fetcher(path.Clean(f.FileHeader.Name), func(base string) dataurl.Fetcher { return z.Relative(base) })
		if err != nil {
			p.log.Error("Unable to process file in archive",
				zap.String("archive", arc), zap.String("file", f.FileHeader.Name), zap.Error(err))
			return nil
		}

		r, err := f.Open()
		if err != nil {
			p.log.Error("Unable to process file in archive",
				zap.String("archive", arc), zap.String("file", f.FileHeader.Name), zap.Error(err))
			return nil
		}
		defer r.Close()

		if err := p.processStylesheet(ctx, r, filepath.Join(pathOut, filepath.FromSlash(pathInArchive)), fetch); err != nil {
			p.log.Error("Unable to process file in archive",
				zap.String("archive", arc), zap.String("file", f.FileHeader.Name), zap.Error(err))
		}
		return nil
	})
}

// processStylesheet inlines images into single stylesheet and writes result
// under destination. "src" is part of the source path (always including file
// name) relative to the original source.
func (p *processor) processStylesheet(ctx context.Context, r io.Reader, src string, fetch dataurl.Fetcher) (rerr error) {
	var (
		outputName string
		res        *dataurl.Result
	)

	p.log.Info("Inlining starting", zap.String("from", src))
	defer func(start time.Time) {
		if r := recover(); r != nil {
			p.log.Error("Inlining ended with panic",
				zap.Any("panic", r), zap.Duration("elapsed", time.Since(start)), zap.String("to", outputName), zap.ByteString("stack", debug.Stack()))
			rerr = fmt.Errorf("inlining panic: %v", r)
		} else if res != nil {
			p.log.Info("Inlining completed", zap.Duration("elapsed", time.Since(start)), zap.String("to", outputName),
				zap.Int("references", len(res.Outcomes)), zap.Int("inlined", res.Inlined()))
		}
	}(time.Now())

	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("unable to read stylesheet (%s): %w", src, err)
	}

	outputName = buildOutputPath(src, p.dst, p.env)
	overwriting, err := prepareOutput(outputName, p.env)
	if errors.Is(err, os.ErrExist) {
		return fmt.Errorf("output file already exists: %s", outputName)
	} else if err != nil {
		return fmt.Errorf("unable to prepare output: %w", err)
	}

	result, err := p.inliner.Process(ctx, string(data), fetch)
	if err != nil {
		return fmt.Errorf("unable to inline images (%s): %w", src, err)
	}

	if overwriting {
		p.log.Warn("Overwriting existing file", zap.String("file", outputName))
	}
	if err := os.WriteFile(outputName, []byte(result.Text), 0644); err != nil {
		return fmt.Errorf("unable to write output: %w", err)
	}
	res = result

	p.stylesheets++
	p.inlined += res.Inlined()

	if p.env.Rpt != nil {
		name := filepath.ToSlash(src)
		p.env.Rpt.Store("results/"+name, outputName)
		p.env.Rpt.StoreData("outcomes/"+name+".txt", formatOutcomes(res))
	}
	return nil
}

func formatOutcomes(res *dataurl.Result) []byte {
	var b strings.Builder
	for _, o := range res.Outcomes {
		fmt.Fprintf(&b, "%d-%d\t%s\t%s\t%d", o.Ref.Start, o.Ref.End, o.Ref.URL, o.Reason, o.Size)
		if o.Err != nil {
			fmt.Fprintf(&b, "\t%v", o.Err)
		}
		b.WriteByte('\n')
	}
	if b.Len() == 0 {
		b.WriteString("no references\n")
	}
	return []byte(b.String())
}
