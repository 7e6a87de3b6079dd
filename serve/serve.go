// Package serve implements command running static file server which inlines
// background images into stylesheets on request.
package serve

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	cli "github.com/urfave/cli/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"cssdata/dataurl"
	"cssdata/filter"
	"cssdata/state"
)

const (
	defaultShutdownTimeout = 5 * time.Second
	readHeaderTimeout      = 10 * time.Second
)

// Site is static file server rooted in a directory. Files outside of the
// root are never served.
type Site struct {
	root    *os.Root
	handler http.Handler
}

// NewSite opens root directory and wraps file server with data URI filter.
func NewSite(dir string, in *dataurl.Inliner, opts filter.Options, log *zap.Logger) (*Site, error) {
	root, err := os.OpenRoot(dir)
	if err != nil {
		return nil, fmt.Errorf("unable to open site root: %w", err)
	}
	return &Site{
		root:    root,
		handler: filter.New(http.FileServerFS(root.FS()), in, opts, log),
	}, nil
}

func (s *Site) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

func (s *Site) Close() error {
	return s.root.Close()
}

func Run(ctx context.Context, cmd *cli.Command) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}

	env := state.EnvFromContext(ctx)
	log := env.Log.Named("serve")
	conf := env.Cfg.Server

	dir := cmd.Args().Get(0)
	if len(dir) == 0 {
		dir = conf.Root
	}
	if dir, err = filepath.Abs(dir); err != nil {
		return err
	}
	if cmd.Args().Len() > 1 {
		log.Warn("Malformed command line, too many roots", zap.Strings("ignoring", cmd.Args().Slice()[1:]))
	}
	if listen := cmd.String("listen"); len(listen) > 0 {
		conf.Listen = listen
	}
	if cmd.Bool("always") {
		conf.AlwaysEnabled = true
	}

	site, err := NewSite(dir, env.NewInliner(), filter.Options{
		EnableParam:   conf.EnableParam,
		AlwaysEnabled: conf.AlwaysEnabled,
	}, env.Log)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Append(err, site.Close())
	}()

	ln, err := net.Listen("tcp", conf.Listen)
	if err != nil {
		return fmt.Errorf("unable to listen on %s: %w", conf.Listen, err)
	}

	srv := &http.Server{
		Handler:           site,
		ReadHeaderTimeout: readHeaderTimeout,
		ErrorLog:          zap.NewStdLog(log),
	}

	log.Info("Server starting", zap.String("root", dir), zap.String("listen", ln.Addr().String()),
		zap.String("enable_param", conf.EnableParam), zap.Bool("always_enabled", conf.AlwaysEnabled))
	return serve(ctx, srv, ln, conf.ShutdownTimeout, log)
}

// serve runs server until context is canceled, then shuts it down giving
// active requests timeout to complete.
func serve(ctx context.Context, srv *http.Server, ln net.Listener, timeout time.Duration, log *zap.Logger) (err error) {
	if timeout <= 0 {
		timeout = defaultShutdownTimeout
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	log.Info("Shutting down server")
	sctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if er := srv.Shutdown(sctx); er != nil {
		err = multierr.Append(err, fmt.Errorf("shutdown: %w", er))
	}
	if er := <-errCh; er != nil && !errors.Is(er, http.ErrServerClosed) {
		err = multierr.Append(err, fmt.Errorf("server error: %w", er))
	}
	log.Info("Server stopped")
	return err
}
