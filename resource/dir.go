package resource

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"cssdata/dataurl"
)

// Dir loads images from the file system. Lookups never leave the root
// directory it was opened with.
type Dir struct {
	root *os.Root
	base string
}

// OpenDir opens directory to be used as resolution root.
func OpenDir(root string) (*Dir, error) {
	r, err := os.OpenRoot(root)
	if err != nil {
		return nil, fmt.Errorf("unable to open resolution root: %w", err)
	}
	return &Dir{root: r, base: "."}, nil
}

// Close releases root directory. Fetchers created by Relative become
// unusable.
func (d *Dir) Close() error {
	return d.root.Close()
}

// Name returns root directory name.
func (d *Dir) Name() string {
	return d.root.Name()
}

// Relative returns fetcher which resolves relative urls against stylesheet
// directory base (relative to the root).
func (d *Dir) Relative(base string) *Dir {
	return &Dir{root: d.root, base: cleanBase(base)}
}

func (d *Dir) Fetch(ctx context.Context, ref string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	name, err := resolvePath(d.base, ref)
	if err != nil {
		return nil, err
	}

	f, err := d.root.Open(filepath.FromSlash(name))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", name, dataurl.ErrNotFound)
		}
		return nil, err
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return nil, err
	}
	if !fi.Mode().IsRegular() {
		return nil, fmt.Errorf("%s: not a regular file: %w", name, dataurl.ErrNotFound)
	}
	return io.ReadAll(f)
}
