package resource

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"path"

	"cssdata/archive"
	"cssdata/dataurl"
)

// Zip loads images from zip archive, so stylesheets packed together with
// their images could be processed without unpacking.
type Zip struct {
	files map[string]*zip.File
	base  string
}

// NewZip indexes archive content. Directories and entries with unsafe names
// are ignored.
func NewZip(r *zip.Reader) *Zip {
	z := &Zip{files: make(map[string]*zip.File, len(r.File)), base: "."}
	for _, f := range r.File {
		if f.FileInfo().IsDir() || !archive.IsSafePath(f.Name) {
			continue
		}
		z.files[path.Clean(f.Name)] = f
	}
	return z
}

// Relative returns fetcher which resolves relative urls against directory
// base inside archive.
func (z *Zip) Relative(base string) *Zip {
	return &Zip{files: z.files, base: cleanBase(base)}
}

func (z *Zip) Fetch(ctx context.Context, ref string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	name, err := resolvePath(z.base, ref)
	if err != nil {
		return nil, err
	}
	f, ok := z.files[name]
	if !ok {
		return nil, fmt.Errorf("%s: %w", name, dataurl.ErrNotFound)
	}
	r, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("unable to open archive entry %s: %w", name, err)
	}
	defer r.Close()
	return io.ReadAll(r)
}
