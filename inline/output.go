package inline

import (
	"os"
	"path/filepath"
	"strings"

	"cssdata/config"
	"cssdata/state"
)

// buildOutputPath returns location for processed stylesheet. "src" is path
// of the stylesheet relative to the source, directory structure is kept
// unless --nodirs was requested. Every path segment is cleaned.
func buildOutputPath(src, dst string, env *state.LocalEnv) string {
	src = filepath.ToSlash(filepath.Clean(src))
	segments := strings.Split(strings.TrimPrefix(src, "/"), "/")
	if env.NoDirs {
		segments = segments[len(segments)-1:]
	}

	out := make([]string, 0, len(segments)+1)
	out = append(out, dst)
	for _, s := range segments {
		if s == "." || s == ".." || len(s) == 0 {
			continue
		}
		out = append(out, config.CleanFileName(s))
	}
	return filepath.Join(out...)
}

// prepareOutput makes sure stylesheet could be written to the name.
func prepareOutput(name string, env *state.LocalEnv) (overwriting bool, err error) {
	if _, err := os.Stat(name); err == nil {
		if !env.Overwrite {
			return false, os.ErrExist
		}
		return true, nil
	} else if !os.IsNotExist(err) {
		return false, err
	}
	return false, os.MkdirAll(filepath.Dir(name), 0755)
}
