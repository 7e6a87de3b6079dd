// Package resource provides ways to load images referenced from stylesheets.
// Every loader here implements dataurl.Fetcher.
package resource

import (
	"fmt"
	"net/url"
	"path"
	"strings"
)

// resolvePath turns url found in stylesheet located in directory base into
// slash separated path relative to the resolution root. Absolute urls are
// resolved from the root itself.
func resolvePath(base, ref string) (string, error) {
	if i := strings.IndexAny(ref, "?#"); i >= 0 {
		ref = ref[:i]
	}
	ref = strings.TrimSpace(ref)
	if len(ref) == 0 {
		return "", fmt.Errorf("empty reference")
	}
	name, err := url.PathUnescape(ref)
	if err != nil {
		return "", fmt.Errorf("bad reference %q: %w", ref, err)
	}
	name = strings.ReplaceAll(name, `\`, "/")

	if path.IsAbs(name) {
		name = path.Clean(name)[1:]
	} else {
		name = path.Join(base, name)
	}
	if name == ".." || strings.HasPrefix(name, "../") {
		return "", fmt.Errorf("reference %q points outside of the root", ref)
	}
	if len(name) == 0 {
		name = "."
	}
	return name, nil
}

// cleanBase normalizes stylesheet directory relative to the root.
func cleanBase(base string) string {
	base = path.Clean(strings.ReplaceAll(base, `\`, "/"))
	if base == "/" {
		return "."
	}
	return strings.TrimPrefix(base, "/")
}
