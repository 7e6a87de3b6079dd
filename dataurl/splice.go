package dataurl

import (
	"cmp"
	"fmt"
	"slices"
)

// Edit is pending replacement of text[Start:End].
type Edit struct {
	Start       int
	End         int
	Replacement string
}

// Apply replaces every edit span in text. Offsets in edits refer to the
// original text, so edits are applied from the rightmost one to the left:
// spans which are still waiting are never shifted by earlier replacements.
// Edits may come in any order but must not overlap.
func Apply(text string, edits []Edit) (string, error) {
	if len(edits) == 0 {
		return text, nil
	}

	sorted := slices.Clone(edits)
	slices.SortStableFunc(sorted, func(a, b Edit) int {
		return cmp.Compare(b.Start, a.Start)
	})

	limit := len(text)
	for _, e := range sorted {
		if e.Start < 0 || e.Start > e.End || e.End > len(text) {
			return "", fmt.Errorf("edit [%d:%d] is out of range for text of length %d", e.Start, e.End, len(text))
		}
		if e.End > limit {
			return "", fmt.Errorf("edit [%d:%d] overlaps edit starting at %d", e.Start, e.End, limit)
		}
		limit = e.Start
	}

	buf := []byte(text)
	for _, e := range sorted {
		buf = slices.Replace(buf, e.Start, e.End, []byte(e.Replacement)...)
	}
	return string(buf), nil
}
