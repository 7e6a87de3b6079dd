package dataurl_test

import (
	"testing"

	"cssdata/dataurl"
)

func TestApply(t *testing.T) {
	tests := []struct {
		name  string
		text  string
		edits []dataurl.Edit
		want  string
	}{
		{
			name: "no edits",
			text: "unchanged",
			want: "unchanged",
		},
		{
			name:  "single growing edit",
			text:  "url(a)",
			edits: []dataurl.Edit{{Start: 4, End: 5, Replacement: "data:xyz"}},
			want:  "url(data:xyz)",
		},
		{
			name: "ascending input order",
			text: "0123456789",
			edits: []dataurl.Edit{
				{Start: 1, End: 2, Replacement: "AAAA"},
				{Start: 5, End: 7, Replacement: ""},
				{Start: 8, End: 9, Replacement: "BB"},
			},
			want: "0AAAA2347BB9",
		},
		{
			name: "descending input order",
			text: "0123456789",
			edits: []dataurl.Edit{
				{Start: 8, End: 9, Replacement: "BB"},
				{Start: 5, End: 7, Replacement: ""},
				{Start: 1, End: 2, Replacement: "AAAA"},
			},
			want: "0AAAA2347BB9",
		},
		{
			name: "adjacent edits",
			text: "abcd",
			edits: []dataurl.Edit{
				{Start: 0, End: 2, Replacement: "x"},
				{Start: 2, End: 4, Replacement: "yyy"},
			},
			want: "xyyy",
		},
		{
			name:  "insertion",
			text:  "ab",
			edits: []dataurl.Edit{{Start: 1, End: 1, Replacement: "-"}},
			want:  "a-b",
		},
		{
			name:  "whole text",
			text:  "abc",
			edits: []dataurl.Edit{{Start: 0, End: 3, Replacement: "z"}},
			want:  "z",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := dataurl.Apply(tt.text, tt.edits)
			if err != nil {
				t.Fatalf("Apply() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Apply() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestApply_DoesNotModifyEdits(t *testing.T) {
	edits := []dataurl.Edit{
		{Start: 0, End: 1, Replacement: "x"},
		{Start: 2, End: 3, Replacement: "y"},
	}
	if _, err := dataurl.Apply("abc", edits); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if edits[0].Start != 0 || edits[1].Start != 2 {
		t.Errorf("input edits were reordered: %+v", edits)
	}
}

func TestApply_Errors(t *testing.T) {
	tests := []struct {
		name  string
		edits []dataurl.Edit
	}{
		{"negative start", []dataurl.Edit{{Start: -1, End: 1}}},
		{"end before start", []dataurl.Edit{{Start: 2, End: 1}}},
		{"past the end", []dataurl.Edit{{Start: 2, End: 10}}},
		{"overlap", []dataurl.Edit{{Start: 0, End: 3}, {Start: 2, End: 4}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := dataurl.Apply("abcdef", tt.edits); err == nil {
				t.Error("expected error")
			}
		})
	}
}
