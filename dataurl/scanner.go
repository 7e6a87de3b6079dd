package dataurl

import (
	"bytes"
	"regexp"
	"strings"

	parse "github.com/tdewolff/parse/v2"
	"github.com/tdewolff/parse/v2/css"
)

// Reference is a located background image url inside CSS text. Start and
// End delimit url body (without quotes and parentheses) in the original
// text.
type Reference struct {
	Start int
	End   int
	URL   string
}

// ScanMode selects how references are located.
type ScanMode string

const (
	// ScanLiteral matches declarations as plain text, comments and strings
	// are not recognized.
	ScanLiteral ScanMode = "literal"
	// ScanTokens runs CSS tokenizer first and only matches real declarations.
	ScanTokens ScanMode = "tokens"
)

// Scanner returns scanning function for the mode, unknown modes fall back
// to literal matching.
func (m ScanMode) Scanner() func(string) []Reference {
	if m == ScanTokens {
		return ScanCSSTokens
	}
	return Scan
}

var backgroundURL = regexp.MustCompile(`(?i)\bbackground(?:-image)?:\s*url\(['|"]?(.*?)['|"]?\)`)

// Scan finds all background and background-image declarations with url
// values. Matching is done left to right without overlaps. Urls which are
// already data URIs or point to other hosts are not reported.
func Scan(text string) []Reference {
	var refs []Reference
	for _, m := range backgroundURL.FindAllStringSubmatchIndex(text, -1) {
		start, end := m[2], m[3]
		if ref := (Reference{Start: start, End: end, URL: text[start:end]}); Eligible(ref.URL) {
			refs = append(refs, ref)
		}
	}
	return refs
}

// Eligible reports whether url could be inlined at all: it is not a data URI
// already and it does not carry a scheme separator.
func Eligible(url string) bool {
	return !strings.Contains(url, "data:") && !strings.Contains(url, "://")
}

// ScanCSSTokens is CSS aware version of Scan. Declarations inside comments
// and strings are ignored.
func ScanCSSTokens(text string) []Reference {
	var (
		refs []Reference
		lex  = css.NewLexer(parse.NewInput(strings.NewReader(text)))
		pos  int
		// 0 - looking for property name, 1 - have name, 2 - have colon
		state int
	)
	for {
		tt, data := lex.Next()
		if tt == css.ErrorToken {
			break
		}
		offset := pos
		pos += len(data)

		switch tt {
		case css.WhitespaceToken:
			// allowed anywhere between name, colon and value
			continue
		case css.IdentToken:
			if isBackgroundProperty(data) {
				state = 1
				continue
			}
		case css.ColonToken:
			if state == 1 {
				state = 2
				continue
			}
		case css.URLToken:
			if state == 2 {
				if start, end, ok := urlBody(data); ok {
					ref := Reference{Start: offset + start, End: offset + end, URL: text[offset+start : offset+end]}
					if Eligible(ref.URL) {
						refs = append(refs, ref)
					}
				}
			}
		}
		state = 0
	}
	return refs
}

func isBackgroundProperty(name []byte) bool {
	return bytes.EqualFold(name, []byte("background")) || bytes.EqualFold(name, []byte("background-image"))
}

// urlBody locates value inside url(...) token data.
func urlBody(tok []byte) (int, int, bool) {
	const prefix = len("url(")
	if len(tok) < prefix || !bytes.EqualFold(tok[:prefix], []byte("url(")) {
		return 0, 0, false
	}
	start, end := prefix, len(tok)
	if end == start || tok[end-1] != ')' {
		// unterminated
		return 0, 0, false
	}
	end--
	for start < end && isSpace(tok[start]) {
		start++
	}
	for end > start && isSpace(tok[end-1]) {
		end--
	}
	if end-start >= 2 && (tok[start] == '"' || tok[start] == '\'') && tok[end-1] == tok[start] {
		start++
		end--
	}
	return start, end, true
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\f'
}
