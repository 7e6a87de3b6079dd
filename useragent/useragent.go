// Package useragent decides whether requesting client is able to render
// data URIs in stylesheets.
package useragent

import (
	"strconv"
	"strings"

	ua "github.com/mssola/user_agent"
)

const internetExplorer = "Internet Explorer"

// major versions of Internet Explorer without data URI support in CSS
var incompatible = map[int]string{
	5: "IE5",
	6: "IE6",
	7: "IE7",
}

// Incompatible returns short name of the client when it is known not to
// support data URIs, empty string otherwise. IE 5.5 is reported as IE5.5.
func Incompatible(header string) string {
	if len(header) == 0 {
		return ""
	}
	name, version := ua.New(header).Browser()
	if name != internetExplorer {
		return ""
	}
	majorStr, minorStr, _ := strings.Cut(version, ".")
	major, err := strconv.Atoi(majorStr)
	if err != nil {
		return ""
	}
	short, ok := incompatible[major]
	if !ok {
		return ""
	}
	if major == 5 && strings.HasPrefix(minorStr, "5") {
		return "IE5.5"
	}
	return short
}

// SupportsDataURI reports whether client identified by User-Agent header is
// able to use data URIs. Unknown clients are assumed to support them.
func SupportsDataURI(header string) bool {
	return Incompatible(header) == ""
}
