package dataurl

import (
	"encoding/base64"
	"strings"
)

// Encode produces data URI for image bytes. MIME type is derived from the
// file name, see ResolveMime. Payload is standard padded base64 without line
// breaks.
func Encode(data []byte, filename string) string {
	mime, _ := ResolveMime(filename)
	return encode(data, mime)
}

func encode(data []byte, mime string) string {
	var b strings.Builder
	b.Grow(len("data:;base64,") + len(mime) + base64.StdEncoding.EncodedLen(len(data)))
	b.WriteString("data:")
	b.WriteString(mime)
	b.WriteString(";base64,")
	b.WriteString(base64.StdEncoding.EncodeToString(data))
	return b.String()
}
