package inline

import (
	"archive/zip"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/h2non/filetype"
)

// enough to recognize any supported archive signature
const headerSize = 262

func isStylesheetName(name string) bool {
	return strings.EqualFold(path.Ext(filepath.ToSlash(name)), ".css")
}

// isArchiveFile sniffs file content, extension is not trusted.
func isArchiveFile(name string) (bool, error) {
	f, err := os.Open(name)
	if err != nil {
		return false, err
	}
	defer f.Close()

	head := make([]byte, headerSize)
	n, err := io.ReadFull(f, head)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return false, err
	}
	return filetype.Is(head[:n], "zip"), nil
}

func isStylesheetInArchive(f *zip.File) bool {
	return isStylesheetName(f.FileHeader.Name)
}
