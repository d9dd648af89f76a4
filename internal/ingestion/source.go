package ingestion

import (
	"net/url"
	"path"
	"path/filepath"
	"strings"
)

// defaultSourceLabel names documents with no usable path or URL, such as
// text piped on stdin.
const defaultSourceLabel = "document"

// SourceLabelFor infers a short label from a file path or URL: the last path
// segment (URL-decoded), falling back to the host for bare URLs.
//
//	/home/me/notes/lecture-3.txt              → lecture-3.txt
//	https://example.edu/courses/bio/ch2.txt?x → ch2.txt
//	https://example.edu/                      → example.edu
func SourceLabelFor(pathOrURL string) string {
	s := strings.TrimSpace(pathOrURL)
	if s == "" || s == "-" {
		return defaultSourceLabel
	}

	if u, err := url.Parse(s); err == nil && u.Scheme != "" && u.Host != "" {
		base := path.Base(strings.TrimRight(u.Path, "/"))
		if base == "." || base == "/" || base == "" {
			return strings.ToLower(u.Hostname())
		}
		if dec, err := url.PathUnescape(base); err == nil {
			return dec
		}
		return base
	}

	base := filepath.Base(filepath.Clean(s))
	if base == "." || base == string(filepath.Separator) {
		return defaultSourceLabel
	}
	return base
}
