package download

import (
	"net/http"
	"net/url"
	"path"
	"strings"
)

// defaultExtension is the fallback when nothing else gives a signal.
const defaultExtension = "pdf"

var contentTypeExtensions = map[string]string{
	"application/pdf":                "pdf",
	"application/epub+zip":           "epub",
	"application/x-mobipocket-ebook": "mobi",
	"application/vnd.amazon.ebook":   "azw3",
	"image/vnd.djvu":                 "djvu",
}

// detectExtension picks the saved file's extension, favoring
// authoritative signals over guesses: the content-disposition filename,
// then the declared content type, then the URL path, then the search
// result's own hint, then the fixed default.
func detectExtension(resp *http.Response, fileURL, extHint string) string {
	if resp != nil {
		if ext := dispositionExtension(resp.Header.Get("Content-Disposition")); ext != "" {
			return ext
		}
		if ext := contentTypeExtension(resp.Header.Get("Content-Type")); ext != "" {
			return ext
		}
	}
	if u, err := url.Parse(fileURL); err == nil {
		if ext := strings.TrimPrefix(path.Ext(u.Path), "."); ext != "" && len(ext) <= 5 {
			return strings.ToLower(ext)
		}
	}
	if hint := strings.ToLower(strings.Trim(extHint, ".")); hint != "" {
		return hint
	}
	return defaultExtension
}

// dispositionExtension pulls the extension out of the filename hint,
// e.g. `attachment; filename="Foundation.epub"`.
func dispositionExtension(disposition string) string {
	if !strings.Contains(disposition, "filename=") {
		return ""
	}
	parts := strings.SplitN(disposition, "filename=", 2)
	filename := strings.Trim(strings.TrimSpace(parts[1]), `";`)
	ext := strings.TrimPrefix(path.Ext(filename), ".")
	if ext == "" || len(ext) > 5 {
		return ""
	}
	return strings.ToLower(ext)
}

func contentTypeExtension(contentType string) string {
	ct := strings.ToLower(strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0]))
	return contentTypeExtensions[ct]
}
