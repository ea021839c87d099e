// Package download fetches a candidate file URL, validates that the
// payload is a real file and persists it. Providers routinely answer
// 200 OK with an interstitial or error page, so acceptance is decided
// by inspecting the response, never by status code alone.
package download

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cavaliergopher/grab/v3"
	"go.uber.org/zap"

	"bookfetch/transport"
)

// MinFileSize rejects "file not found" stubs that slip past the HTML
// check. Anything smaller is not a book.
const MinFileSize int64 = 1000

var (
	// ErrHTMLPayload means the server returned a document instead of
	// the file — the dominant failure mode across mirrors.
	ErrHTMLPayload = errors.New("payload is an html document")
	// ErrTooSmall means the payload was under MinFileSize.
	ErrTooSmall = errors.New("payload under minimum size")
	// ErrAlreadyExists means a prior run saved this query's file.
	ErrAlreadyExists = errors.New("destination file already exists")
)

// Downloader persists payloads into a single destination directory.
type Downloader struct {
	grabClient *grab.Client
	dir        string
	minSize    int64
	logger     *zap.Logger
}

// New creates the destination directory and a grab client sharing the
// transport's HTTP client, so downloads ride the same route and
// session as every other fetch.
func New(dir string, httpClient *http.Client, logger *zap.Logger) (*Downloader, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create downloads directory: %w", err)
	}

	grabClient := grab.NewClient()
	grabClient.HTTPClient = httpClient
	grabClient.UserAgent = transport.UserAgent

	return &Downloader{
		grabClient: grabClient,
		dir:        dir,
		minSize:    MinFileSize,
		logger:     logger,
	}, nil
}

// Existing reports a previously saved file for the slug, if any.
// Duplicate runs are detected and reported, never silently overwritten.
func (d *Downloader) Existing(slug string) (string, bool) {
	matches, err := filepath.Glob(filepath.Join(d.dir, glob(slug)+".*"))
	if err != nil || len(matches) == 0 {
		return "", false
	}
	for _, m := range matches {
		if filepath.Ext(m) != ".part" {
			return m, true
		}
	}
	return "", false
}

// Download fetches fileURL into <dir>/<slug>.<ext>. extHint is the
// format advertised by the search result, used only when the response
// itself gives no better signal. On any validation failure the partial
// file is removed before returning.
func (d *Downloader) Download(ctx context.Context, fileURL, slug, extHint, referer string) (string, int64, error) {
	if path, ok := d.Existing(slug); ok {
		return path, 0, fmt.Errorf("%w: %s", ErrAlreadyExists, path)
	}

	dctx, cancel := context.WithTimeout(ctx, transport.PayloadTimeout)
	defer cancel()

	tmpPath := filepath.Join(d.dir, slug+".part")
	req, err := grab.NewRequest(tmpPath, fileURL)
	if err != nil {
		return "", 0, fmt.Errorf("failed to create download request: %w", err)
	}
	req = req.WithContext(dctx)
	req.NoResume = true
	req.NoCreateDirectories = true
	if referer != "" {
		req.HTTPRequest.Header.Set("Referer", referer)
	}

	d.logger.Info("starting download",
		zap.String("url", fileURL),
		zap.String("destination", tmpPath))

	resp := d.grabClient.Do(req)

	if hr := resp.HTTPResponse; hr != nil && isHTMLContentType(hr.Header.Get("Content-Type")) {
		cancel()
		<-resp.Done
		os.Remove(tmpPath)
		return "", 0, fmt.Errorf("%w: %s", ErrHTMLPayload, hr.Header.Get("Content-Type"))
	}

	t := time.NewTicker(500 * time.Millisecond)
	defer t.Stop()
transfer:
	for {
		select {
		case <-t.C:
			d.logger.Debug("download progress",
				zap.String("slug", slug),
				zap.Float64("progress", resp.Progress()*100),
				zap.Int64("bytes_complete", resp.BytesComplete()),
				zap.Float64("speed_bps", resp.BytesPerSecond()))
		case <-resp.Done:
			break transfer
		}
	}

	if err := resp.Err(); err != nil {
		os.Remove(tmpPath)
		return "", 0, fmt.Errorf("download failed: %w", err)
	}

	size := resp.Size()
	if size < d.minSize {
		os.Remove(tmpPath)
		return "", 0, fmt.Errorf("%w: %d bytes", ErrTooSmall, size)
	}

	ext := detectExtension(resp.HTTPResponse, fileURL, extHint)
	finalPath := filepath.Join(d.dir, slug+"."+ext)
	if err := os.Rename(tmpPath, finalPath); err != nil {
		os.Remove(tmpPath)
		return "", 0, fmt.Errorf("failed to finalize download: %w", err)
	}

	d.logger.Info("download completed",
		zap.String("path", finalPath),
		zap.Int64("size", size),
		zap.Duration("duration", resp.Duration()))
	return finalPath, size, nil
}

func isHTMLContentType(contentType string) bool {
	ct := strings.ToLower(contentType)
	return strings.Contains(ct, "text/html") || strings.Contains(ct, "application/xhtml")
}

// glob escapes the metacharacters filepath.Glob would otherwise
// interpret inside a slug.
func glob(slug string) string {
	r := strings.NewReplacer("*", `\*`, "?", `\?`, "[", `\[`, "]", `\]`)
	return r.Replace(slug)
}
