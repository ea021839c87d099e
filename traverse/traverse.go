// Package traverse resolves a landing page into the terminal file URL.
// Depth is capped at one hop: a landing page that only links to more
// landing pages is a miss for that candidate, not a recursion.
package traverse

import (
	"context"
	"errors"
	"net/url"

	"go.uber.org/zap"

	"bookfetch/book"
	"bookfetch/extract"
	"bookfetch/transport"
)

// ErrNoFileURL means the landing page held no byte-serving link. It
// exhausts the candidate, not the query.
var ErrNoFileURL = errors.New("no file url found on landing page")

// State tracks one candidate through traversal.
type State int

const (
	Unvisited State = iota
	Fetched
	FileURLFound
	NoFileURLFound
)

func (s State) String() string {
	switch s {
	case Unvisited:
		return "unvisited"
	case Fetched:
		return "fetched"
	case FileURLFound:
		return "file_url_found"
	case NoFileURLFound:
		return "no_file_url_found"
	default:
		return "unknown"
	}
}

// Traverser fetches landing pages through the configured substrate and
// re-applies the candidate-link patterns to find the download button.
type Traverser struct {
	fetcher transport.Fetcher
	scanner *extract.LinkScanner
	logger  *zap.Logger
}

func New(fetcher transport.Fetcher, scanner *extract.LinkScanner, logger *zap.Logger) *Traverser {
	return &Traverser{fetcher: fetcher, scanner: scanner, logger: logger}
}

// ResolveToFile fetches the candidate's landing page and returns the
// first directly downloadable URL on it, absolutized against the
// landing page. referer is sent on the landing-page fetch; the caller
// uses the landing URL itself as referer for the download hop.
func (t *Traverser) ResolveToFile(ctx context.Context, cand book.Candidate, referer string) (string, error) {
	state := Unvisited

	result, err := t.fetcher.Fetch(ctx, cand.URL, transport.Options{
		Referer: referer,
		Timeout: transport.MetadataTimeout,
	})
	if err != nil {
		t.logger.Debug("landing page fetch failed",
			zap.String("url", cand.URL),
			zap.String("state", state.String()),
			zap.Error(err))
		return "", err
	}
	state = Fetched

	if result.StatusCode >= 400 {
		t.logger.Debug("landing page rejected",
			zap.String("url", cand.URL),
			zap.Int("status", result.StatusCode))
		return "", ErrNoFileURL
	}

	base, err := url.Parse(result.FinalURL)
	if err != nil || base.Host == "" {
		base, err = url.Parse(cand.URL)
		if err != nil {
			return "", err
		}
	}

	for _, link := range t.scanner.CandidateLinks(result.Body, base, cand.ProviderID) {
		// Another landing page would be a second hop; skip it.
		if link.Kind == book.LandingPage {
			continue
		}
		state = FileURLFound
		t.logger.Debug("landing page resolved",
			zap.String("landing", cand.URL),
			zap.String("file_url", link.URL),
			zap.String("state", state.String()))
		return link.URL, nil
	}

	state = NoFileURLFound
	t.logger.Debug("landing page exhausted",
		zap.String("url", cand.URL),
		zap.String("state", state.String()))
	return "", ErrNoFileURL
}
