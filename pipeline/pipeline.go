// Package pipeline drives one query to a terminal outcome: search the
// providers, resolve candidates, traverse landing pages, download and
// validate. Per-candidate and per-provider failures advance the state
// machine; only full exhaustion surfaces to the caller.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"bookfetch/book"
	"bookfetch/download"
	"bookfetch/extract"
	"bookfetch/resolve"
	"bookfetch/transport"
	"bookfetch/traverse"
)

// Step names the orchestrator's states, for logging only.
type Step int

const (
	Searching Step = iota
	Resolving
	Traversing
	Downloading
	Succeeded
	Exhausted
)

func (s Step) String() string {
	switch s {
	case Searching:
		return "searching"
	case Resolving:
		return "resolving"
	case Traversing:
		return "traversing"
	case Downloading:
		return "downloading"
	case Succeeded:
		return "succeeded"
	case Exhausted:
		return "exhausted"
	default:
		return "unknown"
	}
}

// Pipeline owns no shared mutable state; independent queries may run
// on separate Pipeline instances concurrently as long as their query
// texts (and so their destination slugs) differ.
type Pipeline struct {
	fetcher    transport.Fetcher
	parser     *extract.ResultParser
	scanner    *extract.LinkScanner
	resolver   *resolve.Resolver
	traverser  *traverse.Traverser
	downloader *download.Downloader
	providers  []book.Provider
	stepDelay  time.Duration
	logger     *zap.Logger
}

func New(
	fetcher transport.Fetcher,
	parser *extract.ResultParser,
	scanner *extract.LinkScanner,
	resolver *resolve.Resolver,
	traverser *traverse.Traverser,
	downloader *download.Downloader,
	providers []book.Provider,
	stepDelay time.Duration,
	logger *zap.Logger,
) *Pipeline {
	return &Pipeline{
		fetcher:    fetcher,
		parser:     parser,
		scanner:    scanner,
		resolver:   resolver,
		traverser:  traverser,
		downloader: downloader,
		providers:  providers,
		stepDelay:  stepDelay,
		logger:     logger,
	}
}

// Run takes one query to a terminal outcome. Cancellation is checked
// at step boundaries; an in-flight fetch is never force-terminated.
func (p *Pipeline) Run(ctx context.Context, query string) book.Outcome {
	logger := p.logger.With(
		zap.String("query", query),
		zap.String("session_id", uuid.NewString()))

	outcome := book.Outcome{Query: query}
	slug := book.Slug(query)

	if path, ok := p.downloader.Existing(slug); ok {
		logger.Info("destination already exists, not overwriting",
			zap.String("path", path))
		outcome.AlreadyExists = true
		outcome.SavedPath = path
		return outcome
	}

	logger.Info("step", zap.String("state", Searching.String()))
	chosen, searchURL, err := p.search(ctx, query, logger)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			outcome.Reason = book.ReasonCancelled
		} else {
			outcome.Reason = book.ReasonNoSearchResults
		}
		return outcome
	}
	logger.Info("search result chosen",
		zap.String("title", chosen.Title),
		zap.String("provider", chosen.ProviderID),
		zap.String("content_id", chosen.ContentID))

	logger.Info("step", zap.String("state", Resolving.String()))
	candidates := p.resolveCandidates(ctx, chosen, searchURL, logger)
	if len(candidates) == 0 {
		outcome.Reason = book.ReasonNoCandidates
		return outcome
	}

	for i, cand := range candidates {
		if ctx.Err() != nil {
			outcome.Reason = book.ReasonCancelled
			return outcome
		}
		if i > 0 && !p.pause(ctx) {
			outcome.Reason = book.ReasonCancelled
			return outcome
		}

		fileURL := cand.URL
		referer := chosen.ProviderURL
		if cand.Kind == book.LandingPage {
			logger.Info("step",
				zap.String("state", Traversing.String()),
				zap.String("url", cand.URL),
				zap.Int("rank", cand.SourceRank))
			resolved, err := p.traverser.ResolveToFile(ctx, cand, referer)
			if err != nil {
				logger.Info("candidate exhausted during traversal",
					zap.String("url", cand.URL), zap.Error(err))
				continue
			}
			fileURL = resolved
			referer = cand.URL
		}

		logger.Info("step",
			zap.String("state", Downloading.String()),
			zap.String("url", fileURL),
			zap.Int("rank", cand.SourceRank))
		path, size, err := p.downloader.Download(ctx, fileURL, slug, chosen.Extension, referer)
		if errors.Is(err, download.ErrAlreadyExists) {
			outcome.AlreadyExists = true
			outcome.SavedPath = path
			return outcome
		}
		if err != nil {
			logger.Info("candidate exhausted during download",
				zap.String("url", fileURL), zap.Error(err))
			continue
		}

		logger.Info("step", zap.String("state", Succeeded.String()),
			zap.String("path", path), zap.Int64("size", size))
		outcome.Success = true
		outcome.SavedPath = path
		outcome.SizeBytes = size
		return outcome
	}

	logger.Info("step", zap.String("state", Exhausted.String()))
	outcome.Reason = book.ReasonCandidatesExhausted
	return outcome
}

// search iterates providers in priority order and stops at the first
// one yielding a query-validated result. It also returns the search
// page URL, the referer for the next hop.
func (p *Pipeline) search(ctx context.Context, query string, logger *zap.Logger) (book.SearchResult, string, error) {
	for i, prov := range p.providers {
		if err := ctx.Err(); err != nil {
			return book.SearchResult{}, "", err
		}
		if i > 0 && !p.pause(ctx) {
			return book.SearchResult{}, "", ctx.Err()
		}

		searchURL := fmt.Sprintf(prov.SearchURL, url.QueryEscape(query))
		result, err := p.fetcher.Fetch(ctx, searchURL, transport.Options{
			Timeout: transport.MetadataTimeout,
		})
		if err != nil {
			logger.Warn("provider search failed",
				zap.String("provider", prov.ID),
				zap.String("url", searchURL),
				zap.Error(err))
			continue
		}
		if result.StatusCode >= 400 {
			logger.Info("provider search rejected",
				zap.String("provider", prov.ID),
				zap.Int("status", result.StatusCode))
			continue
		}

		base, err := url.Parse(result.FinalURL)
		if err != nil || base.Host == "" {
			base, _ = url.Parse(searchURL)
		}
		results := p.parser.SearchResults(prov.ID, result.Body, base)
		best, ok := extract.PickBest(results, query)
		if !ok {
			logger.Info("provider yielded no validated results",
				zap.String("provider", prov.ID),
				zap.Int("raw_results", len(results)))
			continue
		}
		return best, searchURL, nil
	}
	return book.SearchResult{}, "", errors.New("all providers exhausted without a validated result")
}

// resolveCandidates merges constructed mirror candidates with whatever
// the chosen result's own detail page links to.
func (p *Pipeline) resolveCandidates(ctx context.Context, chosen book.SearchResult, searchURL string, logger *zap.Logger) []book.Candidate {
	var scraped []book.Candidate
	if chosen.ProviderURL != "" {
		result, err := p.fetcher.Fetch(ctx, chosen.ProviderURL, transport.Options{
			Referer: searchURL,
			Timeout: transport.MetadataTimeout,
		})
		if err != nil {
			logger.Info("detail page fetch failed, relying on mirrors",
				zap.String("url", chosen.ProviderURL), zap.Error(err))
		} else if result.StatusCode < 400 {
			base, err := url.Parse(result.FinalURL)
			if err != nil || base.Host == "" {
				base, _ = url.Parse(chosen.ProviderURL)
			}
			scraped = p.scanner.CandidateLinks(result.Body, base, chosen.ProviderID)
		}
	}
	return p.resolver.Resolve(chosen, scraped)
}

// pause sleeps the inter-step delay, returning false on cancellation.
// The delay keeps the pipeline under the providers' informal rate
// limits; it is policy, not correctness.
func (p *Pipeline) pause(ctx context.Context) bool {
	if p.stepDelay <= 0 {
		return true
	}
	select {
	case <-ctx.Done():
		return false
	case <-time.After(p.stepDelay):
		return true
	}
}
