// Package resolve turns one search result into the ordered candidate
// list the pipeline falls back through.
package resolve

import (
	"fmt"
	"net/url"
	"sort"

	"go.uber.org/zap"

	"bookfetch/book"
)

// Rank bands. Constructed mirrors are the most reliable source, then
// gateway translations, then links scraped off provider pages. Scanner
// ranks already carry their own within-page tier spread, so the bands
// must sit above any rank one page can produce.
const (
	rankMirrorBase  = 0
	rankGatewayBase = 1000
	rankScrapedBase = 2000
)

// Resolver constructs mirror landing-page URLs from a portable content
// identifier and merges them with whatever was scraped directly.
type Resolver struct {
	mirrors []string // URL templates with one %s for the content id
	logger  *zap.Logger
}

func New(mirrors []string, logger *zap.Logger) *Resolver {
	return &Resolver{mirrors: mirrors, logger: logger}
}

// Resolve produces the full candidate list for one search result.
// When the result carries a content id, every configured mirror gets
// one landing-page candidate, in template order — the id is portable
// across mirrors the search never touched. Scraped candidates keep
// their relative order behind the constructed ones.
func (r *Resolver) Resolve(sr book.SearchResult, scraped []book.Candidate) []book.Candidate {
	var out []book.Candidate

	if sr.ContentID != "" {
		for i, tmpl := range r.mirrors {
			out = append(out, book.Candidate{
				URL:        fmt.Sprintf(tmpl, sr.ContentID),
				Kind:       book.LandingPage,
				SourceRank: rankMirrorBase + i,
				ProviderID: mirrorID(tmpl),
			})
		}
	}

	for _, cand := range scraped {
		switch cand.Kind {
		case book.GatewayTranslated:
			cand.SourceRank = rankGatewayBase + cand.SourceRank
		default:
			cand.SourceRank = rankScrapedBase + cand.SourceRank
		}
		out = append(out, cand)
	}

	out = dedupeByURL(out)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].SourceRank < out[j].SourceRank
	})

	r.logger.Debug("resolved candidates",
		zap.String("content_id", sr.ContentID),
		zap.Int("count", len(out)))
	return out
}

// dedupeByURL keeps the best-ranked candidate per final URL.
func dedupeByURL(cands []book.Candidate) []book.Candidate {
	best := make(map[string]int) // url -> index into out
	var out []book.Candidate
	for _, cand := range cands {
		if i, ok := best[cand.URL]; ok {
			if cand.SourceRank < out[i].SourceRank {
				out[i] = cand
			}
			continue
		}
		best[cand.URL] = len(out)
		out = append(out, cand)
	}
	return out
}

func mirrorID(tmpl string) string {
	u, err := url.Parse(fmt.Sprintf(tmpl, "0"))
	if err != nil {
		return "mirror"
	}
	return u.Host
}
