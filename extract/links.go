// Package extract turns raw provider markup into search results and
// ranked download candidates. Extraction is pattern-based and degrades
// to fewer results on unexpected structure instead of failing hard.
package extract

import (
	"bytes"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"bookfetch/book"
)

// Pattern tiers, best first. The first tier that matches anything sets
// the lead ranks, but every tier's matches are collected so the
// resolver has a full fallback set.
const (
	tierPreferred = iota // the page's real download button
	tierGeneric          // generic download/mirror anchors
	tierExtension        // bare file-extension hrefs
	tierCount
)

// rankStep spaces the tiers so within-tier order survives merging.
const rankStep = 100

var (
	// preferredText matches the anchors providers use for their actual
	// byte-serving link: LibGen's bare "GET", slow/free download rows.
	preferredText = regexp.MustCompile(`(?i)^\s*get\s*$|slow\s*(download|server|partner)|free\s*download`)
	preferredHref = regexp.MustCompile(`(?i)cloudflare|get\.php|/slow_download/`)

	// getButtonText is the bare GET button; wherever it appears its
	// href serves bytes, whatever the URL looks like.
	getButtonText = regexp.MustCompile(`(?i)^\s*get\s*$`)

	genericText = regexp.MustCompile(`(?i)\bdownload\b|\bmirror\b`)

	fileExtHref = regexp.MustCompile(`(?i)\.(epub|pdf|mobi|azw3|djvu|fb2|cbz)($|\?)`)

	ipfsRef = regexp.MustCompile(`(?i)(?:ipfs://|/ipfs/)([0-9a-z]{16,})`)
)

// LinkScanner extracts candidate links from one page of markup.
type LinkScanner struct {
	gateways []string // HTTPS gateway templates with one %s for the CID
	logger   *zap.Logger
}

func NewLinkScanner(gateways []string, logger *zap.Logger) *LinkScanner {
	return &LinkScanner{gateways: gateways, logger: logger}
}

// CandidateLinks scans every anchor on the page and returns candidates
// ordered by tier then document order, deduplicated by absolutized URL.
func (s *LinkScanner) CandidateLinks(html []byte, base *url.URL, providerID string) []book.Candidate {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		s.logger.Debug("unparseable markup, no candidates",
			zap.String("base", base.String()), zap.Error(err))
		return nil
	}

	tiers := make([][]book.Candidate, tierCount)
	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, _ := sel.Attr("href")
		text := strings.TrimSpace(sel.Text())
		for _, cand := range s.classify(href, text, base, providerID) {
			tier := cand.SourceRank
			tiers[tier] = append(tiers[tier], cand)
		}
	})

	// LibGen mirrors hide the GET link inside the first h2 when the
	// page layout is in its minimal form.
	if h2 := doc.Find("h2 a[href]").First(); h2.Length() > 0 {
		href, _ := h2.Attr("href")
		for _, cand := range s.classify(href, "GET", base, providerID) {
			tiers[cand.SourceRank] = append(tiers[cand.SourceRank], cand)
		}
	}

	seen := make(map[string]bool)
	var out []book.Candidate
	for tier, cands := range tiers {
		for _, cand := range cands {
			if seen[cand.URL] {
				continue
			}
			seen[cand.URL] = true
			cand.SourceRank = tier*rankStep + len(out)
			out = append(out, cand)
		}
	}
	return out
}

// classify maps one anchor to zero or more candidates. The returned
// SourceRank is the tier; CandidateLinks spreads it into a final rank.
func (s *LinkScanner) classify(href, text string, base *url.URL, providerID string) []book.Candidate {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") {
		return nil
	}

	// Peer-network references are rewritten onto fetchable gateways
	// carrying the same content identifier.
	if m := ipfsRef.FindStringSubmatch(href); m != nil {
		var out []book.Candidate
		for _, tmpl := range s.gateways {
			out = append(out, book.Candidate{
				URL:        strings.Replace(tmpl, "%s", m[1], 1),
				Kind:       book.GatewayTranslated,
				SourceRank: tierGeneric,
				ProviderID: providerID,
			})
		}
		return out
	}

	ref, err := url.Parse(href)
	if err != nil {
		return nil
	}
	if isUnfetchableScheme(ref.Scheme) {
		return nil
	}
	abs := base.ResolveReference(ref)
	if abs.Scheme != "http" && abs.Scheme != "https" {
		return nil
	}
	absStr := abs.String()
	if isDenied(absStr) {
		return nil
	}

	tier := -1
	switch {
	case preferredText.MatchString(text) || preferredHref.MatchString(absStr):
		tier = tierPreferred
	case genericText.MatchString(text):
		tier = tierGeneric
	case fileExtHref.MatchString(abs.Path):
		tier = tierExtension
	}
	if tier == -1 {
		return nil
	}

	kind := book.LandingPage
	if fileExtHref.MatchString(abs.Path) || preferredHref.MatchString(absStr) || getButtonText.MatchString(text) {
		kind = book.DirectFile
	}

	return []book.Candidate{{
		URL:        absStr,
		Kind:       kind,
		SourceRank: tier,
		ProviderID: providerID,
	}}
}
