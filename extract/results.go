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

// contentIDRef pulls the portable 32-hex content hash out of hrefs of
// either family: query-style (md5=...) and path-style (/md5/...).
var contentIDRef = regexp.MustCompile(`(?i)md5[=/]([0-9a-f]{32})`)

const maxResultsPerPage = 10

// ResultParser extracts search results from provider responses. Each
// provider family gets its own scan; unknown providers fall back to a
// generic content-id anchor scan.
type ResultParser struct {
	logger *zap.Logger
}

func NewResultParser(logger *zap.Logger) *ResultParser {
	return &ResultParser{logger: logger}
}

// SearchResults parses the provider's search response. Malformed or
// restructured markup yields fewer results, never an error.
func (p *ResultParser) SearchResults(providerID string, html []byte, base *url.URL) []book.SearchResult {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		p.logger.Debug("unparseable search response",
			zap.String("provider", providerID), zap.Error(err))
		return nil
	}

	var results []book.SearchResult
	switch providerID {
	case "libgen":
		results = p.libgenResults(doc, base, providerID)
	default:
		results = p.contentIDResults(doc, base, providerID)
	}

	if len(results) > maxResultsPerPage {
		results = results[:maxResultsPerPage]
	}
	p.logger.Debug("parsed search results",
		zap.String("provider", providerID),
		zap.Int("count", len(results)))
	return results
}

// libgenResults walks the classic results table: one row per hit,
// title in column 2, extension in column 8, mirror links at the end.
func (p *ResultParser) libgenResults(doc *goquery.Document, base *url.URL, providerID string) []book.SearchResult {
	rows := doc.Find("table.c tr")
	if rows.Length() < 2 {
		// Mirrors restyle the table; fall back to the first table
		// with more than a header row.
		doc.Find("table").EachWithBreak(func(_ int, tbl *goquery.Selection) bool {
			trs := tbl.Find("tr")
			if trs.Length() > 1 {
				rows = trs
				return false
			}
			return true
		})
	}
	if rows.Length() < 2 {
		return nil
	}

	var results []book.SearchResult
	rows.Each(func(i int, row *goquery.Selection) {
		if i == 0 {
			return // header
		}
		cols := row.Find("td")
		if cols.Length() < 8 {
			return
		}

		title := strings.TrimSpace(cols.Eq(2).Text())
		if title == "" {
			title = strings.TrimSpace(cols.Eq(1).Text())
		}

		extension := ""
		if cols.Length() > 8 {
			extension = strings.ToLower(strings.TrimSpace(cols.Eq(8).Text()))
		}

		var providerURL, contentID string
		row.Find("a[href]").EachWithBreak(func(_ int, a *goquery.Selection) bool {
			href, _ := a.Attr("href")
			m := contentIDRef.FindStringSubmatch(href)
			if m == nil {
				return true
			}
			contentID = strings.ToLower(m[1])
			if ref, err := url.Parse(href); err == nil {
				providerURL = base.ResolveReference(ref).String()
			}
			return false
		})
		if providerURL == "" {
			return
		}

		results = append(results, book.SearchResult{
			Title:       title,
			ProviderID:  providerID,
			ProviderURL: providerURL,
			ContentID:   contentID,
			Extension:   extension,
		})
	})
	return results
}

// contentIDResults scans for anchors whose href carries a content id,
// the layout-independent shape shared by the archive-style providers.
func (p *ResultParser) contentIDResults(doc *goquery.Document, base *url.URL, providerID string) []book.SearchResult {
	seen := make(map[string]bool)
	var results []book.SearchResult
	doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		m := contentIDRef.FindStringSubmatch(href)
		if m == nil {
			return
		}
		contentID := strings.ToLower(m[1])
		if seen[contentID] {
			return
		}

		title := strings.Join(strings.Fields(a.Text()), " ")
		if title == "" {
			return
		}
		seen[contentID] = true

		extension := ""
		upper := strings.ToUpper(title)
		for _, fmtName := range book.PreferredFormats {
			if strings.Contains(upper, strings.ToUpper(fmtName)) {
				extension = fmtName
				break
			}
		}

		providerURL := href
		if ref, err := url.Parse(href); err == nil {
			providerURL = base.ResolveReference(ref).String()
		}

		results = append(results, book.SearchResult{
			Title:       title,
			ProviderID:  providerID,
			ProviderURL: providerURL,
			ContentID:   contentID,
			Extension:   extension,
		})
	})
	return results
}
