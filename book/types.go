// Package book holds the data shapes shared across the retrieval pipeline.
package book

// Kind classifies a download candidate URL.
type Kind int

const (
	// DirectFile URLs serve the payload bytes themselves.
	DirectFile Kind = iota
	// LandingPage URLs link to the file but do not serve it; they must
	// be traversed before download.
	LandingPage
	// GatewayTranslated URLs are peer-network links rewritten onto an
	// HTTPS gateway. Downloadable without traversal.
	GatewayTranslated
)

func (k Kind) String() string {
	switch k {
	case DirectFile:
		return "direct_file"
	case LandingPage:
		return "landing_page"
	case GatewayTranslated:
		return "gateway_translated"
	default:
		return "unknown"
	}
}

// Provider is one configured search endpoint, tried in list order.
type Provider struct {
	ID        string `yaml:"id"`
	SearchURL string `yaml:"search_url"` // %s is the escaped query
}

// SearchResult is one hit parsed out of a provider's search response.
type SearchResult struct {
	Title       string
	ProviderID  string
	ProviderURL string // detail or download page the hit points at
	ContentID   string // portable content hash, empty when unknown
	Extension   string // format hint from the result row, may be empty
}

// Candidate is one attemptable download target. Lower SourceRank is
// tried first. Candidates live for a single query only.
type Candidate struct {
	URL        string
	Kind       Kind
	SourceRank int
	ProviderID string
}

// FetchResult is the transport-level view of one HTTP exchange. It is
// consumed by the step that requested it and never retained.
type FetchResult struct {
	StatusCode         int
	Body               []byte
	ContentType        string
	ContentDisposition string
	FinalURL           string
}

// PreferredFormats orders file formats from most to least wanted.
var PreferredFormats = []string{"epub", "pdf", "mobi", "azw3"}
