package book

// FailureReason says why a query ended without a saved file.
type FailureReason int

const (
	ReasonNone FailureReason = iota
	ReasonNoSearchResults
	ReasonNoCandidates
	ReasonCandidatesExhausted
	ReasonCancelled
)

func (r FailureReason) String() string {
	switch r {
	case ReasonNone:
		return "none"
	case ReasonNoSearchResults:
		return "no_search_results"
	case ReasonNoCandidates:
		return "no_candidates"
	case ReasonCandidatesExhausted:
		return "candidates_exhausted"
	case ReasonCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Outcome is the terminal record for one query. It is the only data
// the caller observes.
type Outcome struct {
	Query         string
	Success       bool
	AlreadyExists bool
	SavedPath     string
	SizeBytes     int64
	Reason        FailureReason
}
