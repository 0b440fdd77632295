package crawler

import "time"

// Candidate is an opaque creator handle discovered while paginating a feed.
type Candidate string

// String returns the raw handle.
func (c Candidate) String() string {
	return string(c)
}

// LinkKind names one slot of a LinkBundle.
type LinkKind string

// Link kinds populated by the classifier.
const (
	LinkAffiliateShop   LinkKind = "affiliate-shop"
	LinkContact         LinkKind = "contact"
	LinkPersonalWebsite LinkKind = "personal-website"
)

// LinkBundle holds at most one URL per LinkKind.
type LinkBundle struct {
	AffiliateShop string
	// AffiliatePlatform is the precedence-table key that selected AffiliateShop.
	AffiliatePlatform string
	Contact           string
	Website           string
}

// Get returns the URL stored for kind, or "".
func (b LinkBundle) Get(kind LinkKind) string {
	switch kind {
	case LinkAffiliateShop:
		return b.AffiliateShop
	case LinkContact:
		return b.Contact
	case LinkPersonalWebsite:
		return b.Website
	default:
		return ""
	}
}

// URLs returns the populated links in kind order.
func (b LinkBundle) URLs() []string {
	out := make([]string, 0, 3)
	for _, link := range []string{b.AffiliateShop, b.Contact, b.Website} {
		if link != "" {
			out = append(out, link)
		}
	}
	return out
}

// Empty reports whether no kind is populated.
func (b LinkBundle) Empty() bool {
	return b.AffiliateShop == "" && b.Contact == "" && b.Website == ""
}

// ProvenanceKind distinguishes search terms from category feeds.
type ProvenanceKind string

// Provenance kinds.
const (
	ProvenanceSearch   ProvenanceKind = "search"
	ProvenanceCategory ProvenanceKind = "category"
)

// Query is one feed to paginate: a search term or a named category.
type Query struct {
	Term string
	Kind ProvenanceKind
	URL  string
}

// Entry is an accepted creator record. Entries are immutable once written.
type Entry struct {
	Username          string         `json:"username"`
	SearchTerm        string         `json:"search_term"`
	Provenance        ProvenanceKind `json:"provenance"`
	Bio               string         `json:"bio"`
	AffiliateShop     string         `json:"affiliate_shop"`
	AffiliatePlatform string         `json:"affiliate_platform"`
	Imprint           string         `json:"imprint"`
	Website           string         `json:"website"`
	Locale            string         `json:"locale"`
	Reason            string         `json:"reason"`
	AcceptedAt        time.Time      `json:"accepted_at"`
}

// Links reassembles the LinkBundle stored on the entry.
func (e Entry) Links() LinkBundle {
	return LinkBundle{
		AffiliateShop:     e.AffiliateShop,
		AffiliatePlatform: e.AffiliatePlatform,
		Contact:           e.Imprint,
		Website:           e.Website,
	}
}

// Document is a rendered profile page.
type Document struct {
	URL  string
	HTML string
}

// OutcomeKind classifies how a dispatched candidate ended.
type OutcomeKind string

// Outcome kinds.
const (
	OutcomeAccepted OutcomeKind = "accepted"
	OutcomeRejected OutcomeKind = "rejected"
	OutcomeFailed   OutcomeKind = "failed"
)

// Outcome is the result of processing one candidate. Exactly one of Entry (accepted),
// Reason (rejected) or Err (failed) is meaningful for a given Kind.
type Outcome struct {
	Candidate Candidate
	Kind      OutcomeKind
	Entry     Entry
	Reason    string
	Err       error
}

// Accepted builds an accepted outcome.
func Accepted(entry Entry) Outcome {
	return Outcome{Candidate: Candidate(entry.Username), Kind: OutcomeAccepted, Entry: entry, Reason: entry.Reason}
}

// Rejected builds a rejected outcome.
func Rejected(candidate Candidate, reason string) Outcome {
	return Outcome{Candidate: candidate, Kind: OutcomeRejected, Reason: reason}
}

// Failed builds a failed outcome.
func Failed(candidate Candidate, err error) Outcome {
	return Outcome{Candidate: candidate, Kind: OutcomeFailed, Err: err}
}

// ErrorKind returns the error kind of a failed outcome, or "".
func (o Outcome) ErrorKind() string {
	if o.Kind != OutcomeFailed {
		return ""
	}
	return KindOf(o.Err)
}
