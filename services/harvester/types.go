package harvester

import (
	"context"
	"strings"

	"stockharvest-backend/lib/record"
	"stockharvest-backend/lib/textutil"
)

// Target is one unit of harvesting work: a company known under one or more
// alternate exchange identifiers. Identity is the identifier set, not any
// single field.
type Target struct {
	// ID is the upstream source's own identifier (the Moneycontrol scId),
	// when known.
	ID   string
	BSE  string
	NSE  string
	ISIN string
	Name string

	// Prior is the previously persisted document for this target, nil when
	// it was never harvested.
	Prior *record.Record
}

// IdentityKey is the composite key built from a target's normalized
// identifiers in a fixed field order, with "" for missing components.
type IdentityKey struct {
	BSE  string
	NSE  string
	ISIN string
}

func (t Target) Key() IdentityKey {
	return IdentityKey{
		BSE:  textutil.NormalizeCode(t.BSE),
		NSE:  textutil.NormalizeCode(t.NSE),
		ISIN: textutil.NormalizeCode(t.ISIN),
	}
}

// String renders the key in its stored form.
func (k IdentityKey) String() string {
	return strings.Join([]string{k.BSE, k.NSE, k.ISIN}, "|")
}

func ParseIdentityKey(s string) IdentityKey {
	parts := strings.SplitN(s, "|", 3)
	var k IdentityKey
	if len(parts) > 0 {
		k.BSE = parts[0]
	}
	if len(parts) > 1 {
		k.NSE = parts[1]
	}
	if len(parts) > 2 {
		k.ISIN = parts[2]
	}
	return k
}

// FetchStatus classifies the outcome of one page request.
type FetchStatus int

const (
	// StatusOK means a parsed payload was received.
	StatusOK FetchStatus = iota
	// StatusEmpty means the endpoint answered cleanly with no data (204, a
	// structurally empty body, or a non-JSON 200).
	StatusEmpty
	// StatusNotFound means the endpoint reports no such listing (404).
	StatusNotFound
)

// Page is the outcome of fetching one page of a section listing.
type Page struct {
	Status FetchStatus
	// Items are the page's rows, newest first, nil on non-OK statuses.
	Items []*record.Record
	// PageCount is the endpoint's total-page-count hint, 0 when unknown.
	PageCount int
}

// Section identifies one independently paginated sub-listing of a target.
type Section struct {
	// Code is the section's short request code (e.g. "d" for dividends).
	Code string
	// ResultKey is the field name the merged item list is stored under.
	ResultKey string
	// Aliases are extra field names mirroring the item list in the stored
	// payload, kept for readers using legacy names.
	Aliases []string
}

// Source fetches listing pages for targets. Transient failures (429, 5xx,
// transport errors) are retried inside the source; an error from FetchPage
// is terminal for the page.
type Source interface {
	Sections() []Section
	FetchPage(ctx context.Context, target Target, section Section, page int) (Page, error)
}
