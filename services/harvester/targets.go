package harvester

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"stockharvest-backend/lib/record"
	"stockharvest-backend/lib/textutil"

	"github.com/antzucaro/matchr"
)

// Field-name aliases the upstream data has spelled its identifiers with
// over the years. Matching tries each in order and takes the first
// non-empty value.
var (
	bseFields  = []string{"SC_BSEID", "SC_BSE", "BSEID", "BSE", "bseId", "bse", "BSE Code", "scripBSE"}
	nseFields  = []string{"SC_NSEID", "SC_NSE", "NSEID", "NSE", "nseId", "nse", "NSE Code", "scripNSE"}
	isinFields = []string{"SC_ISINID", "ISIN", "isin"}
	nameFields = []string{"name", "shortName", "Name", "companyName"}
)

func stringValue(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case json.Number:
		return t.String()
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", t)
	}
}

func firstField(doc *record.Record, fields []string) string {
	for _, f := range fields {
		if v, ok := doc.Get(f); ok {
			if s := stringValue(v); s != "" {
				return s
			}
		}
	}
	return ""
}

// ExtractIdentifiers pulls the (BSE, NSE, ISIN) identifiers out of a stored
// document, whichever alias fields they live under.
func ExtractIdentifiers(doc *record.Record) (bse, nse, isin string) {
	return firstField(doc, bseFields), firstField(doc, nseFields), firstField(doc, isinFields)
}

func entryName(doc *record.Record) string {
	return firstField(doc, nameFields)
}

// Lookup indexes persisted documents by their normalized exchange
// identifiers so index constituents can be resolved to full entries.
type Lookup struct {
	byBSE map[string]*record.Record
	byNSE map[string]*record.Record
	docs  []*record.Record
}

func BuildLookup(docs []*record.Record) *Lookup {
	l := &Lookup{
		byBSE: map[string]*record.Record{},
		byNSE: map[string]*record.Record{},
		docs:  docs,
	}
	for _, doc := range docs {
		bse, nse, _ := ExtractIdentifiers(doc)
		if bse = textutil.NormalizeCode(bse); bse != "" {
			l.byBSE[bse] = doc
		}
		if nse = textutil.NormalizeCode(nse); nse != "" {
			l.byNSE[nse] = doc
		}
	}
	return l
}

// Descriptor is one line of an index constituents list.
type Descriptor struct {
	BSE  string
	NSE  string
	Name string
}

// ParseDescriptor reads a plain-text constituent token: either a "BSE,NSE"
// pair or a bare identifier, with all-digit tokens taken as BSE codes.
func ParseDescriptor(raw string) Descriptor {
	value := strings.TrimSpace(raw)
	if value == "" {
		return Descriptor{}
	}
	if left, right, found := strings.Cut(value, ","); found {
		return Descriptor{
			BSE: strings.TrimSpace(left),
			NSE: strings.TrimSpace(right),
		}
	}
	if isDigits(value) {
		return Descriptor{BSE: value}
	}
	return Descriptor{NSE: value}
}

func isDigits(s string) bool {
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return len(s) > 0
}

type ResolveOptions struct {
	// FuzzyNames enables a name-similarity fallback for descriptors that
	// resolve by neither exchange identifier. Off by default: a bad match
	// silently harvests the wrong company.
	FuzzyNames bool
}

const fuzzyNameThreshold = 0.92

func (l *Lookup) fuzzyByName(name string) *record.Record {
	normalized := textutil.NormalizeName(name)
	if normalized == "" {
		return nil
	}
	var best *record.Record
	bestScore := fuzzyNameThreshold
	for _, doc := range l.docs {
		candidate := textutil.NormalizeName(entryName(doc))
		if candidate == "" {
			continue
		}
		score := matchr.JaroWinkler(normalized, candidate, true)
		if score > bestScore {
			best = doc
			bestScore = score
		}
	}
	return best
}

func targetFromEntry(entry *record.Record, bse, nse string) Target {
	entryBSE, entryNSE, entryISIN := ExtractIdentifiers(entry)
	if bse == "" {
		bse = textutil.NormalizeCode(entryBSE)
	}
	if nse == "" {
		nse = textutil.NormalizeCode(entryNSE)
	}
	id := ""
	if v, ok := entry.Get("id"); ok {
		id = stringValue(v)
	}
	return Target{
		ID:   id,
		BSE:  bse,
		NSE:  nse,
		ISIN: textutil.NormalizeCode(entryISIN),
		Name: entryName(entry),
	}
}

func sortTargets(targets []Target) {
	sort.Slice(targets, func(a, b int) bool {
		if targets[a].Name != targets[b].Name {
			return targets[a].Name < targets[b].Name
		}
		if targets[a].BSE != targets[b].BSE {
			return targets[a].BSE < targets[b].BSE
		}
		return targets[a].NSE < targets[b].NSE
	})
}

// ResolveTargets matches index constituent descriptors against the lookup.
// A descriptor may match on either identifier; duplicates (same BSE/NSE
// pair) collapse to one target. Descriptors that match nothing are an
// error, unless the fuzzy-name fallback is enabled and finds an entry.
func ResolveTargets(descriptors []Descriptor, lookup *Lookup, opts ResolveOptions) ([]Target, error) {
	var targets []Target
	seen := map[[2]string]bool{}
	for _, d := range descriptors {
		bse := textutil.NormalizeCode(d.BSE)
		nse := textutil.NormalizeCode(d.NSE)

		var entry *record.Record
		if bse != "" {
			entry = lookup.byBSE[bse]
		}
		if entry == nil && nse != "" {
			entry = lookup.byNSE[nse]
		}
		if entry == nil && opts.FuzzyNames && d.Name != "" {
			entry = lookup.fuzzyByName(d.Name)
		}
		if entry == nil {
			return nil, fmt.Errorf("unable to locate entry for constituent %q", descriptorString(d))
		}

		target := targetFromEntry(entry, bse, nse)
		pair := [2]string{target.BSE, target.NSE}
		if seen[pair] {
			continue
		}
		seen[pair] = true
		targets = append(targets, target)
	}
	sortTargets(targets)
	return targets, nil
}

func descriptorString(d Descriptor) string {
	if d.Name != "" {
		return d.Name
	}
	return strings.TrimRight(d.BSE+","+d.NSE, ",")
}

// AllTargets builds the work list for the "all" pseudo-index: every lookup
// entry carrying at least one identifier, deduplicated by identifier pair.
func AllTargets(lookup *Lookup) []Target {
	var targets []Target
	seen := map[[2]string]bool{}
	for _, doc := range lookup.docs {
		bse, nse, _ := ExtractIdentifiers(doc)
		bse = textutil.NormalizeCode(bse)
		nse = textutil.NormalizeCode(nse)
		if bse == "" && nse == "" {
			continue
		}
		pair := [2]string{bse, nse}
		if seen[pair] {
			continue
		}
		seen[pair] = true
		targets = append(targets, targetFromEntry(doc, bse, nse))
	}
	sortTargets(targets)
	return targets
}
