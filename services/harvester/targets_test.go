package harvester

import (
	"testing"

	"stockharvest-backend/lib/record"

	"github.com/stretchr/testify/require"
)

func entry(id, bse, nse, name string) *record.Record {
	r := record.New()
	r.Set("id", id)
	r.Set("name", name)
	r.Set("SC_BSEID", bse)
	r.Set("SC_NSEID", nse)
	return r
}

func TestParseDescriptor(t *testing.T) {
	require.Equal(t, Descriptor{BSE: "500325", NSE: "RELIANCE"}, ParseDescriptor("500325,RELIANCE"))
	require.Equal(t, Descriptor{BSE: "500325"}, ParseDescriptor("  500325 "))
	require.Equal(t, Descriptor{NSE: "TCS"}, ParseDescriptor("TCS"))
	require.Equal(t, Descriptor{}, ParseDescriptor(""))
}

func TestExtractIdentifiersAliases(t *testing.T) {
	r := record.New()
	r.Set("bseId", "532540")
	r.Set("NSE Code", "TCS")
	r.Set("ISIN", "INE467B01029")

	bse, nse, isin := ExtractIdentifiers(r)
	require.Equal(t, "532540", bse)
	require.Equal(t, "TCS", nse)
	require.Equal(t, "INE467B01029", isin)
}

func TestResolveTargets(t *testing.T) {
	lookup := BuildLookup([]*record.Record{
		entry("RI", "500325", "RELIANCE", "Reliance Industries"),
		entry("TCS", "532540", "TCS", "Tata Consultancy Services"),
	})

	targets, err := ResolveTargets([]Descriptor{
		{BSE: "500325"},
		{NSE: "TCS"},
		{BSE: "500325", NSE: "RELIANCE"}, // duplicate pair collapses
	}, lookup, ResolveOptions{})
	require.NoError(t, err)
	require.Len(t, targets, 2)
	// output is sorted by name
	require.Equal(t, "Reliance Industries", targets[0].Name)
	require.Equal(t, "RELIANCE", targets[0].NSE)
	require.Equal(t, "Tata Consultancy Services", targets[1].Name)
	require.Equal(t, "TCS", targets[1].ID)
}

func TestResolveTargetsUnknownConstituent(t *testing.T) {
	lookup := BuildLookup(nil)
	_, err := ResolveTargets([]Descriptor{{NSE: "NOPE"}}, lookup, ResolveOptions{})
	require.Error(t, err)
	require.Contains(t, err.Error(), "NOPE")
}

func TestResolveTargetsFuzzyNameFallback(t *testing.T) {
	lookup := BuildLookup([]*record.Record{
		entry("RI", "500325", "RELIANCE", "Reliance Industries"),
	})

	descriptors := []Descriptor{{Name: "Reliance Industries Ltd"}}

	_, err := ResolveTargets(descriptors, lookup, ResolveOptions{})
	require.Error(t, err, "fuzzy matching stays off unless asked for")

	targets, err := ResolveTargets(descriptors, lookup, ResolveOptions{FuzzyNames: true})
	require.NoError(t, err)
	require.Len(t, targets, 1)
	require.Equal(t, "500325", targets[0].BSE)
}

func TestAllTargets(t *testing.T) {
	lookup := BuildLookup([]*record.Record{
		entry("TCS", "532540", "TCS", "Tata Consultancy Services"),
		entry("RI", "500325", "RELIANCE", "Reliance Industries"),
		entry("RI2", "500325", "RELIANCE", "Reliance Industries"), // dup pair
		entry("X", "", "", "No Identifiers"),
	})

	targets := AllTargets(lookup)
	require.Equal(t, []string{"Reliance Industries", "Tata Consultancy Services"}, targetNames(targets))
}
