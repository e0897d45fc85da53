package harvester

import (
	"testing"

	"stockharvest-backend/lib/record"

	"github.com/stretchr/testify/require"
)

func TestSectionPayloadRoundTrip(t *testing.T) {
	result := SectionResult{
		Items:        []*record.Record{item("Y"), item("X")},
		NewItems:     1,
		PriorItems:   1,
		PagesFetched: 1,
		PageCount:    3,
	}

	doc := record.New()
	doc.Set(testSection.Code, SectionPayload(testSection, result))

	raw, err := EncodeDocument(doc)
	require.NoError(t, err)
	decoded, err := DecodeDocument(raw)
	require.NoError(t, err)

	items := ExtractSectionItems(decoded, testSection)
	require.Equal(t, []string{"Y", "X"}, itemIDs(items))
}

func TestExtractSectionItemsFallsBackToAlias(t *testing.T) {
	payload := record.New()
	payload.Set("dividends", []any{item("A")})
	doc := record.New()
	doc.Set("d", payload)

	items := ExtractSectionItems(doc, testSection)
	require.Equal(t, []string{"A"}, itemIDs(items))
}

func TestExtractSectionItemsMissing(t *testing.T) {
	require.Nil(t, ExtractSectionItems(nil, testSection))

	doc := record.New()
	require.Nil(t, ExtractSectionItems(doc, testSection))

	doc.Set("d", "not a payload")
	require.Nil(t, ExtractSectionItems(doc, testSection))
}

func TestMergeDocumentFreshWins(t *testing.T) {
	old := record.New()
	old.Set("name", "Old Name")
	old.Set("legacy", "kept")

	fresh := record.New()
	fresh.Set("name", "New Name")
	fresh.Set("bse", "500325")

	merged := MergeDocument(old, fresh)

	name, _ := merged.Get("name")
	require.Equal(t, "New Name", name)
	legacy, _ := merged.Get("legacy")
	require.Equal(t, "kept", legacy)
	// fresh fields lead, old-only fields trail
	require.Equal(t, []string{"name", "bse", "legacy"}, merged.Keys())

	// inputs are untouched
	oldName, _ := old.Get("name")
	require.Equal(t, "Old Name", oldName)
}

func TestMergeDocumentNilSides(t *testing.T) {
	doc := record.New()
	doc.Set("a", 1)

	require.Equal(t, doc, MergeDocument(nil, doc))
	require.Equal(t, doc, MergeDocument(doc, nil))
}

func TestEmptySectionPayloadShape(t *testing.T) {
	payload := EmptySectionPayload(testSection)
	raw, ok := payload.Get("dividend")
	require.True(t, ok)
	require.Empty(t, raw)
	alias, ok := payload.Get("dividends")
	require.True(t, ok)
	require.Empty(t, alias)
}
