package harvester

import (
	"context"
	"fmt"
	"testing"
	"time"

	"stockharvest-backend/lib/record"

	"github.com/stretchr/testify/require"
)

var testSection = Section{Code: "d", ResultKey: "dividend", Aliases: []string{"dividends"}}

// scriptedSource serves pre-built pages and counts fetches.
type scriptedSource struct {
	sections []Section
	pages    map[string]map[int]Page
	failAt   map[string]int
	fetches  int
}

func (s *scriptedSource) Sections() []Section {
	return s.sections
}

func (s *scriptedSource) FetchPage(ctx context.Context, target Target, section Section, page int) (Page, error) {
	s.fetches++
	if p, ok := s.failAt[section.Code]; ok && p == page {
		return Page{}, fmt.Errorf("injected failure on page %d", page)
	}
	if p, ok := s.pages[section.Code][page]; ok {
		return p, nil
	}
	return Page{Status: StatusEmpty}, nil
}

func item(id string) *record.Record {
	r := record.New()
	r.Set("id", id)
	return r
}

func itemIDs(items []*record.Record) []string {
	var ids []string
	for _, it := range items {
		v, _ := it.Get("id")
		ids = append(ids, v.(string))
	}
	return ids
}

func TestCollectStopsAtKnownItem(t *testing.T) {
	source := &scriptedSource{pages: map[string]map[int]Page{
		"d": {
			1: {Status: StatusOK, Items: []*record.Record{item("Y"), item("X")}},
			2: {Status: StatusOK, Items: []*record.Record{item("W")}},
		},
	}}
	collector := NewCollector(source, 0)

	prior := []*record.Record{item("X")}
	result, err := collector.CollectSection(context.Background(), Target{ID: "T1"}, testSection, prior)
	require.NoError(t, err)

	require.True(t, result.HitExisting)
	require.Equal(t, 1, result.NewItems)
	require.Equal(t, 1, result.PagesFetched)
	require.Equal(t, []string{"Y", "X"}, itemIDs(result.Items))
	require.Equal(t, 1, source.fetches, "pagination must stop at the first known item")
}

func TestCollectIsIdempotent(t *testing.T) {
	source := &scriptedSource{pages: map[string]map[int]Page{
		"d": {
			1: {Status: StatusOK, Items: []*record.Record{item("B"), item("A")}},
		},
	}}
	collector := NewCollector(source, 0)

	first, err := collector.CollectSection(context.Background(), Target{}, testSection, nil)
	require.NoError(t, err)
	require.Equal(t, 2, first.NewItems)

	second, err := collector.CollectSection(context.Background(), Target{}, testSection, first.Items)
	require.NoError(t, err)
	require.Equal(t, 0, second.NewItems)
	require.Equal(t, itemIDs(first.Items), itemIDs(second.Items))
}

func TestCollectHonorsPageCount(t *testing.T) {
	source := &scriptedSource{pages: map[string]map[int]Page{
		"d": {
			1: {Status: StatusOK, PageCount: 2, Items: []*record.Record{item("A"), item("B")}},
			2: {Status: StatusOK, PageCount: 2, Items: []*record.Record{item("C")}},
			3: {Status: StatusOK, PageCount: 2, Items: []*record.Record{item("D")}},
		},
	}}
	collector := NewCollector(source, 0)

	result, err := collector.CollectSection(context.Background(), Target{}, testSection, nil)
	require.NoError(t, err)
	require.Equal(t, []string{"A", "B", "C"}, itemIDs(result.Items))
	require.Equal(t, 2, result.PagesFetched)
	require.Equal(t, 2, result.PageCount)
}

func TestCollectStopsOnEmptyPage(t *testing.T) {
	source := &scriptedSource{pages: map[string]map[int]Page{
		"d": {
			1: {Status: StatusOK, Items: []*record.Record{item("A")}},
			2: {Status: StatusOK, Items: nil},
		},
	}}
	collector := NewCollector(source, 0)

	result, err := collector.CollectSection(context.Background(), Target{}, testSection, nil)
	require.NoError(t, err)
	require.Equal(t, []string{"A"}, itemIDs(result.Items))
	require.Equal(t, 2, result.PagesFetched)
}

func TestCollectTerminalStatusIsClean(t *testing.T) {
	source := &scriptedSource{pages: map[string]map[int]Page{
		"d": {
			1: {Status: StatusNotFound},
		},
	}}
	collector := NewCollector(source, 0)

	prior := []*record.Record{item("X")}
	result, err := collector.CollectSection(context.Background(), Target{}, testSection, prior)
	require.NoError(t, err)
	require.Equal(t, 0, result.NewItems)
	require.Equal(t, 0, result.PagesFetched)
	require.Equal(t, []string{"X"}, itemIDs(result.Items), "prior rows survive a vanished listing")
}

func TestCollectSkipsWithinRunDuplicates(t *testing.T) {
	source := &scriptedSource{pages: map[string]map[int]Page{
		"d": {
			1: {Status: StatusOK, Items: []*record.Record{item("A"), item("A"), item("B")}},
		},
	}}
	collector := NewCollector(source, 0)

	result, err := collector.CollectSection(context.Background(), Target{}, testSection, nil)
	require.NoError(t, err)
	require.Equal(t, []string{"A", "B"}, itemIDs(result.Items))
}

func TestCollectFailureKeepsGatheredAndPrior(t *testing.T) {
	source := &scriptedSource{
		pages: map[string]map[int]Page{
			"d": {
				1: {Status: StatusOK, PageCount: 3, Items: []*record.Record{item("A")}},
			},
		},
		failAt: map[string]int{"d": 2},
	}
	collector := NewCollector(source, 0)

	prior := []*record.Record{item("Z")}
	result, err := collector.CollectSection(context.Background(), Target{}, testSection, prior)
	require.Error(t, err)
	require.Equal(t, 1, result.NewItems)
	require.Equal(t, []string{"A", "Z"}, itemIDs(result.Items))
}

func TestCollectCancelledContext(t *testing.T) {
	source := &scriptedSource{pages: map[string]map[int]Page{
		"d": {
			1: {Status: StatusOK, PageCount: 2, Items: []*record.Record{item("A")}},
			2: {Status: StatusOK, PageCount: 2, Items: []*record.Record{item("B")}},
		},
	}}
	// a page delay forces the cancellation check between pages
	collector := NewCollector(source, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	result, err := collector.CollectSection(ctx, Target{}, testSection, nil)
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, []string{"A"}, itemIDs(result.Items))
}
