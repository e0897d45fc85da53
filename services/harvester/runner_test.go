package harvester

import (
	"context"
	"path/filepath"
	"testing"

	"stockharvest-backend/lib/record"
	"stockharvest-backend/lib/testutil"
	"stockharvest-backend/services/harvester/db"

	"github.com/stretchr/testify/require"
)

func setupStore(t *testing.T) *SnapshotStore {
	result, cleanup := testutil.SetupService(t, testutil.ServiceParams{
		Name:     "harvester",
		DbSchema: db.Schema,
	})
	t.Cleanup(cleanup)
	return NewSnapshotStore(db.New(result.DB))
}

func TestRunnerHarvestsAndPersists(t *testing.T) {
	store := setupStore(t)
	source := &scriptedSource{
		sections: []Section{testSection},
		pages: map[string]map[int]Page{
			"d": {
				1: {Status: StatusOK, Items: []*record.Record{item("B"), item("A")}},
			},
		},
	}
	runner := NewRunner(store, source, NewCollector(source, 0), nil, RunnerOptions{})

	target := Target{ID: "T1", BSE: "500325", NSE: "RELIANCE", Name: "Reliance Industries"}
	report, err := runner.Run(context.Background(), []Target{target})
	require.NoError(t, err)
	require.Equal(t, 1, report.Succeeded)
	require.Empty(t, report.Failures)
	require.Equal(t, 2, report.NewItems)

	doc, err := store.GetDocument(context.Background(), target.Key())
	require.NoError(t, err)
	require.NotNil(t, doc)
	require.Equal(t, []string{"B", "A"}, itemIDs(ExtractSectionItems(doc, testSection)))

	name, _ := doc.Get("name")
	require.Equal(t, "Reliance Industries", name)

	lastSuccess, err := store.LastSuccess(context.Background())
	require.NoError(t, err)
	require.Contains(t, lastSuccess, target.Key())
}

func TestRunnerIncrementalSecondPass(t *testing.T) {
	store := setupStore(t)
	source := &scriptedSource{
		sections: []Section{testSection},
		pages: map[string]map[int]Page{
			"d": {
				1: {Status: StatusOK, Items: []*record.Record{item("B"), item("A")}},
			},
		},
	}
	runner := NewRunner(store, source, NewCollector(source, 0), nil, RunnerOptions{})
	target := Target{ID: "T1", BSE: "500325", Name: "Reliance Industries"}

	_, err := runner.Run(context.Background(), []Target{target})
	require.NoError(t, err)

	// a newer row appears upstream
	source.pages["d"][1] = Page{Status: StatusOK, Items: []*record.Record{item("C"), item("B"), item("A")}}

	report, err := runner.Run(context.Background(), []Target{target})
	require.NoError(t, err)
	require.Equal(t, 1, report.NewItems)

	doc, err := store.GetDocument(context.Background(), target.Key())
	require.NoError(t, err)
	require.Equal(t, []string{"C", "B", "A"}, itemIDs(ExtractSectionItems(doc, testSection)))
}

func TestRunnerFailureGoesToExceptions(t *testing.T) {
	store := setupStore(t)
	source := &scriptedSource{
		sections: []Section{testSection},
		pages:    map[string]map[int]Page{},
		failAt:   map[string]int{"d": 1},
	}
	exceptions, err := LoadExceptions(filepath.Join(t.TempDir(), "exceptions.txt"))
	require.NoError(t, err)
	runner := NewRunner(store, source, NewCollector(source, 0), exceptions, RunnerOptions{})

	target := Target{ID: "T1", BSE: "500325", Name: "Reliance Industries"}
	report, err := runner.Run(context.Background(), []Target{target})
	require.NoError(t, err, "a target failure must not abort the run")
	require.Equal(t, 0, report.Succeeded)
	require.Len(t, report.Failures, 1)
	require.True(t, exceptions.Has(target.Key()))

	// nothing recorded as a successful harvest
	lastSuccess, err := store.LastSuccess(context.Background())
	require.NoError(t, err)
	require.NotContains(t, lastSuccess, target.Key())

	reloaded, err := LoadExceptions(exceptions.path)
	require.NoError(t, err)
	require.True(t, reloaded.Has(target.Key()), "exception list persists across runs")
}

func TestRunnerOnlyFilterPreservesOtherSections(t *testing.T) {
	store := setupStore(t)
	other := Section{Code: "bm", ResultKey: "board_meetings"}
	source := &scriptedSource{
		sections: []Section{testSection, other},
		pages: map[string]map[int]Page{
			"d":  {1: {Status: StatusOK, Items: []*record.Record{item("D1")}}},
			"bm": {1: {Status: StatusOK, Items: []*record.Record{item("M1")}}},
		},
	}
	target := Target{ID: "T1", BSE: "500325", Name: "Reliance Industries"}

	runner := NewRunner(store, source, NewCollector(source, 0), nil, RunnerOptions{})
	_, err := runner.Run(context.Background(), []Target{target})
	require.NoError(t, err)

	// second pass touches only dividends; board meetings data must survive
	source.pages["d"][1] = Page{Status: StatusOK, Items: []*record.Record{item("D2"), item("D1")}}
	onlyRunner := NewRunner(store, source, NewCollector(source, 0), nil, RunnerOptions{Only: []string{"d"}})
	_, err = onlyRunner.Run(context.Background(), []Target{target})
	require.NoError(t, err)

	doc, err := store.GetDocument(context.Background(), target.Key())
	require.NoError(t, err)
	require.Equal(t, []string{"D2", "D1"}, itemIDs(ExtractSectionItems(doc, testSection)))
	require.Equal(t, []string{"M1"}, itemIDs(ExtractSectionItems(doc, other)))
}

func TestRunnerLimit(t *testing.T) {
	store := setupStore(t)
	source := &scriptedSource{
		sections: []Section{testSection},
		pages: map[string]map[int]Page{
			"d": {1: {Status: StatusOK, Items: []*record.Record{item("A")}}},
		},
	}
	runner := NewRunner(store, source, NewCollector(source, 0), nil, RunnerOptions{Limit: 1})

	targets := []Target{
		{ID: "T1", BSE: "1", Name: "One"},
		{ID: "T2", BSE: "2", Name: "Two"},
	}
	report, err := runner.Run(context.Background(), targets)
	require.NoError(t, err)
	require.Equal(t, 1, report.Targets)
	require.Equal(t, 1, report.Succeeded)
}
