package harvester

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func targetNames(targets []Target) []string {
	var names []string
	for _, t := range targets {
		names = append(names, t.Name)
	}
	return names
}

func TestPrioritiseFreshBeforeStale(t *testing.T) {
	now := time.Now()
	targets := []Target{
		{Name: "A", BSE: "1"},
		{Name: "B", BSE: "2"},
		{Name: "C", BSE: "3"},
	}
	lastSuccess := map[IdentityKey]time.Time{
		targets[1].Key(): now.Add(-10 * 24 * time.Hour),
		targets[2].Key(): now.Add(-24 * time.Hour),
	}

	ordered := Prioritise(targets, lastSuccess)
	require.Equal(t, []string{"A", "B", "C"}, targetNames(ordered))
}

func TestPrioritiseKeepsDiscoveryOrderForFresh(t *testing.T) {
	targets := []Target{
		{Name: "C", BSE: "3"},
		{Name: "A", BSE: "1"},
		{Name: "B", BSE: "2"},
	}
	ordered := Prioritise(targets, nil)
	require.Equal(t, []string{"C", "A", "B"}, targetNames(ordered))
}

func TestPrioritiseIsDeterministicOnTies(t *testing.T) {
	at := time.Unix(1700000000, 0)
	targets := []Target{
		{Name: "X", BSE: "1"},
		{Name: "Y", BSE: "2"},
	}
	lastSuccess := map[IdentityKey]time.Time{
		targets[0].Key(): at,
		targets[1].Key(): at,
	}

	first := Prioritise(targets, lastSuccess)
	second := Prioritise(targets, lastSuccess)
	require.Equal(t, targetNames(first), targetNames(second))
	require.Equal(t, []string{"X", "Y"}, targetNames(first))
}

func TestPrioritiseEmpty(t *testing.T) {
	require.Empty(t, Prioritise(nil, nil))
}
