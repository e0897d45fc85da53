package harvester

import (
	"sort"
	"time"
)

// Prioritise orders harvesting work so never-harvested targets run first
// (in their discovery order), followed by previously harvested targets from
// oldest to most recent last success. Ties fall back to discovery order, so
// the result is deterministic for a given input order and index.
func Prioritise(targets []Target, lastSuccess map[IdentityKey]time.Time) []Target {
	if len(targets) == 0 {
		return targets
	}

	type staleEntry struct {
		at    time.Time
		index int
	}

	var fresh []int
	var stale []staleEntry
	for i, target := range targets {
		at, ok := lastSuccess[target.Key()]
		if !ok {
			fresh = append(fresh, i)
			continue
		}
		stale = append(stale, staleEntry{at: at, index: i})
	}

	sort.SliceStable(stale, func(a, b int) bool {
		if !stale[a].at.Equal(stale[b].at) {
			return stale[a].at.Before(stale[b].at)
		}
		return stale[a].index < stale[b].index
	})

	ordered := make([]Target, 0, len(targets))
	for _, i := range fresh {
		ordered = append(ordered, targets[i])
	}
	for _, e := range stale {
		ordered = append(ordered, targets[e.index])
	}
	return ordered
}
