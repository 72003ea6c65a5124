/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package game

import "slices"

// TallyResult is the outcome of closing a voting round.
type TallyResult struct {
	Eliminated string
	WasTie     bool
	Counts     map[string]int
}

// Tally counts one vote per living voter and picks the plurality target.
// Votes cast by, or for, players outside alive are ignored. Ties are broken
// uniformly at random among the leaders using r.
func Tally(votes map[string]string, alive map[string]bool, r Rand) (TallyResult, error) {
	counts := make(map[string]int)
	for voter, target := range votes {
		if !alive[voter] || !alive[target] {
			continue
		}
		counts[target]++
	}

	if len(counts) == 0 {
		return TallyResult{}, ErrNoValidVotes
	}

	top := 0
	var leaders []string
	for target, n := range counts {
		switch {
		case n > top:
			top = n
			leaders = []string{target}
		case n == top:
			leaders = append(leaders, target)
		}
	}

	// Map order is random; sort so the seeded pick only depends on r.
	slices.Sort(leaders)

	result := TallyResult{
		Eliminated: leaders[0],
		WasTie:     len(leaders) > 1,
		Counts:     counts,
	}
	if result.WasTie {
		result.Eliminated = leaders[r.IntN(len(leaders))]
	}

	return result, nil
}
