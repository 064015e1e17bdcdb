package planner

import (
	"sort"

	"github.com/vemoo/goose/task"
)

// UserCounts applies the same gcd-reduction procedure to task-set weights
// that Build applies to task weights within a set: it distributes a total
// of n users across sets in proportion to their declared weight ratio,
// exactly, rather than approximately via floating point.
//
// The reduced-weight sum is the smallest number of "shares" that preserves
// every pairwise ratio; n is then distributed across sets proportionally
// to reduced weight, with any remainder (n not a multiple of the reduced
// weight sum) handed out to the sets with the largest fractional share,
// largest weight first on ties, so the final counts differ from the exact
// ratio by at most one user per set.
func UserCounts(sets []*task.TaskSet, n int) map[*task.TaskSet]int {
	counts := make(map[*task.TaskSet]int, len(sets))
	if len(sets) == 0 || n <= 0 {
		return counts
	}

	g := 0
	for _, ts := range sets {
		g = gcd(g, ts.Weight())
	}
	if g == 0 {
		g = 1
	}

	reduced := make([]int, len(sets))
	reducedSum := 0
	for i, ts := range sets {
		w := ts.Weight() / g
		if w < 1 {
			w = 1
		}
		reduced[i] = w
		reducedSum += w
	}

	type share struct {
		idx  int
		frac float64
	}
	shares := make([]share, len(sets))
	assigned := 0
	for i := range sets {
		exact := float64(n) * float64(reduced[i]) / float64(reducedSum)
		base := int(exact)
		counts[sets[i]] = base
		assigned += base
		shares[i] = share{idx: i, frac: exact - float64(base)}
	}

	remainder := n - assigned
	sort.SliceStable(shares, func(a, b int) bool {
		if shares[a].frac != shares[b].frac {
			return shares[a].frac > shares[b].frac
		}
		return reduced[shares[a].idx] > reduced[shares[b].idx]
	})
	for i := 0; i < remainder && i < len(shares); i++ {
		counts[sets[shares[i].idx]]++
	}

	return counts
}
