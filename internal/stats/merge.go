package stats

// Merge combines any number of per-worker NameSnapshot deltas into one
// aggregate, grouped by request name. Addition is associative and
// commutative: reordering the input slices, or the entries within them,
// yields the same result.
func Merge(deltas ...[]NameSnapshot) []NameSnapshot {
	byName := make(map[string]NameSnapshot)
	var order []string

	for _, delta := range deltas {
		for _, snap := range delta {
			existing, ok := byName[snap.Name]
			if !ok {
				order = append(order, snap.Name)
				byName[snap.Name] = snap
				continue
			}
			byName[snap.Name] = mergeNamed(existing, snap)
		}
	}

	out := make([]NameSnapshot, 0, len(order))
	for _, name := range order {
		out = append(out, byName[name])
	}
	return out
}

func mergeNamed(a, b NameSnapshot) NameSnapshot {
	statusCounts := make(map[int]uint64, len(a.StatusCounts))
	for k, v := range a.StatusCounts {
		statusCounts[k] = v
	}
	for k, v := range b.StatusCounts {
		statusCounts[k] += v
	}

	return NameSnapshot{
		Name:         a.Name,
		Count:        a.Count + b.Count,
		Success:      a.Success + b.Success,
		Failure:      a.Failure + b.Failure,
		StatusCounts: statusCounts,
		Latency:      a.Latency.Merge(b.Latency),
	}
}
