package testutil

// applyWindow slices a result set the way LIMIT/OFFSET would. A zero limit
// means unbounded.
func applyWindow[T any](items []T, limit, offset int) []T {
	if offset > 0 {
		if offset >= len(items) {
			return []T{}
		}
		items = items[offset:]
	}
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
