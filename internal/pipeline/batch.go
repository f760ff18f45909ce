package pipeline

// Batches splits items into consecutive slices of at most size n (the last
// one possibly shorter). The ingest stage uses it for its groups of 100
// ids.
func Batches[T any](items []T, n int) [][]T {
	if n <= 0 {
		n = len(items)
	}
	if len(items) == 0 {
		return nil
	}
	var out [][]T
	for i := 0; i < len(items); i += n {
		end := i + n
		if end > len(items) {
			end = len(items)
		}
		out = append(out, items[i:end])
	}
	return out
}
