package domain

import "fmt"

// Partition splits the roster into workerCount contiguous slices in roster
// order. Every slice has len(roster)/workerCount entries except the last,
// which also absorbs the remainder. The slices are disjoint and their
// concatenation is the full roster.
func Partition(roster []Credential, workerCount int) ([][]Credential, error) {
	if workerCount <= 0 {
		return nil, fmt.Errorf("worker count must be positive, got %d", workerCount)
	}

	size := len(roster) / workerCount
	parts := make([][]Credential, 0, workerCount)
	for i := 0; i < workerCount; i++ {
		start := i * size
		end := start + size
		if i == workerCount-1 {
			end = len(roster)
		}
		parts = append(parts, roster[start:end])
	}

	return parts, nil
}
