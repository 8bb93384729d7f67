// Package hybridsort sorts with a comparator, picking a recursive
// partitioning strategy for small inputs and the native in-place sort above
// a size threshold.
package hybridsort

import "slices"

// Strategy selects the sorting algorithm.
type Strategy int

const (
	// StrategyAuto chooses by input length.
	StrategyAuto Strategy = iota
	// StrategyBucket partitions around a pivot into "less" and "not less"
	// buckets and recurses. Not in place: every call allocates two slices.
	StrategyBucket
	// StrategyNative delegates to slices.SortFunc.
	StrategyNative
)

// Threshold is the largest input length sorted with StrategyBucket under StrategyAuto.
const Threshold = 800

func (s Strategy) String() string {
	switch s {
	case StrategyAuto:
		return "auto"
	case StrategyBucket:
		return "bucket"
	case StrategyNative:
		return "native"
	}
	return "unknown"
}

// Choose resolves StrategyAuto for an input of length n.
func Choose(n int, s Strategy) Strategy {
	if s != StrategyAuto {
		return s
	}
	if n > Threshold {
		return StrategyNative
	}
	return StrategyBucket
}

// Sort orders items so that no element is less than an element before it.
// Inputs of length <= 1 are returned unchanged. StrategyBucket returns a new
// slice; StrategyNative sorts items in place and returns it. Neither is stable.
func Sort[T any](items []T, less func(a, b T) bool, s Strategy) []T {
	if len(items) <= 1 {
		return items
	}
	switch Choose(len(items), s) {
	case StrategyNative:
		return native(items, less)
	default:
		return bucket(items, less)
	}
}

func bucket[T any](items []T, less func(a, b T) bool) []T {
	if len(items) <= 1 {
		return items
	}
	pivot := items[len(items)-1]
	var left, right []T
	for _, it := range items[:len(items)-1] {
		if less(it, pivot) {
			left = append(left, it)
		} else {
			right = append(right, it)
		}
	}
	out := make([]T, 0, len(items))
	out = append(out, bucket(left, less)...)
	out = append(out, pivot)
	return append(out, bucket(right, less)...)
}

func native[T any](items []T, less func(a, b T) bool) []T {
	slices.SortFunc(items, func(a, b T) int {
		switch {
		case less(a, b):
			return -1
		case less(b, a):
			return 1
		}
		return 0
	})
	return items
}
