// Package order sorts components by an explicit numeric precedence.
//
// Lower values sort first. Values without an order sort last
// (LowestPrecedence). Ties keep registration order.
package order

import (
	"math"
	"slices"
)

const (
	HighestPrecedence = math.MinInt32
	LowestPrecedence  = math.MaxInt32
)

// Ordered is implemented by components that carry their own precedence.
type Ordered interface {
	Order() int
}

// PriorityOrdered marks components that sort ahead of every plain Ordered
// (and unordered) component, regardless of their numeric value.
type PriorityOrdered interface {
	Ordered
	PriorityOrdered()
}

// Of returns v's precedence, LowestPrecedence if v is not Ordered.
func Of(v any) int {
	if o, ok := v.(Ordered); ok {
		return o.Order()
	}
	return LowestPrecedence
}

func isPriority(v any) bool {
	_, ok := v.(PriorityOrdered)
	return ok
}

// Compare orders a before b (<0), after (>0), or equal (0).
func Compare(a, b any) int {
	pa, pb := isPriority(a), isPriority(b)
	switch {
	case pa && !pb:
		return -1
	case !pa && pb:
		return 1
	}
	oa, ob := Of(a), Of(b)
	switch {
	case oa < ob:
		return -1
	case oa > ob:
		return 1
	default:
		return 0
	}
}

// Sort sorts items in place by precedence. The sort is stable.
func Sort[T any](items []T) {
	slices.SortStableFunc(items, func(a, b T) int { return Compare(a, b) })
}

// Sorted returns a sorted copy and leaves items untouched.
func Sorted[T any](items []T) []T {
	out := slices.Clone(items)
	Sort(out)
	return out
}

// Value attaches a precedence to v.
func Value[T any](v T, order int) Valued[T] {
	return Valued[T]{V: v, order: order}
}

type Valued[T any] struct {
	V     T
	order int
}

func (v Valued[T]) Order() int { return v.order }
