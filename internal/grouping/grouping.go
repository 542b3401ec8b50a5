// =============================================================================
// DUIMP Flattener - Addition Grouping
// =============================================================================
//
// This module partitions the ordered item list into additions. An addition
// is a run of consecutive items that share the same classification code.
//
// NUMBERING:
//   - Additions are numbered from 1 in input order
//   - Each item gets a 1-based index inside its addition
//   - Each item also gets a 1-based global index that never resets
//
// A missing classification code is a value of its own: two consecutive
// items without a code belong to the same addition, and moving between a
// code and no code starts a new one.
//
// =============================================================================

package grouping

import "github.com/tiagojmoraes/projeto-duimp/internal/declaration"

// =============================================================================
// DATA STRUCTURES
// =============================================================================

// Addition is one group of consecutive items with the same code.
type Addition struct {
	// Number is the addition number (1-indexed).
	Number int

	// Code is the shared classification code, nil when the items have none.
	Code *string

	// Members are the items in input order.
	Members []Member
}

// Member is one item annotated with its position.
type Member struct {
	Item declaration.Item

	// AdditionNumber is the number of the addition the item belongs to.
	AdditionNumber int

	// IndexInAddition restarts at 1 for each addition.
	IndexInAddition int

	// GlobalIndex is the 1-based position in the whole batch.
	GlobalIndex int
}

// =============================================================================
// GROUPING
// =============================================================================

// Group splits items into additions by change detection on the
// classification code.
//
// EXAMPLE:
//
//	codes [A, A, B]
//	addition numbers [1, 1, 2], per-addition index [1, 2, 1], global [1, 2, 3]
func Group(items []declaration.Item) []Addition {
	var (
		additions []Addition
		current   *Addition
		started   bool
		code      *string
	)

	for i, item := range items {
		next := item.ClassificationCode()

		if !started || !sameCode(code, next) {
			additions = append(additions, Addition{
				Number: len(additions) + 1,
				Code:   next,
			})
			current = &additions[len(additions)-1]
			code = next
			started = true
		}

		current.Members = append(current.Members, Member{
			Item:            item,
			AdditionNumber:  current.Number,
			IndexInAddition: len(current.Members) + 1,
			GlobalIndex:     i + 1,
		})
	}

	return additions
}

// Flatten returns the members of all additions in input order.
func Flatten(additions []Addition) []Member {
	var out []Member
	for _, a := range additions {
		out = append(out, a.Members...)
	}
	return out
}

func sameCode(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
