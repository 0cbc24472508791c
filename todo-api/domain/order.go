package domain

import (
	"cmp"
	"slices"
)

// SortTasks orders tasks by their column order, then creation time, then id.
func SortTasks(tasks []Task) {
	slices.SortStableFunc(tasks, func(a, b Task) int {
		if c := cmp.Compare(a.Order, b.Order); c != 0 {
			return c
		}
		if c := cmp.Compare(a.CreatedAt, b.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
}

// NextOrder returns the order value that appends a task to the end of the state column.
func NextOrder(tasks []Task, state State) int {
	next := 0
	for _, t := range tasks {
		if t.State == state && t.Order >= next {
			next = t.Order + 1
		}
	}
	return next
}
