package store

import (
	"github.com/roach88/magicball/internal/decision"
)

// Changes lists the positional differences between two consecutive results.
//
// Deleted and Modified hold indexes into the previous result; Inserted holds
// indexes into the new result. Each slice is ascending and never nil.
type Changes struct {
	Inserted []int
	Deleted  []int
	Modified []int
}

// Empty reports whether no index changed.
func (c Changes) Empty() bool {
	return len(c.Inserted) == 0 && len(c.Deleted) == 0 && len(c.Modified) == 0
}

// Diff computes the index changes from prev to next by decision identity.
//
// An identifier present only in prev is deleted, one present only in next is
// inserted, and one present in both whose content differs is modified.
// Ordering moves of otherwise unchanged decisions are not reported.
func Diff(prev, next []decision.Decision) Changes {
	c := Changes{
		Inserted: []int{},
		Deleted:  []int{},
		Modified: []int{},
	}

	newByID := make(map[string]int, len(next))
	for i, d := range next {
		newByID[d.ID] = i
	}
	oldIDs := make(map[string]struct{}, len(prev))

	for i, d := range prev {
		oldIDs[d.ID] = struct{}{}
		j, ok := newByID[d.ID]
		if !ok {
			c.Deleted = append(c.Deleted, i)
			continue
		}
		if !d.Equal(next[j]) {
			c.Modified = append(c.Modified, i)
		}
	}
	for j, d := range next {
		if _, ok := oldIDs[d.ID]; !ok {
			c.Inserted = append(c.Inserted, j)
		}
	}
	return c
}
