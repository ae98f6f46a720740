// Package query holds pure read-model functions over event sets: diffing and
// statistics. Nothing in here mutates its inputs.
package query

import (
	"fmt"

	"github.com/calmerge/calmerge-server/model"
)

// EventChange pairs the old and new version of one event that kept its
// identity but changed details.
type EventChange struct {
	Before model.Event `json:"before"`
	After  model.Event `json:"after"`
}

// DiffResult describes how a new event set differs from an old one.
type DiffResult struct {
	// Added events that only exist in the new set.
	Added []model.Event `json:"added"`
	// Removed events that only exist in the old set.
	Removed []model.Event `json:"removed"`
	// Changed events that exist in both sets under the same identity but with
	// different details.
	Changed []EventChange `json:"changed"`
	// UnchangedCount is the number of events present identically in both sets.
	UnchangedCount int `json:"unchanged_count"`
}

// Empty reports whether the diff found no differences at all.
func (r DiffResult) Empty() bool {
	return len(r.Added) == 0 && len(r.Removed) == 0 && len(r.Changed) == 0
}

// businessKey identifies one occurrence: the same title starting at the same
// time on the same day is the same occurrence.
func businessKey(e model.Event) string {
	start := ""
	if e.Start.Valid {
		start = e.Start.ClockTime.String()
	}
	return fmt.Sprintf("%s|%s|%s", e.Date, e.Title, start)
}

// identityKey identifies an event across detail changes: same day, same
// title.
func identityKey(e model.Event) string {
	return fmt.Sprintf("%s|%s", e.Date, e.Title)
}

// Diff compares the new event set against the old one. Events matching on the
// full business key count as unchanged when structurally equal and as changed
// otherwise; events left over are matched once more on identity alone so that
// a moved start time shows up as a change rather than a remove plus add.
func Diff(oldEvents, newEvents []model.Event) DiffResult {
	result := DiffResult{
		Added:   make([]model.Event, 0),
		Removed: make([]model.Event, 0),
		Changed: make([]EventChange, 0),
	}

	oldByKey := make(map[string][]model.Event, len(oldEvents))
	for _, event := range oldEvents {
		key := businessKey(event)
		oldByKey[key] = append(oldByKey[key], event)
	}

	remainingNew := make([]model.Event, 0)
	for _, event := range newEvents {
		key := businessKey(event)
		candidates := oldByKey[key]
		if len(candidates) == 0 {
			remainingNew = append(remainingNew, event)
			continue
		}
		matched := candidates[0]
		oldByKey[key] = candidates[1:]
		if matched.Equal(event) {
			result.UnchangedCount++
		} else {
			result.Changed = append(result.Changed, EventChange{Before: matched, After: event})
		}
	}

	remainingOldByIdentity := make(map[string][]model.Event)
	remainingOldOrder := make([]model.Event, 0)
	for _, candidates := range oldByKey {
		remainingOldOrder = append(remainingOldOrder, candidates...)
	}
	model.SortEvents(remainingOldOrder)
	for _, event := range remainingOldOrder {
		key := identityKey(event)
		remainingOldByIdentity[key] = append(remainingOldByIdentity[key], event)
	}

	for _, event := range remainingNew {
		key := identityKey(event)
		candidates := remainingOldByIdentity[key]
		if len(candidates) == 0 {
			result.Added = append(result.Added, event)
			continue
		}
		result.Changed = append(result.Changed, EventChange{Before: candidates[0], After: event})
		remainingOldByIdentity[key] = candidates[1:]
	}

	for _, event := range remainingOldOrder {
		key := identityKey(event)
		candidates := remainingOldByIdentity[key]
		if len(candidates) > 0 && candidates[0].Equal(event) {
			// Still unclaimed after both passes.
			result.Removed = append(result.Removed, event)
			remainingOldByIdentity[key] = candidates[1:]
		}
	}

	model.SortEvents(result.Added)
	model.SortEvents(result.Removed)
	return result
}
