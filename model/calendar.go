package model

import (
	"sort"
	"time"

	"github.com/gobuffalo/nulls"
)

// Calendar is a named, ordered collection of events, implicitly partitioned
// by the calendar year of each event's date.
type Calendar struct {
	// Name identifies the calendar. Immutable once created.
	Name string `json:"name"`
	// Events in canonical order (see SortEvents).
	Events []Event `json:"events"`
	// SourceRevisedAt is the provenance marker extracted from the most recent
	// ingested source, used to detect no-op re-ingestion.
	SourceRevisedAt nulls.Time `json:"source_revised_at"`
}

// EventsForYear returns the events whose date falls into the given year, in
// the calendar's order.
func (c Calendar) EventsForYear(year int) []Event {
	matching := make([]Event, 0)
	for _, event := range c.Events {
		if event.Date.Year == year {
			matching = append(matching, event)
		}
	}
	return matching
}

// Years returns the distinct event years in ascending order.
func (c Calendar) Years() []int {
	seen := make(map[int]struct{})
	years := make([]int, 0)
	for _, event := range c.Events {
		if _, ok := seen[event.Date.Year]; ok {
			continue
		}
		seen[event.Date.Year] = struct{}{}
		years = append(years, event.Date.Year)
	}
	sort.Ints(years)
	return years
}

// CalendarMetadata is the storage-layer bookkeeping for a persisted calendar.
// It is owned by the store; the core only reads it.
type CalendarMetadata struct {
	// Name of the calendar.
	Name string `json:"name"`
	// Version is incremented on every save.
	Version int `json:"version"`
	// Created is when the calendar was first persisted.
	Created time.Time `json:"created"`
	// LastUpdated is when the calendar was last persisted.
	LastUpdated time.Time `json:"last_updated"`
	// Deleted marks a soft-deleted calendar. Soft-deleted calendars are
	// recoverable until purged.
	Deleted bool `json:"deleted"`
}

// CalendarWithMetadata bundles a Calendar with its storage metadata.
type CalendarWithMetadata struct {
	Calendar Calendar         `json:"calendar"`
	Metadata CalendarMetadata `json:"metadata"`
}
