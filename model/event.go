// Package model holds the canonical calendar entities and their invariants.
package model

import (
	"sort"
	"strings"

	"github.com/gobuffalo/nulls"

	"github.com/calmerge/calmerge-server/errors"
)

// EventType classifies an Event. The well-known values below always exist;
// templates may introduce additional ones.
type EventType string

const (
	EventTypeOnCall      EventType = "on_call"
	EventTypeUnavailable EventType = "unavailable"
	// EventTypeGeneric is the fallback for events no rule claimed.
	EventTypeGeneric EventType = "generic"
)

// Event is one scheduled occurrence. Events are immutable value objects; they
// are created by the rule engine via NewEvent and never mutated afterwards.
type Event struct {
	// Title is the human-readable summary. Never empty.
	Title string `json:"title"`
	// Date is the day the event starts on.
	Date Date `json:"date"`
	// Start is the optional start time of day.
	Start NullClockTime `json:"start"`
	// End is the optional end time of day.
	End NullClockTime `json:"end"`
	// Location is the optional place the event happens at.
	Location nulls.String `json:"location"`
	// Type classifies the event.
	Type EventType `json:"type"`
	// Overnight is true iff both times are present and End is before Start,
	// meaning the event crosses midnight into the following day.
	Overnight bool `json:"overnight"`
	// SourceRaw is the original text fragment the event was extracted from,
	// retained for auditability.
	SourceRaw nulls.String `json:"source_raw,omitempty"`
}

// EventParams are the raw inputs for NewEvent.
type EventParams struct {
	Title     string
	Date      Date
	Start     NullClockTime
	End       NullClockTime
	Location  nulls.String
	Type      EventType
	SourceRaw nulls.String
}

// NewEvent validates the given params and builds an Event. Start and End
// being present and equal is a zero-duration marker and fine. End being
// before Start marks an overnight event, not an error.
func NewEvent(params EventParams) (Event, error) {
	if strings.TrimSpace(params.Title) == "" {
		return Event{}, errors.NewMissingFieldError("title")
	}
	if params.Date.IsZero() {
		return Event{}, errors.NewMissingFieldError("date")
	}
	if err := params.Date.Validate(); err != nil {
		return Event{}, errors.Wrap(err, "validate date", errors.Details{"title": params.Title})
	}
	if params.Start.Valid {
		if err := params.Start.ClockTime.Validate(); err != nil {
			return Event{}, errors.Wrap(err, "validate start", errors.Details{"title": params.Title})
		}
	}
	if params.End.Valid {
		if err := params.End.ClockTime.Validate(); err != nil {
			return Event{}, errors.Wrap(err, "validate end", errors.Details{"title": params.Title})
		}
	}
	eventType := params.Type
	if eventType == "" {
		eventType = EventTypeGeneric
	}
	return Event{
		Title:     strings.TrimSpace(params.Title),
		Date:      params.Date,
		Start:     params.Start,
		End:       params.End,
		Location:  params.Location,
		Type:      eventType,
		Overnight: params.Start.Valid && params.End.Valid && params.End.ClockTime.Before(params.Start.ClockTime),
		SourceRaw: params.SourceRaw,
	}, nil
}

// Equal reports structural equality, ignoring SourceRaw which is provenance
// only.
func (e Event) Equal(other Event) bool {
	return e.Title == other.Title &&
		e.Date == other.Date &&
		e.Start == other.Start &&
		e.End == other.End &&
		e.Location == other.Location &&
		e.Type == other.Type &&
		e.Overnight == other.Overnight
}

// sortRank orders events by (date, start-or-midnight, title). The title is
// only a tie-break for determinism.
func sortRank(e Event) (Date, int, string) {
	start := 0
	if e.Start.Valid {
		start = e.Start.ClockTime.MinuteOfDay()
	}
	return e.Date, start, e.Title
}

// SortEvents sorts the given events into canonical order: ascending by date,
// then by start time with absent start counting as midnight.
func SortEvents(events []Event) {
	sort.SliceStable(events, func(i, j int) bool {
		di, si, ti := sortRank(events[i])
		dj, sj, tj := sortRank(events[j])
		if di != dj {
			return di.Before(dj)
		}
		if si != sj {
			return si < sj
		}
		return ti < tj
	})
}
