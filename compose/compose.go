// Package compose merges a freshly processed year of events into an existing
// calendar. The target year is replaced wholesale; all other years are kept
// untouched.
package compose

import (
	"github.com/gobuffalo/nulls"
	"go.uber.org/zap"

	"github.com/calmerge/calmerge-server/errors"
	"github.com/calmerge/calmerge-server/logging"
	"github.com/calmerge/calmerge-server/model"
	"github.com/calmerge/calmerge-server/query"
)

// Outcome is the result of one compose run.
type Outcome struct {
	// Calendar after the merge, with events in canonical order.
	Calendar model.Calendar `json:"calendar"`
	// Diff of the target year: new events against the ones they replaced.
	Diff query.DiffResult `json:"diff"`
	// Year that was replaced.
	Year int `json:"year"`
}

// ComposeYear replaces the given year of the calendar with the new events.
// Every new event must fall into the target year; a single stray date aborts
// the whole run before anything is touched. Composing the same events twice
// yields the same calendar and an empty diff.
func ComposeYear(calendar model.Calendar, year int, newEvents []model.Event,
	sourceRevisedAt nulls.Time) (Outcome, error) {
	strays := make([]string, 0)
	for _, event := range newEvents {
		if event.Date.Year != year {
			strays = append(strays, event.Date.String())
		}
	}
	if len(strays) > 0 {
		return Outcome{}, errors.NewInvalidYearError("events outside target year",
			errors.Details{"year": year, "stray_dates": strays})
	}

	kept := make([]model.Event, 0, len(calendar.Events))
	replaced := make([]model.Event, 0)
	for _, event := range calendar.Events {
		if event.Date.Year == year {
			replaced = append(replaced, event)
		} else {
			kept = append(kept, event)
		}
	}

	merged := make([]model.Event, 0, len(kept)+len(newEvents))
	merged = append(merged, kept...)
	merged = append(merged, newEvents...)
	model.SortEvents(merged)

	outcome := Outcome{
		Calendar: model.Calendar{
			Name:            calendar.Name,
			Events:          merged,
			SourceRevisedAt: calendar.SourceRevisedAt,
		},
		Diff: query.Diff(replaced, newEvents),
		Year: year,
	}
	if sourceRevisedAt.Valid {
		outcome.Calendar.SourceRevisedAt = sourceRevisedAt
	}
	logging.ComposeLogger.Debug("composed year",
		zap.String("calendar", calendar.Name),
		zap.Int("year", year),
		zap.Int("replaced_count", len(replaced)),
		zap.Int("new_count", len(newEvents)),
		zap.Int("added", len(outcome.Diff.Added)),
		zap.Int("removed", len(outcome.Diff.Removed)),
		zap.Int("changed", len(outcome.Diff.Changed)))
	return outcome, nil
}
