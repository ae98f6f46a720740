// Package export renders calendars into interchange formats. Exports are
// lossless apart from raw source text: feeding an export back through the
// matching reader and the rule engine yields the same events.
package export

import (
	"encoding/json"
	"fmt"

	ical "github.com/arran4/golang-ical"
	"github.com/gobuffalo/nulls"
	"github.com/google/uuid"

	"github.com/calmerge/calmerge-server/errors"
	"github.com/calmerge/calmerge-server/ingest"
	"github.com/calmerge/calmerge-server/model"
)

// uidNamespace scopes the deterministic event UIDs.
var uidNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://calmerge.invalid/events"))

// eventUID derives a stable UID from the event's occurrence identity so that
// re-exports keep their UIDs.
func eventUID(calendarName string, e model.Event) string {
	start := ""
	if e.Start.Valid {
		start = e.Start.ClockTime.String()
	}
	seed := fmt.Sprintf("%s|%s|%s|%s", calendarName, e.Date, e.Title, start)
	return uuid.NewSHA1(uidNamespace, []byte(seed)).String() + "@calmerge"
}

// ICS renders the calendar as iCalendar.
func ICS(calendar model.Calendar) ([]byte, error) {
	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId("-//calmerge//calendar server//EN")
	cal.SetName(calendar.Name)

	for _, event := range calendar.Events {
		ve := cal.AddEvent(eventUID(calendar.Name, event))
		ve.SetProperty(ical.ComponentPropertySummary, event.Title)
		if event.Location.Valid {
			ve.SetProperty(ical.ComponentPropertyLocation, event.Location.String)
		}
		ve.SetProperty(ical.ComponentProperty(ingest.PropEventType), string(event.Type))
		if event.Start.Valid {
			ve.SetProperty(ical.ComponentPropertyDtStart, dateTimeValue(event.Date, event.Start.ClockTime))
			if event.End.Valid {
				endDate := event.Date
				if event.Overnight {
					endDate = endDate.AddDays(1)
				}
				ve.SetProperty(ical.ComponentPropertyDtEnd, dateTimeValue(endDate, event.End.ClockTime))
			}
		} else {
			ve.SetProperty(ical.ComponentPropertyDtStart, dateValue(event.Date),
				&ical.KeyValues{Key: string(ical.ParameterValue), Value: []string{"DATE"}})
		}
		if calendar.SourceRevisedAt.Valid {
			ve.SetProperty(ical.ComponentProperty("LAST-MODIFIED"),
				calendar.SourceRevisedAt.Time.UTC().Format("20060102T150405Z"))
		}
	}
	return []byte(cal.Serialize()), nil
}

// dateTimeValue renders a floating local date-time.
func dateTimeValue(date model.Date, clock model.ClockTime) string {
	return fmt.Sprintf("%04d%02d%02dT%02d%02d00", date.Year, date.Month, date.Day,
		clock.Hour, clock.Minute)
}

// dateValue renders a date-only value.
func dateValue(date model.Date) string {
	return fmt.Sprintf("%04d%02d%02d", date.Year, date.Month, date.Day)
}

// jsonEvent is the exported event shape. Raw source text is provenance and
// deliberately left out.
type jsonEvent struct {
	Title     string              `json:"title"`
	Date      model.Date          `json:"date"`
	Start     model.NullClockTime `json:"start"`
	End       model.NullClockTime `json:"end"`
	Location  nulls.String        `json:"location"`
	Type      model.EventType     `json:"type"`
	Overnight bool                `json:"overnight"`
}

// jsonCalendar is the exported calendar shape.
type jsonCalendar struct {
	Name            string      `json:"name"`
	Events          []jsonEvent `json:"events"`
	SourceRevisedAt nulls.Time  `json:"source_revised_at"`
}

// JSON renders the calendar as indented JSON.
func JSON(calendar model.Calendar) ([]byte, error) {
	out := jsonCalendar{
		Name:            calendar.Name,
		Events:          make([]jsonEvent, 0, len(calendar.Events)),
		SourceRevisedAt: calendar.SourceRevisedAt,
	}
	for _, event := range calendar.Events {
		out.Events = append(out.Events, jsonEvent{
			Title:     event.Title,
			Date:      event.Date,
			Start:     event.Start,
			End:       event.End,
			Location:  event.Location,
			Type:      event.Type,
			Overnight: event.Overnight,
		})
	}
	raw, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return nil, errors.FromErr("marshal calendar", errors.ErrInternal, errors.KindEncodeJSON, err,
			errors.Details{"calendar": calendar.Name})
	}
	return raw, nil
}
