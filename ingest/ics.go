package ingest

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/gobuffalo/nulls"
	"go.uber.org/zap"

	"github.com/calmerge/calmerge-server/errors"
	"github.com/calmerge/calmerge-server/logging"
	"github.com/calmerge/calmerge-server/model"
)

// PropEventType is the X-property carrying the event type in exported ICS so
// that a round trip keeps the classification.
const PropEventType = "X-CALMERGE-EVENT-TYPE"

// ICSReader parses iCalendar payloads into raw records, one per VEVENT.
type ICSReader struct{}

// NewICSReader creates an ICSReader.
func NewICSReader() *ICSReader {
	return &ICSReader{}
}

// Parse implements CalendarReader.
func (r *ICSReader) Parse(raw []byte) (ParseResult, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return ParseResult{}, errors.NewUnreadableFileError("empty ics payload", nil, nil)
	}
	cal, err := ical.ParseCalendar(bytes.NewReader(raw))
	if err != nil {
		return ParseResult{}, errors.NewUnreadableFileError("parse ics", err, nil)
	}
	var result ParseResult
	result.Records = make([]RawRecord, 0)
	var latestModified time.Time
	for _, ve := range cal.Events() {
		record, modified, err := parseVEvent(ve)
		if err != nil {
			return ParseResult{}, errors.Wrap(err, "parse vevent", nil)
		}
		if modified.After(latestModified) {
			latestModified = modified
		}
		result.Records = append(result.Records, record)
	}
	if !latestModified.IsZero() {
		result.SourceRevisedAt = nulls.NewTime(latestModified)
	}
	logging.IngestLogger.Debug("ics parsed", zap.Int("record_count", len(result.Records)))
	return result, nil
}

// parseVEvent extracts one RawRecord plus the component's last-modified
// stamp, which is zero when absent.
func parseVEvent(ve *ical.VEvent) (RawRecord, time.Time, error) {
	var record RawRecord
	if p := ve.GetProperty(ical.ComponentPropertySummary); p != nil {
		record.Title = p.Value
	}
	if record.Title == "" {
		return RawRecord{}, time.Time{}, errors.NewUnrecognizedStructureError("vevent without summary", nil)
	}
	if p := ve.GetProperty(ical.ComponentPropertyLocation); p != nil {
		record.Location = p.Value
	}
	if p := ve.GetProperty(ical.ComponentProperty(PropEventType)); p != nil {
		record.Type = eventTypeFromProperty(p.Value)
	}

	dtStart := ve.GetProperty(ical.ComponentPropertyDtStart)
	if dtStart == nil {
		return RawRecord{}, time.Time{}, errors.NewUnrecognizedStructureError("vevent without dtstart",
			errors.Details{"summary": record.Title})
	}
	startDate, startClock, allDay, err := parseICSDateTime(dtStart)
	if err != nil {
		return RawRecord{}, time.Time{}, errors.Wrap(err, "parse dtstart", errors.Details{"summary": record.Title})
	}
	record.Date = startDate
	if !allDay {
		record.Start = startClock
		if dtEnd := ve.GetProperty(ical.ComponentPropertyDtEnd); dtEnd != nil {
			_, endClock, endAllDay, err := parseICSDateTime(dtEnd)
			if err != nil {
				return RawRecord{}, time.Time{}, errors.Wrap(err, "parse dtend", errors.Details{"summary": record.Title})
			}
			if !endAllDay {
				record.End = endClock
			}
		}
	}
	record.Text = record.Title

	var modified time.Time
	if p := ve.GetProperty(ical.ComponentProperty("LAST-MODIFIED")); p != nil {
		if stamp, err := time.Parse("20060102T150405Z", strings.TrimSpace(p.Value)); err == nil {
			modified = stamp
		}
	}
	return record, modified, nil
}

// parseICSDateTime parses a DTSTART/DTEND property value into a date plus a
// compact clock string. allDay is true for date-only values.
func parseICSDateTime(p *ical.IANAProperty) (date model.Date, clock string, allDay bool, err error) {
	value := strings.TrimSpace(p.Value)
	if params, ok := p.ICalParameters["VALUE"]; ok && len(params) > 0 && strings.EqualFold(params[0], "DATE") {
		allDay = true
	}
	if !strings.Contains(value, "T") {
		allDay = true
	}
	var t time.Time
	switch {
	case allDay:
		t, err = time.Parse("20060102", value)
	case strings.HasSuffix(value, "Z"):
		t, err = time.Parse("20060102T150405Z", value)
	default:
		t, err = time.Parse("20060102T150405", value)
	}
	if err != nil {
		return model.Date{}, "", false, errors.NewUnrecognizedStructureError("parse ics date-time",
			errors.Details{"value": value})
	}
	date = model.DateOf(t)
	if !allDay {
		clock = fmt.Sprintf("%02d%02d", t.Hour(), t.Minute())
	}
	return date, clock, allDay, nil
}

// eventTypeFromProperty maps the exported type property back to a type value.
func eventTypeFromProperty(value string) model.EventType {
	return model.EventType(strings.ToLower(strings.TrimSpace(value)))
}
