package ingest

import (
	"bytes"
	"encoding/json"

	"github.com/gobuffalo/nulls"

	"github.com/calmerge/calmerge-server/errors"
	"github.com/calmerge/calmerge-server/model"
)

// JSONReader parses JSON payloads: either a plain array of event objects or a
// calendar object with an events array, which is what the JSON export emits.
type JSONReader struct{}

// NewJSONReader creates a JSONReader.
func NewJSONReader() *JSONReader {
	return &JSONReader{}
}

// jsonEvent mirrors the exported event shape.
type jsonEvent struct {
	Title    string              `json:"title"`
	Date     model.Date          `json:"date"`
	Start    model.NullClockTime `json:"start"`
	End      model.NullClockTime `json:"end"`
	Location nulls.String        `json:"location"`
	Type     model.EventType     `json:"type"`
}

// jsonCalendar mirrors the exported calendar shape.
type jsonCalendar struct {
	Name            string      `json:"name"`
	Events          []jsonEvent `json:"events"`
	SourceRevisedAt nulls.Time  `json:"source_revised_at"`
}

// Parse implements CalendarReader.
func (r *JSONReader) Parse(raw []byte) (ParseResult, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return ParseResult{}, errors.NewUnreadableFileError("empty json payload", nil, nil)
	}
	var events []jsonEvent
	var revisedAt nulls.Time
	if trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &events); err != nil {
			return ParseResult{}, errors.NewUnreadableFileError("decode json payload", err, nil)
		}
	} else {
		var cal jsonCalendar
		if err := json.Unmarshal(trimmed, &cal); err != nil {
			return ParseResult{}, errors.NewUnreadableFileError("decode json payload", err, nil)
		}
		if cal.Events == nil {
			return ParseResult{}, errors.NewUnrecognizedStructureError("json payload without events", nil)
		}
		events = cal.Events
		revisedAt = cal.SourceRevisedAt
	}
	result := ParseResult{
		Records:         make([]RawRecord, 0, len(events)),
		SourceRevisedAt: revisedAt,
	}
	for _, event := range events {
		record := RawRecord{
			Title:    event.Title,
			Date:     event.Date,
			Location: event.Location.String,
			Type:     event.Type,
			Text:     event.Title,
		}
		if event.Start.Valid {
			record.Start = event.Start.ClockTime.String()
		}
		if event.End.Valid {
			record.End = event.End.ClockTime.String()
		}
		result.Records = append(result.Records, record)
	}
	return result, nil
}
