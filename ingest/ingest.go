// Package ingest turns raw source payloads into raw candidate records. The
// readers extract structure only; classification is the rule engine's job.
package ingest

import (
	"github.com/gobuffalo/nulls"

	"github.com/calmerge/calmerge-server/errors"
	"github.com/calmerge/calmerge-server/model"
)

// Source format selectors.
const (
	FormatDocx = "docx"
	FormatICS  = "ics"
	FormatJSON = "json"
)

// RawRecord is a loosely-typed candidate event as extracted from a source,
// not yet validated. Time fields keep their compact "HHMM" source form and
// may be empty. Explicit fields always win over rule defaults later on.
type RawRecord struct {
	// Title of the candidate event.
	Title string `json:"title"`
	// Date the candidate falls on.
	Date model.Date `json:"date"`
	// Start time in "HHMM" form, empty when absent.
	Start string `json:"start,omitempty"`
	// End time in "HHMM" form, empty when absent.
	End string `json:"end,omitempty"`
	// Location as stated by the source, empty when absent.
	Location string `json:"location,omitempty"`
	// Type as stated by the source. Most sources leave this empty and let the
	// rule engine classify; structured sources like JSON may carry it.
	Type model.EventType `json:"type,omitempty"`
	// Text is the original source fragment the record was extracted from.
	Text string `json:"text,omitempty"`
}

// ParseResult is what a CalendarReader produces from one payload.
type ParseResult struct {
	// Records are the extracted raw candidates.
	Records []RawRecord
	// SourceRevisedAt is the provenance marker of the source, e.g. a revised
	// footer in a document, if the source carries one.
	SourceRevisedAt nulls.Time
}

// CalendarReader parses one raw payload into raw records.
type CalendarReader interface {
	// Parse extracts raw records from the given payload. It fails with kind
	// KindUnreadableFile when the payload cannot be opened or decoded and with
	// KindUnrecognizedStructure when it decodes but lacks the expected shape.
	Parse(raw []byte) (ParseResult, error)
}

// Registry maps format selectors to readers.
type Registry struct {
	readers map[string]CalendarReader
	order   []string
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{readers: make(map[string]CalendarReader)}
}

// DefaultRegistry creates a Registry with all built-in readers registered.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(FormatDocx, NewDocxReader())
	r.Register(FormatICS, NewICSReader())
	r.Register(FormatJSON, NewJSONReader())
	return r
}

// Register adds a reader under the given format selector, replacing any
// previous one.
func (r *Registry) Register(format string, reader CalendarReader) {
	if _, ok := r.readers[format]; !ok {
		r.order = append(r.order, format)
	}
	r.readers[format] = reader
}

// Reader returns the reader for the given format selector.
func (r *Registry) Reader(format string) (CalendarReader, error) {
	reader, ok := r.readers[format]
	if !ok {
		return nil, errors.NewUnsupportedFormatError(format, r.Formats())
	}
	return reader, nil
}

// Formats returns all registered format selectors in registration order.
func (r *Registry) Formats() []string {
	formats := make([]string, len(r.order))
	copy(formats, r.order)
	return formats
}

// Parse resolves the reader for the given format and parses the payload.
func (r *Registry) Parse(format string, raw []byte) (ParseResult, error) {
	reader, err := r.Reader(format)
	if err != nil {
		return ParseResult{}, err
	}
	result, err := reader.Parse(raw)
	if err != nil {
		return ParseResult{}, errors.Wrap(err, "parse", errors.Details{"format": format})
	}
	return result, nil
}
