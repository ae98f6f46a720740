// Package process applies a template's rules to raw records and builds
// validated events from them.
package process

import (
	"github.com/gobuffalo/nulls"
	"go.uber.org/zap"

	"github.com/calmerge/calmerge-server/errors"
	"github.com/calmerge/calmerge-server/ingest"
	"github.com/calmerge/calmerge-server/logging"
	"github.com/calmerge/calmerge-server/model"
	"github.com/calmerge/calmerge-server/template"
)

// RejectedRecord is a raw record that failed validation, kept for reporting.
type RejectedRecord struct {
	// Record as it came out of the reader.
	Record ingest.RawRecord `json:"record"`
	// Reason it was rejected.
	Reason string `json:"reason"`
	// Rule that claimed the record, empty when no rule matched.
	Rule string `json:"rule,omitempty"`
}

// Result is the outcome of one processing run. A run only fails as a whole
// when its inputs do; individual bad records land in Rejected instead.
type Result struct {
	// Events that passed validation, in canonical order.
	Events []model.Event `json:"events"`
	// Rejected records with their reasons.
	Rejected []RejectedRecord `json:"rejected"`
	// ExcludedCount is the number of records dropped by exclusion rules.
	ExcludedCount int `json:"excluded_count"`
}

// Processor turns raw records into events using one template.
type Processor struct {
	tpl *template.Template
}

// NewProcessor creates a Processor for the given template.
func NewProcessor(tpl *template.Template) *Processor {
	return &Processor{tpl: tpl}
}

// Process runs all records through the rule set. Fields stated explicitly by
// the source always win over rule defaults; rules only fill gaps.
func (p *Processor) Process(records []ingest.RawRecord) Result {
	result := Result{
		Events:   make([]model.Event, 0, len(records)),
		Rejected: make([]RejectedRecord, 0),
	}
	for _, record := range records {
		text := record.Text
		if text == "" {
			text = record.Title
		}
		rule, matched := p.tpl.FirstMatch(text)
		if matched && rule.Exclude {
			result.ExcludedCount++
			continue
		}
		ruleName := ""
		if matched {
			ruleName = rule.Name
		}
		event, err := p.buildEvent(record, rule, matched, text)
		if err != nil {
			result.Rejected = append(result.Rejected, RejectedRecord{
				Record: record,
				Reason: rejectionReason(err),
				Rule:   ruleName,
			})
			continue
		}
		result.Events = append(result.Events, event)
	}
	model.SortEvents(result.Events)
	logging.ProcessLogger.Debug("processed records",
		zap.String("template", p.tpl.Name),
		zap.Int("record_count", len(records)),
		zap.Int("event_count", len(result.Events)),
		zap.Int("rejected_count", len(result.Rejected)),
		zap.Int("excluded_count", result.ExcludedCount))
	return result
}

// buildEvent assembles the event params for one record and validates them.
func (p *Processor) buildEvent(record ingest.RawRecord, rule *template.Rule,
	matched bool, text string) (model.Event, error) {
	params := model.EventParams{
		Title: record.Title,
		Date:  record.Date,
	}
	if text != "" {
		params.SourceRaw = nulls.NewString(text)
	}

	params.Type = record.Type
	if params.Type == "" && matched {
		params.Type = rule.Type
	}
	if params.Type == "" {
		params.Type = p.tpl.FallbackType
	}

	location := record.Location
	if location == "" && matched {
		location = rule.Location
	}
	if location != "" {
		params.Location = nulls.NewString(p.tpl.ResolveLocation(location))
	}

	start, end, err := p.resolveTimes(record, rule, matched, text)
	if err != nil {
		return model.Event{}, err
	}
	params.Start = start
	params.End = end

	return model.NewEvent(params)
}

// resolveTimes determines the record's times: explicit clock strings first,
// then the matched rule's period, then a period token in the record's text.
func (p *Processor) resolveTimes(record ingest.RawRecord, rule *template.Rule,
	matched bool, text string) (model.NullClockTime, model.NullClockTime, error) {
	var start, end model.NullClockTime
	if record.Start != "" {
		clock, err := model.ParseClockTime(record.Start)
		if err != nil {
			return start, end, errors.Wrap(err, "parse start time", errors.Details{"start": record.Start})
		}
		start = model.NewNullClockTime(clock)
	}
	if record.End != "" {
		clock, err := model.ParseClockTime(record.End)
		if err != nil {
			return start, end, errors.Wrap(err, "parse end time", errors.Details{"end": record.End})
		}
		end = model.NewNullClockTime(clock)
	}
	if start.Valid || end.Valid {
		return start, end, nil
	}
	periodKey := ""
	if matched && rule.Period != "" {
		periodKey = rule.Period
	} else if key, ok := p.tpl.PeriodInText(text); ok {
		periodKey = key
	}
	if periodKey != "" {
		if periodStart, periodEnd, ok := p.tpl.PeriodTimes(periodKey); ok {
			start = model.NewNullClockTime(periodStart)
			end = model.NewNullClockTime(periodEnd)
		}
	}
	return start, end, nil
}

// rejectionReason renders a stable, human-readable reason from a validation
// error.
func rejectionReason(err error) string {
	if e, ok := errors.Cast(err); ok {
		return e.Message
	}
	return err.Error()
}
