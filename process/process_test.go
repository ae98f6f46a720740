package process

import (
	"testing"
	"time"

	"github.com/gobuffalo/nulls"
	"github.com/stretchr/testify/suite"

	"github.com/calmerge/calmerge-server/ingest"
	"github.com/calmerge/calmerge-server/model"
	"github.com/calmerge/calmerge-server/template"
)

const testTemplateYAML = `
name: oncall
fallback_type: generic
locations:
  fmc: "Foothills Medical Centre, 1403 29 St NW"
periods:
  AM: {start: "0800", end: "1200"}
  PM: {start: "1300", end: "1700"}
rules:
  - name: on-call
    priority: 1
    match: ["on call"]
    type: on_call
    location: fmc
  - name: clinic-morning
    priority: 2
    match: ["clinic"]
    type: unavailable
    period: AM
  - name: noise
    priority: 5
    match: ["revised"]
    exclude: true
`

type processorSuite struct {
	suite.Suite
	processor *Processor
}

func (suite *processorSuite) SetupTest() {
	tpl, err := template.Parse([]byte(testTemplateYAML))
	suite.Require().NoError(err, "template should parse")
	suite.processor = NewProcessor(tpl)
}

func (suite *processorSuite) record(title, start, end string) ingest.RawRecord {
	return ingest.RawRecord{
		Title: title,
		Date:  model.NewDate(2026, time.January, 5),
		Start: start,
		End:   end,
		Text:  title,
	}
}

func (suite *processorSuite) TestRuleAssignsTypeAndLocation() {
	result := suite.processor.Process([]ingest.RawRecord{
		suite.record("Dr. A on call", "0800", "1700"),
	})
	suite.Require().Len(result.Events, 1)
	event := result.Events[0]
	suite.Equal(model.EventTypeOnCall, event.Type)
	suite.Equal(nulls.NewString("Foothills Medical Centre, 1403 29 St NW"), event.Location,
		"rule location key should resolve through the template")
	suite.Equal(nulls.NewString("Dr. A on call"), event.SourceRaw)
	suite.Empty(result.Rejected)
}

func (suite *processorSuite) TestExplicitFieldsWinOverRule() {
	record := suite.record("Dr. A on call", "0800", "1700")
	record.Type = model.EventTypeUnavailable
	record.Location = "123 Elsewhere Ave"
	result := suite.processor.Process([]ingest.RawRecord{record})
	suite.Require().Len(result.Events, 1)
	suite.Equal(model.EventTypeUnavailable, result.Events[0].Type,
		"explicit type should win over rule type")
	suite.Equal(nulls.NewString("123 Elsewhere Ave"), result.Events[0].Location,
		"explicit location should win over rule location")
}

func (suite *processorSuite) TestRulePeriodFillsTimes() {
	result := suite.processor.Process([]ingest.RawRecord{
		suite.record("Fracture Clinic", "", ""),
	})
	suite.Require().Len(result.Events, 1)
	event := result.Events[0]
	suite.Equal(model.NewNullClockTime(model.NewClockTime(8, 0)), event.Start)
	suite.Equal(model.NewNullClockTime(model.NewClockTime(12, 0)), event.End)
}

func (suite *processorSuite) TestPeriodTokenFillsTimes() {
	result := suite.processor.Process([]ingest.RawRecord{
		suite.record("CCSC PM", "", ""),
	})
	suite.Require().Len(result.Events, 1)
	event := result.Events[0]
	suite.Equal(model.EventTypeGeneric, event.Type, "unmatched record should get the fallback type")
	suite.Equal(model.NewNullClockTime(model.NewClockTime(13, 0)), event.Start)
	suite.Equal(model.NewNullClockTime(model.NewClockTime(17, 0)), event.End)
}

func (suite *processorSuite) TestExcludeRuleDrops() {
	result := suite.processor.Process([]ingest.RawRecord{
		suite.record("Revised December 16, 2025", "", ""),
		suite.record("Dr. A on call", "0800", "1700"),
	})
	suite.Len(result.Events, 1, "excluded record should not produce an event")
	suite.Equal(1, result.ExcludedCount)
	suite.Empty(result.Rejected, "exclusion is not rejection")
}

func (suite *processorSuite) TestPartialFailure() {
	result := suite.processor.Process([]ingest.RawRecord{
		suite.record("Dr. A on call", "0800", "1700"),
		suite.record("Dr. B on call", "2500", "1700"),
		suite.record("", "0800", "1200"),
	})
	suite.Len(result.Events, 1, "good record should survive bad siblings")
	suite.Require().Len(result.Rejected, 2)
	suite.Equal("Dr. B on call", result.Rejected[0].Record.Title)
	suite.NotEmpty(result.Rejected[0].Reason)
	suite.Equal("on-call", result.Rejected[0].Rule, "claiming rule should be reported")
}

func (suite *processorSuite) TestOvernightDetection() {
	result := suite.processor.Process([]ingest.RawRecord{
		suite.record("Dr. N on call", "2200", "0600"),
	})
	suite.Require().Len(result.Events, 1)
	suite.True(result.Events[0].Overnight, "end before start should mark overnight")
}

func (suite *processorSuite) TestCanonicalOrder() {
	result := suite.processor.Process([]ingest.RawRecord{
		suite.record("Dr. B on call", "1300", "1700"),
		suite.record("Dr. A on call", "0800", "1200"),
	})
	suite.Require().Len(result.Events, 2)
	suite.Equal("Dr. A on call", result.Events[0].Title, "events should come out sorted")
}

func Test_Processor(t *testing.T) {
	suite.Run(t, new(processorSuite))
}
