package compose

import (
	"testing"
	"time"

	"github.com/gobuffalo/nulls"
	"github.com/stretchr/testify/suite"

	"github.com/calmerge/calmerge-server/errors"
	"github.com/calmerge/calmerge-server/model"
)

type composeSuite struct {
	suite.Suite
	calendar model.Calendar
}

func (suite *composeSuite) event(title string, year int, month time.Month, day int, start string) model.Event {
	params := model.EventParams{
		Title: title,
		Date:  model.NewDate(year, month, day),
		Type:  model.EventTypeOnCall,
	}
	if start != "" {
		clock, err := model.ParseClockTime(start)
		suite.Require().NoError(err, "parse clock")
		params.Start = model.NewNullClockTime(clock)
	}
	event, err := model.NewEvent(params)
	suite.Require().NoError(err, "build event")
	return event
}

func (suite *composeSuite) SetupTest() {
	suite.calendar = model.Calendar{
		Name: "oncall",
		Events: []model.Event{
			suite.event("Dr. Old", 2025, time.December, 30, "0800"),
			suite.event("Dr. A", 2026, time.January, 5, "0800"),
			suite.event("Dr. B", 2026, time.March, 9, "0800"),
		},
		SourceRevisedAt: nulls.NewTime(time.Date(2025, time.November, 1, 0, 0, 0, 0, time.UTC)),
	}
}

func (suite *composeSuite) TestReplaceYearKeepsOtherYears() {
	newEvents := []model.Event{
		suite.event("Dr. C", 2026, time.January, 5, "0800"),
	}
	outcome, err := ComposeYear(suite.calendar, 2026, newEvents, nulls.Time{})
	suite.Require().NoError(err, "compose should not fail")
	suite.Require().Len(outcome.Calendar.Events, 2)
	suite.Equal("Dr. Old", outcome.Calendar.Events[0].Title, "other years must survive")
	suite.Equal("Dr. C", outcome.Calendar.Events[1].Title)
	suite.Len(outcome.Diff.Removed, 2, "both 2026 events were replaced")
	suite.Len(outcome.Diff.Added, 1)
}

func (suite *composeSuite) TestIdempotence() {
	newEvents := []model.Event{
		suite.event("Dr. C", 2026, time.January, 5, "0800"),
	}
	first, err := ComposeYear(suite.calendar, 2026, newEvents, nulls.Time{})
	suite.Require().NoError(err)
	second, err := ComposeYear(first.Calendar, 2026, newEvents, nulls.Time{})
	suite.Require().NoError(err)
	suite.True(second.Diff.Empty(), "recomposing the same events should be a no-op")
	suite.Equal(first.Calendar.Events, second.Calendar.Events)
}

func (suite *composeSuite) TestStrayYearAborts() {
	newEvents := []model.Event{
		suite.event("Dr. C", 2026, time.January, 5, "0800"),
		suite.event("Dr. Stray", 2027, time.January, 5, "0800"),
	}
	_, err := ComposeYear(suite.calendar, 2026, newEvents, nulls.Time{})
	suite.Require().Error(err, "stray year should abort")
	suite.True(errors.IsKind(err, errors.KindInvalidYear), "should blame invalid year")
}

func (suite *composeSuite) TestEmptyYearClearsIt() {
	outcome, err := ComposeYear(suite.calendar, 2026, nil, nulls.Time{})
	suite.Require().NoError(err, "composing an empty year should work")
	suite.Require().Len(outcome.Calendar.Events, 1)
	suite.Equal("Dr. Old", outcome.Calendar.Events[0].Title)
	suite.Len(outcome.Diff.Removed, 2)
}

func (suite *composeSuite) TestNewCalendar() {
	newEvents := []model.Event{
		suite.event("Dr. C", 2026, time.January, 5, "0800"),
	}
	revisedAt := nulls.NewTime(time.Date(2025, time.December, 16, 0, 0, 0, 0, time.UTC))
	outcome, err := ComposeYear(model.Calendar{Name: "fresh"}, 2026, newEvents, revisedAt)
	suite.Require().NoError(err)
	suite.Equal("fresh", outcome.Calendar.Name)
	suite.Len(outcome.Calendar.Events, 1)
	suite.Len(outcome.Diff.Added, 1)
	suite.Equal(revisedAt, outcome.Calendar.SourceRevisedAt, "provenance should be set")
}

func (suite *composeSuite) TestRevisedAtKeptWhenAbsent() {
	outcome, err := ComposeYear(suite.calendar, 2026, nil, nulls.Time{})
	suite.Require().NoError(err)
	suite.Equal(suite.calendar.SourceRevisedAt, outcome.Calendar.SourceRevisedAt,
		"absent provenance should not clobber the existing one")
}

func Test_ComposeYear(t *testing.T) {
	suite.Run(t, new(composeSuite))
}
