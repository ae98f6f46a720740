package query

import (
	"testing"
	"time"

	"github.com/gobuffalo/nulls"
	"github.com/stretchr/testify/suite"

	"github.com/calmerge/calmerge-server/model"
)

func mustEvent(t testingT, title string, date model.Date, start, end string) model.Event {
	t.Helper()
	params := model.EventParams{Title: title, Date: date, Type: model.EventTypeOnCall}
	if start != "" {
		clock, err := model.ParseClockTime(start)
		if err != nil {
			t.Fatalf("parse start: %v", err)
		}
		params.Start = model.NewNullClockTime(clock)
	}
	if end != "" {
		clock, err := model.ParseClockTime(end)
		if err != nil {
			t.Fatalf("parse end: %v", err)
		}
		params.End = model.NewNullClockTime(clock)
	}
	event, err := model.NewEvent(params)
	if err != nil {
		t.Fatalf("build event: %v", err)
	}
	return event
}

type testingT interface {
	Helper()
	Fatalf(format string, args ...any)
}

type diffSuite struct {
	suite.Suite
	jan5 model.Date
	jan6 model.Date
}

func (suite *diffSuite) SetupTest() {
	suite.jan5 = model.NewDate(2026, time.January, 5)
	suite.jan6 = model.NewDate(2026, time.January, 6)
}

func (suite *diffSuite) TestIdenticalSets() {
	events := []model.Event{
		mustEvent(suite.T(), "Dr. A on call", suite.jan5, "0800", "1700"),
		mustEvent(suite.T(), "Dr. B on call", suite.jan6, "0800", "1700"),
	}
	result := Diff(events, events)
	suite.True(result.Empty(), "identical sets should produce an empty diff")
	suite.Equal(2, result.UnchangedCount)
}

func (suite *diffSuite) TestAddedAndRemoved() {
	oldEvents := []model.Event{
		mustEvent(suite.T(), "Dr. A on call", suite.jan5, "0800", "1700"),
	}
	newEvents := []model.Event{
		mustEvent(suite.T(), "Dr. B on call", suite.jan6, "0800", "1700"),
	}
	result := Diff(oldEvents, newEvents)
	suite.Require().Len(result.Added, 1)
	suite.Require().Len(result.Removed, 1)
	suite.Equal("Dr. B on call", result.Added[0].Title)
	suite.Equal("Dr. A on call", result.Removed[0].Title)
	suite.Zero(result.UnchangedCount)
}

func (suite *diffSuite) TestMovedStartIsChange() {
	oldEvents := []model.Event{
		mustEvent(suite.T(), "Dr. A on call", suite.jan5, "0800", "1700"),
	}
	newEvents := []model.Event{
		mustEvent(suite.T(), "Dr. A on call", suite.jan5, "0900", "1700"),
	}
	result := Diff(oldEvents, newEvents)
	suite.Require().Len(result.Changed, 1, "moved start should be a change, not add plus remove")
	suite.Empty(result.Added)
	suite.Empty(result.Removed)
	suite.Equal("0800", result.Changed[0].Before.Start.ClockTime.String())
	suite.Equal("0900", result.Changed[0].After.Start.ClockTime.String())
}

func (suite *diffSuite) TestChangedEndSameKey() {
	oldEvents := []model.Event{
		mustEvent(suite.T(), "Dr. A on call", suite.jan5, "0800", "1700"),
	}
	newEvents := []model.Event{
		mustEvent(suite.T(), "Dr. A on call", suite.jan5, "0800", "1600"),
	}
	result := Diff(oldEvents, newEvents)
	suite.Require().Len(result.Changed, 1)
	suite.Empty(result.Added)
	suite.Empty(result.Removed)
}

func (suite *diffSuite) TestSameTitleTwiceOnOneDay() {
	oldEvents := []model.Event{
		mustEvent(suite.T(), "OR", suite.jan5, "0700", "1100"),
		mustEvent(suite.T(), "OR", suite.jan5, "1300", "1500"),
	}
	newEvents := []model.Event{
		mustEvent(suite.T(), "OR", suite.jan5, "0700", "1100"),
	}
	result := Diff(oldEvents, newEvents)
	suite.Equal(1, result.UnchangedCount)
	suite.Require().Len(result.Removed, 1, "the unmatched sibling should be removed")
	suite.Equal("1300", result.Removed[0].Start.ClockTime.String())
}

func Test_Diff(t *testing.T) {
	suite.Run(t, new(diffSuite))
}

func TestStats(t *testing.T) {
	jan5 := model.NewDate(2026, time.January, 5)
	feb2 := model.NewDate(2026, time.February, 2)
	overnight := mustEvent(t, "Night", feb2, "2200", "0600")
	untimed := mustEvent(t, "Holiday", jan5, "", "")
	timed := mustEvent(t, "Dr. A on call", jan5, "0800", "1700")

	stats := Stats([]model.Event{timed, untimed, overnight})
	if stats.TotalCount != 3 {
		t.Errorf("TotalCount = %d, want 3", stats.TotalCount)
	}
	if stats.CountsByType[model.EventTypeOnCall] != 3 {
		t.Errorf("CountsByType[on_call] = %d, want 3", stats.CountsByType[model.EventTypeOnCall])
	}
	if stats.CountsByMonth[time.January] != 2 || stats.CountsByMonth[time.February] != 1 {
		t.Errorf("CountsByMonth = %v, want 2 in January, 1 in February", stats.CountsByMonth)
	}
	if stats.OvernightCount != 1 {
		t.Errorf("OvernightCount = %d, want 1", stats.OvernightCount)
	}
	if stats.UntimedCount != 1 {
		t.Errorf("UntimedCount = %d, want 1", stats.UntimedCount)
	}
	if stats.EarliestDate != jan5 {
		t.Errorf("EarliestDate = %v, want %v", stats.EarliestDate, jan5)
	}
	if stats.LatestDate != feb2 {
		t.Errorf("LatestDate = %v, want %v", stats.LatestDate, feb2)
	}
}

func TestStats_empty(t *testing.T) {
	stats := Stats(nil)
	if stats.TotalCount != 0 {
		t.Errorf("TotalCount = %d, want 0", stats.TotalCount)
	}
	if !stats.EarliestDate.IsZero() || !stats.LatestDate.IsZero() {
		t.Error("date bounds should stay zero for an empty set")
	}
}

func TestFilters(t *testing.T) {
	jan5 := model.NewDate(2026, time.January, 5)
	feb2 := model.NewDate(2026, time.February, 2)
	a := mustEvent(t, "A", jan5, "0800", "1200")
	b := mustEvent(t, "B", feb2, "0800", "1200")

	byRange := FilterByRange([]model.Event{a, b}, jan5, model.NewDate(2026, time.January, 31))
	if len(byRange) != 1 || byRange[0].Title != "A" {
		t.Errorf("FilterByRange() = %v, want only A", byRange)
	}
	byType := FilterByType([]model.Event{a, b}, model.EventTypeGeneric)
	if len(byType) != 0 {
		t.Errorf("FilterByType() = %v, want empty", byType)
	}
	byYear := FilterByYear([]model.Event{a, b}, 2026)
	if len(byYear) != 2 {
		t.Errorf("FilterByYear() = %v, want both", byYear)
	}
	if got := FilterByYear([]model.Event{a, b}, 2025); len(got) != 0 {
		t.Errorf("FilterByYear() = %v, want empty", got)
	}
}

func TestSearch(t *testing.T) {
	jan5 := model.NewDate(2026, time.January, 5)
	a := mustEvent(t, "Dr. Smith on call", jan5, "0800", "1200")
	b := mustEvent(t, "Clinic", jan5, "0800", "1200")
	b.Location = nulls.NewString("Smithfield Campus")
	c := mustEvent(t, "Rounds", jan5, "0800", "1200")

	got := Search([]model.Event{a, b, c}, "smith")
	if len(got) != 2 {
		t.Fatalf("Search() matched %d events, want 2", len(got))
	}
	if got[0].Title != "Dr. Smith on call" || got[1].Title != "Clinic" {
		t.Errorf("Search() = %v, want title and location matches in order", got)
	}
	if got := Search([]model.Event{a, b, c}, "radiology"); len(got) != 0 {
		t.Errorf("Search() = %v, want empty", got)
	}
}
