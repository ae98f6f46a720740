package ingest

import (
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/calmerge/calmerge-server/errors"
	"github.com/calmerge/calmerge-server/model"
)

type jsonReaderSuite struct {
	suite.Suite
	reader *JSONReader
}

func (suite *jsonReaderSuite) SetupTest() {
	suite.reader = NewJSONReader()
}

func (suite *jsonReaderSuite) TestEventArray() {
	payload := `[
		{"title": "Dr. A on call", "date": "2026-01-05", "start": "0800", "end": "1700",
		 "location": "Foothills Medical Centre", "type": "on_call"},
		{"title": "Stat Holiday", "date": "2026-07-01", "start": null, "end": null}
	]`
	result, err := suite.reader.Parse([]byte(payload))
	suite.Require().NoError(err, "parse should not fail")
	suite.Require().Len(result.Records, 2)
	suite.Equal(RawRecord{
		Title:    "Dr. A on call",
		Date:     model.NewDate(2026, time.January, 5),
		Start:    "0800",
		End:      "1700",
		Location: "Foothills Medical Centre",
		Type:     model.EventTypeOnCall,
		Text:     "Dr. A on call",
	}, result.Records[0])
	suite.Empty(result.Records[1].Start, "null start should stay empty")
	suite.False(result.SourceRevisedAt.Valid, "plain array carries no provenance")
}

func (suite *jsonReaderSuite) TestCalendarObject() {
	payload := `{
		"name": "oncall-2026",
		"source_revised_at": "2025-12-16T00:00:00Z",
		"events": [
			{"title": "Dr. A on call", "date": "2026-01-05", "start": "0800", "end": "1700"}
		]
	}`
	result, err := suite.reader.Parse([]byte(payload))
	suite.Require().NoError(err, "parse should not fail")
	suite.Require().Len(result.Records, 1)
	suite.Require().True(result.SourceRevisedAt.Valid, "provenance should be picked up")
	suite.Equal(time.Date(2025, time.December, 16, 0, 0, 0, 0, time.UTC),
		result.SourceRevisedAt.Time)
}

func (suite *jsonReaderSuite) TestEmptyPayload() {
	_, err := suite.reader.Parse([]byte("   "))
	suite.Require().Error(err, "parse should fail")
	suite.True(errors.IsKind(err, errors.KindUnreadableFile), "should blame unreadable file")
}

func (suite *jsonReaderSuite) TestMalformedPayload() {
	_, err := suite.reader.Parse([]byte(`{"name": "oops"`))
	suite.Require().Error(err, "parse should fail")
	suite.True(errors.IsKind(err, errors.KindUnreadableFile), "should blame unreadable file")
}

func (suite *jsonReaderSuite) TestObjectWithoutEvents() {
	_, err := suite.reader.Parse([]byte(`{"name": "oncall-2026"}`))
	suite.Require().Error(err, "parse should fail")
	suite.True(errors.IsKind(err, errors.KindUnrecognizedStructure),
		"should blame unrecognized structure")
}

func Test_JSONReader(t *testing.T) {
	suite.Run(t, new(jsonReaderSuite))
}

func TestRegistry(t *testing.T) {
	registry := DefaultRegistry()
	formats := registry.Formats()
	if len(formats) != 3 {
		t.Fatalf("Formats() = %v, want three entries", formats)
	}
	for _, format := range []string{FormatDocx, FormatICS, FormatJSON} {
		if _, err := registry.Reader(format); err != nil {
			t.Errorf("Reader(%q) error = %v", format, err)
		}
	}
	_, err := registry.Reader("pdf")
	if err == nil {
		t.Fatal("Reader(pdf) should fail")
	}
	if !errors.IsKind(err, errors.KindUnsupportedFormat) {
		t.Errorf("Reader(pdf) kind = wrong, got %v", err)
	}
}
