package calendarsvc

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/gobuffalo/nulls"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"
	"go.uber.org/zap"

	"github.com/calmerge/calmerge-server/errors"
	"github.com/calmerge/calmerge-server/export"
	"github.com/calmerge/calmerge-server/ingest"
	"github.com/calmerge/calmerge-server/model"
	"github.com/calmerge/calmerge-server/query"
	"github.com/calmerge/calmerge-server/stores"
	"github.com/calmerge/calmerge-server/template"
)

const testTemplateYAML = `
name: oncall
fallback_type: generic
rules:
  - name: on-call
    priority: 1
    match: ["on call"]
    type: on_call
`

// storeStub mocks Store.
type storeStub struct {
	mock.Mock
}

func (stub *storeStub) GetCalendarByName(name string) (model.CalendarWithMetadata, error) {
	args := stub.Called(name)
	return args.Get(0).(model.CalendarWithMetadata), args.Error(1)
}

func (stub *storeStub) SaveCalendar(calendar model.Calendar) (model.CalendarMetadata, error) {
	args := stub.Called(calendar)
	return args.Get(0).(model.CalendarMetadata), args.Error(1)
}

func (stub *storeStub) ListCalendars(includeDeleted bool) ([]model.CalendarMetadata, error) {
	args := stub.Called(includeDeleted)
	return args.Get(0).([]model.CalendarMetadata), args.Error(1)
}

func (stub *storeStub) ListCalendarVersions(name string) ([]stores.CalendarVersion, error) {
	args := stub.Called(name)
	return args.Get(0).([]stores.CalendarVersion), args.Error(1)
}

func (stub *storeStub) GetCalendarVersion(name string, version int) (model.Calendar, error) {
	args := stub.Called(name, version)
	return args.Get(0).(model.Calendar), args.Error(1)
}

func (stub *storeStub) SetCalendarDeleted(name string, deleted bool) error {
	args := stub.Called(name, deleted)
	return args.Error(0)
}

func (stub *storeStub) PurgeCalendar(name string) error {
	args := stub.Called(name)
	return args.Error(0)
}

// notifierStub mocks Notifier.
type notifierStub struct {
	mock.Mock
}

func (stub *notifierStub) NotifyCalendarChanged(name string, metadata model.CalendarMetadata,
	diff query.DiffResult) {
	stub.Called(name, metadata, diff)
}

type serviceSuite struct {
	suite.Suite
	storeStub    *storeStub
	notifierStub *notifierStub
	service      *Service
}

func (suite *serviceSuite) SetupTest() {
	dir := suite.T().TempDir()
	err := os.WriteFile(filepath.Join(dir, "oncall.yaml"), []byte(testTemplateYAML), 0644)
	suite.Require().NoError(err, "write template")
	templates, err := template.NewStore(dir, "oncall")
	suite.Require().NoError(err, "create template store")
	suite.storeStub = &storeStub{}
	suite.notifierStub = &notifierStub{}
	suite.service = NewService(zap.NewNop(), suite.storeStub, ingest.DefaultRegistry(),
		templates, suite.notifierStub)
}

func (suite *serviceSuite) jsonPayload() []byte {
	return []byte(`{
		"name": "oncall",
		"source_revised_at": "2025-12-16T00:00:00Z",
		"events": [
			{"title": "Dr. A on call", "date": "2026-01-05", "start": "0800", "end": "1700"}
		]
	}`)
}

func (suite *serviceSuite) ingestParams() IngestParams {
	return IngestParams{
		CalendarName: "oncall",
		Year:         2026,
		Format:       ingest.FormatJSON,
		Payload:      suite.jsonPayload(),
	}
}

func (suite *serviceSuite) TestIngestNewCalendar() {
	suite.storeStub.On("GetCalendarByName", "oncall").
		Return(model.CalendarWithMetadata{}, errors.NewCalendarNotFoundError("oncall")).Once()
	suite.storeStub.On("SaveCalendar", mock.MatchedBy(func(calendar model.Calendar) bool {
		return calendar.Name == "oncall" && len(calendar.Events) == 1
	})).Return(model.CalendarMetadata{Name: "oncall", Version: 1}, nil).Once()
	suite.notifierStub.On("NotifyCalendarChanged", "oncall", mock.Anything, mock.Anything).Once()
	defer suite.storeStub.AssertExpectations(suite.T())
	defer suite.notifierStub.AssertExpectations(suite.T())

	result, err := suite.service.IngestAndCompose(context.Background(), suite.ingestParams())
	suite.Require().NoError(err, "ingest should not fail")
	suite.False(result.NoOp)
	suite.Equal(1, result.Metadata.Version)
	suite.Len(result.Diff.Added, 1)
	suite.Empty(result.Rejected)
}

func (suite *serviceSuite) TestIngestStaleSourceIsNoOp() {
	stored := model.CalendarWithMetadata{
		Calendar: model.Calendar{
			Name:            "oncall",
			SourceRevisedAt: nulls.NewTime(time.Date(2025, time.December, 20, 0, 0, 0, 0, time.UTC)),
		},
		Metadata: model.CalendarMetadata{Name: "oncall", Version: 3},
	}
	suite.storeStub.On("GetCalendarByName", "oncall").Return(stored, nil).Once()
	defer suite.storeStub.AssertExpectations(suite.T())

	result, err := suite.service.IngestAndCompose(context.Background(), suite.ingestParams())
	suite.Require().NoError(err, "stale source should not fail")
	suite.True(result.NoOp, "older source should be skipped")
	suite.storeStub.AssertNotCalled(suite.T(), "SaveCalendar", mock.Anything)
}

func (suite *serviceSuite) TestIngestForceOverridesStaleness() {
	stored := model.CalendarWithMetadata{
		Calendar: model.Calendar{
			Name:            "oncall",
			SourceRevisedAt: nulls.NewTime(time.Date(2025, time.December, 20, 0, 0, 0, 0, time.UTC)),
		},
		Metadata: model.CalendarMetadata{Name: "oncall", Version: 3},
	}
	suite.storeStub.On("GetCalendarByName", "oncall").Return(stored, nil).Once()
	suite.storeStub.On("SaveCalendar", mock.Anything).
		Return(model.CalendarMetadata{Name: "oncall", Version: 4}, nil).Once()
	suite.notifierStub.On("NotifyCalendarChanged", "oncall", mock.Anything, mock.Anything).Once()
	defer suite.storeStub.AssertExpectations(suite.T())

	params := suite.ingestParams()
	params.Force = true
	result, err := suite.service.IngestAndCompose(context.Background(), params)
	suite.Require().NoError(err, "forced ingest should not fail")
	suite.False(result.NoOp)
}

func (suite *serviceSuite) TestIngestStrayYearFails() {
	suite.storeStub.On("GetCalendarByName", "oncall").
		Return(model.CalendarWithMetadata{}, errors.NewCalendarNotFoundError("oncall")).Once()
	defer suite.storeStub.AssertExpectations(suite.T())

	params := suite.ingestParams()
	params.Year = 2027
	_, err := suite.service.IngestAndCompose(context.Background(), params)
	suite.Require().Error(err, "stray year should fail")
	suite.True(errors.IsKind(err, errors.KindInvalidYear), "should blame invalid year")
	suite.storeStub.AssertNotCalled(suite.T(), "SaveCalendar", mock.Anything)
}

func (suite *serviceSuite) TestIngestUnknownFormat() {
	params := suite.ingestParams()
	params.Format = "pdf"
	_, err := suite.service.IngestAndCompose(context.Background(), params)
	suite.Require().Error(err, "unknown format should fail")
	suite.True(errors.IsKind(err, errors.KindUnsupportedFormat), "should blame unsupported format")
}

func (suite *serviceSuite) TestIngestMissingName() {
	params := suite.ingestParams()
	params.CalendarName = ""
	_, err := suite.service.IngestAndCompose(context.Background(), params)
	suite.Require().Error(err, "missing name should fail")
	suite.True(errors.IsKind(err, errors.KindMissingField), "should blame missing field")
}

func (suite *serviceSuite) TestIngestSerializesPerCalendar() {
	release := make(chan struct{})
	firstInSave := make(chan struct{})
	suite.storeStub.On("GetCalendarByName", "oncall").
		Return(model.CalendarWithMetadata{}, errors.NewCalendarNotFoundError("oncall")).Twice()
	suite.storeStub.On("SaveCalendar", mock.Anything).
		Run(func(_ mock.Arguments) {
			select {
			case firstInSave <- struct{}{}:
				<-release
			default:
			}
		}).
		Return(model.CalendarMetadata{Name: "oncall", Version: 1}, nil).Twice()
	suite.notifierStub.On("NotifyCalendarChanged", "oncall", mock.Anything, mock.Anything).Twice()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, err := suite.service.IngestAndCompose(context.Background(), suite.ingestParams())
		suite.NoError(err, "first ingest should not fail")
	}()
	<-firstInSave

	secondDone := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer close(secondDone)
		_, err := suite.service.IngestAndCompose(context.Background(), suite.ingestParams())
		suite.NoError(err, "second ingest should not fail")
	}()
	select {
	case <-secondDone:
		suite.Fail("second ingest should wait for the first one")
	case <-time.After(50 * time.Millisecond):
	}
	close(release)
	wg.Wait()
}

func (suite *serviceSuite) TestIngestLockHonorsContext() {
	ctx, cancel := context.WithCancel(context.Background())
	lock := suite.service.lockForCalendar("oncall")
	suite.Require().NoError(lock.Acquire(context.Background(), 1))
	defer lock.Release(1)
	cancel()
	_, err := suite.service.IngestAndCompose(ctx, suite.ingestParams())
	suite.Require().Error(err, "cancelled context should abort")
	suite.True(errors.IsKind(err, errors.KindContextAborted), "should blame aborted context")
}

func (suite *serviceSuite) TestExport() {
	calendar := model.CalendarWithMetadata{
		Calendar: model.Calendar{Name: "oncall"},
		Metadata: model.CalendarMetadata{Name: "oncall", Version: 1},
	}
	suite.storeStub.On("GetCalendarByName", "oncall").Return(calendar, nil).Twice()
	defer suite.storeStub.AssertExpectations(suite.T())

	icsPayload, err := suite.service.Export("oncall", ExportFormatICS)
	suite.Require().NoError(err, "ics export should not fail")
	suite.Contains(string(icsPayload), "BEGIN:VCALENDAR")
	jsonPayload, err := suite.service.Export("oncall", ExportFormatJSON)
	suite.Require().NoError(err, "json export should not fail")
	suite.Contains(string(jsonPayload), `"oncall"`)
}

func (suite *serviceSuite) TestExportUnknownFormat() {
	calendar := model.CalendarWithMetadata{Calendar: model.Calendar{Name: "oncall"}}
	suite.storeStub.On("GetCalendarByName", "oncall").Return(calendar, nil).Once()
	_, err := suite.service.Export("oncall", "pdf")
	suite.Require().Error(err, "unknown export format should fail")
	suite.True(errors.IsKind(err, errors.KindUnsupportedFormat), "should blame unsupported format")
}

func (suite *serviceSuite) TestExportRoundTripsThroughIngest() {
	event, err := model.NewEvent(model.EventParams{
		Title: "Dr. A on call",
		Date:  model.NewDate(2026, time.January, 5),
		Start: model.NewNullClockTime(model.NewClockTime(8, 0)),
		End:   model.NewNullClockTime(model.NewClockTime(17, 0)),
		Type:  model.EventTypeOnCall,
	})
	suite.Require().NoError(err)
	calendar := model.Calendar{Name: "oncall", Events: []model.Event{event}}
	payload, err := export.ICS(calendar)
	suite.Require().NoError(err)

	suite.storeStub.On("GetCalendarByName", "oncall").
		Return(model.CalendarWithMetadata{}, errors.NewCalendarNotFoundError("oncall")).Once()
	suite.storeStub.On("SaveCalendar", mock.MatchedBy(func(saved model.Calendar) bool {
		return len(saved.Events) == 1 && saved.Events[0].Equal(event)
	})).Return(model.CalendarMetadata{Name: "oncall", Version: 1}, nil).Once()
	suite.notifierStub.On("NotifyCalendarChanged", "oncall", mock.Anything, mock.Anything).Once()
	defer suite.storeStub.AssertExpectations(suite.T())

	params := suite.ingestParams()
	params.Format = ingest.FormatICS
	params.Payload = payload
	_, err = suite.service.IngestAndCompose(context.Background(), params)
	suite.Require().NoError(err, "re-ingesting an export should not fail")
}

func (suite *serviceSuite) TestDiffVersions() {
	old := model.Calendar{Name: "oncall"}
	event, err := model.NewEvent(model.EventParams{
		Title: "Dr. A on call",
		Date:  model.NewDate(2026, time.January, 5),
		Type:  model.EventTypeOnCall,
	})
	suite.Require().NoError(err)
	current := model.Calendar{Name: "oncall", Events: []model.Event{event}}
	suite.storeStub.On("GetCalendarVersion", "oncall", 1).Return(old, nil).Once()
	suite.storeStub.On("GetCalendarVersion", "oncall", 2).Return(current, nil).Once()
	defer suite.storeStub.AssertExpectations(suite.T())

	diff, err := suite.service.DiffVersions("oncall", 1, 2)
	suite.Require().NoError(err, "diff should not fail")
	suite.Len(diff.Added, 1)
}

func (suite *serviceSuite) TestDeleteRestorePurge() {
	suite.storeStub.On("SetCalendarDeleted", "oncall", true).Return(nil).Once()
	suite.storeStub.On("SetCalendarDeleted", "oncall", false).Return(nil).Once()
	suite.storeStub.On("PurgeCalendar", "oncall").Return(nil).Once()
	defer suite.storeStub.AssertExpectations(suite.T())

	ctx := context.Background()
	suite.Require().NoError(suite.service.Delete(ctx, "oncall"))
	suite.Require().NoError(suite.service.Restore(ctx, "oncall"))
	suite.Require().NoError(suite.service.Purge(ctx, "oncall"))
}

func Test_Service(t *testing.T) {
	suite.Run(t, new(serviceSuite))
}
