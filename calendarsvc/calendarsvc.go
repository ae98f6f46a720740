// Package calendarsvc orchestrates the ingest pipeline: read, classify,
// compose and persist, serialized per calendar name.
package calendarsvc

import (
	"context"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/calmerge/calmerge-server/compose"
	"github.com/calmerge/calmerge-server/errors"
	"github.com/calmerge/calmerge-server/export"
	"github.com/calmerge/calmerge-server/ingest"
	"github.com/calmerge/calmerge-server/model"
	"github.com/calmerge/calmerge-server/process"
	"github.com/calmerge/calmerge-server/query"
	"github.com/calmerge/calmerge-server/stores"
	"github.com/calmerge/calmerge-server/template"
)

// Store are the persistence dependencies needed for NewService.
type Store interface {
	// GetCalendarByName retrieves the calendar with the given name, including
	// soft-deleted ones.
	GetCalendarByName(name string) (model.CalendarWithMetadata, error)
	// SaveCalendar persists the given calendar, bumping its version and
	// appending to the version history.
	SaveCalendar(calendar model.Calendar) (model.CalendarMetadata, error)
	// ListCalendars retrieves the metadata of all calendars.
	ListCalendars(includeDeleted bool) ([]model.CalendarMetadata, error)
	// ListCalendarVersions retrieves the version history of the given calendar,
	// newest first.
	ListCalendarVersions(name string) ([]stores.CalendarVersion, error)
	// GetCalendarVersion retrieves the calendar state at the given version.
	GetCalendarVersion(name string, version int) (model.Calendar, error)
	// SetCalendarDeleted sets or clears the soft-delete mark.
	SetCalendarDeleted(name string, deleted bool) error
	// PurgeCalendar removes the calendar and its history for good.
	PurgeCalendar(name string) error
}

// Notifier is notified after a calendar changed. Implementations must not
// block.
type Notifier interface {
	// NotifyCalendarChanged is called after a successful save.
	NotifyCalendarChanged(name string, metadata model.CalendarMetadata, diff query.DiffResult)
}

// Service provides all calendar operations.
type Service struct {
	logger    *zap.Logger
	store     Store
	registry  *ingest.Registry
	templates *template.Store
	notifiers []Notifier

	// locksMutex guards locks.
	locksMutex sync.Mutex
	// locks serializes ingest runs per calendar name.
	locks map[string]*semaphore.Weighted
}

// NewService creates a new Service.
func NewService(logger *zap.Logger, store Store, registry *ingest.Registry,
	templates *template.Store, notifiers ...Notifier) *Service {
	return &Service{
		logger:    logger,
		store:     store,
		registry:  registry,
		templates: templates,
		notifiers: notifiers,
		locks:     make(map[string]*semaphore.Weighted),
	}
}

// lockForCalendar returns the semaphore serializing writes to the given
// calendar, creating it on first use.
func (s *Service) lockForCalendar(name string) *semaphore.Weighted {
	s.locksMutex.Lock()
	defer s.locksMutex.Unlock()
	lock, ok := s.locks[name]
	if !ok {
		lock = semaphore.NewWeighted(1)
		s.locks[name] = lock
	}
	return lock
}

// IngestParams are the inputs for IngestAndCompose.
type IngestParams struct {
	// CalendarName of the target calendar.
	CalendarName string
	// Year whose events are replaced.
	Year int
	// Format selector for the payload.
	Format string
	// TemplateName of the rule set to apply, empty for the default.
	TemplateName string
	// Payload is the raw source file.
	Payload []byte
	// Force skips the no-op detection on the source's revision marker.
	Force bool
}

// IngestResult is the outcome of IngestAndCompose.
type IngestResult struct {
	// Metadata after the save. Zero when NoOp.
	Metadata model.CalendarMetadata `json:"metadata"`
	// Diff of the replaced year.
	Diff query.DiffResult `json:"diff"`
	// Rejected records with their reasons.
	Rejected []process.RejectedRecord `json:"rejected"`
	// ExcludedCount of records dropped by exclusion rules.
	ExcludedCount int `json:"excluded_count"`
	// NoOp is set when the source was not newer than the stored calendar and
	// nothing was touched.
	NoOp bool `json:"no_op"`
}

// IngestAndCompose runs the full pipeline for one source payload. Runs for
// the same calendar name serialize; runs for different calendars proceed in
// parallel.
func (s *Service) IngestAndCompose(ctx context.Context, params IngestParams) (IngestResult, error) {
	if params.CalendarName == "" {
		return IngestResult{}, errors.NewMissingFieldError("calendar_name")
	}
	if params.Year == 0 {
		return IngestResult{}, errors.NewMissingFieldError("year")
	}
	lock := s.lockForCalendar(params.CalendarName)
	if err := lock.Acquire(ctx, 1); err != nil {
		return IngestResult{}, errors.NewContextAbortedError("acquire calendar lock")
	}
	defer lock.Release(1)

	parsed, err := s.registry.Parse(params.Format, params.Payload)
	if err != nil {
		return IngestResult{}, errors.Wrap(err, "parse payload",
			errors.Details{"calendar": params.CalendarName})
	}

	existing := model.Calendar{Name: params.CalendarName}
	found := false
	stored, err := s.store.GetCalendarByName(params.CalendarName)
	if err == nil {
		existing = stored.Calendar
		found = true
	} else if !errors.IsKind(err, errors.KindCalendarNotFound) {
		return IngestResult{}, errors.Wrap(err, "get calendar",
			errors.Details{"calendar": params.CalendarName})
	}

	if found && !params.Force && !stored.Metadata.Deleted &&
		existing.SourceRevisedAt.Valid && parsed.SourceRevisedAt.Valid &&
		!parsed.SourceRevisedAt.Time.After(existing.SourceRevisedAt.Time) {
		s.logger.Info("skipping ingest of stale source",
			zap.String("calendar", params.CalendarName),
			zap.Time("stored_revised_at", existing.SourceRevisedAt.Time),
			zap.Time("source_revised_at", parsed.SourceRevisedAt.Time))
		return IngestResult{NoOp: true}, nil
	}

	tpl, err := s.templates.ByName(params.TemplateName)
	if err != nil {
		return IngestResult{}, errors.Wrap(err, "resolve template",
			errors.Details{"calendar": params.CalendarName})
	}
	processed := process.NewProcessor(tpl).Process(parsed.Records)

	outcome, err := compose.ComposeYear(existing, params.Year, processed.Events, parsed.SourceRevisedAt)
	if err != nil {
		return IngestResult{}, errors.Wrap(err, "compose year",
			errors.Details{"calendar": params.CalendarName, "year": params.Year})
	}

	metadata, err := s.store.SaveCalendar(outcome.Calendar)
	if err != nil {
		return IngestResult{}, errors.Wrap(err, "save calendar",
			errors.Details{"calendar": params.CalendarName})
	}
	s.logger.Info("calendar composed",
		zap.String("calendar", params.CalendarName),
		zap.Int("year", params.Year),
		zap.Int("version", metadata.Version),
		zap.Int("added", len(outcome.Diff.Added)),
		zap.Int("removed", len(outcome.Diff.Removed)),
		zap.Int("changed", len(outcome.Diff.Changed)),
		zap.Int("rejected", len(processed.Rejected)))
	for _, notifier := range s.notifiers {
		notifier.NotifyCalendarChanged(params.CalendarName, metadata, outcome.Diff)
	}
	return IngestResult{
		Metadata:      metadata,
		Diff:          outcome.Diff,
		Rejected:      processed.Rejected,
		ExcludedCount: processed.ExcludedCount,
	}, nil
}

// List retrieves the metadata of all calendars.
func (s *Service) List(includeDeleted bool) ([]model.CalendarMetadata, error) {
	return s.store.ListCalendars(includeDeleted)
}

// Show retrieves the calendar with the given name.
func (s *Service) Show(name string) (model.CalendarWithMetadata, error) {
	return s.store.GetCalendarByName(name)
}

// Export formats for Service.Export.
const (
	ExportFormatICS  = "ics"
	ExportFormatJSON = "json"
)

// Export renders the calendar with the given name into the given format.
func (s *Service) Export(name string, format string) ([]byte, error) {
	calendar, err := s.store.GetCalendarByName(name)
	if err != nil {
		return nil, errors.Wrap(err, "get calendar", errors.Details{"calendar": name})
	}
	switch format {
	case ExportFormatICS:
		return export.ICS(calendar.Calendar)
	case ExportFormatJSON:
		return export.JSON(calendar.Calendar)
	default:
		return nil, errors.NewUnsupportedFormatError(format,
			[]string{ExportFormatICS, ExportFormatJSON})
	}
}

// Stats computes statistics over the calendar with the given name. A non-zero
// year restricts the statistics to that year.
func (s *Service) Stats(name string, year int) (query.Statistics, error) {
	calendar, err := s.store.GetCalendarByName(name)
	if err != nil {
		return query.Statistics{}, errors.Wrap(err, "get calendar", errors.Details{"calendar": name})
	}
	events := calendar.Calendar.Events
	if year != 0 {
		events = calendar.Calendar.EventsForYear(year)
	}
	return query.Stats(events), nil
}

// Versions retrieves the version history of the calendar with the given name,
// newest first.
func (s *Service) Versions(name string) ([]stores.CalendarVersion, error) {
	return s.store.ListCalendarVersions(name)
}

// DiffVersions diffs two stored versions of the calendar with the given name.
func (s *Service) DiffVersions(name string, fromVersion, toVersion int) (query.DiffResult, error) {
	from, err := s.store.GetCalendarVersion(name, fromVersion)
	if err != nil {
		return query.DiffResult{}, errors.Wrap(err, "get from-version",
			errors.Details{"calendar": name, "version": fromVersion})
	}
	to, err := s.store.GetCalendarVersion(name, toVersion)
	if err != nil {
		return query.DiffResult{}, errors.Wrap(err, "get to-version",
			errors.Details{"calendar": name, "version": toVersion})
	}
	return query.Diff(from.Events, to.Events), nil
}

// Delete soft-deletes the calendar with the given name. It stays recoverable
// via Restore until purged.
func (s *Service) Delete(ctx context.Context, name string) error {
	lock := s.lockForCalendar(name)
	if err := lock.Acquire(ctx, 1); err != nil {
		return errors.NewContextAbortedError("acquire calendar lock")
	}
	defer lock.Release(1)
	return s.store.SetCalendarDeleted(name, true)
}

// Restore clears the soft-delete mark of the calendar with the given name.
func (s *Service) Restore(ctx context.Context, name string) error {
	lock := s.lockForCalendar(name)
	if err := lock.Acquire(ctx, 1); err != nil {
		return errors.NewContextAbortedError("acquire calendar lock")
	}
	defer lock.Release(1)
	return s.store.SetCalendarDeleted(name, false)
}

// Purge removes the calendar with the given name and its history for good.
func (s *Service) Purge(ctx context.Context, name string) error {
	lock := s.lockForCalendar(name)
	if err := lock.Acquire(ctx, 1); err != nil {
		return errors.NewContextAbortedError("acquire calendar lock")
	}
	defer lock.Release(1)
	return s.store.PurgeCalendar(name)
}
