package stores

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/doug-martin/goqu/v9/exp"
	"github.com/gobuffalo/nulls"

	"github.com/calmerge/calmerge-server/errors"
	"github.com/calmerge/calmerge-server/model"
)

// marshalEvents encodes events for the jsonb events column.
func marshalEvents(events []model.Event) ([]byte, error) {
	if events == nil {
		events = make([]model.Event, 0)
	}
	raw, err := json.Marshal(events)
	if err != nil {
		return nil, errors.FromErr("marshal events", errors.ErrInternal, errors.KindEncodeJSON, err, nil)
	}
	return raw, nil
}

// unmarshalEvents decodes the jsonb events column.
func unmarshalEvents(raw []byte) ([]model.Event, error) {
	events := make([]model.Event, 0)
	if err := json.Unmarshal(raw, &events); err != nil {
		return nil, errors.FromErr("unmarshal events", errors.ErrInternal, errors.KindDecodeJSON, err, nil)
	}
	return events, nil
}

// GetCalendarByName retrieves the calendar with the given name, including
// soft-deleted ones.
func (m *Mall) GetCalendarByName(name string) (model.CalendarWithMetadata, error) {
	q, _, err := m.dialect.From(goqu.T("calendars")).
		Select(goqu.C("name"), goqu.C("events"), goqu.C("source_revised_at"),
			goqu.C("version"), goqu.C("created"), goqu.C("last_updated"), goqu.C("deleted")).
		Where(goqu.C("name").Eq(name)).ToSQL()
	if err != nil {
		return model.CalendarWithMetadata{}, errors.NewQueryToSQLError(err, errors.Details{"calendar": name})
	}
	row := m.db.QueryRow(q)
	var rawEvents []byte
	var calendar model.CalendarWithMetadata
	err = row.Scan(&calendar.Calendar.Name, &rawEvents, &calendar.Calendar.SourceRevisedAt,
		&calendar.Metadata.Version, &calendar.Metadata.Created, &calendar.Metadata.LastUpdated,
		&calendar.Metadata.Deleted)
	if err == sql.ErrNoRows {
		return model.CalendarWithMetadata{}, errors.NewCalendarNotFoundError(name)
	}
	if err != nil {
		return model.CalendarWithMetadata{}, errors.NewScanSingleDBRowError("scan calendar", err,
			errors.Details{"calendar": name, "query": q})
	}
	calendar.Metadata.Name = calendar.Calendar.Name
	calendar.Calendar.Events, err = unmarshalEvents(rawEvents)
	if err != nil {
		return model.CalendarWithMetadata{}, errors.Wrap(err, "unmarshal calendar events",
			errors.Details{"calendar": name})
	}
	return calendar, nil
}

// SaveCalendar persists the given calendar. A new calendar starts at version
// 1; saving an existing one bumps its version and clears a soft-delete mark.
// Every save appends the saved state to the version history.
func (m *Mall) SaveCalendar(calendar model.Calendar) (model.CalendarMetadata, error) {
	rawEvents, err := marshalEvents(calendar.Events)
	if err != nil {
		return model.CalendarMetadata{}, errors.Wrap(err, "marshal calendar events",
			errors.Details{"calendar": calendar.Name})
	}
	now := time.Now().UTC()

	tx, err := m.db.Begin()
	if err != nil {
		return model.CalendarMetadata{}, errors.NewDBTxBeginError(err)
	}

	metadata, err := m.saveCalendarInTx(tx, calendar, rawEvents, now)
	if err != nil {
		rollbackTx(tx, "save calendar failed")
		return model.CalendarMetadata{}, errors.Wrap(err, "save calendar in tx",
			errors.Details{"calendar": calendar.Name})
	}
	err = tx.Commit()
	if err != nil {
		return model.CalendarMetadata{}, errors.NewDBTxCommitError(err)
	}
	return metadata, nil
}

func (m *Mall) saveCalendarInTx(tx *sql.Tx, calendar model.Calendar, rawEvents []byte,
	now time.Time) (model.CalendarMetadata, error) {
	// Lock the row so concurrent saves serialize on the version bump.
	selectQuery, _, err := m.dialect.From(goqu.T("calendars")).
		Select(goqu.C("version"), goqu.C("created")).
		Where(goqu.C("name").Eq(calendar.Name)).
		ForUpdate(exp.Wait).ToSQL()
	if err != nil {
		return model.CalendarMetadata{}, errors.NewQueryToSQLError(err, nil)
	}
	metadata := model.CalendarMetadata{
		Name:        calendar.Name,
		Version:     1,
		Created:     now,
		LastUpdated: now,
	}
	exists := true
	row := tx.QueryRow(selectQuery)
	var currentVersion int
	var created time.Time
	err = row.Scan(&currentVersion, &created)
	if err == sql.ErrNoRows {
		exists = false
	} else if err != nil {
		return model.CalendarMetadata{}, errors.NewScanSingleDBRowError("scan current version", err,
			errors.Details{"query": selectQuery})
	}

	if exists {
		metadata.Version = currentVersion + 1
		metadata.Created = created
		updateQuery, _, err := m.dialect.Update(goqu.T("calendars")).
			Set(goqu.Record{
				"events":            rawEvents,
				"source_revised_at": calendar.SourceRevisedAt,
				"version":           metadata.Version,
				"last_updated":      now,
				"deleted":           false,
			}).
			Where(goqu.C("name").Eq(calendar.Name)).ToSQL()
		if err != nil {
			return model.CalendarMetadata{}, errors.NewQueryToSQLError(err, nil)
		}
		result, err := tx.Exec(updateQuery)
		if err != nil {
			return model.CalendarMetadata{}, errors.NewExecQueryError(err, updateQuery, nil)
		}
		err = assureNRowsAffected(result, 1)
		if err != nil {
			return model.CalendarMetadata{}, errors.Wrap(err, "assure calendar updated", nil)
		}
	} else {
		insertQuery, _, err := m.dialect.Insert(goqu.T("calendars")).Rows(goqu.Record{
			"name":              calendar.Name,
			"events":            rawEvents,
			"source_revised_at": calendar.SourceRevisedAt,
			"version":           metadata.Version,
			"created":           now,
			"last_updated":      now,
			"deleted":           false,
		}).ToSQL()
		if err != nil {
			return model.CalendarMetadata{}, errors.NewQueryToSQLError(err, nil)
		}
		_, err = tx.Exec(insertQuery)
		if err != nil {
			return model.CalendarMetadata{}, errors.NewExecQueryError(err, insertQuery, nil)
		}
	}

	historyQuery, _, err := m.dialect.Insert(goqu.T("calendar_versions")).Rows(goqu.Record{
		"calendar_name":     calendar.Name,
		"version":           metadata.Version,
		"events":            rawEvents,
		"source_revised_at": calendar.SourceRevisedAt,
		"created":           now,
	}).ToSQL()
	if err != nil {
		return model.CalendarMetadata{}, errors.NewQueryToSQLError(err, nil)
	}
	_, err = tx.Exec(historyQuery)
	if err != nil {
		return model.CalendarMetadata{}, errors.NewExecQueryError(err, historyQuery, nil)
	}
	return metadata, nil
}

// ListCalendars retrieves the metadata of all calendars, skipping
// soft-deleted ones unless includeDeleted is set.
func (m *Mall) ListCalendars(includeDeleted bool) ([]model.CalendarMetadata, error) {
	builder := m.dialect.From(goqu.T("calendars")).
		Select(goqu.C("name"), goqu.C("version"), goqu.C("created"),
			goqu.C("last_updated"), goqu.C("deleted")).
		Order(goqu.C("name").Asc())
	if !includeDeleted {
		builder = builder.Where(goqu.C("deleted").IsFalse())
	}
	q, _, err := builder.ToSQL()
	if err != nil {
		return nil, errors.NewQueryToSQLError(err, nil)
	}
	rows, err := m.db.Query(q)
	if err != nil {
		return nil, errors.NewExecQueryError(err, q, nil)
	}
	defer closeRows(rows)
	calendars := make([]model.CalendarMetadata, 0)
	for rows.Next() {
		var metadata model.CalendarMetadata
		err = rows.Scan(&metadata.Name, &metadata.Version, &metadata.Created,
			&metadata.LastUpdated, &metadata.Deleted)
		if err != nil {
			return nil, errors.NewScanDBRowError(err, errors.Details{"query": q})
		}
		calendars = append(calendars, metadata)
	}
	return calendars, nil
}

// CalendarVersion is one entry of a calendar's version history.
type CalendarVersion struct {
	// Version number of the entry.
	Version int `json:"version"`
	// Created is when the entry was persisted.
	Created time.Time `json:"created"`
	// SourceRevisedAt carried by the calendar at that version.
	SourceRevisedAt nulls.Time `json:"source_revised_at"`
	// EventCount at that version.
	EventCount int `json:"event_count"`
}

// ListCalendarVersions retrieves the version history of the given calendar,
// newest first.
func (m *Mall) ListCalendarVersions(name string) ([]CalendarVersion, error) {
	q, _, err := m.dialect.From(goqu.T("calendar_versions")).
		Select(goqu.C("version"), goqu.C("created"), goqu.C("source_revised_at"), goqu.C("events")).
		Where(goqu.C("calendar_name").Eq(name)).
		Order(goqu.C("version").Desc()).ToSQL()
	if err != nil {
		return nil, errors.NewQueryToSQLError(err, errors.Details{"calendar": name})
	}
	rows, err := m.db.Query(q)
	if err != nil {
		return nil, errors.NewExecQueryError(err, q, errors.Details{"calendar": name})
	}
	defer closeRows(rows)
	versions := make([]CalendarVersion, 0)
	for rows.Next() {
		var version CalendarVersion
		var rawEvents []byte
		err = rows.Scan(&version.Version, &version.Created, &version.SourceRevisedAt, &rawEvents)
		if err != nil {
			return nil, errors.NewScanDBRowError(err, errors.Details{"query": q})
		}
		events, err := unmarshalEvents(rawEvents)
		if err != nil {
			return nil, errors.Wrap(err, "unmarshal version events",
				errors.Details{"calendar": name, "version": version.Version})
		}
		version.EventCount = len(events)
		versions = append(versions, version)
	}
	if len(versions) == 0 {
		return nil, errors.NewCalendarNotFoundError(name)
	}
	return versions, nil
}

// GetCalendarVersion retrieves the calendar state at the given version from
// the history.
func (m *Mall) GetCalendarVersion(name string, version int) (model.Calendar, error) {
	errDetails := errors.Details{"calendar": name, "version": version}
	q, _, err := m.dialect.From(goqu.T("calendar_versions")).
		Select(goqu.C("events"), goqu.C("source_revised_at")).
		Where(goqu.C("calendar_name").Eq(name), goqu.C("version").Eq(version)).ToSQL()
	if err != nil {
		return model.Calendar{}, errors.NewQueryToSQLError(err, errDetails)
	}
	row := m.db.QueryRow(q)
	calendar := model.Calendar{Name: name}
	var rawEvents []byte
	err = row.Scan(&rawEvents, &calendar.SourceRevisedAt)
	if err == sql.ErrNoRows {
		return model.Calendar{}, errors.Wrap(errors.NewCalendarNotFoundError(name),
			"get calendar version", errDetails)
	}
	if err != nil {
		return model.Calendar{}, errors.NewScanSingleDBRowError("scan calendar version", err, errDetails)
	}
	calendar.Events, err = unmarshalEvents(rawEvents)
	if err != nil {
		return model.Calendar{}, errors.Wrap(err, "unmarshal version events", errDetails)
	}
	return calendar, nil
}

// SetCalendarDeleted sets or clears the soft-delete mark of the given
// calendar.
func (m *Mall) SetCalendarDeleted(name string, deleted bool) error {
	q, _, err := m.dialect.Update(goqu.T("calendars")).
		Set(goqu.Record{
			"deleted":      deleted,
			"last_updated": time.Now().UTC(),
		}).
		Where(goqu.C("name").Eq(name)).ToSQL()
	if err != nil {
		return errors.NewQueryToSQLError(err, errors.Details{"calendar": name})
	}
	result, err := m.db.Exec(q)
	if err != nil {
		return errors.NewExecQueryError(err, q, errors.Details{"calendar": name})
	}
	err = assureCalendarAffected(result, name, q)
	if err != nil {
		return errors.Wrap(err, "assure found", nil)
	}
	return nil
}

// PurgeCalendar removes the given calendar and its whole version history for
// good.
func (m *Mall) PurgeCalendar(name string) error {
	tx, err := m.db.Begin()
	if err != nil {
		return errors.NewDBTxBeginError(err)
	}
	historyQuery, _, err := m.dialect.Delete(goqu.T("calendar_versions")).
		Where(goqu.C("calendar_name").Eq(name)).ToSQL()
	if err != nil {
		rollbackTx(tx, "build history delete failed")
		return errors.NewQueryToSQLError(err, errors.Details{"calendar": name})
	}
	_, err = tx.Exec(historyQuery)
	if err != nil {
		rollbackTx(tx, "delete history failed")
		return errors.NewExecQueryError(err, historyQuery, errors.Details{"calendar": name})
	}
	calendarQuery, _, err := m.dialect.Delete(goqu.T("calendars")).
		Where(goqu.C("name").Eq(name)).ToSQL()
	if err != nil {
		rollbackTx(tx, "build calendar delete failed")
		return errors.NewQueryToSQLError(err, errors.Details{"calendar": name})
	}
	result, err := tx.Exec(calendarQuery)
	if err != nil {
		rollbackTx(tx, "delete calendar failed")
		return errors.NewExecQueryError(err, calendarQuery, errors.Details{"calendar": name})
	}
	err = assureCalendarAffected(result, name, calendarQuery)
	if err != nil {
		rollbackTx(tx, "calendar not found")
		return errors.Wrap(err, "assure found", nil)
	}
	err = tx.Commit()
	if err != nil {
		return errors.NewDBTxCommitError(err)
	}
	return nil
}
