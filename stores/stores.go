// Package stores implements persistence for calendars and their version
// history on PostgreSQL.
package stores

import (
	"database/sql"
	"fmt"

	"github.com/doug-martin/goqu/v9"

	"github.com/calmerge/calmerge-server/errors"
	"github.com/calmerge/calmerge-server/logging"
)

// Mall implements all database operations.
type Mall struct {
	// db is the actual database to perform operations in.
	db *sql.DB
	// dialect is the SQL dialect for building queries.
	dialect goqu.DialectWrapper
}

// NewMall creates a new Mall using the given database. It uses the PostgreSQL
// dialect for queries.
func NewMall(db *sql.DB) *Mall {
	return &Mall{
		db:      db,
		dialect: goqu.Dialect("postgres"),
	}
}

func closeRows(rows *sql.Rows) {
	err := rows.Close()
	if err != nil {
		errors.Log(logging.DBLogger, errors.Error{
			Code:    errors.ErrInternal,
			Kind:    errors.KindDB,
			Err:     err,
			Message: "close rows",
		})
	}
}

// extractAffectedRows extracts the affected rows from the given sql.Result.
// Encapsulation is done, because this operation might not be supported by the
// current database driver.
func extractAffectedRows(result sql.Result) (int, error) {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return -1, errors.Error{
			Code:    errors.ErrFatal,
			Kind:    errors.KindShouldNotHappen,
			Message: "rows affected not supported by current database driver",
			Err:     err,
		}
	}
	return int(rowsAffected), nil
}

// assureNRowsAffected assures that the given amount of rows are affected in
// the sql.Result.
func assureNRowsAffected(result sql.Result, n int) error {
	rowsAffected, err := extractAffectedRows(result)
	if err != nil {
		return errors.Wrap(err, "extract affected rows", nil)
	}
	if rowsAffected != n {
		return errors.Error{
			Code:    errors.ErrInternal,
			Kind:    errors.KindDB,
			Message: fmt.Sprintf("expected %d affected rows but only got %d", n, rowsAffected),
			Details: errors.Details{
				"expectedAffectedRows": n,
				"actualAffectedRows":   rowsAffected,
			},
		}
	}
	return nil
}

// assureCalendarAffected makes sure that exactly one row for the given
// sql.Result is affected and reports the calendar as not found otherwise.
func assureCalendarAffected(result sql.Result, name string, q string) error {
	rowsAffected, err := extractAffectedRows(result)
	if err != nil {
		return errors.Wrap(err, "extract affected rows", nil)
	}
	if rowsAffected != 1 {
		return errors.Wrap(errors.NewCalendarNotFoundError(name), "assure calendar affected",
			errors.Details{
				"query":        q,
				"rowsAffected": rowsAffected,
			})
	}
	return nil
}

// rollbackTx rolls back the given sql.Tx. The encapsulation is needed because
// rolling back might return an error which does not need to be returned but
// definitely logged with the original reason the rollback was performed.
func rollbackTx(tx *sql.Tx, reason string) {
	err := tx.Rollback()
	if err != nil {
		errors.Log(logging.DBLogger, errors.Error{
			Code:    errors.ErrInternal,
			Kind:    errors.KindDBRollback,
			Message: "rollback tx",
			Err:     err,
			Details: errors.Details{"rollbackReason": reason},
		})
	}
}
