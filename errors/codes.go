package errors

type Code string

const (
	ErrAborted    Code = "aborted"
	ErrBadRequest Code = "bad-request"
	ErrFatal      Code = "fatal"
	ErrNotFound   Code = "not-found"
	ErrInternal   Code = "internal"
	ErrUnexpected Code = "unexpected"
)

type Kind string

const (
	// KindMissingField is used when a required event field like the title or the
	// date is absent.
	KindMissingField Kind = "missing-field"
	// KindInvalidTimeRange is used when a clock time is out of range.
	KindInvalidTimeRange Kind = "invalid-time-range"
	// KindInvalidDate is used when a date does not name a valid calendar day.
	KindInvalidDate Kind = "invalid-date"
	// KindUnreadableFile is used when a source payload cannot be opened or
	// decoded at the container level.
	KindUnreadableFile Kind = "unreadable-file"
	// KindUnrecognizedStructure is used when a source payload opens fine but
	// does not contain the structure the reader expects.
	KindUnrecognizedStructure Kind = "unrecognized-structure"
	// KindUnsupportedFormat is used when an unknown format selector is passed to
	// the reader registry.
	KindUnsupportedFormat Kind = "unsupported-format"
	// KindInvalidYear is used when composed events fall outside the declared
	// target year.
	KindInvalidYear Kind = "invalid-year"
	// KindCalendarNotFound is used when an update is requested for a calendar
	// that does not exist.
	KindCalendarNotFound Kind = "calendar-not-found"
	// KindUnknownTemplate is used when a template name cannot be resolved.
	KindUnknownTemplate Kind = "unknown-template"
	// KindInvalidTemplate is used when a template file fails to load or
	// validate.
	KindInvalidTemplate Kind = "invalid-template"
	// KindDB is used for general database errors.
	KindDB Kind = "db"
	// KindDBQueryToSQL is used when building a query fails.
	KindDBQueryToSQL Kind = "db-query-to-sql"
	// KindDBExecQuery is used when executing a query fails.
	KindDBExecQuery Kind = "db-exec-query"
	// KindDBScanRow is used when scanning result rows fails.
	KindDBScanRow Kind = "db-scan-row"
	// KindDBTx is used when beginning or committing a transaction fails.
	KindDBTx Kind = "db-tx"
	// KindDBRollback is used when rolling back a transaction fails.
	KindDBRollback Kind = "db-rollback"
	// KindEncodeJSON is used when encoding JSON fails.
	KindEncodeJSON Kind = "encode-json"
	// KindDecodeJSON is used when decoding JSON fails.
	KindDecodeJSON Kind = "decode-json"
	// KindContextAborted is used when we were performing an operation but the
	// context got aborted.
	KindContextAborted Kind = "context-aborted"
	// KindShouldNotHappen is used for states that indicate a broken invariant.
	KindShouldNotHappen Kind = "should-not-happen"
	// KindUnexpected is used for everything without a better match.
	KindUnexpected Kind = "unexpected"
)
