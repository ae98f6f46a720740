package errors

// NewMissingFieldError returns a new ErrBadRequest error with kind
// KindMissingField for the given field name.
func NewMissingFieldError(field string) error {
	return Error{
		Code:    ErrBadRequest,
		Kind:    KindMissingField,
		Message: "missing field",
		Details: Details{"field": field},
	}
}

// NewInvalidTimeRangeError returns a new ErrBadRequest error with kind
// KindInvalidTimeRange and the given message.
func NewInvalidTimeRangeError(message string, details Details) error {
	return Error{
		Code:    ErrBadRequest,
		Kind:    KindInvalidTimeRange,
		Message: message,
		Details: details,
	}
}

// NewInvalidDateError returns a new ErrBadRequest error with kind
// KindInvalidDate and the given message.
func NewInvalidDateError(message string, details Details) error {
	return Error{
		Code:    ErrBadRequest,
		Kind:    KindInvalidDate,
		Message: message,
		Details: details,
	}
}

// NewUnreadableFileError returns a new ErrBadRequest error with kind
// KindUnreadableFile.
func NewUnreadableFileError(message string, err error, details Details) error {
	return Error{
		Code:    ErrBadRequest,
		Kind:    KindUnreadableFile,
		Err:     err,
		Message: message,
		Details: details,
	}
}

// NewUnrecognizedStructureError returns a new ErrBadRequest error with kind
// KindUnrecognizedStructure.
func NewUnrecognizedStructureError(message string, details Details) error {
	return Error{
		Code:    ErrBadRequest,
		Kind:    KindUnrecognizedStructure,
		Message: message,
		Details: details,
	}
}

// NewUnsupportedFormatError returns a new ErrBadRequest error with kind
// KindUnsupportedFormat for the given format selector.
func NewUnsupportedFormatError(format string, supported []string) error {
	return Error{
		Code:    ErrBadRequest,
		Kind:    KindUnsupportedFormat,
		Message: "unsupported format",
		Details: Details{
			"format":    format,
			"supported": supported,
		},
	}
}

// NewInvalidYearError returns a new ErrBadRequest error with kind
// KindInvalidYear.
func NewInvalidYearError(message string, details Details) error {
	return Error{
		Code:    ErrBadRequest,
		Kind:    KindInvalidYear,
		Message: message,
		Details: details,
	}
}

// NewCalendarNotFoundError returns a new ErrNotFound error with kind
// KindCalendarNotFound for the given calendar name.
func NewCalendarNotFoundError(name string) error {
	return Error{
		Code:    ErrNotFound,
		Kind:    KindCalendarNotFound,
		Message: "calendar not found",
		Details: Details{"name": name},
	}
}

// NewUnknownTemplateError returns a new ErrNotFound error with kind
// KindUnknownTemplate for the given template name.
func NewUnknownTemplateError(name string) error {
	return Error{
		Code:    ErrNotFound,
		Kind:    KindUnknownTemplate,
		Message: "unknown template",
		Details: Details{"template": name},
	}
}

// NewInvalidTemplateError returns a new ErrInternal error with kind
// KindInvalidTemplate.
func NewInvalidTemplateError(message string, err error, details Details) error {
	return Error{
		Code:    ErrInternal,
		Kind:    KindInvalidTemplate,
		Err:     err,
		Message: message,
		Details: details,
	}
}

// NewQueryToSQLError returns a new ErrInternal error with kind
// KindDBQueryToSQL.
func NewQueryToSQLError(err error, details Details) error {
	return Error{
		Code:    ErrInternal,
		Kind:    KindDBQueryToSQL,
		Err:     err,
		Message: "query to sql",
		Details: details,
	}
}

// NewExecQueryError returns a new ErrInternal error with kind KindDBExecQuery
// and the query that failed in the details.
func NewExecQueryError(err error, q string, details Details) error {
	if details == nil {
		details = make(Details)
	}
	details["query"] = q
	return Error{
		Code:    ErrInternal,
		Kind:    KindDBExecQuery,
		Err:     err,
		Message: "exec query",
		Details: details,
	}
}

// NewScanDBRowError returns a new ErrInternal error with kind KindDBScanRow.
func NewScanDBRowError(err error, details Details) error {
	return Error{
		Code:    ErrInternal,
		Kind:    KindDBScanRow,
		Err:     err,
		Message: "scan db row",
		Details: details,
	}
}

// NewScanSingleDBRowError returns a new ErrInternal error with kind
// KindDBScanRow and the given message.
func NewScanSingleDBRowError(message string, err error, details Details) error {
	return Error{
		Code:    ErrInternal,
		Kind:    KindDBScanRow,
		Err:     err,
		Message: message,
		Details: details,
	}
}

// NewDBTxBeginError returns a new ErrInternal error with kind KindDBTx.
func NewDBTxBeginError(err error) error {
	return Error{
		Code:    ErrInternal,
		Kind:    KindDBTx,
		Err:     err,
		Message: "begin tx",
	}
}

// NewDBTxCommitError returns a new ErrInternal error with kind KindDBTx.
func NewDBTxCommitError(err error) error {
	return Error{
		Code:    ErrInternal,
		Kind:    KindDBTx,
		Err:     err,
		Message: "commit tx",
	}
}

// NewInternalError returns a new ErrInternal error with kind KindUnexpected
// and the given message.
func NewInternalError(message string, details Details) error {
	return Error{
		Code:    ErrInternal,
		Kind:    KindUnexpected,
		Message: message,
		Details: details,
	}
}

// NewContextAbortedError returns a new ErrAborted error with kind
// KindContextAborted for the given operation.
func NewContextAbortedError(operation string) error {
	return Error{
		Code:    ErrAborted,
		Kind:    KindContextAborted,
		Message: "context aborted",
		Details: Details{"operation": operation},
	}
}
