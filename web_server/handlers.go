package web_server

import (
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/calmerge/calmerge-server/calendarsvc"
	"github.com/calmerge/calmerge-server/errors"
	"github.com/calmerge/calmerge-server/logging"
	"github.com/calmerge/calmerge-server/metrics"
	"github.com/calmerge/calmerge-server/model"
	"github.com/calmerge/calmerge-server/query"
)

// maxPayloadSize limits uploaded source files.
const maxPayloadSize = 16 << 20

// calendarHandlers holds the HTTP handlers for the calendar API.
type calendarHandlers struct {
	service *calendarsvc.Service
}

// errorResponse is the JSON body of failed requests.
type errorResponse struct {
	Error   string         `json:"error"`
	Kind    string         `json:"kind"`
	Details errors.Details `json:"details,omitempty"`
}

// respondError writes the given error with the matching HTTP status. Internal
// errors are logged and not leaked to the client.
func respondError(w http.ResponseWriter, err error) {
	e, _ := errors.Cast(err)
	status := http.StatusInternalServerError
	switch e.Code {
	case errors.ErrBadRequest:
		status = http.StatusBadRequest
	case errors.ErrNotFound:
		status = http.StatusNotFound
	}
	if !errors.BlameUser(err) {
		errors.Log(logging.WebServerLogger, err)
	}
	body := errorResponse{
		Error: e.Message,
		Kind:  string(e.Kind),
	}
	if errors.BlameUser(err) {
		body.Details = e.Details
	}
	respondJSON(w, status, body)
}

// respondJSON writes the given payload as JSON.
func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		errors.Log(logging.WebServerLogger, errors.FromErr("encode response", errors.ErrInternal,
			errors.KindEncodeJSON, err, nil))
	}
}

func (h *calendarHandlers) handleListCalendars(w http.ResponseWriter, r *http.Request) {
	includeDeleted := r.URL.Query().Get("include_deleted") == "true"
	calendars, err := h.service.List(includeDeleted)
	if err != nil {
		respondError(w, errors.Wrap(err, "list calendars", nil))
		return
	}
	respondJSON(w, http.StatusOK, calendars)
}

func (h *calendarHandlers) handleShowCalendar(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	calendar, err := h.service.Show(name)
	if err != nil {
		respondError(w, errors.Wrap(err, "show calendar", nil))
		return
	}
	events, err := filterEvents(calendar.Calendar.Events, r.URL.Query())
	if err != nil {
		respondError(w, errors.Wrap(err, "filter events", nil))
		return
	}
	calendar.Calendar.Events = events
	respondJSON(w, http.StatusOK, calendar)
}

// filterEvents narrows the shown events by the optional year, type, from/to
// and q query parameters.
func filterEvents(events []model.Event, params url.Values) ([]model.Event, error) {
	if rawYear := params.Get("year"); rawYear != "" {
		year, err := strconv.Atoi(rawYear)
		if err != nil {
			return nil, errors.NewInvalidYearError("invalid year", errors.Details{"was": rawYear})
		}
		events = query.FilterByYear(events, year)
	}
	if eventType := params.Get("type"); eventType != "" {
		events = query.FilterByType(events, model.EventType(eventType))
	}
	rawFrom, rawTo := params.Get("from"), params.Get("to")
	if rawFrom != "" || rawTo != "" {
		from := model.Date{Year: 0, Month: 1, Day: 1}
		to := model.Date{Year: 9999, Month: 12, Day: 31}
		var err error
		if rawFrom != "" {
			from, err = model.ParseDate(rawFrom)
			if err != nil {
				return nil, errors.Wrap(err, "parse from date", errors.Details{"was": rawFrom})
			}
		}
		if rawTo != "" {
			to, err = model.ParseDate(rawTo)
			if err != nil {
				return nil, errors.Wrap(err, "parse to date", errors.Details{"was": rawTo})
			}
		}
		events = query.FilterByRange(events, from, to)
	}
	if term := params.Get("q"); term != "" {
		events = query.Search(events, term)
	}
	return events, nil
}

func (h *calendarHandlers) handleIngest(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	name := mux.Vars(r)["name"]
	q := r.URL.Query()
	year, err := strconv.Atoi(q.Get("year"))
	if err != nil {
		respondError(w, errors.NewMissingFieldError("year"))
		return
	}
	format := q.Get("format")
	if format == "" {
		respondError(w, errors.NewMissingFieldError("format"))
		return
	}
	payload, err := io.ReadAll(io.LimitReader(r.Body, maxPayloadSize))
	if err != nil {
		respondError(w, errors.NewUnreadableFileError("read request body", err, nil))
		return
	}
	result, err := h.service.IngestAndCompose(r.Context(), calendarsvc.IngestParams{
		CalendarName: name,
		Year:         year,
		Format:       format,
		TemplateName: q.Get("template"),
		Payload:      payload,
		Force:        q.Get("force") == "true",
	})
	if err != nil {
		metrics.IngestRuns.WithLabelValues(format, "error").Inc()
		respondError(w, errors.Wrap(err, "ingest and compose", nil))
		return
	}
	if result.NoOp {
		metrics.IngestRuns.WithLabelValues(format, "no_op").Inc()
	} else {
		metrics.IngestRuns.WithLabelValues(format, "ok").Inc()
		metrics.EventsComposed.Add(float64(len(result.Diff.Added) + len(result.Diff.Changed)))
		metrics.RecordsRejected.Add(float64(len(result.Rejected)))
		metrics.RecordsExcluded.Add(float64(result.ExcludedCount))
	}
	metrics.IngestDuration.Observe(float64(time.Since(start).Milliseconds()))
	respondJSON(w, http.StatusOK, result)
}

func (h *calendarHandlers) handleExport(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	format := r.URL.Query().Get("format")
	if format == "" {
		format = calendarsvc.ExportFormatICS
	}
	payload, err := h.service.Export(name, format)
	if err != nil {
		respondError(w, errors.Wrap(err, "export calendar", nil))
		return
	}
	metrics.Exports.WithLabelValues(format).Inc()
	switch format {
	case calendarsvc.ExportFormatICS:
		w.Header().Set("Content-Type", "text/calendar")
	case calendarsvc.ExportFormatJSON:
		w.Header().Set("Content-Type", "application/json")
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(payload)
}

func (h *calendarHandlers) handleStats(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	year := 0
	if rawYear := r.URL.Query().Get("year"); rawYear != "" {
		parsedYear, err := strconv.Atoi(rawYear)
		if err != nil {
			respondError(w, errors.NewInvalidYearError("invalid year",
				errors.Details{"was": rawYear}))
			return
		}
		year = parsedYear
	}
	stats, err := h.service.Stats(name, year)
	if err != nil {
		respondError(w, errors.Wrap(err, "calendar stats", nil))
		return
	}
	respondJSON(w, http.StatusOK, stats)
}

func (h *calendarHandlers) handleVersions(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	versions, err := h.service.Versions(name)
	if err != nil {
		respondError(w, errors.Wrap(err, "calendar versions", nil))
		return
	}
	respondJSON(w, http.StatusOK, versions)
}

func (h *calendarHandlers) handleDiffVersions(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	q := r.URL.Query()
	fromVersion, err := strconv.Atoi(q.Get("from"))
	if err != nil {
		respondError(w, errors.NewMissingFieldError("from"))
		return
	}
	toVersion, err := strconv.Atoi(q.Get("to"))
	if err != nil {
		respondError(w, errors.NewMissingFieldError("to"))
		return
	}
	diff, err := h.service.DiffVersions(name, fromVersion, toVersion)
	if err != nil {
		respondError(w, errors.Wrap(err, "diff versions", nil))
		return
	}
	respondJSON(w, http.StatusOK, diff)
}

func (h *calendarHandlers) handleDeleteCalendar(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	if err := h.service.Delete(r.Context(), name); err != nil {
		respondError(w, errors.Wrap(err, "delete calendar", nil))
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (h *calendarHandlers) handleRestoreCalendar(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	if err := h.service.Restore(r.Context(), name); err != nil {
		respondError(w, errors.Wrap(err, "restore calendar", nil))
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "restored"})
}

func (h *calendarHandlers) handlePurgeCalendar(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	if err := h.service.Purge(r.Context(), name); err != nil {
		respondError(w, errors.Wrap(err, "purge calendar", nil))
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "purged"})
}
