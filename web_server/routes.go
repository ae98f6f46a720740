package web_server

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/calmerge/calmerge-server/calendarsvc"
	"github.com/calmerge/calmerge-server/ws"
)

// PopulateRoutes populates the WebServer with the routes.
func (server *WebServer) PopulateRoutes(service *calendarsvc.Service, hub *ws.Hub, wsCtx context.Context) {
	handlers := &calendarHandlers{service: service}
	// Websocket stuff.
	server.router.HandleFunc("/ws", ws.HandleWS(hub, wsCtx))
	// Metrics.
	server.router.Handle("/metrics", promhttp.Handler())
	// API stuff.
	apiRouter := server.router.PathPrefix("/api/v1").Subrouter()
	apiRouter.HandleFunc("/calendars", handlers.handleListCalendars).Methods(http.MethodGet)
	apiRouter.HandleFunc("/calendars/{name}", handlers.handleShowCalendar).Methods(http.MethodGet)
	apiRouter.HandleFunc("/calendars/{name}", handlers.handleDeleteCalendar).Methods(http.MethodDelete)
	apiRouter.HandleFunc("/calendars/{name}/ingest", handlers.handleIngest).Methods(http.MethodPost)
	apiRouter.HandleFunc("/calendars/{name}/export", handlers.handleExport).Methods(http.MethodGet)
	apiRouter.HandleFunc("/calendars/{name}/stats", handlers.handleStats).Methods(http.MethodGet)
	apiRouter.HandleFunc("/calendars/{name}/versions", handlers.handleVersions).Methods(http.MethodGet)
	apiRouter.HandleFunc("/calendars/{name}/diff", handlers.handleDiffVersions).Methods(http.MethodGet)
	apiRouter.HandleFunc("/calendars/{name}/restore", handlers.handleRestoreCalendar).Methods(http.MethodPost)
	apiRouter.HandleFunc("/calendars/{name}/purge", handlers.handlePurgeCalendar).Methods(http.MethodDelete)
}
