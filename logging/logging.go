// Package logging holds the global per-topic loggers.
package logging

import "go.uber.org/zap"

// Loggers.
var (
	// AppLogger is the main app.App logger.
	AppLogger *zap.Logger
	// DBLogger is used for stuff regarding the database connection.
	DBLogger *zap.Logger
	// IngestLogger is the logger for source readers.
	IngestLogger *zap.Logger
	// TemplateLogger is the logger for template loading and reloading.
	TemplateLogger *zap.Logger
	// ProcessLogger is the logger for the rule engine.
	ProcessLogger *zap.Logger
	// ComposeLogger is the logger for calendar composition.
	ComposeLogger *zap.Logger
	// ServiceLogger is the logger for the calendar service.
	ServiceLogger *zap.Logger
	// WebServerLogger is used for all stuff regarding web servers.
	WebServerLogger *zap.Logger
	// WSLogger is used for all stuff regarding websocket connections.
	WSLogger *zap.Logger
	// MQTTLogger is the logger for MQTT notifications.
	MQTTLogger *zap.Logger
)

func init() {
	// Assure usable loggers even before ApplyToGlobalLoggers is called, mainly
	// for tests.
	ApplyToGlobalLoggers(zap.NewNop())
}

// ApplyToGlobalLoggers applies the given zap.Logger to all global loggers with
// their topic set.
func ApplyToGlobalLoggers(logger *zap.Logger) {
	AppLogger = logger.Named("app")
	DBLogger = logger.Named("db")
	IngestLogger = logger.Named("ingest")
	TemplateLogger = logger.Named("template")
	ProcessLogger = logger.Named("process")
	ComposeLogger = logger.Named("compose")
	ServiceLogger = logger.Named("service")
	WebServerLogger = logger.Named("web-server")
	WSLogger = logger.Named("ws")
	MQTTLogger = logger.Named("mqtt")
}
