// Package app boots and wires the calendar server.
package app

import (
	"context"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/calmerge/calmerge-server/calendarsvc"
	"github.com/calmerge/calmerge-server/config"
	"github.com/calmerge/calmerge-server/errors"
	"github.com/calmerge/calmerge-server/ingest"
	"github.com/calmerge/calmerge-server/logging"
	"github.com/calmerge/calmerge-server/mqttnotify"
	"github.com/calmerge/calmerge-server/stores"
	"github.com/calmerge/calmerge-server/template"
	"github.com/calmerge/calmerge-server/web_server"
	"github.com/calmerge/calmerge-server/ws"
)

// App is a complete calendar server instance.
type App struct {
	// config is the main config used for the App.
	config config.Config
	// mall provides persistence.
	mall *stores.Mall
	// templates holds the classification templates.
	templates *template.Store
	// service holds the calendar operations.
	service *calendarsvc.Service
	// webServer is used for http requests and websocket connections.
	webServer *web_server.WebServer
	// wsHub is the hub for websocket connections.
	wsHub *ws.Hub
	// mqttNotifier announces calendar changes via MQTT. Nil when no MQTT
	// address is configured.
	mqttNotifier *mqttnotify.Notifier
}

func NewApp(config config.Config) *App {
	return &App{
		config: config,
	}
}

// Boot sets everything up based on the set config and boots.
func (app *App) Boot(ctx context.Context) error {
	// Validate config.
	err := config.Validate(app.config)
	if err != nil {
		return errors.Error{
			Code:    errors.ErrFatal,
			Err:     err,
			Message: "invalid config",
		}
	}
	// Setup logger.
	logger := setupLogging(app.config.Log)
	logging.ApplyToGlobalLoggers(logger)
	defer func() {
		_ = logger.Sync()
	}()
	// Boot.
	err = app.boot(ctx)
	if err != nil {
		err = errors.Wrap(err, "boot", nil)
		errors.Log(logging.AppLogger, err)
		return err
	}
	return nil
}

func (app *App) boot(ctx context.Context) error {
	appCtx, shutdown := context.WithCancel(context.Background())
	defer shutdown()
	logging.AppLogger.Warn("booting up")
	// Connect database.
	logging.AppLogger.Debug("connecting to database")
	db, err := connectDB(app.config.DBConn, defaultMaxDBConnections)
	if err != nil {
		return errors.Wrap(err, "connect database", nil)
	}
	defer func() {
		_ = db.Close()
	}()
	app.mall = stores.NewMall(db)
	logging.AppLogger.Debug("database ready")
	logging.AppLogger.Debug("setting up...")
	// Load templates and watch for changes.
	app.templates, err = template.NewStore(app.config.TemplatesDir, app.config.DefaultTemplate)
	if err != nil {
		return errors.Wrap(err, "create template store", nil)
	}
	stopTemplateWatch, err := app.templates.Watch()
	if err != nil {
		return errors.Wrap(err, "watch template store", nil)
	}
	defer stopTemplateWatch()
	// Create websocket hub.
	app.wsHub = ws.NewHub()
	notifiers := []calendarsvc.Notifier{ws.NewChangeNotifier(app.wsHub)}
	// Create MQTT notifier if address is provided.
	if app.config.MQTTAddr != "" {
		app.mqttNotifier, err = mqttnotify.NewNotifier(logging.MQTTLogger, mqttnotify.Config{
			MQTTAddr: app.config.MQTTAddr,
		})
		if err != nil {
			return errors.Wrap(err, "create mqtt notifier", nil)
		}
		notifiers = append(notifiers, app.mqttNotifier)
	}
	// Create calendar service.
	app.service = calendarsvc.NewService(logging.ServiceLogger, app.mall, ingest.DefaultRegistry(),
		app.templates, notifiers...)
	// Create web server.
	app.webServer, err = web_server.NewWebServer(web_server.Config{
		ServeAddr:    app.config.ServeAddr,
		WriteTimeout: web_server.DefaultWriteTimeout,
		ReadTimeout:  web_server.DefaultReadTimeout,
	})
	if err != nil {
		return errors.Wrap(err, "create web server", nil)
	}
	app.webServer.PopulateRoutes(app.service, app.wsHub, appCtx)
	logging.AppLogger.Debug("setup completed. booting...")
	// Boot everything.
	go app.wsHub.Run(appCtx)
	if app.mqttNotifier != nil {
		go func() {
			if err := app.mqttNotifier.Run(appCtx); err != nil {
				errors.Log(logging.AppLogger, errors.Wrap(err, "run mqtt notifier", nil))
			}
		}()
	}
	go func() {
		if err := app.webServer.Run(appCtx); err != nil {
			errors.Log(logging.AppLogger, errors.Wrap(err, "run web server", nil))
		}
	}()
	logging.AppLogger.Warn("completed issuing boot commands")
	// Wait for exit.
	<-ctx.Done()
	logging.AppLogger.Warn("shutting down")
	return nil
}

func setupLogging(logConfig config.LogConfig) *zap.Logger {
	// The level was validated with the config, so parse errors cannot occur
	// here.
	stdoutLevel, _ := zapcore.ParseLevel(logConfig.StdoutLogLevel)
	encConfig := zapcore.EncoderConfig{
		TimeKey:        "ts",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		FunctionKey:    zapcore.OmitKey,
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.CapitalLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}
	cores := make([]zapcore.Core, 0)
	// Setup stdout logger with colorful level output.
	stdOutEncConfig := encConfig
	stdOutEncConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	cores = append(cores, zapcore.NewCore(
		zapcore.NewConsoleEncoder(stdOutEncConfig),
		zapcore.Lock(os.Stdout),
		zap.LevelEnablerFunc(func(level zapcore.Level) bool {
			return level >= stdoutLevel
		})))
	// Setup error logger.
	cores = append(cores, zapcore.NewCore(
		zapcore.NewConsoleEncoder(encConfig),
		zapcore.Lock(os.Stderr),
		zap.LevelEnablerFunc(func(level zapcore.Level) bool {
			return level >= zap.ErrorLevel
		})))
	// Setup high priority logger.
	if logConfig.HighPriorityOutput != "" {
		cores = append(cores, zapcore.NewCore(
			zapcore.NewConsoleEncoder(encConfig),
			zapcore.AddSync(&lumberjack.Logger{
				Filename: logConfig.HighPriorityOutput,
				MaxSize:  logConfig.MaxSize,
				MaxAge:   logConfig.KeepDays,
			}),
			zap.LevelEnablerFunc(func(level zapcore.Level) bool {
				return level >= zap.WarnLevel
			})))
	}
	// Setup debug logger.
	if logConfig.DebugOutput != "" {
		cores = append(cores, zapcore.NewCore(
			zapcore.NewConsoleEncoder(encConfig),
			zapcore.AddSync(&lumberjack.Logger{
				Filename: logConfig.DebugOutput,
				MaxSize:  logConfig.MaxSize,
				MaxAge:   logConfig.KeepDays,
			}),
			zap.LevelEnablerFunc(func(level zapcore.Level) bool {
				return level >= zap.DebugLevel
			})))
	}
	// Combine.
	return zap.New(zapcore.NewTee(cores...))
}
