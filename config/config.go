// Package config loads the server configuration from a YAML file.
package config

import (
	"os"

	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/calmerge/calmerge-server/errors"
)

// LogConfig configures logging outputs.
type LogConfig struct {
	// StdoutLogLevel is the minimum level logged to stdout. Defaults to info.
	StdoutLogLevel string `yaml:"stdout_log_level"`
	// HighPriorityOutput is the file warnings and errors are written to. Empty
	// disables the file output.
	HighPriorityOutput string `yaml:"high_priority_output"`
	// DebugOutput is the file everything is written to. Empty disables the file
	// output.
	DebugOutput string `yaml:"debug_output"`
	// MaxSize is the maximum size in megabytes of a log file before it gets
	// rotated.
	MaxSize int `yaml:"max_size"`
	// KeepDays is the maximum number of days to retain old log files.
	KeepDays int `yaml:"keep_days"`
}

// Config is the configuration needed in order to boot an App.
type Config struct {
	// DBConn is the connection string for the PostgreSQL database.
	DBConn string `yaml:"db_conn"`
	// ServeAddr is the address the HTTP API listens on.
	ServeAddr string `yaml:"serve_addr"`
	// MQTTAddr is the address of the MQTT server to announce changes on. Empty
	// disables MQTT notifications.
	MQTTAddr string `yaml:"mqtt_addr"`
	// TemplatesDir is the directory holding the classification templates.
	TemplatesDir string `yaml:"templates_dir"`
	// DefaultTemplate is the template used when an ingest request names none.
	DefaultTemplate string `yaml:"default_template"`
	// Log configures logging outputs.
	Log LogConfig `yaml:"log"`
}

// Defaults applied by Load.
const (
	DefaultServeAddr      = ":8080"
	DefaultStdoutLogLevel = "info"
	DefaultLogMaxSize     = 64
	DefaultLogKeepDays    = 28
)

// Load reads and validates the configuration from the given path.
func Load(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.FromErr("read config file", errors.ErrFatal, errors.KindUnreadableFile,
			err, errors.Details{"path": path})
	}
	return Parse(raw)
}

// Parse decodes, validates and applies defaults to the given raw
// configuration.
func Parse(raw []byte) (Config, error) {
	var config Config
	if err := yaml.Unmarshal(raw, &config); err != nil {
		return Config{}, errors.FromErr("unmarshal config", errors.ErrFatal, errors.KindUnrecognizedStructure,
			err, nil)
	}
	if config.ServeAddr == "" {
		config.ServeAddr = DefaultServeAddr
	}
	if config.Log.StdoutLogLevel == "" {
		config.Log.StdoutLogLevel = DefaultStdoutLogLevel
	}
	if config.Log.MaxSize == 0 {
		config.Log.MaxSize = DefaultLogMaxSize
	}
	if config.Log.KeepDays == 0 {
		config.Log.KeepDays = DefaultLogKeepDays
	}
	if err := Validate(config); err != nil {
		return Config{}, errors.Wrap(err, "validate config", nil)
	}
	return config, nil
}

// Validate checks the given configuration for completeness.
func Validate(config Config) error {
	if config.DBConn == "" {
		return errors.NewMissingFieldError("db_conn")
	}
	if config.TemplatesDir == "" {
		return errors.NewMissingFieldError("templates_dir")
	}
	if config.DefaultTemplate == "" {
		return errors.NewMissingFieldError("default_template")
	}
	if _, err := zapcore.ParseLevel(config.Log.StdoutLogLevel); err != nil {
		return errors.FromErr("invalid stdout log level", errors.ErrFatal, errors.KindUnexpected, err,
			errors.Details{"was": config.Log.StdoutLogLevel})
	}
	return nil
}
