// Package logging provides component loggers configured from the "logging"
// section of repostore.yml and the REPOSTORE_LOG_* environment variables.
package logging

import (
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/grovetools/repostore/config"
	"github.com/grovetools/repostore/pkg/paths"
	"github.com/mattn/go-isatty"
	"github.com/muesli/termenv"
	"github.com/sirupsen/logrus"
)

const (
	envLevel  = "REPOSTORE_LOG_LEVEL"
	envCaller = "REPOSTORE_LOG_CALLER"
	envDebug  = "REPOSTORE_DEBUG"
)

var (
	loggers   = make(map[string]*logrus.Entry)
	loggersMu sync.Mutex

	// current is the logging section applied to every logger.
	current    Config
	configured bool
	logFile    *os.File
)

// NewLogger creates and returns a pre-configured logger for a specific component.
// It uses a singleton pattern per component to avoid re-initializing.
func NewLogger(component string) *logrus.Entry {
	loggersMu.Lock()
	defer loggersMu.Unlock()

	if logger, exists := loggers[component]; exists {
		return logger
	}

	if !configured {
		current = loadDefault()
		configured = true
	}

	logger := logrus.New()
	apply(logger, current)

	entry := logger.WithField("component", component)
	loggers[component] = entry
	return entry
}

// Configure applies the logging section of cfg to every logger created so
// far and to those created later. It is called again when the config reloads.
func Configure(cfg *config.Config) error {
	var logCfg Config
	if cfg != nil {
		if err := cfg.UnmarshalExtension("logging", &logCfg); err != nil {
			return err
		}
	}
	Apply(logCfg)
	return nil
}

// Apply installs logCfg directly.
func Apply(logCfg Config) {
	loggersMu.Lock()
	defer loggersMu.Unlock()

	current = logCfg
	configured = true

	// Loggers switch to the new outputs before the old file is closed.
	previous := logFile
	logFile = nil
	for _, entry := range loggers {
		apply(entry.Logger, current)
	}
	if previous != nil && previous != logFile {
		previous.Close()
	}
}

// loadDefault reads the logging section of the configuration found from the
// working directory, if any.
func loadDefault() Config {
	quiet := logrus.New()
	quiet.SetOutput(io.Discard)

	var logCfg Config
	cfg, _, err := config.LoadOrDefault("", quiet.WithField("component", "logging"))
	if err != nil {
		return logCfg
	}
	if err := cfg.UnmarshalExtension("logging", &logCfg); err != nil {
		logrus.Warnf("Failed to parse 'logging' config: %v", err)
	}
	return logCfg
}

// ParseLevel resolves the effective level: environment first, then config, then info.
func ParseLevel(logCfg Config) logrus.Level {
	levelStr := "info"
	if env := os.Getenv(envLevel); env != "" {
		levelStr = env
	} else if logCfg.Level != "" {
		levelStr = logCfg.Level
	}
	level, err := logrus.ParseLevel(levelStr)
	if err != nil {
		return logrus.InfoLevel
	}
	return level
}

// apply must be called with loggersMu held.
func apply(logger *logrus.Logger, logCfg Config) {
	logger.SetLevel(ParseLevel(logCfg))
	logger.SetReportCaller(os.Getenv(envCaller) == "true" || logCfg.ReportCaller)

	var writers []io.Writer

	if logCfg.File.Enabled {
		if f := openLogFile(logger, logCfg.File.Path); f != nil {
			writers = append(writers, f)
		}
	}

	toStderr := shouldLogToStderr(logger.GetLevel(), logCfg.Format.StructuredToStderr)
	if toStderr {
		writers = append(writers, os.Stderr)
	}

	switch logCfg.Format.Preset {
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{})
	case "simple":
		logger.SetFormatter(&TextFormatter{Config: FormatConfig{
			DisableTimestamp: true,
			DisableComponent: true,
		}})
	default:
		logger.SetFormatter(&TextFormatter{
			Config: logCfg.Format,
			Color:  toStderr && len(writers) == 1 && colorEnabled(),
		})
	}

	switch len(writers) {
	case 0:
		// Nothing requested output; discard rather than defaulting to stderr.
		logger.SetOutput(io.Discard)
	case 1:
		logger.SetOutput(writers[0])
	default:
		logger.SetOutput(io.MultiWriter(writers...))
	}
}

// openLogFile opens the shared log file once per configuration.
func openLogFile(logger *logrus.Logger, path string) *os.File {
	if logFile != nil {
		return logFile
	}
	if path == "" {
		path = paths.LogFilePath()
	}
	path = expandPath(path)

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		logger.Warnf("Failed to create log directory %s: %v", filepath.Dir(path), err)
		return nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		logger.Warnf("Failed to open log file %s: %v", path, err)
		return nil
	}
	logFile = f
	return f
}

// shouldLogToStderr decides the stderr sink. In "auto" mode logs go to stderr
// when debugging or when stderr is not an interactive terminal.
func shouldLogToStderr(level logrus.Level, mode string) bool {
	switch mode {
	case "always":
		return true
	case "never":
		return false
	}
	isDebug := os.Getenv(envDebug) == "1" || level >= logrus.DebugLevel
	return isDebug || !isInteractive()
}

func isInteractive() bool {
	fd := os.Stderr.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

func colorEnabled() bool {
	if termenv.EnvNoColor() {
		return false
	}
	return isInteractive() && termenv.NewOutput(os.Stderr).Profile != termenv.Ascii
}

// expandPath expands tilde in file paths
func expandPath(path string) string {
	if len(path) > 1 && path[:2] == "~/" {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}
