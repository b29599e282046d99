package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"
)

// DefaultPrefix marks every text log line written by the recipe tool.
const DefaultPrefix = "🔨 "

// Options controls how a recipe logger is built.
type Options struct {
	// Level may be a plain level ("debug") or "json:<level>".
	Level string
	// Output defaults to stderr.
	Output io.Writer
	// JSON forces JSON output regardless of the level string.
	JSON bool
}

// NewLogger creates a new hclog logger with standard settings
func NewLogger(name string, level string, output io.Writer) hclog.Logger {
	return New(name, Options{
		Level:  level,
		Output: output,
		JSON:   os.Getenv("BULLET3_JSON_LOG") == "1",
	})
}

// New builds a logger from explicit options.
func New(name string, opts Options) hclog.Logger {
	jsonFormat, level := ParseLevel(opts.Level)
	jsonFormat = jsonFormat || opts.JSON

	output := opts.Output
	if output == nil {
		output = os.Stderr
	}
	if !jsonFormat {
		output = NewPrefixWriter(DefaultPrefix, output)
	}

	return hclog.New(&hclog.LoggerOptions{
		Name:       name,
		Level:      hclog.LevelFromString(level),
		JSONFormat: jsonFormat,
		Output:     output,
		TimeFormat: "2006-01-02T15:04:05Z", // UTC ISO format
		TimeFn: func() time.Time {
			return time.Now().UTC()
		},
	})
}

// ParseLevel splits a "json:<level>" selector. A bare "json" means info.
func ParseLevel(raw string) (jsonFormat bool, level string) {
	level = strings.TrimSpace(raw)
	if strings.HasPrefix(level, "json") {
		jsonFormat = true
		parts := strings.SplitN(level, ":", 2)
		if len(parts) > 1 && parts[1] != "" {
			level = parts[1]
		} else {
			level = "info"
		}
	}
	if level == "" {
		level = "info"
	}
	return jsonFormat, level
}

// GetLogLevel returns the configured log level and where it came from.
// The CLI flag wins over BULLET3_LOG_LEVEL.
func GetLogLevel(cliLevel string) (level string, source string) {
	if cliLevel != "" {
		return cliLevel, "CLI --log-level"
	}
	if envLevel := os.Getenv("BULLET3_LOG_LEVEL"); envLevel != "" {
		return envLevel, "BULLET3_LOG_LEVEL"
	}
	return "info", "default"
}

// OpenOutput returns the writer named by BULLET3_LOG_PATH, or stderr.
func OpenOutput() io.Writer {
	if logPath := os.Getenv("BULLET3_LOG_PATH"); logPath != "" {
		if file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644); err == nil {
			return file
		}
	}
	return os.Stderr
}
