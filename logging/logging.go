/*
Package logging configures the process-wide logrus logger.

PURPOSE:
  One place that decides level, format and destination. Components never
  create their own logger; they receive a logrus.FieldLogger and add a
  "component" field.

OUTPUT:
  stderr by default. When File is set, entries go to a size-rotated file
  (lumberjack) and, if Stderr is also true, to both.

FORMATS:
  text: logrus TextFormatter with full timestamps
  json: logrus JSONFormatter, one object per line
  event: single-line "Date: ..., Event Source: ..., Event Type: ..." records
*/
package logging

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config is the "log" section of the config file.
type Config struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	File       string `yaml:"file"`
	Stderr     bool   `yaml:"stderr"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

// DefaultConfig logs text at info level to stderr.
func DefaultConfig() Config {
	return Config{
		Level:      "info",
		Format:     "text",
		Stderr:     true,
		MaxSizeMB:  10,
		MaxBackups: 3,
		MaxAgeDays: 28,
		Compress:   true,
	}
}

// New builds a logger for the named system. The returned closer flushes
// and closes the rotated file, if any.
func New(system string, cfg Config) (*logrus.Logger, io.Closer, error) {
	logger := logrus.New()

	level, err := logrus.ParseLevel(strings.TrimSpace(cfg.Level))
	if err != nil {
		return nil, nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}
	logger.SetLevel(level)

	switch strings.ToLower(cfg.Format) {
	case "", "text":
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{})
	case "event":
		logger.SetFormatter(&EventFormatter{SystemName: system})
	default:
		return nil, nil, fmt.Errorf("invalid log format %q (want text, json or event)", cfg.Format)
	}

	var closer io.Closer = nopCloser{}
	switch {
	case cfg.File == "":
		logger.SetOutput(os.Stderr)
	default:
		file := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   cfg.Compress,
		}
		closer = file
		if cfg.Stderr {
			logger.SetOutput(io.MultiWriter(os.Stderr, file))
		} else {
			logger.SetOutput(file)
		}
	}
	return logger, closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// Discard returns a logger that drops everything. Used in tests.
func Discard() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

// =============================================================================
// EVENT FORMATTER
// =============================================================================

// EventFormatter writes one flat line per entry, fields sorted by key.
type EventFormatter struct {
	SystemName string
}

func (f *EventFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	b := entry.Buffer
	if b == nil {
		b = &bytes.Buffer{}
	}

	fmt.Fprintf(b, "Date: %s, Time: %s, ", entry.Time.Format("2006-01-02"), entry.Time.Format("15:04:05"))
	fmt.Fprintf(b, "Event Source: %s, ", f.SystemName)
	fmt.Fprintf(b, "Event Type: %s, ", strings.ToUpper(entry.Level.String()))
	fmt.Fprintf(b, "Message: %s", entry.Message)

	for _, k := range sortedKeys(entry.Data) {
		fmt.Fprintf(b, ", %s=%v", k, entry.Data[k])
	}
	if entry.HasCaller() {
		fmt.Fprintf(b, ", Location: %s:%d", entry.Caller.File, entry.Caller.Line)
	}
	b.WriteByte('\n')
	return b.Bytes(), nil
}

func sortedKeys(data logrus.Fields) []string {
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
