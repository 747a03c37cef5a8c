package core

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/sirupsen/logrus"
)

// LogrusLogger adapts a logrus logger or entry to Logger.
type LogrusLogger struct {
	base logrus.FieldLogger
}

// NewLogrusLogger wraps base; a nil base uses the logrus standard logger.
func NewLogrusLogger(base logrus.FieldLogger) *LogrusLogger {
	if base == nil {
		base = logrus.StandardLogger()
	}
	return &LogrusLogger{base: base}
}

func (l *LogrusLogger) Debug(msg string, args ...any) { l.with(args).Debug(msg) }
func (l *LogrusLogger) Info(msg string, args ...any)  { l.with(args).Info(msg) }
func (l *LogrusLogger) Warn(msg string, args ...any)  { l.with(args).Warn(msg) }
func (l *LogrusLogger) Error(msg string, args ...any) { l.with(args).Error(msg) }

func (l *LogrusLogger) with(args []any) logrus.FieldLogger {
	if len(args) == 0 {
		return l.base
	}
	fields := make(logrus.Fields, (len(args)+1)/2)
	for i := 0; i < len(args); i += 2 {
		key := fmt.Sprint(args[i])
		if i+1 >= len(args) {
			fields["!BADKEY"] = args[i]
			break
		}
		fields[key] = args[i+1]
	}
	return l.base.WithFields(fields)
}

// NewCommandLogger builds the logrus logger used by the command line tools.
// Timestamps are dropped when out is not a terminal, since the supervising
// process is expected to add its own.
func NewCommandLogger(out io.Writer, level string) (*logrus.Logger, error) {
	logger := logrus.New()
	logger.SetOutput(out)
	if f, ok := out.(*os.File); ok && !isatty.IsTerminal(f.Fd()) {
		logger.Formatter = &logrus.TextFormatter{DisableTimestamp: true}
	}
	if strings.TrimSpace(level) == "" {
		level = "info"
	}
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	logger.SetLevel(lvl)
	return logger, nil
}
