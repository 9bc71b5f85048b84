// Package logging provides structured logging for the CLI and the list engine.
//
// Console lines go to stderr so stdout stays free for list output. An
// optional rotating JSON file receives the same records, and warnings and
// errors are mirrored to the event bus when one is attached.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/voltline/evdash/internal/constants"
	"github.com/voltline/evdash/internal/events"
)

const consoleTimeFormat = "15:04:05"

// Logger wraps a zerolog.Logger with a console sink, an optional log file
// and a component tag.
type Logger struct {
	zlog      zerolog.Logger
	console   io.Writer
	file      *lumberjack.Logger
	component string
	hook      busHook
	discard   bool
}

// NewLogger returns a console logger. Mode "nop" discards everything; any
// other mode writes human-readable lines to stderr.
func NewLogger(mode string, bus *events.EventBus) *Logger {
	l := &Logger{console: os.Stderr, hook: busHook{bus: bus}, discard: mode == "nop"}
	l.rebuild()
	return l
}

func NewDefaultCLILogger() *Logger { return NewLogger("cli", nil) }

func NewNopLogger() *Logger { return NewLogger("nop", nil) }

func (l *Logger) Debug() *zerolog.Event { return l.zlog.Debug() }
func (l *Logger) Info() *zerolog.Event  { return l.zlog.Info() }
func (l *Logger) Warn() *zerolog.Event  { return l.zlog.Warn() }
func (l *Logger) Error() *zerolog.Event { return l.zlog.Error() }

// Component returns a child logger that tags every record with name.
func (l *Logger) Component(name string) *Logger {
	child := *l
	child.component = name
	child.hook.component = name
	child.rebuild()
	return &child
}

// SetOutput redirects console lines to w, for example around a progress bar.
func (l *Logger) SetOutput(w io.Writer) {
	l.console = w
	l.rebuild()
}

// EnableFile adds a rotating JSON log file next to the console output.
func (l *Logger) EnableFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create log directory: %w", err)
	}
	l.file = &lumberjack.Logger{
		Filename:   path,
		MaxSize:    constants.LogMaxSizeMB,
		MaxBackups: constants.LogMaxBackups,
		MaxAge:     constants.LogMaxAgeDays,
		Compress:   true,
	}
	l.rebuild()
	return nil
}

// Close closes the log file, if one is open.
func (l *Logger) Close() error {
	if l.file == nil {
		return nil
	}
	return l.file.Close()
}

func (l *Logger) rebuild() {
	if l.discard {
		l.zlog = zerolog.Nop()
		return
	}
	var out io.Writer = zerolog.ConsoleWriter{Out: l.console, TimeFormat: consoleTimeFormat}
	if l.file != nil {
		out = zerolog.MultiLevelWriter(out, l.file)
	}
	ctx := zerolog.New(out).With().Timestamp()
	if l.component != "" {
		ctx = ctx.Str("component", l.component)
	}
	l.zlog = ctx.Logger().Hook(l.hook)
}

// busHook publishes warn and error records as LogEvents.
type busHook struct {
	bus       *events.EventBus
	component string
}

func (h busHook) Run(_ *zerolog.Event, level zerolog.Level, msg string) {
	if h.bus == nil || level < zerolog.WarnLevel || level > zerolog.ErrorLevel {
		return
	}
	lvl := events.WarnLevel
	if level == zerolog.ErrorLevel {
		lvl = events.ErrorLevel
	}
	h.bus.PublishLog(lvl, msg, h.component, nil)
}

func SetGlobalLevel(level zerolog.Level) {
	zerolog.SetGlobalLevel(level)
}

// ParseLevel maps a config value to a level. Empty means info.
func ParseLevel(s string) (zerolog.Level, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return zerolog.InfoLevel, nil
	}
	level, err := zerolog.ParseLevel(s)
	if err != nil {
		return zerolog.InfoLevel, fmt.Errorf("invalid log level %q: %w", s, err)
	}
	return level, nil
}

func init() {
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: consoleTimeFormat})
}
