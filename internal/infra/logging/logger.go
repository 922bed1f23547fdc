package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

var current atomic.Pointer[zerolog.Logger]

func init() {
	l := zerolog.New(os.Stdout).With().Timestamp().Logger()
	current.Store(&l)
}

func get() *zerolog.Logger { return current.Load() }

// InitLogger configures the package logger to write JSON lines into a
// rotating file, optionally mirrored to stdout.
func InitLogger(file string, maxSizeMB, maxBackups, maxAgeDays int, compress bool, level string, console bool) {
	var writers []io.Writer
	if file != "" {
		writers = append(writers, &lumberjack.Logger{
			Filename:   file,
			MaxSize:    maxSizeMB,
			MaxBackups: maxBackups,
			MaxAge:     maxAgeDays,
			Compress:   compress,
		})
	}
	if console || len(writers) == 0 {
		writers = append(writers, zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
	}

	zerolog.TimeFieldFormat = time.RFC3339
	l := zerolog.New(zerolog.MultiLevelWriter(writers...)).
		With().
		Timestamp().
		Logger().
		Level(parseLevel(level))
	current.Store(&l)
}

// SetLogLevel changes the level of the package logger. Unknown levels fall
// back to info.
func SetLogLevel(level string) {
	l := get().Level(parseLevel(level))
	current.Store(&l)
}

// SetLoggerForTest replaces the package logger.
func SetLoggerForTest(l zerolog.Logger) {
	current.Store(&l)
}

func parseLevel(level string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || level == "" {
		return zerolog.InfoLevel
	}
	return lvl
}

// Debug logs msg with alternating key/value pairs.
func Debug(msg string, kv ...any) { write(get().Debug(), msg, kv) }

// Info logs msg with alternating key/value pairs.
func Info(msg string, kv ...any) { write(get().Info(), msg, kv) }

// Warn logs msg with alternating key/value pairs.
func Warn(msg string, kv ...any) { write(get().Warn(), msg, kv) }

// Error logs msg with alternating key/value pairs.
func Error(msg string, kv ...any) { write(get().Error(), msg, kv) }

func write(ev *zerolog.Event, msg string, kv []any) {
	if ev == nil {
		return
	}
	for i := 0; i < len(kv); i += 2 {
		key := fmt.Sprint(kv[i])
		if i+1 >= len(kv) {
			// dangling key
			ev = ev.Interface(key, nil)
			break
		}
		switch v := kv[i+1].(type) {
		case error:
			ev = ev.AnErr(key, v)
		default:
			ev = ev.Interface(key, v)
		}
	}
	ev.Msg(msg)
}
