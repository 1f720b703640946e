package monitoring

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var (
	loggerMu sync.RWMutex
	logger   = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
			With().Timestamp().Logger()
)

// Logf is the package-level diagnostic logger. It defaults to an info-level
// zerolog message but may be replaced by SetLogger. Tests or production code
// can redirect or mute it.
var Logf func(format string, v ...interface{}) = defaultLogf

func defaultLogf(format string, v ...interface{}) {
	l := Logger()
	l.Info().Msgf(format, v...)
}

// Debugf logs per-frame detail that is hidden at the default info level.
func Debugf(format string, v ...interface{}) {
	l := Logger()
	l.Debug().Msgf(format, v...)
}

// Warnf logs a recoverable problem, such as a rejected frame or config reload.
func Warnf(format string, v ...interface{}) {
	l := Logger()
	l.Warn().Msgf(format, v...)
}

// Errorf logs a failure that loses data or stops a component. It stays
// visible at every level up to error, whatever Logf has been replaced with.
func Errorf(format string, v ...interface{}) {
	l := Logger()
	l.Error().Msgf(format, v...)
}

// SetLogger replaces the package logger. Passing nil will set a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// Logger returns the structured logger used by Logf's default sink.
func Logger() zerolog.Logger {
	loggerMu.RLock()
	defer loggerMu.RUnlock()
	return logger
}

// SetOutput redirects the structured logger. A console writer is used unless
// json is set.
func SetOutput(w io.Writer, json bool) {
	loggerMu.Lock()
	defer loggerMu.Unlock()
	if !json {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339, NoColor: true}
	}
	logger = zerolog.New(w).Level(logger.GetLevel()).With().Timestamp().Logger()
}

// SetLevel parses one of debug, info, warn or error and applies it to the
// structured logger. An empty name means info.
func SetLevel(name string) error {
	name = strings.TrimSpace(strings.ToLower(name))
	if name == "" {
		name = "info"
	}
	lvl, err := zerolog.ParseLevel(name)
	if err != nil || lvl == zerolog.NoLevel {
		return fmt.Errorf("invalid log level %q", name)
	}
	loggerMu.Lock()
	logger = logger.Level(lvl)
	loggerMu.Unlock()
	return nil
}
