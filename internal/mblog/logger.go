// Package mblog wraps zerolog the way the corpus's own logging package does:
// a package-level configurable base logger, component-scoped children derived
// via .With(), and structured fields on every line instead of formatted
// strings.
package mblog

import (
	"io"
	"os"
	"sync"

	"github.com/rs/zerolog"
)

// Config controls the base logger's behavior.
type Config struct {
	Level  string // debug|info|warn|error; default info
	Output io.Writer
	Pretty bool // human-readable console writer instead of JSON
}

var (
	mu   sync.RWMutex
	base = zerolog.New(os.Stderr).With().Timestamp().Logger()
)

// Configure (re)builds the package-level base logger. Safe to call once at
// startup from cmd/mediabutlerd; the core never calls this itself.
func Configure(cfg Config) {
	mu.Lock()
	defer mu.Unlock()

	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}

	var w io.Writer = os.Stderr
	if cfg.Output != nil {
		w = cfg.Output
	}
	if cfg.Pretty {
		w = zerolog.ConsoleWriter{Out: w}
	}

	base = zerolog.New(w).Level(level).With().Timestamp().Logger()
}

// L returns the current package-level base logger.
func L() zerolog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return base
}

// WithComponent returns a child logger tagged with the given component name,
// matching the corpus's internal/log.WithComponent idiom.
func WithComponent(name string) zerolog.Logger {
	return L().With().Str("component", name).Logger()
}
