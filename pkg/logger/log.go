package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	CategoryField = "category"
)

const (
	CategoryTx      = "tx"
	CategoryNetwork = "network"
	CategorySwap    = "swap"
	CategoryAuth    = "auth"
	CategoryHTTP    = "http"
)

// For returns a child of the global logger carrying the category field
func For(category string) zerolog.Logger {
	return log.Logger.With().Str(CategoryField, category).Logger()
}

// Setup installs the global logger. Terminals get the console writer,
// everything else gets JSON lines on stderr.
func Setup(level string, verbose bool) {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	if verbose && lvl > zerolog.DebugLevel {
		lvl = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(lvl)

	var out io.Writer = os.Stderr
	if isatty.IsTerminal(os.Stderr.Fd()) {
		out = zerolog.ConsoleWriter{
			Out:        os.Stderr,
			TimeFormat: time.DateTime,
		}
	}
	log.Logger = zerolog.New(out).With().Timestamp().Logger()
}
