package commands

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/term"
	"gopkg.in/natefinch/lumberjack.v2"

	"certagent/internal/config"
)

const (
	logsDir     = "logs"
	logFileName = "certagent.log"
)

// initLogger builds the CLI logger. The returned closer releases the log
// file and is nil when file logging is off or unavailable.
func initLogger(home string, cfg config.LogConfig, verbose, quiet bool) (zerolog.Logger, io.Closer) {
	console := selectOutput()
	var (
		writer io.Writer = console
		closer io.Closer
	)
	if cfg.FileEnabled && home != "" {
		lj, err := createLogFileWriter(home, cfg)
		if err == nil {
			writer = zerolog.MultiLevelWriter(console, lj)
			closer = lj
		} else {
			fmt.Fprintf(os.Stderr, "warning: %v\n", err)
		}
	}
	return zerolog.New(writer).Level(selectLevel(verbose, quiet)).With().Timestamp().Logger(), closer
}

func selectLevel(verbose, quiet bool) zerolog.Level {
	switch {
	case verbose:
		return zerolog.DebugLevel
	case quiet:
		return zerolog.WarnLevel
	default:
		return zerolog.InfoLevel
	}
}

// selectOutput uses a console writer on a TTY unless NO_COLOR is set, JSON
// on stderr otherwise.
func selectOutput() io.Writer {
	if term.IsTerminal(int(os.Stderr.Fd())) && os.Getenv("NO_COLOR") == "" {
		return zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}
	}
	return os.Stderr
}

func createLogFileWriter(home string, cfg config.LogConfig) (*lumberjack.Logger, error) {
	dir := filepath.Join(home, logsDir)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	return &lumberjack.Logger{
		Filename:   filepath.Join(dir, logFileName),
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		Compress:   true,
	}, nil
}
