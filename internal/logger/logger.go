package logger

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Setup initializes the global zerolog logger writing to stdout.
//   - level: log level string (trace, debug, info, warn, error, fatal, panic)
//   - format: "json" for production, "pretty" for human-readable dev output
func Setup(level, format string) zerolog.Logger {
	return SetupTo(os.Stdout, level, format)
}

// SetupTo is Setup with an explicit destination. The terminal client logs to
// stderr so the exam screen on stdout stays readable.
func SetupTo(out io.Writer, level, format string) zerolog.Logger {
	return build(console(out, format), level)
}

// SetupWithFile is Setup plus a JSON copy of every entry in a rotated log
// file. An empty path behaves like Setup.
func SetupWithFile(level, format, path string) zerolog.Logger {
	if path == "" {
		return Setup(level, format)
	}
	return build(zerolog.MultiLevelWriter(console(os.Stdout, format), RotatingFile(path)), level)
}

// RotatingFile returns a size-rotated, compressed log file writer.
func RotatingFile(path string) *lumberjack.Logger {
	return &lumberjack.Logger{
		Filename:   path,
		MaxSize:    10, // megabytes
		MaxBackups: 3,
		MaxAge:     7, // days
		Compress:   true,
	}
}

func console(out io.Writer, format string) io.Writer {
	if format == "pretty" {
		return zerolog.ConsoleWriter{
			Out:        out,
			TimeFormat: time.RFC3339,
		}
	}
	return out
}

func build(writer io.Writer, level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}

	zerolog.SetGlobalLevel(lvl)

	return zerolog.New(writer).
		With().
		Timestamp().
		Caller().
		Logger()
}
