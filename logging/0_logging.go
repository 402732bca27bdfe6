package logging

import (
	"io"
	"log"
	"os"
)

var (
	DEBUGLogger   *log.Logger
	INFOLogger    *log.Logger
	WARNINGLogger *log.Logger
	ERRORLogger   *log.Logger
)

const (
	DEBUG_LEVEL   = 10
	INFO_LEVEL    = 20
	WARNING_LEVEL = 30
	ERROR_LEVEL   = 40
)

var (
	LOG_LEVEL = INFO_LEVEL // default log level
)

const flags = log.Ldate | log.Ltime | log.Lmicroseconds | log.Lmsgprefix | log.Lshortfile

func init() {
	SetOutput(os.Stderr)

	logLevelStr := os.Getenv("LOG_LEVEL")
	if logLevelStr == "" {
		return
	}
	level, ok := ParseLevel(logLevelStr)
	if !ok {
		WARNINGLogger.Printf("Unrecognized LOG_LEVEL env variable value: %s. Keeping LOG_LEVEL at level INFO (20)", logLevelStr)
		return
	}
	SetLevel(level)
}

// ParseLevel maps a LOG_LEVEL name to its numeric level.
func ParseLevel(name string) (int, bool) {
	switch name {
	case "DEBUG":
		return DEBUG_LEVEL, true
	case "INFO":
		return INFO_LEVEL, true
	case "WARNING":
		return WARNING_LEVEL, true
	case "ERROR":
		return ERROR_LEVEL, true
	}
	return 0, false
}

var output io.Writer = os.Stderr

// SetLevel silences every logger below level.
func SetLevel(level int) {
	LOG_LEVEL = level
	rebuild()
}

// SetOutput redirects all loggers to w, keeping the active level.
func SetOutput(w io.Writer) {
	output = w
	rebuild()
}

func rebuild() {
	DEBUGLogger = log.New(writerFor(DEBUG_LEVEL), "DEBUG ", flags)
	INFOLogger = log.New(writerFor(INFO_LEVEL), "INFO ", flags)
	WARNINGLogger = log.New(writerFor(WARNING_LEVEL), "WARNING ", flags)
	ERRORLogger = log.New(writerFor(ERROR_LEVEL), "ERROR ", flags)
}

func writerFor(level int) io.Writer {
	if level < LOG_LEVEL {
		return io.Discard
	}
	return output
}
