package common

import (
	"fmt"
	"io"
	"log"
	"os"
	"slices"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/lni/dragonboat/v4/logger"
)

// LoggerNames lists the loggers used by the packages of this module.
var LoggerNames = []string{"rcu", "reclaim", "lfht", "torture", "perf"}

var (
	outputMu sync.Mutex
	output   io.Writer = os.Stderr
)

// SetLogOutput redirects loggers created afterwards to w
func SetLogOutput(w io.Writer) {
	outputMu.Lock()
	defer outputMu.Unlock()
	output = w
}

func logOutput() io.Writer {
	outputMu.Lock()
	defer outputMu.Unlock()
	return output
}

// levelTags are the fixed width tags written in front of every line
var levelTags = map[logger.LogLevel]string{
	logger.CRITICAL: "CRIT",
	logger.ERROR:    "ERROR",
	logger.WARNING:  "WARN",
	logger.INFO:     "INFO",
	logger.DEBUG:    "DEBUG",
}

// pkgLogger is the logger.ILogger of one package. The level may change while worker
// goroutines (reclaimer, resize worker) log.
type pkgLogger struct {
	name  string
	level atomic.Int32
	out   *log.Logger
}

func (l *pkgLogger) SetLevel(level logger.LogLevel) {
	l.level.Store(int32(level))
}

func (l *pkgLogger) enabled(level logger.LogLevel) bool {
	return logger.LogLevel(l.level.Load()) >= level
}

func (l *pkgLogger) Debugf(format string, args ...interface{}) {
	l.logf(logger.DEBUG, format, args...)
}

func (l *pkgLogger) Infof(format string, args ...interface{}) {
	l.logf(logger.INFO, format, args...)
}

func (l *pkgLogger) Warningf(format string, args ...interface{}) {
	l.logf(logger.WARNING, format, args...)
}

func (l *pkgLogger) Errorf(format string, args ...interface{}) {
	l.logf(logger.ERROR, format, args...)
}

// Panicf logs the message at CRIT before it panics
func (l *pkgLogger) Panicf(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	l.out.Printf("%-5s [%s] %s", levelTags[logger.CRITICAL], l.name, msg)
	panic(l.name + ": " + msg)
}

func (l *pkgLogger) logf(level logger.LogLevel, format string, args ...interface{}) {
	if !l.enabled(level) {
		return
	}
	l.out.Printf("%-5s [%s] %s", levelTags[level], l.name, fmt.Sprintf(format, args...))
}

// CreateLogger implements the logger.Factory signature. Loggers of this module start at
// INFO, loggers of other packages (e.g. dragonboat internals) only report warnings.
func CreateLogger(pkgName string) logger.ILogger {
	l := &pkgLogger{
		name: pkgName,
		out:  log.New(logOutput(), "urcu ", log.Ldate|log.Ltime|log.Lmicroseconds|log.Lmsgprefix),
	}

	level := logger.WARNING
	if slices.Contains(LoggerNames, pkgName) {
		level = logger.INFO
	}
	l.SetLevel(level)
	return l
}

// ParseLogLevel converts a string level to logger.LogLevel
func ParseLogLevel(level string) (logger.LogLevel, error) {
	switch strings.ToLower(level) {
	case "debug":
		return logger.DEBUG, nil
	case "info":
		return logger.INFO, nil
	case "warning", "warn":
		return logger.WARNING, nil
	case "error":
		return logger.ERROR, nil
	default:
		return 0, fmt.Errorf("invalid log level: %s. must be one of debug, info, warn, error", level)
	}
}

// InitLoggers installs the log format and sets the level of all loggers of this module
func InitLoggers(level string) error {
	lvl, err := ParseLogLevel(level)
	if err != nil {
		return err
	}

	logger.SetLoggerFactory(CreateLogger)

	for _, name := range LoggerNames {
		logger.GetLogger(name).SetLevel(lvl)
	}
	return nil
}
