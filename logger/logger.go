package logger

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"go.uber.org/zap"
)

const (
	LOGGER_FILE = "ndecrypt.log"
)

var (
	logger       *zap.Logger
	registerSink sync.Once
)

// newConfig returns a development config writing to logPath, at info level unless debug.
func newConfig(logPath string, debug bool) zap.Config {
	config := zap.NewDevelopmentConfig()
	if !debug {
		config.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}

	if runtime.GOOS == "windows" {
		registerSink.Do(func() {
			zap.RegisterSink("winfile", func(u *url.URL) (zap.Sink, error) {
				// Remove leading slash left by url.Parse()
				return os.OpenFile(u.Path[1:], os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0644)
			})
		})
		logPath = "winfile:///" + logPath
	}

	config.OutputPaths = []string{logPath}
	config.ErrorOutputPaths = []string{logPath}
	return config
}

func newLogger(workingFolder string, debug bool) {
	logPath := filepath.Join(workingFolder, LOGGER_FILE)
	// each run starts a fresh log
	os.Remove(logPath)

	var loggerErr error
	logger, loggerErr = newConfig(logPath, debug).Build()
	if loggerErr != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger - %v, logging is disabled\n", loggerErr)
		logger = zap.NewNop()
	}
	zap.ReplaceGlobals(logger)
}

// Get sugared logger, building the global logger on first use
func GetSugar(workingFolder string, debug bool) *zap.SugaredLogger {
	if logger == nil {
		newLogger(workingFolder, debug)
	}

	return logger.Sugar()
}

// Sync on defer (call it with defer)
func Defer() {
	if logger != nil {
		logger.Sync()
	}
}
