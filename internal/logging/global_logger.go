package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"github.com/finesssee/streambridge/internal/config"
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// DefaultLogDir is used when logging to file without an explicit log-dir.
const DefaultLogDir = "logs"

// LogFileName is the name of the active log file inside the log directory.
const LogFileName = "streambridge.log"

var (
	setupOnce sync.Once

	outputMu   sync.Mutex
	fileWriter *lumberjack.Logger
)

// SetupBaseLogger installs the text formatter and the recent-entries hook on the global logger.
// Calls after the first are no-ops.
func SetupBaseLogger() {
	setupOnce.Do(func() {
		log.SetOutput(os.Stdout)
		log.SetReportCaller(true)
		log.SetFormatter(&log.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "2006-01-02 15:04:05",
			CallerPrettyfier: func(f *runtime.Frame) (string, string) {
				return "", fmt.Sprintf("%s:%d", filepath.Base(f.File), f.Line)
			},
		})
		log.AddHook(Recent)

		gin.DefaultWriter = log.StandardLogger().WriterLevel(log.DebugLevel)
		gin.DefaultErrorWriter = log.StandardLogger().WriterLevel(log.ErrorLevel)
	})
}

// ConfigureLogOutput points the global logger at a rotating file when logging-to-file is set,
// or back at stdout otherwise. It also applies the debug level from cfg. Safe to call again on
// config reload.
func ConfigureLogOutput(cfg *config.Config) error {
	outputMu.Lock()
	defer outputMu.Unlock()

	if cfg == nil {
		return fmt.Errorf("logging: config is nil")
	}

	if cfg.Debug {
		log.SetLevel(log.DebugLevel)
	} else if log.GetLevel() == log.DebugLevel {
		log.SetLevel(log.InfoLevel)
	}

	if !cfg.LoggingToFile {
		closeFileWriter()
		log.SetOutput(os.Stdout)
		return nil
	}

	dir := strings.TrimSpace(cfg.LogDir)
	if dir == "" {
		dir = DefaultLogDir
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("logging: create log dir: %w", err)
	}

	path := filepath.Join(dir, LogFileName)
	if fileWriter != nil && fileWriter.Filename == path && fileWriter.MaxSize == cfg.LogsMaxSizeMB && fileWriter.MaxBackups == cfg.LogsMaxBackups {
		return nil
	}
	closeFileWriter()
	fileWriter = &lumberjack.Logger{
		Filename:   path,
		MaxSize:    cfg.LogsMaxSizeMB,
		MaxBackups: cfg.LogsMaxBackups,
		Compress:   false,
	}
	log.SetOutput(fileWriter)
	return nil
}

func closeFileWriter() {
	if fileWriter == nil {
		return
	}
	if errClose := fileWriter.Close(); errClose != nil {
		fmt.Fprintf(os.Stderr, "logging: close log file: %v\n", errClose)
	}
	fileWriter = nil
}

// SetLogLevel sets the global level from a name. "verbose" maps to debug and "quiet" or
// "silent" to fatal; unknown names select info.
func SetLogLevel(level string) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug", "verbose":
		log.SetLevel(log.DebugLevel)
	case "warn", "warning":
		log.SetLevel(log.WarnLevel)
	case "error":
		log.SetLevel(log.ErrorLevel)
	case "quiet", "silent":
		log.SetLevel(log.FatalLevel)
	default:
		log.SetLevel(log.InfoLevel)
	}
}
