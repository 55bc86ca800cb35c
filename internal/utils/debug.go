package utils

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const logPrefix = "debug-"

var (
	logMu   sync.RWMutex
	logger  = zap.NewNop()
	logFile *os.File
	logsDir string
)

// ConfigureDebug opens a new timestamped log file in dir and routes the
// process logger to it. Extra writers (stderr for the daemon) receive Info
// and above.
func ConfigureDebug(dir string, extra ...io.Writer) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return
	}
	name := filepath.Join(dir, fmt.Sprintf("%s%s.log", logPrefix, time.Now().Format("20060102-150405.000")))
	f, err := os.OpenFile(name, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encCfg.EncodeLevel = zapcore.CapitalLevelEncoder

	cores := []zapcore.Core{
		zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), zapcore.AddSync(f), zap.DebugLevel),
	}
	for _, w := range extra {
		cores = append(cores, zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), zapcore.AddSync(w), zap.InfoLevel))
	}

	logMu.Lock()
	defer logMu.Unlock()
	if logFile != nil {
		_ = logger.Sync()
		_ = logFile.Close()
	}
	logger = zap.New(zapcore.NewTee(cores...))
	logFile = f
	logsDir = dir
}

// Logger returns the process logger. It discards everything until
// ConfigureDebug has run.
func Logger() *zap.Logger {
	logMu.RLock()
	defer logMu.RUnlock()
	return logger
}

// Debug writes a message to the debug log
func Debug(format string, args ...any) {
	Logger().Sugar().Debugf(format, args...)
}

// CloseLog flushes and closes the current log file.
func CloseLog() {
	logMu.Lock()
	defer logMu.Unlock()
	_ = logger.Sync()
	if logFile != nil {
		_ = logFile.Close()
		logFile = nil
	}
	logger = zap.NewNop()
}

// CleanupLogs keeps the newest keep log files in the configured logs
// directory and removes the rest. keep <= 0 disables cleanup.
func CleanupLogs(keep int) {
	logMu.RLock()
	dir := logsDir
	logMu.RUnlock()
	if dir == "" || keep <= 0 {
		return
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}
	var logs []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasPrefix(e.Name(), logPrefix) && strings.HasSuffix(e.Name(), ".log") {
			logs = append(logs, e.Name())
		}
	}
	if len(logs) <= keep {
		return
	}

	// Names embed the creation timestamp, so lexical order is age order.
	sort.Strings(logs)
	for _, name := range logs[:len(logs)-keep] {
		if err := os.Remove(filepath.Join(dir, name)); err != nil {
			Debug("Failed to remove old log %s: %v", name, err)
		}
	}
}
