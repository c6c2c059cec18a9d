package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/apex/log"
)

// Environment variables used to configure the logger.
const (
	envLogPath  = "NASA_PROXY_LOG"
	envLogLevel = "NASA_PROXY_LOG_LEVEL"
)

var (
	mu            sync.Mutex
	logFile       *os.File
	isInitialized bool
)

// InitFromEnv initializes the logger using NASA_PROXY_LOG and
// NASA_PROXY_LOG_LEVEL. Without a path, logs go to stderr.
func InitFromEnv() error {
	level := strings.ToUpper(os.Getenv(envLogLevel))
	if level == "" {
		level = "INFO"
	}
	return Init(os.Getenv(envLogPath), level)
}

// Init initializes the logger to write to the provided file path at the
// given level. An empty path writes to stderr. Parent directories are
// created as needed and the file is opened in append mode.
func Init(path, level string) error {
	mu.Lock()
	defer mu.Unlock()
	if isInitialized {
		return nil
	}
	var w io.Writer = os.Stderr
	if path != "" {
		if err := ensureParentDir(path); err != nil {
			return err
		}
		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return err
		}
		logFile = f
		w = f
	}
	lvl, err := log.ParseLevel(strings.ToLower(level))
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}
	log.SetHandler(NewHandler(w))
	log.SetLevel(lvl)
	isInitialized = true
	return nil
}

// Close closes the underlying log file, if open.
func Close() error {
	mu.Lock()
	defer mu.Unlock()
	if logFile != nil {
		err := logFile.Close()
		logFile = nil
		isInitialized = false
		return err
	}
	return nil
}

// Handler formats entries as single lines: timestamp, level initial,
// message and sorted fields.
type Handler struct {
	mu sync.Mutex
	w  io.Writer
}

// NewHandler returns a Handler writing to w.
func NewHandler(w io.Writer) *Handler { return &Handler{w: w} }

// HandleLog implements the log.Handler interface.
func (h *Handler) HandleLog(e *log.Entry) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	ts := e.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	level := strings.ToUpper(e.Level.String())
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s %.1s %s", ts.Format("2006-01-02 15:04:05.000"), level, e.Message)
	for _, name := range e.Fields.Names() {
		fmt.Fprintf(&sb, " %s=%v", name, e.Fields.Get(name))
	}
	sb.WriteByte('\n')
	_, err := io.WriteString(h.w, sb.String())
	return err
}

// Debugf logs debug messages.
func Debugf(format string, args ...any) { log.Debugf(format, args...) }

// Infof logs informational messages.
func Infof(format string, args ...any) { log.Infof(format, args...) }

// Warnf logs warnings.
func Warnf(format string, args ...any) { log.Warnf(format, args...) }

// Errorf logs errors.
func Errorf(format string, args ...any) { log.Errorf(format, args...) }

// WithFields returns an entry carrying structured fields.
func WithFields(fields log.Fields) *log.Entry { return log.WithFields(fields) }

func ensureParentDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
