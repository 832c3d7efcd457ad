package logging

import (
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const maxLogSize = 2 * 1024 * 1024 // 2MB

type RotatingWriter struct {
	mu      sync.Mutex
	file    *os.File
	path    string
	size    int64
	maxSize int64
}

// Setup points the global zerolog logger at stdout (console format) and a
// size-bounded JSON log file. An empty logPath logs to stdout only.
func Setup(logPath, level string) (*RotatingWriter, error) {
	zerolog.SetGlobalLevel(ParseLevel(level))
	zerolog.TimeFieldFormat = time.RFC3339

	console := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: "15:04:05"}
	if logPath == "" {
		log.Logger = zerolog.New(console).With().Timestamp().Logger()
		return nil, nil
	}

	rw, err := NewRotatingWriter(logPath, maxLogSize)
	if err != nil {
		return nil, err
	}

	multi := io.MultiWriter(console, rw)
	log.Logger = zerolog.New(multi).With().Timestamp().Logger()
	return rw, nil
}

func NewRotatingWriter(logPath string, maxSize int64) (*RotatingWriter, error) {
	// Truncate if too large on startup
	if info, err := os.Stat(logPath); err == nil && info.Size() > maxSize {
		os.Truncate(logPath, 0)
	}

	f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, err
	}

	info, _ := f.Stat()
	size := int64(0)
	if info != nil {
		size = info.Size()
	}

	return &RotatingWriter{
		file:    f,
		path:    logPath,
		size:    size,
		maxSize: maxSize,
	}, nil
}

func (w *RotatingWriter) Write(p []byte) (n int, err error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	n, err = w.file.Write(p)
	w.size += int64(n)

	if w.size > w.maxSize {
		w.rotate()
	}

	return n, err
}

func (w *RotatingWriter) rotate() {
	w.file.Close()

	// Keep one backup
	os.Rename(w.path, w.path+".1")

	f, err := os.OpenFile(w.path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return
	}

	w.file = f
	w.size = 0
}

func (w *RotatingWriter) Close() error {
	if w == nil {
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.file.Close()
}

func ParseLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
