package log

import (
	"bytes"
	"context"
	"log/slog"
	"sync"
)

// DefaultMaxLine caps a single record produced by a LineWriter.
const DefaultMaxLine = 4096

// LineWriter turns a byte stream, such as guest stderr, into one log record
// per line. Lines longer than the limit are split. Call Close to emit a
// trailing partial line.
type LineWriter struct {
	logger  *slog.Logger
	buf     bytes.Buffer
	level   slog.Level
	maxLine int
	mu      sync.Mutex
}

// NewLineWriter creates a LineWriter logging at level.
func NewLineWriter(logger *slog.Logger, level slog.Level) *LineWriter {
	if logger == nil {
		logger = slog.Default()
	}
	return &LineWriter{logger: logger, level: level, maxLine: DefaultMaxLine}
}

// Write implements io.Writer. It never fails.
func (w *LineWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.buf.Write(p)
	for {
		data := w.buf.Bytes()
		i := bytes.IndexByte(data, '\n')
		switch {
		case i >= 0 && i <= w.maxLine:
			w.emit(data[:i])
			w.buf.Next(i + 1)
		case len(data) > w.maxLine:
			w.emit(data[:w.maxLine])
			w.buf.Next(w.maxLine)
		default:
			return len(p), nil
		}
	}
}

// Close flushes a pending partial line.
func (w *LineWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.buf.Len() > 0 {
		w.emit(w.buf.Bytes())
		w.buf.Reset()
	}
	return nil
}

func (w *LineWriter) emit(line []byte) {
	line = bytes.TrimSuffix(line, []byte("\r"))
	if len(line) == 0 {
		return
	}
	w.logger.Log(context.Background(), w.level, string(line))
}
