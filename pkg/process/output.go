package process

import (
	"bytes"
	"sync"

	"github.com/sirupsen/logrus"
)

// maxLineLength caps a logged line. Longer lines are logged in pieces.
const maxLineLength = 64 * 1024

// lineWriter logs every line written to it as one entry. It never fails a
// write, so a child is never cut off from its output pipe however long its
// lines get.
type lineWriter struct {
	entry *logrus.Entry
	level logrus.Level

	mu  sync.Mutex
	buf []byte
}

func newLineWriter(entry *logrus.Entry, level logrus.Level) *lineWriter {
	return &lineWriter{entry: entry, level: level}
}

func (w *lineWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.buf = append(w.buf, p...)
	for {
		i := bytes.IndexByte(w.buf, '\n')
		if i < 0 {
			break
		}
		w.emit(w.buf[:i])
		w.buf = w.buf[i+1:]
	}
	for len(w.buf) >= maxLineLength {
		w.emit(w.buf[:maxLineLength])
		w.buf = w.buf[maxLineLength:]
	}
	// keep the buffer from pinning consumed bytes
	w.buf = append([]byte(nil), w.buf...)
	return len(p), nil
}

// Close logs whatever is left after the last newline.
func (w *lineWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if len(w.buf) > 0 {
		w.emit(w.buf)
		w.buf = nil
	}
	return nil
}

func (w *lineWriter) emit(line []byte) {
	w.entry.Log(w.level, string(bytes.TrimSuffix(line, []byte("\r"))))
}
