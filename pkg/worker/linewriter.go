package worker

import (
	"bytes"
	"errors"
	"os/exec"
	"strings"
	"sync"
	"unicode/utf8"
)

// maxLineBytes bounds a single line; longer output is split on a rune
// boundary.
const maxLineBytes = 64 * 1024

// lineWriter splits a byte stream into lines and calls fn for each
// non-blank one. A trailing fragment is held until the next newline or Flush.
type lineWriter struct {
	mu  sync.Mutex
	buf []byte
	fn  func(string)
}

func newLineWriter(fn func(string)) *lineWriter {
	return &lineWriter{fn: fn}
}

func (w *lineWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.buf = append(w.buf, p...)
	off := 0
	for {
		i := bytes.IndexByte(w.buf[off:], '\n')
		if i < 0 {
			break
		}
		w.emitSplit(w.buf[off : off+i])
		off += i + 1
	}
	for len(w.buf)-off > maxLineBytes {
		cut := splitPoint(w.buf[off:])
		w.emit(w.buf[off : off+cut])
		off += cut
	}
	n := copy(w.buf, w.buf[off:])
	w.buf = w.buf[:n]
	return len(p), nil
}

// Flush emits any buffered partial line.
func (w *lineWriter) Flush() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.buf) > 0 {
		w.emitSplit(w.buf)
		w.buf = w.buf[:0]
	}
}

// emitSplit emits b in pieces of at most maxLineBytes.
func (w *lineWriter) emitSplit(b []byte) {
	for len(b) > maxLineBytes {
		cut := splitPoint(b)
		w.emit(b[:cut])
		b = b[cut:]
	}
	w.emit(b)
}

// splitPoint returns where to cut b, which is longer than maxLineBytes, so
// that no UTF-8 sequence is broken.
func splitPoint(b []byte) int {
	n := maxLineBytes
	for n > maxLineBytes-utf8.UTFMax && !utf8.RuneStart(b[n]) {
		n--
	}
	if !utf8.RuneStart(b[n]) {
		return maxLineBytes
	}
	return n
}

func (w *lineWriter) emit(b []byte) {
	line := strings.TrimRight(string(b), "\r")
	if strings.TrimSpace(line) == "" {
		return
	}
	w.fn(line)
}

func errorIsWaitDelay(err error) bool {
	return errors.Is(err, exec.ErrWaitDelay)
}
