// Package testlog provides a log handler for unit tests.
package testlog

import (
	"bytes"
	"io"
	"log/slog"
	"sync"

	"github.com/ethereum/go-ethereum/log"
)

// Testing is the subset of testing.TB the logger needs.
type Testing interface {
	Logf(format string, args ...any)
	Helper()
}

type bufWriter struct {
	t   Testing
	mu  sync.Mutex
	buf bytes.Buffer
}

func (w *bufWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.t.Helper()
	n, err := w.buf.Write(p)
	if err != nil {
		return n, err
	}
	// Flush complete lines to the test log.
	for {
		line, err := w.buf.ReadString('\n')
		if err == io.EOF || (err == nil && len(line) > 0 && line[len(line)-1] != '\n') {
			// Partial line, keep it buffered.
			w.buf.Reset()
			w.buf.WriteString(line)
			break
		}
		if err != nil {
			break
		}
		w.t.Logf("%s", line[:len(line)-1])
	}
	return n, nil
}

// Logger returns a logger that routes all records through t.Logf, so log
// output is attributed to the test that produced it.
func Logger(t Testing, level slog.Level) log.Logger {
	w := &bufWriter{t: t}
	return log.NewLogger(log.NewTerminalHandlerWithLevel(w, level, false))
}
