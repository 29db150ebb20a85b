// Package debug writes diagnostic lines to stderr when PRDLOOP_DEBUG is set
// or the --debug flag is given.
package debug

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

var (
	mu      sync.Mutex
	enabled = envEnabled(os.Getenv("PRDLOOP_DEBUG"))
	out     io.Writer = os.Stderr
)

func envEnabled(v string) bool {
	return v == "1" || v == "true"
}

// Enable turns debug output on for the rest of the process.
func Enable() {
	mu.Lock()
	enabled = true
	mu.Unlock()
}

// SetOutput redirects debug output and returns a func restoring the
// previous writer and enabled state.
func SetOutput(w io.Writer) (restore func()) {
	mu.Lock()
	prevOut, prevEnabled := out, enabled
	out, enabled = w, true
	mu.Unlock()
	return func() {
		mu.Lock()
		out, enabled = prevOut, prevEnabled
		mu.Unlock()
	}
}

// Logf writes one timestamped line when debug output is on.
func Logf(format string, args ...any) {
	mu.Lock()
	defer mu.Unlock()
	if !enabled {
		return
	}
	fmt.Fprintf(out, "[debug %s] %s\n", time.Now().Format("15:04:05.000"), fmt.Sprintf(format, args...))
}
