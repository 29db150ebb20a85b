// Package progress writes the append-only progress log that lives next to
// the PRD. The log gets a header when it is created and one timestamped
// entry per event after that. Document changes are recorded as unified
// diffs.
package progress

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/aymanbagabas/go-udiff"
)

// timestampFormat is the format for log timestamps.
const timestampFormat = "2006-01-02 15:04:05"

// DefaultFileName is the progress log name used next to the PRD.
const DefaultFileName = "progress.txt"

// DefaultPath returns the default progress log path for a PRD path.
func DefaultPath(prdPath string) string {
	return filepath.Join(filepath.Dir(prdPath), DefaultFileName)
}

// Config holds logger configuration.
type Config struct {
	Path    string // log file path (default: progress.txt next to PRDPath)
	PRDPath string
	Name    string // PRD name, written in the header
	RunID   string
	WorkDir string
	Writer  io.Writer        // optional additional writer for live output
	Now     func() time.Time // defaults to time.Now
}

// Logger appends timestamped progress to the log file.
type Logger struct {
	mu        sync.Mutex
	file      *os.File
	writer    io.Writer
	path      string
	now       func() time.Time
	startTime time.Time
	runID     string
}

// Open opens (or creates) the progress log in append mode. A header is
// written only when the file is new or empty.
func Open(cfg Config) (*Logger, error) {
	path := cfg.Path
	if path == "" {
		if cfg.PRDPath == "" {
			return nil, fmt.Errorf("progress log: no path")
		}
		path = DefaultPath(cfg.PRDPath)
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create progress dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open progress log: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat progress log: %w", err)
	}

	l := &Logger{
		file:      f,
		writer:    cfg.Writer,
		path:      path,
		now:       now,
		startTime: now(),
		runID:     cfg.RunID,
	}

	if info.Size() == 0 {
		l.writef("# prdloop progress log\n")
		if cfg.Name != "" {
			l.writef("PRD: %s\n", cfg.Name)
		}
		if cfg.PRDPath != "" {
			l.writef("File: %s\n", cfg.PRDPath)
		}
		l.writef("Created: %s\n", l.startTime.Format(timestampFormat))
		l.writef("%s\n", strings.Repeat("-", 60))
	}
	return l, nil
}

// Path returns the log file path.
func (l *Logger) Path() string {
	return l.path
}

// Printf writes a timestamped entry.
func (l *Logger) Printf(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	l.writef("[%s] %s\n", l.now().Format(timestampFormat), msg)
}

// Errorf writes a timestamped error entry.
func (l *Logger) Errorf(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	l.writef("[%s] ERROR: %s\n", l.now().Format(timestampFormat), msg)
}

// Section writes a section header.
func (l *Logger) Section(title string) {
	l.writef("\n--- %s ---\n", title)
}

// RunStarted marks the beginning of a run.
func (l *Logger) RunStarted(maxIterations int) {
	title := "Run started"
	if l.runID != "" {
		title = fmt.Sprintf("Run %s started", l.runID)
	}
	l.Section(title)
	if maxIterations > 0 {
		l.Printf("Max iterations: %d", maxIterations)
	}
}

// Iteration logs the start of an iteration on a task.
func (l *Logger) Iteration(n, maxIter int, taskID, title string) {
	if maxIter > 0 {
		l.Section(fmt.Sprintf("Iteration %d/%d", n, maxIter))
	} else {
		l.Section(fmt.Sprintf("Iteration %d", n))
	}
	l.Printf("Task: %s %s", taskID, title)
}

// FilesChanged logs working-tree changes.
func (l *Logger) FilesChanged(files []string) {
	if len(files) == 0 {
		return
	}
	l.Printf("Files changed: %s", strings.Join(files, ", "))
}

// Diff logs a unified diff between two versions of a file. Nothing is
// written when they are equal.
func (l *Logger) Diff(name string, before, after []byte) {
	if string(before) == string(after) {
		return
	}
	d := udiff.Unified("a/"+name, "b/"+name, string(before), string(after))
	if d == "" {
		return
	}
	l.Printf("%s changed:", name)
	l.writef("%s", d)
	if !strings.HasSuffix(d, "\n") {
		l.writef("\n")
	}
}

// Exit logs the stop reason and duration.
func (l *Logger) Exit(reason, message string, iterations int, filesChanged []string) {
	l.writef("\n%s\n", strings.Repeat("-", 60))
	l.writef("Stop reason: %s\n", reason)
	if message != "" {
		l.writef("Message: %s\n", message)
	}
	l.writef("Iterations: %d\n", iterations)
	if len(filesChanged) > 0 {
		l.writef("Files changed (%d): %s\n", len(filesChanged), strings.Join(filesChanged, ", "))
	}
	l.writef("Duration: %s\n", l.elapsed())
	l.writef("Stopped: %s\n", l.now().Format(timestampFormat))
}

// Close closes the log file.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	if err != nil {
		return fmt.Errorf("close progress log: %w", err)
	}
	return nil
}

func (l *Logger) writef(format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file != nil {
		fmt.Fprintf(l.file, format, args...)
	}
	if l.writer != nil {
		fmt.Fprintf(l.writer, format, args...)
	}
}

func (l *Logger) elapsed() string {
	return FormatDuration(l.now().Sub(l.startTime))
}

// FormatDuration renders d as 1h2m3s, 2m3s or 3s.
func FormatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second

	if h > 0 {
		return fmt.Sprintf("%dh%dm%ds", h, m, s)
	}
	if m > 0 {
		return fmt.Sprintf("%dm%ds", m, s)
	}
	return fmt.Sprintf("%ds", s)
}
