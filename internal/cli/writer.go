package cli

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/glamour"

	"github.com/alexander-akhmetov/prdloop/internal/event"
	"github.com/alexander-akhmetov/prdloop/internal/loop"
	"github.com/alexander-akhmetov/prdloop/internal/prd"
	"github.com/alexander-akhmetov/prdloop/internal/review"
)

// SGR parameter strings for 256-color output.
const (
	styleProg     = "1;38;5;208"
	styleOK       = "38;5;42"
	styleOKBold   = "1;38;5;42"
	styleErr      = "1;38;5;196"
	styleReview   = "38;5;117"
	styleTool     = "38;5;241"
	styleResult   = "38;5;245"
	styleValue    = "38;5;255"
	styleTask     = "1;38;5;205"
	stylePaused   = "1;38;5;208"
	styleBold     = "1"
	styleSeparate = "38;5;241"
)

func sgr(params, text string) string {
	return "\033[" + params + "m" + text + "\033[0m"
}

// footerState is what the sticky footer shows. It is derived from the
// events the writer has seen.
type footerState struct {
	taskID    string
	iteration int
	progress  prd.Progress
	paused    bool
	pending   map[string]bool
	reviewing string
}

// Writer prints loop and reviewer events and, in TTY mode, redraws a
// sticky status footer below them. Without a TTY it prints plain text.
type Writer struct {
	out           io.Writer
	isTTY         bool
	width         int
	maxIterations int

	mu          sync.Mutex
	renderer    *glamour.TermRenderer
	footer      footerState
	footerLines int
}

// NewWriter creates a Writer. If width is <= 0, defaults to 80.
func NewWriter(out io.Writer, isTTY bool, width, maxIterations int) *Writer {
	if width <= 0 {
		width = 80
	}
	w := &Writer{
		out:           out,
		isTTY:         isTTY,
		width:         width,
		maxIterations: maxIterations,
		footer:        footerState{pending: make(map[string]bool)},
	}
	if isTTY {
		r, err := glamour.NewTermRenderer(
			glamour.WithStandardStyle("dark"),
			glamour.WithWordWrap(max(width-6, 40)),
		)
		if err == nil {
			w.renderer = r
		}
	}
	return w
}

// Consume writes events from ch until it is closed.
func (w *Writer) Consume(ch <-chan event.Event) {
	for ev := range ch {
		w.WriteEvent(ev)
	}
}

// WriteEvent prints a single event and updates the footer.
func (w *Writer) WriteEvent(ev event.Event) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.track(ev)
	line, ok := w.format(ev)

	w.eraseFooter()
	if ok {
		fmt.Fprintln(w.out, line)
	}
	if ev.Kind == event.KindStopped {
		w.footerLines = 0
		return
	}
	w.drawFooter()
}

// track folds ev into the footer state. Must be called with mu held.
func (w *Writer) track(ev event.Event) {
	f := &w.footer
	switch ev.Kind {
	case event.KindIterationStart:
		f.iteration = ev.Iteration
		f.taskID = ev.TaskID
	case event.KindProgress, event.KindDocumentComplete:
		f.progress = ev.Progress
	case event.KindIterationComplete:
		if ir, ok := ev.Payload.(loop.IterationResult); ok {
			f.progress = ir.Progress
		}
	case event.KindPaused:
		f.paused = true
	case event.KindResumed:
		f.paused = false
	case event.KindReviewStepStarted:
		f.reviewing = ev.TaskID
	case event.KindReviewStepCompleted, event.KindReviewerCaughtUp:
		f.reviewing = ""
	case event.KindConsensusNeeded:
		f.pending[ev.TaskID] = true
	case event.KindTaskStart:
		delete(f.pending, ev.TaskID)
	}
}

// format renders ev as one output line. Events that only feed the footer
// report false.
func (w *Writer) format(ev event.Event) (string, bool) {
	switch ev.Kind {
	case event.KindProg:
		return w.paint(styleProg, "▶ prdloop: ", "prdloop: ") + ev.Text, true
	case event.KindToolUse:
		return w.style(styleTool, "> "+ev.Text), true
	case event.KindToolResult:
		return w.style(styleResult, "  "+ev.Text), true
	case event.KindMarkdown:
		return w.markdown(ev.Text), true
	case event.KindIterationStart:
		return w.separator(ev.Iteration, ev.TaskID), true
	case event.KindIterationComplete:
		return w.iterationSummary(ev), true
	case event.KindTaskStart:
		return w.style(styleTask, ev.TaskID) + " " + ev.Text, true
	case event.KindTaskComplete:
		return w.style(styleOKBold, "✓ "+ev.TaskID) + " " + ev.Text, true
	case event.KindDocumentComplete:
		return w.style(styleOKBold, fmt.Sprintf("PRD complete: %d/%d tasks", ev.Progress.Completed, ev.Progress.Total)), true
	case event.KindPaused:
		return w.style(stylePaused, "⏸ paused"), true
	case event.KindResumed:
		return w.style(styleOK, "▶ resumed"), true
	case event.KindStopped:
		return w.stopped(ev), true
	case event.KindError:
		return w.style(styleErr, "error: ") + ev.Text, true
	case event.KindReviewStepStarted:
		return w.style(styleReview, fmt.Sprintf("review %s: %s", ev.TaskID, ev.Text)), true
	case event.KindReviewStepCompleted:
		return w.style(styleReview, reviewSummary(ev)), true
	case event.KindConsensusNeeded:
		return w.markdown(findingsMarkdown(ev.TaskID, ev.Findings)), true
	case event.KindReviewerPaused:
		return w.style(styleReview, "reviewer paused: "+ev.Text), true
	case event.KindReviewerResumed:
		return w.style(styleReview, "reviewer resumed"), true
	case event.KindReviewerCaughtUp:
		return w.style(styleReview, fmt.Sprintf("reviewer caught up (%d reviewed)", ev.Iteration)), true
	}
	return "", false
}

func (w *Writer) separator(n int, taskID string) string {
	title := fmt.Sprintf(" Iteration %d ", n)
	if w.maxIterations > 0 {
		title = fmt.Sprintf(" Iteration %d/%d ", n, w.maxIterations)
	}
	title += "· " + taskID + " "
	pad := max(4, min(w.width, 80)-len([]rune(title))-4)
	return w.style(styleBold, "──"+title+strings.Repeat("─", pad))
}

func (w *Writer) iterationSummary(ev event.Event) string {
	ir, ok := ev.Payload.(loop.IterationResult)
	if !ok {
		return fmt.Sprintf("iteration %d finished", ev.Iteration)
	}
	status := w.style(styleOK, "ok")
	if !ir.Success {
		status = w.style(styleErr, "failed")
	}
	line := fmt.Sprintf("iteration %d %s in %s", ir.Iteration, status, formatElapsed(ir.Duration))
	if n := len(ir.FilesChanged); n > 0 {
		line += fmt.Sprintf(", %d files changed", n)
	}
	return line
}

func (w *Writer) stopped(ev event.Event) string {
	line := "stopped: " + ev.Reason.String()
	if ev.Text != "" {
		line += " (" + ev.Text + ")"
	}
	if res, ok := ev.Payload.(*loop.Result); ok && res != nil {
		line += fmt.Sprintf(" after %d iterations, %s", res.IterationsRun, formatElapsed(res.Duration))
	}
	return w.paint(styleProg, "■ ", "") + line
}

func reviewSummary(ev event.Event) string {
	res, ok := ev.Payload.(review.StepReviewResult)
	switch {
	case ok && res.TimedOut:
		return fmt.Sprintf("review %s: timed out", ev.TaskID)
	case ok && res.Error != "":
		return fmt.Sprintf("review %s: %s", ev.TaskID, res.Error)
	case len(ev.Findings) == 0:
		return fmt.Sprintf("review %s: no findings", ev.TaskID)
	}
	return fmt.Sprintf("review %s: %d findings", ev.TaskID, len(ev.Findings))
}

func findingsMarkdown(taskID string, findings []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "**Findings for %s**\n\n", taskID)
	for _, f := range findings {
		fmt.Fprintf(&b, "- %s\n", f)
	}
	return b.String()
}

func (w *Writer) markdown(text string) string {
	if w.renderer != nil {
		if rendered, err := w.renderer.Render(text); err == nil {
			return strings.TrimRight(rendered, "\n")
		}
	}
	return strings.TrimRight(text, "\n")
}

// eraseFooter moves the cursor up over the footer and clears it. Must be
// called with mu held.
func (w *Writer) eraseFooter() {
	if !w.isTTY {
		return
	}
	for range w.footerLines {
		fmt.Fprint(w.out, "\033[A\033[2K")
	}
	w.footerLines = 0
}

// drawFooter prints the footer. Must be called with mu held.
func (w *Writer) drawFooter() {
	if !w.isTTY {
		return
	}
	lines := w.footerText()
	for _, l := range lines {
		fmt.Fprintln(w.out, l)
	}
	w.footerLines = len(lines)
}

func (w *Writer) footerText() []string {
	f := w.footer
	lines := []string{sgr(styleSeparate, strings.Repeat("─", min(w.width, 80)))}

	var parts []string
	if f.taskID != "" {
		parts = append(parts, sgr(styleTask, f.taskID))
	}
	iter := fmt.Sprintf("%d", f.iteration)
	if w.maxIterations > 0 {
		iter = fmt.Sprintf("%d/%d", f.iteration, w.maxIterations)
	}
	parts = append(parts, "iter "+sgr(styleValue, iter))
	if f.progress.Total > 0 {
		parts = append(parts, "done "+sgr(styleValue, fmt.Sprintf("%d/%d (%d%%)", f.progress.Completed, f.progress.Total, f.progress.Percentage)))
	}
	if f.paused {
		parts = append(parts, sgr(stylePaused, "paused"))
	}
	lines = append(lines, strings.Join(parts, sgr(styleSeparate, " | ")))

	if f.reviewing != "" {
		lines = append(lines, sgr(styleReview, "reviewing "+f.reviewing))
	}
	if len(f.pending) > 0 {
		lines = append(lines, sgr(stylePaused, fmt.Sprintf("%d tasks awaiting consensus", len(f.pending))))
	}
	return lines
}

// style wraps text in TTY mode and returns it unchanged otherwise.
func (w *Writer) style(params, text string) string {
	if w.isTTY {
		return sgr(params, text)
	}
	return text
}

// paint picks between a decorated TTY text and a plain fallback.
func (w *Writer) paint(params, tty, plain string) string {
	if w.isTTY {
		return sgr(params, tty)
	}
	return plain
}

// PrintSummary writes the end-of-run summary.
func (w *Writer) PrintSummary(res *loop.Result) {
	if res == nil {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	fmt.Fprintln(w.out)
	fmt.Fprintf(w.out, "Run %s\n", res.RunID)
	fmt.Fprintf(w.out, "  Reason:     %s\n", res.Reason)
	if res.Message != "" {
		fmt.Fprintf(w.out, "  Message:    %s\n", res.Message)
	}
	fmt.Fprintf(w.out, "  Iterations: %d (%d failed)\n", res.IterationsRun, len(res.Failed()))
	fmt.Fprintf(w.out, "  Progress:   %d/%d tasks (%d%%)\n", res.Progress.Completed, res.Progress.Total, res.Progress.Percentage)
	fmt.Fprintf(w.out, "  Duration:   %s\n", formatElapsed(res.Duration.Round(time.Second)))
	if files := res.FilesChanged(); len(files) > 0 {
		fmt.Fprintf(w.out, "  Files:      %s\n", strings.Join(files, ", "))
	}
}
