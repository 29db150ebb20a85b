package progress

import (
	"fmt"
	"strings"

	"github.com/alexander-akhmetov/prdloop/internal/event"
)

// Record writes one entry for e. Collaborator output events are not
// recorded; the log keeps state changes only.
func (l *Logger) Record(e event.Event) {
	switch e.Kind {
	case event.KindProg:
		l.Printf("%s", e.Text)
	case event.KindTaskStart:
		l.Printf("Started %s: %s", e.TaskID, e.Text)
	case event.KindTaskComplete:
		l.Printf("Completed %s: %s", e.TaskID, e.Text)
	case event.KindDocumentComplete:
		l.Printf("PRD complete (%d/%d tasks)", e.Progress.Completed, e.Progress.Total)
	case event.KindProgress:
		l.Printf("Progress: %d/%d (%d%%)", e.Progress.Completed, e.Progress.Total, e.Progress.Percentage)
	case event.KindPaused:
		l.Printf("Paused")
	case event.KindResumed:
		l.Printf("Resumed")
	case event.KindError:
		l.Errorf("%s", e.Text)
	case event.KindReviewStepCompleted:
		if len(e.Findings) == 0 {
			l.Printf("Review %s: clean", e.TaskID)
		} else {
			l.Printf("Review %s: %d findings", e.TaskID, len(e.Findings))
		}
	case event.KindConsensusNeeded:
		l.Printf("Consensus needed on %s:\n%s", e.TaskID, bulletList(e.Findings))
	case event.KindReviewerPaused:
		l.Printf("Reviewer paused: %s", e.Text)
	case event.KindReviewerCaughtUp:
		l.Printf("Reviewer caught up (%d reviewed)", e.Iteration)
	}
}

func bulletList(items []string) string {
	lines := make([]string, len(items))
	for i, it := range items {
		lines[i] = fmt.Sprintf("  - %s", it)
	}
	return strings.Join(lines, "\n")
}
