package store

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/alexander-akhmetov/prdloop/internal/prd"
	"github.com/alexander-akhmetov/prdloop/internal/protocol"
)

// MutationResult reports the outcome of a mutation. Mutations never return
// errors; callers branch on Success and ErrorCode.
type MutationResult struct {
	Success   bool
	Message   string
	ErrorCode string
	// ID is the id of the task created by AddIssue.
	ID string
}

func ok(format string, args ...any) MutationResult {
	return MutationResult{Success: true, Message: fmt.Sprintf(format, args...)}
}

func fail(code, format string, args ...any) MutationResult {
	return MutationResult{ErrorCode: code, Message: fmt.Sprintf(format, args...)}
}

func notFound(id string) MutationResult {
	return fail(protocol.CodeNotFound, "task %q not found", id)
}

// mutate runs fn under the lock, schedules a save on success and then
// invokes the update callback outside the lock.
func (m *Manager) mutate(fn func(doc *prd.Document, now time.Time) MutationResult) MutationResult {
	m.mu.Lock()
	if m.doc == nil {
		m.mu.Unlock()
		return fail(protocol.CodeNotLoaded, "no document loaded")
	}
	res := fn(m.doc, m.clock.Now().UTC())
	var snapshot *prd.Document
	cb := m.onUpdate
	if res.Success {
		if m.doc.IsComplete() {
			m.doc.Status = protocol.DocCompleted
		}
		m.scheduleSave()
		if cb != nil {
			snapshot = m.doc.Clone()
		}
	}
	m.mu.Unlock()

	if snapshot != nil {
		cb(snapshot)
	}
	return res
}

// withTask locates id in either form and applies the matching function.
func withTask(doc *prd.Document, id string, phase func(*prd.PhaseTask) MutationResult, story func(*prd.Story) MutationResult) MutationResult {
	if strings.TrimSpace(id) == "" {
		return fail(protocol.CodeInvalidInput, "task id is required")
	}
	switch l := doc.Tasks.(type) {
	case prd.PhaseList:
		for i := range l {
			if l[i].ID == id {
				return phase(&l[i])
			}
		}
	case prd.StoryList:
		for i := range l {
			if l[i].ID == id {
				return story(&l[i])
			}
		}
	}
	return notFound(id)
}

func appendNote(notes string, now time.Time, text string) string {
	line := fmt.Sprintf("[%s] %s", now.Format("2006-01-02 15:04:05"), text)
	if notes == "" {
		return line
	}
	return notes + "\n" + line
}

// AddIssue appends a new pending task. Phase tasks join the phase of the
// next pending task; stories get the lowest precedence.
func (m *Manager) AddIssue(title, description string) MutationResult {
	if strings.TrimSpace(title) == "" {
		return fail(protocol.CodeInvalidInput, "title is required")
	}
	return m.mutate(func(doc *prd.Document, _ time.Time) MutationResult {
		id := doc.NextID()
		switch l := doc.Tasks.(type) {
		case prd.StoryList:
			priority := 1
			for _, s := range l {
				priority = max(priority, s.Priority+1)
			}
			doc.Tasks = append(l, prd.Story{ID: id, Title: title, Description: description, Priority: priority})
		default:
			pl, _ := doc.Tasks.(prd.PhaseList)
			phase := 0
			if next, found := doc.NextTask(); found {
				for _, t := range pl {
					if t.ID == next {
						phase = t.Phase
					}
				}
			} else {
				for _, t := range pl {
					phase = max(phase, t.Phase)
				}
			}
			doc.Tasks = append(pl, prd.PhaseTask{ID: id, Phase: phase, Title: title, Description: description, Status: prd.StatusPending})
		}
		res := ok("added %s", id)
		res.ID = id
		return res
	})
}

// UpdateNote replaces the notes of a task.
func (m *Manager) UpdateNote(id, note string) MutationResult {
	return m.mutate(func(doc *prd.Document, _ time.Time) MutationResult {
		return withTask(doc, id,
			func(t *prd.PhaseTask) MutationResult { t.Notes = note; return ok("updated note on %s", id) },
			func(s *prd.Story) MutationResult { s.Notes = note; return ok("updated note on %s", id) },
		)
	})
}

// UpdatePriority sets a story's priority. For phase tasks it sets the phase.
func (m *Manager) UpdatePriority(id string, priority int) MutationResult {
	if priority < 0 {
		return fail(protocol.CodeInvalidInput, "priority must not be negative")
	}
	return m.mutate(func(doc *prd.Document, _ time.Time) MutationResult {
		return withTask(doc, id,
			func(t *prd.PhaseTask) MutationResult { t.Phase = priority; return ok("moved %s to phase %d", id, priority) },
			func(s *prd.Story) MutationResult { s.Priority = priority; return ok("set %s priority to %d", id, priority) },
		)
	})
}

// MarkComplete marks a task done, stamps completedAt and appends a note.
func (m *Manager) MarkComplete(id string) MutationResult {
	return m.mutate(func(doc *prd.Document, now time.Time) MutationResult {
		return withTask(doc, id,
			func(t *prd.PhaseTask) MutationResult {
				t.Status = prd.StatusCompleted
				t.CompletedAt = &now
				t.Notes = appendNote(t.Notes, now, "Completed")
				return ok("completed %s", id)
			},
			func(s *prd.Story) MutationResult {
				s.Passes = true
				s.CompletedAt = &now
				s.Notes = appendNote(s.Notes, now, "Completed")
				return ok("completed %s", id)
			},
		)
	})
}

// MarkSkipped closes a task without doing it. Skipped tasks count as done
// for selection and progress.
func (m *Manager) MarkSkipped(id, reason string) MutationResult {
	note := "Skipped"
	if reason != "" {
		note += ": " + reason
	}
	return m.mutate(func(doc *prd.Document, now time.Time) MutationResult {
		return withTask(doc, id,
			func(t *prd.PhaseTask) MutationResult {
				t.Status = prd.StatusCompleted
				t.CompletedAt = &now
				t.Notes = appendNote(t.Notes, now, note)
				return ok("skipped %s", id)
			},
			func(s *prd.Story) MutationResult {
				s.Passes = true
				s.CompletedAt = &now
				s.Notes = appendNote(s.Notes, now, note)
				return ok("skipped %s", id)
			},
		)
	})
}

// StartTask marks a task in progress and stamps startedAt once.
func (m *Manager) StartTask(id string) MutationResult {
	return m.mutate(func(doc *prd.Document, now time.Time) MutationResult {
		res := withTask(doc, id,
			func(t *prd.PhaseTask) MutationResult {
				if t.Status != prd.StatusCompleted {
					t.Status = prd.StatusInProgress
				}
				if t.StartedAt == nil {
					t.StartedAt = &now
				}
				return ok("started %s", id)
			},
			func(s *prd.Story) MutationResult {
				if s.StartedAt == nil {
					s.StartedAt = &now
				}
				return ok("started %s", id)
			},
		)
		if res.Success && (doc.Status == "" || doc.Status == protocol.DocPlanning) {
			doc.Status = protocol.DocInProgress
		}
		return res
	})
}

// UpdateStatus sets a task's status. Stories only accept pending and
// completed, which map onto passes.
func (m *Manager) UpdateStatus(id string, status prd.TaskStatus) MutationResult {
	if !status.IsValid() {
		return fail(protocol.CodeInvalidInput, "invalid status %q", status)
	}
	return m.mutate(func(doc *prd.Document, now time.Time) MutationResult {
		return withTask(doc, id,
			func(t *prd.PhaseTask) MutationResult {
				t.Status = status
				if status == prd.StatusCompleted && t.CompletedAt == nil {
					t.CompletedAt = &now
				}
				return ok("set %s status to %s", id, status)
			},
			func(s *prd.Story) MutationResult {
				switch status {
				case prd.StatusCompleted:
					s.Passes = true
					if s.CompletedAt == nil {
						s.CompletedAt = &now
					}
				case prd.StatusPending:
					s.Passes = false
					s.CompletedAt = nil
				default:
					return fail(protocol.CodeWrongForm, "stories do not support status %q", status)
				}
				return ok("set %s status to %s", id, status)
			},
		)
	})
}

// UpdateReviewFindings updates an entry of the review list. An empty
// status leaves the current status unchanged.
func (m *Manager) UpdateReviewFindings(reviewID string, findings []string, status prd.TaskStatus) MutationResult {
	if strings.TrimSpace(reviewID) == "" {
		return fail(protocol.CodeInvalidInput, "review id is required")
	}
	if status != "" && !status.IsValid() {
		return fail(protocol.CodeInvalidInput, "invalid status %q", status)
	}
	return m.mutate(func(doc *prd.Document, _ time.Time) MutationResult {
		for i := range doc.ReviewTasks {
			rt := &doc.ReviewTasks[i]
			if rt.ID != reviewID {
				continue
			}
			rt.Findings = slices.Clone(findings)
			if status != "" {
				rt.Status = status
			}
			return ok("updated review %s", reviewID)
		}
		return fail(protocol.CodeNotFound, "review task %q not found", reviewID)
	})
}

// SetFindings replaces the findings attached to a task. The findings are
// also remembered until the next Load so Reload can restore them.
func (m *Manager) SetFindings(id string, findings []string) MutationResult {
	return m.mutate(func(doc *prd.Document, _ time.Time) MutationResult {
		res := withTask(doc, id,
			func(t *prd.PhaseTask) MutationResult {
				t.Findings = slices.Clone(findings)
				return ok("recorded %d findings on %s", len(findings), id)
			},
			func(s *prd.Story) MutationResult {
				s.Findings = slices.Clone(findings)
				return ok("recorded %d findings on %s", len(findings), id)
			},
		)
		if res.Success {
			if m.findings == nil {
				m.findings = make(map[string][]string)
			}
			m.findings[id] = slices.Clone(findings)
		}
		return res
	})
}
