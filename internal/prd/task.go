package prd

import (
	"slices"
	"time"
)

// TaskStatus is the status of a phase-tagged task.
type TaskStatus string

const (
	StatusPending    TaskStatus = "pending"
	StatusInProgress TaskStatus = "in_progress"
	StatusCompleted  TaskStatus = "completed"
	StatusFailed     TaskStatus = "failed"
	StatusBlocked    TaskStatus = "blocked"
)

// IsValid reports whether s is a recognised task status.
func (s TaskStatus) IsValid() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusCompleted, StatusFailed, StatusBlocked:
		return true
	default:
		return false
	}
}

// PhaseTask is a task ordered by phase number.
type PhaseTask struct {
	ID          string     `json:"id"`
	Phase       int        `json:"phase"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Files       []string   `json:"files,omitempty"`
	Status      TaskStatus `json:"status"`
	Notes       string     `json:"notes,omitempty"`
	Findings    []string   `json:"findings,omitempty"`
	StartedAt   *time.Time `json:"startedAt,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

// Story is a priority-ordered user story.
type Story struct {
	ID                 string     `json:"id"`
	Title              string     `json:"title"`
	Description        string     `json:"description,omitempty"`
	AcceptanceCriteria []string   `json:"acceptanceCriteria,omitempty"`
	Priority           int        `json:"priority"`
	Passes             bool       `json:"passes"`
	DependsOn          []string   `json:"dependsOn,omitempty"`
	Findings           []string   `json:"findings,omitempty"`
	Notes              string     `json:"notes,omitempty"`
	StartedAt          *time.Time `json:"startedAt,omitempty"`
	CompletedAt        *time.Time `json:"completedAt,omitempty"`
}

// ReviewTask is an entry of the optional review list.
type ReviewTask struct {
	ID       string     `json:"id"`
	Title    string     `json:"title"`
	Status   TaskStatus `json:"status"`
	Findings []string   `json:"findings,omitempty"`
	Notes    string     `json:"notes,omitempty"`
}

// Item is a form-independent, read-only view of a task.
type Item struct {
	ID          string
	Title       string
	Description string
	Findings    []string
	Done        bool
}

func (t PhaseTask) clone() PhaseTask {
	t.Files = slices.Clone(t.Files)
	t.Findings = slices.Clone(t.Findings)
	t.StartedAt = cloneTime(t.StartedAt)
	t.CompletedAt = cloneTime(t.CompletedAt)
	return t
}

func (s Story) clone() Story {
	s.AcceptanceCriteria = slices.Clone(s.AcceptanceCriteria)
	s.DependsOn = slices.Clone(s.DependsOn)
	s.Findings = slices.Clone(s.Findings)
	s.StartedAt = cloneTime(s.StartedAt)
	s.CompletedAt = cloneTime(s.CompletedAt)
	return s
}

func (t PhaseTask) item() Item {
	return Item{
		ID:          t.ID,
		Title:       t.Title,
		Description: t.Description,
		Findings:    slices.Clone(t.Findings),
		Done:        t.Status == StatusCompleted,
	}
}

func (s Story) item() Item {
	return Item{
		ID:          s.ID,
		Title:       s.Title,
		Description: s.Description,
		Findings:    slices.Clone(s.Findings),
		Done:        s.Passes,
	}
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}
