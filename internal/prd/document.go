// Package prd holds the PRD document model: the task list in either of its
// two forms, the review list and the document metadata.
package prd

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/tidwall/gjson"
	"github.com/tidwall/pretty"

	"github.com/alexander-akhmetov/prdloop/internal/protocol"
)

// ErrMixedForms is returned when a document populates both task lists.
var ErrMixedForms = errors.New("document has both tasks and userStories")

// Metadata carries document timestamps.
type Metadata struct {
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Document is the PRD.
type Document struct {
	Name        string
	Version     string
	Description string
	Status      string
	Tasks       TaskList
	ReviewTasks []ReviewTask
	Metadata    Metadata
}

// Progress is a snapshot derived from current task states.
type Progress struct {
	Total      int `json:"total"`
	Completed  int `json:"completed"`
	Remaining  int `json:"remaining"`
	Percentage int `json:"percentage"`
}

type wireDocument struct {
	Name        string       `json:"name"`
	Version     string       `json:"version"`
	Description string       `json:"description,omitempty"`
	Status      string       `json:"status,omitempty"`
	Tasks       *[]PhaseTask `json:"tasks,omitempty"`
	UserStories *[]Story     `json:"userStories,omitempty"`
	ReviewTasks []ReviewTask `json:"reviewTasks,omitempty"`
	Metadata    Metadata     `json:"metadata"`
}

// New returns an empty document in the given form.
func New(name string, form Form, now time.Time) *Document {
	d := &Document{
		Name:     name,
		Version:  "1.0.0",
		Status:   protocol.DocPlanning,
		Metadata: Metadata{CreatedAt: now, UpdatedAt: now},
	}
	if form == FormStory {
		d.Tasks = StoryList{}
	} else {
		d.Tasks = PhaseList{}
	}
	return d
}

// Decode parses a PRD. The task form is chosen from the shape of the raw
// JSON: a non-empty "userStories" array selects the story form, anything
// else the phase form.
func Decode(data []byte) (*Document, error) {
	if !gjson.ValidBytes(data) {
		return nil, errors.New("invalid JSON")
	}

	tasks := gjson.GetBytes(data, "tasks")
	stories := gjson.GetBytes(data, "userStories")
	hasTasks := tasks.IsArray() && len(tasks.Array()) > 0
	hasStories := stories.IsArray() && len(stories.Array()) > 0
	if hasTasks && hasStories {
		return nil, ErrMixedForms
	}

	var w wireDocument
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}

	d := &Document{
		Name:        w.Name,
		Version:     w.Version,
		Description: w.Description,
		Status:      w.Status,
		ReviewTasks: w.ReviewTasks,
		Metadata:    w.Metadata,
	}
	switch {
	case hasStories, !hasTasks && stories.IsArray():
		d.Tasks = StoryList(deref(w.UserStories))
	default:
		d.Tasks = PhaseList(deref(w.Tasks))
	}

	if err := d.Validate(); err != nil {
		return nil, err
	}
	return d, nil
}

// Encode serializes d as pretty-printed JSON.
func Encode(d *Document) ([]byte, error) {
	w := wireDocument{
		Name:        d.Name,
		Version:     d.Version,
		Description: d.Description,
		Status:      d.Status,
		ReviewTasks: d.ReviewTasks,
		Metadata:    d.Metadata,
	}
	switch l := d.Tasks.(type) {
	case StoryList:
		stories := []Story(l)
		if stories == nil {
			stories = []Story{}
		}
		w.UserStories = &stories
	case PhaseList:
		tasks := []PhaseTask(l)
		if tasks == nil {
			tasks = []PhaseTask{}
		}
		w.Tasks = &tasks
	}

	data, err := json.Marshal(w)
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	return pretty.Pretty(data), nil
}

// Validate checks that task ids are present and unique.
func (d *Document) Validate() error {
	if d.Tasks == nil {
		return nil
	}
	seen := make(map[string]bool, d.Tasks.Len())
	for _, id := range d.Tasks.IDs() {
		if id == "" {
			return errors.New("task with empty id")
		}
		if seen[id] {
			return fmt.Errorf("duplicate task id %q", id)
		}
		seen[id] = true
	}
	return nil
}

// Form returns the document's task form.
func (d *Document) Form() Form {
	if d.Tasks == nil {
		return FormPhase
	}
	return d.Tasks.Form()
}

// Clone returns a deep copy of d.
func (d *Document) Clone() *Document {
	c := *d
	if d.Tasks != nil {
		c.Tasks = d.Tasks.Clone()
	}
	if d.ReviewTasks != nil {
		c.ReviewTasks = make([]ReviewTask, len(d.ReviewTasks))
		for i, rt := range d.ReviewTasks {
			rt.Findings = append([]string(nil), rt.Findings...)
			c.ReviewTasks[i] = rt
		}
	}
	return &c
}

// Progress derives completion counts from task states.
func (d *Document) Progress() Progress {
	if d.Tasks == nil {
		return Progress{}
	}
	total := d.Tasks.Len()
	done := d.Tasks.CompletedCount()
	p := Progress{Total: total, Completed: done, Remaining: total - done}
	if total > 0 {
		p.Percentage = int(math.Round(float64(done) * 100 / float64(total)))
	}
	return p
}

// IsComplete reports whether every task is done. An empty task list is
// not complete.
func (d *Document) IsComplete() bool {
	if d.Tasks == nil || d.Tasks.Len() == 0 {
		return false
	}
	return d.Tasks.CompletedCount() == d.Tasks.Len()
}

// NextTask returns the id of the next task to execute.
func (d *Document) NextTask() (string, bool) {
	if d.Tasks == nil {
		return "", false
	}
	return d.Tasks.Next()
}

// Items returns every task in execution order.
func (d *Document) Items() []Item {
	if d.Tasks == nil {
		return nil
	}
	return d.Tasks.Ordered()
}

// Item returns the view of a single task.
func (d *Document) Item(id string) (Item, bool) {
	for _, it := range d.Items() {
		if it.ID == id {
			return it, true
		}
	}
	return Item{}, false
}

// IndexOf returns the position of id in execution order, or -1.
func (d *Document) IndexOf(id string) int {
	for i, it := range d.Items() {
		if it.ID == id {
			return i
		}
	}
	return -1
}

func deref[T any](p *[]T) []T {
	if p == nil {
		return nil
	}
	return *p
}
