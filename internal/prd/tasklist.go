package prd

import (
	"slices"
	"sort"
)

// Form identifies which task representation a document uses.
type Form int

const (
	FormPhase Form = iota
	FormStory
)

func (f Form) String() string {
	if f == FormStory {
		return "story"
	}
	return "phase"
}

// TaskList is the document's task collection. It has exactly two
// implementations, PhaseList and StoryList.
type TaskList interface {
	Form() Form
	Len() int
	IDs() []string
	// Ordered returns the tasks in execution order.
	Ordered() []Item
	// Next returns the id of the task the loop should work on next.
	Next() (string, bool)
	CompletedCount() int
	Clone() TaskList

	isTaskList()
}

// PhaseList holds phase-tagged tasks.
type PhaseList []PhaseTask

// StoryList holds priority-tagged stories.
type StoryList []Story

var (
	_ TaskList = PhaseList(nil)
	_ TaskList = StoryList(nil)
)

func (PhaseList) isTaskList() {}
func (StoryList) isTaskList() {}

func (PhaseList) Form() Form { return FormPhase }
func (StoryList) Form() Form { return FormStory }

func (l PhaseList) Len() int { return len(l) }
func (l StoryList) Len() int { return len(l) }

func (l PhaseList) IDs() []string {
	ids := make([]string, len(l))
	for i, t := range l {
		ids[i] = t.ID
	}
	return ids
}

func (l StoryList) IDs() []string {
	ids := make([]string, len(l))
	for i, s := range l {
		ids[i] = s.ID
	}
	return ids
}

func (l PhaseList) Clone() TaskList {
	if l == nil {
		return PhaseList(nil)
	}
	out := make(PhaseList, len(l))
	for i, t := range l {
		out[i] = t.clone()
	}
	return out
}

func (l StoryList) Clone() TaskList {
	if l == nil {
		return StoryList(nil)
	}
	out := make(StoryList, len(l))
	for i, s := range l {
		out[i] = s.clone()
	}
	return out
}

func (l PhaseList) CompletedCount() int {
	n := 0
	for _, t := range l {
		if t.Status == StatusCompleted {
			n++
		}
	}
	return n
}

func (l StoryList) CompletedCount() int {
	n := 0
	for _, s := range l {
		if s.Passes {
			n++
		}
	}
	return n
}

// sortedIndexes returns the indexes of l ordered by (phase, id).
func (l PhaseList) sortedIndexes() []int {
	idx := make([]int, len(l))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		ta, tb := l[idx[a]], l[idx[b]]
		if ta.Phase != tb.Phase {
			return ta.Phase < tb.Phase
		}
		return ta.ID < tb.ID
	})
	return idx
}

// sortedIndexes returns the indexes of l ordered by priority; ties keep
// document order.
func (l StoryList) sortedIndexes() []int {
	idx := make([]int, len(l))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return l[idx[a]].Priority < l[idx[b]].Priority
	})
	return idx
}

func (l PhaseList) Ordered() []Item {
	items := make([]Item, 0, len(l))
	for _, i := range l.sortedIndexes() {
		items = append(items, l[i].item())
	}
	return items
}

func (l StoryList) Ordered() []Item {
	items := make([]Item, 0, len(l))
	for _, i := range l.sortedIndexes() {
		items = append(items, l[i].item())
	}
	return items
}

// Next selects the first pending or in-progress task by (phase, id).
func (l PhaseList) Next() (string, bool) {
	for _, i := range l.sortedIndexes() {
		switch l[i].Status {
		case StatusPending, StatusInProgress:
			return l[i].ID, true
		}
	}
	return "", false
}

// Next selects the eligible story with the lowest priority number. A story
// is eligible when it does not pass yet and every dependency resolves to a
// passing story. Unknown dependency ids block the story.
func (l StoryList) Next() (string, bool) {
	passes := make(map[string]bool, len(l))
	for _, s := range l {
		passes[s.ID] = s.Passes
	}

	for _, i := range l.sortedIndexes() {
		s := l[i]
		if s.Passes {
			continue
		}
		if slices.ContainsFunc(s.DependsOn, func(dep string) bool { return !passes[dep] }) {
			continue
		}
		return s.ID, true
	}
	return "", false
}
