package store

import (
	"github.com/alexander-akhmetov/prdloop/internal/prd"
)

// Document returns a deep copy of the document, or nil if none is loaded.
func (m *Manager) Document() *prd.Document {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.doc == nil {
		return nil
	}
	return m.doc.Clone()
}

// AllTasks returns every task in execution order.
func (m *Manager) AllTasks() []prd.Item {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.doc == nil {
		return nil
	}
	return m.doc.Items()
}

// Task returns the task with id.
func (m *Manager) Task(id string) (prd.Item, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.doc == nil {
		return prd.Item{}, false
	}
	return m.doc.Item(id)
}

// PendingTasks returns tasks that are not done, in execution order.
func (m *Manager) PendingTasks() []prd.Item {
	return m.filter(func(it prd.Item) bool { return !it.Done })
}

// CompletedTasks returns done tasks, in execution order.
func (m *Manager) CompletedTasks() []prd.Item {
	return m.filter(func(it prd.Item) bool { return it.Done })
}

func (m *Manager) filter(keep func(prd.Item) bool) []prd.Item {
	var out []prd.Item
	for _, it := range m.AllTasks() {
		if keep(it) {
			out = append(out, it)
		}
	}
	return out
}

// Progress derives completion counts from the current task states.
func (m *Manager) Progress() prd.Progress {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.doc == nil {
		return prd.Progress{}
	}
	return m.doc.Progress()
}

// IsComplete reports whether the document is complete.
func (m *Manager) IsComplete() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.doc != nil && m.doc.IsComplete()
}

// NextTask returns the task the loop should work on next.
func (m *Manager) NextTask() (prd.Item, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.doc == nil {
		return prd.Item{}, false
	}
	id, found := m.doc.NextTask()
	if !found {
		return prd.Item{}, false
	}
	return m.doc.Item(id)
}
