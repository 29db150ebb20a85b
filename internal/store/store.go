// Package store owns the in-memory PRD document and its persistence:
// debounced autosave, explicit flush and optional cross-process locked writes.
package store

import (
	"fmt"
	"log"
	"os"
	"slices"
	"sync"
	"time"

	"github.com/tidwall/sjson"

	"github.com/alexander-akhmetov/prdloop/internal/apperr"
	"github.com/alexander-akhmetov/prdloop/internal/debounce"
	"github.com/alexander-akhmetov/prdloop/internal/debug"
	"github.com/alexander-akhmetov/prdloop/internal/lock"
	"github.com/alexander-akhmetov/prdloop/internal/prd"
)

// DefaultSaveDelay is the debounce window for autosave.
const DefaultSaveDelay = 500 * time.Millisecond

// UpdateFunc receives a copy of the document after every mutation.
type UpdateFunc func(doc *prd.Document)

// Option configures a Manager.
type Option func(*Manager)

// WithClock sets the clock used for timestamps and the autosave timer.
func WithClock(c debounce.Clock) Option {
	return func(m *Manager) { m.clock = c }
}

// WithSaveDelay overrides DefaultSaveDelay.
func WithSaveDelay(d time.Duration) Option {
	return func(m *Manager) { m.delay = d }
}

// WithLocker routes every write through l.
func WithLocker(l lock.Locker) Option {
	return func(m *Manager) { m.locker = l }
}

// WithOnUpdate registers the mutation callback.
func WithOnUpdate(fn UpdateFunc) Option {
	return func(m *Manager) { m.onUpdate = fn }
}

// Manager owns one document tied to one path. Without a Locker it assumes
// sole ownership of the file; a concurrent external writer can lose updates.
type Manager struct {
	clock    debounce.Clock
	delay    time.Duration
	locker   lock.Locker
	onUpdate UpdateFunc
	saver    *debounce.Debouncer

	// saveMu serializes snapshot+write so the newest snapshot is written last.
	saveMu sync.Mutex

	mu    sync.Mutex
	doc   *prd.Document
	path  string
	dirty bool
	// findings set through SetFindings since the last Load. Reload puts
	// them back when the file on disk lost them.
	findings map[string][]string
}

// New creates a Manager with no document loaded.
func New(opts ...Option) *Manager {
	m := &Manager{
		clock: debounce.RealClock{},
		delay: DefaultSaveDelay,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.saver = debounce.New(m.clock, m.delay, m.autosave)
	return m
}

// SetOnUpdate replaces the mutation callback.
func (m *Manager) SetOnUpdate(fn UpdateFunc) {
	m.mu.Lock()
	m.onUpdate = fn
	m.mu.Unlock()
}

// Load parses path and replaces any prior document. Pending autosaves of
// the prior document are dropped.
func (m *Manager) Load(path string) error {
	doc, err := readDocument(path)
	if err != nil {
		return err
	}

	m.saver.Cancel()
	m.mu.Lock()
	m.doc = doc
	m.path = path
	m.dirty = false
	m.findings = nil
	m.mu.Unlock()

	debug.Logf("store: loaded %s (%s form, %d tasks)", path, doc.Form(), doc.Tasks.Len())
	return nil
}

func readDocument(path string) (*prd.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindIO, "load prd", err)
	}
	doc, err := prd.Decode(data)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindIO, "load prd", fmt.Errorf("%s: %w", path, err))
	}
	return doc, nil
}

// Reload re-reads the current path after an external writer changed it.
// Findings recorded through SetFindings since the last Load are re-applied
// to tasks that no longer carry any, and a save is scheduled if that
// changed the document.
func (m *Manager) Reload() error {
	m.mu.Lock()
	path := m.path
	m.mu.Unlock()
	if path == "" {
		return apperr.New(apperr.KindConfiguration, "reload prd", "no document loaded")
	}

	doc, err := readDocument(path)
	if err != nil {
		return err
	}

	m.saver.Cancel()
	m.mu.Lock()
	defer m.mu.Unlock()
	m.doc = doc
	m.dirty = false
	restored := 0
	for id, findings := range m.findings {
		res := withTask(doc, id,
			func(t *prd.PhaseTask) MutationResult {
				if len(t.Findings) > 0 {
					return MutationResult{}
				}
				t.Findings = slices.Clone(findings)
				return ok("restored")
			},
			func(s *prd.Story) MutationResult {
				if len(s.Findings) > 0 {
					return MutationResult{}
				}
				s.Findings = slices.Clone(findings)
				return ok("restored")
			},
		)
		if res.Success {
			restored++
		}
	}
	if restored > 0 {
		debug.Logf("store: restored findings on %d tasks after reload", restored)
		m.scheduleSave()
	}
	return nil
}

// Adopt installs doc as the managed document for path and marks it dirty.
// It is used when the document is created in memory rather than loaded.
func (m *Manager) Adopt(path string, doc *prd.Document) {
	m.saver.Cancel()
	m.mu.Lock()
	m.doc = doc.Clone()
	m.path = path
	m.dirty = true
	m.mu.Unlock()
}

// Path returns the path of the managed document.
func (m *Manager) Path() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.path
}

// Dirty reports whether there are unsaved mutations.
func (m *Manager) Dirty() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dirty
}

// Save writes the full document immediately and stamps metadata.updatedAt.
func (m *Manager) Save() error {
	m.saveMu.Lock()
	defer m.saveMu.Unlock()

	m.mu.Lock()
	if m.doc == nil {
		m.mu.Unlock()
		return apperr.New(apperr.KindConfiguration, "save prd", "no document loaded")
	}
	now := m.clock.Now().UTC()
	data, err := prd.Encode(m.doc)
	if err == nil {
		data, err = sjson.SetBytes(data, "metadata.updatedAt", now.Format(time.RFC3339Nano))
	}
	if err != nil {
		m.mu.Unlock()
		return apperr.Wrap(apperr.KindIO, "save prd", err)
	}
	m.doc.Metadata.UpdatedAt = now
	path := m.path
	m.dirty = false
	m.mu.Unlock()

	if err := m.write(path, data); err != nil {
		m.mu.Lock()
		m.dirty = true
		m.mu.Unlock()
		return err
	}
	debug.Logf("store: saved %s (%d bytes)", path, len(data))
	return nil
}

func (m *Manager) write(path string, data []byte) error {
	if m.locker == nil {
		if err := lock.AtomicWrite(path, data); err != nil {
			return apperr.Wrap(apperr.KindIO, "save prd", err)
		}
		return nil
	}

	res := m.locker.ExclusiveWrite(path, data)
	if res.OK {
		return nil
	}
	if res.Err == nil {
		return apperr.New(apperr.KindLockConflict, "save prd", "exclusive write of %s failed", path)
	}
	if apperr.KindOf(res.Err) == "" {
		return apperr.Wrap(apperr.KindLockConflict, "save prd", res.Err)
	}
	return res.Err
}

func (m *Manager) autosave() {
	if !m.Dirty() {
		return
	}
	if err := m.Save(); err != nil {
		log.Printf("warning: autosave failed: %v", err)
	}
}

// scheduleSave marks the document dirty and re-arms the autosave timer.
// Callers hold m.mu.
func (m *Manager) scheduleSave() {
	m.dirty = true
	m.saver.Schedule()
}

// Flush cancels the pending autosave and saves now if there are unsaved
// mutations.
func (m *Manager) Flush() error {
	m.saver.Cancel()
	if !m.Dirty() {
		return nil
	}
	return m.Save()
}

// Reset flushes and drops the document.
func (m *Manager) Reset() error {
	err := m.Flush()
	m.mu.Lock()
	m.doc = nil
	m.path = ""
	m.dirty = false
	m.mu.Unlock()
	return err
}
