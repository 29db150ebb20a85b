package git

import (
	"fmt"
	"slices"

	"github.com/go-git/go-git/v5/plumbing"
)

// Tracker records HEAD when a run starts and reports what changed since.
type Tracker struct {
	repo *Repo
	base plumbing.Hash
	seen []string
}

// NewTracker opens the repository at workDir and snapshots its state.
func NewTracker(workDir string) (*Tracker, error) {
	r, err := Open(workDir)
	if err != nil {
		return nil, err
	}
	base, err := r.Head()
	if err != nil {
		return nil, err
	}
	seen, err := r.ChangedSince(base)
	if err != nil {
		return nil, fmt.Errorf("snapshot worktree: %w", err)
	}
	return &Tracker{repo: r, base: base, seen: seen}, nil
}

// Changed returns files that became changed since the previous call, or
// since the tracker was created on the first call.
func (t *Tracker) Changed() ([]string, error) {
	now, err := t.repo.ChangedSince(t.base)
	if err != nil {
		return nil, err
	}
	var fresh []string
	for _, f := range now {
		if _, found := slices.BinarySearch(t.seen, f); !found {
			fresh = append(fresh, f)
		}
	}
	t.seen = now
	return fresh, nil
}
