// Package git reports the files a run touched in the user's working tree.
package git

import (
	"errors"
	"fmt"
	"slices"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
)

// Repo wraps an opened repository.
type Repo struct {
	repo *gogit.Repository
}

// Open opens the repository containing workDir.
func Open(workDir string) (*Repo, error) {
	r, err := gogit.PlainOpenWithOptions(workDir, &gogit.PlainOpenOptions{
		DetectDotGit:          true,
		EnableDotGitCommonDir: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open git repo at %s: %w", workDir, err)
	}
	return &Repo{repo: r}, nil
}

// IsInsideRepo checks if dir is inside a git repository, walking up parent
// directories to find a .git folder.
func IsInsideRepo(dir string) bool {
	_, err := gogit.PlainOpenWithOptions(dir, &gogit.PlainOpenOptions{DetectDotGit: true})
	return err == nil
}

// Head returns the commit HEAD points at, or the zero hash in a repository
// without commits.
func (r *Repo) Head() (plumbing.Hash, error) {
	ref, err := r.repo.Head()
	if errors.Is(err, plumbing.ErrReferenceNotFound) {
		return plumbing.ZeroHash, nil
	}
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("resolve HEAD: %w", err)
	}
	return ref.Hash(), nil
}

// HasUncommittedChanges returns true if the worktree is not clean.
func (r *Repo) HasUncommittedChanges() (bool, error) {
	files, err := worktreeChanges(r.repo)
	if err != nil {
		return false, err
	}
	return len(files) > 0, nil
}

// ChangedSince returns the sorted union of files committed between base
// and HEAD and files with staged or unstaged changes. An error is returned
// only if both sources fail.
func (r *Repo) ChangedSince(base plumbing.Hash) ([]string, error) {
	var errs []error

	committed, err := committedDiff(r.repo, base)
	if err != nil {
		errs = append(errs, fmt.Errorf("committed diff: %w", err))
	}
	wt, err := worktreeChanges(r.repo)
	if err != nil {
		errs = append(errs, fmt.Errorf("worktree changes: %w", err))
	}
	if len(errs) == 2 {
		return nil, errors.Join(errs...)
	}

	files := append(committed, wt...)
	slices.Sort(files)
	return slices.Compact(files), nil
}

func committedDiff(repo *gogit.Repository, base plumbing.Hash) ([]string, error) {
	if base.IsZero() {
		return nil, nil
	}
	headRef, err := repo.Head()
	if err != nil {
		return nil, fmt.Errorf("resolve HEAD: %w", err)
	}
	if headRef.Hash() == base {
		return nil, nil
	}

	headCommit, err := repo.CommitObject(headRef.Hash())
	if err != nil {
		return nil, fmt.Errorf("get HEAD commit: %w", err)
	}
	baseCommit, err := repo.CommitObject(base)
	if err != nil {
		return nil, fmt.Errorf("get base commit: %w", err)
	}

	fromTree, err := baseCommit.Tree()
	if err != nil {
		return nil, fmt.Errorf("get base tree: %w", err)
	}
	headTree, err := headCommit.Tree()
	if err != nil {
		return nil, fmt.Errorf("get head tree: %w", err)
	}
	changes, err := fromTree.Diff(headTree)
	if err != nil {
		return nil, fmt.Errorf("compute diff: %w", err)
	}

	var files []string
	for _, change := range changes {
		name := change.To.Name
		if name == "" {
			name = change.From.Name
		}
		if name != "" {
			files = append(files, name)
		}
	}
	return files, nil
}

// worktreeChanges returns files with staged or unstaged changes. Ignored
// files are excluded by go-git's status.
func worktreeChanges(repo *gogit.Repository) ([]string, error) {
	wt, err := repo.Worktree()
	if err != nil {
		return nil, fmt.Errorf("get worktree: %w", err)
	}
	status, err := wt.Status()
	if err != nil {
		return nil, fmt.Errorf("get worktree status: %w", err)
	}

	var files []string
	for path, s := range status {
		if s.Staging != gogit.Unmodified || s.Worktree != gogit.Unmodified {
			files = append(files, path)
		}
	}
	return files, nil
}
