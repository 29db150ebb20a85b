// Package scaffold creates the files a project needs before its first run:
// a starter PRD, the progress log, claude settings and, optionally, a local
// .prdloop/config.yaml.
package scaffold

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/alexander-akhmetov/prdloop/internal/apperr"
	"github.com/alexander-akhmetov/prdloop/internal/config"
	"github.com/alexander-akhmetov/prdloop/internal/dirs"
	"github.com/alexander-akhmetov/prdloop/internal/llm"
	"github.com/alexander-akhmetov/prdloop/internal/lock"
	"github.com/alexander-akhmetov/prdloop/internal/prd"
	"github.com/alexander-akhmetov/prdloop/internal/progress"
	"github.com/alexander-akhmetov/prdloop/internal/store"
)

// SettingsPath is the claude project settings file, relative to the
// project directory.
var SettingsPath = filepath.Join(".claude", "settings.json")

// starter tasks written into a fresh PRD.
var starterTasks = []struct{ title, description string }{
	{"Describe the first task", "Replace this task with the first piece of work. Keep each task small enough for one session."},
	{"Describe the second task", "Tasks run in order. Phase tasks sort by phase then id; stories by priority."},
}

// Options controls Init.
type Options struct {
	Dir         string
	PRDName     string // file name, default prd.json
	Name        string // document name, default: base name of Dir
	Description string
	Form        prd.Form
	Sandbox     bool
	LocalConfig bool
	Force       bool
	Now         func() time.Time
}

// Result lists what Init wrote and what it left alone.
type Result struct {
	PRDPath      string
	ProgressPath string
	SettingsPath string
	Created      []string
	Skipped      []string
}

// Init scaffolds the project in opts.Dir. An existing PRD is an error unless
// Force is set; an existing progress log or local config is kept, and
// existing claude settings are merged.
func Init(opts Options) (*Result, error) {
	if opts.Dir == "" {
		opts.Dir = "."
	}
	if opts.PRDName == "" {
		opts.PRDName = "prd.json"
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	abs, err := filepath.Abs(opts.Dir)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", opts.Dir, err)
	}
	if opts.Name == "" {
		opts.Name = filepath.Base(abs)
	}

	res := &Result{
		PRDPath:      filepath.Join(abs, opts.PRDName),
		SettingsPath: filepath.Join(abs, SettingsPath),
	}
	res.ProgressPath = progress.DefaultPath(res.PRDPath)

	if err := writePRD(res, opts); err != nil {
		return nil, err
	}
	if err := writeProgress(res, opts); err != nil {
		return nil, err
	}
	if err := writeSettings(res, opts); err != nil {
		return nil, err
	}
	if opts.LocalConfig {
		if err := writeLocalConfig(res, abs); err != nil {
			return nil, err
		}
	}
	return res, nil
}

func writePRD(res *Result, opts Options) error {
	if _, err := os.Stat(res.PRDPath); err == nil && !opts.Force {
		return apperr.New(apperr.KindConfiguration, "init", "%s already exists (use --force to overwrite)", res.PRDPath)
	}

	doc := prd.New(opts.Name, opts.Form, opts.Now().UTC())
	doc.Description = opts.Description

	m := store.New()
	m.Adopt(res.PRDPath, doc)
	for i, t := range starterTasks {
		mr := m.AddIssue(t.title, t.description)
		if !mr.Success {
			return fmt.Errorf("add starter task: %s", mr.Message)
		}
		if mr := m.UpdatePriority(mr.ID, i+1); !mr.Success {
			return fmt.Errorf("order starter task: %s", mr.Message)
		}
	}
	if err := m.Flush(); err != nil {
		return err
	}
	res.Created = append(res.Created, res.PRDPath)
	return nil
}

func writeProgress(res *Result, opts Options) error {
	if _, err := os.Stat(res.ProgressPath); err == nil {
		res.Skipped = append(res.Skipped, res.ProgressPath)
		return nil
	}
	l, err := progress.Open(progress.Config{
		Path:    res.ProgressPath,
		PRDPath: res.PRDPath,
		Name:    opts.Name,
		Now:     opts.Now,
	})
	if err != nil {
		return apperr.Wrap(apperr.KindIO, "init", err)
	}
	l.Printf("Project initialised")
	if err := l.Close(); err != nil {
		return apperr.Wrap(apperr.KindIO, "init", err)
	}
	res.Created = append(res.Created, res.ProgressPath)
	return nil
}

func writeSettings(res *Result, opts Options) error {
	existing, err := os.ReadFile(res.SettingsPath)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return apperr.Wrap(apperr.KindIO, "init", err)
	}

	data, err := llm.MergeSettings(existing, llm.Settings{
		Sandbox:   opts.Sandbox,
		DenyPaths: []string{dirs.LocalDirName},
		Allow: []string{
			fmt.Sprintf("Edit(%s)", opts.PRDName),
			fmt.Sprintf("Edit(%s)", progress.DefaultFileName),
		},
	})
	if err != nil {
		return fmt.Errorf("build claude settings: %w", err)
	}
	if err := lock.AtomicWrite(res.SettingsPath, data); err != nil {
		return apperr.Wrap(apperr.KindIO, "init", err)
	}
	if existing != nil {
		res.Skipped = append(res.Skipped, res.SettingsPath+" (merged)")
	} else {
		res.Created = append(res.Created, res.SettingsPath)
	}
	return nil
}

func writeLocalConfig(res *Result, dir string) error {
	path := filepath.Join(dir, dirs.LocalDirName, "config.yaml")
	if _, err := os.Stat(path); err == nil {
		res.Skipped = append(res.Skipped, path)
		return nil
	}
	data, err := config.DefaultConfigYAML()
	if err != nil {
		return err
	}
	if err := lock.AtomicWrite(path, data); err != nil {
		return apperr.Wrap(apperr.KindIO, "init", err)
	}
	res.Created = append(res.Created, path)
	return nil
}
