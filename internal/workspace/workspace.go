// Package workspace allocates per-request scratch directories on the local
// filesystem so concurrent pipeline runs never share archive paths.
package workspace

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/JakeFAU/sb2gs-service/internal/scratch"
)

// File and directory names inside each workspace.
const (
	InputArchiveName  = "input.sb3"
	OutputDirName     = "output"
	OutputArchiveName = "output.zip"
)

// Config captures the parameters for the workspace root.
type Config struct {
	// BaseDir is the root under which per-request directories are created.
	BaseDir string `mapstructure:"base_dir" yaml:"base_dir"`
	// Keep leaves workspaces on disk after Release, for debugging.
	Keep bool `mapstructure:"keep" yaml:"keep"`
}

// Manager hands out workspaces under a validated, writable root.
type Manager struct {
	baseDir string
	keep    bool
	ids     scratch.IDGenerator
}

// Workspace is one request's private directory and the well-known paths in it.
type Workspace struct {
	ID            string
	Dir           string
	InputArchive  string
	OutputDir     string
	OutputArchive string

	keep bool
}

// New creates a Manager, creating BaseDir if needed and verifying it is writable.
func New(cfg Config, ids scratch.IDGenerator) (*Manager, error) {
	if strings.TrimSpace(cfg.BaseDir) == "" {
		return nil, fmt.Errorf("base directory is required")
	}
	if ids == nil {
		return nil, fmt.Errorf("id generator is required")
	}

	info, err := os.Stat(cfg.BaseDir)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to stat base directory: %w", err)
		}
		if mkErr := os.MkdirAll(cfg.BaseDir, 0o750); mkErr != nil {
			return nil, fmt.Errorf("failed to create base directory: %w", mkErr)
		}
	} else if !info.IsDir() {
		return nil, fmt.Errorf("base directory path is not a directory")
	}

	testFile := filepath.Join(cfg.BaseDir, ".writable_test")
	if err := os.WriteFile(testFile, []byte("test"), 0o600); err != nil {
		return nil, fmt.Errorf("base directory is not writable: %w", err)
	}
	if err := os.Remove(testFile); err != nil {
		return nil, fmt.Errorf("failed to clean up test file: %w", err)
	}

	return &Manager{
		baseDir: filepath.Clean(cfg.BaseDir),
		keep:    cfg.Keep,
		ids:     ids,
	}, nil
}

// BaseDir returns the cleaned workspace root.
func (m *Manager) BaseDir() string {
	return m.baseDir
}

// Acquire creates a fresh workspace directory named by a new request ID.
func (m *Manager) Acquire() (*Workspace, error) {
	id, err := m.ids.NewID()
	if err != nil {
		return nil, fmt.Errorf("generate workspace id: %w", err)
	}
	return m.AcquireNamed(id)
}

// AcquireNamed creates a workspace for a caller-supplied ID, such as the HTTP
// request ID. The ID must be a single path element.
func (m *Manager) AcquireNamed(id string) (*Workspace, error) {
	if strings.TrimSpace(id) == "" {
		return nil, errors.New("workspace id is required")
	}
	dir := filepath.Join(m.baseDir, id)
	if filepath.Dir(dir) != m.baseDir {
		return nil, fmt.Errorf("path traversal detected")
	}
	if err := os.Mkdir(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create workspace: %w", err)
	}
	return &Workspace{
		ID:            id,
		Dir:           dir,
		InputArchive:  filepath.Join(dir, InputArchiveName),
		OutputDir:     filepath.Join(dir, OutputDirName),
		OutputArchive: filepath.Join(dir, OutputArchiveName),
		keep:          m.keep,
	}, nil
}

// Release removes the workspace and everything in it.
func (w *Workspace) Release() error {
	if w == nil || w.keep {
		return nil
	}
	if err := os.RemoveAll(w.Dir); err != nil {
		return fmt.Errorf("remove workspace: %w", err)
	}
	return nil
}
