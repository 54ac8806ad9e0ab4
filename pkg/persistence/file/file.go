// Package file stores workflow, environment and run documents as JSON files
// on disk. Intended for development and tests; claim semantics are only
// atomic within a single process.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/probeflow/probeflow/pkg/persistence"
)

// Persistence implements persistence.Persistence over a root directory.
type Persistence struct {
	root string

	workflowRepo    *WorkflowRepository
	environmentRepo *EnvironmentRepository
	runRepo         *RunRepository
}

// NewPersistence creates the file backend rooted at the given directory.
// Accepts a plain path or a file:// URL.
func NewPersistence(root string) *Persistence {
	cleanRoot := strings.TrimPrefix(root, "file://")

	return &Persistence{
		root:            cleanRoot,
		workflowRepo:    &WorkflowRepository{store: newStore(cleanRoot, "workflows")},
		environmentRepo: &EnvironmentRepository{store: newStore(cleanRoot, "environments")},
		runRepo:         &RunRepository{store: newStore(cleanRoot, "runs")},
	}
}

func (p *Persistence) WorkflowRepository() persistence.WorkflowRepository {
	return p.workflowRepo
}

func (p *Persistence) EnvironmentRepository() persistence.EnvironmentRepository {
	return p.environmentRepo
}

func (p *Persistence) RunRepository() persistence.RunRepository {
	return p.runRepo
}

func (p *Persistence) HealthCheck(_ context.Context) error {
	if _, err := os.Stat(p.root); err != nil {
		return fmt.Errorf("persistence root %s is not accessible: %w", p.root, err)
	}

	return nil
}

func (p *Persistence) Close(_ context.Context) error {
	return nil
}

// store reads and writes one entity kind as <root>/<kind>/<id>.json. A
// per-store mutex serializes claim-style read-modify-write sequences.
type store struct {
	dir string
	mu  sync.Mutex
}

func newStore(root, kind string) *store {
	return &store{dir: filepath.Join(root, kind)}
}

func (s *store) path(id string) string {
	return filepath.Join(s.dir, id+".json")
}

func (s *store) read(id string, out any) error {
	payload, err := os.ReadFile(s.path(id))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fs.ErrNotExist
		}

		return fmt.Errorf("failed to read %s: %w", s.path(id), err)
	}

	if err := json.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("failed to decode %s: %w", s.path(id), err)
	}

	return nil
}

func (s *store) write(id string, doc any) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", s.dir, err)
	}

	payload, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", id, err)
	}

	if err := os.WriteFile(s.path(id), payload, 0o600); err != nil {
		return fmt.Errorf("failed to write %s: %w", s.path(id), err)
	}

	return nil
}

func (s *store) delete(id string) error {
	err := os.Remove(s.path(id))
	if errors.Is(err, fs.ErrNotExist) {
		return fs.ErrNotExist
	}

	return err
}

// ids lists stored entity ids, lexicographically ordered.
func (s *store) ids() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to list %s: %w", s.dir, err)
	}

	ids := make([]string, 0, len(entries))

	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}

		ids = append(ids, strings.TrimSuffix(name, ".json"))
	}

	return ids, nil
}
