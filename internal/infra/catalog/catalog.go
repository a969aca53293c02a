// Package catalog loads the platform checklist reference data from YAML and
// serves it to the checklist engine. The active catalog can be swapped at
// runtime by a Watcher without blocking readers.
package catalog

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync/atomic"

	"github.com/rmaselli/smartFleet-app-sub002/internal/domain"

	"gopkg.in/yaml.v3"
)

//go:embed default_catalog.yaml
var defaultCatalogYAML []byte

type document struct {
	Platforms []platformDoc `yaml:"platforms"`
}

type platformDoc struct {
	ID    string                 `yaml:"id"`
	Name  string                 `yaml:"name"`
	Items []domain.ChecklistItem `yaml:"items"`
}

// Snapshot is an immutable, validated catalog.
type Snapshot struct {
	order     []string
	platforms map[string]domain.Platform
}

func (s *Snapshot) Platform(id string) (domain.Platform, bool) {
	if s == nil {
		return domain.Platform{}, false
	}
	p, ok := s.platforms[strings.TrimSpace(id)]
	return p, ok
}

func (s *Snapshot) Platforms() []domain.Platform {
	if s == nil {
		return nil
	}
	out := make([]domain.Platform, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.platforms[id])
	}
	return out
}

func Parse(data []byte) (*Snapshot, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	if len(doc.Platforms) == 0 {
		return nil, errors.New("catalog has no platforms")
	}
	snap := &Snapshot{platforms: make(map[string]domain.Platform, len(doc.Platforms))}
	for i, p := range doc.Platforms {
		id := strings.TrimSpace(p.ID)
		if id == "" {
			return nil, fmt.Errorf("platform %d: id is required", i)
		}
		if _, dup := snap.platforms[id]; dup {
			return nil, fmt.Errorf("platform %s: duplicate id", id)
		}
		items := make([]domain.ChecklistItem, 0, len(p.Items))
		seen := make(map[string]struct{}, len(p.Items))
		for j, item := range p.Items {
			code := strings.TrimSpace(item.Code)
			if code == "" {
				return nil, fmt.Errorf("platform %s item %d: code is required", id, j)
			}
			if _, dup := seen[code]; dup {
				return nil, fmt.Errorf("platform %s: duplicate item %s", id, code)
			}
			seen[code] = struct{}{}
			item.Code = code
			item.PlatformID = id
			items = append(items, item)
		}
		snap.order = append(snap.order, id)
		snap.platforms[id] = domain.Platform{ID: id, Name: p.Name, Items: items}
	}
	return snap, nil
}

func LoadFile(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return Parse(data)
}

func Default() *Snapshot {
	snap, err := Parse(defaultCatalogYAML)
	if err != nil {
		panic(fmt.Sprintf("embedded catalog invalid: %v", err))
	}
	return snap
}

// Store holds the active snapshot and implements domain.Catalog.
type Store struct {
	current atomic.Pointer[Snapshot]
}

func NewStore(initial *Snapshot) *Store {
	s := &Store{}
	if initial == nil {
		initial = Default()
	}
	s.current.Store(initial)
	return s
}

// Open loads path when set, falling back to the embedded catalog otherwise.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return NewStore(Default()), nil
	}
	snap, err := LoadFile(path)
	if err != nil {
		return nil, err
	}
	return NewStore(snap), nil
}

func (s *Store) Platform(id string) (domain.Platform, bool) {
	return s.current.Load().Platform(id)
}

func (s *Store) Platforms() []domain.Platform {
	return s.current.Load().Platforms()
}

func (s *Store) Swap(snap *Snapshot) {
	if snap == nil {
		return
	}
	s.current.Store(snap)
}

var _ domain.Catalog = (*Store)(nil)
