package storage

import (
	"fmt"
	"strings"
	"sync"

	"github.com/RyanBlaney/sonido-mosaic/pkg/common"
)

type memGroup struct {
	arrays map[string][]float64
	attrs  Attributes
}

// MemoryStore keeps groups in process memory. Used when persistence is disabled.
type MemoryStore struct {
	mu     sync.RWMutex
	groups map[string]*memGroup
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{groups: make(map[string]*memGroup)}
}

func groupKey(path Path) string {
	return strings.Join(path, "\x00")
}

func (m *MemoryStore) CreateGroup(path Path) error {
	if err := validatePath(path); err != nil {
		return common.NewMosaicError(common.ErrCodeStorageWrite, path.String(), "invalid group", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := 1; i <= len(path); i++ {
		key := groupKey(path[:i])
		if _, ok := m.groups[key]; !ok {
			m.groups[key] = &memGroup{arrays: map[string][]float64{}, attrs: Attributes{}}
		}
	}
	return nil
}

func (m *MemoryStore) WriteArray(path Path, name string, data []float64, attrs Attributes) error {
	return m.WriteArrays(path, map[string][]float64{name: data}, attrs)
}

func (m *MemoryStore) WriteArrays(path Path, arrays map[string][]float64, attrs Attributes) error {
	if err := m.CreateGroup(path); err != nil {
		return err
	}
	g := &memGroup{arrays: make(map[string][]float64, len(arrays)), attrs: attrs.clone()}
	for name, data := range arrays {
		g.arrays[name] = append([]float64(nil), data...)
	}

	m.mu.Lock()
	m.groups[groupKey(path)] = g
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) ReadArray(path Path, name string) ([]float64, Attributes, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	g, ok := m.groups[groupKey(path)]
	if !ok {
		return nil, nil, fmt.Errorf("%s/%s: %w", path.String(), name, ErrNotFound)
	}
	data, ok := g.arrays[name]
	if !ok {
		return nil, nil, fmt.Errorf("%s/%s: %w", path.String(), name, ErrNotFound)
	}
	return append([]float64(nil), data...), g.attrs.clone(), nil
}

func (m *MemoryStore) ReadAttributes(path Path) (Attributes, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	g, ok := m.groups[groupKey(path)]
	if !ok {
		return nil, fmt.Errorf("%s: %w", path.String(), ErrNotFound)
	}
	return g.attrs.clone(), nil
}

func (m *MemoryStore) Exists(path Path, name string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	g, ok := m.groups[groupKey(path)]
	if !ok {
		return false, nil
	}
	if name == "" {
		return true, nil
	}
	_, ok = g.arrays[name]
	return ok, nil
}

func (m *MemoryStore) DeleteGroup(path Path) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	prefix := groupKey(path)
	for key := range m.groups {
		if key == prefix || strings.HasPrefix(key, prefix+"\x00") {
			delete(m.groups, key)
		}
	}
	return nil
}

func (m *MemoryStore) Close() error {
	return nil
}
