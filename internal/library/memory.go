package library

import (
	"fmt"
	"iter"
	"sync"
)

// MemoryLibrary is an in-process Store. It keeps insertion order for
// Enumerate so tests see a predictable sequence.
type MemoryLibrary struct {
	mu       sync.RWMutex
	defs     map[string]Definition
	order    []string
	broken   map[string]bool
	groups   []memoryGroup
	readOnly bool
}

type memoryGroup struct {
	name, description string
	members           []string
}

// NewMemory returns an empty library.
func NewMemory(readOnly bool) *MemoryLibrary {
	return &MemoryLibrary{
		defs:     make(map[string]Definition),
		broken:   make(map[string]bool),
		readOnly: readOnly,
	}
}

// Add stores def regardless of the read-only flag. It is the loader path,
// not a library operation.
func (m *MemoryLibrary) Add(defs ...Definition) *MemoryLibrary {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range defs {
		m.put(d)
	}
	return m
}

// Break marks key as present but impossible to construct.
func (m *MemoryLibrary) Break(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.broken[key] = true
}

// AddGroup registers a native group.
func (m *MemoryLibrary) AddGroup(name, description string, members ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.groups = append(m.groups, memoryGroup{name: name, description: description, members: members})
}

// SetReadOnly toggles content mutability.
func (m *MemoryLibrary) SetReadOnly(ro bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.readOnly = ro
}

func (m *MemoryLibrary) put(d Definition) {
	if _, ok := m.defs[d.Key]; !ok {
		m.order = append(m.order, d.Key)
	}
	m.defs[d.Key] = d
}

func (m *MemoryLibrary) drop(key string) {
	delete(m.defs, key)
	delete(m.broken, key)
	for i, k := range m.order {
		if k == key {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
}

func (m *MemoryLibrary) Enumerate() iter.Seq[string] {
	m.mu.RLock()
	keys := append([]string(nil), m.order...)
	m.mu.RUnlock()
	return sliceSeq(keys)
}

func (m *MemoryLibrary) Lookup(key string) (Definition, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.defs[key]
	if !ok {
		return Definition{}, fmt.Errorf("%s: %w", key, ErrNotFound)
	}
	if m.broken[key] {
		return Definition{}, fmt.Errorf("%s: %w", key, ErrConstruction)
	}
	return d, nil
}

func (m *MemoryLibrary) Create(template Definition) (Definition, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.readOnly {
		return Definition{}, ErrReadOnly
	}
	key, err := createKey(template.Key, func(k string) bool { _, ok := m.defs[k]; return ok })
	if err != nil {
		return Definition{}, err
	}
	d := template
	d.Key = key
	m.put(d)
	return d, nil
}

func (m *MemoryLibrary) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.readOnly {
		return ErrReadOnly
	}
	if _, ok := m.defs[key]; !ok {
		return fmt.Errorf("delete %s: %w", key, ErrNotFound)
	}
	m.drop(key)
	return nil
}

func (m *MemoryLibrary) Replace(oldKey string, def Definition) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.readOnly {
		return ErrReadOnly
	}
	if _, ok := m.defs[oldKey]; !ok {
		return fmt.Errorf("replace %s: %w", oldKey, ErrNotFound)
	}
	if def.Key != oldKey {
		if _, ok := m.defs[def.Key]; ok {
			return fmt.Errorf("replace %s with %s: %w", oldKey, def.Key, ErrExists)
		}
		for i, k := range m.order {
			if k == oldKey {
				m.order[i] = def.Key
			}
		}
		delete(m.defs, oldKey)
		delete(m.broken, oldKey)
	}
	m.defs[def.Key] = def
	return nil
}

func (m *MemoryLibrary) IsReadOnly() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.readOnly
}

func (m *MemoryLibrary) Contains(key string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.defs[key]
	return ok
}

func (m *MemoryLibrary) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.defs)
}

func (m *MemoryLibrary) NativeGroups() []NativeGroup {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]NativeGroup, 0, len(m.groups))
	for _, g := range m.groups {
		members := append([]string(nil), g.members...)
		out = append(out, NativeGroup{
			Name:        g.name,
			Description: g.description,
			Members:     func() iter.Seq[string] { return sliceSeq(members) },
		})
	}
	return out
}

var (
	_ Store       = (*MemoryLibrary)(nil)
	_ GroupLister = (*MemoryLibrary)(nil)
)
