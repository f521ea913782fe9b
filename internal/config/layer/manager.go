package layer

import (
	"fmt"
	"sort"
	"sync"

	"github.com/dshills/strata/internal/config/tree"
)

// Fold merges sources left to right into an empty mapping:
// merge(merge(merge({}, s1), s2), s3)... An empty source list yields an
// empty mapping.
func Fold(merger *Merger, sources ...*tree.Map) *tree.Map {
	result := tree.NewMap()
	for _, src := range sources {
		if src == nil {
			continue
		}
		// Two mappings always merge into a mapping.
		result = merger.Merge(result, src).(*tree.Map)
	}
	return result
}

// Manager manages configuration layers and provides merged access.
type Manager struct {
	mu     sync.RWMutex
	merger *Merger
	layers []*Layer  // Sorted by priority (ascending), stable
	merged  *tree.Map // Cached merged result
	origins *origin   // Which layer wrote each node of merged
	dirty   bool      // Whether merged cache needs refresh
}

// NewManager creates a new layer manager that folds layers with merger.
// A nil merger uses the default ArrayOverride strategy.
func NewManager(merger *Merger) *Manager {
	if merger == nil {
		merger = NewMerger(ArrayOverride)
	}
	return &Manager{
		merger: merger,
		layers: make([]*Layer, 0),
		dirty:  true,
	}
}

// AddLayer adds a layer to the manager.
// Layers are kept sorted by priority; equal priorities keep insertion order.
func (m *Manager) AddLayer(layer *Layer) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.layers = append(m.layers, layer)
	m.sortLayers()
	m.dirty = true
}

// RemoveLayer removes a layer by name.
// Returns true if the layer was found and removed.
func (m *Manager) RemoveLayer(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, layer := range m.layers {
		if layer.Name == name {
			m.layers = append(m.layers[:i], m.layers[i+1:]...)
			m.dirty = true
			return true
		}
	}
	return false
}

// GetLayer returns a layer by name.
func (m *Manager) GetLayer(name string) *Layer {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.findLayer(name)
}

// Layers returns a copy of all layers sorted by priority.
func (m *Manager) Layers() []*Layer {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*Layer, len(m.layers))
	copy(result, m.layers)
	return result
}

// LayerCount returns the number of layers.
func (m *Manager) LayerCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.layers)
}

// Merge folds all layers into a single tree and returns a copy of it.
// The fold is cached until a layer is added, removed, or updated.
func (m *Manager) Merge() *tree.Map {
	m.mu.Lock()
	defer m.mu.Unlock()
	return tree.CloneMap(m.mergedData())
}

// mergedData returns the cached merged tree, refreshing it if dirty.
// Must be called with the write lock held.
func (m *Manager) mergedData() *tree.Map {
	if m.dirty || m.merged == nil {
		sources := make([]*tree.Map, 0, len(m.layers))
		for _, layer := range m.layers {
			sources = append(sources, layer.Data)
		}
		m.merged = Fold(m.merger, sources...)
		m.origins = traceFold(m.merger, m.layers)
		m.dirty = false
	}
	return m.merged
}

// Get returns the effective value for a path together with the layer that
// supplied it. For a mapping or sequence that is the last layer that wrote
// into it. Sequence indices are resolved through the array strategy, so under
// ArrayAppend the elements of each layer keep their own origin.
func (m *Manager) Get(path string) (tree.Node, *Layer, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	segments := tree.SplitPath(path)
	val, ok := tree.LookupPath(m.mergedData(), segments)
	if !ok {
		return nil, nil, false
	}
	if o, found := m.origins.lookup(segments); found {
		return tree.Clone(val), o.layer, true
	}
	return tree.Clone(val), nil, true
}

// WhichLayer returns the name of the layer that supplied path, or "" when the
// merged tree has no value there.
func (m *Manager) WhichLayer(path string) string {
	_, layer, found := m.Get(path)
	if !found || layer == nil {
		return ""
	}
	return layer.Name
}

// UpdateLayer replaces a layer's data and marks the manager as dirty.
func (m *Manager) UpdateLayer(name string, data *tree.Map) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	layer := m.findLayer(name)
	if layer == nil {
		return fmt.Errorf("%w: %s", ErrLayerNotFound, name)
	}

	if layer.ReadOnly {
		return fmt.Errorf("%w: %s", ErrReadOnly, name)
	}

	layer.Data = cloneWithAnnotations(data)
	if layer.Data == nil {
		layer.Data = tree.NewMap()
	}
	m.dirty = true
	return nil
}

// Clear removes all layers.
func (m *Manager) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.layers = nil
	m.merged = nil
	m.origins = nil
	m.dirty = true
}

// sortLayers sorts layers by priority (ascending), keeping insertion order
// for equal priorities.
func (m *Manager) sortLayers() {
	sort.SliceStable(m.layers, func(i, j int) bool {
		return m.layers[i].Priority < m.layers[j].Priority
	})
}

// findLayer finds a layer by name (must be called with lock held).
func (m *Manager) findLayer(name string) *Layer {
	for _, layer := range m.layers {
		if layer.Name == name {
			return layer
		}
	}
	return nil
}
