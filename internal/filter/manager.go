package filter

import "sort"

// Item is one managed filter: an asset plus its runtime state.
type Item struct {
	Asset   *Asset
	Enabled bool
	Z       int
}

// Manager holds the loaded filters in draw order. Lower z draws first
// (further back). Not safe for concurrent use; the pipeline controller
// owns it.
type Manager struct {
	items []*Item
}

// NewManager returns an empty manager.
func NewManager() *Manager {
	return &Manager{}
}

// Add registers an asset, replacing any filter with the same name, and
// re-sorts by z-order.
func (m *Manager) Add(asset *Asset, enabled bool, z int) {
	for i, item := range m.items {
		if item.Asset.Name() == asset.Name() {
			item.Asset.Close()
			m.items[i] = &Item{Asset: asset, Enabled: enabled, Z: z}
			m.sortByZ()
			return
		}
	}
	m.items = append(m.items, &Item{Asset: asset, Enabled: enabled, Z: z})
	m.sortByZ()
}

func (m *Manager) sortByZ() {
	sort.SliceStable(m.items, func(i, j int) bool {
		return m.items[i].Z < m.items[j].Z
	})
}

// SetEnabled switches one filter on or off by name.
func (m *Manager) SetEnabled(name string, enabled bool) bool {
	for _, item := range m.items {
		if item.Asset.Name() == name {
			item.Enabled = enabled
			return true
		}
	}
	return false
}

// Toggle flips one filter's state and returns the new state.
func (m *Manager) Toggle(name string) (bool, bool) {
	for _, item := range m.items {
		if item.Asset.Name() == name {
			item.Enabled = !item.Enabled
			return item.Enabled, true
		}
	}
	return false, false
}

// ToggleIndex flips the filter at draw position i.
func (m *Manager) ToggleIndex(i int) bool {
	if i < 0 || i >= len(m.items) {
		return false
	}
	m.items[i].Enabled = !m.items[i].Enabled
	return true
}

// Cycle disables every filter and enables the one after the currently
// first-enabled filter, wrapping around. With none enabled it enables
// the first. Returns the name of the newly active filter.
func (m *Manager) Cycle() string {
	if len(m.items) == 0 {
		return ""
	}
	next := 0
	for i, item := range m.items {
		if item.Enabled {
			next = (i + 1) % len(m.items)
			break
		}
	}
	for i, item := range m.items {
		item.Enabled = i == next
	}
	return m.items[next].Asset.Name()
}

// Active returns the enabled filters in z-order.
func (m *Manager) Active() []*Item {
	var active []*Item
	for _, item := range m.items {
		if item.Enabled {
			active = append(active, item)
		}
	}
	return active
}

// Items returns all filters in z-order.
func (m *Manager) Items() []*Item {
	return m.items
}

// Len returns the number of managed filters.
func (m *Manager) Len() int {
	return len(m.items)
}

// Close releases every asset.
func (m *Manager) Close() error {
	var firstErr error
	for _, item := range m.items {
		if err := item.Asset.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	m.items = nil
	return firstErr
}
