package ecs

// Registry tracks all component stores so the World can release an entity's
// rows from every store once its index is freed.
type Registry struct {
	stores []Removable
}

func NewRegistry() *Registry {
	return &Registry{
		stores: make([]Removable, 0, 16),
	}
}

// Register adds a component store to the registry. Setup time only.
func (r *Registry) Register(store Removable) {
	r.stores = append(r.stores, store)
}

// RemoveAll clears the given entities from every registered component store.
func (r *Registry) RemoveAll(ids ...EntityID) {
	if len(ids) == 0 {
		return
	}
	for _, s := range r.stores {
		for _, id := range ids {
			s.Remove(id)
		}
	}
}

// Len is the number of registered stores.
func (r *Registry) Len() int { return len(r.stores) }
