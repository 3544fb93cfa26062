package observation

// Registry holds the active observations in insertion order.
// It is not safe for concurrent use; the coordinator loop owns it.
type Registry struct {
	items []*Observation
}

func NewRegistry() *Registry {
	return &Registry{}
}

func (r *Registry) indexOf(o *Observation) int {
	for i, it := range r.items {
		if it == o {
			return i
		}
	}
	return -1
}

// Add inserts o; it refuses nil and entities that are already present.
func (r *Registry) Add(o *Observation) bool {
	if o == nil || r.indexOf(o) >= 0 {
		return false
	}
	r.items = append(r.items, o)
	return true
}

// Remove deletes o. Removing an absent entity is a no-op.
func (r *Registry) Remove(o *Observation) bool {
	i := r.indexOf(o)
	if i < 0 {
		return false
	}
	copy(r.items[i:], r.items[i+1:])
	r.items[len(r.items)-1] = nil
	r.items = r.items[:len(r.items)-1]
	return true
}

// Find looks up an observation by durable id. Pending observations are never found.
func (r *Registry) Find(id int64) (*Observation, bool) {
	if id == PendingID {
		return nil, false
	}
	for _, it := range r.items {
		if it.id == id {
			return it, true
		}
	}
	return nil, false
}

// List returns a snapshot that stays valid while the registry is mutated.
func (r *Registry) List() []*Observation {
	out := make([]*Observation, len(r.items))
	copy(out, r.items)
	return out
}

func (r *Registry) Len() int { return len(r.items) }
