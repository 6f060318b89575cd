package agent

import "fmt"

// Registry holds every descriptor discovered at process startup: the two
// Go-native built-ins (security gate, main dispatcher) plus whatever
// specialists agents.yaml describes. It is read-only after startup and
// immutable for the lifetime of the process, so no mutex is needed.
type Registry struct {
	byName map[string]Descriptor
	order  []string
}

// NewRegistry builds an empty registry; call Register for each descriptor.
func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]Descriptor)}
}

// Register adds d to the registry. Returns an error if the name is already
// taken, since descriptor identity is the string name.
func (r *Registry) Register(d Descriptor) error {
	if d.Name == "" {
		return fmt.Errorf("agent descriptor must have a name")
	}
	if _, exists := r.byName[d.Name]; exists {
		return fmt.Errorf("agent %q already registered", d.Name)
	}
	r.byName[d.Name] = d
	r.order = append(r.order, d.Name)
	return nil
}

// Get looks up a descriptor by name.
func (r *Registry) Get(name string) (Descriptor, bool) {
	d, ok := r.byName[name]
	return d, ok
}

// List returns every registered descriptor in registration order.
func (r *Registry) List() []Descriptor {
	out := make([]Descriptor, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.byName[name])
	}
	return out
}
