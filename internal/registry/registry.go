// Package registry holds task definitions for a single invocation. The
// registry is the only owner of Task values; the graph builder and the
// scheduler reference tasks by name.
package registry

import (
	"sync"

	"github.com/hpipe/hpipe/internal/errors"
)

// Registry stores task definitions keyed by unique name, preserving
// registration order for reproducible default execution order.
type Registry struct {
	mu    sync.RWMutex
	tasks map[string]*Task
	order []string
}

// New creates an empty Registry
func New() *Registry {
	return &Registry{
		tasks: make(map[string]*Task),
	}
}

// Register adds a task definition. Registering a name twice is a
// configuration error.
func (r *Registry) Register(t *Task) error {
	if t == nil || t.Name == "" {
		return errors.NewConfigError(errors.CodeInvalidTaskFile,
			"Task must have a name", "Task registration")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tasks[t.Name]; exists {
		return errors.NewDuplicateTaskError(t.Name)
	}

	r.tasks[t.Name] = t
	r.order = append(r.order, t.Name)
	return nil
}

// Get retrieves a task by name. An unknown name is a configuration error.
func (r *Registry) Get(name string) (*Task, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, exists := r.tasks[name]
	if !exists {
		return nil, errors.NewUnknownTaskError(name, "")
	}
	return t, nil
}

// Has reports whether a task with the given name is registered
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.tasks[name]
	return exists
}

// Names returns the registered task names in registration order
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, len(r.order))
	copy(names, r.order)
	return names
}

// Index returns the registration position of a task name, or -1 when the
// name is not registered. Used for deterministic tie-breaking.
func (r *Registry) Index(name string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for i, n := range r.order {
		if n == name {
			return i
		}
	}
	return -1
}

// Len returns the number of registered tasks
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tasks)
}
