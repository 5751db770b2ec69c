package observability

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

// Registry resolves observers by name so configuration can select them as strings.
// A Registry is owned by the composition root; there is no package-level instance.
type Registry struct {
	observers map[string]Observer
	mu        sync.RWMutex
}

// NewRegistry returns a Registry pre-populated with "noop" and a "slog" observer
// writing to logger.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		observers: map[string]Observer{
			"noop": NoOpObserver{},
			"slog": NewSlogObserver(logger),
		},
	}
}

// Get returns a registered observer by name.
func (r *Registry) Get(name string) (Observer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	obs, exists := r.observers[name]
	if !exists {
		return nil, fmt.Errorf("unknown observer: %s", name)
	}
	return obs, nil
}

// Register adds or replaces a named observer.
func (r *Registry) Register(name string, observer Observer) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.observers[name] = observer
}

// Names returns the registered observer names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.observers))
	for name := range r.observers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
