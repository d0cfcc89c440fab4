package agents

import (
	"errors"
	"fmt"
	"sync"
)

var ErrUnknownSet = errors.New("unknown agent configuration set")

// Registry keeps the configuration sets available to a session, keyed
// by set key. Registration stamps provenance once so later lookups can
// branch on it without re-inspecting keys.
type Registry struct {
	mu   sync.RWMutex
	sets map[string]ConfigSet
	keys []string
}

func NewRegistry() *Registry {
	return &Registry{sets: map[string]ConfigSet{}}
}

// RegisterBuiltin adds a shipped scenario under its company's
// moderation policy.
func (r *Registry) RegisterBuiltin(key, companyName string, agents ...Agent) {
	r.register(ConfigSet{
		Key:         key,
		CompanyName: companyName,
		Provenance:  Builtin(key),
		Agents:      agents,
	})
}

// RegisterCustom adds a user-authored set. Its own name doubles as the
// brand the moderation policy protects.
func (r *Registry) RegisterCustom(name string, agents ...Agent) {
	r.register(ConfigSet{
		Key:        name,
		Provenance: Custom(name),
		Agents:     agents,
	})
}

func (r *Registry) register(set ConfigSet) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sets[set.Key]; !exists {
		r.keys = append(r.keys, set.Key)
	}
	r.sets[set.Key] = set
}

func (r *Registry) Set(key string) (ConfigSet, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	set, ok := r.sets[key]
	if !ok {
		return ConfigSet{}, fmt.Errorf("%w: %q", ErrUnknownSet, key)
	}
	return set, nil
}

// Keys returns set keys in registration order.
func (r *Registry) Keys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	keys := make([]string, len(r.keys))
	copy(keys, r.keys)
	return keys
}
