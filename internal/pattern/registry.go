package pattern

import "sort"

// Registry maps pattern keys to their implementations. It is built once at
// startup and passed by reference into the services that need it; new
// variants are added by registering another implementation.
type Registry struct {
	patterns map[string]Pattern
}

// NewRegistry builds a registry from the provided patterns. Later entries
// with the same key replace earlier ones.
func NewRegistry(patterns ...Pattern) *Registry {
	r := &Registry{patterns: make(map[string]Pattern, len(patterns))}
	for _, p := range patterns {
		if p == nil {
			continue
		}
		r.patterns[p.Key()] = p
	}
	return r
}

// Default returns a registry with the built-in variants registered.
func Default() *Registry {
	return NewRegistry(NewDaily(), NewWeekly(), NewBiweekly(), NewMonthly(), NewCustom())
}

// Lookup resolves a pattern by key.
func (r *Registry) Lookup(key string) (Pattern, bool) {
	if r == nil {
		return nil, false
	}
	p, ok := r.patterns[key]
	return p, ok
}

// Keys returns the registered pattern keys in sorted order.
func (r *Registry) Keys() []string {
	if r == nil {
		return nil
	}
	keys := make([]string, 0, len(r.patterns))
	for key := range r.patterns {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
