// Package factory builds pluggable components, such as the metrics sinks
// listed under metrics.sinks, from a type name and raw settings.
package factory

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/mitchellh/mapstructure"
)

// Spec selects an implementation by name. Conf is decoded by the builder.
type Spec struct {
	Type string         `json:"type"`
	Conf map[string]any `json:"conf"`
}

// Builder constructs a T from raw settings.
type Builder[T any] func(conf map[string]any) (T, error)

// Registry maps type names to builders.
type Registry[T any] struct {
	kind     string
	mu       sync.RWMutex
	builders map[string]Builder[T]
}

// NewRegistry returns an empty registry. kind names the component family
// in error messages.
func NewRegistry[T any](kind string) *Registry[T] {
	return &Registry[T]{kind: kind, builders: make(map[string]Builder[T])}
}

// Register adds a builder. Names are case-insensitive.
func (r *Registry[T]) Register(name string, b Builder[T]) error {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" || b == nil {
		return fmt.Errorf("%s: empty name or nil builder", r.kind)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.builders[name]; ok {
		return fmt.Errorf("%s %q already registered", r.kind, name)
	}
	r.builders[name] = b
	return nil
}

// MustRegister is Register for init functions.
func (r *Registry[T]) MustRegister(name string, b Builder[T]) {
	if err := r.Register(name, b); err != nil {
		panic(err)
	}
}

// Build instantiates the implementation selected by s.
func (r *Registry[T]) Build(s Spec) (T, error) {
	r.mu.RLock()
	b, ok := r.builders[strings.ToLower(s.Type)]
	r.mu.RUnlock()
	if !ok {
		var zero T
		return zero, fmt.Errorf("unknown %s %q (known: %s)", r.kind, s.Type, strings.Join(r.Names(), ", "))
	}
	v, err := b(s.Conf)
	if err != nil {
		var zero T
		return zero, fmt.Errorf("%s %q: %w", r.kind, s.Type, err)
	}
	return v, nil
}

// Names lists the registered types in order.
func (r *Registry[T]) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.builders))
	for n := range r.builders {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Decode fills out from conf using json tags. Unknown keys are rejected so
// that typos in the configuration file surface at startup.
func Decode(conf map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		Result:           out,
		ErrorUnused:      true,
		WeaklyTypedInput: true,
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
	})
	if err != nil {
		return err
	}
	return dec.Decode(conf)
}
