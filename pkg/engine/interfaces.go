package engine

import (
	"context"
	"fmt"
	"sort"

	"github.com/marbledata/marble/pkg/diff"
)

// ResourceType describes one kind of platform resource: where it lives on
// the API, which other resources its definitions reference, and how its
// nested collections are matched during comparison.
type ResourceType interface {
	// Name returns the type name used in definitions and resource keys.
	Name() string

	// Endpoint returns the API collection path for this type,
	// e.g. "/api/v1/tables".
	Endpoint() string

	// Dependencies extracts back-references from a definition: the keys of
	// resources this instance must be deployed after.
	Dependencies(r Resource) []ResourceKey

	// Identities returns per-path matching strategies for list elements in
	// this type's documents, keyed by schema path. Paths not listed fall
	// back to matching elements by value.
	Identities() map[string]diff.Identity
}

// RemoteSource observes the current remote state of a resource type.
type RemoteSource interface {
	// List returns every remote instance of the given type.
	List(ctx context.Context, rt ResourceType) ([]RemoteResource, error)
}

// Registry holds the known resource types.
type Registry struct {
	types map[string]ResourceType
}

// NewRegistry creates a registry with the given types. Duplicate names
// panic; registration happens at startup from a fixed set.
func NewRegistry(types ...ResourceType) *Registry {
	r := &Registry{types: make(map[string]ResourceType, len(types))}
	for _, rt := range types {
		if _, ok := r.types[rt.Name()]; ok {
			panic(fmt.Sprintf("engine: duplicate resource type %q", rt.Name()))
		}
		r.types[rt.Name()] = rt
	}
	return r
}

// Get returns the resource type with the given name.
func (r *Registry) Get(name string) (ResourceType, bool) {
	rt, ok := r.types[name]
	return rt, ok
}

// Names returns the registered type names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.types))
	for name := range r.types {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of registered types.
func (r *Registry) Len() int {
	return len(r.types)
}
