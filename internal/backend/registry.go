// Package backend resolves configured storage backend names to factories.
//
// Each storage family (graph, vector, keyword) has its own Registry. Names are
// matched case-insensitively and legacy LightRAG class names are accepted as
// aliases. Resolution never retries: an unknown name is a configuration error.
package backend

import (
	"context"
	"slices"
	"strings"
	"sync"

	"github.com/Aman-CERP/amanrag/internal/config"
	amerrors "github.com/Aman-CERP/amanrag/internal/errors"
)

// Options is what a factory needs to open one backend instance.
type Options struct {
	// WorkingDir holds file-backed state. Empty keeps stores in memory.
	WorkingDir string
	// Namespace selects the vector collection (chunks, entities, relationships).
	Namespace string
	// Dimensions is the embedding size for vector backends.
	Dimensions int
	// Config carries connection settings for remote backends.
	Config *config.Config
}

// Factory opens a backend instance.
type Factory[T any] func(ctx context.Context, opts Options) (T, error)

// Registry maps backend names of one family to factories.
type Registry[T any] struct {
	family string

	mu        sync.RWMutex
	factories map[string]Factory[T]
	aliases   map[string]string
}

// NewRegistry creates an empty registry for family.
func NewRegistry[T any](family string) *Registry[T] {
	return &Registry[T]{
		family:    family,
		factories: make(map[string]Factory[T]),
		aliases:   make(map[string]string),
	}
}

// Family returns the registry's family name.
func (r *Registry[T]) Family() string { return r.family }

// Register adds or replaces a factory.
func (r *Registry[T]) Register(name string, f Factory[T]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[strings.ToLower(name)] = f
}

// Alias makes alias resolve to the registered name target.
func (r *Registry[T]) Alias(alias, target string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.aliases[strings.ToLower(alias)] = strings.ToLower(target)
}

// Canonical returns the registered name for name or an alias of it.
func (r *Registry[T]) Canonical(name string) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	key := strings.ToLower(strings.TrimSpace(name))
	if target, ok := r.aliases[key]; ok {
		key = target
	}
	if _, ok := r.factories[key]; !ok {
		return "", amerrors.UnknownBackend(r.family, name, r.namesLocked())
	}
	return key, nil
}

// Resolve returns the factory registered under name.
func (r *Registry[T]) Resolve(name string) (Factory[T], error) {
	key, err := r.Canonical(name)
	if err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.factories[key], nil
}

// Names returns the registered names, sorted.
func (r *Registry[T]) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.namesLocked()
}

func (r *Registry[T]) namesLocked() []string {
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
