package config

import (
	"errors"
	"fmt"
	"sync"

	"github.com/MrWong99/fortuna/pkg/provider/image"
	"github.com/MrWong99/fortuna/pkg/provider/live"
	"github.com/MrWong99/fortuna/pkg/provider/llm"
	"github.com/MrWong99/fortuna/pkg/provider/tts"
)

// ErrProviderNotRegistered is returned by Create* methods when no factory has
// been registered under the requested provider name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// Registry maps provider names to their constructor functions for each
// provider type. It is safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	llm   map[string]func(ProviderEntry) (llm.Provider, error)
	image map[string]func(ProviderEntry) (image.Provider, error)
	tts   map[string]func(ProviderEntry) (tts.Provider, error)
	live  map[string]func(ProviderEntry) (live.Provider, error)
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		llm:   make(map[string]func(ProviderEntry) (llm.Provider, error)),
		image: make(map[string]func(ProviderEntry) (image.Provider, error)),
		tts:   make(map[string]func(ProviderEntry) (tts.Provider, error)),
		live:  make(map[string]func(ProviderEntry) (live.Provider, error)),
	}
}

// RegisterLLM registers a text provider factory under name.
// Subsequent calls with the same name overwrite the previous registration.
func (r *Registry) RegisterLLM(name string, factory func(ProviderEntry) (llm.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.llm[name] = factory
}

// RegisterImage registers an image provider factory under name.
func (r *Registry) RegisterImage(name string, factory func(ProviderEntry) (image.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.image[name] = factory
}

// RegisterTTS registers a speech provider factory under name.
func (r *Registry) RegisterTTS(name string, factory func(ProviderEntry) (tts.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tts[name] = factory
}

// RegisterLive registers a live voice provider factory under name.
func (r *Registry) RegisterLive(name string, factory func(ProviderEntry) (live.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.live[name] = factory
}

// CreateLLM instantiates a text provider using the factory registered under entry.Name.
// Returns [ErrProviderNotRegistered] if no factory has been registered for that name.
func (r *Registry) CreateLLM(entry ProviderEntry) (llm.Provider, error) {
	return create(r, r.llm, "llm", entry)
}

// CreateImage instantiates an image provider using the factory registered under entry.Name.
func (r *Registry) CreateImage(entry ProviderEntry) (image.Provider, error) {
	return create(r, r.image, "image", entry)
}

// CreateTTS instantiates a speech provider using the factory registered under entry.Name.
func (r *Registry) CreateTTS(entry ProviderEntry) (tts.Provider, error) {
	return create(r, r.tts, "tts", entry)
}

// CreateLive instantiates a live voice provider using the factory registered under entry.Name.
func (r *Registry) CreateLive(entry ProviderEntry) (live.Provider, error) {
	return create(r, r.live, "live", entry)
}

func create[T any](r *Registry, factories map[string]func(ProviderEntry) (T, error), kind string, entry ProviderEntry) (T, error) {
	r.mu.RLock()
	factory, ok := factories[entry.Name]
	r.mu.RUnlock()
	if !ok {
		var zero T
		return zero, fmt.Errorf("%w: %s/%q", ErrProviderNotRegistered, kind, entry.Name)
	}
	return factory(entry)
}
