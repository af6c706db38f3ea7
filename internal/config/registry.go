package config

import (
	"errors"
	"fmt"
	"sync"

	"github.com/MrWong99/wavbridge/pkg/audio"
	"github.com/MrWong99/wavbridge/pkg/provider/vad"
)

// ErrProviderNotRegistered is returned by Create* methods when no factory has
// been registered under the requested provider name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// Registry maps provider names to their constructor functions for the room
// platform and the silence gate engine. It is safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	vad   map[string]func(*Config) (vad.Engine, error)
	audio map[string]func(*Config) (audio.Platform, error)
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		vad:   make(map[string]func(*Config) (vad.Engine, error)),
		audio: make(map[string]func(*Config) (audio.Platform, error)),
	}
}

// RegisterVAD registers a VAD engine factory under name.
// Subsequent calls with the same name overwrite the previous registration.
func (r *Registry) RegisterVAD(name string, factory func(*Config) (vad.Engine, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.vad[name] = factory
}

// RegisterAudio registers an audio platform factory under name.
func (r *Registry) RegisterAudio(name string, factory func(*Config) (audio.Platform, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.audio[name] = factory
}

// CreateVAD instantiates the engine named by cfg.Ingest.Gate.Engine.
// Returns [ErrProviderNotRegistered] if no factory has been registered for
// that name.
func (r *Registry) CreateVAD(cfg *Config) (vad.Engine, error) {
	name := cfg.Ingest.Gate.Engine
	r.mu.RLock()
	factory, ok := r.vad[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: vad/%q", ErrProviderNotRegistered, name)
	}
	return factory(cfg)
}

// CreateAudio instantiates the platform named by cfg.Platform.
func (r *Registry) CreateAudio(cfg *Config) (audio.Platform, error) {
	name := cfg.Platform
	r.mu.RLock()
	factory, ok := r.audio[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: audio/%q", ErrProviderNotRegistered, name)
	}
	return factory(cfg)
}
