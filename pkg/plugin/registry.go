// Package plugin is the provider registry: transcription, reply generation,
// synthesis, and completion-scorer implementations register themselves under
// a kind and name, and assembly code resolves them by configuration instead
// of import graphs. Registration normally happens in init functions of the
// provider packages; dynamic loading is available behind a build tag.
package plugin

import (
	"fmt"
	"sort"
	"sync"
)

// Kind partitions the registry by provider contract.
type Kind string

const (
	// KindTranscriber providers implement stt.Transcriber.
	KindTranscriber Kind = "stt"
	// KindChatModel providers implement llm.ChatModel.
	KindChatModel Kind = "llm"
	// KindSynthesizer providers implement tts.Synthesizer.
	KindSynthesizer Kind = "tts"
	// KindScorer providers implement score.CompletionScorer.
	KindScorer Kind = "scorer"
)

// Factory builds a provider instance from loose configuration. The result is
// asserted to the contract matching the registered kind by the caller.
type Factory func(cfg map[string]any) (any, error)

// Downloader is implemented by providers that fetch model files before first
// use.
type Downloader interface {
	Download() error
}

// Provider is one registry entry.
type Provider struct {
	Kind        Kind
	Name        string
	Factory     Factory
	Description string
	Version     string
	Config      map[string]any // configuration keys and defaults, for help output
	Downloader  Downloader     // optional
}

// Registry maps kind and name to providers. Safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	providers map[Kind]map[string]*Provider
}

// NewRegistry creates an empty registry, mostly for tests; package-level
// functions operate on the shared default registry.
func NewRegistry() *Registry {
	return &Registry{providers: make(map[Kind]map[string]*Provider)}
}

var defaultRegistry = NewRegistry()

// Register adds a factory to the default registry. Panics on a duplicate
// kind/name pair; registration collisions are programmer errors and surface
// at startup, not at resolve time.
func Register(kind Kind, name string, factory Factory) {
	defaultRegistry.Register(kind, name, factory)
}

// RegisterProvider adds a provider with metadata to the default registry.
func RegisterProvider(p *Provider) {
	defaultRegistry.RegisterProvider(p)
}

// Lookup resolves a factory from the default registry.
func Lookup(kind Kind, name string) (Factory, bool) {
	return defaultRegistry.Lookup(kind, name)
}

// List returns the default registry's providers of one kind, or all of them
// when kind is empty.
func List(kind Kind) []*Provider {
	return defaultRegistry.List(kind)
}

// Kinds returns the kinds registered in the default registry.
func Kinds() []Kind {
	return defaultRegistry.Kinds()
}

// Register adds a bare factory.
func (r *Registry) Register(kind Kind, name string, factory Factory) {
	r.RegisterProvider(&Provider{Kind: kind, Name: name, Factory: factory})
}

// RegisterProvider adds a provider entry. Panics on empty kind or name, a nil
// factory, or a duplicate registration.
func (r *Registry) RegisterProvider(p *Provider) {
	if p.Kind == "" {
		panic("plugin: empty provider kind")
	}
	if p.Name == "" {
		panic("plugin: empty provider name")
	}
	if p.Factory == nil {
		panic(fmt.Sprintf("plugin: nil factory for %s/%s", p.Kind, p.Name))
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.providers[p.Kind] == nil {
		r.providers[p.Kind] = make(map[string]*Provider)
	}
	if _, dup := r.providers[p.Kind][p.Name]; dup {
		panic(fmt.Sprintf("plugin: %s/%s registered twice", p.Kind, p.Name))
	}
	r.providers[p.Kind][p.Name] = p
}

// Lookup resolves a factory.
func (r *Registry) Lookup(kind Kind, name string) (Factory, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.providers[kind][name]
	if !ok {
		return nil, false
	}
	return p.Factory, true
}

// List returns providers of one kind, or all providers when kind is empty,
// sorted by kind then name.
func (r *Registry) List(kind Kind) []*Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*Provider
	for k, byName := range r.providers {
		if kind != "" && k != kind {
			continue
		}
		for _, p := range byName {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Kind != out[j].Kind {
			return out[i].Kind < out[j].Kind
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// Kinds returns the registered kinds in sorted order.
func (r *Registry) Kinds() []Kind {
	r.mu.RLock()
	defer r.mu.RUnlock()

	kinds := make([]Kind, 0, len(r.providers))
	for k := range r.providers {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

// Clear empties the registry. For tests.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers = make(map[Kind]map[string]*Provider)
}
