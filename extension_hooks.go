package integrations

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/goliatone/go-integrations/core"
	"github.com/goliatone/go-integrations/providers"
)

var errNilHooks = errors.New("integrations: extension hooks are nil")

// ProviderPack adds provider configurations on top of the default catalog.
type ProviderPack struct {
	Name      string
	Providers []core.ProviderConfig
}

// CommandQueryBundleFactory builds a host-defined command/query bundle over
// the composed service. Bundles are exposed on Runtime.Bundles by name.
type CommandQueryBundleFactory func(service CommandQueryService) (any, error)

// ExtensionHooks lets hosts add providers and command/query bundles before
// Compose runs. Names are unique per kind and are always iterated in sorted
// order so composition is reproducible.
type ExtensionHooks struct {
	packs   named[ProviderPack]
	bundles named[CommandQueryBundleFactory]
}

func NewExtensionHooks() *ExtensionHooks {
	return &ExtensionHooks{}
}

func (h *ExtensionHooks) RegisterProviderPack(pack ProviderPack) error {
	if h == nil {
		return errNilHooks
	}
	pack.Name = strings.TrimSpace(pack.Name)
	if pack.Name == "" {
		return fmt.Errorf("integrations: provider pack name is required")
	}
	if len(pack.Providers) == 0 {
		return fmt.Errorf("integrations: provider pack %q has no providers", pack.Name)
	}
	if slices.ContainsFunc(pack.Providers, func(cfg core.ProviderConfig) bool {
		return core.NormalizeProviderName(cfg.Key) == ""
	}) {
		return fmt.Errorf("integrations: provider pack %q contains a provider without key", pack.Name)
	}
	pack.Providers = slices.Clone(pack.Providers)
	return h.packs.add("provider pack", pack.Name, pack)
}

func (h *ExtensionHooks) RegisterCommandQueryBundle(name string, factory CommandQueryBundleFactory) error {
	if h == nil {
		return errNilHooks
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("integrations: command/query bundle name is required")
	}
	if factory == nil {
		return fmt.Errorf("integrations: command/query bundle %q factory is required", name)
	}
	return h.bundles.add("command/query bundle", name, factory)
}

// BuildRegistry assembles the default catalog plus every registered pack and
// overlays credentials. Duplicate keys or aliases across packs are rejected.
func (h *ExtensionHooks) BuildRegistry(credentials map[string]core.ProviderCredentials) (*core.ProviderRegistry, error) {
	configs := providers.DefaultCatalog()
	for _, pack := range h.ProviderPacks() {
		configs = append(configs, pack.Providers...)
	}
	registry, err := core.NewProviderRegistry(configs...)
	if err != nil || len(credentials) == 0 {
		return registry, err
	}
	return registry.WithCredentials(credentials)
}

func (h *ExtensionHooks) BuildCommandQueryBundles(service CommandQueryService) (map[string]any, error) {
	if h == nil {
		return map[string]any{}, nil
	}
	if service == nil {
		return nil, fmt.Errorf("integrations: command/query service is required")
	}
	names, factories := h.bundles.snapshot()
	out := make(map[string]any, len(names))
	for i, name := range names {
		bundle, err := factories[i](service)
		if err != nil {
			return nil, fmt.Errorf("integrations: build bundle %q: %w", name, err)
		}
		out[name] = bundle
	}
	return out, nil
}

func (h *ExtensionHooks) ProviderPacks() []ProviderPack {
	if h == nil {
		return nil
	}
	_, packs := h.packs.snapshot()
	for i := range packs {
		packs[i].Providers = slices.Clone(packs[i].Providers)
	}
	return packs
}

func (h *ExtensionHooks) BundleNames() []string {
	if h == nil {
		return nil
	}
	names, _ := h.bundles.snapshot()
	return names
}

// named is a write-once set of values keyed by name.
type named[T any] struct {
	mu     sync.RWMutex
	values map[string]T
}

func (n *named[T]) add(kind string, name string, value T) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if _, exists := n.values[name]; exists {
		return fmt.Errorf("integrations: %s %q already registered", kind, name)
	}
	if n.values == nil {
		n.values = map[string]T{}
	}
	n.values[name] = value
	return nil
}

// snapshot returns the names in sorted order with their values at the same
// index.
func (n *named[T]) snapshot() ([]string, []T) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	names := make([]string, 0, len(n.values))
	for name := range n.values {
		names = append(names, name)
	}
	slices.Sort(names)
	values := make([]T, len(names))
	for i, name := range names {
		values[i] = n.values[name]
	}
	return names, values
}
