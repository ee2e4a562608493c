package catalog

import (
	"sort"

	"moad/pkg/types"
)

// Catalog is the immutable set of model profiles plus routing defaults.
// Reloads build a fresh Catalog and swap it in between runs; nothing mutates
// an existing Catalog.
type Catalog struct {
	profiles     map[string]types.ModelProfile
	order        []string
	defaultModel string
	fallback     []string
}

// New validates the profiles and builds a Catalog. The default model and every
// fallback entry must exist in the profile set.
func New(profiles []types.ModelProfile, defaultModel string, fallback []string) (*Catalog, error) {
	if len(profiles) == 0 {
		return nil, ErrInvalidConfig("catalog has no models")
	}
	c := &Catalog{
		profiles:     make(map[string]types.ModelProfile, len(profiles)),
		defaultModel: defaultModel,
		fallback:     append([]string(nil), fallback...),
	}
	for _, p := range profiles {
		if p.ID == "" {
			return nil, ErrInvalidConfig("model profile with empty id")
		}
		if _, dup := c.profiles[p.ID]; dup {
			return nil, ErrInvalidConfig("duplicate model id: " + p.ID)
		}
		if p.RequestsPerMinute <= 0 || p.TokensPerMinute <= 0 {
			return nil, ErrInvalidConfig("model " + p.ID + ": rate limits must be positive")
		}
		if p.ContextWindow <= 0 {
			return nil, ErrInvalidConfig("model " + p.ID + ": context window must be positive")
		}
		c.profiles[p.ID] = p
		c.order = append(c.order, p.ID)
	}
	if defaultModel != "" {
		if _, ok := c.profiles[defaultModel]; !ok {
			return nil, ErrInvalidConfig("default model not in catalog: " + defaultModel)
		}
	}
	for _, id := range fallback {
		if _, ok := c.profiles[id]; !ok {
			return nil, ErrInvalidConfig("fallback model not in catalog: " + id)
		}
	}
	return c, nil
}

// Get returns the profile for id.
func (c *Catalog) Get(id string) (types.ModelProfile, bool) {
	p, ok := c.profiles[id]
	return p, ok
}

// Has reports whether id is a known model.
func (c *Catalog) Has(id string) bool {
	_, ok := c.profiles[id]
	return ok
}

// DefaultModel returns the configured default model id (may be empty).
func (c *Catalog) DefaultModel() string { return c.defaultModel }

// Fallback returns the configured fallback chain, in order.
func (c *Catalog) Fallback() []string {
	return append([]string(nil), c.fallback...)
}

// List returns the profiles in configuration order.
func (c *Catalog) List() []types.ModelProfile {
	out := make([]types.ModelProfile, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.profiles[id])
	}
	return out
}

// SmallestFor returns the model with the smallest context window that still
// fits requiredTokens. Ties resolve to configuration order.
func (c *Catalog) SmallestFor(requiredTokens int) (types.ModelProfile, bool) {
	candidates := make([]types.ModelProfile, 0, len(c.order))
	for _, id := range c.order {
		if p := c.profiles[id]; p.ContextWindow >= requiredTokens {
			candidates = append(candidates, p)
		}
	}
	if len(candidates) == 0 {
		return types.ModelProfile{}, false
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].ContextWindow < candidates[j].ContextWindow
	})
	return candidates[0], true
}
