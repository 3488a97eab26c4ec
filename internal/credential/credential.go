// Package credential resolves provider credentials from a user override
// store with a process-wide default behind it.
package credential

import (
	"context"
	"crypto/sha256"
	"encoding/hex"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Provider identifies one of the three outbound provider classes.
type Provider string

const (
	Search     Provider = "search"
	Generation Provider = "generation"
	Financial  Provider = "financial"
)

// Providers lists every provider in display order.
var Providers = []Provider{Generation, Search, Financial}

// ParseProvider validates a provider id from user input.
func ParseProvider(s string) (Provider, error) {
	switch p := Provider(s); p {
	case Search, Generation, Financial:
		return p, nil
	}
	return "", eris.Errorf("credential: unknown provider %q", s)
}

// Origin says where a resolved value came from.
type Origin string

const (
	UserOverride       Origin = "user_override"
	EnvironmentDefault Origin = "environment_default"
	Unset              Origin = "unset"
)

// Credential is a resolved secret for one provider.
type Credential struct {
	Provider Provider `json:"provider"`
	Value    string   `json:"-"`
	Origin   Origin   `json:"origin"`
}

// Present reports whether a usable value was resolved.
func (c Credential) Present() bool {
	return c.Origin != Unset && c.Value != ""
}

// Fingerprint identifies the credential's origin and value without exposing
// the value. Two resolutions with equal fingerprints used the same key.
func (c Credential) Fingerprint() string {
	if !c.Present() {
		return string(Unset)
	}
	sum := sha256.Sum256([]byte(c.Value))
	return string(c.Origin) + ":" + hex.EncodeToString(sum[:8])
}

// OverrideStore reads user-entered overrides. Implemented by store.Store.
type OverrideStore interface {
	GetSetting(ctx context.Context, key string) (string, bool, error)
}

// Defaults holds the environment-provided values.
type Defaults struct {
	Keys        map[Provider]string
	SearchScope string
}

const scopeKey = "credential.search_scope"

func overrideKey(p Provider) string {
	return "credential." + string(p)
}

// Resolver resolves credentials fresh on every call; nothing is cached.
type Resolver struct {
	overrides OverrideStore
	defaults  Defaults
}

// NewResolver creates a Resolver. overrides may be nil.
func NewResolver(overrides OverrideStore, defaults Defaults) *Resolver {
	return &Resolver{overrides: overrides, defaults: defaults}
}

// Resolve returns the credential for p. It never fails: a store read error
// is logged and treated as an absent override.
func (r *Resolver) Resolve(ctx context.Context, p Provider) Credential {
	value, origin := r.lookup(ctx, overrideKey(p), r.defaults.Keys[p])
	return Credential{Provider: p, Value: value, Origin: origin}
}

// SearchScope resolves the search-scope id with the same precedence as keys.
func (r *Resolver) SearchScope(ctx context.Context) (string, Origin) {
	return r.lookup(ctx, scopeKey, r.defaults.SearchScope)
}

func (r *Resolver) lookup(ctx context.Context, key, fallback string) (string, Origin) {
	if r.overrides != nil {
		v, ok, err := r.overrides.GetSetting(ctx, key)
		if err != nil {
			zap.L().Warn("credential: read override", zap.String("key", key), zap.Error(err))
		} else if ok && v != "" {
			return v, UserOverride
		}
	}
	if fallback != "" {
		return fallback, EnvironmentDefault
	}
	return "", Unset
}

// ProviderStatus is the settings-surface view of one provider's key.
type ProviderStatus struct {
	Provider Provider `json:"provider"`
	Valid    bool     `json:"valid"`
	Source   string   `json:"source"`
	Origin   Origin   `json:"origin"`
}

// Status reports which credential each provider would use right now.
func (r *Resolver) Status(ctx context.Context) []ProviderStatus {
	out := make([]ProviderStatus, 0, len(Providers))
	for _, p := range Providers {
		c := r.Resolve(ctx, p)
		valid := c.Present()
		if p == Search {
			scope, _ := r.SearchScope(ctx)
			valid = valid && scope != ""
		}
		out = append(out, ProviderStatus{
			Provider: p,
			Valid:    valid,
			Source:   sourceLabel(c.Origin),
			Origin:   c.Origin,
		})
	}
	return out
}

func sourceLabel(o Origin) string {
	switch o {
	case UserOverride:
		return "User Key"
	case EnvironmentDefault:
		return "Environment"
	default:
		return "Not configured"
	}
}
