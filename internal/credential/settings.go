package credential

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// SettingsStore persists overrides. Implemented by store.Store.
type SettingsStore interface {
	OverrideStore
	PutSetting(ctx context.Context, key, value string) error
	DeleteSetting(ctx context.Context, key string) error
}

// Invalidator is told when a provider's credential changed so per-credential
// state (call budgets) can be dropped.
type Invalidator interface {
	ResetBudget(p Provider)
}

// KeyValidator checks a candidate key against the live provider.
type KeyValidator func(ctx context.Context, key string) error

// Settings is the write side of the override store.
type Settings struct {
	store       SettingsStore
	invalidator Invalidator
	validators  map[Provider]KeyValidator
}

// NewSettings creates a Settings service. invalidator may be nil.
func NewSettings(store SettingsStore, invalidator Invalidator) *Settings {
	return &Settings{
		store:       store,
		invalidator: invalidator,
		validators:  make(map[Provider]KeyValidator),
	}
}

// RegisterValidator installs the live check used by Validate for p.
func (s *Settings) RegisterValidator(p Provider, v KeyValidator) {
	s.validators[p] = v
}

// SetOverride stores a user key for p and invalidates p's budget.
func (s *Settings) SetOverride(ctx context.Context, p Provider, value string) error {
	value = strings.TrimSpace(value)
	if value == "" {
		return eris.Errorf("credential: empty value for %s", p)
	}
	if err := s.store.PutSetting(ctx, overrideKey(p), value); err != nil {
		return eris.Wrapf(err, "credential: save %s override", p)
	}
	s.invalidate(p)
	zap.L().Info("credential: override set", zap.String("provider", string(p)))
	return nil
}

// ClearOverride removes p's user key so the environment default applies.
func (s *Settings) ClearOverride(ctx context.Context, p Provider) error {
	if err := s.store.DeleteSetting(ctx, overrideKey(p)); err != nil {
		return eris.Wrapf(err, "credential: clear %s override", p)
	}
	s.invalidate(p)
	zap.L().Info("credential: override cleared", zap.String("provider", string(p)))
	return nil
}

// SetSearchScope stores the user's search-scope id. An empty value clears it.
func (s *Settings) SetSearchScope(ctx context.Context, scope string) error {
	scope = strings.TrimSpace(scope)
	var err error
	if scope == "" {
		err = s.store.DeleteSetting(ctx, scopeKey)
	} else {
		err = s.store.PutSetting(ctx, scopeKey, scope)
	}
	if err != nil {
		return eris.Wrap(err, "credential: save search scope")
	}
	s.invalidate(Search)
	return nil
}

// Validate runs p's registered live check against key.
func (s *Settings) Validate(ctx context.Context, p Provider, key string) error {
	v, ok := s.validators[p]
	if !ok {
		return eris.Errorf("credential: no validator for %s", p)
	}
	if strings.TrimSpace(key) == "" {
		return eris.Errorf("credential: empty value for %s", p)
	}
	return v(ctx, strings.TrimSpace(key))
}

func (s *Settings) invalidate(p Provider) {
	if s.invalidator != nil {
		s.invalidator.ResetBudget(p)
	}
}
