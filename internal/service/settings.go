package service

import (
	"context"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"condortrader/internal/config"
	"condortrader/internal/models"
	"condortrader/internal/repository"
)

const (
	KeyStrategyEnabled    = "strategy_enabled"
	KeyUseLiveAccount     = "use_live_account"
	KeyDeltaTarget        = "delta_target"
	KeyWingWidth          = "wing_width"
	KeyTakeProfitFraction = "take_profit_fraction"
	KeyQuantity           = "quantity"
)

// DefaultSettings are the keys seeded on startup. Tuning keys are left
// unseeded so the static config remains their source until someone
// overrides them at runtime.
func DefaultSettings() map[string]string {
	return map[string]string{
		KeyStrategyEnabled: "true",
		KeyUseLiveAccount:  "false",
	}
}

// SettingsService is the runtime configuration overlay: values stored in
// the database win over the static config they shadow.
type SettingsService struct {
	Repo   repository.Repository
	Static config.StrategyConfig
}

// EnsureDefaults seeds missing default keys. Existing values are never
// overwritten.
func (s *SettingsService) EnsureDefaults(ctx context.Context) error {
	if s == nil || s.Repo == nil {
		return nil
	}
	for key, value := range DefaultSettings() {
		existing, err := s.Repo.GetConfigValue(ctx, key)
		if err != nil {
			return err
		}
		if existing != nil {
			continue
		}
		item := &models.StrategyConfig{
			ConfigKey:   key,
			ConfigValue: value,
			Description: "runtime strategy switch",
		}
		if err := s.Repo.UpsertConfigValue(ctx, item); err != nil {
			return err
		}
	}
	return nil
}

func (s *SettingsService) Value(ctx context.Context, key string) (string, bool) {
	if s == nil || s.Repo == nil {
		return "", false
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return "", false
	}
	item, err := s.Repo.GetConfigValue(ctx, key)
	if err != nil || item == nil {
		return "", false
	}
	return item.ConfigValue, true
}

func (s *SettingsService) SetValue(ctx context.Context, key, value, description string) error {
	if s == nil || s.Repo == nil {
		return nil
	}
	item := &models.StrategyConfig{
		ConfigKey:   strings.TrimSpace(key),
		ConfigValue: value,
		Description: description,
	}
	return s.Repo.UpsertConfigValue(ctx, item)
}

// IsEnabled reads a boolean switch stored as "true"/"false".
func (s *SettingsService) IsEnabled(ctx context.Context, key string, fallback bool) bool {
	value, ok := s.Value(ctx, key)
	if !ok {
		return fallback
	}
	enabled, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return enabled
}

// DeltaTarget resolves the short-strike delta target, overlay first.
func (s *SettingsService) DeltaTarget(ctx context.Context) decimal.Decimal {
	if value, ok := s.Value(ctx, KeyDeltaTarget); ok {
		if d, err := decimal.NewFromString(value); err == nil && d.IsPositive() {
			return d
		}
	}
	return decimal.NewFromFloat(s.Static.DeltaTarget)
}

func (s *SettingsService) WingWidth(ctx context.Context) decimal.Decimal {
	if value, ok := s.Value(ctx, KeyWingWidth); ok {
		if d, err := decimal.NewFromString(value); err == nil && d.IsPositive() {
			return d
		}
	}
	return decimal.NewFromInt(int64(s.Static.WingWidth))
}

func (s *SettingsService) TakeProfitFraction(ctx context.Context) decimal.Decimal {
	if value, ok := s.Value(ctx, KeyTakeProfitFraction); ok {
		if d, err := decimal.NewFromString(value); err == nil && d.IsPositive() {
			return d
		}
	}
	return decimal.NewFromFloat(s.Static.TakeProfitFraction)
}

func (s *SettingsService) Quantity(ctx context.Context) int {
	if value, ok := s.Value(ctx, KeyQuantity); ok {
		if n, err := strconv.Atoi(value); err == nil && n > 0 {
			return n
		}
	}
	if s.Static.Quantity > 0 {
		return s.Static.Quantity
	}
	return 1
}
