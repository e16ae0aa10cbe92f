package service

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"

	"condortrader/internal/config"
	"condortrader/internal/models"
	"condortrader/internal/repository"
)

type stubConfigRepo struct {
	repository.Repository
	values map[string]*models.StrategyConfig
}

func newStubConfigRepo() *stubConfigRepo {
	return &stubConfigRepo{values: map[string]*models.StrategyConfig{}}
}

func (s *stubConfigRepo) GetConfigValue(_ context.Context, key string) (*models.StrategyConfig, error) {
	return s.values[key], nil
}

func (s *stubConfigRepo) UpsertConfigValue(_ context.Context, item *models.StrategyConfig) error {
	s.values[item.ConfigKey] = item
	return nil
}

func newTestSettings(repo *stubConfigRepo) *SettingsService {
	return &SettingsService{
		Repo: repo,
		Static: config.StrategyConfig{
			DeltaTarget:        0.3,
			WingWidth:          10,
			TakeProfitFraction: 0.25,
			Quantity:           1,
		},
	}
}

func TestEnsureDefaultsDoesNotOverwrite(t *testing.T) {
	repo := newStubConfigRepo()
	repo.values[KeyStrategyEnabled] = &models.StrategyConfig{
		ConfigKey:   KeyStrategyEnabled,
		ConfigValue: "false",
	}
	svc := newTestSettings(repo)
	if err := svc.EnsureDefaults(context.Background()); err != nil {
		t.Fatalf("err=%v", err)
	}
	if repo.values[KeyStrategyEnabled].ConfigValue != "false" {
		t.Fatalf("existing switch was overwritten")
	}
	if repo.values[KeyUseLiveAccount] == nil {
		t.Fatalf("missing default not seeded")
	}
	if repo.values[KeyUseLiveAccount].ConfigValue != "false" {
		t.Fatalf("use_live_account=%q want false", repo.values[KeyUseLiveAccount].ConfigValue)
	}
}

func TestIsEnabledFallsBackOnGarbage(t *testing.T) {
	repo := newStubConfigRepo()
	repo.values[KeyStrategyEnabled] = &models.StrategyConfig{
		ConfigKey:   KeyStrategyEnabled,
		ConfigValue: "banana",
	}
	svc := newTestSettings(repo)
	if !svc.IsEnabled(context.Background(), KeyStrategyEnabled, true) {
		t.Fatalf("fallback not applied for unparsable value")
	}
	if svc.IsEnabled(context.Background(), KeyUseLiveAccount, false) {
		t.Fatalf("missing key should use fallback")
	}
}

func TestTuningOverlayWinsOverStatic(t *testing.T) {
	repo := newStubConfigRepo()
	svc := newTestSettings(repo)
	ctx := context.Background()

	if got := svc.DeltaTarget(ctx); !got.Equal(decimal.NewFromFloat(0.3)) {
		t.Fatalf("static delta=%s want 0.3", got)
	}
	if err := svc.SetValue(ctx, KeyDeltaTarget, "0.2", "tuned"); err != nil {
		t.Fatalf("err=%v", err)
	}
	if got := svc.DeltaTarget(ctx); !got.Equal(decimal.NewFromFloat(0.2)) {
		t.Fatalf("overlay delta=%s want 0.2", got)
	}
}

func TestTuningOverlayRejectsNonPositive(t *testing.T) {
	repo := newStubConfigRepo()
	svc := newTestSettings(repo)
	ctx := context.Background()

	if err := svc.SetValue(ctx, KeyWingWidth, "-5", ""); err != nil {
		t.Fatalf("err=%v", err)
	}
	if got := svc.WingWidth(ctx); !got.Equal(decimal.NewFromInt(10)) {
		t.Fatalf("wing width=%s want static 10", got)
	}
	if err := svc.SetValue(ctx, KeyQuantity, "0", ""); err != nil {
		t.Fatalf("err=%v", err)
	}
	if got := svc.Quantity(ctx); got != 1 {
		t.Fatalf("quantity=%d want 1", got)
	}
}
