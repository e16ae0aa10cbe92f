package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"condortrader/internal/config"
	"condortrader/internal/models"
	"condortrader/internal/repository"
)

type stubSnapshotRepo struct {
	repository.Repository
	gotSymbol string
	gotLimit  int
}

func (s *stubSnapshotRepo) ListMarketSnapshots(_ context.Context, params repository.ListSnapshotsParams) ([]models.MarketSnapshot, error) {
	if params.Symbol != nil {
		s.gotSymbol = *params.Symbol
	}
	s.gotLimit = params.Limit
	return nil, nil
}

func marketConditionsRequest(t *testing.T, h *AnalyticsHandler, path string) *httptest.ResponseRecorder {
	t.Helper()
	gin.SetMode(gin.TestMode)
	router := gin.New()
	h.Register(router)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	router.ServeHTTP(rec, req)
	return rec
}

func TestMarketConditionsUsesConfiguredSymbol(t *testing.T) {
	repo := &stubSnapshotRepo{}
	h := &AnalyticsHandler{
		Repo:   repo,
		Market: config.MarketDataConfig{VIXSymbol: "^VIX9D"},
	}
	rec := marketConditionsRequest(t, h, "/api/v1/analytics/market-conditions?days=5")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if repo.gotSymbol != "^VIX9D" {
		t.Fatalf("queried symbol = %q, want ^VIX9D", repo.gotSymbol)
	}
}

func TestMarketConditionsDefaultSymbolAndCap(t *testing.T) {
	repo := &stubSnapshotRepo{}
	h := &AnalyticsHandler{Repo: repo}
	rec := marketConditionsRequest(t, h, "/api/v1/analytics/market-conditions?days=90")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if repo.gotSymbol != "^VIX" {
		t.Fatalf("queried symbol = %q, want ^VIX", repo.gotSymbol)
	}
	if repo.gotLimit != 31 {
		t.Fatalf("limit = %d, want 31 (days capped at 30)", repo.gotLimit)
	}
}
