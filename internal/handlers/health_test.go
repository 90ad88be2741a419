package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	domain "github.com/oakmarket/api/internal/domain"
	"github.com/oakmarket/api/internal/services"
)

func TestHealthzReportsOK(t *testing.T) {
	handler := NewHealthHandlers(WithHealthBuildInfo(services.BuildInfo{Version: "1.4.0"}))

	rr := httptest.NewRecorder()
	handler.Healthz(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}

	var resp map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp["status"] != "ok" {
		t.Fatalf("unexpected status %v", resp["status"])
	}
	if resp["version"] != "1.4.0" {
		t.Fatalf("unexpected version %v", resp["version"])
	}
}

func TestReadyzWithoutSystemServiceFallsBackToLiveness(t *testing.T) {
	handler := NewHealthHandlers()

	rr := httptest.NewRecorder()
	handler.Readyz(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
}

func TestReadyzReportsFailingDependency(t *testing.T) {
	system := &stubSystemService{
		reportFunc: func(ctx context.Context) (domain.SystemHealthReport, error) {
			return domain.SystemHealthReport{
				Status: domain.HealthStatusError,
				Checks: map[string]domain.SystemHealthCheck{
					"firestore": {Status: domain.HealthStatusError, Error: "deadline exceeded", Latency: 250 * time.Millisecond},
					"pubsub":    {Status: domain.HealthStatusOK, Latency: 12 * time.Millisecond},
				},
				Environment: "production",
				GeneratedAt: time.Date(2026, 4, 7, 8, 0, 0, 0, time.UTC),
			}, nil
		},
	}

	handler := NewHealthHandlers(WithHealthSystemService(system))

	rr := httptest.NewRecorder()
	handler.Readyz(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503, got %d", rr.Code)
	}

	var resp struct {
		Status string                    `json:"status"`
		Checks map[string]map[string]any `json:"checks"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Status != domain.HealthStatusError {
		t.Fatalf("unexpected status %q", resp.Status)
	}
	if resp.Checks["firestore"]["error"] != "deadline exceeded" {
		t.Fatalf("unexpected firestore check %v", resp.Checks["firestore"])
	}
}

type stubSystemService struct {
	reportFunc func(ctx context.Context) (domain.SystemHealthReport, error)
}

func (s *stubSystemService) HealthReport(ctx context.Context) (domain.SystemHealthReport, error) {
	if s.reportFunc != nil {
		return s.reportFunc(ctx)
	}
	return domain.SystemHealthReport{}, nil
}
