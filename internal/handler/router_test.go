package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hitoshi/moodshare/internal/middleware"
	"github.com/hitoshi/moodshare/internal/model"
)

// stubVerifier は"token-<userID>"形式のトークンを受け付けるTokenVerifier。
type stubVerifier struct{}

func (stubVerifier) Verify(token string) (string, error) {
	userID, ok := strings.CutPrefix(token, "token-")
	if !ok || userID == "" {
		return "", errors.New("invalid token")
	}
	return userID, nil
}

type stubHealthChecker struct {
	err error
}

func (s stubHealthChecker) PingContext(ctx context.Context) error {
	return s.err
}

type countingRecorder struct {
	statuses []int
}

func (c *countingRecorder) RecordHTTPStatus(statusCode int) {
	c.statuses = append(c.statuses, statusCode)
}

func newTestRouter(t *testing.T, deps *RouterDeps) http.Handler {
	t.Helper()
	if deps.TokenVerifier == nil {
		deps.TokenVerifier = stubVerifier{}
	}
	if deps.RateLimiter == nil {
		rl := middleware.NewRateLimiter(middleware.NewRateLimiterConfig(120, 2))
		t.Cleanup(rl.Stop)
		deps.RateLimiter = rl
	}
	if deps.SharingService == nil {
		deps.SharingService = &mockSharingService{}
	}
	if deps.AssignmentService == nil {
		deps.AssignmentService = &mockAssignmentService{}
	}
	deps.CORSAllowedOrigin = "http://localhost:3000"
	return NewRouter(deps)
}

func TestNewRouter_Health(t *testing.T) {
	tests := []struct {
		name       string
		checker    HealthChecker
		wantStatus int
		wantBody   string
	}{
		{name: "database reachable", checker: stubHealthChecker{}, wantStatus: http.StatusOK, wantBody: "ok"},
		{name: "database down", checker: stubHealthChecker{err: errors.New("down")}, wantStatus: http.StatusServiceUnavailable, wantBody: "unavailable"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := newTestRouter(t, &RouterDeps{HealthChecker: tt.checker})

			req := httptest.NewRequest(http.MethodGet, "/health", nil)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			var body healthResponse
			if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
				t.Fatalf("failed to decode response: %v", err)
			}
			if body.Status != tt.wantBody {
				t.Errorf("status field = %q, want %q", body.Status, tt.wantBody)
			}
		})
	}
}

func TestNewRouter_RequiresBearerToken(t *testing.T) {
	router := newTestRouter(t, &RouterDeps{})

	routes := []struct {
		method string
		path   string
	}{
		{http.MethodPost, "/api/therapist/assign"},
		{http.MethodDelete, "/api/therapist/remove"},
		{http.MethodGet, "/api/therapist/assigned"},
		{http.MethodPost, "/api/therapist/share-emotions"},
		{http.MethodPost, "/api/therapist/request-sharing"},
		{http.MethodGet, "/api/therapist/sharing"},
		{http.MethodPut, "/api/therapist/sharing/therapist-1/settings"},
		{http.MethodPost, "/api/therapist/sharing/therapist-1/renew"},
		{http.MethodGet, "/api/therapist/clients"},
		{http.MethodGet, "/api/therapist/therapist-1"},
	}

	for _, rt := range routes {
		t.Run(rt.method+" "+rt.path, func(t *testing.T) {
			req := httptest.NewRequest(rt.method, rt.path, nil)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			if w.Code != http.StatusUnauthorized {
				t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
			}
		})
	}
}

func TestNewRouter_StaticRoutesWinOverTherapistID(t *testing.T) {
	listCalled := false
	viewCalled := false
	sharing := &mockSharingService{
		listSharingFn: func(ctx context.Context, userID string) ([]therapistSharingResponse, error) {
			listCalled = true
			return nil, nil
		},
		getTherapistViewFn: func(ctx context.Context, actorID, userID, therapistID string) (*detailResponse, error) {
			viewCalled = true
			if therapistID != "2c4e6a8b-1d3f-4a5b-8c7d-9e0f1a2b3c4d" {
				t.Errorf("therapistID = %q, want %q", therapistID, "2c4e6a8b-1d3f-4a5b-8c7d-9e0f1a2b3c4d")
			}
			return &detailResponse{}, nil
		},
	}
	router := newTestRouter(t, &RouterDeps{SharingService: sharing})

	for _, path := range []string{"/api/therapist/sharing", "/api/therapist/2c4e6a8b-1d3f-4a5b-8c7d-9e0f1a2b3c4d"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.Header.Set("Authorization", "Bearer token-user-1")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Errorf("GET %s status = %d, want %d", path, w.Code, http.StatusOK)
		}
	}

	if !listCalled {
		t.Error("GET /api/therapist/sharing must reach ListSharing")
	}
	if !viewCalled {
		t.Error("GET /api/therapist/2c4e6a8b-1d3f-4a5b-8c7d-9e0f1a2b3c4d must reach GetTherapistView")
	}
}

func TestNewRouter_ShareEmotionsRateLimited(t *testing.T) {
	sharing := &mockSharingService{
		shareCurrentDataFn: func(ctx context.Context, userID string) (*shareResult, error) {
			return &shareResult{SharedWith: "therapist-1", Data: sharedDataResponse{SharedFields: []string{}}}, nil
		},
	}
	router := newTestRouter(t, &RouterDeps{SharingService: sharing})

	// 共有専用のバースト(2)を超えると429になる
	want := []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}
	for i, status := range want {
		req := httptest.NewRequest(http.MethodPost, "/api/therapist/share-emotions", nil)
		req.Header.Set("Authorization", "Bearer token-user-1")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		if w.Code != status {
			t.Errorf("request %d: status = %d, want %d", i+1, w.Code, status)
		}
	}

	// 他ユーザーは影響を受けない
	req := httptest.NewRequest(http.MethodPost, "/api/therapist/share-emotions", nil)
	req.Header.Set("Authorization", "Bearer token-user-2")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("other user status = %d, want %d", w.Code, http.StatusOK)
	}
}

func TestNewRouter_ErrorEnvelope(t *testing.T) {
	assignments := &mockAssignmentService{
		getAssignedFn: func(ctx context.Context, userID string) (*model.PublicUser, error) {
			return nil, model.NewNoTherapistAssignedError()
		},
	}
	router := newTestRouter(t, &RouterDeps{AssignmentService: assignments})

	req := httptest.NewRequest(http.MethodGet, "/api/therapist/assigned", nil)
	req.Header.Set("Authorization", "Bearer token-user-1")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
	body := parseErrorBody(t, w)
	if body.Success {
		t.Error("success = true, want false")
	}
	if body.Error.Code != model.ErrCodeNoTherapistAssigned {
		t.Errorf("code = %q, want %q", body.Error.Code, model.ErrCodeNoTherapistAssigned)
	}
	if body.Error.Action == "" {
		t.Error("action must be set")
	}
}

func TestNewRouter_MetricsAndSecurityHeaders(t *testing.T) {
	rec := &countingRecorder{}
	metricsHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("# metrics\n"))
	})
	router := newTestRouter(t, &RouterDeps{
		HealthChecker:  stubHealthChecker{},
		Metrics:        rec,
		MetricsHandler: metricsHandler,
	})

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("GET /metrics status = %d, want %d", w.Code, http.StatusOK)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/therapist/assigned", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if got := w.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("X-Content-Type-Options = %q, want %q", got, "nosniff")
	}
	if len(rec.statuses) != 2 || rec.statuses[1] != http.StatusUnauthorized {
		t.Errorf("recorded statuses = %v, want [200 401]", rec.statuses)
	}
}

func TestNewRouter_Preflight(t *testing.T) {
	router := newTestRouter(t, &RouterDeps{})

	req := httptest.NewRequest(http.MethodOptions, "/api/therapist/assign", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNoContent)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Errorf("Access-Control-Allow-Origin = %q, want %q", got, "http://localhost:3000")
	}
}
