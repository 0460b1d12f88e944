package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/BradenHooton/cadence/internal/auth"
	"github.com/BradenHooton/cadence/internal/models"
	"github.com/BradenHooton/cadence/internal/services"
	pkghttp "github.com/BradenHooton/cadence/pkg/http"
	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
)

// NewTestRequest creates an HTTP request with JSON body for testing
func NewTestRequest(t *testing.T, method, url string, body interface{}) *http.Request {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode request body: %v", err)
		}
	}
	req := httptest.NewRequest(method, url, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}

// WithSessionContext adds identity provider session claims to the request context
func WithSessionContext(req *http.Request, userID, email string) *http.Request {
	claims := &models.SessionClaims{
		SessionID: "sess_test",
		Email:     email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject: userID,
		},
	}
	return req.WithContext(auth.WithSession(req.Context(), claims))
}

// AssertJSONResponse checks that response has correct status and decodes JSON body
func AssertJSONResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, target interface{}) {
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")

	contentType := w.Header().Get("Content-Type")
	assert.Equal(t, "application/json", contentType, "Content-Type should be application/json")

	if target != nil {
		err := json.Unmarshal(w.Body.Bytes(), target)
		assert.NoError(t, err, "Failed to decode response JSON")
	}
}

// AssertErrorResponse checks that response is a valid error response
func AssertErrorResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, expectedError string) {
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")

	var resp pkghttp.ErrorResponse
	err := json.Unmarshal(w.Body.Bytes(), &resp)
	assert.NoError(t, err, "Failed to decode error response")
	assert.Equal(t, expectedError, resp.Error, "Error code mismatch")
	assert.NotEmpty(t, resp.Message, "Error message should not be empty")
}

// WithChiRouteContext sets chi URL parameters on a request
func WithChiRouteContext(r *http.Request, params map[string]string) *http.Request {
	rctx := chi.NewRouteContext()
	for key, value := range params {
		rctx.URLParams.Add(key, value)
	}
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// WithChiIDFromURL uses the last path segment as the "id" route parameter,
// e.g. /api/tasks/t1 sets id=t1
func WithChiIDFromURL(r *http.Request) *http.Request {
	parts := strings.Split(strings.TrimPrefix(r.URL.Path, "/"), "/")
	if len(parts) >= 2 {
		return WithChiRouteContext(r, map[string]string{
			"id": parts[len(parts)-1],
		})
	}
	return r
}

// MockTaskService implements TaskService for testing
type MockTaskService struct {
	GetTaskFunc          func(ctx context.Context, ownerID, id string) (*models.Task, error)
	ListTasksFunc        func(ctx context.Context, ownerID, status string, limit, offset int) ([]*models.Task, error)
	ListCalendarFunc     func(ctx context.Context, ownerID string, from, to time.Time) ([]*models.Task, error)
	CreateTaskFunc       func(ctx context.Context, ownerID string, task *models.Task) (*models.Task, error)
	UpdateTaskFunc       func(ctx context.Context, ownerID, id string, upd services.TaskUpdate) (*models.Task, error)
	DeleteTaskFunc       func(ctx context.Context, ownerID, id string) error
	ImportLocalTasksFunc func(ctx context.Context, ownerID string, tasks []*models.Task) (*services.ImportResult, error)
}

func (m *MockTaskService) GetTask(ctx context.Context, ownerID, id string) (*models.Task, error) {
	if m.GetTaskFunc == nil {
		return nil, models.ErrNotFound
	}
	return m.GetTaskFunc(ctx, ownerID, id)
}

func (m *MockTaskService) ListTasks(ctx context.Context, ownerID, status string, limit, offset int) ([]*models.Task, error) {
	if m.ListTasksFunc == nil {
		return []*models.Task{}, nil
	}
	return m.ListTasksFunc(ctx, ownerID, status, limit, offset)
}

func (m *MockTaskService) ListCalendar(ctx context.Context, ownerID string, from, to time.Time) ([]*models.Task, error) {
	if m.ListCalendarFunc == nil {
		return []*models.Task{}, nil
	}
	return m.ListCalendarFunc(ctx, ownerID, from, to)
}

func (m *MockTaskService) CreateTask(ctx context.Context, ownerID string, task *models.Task) (*models.Task, error) {
	if m.CreateTaskFunc == nil {
		return nil, models.ErrInternalServer
	}
	return m.CreateTaskFunc(ctx, ownerID, task)
}

func (m *MockTaskService) UpdateTask(ctx context.Context, ownerID, id string, upd services.TaskUpdate) (*models.Task, error) {
	if m.UpdateTaskFunc == nil {
		return nil, models.ErrNotFound
	}
	return m.UpdateTaskFunc(ctx, ownerID, id, upd)
}

func (m *MockTaskService) DeleteTask(ctx context.Context, ownerID, id string) error {
	if m.DeleteTaskFunc == nil {
		return nil
	}
	return m.DeleteTaskFunc(ctx, ownerID, id)
}

func (m *MockTaskService) ImportLocalTasks(ctx context.Context, ownerID string, tasks []*models.Task) (*services.ImportResult, error) {
	if m.ImportLocalTasksFunc == nil {
		return &services.ImportResult{Imported: len(tasks), Total: len(tasks)}, nil
	}
	return m.ImportLocalTasksFunc(ctx, ownerID, tasks)
}

// MockSecurityMonitor implements SecurityMonitorService for testing
type MockSecurityMonitor struct {
	GetSecurityStatsFunc func() models.SecurityStats
	GetRecentEventsFunc  func(limit int) []models.SecurityEvent
	BlockedIPsFunc       func() []string
	UnblockIPFunc        func(ip string) bool
}

func (m *MockSecurityMonitor) GetSecurityStats() models.SecurityStats {
	if m.GetSecurityStatsFunc == nil {
		return models.SecurityStats{EventsByType: map[models.SecurityEventType]int{}}
	}
	return m.GetSecurityStatsFunc()
}

func (m *MockSecurityMonitor) GetRecentEvents(limit int) []models.SecurityEvent {
	if m.GetRecentEventsFunc == nil {
		return []models.SecurityEvent{}
	}
	return m.GetRecentEventsFunc(limit)
}

func (m *MockSecurityMonitor) BlockedIPs() []string {
	if m.BlockedIPsFunc == nil {
		return []string{}
	}
	return m.BlockedIPsFunc()
}

func (m *MockSecurityMonitor) UnblockIP(ip string) bool {
	if m.UnblockIPFunc == nil {
		return false
	}
	return m.UnblockIPFunc(ip)
}

// MockRateLimitResetter records ResetAll calls
type MockRateLimitResetter struct {
	Calls int
}

func (m *MockRateLimitResetter) ResetAll() {
	m.Calls++
}

// MockSecurityEventHistory implements SecurityEventHistory for testing
type MockSecurityEventHistory struct {
	ListByIPFunc func(ctx context.Context, ip string, limit int) ([]*models.SecurityEvent, error)
}

func (m *MockSecurityEventHistory) ListByIP(ctx context.Context, ip string, limit int) ([]*models.SecurityEvent, error) {
	if m.ListByIPFunc == nil {
		return []*models.SecurityEvent{}, nil
	}
	return m.ListByIPFunc(ctx, ip, limit)
}

// MockClusterStats implements ClusterStats for testing
type MockClusterStats struct {
	TotalsFunc func(ctx context.Context) (map[string]int64, error)
}

func (m *MockClusterStats) Totals(ctx context.Context) (map[string]int64, error) {
	if m.TotalsFunc == nil {
		return map[string]int64{}, nil
	}
	return m.TotalsFunc(ctx)
}
