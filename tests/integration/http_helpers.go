//go:build integration

package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/BradenHooton/cadence/internal/auth"
	"github.com/BradenHooton/cadence/internal/database"
	"github.com/BradenHooton/cadence/internal/handlers"
	middlewareCustom "github.com/BradenHooton/cadence/internal/middleware"
	"github.com/BradenHooton/cadence/internal/repositories"
	"github.com/BradenHooton/cadence/internal/routes"
	"github.com/BradenHooton/cadence/internal/services"
)

const testSessionSecret = "test-secret-32-characters-long-for-testing"

// TestServer wraps httptest.Server with database and all dependencies
type TestServer struct {
	Server *httptest.Server
	DB     *database.DB

	// Dependency references for inspection in tests
	Monitor    *services.SecurityMonitor
	Limiters   *services.RateLimiterSet
	Events     *repositories.SecurityEventRepository
	Verifier   *auth.SessionVerifier
	dispatcher *services.EventDispatcher
	cancel     context.CancelFunc
}

// NewTestServer initializes a complete HTTP server with a real database
func NewTestServer(db *database.DB, env string) *TestServer {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelWarn}))

	taskRepo, eventRepo := InitializeRepositories(db)

	dispatcher := services.NewEventDispatcher(64, logger)
	monitor := services.NewSecurityMonitor(services.DefaultSecurityMonitorConfig(), logger,
		services.WithDispatcher(dispatcher),
		services.WithEventSinks(eventRepo),
	)
	limiters := services.NewRateLimiterSet(services.DefaultRateLimiterSetConfig())
	verifier := auth.NewSessionVerifier(testSessionSecret, "")

	taskHandler := handlers.NewTaskHandler(services.NewTaskService(taskRepo, logger))
	securityHandler := handlers.NewSecurityHandler(monitor, limiters, env, logger,
		handlers.WithEventHistory(eventRepo))

	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.Recoverer)
	r.Use(auth.SessionMiddleware(verifier, logger))
	r.Use(middlewareCustom.SecurityGuard(middlewareCustom.GuardConfig{
		Env:               env,
		DevPathPrefix:     "/api/dev/",
		ProtectedPrefixes: []string{"/dashboard"},
		SignInPath:        "/sign-in",
		Headers:           middlewareCustom.SecurityHeadersConfig{Env: env},
	}, limiters, monitor, logger))
	r.Use(chiMiddleware.Timeout(60 * time.Second))

	routes.RegisterRoutes(r, env, handlers.NewHealthHandler(db), taskHandler, securityHandler)

	ctx, cancel := context.WithCancel(context.Background())
	go dispatcher.Start(ctx)

	return &TestServer{
		Server:     httptest.NewServer(r),
		DB:         db,
		Monitor:    monitor,
		Limiters:   limiters,
		Events:     eventRepo,
		Verifier:   verifier,
		dispatcher: dispatcher,
		cancel:     cancel,
	}
}

// Close shuts down the test server and drains pending event deliveries
func (ts *TestServer) Close() {
	if ts.Server != nil {
		ts.Server.Close()
	}
	ts.cancel()
	ts.dispatcher.Wait()
}

// SessionToken issues a session token for userID
func (ts *TestServer) SessionToken(userID string) string {
	token, err := ts.Verifier.IssueSessionToken(auth.SessionTokenParams{
		UserID: userID,
		Email:  userID + "@example.com",
		TTL:    time.Hour,
	})
	if err != nil {
		panic(err)
	}
	return token
}

// Request makes an HTTP request to the test server
func (ts *TestServer) Request(method, path string, body interface{}, headers map[string]string) (*http.Response, error) {
	url := ts.Server.URL + path

	var bodyReader io.Reader
	if body != nil {
		bodyBytes, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		bodyReader = bytes.NewReader(bodyBytes)
	}

	req, err := http.NewRequest(method, url, bodyReader)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Content-Type", "application/json")
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	client := &http.Client{
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	return client.Do(req)
}

// RequestAs makes a request with a session for userID, arriving from ip
func (ts *TestServer) RequestAs(method, path, userID, ip string, body interface{}) (*http.Response, error) {
	headers := map[string]string{"X-Forwarded-For": ip}
	if userID != "" {
		headers["Authorization"] = "Bearer " + ts.SessionToken(userID)
	}
	return ts.Request(method, path, body, headers)
}

// ParseJSONResponse parses JSON response body into target struct
func ParseJSONResponse(resp *http.Response, target interface{}) error {
	defer resp.Body.Close()
	return json.NewDecoder(resp.Body).Decode(target)
}

// GetErrorMessage extracts error message from error response
func GetErrorMessage(resp *http.Response) (string, error) {
	defer resp.Body.Close()
	var errResp map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&errResp); err != nil {
		return "", err
	}
	if msg, ok := errResp["message"].(string); ok {
		return msg, nil
	}
	return "", nil
}
