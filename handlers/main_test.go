// goban/handlers/main_test.go
package handlers

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"goban/board"
	"goban/database"
	"goban/models"
	"goban/regen"
	"goban/utils"

	"golang.org/x/crypto/bcrypt"
)

const (
	testModKey   = "test-mod-key"
	testAdminKey = "test-admin-key"
)

// MockApplication holds dependencies for handler tests.
type MockApplication struct {
	store        *database.Store
	boards       *board.Service
	rateLimiter  *models.RateLimiter
	logger       *slog.Logger
	staticDir    string
	modKeyHash   string
	adminKeyHash string
}

func (a *MockApplication) Store() *database.Store           { return a.store }
func (a *MockApplication) Boards() *board.Service           { return a.boards }
func (a *MockApplication) RateLimiter() *models.RateLimiter { return a.rateLimiter }
func (a *MockApplication) Logger() *slog.Logger             { return a.logger }
func (a *MockApplication) StaticDir() string                { return a.staticDir }
func (a *MockApplication) ModKeyHash() string               { return a.modKeyHash }
func (a *MockApplication) AdminKeyHash() string             { return a.adminKeyHash }

// setupTestApp creates a full application stack over a test database and a
// temp static dir.
func setupTestApp(t *testing.T) *MockApplication {
	t.Helper()
	utils.IPSalt = "test-salt"
	t.Cleanup(func() { utils.IPSalt = "" })

	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	dir := t.TempDir()
	store, err := database.InitStore(filepath.Join(dir, "test.db?_journal_mode=WAL&_foreign_keys=on"), logger)
	if err != nil {
		t.Fatalf("Failed to initialize test database: %v", err)
	}
	t.Cleanup(func() {
		if err := store.DB.Close(); err != nil {
			t.Errorf("Failed to close test database: %v", err)
		}
	})

	staticDir := filepath.Join(dir, "static")
	engine, err := regen.NewEngine(store, staticDir, logger)
	if err != nil {
		t.Fatalf("Failed to create engine: %v", err)
	}
	boards := board.NewService(store, &utils.LocalStore{Root: staticDir}, engine, logger)

	modHash, err := bcrypt.GenerateFromPassword([]byte(testModKey), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("Failed to hash mod key: %v", err)
	}
	adminHash, err := bcrypt.GenerateFromPassword([]byte(testAdminKey), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("Failed to hash admin key: %v", err)
	}

	return &MockApplication{
		store:        store,
		boards:       boards,
		rateLimiter:  models.NewRateLimiter(time.Millisecond, 1000, time.Hour, 24*time.Hour),
		logger:       logger,
		staticDir:    staticDir,
		modKeyHash:   string(modHash),
		adminKeyHash: string(adminHash),
	}
}

// newTestRequest builds a request carrying the identity cookie context that
// CookieMiddleware would normally set.
func newTestRequest(_ *testing.T, method, path string, body io.Reader) *http.Request {
	req := httptest.NewRequest(method, path, body)
	ctx := context.WithValue(req.Context(), UserCookieKey, "test-cookie-id")
	return req.WithContext(ctx)
}

// withAuth attaches an AuthInfo as AuthMiddleware would.
func withAuth(r *http.Request, auth *models.AuthInfo) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), AuthKey, auth))
}

// postForm builds a multipart form request for HandlePost, with optional
// raw file bytes.
func postForm(t *testing.T, fields map[string]string, fileBytes []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatalf("WriteField(%s) failed: %v", k, err)
		}
	}
	if fileBytes != nil {
		part, err := mw.CreateFormFile("file", "upload.png")
		if err != nil {
			t.Fatalf("CreateFormFile failed: %v", err)
		}
		if _, err := part.Write(fileBytes); err != nil {
			t.Fatalf("Failed to write file part: %v", err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("Failed to close multipart writer: %v", err)
	}

	req := newTestRequest(t, "POST", "/post", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}
