package app_test

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sisl-bd/eshop/internal/admin"
	"github.com/sisl-bd/eshop/internal/app"
	"github.com/sisl-bd/eshop/internal/auth"
	"github.com/sisl-bd/eshop/internal/rbac"
	"github.com/sisl-bd/eshop/internal/shared"
	"github.com/sisl-bd/eshop/internal/storefront"
	"github.com/sisl-bd/eshop/internal/view"
	_ "github.com/sisl-bd/eshop/testing"
)

func newRouter(t *testing.T, mediaRoot string) http.Handler {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	cfg := &app.Config{AppEnv: "test", AppRequestTimeout: 5 * time.Second, MediaRoot: mediaRoot, MediaURL: "/media/"}
	sessions := shared.NewSessionManager(client, "eshop_session", time.Hour, false)
	csrf := shared.NewCSRFManager("router-test")
	templates, err := view.NewEngine(cfg.MediaURL)
	require.NoError(t, err)
	rbacMW := rbac.Middleware{Logger: logger}

	return app.NewRouter(app.RouterParams{
		Logger:         logger,
		Config:         cfg,
		SessionManager: sessions,
		CSRFManager:    csrf,
		AuthHandler:    auth.NewHandler(logger, nil, templates, sessions, csrf),
		StorefrontHandler: storefront.NewHandler(storefront.Params{
			Logger:    logger,
			Templates: templates,
			CSRF:      csrf,
			RBAC:      rbacMW,
		}),
		AdminHandler: admin.NewHandler(logger, nil, nil, nil, templates, csrf, rbacMW),
	})
}

func TestHealthz(t *testing.T) {
	router := newRouter(t, t.TempDir())

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Empty(t, rec.Header().Get("Set-Cookie"))
}

func TestStaticAssetsAreCached(t *testing.T) {
	router := newRouter(t, t.TempDir())

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/static/css/app.css", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "public, max-age=3600", rec.Header().Get("Cache-Control"))
}

func TestMediaServesDocumentsWithoutListing(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "quotations"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "quotations", "quotation_1_20261015093000.pdf"), []byte("%PDF-1.7"), 0o644))
	router := newRouter(t, root)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/media/quotations/quotation_1_20261015093000.pdf", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "%PDF-1.7", rec.Body.String())

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/media/quotations/", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestLoginPageStartsSession(t *testing.T) {
	router := newRouter(t, t.TempDir())

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/auth/login", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Set-Cookie"), "eshop_session=")
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Contains(t, rec.Body.String(), `name="csrf_token"`)
}

func TestPostWithoutCSRFTokenIsForbidden(t *testing.T) {
	router := newRouter(t, t.TempDir())

	form := url.Values{"username": {"customer"}, "password": {"secret123"}}
	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestAdminRedirectsAnonymousToLogin(t *testing.T) {
	router := newRouter(t, t.TempDir())

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/", nil))

	require.Equal(t, http.StatusFound, rec.Code)
	assert.True(t, strings.HasPrefix(rec.Header().Get("Location"), "/auth/login"))
}
