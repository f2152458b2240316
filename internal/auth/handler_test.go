package auth_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/sisl-bd/eshop/internal/auth"
	"github.com/sisl-bd/eshop/internal/shared"
	"github.com/sisl-bd/eshop/internal/view"
	_ "github.com/sisl-bd/eshop/testing"
)

type stubRepo struct {
	user     *auth.User
	sessions map[string]int64
	touched  int
}

func (s *stubRepo) FindByLogin(_ context.Context, login string) (*auth.User, error) {
	if s.user == nil || !strings.EqualFold(login, s.user.Username) {
		return nil, shared.ErrNotFound
	}
	return s.user, nil
}

func (s *stubRepo) CreateUser(_ context.Context, user *auth.User) error {
	user.ID = 99
	return nil
}

func (s *stubRepo) TouchLogin(context.Context, int64, time.Time) error {
	s.touched++
	return nil
}

func (s *stubRepo) CreateSession(_ context.Context, id string, userID int64, _ time.Time, _, _ string) error {
	s.sessions[id] = userID
	return nil
}

func (s *stubRepo) DeleteSession(_ context.Context, id string) error {
	delete(s.sessions, id)
	return nil
}

type harness struct {
	router   http.Handler
	sessions *shared.SessionManager
	repo     *stubRepo
}

func newHarness(t *testing.T, user *auth.User) *harness {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	sessions := shared.NewSessionManager(client, "test_session", time.Hour, false)
	templates, err := view.NewEngine("/media/")
	require.NoError(t, err)

	repo := &stubRepo{user: user, sessions: map[string]int64{}}
	handler := auth.NewHandler(nil, auth.NewService(repo), templates, sessions, shared.NewCSRFManager("csrfsecret"))

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			sess, err := sessions.Load(req.Context(), req)
			require.NoError(t, err)
			ctx := shared.ContextWithSession(req.Context(), sess)
			buffered := httptest.NewRecorder()
			next.ServeHTTP(buffered, req.WithContext(ctx))
			require.NoError(t, sessions.Commit(ctx, w, sess))
			for k, v := range buffered.Header() {
				w.Header()[k] = v
			}
			w.WriteHeader(buffered.Code)
			_, _ = w.Write(buffered.Body.Bytes())
		})
	})
	r.Route("/auth", handler.MountRoutes)
	return &harness{router: r, sessions: sessions, repo: repo}
}

func (h *harness) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)
	return rec
}

func postLogin(form url.Values, cookies ...*http.Cookie) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	for _, c := range cookies {
		req.AddCookie(c)
	}
	return req
}

func sessionCookie(rec *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func staffUser(t *testing.T) *auth.User {
	t.Helper()
	hashed, err := bcrypt.GenerateFromPassword([]byte("correctpass"), bcrypt.MinCost)
	require.NoError(t, err)
	return &auth.User{ID: 1, Username: "admin", PasswordHash: string(hashed), IsActive: true, IsStaff: true}
}

func TestLoginPage(t *testing.T) {
	h := newHarness(t, nil)

	rec := h.do(httptest.NewRequest(http.MethodGet, "/auth/login?next=/order-management/", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "<form")
	assert.Contains(t, body, `value="/order-management/"`)
}

func TestLoginInvalidCredentials(t *testing.T) {
	h := newHarness(t, staffUser(t))

	rec := h.do(postLogin(url.Values{"username": {"admin"}, "password": {"wrongpass"}}))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "Please enter a correct username and password.")
	assert.Empty(t, h.repo.sessions)
}

func TestLoginRequiresFields(t *testing.T) {
	h := newHarness(t, staffUser(t))

	rec := h.do(postLogin(url.Values{"username": {"admin"}}))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "This field is required.")
}

func TestLoginSuccessRotatesSessionAndRedirects(t *testing.T) {
	h := newHarness(t, staffUser(t))

	first := h.do(httptest.NewRequest(http.MethodGet, "/auth/login", nil))
	before := sessionCookie(first, "test_session")
	require.NotNil(t, before)

	rec := h.do(postLogin(url.Values{
		"username": {"ADMIN"},
		"password": {"correctpass"},
		"next":     {"/order-management/"},
	}, before))
	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/order-management/", rec.Header().Get("Location"))

	after := sessionCookie(rec, "test_session")
	require.NotNil(t, after)
	assert.NotEqual(t, before.Value, after.Value)
	assert.Equal(t, int64(1), h.repo.sessions[after.Value])
	assert.Equal(t, 1, h.repo.touched)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(after)
	sess, err := h.sessions.Load(context.Background(), req)
	require.NoError(t, err)
	id, ok := sess.UserID()
	assert.True(t, ok)
	assert.Equal(t, int64(1), id)
	assert.Equal(t, "admin", sess.UserName())
	assert.Equal(t, "1", sess.Get(view.SessionStaffKey))
}

func TestLoginRejectsOffsiteNext(t *testing.T) {
	h := newHarness(t, staffUser(t))

	rec := h.do(postLogin(url.Values{
		"username": {"admin"},
		"password": {"correctpass"},
		"next":     {"//evil.example/"},
	}))
	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/", rec.Header().Get("Location"))
}

func TestLogoutDestroysSession(t *testing.T) {
	h := newHarness(t, staffUser(t))
	login := h.do(postLogin(url.Values{"username": {"admin"}, "password": {"correctpass"}}))
	cookie := sessionCookie(login, "test_session")
	require.NotNil(t, cookie)

	req := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	req.AddCookie(cookie)
	rec := h.do(req)
	require.Equal(t, http.StatusSeeOther, rec.Code)

	cleared := sessionCookie(rec, "test_session")
	require.NotNil(t, cleared)
	assert.True(t, cleared.MaxAge < 0)
	assert.Empty(t, h.repo.sessions)
}
