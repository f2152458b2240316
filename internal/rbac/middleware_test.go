package rbac

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sisl-bd/eshop/internal/shared"
)

type memoryStore struct {
	perms map[int64][]string
	err   error

	roles  map[string]int64
	grants map[int64][]int64
	users  map[int64][]int64
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		perms:  map[int64][]string{},
		roles:  map[string]int64{},
		grants: map[int64][]int64{},
		users:  map[int64][]int64{},
	}
}

func (s *memoryStore) UserPermissions(_ context.Context, userID int64) ([]string, error) {
	return s.perms[userID], s.err
}

func (s *memoryStore) EnsureRole(_ context.Context, name, description string) (Role, error) {
	id, ok := s.roles[name]
	if !ok {
		id = int64(len(s.roles) + 1)
		s.roles[name] = id
	}
	return Role{ID: id, Name: name, Description: description}, nil
}

func (s *memoryStore) EnsurePermission(_ context.Context, name, description string) (Permission, error) {
	return Permission{ID: int64(len(name)), Name: name, Description: description}, nil
}

func (s *memoryStore) GrantPermission(_ context.Context, roleID, permissionID int64) error {
	s.grants[roleID] = append(s.grants[roleID], permissionID)
	return nil
}

func (s *memoryStore) AssignRole(_ context.Context, userID, roleID int64) error {
	s.users[userID] = append(s.users[userID], roleID)
	return nil
}


func requestAs(method, target string, userID string) *http.Request {
	req := httptest.NewRequest(method, target, nil)
	sess := &shared.Session{ID: "s"}
	if userID != "" {
		sess.SetUser(userID, "user"+userID)
	}
	return req.WithContext(shared.ContextWithSession(req.Context(), sess))
}

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusTeapot)
})

func TestRequireAnyRedirectsAnonymousToLogin(t *testing.T) {
	mw := Middleware{Service: NewService(newMemoryStore())}
	rec := httptest.NewRecorder()

	mw.RequireAny(shared.PermOrdersView)(okHandler).ServeHTTP(rec, requestAs(http.MethodGet, "/order-management/?status=P", ""))

	require.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/auth/login?next=%2Forder-management%2F%3Fstatus%3DP", rec.Header().Get("Location"))
}

func TestRequireAnyRejectsAnonymousPost(t *testing.T) {
	mw := Middleware{Service: NewService(newMemoryStore())}
	rec := httptest.NewRecorder()

	mw.RequireAny(shared.PermOrdersManage)(okHandler).ServeHTTP(rec, requestAs(http.MethodPost, "/admin/quotations/1/status", ""))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequireAnyForbidsNonStaff(t *testing.T) {
	store := newMemoryStore()
	store.perms[2] = []string{"profile.view"}
	mw := Middleware{Service: NewService(store)}
	rec := httptest.NewRecorder()

	mw.RequireAny(shared.PermOrdersView)(okHandler).ServeHTTP(rec, requestAs(http.MethodGet, "/order-management/", "2"))
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestRequireAnyAllowsStaff(t *testing.T) {
	store := newMemoryStore()
	store.perms[1] = []string{"ORDERS.VIEW"}
	mw := Middleware{Service: NewService(store)}
	rec := httptest.NewRecorder()

	mw.RequireAny(shared.PermOrdersView, shared.PermOrdersManage)(okHandler).ServeHTTP(rec, requestAs(http.MethodGet, "/order-management/", "1"))
	assert.Equal(t, http.StatusTeapot, rec.Code)
}

func TestRequireAnyStoreFailure(t *testing.T) {
	store := newMemoryStore()
	store.err = errors.New("db down")
	mw := Middleware{Service: NewService(store)}
	rec := httptest.NewRecorder()

	mw.RequireAny(shared.PermOrdersView)(okHandler).ServeHTTP(rec, requestAs(http.MethodGet, "/order-management/", "1"))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestRequireAuthenticated(t *testing.T) {
	mw := Middleware{Service: NewService(newMemoryStore())}

	rec := httptest.NewRecorder()
	mw.RequireAuthenticated()(okHandler).ServeHTTP(rec, requestAs(http.MethodGet, "/ask-discount/FR-E820/", ""))
	require.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/auth/login?next=%2Fask-discount%2FFR-E820%2F", rec.Header().Get("Location"))

	rec = httptest.NewRecorder()
	mw.RequireAuthenticated()(okHandler).ServeHTTP(rec, requestAs(http.MethodGet, "/ask-discount/FR-E820/", "5"))
	assert.Equal(t, http.StatusTeapot, rec.Code)
}

func TestEnsureRoleWithGrantsEveryPermission(t *testing.T) {
	store := newMemoryStore()
	svc := NewService(store)

	role, err := svc.EnsureRoleWith(context.Background(), StaffRole, "Order and catalog managers", shared.StaffScopes())
	require.NoError(t, err)
	assert.Len(t, store.grants[role.ID], len(shared.StaffScopes()))

	require.NoError(t, svc.AssignRole(context.Background(), 9, role.ID))
	assert.Equal(t, []int64{role.ID}, store.users[9])
}

func TestHasAny(t *testing.T) {
	store := newMemoryStore()
	store.perms[1] = []string{"catalog.manage"}
	svc := NewService(store)

	ok, err := svc.HasAny(context.Background(), 1, " Catalog.Manage ")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = svc.HasAny(context.Background(), 1, "orders.manage")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStaffFlagGrantsStaffScopes(t *testing.T) {
	got := withStaffScopes([]string{shared.PermOrdersView, "reports.view"})

	assert.ElementsMatch(t, []string{
		"reports.view",
		shared.PermCatalogManage,
		shared.PermOrdersView,
		shared.PermOrdersManage,
	}, got)
	assert.True(t, hasAnyPermission(normalizePermissions(got), normalizePermissions([]string{shared.PermOrdersManage})))
	assert.ElementsMatch(t, shared.StaffScopes(), withStaffScopes(nil))
}
