package shared_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sisl-bd/eshop/internal/shared"
)

func TestCSRFTokenLifecycle(t *testing.T) {
	sm, _ := newManager(t)
	ctx := context.Background()
	csrf := shared.NewCSRFManager("secret")

	sess, err := sm.Load(ctx, httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)

	token, err := csrf.EnsureToken(ctx, sess)
	require.NoError(t, err)
	again, err := csrf.EnsureToken(ctx, sess)
	require.NoError(t, err)
	assert.Equal(t, token, again)

	assert.NoError(t, csrf.VerifyToken(ctx, sess, token))
	assert.ErrorIs(t, csrf.VerifyToken(ctx, sess, ""), shared.ErrCSRFTokenMissing)
	assert.ErrorIs(t, csrf.VerifyToken(ctx, sess, token+"x"), shared.ErrCSRFTokenMismatch)
}

func TestCSRFTokenFromOtherSecretIsReplaced(t *testing.T) {
	sm, _ := newManager(t)
	ctx := context.Background()

	sess, err := sm.Load(ctx, httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)
	foreign, err := shared.NewCSRFManager("other").EnsureToken(ctx, sess)
	require.NoError(t, err)

	csrf := shared.NewCSRFManager("secret")
	token, err := csrf.EnsureToken(ctx, sess)
	require.NoError(t, err)
	assert.NotEqual(t, foreign, token)
	assert.ErrorIs(t, csrf.VerifyToken(ctx, sess, foreign), shared.ErrCSRFTokenMismatch)
}

func TestCSRFWithoutSession(t *testing.T) {
	csrf := shared.NewCSRFManager("secret")
	_, err := csrf.EnsureToken(context.Background(), nil)
	assert.ErrorIs(t, err, shared.ErrSessionMissing)
}

func TestPagination(t *testing.T) {
	p := shared.NewPagination(2, 10, 35)
	assert.Equal(t, 4, p.TotalPages)
	assert.Equal(t, 10, p.Offset())
	assert.True(t, p.HasPrev())
	assert.True(t, p.HasNext())

	empty := shared.NewPagination(0, 0, 0)
	assert.Equal(t, 1, empty.Page)
	assert.Equal(t, 1, empty.TotalPages)
	assert.False(t, empty.HasNext())
}
