package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/digitaldrywood/opsboard/internal/apperr"
)

func TestCheck(t *testing.T) {
	g := NewGuard("s3cret")

	assert.NoError(t, g.Check("s3cret"))
	assert.True(t, apperr.Is(g.Check(""), apperr.KindUnauthorized))
	assert.True(t, apperr.Is(g.Check("S3CRET"), apperr.KindUnauthorized))
	assert.True(t, apperr.Is(g.Check("s3cret "), apperr.KindUnauthorized))
}

func TestUnconfiguredSecretRejectsEverything(t *testing.T) {
	g := NewGuard("")
	assert.Error(t, g.Check(""))
	assert.Error(t, g.Check("anything"))
}

func TestRequireNeverCallsNextWhenDenied(t *testing.T) {
	g := NewGuard("s3cret")
	called := false
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	})
	denied := func(w http.ResponseWriter, r *http.Request, err error) {
		w.WriteHeader(apperr.HTTPStatus(err))
	}
	h := g.Require(denied)(next)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/tasks", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.False(t, called)

	req := httptest.NewRequest(http.MethodPost, "/api/tasks", nil)
	req.Header.Set("X-Admin-Pass", "s3cret")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, called)
}
