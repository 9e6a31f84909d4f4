package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"

	"github.com/campuslive/lecturecast/internal/core"
)

func signToken(t *testing.T, secret, sub, name string) string {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  sub,
		"name": name,
	})
	signed, err := token.SignedString([]byte(secret))
	assert.Nil(t, err)
	return signed
}

func probeHandler(captured *core.Identity) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, err := identityFromRequest(r)
		if err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		*captured = identity
		w.WriteHeader(http.StatusOK)
	})
}

func TestTokenAuthAcceptsValidToken(t *testing.T) {
	auth := NewTokenAuth("super-secret")

	var identity core.Identity
	handler := auth.Middleware()(probeHandler(&identity))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Auth", signToken(t, "super-secret", "student-1", "Alice"))
	res := httptest.NewRecorder()

	handler.ServeHTTP(res, req)

	assert.Equal(t, http.StatusOK, res.Code)
	assert.Equal(t, core.ParticipantID("student-1"), identity.ID)
	assert.Equal(t, "Alice", identity.DisplayName)
}

func TestTokenAuthRejectsMissingToken(t *testing.T) {
	auth := NewTokenAuth("super-secret")

	var identity core.Identity
	handler := auth.Middleware()(probeHandler(&identity))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	res := httptest.NewRecorder()

	handler.ServeHTTP(res, req)

	assert.Equal(t, http.StatusUnauthorized, res.Code)
}

func TestTokenAuthRejectsForeignSignature(t *testing.T) {
	auth := NewTokenAuth("super-secret")

	var identity core.Identity
	handler := auth.Middleware()(probeHandler(&identity))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Auth", signToken(t, "other-secret", "student-1", "Alice"))
	res := httptest.NewRecorder()

	handler.ServeHTTP(res, req)

	assert.Equal(t, http.StatusUnauthorized, res.Code)
}

func TestTokenAuthRejectsTokenWithoutSubject(t *testing.T) {
	auth := NewTokenAuth("super-secret")

	var identity core.Identity
	handler := auth.Middleware()(probeHandler(&identity))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Auth", signToken(t, "super-secret", "", "Alice"))
	res := httptest.NewRecorder()

	handler.ServeHTTP(res, req)

	assert.Equal(t, http.StatusUnauthorized, res.Code)
}

func TestTokenAuthStubHandler(t *testing.T) {
	auth := NewTokenAuth("super-secret")
	auth.StubHandler = func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity := core.Identity{ID: "stubbed", DisplayName: "Stub"}
			next.ServeHTTP(w, r.WithContext(withIdentity(r.Context(), identity)))
		})
	}

	var identity core.Identity
	handler := auth.Middleware()(probeHandler(&identity))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	res := httptest.NewRecorder()

	handler.ServeHTTP(res, req)

	assert.Equal(t, http.StatusOK, res.Code)
	assert.Equal(t, core.ParticipantID("stubbed"), identity.ID)
}
