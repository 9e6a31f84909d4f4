package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/golang-jwt/jwt/v4"
	"github.com/gorilla/sessions"

	"github.com/campuslive/lecturecast/internal/core"
)

type ctxKey string

const (
	// IdentityContextKey is used for extract the caller from request context
	IdentityContextKey ctxKey = "current_identity"

	// ConsoleSessionName is the presenter console cookie
	ConsoleSessionName = "lecturecast_console"
)

// AuthFailFunc is function that is called when authentication failed
type AuthFailFunc func(w http.ResponseWriter, r *http.Request, err error)

// AuthHandler is optional handler for mocking in tests
type AuthHandler func(next http.Handler) http.Handler

var (
	xAuth             = http.CanonicalHeaderKey("X-Auth")
	ErrEmptyAuthToken = errors.New("empty auth token")
	ErrNoIdentity     = errors.New("no identity in request context")
)

// TokenAuth verifies the caller. A presenter console cookie is checked
// first, then the X-Auth header carrying a JWT from the campus issuer.
// The outcome is labeling only: who the caller is, never what they may
// do.
type TokenAuth struct {
	AuthFailFunc AuthFailFunc
	StubHandler  AuthHandler

	secret      []byte
	cookieStore *sessions.CookieStore
}

func NewTokenAuth(secret string) *TokenAuth {
	return &TokenAuth{
		secret:      []byte(secret),
		cookieStore: sessions.NewCookieStore([]byte(secret)),
	}
}

func (m *TokenAuth) Middleware() AuthHandler {
	if m.StubHandler != nil {
		return m.StubHandler
	}

	return m.defaultMiddleware()
}

func (m *TokenAuth) defaultMiddleware() AuthHandler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			console, _ := m.cookieStore.Get(r, ConsoleSessionName)
			id, ok := console.Values["id"].(string)
			if ok && id != "" {
				name, _ := console.Values["name"].(string)
				identity := core.Identity{ID: core.ParticipantID(id), DisplayName: name}
				next.ServeHTTP(w, r.WithContext(withIdentity(r.Context(), identity)))
				return
			}

			token := r.Header.Get(xAuth)
			if token == "" {
				m.authFailed(w, r, ErrEmptyAuthToken)
				return
			}

			identity, err := m.verify(token)
			if err != nil {
				m.authFailed(w, r, err)
				return
			}

			next.ServeHTTP(w, r.WithContext(withIdentity(r.Context(), identity)))
		})
	}
}

func (m *TokenAuth) verify(token string) (core.Identity, error) {
	claims := jwt.MapClaims{}

	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return m.secret, nil
	})
	if err != nil {
		return core.Identity{}, err
	}

	sub, _ := claims["sub"].(string)
	if sub == "" {
		return core.Identity{}, errors.New("token carries no subject")
	}
	name, _ := claims["name"].(string)

	return core.Identity{ID: core.ParticipantID(sub), DisplayName: name}, nil
}

func (m *TokenAuth) authFailed(w http.ResponseWriter, r *http.Request, err error) {
	if m.AuthFailFunc != nil {
		m.AuthFailFunc(w, r, err)
	} else {
		w.WriteHeader(http.StatusUnauthorized)
	}
}

func withIdentity(ctx context.Context, identity core.Identity) context.Context {
	return context.WithValue(ctx, IdentityContextKey, identity)
}

func identityFromRequest(r *http.Request) (core.Identity, error) {
	identity, ok := r.Context().Value(IdentityContextKey).(core.Identity)
	if !ok {
		return core.Identity{}, ErrNoIdentity
	}

	return identity, nil
}
