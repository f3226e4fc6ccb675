package auth

import (
	"errors"
	"log"
	"net/http"
	"strings"
)

// Middleware authenticates bearer tokens and enforces Policy.
type Middleware struct {
	Secret []byte
	Policy Policy
	Logger *log.Logger
}

// NewMiddleware constructs an auth middleware.
func NewMiddleware(secret []byte, policy Policy) *Middleware {
	return &Middleware{Secret: secret, Policy: policy}
}

// Wrap applies authentication and role checks to next.
func (m *Middleware) Wrap(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.Policy.IsExempt(r) {
			next.ServeHTTP(w, r)
			return
		}
		required, ok := m.Policy.RequiredRole(r)
		if !ok {
			next.ServeHTTP(w, r)
			return
		}

		id, err := m.authenticate(r)
		if err == nil && !id.Role.Allows(required) {
			err = ErrForbidden
		}
		if err != nil {
			m.reject(w, r, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
	})
}

func (m *Middleware) authenticate(r *http.Request) (Identity, error) {
	token := bearerToken(r)
	if token == "" && m.Policy.allowsQueryToken(r) {
		token = r.URL.Query().Get("access_token")
	}
	claims, err := ParseJWT(token, m.Secret)
	if err != nil {
		return Identity{}, err
	}
	role, _ := ParseRole(claims.Role)
	return Identity{Subject: claims.Subject, Role: role}, nil
}

func (m *Middleware) reject(w http.ResponseWriter, r *http.Request, err error) {
	if m.Logger != nil {
		m.Logger.Printf("auth reject: method=%s path=%s err=%v", r.Method, r.URL.Path, err)
	}
	if errors.Is(err, ErrForbidden) {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}
	http.Error(w, "unauthorized", http.StatusUnauthorized)
}

func bearerToken(r *http.Request) string {
	scheme, token, ok := strings.Cut(strings.TrimSpace(r.Header.Get("Authorization")), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
