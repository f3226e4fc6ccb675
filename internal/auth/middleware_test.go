package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func newTestHandler(secret []byte) http.Handler {
	mw := NewMiddleware(secret, NewPolicy("/healthz", "/metrics"))
	return mw.Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if RoleFromContext(r.Context()) == "" && r.URL.Path != "/healthz" && r.URL.Path != "/metrics" {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
}

func TestAuthMiddleware_NoToken(t *testing.T) {
	handler := newTestHandler([]byte("test-secret"))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/live", nil)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.Code)
	}
}

func TestAuthMiddleware_ExemptPaths(t *testing.T) {
	handler := newTestHandler([]byte("test-secret"))

	for _, path := range []string{"/healthz", "/metrics"} {
		resp := httptest.NewRecorder()
		handler.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, path, nil))
		if resp.Code != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d", path, resp.Code)
		}
	}
}

func TestAuthMiddleware_ViewerReadsLive(t *testing.T) {
	secret := []byte("test-secret")
	handler := newTestHandler(secret)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/live", nil)
	req.Header.Set("Authorization", "Bearer "+mustToken(t, secret, "viewer"))
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
}

func TestAuthMiddleware_ViewerForbiddenCapture(t *testing.T) {
	secret := []byte("test-secret")
	handler := newTestHandler(secret)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/history/capture", nil)
	req.Header.Set("Authorization", "Bearer "+mustToken(t, secret, "viewer"))
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", resp.Code)
	}
}

func TestAuthMiddleware_OperatorForbiddenHistoryClear(t *testing.T) {
	secret := []byte("test-secret")
	handler := newTestHandler(secret)

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/history", nil)
	req.Header.Set("Authorization", "Bearer "+mustToken(t, secret, "operator"))
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", resp.Code)
	}

	req = httptest.NewRequest(http.MethodDelete, "/api/v1/history", nil)
	req.Header.Set("Authorization", "Bearer "+mustToken(t, secret, "admin"))
	resp = httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
}

func TestAuthMiddleware_WrongSecret(t *testing.T) {
	handler := newTestHandler([]byte("test-secret"))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/alerts", nil)
	req.Header.Set("Authorization", "Bearer "+mustToken(t, []byte("other"), "admin"))
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.Code)
	}
}

func TestAuthMiddleware_StreamAcceptsQueryToken(t *testing.T) {
	secret := []byte("test-secret")
	handler := newTestHandler(secret)
	token := mustToken(t, secret, "viewer")

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/v1/alerts/stream?access_token="+token, nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("stream: expected 200, got %d", resp.Code)
	}

	resp = httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/v1/live?access_token="+token, nil))
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("live: expected 401, got %d", resp.Code)
	}
}

func TestRoleAllows(t *testing.T) {
	role, ok := ParseRole(" Operator ")
	if !ok || role != RoleOperator {
		t.Fatalf("unexpected role %q ok=%v", role, ok)
	}
	if !RoleAdmin.Allows(RoleOperator) || !RoleOperator.Allows(RoleViewer) {
		t.Fatalf("higher roles must satisfy lower ones")
	}
	if RoleViewer.Allows(RoleOperator) || Role("root").Allows(RoleViewer) {
		t.Fatalf("lower or unknown roles must not satisfy")
	}
}

func TestIssueJWTRoundTrip(t *testing.T) {
	secret := []byte("test-secret")
	token, err := IssueJWT(secret, "op-1", RoleOperator, time.Hour)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	claims, err := ParseJWT(token, secret)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if claims.Subject != "op-1" || claims.Role != "operator" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
	if _, err := IssueJWT(secret, "x", Role("root"), time.Hour); err == nil {
		t.Fatalf("expected invalid role error")
	}
}

func mustToken(t *testing.T, secret []byte, role string) string {
	t.Helper()
	claims := Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-1",
			IssuedAt:  jwt.NewNumericDate(time.Now().Add(-time.Minute)),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(secret)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}
