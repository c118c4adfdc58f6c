package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const testSecret = "test-secret"

func signToken(t *testing.T, claims jwt.MapClaims, secret string) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return s
}

func newRouter(handlers ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	handlers = append(handlers, func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"user_id": c.GetString("user_id")})
	})
	r.GET("/ping", handlers...)
	return r
}

func get(r *gin.Engine, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestJWTAuth(t *testing.T) {
	r := newRouter(JWTAuth(testSecret), RequirePermission("warranty:admin"))
	exp := time.Now().Add(time.Hour).Unix()

	tests := []struct {
		name   string
		token  string
		status int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"wrong secret", signToken(t, jwt.MapClaims{"uid": "u1", "exp": exp}, "other"), http.StatusUnauthorized},
		{"expired", signToken(t, jwt.MapClaims{"uid": "u1", "exp": time.Now().Add(-time.Hour).Unix()}, testSecret), http.StatusUnauthorized},
		{"no uid", signToken(t, jwt.MapClaims{"perms": []string{"*"}, "exp": exp}, testSecret), http.StatusUnauthorized},
		{"no permission", signToken(t, jwt.MapClaims{"uid": "u1", "perms": []string{"warranty:read"}, "exp": exp}, testSecret), http.StatusForbidden},
		{"permission", signToken(t, jwt.MapClaims{"uid": "u1", "perms": []string{"warranty:admin"}, "exp": exp}, testSecret), http.StatusOK},
		{"wildcard", signToken(t, jwt.MapClaims{"uid": "u1", "perms": []string{"*"}, "exp": exp}, testSecret), http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if w := get(r, tt.token); w.Code != tt.status {
				t.Errorf("expected %d, got %d: %s", tt.status, w.Code, w.Body.String())
			}
		})
	}
}

func TestRequireRole(t *testing.T) {
	r := newRouter(JWTAuth(testSecret), RequireRole("service_advisor"))
	exp := time.Now().Add(time.Hour).Unix()

	if w := get(r, signToken(t, jwt.MapClaims{"uid": "u1", "roles": []string{"technician"}, "exp": exp}, testSecret)); w.Code != http.StatusForbidden {
		t.Errorf("expected 403, got %d", w.Code)
	}
	if w := get(r, signToken(t, jwt.MapClaims{"uid": "u1", "roles": []string{AdminRole}, "exp": exp}, testSecret)); w.Code != http.StatusOK {
		t.Errorf("expected admin to pass, got %d", w.Code)
	}
}

func TestRateLimiterPerClient(t *testing.T) {
	limiter := NewRateLimiter(0.001, 2)
	r := newRouter(JWTAuth(testSecret), limiter.Middleware())
	exp := time.Now().Add(time.Hour).Unix()
	alice := signToken(t, jwt.MapClaims{"uid": "alice", "exp": exp}, testSecret)
	bob := signToken(t, jwt.MapClaims{"uid": "bob", "exp": exp}, testSecret)

	for i := 0; i < 2; i++ {
		if w := get(r, alice); w.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i, w.Code)
		}
	}
	if w := get(r, alice); w.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 after burst, got %d", w.Code)
	}
	if w := get(r, bob); w.Code != http.StatusOK {
		t.Fatalf("other client should not be limited, got %d", w.Code)
	}
}

func TestRequestIDEcho(t *testing.T) {
	r := newRouter(RequestID())
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("X-Request-ID", "req-1")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if got := w.Header().Get("X-Request-ID"); got != "req-1" {
		t.Errorf("expected request id echoed, got %q", got)
	}
}
