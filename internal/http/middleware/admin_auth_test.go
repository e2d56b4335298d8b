package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestAdminJWTRejects(t *testing.T) {
	cases := []struct {
		name   string
		secret string
		header string
	}{
		{name: "empty secret", secret: "", header: ""},
		{name: "no header", secret: "secret", header: ""},
		{name: "not bearer", secret: "secret", header: "Basic abc123"},
		{name: "empty bearer", secret: "secret", header: "Bearer "},
		{name: "garbage token", secret: "secret", header: "Bearer not.a.jwt"},
		{name: "wrong secret", secret: "secret", header: "Bearer " + mintAdminToken(t, "other", time.Minute)},
		{name: "expired", secret: "secret", header: "Bearer " + mintAdminToken(t, "secret", -time.Minute)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/admin", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()

			reached := false
			AdminJWT(tc.secret)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				reached = true
			})).ServeHTTP(rec, req)

			if reached {
				t.Fatal("handler ran behind failed auth")
			}
			if rec.Code != http.StatusUnauthorized {
				t.Fatalf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
			}
		})
	}
}

func TestAdminJWTValidToken(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/admin", nil)
	req.Header.Set("Authorization", "Bearer "+mintAdminToken(t, "secret", 5*time.Minute))
	rec := httptest.NewRecorder()

	reached := false
	AdminJWT("secret")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reached = true
		claims, ok := AdminClaimsFromContext(r.Context())
		if !ok {
			t.Fatal("claims missing from context")
		}
		if claims.Subject != "admin-user" {
			t.Fatalf("claims subject = %q", claims.Subject)
		}
		w.WriteHeader(http.StatusOK)
	})).ServeHTTP(rec, req)

	if !reached {
		t.Fatal("handler never ran")
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
}

func mintAdminToken(t *testing.T, secret string, ttl time.Duration) string {
	t.Helper()
	claims := jwt.RegisteredClaims{
		Subject:   "admin-user",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}
