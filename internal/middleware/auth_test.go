package middleware

import (
	"crypto/rand"
	"crypto/rsa"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/ShedrackAmodu/school-comm-service/internal/domain"
	pkgjwt "github.com/ShedrackAmodu/school-comm-service/pkg/jwt"
)

func newTestAuth(t *testing.T) (*Auth, *rsa.PrivateKey) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}
	return NewAuth(pkgjwt.NewVerifier(&key.PublicKey)), key
}

func mintToken(t *testing.T, key *rsa.PrivateKey, mutate func(*pkgjwt.Claims)) string {
	t.Helper()
	claims := pkgjwt.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "u1",
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		UserID:      "u1",
		Username:    "ada",
		DisplayName: "Ada Obi",
		Roles:       []string{domain.RoleTeacher},
		Type:        "access",
	}
	if mutate != nil {
		mutate(&claims)
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(key)
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return signed
}

func TestRequireAcceptsBearerAndQueryToken(t *testing.T) {
	auth, key := newTestAuth(t)

	var got domain.Identity
	handler := auth.Require(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, ok := IdentityFromContext(r.Context())
		if !ok {
			t.Error("identity missing from context")
		}
		got = identity
		w.WriteHeader(http.StatusOK)
	}))

	token := mintToken(t, key, nil)

	req := httptest.NewRequest(http.MethodGet, "/ws/chat/r1", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 with bearer token, got %d", rec.Code)
	}
	if got.UserID != "u1" || got.Name() != "Ada Obi" || !got.HasRole(domain.RoleTeacher) {
		t.Fatalf("unexpected identity: %+v", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/ws/chat/r1?token="+token, nil)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 with query token, got %d", rec.Code)
	}
}

func TestRequireRejectsInvalidTokens(t *testing.T) {
	auth, key := newTestAuth(t)

	handler := auth.Require(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	otherKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}

	cases := []struct {
		name  string
		token string
	}{
		{"missing token", ""},
		{"garbage token", "not-a-token"},
		{"expired token", mintToken(t, key, func(c *pkgjwt.Claims) {
			c.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Hour))
		})},
		{"refresh token", mintToken(t, key, func(c *pkgjwt.Claims) {
			c.Type = "refresh"
		})},
		{"foreign signature", mintToken(t, otherKey, nil)},
	}

	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, "/ws/notifications", nil)
		if tc.token != "" {
			req.Header.Set("Authorization", "Bearer "+tc.token)
		}
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("%s: expected 401, got %d", tc.name, rec.Code)
		}
	}
}
