package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/ndf/core/model"
)

const secret = "0123456789abcdef0123"

type nopLogger struct{}

func (nopLogger) Debugf(string, ...any)         {}
func (nopLogger) Debugw(string, map[string]any) {}
func (nopLogger) Infof(string, ...any)          {}
func (nopLogger) Warnf(string, ...any)          {}
func (nopLogger) Errorf(string, ...any)         {}

type users map[string]model.User

func (u users) GetUser(_ context.Context, id string) (model.User, error) {
	if v, ok := u[id]; ok {
		return v, nil
	}
	return model.User{}, model.ErrNotFound
}

func TestIssueAndVerify(t *testing.T) {
	s, err := NewSigner(secret, "ndf")
	require.NoError(t, err)
	v, err := NewVerifier(secret, "ndf")
	require.NoError(t, err)

	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }
	v.now = func() time.Time { return now.Add(time.Hour) }

	tok, exp, err := s.Issue(model.User{ID: "u1", Role: model.RoleAdmin}, 2*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, now.Add(2*time.Hour), exp)

	claims, err := v.Verify(tok)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.Subject)
	assert.Equal(t, model.RoleAdmin, claims.Role)
	assert.Equal(t, "ndf", claims.Issuer)

	v.now = func() time.Time { return now.Add(3 * time.Hour) }
	if _, err := v.Verify(tok); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected expired token to fail, got %v", err)
	}
}

func TestVerifyRejectsForeignTokens(t *testing.T) {
	other, _ := NewSigner("another-secret-0123456789", "ndf")
	wrongIss, _ := NewSigner(secret, "someone-else")
	v, _ := NewVerifier(secret, "ndf")

	for name, s := range map[string]*Signer{"secret": other, "issuer": wrongIss} {
		tok, _, err := s.Issue(model.User{ID: "u1"}, time.Hour)
		require.NoError(t, err)
		if _, err := v.Verify(tok); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("%s: expected ErrInvalidToken, got %v", name, err)
		}
	}
	if _, err := v.Verify("not.a.jwt"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected garbage to fail, got %v", err)
	}
}

func TestShortSecretRejected(t *testing.T) {
	if _, err := NewSigner("short", "ndf"); err == nil {
		t.Fatalf("expected error")
	}
	if _, err := NewVerifier("short", "ndf"); err == nil {
		t.Fatalf("expected error")
	}
}

func TestMiddleware(t *testing.T) {
	s, _ := NewSigner(secret, "ndf")
	v, _ := NewVerifier(secret, "ndf")
	known := users{"u1": {ID: "u1", Email: "a@example.org"}}

	h := Middleware(v, known, nopLogger{})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, ok := UserFrom(r.Context())
		if !ok {
			t.Errorf("user missing from context")
		}
		_, _ = w.Write([]byte(u.Email))
	}))

	good, _, _ := s.Issue(model.User{ID: "u1"}, time.Hour)
	ghost, _, _ := s.Issue(model.User{ID: "ghost"}, time.Hour)

	cases := []struct {
		name   string
		header string
		code   int
	}{
		{"valid", "Bearer " + good, http.StatusOK},
		{"lowercase scheme", "bearer " + good, http.StatusOK},
		{"missing", "", http.StatusUnauthorized},
		{"basic", "Basic dXNlcjpwYXNz", http.StatusUnauthorized},
		{"garbage", "Bearer abc", http.StatusUnauthorized},
		{"unknown user", "Bearer " + ghost, http.StatusUnauthorized},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
			if c.header != "" {
				req.Header.Set("Authorization", c.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if rec.Code != c.code {
				t.Fatalf("expected %d, got %d", c.code, rec.Code)
			}
			if c.code == http.StatusUnauthorized {
				var body map[string]string
				require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
				assert.NotEmpty(t, body["error"])
			} else {
				assert.Equal(t, "a@example.org", rec.Body.String())
			}
		})
	}
}
