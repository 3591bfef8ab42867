package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/kilianp07/ndf/core/logger"
	"github.com/kilianp07/ndf/core/model"
)

// UserLookup resolves the subject of a token.
type UserLookup interface {
	GetUser(ctx context.Context, id string) (model.User, error)
}

type ctxKey struct{}

// WithUser stores u in ctx.
func WithUser(ctx context.Context, u model.User) context.Context {
	return context.WithValue(ctx, ctxKey{}, u)
}

// UserFrom returns the authenticated user stored by Middleware.
func UserFrom(ctx context.Context) (model.User, bool) {
	u, ok := ctx.Value(ctxKey{}).(model.User)
	return u, ok
}

// Middleware rejects requests without a valid bearer token of a known user
// with 401 and stores the user in the request context otherwise.
func Middleware(v *Verifier, users UserLookup, log logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, ok := Bearer(r)
			if !ok {
				unauthorized(w, "missing bearer token")
				return
			}
			claims, err := v.Verify(raw)
			if err != nil {
				log.Debugf("rejected token: %v", err)
				unauthorized(w, "invalid token")
				return
			}
			u, err := users.GetUser(r.Context(), claims.Subject)
			if err != nil {
				if !errors.Is(err, model.ErrNotFound) {
					log.Errorf("resolve user %s: %v", claims.Subject, err)
				}
				unauthorized(w, "unknown user")
				return
			}
			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), u)))
		})
	}
}

// Bearer extracts the token of an Authorization: Bearer header.
func Bearer(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	scheme, tok, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	tok = strings.TrimSpace(tok)
	return tok, tok != ""
}

func unauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", `Bearer realm="ndf"`)
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
