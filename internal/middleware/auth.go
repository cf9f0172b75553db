package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"firebase.google.com/go/v4/auth"

	"rallyup/backend/internal/authctx"
	"rallyup/backend/internal/httpjson"
)

// TokenVerifier checks a Firebase ID token. *auth.Client satisfies it.
type TokenVerifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (*auth.Token, error)
}

// InsecureDevVerifier accepts any token and takes it as the uid. For local
// runs against the memory backend only.
type InsecureDevVerifier struct{}

func (InsecureDevVerifier) VerifyIDToken(_ context.Context, idToken string) (*auth.Token, error) {
	return &auth.Token{
		UID: idToken,
		Claims: map[string]any{
			"email": idToken + "@dev.local",
			"name":  idToken,
		},
	}, nil
}

func WithAuth(v TokenVerifier, log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			idToken, ok := bearer(r)
			if !ok {
				httpjson.Error(w, http.StatusUnauthorized, "missing Authorization: Bearer <token>")
				return
			}

			tok, err := v.VerifyIDToken(r.Context(), idToken)
			if err != nil {
				log.Debug("middleware: token rejected", "path", r.URL.Path, "error", err)
				httpjson.Error(w, http.StatusUnauthorized, "invalid token")
				return
			}

			p := &authctx.Principal{UID: tok.UID, Claims: tok.Claims}
			if v, ok := tok.Claims["email"].(string); ok {
				p.Email = v
			}
			if v, ok := tok.Claims["name"].(string); ok {
				p.Name = v
			}
			next.ServeHTTP(w, r.WithContext(authctx.WithPrincipal(r.Context(), p)))
		})
	}
}

// bearer reads the Authorization header. Browsers cannot set headers on a
// websocket handshake, so upgrades may pass access_token as a query value.
func bearer(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	if h != "" {
		if len(h) < len("Bearer ") || !strings.EqualFold(h[:len("Bearer ")], "bearer ") {
			return "", false
		}
		t := strings.TrimSpace(h[len("Bearer "):])
		return t, t != ""
	}
	if strings.EqualFold(r.Header.Get("Upgrade"), "websocket") {
		t := r.URL.Query().Get("access_token")
		return t, t != ""
	}
	return "", false
}
