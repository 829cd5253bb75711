package auth

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/sakif/memeboard/internal/model"
)

// CookieName is the HttpOnly cookie holding the session credential.
const CookieName = "session"

// contextKey is unexported so only this package can read or write the user.
type contextKey string

const userKey contextKey = "user"

// Resolver turns a credential into the current user. It returns a nil user
// for anonymous requests (missing, invalid or expired credentials) and a
// non-empty refreshed credential when the caller should replace its cookie.
// An error means the lookup itself failed.
type Resolver interface {
	Resolve(ctx context.Context, credential string) (user *model.User, refreshed string, err error)
}

// CookieOptions controls the attributes of the session cookie.
type CookieOptions struct {
	Secure bool
}

// Session resolves the request's credential and stores the user in the
// context. It never rejects a request for a bad credential; pair it with
// RequireUser on routes that need one.
func Session(resolver Resolver, cookies CookieOptions, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			credential := credentialFromRequest(r)
			if credential == "" {
				next.ServeHTTP(w, r)
				return
			}

			user, refreshed, err := resolver.Resolve(r.Context(), credential)
			if err != nil {
				logger.Error("resolving session failed",
					slog.String("path", r.URL.Path),
					slog.String("error", err.Error()),
				)
				writeJSONError(w, http.StatusInternalServerError, "internal_error", "an unexpected error occurred")
				return
			}

			if refreshed != "" {
				SetSessionCookie(w, refreshed, cookies)
			}
			if user != nil {
				r = r.WithContext(WithUser(r.Context(), user))
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireUser rejects requests that Session did not authenticate with 401.
func RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := UserFromContext(r.Context()); !ok {
			writeJSONError(w, http.StatusUnauthorized, "unauthorized", "valid authentication required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// WithUser returns a copy of ctx carrying user.
func WithUser(ctx context.Context, user *model.User) context.Context {
	return context.WithValue(ctx, userKey, user)
}

// UserFromContext returns the authenticated user, or (nil, false) for an
// anonymous request.
func UserFromContext(ctx context.Context) (*model.User, bool) {
	u, ok := ctx.Value(userKey).(*model.User)
	return u, ok && u != nil
}

// SetSessionCookie writes the credential cookie with the session lifetime.
func SetSessionCookie(w http.ResponseWriter, credential string, opts CookieOptions) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    credential,
		Path:     "/",
		MaxAge:   int(SessionTTL / time.Second),
		HttpOnly: true,
		Secure:   opts.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// ClearSessionCookie expires the credential cookie.
func ClearSessionCookie(w http.ResponseWriter, opts CookieOptions) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   opts.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// credentialFromRequest prefers the cookie and falls back to a bearer token,
// which lets non-browser clients authenticate.
func credentialFromRequest(r *http.Request) string {
	if c, err := r.Cookie(CookieName); err == nil && c.Value != "" {
		return c.Value
	}

	header := r.Header.Get("Authorization")
	if scheme, token, ok := strings.Cut(header, " "); ok && strings.EqualFold(scheme, "Bearer") {
		return strings.TrimSpace(token)
	}
	return ""
}

func writeJSONError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(`{"error":"` + code + `","message":"` + message + `"}`))
}
