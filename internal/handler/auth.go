package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/sakif/memeboard/internal/auth"
	"github.com/sakif/memeboard/internal/model"
	"github.com/sakif/memeboard/internal/service"
)

// Identity is the part of service.IdentityService the auth handlers use.
type Identity interface {
	BeginLogin(ctx context.Context, email string) error
	CompleteLogin(ctx context.Context, email, code string) (*service.Session, error)
	Profile(user *model.User) (model.Profile, error)
	UpdateHandle(ctx context.Context, user *model.User, candidate string) (*service.Session, error)
}

// AuthHandler serves the email-code login flow, logout and profile routes.
type AuthHandler struct {
	identity Identity
	cookies  auth.CookieOptions
	logger   *slog.Logger
}

func NewAuthHandler(identity Identity, cookies auth.CookieOptions, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		identity: identity,
		cookies:  cookies,
		logger:   logger,
	}
}

type loginStartRequest struct {
	Email string `json:"email" validate:"required,max=320"`
}

type loginVerifyRequest struct {
	Email string `json:"email" validate:"required,max=320"`
	Code  string `json:"code" validate:"required,max=32"`
}

// sessionResponse is returned whenever a new credential is issued. The
// token is also set as the session cookie; non-browser clients send it as
// a bearer token instead.
type sessionResponse struct {
	User  *model.User `json:"user"`
	Token string      `json:"token"`
}

// HandleLoginStart asks the provider to email a one-time code.
//
// HTTP: POST /auth/login/start  {"email": "..."}
func (h *AuthHandler) HandleLoginStart(w http.ResponseWriter, r *http.Request) {
	var req loginStartRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, r, err)
		return
	}

	if err := h.identity.BeginLogin(r.Context(), req.Email); err != nil {
		writeError(w, h.logger, r, err)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{"message": "code sent"})
}

// HandleLoginVerify exchanges the code for a session.
//
// HTTP: POST /auth/login/verify  {"email": "...", "code": "123456"}
func (h *AuthHandler) HandleLoginVerify(w http.ResponseWriter, r *http.Request) {
	var req loginVerifyRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, r, err)
		return
	}

	sess, err := h.identity.CompleteLogin(r.Context(), req.Email, req.Code)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}

	auth.SetSessionCookie(w, sess.Token, h.cookies)
	writeJSON(w, http.StatusOK, sessionResponse{User: sess.User, Token: sess.Token})
}

// HandleLogout clears the session cookie. Credentials are self-contained,
// so a copied token stays valid until it expires.
//
// HTTP: POST /auth/logout
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	auth.ClearSessionCookie(w, h.cookies)
	writeJSON(w, http.StatusOK, map[string]string{"message": "logged out"})
}

type meResponse struct {
	Authenticated bool        `json:"authenticated"`
	User          *model.User `json:"user,omitempty"`
}

// HandleMe reports who the caller is. Anonymous callers get 200 with
// authenticated=false so the frontend can probe without handling a 401.
//
// HTTP: GET /api/me
func (h *AuthHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.UserFromContext(r.Context())
	writeJSON(w, http.StatusOK, meResponse{Authenticated: ok, User: user})
}

// HandleGetProfile returns the caller's profile.
//
// HTTP: GET /api/profile (auth required)
func (h *AuthHandler) HandleGetProfile(w http.ResponseWriter, r *http.Request) {
	user, _ := auth.UserFromContext(r.Context())

	profile, err := h.identity.Profile(user)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

type updateHandleRequest struct {
	Handle string `json:"handle" validate:"required,max=64"`
}

type updateHandleResponse struct {
	Profile model.Profile `json:"profile"`
	Token   string        `json:"token"`
}

// HandleUpdateHandle sets a user-chosen handle and rewrites the session
// cookie so the credential carries it.
//
// HTTP: PUT /api/profile/handle  {"handle": "..."} (auth required)
func (h *AuthHandler) HandleUpdateHandle(w http.ResponseWriter, r *http.Request) {
	user, _ := auth.UserFromContext(r.Context())

	var req updateHandleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, r, err)
		return
	}

	sess, err := h.identity.UpdateHandle(r.Context(), user, req.Handle)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}

	auth.SetSessionCookie(w, sess.Token, h.cookies)
	writeJSON(w, http.StatusOK, updateHandleResponse{Profile: sess.User.Profile(), Token: sess.Token})
}
