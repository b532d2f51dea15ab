package httpapi

import (
	"net/http"
	"strings"
	"time"

	"MovieTrackr/internal/auth"
	"MovieTrackr/internal/domain"
)

type registerRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Username string `json:"username" validate:"required,username"`
	Password string `json:"password" validate:"required,min=12,max=256"`
}

type loginRequest struct {
	Login    string `json:"login" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type idTokenRequest struct {
	IDToken string `json:"id_token" validate:"required"`
}

// authResponse is the user plus, when bearer tokens are enabled, an access
// token wrapping the same session as the cookie.
type authResponse struct {
	User        userResponse `json:"user"`
	AccessToken string       `json:"access_token,omitempty"`
	ExpiresAt   *time.Time   `json:"expires_at,omitempty"`
}

func (a *api) handleAuthRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "bad_json", "invalid json")
		return
	}
	req.Username = strings.TrimSpace(req.Username)
	req.Email = strings.TrimSpace(req.Email)
	if err := validateRequest(&req); err != nil {
		WriteDomainError(w, err)
		return
	}

	u, sessID, err := a.authSvc.Register(r.Context(), req.Email, req.Username, req.Password, clientIP(r), r.UserAgent())
	if err != nil {
		WriteDomainError(w, err)
		return
	}
	a.writeSession(w, http.StatusCreated, u, sessID)
}

func (a *api) handleAuthLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "bad_json", "invalid json")
		return
	}
	req.Login = strings.TrimSpace(req.Login)
	if err := validateRequest(&req); err != nil {
		WriteDomainError(w, err)
		return
	}

	now := time.Now()
	ip := clientIP(r)
	if !a.loginLimiter.Allow("ip:"+ip, now) || !a.loginLimiter.Allow("login:"+strings.ToLower(req.Login), now) {
		WriteError(w, http.StatusTooManyRequests, "rate_limited", "too many attempts")
		return
	}

	u, sessID, err := a.authSvc.Login(r.Context(), req.Login, req.Password, ip, r.UserAgent())
	if err != nil {
		WriteDomainError(w, err)
		return
	}
	a.writeSession(w, http.StatusOK, u, sessID)
}

func (a *api) handleAuthLoginGoogle(w http.ResponseWriter, r *http.Request) {
	var req idTokenRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	u, sessID, err := a.authSvc.LoginWithGoogle(r.Context(), strings.TrimSpace(req.IDToken), clientIP(r), r.UserAgent())
	if err != nil {
		WriteDomainError(w, err)
		return
	}
	a.writeSession(w, http.StatusOK, u, sessID)
}

func (a *api) handleAuthLoginApple(w http.ResponseWriter, r *http.Request) {
	var req idTokenRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	u, sessID, err := a.authSvc.LoginWithApple(r.Context(), strings.TrimSpace(req.IDToken), clientIP(r), r.UserAgent())
	if err != nil {
		WriteDomainError(w, err)
		return
	}
	a.writeSession(w, http.StatusOK, u, sessID)
}

func (a *api) handleAuthLogout(w http.ResponseWriter, r *http.Request) {
	sessID, ok := CurrentSessionID(r.Context())
	if !ok || sessID == "" {
		WriteDomainError(w, domain.ErrUnauthorized)
		return
	}

	if err := a.authSvc.Logout(r.Context(), sessID); err != nil {
		a.logger.Warn("logout failed", "err", err)
	}
	auth.ClearSessionCookie(w, a.cookieSecure)
	w.WriteHeader(http.StatusNoContent)
}

func (a *api) writeSession(w http.ResponseWriter, status int, u domain.User, sessID string) {
	auth.SetSessionCookie(w, a.cookieCodec.EncodeSessionID(sessID), a.sessionTTL, a.cookieSecure)

	resp := authResponse{User: toUserResponse(u)}
	if a.tokenCodec.Enabled() {
		token, exp, err := a.tokenCodec.Issue(sessID, u.ID, a.sessionTTL)
		if err != nil {
			a.logger.Error("issue access token failed", "user_id", u.ID, "err", err)
			WriteError(w, http.StatusInternalServerError, "internal_error", "internal server error")
			return
		}
		resp.AccessToken = token
		resp.ExpiresAt = &exp
	}
	w.Header().Set("Cache-Control", "no-store")
	WriteJSON(w, status, resp)
}
