package httpapi

import (
	"net/http"
	"strings"
	"time"

	"userhub.org/internal/audit"
	"userhub.org/internal/auth"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type changePasswordRequest struct {
	Email       string `json:"email"`
	OldPassword string `json:"old_password"`
	NewPassword string `json:"new_password"`
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		writeError(w, r, http.StatusBadRequest, "email and password are required")
		return
	}

	session, err := a.svc.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		_ = audit.LogEvent(r.Context(), audit.EventLoginFailed, map[string]any{
			"email": strings.ToLower(strings.TrimSpace(req.Email)),
		})
		handleAuthError(w, r, err)
		return
	}

	_ = audit.LogEvent(r.Context(), audit.EventLogin, map[string]any{
		"session_id": session.SessionID,
	})
	a.writeSession(w, session)
}

func (a *API) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	// Browser clients carry the token in an HttpOnly cookie; API clients
	// send it in the body.
	token := ""
	if cookie, err := r.Cookie(refreshCookie); err == nil {
		token = cookie.Value
	}
	if token == "" {
		var req refreshRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		token = req.RefreshToken
	}
	if token == "" {
		writeError(w, r, http.StatusBadRequest, "refresh token is required")
		return
	}

	session, err := a.svc.Refresh(r.Context(), token)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), audit.EventTokenRefreshed, map[string]any{
		"session_id": session.SessionID,
	})
	a.writeSession(w, session)
}

func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	token, ok := auth.TokenFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}
	if err := a.svc.Logout(r.Context(), token); err != nil {
		handleAuthError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), audit.EventLogout, nil)
	a.clearSessionCookies(w)
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req changePasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if err := a.svc.ChangePassword(r.Context(), req.Email, req.OldPassword, req.NewPassword); err != nil {
		handleAuthError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), audit.EventPasswordChange, map[string]any{
		"email": strings.ToLower(strings.TrimSpace(req.Email)),
	})
	w.WriteHeader(http.StatusNoContent)
}

// writeSession sets the cookie triplet and returns the access token in
// the body. The refresh token never appears in the JSON response for
// cookie-based clients; API clients get it in the body instead.
func (a *API) writeSession(w http.ResponseWriter, session auth.SessionTokens) {
	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookie,
		Value:    session.RefreshToken,
		Path:     "/v1/auth",
		Expires:  session.RefreshExpiresAt,
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteStrictMode,
	})
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    session.SessionID,
		Path:     "/",
		Expires:  session.RefreshExpiresAt,
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteStrictMode,
	})
	// Readable by scripts: the double-submit header value.
	http.SetCookie(w, &http.Cookie{
		Name:     csrfCookieName,
		Value:    session.CSRFToken,
		Path:     "/",
		Expires:  session.RefreshExpiresAt,
		Secure:   true,
		SameSite: http.SameSiteStrictMode,
	})

	writeJSON(w, http.StatusOK, map[string]any{
		"access_token":      session.AccessToken,
		"token_type":        "Bearer",
		"access_expires_at": session.AccessExpiresAt,
		"refresh_token":     session.RefreshToken,
		"csrf_token":        session.CSRFToken,
		"session_id":        session.SessionID,
	})
}

func (a *API) clearSessionCookies(w http.ResponseWriter) {
	expired := time.Unix(0, 0)
	for _, c := range []http.Cookie{
		{Name: refreshCookie, Path: "/v1/auth", Expires: expired, HttpOnly: true},
		{Name: sessionCookie, Path: "/", Expires: expired, HttpOnly: true},
		{Name: csrfCookieName, Path: "/", Expires: expired},
	} {
		cookie := c
		http.SetCookie(w, &cookie)
	}
}
