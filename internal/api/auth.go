package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"get5panel/internal/auth"
	"get5panel/internal/domain"
)

type contextKey string

const userContextKey contextKey = "user"

// userFrom returns the authenticated user placed by requireAuth.
func userFrom(req *http.Request) *domain.User {
	user, _ := req.Context().Value(userContextKey).(*domain.User)
	return user
}

// bearerToken extracts the JWT from the Authorization header or the
// access_token query parameter (used by the websocket client).
func bearerToken(req *http.Request) string {
	header := req.Header.Get("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return req.URL.Query().Get("access_token")
}

// requireAuth wraps a handler with JWT validation and loads the user.
func (r *Router) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		claims, err := r.auth.ValidateToken(bearerToken(req))
		if err != nil {
			writeError(w, http.StatusUnauthorized, "authentication required")
			return
		}
		user, err := r.store.GetUserByID(claims.UserID)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "unknown user")
			return
		}
		ctx := context.WithValue(req.Context(), userContextKey, user)
		next(w, req.WithContext(ctx))
	}
}

// requireAdmin wraps a handler with admin-only access.
func (r *Router) requireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return r.requireAuth(func(w http.ResponseWriter, req *http.Request) {
		if !userFrom(req).Admin {
			writeError(w, http.StatusForbidden, "admin access required")
			return
		}
		next(w, req)
	})
}

func (r *Router) handleLogin(w http.ResponseWriter, req *http.Request) {
	var body struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	user, err := r.store.GetUserByUsername(body.Username)
	if err != nil || !auth.CheckPassword(body.Password, user.PasswordHash) {
		writeError(w, http.StatusUnauthorized, "invalid username or password")
		return
	}

	token, err := r.auth.GenerateToken(user.ID, user.Username, user.SteamID, user.Admin)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to generate token")
		return
	}
	r.store.TouchUserLogin(user.ID)

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"token": token,
		"user":  user,
	})
}

func (r *Router) handleAuthCheck(w http.ResponseWriter, req *http.Request) {
	claims, err := r.auth.ValidateToken(bearerToken(req))
	if err != nil {
		writeJSON(w, http.StatusOK, map[string]interface{}{"authenticated": false})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"authenticated": true,
		"username":      claims.Username,
		"admin":         claims.Admin,
	})
}
