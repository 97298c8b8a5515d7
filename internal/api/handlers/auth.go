// auth.go — обработчики регистрации и сессий.
package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	apierrors "github.com/bigkaa/gofilevault/internal/api/errors"
	"github.com/bigkaa/gofilevault/internal/api/middleware"
)

// credentialsRequest — тело запросов signup и signin.
type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// signupResponse — ответ на успешную регистрацию.
type signupResponse struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// signinResponse — ответ на успешный вход.
type signinResponse struct {
	Token string `json:"token"`
}

// Signup — POST /api/v1/auth/signup.
func (h *APIHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierrors.ValidationError(w, "Invalid JSON body")
		return
	}

	user, err := h.auth.Signup(r.Context(), req.Email, req.Password)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, signupResponse{ID: user.ID, Email: user.Email})
}

// Signin — POST /api/v1/auth/signin.
func (h *APIHandler) Signin(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierrors.ValidationError(w, "Invalid JSON body")
		return
	}

	token, err := h.auth.Signin(r.Context(), req.Email, req.Password)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, signinResponse{Token: token})
}

// Signout — POST /api/v1/auth/signout. Требует аутентификации;
// middleware уже проверил токен, здесь он только извлекается для удаления.
func (h *APIHandler) Signout(w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r)
	if token == "" {
		apierrors.Unauthorized(w)
		return
	}

	if err := h.auth.Signout(r.Context(), token); err != nil {
		h.respondError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// bearerToken извлекает токен из заголовка Authorization.
func bearerToken(r *http.Request) string {
	parts := strings.SplitN(r.Header.Get("Authorization"), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return parts[1]
}

// userID извлекает аутентифицированную идентичность из контекста.
func userID(r *http.Request) string {
	return middleware.UserIDFromContext(r.Context())
}
