package handler

import (
	"encoding/json"
	"errors"
	"mime"
	"net/http"

	"starblog/internal/api/middleware"
	"starblog/internal/app/service"
	"starblog/internal/common"
	"starblog/internal/platform/metrics"

	"github.com/go-chi/chi/v5"
)

type AuthHandler struct {
	authService  *service.AuthService
	cookieSecure bool
}

func NewAuthHandler(authService *service.AuthService, cookieSecure bool) *AuthHandler {
	return &AuthHandler{authService: authService, cookieSecure: cookieSecure}
}

func (h *AuthHandler) RegisterRoutes(r chi.Router) {
	r.Post("/signup", h.signup)
	r.Post("/login", h.login)
	r.Post("/logout", h.logout)
}

func (h *AuthHandler) signup(w http.ResponseWriter, r *http.Request) {
	var req service.SignupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.RespondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}

	if _, err := h.authService.Signup(r.Context(), req); err != nil {
		common.RespondWithDomainError(w, err)
		return
	}
	common.RespondWithMessage(w, http.StatusOK, "User created successfully")
}

// login accepts a urlencoded form, or JSON when the request says so.
func (h *AuthHandler) login(w http.ResponseWriter, r *http.Request) {
	var req service.LoginRequest
	if isJSON(r) {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			common.RespondWithError(w, http.StatusBadRequest, "Invalid request payload")
			return
		}
	} else {
		if err := r.ParseForm(); err != nil {
			common.RespondWithError(w, http.StatusBadRequest, "Invalid form data")
			return
		}
		req.Username = r.PostFormValue("username")
		req.Password = r.PostFormValue("password")
	}

	resp, err := h.authService.Login(r.Context(), req)
	if err != nil {
		if errors.Is(err, common.ErrInvalidCredentials) {
			metrics.AuthFailuresTotal.WithLabelValues("login").Inc()
		}
		common.RespondWithDomainError(w, err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    resp.Token,
		Path:     "/",
		MaxAge:   h.authService.TokenTTL(),
		HttpOnly: true,
		Secure:   h.cookieSecure,
		SameSite: http.SameSiteStrictMode,
	})
	common.RespondWithMessage(w, http.StatusOK, "Login successful")
}

// logout only clears the cookie; tokens are stateless.
func (h *AuthHandler) logout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.cookieSecure,
		SameSite: http.SameSiteStrictMode,
	})
	common.RespondWithMessage(w, http.StatusOK, "Logged out successfully")
}

func isJSON(r *http.Request) bool {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mediaType == "application/json"
}
