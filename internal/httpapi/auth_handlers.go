package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/leonardcser/nasa-proxy/internal/auth"
	"github.com/leonardcser/nasa-proxy/internal/store"
	"github.com/leonardcser/nasa-proxy/internal/validate"
)

// register creates an account and signs the caller in.
// POST /api/v1/auth/register
func (s *Server) register(w http.ResponseWriter, r *http.Request) {
	var body validate.Register
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, err)
		return
	}
	if err := body.Validate(); err != nil {
		writeError(w, err)
		return
	}
	hash, err := auth.HashPassword(body.Password)
	if err != nil {
		writeError(w, err)
		return
	}
	u := &store.User{
		FirstName:    strings.TrimSpace(body.FirstName),
		LastName:     strings.TrimSpace(body.LastName),
		Username:     strings.TrimSpace(body.Username),
		Email:        strings.TrimSpace(body.Email),
		PasswordHash: hash,
	}
	if err := s.users.CreateUser(u); err != nil {
		writeError(w, err)
		return
	}
	s.sendToken(w, u)
}

// login signs in with username and password.
// POST /api/v1/auth/login
func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var body validate.Login
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, err)
		return
	}
	if err := body.Validate(); err != nil {
		writeError(w, errorf(http.StatusBadRequest, "Please provide an username and password"))
		return
	}
	u, err := s.users.FindUserByUsername(body.Username)
	if errors.Is(err, store.ErrUserNotFound) {
		writeError(w, auth.ErrInvalidCredentials)
		return
	}
	if err != nil {
		writeError(w, err)
		return
	}
	if err := auth.CheckPassword(u.PasswordHash, body.Password); err != nil {
		writeError(w, err)
		return
	}
	s.sendToken(w, u)
}

// logout replaces the session cookie with one that expires shortly.
// GET /api/v1/auth/logout
func (s *Server) logout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     auth.CookieName,
		Value:    "none",
		Path:     "/",
		Expires:  s.now().Add(10 * time.Second),
		HttpOnly: true,
	})
	writeJSON(w, http.StatusOK, envelope{"success": true, "message": "User logged out"})
}

// me returns the signed-in user.
// GET /api/v1/auth/me
func (s *Server) me(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.UserID(r.Context())
	u, err := s.users.FindUserByID(id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{"success": true, "data": u})
}

// updateDetails applies a partial profile update and, when both old and
// new passwords are given, changes the password.
// PUT /api/v1/auth/updatedetails
func (s *Server) updateDetails(w http.ResponseWriter, r *http.Request) {
	var body validate.UpdateDetails
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, err)
		return
	}
	if err := body.Validate(); err != nil {
		writeError(w, err)
		return
	}
	id, _ := auth.UserID(r.Context())
	u, err := s.users.FindUserByID(id)
	if err != nil {
		writeError(w, err)
		return
	}

	if body.OldPassword != "" {
		if err := auth.CheckPassword(u.PasswordHash, body.OldPassword); err != nil {
			writeError(w, errorf(http.StatusUnauthorized, "oldPassword Does not match"))
			return
		}
		hash, err := auth.HashPassword(body.NewPassword)
		if err != nil {
			writeError(w, err)
			return
		}
		u.PasswordHash = hash
	}
	if v := strings.TrimSpace(body.FirstName); v != "" {
		u.FirstName = v
	}
	if v := strings.TrimSpace(body.LastName); v != "" {
		u.LastName = v
	}
	if v := strings.TrimSpace(body.Email); v != "" {
		u.Email = v
	}
	if v := strings.TrimSpace(body.Username); v != "" {
		u.Username = v
	}
	if err := s.users.UpdateUser(u); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{"success": true, "data": u})
}

// sendToken signs a token for u, sets it as the session cookie and returns it.
func (s *Server) sendToken(w http.ResponseWriter, u *store.User) {
	tok, err := s.issuer.Sign(u.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     auth.CookieName,
		Value:    tok,
		Path:     "/",
		Expires:  s.now().Add(s.opts.CookieTTL),
		HttpOnly: true,
		Secure:   s.opts.Production,
		SameSite: http.SameSiteLaxMode,
	})
	writeJSON(w, http.StatusOK, envelope{"success": true, "token": tok})
}
