package handler

import (
	"log/slog"
	"net/http"
	"net/mail"
	"strings"

	"github.com/dukerupert/famboard/internal/auth"
	"github.com/dukerupert/famboard/internal/middleware"
	"github.com/dukerupert/famboard/internal/model"
	"github.com/dukerupert/famboard/internal/store"
)

type AuthHandler struct {
	memberStore *store.MemberStore
	tokens      *auth.Tokens
	logger      *slog.Logger
}

func NewAuthHandler(ms *store.MemberStore, tokens *auth.Tokens, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{memberStore: ms, tokens: tokens, logger: logger}
}

type registerRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	GivenName   string `json:"given_name"`
	FamilyName  string `json:"family_name"`
	AvatarEmoji string `json:"avatar_emoji"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type authResponse struct {
	Token  string        `json:"token"`
	Member *model.Member `json:"member"`
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))
	if _, err := mail.ParseAddress(email); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "a valid email is required"})
		return
	}
	if strings.TrimSpace(req.GivenName) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "given_name is required"})
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	existing, err := h.memberStore.GetByEmail(email)
	if err != nil {
		writeStoreError(w, h.logger, err, "register")
		return
	}
	if existing != nil {
		writeJSON(w, http.StatusConflict, map[string]string{"error": "email already registered"})
		return
	}

	member, err := h.memberStore.Create(email, hash, req.GivenName, req.FamilyName, req.AvatarEmoji)
	if err != nil {
		writeStoreError(w, h.logger, err, "register")
		return
	}
	h.logger.Info("member registered", "member_id", member.ID)

	h.respondWithToken(w, r, http.StatusCreated, member)
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	member, err := h.memberStore.GetByEmail(req.Email)
	if err != nil {
		writeStoreError(w, h.logger, err, "log in")
		return
	}
	if member == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid email or password"})
		return
	}
	hash, err := h.memberStore.GetPasswordHash(member.ID)
	if err != nil {
		writeStoreError(w, h.logger, err, "log in")
		return
	}
	if !auth.CheckPassword(hash, req.Password) {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid email or password"})
		return
	}

	h.respondWithToken(w, r, http.StatusOK, member)
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.TokenCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	w.WriteHeader(http.StatusNoContent)
}

func (h *AuthHandler) respondWithToken(w http.ResponseWriter, r *http.Request, status int, m *model.Member) {
	token, err := h.tokens.Issue(m.ID)
	if err != nil {
		h.logger.Error("issue token", "member_id", m.ID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to issue token"})
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     middleware.TokenCookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(h.tokens.TTL().Seconds()),
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})
	writeJSON(w, status, authResponse{Token: token, Member: m})
}
