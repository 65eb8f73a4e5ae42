package middleware

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/dukerupert/famboard/internal/auth"
	"github.com/dukerupert/famboard/internal/membership"
	"github.com/dukerupert/famboard/internal/store"
)

// TokenCookieName carries the bearer token for browser clients that cannot
// set an Authorization header, such as websocket upgrades.
const TokenCookieName = "famboard_token"

func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if token, ok := strings.CutPrefix(h, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
		return ""
	}
	if c, err := r.Cookie(TokenCookieName); err == nil {
		return c.Value
	}
	return ""
}

// RequireAuth verifies the bearer token and populates AuthContext with the
// member's current family and role.
func RequireAuth(tokens *auth.Tokens, memberStore *store.MemberStore, familyStore *store.FamilyStore, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				writeError(w, http.StatusUnauthorized, "authentication required")
				return
			}
			memberID, err := tokens.Parse(token)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "invalid token")
				return
			}

			member, err := memberStore.GetByID(memberID)
			if err != nil {
				logger.Error("load member", "member_id", memberID, "error", err)
				writeError(w, http.StatusInternalServerError, "internal error")
				return
			}
			if member == nil {
				writeError(w, http.StatusUnauthorized, "invalid token")
				return
			}

			state, _, err := familyStore.StateOf(memberID)
			if err != nil {
				logger.Error("load membership", "member_id", memberID, "error", err)
				writeError(w, http.StatusInternalServerError, "internal error")
				return
			}

			ac := auth.AuthContext{MemberID: memberID}
			switch state.Status {
			case membership.StatusOwner:
				ac.FamilyID, ac.Role = state.FamilyID, auth.RoleOwner
			case membership.StatusMember:
				ac.FamilyID, ac.Role = state.FamilyID, auth.RoleMember
			}

			next.ServeHTTP(w, r.WithContext(auth.WithAuth(r.Context(), ac)))
		})
	}
}

// RequireFamily rejects members that have not been admitted to a family.
func RequireFamily(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if auth.FamilyID(r.Context()) == 0 {
			writeError(w, http.StatusConflict, "not a member of any family")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireOwner checks that the authenticated member owns their family.
func RequireOwner(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !auth.IsOwner(r.Context()) {
			writeError(w, http.StatusForbidden, "family owner only")
			return
		}
		next.ServeHTTP(w, r)
	})
}
