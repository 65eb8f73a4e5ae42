package websocket

import (
	"log/slog"
	"net/http"

	ws "github.com/coder/websocket"

	"github.com/dukerupert/famboard/internal/auth"
)

// HandleWebSocket upgrades an authenticated request and streams the
// caller's family changes. originPatterns lists allowed cross-origin hosts.
func HandleWebSocket(hub *Hub, originPatterns []string, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ac, ok := auth.FromContext(r.Context())
		if !ok || ac.FamilyID == 0 {
			http.Error(w, "not a member of any family", http.StatusConflict)
			return
		}

		conn, err := ws.Accept(w, r, &ws.AcceptOptions{OriginPatterns: originPatterns})
		if err != nil {
			logger.Warn("websocket accept", "member_id", ac.MemberID, "error", err)
			return
		}

		NewClient(hub, conn, ac.FamilyID, ac.MemberID).Run(r.Context())
	}
}
