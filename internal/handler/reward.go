package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/dukerupert/famboard/internal/auth"
	"github.com/dukerupert/famboard/internal/model"
	"github.com/dukerupert/famboard/internal/store"
	"github.com/dukerupert/famboard/internal/websocket"
)

type RewardHandler struct {
	rewardStore *store.RewardStore
	hub         *websocket.Hub
	logger      *slog.Logger
	now         func() time.Time
}

func NewRewardHandler(rs *store.RewardStore, hub *websocket.Hub, logger *slog.Logger) *RewardHandler {
	return &RewardHandler{rewardStore: rs, hub: hub, logger: logger, now: time.Now}
}

type rewardRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Emoji       string `json:"emoji"`
	PointCost   int    `json:"point_cost"`
	Active      *bool  `json:"active"`
}

func (h *RewardHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req rewardRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	familyID := auth.FamilyID(r.Context())
	reward, err := h.rewardStore.Create(familyID, req.Title, req.Description, req.Emoji, req.PointCost)
	if err != nil {
		writeStoreError(w, h.logger, err, "create reward")
		return
	}

	h.hub.Broadcast(familyID, websocket.NewMessage("reward", "created", reward.ID, nil))
	writeJSON(w, http.StatusCreated, reward)
}

// List returns active rewards, cheapest first. ?all=1 includes inactive
// ones.
func (h *RewardHandler) List(w http.ResponseWriter, r *http.Request) {
	all := r.URL.Query().Get("all") == "1"
	rewards, err := h.rewardStore.ListByFamily(auth.FamilyID(r.Context()), all)
	if err != nil {
		writeStoreError(w, h.logger, err, "list rewards")
		return
	}
	if rewards == nil {
		rewards = []model.Reward{}
	}
	writeJSON(w, http.StatusOK, rewards)
}

func (h *RewardHandler) familyReward(w http.ResponseWriter, r *http.Request) (*model.Reward, bool) {
	id, err := parseIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return nil, false
	}
	reward, err := h.rewardStore.GetByID(id)
	if err != nil {
		writeStoreError(w, h.logger, err, "get reward")
		return nil, false
	}
	if reward == nil || reward.FamilyID != auth.FamilyID(r.Context()) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "reward not found"})
		return nil, false
	}
	return reward, true
}

func (h *RewardHandler) Update(w http.ResponseWriter, r *http.Request) {
	existing, ok := h.familyReward(w, r)
	if !ok {
		return
	}

	var req rewardRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	active := existing.Active
	if req.Active != nil {
		active = *req.Active
	}

	reward, err := h.rewardStore.Update(existing.ID, req.Title, req.Description, req.Emoji, req.PointCost, active)
	if err != nil {
		writeStoreError(w, h.logger, err, "update reward")
		return
	}

	h.hub.Broadcast(reward.FamilyID, websocket.NewMessage("reward", "updated", reward.ID, nil))
	writeJSON(w, http.StatusOK, reward)
}

func (h *RewardHandler) Delete(w http.ResponseWriter, r *http.Request) {
	existing, ok := h.familyReward(w, r)
	if !ok {
		return
	}

	if err := h.rewardStore.Delete(existing.ID); err != nil {
		writeStoreError(w, h.logger, err, "delete reward")
		return
	}

	h.hub.Broadcast(existing.FamilyID, websocket.NewMessage("reward", "deleted", existing.ID, nil))
	w.WriteHeader(http.StatusNoContent)
}

// Redeem spends points on a reward. Members redeem for themselves; the owner
// may redeem on behalf of anyone in the family, such as a child profile.
func (h *RewardHandler) Redeem(w http.ResponseWriter, r *http.Request) {
	reward, ok := h.familyReward(w, r)
	if !ok {
		return
	}

	var req struct {
		MemberID int64 `json:"member_id"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	ac, _ := auth.FromContext(r.Context())
	if req.MemberID == 0 {
		req.MemberID = ac.MemberID
	}
	if req.MemberID != ac.MemberID && ac.Role != auth.RoleOwner {
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "only the family owner can redeem for others"})
		return
	}

	redemption, err := h.rewardStore.Redeem(reward.ID, req.MemberID, h.now())
	if err != nil {
		writeStoreError(w, h.logger, err, "redeem reward")
		return
	}

	h.logger.Info("reward redeemed", "reward_id", reward.ID, "member_id", req.MemberID, "points", redemption.PointsSpent)
	h.hub.Broadcast(reward.FamilyID, websocket.NewMessage("reward", "redeemed", reward.ID, map[string]any{
		"member_id":    req.MemberID,
		"points_spent": redemption.PointsSpent,
	}))
	writeJSON(w, http.StatusCreated, redemption)
}

func (h *RewardHandler) Leaderboard(w http.ResponseWriter, r *http.Request) {
	board, err := h.rewardStore.Leaderboard(auth.FamilyID(r.Context()))
	if err != nil {
		writeStoreError(w, h.logger, err, "load leaderboard")
		return
	}
	if board == nil {
		board = []model.PointBalance{}
	}
	writeJSON(w, http.StatusOK, board)
}
