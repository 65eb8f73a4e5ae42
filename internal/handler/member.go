package handler

import (
	"log/slog"
	"net/http"
	"slices"
	"strconv"

	"github.com/dukerupert/famboard/internal/auth"
	"github.com/dukerupert/famboard/internal/membership"
	"github.com/dukerupert/famboard/internal/model"
	"github.com/dukerupert/famboard/internal/progression"
	"github.com/dukerupert/famboard/internal/store"
	"github.com/dukerupert/famboard/internal/websocket"
)

type MemberHandler struct {
	memberStore *store.MemberStore
	familyStore *store.FamilyStore
	taskStore   *store.TaskStore
	rewardStore *store.RewardStore
	hub         *websocket.Hub
	logger      *slog.Logger
}

func NewMemberHandler(ms *store.MemberStore, fs *store.FamilyStore, ts *store.TaskStore, rs *store.RewardStore, hub *websocket.Hub, logger *slog.Logger) *MemberHandler {
	return &MemberHandler{memberStore: ms, familyStore: fs, taskStore: ts, rewardStore: rs, hub: hub, logger: logger}
}

type meResponse struct {
	Member   *model.Member        `json:"member"`
	State    membership.State     `json:"state"`
	Family   *model.Family        `json:"family,omitempty"`
	Progress progression.Progress `json:"progress"`
}

func (h *MemberHandler) Me(w http.ResponseWriter, r *http.Request) {
	memberID := auth.MemberID(r.Context())
	m, err := h.memberStore.GetByID(memberID)
	if err != nil {
		writeStoreError(w, h.logger, err, "load member")
		return
	}
	if m == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "member not found"})
		return
	}
	state, f, err := h.familyStore.StateOf(memberID)
	if err != nil {
		writeStoreError(w, h.logger, err, "load family")
		return
	}
	if f != nil && state.Status == membership.StatusPendingApproval {
		f = &model.Family{ID: f.ID, Name: f.Name}
	}

	writeJSON(w, http.StatusOK, meResponse{
		Member:   m,
		State:    state,
		Family:   f,
		Progress: progression.ProgressToNextLevel(*m),
	})
}

type profileRequest struct {
	GivenName   string `json:"given_name"`
	FamilyName  string `json:"family_name"`
	AvatarEmoji string `json:"avatar_emoji"`
}

func (h *MemberHandler) UpdateMe(w http.ResponseWriter, r *http.Request) {
	var req profileRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.GivenName == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "given_name is required"})
		return
	}

	ac, _ := auth.FromContext(r.Context())
	m, err := h.memberStore.UpdateProfile(ac.MemberID, req.GivenName, req.FamilyName, req.AvatarEmoji)
	if err != nil {
		writeStoreError(w, h.logger, err, "update profile")
		return
	}
	if ac.FamilyID != 0 {
		h.hub.Broadcast(ac.FamilyID, websocket.NewMessage("member", "updated", m.ID, nil))
	}
	writeJSON(w, http.StatusOK, m)
}

// familyMember loads the member named by the {id} path value, answering 404
// unless it belongs to the caller's family.
func (h *MemberHandler) familyMember(w http.ResponseWriter, r *http.Request) (*model.Member, bool) {
	id, err := parseIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return nil, false
	}
	m, err := h.memberStore.GetByID(id)
	if err != nil {
		writeStoreError(w, h.logger, err, "load member")
		return nil, false
	}
	familyID := auth.FamilyID(r.Context())
	if m == nil || m.FamilyID == nil || *m.FamilyID != familyID {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "member not found"})
		return nil, false
	}
	return m, true
}

type progressResponse struct {
	Member     *model.Member            `json:"member"`
	Progress   progression.Progress     `json:"progress"`
	Balance    *model.PointBalance      `json:"balance"`
	NextReward *progression.RewardGoal  `json:"next_reward"`
	History    []model.RewardRedemption `json:"redemptions"`
}

// Progress reports level progress, point balance and the next reward the
// member is saving for. The goal is measured against spendable points.
func (h *MemberHandler) Progress(w http.ResponseWriter, r *http.Request) {
	m, ok := h.familyMember(w, r)
	if !ok {
		return
	}

	balance, err := h.rewardStore.GetPointBalance(m.ID)
	if err != nil {
		writeStoreError(w, h.logger, err, "load balance")
		return
	}
	rewards, err := h.rewardStore.ListByFamily(*m.FamilyID, false)
	if err != nil {
		writeStoreError(w, h.logger, err, "list rewards")
		return
	}
	history, err := h.rewardStore.ListRedemptionsByMember(m.ID)
	if err != nil {
		writeStoreError(w, h.logger, err, "list redemptions")
		return
	}
	if history == nil {
		history = []model.RewardRedemption{}
	}

	spendable := *m
	spendable.Points = balance.Balance
	resp := progressResponse{
		Member:   m,
		Progress: progression.ProgressToNextLevel(*m),
		Balance:  balance,
		History:  history,
	}
	if goal, ok := progression.NextAffordableReward(spendable, rewards); ok {
		resp.NextReward = &goal
	}
	writeJSON(w, http.StatusOK, resp)
}

// Focus returns up to limit open tasks for the member matching the requested
// energy.
func (h *MemberHandler) Focus(w http.ResponseWriter, r *http.Request) {
	m, ok := h.familyMember(w, r)
	if !ok {
		return
	}

	energy, err := progression.ParseEnergy(r.URL.Query().Get("energy"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "energy must be low, medium or high"})
		return
	}
	limit := progression.DefaultFocusSize
	if s := r.URL.Query().Get("limit"); s != "" {
		limit, err = strconv.Atoi(s)
		if err != nil || limit <= 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "limit must be a positive integer"})
			return
		}
	}

	tasks, err := h.taskStore.ListByAssignee(m.ID)
	if err != nil {
		writeStoreError(w, h.logger, err, "list tasks")
		return
	}
	focus := slices.Collect(progression.SelectFocusTasks(tasks, energy, limit))
	if focus == nil {
		focus = []model.Task{}
	}
	writeJSON(w, http.StatusOK, focus)
}

// ResetProgress zeroes a member's points, level and streak. Owner only.
func (h *MemberHandler) ResetProgress(w http.ResponseWriter, r *http.Request) {
	m, ok := h.familyMember(w, r)
	if !ok {
		return
	}

	reset, err := h.memberStore.ResetProgress(m.ID)
	if err != nil {
		writeStoreError(w, h.logger, err, "reset progress")
		return
	}
	h.logger.Info("progress reset", "member_id", m.ID, "by", auth.MemberID(r.Context()))
	h.hub.Broadcast(*m.FamilyID, websocket.NewMessage("member", "progress_reset", m.ID, nil))
	writeJSON(w, http.StatusOK, reset)
}
