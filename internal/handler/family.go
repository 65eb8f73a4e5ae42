package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/dukerupert/famboard/internal/auth"
	"github.com/dukerupert/famboard/internal/membership"
	"github.com/dukerupert/famboard/internal/model"
	"github.com/dukerupert/famboard/internal/notify"
	"github.com/dukerupert/famboard/internal/store"
	"github.com/dukerupert/famboard/internal/websocket"
)

const notifyTimeout = 10 * time.Second

type FamilyHandler struct {
	familyStore *store.FamilyStore
	memberStore *store.MemberStore
	hub         *websocket.Hub
	notifier    notify.Notifier
	logger      *slog.Logger
}

func NewFamilyHandler(fs *store.FamilyStore, ms *store.MemberStore, hub *websocket.Hub, n notify.Notifier, logger *slog.Logger) *FamilyHandler {
	if n == nil {
		n = notify.Nop{}
	}
	return &FamilyHandler{familyStore: fs, memberStore: ms, hub: hub, notifier: n, logger: logger}
}

type familyResponse struct {
	State   membership.State `json:"state"`
	Family  *model.Family    `json:"family"`
	Members []model.Member   `json:"members,omitempty"`
	Pending []model.Member   `json:"pending,omitempty"`
}

func (h *FamilyHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	memberID := auth.MemberID(r.Context())
	f, err := h.familyStore.Create(memberID, req.Name)
	if err != nil {
		writeStoreError(w, h.logger, err, "create family")
		return
	}
	h.logger.Info("family created", "family_id", f.ID, "owner_id", memberID)

	h.respondFamily(w, http.StatusCreated, memberID, f)
}

func (h *FamilyHandler) Get(w http.ResponseWriter, r *http.Request) {
	memberID := auth.MemberID(r.Context())
	_, f, err := h.familyStore.StateOf(memberID)
	if err != nil {
		writeStoreError(w, h.logger, err, "load family")
		return
	}
	if f == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not in a family"})
		return
	}
	h.respondFamily(w, http.StatusOK, memberID, f)
}

// respondFamily shapes the family for the caller: pending requesters only
// see its name, and only the owner sees the join code and pending list.
func (h *FamilyHandler) respondFamily(w http.ResponseWriter, status int, memberID int64, f *model.Family) {
	state := membership.StateOf(memberID, f)
	resp := familyResponse{State: state}

	switch state.Status {
	case membership.StatusPendingApproval:
		resp.Family = &model.Family{ID: f.ID, Name: f.Name}
	case membership.StatusMember, membership.StatusOwner:
		shown := f.Clone()
		members, err := h.memberStore.ListByFamily(f.ID)
		if err != nil {
			writeStoreError(w, h.logger, err, "list members")
			return
		}
		resp.Members = members
		if state.Status == membership.StatusOwner {
			pending, err := h.memberStore.ListPending(f.ID)
			if err != nil {
				writeStoreError(w, h.logger, err, "list pending")
				return
			}
			resp.Pending = pending
		} else {
			shown.JoinCode = ""
			shown.PendingMembers = nil
		}
		resp.Family = &shown
	}
	writeJSON(w, status, resp)
}

func (h *FamilyHandler) Join(w http.ResponseWriter, r *http.Request) {
	var req struct {
		JoinCode string `json:"join_code"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	code := strings.TrimSpace(req.JoinCode)
	if code == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "join_code is required"})
		return
	}

	memberID := auth.MemberID(r.Context())
	f, err := h.familyStore.RequestJoin(memberID, code)
	if err != nil {
		writeStoreError(w, h.logger, err, "request to join")
		return
	}

	h.hub.Broadcast(f.ID, websocket.NewMessage("family", "join_requested", memberID, nil))
	h.notifyJoinRequested(f, memberID)

	writeJSON(w, http.StatusAccepted, familyResponse{
		State:  membership.StateOf(memberID, f),
		Family: &model.Family{ID: f.ID, Name: f.Name},
	})
}

func (h *FamilyHandler) Approve(w http.ResponseWriter, r *http.Request) {
	targetID, err := parseIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return
	}

	ac, _ := auth.FromContext(r.Context())
	f, err := h.familyStore.Approve(ac.FamilyID, ac.MemberID, targetID)
	if err != nil {
		writeStoreError(w, h.logger, err, "approve request")
		return
	}

	h.hub.Broadcast(f.ID, websocket.NewMessage("family", "member_joined", targetID, nil))
	h.notifyJoinApproved(f, targetID)

	h.respondFamily(w, http.StatusOK, ac.MemberID, f)
}

func (h *FamilyHandler) Reject(w http.ResponseWriter, r *http.Request) {
	targetID, err := parseIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return
	}

	ac, _ := auth.FromContext(r.Context())
	f, err := h.familyStore.Reject(ac.FamilyID, ac.MemberID, targetID)
	if err != nil {
		writeStoreError(w, h.logger, err, "reject request")
		return
	}

	h.hub.Broadcast(f.ID, websocket.NewMessage("family", "request_rejected", targetID, nil))
	h.respondFamily(w, http.StatusOK, ac.MemberID, f)
}

func (h *FamilyHandler) Leave(w http.ResponseWriter, r *http.Request) {
	ac, _ := auth.FromContext(r.Context())
	f, err := h.familyStore.Leave(ac.FamilyID, ac.MemberID)
	if err != nil {
		writeStoreError(w, h.logger, err, "leave family")
		return
	}

	if f == nil {
		h.hub.CloseFamily(ac.FamilyID)
		h.logger.Info("family destroyed", "family_id", ac.FamilyID)
		writeJSON(w, http.StatusOK, map[string]any{"destroyed": true})
		return
	}

	h.hub.Evict(f.ID, ac.MemberID)
	h.hub.Broadcast(f.ID, websocket.NewMessage("family", "member_left", ac.MemberID, map[string]any{
		"owner_id": f.OwnerID,
	}))
	if ac.Role == auth.RoleOwner {
		h.logger.Info("ownership transferred", "family_id", f.ID, "from", ac.MemberID, "to", f.OwnerID)
	}
	writeJSON(w, http.StatusOK, map[string]any{"destroyed": false})
}

// AddMember creates a profile without login credentials, typically for a
// child, and admits it directly.
func (h *FamilyHandler) AddMember(w http.ResponseWriter, r *http.Request) {
	var req profileRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.GivenName) == "" || strings.TrimSpace(req.FamilyName) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "given_name and family_name are required"})
		return
	}

	ac, _ := auth.FromContext(r.Context())
	m, err := h.familyStore.AddMemberProfile(ac.FamilyID, ac.MemberID, req.GivenName, req.FamilyName, req.AvatarEmoji)
	if err != nil {
		writeStoreError(w, h.logger, err, "add member")
		return
	}

	h.hub.Broadcast(ac.FamilyID, websocket.NewMessage("family", "member_added", m.ID, nil))
	writeJSON(w, http.StatusCreated, m)
}

func (h *FamilyHandler) RemoveMember(w http.ResponseWriter, r *http.Request) {
	targetID, err := parseIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return
	}

	ac, _ := auth.FromContext(r.Context())
	if _, err := h.familyStore.RemoveMember(ac.FamilyID, ac.MemberID, targetID); err != nil {
		writeStoreError(w, h.logger, err, "remove member")
		return
	}

	h.hub.Evict(ac.FamilyID, targetID)
	h.hub.Broadcast(ac.FamilyID, websocket.NewMessage("family", "member_removed", targetID, nil))
	w.WriteHeader(http.StatusNoContent)
}

// Notification failures are logged and never fail the request.
func (h *FamilyHandler) notifyJoinRequested(f *model.Family, requesterID int64) {
	owner, err := h.memberStore.GetByID(f.OwnerID)
	if err != nil || owner == nil {
		h.logger.Warn("load owner for notification", "family_id", f.ID, "error", err)
		return
	}
	requester, err := h.memberStore.GetByID(requesterID)
	if err != nil || requester == nil {
		h.logger.Warn("load requester for notification", "member_id", requesterID, "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
	defer cancel()
	if err := h.notifier.JoinRequested(ctx, *owner, *requester, *f); err != nil {
		h.logger.Warn("join request email", "family_id", f.ID, "error", err)
	}
}

func (h *FamilyHandler) notifyJoinApproved(f *model.Family, memberID int64) {
	m, err := h.memberStore.GetByID(memberID)
	if err != nil || m == nil {
		h.logger.Warn("load member for notification", "member_id", memberID, "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
	defer cancel()
	if err := h.notifier.JoinApproved(ctx, *m, *f); err != nil {
		h.logger.Warn("approval email", "family_id", f.ID, "error", err)
	}
}
