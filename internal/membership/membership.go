// Package membership implements the family membership lifecycle: creating a
// family, requesting to join, owner approval, leaving with owner succession,
// and owner-managed member profiles. Functions are pure: they take the
// current family and return the target state as a Transition, which the
// caller persists in a single transaction.
package membership

import (
	"fmt"
	"slices"
	"strings"

	"github.com/dukerupert/famboard/internal/model"
)

// ErrNotOwner is returned when an owner-only transition is attempted by
// anyone else.
var ErrNotOwner = fmt.Errorf("%w: actor is not the family owner", model.ErrInvalidState)

type Status string

const (
	StatusNoFamily        Status = "no_family"
	StatusPendingApproval Status = "pending_approval"
	StatusMember          Status = "member"
	StatusOwner           Status = "owner"
)

type State struct {
	Status   Status `json:"status"`
	FamilyID int64  `json:"family_id,omitempty"`
}

// StateOf derives the lifecycle state of memberID with respect to f. A nil
// family means the member is not associated with any family.
func StateOf(memberID int64, f *model.Family) State {
	if f == nil {
		return State{Status: StatusNoFamily}
	}
	switch {
	case f.OwnerID == memberID:
		return State{Status: StatusOwner, FamilyID: f.ID}
	case f.HasMember(memberID):
		return State{Status: StatusMember, FamilyID: f.ID}
	case f.HasPending(memberID):
		return State{Status: StatusPendingApproval, FamilyID: f.ID}
	}
	return State{Status: StatusNoFamily}
}

// Effect is what must happen to the subject's member record.
type Effect string

const (
	EffectNone   Effect = "none"
	EffectAttach Effect = "attach"
	EffectDetach Effect = "detach"
	EffectDelete Effect = "delete"
)

type Transition struct {
	Family    model.Family
	Destroyed bool
	Subject   int64
	Effect    Effect
}

// DefaultFamilyName names a family after its founder.
func DefaultFamilyName(founder model.Member) string {
	base := strings.TrimSpace(founder.FamilyName)
	if base == "" {
		base = strings.TrimSpace(founder.DisplayName)
	}
	if base == "" {
		return "My Family"
	}
	return base + "'s Family"
}

// CreateFamily makes founder the sole member and owner of a new family.
func CreateFamily(founder model.Member, state State, name string) (Transition, error) {
	if state.Status != StatusNoFamily {
		return Transition{}, fmt.Errorf("%w: member %d is already %s", model.ErrInvalidState, founder.ID, state.Status)
	}
	name = strings.TrimSpace(name)
	if name == "" {
		name = DefaultFamilyName(founder)
	}
	f := model.Family{
		Name:    name,
		OwnerID: founder.ID,
		Members: []int64{founder.ID},
	}
	if err := Validate(f); err != nil {
		return Transition{}, err
	}
	return Transition{Family: f, Subject: founder.ID, Effect: EffectAttach}, nil
}

// RequestJoin adds requesterID to the family's pending set.
func RequestJoin(f model.Family, requesterID int64, state State) (Transition, error) {
	if err := Validate(f); err != nil {
		return Transition{}, err
	}
	if f.HasMember(requesterID) || f.HasPending(requesterID) {
		return Transition{}, fmt.Errorf("%w: member %d already requested or joined family %d", model.ErrInvalidState, requesterID, f.ID)
	}
	if state.Status != StatusNoFamily {
		return Transition{}, fmt.Errorf("%w: member %d is already %s", model.ErrInvalidState, requesterID, state.Status)
	}

	next := f.Clone()
	next.PendingMembers = append(next.PendingMembers, requesterID)
	return finish(next, requesterID, EffectNone)
}

// Approve moves targetID from pending to members.
func Approve(f model.Family, actorID, targetID int64) (Transition, error) {
	if err := checkOwnerAction(f, actorID); err != nil {
		return Transition{}, err
	}
	if !f.HasPending(targetID) {
		return Transition{}, fmt.Errorf("%w: member %d has no pending request", model.ErrInvalidState, targetID)
	}

	next := f.Clone()
	next.PendingMembers = without(next.PendingMembers, targetID)
	next.Members = append(next.Members, targetID)
	return finish(next, targetID, EffectAttach)
}

// Reject drops targetID's pending request.
func Reject(f model.Family, actorID, targetID int64) (Transition, error) {
	if err := checkOwnerAction(f, actorID); err != nil {
		return Transition{}, err
	}
	if !f.HasPending(targetID) {
		return Transition{}, fmt.Errorf("%w: member %d has no pending request", model.ErrInvalidState, targetID)
	}

	next := f.Clone()
	next.PendingMembers = without(next.PendingMembers, targetID)
	return finish(next, targetID, EffectNone)
}

// Leave removes leaverID from the family. When the last member leaves the
// family is destroyed. When the owner leaves, ownership passes to the most
// senior remaining member for which canOwn returns true. If members remain
// but none of them can own the family, the owner may not leave. A nil canOwn
// accepts everyone.
func Leave(f model.Family, leaverID int64, canOwn func(memberID int64) bool) (Transition, error) {
	if err := Validate(f); err != nil {
		return Transition{}, err
	}
	if !f.HasMember(leaverID) {
		return Transition{}, fmt.Errorf("%w: member %d is not in family %d", model.ErrInvalidState, leaverID, f.ID)
	}

	next := f.Clone()
	next.Members = without(next.Members, leaverID)
	if len(next.Members) == 0 {
		return Transition{Family: next, Destroyed: true, Subject: leaverID, Effect: EffectDetach}, nil
	}
	if f.OwnerID == leaverID {
		heir, ok := successor(next.Members, canOwn)
		if !ok {
			return Transition{}, fmt.Errorf("%w: no remaining member of family %d can take ownership", model.ErrInvalidState, f.ID)
		}
		next.OwnerID = heir
	}
	return finish(next, leaverID, EffectDetach)
}

// AddMemberProfile admits a virtual member directly, bypassing approval.
func AddMemberProfile(f model.Family, actorID int64, profile model.Member) (Transition, error) {
	if err := checkOwnerAction(f, actorID); err != nil {
		return Transition{}, err
	}
	if !profile.IsVirtual() {
		return Transition{}, fmt.Errorf("%w: member %d has credentials and must request to join", model.ErrInvalidState, profile.ID)
	}
	if profile.FamilyID != nil || f.HasMember(profile.ID) || f.HasPending(profile.ID) {
		return Transition{}, fmt.Errorf("%w: member %d already belongs to a family", model.ErrInvalidState, profile.ID)
	}
	if strings.TrimSpace(profile.GivenName) == "" || strings.TrimSpace(profile.FamilyName) == "" {
		return Transition{}, fmt.Errorf("%w: given and family name are required", model.ErrInvalidState)
	}

	next := f.Clone()
	next.Members = append(next.Members, profile.ID)
	return finish(next, profile.ID, EffectAttach)
}

// RemoveMember removes target from the family. Virtual members are deleted
// outright; credentialed members are only detached.
func RemoveMember(f model.Family, actorID int64, target model.Member) (Transition, error) {
	if err := checkOwnerAction(f, actorID); err != nil {
		return Transition{}, err
	}
	if target.ID == f.OwnerID {
		return Transition{}, fmt.Errorf("%w: the owner cannot be removed", model.ErrInvalidState)
	}
	if !f.HasMember(target.ID) {
		return Transition{}, fmt.Errorf("%w: member %d is not in family %d", model.ErrInvalidState, target.ID, f.ID)
	}

	effect := EffectDetach
	if target.IsVirtual() {
		effect = EffectDelete
	}
	next := f.Clone()
	next.Members = without(next.Members, target.ID)
	return finish(next, target.ID, effect)
}

// Validate checks the family invariants.
func Validate(f model.Family) error {
	if len(f.Members) == 0 {
		return fmt.Errorf("%w: family %d has no members", model.ErrInvariantViolation, f.ID)
	}
	if !f.HasMember(f.OwnerID) {
		return fmt.Errorf("%w: owner %d is not a member of family %d", model.ErrInvariantViolation, f.OwnerID, f.ID)
	}
	seen := make(map[int64]bool, len(f.Members)+len(f.PendingMembers))
	for _, id := range f.Members {
		if seen[id] {
			return fmt.Errorf("%w: member %d listed twice", model.ErrInvariantViolation, id)
		}
		seen[id] = true
	}
	for _, id := range f.PendingMembers {
		if seen[id] {
			return fmt.Errorf("%w: member %d is both pending and listed", model.ErrInvariantViolation, id)
		}
		seen[id] = true
	}
	return nil
}

func checkOwnerAction(f model.Family, actorID int64) error {
	if err := Validate(f); err != nil {
		return err
	}
	if f.OwnerID != actorID {
		return ErrNotOwner
	}
	return nil
}

func finish(f model.Family, subject int64, effect Effect) (Transition, error) {
	if err := Validate(f); err != nil {
		return Transition{}, err
	}
	return Transition{Family: f, Subject: subject, Effect: effect}, nil
}

func successor(members []int64, canOwn func(int64) bool) (int64, bool) {
	if canOwn == nil {
		return members[0], true
	}
	for _, id := range members {
		if canOwn(id) {
			return id, true
		}
	}
	return 0, false
}

func without(ids []int64, id int64) []int64 {
	return slices.DeleteFunc(ids, func(v int64) bool { return v == id })
}
