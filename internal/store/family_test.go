package store

import (
	"errors"
	"slices"
	"testing"

	"github.com/dukerupert/famboard/internal/membership"
	"github.com/dukerupert/famboard/internal/model"
)

func TestFamilyCreate(t *testing.T) {
	s := setupTestDB(t)
	owner := register(t, s, "ana@example.com", "Ana", "Lopez")

	f, err := s.families.Create(owner.ID, "")
	if err != nil {
		t.Fatalf("create family: %v", err)
	}
	if f.Name != "Lopez's Family" {
		t.Errorf("name = %q, want %q", f.Name, "Lopez's Family")
	}
	if f.OwnerID != owner.ID {
		t.Errorf("owner = %d, want %d", f.OwnerID, owner.ID)
	}
	if !slices.Equal(f.Members, []int64{owner.ID}) {
		t.Errorf("members = %v, want [%d]", f.Members, owner.ID)
	}
	if f.JoinCode == "" {
		t.Error("expected join code")
	}

	rewards, err := s.rewards.ListByFamily(f.ID, true)
	if err != nil {
		t.Fatalf("list rewards: %v", err)
	}
	if len(rewards) != 5 {
		t.Fatalf("seeded rewards = %d, want 5", len(rewards))
	}
	for i, want := range []int{50, 100, 150, 200, 300} {
		if rewards[i].PointCost != want {
			t.Errorf("reward[%d] cost = %d, want %d", i, rewards[i].PointCost, want)
		}
	}

	m, _ := s.members.GetByID(owner.ID)
	if m.FamilyID == nil || *m.FamilyID != f.ID {
		t.Errorf("member family_id = %v, want %d", m.FamilyID, f.ID)
	}

	state, _, err := s.families.StateOf(owner.ID)
	if err != nil {
		t.Fatalf("state of: %v", err)
	}
	if state.Status != membership.StatusOwner {
		t.Errorf("status = %s, want owner", state.Status)
	}

	if _, err := s.families.Create(owner.ID, "Second"); !errors.Is(err, model.ErrInvalidState) {
		t.Errorf("second create error = %v, want ErrInvalidState", err)
	}
}

func TestFamilyJoinApprove(t *testing.T) {
	s := setupTestDB(t)
	owner := register(t, s, "ana@example.com", "Ana", "Lopez")
	joiner := register(t, s, "ben@example.com", "Ben", "Lopez")
	f, _ := s.families.Create(owner.ID, "Lopez")

	pending, err := s.families.RequestJoin(joiner.ID, f.JoinCode)
	if err != nil {
		t.Fatalf("request join: %v", err)
	}
	if !slices.Equal(pending.PendingMembers, []int64{joiner.ID}) {
		t.Errorf("pending = %v, want [%d]", pending.PendingMembers, joiner.ID)
	}
	state, _, _ := s.families.StateOf(joiner.ID)
	if state.Status != membership.StatusPendingApproval {
		t.Errorf("status = %s, want pending_approval", state.Status)
	}
	m, _ := s.members.GetByID(joiner.ID)
	if m.FamilyID != nil {
		t.Error("pending member must not be attached")
	}

	if _, err := s.families.RequestJoin(joiner.ID, f.JoinCode); !errors.Is(err, model.ErrInvalidState) {
		t.Errorf("duplicate request error = %v, want ErrInvalidState", err)
	}
	if _, err := s.families.Approve(f.ID, joiner.ID, joiner.ID); !errors.Is(err, membership.ErrNotOwner) {
		t.Errorf("non-owner approve error = %v, want ErrNotOwner", err)
	}

	approved, err := s.families.Approve(f.ID, owner.ID, joiner.ID)
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if !slices.Equal(approved.Members, []int64{owner.ID, joiner.ID}) {
		t.Errorf("members = %v, want [%d %d]", approved.Members, owner.ID, joiner.ID)
	}
	if len(approved.PendingMembers) != 0 {
		t.Errorf("pending = %v, want empty", approved.PendingMembers)
	}
	m, _ = s.members.GetByID(joiner.ID)
	if m.FamilyID == nil || *m.FamilyID != f.ID {
		t.Errorf("family_id = %v, want %d", m.FamilyID, f.ID)
	}

	listed, err := s.members.ListByFamily(f.ID)
	if err != nil {
		t.Fatalf("list members: %v", err)
	}
	if len(listed) != 2 || listed[0].ID != owner.ID {
		t.Errorf("listed = %d members, want owner first of 2", len(listed))
	}
}

func TestFamilyRequestJoinUnknownCode(t *testing.T) {
	s := setupTestDB(t)
	m := register(t, s, "ana@example.com", "Ana", "Lopez")

	if _, err := s.families.RequestJoin(m.ID, "nope"); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}

func TestFamilyReject(t *testing.T) {
	s := setupTestDB(t)
	owner := register(t, s, "ana@example.com", "Ana", "Lopez")
	joiner := register(t, s, "ben@example.com", "Ben", "Ruiz")
	f, _ := s.families.Create(owner.ID, "")
	s.families.RequestJoin(joiner.ID, f.JoinCode)

	rejected, err := s.families.Reject(f.ID, owner.ID, joiner.ID)
	if err != nil {
		t.Fatalf("reject: %v", err)
	}
	if len(rejected.PendingMembers) != 0 {
		t.Errorf("pending = %v, want empty", rejected.PendingMembers)
	}
	state, _, _ := s.families.StateOf(joiner.ID)
	if state.Status != membership.StatusNoFamily {
		t.Errorf("status = %s, want no_family", state.Status)
	}

	// A rejected member may ask again.
	if _, err := s.families.RequestJoin(joiner.ID, f.JoinCode); err != nil {
		t.Errorf("request again: %v", err)
	}
}

func TestFamilyOwnerLeaveSuccession(t *testing.T) {
	s := setupTestDB(t)
	owner := register(t, s, "ana@example.com", "Ana", "Lopez")
	f, _ := s.families.Create(owner.ID, "")
	kid, err := s.families.AddMemberProfile(f.ID, owner.ID, "Leo", "Lopez", "🦁")
	if err != nil {
		t.Fatalf("add profile: %v", err)
	}
	adult := register(t, s, "ben@example.com", "Ben", "Lopez")
	s.families.RequestJoin(adult.ID, f.JoinCode)
	if _, err := s.families.Approve(f.ID, owner.ID, adult.ID); err != nil {
		t.Fatalf("approve: %v", err)
	}

	after, err := s.families.Leave(f.ID, owner.ID)
	if err != nil {
		t.Fatalf("leave: %v", err)
	}
	if after == nil {
		t.Fatal("family destroyed, want survivor")
	}
	if after.OwnerID != adult.ID {
		t.Errorf("owner = %d, want credentialed member %d", after.OwnerID, adult.ID)
	}
	if !slices.Equal(after.Members, []int64{kid.ID, adult.ID}) {
		t.Errorf("members = %v, want [%d %d]", after.Members, kid.ID, adult.ID)
	}
	m, _ := s.members.GetByID(owner.ID)
	if m.FamilyID != nil {
		t.Error("leaver still attached")
	}
}

func TestFamilyLastMemberLeaveDestroys(t *testing.T) {
	s := setupTestDB(t)
	owner := register(t, s, "ana@example.com", "Ana", "Lopez")
	f, _ := s.families.Create(owner.ID, "")
	if _, err := s.tasks.Create(f.ID, owner.ID, "Dishes", "", "", "low"); err != nil {
		t.Fatalf("create task: %v", err)
	}

	after, err := s.families.Leave(f.ID, owner.ID)
	if err != nil {
		t.Fatalf("leave: %v", err)
	}
	if after != nil {
		t.Errorf("family = %v, want destroyed", after)
	}

	got, err := s.families.GetByID(f.ID)
	if err != nil {
		t.Fatalf("get family: %v", err)
	}
	if got != nil {
		t.Error("family row still present")
	}
	rewards, _ := s.rewards.ListByFamily(f.ID, true)
	if len(rewards) != 0 {
		t.Errorf("rewards = %d, want 0", len(rewards))
	}
	tasks, _ := s.tasks.ListByFamily(f.ID)
	if len(tasks) != 0 {
		t.Errorf("tasks = %d, want 0", len(tasks))
	}
	m, _ := s.members.GetByID(owner.ID)
	if m == nil || m.FamilyID != nil {
		t.Error("owner should survive detached")
	}
}

func TestFamilyOwnerLeaveNeedsCredentialedHeir(t *testing.T) {
	s := setupTestDB(t)
	owner := register(t, s, "ana@example.com", "Ana", "Lopez")
	f, _ := s.families.Create(owner.ID, "")
	kid, err := s.families.AddMemberProfile(f.ID, owner.ID, "Leo", "Lopez", "🦁")
	if err != nil {
		t.Fatalf("add profile: %v", err)
	}

	if _, err := s.families.Leave(f.ID, owner.ID); !errors.Is(err, model.ErrInvalidState) {
		t.Fatalf("error = %v, want ErrInvalidState", err)
	}
	got, _ := s.families.GetByID(f.ID)
	if got == nil || got.OwnerID != owner.ID {
		t.Fatalf("family = %+v, want unchanged with owner %d", got, owner.ID)
	}
	if !slices.Equal(got.Members, []int64{owner.ID, kid.ID}) {
		t.Errorf("members = %v, want [%d %d]", got.Members, owner.ID, kid.ID)
	}
	m, _ := s.members.GetByID(owner.ID)
	if m.FamilyID == nil || *m.FamilyID != f.ID {
		t.Error("owner should still be attached")
	}

	if _, err := s.families.RemoveMember(f.ID, owner.ID, kid.ID); err != nil {
		t.Fatalf("remove profile: %v", err)
	}
	after, err := s.families.Leave(f.ID, owner.ID)
	if err != nil {
		t.Fatalf("leave: %v", err)
	}
	if after != nil {
		t.Errorf("family = %v, want destroyed", after)
	}
}

func TestFamilyLeaveNonMember(t *testing.T) {
	s := setupTestDB(t)
	owner := register(t, s, "ana@example.com", "Ana", "Lopez")
	other := register(t, s, "ben@example.com", "Ben", "Ruiz")
	f, _ := s.families.Create(owner.ID, "")

	if _, err := s.families.Leave(f.ID, other.ID); !errors.Is(err, model.ErrInvalidState) {
		t.Errorf("error = %v, want ErrInvalidState", err)
	}
	if _, err := s.families.Leave(9999, owner.ID); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}

func TestFamilyRemoveMember(t *testing.T) {
	s := setupTestDB(t)
	owner := register(t, s, "ana@example.com", "Ana", "Lopez")
	f, _ := s.families.Create(owner.ID, "")
	kid, _ := s.families.AddMemberProfile(f.ID, owner.ID, "Leo", "Lopez", "")
	adult := register(t, s, "ben@example.com", "Ben", "Lopez")
	s.families.RequestJoin(adult.ID, f.JoinCode)
	s.families.Approve(f.ID, owner.ID, adult.ID)

	if _, err := s.families.RemoveMember(f.ID, adult.ID, kid.ID); !errors.Is(err, membership.ErrNotOwner) {
		t.Errorf("non-owner remove error = %v, want ErrNotOwner", err)
	}
	if _, err := s.families.RemoveMember(f.ID, owner.ID, owner.ID); !errors.Is(err, model.ErrInvalidState) {
		t.Errorf("remove owner error = %v, want ErrInvalidState", err)
	}

	after, err := s.families.RemoveMember(f.ID, owner.ID, kid.ID)
	if err != nil {
		t.Fatalf("remove virtual: %v", err)
	}
	if after.HasMember(kid.ID) {
		t.Error("virtual member still listed")
	}
	gone, _ := s.members.GetByID(kid.ID)
	if gone != nil {
		t.Error("virtual member record should be deleted")
	}

	after, err = s.families.RemoveMember(f.ID, owner.ID, adult.ID)
	if err != nil {
		t.Fatalf("remove credentialed: %v", err)
	}
	if after.HasMember(adult.ID) {
		t.Error("credentialed member still listed")
	}
	detached, _ := s.members.GetByID(adult.ID)
	if detached == nil {
		t.Fatal("credentialed member record should survive")
	}
	if detached.FamilyID != nil {
		t.Error("credentialed member still attached")
	}
}

func TestFamilyAddMemberProfileRequiresOwner(t *testing.T) {
	s := setupTestDB(t)
	owner := register(t, s, "ana@example.com", "Ana", "Lopez")
	f, _ := s.families.Create(owner.ID, "")
	adult := register(t, s, "ben@example.com", "Ben", "Lopez")
	s.families.RequestJoin(adult.ID, f.JoinCode)
	s.families.Approve(f.ID, owner.ID, adult.ID)

	if _, err := s.families.AddMemberProfile(f.ID, adult.ID, "Leo", "Lopez", ""); !errors.Is(err, membership.ErrNotOwner) {
		t.Errorf("error = %v, want ErrNotOwner", err)
	}
	if _, err := s.families.AddMemberProfile(f.ID, owner.ID, "", "Lopez", ""); !errors.Is(err, model.ErrInvalidState) {
		t.Errorf("missing name error = %v, want ErrInvalidState", err)
	}

	members, _ := s.members.ListByFamily(f.ID)
	if len(members) != 2 {
		t.Errorf("members = %d, want 2 (failed adds roll back)", len(members))
	}
}
