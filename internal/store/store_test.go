package store

import (
	"database/sql"
	"testing"

	"github.com/dukerupert/famboard/internal/database"
	"github.com/dukerupert/famboard/internal/model"
)

type testStores struct {
	db       *sql.DB
	members  *MemberStore
	families *FamilyStore
	tasks    *TaskStore
	rewards  *RewardStore
}

func setupTestDB(t *testing.T) testStores {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return testStores{
		db:       db,
		members:  NewMemberStore(db),
		families: NewFamilyStore(db),
		tasks:    NewTaskStore(db),
		rewards:  NewRewardStore(db),
	}
}

func register(t *testing.T, s testStores, email, given, family string) *model.Member {
	t.Helper()
	m, err := s.members.Create(email, "hash", given, family, "")
	if err != nil {
		t.Fatalf("create member %s: %v", email, err)
	}
	return m
}

func setPoints(t *testing.T, s testStores, memberID int64, points int) {
	t.Helper()
	if _, err := s.db.Exec(`UPDATE members SET points = ?, level = ? WHERE id = ?`, points, points/100+1, memberID); err != nil {
		t.Fatalf("set points: %v", err)
	}
}
