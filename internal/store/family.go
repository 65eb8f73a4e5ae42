package store

import (
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/dukerupert/famboard/internal/membership"
	"github.com/dukerupert/famboard/internal/model"
)

type FamilyStore struct {
	db *sql.DB
}

func NewFamilyStore(db *sql.DB) *FamilyStore {
	return &FamilyStore{db: db}
}

// defaultRewards are seeded into every new family.
var defaultRewards = []struct {
	title string
	emoji string
	cost  int
}{
	{"Pick the movie", "🎬", 50},
	{"Order a favorite meal", "🍕", 100},
	{"Chore-free day", "🏖️", 150},
	{"Small purchase", "🎁", 200},
	{"Special outing", "🎉", 300},
}

const familyCols = `id, name, join_code, owner_id, created_at, updated_at`

func scanFamily(sc scanner) (*model.Family, error) {
	var f model.Family
	if err := sc.Scan(&f.ID, &f.Name, &f.JoinCode, &f.OwnerID, &f.CreatedAt, &f.UpdatedAt); err != nil {
		return nil, err
	}
	return &f, nil
}

// loadFamily reads a family with its roster and pending list. It returns
// (nil, nil) when no family matches.
func loadFamily(q querier, where string, arg any) (*model.Family, error) {
	f, err := scanFamily(q.QueryRow(`SELECT `+familyCols+` FROM families WHERE `+where, arg))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get family: %w", err)
	}

	rows, err := q.Query(
		`SELECT member_id, status FROM family_memberships WHERE family_id = ? ORDER BY position ASC, member_id ASC`,
		f.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("list memberships: %w", err)
	}
	defer rows.Close()

	f.Members = []int64{}
	f.PendingMembers = []int64{}
	for rows.Next() {
		var id int64
		var status string
		if err := rows.Scan(&id, &status); err != nil {
			return nil, fmt.Errorf("scan membership: %w", err)
		}
		if status == "approved" {
			f.Members = append(f.Members, id)
		} else {
			f.PendingMembers = append(f.PendingMembers, id)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return f, nil
}

func familyForMember(q querier, memberID int64) (*model.Family, error) {
	var familyID int64
	err := q.QueryRow(`SELECT family_id FROM family_memberships WHERE member_id = ?`, memberID).Scan(&familyID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get membership: %w", err)
	}
	return loadFamily(q, "id = ?", familyID)
}

func mustLoadFamily(q querier, id int64) (*model.Family, error) {
	f, err := loadFamily(q, "id = ?", id)
	if err != nil {
		return nil, err
	}
	if f == nil {
		return nil, fmt.Errorf("%w: family %d", model.ErrNotFound, id)
	}
	return f, nil
}

func (s *FamilyStore) GetByID(id int64) (*model.Family, error) {
	return loadFamily(s.db, "id = ?", id)
}

func (s *FamilyStore) GetByJoinCode(code string) (*model.Family, error) {
	return loadFamily(s.db, "join_code = ?", code)
}

// GetForMember returns the family memberID belongs to or has requested to
// join, or nil.
func (s *FamilyStore) GetForMember(memberID int64) (*model.Family, error) {
	return familyForMember(s.db, memberID)
}

// StateOf returns the lifecycle state of memberID along with its family.
func (s *FamilyStore) StateOf(memberID int64) (membership.State, *model.Family, error) {
	f, err := familyForMember(s.db, memberID)
	if err != nil {
		return membership.State{}, nil, err
	}
	return membership.StateOf(memberID, f), f, nil
}

// Create founds a new family owned by founderID and seeds its default
// rewards. An empty name falls back to the founder's family name.
func (s *FamilyStore) Create(founderID int64, name string) (*model.Family, error) {
	var familyID int64
	err := inTx(s.db, func(tx *sql.Tx) error {
		founder, err := mustGetMember(tx, founderID)
		if err != nil {
			return err
		}
		current, err := familyForMember(tx, founderID)
		if err != nil {
			return err
		}

		t, err := membership.CreateFamily(*founder, membership.StateOf(founderID, current), name)
		if err != nil {
			return err
		}

		result, err := tx.Exec(
			`INSERT INTO families (name, join_code, owner_id) VALUES (?, ?, ?)`,
			t.Family.Name, uuid.NewString(), t.Family.OwnerID,
		)
		if err != nil {
			return fmt.Errorf("insert family: %w", err)
		}
		familyID, err = result.LastInsertId()
		if err != nil {
			return fmt.Errorf("last insert id: %w", err)
		}
		t.Family.ID = familyID

		for _, r := range defaultRewards {
			if _, err := tx.Exec(
				`INSERT INTO rewards (family_id, title, emoji, point_cost) VALUES (?, ?, ?, ?)`,
				familyID, r.title, r.emoji, r.cost,
			); err != nil {
				return fmt.Errorf("seed reward: %w", err)
			}
		}
		return apply(tx, t)
	})
	if err != nil {
		return nil, err
	}
	return s.GetByID(familyID)
}

// RequestJoin files a join request for the family with the given join code.
func (s *FamilyStore) RequestJoin(memberID int64, joinCode string) (*model.Family, error) {
	var familyID int64
	err := inTx(s.db, func(tx *sql.Tx) error {
		f, err := loadFamily(tx, "join_code = ?", joinCode)
		if err != nil {
			return err
		}
		if f == nil {
			return fmt.Errorf("%w: no family with that join code", model.ErrNotFound)
		}
		if _, err := mustGetMember(tx, memberID); err != nil {
			return err
		}
		current, err := familyForMember(tx, memberID)
		if err != nil {
			return err
		}

		t, err := membership.RequestJoin(*f, memberID, membership.StateOf(memberID, current))
		if err != nil {
			return err
		}
		familyID = f.ID
		return apply(tx, t)
	})
	if err != nil {
		return nil, err
	}
	return s.GetByID(familyID)
}

func (s *FamilyStore) Approve(familyID, actorID, targetID int64) (*model.Family, error) {
	return s.transition(familyID, func(tx *sql.Tx, f model.Family) (membership.Transition, error) {
		return membership.Approve(f, actorID, targetID)
	})
}

func (s *FamilyStore) Reject(familyID, actorID, targetID int64) (*model.Family, error) {
	return s.transition(familyID, func(tx *sql.Tx, f model.Family) (membership.Transition, error) {
		return membership.Reject(f, actorID, targetID)
	})
}

// Leave removes memberID from its family. When the owner leaves, ownership
// passes to the most senior remaining member with login credentials. The
// returned family is nil when the family was destroyed.
func (s *FamilyStore) Leave(familyID, memberID int64) (*model.Family, error) {
	return s.transition(familyID, func(tx *sql.Tx, f model.Family) (membership.Transition, error) {
		credentialed, err := credentialedMembers(tx, f.ID)
		if err != nil {
			return membership.Transition{}, err
		}
		return membership.Leave(f, memberID, func(id int64) bool { return credentialed[id] })
	})
}

// AddMemberProfile creates a virtual member and admits it directly.
func (s *FamilyStore) AddMemberProfile(familyID, actorID int64, givenName, familyName, avatar string) (*model.Member, error) {
	var profileID int64
	_, err := s.transition(familyID, func(tx *sql.Tx, f model.Family) (membership.Transition, error) {
		if f.OwnerID != actorID {
			return membership.Transition{}, membership.ErrNotOwner
		}
		id, err := insertMember(tx, nil, "", givenName, familyName, avatar)
		if err != nil {
			return membership.Transition{}, err
		}
		profile, err := mustGetMember(tx, id)
		if err != nil {
			return membership.Transition{}, err
		}
		profileID = id
		return membership.AddMemberProfile(f, actorID, *profile)
	})
	if err != nil {
		return nil, err
	}
	return getMember(s.db, profileID)
}

// RemoveMember removes targetID from the family. Virtual members are deleted.
func (s *FamilyStore) RemoveMember(familyID, actorID, targetID int64) (*model.Family, error) {
	return s.transition(familyID, func(tx *sql.Tx, f model.Family) (membership.Transition, error) {
		target, err := mustGetMember(tx, targetID)
		if err != nil {
			return membership.Transition{}, err
		}
		return membership.RemoveMember(f, actorID, *target)
	})
}

// transition loads the family, applies fn's transition and persists it in
// one transaction.
func (s *FamilyStore) transition(familyID int64, fn func(tx *sql.Tx, f model.Family) (membership.Transition, error)) (*model.Family, error) {
	var destroyed bool
	err := inTx(s.db, func(tx *sql.Tx) error {
		f, err := mustLoadFamily(tx, familyID)
		if err != nil {
			return err
		}
		t, err := fn(tx, *f)
		if err != nil {
			return err
		}
		destroyed = t.Destroyed
		return apply(tx, t)
	})
	if err != nil {
		return nil, err
	}
	if destroyed {
		return nil, nil
	}
	return s.GetByID(familyID)
}

func credentialedMembers(q querier, familyID int64) (map[int64]bool, error) {
	rows, err := q.Query(
		`SELECT m.id FROM members m
		 JOIN family_memberships fm ON fm.member_id = m.id
		 WHERE fm.family_id = ? AND m.email IS NOT NULL`,
		familyID,
	)
	if err != nil {
		return nil, fmt.Errorf("list credentialed members: %w", err)
	}
	defer rows.Close()

	ids := make(map[int64]bool)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan member id: %w", err)
		}
		ids[id] = true
	}
	return ids, rows.Err()
}

// apply persists a membership transition: the subject's member record, then
// either the family's deletion or its owner and rewritten roster.
func apply(tx *sql.Tx, t membership.Transition) error {
	switch t.Effect {
	case membership.EffectAttach:
		if _, err := tx.Exec(`UPDATE members SET family_id = ? WHERE id = ?`, t.Family.ID, t.Subject); err != nil {
			return fmt.Errorf("attach member: %w", err)
		}
	case membership.EffectDetach:
		if _, err := tx.Exec(`UPDATE members SET family_id = NULL WHERE id = ?`, t.Subject); err != nil {
			return fmt.Errorf("detach member: %w", err)
		}
	case membership.EffectDelete:
		if _, err := tx.Exec(`DELETE FROM members WHERE id = ?`, t.Subject); err != nil {
			return fmt.Errorf("delete member: %w", err)
		}
	}

	if t.Destroyed {
		if _, err := tx.Exec(`DELETE FROM families WHERE id = ?`, t.Family.ID); err != nil {
			return fmt.Errorf("delete family: %w", err)
		}
		return nil
	}

	if _, err := tx.Exec(`UPDATE families SET owner_id = ? WHERE id = ?`, t.Family.OwnerID, t.Family.ID); err != nil {
		return fmt.Errorf("update family owner: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM family_memberships WHERE family_id = ?`, t.Family.ID); err != nil {
		return fmt.Errorf("clear roster: %w", err)
	}
	for i, id := range t.Family.Members {
		if err := insertMembership(tx, t.Family.ID, id, "approved", i); err != nil {
			return err
		}
	}
	for i, id := range t.Family.PendingMembers {
		if err := insertMembership(tx, t.Family.ID, id, "pending", i); err != nil {
			return err
		}
	}
	return nil
}

func insertMembership(tx *sql.Tx, familyID, memberID int64, status string, position int) error {
	_, err := tx.Exec(
		`INSERT INTO family_memberships (family_id, member_id, status, position) VALUES (?, ?, ?, ?)`,
		familyID, memberID, status, position,
	)
	if err != nil {
		return fmt.Errorf("insert membership: %w", err)
	}
	return nil
}
