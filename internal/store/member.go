package store

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/dukerupert/famboard/internal/model"
)

type MemberStore struct {
	db *sql.DB
}

func NewMemberStore(db *sql.DB) *MemberStore {
	return &MemberStore{db: db}
}

const memberCols = `m.id, m.email, m.given_name, m.family_name, m.display_name, m.avatar_emoji,
	m.family_id, m.points, m.level, m.streak, m.last_completed_at, m.created_at, m.updated_at`

func scanMember(sc scanner) (*model.Member, error) {
	var m model.Member
	var email sql.NullString
	var familyID sql.NullInt64
	var lastCompleted sql.NullTime

	err := sc.Scan(&m.ID, &email, &m.GivenName, &m.FamilyName, &m.DisplayName, &m.AvatarEmoji,
		&familyID, &m.Points, &m.Level, &m.Streak, &lastCompleted, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if email.Valid {
		m.Email = &email.String
	}
	if familyID.Valid {
		m.FamilyID = &familyID.Int64
	}
	if lastCompleted.Valid {
		m.LastCompletedAt = &lastCompleted.Time
	}
	return &m, nil
}

func displayName(givenName, familyName string) string {
	return strings.TrimSpace(strings.TrimSpace(givenName) + " " + strings.TrimSpace(familyName))
}

func getMember(q querier, id int64) (*model.Member, error) {
	m, err := scanMember(q.QueryRow(`SELECT `+memberCols+` FROM members m WHERE m.id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get member: %w", err)
	}
	return m, nil
}

// mustGetMember is getMember for transactional paths, where a missing member
// aborts the operation.
func mustGetMember(q querier, id int64) (*model.Member, error) {
	m, err := getMember(q, id)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, fmt.Errorf("%w: member %d", model.ErrNotFound, id)
	}
	return m, nil
}

func listMembers(q querier, where string, args ...any) ([]model.Member, error) {
	rows, err := q.Query(`SELECT `+memberCols+` FROM members m `+where, args...)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	defer rows.Close()

	var members []model.Member
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		members = append(members, *m)
	}
	return members, rows.Err()
}

func insertMember(q querier, email *string, passwordHash, givenName, familyName, avatar string) (int64, error) {
	if strings.TrimSpace(avatar) == "" {
		avatar = "👤"
	}
	var hash sql.NullString
	if passwordHash != "" {
		hash = sql.NullString{String: passwordHash, Valid: true}
	}
	var e sql.NullString
	if email != nil {
		e = sql.NullString{String: strings.ToLower(strings.TrimSpace(*email)), Valid: true}
	}

	result, err := q.Exec(
		`INSERT INTO members (email, password_hash, given_name, family_name, display_name, avatar_emoji)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		e, hash, strings.TrimSpace(givenName), strings.TrimSpace(familyName), displayName(givenName, familyName), avatar,
	)
	if err != nil {
		return 0, fmt.Errorf("insert member: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("last insert id: %w", err)
	}
	return id, nil
}

func saveProgress(q querier, m model.Member) error {
	_, err := q.Exec(
		`UPDATE members SET points = ?, level = ?, streak = ?, last_completed_at = ? WHERE id = ?`,
		m.Points, m.Level, m.Streak, nullTime(m.LastCompletedAt), m.ID,
	)
	if err != nil {
		return fmt.Errorf("save progress: %w", err)
	}
	return nil
}

// Create registers a credentialed member. The password must already be hashed.
func (s *MemberStore) Create(email, passwordHash, givenName, familyName, avatar string) (*model.Member, error) {
	id, err := insertMember(s.db, &email, passwordHash, givenName, familyName, avatar)
	if err != nil {
		return nil, err
	}
	return s.GetByID(id)
}

func (s *MemberStore) GetByID(id int64) (*model.Member, error) {
	return getMember(s.db, id)
}

func (s *MemberStore) GetByEmail(email string) (*model.Member, error) {
	m, err := scanMember(s.db.QueryRow(
		`SELECT `+memberCols+` FROM members m WHERE m.email = ?`,
		strings.ToLower(strings.TrimSpace(email)),
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get member by email: %w", err)
	}
	return m, nil
}

func (s *MemberStore) GetPasswordHash(id int64) (string, error) {
	var hash sql.NullString
	err := s.db.QueryRow(`SELECT password_hash FROM members WHERE id = ?`, id).Scan(&hash)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("%w: member %d", model.ErrNotFound, id)
	}
	if err != nil {
		return "", fmt.Errorf("query password hash: %w", err)
	}
	return hash.String, nil
}

// ListByFamily returns approved members of a family, most senior first.
func (s *MemberStore) ListByFamily(familyID int64) ([]model.Member, error) {
	return listMembers(s.db,
		`JOIN family_memberships fm ON fm.member_id = m.id
		 WHERE fm.family_id = ? AND fm.status = 'approved'
		 ORDER BY fm.position ASC`,
		familyID,
	)
}

// ListPending returns members waiting for approval, oldest request first.
func (s *MemberStore) ListPending(familyID int64) ([]model.Member, error) {
	return listMembers(s.db,
		`JOIN family_memberships fm ON fm.member_id = m.id
		 WHERE fm.family_id = ? AND fm.status = 'pending'
		 ORDER BY fm.position ASC`,
		familyID,
	)
}

func (s *MemberStore) UpdateProfile(id int64, givenName, familyName, avatar string) (*model.Member, error) {
	if strings.TrimSpace(avatar) == "" {
		avatar = "👤"
	}
	_, err := s.db.Exec(
		`UPDATE members SET given_name = ?, family_name = ?, display_name = ?, avatar_emoji = ? WHERE id = ?`,
		strings.TrimSpace(givenName), strings.TrimSpace(familyName), displayName(givenName, familyName), avatar, id,
	)
	if err != nil {
		return nil, fmt.Errorf("update member: %w", err)
	}
	return s.GetByID(id)
}

// ResetProgress is the administrative reset: points, level and streak return
// to their starting values and the member's redemptions are cleared so the
// balance is zero again.
func (s *MemberStore) ResetProgress(id int64) (*model.Member, error) {
	err := inTx(s.db, func(tx *sql.Tx) error {
		result, err := tx.Exec(
			`UPDATE members SET points = 0, level = 1, streak = 0, last_completed_at = NULL WHERE id = ?`,
			id,
		)
		if err != nil {
			return fmt.Errorf("reset progress: %w", err)
		}
		if n, _ := result.RowsAffected(); n == 0 {
			return fmt.Errorf("%w: member %d", model.ErrNotFound, id)
		}
		if _, err := tx.Exec(`DELETE FROM reward_redemptions WHERE member_id = ?`, id); err != nil {
			return fmt.Errorf("clear redemptions: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.GetByID(id)
}

// ResetStaleStreaks zeroes the streak of every member whose last completion
// is missing or earlier than cutoff. It returns the number of members reset.
func (s *MemberStore) ResetStaleStreaks(cutoff time.Time) (int64, error) {
	result, err := s.db.Exec(
		`UPDATE members SET streak = 0
		 WHERE streak > 0 AND (last_completed_at IS NULL OR last_completed_at < ?)`,
		cutoff.UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("reset stale streaks: %w", err)
	}
	return result.RowsAffected()
}
