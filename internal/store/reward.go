package store

import (
	"cmp"
	"database/sql"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/dukerupert/famboard/internal/model"
	"github.com/dukerupert/famboard/internal/progression"
)

type RewardStore struct {
	db *sql.DB
}

func NewRewardStore(db *sql.DB) *RewardStore {
	return &RewardStore{db: db}
}

const rewardCols = `id, family_id, title, description, emoji, point_cost, active, created_at`

func scanReward(sc scanner) (*model.Reward, error) {
	var r model.Reward
	var active int
	if err := sc.Scan(&r.ID, &r.FamilyID, &r.Title, &r.Description, &r.Emoji, &r.PointCost, &active, &r.CreatedAt); err != nil {
		return nil, err
	}
	r.Active = active == 1
	return &r, nil
}

func getReward(q querier, id int64) (*model.Reward, error) {
	r, err := scanReward(q.QueryRow(`SELECT `+rewardCols+` FROM rewards WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get reward: %w", err)
	}
	return r, nil
}

func (s *RewardStore) Create(familyID int64, title, description, emoji string, pointCost int) (*model.Reward, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, fmt.Errorf("%w: title is required", model.ErrInvalidState)
	}
	if pointCost < 0 {
		return nil, fmt.Errorf("%w: point cost must not be negative", model.ErrInvalidState)
	}

	result, err := s.db.Exec(
		`INSERT INTO rewards (family_id, title, description, emoji, point_cost) VALUES (?, ?, ?, ?, ?)`,
		familyID, title, strings.TrimSpace(description), strings.TrimSpace(emoji), pointCost,
	)
	if err != nil {
		return nil, fmt.Errorf("insert reward: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(id)
}

func (s *RewardStore) GetByID(id int64) (*model.Reward, error) {
	return getReward(s.db, id)
}

// ListByFamily returns a family's rewards, cheapest first. Inactive rewards
// are included only when includeInactive is set.
func (s *RewardStore) ListByFamily(familyID int64, includeInactive bool) ([]model.Reward, error) {
	query := `SELECT ` + rewardCols + ` FROM rewards WHERE family_id = ?`
	if !includeInactive {
		query += ` AND active = 1`
	}
	query += ` ORDER BY point_cost ASC, id ASC`

	rows, err := s.db.Query(query, familyID)
	if err != nil {
		return nil, fmt.Errorf("list rewards: %w", err)
	}
	defer rows.Close()

	var rewards []model.Reward
	for rows.Next() {
		r, err := scanReward(rows)
		if err != nil {
			return nil, fmt.Errorf("scan reward: %w", err)
		}
		rewards = append(rewards, *r)
	}
	return rewards, rows.Err()
}

func (s *RewardStore) Update(id int64, title, description, emoji string, pointCost int, active bool) (*model.Reward, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, fmt.Errorf("%w: title is required", model.ErrInvalidState)
	}
	if pointCost < 0 {
		return nil, fmt.Errorf("%w: point cost must not be negative", model.ErrInvalidState)
	}

	result, err := s.db.Exec(
		`UPDATE rewards SET title = ?, description = ?, emoji = ?, point_cost = ?, active = ? WHERE id = ?`,
		title, strings.TrimSpace(description), strings.TrimSpace(emoji), pointCost, boolInt(active), id,
	)
	if err != nil {
		return nil, fmt.Errorf("update reward: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return nil, fmt.Errorf("%w: reward %d", model.ErrNotFound, id)
	}
	return s.GetByID(id)
}

func (s *RewardStore) Delete(id int64) error {
	result, err := s.db.Exec(`DELETE FROM rewards WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete reward: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: reward %d", model.ErrNotFound, id)
	}
	return nil
}

// Redeem spends memberID's balance on a reward. The member must belong to
// the reward's family and hold enough unspent points.
func (s *RewardStore) Redeem(rewardID, memberID int64, now time.Time) (*model.RewardRedemption, error) {
	var redemption model.RewardRedemption
	err := inTx(s.db, func(tx *sql.Tx) error {
		r, err := getReward(tx, rewardID)
		if err != nil {
			return err
		}
		if r == nil {
			return fmt.Errorf("%w: reward %d", model.ErrNotFound, rewardID)
		}
		if err := checkAssignee(tx, r.FamilyID, memberID); err != nil {
			return err
		}
		b, err := pointBalance(tx, memberID)
		if err != nil {
			return err
		}
		if err := progression.CheckRedeem(b.Balance, *r); err != nil {
			return err
		}

		now = now.UTC()
		result, err := tx.Exec(
			`INSERT INTO reward_redemptions (reward_id, member_id, points_spent, redeemed_at) VALUES (?, ?, ?, ?)`,
			rewardID, memberID, r.PointCost, now,
		)
		if err != nil {
			return fmt.Errorf("insert redemption: %w", err)
		}
		id, err := result.LastInsertId()
		if err != nil {
			return fmt.Errorf("last insert id: %w", err)
		}
		redemption = model.RewardRedemption{
			ID:          id,
			RewardID:    rewardID,
			MemberID:    memberID,
			PointsSpent: r.PointCost,
			RedeemedAt:  now,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &redemption, nil
}

func (s *RewardStore) ListRedemptionsByMember(memberID int64) ([]model.RewardRedemption, error) {
	rows, err := s.db.Query(
		`SELECT id, reward_id, member_id, points_spent, redeemed_at
		 FROM reward_redemptions WHERE member_id = ? ORDER BY redeemed_at DESC, id DESC`,
		memberID,
	)
	if err != nil {
		return nil, fmt.Errorf("list redemptions: %w", err)
	}
	defer rows.Close()

	var out []model.RewardRedemption
	for rows.Next() {
		var rr model.RewardRedemption
		if err := rows.Scan(&rr.ID, &rr.RewardID, &rr.MemberID, &rr.PointsSpent, &rr.RedeemedAt); err != nil {
			return nil, fmt.Errorf("scan redemption: %w", err)
		}
		out = append(out, rr)
	}
	return out, rows.Err()
}

func pointBalance(q querier, memberID int64) (*model.PointBalance, error) {
	m, err := mustGetMember(q, memberID)
	if err != nil {
		return nil, err
	}
	var spent int
	err = q.QueryRow(
		`SELECT COALESCE(SUM(points_spent), 0) FROM reward_redemptions WHERE member_id = ?`,
		memberID,
	).Scan(&spent)
	if err != nil {
		return nil, fmt.Errorf("sum redemptions: %w", err)
	}
	return &model.PointBalance{
		MemberID:    m.ID,
		MemberName:  m.DisplayName,
		TotalEarned: m.Points,
		TotalSpent:  spent,
		Balance:     m.Points - spent,
		Level:       m.Level,
		Streak:      m.Streak,
	}, nil
}

// GetPointBalance returns earned, spent and remaining points for a member.
func (s *RewardStore) GetPointBalance(memberID int64) (*model.PointBalance, error) {
	return pointBalance(s.db, memberID)
}

// Leaderboard ranks a family's members by points earned. Equal totals keep
// roster order.
func (s *RewardStore) Leaderboard(familyID int64) ([]model.PointBalance, error) {
	rows, err := s.db.Query(
		`SELECT m.id, m.display_name, m.points, m.level, m.streak,
		        COALESCE((SELECT SUM(rr.points_spent) FROM reward_redemptions rr WHERE rr.member_id = m.id), 0)
		 FROM members m
		 JOIN family_memberships fm ON fm.member_id = m.id
		 WHERE fm.family_id = ? AND fm.status = 'approved'
		 ORDER BY fm.position ASC`,
		familyID,
	)
	if err != nil {
		return nil, fmt.Errorf("query leaderboard: %w", err)
	}
	defer rows.Close()

	var board []model.PointBalance
	for rows.Next() {
		var b model.PointBalance
		if err := rows.Scan(&b.MemberID, &b.MemberName, &b.TotalEarned, &b.Level, &b.Streak, &b.TotalSpent); err != nil {
			return nil, fmt.Errorf("scan leaderboard: %w", err)
		}
		b.Balance = b.TotalEarned - b.TotalSpent
		board = append(board, b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	slices.SortStableFunc(board, func(a, b model.PointBalance) int {
		return cmp.Compare(b.TotalEarned, a.TotalEarned)
	})
	return board, nil
}
