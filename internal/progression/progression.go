// Package progression computes point awards, levels, streaks and reward
// affordability. Every function is pure; callers persist the results.
package progression

import (
	"cmp"
	"fmt"
	"iter"
	"slices"

	"github.com/dukerupert/famboard/internal/model"
)

const (
	LevelThreshold   = 100
	DefaultFocusSize = 3
)

// Level returns the level for a cumulative point total.
func Level(points int) int {
	if points < 0 {
		points = 0
	}
	return points/LevelThreshold + 1
}

// CompleteTask credits m for completing t. It returns the updated member and
// the points awarded; m and t are not modified.
func CompleteTask(m model.Member, t model.Task) (model.Member, int, error) {
	if t.Completed {
		return m, 0, fmt.Errorf("%w: task %d already completed", model.ErrInvalidState, t.ID)
	}
	e, err := ParseEnergy(t.Energy)
	if err != nil {
		return m, 0, err
	}
	award, err := Points(e)
	if err != nil {
		return m, 0, err
	}

	m.Points += award
	m.Streak++
	m.Level = Level(m.Points)
	return m, award, nil
}

type Progress struct {
	Level           int     `json:"level"`
	PointsIntoLevel int     `json:"points_into_level"`
	PointsNeeded    int     `json:"points_needed"`
	Fraction        float64 `json:"fraction"`
}

// ProgressToNextLevel reports how far m is into its current level. The level
// is derived from m.Points so a stale stored level cannot skew the result.
func ProgressToNextLevel(m model.Member) Progress {
	points := max(m.Points, 0)
	level := Level(points)
	into := points - (level-1)*LevelThreshold
	return Progress{
		Level:           level,
		PointsIntoLevel: into,
		PointsNeeded:    level*LevelThreshold - points,
		Fraction:        clamp(float64(into) / LevelThreshold),
	}
}

type RewardGoal struct {
	Reward                model.Reward `json:"reward"`
	AffordabilityFraction float64      `json:"affordability_fraction"`
	PointsRemaining       int          `json:"points_remaining"`
}

// NextAffordableReward returns the cheapest active reward m cannot afford yet.
// Rewards with equal cost are ordered by ID. ok is false when there are no
// rewards or m can already afford all of them.
func NextAffordableReward(m model.Member, rewards []model.Reward) (goal RewardGoal, ok bool) {
	var best *model.Reward
	for i := range rewards {
		r := &rewards[i]
		if !r.Active || r.PointCost <= m.Points {
			continue
		}
		if best == nil || r.PointCost < best.PointCost || (r.PointCost == best.PointCost && r.ID < best.ID) {
			best = r
		}
	}
	if best == nil {
		return RewardGoal{}, false
	}
	return RewardGoal{
		Reward:                *best,
		AffordabilityFraction: clamp(float64(m.Points) / float64(best.PointCost)),
		PointsRemaining:       best.PointCost - m.Points,
	}, true
}

// SelectFocusTasks yields up to limit incomplete tasks with the given energy,
// oldest first. The sequence can be ranged over more than once.
func SelectFocusTasks(tasks []model.Task, e Energy, limit int) iter.Seq[model.Task] {
	if limit <= 0 {
		limit = DefaultFocusSize
	}

	var picked []model.Task
	for _, t := range tasks {
		if t.Completed {
			continue
		}
		if te, err := ParseEnergy(t.Energy); err != nil || te != e {
			continue
		}
		picked = append(picked, t)
	}
	slices.SortStableFunc(picked, func(a, b model.Task) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	if len(picked) > limit {
		picked = picked[:limit]
	}

	return func(yield func(model.Task) bool) {
		for _, t := range picked {
			if !yield(t) {
				return
			}
		}
	}
}

// CheckRedeem reports whether a member holding balance points may redeem r.
func CheckRedeem(balance int, r model.Reward) error {
	if !r.Active {
		return fmt.Errorf("%w: reward %d is not active", model.ErrInvalidState, r.ID)
	}
	if balance < r.PointCost {
		return fmt.Errorf("%w: insufficient points (have %d, need %d)", model.ErrInvalidState, balance, r.PointCost)
	}
	return nil
}

func clamp(f float64) float64 {
	return min(max(f, 0), 1)
}
