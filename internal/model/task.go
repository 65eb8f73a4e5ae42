package model

import "time"

type Task struct {
	ID          int64      `json:"id"`
	FamilyID    int64      `json:"family_id"`
	AssignedTo  int64      `json:"assigned_to"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Category    string     `json:"category"`
	Energy      string     `json:"energy"`
	Completed   bool       `json:"completed"`
	CompletedAt *time.Time `json:"completed_at"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// TaskCompletion is the result of completing a task: the task as persisted,
// the credited member, and the points awarded.
type TaskCompletion struct {
	Task          Task   `json:"task"`
	Member        Member `json:"member"`
	PointsAwarded int    `json:"points_awarded"`
}
