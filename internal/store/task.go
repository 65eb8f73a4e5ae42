package store

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/dukerupert/famboard/internal/model"
	"github.com/dukerupert/famboard/internal/progression"
)

type TaskStore struct {
	db *sql.DB
}

func NewTaskStore(db *sql.DB) *TaskStore {
	return &TaskStore{db: db}
}

const taskCols = `id, family_id, assigned_to, title, description, category, energy,
	completed, completed_at, created_at, updated_at`

func scanTask(sc scanner) (*model.Task, error) {
	var t model.Task
	var completed int
	var completedAt sql.NullTime

	err := sc.Scan(&t.ID, &t.FamilyID, &t.AssignedTo, &t.Title, &t.Description, &t.Category, &t.Energy,
		&completed, &completedAt, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}

	t.Completed = completed == 1
	if completedAt.Valid {
		t.CompletedAt = &completedAt.Time
	}
	return &t, nil
}

func getTask(q querier, id int64) (*model.Task, error) {
	t, err := scanTask(q.QueryRow(`SELECT `+taskCols+` FROM tasks WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}
	return t, nil
}

func (s *TaskStore) list(where string, args ...any) ([]model.Task, error) {
	rows, err := s.db.Query(`SELECT `+taskCols+` FROM tasks `+where, args...)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []model.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, *t)
	}
	return tasks, rows.Err()
}

// checkAssignee verifies memberID is an approved member of familyID.
func checkAssignee(q querier, familyID, memberID int64) error {
	var n int
	err := q.QueryRow(
		`SELECT COUNT(*) FROM family_memberships WHERE family_id = ? AND member_id = ? AND status = 'approved'`,
		familyID, memberID,
	).Scan(&n)
	if err != nil {
		return fmt.Errorf("check assignee: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: member %d is not in family %d", model.ErrInvalidState, memberID, familyID)
	}
	return nil
}

func normalizeEnergy(s string) (string, error) {
	e, err := progression.ParseEnergy(s)
	if err != nil {
		return "", err
	}
	return string(e), nil
}

func (s *TaskStore) Create(familyID, assignedTo int64, title, description, category, energy string) (*model.Task, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, fmt.Errorf("%w: title is required", model.ErrInvalidState)
	}
	e, err := normalizeEnergy(energy)
	if err != nil {
		return nil, err
	}
	if err := checkAssignee(s.db, familyID, assignedTo); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	result, err := s.db.Exec(
		`INSERT INTO tasks (family_id, assigned_to, title, description, category, energy, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		familyID, assignedTo, title, strings.TrimSpace(description), strings.TrimSpace(category), e, now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("insert task: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(id)
}

func (s *TaskStore) GetByID(id int64) (*model.Task, error) {
	return getTask(s.db, id)
}

// ListByFamily returns every task of a family, oldest first.
func (s *TaskStore) ListByFamily(familyID int64) ([]model.Task, error) {
	return s.list(`WHERE family_id = ? ORDER BY created_at ASC, id ASC`, familyID)
}

func (s *TaskStore) ListByAssignee(memberID int64) ([]model.Task, error) {
	return s.list(`WHERE assigned_to = ? ORDER BY created_at ASC, id ASC`, memberID)
}

// Update edits a task's descriptive fields and assignee. Completed tasks keep
// their completion state.
func (s *TaskStore) Update(id, assignedTo int64, title, description, category, energy string) (*model.Task, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, fmt.Errorf("%w: title is required", model.ErrInvalidState)
	}
	e, err := normalizeEnergy(energy)
	if err != nil {
		return nil, err
	}
	existing, err := s.GetByID(id)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, fmt.Errorf("%w: task %d", model.ErrNotFound, id)
	}
	if err := checkAssignee(s.db, existing.FamilyID, assignedTo); err != nil {
		return nil, err
	}

	_, err = s.db.Exec(
		`UPDATE tasks SET assigned_to = ?, title = ?, description = ?, category = ?, energy = ? WHERE id = ?`,
		assignedTo, title, strings.TrimSpace(description), strings.TrimSpace(category), e, id,
	)
	if err != nil {
		return nil, fmt.Errorf("update task: %w", err)
	}
	return s.GetByID(id)
}

func (s *TaskStore) Delete(id int64) error {
	result, err := s.db.Exec(`DELETE FROM tasks WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: task %d", model.ErrNotFound, id)
	}
	return nil
}

// Complete marks a task done and credits its assignee in one transaction.
// A task can be completed once; later attempts fail with ErrInvalidState and
// award nothing.
func (s *TaskStore) Complete(id int64, now time.Time) (*model.TaskCompletion, error) {
	var c model.TaskCompletion
	err := inTx(s.db, func(tx *sql.Tx) error {
		t, err := getTask(tx, id)
		if err != nil {
			return err
		}
		if t == nil {
			return fmt.Errorf("%w: task %d", model.ErrNotFound, id)
		}
		if err := checkAssignee(tx, t.FamilyID, t.AssignedTo); err != nil {
			return err
		}
		m, err := mustGetMember(tx, t.AssignedTo)
		if err != nil {
			return err
		}

		updated, award, err := progression.CompleteTask(*m, *t)
		if err != nil {
			return err
		}
		now = now.UTC()
		updated.LastCompletedAt = &now

		result, err := tx.Exec(
			`UPDATE tasks SET completed = 1, completed_at = ? WHERE id = ? AND completed = 0`,
			now, id,
		)
		if err != nil {
			return fmt.Errorf("complete task: %w", err)
		}
		n, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected: %w", err)
		}
		if n == 0 {
			return fmt.Errorf("%w: task %d already completed", model.ErrInvalidState, id)
		}
		if err := saveProgress(tx, updated); err != nil {
			return err
		}

		done, err := getTask(tx, id)
		if err != nil {
			return err
		}
		member, err := mustGetMember(tx, updated.ID)
		if err != nil {
			return err
		}
		c = model.TaskCompletion{Task: *done, Member: *member, PointsAwarded: award}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &c, nil
}
