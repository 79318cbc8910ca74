package tasks

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"priority-agent-backend/internal/db"
)

const taskColumns = `id, title, description, deadline, duration, importance, stress, fun,
	penalty_late, status, ignored_count, completed_date, created_at`

// SQLStore keeps tasks in postgres or sqlite.
type SQLStore struct {
	db  *db.DB
	now func() time.Time
}

func NewSQLStore(database *db.DB) *SQLStore {
	return &SQLStore{db: database, now: time.Now}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (Task, error) {
	var (
		t         Task
		status    string
		completed sql.NullTime
	)
	err := row.Scan(
		&t.ID,
		&t.Title,
		&t.Description,
		&t.Deadline,
		&t.Duration,
		&t.Importance,
		&t.Stress,
		&t.Fun,
		&t.PenaltyLate,
		&status,
		&t.IgnoredCount,
		&completed,
		&t.CreatedAt,
	)
	if err != nil {
		return Task{}, err
	}
	t.Status = Status(status)
	if completed.Valid {
		ts := completed.Time.UTC()
		t.CompletedDate = &ts
	}
	t.CreatedAt = t.CreatedAt.UTC()
	return t, nil
}

// storeErr maps driver errors onto the package sentinels.
func storeErr(op string, err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return fmt.Errorf("%s: %w: %v", op, ErrUnavailable, err)
}

func (s *SQLStore) List(ctx context.Context) ([]Task, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+taskColumns+`
		FROM tasks
		ORDER BY created_at DESC, id DESC
	`)
	if err != nil {
		return nil, storeErr("list tasks", err)
	}
	defer rows.Close()

	result := []Task{}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, storeErr("scan task", err)
		}
		result = append(result, t)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("list tasks", err)
	}
	return result, nil
}

func (s *SQLStore) Get(ctx context.Context, id int64) (Task, error) {
	row := s.db.QueryRowContext(ctx, s.db.Rebind(`
		SELECT `+taskColumns+`
		FROM tasks
		WHERE id = $1
	`), id)

	t, err := scanTask(row)
	if err != nil {
		return Task{}, storeErr("get task", err)
	}
	return t, nil
}

func (s *SQLStore) Create(ctx context.Context, d Draft) (Task, error) {
	t := Task{
		Title:       d.Title,
		Description: d.Description,
		Deadline:    d.Deadline,
		Duration:    d.Duration,
		Importance:  d.Importance,
		Stress:      d.Stress,
		Fun:         d.Fun,
		PenaltyLate: d.PenaltyLate,
		Status:      StatusBacklog,
		CreatedAt:   s.now().UTC(),
	}
	if d.Status != "" {
		transition(&t, d.Status, s.now())
	}

	err := s.db.QueryRowContext(ctx, s.db.Rebind(`
		INSERT INTO tasks (title, description, deadline, duration, importance, stress, fun,
			penalty_late, status, ignored_count, completed_date, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, 0, $10, $11)
		RETURNING id
	`),
		t.Title,
		t.Description,
		t.Deadline,
		t.Duration,
		t.Importance,
		t.Stress,
		t.Fun,
		t.PenaltyLate,
		string(t.Status),
		nullTime(t.CompletedDate),
		t.CreatedAt,
	).Scan(&t.ID)
	if err != nil {
		return Task{}, storeErr("create task", err)
	}
	return t, nil
}

func (s *SQLStore) Update(ctx context.Context, id int64, p Patch) (Task, error) {
	return s.mutate(ctx, id, func(t *Task) { p.apply(t) })
}

func (s *SQLStore) SetStatus(ctx context.Context, id int64, st Status) (Task, error) {
	return s.mutate(ctx, id, func(t *Task) { transition(t, st, s.now()) })
}

func (s *SQLStore) IncrementIgnored(ctx context.Context, id int64) (Task, error) {
	res, err := s.db.ExecContext(ctx, s.db.Rebind(`
		UPDATE tasks SET ignored_count = ignored_count + 1
		WHERE id = $1
	`), id)
	if err != nil {
		return Task{}, storeErr("increment ignored", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return Task{}, ErrNotFound
	}
	return s.Get(ctx, id)
}

func (s *SQLStore) Delete(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, s.db.Rebind(`DELETE FROM tasks WHERE id = $1`), id)
	if err != nil {
		return storeErr("delete task", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return ErrNotFound
	}
	return nil
}

// mutate is read-modify-write inside one transaction; concurrent writers to the
// same row end up last-writer-wins.
func (s *SQLStore) mutate(ctx context.Context, id int64, fn func(*Task)) (Task, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Task{}, storeErr("begin", err)
	}
	defer tx.Rollback()

	t, err := scanTask(tx.QueryRowContext(ctx, s.db.Rebind(`
		SELECT `+taskColumns+`
		FROM tasks
		WHERE id = $1
	`), id))
	if err != nil {
		return Task{}, storeErr("get task", err)
	}

	fn(&t)

	_, err = tx.ExecContext(ctx, s.db.Rebind(`
		UPDATE tasks
		SET title = $1, description = $2, deadline = $3, duration = $4, importance = $5,
			stress = $6, fun = $7, penalty_late = $8, status = $9, completed_date = $10
		WHERE id = $11
	`),
		t.Title,
		t.Description,
		t.Deadline,
		t.Duration,
		t.Importance,
		t.Stress,
		t.Fun,
		t.PenaltyLate,
		string(t.Status),
		nullTime(t.CompletedDate),
		id,
	)
	if err != nil {
		return Task{}, storeErr("update task", err)
	}

	if err := tx.Commit(); err != nil {
		return Task{}, storeErr("commit", err)
	}
	return t, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
