package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/dukerupert/remind/internal/model"
)

type TaskStore struct {
	db *sql.DB
}

func NewTaskStore(db *sql.DB) *TaskStore {
	return &TaskStore{db: db}
}

func scanTask(scanner interface{ Scan(...any) error }) (*model.Task, error) {
	var t model.Task
	var done int
	if err := scanner.Scan(&t.ID, &t.UserID, &t.Title, &done, &t.Source, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}
	t.Done = done != 0
	return &t, nil
}

const taskCols = `id, user_id, title, done, source, created_at, updated_at`

func (s *TaskStore) Create(userID int64, title, source string) (*model.Task, error) {
	id, err := insertTask(s.db, userID, title, source)
	if err != nil {
		return nil, err
	}
	return s.GetByID(userID, id)
}

func insertTask(q execer, userID int64, title, source string) (int64, error) {
	if source == "" {
		source = model.SourceManual
	}
	result, err := q.Exec(`INSERT INTO tasks (user_id, title, source) VALUES (?, ?, ?)`, userID, title, source)
	if err != nil {
		return 0, fmt.Errorf("insert task: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("last insert id: %w", err)
	}
	return id, nil
}

func (s *TaskStore) GetByID(userID, id int64) (*model.Task, error) {
	row := s.db.QueryRow(`SELECT `+taskCols+` FROM tasks WHERE id = ? AND user_id = ?`, id, userID)
	t, err := scanTask(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}
	return t, nil
}

// List returns open tasks first, newest first within each group.
func (s *TaskStore) List(userID int64) ([]model.Task, error) {
	rows, err := s.db.Query(
		`SELECT `+taskCols+` FROM tasks WHERE user_id = ? ORDER BY done ASC, created_at DESC, id DESC`,
		userID,
	)
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

func (s *TaskStore) Update(userID, id int64, title string, done bool) (*model.Task, error) {
	_, err := s.db.Exec(
		`UPDATE tasks SET title = ?, done = ?, updated_at = ? WHERE id = ? AND user_id = ?`,
		title, boolInt(done), time.Now().UTC(), id, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("update task: %w", err)
	}
	return s.GetByID(userID, id)
}

func (s *TaskStore) Delete(userID, id int64) error {
	_, err := s.db.Exec(`DELETE FROM tasks WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	return nil
}
