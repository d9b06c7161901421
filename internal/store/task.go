package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/taskhub/apiserver/types"
)

const taskColumns = `id, title, description, owner_id, attachment_key, attachment_name, attachment_content_type, attachment_size, created_at, updated_at`

// TaskRepository handles persistence for tasks. Every read and write is
// scoped to an owner so a task is never visible outside its owner's queries.
type TaskRepository struct {
	db *sql.DB
}

func NewTaskRepository(db *sql.DB) *TaskRepository {
	return &TaskRepository{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *TaskRepository) List(ctx context.Context, ownerID, offset, limit int) ([]types.Task, int, error) {
	if offset < 0 {
		offset = 0
	}
	if limit < 1 {
		limit = 50
	}

	const countQuery = `SELECT COUNT(1) FROM tasks WHERE owner_id = $1`
	var total int
	if err := r.db.QueryRowContext(ctx, countQuery, ownerID).Scan(&total); err != nil {
		return nil, 0, err
	}

	const listQuery = `
		SELECT ` + taskColumns + `
		FROM tasks
		WHERE owner_id = $1
		ORDER BY id
		OFFSET $2 LIMIT $3`
	rows, err := r.db.QueryContext(ctx, listQuery, ownerID, offset, limit)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	tasks := make([]types.Task, 0, limit)
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, 0, err
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	return tasks, total, nil
}

func (r *TaskRepository) Get(ctx context.Context, id, ownerID int) (types.Task, error) {
	const query = `
		SELECT ` + taskColumns + `
		FROM tasks
		WHERE id = $1 AND owner_id = $2`
	return scanTaskRow(r.db.QueryRowContext(ctx, query, id, ownerID))
}

func (r *TaskRepository) Create(ctx context.Context, task types.Task) (types.Task, error) {
	now := time.Now().UTC()
	task.CreatedAt = now
	task.UpdatedAt = now
	task.Attachment = nil

	const query = `
		INSERT INTO tasks (title, description, owner_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`
	if err := r.db.QueryRowContext(
		ctx,
		query,
		task.Title,
		task.Description,
		task.OwnerID,
		task.CreatedAt,
		task.UpdatedAt,
	).Scan(&task.ID); err != nil {
		return types.Task{}, translateError(err)
	}
	return task, nil
}

// Update rewrites title and description of an owned task and returns the stored row.
func (r *TaskRepository) Update(ctx context.Context, task types.Task) (types.Task, error) {
	const query = `
		UPDATE tasks
		SET title = $1,
			description = $2,
			updated_at = $3
		WHERE id = $4 AND owner_id = $5
		RETURNING ` + taskColumns
	return scanTaskRow(r.db.QueryRowContext(
		ctx,
		query,
		task.Title,
		task.Description,
		time.Now().UTC(),
		task.ID,
		task.OwnerID,
	))
}

// Delete removes an owned task and returns the row as it was before deletion.
func (r *TaskRepository) Delete(ctx context.Context, id, ownerID int) (types.Task, error) {
	const query = `
		DELETE FROM tasks
		WHERE id = $1 AND owner_id = $2
		RETURNING ` + taskColumns
	return scanTaskRow(r.db.QueryRowContext(ctx, query, id, ownerID))
}

// SetAttachment records new attachment metadata on an owned task. The
// previously stored attachment, if any, is returned so its object can be
// removed by the caller.
func (r *TaskRepository) SetAttachment(ctx context.Context, id, ownerID int, attachment types.Attachment) (types.Task, *types.Attachment, error) {
	var (
		updated  types.Task
		previous *types.Attachment
	)
	err := WithTx(ctx, r.db, func(tx *sql.Tx) error {
		const lockQuery = `
			SELECT ` + taskColumns + `
			FROM tasks
			WHERE id = $1 AND owner_id = $2
			FOR UPDATE`
		current, err := scanTaskRow(tx.QueryRowContext(ctx, lockQuery, id, ownerID))
		if err != nil {
			return err
		}
		previous = current.Attachment

		const updateQuery = `
			UPDATE tasks
			SET attachment_key = $1,
				attachment_name = $2,
				attachment_content_type = $3,
				attachment_size = $4,
				updated_at = $5
			WHERE id = $6 AND owner_id = $7
			RETURNING ` + taskColumns
		updated, err = scanTaskRow(tx.QueryRowContext(
			ctx,
			updateQuery,
			attachment.Key,
			attachment.Filename,
			attachment.ContentType,
			attachment.Size,
			time.Now().UTC(),
			id,
			ownerID,
		))
		return err
	})
	if err != nil {
		return types.Task{}, nil, err
	}
	return updated, previous, nil
}

func scanTaskRow(row *sql.Row) (types.Task, error) {
	task, err := scanTask(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Task{}, ErrNotFound
		}
		return types.Task{}, err
	}
	return task, nil
}

func scanTask(row rowScanner) (types.Task, error) {
	var (
		task        types.Task
		description sql.NullString
		key         sql.NullString
		name        sql.NullString
		contentType sql.NullString
		size        sql.NullInt64
	)
	if err := row.Scan(
		&task.ID,
		&task.Title,
		&description,
		&task.OwnerID,
		&key,
		&name,
		&contentType,
		&size,
		&task.CreatedAt,
		&task.UpdatedAt,
	); err != nil {
		return types.Task{}, err
	}

	if description.Valid {
		task.Description = &description.String
	}
	if key.Valid && key.String != "" {
		task.Attachment = &types.Attachment{
			Key:         key.String,
			Filename:    name.String,
			ContentType: contentType.String,
			Size:        size.Int64,
		}
	}
	return task, nil
}
