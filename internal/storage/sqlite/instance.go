package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/example/docflow/internal/domain"
	"github.com/example/docflow/internal/storage"
)

type instanceRepo struct {
	tx *sql.Tx
}

func (r *instanceRepo) Create(ctx context.Context, inst *domain.WorkflowInstance) error {
	_, err := r.tx.ExecContext(ctx, `
		INSERT INTO instances (id, definition, status, input_json, output_json, error_message,
			parent_id, parent_task_id, created_at, updated_at, version)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, inst.ID, inst.Definition, inst.Status, nullableJSON(inst.Input), nullableJSON(inst.Output),
		inst.ErrorMessage, nullableString(inst.ParentID), inst.ParentTaskID,
		inst.CreatedAt, inst.UpdatedAt, inst.Version)
	if err != nil && strings.Contains(err.Error(), "UNIQUE constraint") {
		return domain.ErrAlreadyExists
	}
	return err
}

func (r *instanceRepo) Get(ctx context.Context, id string) (*domain.WorkflowInstance, error) {
	row := r.tx.QueryRowContext(ctx, `
		SELECT id, definition, status, input_json, output_json, error_message,
			parent_id, parent_task_id, created_at, updated_at, version
		FROM instances WHERE id = ?
	`, id)
	return scanInstance(row)
}

func (r *instanceRepo) Update(ctx context.Context, inst *domain.WorkflowInstance) error {
	result, err := r.tx.ExecContext(ctx, `
		UPDATE instances
		SET status = ?, output_json = ?, error_message = ?, updated_at = ?, version = version + 1
		WHERE id = ? AND version = ?
	`, inst.Status, nullableJSON(inst.Output), inst.ErrorMessage, inst.UpdatedAt, inst.ID, inst.Version)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return domain.ErrConcurrentModify
	}

	inst.Version++
	return nil
}

func (r *instanceRepo) List(ctx context.Context, filter storage.InstanceFilter) ([]*domain.WorkflowInstance, error) {
	query := `
		SELECT id, definition, status, input_json, output_json, error_message,
			parent_id, parent_task_id, created_at, updated_at, version
		FROM instances`
	var args []any

	if len(filter.Statuses) > 0 {
		placeholders := make([]string, len(filter.Statuses))
		for i, s := range filter.Statuses {
			placeholders[i] = "?"
			args = append(args, s)
		}
		query += " WHERE status IN (" + strings.Join(placeholders, ", ") + ")"
	}

	query += " ORDER BY created_at"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
		if filter.Offset > 0 {
			query += " OFFSET ?"
			args = append(args, filter.Offset)
		}
	}

	rows, err := r.tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var instances []*domain.WorkflowInstance
	for rows.Next() {
		inst, err := scanInstance(rows)
		if err != nil {
			return nil, err
		}
		instances = append(instances, inst)
	}
	return instances, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanInstance(row scanner) (*domain.WorkflowInstance, error) {
	inst := &domain.WorkflowInstance{}
	var inputJSON, outputJSON, parentID sql.NullString

	err := row.Scan(&inst.ID, &inst.Definition, &inst.Status, &inputJSON, &outputJSON,
		&inst.ErrorMessage, &parentID, &inst.ParentTaskID,
		&inst.CreatedAt, &inst.UpdatedAt, &inst.Version)
	if err == sql.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if inputJSON.Valid && inputJSON.String != "" {
		if !json.Valid([]byte(inputJSON.String)) {
			return nil, fmt.Errorf("instance %s: corrupt input payload", inst.ID)
		}
		inst.Input = json.RawMessage(inputJSON.String)
	}
	if outputJSON.Valid && outputJSON.String != "" {
		inst.Output = json.RawMessage(outputJSON.String)
	}
	if parentID.Valid {
		inst.ParentID = parentID.String
	}

	return inst, nil
}

func nullableJSON(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
