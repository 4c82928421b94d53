package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/example/docflow/internal/domain"
)

type historyRepo struct {
	tx *sql.Tx
}

func (r *historyRepo) Append(ctx context.Context, events []*domain.Event) error {
	for _, ev := range events {
		// Terminal events are idempotent by task slot: a completion that
		// races a redelivered execution must not be recorded twice.
		if ev.Type.IsTerminal() {
			exists, err := r.HasTerminalTaskEvent(ctx, ev.InstanceID, ev.TaskID)
			if err != nil {
				return err
			}
			if exists {
				continue
			}
		}

		var seq int
		row := r.tx.QueryRowContext(ctx,
			`SELECT COALESCE(MAX(seq), -1) + 1 FROM history WHERE instance_id = ?`, ev.InstanceID)
		if err := row.Scan(&seq); err != nil {
			return err
		}
		ev.Seq = seq

		_, err := r.tx.ExecContext(ctx, `
			INSERT INTO history (instance_id, seq, type, task_id, activity, child_id, payload_json, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`, ev.InstanceID, ev.Seq, string(ev.Type), ev.TaskID,
			nullableString(ev.Activity), nullableString(ev.ChildID),
			nullableJSON(ev.Payload), ev.At)
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *historyRepo) Load(ctx context.Context, instanceID string) ([]*domain.Event, error) {
	rows, err := r.tx.QueryContext(ctx, `
		SELECT instance_id, seq, type, task_id, activity, child_id, payload_json, created_at
		FROM history WHERE instance_id = ? ORDER BY seq
	`, instanceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*domain.Event
	for rows.Next() {
		ev := &domain.Event{}
		var evType string
		var activity, childID, payload sql.NullString

		if err := rows.Scan(&ev.InstanceID, &ev.Seq, &evType, &ev.TaskID,
			&activity, &childID, &payload, &ev.At); err != nil {
			return nil, err
		}
		ev.Type = domain.EventType(evType)
		if activity.Valid {
			ev.Activity = activity.String
		}
		if childID.Valid {
			ev.ChildID = childID.String
		}
		if payload.Valid && payload.String != "" {
			ev.Payload = json.RawMessage(payload.String)
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

func (r *historyRepo) HasTerminalTaskEvent(ctx context.Context, instanceID string, taskID int) (bool, error) {
	row := r.tx.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM history
		WHERE instance_id = ? AND task_id = ?
		AND type IN (?, ?, ?, ?)
	`, instanceID, taskID,
		string(domain.EventTaskCompleted), string(domain.EventTaskFailed),
		string(domain.EventSubOrchestrationCompleted), string(domain.EventSubOrchestrationFailed))

	var count int
	if err := row.Scan(&count); err != nil {
		return false, err
	}
	return count > 0, nil
}
