package sqlite

import (
	"context"
	"database/sql"
)

// Migrate runs all database migrations.
func Migrate(ctx context.Context, db *sql.DB) error {
	migrations := []string{
		// Workflow instances table
		`CREATE TABLE IF NOT EXISTS instances (
			id TEXT PRIMARY KEY,
			definition TEXT NOT NULL,
			status INTEGER NOT NULL DEFAULT 10,
			input_json TEXT,
			output_json TEXT,
			error_message TEXT,
			parent_id TEXT,
			parent_task_id INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL,
			version INTEGER NOT NULL DEFAULT 1
		)`,

		// Append-only history table; seq orders events within an instance
		`CREATE TABLE IF NOT EXISTS history (
			instance_id TEXT NOT NULL,
			seq INTEGER NOT NULL,
			type TEXT NOT NULL,
			task_id INTEGER NOT NULL DEFAULT 0,
			activity TEXT,
			child_id TEXT,
			payload_json TEXT,
			created_at DATETIME NOT NULL,
			PRIMARY KEY (instance_id, seq),
			FOREIGN KEY (instance_id) REFERENCES instances(id) ON DELETE CASCADE
		)`,

		// Indexes for efficient queries
		`CREATE INDEX IF NOT EXISTS idx_instances_status ON instances(status)`,
		`CREATE INDEX IF NOT EXISTS idx_instances_parent ON instances(parent_id) WHERE parent_id IS NOT NULL`,
		`CREATE INDEX IF NOT EXISTS idx_history_task ON history(instance_id, task_id)`,
	}

	for _, migration := range migrations {
		if _, err := db.ExecContext(ctx, migration); err != nil {
			return err
		}
	}

	return nil
}
