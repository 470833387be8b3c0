package repository

import (
	"context"
	"fmt"
)

type migration struct {
	version int
	sql     string
}

// 版本号必须从 1 开始连续递增，已发布的迁移不能再修改
var migrations = []migration{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS users (
	id            UUID PRIMARY KEY,
	email         TEXT NOT NULL,
	password_hash TEXT NOT NULL,
	name          TEXT NOT NULL,
	role          TEXT NOT NULL CHECK (role IN ('admin', 'employee')),
	is_active     BOOLEAN NOT NULL DEFAULT TRUE,
	is_online     BOOLEAN NOT NULL DEFAULT FALSE,
	last_seen     TIMESTAMPTZ,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE UNIQUE INDEX IF NOT EXISTS users_email_key ON users (LOWER(email));

CREATE TABLE IF NOT EXISTS tasks (
	id              UUID PRIMARY KEY,
	title           TEXT NOT NULL CHECK (BTRIM(title) <> ''),
	description     TEXT NOT NULL DEFAULT '',
	priority        TEXT NOT NULL CHECK (priority IN ('high', 'medium', 'low')),
	status          TEXT NOT NULL DEFAULT 'not_started' CHECK (status IN ('not_started', 'in_progress', 'paused', 'completed')),
	assigned_to     UUID CONSTRAINT tasks_assigned_to_fkey REFERENCES users (id) ON DELETE SET NULL,
	assigned_by     UUID NOT NULL REFERENCES users (id),
	created_at      TIMESTAMPTZ NOT NULL,
	due_date        TIMESTAMPTZ,
	completed_at    TIMESTAMPTZ,
	estimated_hours DOUBLE PRECISION CHECK (estimated_hours >= 0),
	actual_hours    DOUBLE PRECISION CHECK (actual_hours >= 0),
	updated_at      TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS tasks_assigned_to_idx ON tasks (assigned_to);
CREATE INDEX IF NOT EXISTS tasks_created_at_idx ON tasks (created_at DESC);

-- task_id 不设外键，任务删除后动态和通知仍然保留
CREATE TABLE IF NOT EXISTS activities (
	id          UUID PRIMARY KEY,
	user_id     UUID NOT NULL REFERENCES users (id) ON DELETE CASCADE,
	user_name   TEXT NOT NULL,
	action      TEXT NOT NULL,
	description TEXT NOT NULL,
	task_id     UUID,
	created_at  TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS activities_created_at_idx ON activities (created_at DESC);

CREATE TABLE IF NOT EXISTS notifications (
	id         UUID PRIMARY KEY,
	user_id    UUID NOT NULL REFERENCES users (id) ON DELETE CASCADE,
	title      TEXT NOT NULL,
	content    TEXT NOT NULL,
	task_id    UUID,
	is_read    BOOLEAN NOT NULL DEFAULT FALSE,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS notifications_user_idx ON notifications (user_id, created_at DESC);

CREATE TABLE IF NOT EXISTS messages (
	id          UUID PRIMARY KEY,
	sender_id   UUID NOT NULL REFERENCES users (id) ON DELETE CASCADE,
	sender_name TEXT NOT NULL,
	content     TEXT NOT NULL CHECK (CHAR_LENGTH(content) BETWEEN 1 AND 2000),
	created_at  TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS messages_created_at_idx ON messages (created_at DESC);
`,
	},
}

// Migrate 应用所有尚未执行的迁移，每个迁移在单独的事务中执行
func (r *Repository) Migrate(ctx context.Context) error {
	if _, err := r.dbpool.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL)`); err != nil {
		return fmt.Errorf("创建 schema_version 表失败: %w", err)
	}

	var current int
	if err := r.dbpool.GetContext(ctx, &current, `SELECT COALESCE(MAX(version), 0) FROM schema_version`); err != nil {
		return fmt.Errorf("读取 schema 版本失败: %w", err)
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}

		tx, err := r.dbpool.BeginTxx(ctx, nil)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, m.sql); err != nil {
			tx.Rollback()
			return fmt.Errorf("应用迁移 v%d 失败: %w", m.version, err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO schema_version (version) VALUES ($1)`, m.version); err != nil {
			tx.Rollback()
			return fmt.Errorf("记录迁移 v%d 失败: %w", m.version, err)
		}
		if err := tx.Commit(); err != nil {
			return err
		}
	}

	return nil
}
