package repository

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/sysu-ecnc-dev/task-vision/backend/internal/domain"
)

// translate 把驱动层错误归类到领域错误，原始错误保留在链上供日志使用
func translate(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ErrNotFound
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505": // unique_violation
			switch pgErr.ConstraintName {
			case "users_email_key":
				return fmt.Errorf("%w: 邮箱已存在", domain.ErrConflict)
			default:
				return fmt.Errorf("%w: %s", domain.ErrConflict, pgErr.ConstraintName)
			}
		case "23503": // foreign_key_violation
			switch pgErr.ConstraintName {
			case "tasks_assigned_to_fkey":
				return domain.NewValidationError(string(domain.FieldAssignedTo), "负责人不存在")
			default:
				return domain.NewValidationError(pgErr.ConstraintName, "引用的记录不存在")
			}
		case "23514": // check_violation
			return domain.NewValidationError(pgErr.ConstraintName, "取值不合法")
		case "22P02": // invalid_text_representation，通常是格式错误的 UUID
			return domain.ErrNotFound
		}
	}

	return fmt.Errorf("%w: %w", domain.ErrServiceUnavailable, err)
}
