package repository

import (
	"context"
	"time"

	"github.com/sysu-ecnc-dev/task-vision/backend/internal/domain"
)

const userColumns = `id, email, password_hash, name, role, is_active, is_online, last_seen, created_at`

func (r *Repository) CreateUser(ctx context.Context, user *domain.User) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	query := `
		INSERT INTO users (id, email, password_hash, name, role, created_at)
		VALUES ($1, $2, $3, $4, $5, COALESCE($6, NOW()))
		RETURNING is_active, created_at
	`

	var createdAt *time.Time
	if !user.CreatedAt.IsZero() {
		createdAt = &user.CreatedAt
	}

	args := []any{user.ID, user.Email, user.PasswordHash, user.Name, user.Role, createdAt}
	if err := r.dbpool.QueryRowxContext(ctx, query, args...).Scan(&user.IsActive, &user.CreatedAt); err != nil {
		return translate(err)
	}

	return nil
}

func (r *Repository) GetUserByID(ctx context.Context, id string) (*domain.User, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	user := &domain.User{}
	if err := r.dbpool.GetContext(ctx, user, `SELECT `+userColumns+` FROM users WHERE id = $1`, id); err != nil {
		return nil, translate(err)
	}

	return user, nil
}

func (r *Repository) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	user := &domain.User{}
	if err := r.dbpool.GetContext(ctx, user, `SELECT `+userColumns+` FROM users WHERE LOWER(email) = LOWER($1)`, email); err != nil {
		return nil, translate(err)
	}

	return user, nil
}

// ListUsers 按注册时间排序，role 为 nil 时返回全部用户
func (r *Repository) ListUsers(ctx context.Context, role *domain.Role) ([]*domain.User, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	query := `SELECT ` + userColumns + ` FROM users WHERE ($1::TEXT IS NULL OR role = $1) ORDER BY created_at`

	users := make([]*domain.User, 0)
	if err := r.dbpool.SelectContext(ctx, &users, query, role); err != nil {
		return nil, translate(err)
	}

	return users, nil
}

func (r *Repository) ListUsersByRole(ctx context.Context, role domain.Role) ([]*domain.User, error) {
	return r.ListUsers(ctx, &role)
}

func (r *Repository) CountUsersByRole(ctx context.Context, role domain.Role) (int, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	var count int
	if err := r.dbpool.GetContext(ctx, &count, `SELECT COUNT(*) FROM users WHERE role = $1`, role); err != nil {
		return 0, translate(err)
	}

	return count, nil
}

func (r *Repository) UpdateUserPassword(ctx context.Context, id, passwordHash string) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	res, err := r.dbpool.ExecContext(ctx, `UPDATE users SET password_hash = $1 WHERE id = $2`, passwordHash, id)
	if err != nil {
		return translate(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrNotFound
	}

	return nil
}

func (r *Repository) SetPresence(ctx context.Context, userID string, online bool, at time.Time) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	_, err := r.dbpool.ExecContext(ctx, `UPDATE users SET is_online = $1, last_seen = $2 WHERE id = $3`, online, at, userID)
	return translate(err)
}
