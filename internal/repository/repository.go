package repository

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/sysu-ecnc-dev/task-vision/backend/internal/config"
)

type Repository struct {
	cfg    *config.Config
	dbpool *sqlx.DB
}

func NewRepository(cfg *config.Config, dbpool *sqlx.DB) *Repository {
	return &Repository{
		cfg:    cfg,
		dbpool: dbpool,
	}
}

// withTimeout 为单条查询加上配置的超时
func (r *Repository) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, time.Duration(r.cfg.Database.QueryTimeout)*time.Second)
}
