package handler

import (
	"net/http"

	"github.com/sysu-ecnc-dev/task-vision/backend/internal/domain"
)

type ContextKey string

var (
	UserCtx  ContextKey = "user"
	TokenCtx ContextKey = "token"
)

// currentUser 只能在 auth 中间件之后调用
func currentUser(r *http.Request) *domain.User {
	return r.Context().Value(UserCtx).(*domain.User)
}
