package handler

import (
	"net/http"

	"github.com/sysu-ecnc-dev/task-vision/backend/internal/domain"
)

// ListUsers 返回用户列表，密码哈希不会被序列化；可以用 ?role= 过滤
func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	var role *domain.Role
	if v := r.URL.Query().Get("role"); v != "" {
		rl := domain.Role(v)
		if !rl.Valid() {
			h.serviceError(w, r, domain.NewValidationError("role", "无效的角色 %q", v))
			return
		}
		role = &rl
	}

	users, err := h.store.ListUsers(r.Context(), role)
	if err != nil {
		h.serviceError(w, r, err)
		return
	}

	h.successResponse(w, r, "获取用户列表成功", users)
}
