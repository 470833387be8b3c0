package handler

import (
	"net/http"
	"strconv"

	"github.com/sysu-ecnc-dev/task-vision/backend/internal/domain"
)

func (h *Handler) ListActivities(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			h.serviceError(w, r, domain.NewValidationError("limit", "必须是整数"))
			return
		}
		limit = n
	}

	activities, err := h.activities.List(r.Context(), limit)
	if err != nil {
		h.serviceError(w, r, err)
		return
	}

	h.successResponse(w, r, "获取动态成功", activities)
}
