package handler

import (
	"net/http"

	"github.com/sysu-ecnc-dev/task-vision/backend/internal/auth"
)

func (h *Handler) GetMyInfo(w http.ResponseWriter, r *http.Request) {
	h.successResponse(w, r, "获取个人信息成功", currentUser(r))
}

func (h *Handler) UpdateMyPassword(w http.ResponseWriter, r *http.Request) {
	myInfo := currentUser(r)

	var req struct {
		OldPassword string `json:"old_password" validate:"required"`
		NewPassword string `json:"new_password" validate:"required,min=6"`
	}

	if err := h.readJSON(r, &req); err != nil {
		h.badRequest(w, r, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.badRequest(w, r, err)
		return
	}

	ok, err := auth.CheckPassword(myInfo.PasswordHash, req.OldPassword)
	if err != nil {
		h.internalServerError(w, r, err)
		return
	}
	if !ok {
		h.errorResponse(w, r, http.StatusBadRequest, "旧密码错误")
		return
	}

	passwordHash, err := auth.HashPassword(req.NewPassword)
	if err != nil {
		h.internalServerError(w, r, err)
		return
	}

	if err := h.store.UpdateUserPassword(r.Context(), myInfo.ID, passwordHash); err != nil {
		h.serviceError(w, r, err)
		return
	}

	h.successResponse(w, r, "密码修改成功", nil)
}
