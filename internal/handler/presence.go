package handler

import "net/http"

func (h *Handler) GetPresence(w http.ResponseWriter, r *http.Request) {
	h.successResponse(w, r, "获取在线用户成功", map[string][]string{"online": h.hub.OnlineUserIDs()})
}
