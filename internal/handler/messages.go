package handler

import (
	"context"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/sysu-ecnc-dev/task-vision/backend/internal/domain"
)

const (
	EventMessageReceived = "message-received"

	maxMessageLength = 2000
)

// postMessage 持久化一条聊天消息后全局广播，HTTP 和 websocket 共用
func (h *Handler) postMessage(ctx context.Context, sender *domain.User, content string) (*domain.Message, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, domain.NewValidationError("content", "消息不能为空")
	}
	if utf8.RuneCountInString(content) > maxMessageLength {
		return nil, domain.NewValidationError("content", "消息不能超过 %d 个字符", maxMessageLength)
	}

	msg := &domain.Message{
		ID:         uuid.NewString(),
		SenderID:   sender.ID,
		SenderName: sender.Name,
		Content:    content,
		CreatedAt:  time.Now().UTC().Truncate(time.Microsecond),
	}

	if err := h.store.CreateMessage(ctx, msg); err != nil {
		return nil, err
	}

	h.hub.BroadcastGlobal(EventMessageReceived, msg)

	return msg, nil
}

func (h *Handler) SendMessage(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Content string `json:"content" validate:"required"`
	}

	if err := h.readJSON(r, &req); err != nil {
		h.badRequest(w, r, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.badRequest(w, r, err)
		return
	}

	msg, err := h.postMessage(r.Context(), currentUser(r), req.Content)
	if err != nil {
		h.serviceError(w, r, err)
		return
	}

	h.createdResponse(w, r, "消息发送成功", msg)
}

func (h *Handler) ListMessages(w http.ResponseWriter, r *http.Request) {
	messages, err := h.store.ListMessages(r.Context(), h.config.Chat.HistoryLimit)
	if err != nil {
		h.serviceError(w, r, err)
		return
	}

	h.successResponse(w, r, "获取消息成功", messages)
}
