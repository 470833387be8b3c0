package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sysu-ecnc-dev/task-vision/backend/internal/domain"
	"github.com/sysu-ecnc-dev/task-vision/backend/internal/hub"
)

const maxFrameSize = 16 * 1024

type inboundFrame struct {
	ID    string          `json:"id"`
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type replyFrame struct {
	ID    string `json:"id"`
	Event string `json:"event"`
	Data  any    `json:"data"`
}

type errorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// wsClient 是 hub.Conn 的 websocket 实现。发送队列有界，写满后新的事件被丢弃
type wsClient struct {
	conn *websocket.Conn
	user *domain.User

	send chan any
	done chan struct{}
	once sync.Once
}

func newWSClient(conn *websocket.Conn, buffer int) *wsClient {
	return &wsClient{
		conn: conn,
		send: make(chan any, buffer),
		done: make(chan struct{}),
	}
}

func (c *wsClient) enqueue(v any) bool {
	select {
	case <-c.done:
		return false
	default:
	}

	select {
	case c.send <- v:
		return true
	default:
		return false
	}
}

func (c *wsClient) Deliver(ev hub.Event) bool {
	return c.enqueue(ev)
}

func (c *wsClient) close() {
	c.once.Do(func() { close(c.done) })
}

func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		token = tokenFromRequest(r)
	}

	// 先在 HTTP 层完成鉴权，失败时客户端能拿到正常的 401 响应
	if _, err := h.authenticator.Authenticate(r.Context(), token); err != nil {
		h.serviceError(w, r, err)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade 已经写好了错误响应
		h.logger.Warn("websocket 升级失败", "error", err)
		return
	}

	c := newWSClient(conn, h.config.Hub.SendBuffer)
	user, err := h.hub.Connect(r.Context(), c, token)
	if err != nil {
		_, code, msg := classify(err)
		conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, code+": "+msg), time.Now().Add(time.Second))
		conn.Close()
		return
	}
	c.user = user

	go h.writePump(c)
	h.readPump(c)

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(h.config.Database.QueryTimeout)*time.Second)
	defer cancel()
	h.hub.Disconnect(ctx, c)
}

func (h *Handler) readPump(c *wsClient) {
	defer c.close()

	pongWait := time.Duration(h.config.Hub.PongWait) * time.Second
	c.conn.SetReadLimit(maxFrameSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Warn("websocket 连接异常断开", "user", c.user.ID, "error", err)
			}
			return
		}

		var frame inboundFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			c.enqueue(h.errorReply("", domain.NewValidationError("", "消息格式错误")))
			continue
		}

		if !c.enqueue(h.dispatch(context.Background(), c, frame)) {
			h.logger.Warn("websocket 发送队列已满，丢弃回复", "user", c.user.ID, "event", frame.Event)
		}
	}
}

func (h *Handler) writePump(c *wsClient) {
	writeWait := time.Duration(h.config.Hub.WriteTimeout) * time.Second
	ticker := time.NewTicker(time.Duration(h.config.Hub.PingInterval) * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			c.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
			return
		case msg := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(msg); err != nil {
				c.close()
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.close()
				return
			}
		}
	}
}

/**********************************************
 * 事件分发
 **********************************************/

type eventHandler func(ctx context.Context, c *wsClient, data json.RawMessage) (any, error)

func (h *Handler) socketEvents() map[string]eventHandler {
	return map[string]eventHandler{
		"join-room":    h.onJoinRoom,
		"leave-room":   h.onLeaveRoom,
		"send-message": h.onSendMessage,
		"mark-read":    h.onMarkRead,
		"ping":         h.onPing,
	}
}

func (h *Handler) errorReply(id string, err error) replyFrame {
	status, code, msg := classify(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("处理 websocket 事件失败", "id", id, "error", err)
	}
	return replyFrame{ID: id, Event: "error", Data: errorPayload{Code: code, Message: msg}}
}

func (h *Handler) dispatch(ctx context.Context, c *wsClient, frame inboundFrame) replyFrame {
	handle, ok := h.events[frame.Event]
	if !ok {
		return h.errorReply(frame.ID, domain.NewValidationError("event", "未知事件 %q", frame.Event))
	}

	result, err := handle(ctx, c, frame.Data)
	if err != nil {
		return h.errorReply(frame.ID, err)
	}

	return replyFrame{ID: frame.ID, Event: "ack", Data: result}
}

func decodeData(data json.RawMessage, v any) error {
	if len(data) == 0 {
		return domain.NewValidationError("data", "缺少参数")
	}
	if err := json.Unmarshal(data, v); err != nil {
		return domain.NewValidationError("data", "参数格式错误")
	}
	return nil
}

type roomRequest struct {
	TaskID string `json:"task_id"`
}

// onJoinRoom 要求调用者有权查看该任务
func (h *Handler) onJoinRoom(ctx context.Context, c *wsClient, data json.RawMessage) (any, error) {
	var req roomRequest
	if err := decodeData(data, &req); err != nil {
		return nil, err
	}
	if req.TaskID == "" {
		return nil, domain.NewValidationError("task_id", "不能为空")
	}

	if _, err := h.tasks.Get(ctx, req.TaskID, c.user); err != nil {
		return nil, err
	}

	room := hub.TaskRoom(req.TaskID)
	if err := h.hub.JoinRoom(c, room); err != nil {
		return nil, err
	}
	return map[string]string{"room": room}, nil
}

func (h *Handler) onLeaveRoom(_ context.Context, c *wsClient, data json.RawMessage) (any, error) {
	var req roomRequest
	if err := decodeData(data, &req); err != nil {
		return nil, err
	}

	room := hub.TaskRoom(req.TaskID)
	h.hub.LeaveRoom(c, room)
	return map[string]string{"room": room}, nil
}

func (h *Handler) onSendMessage(ctx context.Context, c *wsClient, data json.RawMessage) (any, error) {
	var req struct {
		Content string `json:"content"`
	}
	if err := decodeData(data, &req); err != nil {
		return nil, err
	}

	return h.postMessage(ctx, c.user, req.Content)
}

func (h *Handler) onMarkRead(ctx context.Context, c *wsClient, data json.RawMessage) (any, error) {
	var req struct {
		NotificationID string `json:"notification_id"`
	}
	if err := decodeData(data, &req); err != nil {
		return nil, err
	}

	return h.notifications.MarkRead(ctx, req.NotificationID, c.user)
}

func (h *Handler) onPing(context.Context, *wsClient, json.RawMessage) (any, error) {
	return map[string]time.Time{"time": time.Now().UTC()}, nil
}
