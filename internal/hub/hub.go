// Package hub 记录哪些用户持有在线连接，并负责全局、按房间、按用户三种方式的事件投递。
//
// Hub 的所有方法都可以被多个 goroutine 并发调用；投递通过 Conn.Deliver 完成，
// 要求实现不阻塞，因此广播永远不会拖慢发起请求的一方。
package hub

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/sysu-ecnc-dev/task-vision/backend/internal/domain"
)

const (
	EventPresenceOnline  = "presence-online"
	EventPresenceOffline = "presence-offline"
)

type Event struct {
	Name string `json:"event"`
	Data any    `json:"data"`
}

// Conn 是一条在线连接；Deliver 不能阻塞，缓冲已满时直接返回 false
type Conn interface {
	Deliver(ev Event) bool
}

type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*domain.User, error)
}

type PresenceStore interface {
	SetPresence(ctx context.Context, userID string, online bool, at time.Time) error
}

type Presence struct {
	UserID   string    `json:"user_id"`
	Name     string    `json:"name"`
	IsOnline bool      `json:"is_online"`
	LastSeen time.Time `json:"last_seen"`
}

type Hub struct {
	auth     Authenticator
	presence PresenceStore
	logger   *slog.Logger

	mu         sync.RWMutex
	conns      map[Conn]*domain.User
	identities map[string]Conn
	rooms      map[string]map[Conn]struct{}

	Now func() time.Time
}

func New(auth Authenticator, presence PresenceStore, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		auth:       auth,
		presence:   presence,
		logger:     logger,
		conns:      make(map[Conn]*domain.User),
		identities: make(map[string]Conn),
		rooms:      make(map[string]map[Conn]struct{}),
		Now:        time.Now,
	}
}

// TaskRoom 返回某个任务对应的房间名
func TaskRoom(taskID string) string {
	return "task:" + taskID
}

func (h *Hub) now() time.Time {
	return h.Now().UTC().Truncate(time.Microsecond)
}

// Connect 校验握手令牌并登记连接。同一用户的新连接会替换旧的映射，旧连接仍然能收到全局广播，
// 但之后定向推送只会发往新连接。
func (h *Hub) Connect(ctx context.Context, c Conn, token string) (*domain.User, error) {
	user, err := h.auth.Authenticate(ctx, token)
	if err != nil {
		return nil, err
	}

	h.mu.Lock()
	h.conns[c] = user
	h.identities[user.ID] = c
	h.mu.Unlock()

	h.setPresence(ctx, user, true)
	return user, nil
}

// Disconnect 移除连接及其房间订阅；只有当该连接仍是用户当前的映射时才把用户标记为离线
func (h *Hub) Disconnect(ctx context.Context, c Conn) {
	h.mu.Lock()
	user, ok := h.conns[c]
	delete(h.conns, c)
	for room, members := range h.rooms {
		delete(members, c)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}

	mapped := false
	for id, conn := range h.identities {
		if conn == c {
			delete(h.identities, id)
			mapped = true
			break
		}
	}
	h.mu.Unlock()

	if !ok || !mapped {
		return
	}
	h.setPresence(ctx, user, false)
}

func (h *Hub) setPresence(ctx context.Context, user *domain.User, online bool) {
	at := h.now()
	if err := h.presence.SetPresence(ctx, user.ID, online, at); err != nil {
		h.logger.Error("更新在线状态失败", "user", user.ID, "online", online, "error", err)
	}

	event := EventPresenceOffline
	if online {
		event = EventPresenceOnline
	}
	h.BroadcastGlobal(event, Presence{
		UserID:   user.ID,
		Name:     user.Name,
		IsOnline: online,
		LastSeen: at,
	})
}

// JoinRoom 要求连接已经通过 Connect 登记
func (h *Hub) JoinRoom(c Conn, room string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.conns[c]; !ok {
		return domain.ErrUnauthenticated
	}
	members, ok := h.rooms[room]
	if !ok {
		members = make(map[Conn]struct{})
		h.rooms[room] = members
	}
	members[c] = struct{}{}
	return nil
}

func (h *Hub) LeaveRoom(c Conn, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	members, ok := h.rooms[room]
	if !ok {
		return
	}
	delete(members, c)
	if len(members) == 0 {
		delete(h.rooms, room)
	}
}

func (h *Hub) deliver(targets []Conn, ev Event) {
	dropped := 0
	for _, c := range targets {
		if !c.Deliver(ev) {
			dropped++
		}
	}
	if dropped > 0 {
		h.logger.Warn("部分连接缓冲已满，事件被丢弃", "event", ev.Name, "dropped", dropped)
	}
}

func (h *Hub) BroadcastGlobal(event string, payload any) {
	h.mu.RLock()
	targets := make([]Conn, 0, len(h.conns))
	for c := range h.conns {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	h.deliver(targets, Event{Name: event, Data: payload})
}

func (h *Hub) BroadcastRoom(room, event string, payload any) {
	h.mu.RLock()
	members := h.rooms[room]
	targets := make([]Conn, 0, len(members))
	for c := range members {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	h.deliver(targets, Event{Name: event, Data: payload})
}

// PushToIdentity 在用户没有在线连接时什么都不做，返回 false
func (h *Hub) PushToIdentity(userID, event string, payload any) bool {
	h.mu.RLock()
	c, ok := h.identities[userID]
	h.mu.RUnlock()

	if !ok {
		return false
	}
	return c.Deliver(Event{Name: event, Data: payload})
}

func (h *Hub) IsOnline(userID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.identities[userID]
	return ok
}

func (h *Hub) OnlineUserIDs() []string {
	h.mu.RLock()
	ids := make([]string, 0, len(h.identities))
	for id := range h.identities {
		ids = append(ids, id)
	}
	h.mu.RUnlock()

	sort.Strings(ids)
	return ids
}
