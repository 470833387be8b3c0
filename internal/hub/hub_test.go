package hub_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/sysu-ecnc-dev/task-vision/backend/internal/domain"
	"github.com/sysu-ecnc-dev/task-vision/backend/internal/hub"
	"github.com/sysu-ecnc-dev/task-vision/backend/internal/storetest"
)

type fakeConn struct {
	mu       sync.Mutex
	capacity int
	events   []hub.Event
}

func newConn() *fakeConn {
	return &fakeConn{capacity: 100}
}

func (c *fakeConn) Deliver(ev hub.Event) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.events) >= c.capacity {
		return false
	}
	c.events = append(c.events, ev)
	return true
}

func (c *fakeConn) names() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	names := make([]string, 0, len(c.events))
	for _, ev := range c.events {
		names = append(names, ev.Name)
	}
	return names
}

func (c *fakeConn) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = nil
}

type tokenAuth map[string]*domain.User

func (a tokenAuth) Authenticate(_ context.Context, token string) (*domain.User, error) {
	u, ok := a[token]
	if !ok {
		return nil, domain.ErrUnauthenticated
	}
	return u, nil
}

type fixture struct {
	ctx   context.Context
	store *storetest.Store
	hub   *hub.Hub
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	store := storetest.New()
	users := tokenAuth{}
	for _, u := range []*domain.User{
		{ID: "a1", Name: "Ada", Email: "ada@example.com", Role: domain.RoleAdmin},
		{ID: "e1", Name: "Erin", Email: "erin@example.com", Role: domain.RoleEmployee},
	} {
		require.NoError(t, store.CreateUser(ctx, u))
		users["token-"+u.ID] = u
	}

	h := hub.New(users, store, nil)
	h.Now = func() time.Time { return time.Date(2025, 5, 1, 8, 0, 0, 0, time.UTC) }
	return &fixture{ctx: ctx, store: store, hub: h}
}

func TestConnectRegistersPresence(t *testing.T) {
	f := newFixture(t)
	watcher := newConn()
	_, err := f.hub.Connect(f.ctx, watcher, "token-a1")
	require.NoError(t, err)

	conn := newConn()
	user, err := f.hub.Connect(f.ctx, conn, "token-e1")
	require.NoError(t, err)
	require.Equal(t, "e1", user.ID)

	require.True(t, f.hub.IsOnline("e1"))
	require.Equal(t, []string{"a1", "e1"}, f.hub.OnlineUserIDs())
	require.True(t, f.hub.PushToIdentity("e1", "notification", "hi"))

	stored, err := f.store.GetUserByID(f.ctx, "e1")
	require.NoError(t, err)
	require.True(t, stored.IsOnline)
	require.Equal(t, time.Date(2025, 5, 1, 8, 0, 0, 0, time.UTC), *stored.LastSeen)

	require.Contains(t, watcher.names(), hub.EventPresenceOnline)
	last := watcher.events[len(watcher.events)-1]
	require.Equal(t, hub.EventPresenceOnline, last.Name)
	require.Equal(t, "e1", last.Data.(hub.Presence).UserID)
}

func TestConnectRejectsInvalidToken(t *testing.T) {
	f := newFixture(t)
	conn := newConn()

	_, err := f.hub.Connect(f.ctx, conn, "bogus")
	require.ErrorIs(t, err, domain.ErrUnauthenticated)
	require.Empty(t, f.hub.OnlineUserIDs())
	require.Error(t, f.hub.JoinRoom(conn, hub.TaskRoom("t1")))
}

func TestDisconnectRemovesPresence(t *testing.T) {
	f := newFixture(t)
	watcher := newConn()
	_, err := f.hub.Connect(f.ctx, watcher, "token-a1")
	require.NoError(t, err)

	conn := newConn()
	_, err = f.hub.Connect(f.ctx, conn, "token-e1")
	require.NoError(t, err)
	require.NoError(t, f.hub.JoinRoom(conn, hub.TaskRoom("t1")))

	f.hub.Disconnect(f.ctx, conn)

	require.False(t, f.hub.IsOnline("e1"))
	require.False(t, f.hub.PushToIdentity("e1", "notification", "hi"))
	require.Contains(t, watcher.names(), hub.EventPresenceOffline)

	stored, err := f.store.GetUserByID(f.ctx, "e1")
	require.NoError(t, err)
	require.False(t, stored.IsOnline)

	conn.reset()
	f.hub.BroadcastRoom(hub.TaskRoom("t1"), "task-updated", nil)
	f.hub.BroadcastGlobal("task-created", nil)
	require.Empty(t, conn.names())

	// 重复断开不应产生第二次离线广播
	watcher.reset()
	f.hub.Disconnect(f.ctx, conn)
	require.Empty(t, watcher.names())
}

func TestReconnectReplacesMapping(t *testing.T) {
	f := newFixture(t)
	first := newConn()
	second := newConn()
	_, err := f.hub.Connect(f.ctx, first, "token-e1")
	require.NoError(t, err)
	_, err = f.hub.Connect(f.ctx, second, "token-e1")
	require.NoError(t, err)

	first.reset()
	second.reset()
	require.True(t, f.hub.PushToIdentity("e1", "notification", "hi"))
	require.Empty(t, first.names())
	require.Equal(t, []string{"notification"}, second.names())

	// 旧连接断开时用户仍通过新连接在线
	f.hub.Disconnect(f.ctx, first)
	require.True(t, f.hub.IsOnline("e1"))

	f.hub.Disconnect(f.ctx, second)
	require.False(t, f.hub.IsOnline("e1"))
}

func TestRoomBroadcastOnlyReachesMembers(t *testing.T) {
	f := newFixture(t)
	member := newConn()
	outsider := newConn()
	_, err := f.hub.Connect(f.ctx, member, "token-e1")
	require.NoError(t, err)
	_, err = f.hub.Connect(f.ctx, outsider, "token-a1")
	require.NoError(t, err)

	require.NoError(t, f.hub.JoinRoom(member, hub.TaskRoom("t1")))
	member.reset()
	outsider.reset()

	f.hub.BroadcastRoom(hub.TaskRoom("t1"), "task-updated", "payload")
	require.Equal(t, []string{"task-updated"}, member.names())
	require.Empty(t, outsider.names())

	f.hub.LeaveRoom(member, hub.TaskRoom("t1"))
	f.hub.BroadcastRoom(hub.TaskRoom("t1"), "task-updated", "payload")
	require.Len(t, member.names(), 1)
}

func TestBroadcastSkipsFullConnections(t *testing.T) {
	f := newFixture(t)
	full := &fakeConn{capacity: 0}
	healthy := newConn()
	_, err := f.hub.Connect(f.ctx, full, "token-a1")
	require.NoError(t, err)
	_, err = f.hub.Connect(f.ctx, healthy, "token-e1")
	require.NoError(t, err)
	healthy.reset()

	f.hub.BroadcastGlobal("message-received", "hello")
	require.Equal(t, []string{"message-received"}, healthy.names())
	require.False(t, f.hub.PushToIdentity("a1", "notification", "x"))
}

func TestPresenceStoreFailureDoesNotRejectConnection(t *testing.T) {
	f := newFixture(t)
	f.store.FailOn("SetPresence", domain.ErrServiceUnavailable)

	_, err := f.hub.Connect(f.ctx, newConn(), "token-e1")
	require.NoError(t, err)
	require.True(t, f.hub.IsOnline("e1"))
}
