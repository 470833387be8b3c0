package activity_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/sysu-ecnc-dev/task-vision/backend/internal/activity"
	"github.com/sysu-ecnc-dev/task-vision/backend/internal/domain"
	"github.com/sysu-ecnc-dev/task-vision/backend/internal/storetest"
)

type broadcast struct {
	event   string
	payload any
}

type broadcasterStub struct {
	mu     sync.Mutex
	events []broadcast
}

func (b *broadcasterStub) BroadcastGlobal(event string, payload any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, broadcast{event: event, payload: payload})
}

func TestRecordPersistsThenBroadcasts(t *testing.T) {
	ctx := context.Background()
	store := storetest.New()
	hub := &broadcasterStub{}
	rec := activity.NewRecorder(store, hub, nil)
	rec.Now = func() time.Time { return time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC) }

	actor := &domain.User{ID: "e1", Name: "Erin", Role: domain.RoleEmployee}
	task := &domain.Task{ID: "t1", Title: "Write report"}
	desc := activity.DescribeStatusChange(actor, task, domain.StatusNotStarted, domain.StatusInProgress)
	require.Equal(t, `Erin changed "Write report" from Not Started to In Progress`, desc)

	got, err := rec.Record(ctx, actor, domain.ActionTaskStatusChanged, desc, &task.ID)
	require.NoError(t, err)
	require.Equal(t, "Erin", got.UserName)
	require.Equal(t, "t1", *got.TaskID)
	require.Equal(t, time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC), got.CreatedAt)

	stored := store.Activities()
	require.Len(t, stored, 1)
	require.Equal(t, got.ID, stored[0].ID)

	require.Len(t, hub.events, 1)
	require.Equal(t, activity.EventActivityCreated, hub.events[0].event)
	require.Equal(t, got, hub.events[0].payload)
}

func TestRecordStoreFailureSkipsBroadcast(t *testing.T) {
	ctx := context.Background()
	store := storetest.New()
	store.FailOn("CreateActivity", domain.ErrServiceUnavailable)
	hub := &broadcasterStub{}
	rec := activity.NewRecorder(store, hub, nil)

	_, err := rec.Record(ctx, &domain.User{ID: "a1", Name: "Ada"}, domain.ActionTaskCreated, "x", nil)
	require.True(t, errors.Is(err, domain.ErrServiceUnavailable))
	require.Empty(t, hub.events)
}

func TestListClampsLimit(t *testing.T) {
	ctx := context.Background()
	store := storetest.New()
	rec := activity.NewRecorder(store, nil, nil)
	actor := &domain.User{ID: "a1", Name: "Ada", Role: domain.RoleAdmin}

	for i := 0; i < activity.MaxListLimit+5; i++ {
		_, err := rec.Record(ctx, actor, domain.ActionTaskCreated, "created", nil)
		require.NoError(t, err)
	}

	all, err := rec.List(ctx, 10_000)
	require.NoError(t, err)
	require.Len(t, all, activity.MaxListLimit)

	def, err := rec.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, def, activity.DefaultListLimit)
}
