package task_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/sysu-ecnc-dev/task-vision/backend/internal/activity"
	"github.com/sysu-ecnc-dev/task-vision/backend/internal/domain"
	"github.com/sysu-ecnc-dev/task-vision/backend/internal/hub"
	"github.com/sysu-ecnc-dev/task-vision/backend/internal/notify"
	"github.com/sysu-ecnc-dev/task-vision/backend/internal/storetest"
	"github.com/sysu-ecnc-dev/task-vision/backend/internal/task"
)

type sent struct {
	room    string
	event   string
	payload any
}

type broadcasterStub struct {
	mu     sync.Mutex
	events []sent
}

func (b *broadcasterStub) BroadcastGlobal(event string, payload any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, sent{event: event, payload: payload})
}

func (b *broadcasterStub) BroadcastRoom(room, event string, payload any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, sent{room: room, event: event, payload: payload})
}

func (b *broadcasterStub) find(room, event string) []sent {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []sent
	for _, e := range b.events {
		if e.room == room && e.event == event {
			out = append(out, e)
		}
	}
	return out
}

type offlinePusher struct{}

func (offlinePusher) PushToIdentity(string, string, any) bool { return false }

type fixture struct {
	ctx     context.Context
	store   *storetest.Store
	bc      *broadcasterStub
	svc     *task.Service
	clock   time.Time
	admin   *domain.User
	admin2  *domain.User
	emp     *domain.User
	other   *domain.User
	pending *domain.Task
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		ctx:   context.Background(),
		store: storetest.New(),
		bc:    &broadcasterStub{},
		clock: time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC),
	}

	f.admin = &domain.User{ID: "a1", Name: "Ada", Email: "ada@example.com", Role: domain.RoleAdmin, CreatedAt: time.Unix(1, 0)}
	f.admin2 = &domain.User{ID: "a2", Name: "Alan", Email: "alan@example.com", Role: domain.RoleAdmin, CreatedAt: time.Unix(2, 0)}
	f.emp = &domain.User{ID: "e1", Name: "Erin", Email: "erin@example.com", Role: domain.RoleEmployee, CreatedAt: time.Unix(3, 0)}
	f.other = &domain.User{ID: "e2", Name: "Eve", Email: "eve@example.com", Role: domain.RoleEmployee, CreatedAt: time.Unix(4, 0)}
	for _, u := range []*domain.User{f.admin, f.admin2, f.emp, f.other} {
		require.NoError(t, f.store.CreateUser(f.ctx, u))
	}

	recorder := activity.NewRecorder(f.store, f.bc, nil)
	router := notify.NewRouter(f.store, f.store, offlinePusher{}, nil, nil)
	f.svc = task.NewService(f.store, f.store, recorder, router, f.bc, nil)
	f.svc.Now = func() time.Time { return f.clock }

	created, err := f.svc.Create(f.ctx, f.admin, task.CreateRequest{
		Title:      "Write report",
		Priority:   domain.PriorityMedium,
		AssignedTo: &f.emp.ID,
	})
	require.NoError(t, err)
	f.pending = created

	f.clock = f.clock.Add(time.Hour)
	f.bc.events = nil
	return f
}

func (f *fixture) notificationsFor(userID string) []*domain.Notification {
	var out []*domain.Notification
	for _, n := range f.store.Notifications() {
		if n.UserID == userID {
			out = append(out, n)
		}
	}
	return out
}

func TestCreateByAdmin(t *testing.T) {
	f := newFixture(t)
	est := 4.5

	created, err := f.svc.Create(f.ctx, f.admin, task.CreateRequest{
		Title:          "Fix login",
		Description:    "Users cannot log in",
		Priority:       domain.PriorityHigh,
		AssignedTo:     &f.other.ID,
		EstimatedHours: &est,
	})
	require.NoError(t, err)
	require.NotEmpty(t, created.ID)
	require.Equal(t, domain.StatusNotStarted, created.Status)
	require.Equal(t, "a1", created.AssignedBy)
	require.Equal(t, f.clock, created.CreatedAt)
	require.Equal(t, f.clock, created.UpdatedAt)
	require.Nil(t, created.CompletedAt)

	stored, err := f.store.GetTask(f.ctx, created.ID)
	require.NoError(t, err)
	require.Equal(t, "Fix login", stored.Title)

	acts := f.store.Activities()
	require.Equal(t, domain.ActionTaskCreated, acts[len(acts)-1].Action)
	require.Equal(t, `Ada created task "Fix login"`, acts[len(acts)-1].Description)

	notes := f.notificationsFor("e2")
	require.Len(t, notes, 1)
	require.Contains(t, notes[0].Content, "Fix login")
	require.Contains(t, notes[0].Content, "High")

	require.Len(t, f.bc.find("", task.EventTaskCreated), 1)
	require.Len(t, f.bc.find("", activity.EventActivityCreated), 1)
}

func TestCreateRejectsEmployee(t *testing.T) {
	f := newFixture(t)
	before := len(f.store.Tasks())

	_, err := f.svc.Create(f.ctx, f.emp, task.CreateRequest{Title: "Sneaky", Priority: domain.PriorityLow})
	require.ErrorIs(t, err, domain.ErrForbidden)
	require.Len(t, f.store.Tasks(), before)
}

func TestCreateValidation(t *testing.T) {
	f := newFixture(t)
	missing := "nobody"
	neg := -1.0

	cases := map[string]task.CreateRequest{
		"empty title":       {Title: "  ", Priority: domain.PriorityLow},
		"bad priority":      {Title: "x", Priority: "urgent"},
		"negative estimate": {Title: "x", Priority: domain.PriorityLow, EstimatedHours: &neg},
		"unknown assignee":  {Title: "x", Priority: domain.PriorityLow, AssignedTo: &missing},
		"admin assignee":    {Title: "x", Priority: domain.PriorityLow, AssignedTo: &f.admin2.ID},
	}
	for name, req := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := f.svc.Create(f.ctx, f.admin, req)
			require.ErrorIs(t, err, domain.ErrValidation)
		})
	}
}

func TestCreateUnassigned(t *testing.T) {
	f := newFixture(t)
	empty := ""
	before := len(f.store.Notifications())

	created, err := f.svc.Create(f.ctx, f.admin, task.CreateRequest{Title: "Backlog", Priority: domain.PriorityLow, AssignedTo: &empty})
	require.NoError(t, err)
	require.Nil(t, created.AssignedTo)
	require.Len(t, f.store.Notifications(), before)
}

func TestEmployeePatchIsFiltered(t *testing.T) {
	f := newFixture(t)

	patch := domain.TaskPatch{
		Title:       domain.Some("Renamed"),
		Priority:    domain.Some(domain.PriorityHigh),
		Status:      domain.Some(domain.StatusInProgress),
		ActualHours: domain.Some(2.0),
	}
	updated, changes, err := f.svc.Update(f.ctx, f.pending.ID, f.emp, patch)
	require.NoError(t, err)
	require.Equal(t, "Write report", updated.Title)
	require.Equal(t, domain.PriorityMedium, updated.Priority)
	require.Equal(t, domain.StatusInProgress, updated.Status)
	require.Equal(t, 2.0, *updated.ActualHours)
	require.ElementsMatch(t, []domain.TaskField{domain.FieldStatus, domain.FieldActualHours}, changes.Fields())
	require.Equal(t, f.clock, updated.UpdatedAt)
}

func TestEmployeeCannotTouchOthersTask(t *testing.T) {
	f := newFixture(t)

	_, _, err := f.svc.Update(f.ctx, f.pending.ID, f.other, domain.TaskPatch{Status: domain.Some(domain.StatusCompleted)})
	require.ErrorIs(t, err, domain.ErrForbidden)

	stored, err := f.store.GetTask(f.ctx, f.pending.ID)
	require.NoError(t, err)
	require.Equal(t, domain.StatusNotStarted, stored.Status)
	require.Empty(t, f.bc.events)
}

func TestUpdateMissingTask(t *testing.T) {
	f := newFixture(t)
	_, _, err := f.svc.Update(f.ctx, "missing", f.admin, domain.TaskPatch{Title: domain.Some("x")})
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestUpdateWithoutChangesSkipsWrite(t *testing.T) {
	f := newFixture(t)
	f.store.FailOn("UpdateTask", domain.ErrServiceUnavailable)

	// 员工提交的 title 被过滤，status 与当前值相同
	got, changes, err := f.svc.Update(f.ctx, f.pending.ID, f.emp, domain.TaskPatch{
		Title:  domain.Some("Renamed"),
		Status: domain.Some(domain.StatusNotStarted),
	})
	require.NoError(t, err)
	require.Empty(t, changes)
	require.Equal(t, f.pending.UpdatedAt, got.UpdatedAt)
	require.Empty(t, f.bc.events)
}

func TestCompletionTimestamp(t *testing.T) {
	f := newFixture(t)
	doneAt := f.clock

	updated, changes, err := f.svc.Update(f.ctx, f.pending.ID, f.emp, domain.TaskPatch{Status: domain.Some(domain.StatusCompleted)})
	require.NoError(t, err)
	require.NotNil(t, updated.CompletedAt)
	require.Equal(t, doneAt, *updated.CompletedAt)
	require.True(t, changes.Has(domain.FieldCompletedAt))

	f.clock = f.clock.Add(time.Hour)
	reopened, changes, err := f.svc.Update(f.ctx, f.pending.ID, f.emp, domain.TaskPatch{Status: domain.Some(domain.StatusInProgress)})
	require.NoError(t, err)
	require.False(t, changes.Has(domain.FieldCompletedAt))
	require.NotNil(t, reopened.CompletedAt)
	require.Equal(t, doneAt, *reopened.CompletedAt)
	require.Equal(t, f.clock, reopened.UpdatedAt)
}

func TestEmployeeStatusChangeNotifiesAdmins(t *testing.T) {
	f := newFixture(t)
	adminNotes := len(f.notificationsFor("a1"))

	updated, _, err := f.svc.Update(f.ctx, f.pending.ID, f.emp, domain.TaskPatch{Status: domain.Some(domain.StatusInProgress)})
	require.NoError(t, err)

	acts := f.store.Activities()
	last := acts[len(acts)-1]
	require.Equal(t, domain.ActionTaskStatusChanged, last.Action)
	require.Equal(t, `Erin changed "Write report" from Not Started to In Progress`, last.Description)
	require.Equal(t, f.pending.ID, *last.TaskID)

	for _, id := range []string{"a1", "a2"} {
		notes := f.notificationsFor(id)
		require.NotEmpty(t, notes, id)
		require.Contains(t, notes[len(notes)-1].Content, "In Progress")
	}
	require.Len(t, f.notificationsFor("a1"), adminNotes+1)

	global := f.bc.find("", task.EventTaskUpdated)
	require.Len(t, global, 1)
	require.Equal(t, updated, global[0].payload)
	require.Len(t, f.bc.find(hub.TaskRoom(f.pending.ID), task.EventTaskUpdated), 1)
}

func TestAdminStatusChangeIsNotNotified(t *testing.T) {
	f := newFixture(t)
	before := len(f.store.Notifications())

	_, _, err := f.svc.Update(f.ctx, f.pending.ID, f.admin, domain.TaskPatch{Status: domain.Some(domain.StatusPaused)})
	require.NoError(t, err)

	require.Len(t, f.store.Notifications(), before)
	acts := f.store.Activities()
	require.Equal(t, domain.ActionTaskStatusChanged, acts[len(acts)-1].Action)
}

func TestNonStatusChangeRecordsNoActivity(t *testing.T) {
	f := newFixture(t)
	before := len(f.store.Activities())

	_, changes, err := f.svc.Update(f.ctx, f.pending.ID, f.admin, domain.TaskPatch{Title: domain.Some("Write final report")})
	require.NoError(t, err)
	require.Equal(t, []domain.TaskField{domain.FieldTitle}, changes.Fields())
	require.Len(t, f.store.Activities(), before)
	require.Len(t, f.bc.find("", task.EventTaskUpdated), 1)
}

func TestPostCommitFailuresAreIsolated(t *testing.T) {
	f := newFixture(t)
	f.store.FailOn("CreateActivity", domain.ErrServiceUnavailable)
	f.store.FailOn("CreateNotification", domain.ErrServiceUnavailable)

	updated, _, err := f.svc.Update(f.ctx, f.pending.ID, f.emp, domain.TaskPatch{Status: domain.Some(domain.StatusCompleted)})
	require.NoError(t, err)
	require.Equal(t, domain.StatusCompleted, updated.Status)

	stored, err := f.store.GetTask(f.ctx, f.pending.ID)
	require.NoError(t, err)
	require.Equal(t, domain.StatusCompleted, stored.Status)
	require.Len(t, f.bc.find("", task.EventTaskUpdated), 1)
}

func TestUpdateWriteFailure(t *testing.T) {
	f := newFixture(t)
	f.store.FailOn("UpdateTask", domain.ErrServiceUnavailable)

	_, _, err := f.svc.Update(f.ctx, f.pending.ID, f.admin, domain.TaskPatch{Title: domain.Some("x")})
	require.ErrorIs(t, err, domain.ErrServiceUnavailable)
	require.Empty(t, f.bc.events)
}

func TestUpdateValidation(t *testing.T) {
	f := newFixture(t)
	neg := -3.0

	cases := map[string]domain.TaskPatch{
		"null title":       {Title: domain.Null[string]()},
		"blank title":      {Title: domain.Some("   ")},
		"null status":      {Status: domain.Null[domain.TaskStatus]()},
		"unknown status":   {Status: domain.Some(domain.TaskStatus("archived"))},
		"bad priority":     {Priority: domain.Some(domain.TaskPriority("urgent"))},
		"negative hours":   {ActualHours: domain.Some(neg)},
		"admin assignee":   {AssignedTo: domain.Some(f.admin2.ID)},
		"unknown assignee": {AssignedTo: domain.Some("ghost")},
	}
	for name, patch := range cases {
		t.Run(name, func(t *testing.T) {
			_, _, err := f.svc.Update(f.ctx, f.pending.ID, f.admin, patch)
			require.ErrorIs(t, err, domain.ErrValidation)
		})
	}
}

func TestAdminReassignAndUnassign(t *testing.T) {
	f := newFixture(t)

	moved, changes, err := f.svc.Update(f.ctx, f.pending.ID, f.admin, domain.TaskPatch{AssignedTo: domain.Some(f.other.ID)})
	require.NoError(t, err)
	require.Equal(t, "e2", *moved.AssignedTo)
	change, ok := changes.Get(domain.FieldAssignedTo)
	require.True(t, ok)
	require.Equal(t, "e1", change.Old)
	require.Equal(t, "e2", change.New)

	cleared, _, err := f.svc.Update(f.ctx, f.pending.ID, f.admin, domain.TaskPatch{AssignedTo: domain.Null[string]()})
	require.NoError(t, err)
	require.Nil(t, cleared.AssignedTo)
	require.Equal(t, "a1", cleared.AssignedBy)
}

func TestDueDateIsNormalized(t *testing.T) {
	f := newFixture(t)
	due := time.Date(2024, 6, 1, 17, 0, 0, 123456789, time.FixedZone("CST", 8*3600))

	updated, _, err := f.svc.Update(f.ctx, f.pending.ID, f.admin, domain.TaskPatch{DueDate: domain.Some(due)})
	require.NoError(t, err)
	require.True(t, updated.DueDate.Equal(due.Truncate(time.Microsecond)))
	require.Equal(t, time.UTC, updated.DueDate.Location())

	_, changes, err := f.svc.Update(f.ctx, f.pending.ID, f.admin, domain.TaskPatch{DueDate: domain.Some(due)})
	require.NoError(t, err)
	require.Empty(t, changes)
}

func TestDelete(t *testing.T) {
	f := newFixture(t)

	require.ErrorIs(t, f.svc.Delete(f.ctx, f.pending.ID, f.emp), domain.ErrForbidden)
	require.NoError(t, f.svc.Delete(f.ctx, f.pending.ID, f.admin))

	_, err := f.store.GetTask(f.ctx, f.pending.ID)
	require.ErrorIs(t, err, domain.ErrNotFound)

	acts := f.store.Activities()
	require.Equal(t, domain.ActionTaskDeleted, acts[len(acts)-1].Action)
	deleted := f.bc.find("", task.EventTaskDeleted)
	require.Len(t, deleted, 1)
	require.Equal(t, map[string]string{"id": f.pending.ID}, deleted[0].payload)

	require.ErrorIs(t, f.svc.Delete(f.ctx, f.pending.ID, f.admin), domain.ErrNotFound)
}

func TestReadsAreRoleFiltered(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Create(f.ctx, f.admin, task.CreateRequest{Title: "For Eve", Priority: domain.PriorityLow, AssignedTo: &f.other.ID})
	require.NoError(t, err)

	all, err := f.svc.List(f.ctx, f.admin, domain.TaskFilter{})
	require.NoError(t, err)
	require.Len(t, all, 2)

	// 员工传入的 assigned_to 会被覆盖
	mine, err := f.svc.List(f.ctx, f.emp, domain.TaskFilter{AssignedTo: &f.other.ID})
	require.NoError(t, err)
	require.Len(t, mine, 1)
	require.Equal(t, f.pending.ID, mine[0].ID)

	_, err = f.svc.Get(f.ctx, f.pending.ID, f.other)
	require.ErrorIs(t, err, domain.ErrForbidden)
	got, err := f.svc.Get(f.ctx, f.pending.ID, f.emp)
	require.NoError(t, err)
	require.Equal(t, "Write report", got.Title)

	bad := domain.TaskStatus("archived")
	_, err = f.svc.List(f.ctx, f.admin, domain.TaskFilter{Status: &bad})
	require.ErrorIs(t, err, domain.ErrValidation)
}

func TestStatsAreScoped(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Create(f.ctx, f.admin, task.CreateRequest{Title: "For Eve", Priority: domain.PriorityLow, AssignedTo: &f.other.ID})
	require.NoError(t, err)
	_, _, err = f.svc.Update(f.ctx, f.pending.ID, f.emp, domain.TaskPatch{Status: domain.Some(domain.StatusCompleted)})
	require.NoError(t, err)

	stats, err := f.svc.Stats(f.ctx, f.admin)
	require.NoError(t, err)
	require.Equal(t, 2, stats.TotalTasks)
	require.Equal(t, 1, stats.CompletedTasks)
	require.Equal(t, 1, stats.PendingTasks)
	require.NotNil(t, stats.TotalEmployees)
	require.Equal(t, 2, *stats.TotalEmployees)

	mine, err := f.svc.Stats(f.ctx, f.emp)
	require.NoError(t, err)
	require.Equal(t, 1, mine.TotalTasks)
	require.Equal(t, 1, mine.CompletedTasks)
	require.Nil(t, mine.TotalEmployees)
}
