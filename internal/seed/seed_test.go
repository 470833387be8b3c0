package seed

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/sysu-ecnc-dev/task-vision/backend/internal/domain"
	"github.com/sysu-ecnc-dev/task-vision/backend/internal/storetest"
)

func newSeeder(t *testing.T) (*Seeder, *storetest.Store, *domain.User) {
	t.Helper()
	store := storetest.New()
	admin := &domain.User{ID: "admin", Email: "admin@example.com", Name: "Ada", Role: domain.RoleAdmin}
	require.NoError(t, store.CreateUser(context.Background(), admin))

	s := New(store, nil)
	s.Now = func() time.Time { return time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC) }
	return s, store, admin
}

func TestEmployeesAndTasks(t *testing.T) {
	s, store, admin := newSeeder(t)
	ctx := context.Background()

	employees, err := s.Employees(ctx, 5, "hash", "example.org")
	require.NoError(t, err)
	require.NotEmpty(t, employees)
	for _, e := range employees {
		require.Equal(t, domain.RoleEmployee, e.Role)
		require.True(t, strings.HasSuffix(e.Email, "@example.org"))
	}

	tasks, err := s.Tasks(ctx, 10)
	require.NoError(t, err)
	require.Len(t, tasks, 10)
	require.Len(t, store.Tasks(), 10)
	for _, task := range tasks {
		require.Equal(t, admin.ID, task.AssignedBy)
	}
}

func TestTasksWithoutAdmin(t *testing.T) {
	s := New(storetest.New(), nil)
	_, err := s.Tasks(context.Background(), 1)
	require.ErrorIs(t, err, ErrNoAdmin)
}

func TestImportTasks(t *testing.T) {
	s, store, admin := newSeeder(t)
	ctx := context.Background()
	require.NoError(t, store.CreateUser(ctx, &domain.User{ID: "erin", Email: "erin@example.com", Name: "Erin", Role: domain.RoleEmployee}))

	csv := strings.Join([]string{
		"标题,描述,优先级,负责人邮箱,负责人姓名,截止日期,预计工时",
		"整理周报,每周五提交,High,Erin@example.com,,2024-05-03,2.5",
		"检查备份,,low,new@example.com,小明,,",
		",缺少标题,medium,,,,",
		"错误优先级,,urgent,,,,",
		"错误日期,,medium,,,05/03/2024,",
		"无人负责,,medium,,,,",
	}, "\n")

	n, err := s.ImportTasks(ctx, strings.NewReader(csv), admin, "hash")
	require.NoError(t, err)
	require.Equal(t, 3, n)

	tasks := store.Tasks()
	require.Len(t, tasks, 3)

	byTitle := map[string]*domain.Task{}
	for _, task := range tasks {
		byTitle[task.Title] = task
		require.Equal(t, domain.StatusNotStarted, task.Status)
		require.Equal(t, admin.ID, task.AssignedBy)
	}

	report := byTitle["整理周报"]
	require.Equal(t, domain.PriorityHigh, report.Priority)
	require.Equal(t, "erin", *report.AssignedTo)
	require.Equal(t, time.Date(2024, 5, 3, 0, 0, 0, 0, time.UTC), *report.DueDate)
	require.Equal(t, 2.5, *report.EstimatedHours)

	created, err := store.GetUserByEmail(ctx, "new@example.com")
	require.NoError(t, err)
	require.Equal(t, "小明", created.Name)
	require.Equal(t, domain.RoleEmployee, created.Role)
	require.Equal(t, created.ID, *byTitle["检查备份"].AssignedTo)

	require.Nil(t, byTitle["无人负责"].AssignedTo)
}

func TestImportTasksRejectsAdminAssignee(t *testing.T) {
	s, store, admin := newSeeder(t)

	csv := "标题,优先级,负责人邮箱\n越权,low,admin@example.com\n"
	n, err := s.ImportTasks(context.Background(), strings.NewReader(csv), admin, "hash")
	require.NoError(t, err)
	require.Zero(t, n)
	require.Empty(t, store.Tasks())
}

func TestImportTasksMissingColumn(t *testing.T) {
	s, _, admin := newSeeder(t)

	_, err := s.ImportTasks(context.Background(), strings.NewReader("标题,描述\nx,y\n"), admin, "hash")
	require.Error(t, err)
}

func TestImportTasksStoreFailure(t *testing.T) {
	s, store, admin := newSeeder(t)
	boom := errors.New("boom")
	store.FailOn("CreateTask", boom)

	_, err := s.ImportTasks(context.Background(), strings.NewReader("标题,优先级\nx,low\n"), admin, "hash")
	require.ErrorIs(t, err, boom)
}
