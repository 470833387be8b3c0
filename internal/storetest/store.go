// Package storetest 提供一个内存实现的存储，满足各个服务定义的存储接口，供测试使用
package storetest

import (
	"context"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sysu-ecnc-dev/task-vision/backend/internal/domain"
)

type Store struct {
	mu            sync.Mutex
	users         map[string]*domain.User
	tasks         map[string]*domain.Task
	activities    []*domain.Activity
	notifications map[string]*domain.Notification
	notifyOrder   []string
	messages      []*domain.Message
	failures      map[string]error
}

func New() *Store {
	return &Store{
		users:         make(map[string]*domain.User),
		tasks:         make(map[string]*domain.Task),
		notifications: make(map[string]*domain.Notification),
		failures:      make(map[string]error),
	}
}

// FailOn 让名为 method 的方法之后都返回 err，err 为 nil 时恢复正常
func (s *Store) FailOn(method string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.failures, method)
		return
	}
	s.failures[method] = err
}

func (s *Store) fail(method string) error {
	return s.failures[method]
}

func copyUser(u *domain.User) *domain.User {
	c := *u
	if u.LastSeen != nil {
		t := *u.LastSeen
		c.LastSeen = &t
	}
	return &c
}

func copyTask(t *domain.Task) *domain.Task {
	c := *t
	if t.AssignedTo != nil {
		v := *t.AssignedTo
		c.AssignedTo = &v
	}
	if t.DueDate != nil {
		v := *t.DueDate
		c.DueDate = &v
	}
	if t.CompletedAt != nil {
		v := *t.CompletedAt
		c.CompletedAt = &v
	}
	if t.EstimatedHours != nil {
		v := *t.EstimatedHours
		c.EstimatedHours = &v
	}
	if t.ActualHours != nil {
		v := *t.ActualHours
		c.ActualHours = &v
	}
	return &c
}

/**********************************************
 * 用户
 **********************************************/

func (s *Store) CreateUser(_ context.Context, user *domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("CreateUser"); err != nil {
		return err
	}
	for _, u := range s.users {
		if strings.EqualFold(u.Email, user.Email) {
			return domain.ErrConflict
		}
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	user.IsActive = true
	s.users[user.ID] = copyUser(user)
	return nil
}

func (s *Store) GetUserByID(_ context.Context, id string) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("GetUserByID"); err != nil {
		return nil, err
	}
	u, ok := s.users[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return copyUser(u), nil
}

func (s *Store) GetUserByEmail(_ context.Context, email string) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("GetUserByEmail"); err != nil {
		return nil, err
	}
	for _, u := range s.users {
		if strings.EqualFold(u.Email, email) {
			return copyUser(u), nil
		}
	}
	return nil, domain.ErrNotFound
}

func (s *Store) ListUsers(_ context.Context, role *domain.Role) ([]*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("ListUsers"); err != nil {
		return nil, err
	}
	users := make([]*domain.User, 0, len(s.users))
	for _, u := range s.users {
		if role == nil || u.Role == *role {
			users = append(users, copyUser(u))
		}
	}
	sort.Slice(users, func(i, j int) bool { return users[i].CreatedAt.Before(users[j].CreatedAt) })
	return users, nil
}

func (s *Store) ListUsersByRole(ctx context.Context, role domain.Role) ([]*domain.User, error) {
	return s.ListUsers(ctx, &role)
}

func (s *Store) CountUsersByRole(ctx context.Context, role domain.Role) (int, error) {
	users, err := s.ListUsers(ctx, &role)
	if err != nil {
		return 0, err
	}
	return len(users), nil
}

func (s *Store) UpdateUserPassword(_ context.Context, id, passwordHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("UpdateUserPassword"); err != nil {
		return err
	}
	u, ok := s.users[id]
	if !ok {
		return domain.ErrNotFound
	}
	u.PasswordHash = passwordHash
	return nil
}

func (s *Store) SetPresence(_ context.Context, userID string, online bool, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("SetPresence"); err != nil {
		return err
	}
	u, ok := s.users[userID]
	if !ok {
		return domain.ErrNotFound
	}
	u.IsOnline = online
	seen := at
	u.LastSeen = &seen
	return nil
}

/**********************************************
 * 任务
 **********************************************/

func (s *Store) CreateTask(_ context.Context, task *domain.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("CreateTask"); err != nil {
		return err
	}
	if _, ok := s.tasks[task.ID]; ok {
		return domain.ErrConflict
	}
	s.tasks[task.ID] = copyTask(task)
	return nil
}

func (s *Store) GetTask(_ context.Context, id string) (*domain.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("GetTask"); err != nil {
		return nil, err
	}
	t, ok := s.tasks[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return copyTask(t), nil
}

func (s *Store) UpdateTask(_ context.Context, task *domain.Task) (*domain.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("UpdateTask"); err != nil {
		return nil, err
	}
	stored, ok := s.tasks[task.ID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	next := copyTask(task)
	next.AssignedBy = stored.AssignedBy
	next.CreatedAt = stored.CreatedAt
	s.tasks[task.ID] = next
	return copyTask(next), nil
}

func (s *Store) DeleteTask(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("DeleteTask"); err != nil {
		return err
	}
	if _, ok := s.tasks[id]; !ok {
		return domain.ErrNotFound
	}
	delete(s.tasks, id)
	return nil
}

func matchTask(t *domain.Task, filter domain.TaskFilter) bool {
	if filter.AssignedTo != nil && !t.IsAssignedTo(*filter.AssignedTo) {
		return false
	}
	if filter.Status != nil && t.Status != *filter.Status {
		return false
	}
	return true
}

func (s *Store) ListTasks(_ context.Context, filter domain.TaskFilter) ([]*domain.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("ListTasks"); err != nil {
		return nil, err
	}
	tasks := make([]*domain.Task, 0)
	for _, t := range s.tasks {
		if matchTask(t, filter) {
			tasks = append(tasks, copyTask(t))
		}
	}
	sort.Slice(tasks, func(i, j int) bool { return tasks[i].CreatedAt.After(tasks[j].CreatedAt) })
	return tasks, nil
}

func (s *Store) TaskStats(_ context.Context, assignedTo *string) (domain.TaskStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("TaskStats"); err != nil {
		return domain.TaskStats{}, err
	}
	stats := domain.TaskStats{}
	for _, t := range s.tasks {
		if !matchTask(t, domain.TaskFilter{AssignedTo: assignedTo}) {
			continue
		}
		stats.TotalTasks++
		if t.Status == domain.StatusCompleted {
			stats.CompletedTasks++
		} else {
			stats.PendingTasks++
		}
	}
	return stats, nil
}

// Tasks 返回当前所有任务，测试断言用
func (s *Store) Tasks() []*domain.Task {
	tasks, _ := s.ListTasks(context.Background(), domain.TaskFilter{})
	return tasks
}

/**********************************************
 * 动态
 **********************************************/

func (s *Store) CreateActivity(_ context.Context, activity *domain.Activity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("CreateActivity"); err != nil {
		return err
	}
	c := *activity
	s.activities = append(s.activities, &c)
	return nil
}

func (s *Store) ListActivities(_ context.Context, limit int) ([]*domain.Activity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("ListActivities"); err != nil {
		return nil, err
	}
	out := make([]*domain.Activity, 0, len(s.activities))
	for i := len(s.activities) - 1; i >= 0 && len(out) < limit; i-- {
		c := *s.activities[i]
		out = append(out, &c)
	}
	return out, nil
}

// Activities 按写入顺序返回所有动态
func (s *Store) Activities() []*domain.Activity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.activities)
}

/**********************************************
 * 通知
 **********************************************/

func (s *Store) CreateNotification(_ context.Context, n *domain.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("CreateNotification"); err != nil {
		return err
	}
	c := *n
	s.notifications[n.ID] = &c
	s.notifyOrder = append(s.notifyOrder, n.ID)
	return nil
}

func (s *Store) GetNotification(_ context.Context, id string) (*domain.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("GetNotification"); err != nil {
		return nil, err
	}
	n, ok := s.notifications[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	c := *n
	return &c, nil
}

func (s *Store) MarkNotificationRead(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("MarkNotificationRead"); err != nil {
		return err
	}
	n, ok := s.notifications[id]
	if !ok {
		return domain.ErrNotFound
	}
	n.IsRead = true
	return nil
}

func (s *Store) MarkAllNotificationsRead(_ context.Context, userID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("MarkAllNotificationsRead"); err != nil {
		return 0, err
	}
	var n int64
	for _, notification := range s.notifications {
		if notification.UserID == userID && !notification.IsRead {
			notification.IsRead = true
			n++
		}
	}
	return n, nil
}

func (s *Store) ListNotifications(_ context.Context, userID string, unreadOnly bool) ([]*domain.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("ListNotifications"); err != nil {
		return nil, err
	}
	out := make([]*domain.Notification, 0)
	for i := len(s.notifyOrder) - 1; i >= 0; i-- {
		n := s.notifications[s.notifyOrder[i]]
		if n.UserID != userID || (unreadOnly && n.IsRead) {
			continue
		}
		c := *n
		out = append(out, &c)
	}
	return out, nil
}

// Notifications 按写入顺序返回所有通知
func (s *Store) Notifications() []*domain.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*domain.Notification, 0, len(s.notifyOrder))
	for _, id := range s.notifyOrder {
		c := *s.notifications[id]
		out = append(out, &c)
	}
	return out
}

/**********************************************
 * 聊天消息
 **********************************************/

func (s *Store) CreateMessage(_ context.Context, m *domain.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("CreateMessage"); err != nil {
		return err
	}
	c := *m
	s.messages = append(s.messages, &c)
	return nil
}

func (s *Store) ListMessages(_ context.Context, limit int) ([]*domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("ListMessages"); err != nil {
		return nil, err
	}
	start := 0
	if len(s.messages) > limit {
		start = len(s.messages) - limit
	}
	out := make([]*domain.Message, 0, len(s.messages)-start)
	for _, m := range s.messages[start:] {
		c := *m
		out = append(out, &c)
	}
	return out, nil
}
