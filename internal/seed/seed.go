// Package seed 向开发环境的数据库写入演示数据：随机生成的员工和任务，或者从 CSV 导入的真实任务清单。
package seed

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sysu-ecnc-dev/task-vision/backend/internal/domain"
	"github.com/sysu-ecnc-dev/task-vision/backend/internal/utils"
)

type Store interface {
	CreateUser(ctx context.Context, user *domain.User) error
	GetUserByEmail(ctx context.Context, email string) (*domain.User, error)
	ListUsersByRole(ctx context.Context, role domain.Role) ([]*domain.User, error)
	CreateTask(ctx context.Context, task *domain.Task) error
}

var ErrNoAdmin = errors.New("数据库中没有管理员")

// CSV 表头
const (
	ColumnTitle          = "标题"
	ColumnDescription    = "描述"
	ColumnPriority       = "优先级"
	ColumnAssigneeEmail  = "负责人邮箱"
	ColumnAssigneeName   = "负责人姓名"
	ColumnDueDate        = "截止日期"
	ColumnEstimatedHours = "预计工时"
)

var requiredColumns = []string{ColumnTitle, ColumnPriority}

type Seeder struct {
	store  Store
	logger *slog.Logger

	Now func() time.Time
}

func New(store Store, logger *slog.Logger) *Seeder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Seeder{store: store, logger: logger, Now: time.Now}
}

// Employees 插入 n 个随机员工。随机生成的邮箱可能重复，重复的账号会被跳过
func (s *Seeder) Employees(ctx context.Context, n int, passwordHash, emailDomain string) ([]*domain.User, error) {
	created := make([]*domain.User, 0, n)
	for i := 0; i < n; i++ {
		user := utils.GenerateRandomEmployee(passwordHash, emailDomain)
		if err := s.store.CreateUser(ctx, user); err != nil {
			if errors.Is(err, domain.ErrConflict) {
				s.logger.Warn("邮箱重复，跳过", "email", user.Email)
				continue
			}
			return created, err
		}
		created = append(created, user)
	}
	return created, nil
}

// Tasks 以随机管理员的身份插入 n 个随机任务，大约五分之一的任务不分配给任何人
func (s *Seeder) Tasks(ctx context.Context, n int) ([]*domain.Task, error) {
	admins, err := s.store.ListUsersByRole(ctx, domain.RoleAdmin)
	if err != nil {
		return nil, err
	}
	if len(admins) == 0 {
		return nil, ErrNoAdmin
	}
	employees, err := s.store.ListUsersByRole(ctx, domain.RoleEmployee)
	if err != nil {
		return nil, err
	}

	created := make([]*domain.Task, 0, n)
	for i := 0; i < n; i++ {
		owner := admins[rand.Intn(len(admins))]
		var assignee *domain.User
		if len(employees) > 0 && rand.Intn(5) != 0 {
			assignee = employees[rand.Intn(len(employees))]
		}

		task := utils.GenerateRandomTask(owner, assignee)
		if err := s.store.CreateTask(ctx, task); err != nil {
			return created, err
		}
		created = append(created, task)
	}
	return created, nil
}

// ImportTasks 从 CSV 导入任务，负责人不存在时以 passwordHash 新建员工账号。
// 单行数据有问题时记录日志并跳过，返回成功导入的任务数
func (s *Seeder) ImportTasks(ctx context.Context, r io.Reader, owner *domain.User, passwordHash string) (int, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	// 读取表头
	headers, err := reader.Read()
	if err != nil {
		return 0, fmt.Errorf("读取表头失败: %w", err)
	}
	for _, column := range requiredColumns {
		if !slices.Contains(headers, column) {
			return 0, fmt.Errorf("缺少列 %q", column)
		}
	}

	imported := 0
	line := 1
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return imported, fmt.Errorf("读取第 %d 行失败: %w", line, err)
		}

		record := make(map[string]string, len(headers))
		for i, value := range row {
			record[headers[i]] = strings.TrimSpace(value)
		}

		task, err := s.buildTask(ctx, record, owner, passwordHash)
		if err != nil {
			s.logger.Error("跳过无效的行", "line", line, "error", err)
			continue
		}
		if err := s.store.CreateTask(ctx, task); err != nil {
			return imported, fmt.Errorf("插入第 %d 行的任务失败: %w", line, err)
		}
		imported++
	}

	return imported, nil
}

func (s *Seeder) buildTask(ctx context.Context, record map[string]string, owner *domain.User, passwordHash string) (*domain.Task, error) {
	now := s.Now().UTC().Truncate(time.Microsecond)

	task := &domain.Task{
		ID:          uuid.NewString(),
		Title:       record[ColumnTitle],
		Description: record[ColumnDescription],
		Priority:    domain.TaskPriority(strings.ToLower(record[ColumnPriority])),
		Status:      domain.StatusNotStarted,
		AssignedBy:  owner.ID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if task.Title == "" {
		return nil, domain.NewValidationError("title", "不能为空")
	}
	if !task.Priority.Valid() {
		return nil, domain.NewValidationError("priority", "无效的优先级 %q", record[ColumnPriority])
	}

	if v := record[ColumnDueDate]; v != "" {
		due, err := time.ParseInLocation(time.DateOnly, v, time.UTC)
		if err != nil {
			return nil, domain.NewValidationError("due_date", "日期格式应为 YYYY-MM-DD")
		}
		task.DueDate = &due
	}
	if v := record[ColumnEstimatedHours]; v != "" {
		hours, err := strconv.ParseFloat(v, 64)
		if err != nil || hours < 0 {
			return nil, domain.NewValidationError("estimated_hours", "必须是非负数")
		}
		task.EstimatedHours = &hours
	}

	if email := strings.ToLower(record[ColumnAssigneeEmail]); email != "" {
		assignee, err := s.ensureEmployee(ctx, email, record[ColumnAssigneeName], passwordHash)
		if err != nil {
			return nil, err
		}
		task.AssignedTo = &assignee.ID
	}

	return task, nil
}

func (s *Seeder) ensureEmployee(ctx context.Context, email, name, passwordHash string) (*domain.User, error) {
	user, err := s.store.GetUserByEmail(ctx, email)
	switch {
	case err == nil:
		if user.Role != domain.RoleEmployee {
			return nil, domain.NewValidationError("assigned_to", "%s 不是员工", email)
		}
		return user, nil
	case !errors.Is(err, domain.ErrNotFound):
		return nil, err
	}

	// 表示该员工不在数据库中，需要新建并插入
	if name == "" {
		name = utils.GenerateRandomChineseName()
	}
	user = &domain.User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: passwordHash,
		Name:         name,
		Role:         domain.RoleEmployee,
	}
	if err := s.store.CreateUser(ctx, user); err != nil {
		return nil, err
	}
	s.logger.Info("新建员工", "email", email)
	return user, nil
}
