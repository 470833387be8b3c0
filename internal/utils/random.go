package utils

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/mozillazg/go-pinyin"
	"github.com/sysu-ecnc-dev/task-vision/backend/internal/domain"
)

var commonSurnames = []string{
	"王", "李", "张", "刘", "陈", "杨", "赵", "黄", "周", "吴",
	"徐", "孙", "胡", "朱", "高", "林", "何", "郭", "马", "罗",
}
var commonNameCharacters = []string{
	"伟", "强", "芳", "敏", "静", "丽", "刚", "杰", "娟", "勇",
	"艳", "涛", "明", "军", "磊", "洋", "勇", "霞", "飞", "玲",
	"超", "华", "平", "辉", "梅", "鑫", "龙", "鹏", "玉", "斌",
	"庆", "建", "丹", "彬", "凤", "旭", "宁", "乐", "成", "欣",
}

func GenerateRandomChineseName() string {
	surname := commonSurnames[rand.Intn(len(commonSurnames))]
	nameLength := rand.Intn(2) + 1
	name := ""

	for i := 0; i < nameLength; i++ {
		name += commonNameCharacters[rand.Intn(len(commonNameCharacters))]
	}
	return surname + name
}

var digits = "0123456789"

// GenerateEmailLocalPart 用姓名拼音的前缀拼出邮箱用户名，末尾追加 1~3 位数字降低重复概率
func GenerateEmailLocalPart(chineseName string) string {
	pinyinArray := pinyin.LazyConvert(chineseName, nil)
	local := ""

	for _, py := range pinyinArray {
		length := rand.Intn(len(py)) + 1
		local += py[:length]
	}

	digitsLength := rand.Intn(3) + 1
	for i := 0; i < digitsLength; i++ {
		local += string(digits[rand.Intn(len(digits))])
	}

	return local
}

// GenerateRandomEmployee 生成一个员工，passwordHash 由调用方事先计算好，避免每个用户都做一次 bcrypt
func GenerateRandomEmployee(passwordHash string, emailDomainName string) *domain.User {
	name := GenerateRandomChineseName()

	return &domain.User{
		ID:           uuid.NewString(),
		Email:        GenerateEmailLocalPart(name) + "@" + emailDomainName,
		PasswordHash: passwordHash,
		Name:         name,
		Role:         domain.RoleEmployee,
	}
}

func GenerateRandomOTP() string {
	return fmt.Sprintf("%06d", rand.Intn(1000000))
}

var taskVerbs = []string{"整理", "编写", "检查", "更新", "部署", "测试", "设计", "修复"}
var taskObjects = []string{"周报", "接口文档", "数据库备份", "登录页面", "值班表", "监控告警", "用户反馈", "服务器配置"}

var priorities = []domain.TaskPriority{domain.PriorityHigh, domain.PriorityMedium, domain.PriorityLow}

var statuses = []domain.TaskStatus{
	domain.StatusNotStarted,
	domain.StatusInProgress,
	domain.StatusPaused,
	domain.StatusCompleted,
}

// GenerateRandomTask 生成一个由 owner 创建的任务，assignee 为 nil 时任务不分配给任何人
func GenerateRandomTask(owner *domain.User, assignee *domain.User) *domain.Task {
	now := time.Now().UTC().Truncate(time.Microsecond)
	createdAt := now.Add(-time.Duration(rand.Intn(14*24)) * time.Hour)
	due := createdAt.Add(time.Duration(rand.Intn(21)+1) * 24 * time.Hour)
	estimated := float64(rand.Intn(16)+1) / 2

	task := &domain.Task{
		ID:             uuid.NewString(),
		Title:          taskVerbs[rand.Intn(len(taskVerbs))] + taskObjects[rand.Intn(len(taskObjects))],
		Description:    "自动生成的任务",
		Priority:       priorities[rand.Intn(len(priorities))],
		Status:         statuses[rand.Intn(len(statuses))],
		AssignedBy:     owner.ID,
		CreatedAt:      createdAt,
		DueDate:        &due,
		EstimatedHours: &estimated,
		UpdatedAt:      createdAt,
	}
	if assignee != nil {
		task.AssignedTo = &assignee.ID
	}

	switch task.Status {
	case domain.StatusCompleted:
		completedAt := createdAt.Add(time.Duration(rand.Intn(72)+1) * time.Hour)
		actual := estimated + float64(rand.Intn(5)-2)/2
		if actual < 0 {
			actual = 0
		}
		task.CompletedAt = &completedAt
		task.ActualHours = &actual
		task.UpdatedAt = completedAt
	case domain.StatusInProgress, domain.StatusPaused:
		actual := float64(rand.Intn(int(estimated*2)+1)) / 2
		task.ActualHours = &actual
	}

	return task
}
