package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jmoiron/sqlx"
	"github.com/sysu-ecnc-dev/task-vision/backend/internal/auth"
	"github.com/sysu-ecnc-dev/task-vision/backend/internal/config"
	"github.com/sysu-ecnc-dev/task-vision/backend/internal/domain"
	"github.com/sysu-ecnc-dev/task-vision/backend/internal/repository"
	"github.com/sysu-ecnc-dev/task-vision/backend/internal/seed"

	_ "github.com/jackc/pgx/v5/stdlib"
)

func main() {
	var op int
	var n int
	var csvPath string

	flag.IntVar(&op, "op", 0, "要执行的操作 (1: 插入随机员工, 2: 插入随机任务, 3: 从 CSV 导入任务)")
	flag.IntVar(&n, "n", 5, "要插入的记录数量")
	flag.StringVar(&csvPath, "csv", "./tasks.csv", "导入任务时读取的 CSV 文件")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// 读取配置文件
	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Error("无法读取配置文件", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 创建数据库连接池
	dbpool, err := sqlx.Open("pgx", cfg.Database.DSN)
	if err != nil {
		logger.Error("无法创建数据库连接池", "error", err)
		return
	}
	defer dbpool.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Database.ConnectTimeout)*time.Second)
	defer cancel()

	if err := dbpool.PingContext(ctx); err != nil {
		logger.Error("无法连接到数据库", "error", err)
		return
	}

	// 创建 repository
	repo := repository.NewRepository(cfg, dbpool)
	if err := repo.Migrate(ctx); err != nil {
		logger.Error("数据库迁移失败", "error", err)
		return
	}

	seeder := seed.New(repo, logger)

	// 所有生成的账号共用同一个密码，只需要计算一次哈希
	passwordHash, err := auth.HashPassword(cfg.Seed.User.Password)
	if err != nil {
		logger.Error("无法生成密码哈希", "error", err)
		return
	}

	// 执行操作
	switch op {
	case 0:
		logger.Error("未指定操作")
	case 1:
		if n <= 0 {
			logger.Error("请输入合法的员工数量")
			return
		}
		users, err := seeder.Employees(context.Background(), n, passwordHash, cfg.Seed.User.EmailDomain)
		if err != nil {
			logger.Error("插入员工失败", "error", err)
		}
		printUsers(users, cfg.Seed.User.Password)
		logger.Info("插入员工成功", slog.Int("count", len(users)))
	case 2:
		if n <= 0 {
			logger.Error("请输入合法的任务数量")
			return
		}
		tasks, err := seeder.Tasks(context.Background(), n)
		if err != nil {
			logger.Error("插入任务失败", "error", err)
		}
		printTasks(tasks)
		logger.Info("插入任务成功", slog.Int("count", len(tasks)))
	case 3:
		file, err := os.Open(csvPath)
		if err != nil {
			logger.Error("打开文件失败", "error", err)
			return
		}
		defer file.Close()

		owner, err := repo.GetUserByEmail(context.Background(), cfg.InitialAdmin.Email)
		if err != nil {
			logger.Error("无法获取初始管理员", "error", err)
			return
		}

		count, err := seeder.ImportTasks(context.Background(), file, owner, passwordHash)
		if err != nil {
			logger.Error("导入任务失败", "error", err)
		}
		logger.Info("导入任务完成", slog.Int("count", count))
	default:
		logger.Error("指定的操作非法")
	}
}

func printUsers(users []*domain.User, password string) {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row{"ID", "姓名", "邮箱", "密码"})
	for _, u := range users {
		tw.AppendRow(table.Row{u.ID, u.Name, u.Email, password})
	}
	tw.Render()
}

func printTasks(tasks []*domain.Task) {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row{"ID", "标题", "优先级", "状态", "负责人"})
	for _, t := range tasks {
		assignee := "-"
		if t.AssignedTo != nil {
			assignee = *t.AssignedTo
		}
		tw.AppendRow(table.Row{t.ID, t.Title, t.Priority, t.Status, assignee})
	}
	tw.Render()
}
