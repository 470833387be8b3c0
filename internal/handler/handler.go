package handler

import (
	"context"
	"log/slog"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/locales/zh"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	zh_translations "github.com/go-playground/validator/v10/translations/zh"
	"github.com/gorilla/websocket"
	"github.com/sysu-ecnc-dev/task-vision/backend/internal/activity"
	"github.com/sysu-ecnc-dev/task-vision/backend/internal/auth"
	"github.com/sysu-ecnc-dev/task-vision/backend/internal/config"
	"github.com/sysu-ecnc-dev/task-vision/backend/internal/domain"
	"github.com/sysu-ecnc-dev/task-vision/backend/internal/hub"
	"github.com/sysu-ecnc-dev/task-vision/backend/internal/notify"
	"github.com/sysu-ecnc-dev/task-vision/backend/internal/task"
)

// Store 是 handler 直接访问的那部分持久化接口，任务、动态和通知走各自的服务
type Store interface {
	CreateUser(ctx context.Context, user *domain.User) error
	GetUserByID(ctx context.Context, id string) (*domain.User, error)
	GetUserByEmail(ctx context.Context, email string) (*domain.User, error)
	ListUsers(ctx context.Context, role *domain.Role) ([]*domain.User, error)
	UpdateUserPassword(ctx context.Context, id, passwordHash string) error
	CreateMessage(ctx context.Context, m *domain.Message) error
	ListMessages(ctx context.Context, limit int) ([]*domain.Message, error)
}

// SessionStore 保存登出令牌和重置密码验证码
type SessionStore interface {
	Revoke(ctx context.Context, jti string, until time.Time) error
	SaveOTP(ctx context.Context, purpose, email, otp string, ttl time.Duration) error
	VerifyOTP(ctx context.Context, purpose, email, otp string) (bool, error)
	DeleteOTP(ctx context.Context, purpose, email string) error
}

type MailPublisher interface {
	Publish(ctx context.Context, msg domain.MailMessage) error
}

type Options struct {
	Config        *config.Config
	Store         Store
	Sessions      SessionStore
	Mail          MailPublisher
	Authenticator *auth.Authenticator
	Tasks         *task.Service
	Activities    *activity.Recorder
	Notifications *notify.Router
	Hub           *hub.Hub
	Logger        *slog.Logger
}

type Handler struct {
	validate   *validator.Validate
	config     *config.Config
	store      Store
	sessions   SessionStore
	translator ut.Translator
	mail       MailPublisher
	logger     *slog.Logger

	authenticator *auth.Authenticator
	tasks         *task.Service
	activities    *activity.Recorder
	notifications *notify.Router
	hub           *hub.Hub

	upgrader websocket.Upgrader
	events   map[string]eventHandler

	Mux *chi.Mux
}

func NewHandler(opts Options) (*Handler, error) {
	validate := validator.New(validator.WithRequiredStructEnabled())
	zh := zh.New()
	uni := ut.New(zh, zh)
	trans, _ := uni.GetTranslator("zh")
	if err := zh_translations.RegisterDefaultTranslations(validate, trans); err != nil {
		return nil, err
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	h := &Handler{
		validate:   validate,
		config:     opts.Config,
		store:      opts.Store,
		sessions:   opts.Sessions,
		translator: trans,
		mail:       opts.Mail,
		logger:     logger,

		authenticator: opts.Authenticator,
		tasks:         opts.Tasks,
		activities:    opts.Activities,
		notifications: opts.Notifications,
		hub:           opts.Hub,

		Mux: chi.NewRouter(),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.allowedOrigin,
	}
	h.events = h.socketEvents()

	return h, nil
}

func (h *Handler) RegisterRoutes() {
	h.Mux.Use(h.logRequest)
	h.Mux.Use(h.recoverer)
	h.Mux.Use(h.cors)

	// 握手时令牌放在查询参数中，鉴权在 ServeWS 内完成
	h.Mux.Get("/ws", h.ServeWS)

	h.Mux.Route("/api", func(r chi.Router) {
		// 认证相关
		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", h.Register)
			r.Post("/login", h.Login)
			r.Route("/reset-password", func(r chi.Router) {
				r.Post("/require", h.RequireResetPassword)
				r.Post("/confirm", h.ConfirmResetPassword)
			})
			r.Group(func(r chi.Router) {
				r.Use(h.auth)
				r.Post("/logout", h.Logout)
				r.Get("/me", h.GetMyInfo)
				r.Patch("/me/password", h.UpdateMyPassword)
			})
		})

		// 以下 API 必须要在登录后才允许调用
		r.Group(func(r chi.Router) {
			r.Use(h.auth)

			r.With(h.RequiredRole([]domain.Role{domain.RoleAdmin})).Get("/users", h.ListUsers)

			r.Route("/tasks", func(r chi.Router) {
				r.Post("/", h.CreateTask)
				r.Get("/", h.ListTasks)
				r.Get("/stats", h.GetTaskStats)
				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", h.GetTask)
					r.Patch("/", h.UpdateTask)
					r.Delete("/", h.DeleteTask)
				})
			})

			r.Get("/activities", h.ListActivities)

			r.Route("/notifications", func(r chi.Router) {
				r.Get("/", h.ListNotifications)
				r.Post("/read-all", h.MarkAllNotificationsRead)
				r.Patch("/{id}/read", h.MarkNotificationRead)
			})

			r.Route("/messages", func(r chi.Router) {
				r.Get("/", h.ListMessages)
				r.Post("/", h.SendMessage)
			})

			r.Get("/presence", h.GetPresence)
		})
	})
}
