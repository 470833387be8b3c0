package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sysu-ecnc-dev/task-vision/backend/internal/activity"
	"github.com/sysu-ecnc-dev/task-vision/backend/internal/auth"
	"github.com/sysu-ecnc-dev/task-vision/backend/internal/domain"
	"github.com/sysu-ecnc-dev/task-vision/backend/internal/utils"
)

const otpPurposeResetPassword = "reset_password"

type sessionResponse struct {
	User  *domain.User `json:"user"`
	Token string       `json:"token"`
}

// issueSession 签发令牌并通过 http-only 的 cookie 一并返回给客户端
func (h *Handler) issueSession(w http.ResponseWriter, user *domain.User) (*sessionResponse, error) {
	token, claims, err := h.authenticator.Issue(user)
	if err != nil {
		return nil, err
	}

	cookie := &http.Cookie{
		Name:     tokenCookieName,
		Value:    token,
		Expires:  claims.ExpiresAt.Time,
		Path:     "/",
		HttpOnly: true,
		Secure:   false,
	}

	if h.config.Environment == "production" {
		cookie.Secure = true
		cookie.SameSite = http.SameSiteStrictMode
	}

	http.SetCookie(w, cookie)

	return &sessionResponse{User: user, Token: token}, nil
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email" validate:"required,email"`
		Password string `json:"password" validate:"required,min=6"`
		Name     string `json:"name" validate:"required,max=64"`
		Role     string `json:"role" validate:"omitempty,oneof=admin employee"`
	}

	if err := h.readJSON(r, &req); err != nil {
		h.badRequest(w, r, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.badRequest(w, r, err)
		return
	}

	passwordHash, err := auth.HashPassword(req.Password)
	if err != nil {
		h.internalServerError(w, r, err)
		return
	}

	role := domain.RoleEmployee
	if req.Role != "" {
		role = domain.Role(req.Role)
	}

	user := &domain.User{
		ID:           uuid.NewString(),
		Email:        strings.ToLower(req.Email),
		PasswordHash: passwordHash,
		Name:         req.Name,
		Role:         role,
	}

	if err := h.store.CreateUser(r.Context(), user); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			h.errorResponse(w, r, http.StatusConflict, "邮箱已被注册")
			return
		}
		h.serviceError(w, r, err)
		return
	}

	// 注册已经成功，动态记录失败只记日志
	ctx := context.WithoutCancel(r.Context())
	if _, err := h.activities.Record(ctx, user, domain.ActionUserRegistered, activity.DescribeUserRegistered(user), nil); err != nil {
		h.logger.Error("记录注册动态失败", "user", user.ID, "error", err)
	}

	session, err := h.issueSession(w, user)
	if err != nil {
		h.internalServerError(w, r, err)
		return
	}

	h.createdResponse(w, r, "注册成功", session)
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email" validate:"required,email"`
		Password string `json:"password" validate:"required"`
	}

	if err := h.readJSON(r, &req); err != nil {
		h.badRequest(w, r, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.badRequest(w, r, err)
		return
	}

	// 验证邮箱和密码
	user, err := h.store.GetUserByEmail(r.Context(), req.Email)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrNotFound):
			h.errorResponse(w, r, http.StatusUnauthorized, "邮箱不存在或密码错误")
		default:
			h.serviceError(w, r, err)
		}
		return
	}

	ok, err := auth.CheckPassword(user.PasswordHash, req.Password)
	if err != nil {
		h.internalServerError(w, r, err)
		return
	}
	if !ok {
		h.errorResponse(w, r, http.StatusUnauthorized, "邮箱不存在或密码错误")
		return
	}
	if !user.IsActive {
		h.errorResponse(w, r, http.StatusForbidden, "账号已停用")
		return
	}

	session, err := h.issueSession(w, user)
	if err != nil {
		h.internalServerError(w, r, err)
		return
	}

	h.successResponse(w, r, "登录成功", session)
}

func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	token := r.Context().Value(TokenCtx).(string)

	claims, err := h.authenticator.Parse(token)
	if err != nil {
		h.serviceError(w, r, err)
		return
	}

	// 在令牌自然过期之前一直拒绝它
	if err := h.sessions.Revoke(r.Context(), claims.ID, claims.ExpiresAt.Time); err != nil {
		h.serviceError(w, r, errors.Join(domain.ErrServiceUnavailable, err))
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:    tokenCookieName,
		Value:   "",
		Expires: time.Now().Add(-time.Hour),
		Path:    "/",
	})

	h.successResponse(w, r, "登出成功", nil)
}

func (h *Handler) RequireResetPassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email" validate:"required,email"`
	}

	if err := h.readJSON(r, &req); err != nil {
		h.badRequest(w, r, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.badRequest(w, r, err)
		return
	}

	user, err := h.store.GetUserByEmail(r.Context(), req.Email)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrNotFound):
			// 这里虽然已经知道了用户不存在，但是为了安全起见，还是告诉客户端邮件已发送，以防止接口被滥用
			h.successResponse(w, r, "重置密码所需验证码已通过邮件发送", nil)
		default:
			h.serviceError(w, r, err)
		}
		return
	}

	// 生成 OTP 并将 OTP 存到 redis
	otp := utils.GenerateRandomOTP()
	ttl := time.Duration(h.config.OTP.Expiration) * time.Second
	if err := h.sessions.SaveOTP(r.Context(), otpPurposeResetPassword, user.Email, otp, ttl); err != nil {
		h.serviceError(w, r, errors.Join(domain.ErrServiceUnavailable, err))
		return
	}

	mailMessage := domain.MailMessage{
		Type: domain.MailTypeResetPassword,
		To:   user.Email,
		Data: domain.ResetPasswordMailData{
			Name:       user.Name,
			OTP:        otp,
			Expiration: h.config.OTP.Expiration / 60, // 邮件中显示的过期时间以分钟为单位，而配置中以秒为单位
		},
	}

	if err := h.mail.Publish(r.Context(), mailMessage); err != nil {
		h.serviceError(w, r, err)
		return
	}

	h.successResponse(w, r, "重置密码所需验证码已通过邮件发送", nil)
}

func (h *Handler) ConfirmResetPassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email" validate:"required,email"`
		OTP      string `json:"otp" validate:"required,len=6,numeric"`
		Password string `json:"password" validate:"required,min=6"`
	}

	if err := h.readJSON(r, &req); err != nil {
		h.badRequest(w, r, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.badRequest(w, r, err)
		return
	}

	user, err := h.store.GetUserByEmail(r.Context(), req.Email)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrNotFound):
			h.errorResponse(w, r, http.StatusBadRequest, "验证码错误")
		default:
			h.serviceError(w, r, err)
		}
		return
	}

	// 检验 OTP
	ok, err := h.sessions.VerifyOTP(r.Context(), otpPurposeResetPassword, user.Email, req.OTP)
	if err != nil {
		h.serviceError(w, r, errors.Join(domain.ErrServiceUnavailable, err))
		return
	}
	if !ok {
		h.errorResponse(w, r, http.StatusBadRequest, "验证码错误")
		return
	}

	passwordHash, err := auth.HashPassword(req.Password)
	if err != nil {
		h.internalServerError(w, r, err)
		return
	}

	if err := h.store.UpdateUserPassword(r.Context(), user.ID, passwordHash); err != nil {
		h.serviceError(w, r, err)
		return
	}

	// 密码已经更新，删除失败时验证码也会自然过期
	if err := h.sessions.DeleteOTP(r.Context(), otpPurposeResetPassword, user.Email); err != nil {
		h.logger.Warn("删除验证码失败", "email", user.Email, "error", err)
	}

	h.successResponse(w, r, "重置密码成功", nil)
}
