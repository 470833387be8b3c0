package domain

const (
	MailTypeResetPassword    = "reset_password"
	MailTypeTaskNotification = "task_notification"
)

type MailMessage struct {
	Type string `json:"type"`
	To   string `json:"to"`
	Data any    `json:"data"`
}

type ResetPasswordMailData struct {
	Name       string `json:"name"`
	OTP        string `json:"otp"`
	Expiration int    `json:"expiration"`
}

type TaskNotificationMailData struct {
	Name    string  `json:"name"`
	Title   string  `json:"title"`
	Content string  `json:"content"`
	TaskID  *string `json:"taskID,omitempty"`
}
