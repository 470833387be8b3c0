package utils

import (
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/sysu-ecnc-dev/task-vision/backend/internal/domain"
)

func TestGenerateEmailLocalPart(t *testing.T) {
	local := GenerateEmailLocalPart("王小明")
	require.Regexp(t, regexp.MustCompile(`^w[a-z]*x[a-z]*m[a-z]*[0-9]{1,3}$`), local)
}

func TestGenerateRandomEmployee(t *testing.T) {
	u := GenerateRandomEmployee("hash", "example.com")
	require.Equal(t, domain.RoleEmployee, u.Role)
	require.Equal(t, "hash", u.PasswordHash)
	require.True(t, strings.HasSuffix(u.Email, "@example.com"))
	require.NotEmpty(t, u.ID)
}

func TestGenerateRandomTaskIsConsistent(t *testing.T) {
	owner := &domain.User{ID: "a1", Role: domain.RoleAdmin}
	assignee := &domain.User{ID: "e1", Role: domain.RoleEmployee}

	for i := 0; i < 200; i++ {
		task := GenerateRandomTask(owner, assignee)
		require.Equal(t, "a1", task.AssignedBy)
		require.Equal(t, "e1", *task.AssignedTo)
		require.True(t, task.Priority.Valid())
		require.True(t, task.Status.Valid())
		require.Equal(t, task.Status == domain.StatusCompleted, task.CompletedAt != nil)
		if task.ActualHours != nil {
			require.GreaterOrEqual(t, *task.ActualHours, 0.0)
		}
	}

	require.Nil(t, GenerateRandomTask(owner, nil).AssignedTo)
}

func TestGenerateRandomOTP(t *testing.T) {
	require.Regexp(t, `^[0-9]{6}$`, GenerateRandomOTP())
}
