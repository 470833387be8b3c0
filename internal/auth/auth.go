// Package auth 把 bearer 令牌解析成用户身份，并提供角色校验和密码哈希
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/sysu-ecnc-dev/task-vision/backend/internal/domain"
	"golang.org/x/crypto/bcrypt"
)

type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

type UserLookup interface {
	GetUserByID(ctx context.Context, id string) (*domain.User, error)
}

// RevocationList 记录已经登出的令牌，为 nil 时不检查
type RevocationList interface {
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

type Authenticator struct {
	secret      []byte
	expiration  time.Duration
	users       UserLookup
	revocations RevocationList

	Now func() time.Time
}

func NewAuthenticator(secret string, expiration time.Duration, users UserLookup, revocations RevocationList) *Authenticator {
	return &Authenticator{
		secret:      []byte(secret),
		expiration:  expiration,
		users:       users,
		revocations: revocations,
		Now:         time.Now,
	}
}

func (a *Authenticator) now() time.Time {
	if a.Now != nil {
		return a.Now()
	}
	return time.Now()
}

// Issue 为用户签发 HS256 令牌，sub 为用户 ID，jti 用于登出
func (a *Authenticator) Issue(user *domain.User) (string, *Claims, error) {
	now := a.now()
	claims := &Claims{
		Role: string(user.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   user.ID,
			ExpiresAt: jwt.NewNumericDate(now.Add(a.expiration)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	ss, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return "", nil, err
	}

	return ss, claims, nil
}

// Parse 只校验签名和有效期，不查询用户
func (a *Authenticator) Parse(token string) (*Claims, error) {
	if token == "" {
		return nil, domain.ErrUnauthenticated
	}

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(a.now))
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, domain.ErrTokenExpired
		default:
			return nil, domain.ErrUnauthenticated
		}
	}

	if claims.Subject == "" {
		return nil, domain.ErrUnauthenticated
	}

	return claims, nil
}

// Authenticate 解析令牌并从存储中取出对应的用户
func (a *Authenticator) Authenticate(ctx context.Context, token string) (*domain.User, error) {
	claims, err := a.Parse(token)
	if err != nil {
		return nil, err
	}

	if a.revocations != nil && claims.ID != "" {
		revoked, err := a.revocations.IsRevoked(ctx, claims.ID)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrServiceUnavailable, err)
		}
		if revoked {
			return nil, domain.ErrUnauthenticated
		}
	}

	user, err := a.users.GetUserByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrIdentityNotFound
		}
		return nil, err
	}

	return user, nil
}

func RequireRole(user *domain.User, role domain.Role) error {
	if user == nil {
		return domain.ErrUnauthenticated
	}
	if user.Role != role {
		return domain.ErrForbidden
	}
	return nil
}

func HashPassword(password string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

// CheckPassword 在密码不匹配时返回 false 和 nil
func CheckPassword(hash, password string) (bool, error) {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return false, nil
	default:
		return false, err
	}
}
