package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrMissingToken = errors.New("missing bearer token")
	ErrInvalidToken = errors.New("invalid token")
)

// Identity 通过认证的调用方
type Identity struct {
	UserID string
	Email  string
	Role   string
}

// Verifier 认证后端：token -> 身份
type Verifier interface {
	Verify(ctx context.Context, token string) (Identity, error)
}

// Claims Supabase风格的访问令牌，sub为用户ID
type Claims struct {
	Email string `json:"email,omitempty"`
	Role  string `json:"role,omitempty"`

	jwt.RegisteredClaims
}

// JWT HS256令牌签发与校验
type JWT struct {
	Secret   []byte
	Audience string
	Issuer   string
	TokenTTL time.Duration
}

// Sign 签发令牌，用于本地调试和测试
func (j JWT) Sign(claims Claims) (string, error) {
	now := time.Now().UTC()
	if claims.IssuedAt == nil {
		claims.IssuedAt = jwt.NewNumericDate(now)
	}
	if claims.ExpiresAt == nil {
		ttl := j.TokenTTL
		if ttl <= 0 {
			ttl = time.Hour
		}
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}
	if len(claims.Audience) == 0 && j.Audience != "" {
		claims.Audience = jwt.ClaimStrings{j.Audience}
	}
	if claims.Issuer == "" {
		claims.Issuer = j.Issuer
	}

	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return t.SignedString(j.Secret)
}

// Verify 校验令牌签名、过期时间、受众和签发方
func (j JWT) Verify(_ context.Context, token string) (Identity, error) {
	if len(j.Secret) == 0 {
		return Identity{}, fmt.Errorf("%w: 未配置密钥", ErrInvalidToken)
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(5 * time.Second),
	}
	if j.Audience != "" {
		opts = append(opts, jwt.WithAudience(j.Audience))
	}
	if j.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(j.Issuer))
	}

	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (any, error) {
		return j.Secret, nil
	}, opts...)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	c, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || strings.TrimSpace(c.Subject) == "" {
		return Identity{}, ErrInvalidToken
	}
	return Identity{UserID: c.Subject, Email: c.Email, Role: c.Role}, nil
}

// BearerToken 解析Authorization头，格式不正确时返回ErrMissingToken
func BearerToken(header string) (string, error) {
	v := strings.TrimSpace(header)
	if v == "" {
		return "", ErrMissingToken
	}
	parts := strings.SplitN(v, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", ErrMissingToken
	}
	tok := strings.TrimSpace(parts[1])
	if tok == "" {
		return "", ErrMissingToken
	}
	return tok, nil
}
