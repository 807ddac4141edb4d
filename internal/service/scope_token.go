package service

import (
	"errors"
	"strings"
	"time"

	"github.com/coopledger/internal/config"

	"github.com/golang-jwt/jwt/v5"
)

// ScopeClaims 范围令牌声明
type ScopeClaims struct {
	Role          string `json:"role"`
	CooperativeID uint   `json:"cooperative_id,omitempty"`
	Province      string `json:"province,omitempty"`
	jwt.RegisteredClaims
}

// ScopeTokenService 范围令牌签发与解析
// 说明：身份认证由外部系统完成，这里只负责携带调用方数据范围。
type ScopeTokenService struct {
	cfg *config.JWTConfig
}

// NewScopeTokenService 创建范围令牌服务
func NewScopeTokenService(cfg *config.JWTConfig) *ScopeTokenService {
	return &ScopeTokenService{cfg: cfg}
}

// Issue 签发范围令牌
func (s *ScopeTokenService) Issue(scope Scope) (string, time.Time, error) {
	if err := scope.Validate(); err != nil {
		return "", time.Time{}, err
	}
	if strings.TrimSpace(scope.Subject) == "" {
		return "", time.Time{}, ErrScopeForbidden
	}
	expireHours := s.cfg.ExpireHours
	if expireHours <= 0 {
		expireHours = 24
	}
	now := time.Now()
	expiresAt := now.Add(time.Duration(expireHours) * time.Hour)
	claims := ScopeClaims{
		Role:          scope.Role,
		CooperativeID: scope.CooperativeID,
		Province:      strings.TrimSpace(scope.Province),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   scope.Subject,
			Issuer:    s.cfg.Issuer,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.cfg.SecretKey))
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// Parse 解析范围令牌
func (s *ScopeTokenService) Parse(tokenString string) (Scope, error) {
	token, err := jwt.ParseWithClaims(tokenString, &ScopeClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(s.cfg.SecretKey), nil
	})
	if err != nil {
		return Scope{}, err
	}
	claims, ok := token.Claims.(*ScopeClaims)
	if !ok || !token.Valid {
		return Scope{}, errors.New("无效的 token")
	}
	scope := Scope{
		Subject:       claims.Subject,
		Role:          claims.Role,
		CooperativeID: claims.CooperativeID,
		Province:      claims.Province,
	}
	if err := scope.Validate(); err != nil {
		return Scope{}, err
	}
	return scope, nil
}
