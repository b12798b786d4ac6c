package identity

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/greenchain/ccrs/internal/config"
	"github.com/greenchain/ccrs/internal/logger"
	"github.com/greenchain/ccrs/internal/model"
	"github.com/greenchain/ccrs/internal/workflow"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

var (
	ErrEmailTaken         = errors.New("邮箱已被注册")
	ErrInvalidCredentials = errors.New("邮箱或密码错误")
	ErrInvalidToken       = errors.New("无效的访问令牌")
)

// 能力与角色的映射，角色到能力的翻译只发生在这一处
var capabilityRoles = map[string][]model.Role{
	workflow.CapApproveProject: {model.RoleAdmin, model.RoleVerifier},
	workflow.CapRejectProject:  {model.RoleAdmin, model.RoleVerifier},
	workflow.CapRetireCredits:  {model.RoleAdmin, model.RoleDeveloper},
	workflow.CapRetryOperation: {model.RoleAdmin, model.RoleVerifier},
}

// Claims JWT声明
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Service 用户与认证服务
type Service struct {
	db         *gorm.DB
	secret     []byte
	tokenTTL   time.Duration
	bcryptCost int
}

// NewService 创建认证服务
func NewService(db *gorm.DB, cfg config.AuthConfig) *Service {
	cost := cfg.BcryptRounds
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	ttl := time.Duration(cfg.TokenTTL) * time.Minute
	if ttl <= 0 {
		ttl = time.Hour * 12
	}
	return &Service{
		db:         db,
		secret:     []byte(cfg.Secret),
		tokenTTL:   ttl,
		bcryptCost: cost,
	}
}

// Register 注册用户
func (s *Service) Register(ctx context.Context, email, password, name string, role model.Role, wallet string) (*model.User, error) {
	if email == "" {
		return nil, errors.New("邮箱不能为空")
	}
	if len(password) < 8 {
		return nil, errors.New("密码长度不能少于8位")
	}
	switch role {
	case model.RoleAdmin, model.RoleVerifier, model.RoleDeveloper:
	default:
		return nil, fmt.Errorf("未知的用户角色: %s", role)
	}

	var count int64
	if err := s.db.WithContext(ctx).Model(&model.User{}).Where("email = ?", email).Count(&count).Error; err != nil {
		return nil, fmt.Errorf("查询用户失败: %w", err)
	}
	if count > 0 {
		return nil, ErrEmailTaken
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("密码哈希失败: %w", err)
	}

	user := &model.User{
		Email:         email,
		PasswordHash:  string(hash),
		Name:          name,
		Role:          role,
		WalletAddress: wallet,
	}
	if err := s.db.WithContext(ctx).Create(user).Error; err != nil {
		return nil, fmt.Errorf("创建用户失败: %w", err)
	}

	logger.Info("User %s registered with role %s", email, role)
	return user, nil
}

// Login 登录并签发访问令牌
func (s *Service) Login(ctx context.Context, email, password string) (string, *model.User, error) {
	var user model.User
	if err := s.db.WithContext(ctx).Where("email = ?", email).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", nil, ErrInvalidCredentials
		}
		return "", nil, fmt.Errorf("查询用户失败: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return "", nil, ErrInvalidCredentials
	}

	token, err := s.IssueToken(&user)
	if err != nil {
		return "", nil, err
	}
	return token, &user, nil
}

// IssueToken 为用户签发JWT
func (s *Service) IssueToken(user *model.User) (string, error) {
	now := time.Now()
	claims := &Claims{
		Role: string(user.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(user.Id, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.tokenTTL)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("签发令牌失败: %w", err)
	}
	return signed, nil
}

// ParseToken 解析并校验JWT
func (s *Service) ParseToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// HasCapability 实现工作流的能力校验接口。
// 以数据库中的角色为准，而不是令牌里缓存的角色。
func (s *Service) HasCapability(ctx context.Context, callerID string, capability string) bool {
	roles, ok := capabilityRoles[capability]
	if !ok {
		return false
	}

	id, err := strconv.ParseInt(callerID, 10, 64)
	if err != nil {
		return false
	}

	var user model.User
	if err := s.db.WithContext(ctx).First(&user, id).Error; err != nil {
		return false
	}

	for _, r := range roles {
		if user.Role == r {
			return true
		}
	}
	return false
}
