package model

import (
	"time"
)

// User 用户模型
type User struct {
	Id        int64     `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Email        string `json:"email" gorm:"uniqueIndex;not null" binding:"required,email"`
	PasswordHash string `json:"-" gorm:"not null"`
	Name         string `json:"name"`
	Role         Role   `json:"role" gorm:"default:'developer'"`

	// 链上账户地址（开发者提交项目时使用）
	WalletAddress string `json:"wallet_address"`
}

// TableName 自定义表名
func (User) TableName() string {
	return "user"
}

// Role 用户角色
type Role string

const (
	RoleAdmin     Role = "admin"     // 管理员
	RoleVerifier  Role = "verifier"  // 审核员
	RoleDeveloper Role = "developer" // 项目开发者
)
