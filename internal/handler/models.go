package handler

import (
	"time"

	"github.com/greenchain/ccrs/internal/model"
)

// 通用响应结构
type Response struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data"`
}

// 分页信息结构
type Pagination struct {
	Page      int   `json:"page"`
	PageSize  int   `json:"pageSize"`
	Total     int64 `json:"total"`
	TotalPage int64 `json:"totalPage"`
}

// ProjectResponse 项目响应模型
type ProjectResponse struct {
	ProjectId          string    `json:"projectId"`
	Name               string    `json:"name"`
	Description        string    `json:"description"`
	Location           string    `json:"location"`
	Methodology        string    `json:"methodology"`
	CreditsClaimed     int64     `json:"creditsClaimed"`
	CreditsRetired     int64     `json:"creditsRetired"`
	CreditsAvailable   int64     `json:"creditsAvailable"`
	State              string    `json:"state"`
	OwnerAddress       string    `json:"ownerAddress"`
	TokenId            string    `json:"tokenId,omitempty"`
	LastTxHash         string    `json:"lastTxHash,omitempty"`
	LastConfirmedBlock int64     `json:"lastConfirmedBlock,omitempty"`
	PendingOperation   string    `json:"pendingOperation,omitempty"`
	FailureReason      string    `json:"failureReason,omitempty"`
	CreatedAt          time.Time `json:"createdAt"`
	UpdatedAt          time.Time `json:"updatedAt"`
}

// toProjectResponse 项目聚合转响应模型
func toProjectResponse(p *model.Project) ProjectResponse {
	return ProjectResponse{
		ProjectId:          p.ProjectId,
		Name:               p.Name,
		Description:        p.Description,
		Location:           p.Location,
		Methodology:        p.Methodology,
		CreditsClaimed:     p.CreditsClaimed,
		CreditsRetired:     p.CreditsRetired,
		CreditsAvailable:   p.CreditsAvailable(),
		State:              string(p.State),
		OwnerAddress:       p.OwnerAddress,
		TokenId:            p.TokenId,
		LastTxHash:         p.LastTxHash,
		LastConfirmedBlock: p.LastConfirmedBlock,
		PendingOperation:   string(p.PendingKind),
		FailureReason:      p.FailureReason,
		CreatedAt:          p.CreatedAt,
		UpdatedAt:          p.UpdatedAt,
	}
}

// GetProjectsResponse 项目列表响应
type GetProjectsResponse struct {
	Projects   []ProjectResponse `json:"projects"`
	Pagination Pagination        `json:"pagination"`
}

// SubmitProjectRequest 提交项目请求
type SubmitProjectRequest struct {
	Name           string `json:"name" binding:"required"`
	Description    string `json:"description"`
	Location       string `json:"location"`
	Methodology    string `json:"methodology"`
	CreditsClaimed int64  `json:"creditsClaimed" binding:"required"`
	OwnerAddress   string `json:"ownerAddress" binding:"required"`
}

// ApproveProjectRequest 审核通过请求
type ApproveProjectRequest struct {
	Comments        string `json:"comments"`
	MeasuredCredits int64  `json:"measuredCredits"`
}

// RejectProjectRequest 审核拒绝请求
type RejectProjectRequest struct {
	Reason string `json:"reason" binding:"required"`
}

// RetireCreditsRequest 信用注销请求
type RetireCreditsRequest struct {
	Amount int64  `json:"amount" binding:"required"`
	Reason string `json:"reason" binding:"required"`
}

// RegisterUserRequest 用户注册请求
type RegisterUserRequest struct {
	Email         string `json:"email" binding:"required"`
	Password      string `json:"password" binding:"required"`
	Name          string `json:"name"`
	Role          string `json:"role"`
	WalletAddress string `json:"walletAddress"`
}

// LoginRequest 登录请求
type LoginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// LoginResponse 登录响应
type LoginResponse struct {
	Token string      `json:"token"`
	User  *model.User `json:"user"`
}

// EvidenceResponse 证据响应模型
type EvidenceResponse struct {
	Id          int64     `json:"id"`
	ProjectId   string    `json:"projectId"`
	FileName    string    `json:"fileName"`
	ContentType string    `json:"contentType"`
	Size        int64     `json:"size"`
	ContentHash string    `json:"contentHash"`
	Cid         string    `json:"cid,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}
