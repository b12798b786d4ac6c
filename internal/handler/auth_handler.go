package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/greenchain/ccrs/internal/identity"
	"github.com/greenchain/ccrs/internal/model"
)

type AuthHandler struct {
	identity *identity.Service
}

func NewAuthHandler(svc *identity.Service) *AuthHandler {
	return &AuthHandler{identity: svc}
}

// Register 注册用户
func (h *AuthHandler) Register(c *gin.Context) {
	var req RegisterUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		ErrorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	role := model.Role(req.Role)
	if role == "" {
		role = model.RoleDeveloper
	}

	user, err := h.identity.Register(c.Request.Context(), req.Email, req.Password, req.Name, role, req.WalletAddress)
	if err != nil {
		FailureResponse(c, err)
		return
	}

	SuccessResponse(c, http.StatusCreated, "注册成功", gin.H{"user": user})
}

// Login 登录并签发访问令牌
func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		ErrorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	token, user, err := h.identity.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		FailureResponse(c, err)
		return
	}

	SuccessResponse(c, http.StatusOK, "登录成功", LoginResponse{
		Token: token,
		User:  user,
	})
}
