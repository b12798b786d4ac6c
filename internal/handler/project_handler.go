package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/greenchain/ccrs/internal/cache"
	"github.com/greenchain/ccrs/internal/identity"
	"github.com/greenchain/ccrs/internal/logger"
	"github.com/greenchain/ccrs/internal/registry"
	"github.com/greenchain/ccrs/internal/workflow"
)

type ProjectHandler struct {
	workflow *workflow.Workflow
	store    *registry.GormStore
	cache    *cache.StatusCache
}

func NewProjectHandler(wf *workflow.Workflow, store *registry.GormStore, statusCache *cache.StatusCache) *ProjectHandler {
	return &ProjectHandler{
		workflow: wf,
		store:    store,
		cache:    statusCache,
	}
}

// SubmitProject 提交项目申报
func (h *ProjectHandler) SubmitProject(c *gin.Context) {
	var req SubmitProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		ErrorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	submitterId, _ := strconv.ParseInt(identity.CallerId(c), 10, 64)

	project, err := h.workflow.Submit(c.Request.Context(), workflow.SubmitRequest{
		Name:           req.Name,
		Description:    req.Description,
		Location:       req.Location,
		Methodology:    req.Methodology,
		CreditsClaimed: req.CreditsClaimed,
		OwnerAddress:   req.OwnerAddress,
		SubmitterId:    submitterId,
	})
	if err != nil {
		FailureResponse(c, err)
		return
	}

	SuccessResponse(c, http.StatusCreated, "项目提交成功", toProjectResponse(project))
}

// GetProjects 获取项目列表
func (h *ProjectHandler) GetProjects(c *gin.Context) {
	state := c.Query("state")
	submitterId, _ := strconv.ParseInt(c.Query("submitterId"), 10, 64)
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("pageSize", "10"))
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 10
	}

	projects, total, err := h.store.ListProjects(c.Request.Context(), state, submitterId, page, pageSize)
	if err != nil {
		FailureResponse(c, err)
		return
	}

	items := make([]ProjectResponse, 0, len(projects))
	for i := range projects {
		items = append(items, toProjectResponse(&projects[i]))
	}

	totalPage := (total + int64(pageSize) - 1) / int64(pageSize)
	SuccessResponse(c, http.StatusOK, "", GetProjectsResponse{
		Projects: items,
		Pagination: Pagination{
			Page:      page,
			PageSize:  pageSize,
			Total:     total,
			TotalPage: totalPage,
		},
	})
}

// GetProject 获取项目详情，优先走缓存
func (h *ProjectHandler) GetProject(c *gin.Context) {
	projectId := c.Param("id")

	if payload, ok := h.cache.Get(c.Request.Context(), projectId); ok {
		var view ProjectResponse
		if err := json.Unmarshal(payload, &view); err == nil {
			SuccessResponse(c, http.StatusOK, "", view)
			return
		}
		logger.Warn("Discarding malformed cache entry for project %s", projectId)
	}

	project, err := h.workflow.GetProject(c.Request.Context(), projectId)
	if err != nil {
		FailureResponse(c, err)
		return
	}

	view := toProjectResponse(project)
	if payload, err := json.Marshal(view); err == nil {
		h.cache.Set(c.Request.Context(), projectId, payload)
	}

	SuccessResponse(c, http.StatusOK, "", view)
}

// ApproveProject 审核通过项目
func (h *ProjectHandler) ApproveProject(c *gin.Context) {
	projectId := c.Param("id")

	var req ApproveProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		ErrorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	project, err := h.workflow.Approve(c.Request.Context(), projectId, identity.CallerId(c), workflow.Decision{
		Comments:        req.Comments,
		MeasuredCredits: req.MeasuredCredits,
	})
	if err != nil {
		FailureResponse(c, err)
		return
	}

	h.cache.Invalidate(c.Request.Context(), projectId)
	SuccessResponse(c, http.StatusOK, "项目审核通过", toProjectResponse(project))
}

// RejectProject 审核拒绝项目
func (h *ProjectHandler) RejectProject(c *gin.Context) {
	projectId := c.Param("id")

	var req RejectProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		ErrorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	project, err := h.workflow.Reject(c.Request.Context(), projectId, identity.CallerId(c), req.Reason)
	if err != nil {
		FailureResponse(c, err)
		return
	}

	h.cache.Invalidate(c.Request.Context(), projectId)
	SuccessResponse(c, http.StatusOK, "项目已拒绝", toProjectResponse(project))
}

// RetireCredits 注销项目信用
func (h *ProjectHandler) RetireCredits(c *gin.Context) {
	projectId := c.Param("id")

	var req RetireCreditsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		ErrorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	project, err := h.workflow.Retire(c.Request.Context(), projectId, identity.CallerId(c), req.Amount, req.Reason)
	h.cache.Invalidate(c.Request.Context(), projectId)
	if err != nil {
		FailureResponse(c, err)
		return
	}

	SuccessResponse(c, http.StatusOK, "信用注销成功", toProjectResponse(project))
}

// RetryRegistration 重试失败的链上注册
func (h *ProjectHandler) RetryRegistration(c *gin.Context) {
	projectId := c.Param("id")

	project, err := h.workflow.RetryRegistration(c.Request.Context(), projectId, identity.CallerId(c))
	h.cache.Invalidate(c.Request.Context(), projectId)
	if err != nil {
		FailureResponse(c, err)
		return
	}

	SuccessResponse(c, http.StatusOK, "注册重试完成", toProjectResponse(project))
}

// RetryRetirement 重试失败的信用注销
func (h *ProjectHandler) RetryRetirement(c *gin.Context) {
	projectId := c.Param("id")

	var req RetireCreditsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		ErrorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	project, err := h.workflow.RetryRetirement(c.Request.Context(), projectId, identity.CallerId(c), req.Amount, req.Reason)
	h.cache.Invalidate(c.Request.Context(), projectId)
	if err != nil {
		FailureResponse(c, err)
		return
	}

	SuccessResponse(c, http.StatusOK, "注销重试完成", toProjectResponse(project))
}

// GetRetirements 获取项目的注销审计记录
func (h *ProjectHandler) GetRetirements(c *gin.Context) {
	projectId := c.Param("id")

	records, err := h.store.ListRetirements(c.Request.Context(), projectId)
	if err != nil {
		FailureResponse(c, err)
		return
	}

	SuccessResponse(c, http.StatusOK, "", gin.H{"records": records})
}

// GetStats 获取注册表全局统计
func (h *ProjectHandler) GetStats(c *gin.Context) {
	stats, err := h.store.Stats(c.Request.Context())
	if err != nil {
		FailureResponse(c, err)
		return
	}

	SuccessResponse(c, http.StatusOK, "", gin.H{"stats": stats})
}
