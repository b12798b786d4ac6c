package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/greenchain/ccrs/internal/indexer"
	"gorm.io/gorm"
)

type EventHandler struct {
	db *gorm.DB
}

func NewEventHandler(db *gorm.DB) *EventHandler {
	return &EventHandler{db: db}
}

// GetEvents 查询已索引的链上事件
func (h *EventHandler) GetEvents(c *gin.Context) {
	projectId := c.Query("projectId")
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("pageSize", "20"))
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}

	events, total, err := indexer.ListEvents(h.db, projectId, page, pageSize)
	if err != nil {
		FailureResponse(c, err)
		return
	}

	totalPage := (total + int64(pageSize) - 1) / int64(pageSize)
	SuccessResponse(c, http.StatusOK, "", gin.H{
		"events": events,
		"pagination": Pagination{
			Page:      page,
			PageSize:  pageSize,
			Total:     total,
			TotalPage: totalPage,
		},
	})
}
