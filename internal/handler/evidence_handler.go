package handler

import (
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/greenchain/ccrs/internal/evidence"
	"github.com/greenchain/ccrs/internal/identity"
)

// 单个证据文件大小上限
const maxEvidenceSize = 16 << 20

type EvidenceHandler struct {
	evidence *evidence.Service
}

func NewEvidenceHandler(svc *evidence.Service) *EvidenceHandler {
	return &EvidenceHandler{evidence: svc}
}

// AddEvidence 上传项目佐证材料
func (h *EvidenceHandler) AddEvidence(c *gin.Context) {
	projectId := c.Param("id")

	fileHeader, err := c.FormFile("file")
	if err != nil {
		ErrorResponse(c, http.StatusBadRequest, "缺少证据文件")
		return
	}
	if fileHeader.Size > maxEvidenceSize {
		ErrorResponse(c, http.StatusRequestEntityTooLarge, "证据文件过大")
		return
	}

	f, err := fileHeader.Open()
	if err != nil {
		ErrorResponse(c, http.StatusBadRequest, err.Error())
		return
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		ErrorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	submittedBy, _ := strconv.ParseInt(identity.CallerId(c), 10, 64)

	ev, err := h.evidence.Add(c.Request.Context(), projectId,
		fileHeader.Filename, fileHeader.Header.Get("Content-Type"), data, submittedBy)
	if err != nil {
		FailureResponse(c, err)
		return
	}

	SuccessResponse(c, http.StatusCreated, "证据提交成功", EvidenceResponse{
		Id:          ev.Id,
		ProjectId:   ev.ProjectId,
		FileName:    ev.FileName,
		ContentType: ev.ContentType,
		Size:        ev.Size,
		ContentHash: ev.ContentHash,
		Cid:         ev.Cid,
		CreatedAt:   ev.CreatedAt,
	})
}

// GetEvidence 获取项目的证据列表
func (h *EvidenceHandler) GetEvidence(c *gin.Context) {
	projectId := c.Param("id")

	items, err := h.evidence.List(c.Request.Context(), projectId)
	if err != nil {
		FailureResponse(c, err)
		return
	}

	views := make([]EvidenceResponse, 0, len(items))
	for _, ev := range items {
		views = append(views, EvidenceResponse{
			Id:          ev.Id,
			ProjectId:   ev.ProjectId,
			FileName:    ev.FileName,
			ContentType: ev.ContentType,
			Size:        ev.Size,
			ContentHash: ev.ContentHash,
			Cid:         ev.Cid,
			CreatedAt:   ev.CreatedAt,
		})
	}

	SuccessResponse(c, http.StatusOK, "", gin.H{"evidence": views})
}
