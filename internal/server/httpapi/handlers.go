package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/dmitrijs2005/ingestkeeper/internal/common"
	"github.com/dmitrijs2005/ingestkeeper/internal/server/models"
	"github.com/gin-gonic/gin"
)

type UploadService interface {
	Init(ctx context.Context, ownerID, filename, contentType string) (*models.InitResult, error)
	Fail(ctx context.Context, ownerID, externalID string) (*models.Upload, error)
	Delete(ctx context.Context, ownerID, externalID string) (*models.Upload, error)
	List(ctx context.Context, ownerID string, filter models.UploadFilter) ([]*models.Upload, error)
	Status(ctx context.Context, ownerID, externalID string) (*models.UploadStatusView, error)
	Select(ctx context.Context, ownerID, externalID string) error
}

type Finalizer interface {
	Finalize(ctx context.Context, req models.FinalizeRequest) (*models.FinalizeResult, error)
}

type initRequest struct {
	Filename    string `json:"filename"`
	ContentType string `json:"contentType"`
}

type initResponse struct {
	ExternalID string `json:"externalId"`
	ObjectKey  string `json:"objectKey"`
	ProcessID  string `json:"processId"`
	UploadURL  string `json:"uploadUrl,omitempty"`
}

type finalizeRequest struct {
	ProcessID     string `json:"processId"`
	Size          int64  `json:"size"`
	ContentHash   string `json:"contentHash"`
	ExtractedText string `json:"extractedText"`
}

type statusResponse struct {
	ExternalID     string `json:"externalId"`
	Status         string `json:"status"`
	ExistingFileID string `json:"existingFileId,omitempty"`
}

type uploadResponse struct {
	ExternalID  string  `json:"externalId"`
	ProcessID   string  `json:"processId"`
	Filename    string  `json:"filename"`
	ContentType string  `json:"contentType"`
	Status      string  `json:"status"`
	Size        int64   `json:"size"`
	ContentHash *string `json:"contentHash,omitempty"`
	IsCanonical bool    `json:"isCanonical"`
	CreatedAt   string  `json:"createdAt"`
}

type uploadStatusResponse struct {
	uploadResponse
	ProcessStatus string          `json:"processStatus,omitempty"`
	Error         *string         `json:"error,omitempty"`
	Data          json.RawMessage `json:"data,omitempty"`
}

type listQuery struct {
	Status string `form:"status"`
	Limit  uint64 `form:"limit"`
	Offset uint64 `form:"offset"`
}

func toUploadResponse(u *models.Upload) uploadResponse {
	return uploadResponse{
		ExternalID:  u.ExternalID,
		ProcessID:   u.ProcessID,
		Filename:    u.Filename,
		ContentType: u.ContentType,
		Status:      string(u.Status),
		Size:        u.Size,
		ContentHash: u.ContentHash,
		IsCanonical: u.IsCanonical,
		CreatedAt:   u.CreatedAt.UTC().Format(time.RFC3339),
	}
}

type UploadHandler struct {
	uploads   UploadService
	finalizer Finalizer
}

func NewUploadHandler(uploads UploadService, finalizer Finalizer) *UploadHandler {
	return &UploadHandler{uploads: uploads, finalizer: finalizer}
}

func bindJSON(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		writeError(c, fmt.Errorf("%w: %v", common.ErrorValidation, err))
		return false
	}
	return true
}

func (h *UploadHandler) Init(c *gin.Context) {
	var req initRequest
	if !bindJSON(c, &req) {
		return
	}

	res, err := h.uploads.Init(c.Request.Context(), ownerID(c), req.Filename, req.ContentType)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, initResponse{
		ExternalID: res.ExternalID,
		ObjectKey:  res.ObjectKey,
		ProcessID:  res.ProcessID,
		UploadURL:  res.UploadURL,
	})
}

func (h *UploadHandler) Finalize(c *gin.Context) {
	var req finalizeRequest
	if !bindJSON(c, &req) {
		return
	}

	res, err := h.finalizer.Finalize(c.Request.Context(), models.FinalizeRequest{
		OwnerID:       ownerID(c),
		ExternalID:    c.Param("externalId"),
		ProcessID:     req.ProcessID,
		Size:          req.Size,
		ContentHash:   req.ContentHash,
		ExtractedText: req.ExtractedText,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, statusResponse{
		ExternalID:     res.ExternalID,
		Status:         string(res.Status),
		ExistingFileID: res.ExistingFileID,
	})
}

func (h *UploadHandler) Fail(c *gin.Context) {
	u, err := h.uploads.Fail(c.Request.Context(), ownerID(c), c.Param("externalId"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, statusResponse{ExternalID: u.ExternalID, Status: string(u.Status)})
}

func (h *UploadHandler) Delete(c *gin.Context) {
	u, err := h.uploads.Delete(c.Request.Context(), ownerID(c), c.Param("externalId"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, statusResponse{ExternalID: u.ExternalID, Status: string(u.Status)})
}

func (h *UploadHandler) List(c *gin.Context) {
	var q listQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		writeError(c, fmt.Errorf("%w: %v", common.ErrorValidation, err))
		return
	}

	list, err := h.uploads.List(c.Request.Context(), ownerID(c), models.UploadFilter{
		Status: models.UploadStatus(q.Status),
		Limit:  q.Limit,
		Offset: q.Offset,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	out := make([]uploadResponse, 0, len(list))
	for _, u := range list {
		out = append(out, toUploadResponse(u))
	}
	c.JSON(http.StatusOK, gin.H{"uploads": out})
}

func (h *UploadHandler) Status(c *gin.Context) {
	view, err := h.uploads.Status(c.Request.Context(), ownerID(c), c.Param("externalId"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, uploadStatusResponse{
		uploadResponse: toUploadResponse(view.Upload),
		ProcessStatus:  string(view.ProcessStatus),
		Error:          view.ErrorMessage,
		Data:           view.Data,
	})
}

func (h *UploadHandler) Select(c *gin.Context) {
	if err := h.uploads.Select(c.Request.Context(), ownerID(c), c.Param("externalId")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
