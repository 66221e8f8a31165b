package http

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/dispatch-register/internal/application/cleanup"
	"github.com/garyjia/dispatch-register/internal/application/correlator"
	"github.com/garyjia/dispatch-register/internal/application/service"
	"github.com/garyjia/dispatch-register/internal/application/store"
	"github.com/garyjia/dispatch-register/internal/domain/entity"
	"github.com/garyjia/dispatch-register/internal/domain/event"
	"github.com/garyjia/dispatch-register/internal/domain/workflow"
)

// Handlers contains all HTTP request handlers
type Handlers struct {
	register      service.RegisterService
	notifications NotificationSource
	logger        Logger
}

// NewHandlers creates a new Handlers instance
func NewHandlers(register service.RegisterService, notifications NotificationSource, logger Logger) *Handlers {
	return &Handlers{
		register:      register,
		notifications: notifications,
		logger:        logger,
	}
}

// Response represents a standard JSON response
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Version   string `json:"version"`
}

// RowResponse is a register row with its display label
type RowResponse struct {
	*entity.Row
	StatusLabel string `json:"status_label"`
}

// GroupResponse lists the files of one send or receive operation
type GroupResponse struct {
	GroupKey   int64                      `json:"group_key"`
	SendStatus workflow.State             `json:"send_status,omitempty"`
	Records    []*entity.AttachmentRecord `json:"records"`
}

// DeleteRowsRequest is the body of POST /api/v1/rows/delete
type DeleteRowsRequest struct {
	IDs []int64 `json:"ids" binding:"required,min=1"`
}

// MarkSavedRequest is the body of POST /api/v1/groups/:key/attachments/save
type MarkSavedRequest struct {
	Party    entity.Identity `json:"party"`
	FileID   string          `json:"file_id" binding:"required"`
	Location string          `json:"location" binding:"required"`
}

// HealthCheck handles GET /health
func (h *Handlers) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, Response{
		Success: true,
		Data: HealthResponse{
			Status:    "healthy",
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Version:   "1.0.0",
		},
	})
}

// ListRows handles GET /api/v1/rows
func (h *Handlers) ListRows(c *gin.Context) {
	rows, err := h.register.ListRows(c.Request.Context())
	if err != nil {
		h.fail(c, "Failed to list rows", err)
		return
	}

	resp := make([]RowResponse, 0, len(rows))
	for _, row := range rows {
		resp = append(resp, toRowResponse(row))
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: resp})
}

// GetRow handles GET /api/v1/rows/:id
func (h *Handlers) GetRow(c *gin.Context) {
	id, ok := h.int64Param(c, "id")
	if !ok {
		return
	}

	row, err := h.register.GetRow(c.Request.Context(), id)
	if err != nil {
		h.fail(c, "Failed to get row", err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: toRowResponse(row)})
}

// DeleteRow handles DELETE /api/v1/rows/:id
func (h *Handlers) DeleteRow(c *gin.Context) {
	id, ok := h.int64Param(c, "id")
	if !ok {
		return
	}

	if err := h.register.DeleteRows(c.Request.Context(), id); err != nil {
		h.fail(c, "Failed to delete row", err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true})
}

// DeleteRows handles POST /api/v1/rows/delete
func (h *Handlers) DeleteRows(c *gin.Context) {
	var req DeleteRowsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "invalid request body", err)
		return
	}

	if err := h.register.DeleteRows(c.Request.Context(), req.IDs...); err != nil {
		h.fail(c, "Failed to delete rows", err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true})
}

// ListAttachments handles GET /api/v1/groups/:key/attachments
func (h *Handlers) ListAttachments(c *gin.Context) {
	key, ok := h.int64Param(c, "key")
	if !ok {
		return
	}

	records, status, err := h.register.ListAttachments(c.Request.Context(), key)
	if err != nil {
		h.fail(c, "Failed to list attachments", err)
		return
	}
	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    GroupResponse{GroupKey: key, SendStatus: status, Records: records},
	})
}

// MarkSaved handles POST /api/v1/groups/:key/attachments/save
func (h *Handlers) MarkSaved(c *gin.Context) {
	groupKey, ok := h.int64Param(c, "key")
	if !ok {
		return
	}

	var req MarkSavedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "invalid request body", err)
		return
	}

	key := entity.AttachmentKey{GroupKey: groupKey, Party: req.Party, FileID: req.FileID}
	if err := h.register.MarkSaved(c.Request.Context(), key, req.Location); err != nil {
		h.fail(c, "Failed to mark attachment saved", err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true})
}

// BeginSend handles POST /api/v1/sends
func (h *Handlers) BeginSend(c *gin.Context) {
	var req correlator.SendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "invalid request body", err)
		return
	}

	rows, err := h.register.BeginSend(c.Request.Context(), req)
	if err != nil {
		h.fail(c, "Failed to begin send", err)
		return
	}

	resp := make([]RowResponse, 0, len(rows))
	for _, row := range rows {
		resp = append(resp, toRowResponse(row))
	}
	c.JSON(http.StatusCreated, Response{Success: true, Data: resp})
}

// SubmitReport handles POST /api/v1/reports
func (h *Handlers) SubmitReport(c *gin.Context) {
	var evt event.Event
	if err := c.ShouldBindJSON(&evt); err != nil {
		h.badRequest(c, "invalid report", err)
		return
	}

	report := event.NewEvent(evt.Type, evt.Payload)
	if evt.ID != "" {
		report.ID = evt.ID
	}
	if !evt.Timestamp.IsZero() {
		report.Timestamp = evt.Timestamp
	}

	if err := h.register.SubmitReport(c.Request.Context(), report); err != nil {
		h.fail(c, "Failed to submit report", err)
		return
	}
	c.JSON(http.StatusAccepted, Response{Success: true, Data: gin.H{"id": report.ID}})
}

// ListNotifications handles GET /api/v1/notifications
func (h *Handlers) ListNotifications(c *gin.Context) {
	c.JSON(http.StatusOK, Response{Success: true, Data: h.notifications.Recent()})
}

// Cleanup handles POST /api/v1/cleanup
func (h *Handlers) Cleanup(c *gin.Context) {
	if err := h.register.Cleanup(c.Request.Context()); err != nil {
		h.fail(c, "Cleanup failed", err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true})
}

func (h *Handlers) int64Param(c *gin.Context, name string) (int64, bool) {
	raw := c.Param(name)
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		h.badRequest(c, "invalid "+name, err)
		return 0, false
	}
	return v, true
}

func (h *Handlers) badRequest(c *gin.Context, msg string, err error) {
	h.logger.Error("Bad request", "path", c.Request.URL.Path, "error", err)
	c.JSON(http.StatusBadRequest, Response{Success: false, Error: msg})
}

func (h *Handlers) fail(c *gin.Context, msg string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error(msg, "error", err)
	}
	c.JSON(status, Response{Success: false, Error: err.Error()})
}

// statusFor maps application errors onto HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, store.ErrRowNotFound),
		errors.Is(err, service.ErrGroupNotFound),
		errors.Is(err, cleanup.ErrRecordNotFound):
		return http.StatusNotFound
	case errors.Is(err, correlator.ErrInvalidSend),
		errors.Is(err, service.ErrUnknownReport):
		return http.StatusBadRequest
	case errors.Is(err, workflow.ErrInvalidTransition),
		errors.Is(err, cleanup.ErrCachedCopyRemoved):
		return http.StatusConflict
	case errors.Is(err, correlator.ErrLoopStopped):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func toRowResponse(row *entity.Row) RowResponse {
	return RowResponse{Row: row, StatusLabel: row.StatusLabel()}
}
