// internal/api/handlers.go
package api

import (
	"net/http"
	"time"

	"github.com/emlanis/secret-ai-writer/internal/models"
	"github.com/emlanis/secret-ai-writer/internal/services"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// Handler 处理API请求
type Handler struct {
	Drafts   *services.DraftService   // 草稿服务
	Writing  *services.WritingService // 生成/润色服务
	Hub      *WebSocketManager        // 草稿事件推送
	Response *ResponseHelper          // 响应助手
	Mode     string                   // 健康检查中报告的运行模式
	logger   zerolog.Logger
}

// NewHandler 创建处理器
func NewHandler(drafts *services.DraftService, writing *services.WritingService, hub *WebSocketManager, mode string, logger zerolog.Logger) *Handler {
	return &Handler{
		Drafts:   drafts,
		Writing:  writing,
		Hub:      hub,
		Response: NewResponseHelper(logger),
		Mode:     mode,
		logger:   logger,
	}
}

// APIResponse 标准错误响应格式
type APIResponse struct {
	Success   bool        `json:"success"`
	Data      interface{} `json:"data,omitempty"`
	Error     *APIError   `json:"error,omitempty"`
	Message   string      `json:"message,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	RequestID string      `json:"request_id,omitempty"`
}

// APIError 标准错误格式
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// StoreDraftRequest 保存草稿请求
type StoreDraftRequest struct {
	Content     string                 `json:"content"`
	UserAddress string                 `json:"user_address"`
	Metadata    map[string]interface{} `json:"metadata"`
}

// UserRequest 只携带用户标识的请求
type UserRequest struct {
	UserAddress string `json:"user_address"`
}

// DeleteDraftRequest 删除草稿请求
type DeleteDraftRequest struct {
	UserAddress string `json:"user_address"`
	DraftID     string `json:"draft_id"`
}

// bindJSON 解析请求体，失败时直接写出 400
func (h *Handler) bindJSON(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		h.Response.BadRequest(c, "Invalid request body", err.Error())
		return false
	}
	return true
}

// validUser 在边界处校验用户标识
func (h *Handler) validUser(c *gin.Context, userAddress string) bool {
	if userAddress == "" {
		h.Response.BadRequest(c, "User address is required")
		return false
	}
	if err := models.ValidateUserKey(userAddress); err != nil {
		h.Response.BadRequest(c, err.Error())
		return false
	}
	return true
}

// ------------------------------------------------
// StoreDraft 保存草稿
func (h *Handler) StoreDraft(c *gin.Context) {
	var req StoreDraftRequest
	if !h.bindJSON(c, &req) {
		return
	}
	if req.Content == "" {
		h.Response.BadRequest(c, "Content is required")
		return
	}
	if !h.validUser(c, req.UserAddress) {
		return
	}

	result, err := h.Drafts.Store(c.Request.Context(), req.UserAddress, req.Content, req.Metadata)
	if err != nil {
		h.Response.FromError(c, err)
		return
	}
	h.Response.JSON(c, result)
}

// RetrieveDraft 读取最新草稿
func (h *Handler) RetrieveDraft(c *gin.Context) {
	var req UserRequest
	if !h.bindJSON(c, &req) || !h.validUser(c, req.UserAddress) {
		return
	}

	result, err := h.Drafts.RetrieveLatest(c.Request.Context(), req.UserAddress)
	if err != nil {
		h.Response.FromError(c, err)
		return
	}
	h.Response.JSON(c, result)
}

// RetrieveAllDrafts 列出全部草稿
func (h *Handler) RetrieveAllDrafts(c *gin.Context) {
	var req UserRequest
	if !h.bindJSON(c, &req) || !h.validUser(c, req.UserAddress) {
		return
	}

	result, err := h.Drafts.RetrieveAll(c.Request.Context(), req.UserAddress)
	if err != nil {
		h.Response.FromError(c, err)
		return
	}
	h.Response.JSON(c, result)
}

// DeleteDraft 删除草稿
func (h *Handler) DeleteDraft(c *gin.Context) {
	var req DeleteDraftRequest
	if !h.bindJSON(c, &req) || !h.validUser(c, req.UserAddress) {
		return
	}
	if req.DraftID == "" {
		h.Response.BadRequest(c, "Draft ID is required")
		return
	}

	result, err := h.Drafts.Delete(c.Request.Context(), req.UserAddress, req.DraftID)
	if err != nil {
		h.Response.FromError(c, err)
		return
	}
	h.Response.JSON(c, result)
}

// Health 健康检查
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":           "ok",
		"mode":             h.Mode,
		"fallback_enabled": h.Drafts.FallbackEnabled(),
	})
}
