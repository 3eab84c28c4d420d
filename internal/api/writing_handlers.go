// internal/api/writing_handlers.go
package api

import (
	"github.com/gin-gonic/gin"
)

// GenerateRequest 生成请求
type GenerateRequest struct {
	Prompt            string `json:"prompt"`
	UserAddress       string `json:"user_address"`
	SystemInstruction string `json:"system_instruction"`
}

// EnhanceRequest 润色请求
type EnhanceRequest struct {
	DraftText       string `json:"draft_text"`
	EnhancementType string `json:"enhancement_type"`
	UserAddress     string `json:"user_address"`
}

// Generate 生成内容
func (h *Handler) Generate(c *gin.Context) {
	var req GenerateRequest
	if !h.bindJSON(c, &req) {
		return
	}

	result, err := h.Writing.Generate(c.Request.Context(), req.Prompt, req.UserAddress, req.SystemInstruction)
	if err != nil {
		h.Response.FromError(c, err)
		return
	}
	h.Response.JSON(c, result)
}

// Enhance 润色内容
func (h *Handler) Enhance(c *gin.Context) {
	var req EnhanceRequest
	if !h.bindJSON(c, &req) {
		return
	}

	result, err := h.Writing.Enhance(c.Request.Context(), req.DraftText, req.EnhancementType, req.UserAddress)
	if err != nil {
		h.Response.FromError(c, err)
		return
	}
	h.Response.JSON(c, result)
}
