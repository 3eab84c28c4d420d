// internal/api/exchange_handlers.go
package api

import (
	"io"
	"net/http"
	"time"

	"github.com/emlanis/secret-ai-writer/internal/exchange"
	"github.com/gin-gonic/gin"
)

// 导入文件大小上限
const maxImportSize = 5 << 20

// ExportDraftRequest 导出请求
type ExportDraftRequest struct {
	UserAddress string `json:"user_address"`
	DraftID     string `json:"draft_id"`
	Format      string `json:"format"`
}

// ExportDraft 以 json/txt/md 下载单个草稿
func (h *Handler) ExportDraft(c *gin.Context) {
	var req ExportDraftRequest
	if !h.bindJSON(c, &req) || !h.validUser(c, req.UserAddress) {
		return
	}
	if req.DraftID == "" {
		h.Response.BadRequest(c, "Draft ID is required")
		return
	}
	if req.Format == "" {
		req.Format = string(exchange.FormatJSON)
	}
	format, err := exchange.ParseFormat(req.Format)
	if err != nil {
		h.Response.FromError(c, err)
		return
	}

	draft, err := h.Drafts.Get(c.Request.Context(), req.UserAddress, req.DraftID)
	if err != nil {
		h.Response.FromError(c, err)
		return
	}

	file, err := exchange.Export(exchange.FromRecord(*draft), format, time.Now())
	if err != nil {
		h.Response.FromError(c, err)
		return
	}
	h.Response.FileResponse(c, file)
}

// ImportDraft 解析上传的草稿文件，返回标题和正文，不写入存储
func (h *Handler) ImportDraft(c *gin.Context) {
	header, err := c.FormFile("file")
	if err != nil {
		h.Response.Error(c, http.StatusBadRequest, ErrorFileUploadFailed, "A file field named \"file\" is required")
		return
	}
	if header.Size > maxImportSize {
		h.Response.Error(c, http.StatusRequestEntityTooLarge, ErrorFileTooLarge, "File is too large")
		return
	}

	f, err := header.Open()
	if err != nil {
		h.Response.Error(c, http.StatusBadRequest, ErrorFileUploadFailed, "Failed to read file")
		return
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, maxImportSize+1))
	if err != nil {
		h.Response.Error(c, http.StatusBadRequest, ErrorFileUploadFailed, "Failed to read file")
		return
	}

	imported, err := exchange.Import(header.Filename, data)
	if err != nil {
		h.Response.FromError(c, err)
		return
	}
	h.Response.JSON(c, imported)
}
