// internal/api/response_helpers.go
package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/emlanis/secret-ai-writer/internal/bridge"
	apperrors "github.com/emlanis/secret-ai-writer/internal/errors"
	"github.com/emlanis/secret-ai-writer/internal/exchange"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// ResponseHelper 响应助手类
type ResponseHelper struct {
	logger zerolog.Logger
}

// NewResponseHelper 创建响应助手
func NewResponseHelper(logger zerolog.Logger) *ResponseHelper {
	return &ResponseHelper{logger: logger}
}

// JSON 直接输出业务结果（草稿接口使用扁平结构）
func (rh *ResponseHelper) JSON(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, data)
}

// sanitizeErrorMessage 避免把密钥类信息返回给客户端
func sanitizeErrorMessage(message string) string {
	lower := strings.ToLower(message)
	for _, pattern := range []string{"api_key", "apikey", "secret", "token", "password"} {
		if strings.Contains(lower, pattern) {
			return "An internal error occurred"
		}
	}
	return message
}

// Error 错误响应
func (rh *ResponseHelper) Error(c *gin.Context, statusCode int, errorCode, message string, details ...string) {
	apiError := &APIError{
		Code:    errorCode,
		Message: sanitizeErrorMessage(message),
	}
	if len(details) > 0 && details[0] != "" {
		apiError.Details = sanitizeErrorMessage(details[0])
	}

	c.JSON(statusCode, &APIResponse{
		Success:   false,
		Error:     apiError,
		Timestamp: time.Now(),
		RequestID: rh.getRequestID(c),
	})
}

// BadRequest 400错误响应
func (rh *ResponseHelper) BadRequest(c *gin.Context, message string, details ...string) {
	rh.Error(c, http.StatusBadRequest, ErrorBadRequest, message, details...)
}

// NotFound 404错误响应
func (rh *ResponseHelper) NotFound(c *gin.Context, message string, details ...string) {
	rh.Error(c, http.StatusNotFound, ErrorNotFound, message, details...)
}

// InternalError 500错误响应
func (rh *ResponseHelper) InternalError(c *gin.Context, message string, details ...string) {
	rh.Error(c, http.StatusInternalServerError, ErrorInternalError, message, details...)
}

// FromError 把服务层错误映射为 HTTP 状态码和错误代码
func (rh *ResponseHelper) FromError(c *gin.Context, err error) {
	var appErr *apperrors.AppError
	if !errors.As(err, &appErr) {
		rh.logger.Error().Err(err).Str("path", c.FullPath()).Msg("unclassified error")
		rh.InternalError(c, "An internal error occurred")
		return
	}

	status := http.StatusInternalServerError
	switch appErr.Type {
	case apperrors.ErrorTypeValidation, apperrors.ErrorTypeImport:
		status = http.StatusBadRequest
	case apperrors.ErrorTypeNotFound:
		status = http.StatusNotFound
	case apperrors.ErrorTypePrimaryUnavailable:
		status = http.StatusServiceUnavailable
	case apperrors.ErrorTypeTimeout:
		status = http.StatusGatewayTimeout
	case apperrors.ErrorTypeError:
		var bErr *bridge.Error
		if errors.As(err, &bErr) {
			status = http.StatusBadGateway
		}
	}

	if status >= http.StatusInternalServerError {
		rh.logger.Error().Err(err).Str("path", c.FullPath()).Int("status", status).Msg("request failed")
	}

	details := ""
	var bErr *bridge.Error
	if errors.As(err, &bErr) {
		details = string(bErr.Kind)
	}
	rh.Error(c, status, appErr.Code, appErr.Message, details)
}

// FileResponse 文件下载响应
func (rh *ResponseHelper) FileResponse(c *gin.Context, file exchange.File) {
	c.Header("Content-Disposition", "attachment; filename=\""+file.Filename+"\"")
	c.Header("Content-Length", strconv.Itoa(len(file.Body)))
	c.Data(http.StatusOK, file.ContentType+"; charset=utf-8", file.Body)
}

// getRequestID 获取请求ID
func (rh *ResponseHelper) getRequestID(c *gin.Context) string {
	return c.GetString(requestIDKey)
}
