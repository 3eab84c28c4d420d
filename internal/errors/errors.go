// internal/errors/errors.go
package errors

import (
	"errors"
	"fmt"
)

// ErrorType 定义错误类型
type ErrorType string

const (
	ErrorTypeValidation         ErrorType = "validation_error"
	ErrorTypeNotFound           ErrorType = "not_found"
	ErrorTypeError              ErrorType = "processing_error"
	ErrorTypeTimeout            ErrorType = "timeout"
	ErrorTypeStorage            ErrorType = "storage_error"
	ErrorTypePrimaryUnavailable ErrorType = "primary_unavailable"
	ErrorTypeImport             ErrorType = "import_error"
)

// AppError 应用程序错误结构
type AppError struct {
	Type    ErrorType
	Message string
	Err     error
	Code    string // 用户友好的错误代码
}

// Error 实现 error 接口
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap 实现错误链接
func (e *AppError) Unwrap() error {
	return e.Err
}

// NewAppError 创建新的 AppError
func NewAppError(errType ErrorType, message string, originalError error) *AppError {
	return &AppError{
		Type:    errType,
		Message: message,
		Err:     originalError,
		Code:    generateErrorCode(errType),
	}
}

// NewValidationError 创建验证错误
func NewValidationError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeValidation, message, originalError)
}

// NewNotFoundError 创建未找到错误
func NewNotFoundError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeNotFound, message, originalError)
}

// NewProcessingError 创建处理错误
func NewProcessingError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeError, message, originalError)
}

// NewTimeoutError 创建超时错误
func NewTimeoutError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeTimeout, message, originalError)
}

// NewStorageError 创建存储错误（本地写入失败）
func NewStorageError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeStorage, message, originalError)
}

// NewPrimaryUnavailableError 主路径失败且回退已禁用
func NewPrimaryUnavailableError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypePrimaryUnavailable, message, originalError)
}

// NewImportError 创建导入错误
func NewImportError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeImport, message, originalError)
}

// TypeOf 返回错误链中第一个 AppError 的类型，非 AppError 返回空串
func TypeOf(err error) ErrorType {
	var appError *AppError
	if errors.As(err, &appError) {
		return appError.Type
	}
	return ""
}

// IsValidationError 检查是否为验证错误
func IsValidationError(err error) bool {
	return TypeOf(err) == ErrorTypeValidation
}

// IsNotFoundError 检查是否为未找到错误
func IsNotFoundError(err error) bool {
	return TypeOf(err) == ErrorTypeNotFound
}

// IsTimeoutError 检查是否为超时错误
func IsTimeoutError(err error) bool {
	return TypeOf(err) == ErrorTypeTimeout
}

// IsStorageError 检查是否为存储错误
func IsStorageError(err error) bool {
	return TypeOf(err) == ErrorTypeStorage
}

// IsPrimaryUnavailableError 检查是否为主路径不可用错误
func IsPrimaryUnavailableError(err error) bool {
	return TypeOf(err) == ErrorTypePrimaryUnavailable
}

// IsImportError 检查是否为导入错误
func IsImportError(err error) bool {
	return TypeOf(err) == ErrorTypeImport
}

// generateErrorCode 根据错误类型生成错误代码
func generateErrorCode(errType ErrorType) string {
	switch errType {
	case ErrorTypeValidation:
		return "VALIDATION_ERROR"
	case ErrorTypeNotFound:
		return "NOT_FOUND"
	case ErrorTypeError:
		return "PROCESSING_ERROR"
	case ErrorTypeTimeout:
		return "TIMEOUT"
	case ErrorTypeStorage:
		return "STORAGE_ERROR"
	case ErrorTypePrimaryUnavailable:
		return "PRIMARY_UNAVAILABLE"
	case ErrorTypeImport:
		return "IMPORT_ERROR"
	default:
		return "UNKNOWN_ERROR"
	}
}
