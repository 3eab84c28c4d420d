// internal/models/draft.go
package models

import (
	"fmt"
	"regexp"
)

// 元数据中始终存在的字段
const (
	MetaTimestamp   = "timestamp"
	MetaTitle       = "title"
	MetaWordCount   = "word_count"
	MetaContentType = "content_type"
	MetaModel       = "model"
)

// DefaultUserAddress 未提供用户地址时生成/润色接口使用的占位地址
const DefaultUserAddress = "dev_mode_address"

// DraftRecord 草稿记录，分区文件中的基本单元
type DraftRecord struct {
	ID       string                 `json:"id"`
	Content  string                 `json:"content"`
	Metadata map[string]interface{} `json:"metadata"`
	TxHash   string                 `json:"tx_hash"`
}

// Title 返回元数据中的标题，缺失时返回空串
func (d DraftRecord) Title() string {
	if title, ok := d.Metadata[MetaTitle].(string); ok {
		return title
	}
	return ""
}

// Timestamp 返回创建时间（毫秒），JSON 解码后数值为 float64
func (d DraftRecord) Timestamp() int64 {
	switch v := d.Metadata[MetaTimestamp].(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case float64:
		return int64(v)
	default:
		return 0
	}
}

// ListResult 列出分区的结果
type ListResult struct {
	Found  bool          `json:"found"`
	Drafts []DraftRecord `json:"drafts"`
}

// LatestResult 最新草稿结果（兼容单草稿时代的调用方）
type LatestResult struct {
	Found    bool                   `json:"found"`
	Content  string                 `json:"content"`
	Metadata map[string]interface{} `json:"metadata"`
	Source   string                 `json:"source,omitempty"` // primary 或 local
}

// RemoveResult 删除草稿结果
type RemoveResult struct {
	Success bool   `json:"success"`
	Deleted bool   `json:"deleted"`
	Error   string `json:"error,omitempty"`
}

// StoreResult 保存草稿结果；PrimaryTx 为主路径确认令牌，未确认时为 null
type StoreResult struct {
	Success   bool         `json:"success"`
	TxHash    string       `json:"tx_hash"`
	DraftID   string       `json:"draft_id"`
	PrimaryTx *string      `json:"primary_tx"`
	Draft     *DraftRecord `json:"draft,omitempty"`
}

var userKeyPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,128}$`)

// ValidateUserKey 校验用户标识，用户标识会直接作为文件名使用
func ValidateUserKey(userKey string) error {
	if userKey == "" {
		return fmt.Errorf("user address is required")
	}
	if !userKeyPattern.MatchString(userKey) {
		return fmt.Errorf("invalid user address %q: only letters, digits, '-' and '_' are allowed (max 128)", userKey)
	}
	return nil
}

// 草稿事件类型
const (
	EventDraftStored  = "draft_stored"
	EventDraftDeleted = "draft_deleted"
)

// DraftEvent 草稿变更通知
type DraftEvent struct {
	Type        string `json:"type"`
	UserAddress string `json:"user_address"`
	DraftID     string `json:"draft_id"`
	Timestamp   int64  `json:"timestamp"`
}

// GenerationResult 生成/润色结果
type GenerationResult struct {
	Content  string                 `json:"content"`
	Metadata map[string]interface{} `json:"metadata"`
}
