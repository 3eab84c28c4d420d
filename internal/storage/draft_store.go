// internal/storage/draft_store.go
package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/emlanis/secret-ai-writer/internal/models"
	"github.com/emlanis/secret-ai-writer/internal/utils"
	"github.com/rs/zerolog"
)

const (
	partitionExt        = ".json"
	defaultTitleLayout  = "2006-01-02 15:04:05"
	noDraftsForUserText = "No drafts found for this user"
)

// DraftStore 按用户标识分区的草稿存储，每个分区对应一个 JSON 数组文件，最新的在前。
// 用户标识在调用前已由上层校验，这里不再检查。
type DraftStore struct {
	files  *FileStorage
	locks  *LockManager
	logger zerolog.Logger
	now    func() time.Time
}

// DraftStoreOption 草稿存储选项
type DraftStoreOption func(*DraftStore)

// WithClock 替换时间来源（测试用）
func WithClock(now func() time.Time) DraftStoreOption {
	return func(s *DraftStore) { s.now = now }
}

// WithLockManager 共享外部的锁管理器
func WithLockManager(lm *LockManager) DraftStoreOption {
	return func(s *DraftStore) { s.locks = lm }
}

// NewDraftStore 创建草稿存储
func NewDraftStore(dir string, logger zerolog.Logger, opts ...DraftStoreOption) (*DraftStore, error) {
	files, err := NewFileStorage(dir)
	if err != nil {
		return nil, err
	}
	s := &DraftStore{
		files:  files,
		logger: logger.With().Str("component", "draft_store").Logger(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.locks == nil {
		s.locks = NewLockManager()
	}
	return s, nil
}

// Dir 返回分区文件所在目录
func (s *DraftStore) Dir() string {
	return s.files.BaseDir
}

// PartitionPath 返回用户分区文件路径
func (s *DraftStore) PartitionPath(userKey string) string {
	return s.files.Path(partitionFile(userKey))
}

func partitionFile(userKey string) string {
	return userKey + partitionExt
}

// Append 创建新草稿并插入分区头部
func (s *DraftStore) Append(userKey, content string, metadata map[string]interface{}) (models.DraftRecord, error) {
	now := s.now()
	record := models.DraftRecord{
		ID:       utils.NewDraftID(now),
		Content:  content,
		Metadata: buildMetadata(metadata, now),
	}
	record.TxHash = utils.LocalTxHash(record.ID, record.Content)

	err := s.locks.ExecuteWithLock(userKey, func() error {
		drafts, _ := s.load(userKey)
		drafts = append([]models.DraftRecord{record}, drafts...)
		if err := s.files.SaveJSONFile(partitionFile(userKey), drafts); err != nil {
			return fmt.Errorf("写入草稿分区失败: %w", err)
		}
		return nil
	})
	if err != nil {
		return models.DraftRecord{}, err
	}

	s.logger.Debug().Str("user", userKey).Str("draft_id", record.ID).Msg("draft appended")
	return record, nil
}

// List 返回分区中的全部草稿；分区缺失、损坏或为空时 found=false
func (s *DraftStore) List(userKey string) models.ListResult {
	var drafts []models.DraftRecord
	s.locks.ExecuteWithReadLock(userKey, func() error {
		drafts, _ = s.load(userKey)
		return nil
	})

	if len(drafts) == 0 {
		return models.ListResult{Found: false, Drafts: []models.DraftRecord{}}
	}
	return models.ListResult{Found: true, Drafts: drafts}
}

// Latest 返回分区中最新的草稿
func (s *DraftStore) Latest(userKey string) models.LatestResult {
	list := s.List(userKey)
	if !list.Found {
		return models.LatestResult{Found: false, Content: "", Metadata: map[string]interface{}{}}
	}
	latest := list.Drafts[0]
	metadata := latest.Metadata
	if metadata == nil {
		metadata = map[string]interface{}{}
	}
	return models.LatestResult{Found: true, Content: latest.Content, Metadata: metadata}
}

// Remove 按 ID 删除草稿。分区文件不存在时不创建文件，返回 success=false
func (s *DraftStore) Remove(userKey, draftID string) (models.RemoveResult, error) {
	var result models.RemoveResult
	err := s.locks.ExecuteWithLock(userKey, func() error {
		drafts, exists := s.load(userKey)
		if !exists {
			result = models.RemoveResult{Success: false, Error: noDraftsForUserText}
			return nil
		}

		kept := make([]models.DraftRecord, 0, len(drafts))
		for _, d := range drafts {
			if d.ID != draftID {
				kept = append(kept, d)
			}
		}
		if err := s.files.SaveJSONFile(partitionFile(userKey), kept); err != nil {
			return fmt.Errorf("写入草稿分区失败: %w", err)
		}
		result = models.RemoveResult{Success: true, Deleted: len(kept) < len(drafts)}
		return nil
	})
	if err != nil {
		return models.RemoveResult{}, err
	}

	s.logger.Debug().Str("user", userKey).Str("draft_id", draftID).Bool("deleted", result.Deleted).Msg("draft remove")
	return result, nil
}

// load 读取分区。返回值 exists 表示分区文件是否存在；
// 无法读取或格式不正确的分区视为空分区，只记录警告
func (s *DraftStore) load(userKey string) ([]models.DraftRecord, bool) {
	name := partitionFile(userKey)
	content, err := s.files.LoadTextFile(name)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, false
		}
		s.logger.Warn().Err(err).Str("user", userKey).Msg("unreadable draft partition, treating as empty")
		return nil, true
	}

	var drafts []models.DraftRecord
	if err := json.Unmarshal(content, &drafts); err != nil {
		s.logger.Warn().Err(err).Str("user", userKey).Msg("malformed draft partition, treating as empty")
		return nil, true
	}
	return drafts, true
}

// buildMetadata 保留调用方字段，覆盖 timestamp，标题缺失、为 null 或空串时生成默认标题
func buildMetadata(in map[string]interface{}, now time.Time) map[string]interface{} {
	out := make(map[string]interface{}, len(in)+2)
	for k, v := range in {
		out[k] = v
	}
	out[models.MetaTimestamp] = now.UnixMilli()
	if title, ok := in[models.MetaTitle]; !ok || title == nil || title == "" {
		out[models.MetaTitle] = "Draft " + now.Format(defaultTitleLayout)
	}
	return out
}
