// internal/services/draft_service.go
package services

import (
	"context"
	"time"

	"github.com/emlanis/secret-ai-writer/internal/bridge"
	apperrors "github.com/emlanis/secret-ai-writer/internal/errors"
	"github.com/emlanis/secret-ai-writer/internal/models"
	"github.com/emlanis/secret-ai-writer/internal/utils"
	"github.com/rs/zerolog"
)

// 本地写入失败时返回给用户的提示
const StoreFailedMessage = "Failed to store draft. Your draft may be kept in local storage as a fallback."

// 草稿数据来源
const (
	SourcePrimary = "primary"
	SourceLocal   = "local"
)

// DraftRepository 本地草稿存储（storage.DraftStore 实现）
type DraftRepository interface {
	Append(userKey, content string, metadata map[string]interface{}) (models.DraftRecord, error)
	List(userKey string) models.ListResult
	Latest(userKey string) models.LatestResult
	Remove(userKey, draftID string) (models.RemoveResult, error)
}

// Notifier 接收草稿变更事件
type Notifier interface {
	Publish(event models.DraftEvent)
}

// 读取阶段
type readStage int

const (
	stageAttemptPrimary readStage = iota
	stageAttemptLocal
	stageFail
)

// 写入阶段
type writeStage int

const (
	stageWriteLocal writeStage = iota
	stageConfirmPrimary
	stageDone
)

// DraftService 草稿读写的协调者：本地存储是权威数据，外部桥接为尽力而为的主路径
type DraftService struct {
	store           DraftRepository
	bridge          bridge.Bridge
	notifier        Notifier
	fallbackEnabled bool
	logger          zerolog.Logger
	now             func() time.Time
}

// DraftServiceConfig 草稿服务配置
type DraftServiceConfig struct {
	FallbackEnabled bool
	Notifier        Notifier
}

// ---------------------------------------------------
// NewDraftService 创建草稿服务
func NewDraftService(store DraftRepository, b bridge.Bridge, cfg DraftServiceConfig, logger zerolog.Logger) *DraftService {
	if b == nil {
		b = bridge.Disabled{}
	}
	return &DraftService{
		store:           store,
		bridge:          b,
		notifier:        cfg.Notifier,
		fallbackEnabled: cfg.FallbackEnabled,
		logger:          logger.With().Str("component", "draft_service").Logger(),
		now:             time.Now,
	}
}

// FallbackEnabled 是否允许主路径失败时回退到本地存储
func (s *DraftService) FallbackEnabled() bool {
	return s.fallbackEnabled
}

// Store 保存草稿：先写本地（失败即返回错误），再尝试主路径确认
func (s *DraftService) Store(ctx context.Context, userKey, content string, metadata map[string]interface{}) (*models.StoreResult, error) {
	if err := models.ValidateUserKey(userKey); err != nil {
		return nil, apperrors.NewValidationError(err.Error(), nil)
	}

	var (
		record models.DraftRecord
		result *models.StoreResult
	)
	for stage := stageWriteLocal; stage != stageDone; {
		switch stage {
		case stageWriteLocal:
			rec, err := s.store.Append(userKey, content, metadata)
			if err != nil {
				utils.RecordDraftOp("store", "error")
				s.logger.Error().Err(err).Str("user", userKey).Msg("local draft write failed")
				return nil, apperrors.NewStorageError(StoreFailedMessage, err)
			}
			record = rec
			result = &models.StoreResult{
				Success: true,
				TxHash:  rec.TxHash,
				DraftID: rec.ID,
				Draft:   &record,
			}
			stage = stageConfirmPrimary

		case stageConfirmPrimary:
			res := s.bridge.Invoke(ctx, bridge.OpStore, map[string]interface{}{
				"user_address": userKey,
				"draft_id":     record.ID,
				"content":      content,
				"metadata":     record.Metadata,
			})
			if res.OK() {
				result.PrimaryTx = primaryTx(res.Payload)
				utils.RecordDraftOp("store", "primary")
			} else {
				s.logger.Info().Str("user", userKey).Str("kind", string(res.Kind)).Msg("primary store failed, keeping local result")
				utils.RecordDraftOp("store", "local")
			}
			stage = stageDone
		}
	}

	s.publish(models.EventDraftStored, userKey, record.ID)
	return result, nil
}

// RetrieveLatest 读取最新草稿：主路径 -> 本地 -> 失败
func (s *DraftService) RetrieveLatest(ctx context.Context, userKey string) (*models.LatestResult, error) {
	if err := models.ValidateUserKey(userKey); err != nil {
		return nil, apperrors.NewValidationError(err.Error(), nil)
	}

	var primaryErr error
	stage := stageAttemptPrimary
	for {
		switch stage {
		case stageAttemptPrimary:
			res := s.bridge.Invoke(ctx, bridge.OpRetrieve, map[string]interface{}{"user_address": userKey})
			if latest, ok := primaryLatest(res); ok {
				utils.RecordDraftOp("retrieve", "primary")
				return latest, nil
			}
			primaryErr = res.Err()
			if primaryErr == nil {
				primaryErr = &bridge.Error{Kind: bridge.KindRemote, Reason: "primary reply carries no draft"}
			}
			if !s.fallbackEnabled {
				utils.RecordDraftOp("retrieve", "error")
				return nil, apperrors.NewPrimaryUnavailableError("Primary storage is unavailable and fallback is disabled", primaryErr)
			}
			stage = stageAttemptLocal

		case stageAttemptLocal:
			if err := ctx.Err(); err != nil {
				stage = stageFail
				continue
			}
			latest := s.store.Latest(userKey)
			latest.Source = SourceLocal
			utils.RecordFallback("retrieve")
			utils.RecordDraftOp("retrieve", "local")
			s.logger.Debug().Str("user", userKey).AnErr("primary_err", primaryErr).Msg("latest draft served from local store")
			return &latest, nil

		case stageFail:
			utils.RecordDraftOp("retrieve", "error")
			return nil, apperrors.NewTimeoutError("Failed to retrieve draft", ctx.Err())
		}
	}
}

// RetrieveAll 列出全部草稿，始终走本地存储
func (s *DraftService) RetrieveAll(ctx context.Context, userKey string) (*models.ListResult, error) {
	if err := models.ValidateUserKey(userKey); err != nil {
		return nil, apperrors.NewValidationError(err.Error(), nil)
	}
	list := s.store.List(userKey)
	utils.RecordDraftOp("retrieve_all", "local")
	return &list, nil
}

// Delete 按 ID 删除草稿，始终走本地存储
func (s *DraftService) Delete(ctx context.Context, userKey, draftID string) (*models.RemoveResult, error) {
	if err := models.ValidateUserKey(userKey); err != nil {
		return nil, apperrors.NewValidationError(err.Error(), nil)
	}
	if draftID == "" {
		return nil, apperrors.NewValidationError("draft_id is required", nil)
	}

	res, err := s.store.Remove(userKey, draftID)
	if err != nil {
		utils.RecordDraftOp("delete", "error")
		s.logger.Error().Err(err).Str("user", userKey).Str("draft_id", draftID).Msg("local draft delete failed")
		return nil, apperrors.NewStorageError("Failed to delete draft", err)
	}
	utils.RecordDraftOp("delete", "ok")

	if res.Deleted {
		s.publish(models.EventDraftDeleted, userKey, draftID)
	}
	return &res, nil
}

// Get 按 ID 查找单个草稿（导出用）
func (s *DraftService) Get(ctx context.Context, userKey, draftID string) (*models.DraftRecord, error) {
	list, err := s.RetrieveAll(ctx, userKey)
	if err != nil {
		return nil, err
	}
	for i := range list.Drafts {
		if list.Drafts[i].ID == draftID {
			return &list.Drafts[i], nil
		}
	}
	return nil, apperrors.NewNotFoundError("Draft not found", nil)
}

func (s *DraftService) publish(eventType, userKey, draftID string) {
	if s.notifier == nil {
		return
	}
	s.notifier.Publish(models.DraftEvent{
		Type:        eventType,
		UserAddress: userKey,
		DraftID:     draftID,
		Timestamp:   s.now().UnixMilli(),
	})
}

// primaryTx 取主路径确认令牌；mock 回复没有真实令牌
func primaryTx(payload map[string]interface{}) *string {
	if mock, _ := payload["mock"].(bool); mock {
		return nil
	}
	tx, ok := payload["tx_hash"].(string)
	if !ok || tx == "" {
		return nil
	}
	return &tx
}

// primaryLatest 把主路径回复转换为结果；mock 回复或缺少 found 字段视为失败
func primaryLatest(res bridge.Result) (*models.LatestResult, bool) {
	if !res.OK() {
		return nil, false
	}
	if mock, _ := res.Payload["mock"].(bool); mock {
		return nil, false
	}
	found, ok := res.Payload["found"].(bool)
	if !ok {
		return nil, false
	}

	latest := &models.LatestResult{Found: found, Metadata: map[string]interface{}{}, Source: SourcePrimary}
	if content, ok := res.Payload["content"].(string); ok {
		latest.Content = content
	}
	if metadata, ok := res.Payload["metadata"].(map[string]interface{}); ok {
		latest.Metadata = metadata
	}
	return latest, true
}
