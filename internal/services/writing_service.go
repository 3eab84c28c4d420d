// internal/services/writing_service.go
package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/emlanis/secret-ai-writer/internal/bridge"
	apperrors "github.com/emlanis/secret-ai-writer/internal/errors"
	"github.com/emlanis/secret-ai-writer/internal/models"
	"github.com/rs/zerolog"
)

// 支持的润色类型
var EnhancementTypes = []string{"grammar", "creativity", "conciseness", "professional", "casual"}

// WritingService 生成与润色，直接委托外部桥接，没有本地回退
type WritingService struct {
	bridge bridge.Bridge
	logger zerolog.Logger
}

// NewWritingService 创建写作服务
func NewWritingService(b bridge.Bridge, logger zerolog.Logger) *WritingService {
	if b == nil {
		b = bridge.Disabled{}
	}
	return &WritingService{
		bridge: b,
		logger: logger.With().Str("component", "writing_service").Logger(),
	}
}

// Generate 根据提示生成内容
func (s *WritingService) Generate(ctx context.Context, prompt, userKey, systemInstruction string) (*models.GenerationResult, error) {
	if strings.TrimSpace(prompt) == "" {
		return nil, apperrors.NewValidationError("Prompt is required", nil)
	}
	userKey, err := resolveUserKey(userKey)
	if err != nil {
		return nil, err
	}

	req := map[string]interface{}{
		"prompt":       prompt,
		"user_address": userKey,
	}
	if systemInstruction != "" {
		req["system_instruction"] = systemInstruction
	}
	return s.call(ctx, bridge.OpGenerate, req)
}

// Enhance 按指定类型润色草稿
func (s *WritingService) Enhance(ctx context.Context, draftText, enhancementType, userKey string) (*models.GenerationResult, error) {
	if strings.TrimSpace(draftText) == "" {
		return nil, apperrors.NewValidationError("Draft text is required", nil)
	}
	if enhancementType == "" {
		return nil, apperrors.NewValidationError("Enhancement type is required", nil)
	}
	if !IsEnhancementType(enhancementType) {
		return nil, apperrors.NewValidationError(
			fmt.Sprintf("Unknown enhancement type %q (expected one of %s)", enhancementType, strings.Join(EnhancementTypes, ", ")), nil)
	}
	userKey, err := resolveUserKey(userKey)
	if err != nil {
		return nil, err
	}

	return s.call(ctx, bridge.OpEnhance, map[string]interface{}{
		"draft_text":       draftText,
		"enhancement_type": enhancementType,
		"user_address":     userKey,
	})
}

// IsEnhancementType 检查润色类型是否受支持
func IsEnhancementType(t string) bool {
	for _, known := range EnhancementTypes {
		if t == known {
			return true
		}
	}
	return false
}

func (s *WritingService) call(ctx context.Context, op bridge.Operation, req map[string]interface{}) (*models.GenerationResult, error) {
	res := s.bridge.Invoke(ctx, op, req)
	if !res.OK() {
		s.logger.Warn().Str("op", string(op)).Str("kind", string(res.Kind)).Msg("generation failed")
		return nil, apperrors.NewProcessingError(fmt.Sprintf("Failed to %s content", op), res.Err())
	}

	content, ok := res.Payload["content"].(string)
	if !ok {
		return nil, apperrors.NewProcessingError(
			fmt.Sprintf("Failed to %s content", op),
			&bridge.Error{Kind: bridge.KindDecode, Reason: "reply has no content"})
	}
	metadata, _ := res.Payload["metadata"].(map[string]interface{})
	if metadata == nil {
		metadata = map[string]interface{}{}
	}
	return &models.GenerationResult{Content: content, Metadata: metadata}, nil
}

func resolveUserKey(userKey string) (string, error) {
	if userKey == "" {
		return models.DefaultUserAddress, nil
	}
	if err := models.ValidateUserKey(userKey); err != nil {
		return "", apperrors.NewValidationError(err.Error(), nil)
	}
	return userKey, nil
}
