package mirror

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/emlanis/secret-ai-writer/internal/exchange"
	"github.com/emlanis/secret-ai-writer/internal/models"
	"github.com/emlanis/secret-ai-writer/internal/storage"
	"github.com/rs/zerolog"
)

const (
	// MirrorKey is the single partition the client mirror writes to.
	MirrorKey = "mockDrafts"
	// FallbackNotice is shown after a save lands only in the mirror.
	FallbackNotice = "Server error. Draft saved to local storage as fallback."
	// OfflineNotice is shown when the list comes from the mirror.
	OfflineNotice = "Server unreachable. Showing drafts from local storage."
)

// Remote is the subset of the API client the mirror needs.
type Remote interface {
	Store(ctx context.Context, userAddress, content string, metadata map[string]interface{}) (*models.StoreResult, error)
	RetrieveLatest(ctx context.Context, userAddress string) (*models.LatestResult, error)
	RetrieveAll(ctx context.Context, userAddress string) (*models.ListResult, error)
	Delete(ctx context.Context, userAddress, draftID string) (*models.RemoveResult, error)
}

// SaveResult reports where a draft ended up.
type SaveResult struct {
	DraftID   string
	TxHash    string
	PrimaryTx *string
	// Mirrored is true when the server was unreachable and only the mirror holds the draft.
	Mirrored bool
}

// Sync keeps a displayed draft list for one user, backed by the server and
// falling back to a local mirror on network failures. The mirror is only
// written on fallback and is never overwritten from server answers.
type Sync struct {
	remote      Remote
	mirror      *storage.DraftStore
	userAddress string
	logger      zerolog.Logger
	now         func() time.Time

	mu        sync.Mutex
	displayed []models.DraftRecord
	notice    string
}

// NewSync creates a Sync for userAddress. mirror is a store rooted at the client mirror directory.
func NewSync(remote Remote, mirror *storage.DraftStore, userAddress string, logger zerolog.Logger) *Sync {
	return &Sync{
		remote:      remote,
		mirror:      mirror,
		userAddress: userAddress,
		logger:      logger.With().Str("component", "mirror").Logger(),
		now:         time.Now,
	}
}

// Drafts returns a copy of the displayed list.
func (s *Sync) Drafts() []models.DraftRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.DraftRecord, len(s.displayed))
	copy(out, s.displayed)
	return out
}

// Notice returns the last fallback notice, empty when the server answered.
func (s *Sync) Notice() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.notice
}

func (s *Sync) setDisplayed(drafts []models.DraftRecord, notice string) {
	s.mu.Lock()
	s.displayed = drafts
	s.notice = notice
	s.mu.Unlock()
}

// Refresh reloads the displayed list from the server, or from the mirror when
// the server cannot be reached.
func (s *Sync) Refresh(ctx context.Context) ([]models.DraftRecord, error) {
	list, err := s.remote.RetrieveAll(ctx, s.userAddress)
	switch {
	case err == nil:
		drafts := list.Drafts
		if drafts == nil {
			drafts = []models.DraftRecord{}
		}
		s.setDisplayed(drafts, "")
	case IsNetworkError(err):
		s.logger.Warn().Err(err).Msg("server unreachable, listing mirror")
		s.setDisplayed(s.mirror.List(MirrorKey).Drafts, OfflineNotice)
	default:
		return nil, err
	}
	return s.Drafts(), nil
}

// Save stores a draft on the server and refreshes the list. On a network
// failure the draft is appended to the mirror instead.
func (s *Sync) Save(ctx context.Context, content, title string, metadata map[string]interface{}) (*SaveResult, error) {
	now := s.now()
	if title == "" {
		title = "Draft " + now.Format("2006-01-02 15:04:05")
	}
	meta := make(map[string]interface{}, len(metadata)+4)
	for k, v := range metadata {
		meta[k] = v
	}
	meta[models.MetaTimestamp] = now.UnixMilli()
	meta[models.MetaContentType] = "text"
	meta[models.MetaWordCount] = exchange.WordCount(content)
	meta[models.MetaTitle] = title

	res, err := s.remote.Store(ctx, s.userAddress, content, meta)
	if err == nil {
		if _, err := s.Refresh(ctx); err != nil {
			s.logger.Warn().Err(err).Msg("refresh after save failed")
		}
		return &SaveResult{DraftID: res.DraftID, TxHash: res.TxHash, PrimaryTx: res.PrimaryTx}, nil
	}
	if !IsNetworkError(err) {
		return nil, err
	}

	s.logger.Warn().Err(err).Msg("server unreachable, saving to mirror")
	rec, mErr := s.mirror.Append(MirrorKey, content, meta)
	if mErr != nil {
		return nil, fmt.Errorf("save to mirror: %w", mErr)
	}
	s.setDisplayed(s.mirror.List(MirrorKey).Drafts, FallbackNotice)
	return &SaveResult{DraftID: rec.ID, TxHash: rec.TxHash, Mirrored: true}, nil
}

// Latest returns the newest draft from the server, or from the mirror when
// the server cannot be reached.
func (s *Sync) Latest(ctx context.Context) (*models.LatestResult, error) {
	latest, err := s.remote.RetrieveLatest(ctx, s.userAddress)
	if err == nil {
		return latest, nil
	}
	if !IsNetworkError(err) {
		return nil, err
	}
	s.logger.Warn().Err(err).Msg("server unreachable, reading mirror")
	local := s.mirror.Latest(MirrorKey)
	local.Source = "mirror"
	return &local, nil
}

// Delete removes a draft on the server and refreshes the list. On a network
// failure the draft is dropped from the displayed list and, separately, from
// the mirror; the two removals are not atomic.
func (s *Sync) Delete(ctx context.Context, draftID string) (*models.RemoveResult, error) {
	res, err := s.remote.Delete(ctx, s.userAddress, draftID)
	if err == nil {
		if _, err := s.Refresh(ctx); err != nil {
			s.logger.Warn().Err(err).Msg("refresh after delete failed")
		}
		return res, nil
	}
	if !IsNetworkError(err) {
		return nil, err
	}

	s.logger.Warn().Err(err).Str("draft_id", draftID).Msg("server unreachable, deleting locally")
	s.mu.Lock()
	kept := s.displayed[:0:0]
	for _, d := range s.displayed {
		if d.ID != draftID {
			kept = append(kept, d)
		}
	}
	s.displayed = kept
	s.mu.Unlock()

	local, mErr := s.mirror.Remove(MirrorKey, draftID)
	if mErr != nil {
		s.logger.Error().Err(mErr).Msg("mirror delete failed")
		return &models.RemoveResult{Success: false, Error: mErr.Error()}, nil
	}
	return &local, nil
}
