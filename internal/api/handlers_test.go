// internal/api/handlers_test.go
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/emlanis/secret-ai-writer/internal/bridge"
	"github.com/emlanis/secret-ai-writer/internal/config"
	"github.com/emlanis/secret-ai-writer/internal/di"
	"github.com/emlanis/secret-ai-writer/internal/models"
	"github.com/emlanis/secret-ai-writer/internal/services"
	"github.com/emlanis/secret-ai-writer/internal/storage"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubBridge 按操作返回预设结果，未设置的操作返回 spawn 失败
type stubBridge map[bridge.Operation]bridge.Result

func (s stubBridge) Invoke(_ context.Context, op bridge.Operation, _ interface{}) bridge.Result {
	if res, ok := s[op]; ok {
		return res
	}
	return bridge.Failure(bridge.KindSpawn, "bridge not available")
}

type testEnv struct {
	router *gin.Engine
	hub    *WebSocketManager
	dir    string
}

func newTestEnv(t *testing.T, b bridge.Bridge, fallback bool) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger := zerolog.Nop()

	cfg := config.Default()
	cfg.DataDir = t.TempDir()
	cfg.DraftsDir = filepath.Join(cfg.DataDir, "drafts")
	cfg.DebugMode = true
	cfg.FallbackEnabled = fallback

	locks := storage.NewLockManager()
	t.Cleanup(locks.Close)
	store, err := storage.NewDraftStore(cfg.DraftsDir, logger, storage.WithLockManager(locks))
	require.NoError(t, err)

	hub := NewWebSocketManager(logger)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)

	limiter := NewRateLimiter()
	t.Cleanup(limiter.Close)

	container := di.NewContainer()
	container.Register(di.ServiceHub, hub)
	container.Register(di.ServiceDrafts, services.NewDraftService(store, b, services.DraftServiceConfig{
		FallbackEnabled: fallback,
		Notifier:        hub,
	}, logger))
	container.Register(di.ServiceWriting, services.NewWritingService(b, logger))
	container.Register(ServiceRateLimiter, limiter)

	router, err := SetupRouter(container, cfg, logger)
	require.NoError(t, err)
	return &testEnv{router: router, hub: hub, dir: cfg.DraftsDir}
}

func (e *testEnv) post(t *testing.T, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), out), w.Body.String())
}

func TestStoreDraftLocalFallback(t *testing.T) {
	env := newTestEnv(t, stubBridge{}, true)

	w := env.post(t, "/api/store-draft", map[string]interface{}{
		"content":      "Once upon a time",
		"user_address": "alice",
		"metadata":     map[string]interface{}{"title": "Chapter 1"},
	})
	require.Equal(t, http.StatusOK, w.Code)

	var res models.StoreResult
	decodeBody(t, w, &res)
	assert.True(t, res.Success)
	assert.Regexp(t, `^draft_\d+_[0-9a-z]{7}$`, res.DraftID)
	assert.Regexp(t, `^local_tx_[0-9a-f]{16}$`, res.TxHash)
	assert.Nil(t, res.PrimaryTx)
	assert.FileExists(t, filepath.Join(env.dir, "alice.json"))
}

func TestStoreDraftPrimaryConfirmed(t *testing.T) {
	env := newTestEnv(t, stubBridge{
		bridge.OpStore: bridge.Success(map[string]interface{}{"success": true, "tx_hash": "0xabc"}),
	}, true)

	w := env.post(t, "/api/store-draft", map[string]interface{}{"content": "hi", "user_address": "bob"})
	require.Equal(t, http.StatusOK, w.Code)

	var res models.StoreResult
	decodeBody(t, w, &res)
	require.NotNil(t, res.PrimaryTx)
	assert.Equal(t, "0xabc", *res.PrimaryTx)
}

func TestStoreDraftValidation(t *testing.T) {
	env := newTestEnv(t, stubBridge{}, true)

	tests := []struct {
		name string
		body map[string]interface{}
	}{
		{"missing content", map[string]interface{}{"user_address": "alice"}},
		{"missing user", map[string]interface{}{"content": "x"}},
		{"path traversal", map[string]interface{}{"content": "x", "user_address": "../etc"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.post(t, "/api/store-draft", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)

			var res APIResponse
			decodeBody(t, w, &res)
			assert.False(t, res.Success)
			require.NotNil(t, res.Error)
			assert.Equal(t, ErrorBadRequest, res.Error.Code)
		})
	}

	entries, err := os.ReadDir(env.dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestInvalidJSONBody(t *testing.T) {
	env := newTestEnv(t, stubBridge{}, true)

	req := httptest.NewRequest(http.MethodPost, "/api/retrieve-draft", bytes.NewBufferString("{not json"))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRetrieveDraftFlow(t *testing.T) {
	env := newTestEnv(t, stubBridge{}, true)

	w := env.post(t, "/api/retrieve-draft", map[string]interface{}{"user_address": "alice"})
	require.Equal(t, http.StatusOK, w.Code)
	var empty models.LatestResult
	decodeBody(t, w, &empty)
	assert.False(t, empty.Found)

	env.post(t, "/api/store-draft", map[string]interface{}{"content": "first", "user_address": "alice"})
	env.post(t, "/api/store-draft", map[string]interface{}{"content": "second", "user_address": "alice"})

	w = env.post(t, "/api/retrieve-draft", map[string]interface{}{"user_address": "alice"})
	require.Equal(t, http.StatusOK, w.Code)
	var latest models.LatestResult
	decodeBody(t, w, &latest)
	assert.True(t, latest.Found)
	assert.Equal(t, "second", latest.Content)
	assert.Equal(t, services.SourceLocal, latest.Source)

	w = env.post(t, "/api/retrieve-all-drafts", map[string]interface{}{"user_address": "alice"})
	require.Equal(t, http.StatusOK, w.Code)
	var list models.ListResult
	decodeBody(t, w, &list)
	require.Len(t, list.Drafts, 2)
	assert.Equal(t, "second", list.Drafts[0].Content)
	assert.Equal(t, "first", list.Drafts[1].Content)
}

func TestRetrieveAllDraftsEmptyArray(t *testing.T) {
	env := newTestEnv(t, stubBridge{}, true)

	w := env.post(t, "/api/retrieve-all-drafts", map[string]interface{}{"user_address": "nobody"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"found":false,"drafts":[]}`, w.Body.String())
}

func TestRetrieveDraftPrimaryUnavailable(t *testing.T) {
	env := newTestEnv(t, stubBridge{}, false)

	w := env.post(t, "/api/retrieve-draft", map[string]interface{}{"user_address": "alice"})
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	var res APIResponse
	decodeBody(t, w, &res)
	require.NotNil(t, res.Error)
	assert.Equal(t, "spawn", res.Error.Details)
}

func TestDeleteDraft(t *testing.T) {
	env := newTestEnv(t, stubBridge{}, true)

	w := env.post(t, "/api/delete-draft", map[string]interface{}{"user_address": "alice", "draft_id": "draft_1"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"success":false,"deleted":false,"error":"No drafts found for this user"}`, w.Body.String())

	w = env.post(t, "/api/store-draft", map[string]interface{}{"content": "x", "user_address": "alice"})
	var stored models.StoreResult
	decodeBody(t, w, &stored)

	w = env.post(t, "/api/delete-draft", map[string]interface{}{"user_address": "alice", "draft_id": stored.DraftID})
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"success":true,"deleted":true}`, w.Body.String())

	w = env.post(t, "/api/delete-draft", map[string]interface{}{"user_address": "alice", "draft_id": stored.DraftID})
	assert.JSONEq(t, `{"success":true,"deleted":false}`, w.Body.String())

	w = env.post(t, "/api/delete-draft", map[string]interface{}{"user_address": "alice"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGenerateAndEnhance(t *testing.T) {
	env := newTestEnv(t, stubBridge{
		bridge.OpGenerate: bridge.Success(map[string]interface{}{
			"content":  "A story",
			"metadata": map[string]interface{}{"model": "mock-generation-model"},
		}),
		bridge.OpEnhance: bridge.Failure(bridge.KindTimeout, "bridge timed out after 2m0s"),
	}, true)

	w := env.post(t, "/api/generate", map[string]interface{}{"prompt": "write"})
	require.Equal(t, http.StatusOK, w.Code)
	var gen models.GenerationResult
	decodeBody(t, w, &gen)
	assert.Equal(t, "A story", gen.Content)

	w = env.post(t, "/api/generate", map[string]interface{}{"prompt": ""})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.post(t, "/api/enhance", map[string]interface{}{"draft_text": "txt", "enhancement_type": "grammar"})
	assert.Equal(t, http.StatusBadGateway, w.Code)

	w = env.post(t, "/api/enhance", map[string]interface{}{"draft_text": "txt", "enhancement_type": "poetry"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestExportDraft(t *testing.T) {
	env := newTestEnv(t, stubBridge{}, true)

	w := env.post(t, "/api/store-draft", map[string]interface{}{
		"content":      "Body text",
		"user_address": "alice",
		"metadata":     map[string]interface{}{"title": "My Story"},
	})
	var stored models.StoreResult
	decodeBody(t, w, &stored)

	w = env.post(t, "/api/export-draft", map[string]interface{}{"user_address": "alice", "draft_id": stored.DraftID, "format": "md"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "# My Story\n\nBody text", w.Body.String())
	assert.Contains(t, w.Header().Get("Content-Disposition"), "My Story-")
	assert.Contains(t, w.Header().Get("Content-Type"), "text/markdown")

	w = env.post(t, "/api/export-draft", map[string]interface{}{"user_address": "alice", "draft_id": "draft_missing"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.post(t, "/api/export-draft", map[string]interface{}{"user_address": "alice", "draft_id": stored.DraftID, "format": "pdf"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func uploadRequest(t *testing.T, filename string, data []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/import-draft", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestImportDraft(t *testing.T) {
	env := newTestEnv(t, stubBridge{}, true)

	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, uploadRequest(t, "notes.txt", []byte("Title line\n\nBody line")))
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"title":"Title line","content":"Body line"}`, w.Body.String())

	w = httptest.NewRecorder()
	env.router.ServeHTTP(w, uploadRequest(t, "notes.docx", []byte("x")))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/import-draft", nil)
	env.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHealthAndRequestID(t *testing.T) {
	env := newTestEnv(t, stubBridge{}, true)

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok","mode":"local","fallback_enabled":true}`, w.Body.String())
	assert.NotEmpty(t, w.Header().Get(requestIDHeader))
	assert.NotEmpty(t, w.Header().Get("X-RateLimit-Remaining"))
}

func TestRateLimiterAllow(t *testing.T) {
	rl := NewRateLimiter()
	defer rl.Close()

	for i := 0; i < 3; i++ {
		allowed, remaining, _ := rl.Allow("k", 3, 60e9)
		assert.True(t, allowed)
		assert.Equal(t, 2-i, remaining)
	}
	allowed, remaining, _ := rl.Allow("k", 3, 60e9)
	assert.False(t, allowed)
	assert.Zero(t, remaining)

	allowed, _, _ = rl.Allow("other", 3, 60e9)
	assert.True(t, allowed)
}

func TestRateLimiterCloseTwice(t *testing.T) {
	rl := NewRateLimiter()
	rl.Close()
	assert.NotPanics(t, rl.Close)
}
