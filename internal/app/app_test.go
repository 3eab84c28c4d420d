// internal/app/app_test.go
package app

import (
	"context"
	"errors"
	"path/filepath"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/emlanis/secret-ai-writer/internal/api"
	"github.com/emlanis/secret-ai-writer/internal/bridge"
	"github.com/emlanis/secret-ai-writer/internal/config"
	"github.com/emlanis/secret-ai-writer/internal/di"
	"github.com/emlanis/secret-ai-writer/internal/services"
	"github.com/emlanis/secret-ai-writer/internal/storage"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 模拟服务器
type mockServer struct {
	shutdownCalled atomic.Bool
	listenErr      error
}

func (m *mockServer) ListenAndServe() error {
	return m.listenErr
}

func (m *mockServer) Shutdown(ctx context.Context) error {
	m.shutdownCalled.Store(true)
	return nil
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.DataDir = t.TempDir()
	cfg.DraftsDir = filepath.Join(cfg.DataDir, "drafts")
	return cfg
}

func TestInitServicesLocalMode(t *testing.T) {
	a, err := InitServices(testConfig(t), zerolog.Nop())
	require.NoError(t, err)
	defer a.cleanup()

	for _, name := range []string{di.ServiceDraftStore, di.ServiceBridge, di.ServiceDrafts, di.ServiceWriting, di.ServiceHub, api.ServiceRateLimiter} {
		assert.True(t, a.Container().Has(name), name)
	}

	b, err := di.Resolve[bridge.Bridge](a.Container(), di.ServiceBridge)
	require.NoError(t, err)
	assert.IsType(t, bridge.Disabled{}, b)

	store, err := di.Resolve[*storage.DraftStore](a.Container(), di.ServiceDraftStore)
	require.NoError(t, err)
	assert.DirExists(t, store.Dir())
}

func TestInitServicesWithBridgeCommand(t *testing.T) {
	cfg := testConfig(t)
	cfg.BridgeCommand = "mockbridge"
	cfg.FallbackEnabled = false

	a, err := InitServices(cfg, zerolog.Nop())
	require.NoError(t, err)
	defer a.cleanup()

	b, err := di.Resolve[bridge.Bridge](a.Container(), di.ServiceBridge)
	require.NoError(t, err)
	assert.IsType(t, &bridge.ProcessBridge{}, b)

	drafts, err := di.Resolve[*services.DraftService](a.Container(), di.ServiceDrafts)
	require.NoError(t, err)
	assert.False(t, drafts.FallbackEnabled())
}

func TestInitServicesRouterResolves(t *testing.T) {
	cfg := testConfig(t)
	a, err := InitServices(cfg, zerolog.Nop())
	require.NoError(t, err)
	defer a.cleanup()

	router, err := api.SetupRouter(a.Container(), cfg, zerolog.Nop())
	require.NoError(t, err)
	assert.NotEmpty(t, router.Routes())
}

// TestRun 收到停止信号后调用 Shutdown
func TestRun(t *testing.T) {
	a, err := InitServices(testConfig(t), zerolog.Nop())
	require.NoError(t, err)

	srv := &mockServer{}
	a.server = srv

	go func() {
		time.Sleep(100 * time.Millisecond)
		a.stopChan <- syscall.SIGTERM
	}()

	require.NoError(t, a.Run())
	assert.True(t, srv.shutdownCalled.Load())
}

func TestRunListenFailure(t *testing.T) {
	a, err := InitServices(testConfig(t), zerolog.Nop())
	require.NoError(t, err)

	srv := &mockServer{listenErr: errors.New("address already in use")}
	a.server = srv

	err = a.Run()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "address already in use")
	assert.False(t, srv.shutdownCalled.Load())
}
