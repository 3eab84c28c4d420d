// internal/app/app.go
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/emlanis/secret-ai-writer/internal/api"
	"github.com/emlanis/secret-ai-writer/internal/bridge"
	"github.com/emlanis/secret-ai-writer/internal/config"
	"github.com/emlanis/secret-ai-writer/internal/di"
	"github.com/emlanis/secret-ai-writer/internal/services"
	"github.com/emlanis/secret-ai-writer/internal/storage"
	"github.com/emlanis/secret-ai-writer/internal/utils"
	"github.com/rs/zerolog"
)

// 优雅关闭等待时间
const shutdownTimeout = 30 * time.Second

// httpServer 便于在测试中替换 http.Server
type httpServer interface {
	ListenAndServe() error
	Shutdown(ctx context.Context) error
}

// App 持有全部服务及其生命周期
type App struct {
	config    *config.Config
	container *di.Container
	locks     *storage.LockManager
	limiter   *api.RateLimiter
	hub       *api.WebSocketManager
	server    httpServer
	stopChan  chan os.Signal
	logger    zerolog.Logger
}

// InitServices 按依赖顺序初始化所有服务并注册到容器
func InitServices(cfg *config.Config, logger zerolog.Logger) (*App, error) {
	utils.RegisterMetrics()

	container := di.NewContainer()
	locks := storage.NewLockManager()

	// 1. 本地草稿存储
	store, err := storage.NewDraftStore(cfg.DraftsDir, logger, storage.WithLockManager(locks))
	if err != nil {
		locks.Close()
		return nil, fmt.Errorf("初始化草稿存储失败: %w", err)
	}
	container.Register(di.ServiceDraftStore, store)

	// 2. 外部桥接（未配置时只走本地路径）
	var b bridge.Bridge = bridge.Disabled{}
	if cfg.BridgeCommand != "" {
		pb, err := bridge.NewProcessBridge(bridge.Config{
			Command: cfg.BridgeCommand,
			Args:    cfg.BridgeArgs,
			Timeout: cfg.BridgeTimeout,
		}, logger)
		if err != nil {
			locks.Close()
			return nil, fmt.Errorf("初始化桥接失败: %w", err)
		}
		b = pb
	}
	container.Register(di.ServiceBridge, b)

	// 3. 通知与业务服务
	hub := api.NewWebSocketManager(logger)
	container.Register(di.ServiceHub, hub)

	drafts := services.NewDraftService(store, b, services.DraftServiceConfig{
		FallbackEnabled: cfg.FallbackEnabled,
		Notifier:        hub,
	}, logger)
	container.Register(di.ServiceDrafts, drafts)
	container.Register(di.ServiceWriting, services.NewWritingService(b, logger))

	limiter := api.NewRateLimiter()
	container.Register(api.ServiceRateLimiter, limiter)

	logger.Info().
		Str("mode", cfg.Mode()).
		Bool("fallback_enabled", cfg.FallbackEnabled).
		Str("drafts_dir", store.Dir()).
		Strs("services", container.GetNames()).
		Msg("services initialized")

	return &App{
		config:    cfg,
		container: container,
		locks:     locks,
		limiter:   limiter,
		hub:       hub,
		stopChan:  make(chan os.Signal, 1),
		logger:    logger,
	}, nil
}

// Container 返回依赖注入容器
func (a *App) Container() *di.Container {
	return a.container
}

// Run 启动 HTTP 服务，收到 SIGINT/SIGTERM 后优雅关闭
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	defer a.cleanup()

	go a.hub.Run(ctx)

	if a.server == nil {
		router, err := api.SetupRouter(a.container, a.config, a.logger)
		if err != nil {
			return fmt.Errorf("设置路由失败: %w", err)
		}
		a.server = &http.Server{
			Addr:              ":" + a.config.Port,
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		}
	}

	errCh := make(chan error, 1)
	go func() {
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	a.logger.Info().Str("port", a.config.Port).Msg("server listening")

	signal.Notify(a.stopChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(a.stopChan)

	select {
	case <-a.stopChan:
	case err := <-errCh:
		return fmt.Errorf("启动服务器失败: %w", err)
	}

	a.logger.Info().Msg("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := a.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("服务器强制关闭: %w", err)
	}
	a.logger.Info().Msg("server stopped")
	return nil
}

// cleanup 释放后台协程
func (a *App) cleanup() {
	if a.limiter != nil {
		a.limiter.Close()
	}
	if a.locks != nil {
		a.locks.Close()
	}
}
