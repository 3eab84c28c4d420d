// internal/api/router.go
package api

import (
	"fmt"
	"time"

	"github.com/emlanis/secret-ai-writer/internal/config"
	"github.com/emlanis/secret-ai-writer/internal/di"
	"github.com/emlanis/secret-ai-writer/internal/services"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// ServiceRateLimiter 容器中限流器的名称
const ServiceRateLimiter = "rate_limiter"

// 每个客户端 IP 的请求限额
const (
	apiRequestsPerMinute        = 120
	generationRequestsPerMinute = 20
)

// SetupRouter 配置HTTP路由，只从容器获取服务，不创建服务
func SetupRouter(container *di.Container, cfg *config.Config, logger zerolog.Logger) (*gin.Engine, error) {
	drafts, err := di.Resolve[*services.DraftService](container, di.ServiceDrafts)
	if err != nil {
		return nil, fmt.Errorf("草稿服务未正确初始化: %w", err)
	}
	writing, err := di.Resolve[*services.WritingService](container, di.ServiceWriting)
	if err != nil {
		return nil, fmt.Errorf("写作服务未正确初始化: %w", err)
	}
	hub, err := di.Resolve[*WebSocketManager](container, di.ServiceHub)
	if err != nil {
		return nil, fmt.Errorf("WebSocket 管理器未正确初始化: %w", err)
	}
	limiter, err := di.Resolve[*RateLimiter](container, ServiceRateLimiter)
	if err != nil {
		return nil, fmt.Errorf("限流器未正确初始化: %w", err)
	}

	handler := NewHandler(drafts, writing, hub, cfg.Mode(), logger)

	if !cfg.DebugMode {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestID())
	r.Use(RequestLogger(logger))
	r.Use(RequestMetrics())
	r.Use(cors.New(cors.Config{
		AllowOrigins:  cfg.CORSOrigins,
		AllowMethods:  []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", requestIDHeader},
		ExposeHeaders: []string{"Content-Disposition", requestIDHeader},
		MaxAge:        12 * time.Hour,
	}))
	_ = r.SetTrustedProxies([]string{"127.0.0.1", "::1"})

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// WebSocket 草稿事件
	r.GET("/ws/drafts/:user_address", handler.DraftWebSocket)

	api := r.Group("/api")
	api.Use(limiter.RateLimitMiddleware(apiRequestsPerMinute, time.Minute, ByIP, handler.Response))
	{
		api.GET("/health", handler.Health)
		api.GET("/ws/status", handler.GetWebSocketStatus)

		// 草稿
		api.POST("/store-draft", handler.StoreDraft)
		api.POST("/retrieve-draft", handler.RetrieveDraft)
		api.POST("/retrieve-all-drafts", handler.RetrieveAllDrafts)
		api.POST("/delete-draft", handler.DeleteDraft)

		// 导入导出
		api.POST("/export-draft", handler.ExportDraft)
		api.POST("/import-draft", handler.ImportDraft)

		// 生成与润色
		gen := api.Group("")
		gen.Use(limiter.RateLimitMiddleware(generationRequestsPerMinute, time.Minute, generationKey, handler.Response))
		{
			gen.POST("/generate", handler.Generate)
			gen.POST("/enhance", handler.Enhance)
		}
	}

	return r, nil
}

// generationKey 生成类接口单独计数
func generationKey(c *gin.Context) string {
	return "gen:" + ByIP(c)
}
