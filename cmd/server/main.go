// cmd/server/main.go
package main

import (
	"fmt"
	"os"

	"github.com/emlanis/secret-ai-writer/internal/app"
	"github.com/emlanis/secret-ai-writer/internal/config"
	"github.com/emlanis/secret-ai-writer/internal/utils"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. 加载配置
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("加载配置失败: %w", err)
	}

	// 2. 创建必要的目录
	if err := createDirectories(cfg); err != nil {
		return err
	}

	// 3. 初始化日志
	logger, closer, err := utils.InitLogger("secret-ai-writer", cfg.LogDir, cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("初始化日志失败: %w", err)
	}
	defer closer.Close()
	logger.Info().Str("port", cfg.Port).Str("config_file", cfg.ConfigFile).Msg("configuration loaded")

	// 4. 初始化所有服务（按依赖顺序）
	application, err := app.InitServices(cfg, logger)
	if err != nil {
		return fmt.Errorf("初始化服务失败: %w", err)
	}

	// 5. 启动服务器，等待中断信号后优雅关闭
	return application.Run()
}

// createDirectories 创建应用所需的目录结构
func createDirectories(cfg *config.Config) error {
	for _, dir := range []string{cfg.DataDir, cfg.DraftsDir, cfg.LogDir} {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("创建目录失败 %s: %w", dir, err)
		}
	}
	return nil
}
