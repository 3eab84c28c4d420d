// internal/config/config.go
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// 运行模式
const (
	ModeDual  = "dual"  // 配置了外部桥接：主路径 + 本地回退
	ModeLocal = "local" // 未配置桥接，只使用本地存储
)

// Config 存储应用配置
type Config struct {
	Port            string
	DataDir         string
	DraftsDir       string
	LogDir          string
	LogLevel        string
	DebugMode       bool
	FallbackEnabled bool
	BridgeCommand   string
	BridgeArgs      []string
	BridgeTimeout   time.Duration
	CORSOrigins     []string
	ConfigFile      string
}

// fileConfig 可选的 TOML 配置文件，环境变量优先于文件
type fileConfig struct {
	Port            string   `toml:"port"`
	DataDir         string   `toml:"data_dir"`
	DraftsDir       string   `toml:"drafts_dir"`
	LogDir          string   `toml:"log_dir"`
	LogLevel        string   `toml:"log_level"`
	DebugMode       bool     `toml:"debug_mode"`
	FallbackEnabled bool     `toml:"fallback_enabled"`
	BridgeCommand   string   `toml:"bridge_command"`
	BridgeArgs      []string `toml:"bridge_args"`
	BridgeTimeout   string   `toml:"bridge_timeout"`
	CORSOrigins     []string `toml:"cors_origins"`
}

// Default 返回默认配置
func Default() *Config {
	return &Config{
		Port:            "8080",
		DataDir:         "data",
		LogDir:          "logs",
		LogLevel:        "info",
		DebugMode:       false,
		FallbackEnabled: true,
		BridgeTimeout:   120 * time.Second,
		CORSOrigins:     []string{"http://localhost:3000"},
	}
}

// Load 依次应用默认值、.env、TOML 文件（CONFIG_FILE）和环境变量
func Load() (*Config, error) {
	// .env 文件可选
	_ = godotenv.Load()

	cfg := Default()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.applyFile(path); err != nil {
			return nil, err
		}
		cfg.ConfigFile = path
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if cfg.DraftsDir == "" {
		cfg.DraftsDir = filepath.Join(cfg.DataDir, "drafts")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (cfg *Config) applyFile(path string) error {
	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return fmt.Errorf("加载配置文件失败 (%s): %w", path, err)
	}

	if meta.IsDefined("port") {
		cfg.Port = strings.TrimSpace(raw.Port)
	}
	if meta.IsDefined("data_dir") {
		cfg.DataDir = raw.DataDir
	}
	if meta.IsDefined("drafts_dir") {
		cfg.DraftsDir = raw.DraftsDir
	}
	if meta.IsDefined("log_dir") {
		cfg.LogDir = raw.LogDir
	}
	if meta.IsDefined("log_level") {
		cfg.LogLevel = raw.LogLevel
	}
	if meta.IsDefined("debug_mode") {
		cfg.DebugMode = raw.DebugMode
	}
	if meta.IsDefined("fallback_enabled") {
		cfg.FallbackEnabled = raw.FallbackEnabled
	}
	if meta.IsDefined("bridge_command") {
		cfg.BridgeCommand = strings.TrimSpace(raw.BridgeCommand)
	}
	if meta.IsDefined("bridge_args") {
		cfg.BridgeArgs = raw.BridgeArgs
	}
	if meta.IsDefined("bridge_timeout") {
		d, err := parseTimeout(raw.BridgeTimeout)
		if err != nil {
			return fmt.Errorf("解析 bridge_timeout 失败: %w", err)
		}
		cfg.BridgeTimeout = d
	}
	if meta.IsDefined("cors_origins") {
		cfg.CORSOrigins = raw.CORSOrigins
	}
	return nil
}

func (cfg *Config) applyEnv() error {
	cfg.Port = getEnv("PORT", cfg.Port)
	cfg.DataDir = getEnv("DATA_DIR", cfg.DataDir)
	cfg.DraftsDir = getEnv("DRAFTS_DIR", cfg.DraftsDir)
	cfg.LogDir = getEnv("LOG_DIR", cfg.LogDir)
	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)
	cfg.DebugMode = getEnvBool("DEBUG_MODE", cfg.DebugMode)
	cfg.FallbackEnabled = getEnvBool("FALLBACK_ENABLED", cfg.FallbackEnabled)
	cfg.BridgeCommand = strings.TrimSpace(getEnv("BRIDGE_COMMAND", cfg.BridgeCommand))
	if v := os.Getenv("BRIDGE_ARGS"); v != "" {
		cfg.BridgeArgs = strings.Fields(v)
	}
	if v := os.Getenv("BRIDGE_TIMEOUT"); v != "" {
		d, err := parseTimeout(v)
		if err != nil {
			return fmt.Errorf("解析 BRIDGE_TIMEOUT 失败: %w", err)
		}
		cfg.BridgeTimeout = d
	}
	if v := os.Getenv("CORS_ORIGINS"); v != "" {
		cfg.CORSOrigins = splitList(v)
	}
	return nil
}

// Validate 检查配置是否可用
func (cfg *Config) Validate() error {
	port, err := strconv.Atoi(cfg.Port)
	if err != nil || port <= 0 || port > 65535 {
		return fmt.Errorf("无效的端口: %q", cfg.Port)
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		return fmt.Errorf("DATA_DIR 不能为空")
	}
	if strings.TrimSpace(cfg.DraftsDir) == "" {
		return fmt.Errorf("DRAFTS_DIR 不能为空")
	}
	if cfg.BridgeTimeout <= 0 {
		return fmt.Errorf("BRIDGE_TIMEOUT 必须大于 0")
	}
	return nil
}

// Mode 返回当前运行模式
func (cfg *Config) Mode() string {
	if cfg.BridgeCommand == "" {
		return ModeLocal
	}
	return ModeDual
}

// getEnv 获取环境变量，如果不存在则返回默认值
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvBool 获取布尔类型环境变量
func getEnvBool(key string, defaultValue bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	switch value {
	case "":
		return defaultValue
	case "true", "1", "yes", "on":
		return true
	case "false", "0", "no", "off":
		return false
	default:
		return defaultValue
	}
}

// parseTimeout 接受 Go 时长（"90s"）或整数秒（"90"）
func parseTimeout(raw string) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if secs, err := strconv.Atoi(raw); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	return time.ParseDuration(raw)
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
