package config

import (
	"errors"
	"io/fs"
	"net"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	defaultConfigPath      = "config.yaml"
	defaultAddress         = "0.0.0.0:3000"
	defaultDataFile        = "speed-test-data.json"
	defaultDownloadSize    = 1024 * 1024
	defaultRefreshSchedule = "@every 30s"
)

// Config 应用程序配置
type Config struct {
	NodeID   int64           `yaml:"node_id"`
	Server   Server          `yaml:"server"`
	Admin    Admin           `yaml:"admin"`
	Database Database        `yaml:"database"`
	Probe    Probe           `yaml:"probe"`
	Log      Log             `yaml:"log"`
	Metrics  Metrics         `yaml:"metrics"`
	Webhooks []WebhookConfig `yaml:"webhooks"`
}

// Server 服务器配置
type Server struct {
	Address        string   `yaml:"address"`
	Mode           string   `yaml:"mode"` // gin 运行模式: debug, release, test
	StaticDir      string   `yaml:"static_dir"`
	TrustedProxies []string `yaml:"trusted_proxies"`
}

// Admin 管理员配置
type Admin struct {
	Username       string `yaml:"username"`
	Password       string `yaml:"password"`
	ProtectResults bool   `yaml:"protect_results"` // 是否对 /api/admin/results 启用 Basic 认证
}

// Database 数据库配置
type Database struct {
	Driver string `yaml:"driver"` // file, sqlite, postgres
	DSN    string `yaml:"dsn"`
}

// Probe 测速探针配置
type Probe struct {
	DownloadSize int `yaml:"download_size"` // 下载测试返回的字节数
}

// Log 日志配置
type Log struct {
	Level string `yaml:"level"`
}

// Metrics 监控配置
type Metrics struct {
	Enabled         bool   `yaml:"enabled"`
	RefreshSchedule string `yaml:"refresh_schedule"`
}

// WebhookConfig 结果通知webhook配置
type WebhookConfig struct {
	Name   string   `yaml:"name"`
	Method string   `yaml:"method"`
	URL    string   `yaml:"url"`
	Header string   `yaml:"header"` // 每行一个 Key: Value
	Body   string   `yaml:"body"`   // 支持 {{refNumber}} 等占位符
	Events []string `yaml:"events"` // 为空时只通知 result.created
}

// IsRelease 是否为生产模式
func (s Server) IsRelease() bool {
	return s.Mode == "" || s.Mode == "release"
}

// LoadConfig 从文件加载配置
func LoadConfig() (*Config, error) {
	// 1. 尝试从环境变量获取配置文件路径
	configPath := os.Getenv("CONFIG_PATH")
	explicit := configPath != ""
	if !explicit {
		configPath = defaultConfigPath
	}

	// 2. 读取配置文件，默认路径不存在时使用默认配置
	config := Config{Metrics: Metrics{Enabled: true}}
	data, err := os.ReadFile(configPath)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, err
		}
	case !explicit && errors.Is(err, fs.ErrNotExist):
	default:
		return nil, err
	}

	// 3. 环境变量覆盖
	applyEnv(&config)

	// 4. 设置默认值
	applyDefaults(&config)

	return &config, nil
}

func applyEnv(config *Config) {
	if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
		host := "0.0.0.0"
		if config.Server.Address != "" {
			if h, _, err := net.SplitHostPort(config.Server.Address); err == nil {
				host = h
			}
		}
		config.Server.Address = net.JoinHostPort(host, port)
	}
	if v, ok := os.LookupEnv("ADMIN_USERNAME"); ok {
		config.Admin.Username = v
	}
	if v, ok := os.LookupEnv("ADMIN_PASSWORD"); ok {
		config.Admin.Password = v
	}
	if v := os.Getenv("DATABASE_DRIVER"); v != "" {
		config.Database.Driver = v
	}
	if v := os.Getenv("DATABASE_DSN"); v != "" {
		config.Database.DSN = v
	}
	if v := os.Getenv("NODE_ID"); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			config.NodeID = id
		}
	}
}

func applyDefaults(config *Config) {
	if config.Server.Address == "" {
		config.Server.Address = defaultAddress
	}
	if config.Server.Mode == "" {
		config.Server.Mode = "release"
	}
	if config.Server.StaticDir == "" {
		config.Server.StaticDir = "public"
	}
	if config.Admin.Username == "" {
		config.Admin.Username = "admin"
	}
	if config.Database.Driver == "" {
		config.Database.Driver = "file"
	}
	if config.Database.DSN == "" && config.Database.Driver == "file" {
		config.Database.DSN = defaultDataFile
	}
	if config.Probe.DownloadSize <= 0 {
		config.Probe.DownloadSize = defaultDownloadSize
	}
	if config.NodeID <= 0 {
		config.NodeID = 1
	}
	if config.Log.Level == "" {
		config.Log.Level = "info"
	}
	if config.Metrics.RefreshSchedule == "" {
		config.Metrics.RefreshSchedule = defaultRefreshSchedule
	}
}
