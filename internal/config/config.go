package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"poolhttpd/internal/logger"
	"poolhttpd/internal/server"
)

// 環境変数名
const (
	EnvAddr         = "POOLHTTPD_ADDR"
	EnvThreads      = "POOLHTTPD_THREADS"
	EnvAdminAddr    = "POOLHTTPD_ADMIN_ADDR"
	EnvAdminEnabled = "POOLHTTPD_ADMIN_ENABLED"
	EnvLogLevel     = "POOLHTTPD_LOG_LEVEL"
)

// FileConfig は設定ファイルの構造
type FileConfig struct {
	Server ServerConfig `yaml:"server" json:"server"`
	Admin  AdminConfig  `yaml:"admin" json:"admin"`
	Log    LogConfig    `yaml:"log" json:"log"`
}

// ServerConfig は HTTP リスナーとワーカープールの設定
type ServerConfig struct {
	Addr         string `yaml:"addr" json:"addr"`
	Threads      int    `yaml:"threads" json:"threads"`
	BufferSize   int    `yaml:"buffer_size" json:"buffer_size"`
	ReadTimeout  string `yaml:"read_timeout" json:"read_timeout"`
	WriteTimeout string `yaml:"write_timeout" json:"write_timeout"`
}

// AdminConfig は管理 API の設定
type AdminConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Addr    string `yaml:"addr" json:"addr"`
}

// LogConfig はログ設定
type LogConfig struct {
	Level  string `yaml:"level" json:"level"`
	Format string `yaml:"format" json:"format"`
}

// Default はデフォルト設定を返す
func Default() *FileConfig {
	return &FileConfig{
		Server: ServerConfig{
			Addr:         "127.0.0.1:7878",
			Threads:      4,
			BufferSize:   1024,
			ReadTimeout:  "5s",
			WriteTimeout: "5s",
		},
		Admin: AdminConfig{
			Enabled: false,
			Addr:    "127.0.0.1:9090",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// LoadFile は設定ファイルを読み込む。未指定の項目はデフォルト値になる
func LoadFile(path string) (*FileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Default()
	ext := strings.ToLower(filepath.Ext(path))

	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse YAML: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse JSON: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config format: %s", ext)
	}

	return config, nil
}

// ApplyEnv は .env ファイルと環境変数で設定を上書きする。
// envFile が存在しない場合はプロセスの環境変数のみを使う
func (f *FileConfig) ApplyEnv(envFile string) error {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				return fmt.Errorf("failed to load env file: %w", err)
			}
			logger.Debug("config", "No env file at %s, reading from environment", envFile)
		}
	}

	if v := os.Getenv(EnvAddr); v != "" {
		f.Server.Addr = v
	}
	if v := os.Getenv(EnvThreads); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvThreads, err)
		}
		f.Server.Threads = n
	}
	if v := os.Getenv(EnvAdminAddr); v != "" {
		f.Admin.Addr = v
	}
	if v := os.Getenv(EnvAdminEnabled); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvAdminEnabled, err)
		}
		f.Admin.Enabled = b
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		f.Log.Level = v
	}
	return nil
}

// Validate は設定を検証する
func (f *FileConfig) Validate() error {
	if f.Server.Addr == "" {
		return fmt.Errorf("server.addr must not be empty")
	}
	if f.Server.Threads < 1 {
		return fmt.Errorf("server.threads must be at least 1")
	}
	if f.Server.BufferSize < 0 {
		return fmt.Errorf("server.buffer_size must be non-negative")
	}
	if _, err := parseDuration(f.Server.ReadTimeout); err != nil {
		return fmt.Errorf("invalid server.read_timeout: %w", err)
	}
	if _, err := parseDuration(f.Server.WriteTimeout); err != nil {
		return fmt.Errorf("invalid server.write_timeout: %w", err)
	}
	if f.Admin.Enabled && f.Admin.Addr == "" {
		return fmt.Errorf("admin.addr must be set when admin is enabled")
	}
	if _, err := logger.ParseLevel(f.Log.Level); err != nil {
		return err
	}
	switch strings.ToLower(f.Log.Format) {
	case "", "text", "json":
	default:
		return fmt.Errorf("unknown log.format: %s", f.Log.Format)
	}
	return nil
}

// ToServerConfig は FileConfig を server.Config に変換する
func (f *FileConfig) ToServerConfig() (server.Config, error) {
	sc := f.Server
	config := server.DefaultConfig()

	if sc.Addr != "" {
		config.Addr = sc.Addr
	}
	config.Threads = sc.Threads
	if sc.BufferSize > 0 {
		config.BufferSize = sc.BufferSize
	}

	d, err := parseDuration(sc.ReadTimeout)
	if err != nil {
		return config, fmt.Errorf("invalid read timeout: %w", err)
	}
	config.ReadTimeout = d

	d, err = parseDuration(sc.WriteTimeout)
	if err != nil {
		return config, fmt.Errorf("invalid write timeout: %w", err)
	}
	config.WriteTimeout = d

	return config, nil
}

// parseDuration は空文字列を 0（タイムアウトなし）として扱う
func parseDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	return time.ParseDuration(s)
}
