// Package config は環境変数から設定を読み込み、アプリケーション全体で使用する設定を提供します。
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config は API サーバーとワーカーの設定を保持する構造体です。
type Config struct {
	// 認証設定
	APIKeyHash string // bcryptでハッシュ化されたAPIキー

	// サーバー設定
	Port     string // APIサーバーのポート番号
	GinMode  string // Ginの実行モード (debug, release, test)
	LogLevel string // ログレベル (debug, info, warn, error)

	// CORS設定
	CORSAllowedOrigins string // CORS許可オリジン（カンマ区切り）

	// ソース設定
	SourcesDir     string // アップロードされたソーステキストの保存先
	MaxSourceBytes int64  // 単一ソースの最大サイズ（バイト）

	// ジョブ/キュー設定
	QueueRedisURL     string // Asynq・ジョブストア用Redis接続URL
	JobExpireMinutes  int    // ジョブの有効期限（分）
	WorkerConcurrency int    // ワーカーの同時実行数

	// 変換エンジン設定
	OllamaHost  string // Ollama のベースURL
	OllamaModel string // 使用するモデル名
}

// Load は環境変数から設定を読み込みます。
// .env.local ファイルが存在する場合はそこから読み込みます。
func Load() (*Config, error) {
	loadEnvFile()

	config := &Config{
		APIKeyHash: getEnv("API_KEY_HASH", ""),

		Port:     getEnv("PORT", "8080"),
		GinMode:  getEnv("GIN_MODE", "debug"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		CORSAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:5173"),

		SourcesDir:     getEnv("SOURCES_DIR", filepath.Join(os.TempDir(), "textforge", "sources")),
		MaxSourceBytes: getEnvAsInt64("MAX_SOURCE_BYTES", 1<<20), // 1MB

		QueueRedisURL:     getEnv("QUEUE_REDIS_URL", "redis://127.0.0.1:6379/0"),
		JobExpireMinutes:  getEnvAsInt("JOB_EXPIRE_MINUTES", 60),
		WorkerConcurrency: getEnvAsInt("WORKER_CONCURRENCY", 2),

		OllamaHost:  getEnv("OLLAMA_HOST", "http://localhost:11434"),
		OllamaModel: getEnv("OLLAMA_MODEL", "llama3.1"),
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// JobTTL はジョブレコードの有効期限を返します。
func (c *Config) JobTTL() time.Duration {
	return time.Duration(c.JobExpireMinutes) * time.Minute
}

// Validate は設定の妥当性を検証します。
func (c *Config) Validate() error {
	if c.MaxSourceBytes <= 0 {
		return fmt.Errorf("MAX_SOURCE_BYTES must be positive")
	}
	if c.WorkerConcurrency <= 0 {
		return fmt.Errorf("WORKER_CONCURRENCY must be positive")
	}
	// ローカル開発では認証設定は任意
	if c.GinMode == "release" {
		if c.APIKeyHash == "" {
			return fmt.Errorf("API_KEY_HASH is required in release mode")
		}
		if c.QueueRedisURL == "" {
			return fmt.Errorf("QUEUE_REDIS_URL is required in release mode")
		}
		if c.OllamaHost == "" {
			return fmt.Errorf("OLLAMA_HOST is required in release mode")
		}
	}

	return nil
}

// ClientConfig は CLI / TUI クライアントの設定です。
type ClientConfig struct {
	APIURL   string // バックエンドのベースURL（/api まで含む）
	APIKey   string // Authorization: Bearer に使うAPIキー
	Tier     string // トークン上限のティア
	LogLevel string

	PollInterval time.Duration
	PollTimeout  time.Duration
	FetchRetries int

	RegistryCapacity int
	RegistryDisplay  int
	SyncInterval     time.Duration // 0 なら一覧の定期同期を行わない
}

// LoadClient はクライアント設定を読み込みます。
func LoadClient() (*ClientConfig, error) {
	loadEnvFile()

	config := &ClientConfig{
		APIURL:   getEnv("TEXTFORGE_API_URL", "http://localhost:8080/api"),
		APIKey:   getEnv("TEXTFORGE_API_KEY", ""),
		Tier:     getEnv("TEXTFORGE_TIER", "free"),
		LogLevel: getEnv("LOG_LEVEL", "warn"),

		PollInterval: getEnvAsSeconds("POLL_INTERVAL_SECONDS", 2),
		PollTimeout:  getEnvAsSeconds("POLL_TIMEOUT_SECONDS", 300),
		FetchRetries: getEnvAsInt("POLL_FETCH_RETRIES", 0),

		RegistryCapacity: getEnvAsInt("REGISTRY_CAPACITY", 10),
		RegistryDisplay:  getEnvAsInt("REGISTRY_DISPLAY", 5),
		SyncInterval:     getEnvAsSeconds("REGISTRY_SYNC_SECONDS", 30),
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Validate はクライアント設定の妥当性を検証します。
func (c *ClientConfig) Validate() error {
	if c.APIURL == "" {
		return fmt.Errorf("TEXTFORGE_API_URL is required")
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("POLL_INTERVAL_SECONDS must be positive")
	}
	if c.PollTimeout < c.PollInterval {
		return fmt.Errorf("POLL_TIMEOUT_SECONDS must not be shorter than POLL_INTERVAL_SECONDS")
	}
	if c.FetchRetries < 0 {
		return fmt.Errorf("POLL_FETCH_RETRIES must not be negative")
	}
	if c.RegistryDisplay > c.RegistryCapacity {
		return fmt.Errorf("REGISTRY_DISPLAY must not exceed REGISTRY_CAPACITY")
	}
	return nil
}

func loadEnvFile() {
	if err := godotenv.Load(".env.local"); err == nil {
		return
	}

	cwd, err := os.Getwd()
	if err != nil {
		return
	}

	parent := filepath.Dir(cwd)
	if parent == "" || parent == cwd {
		return
	}

	_ = godotenv.Load(filepath.Join(parent, ".env.local"))
}

// getEnv は環境変数を取得し、存在しない場合はデフォルト値を返します。
func getEnv(key string, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvAsInt は環境変数を整数として取得します。
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsInt64 は環境変数を64ビット整数として取得します。
func getEnvAsInt64(key string, defaultValue int64) int64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseInt(valueStr, 10, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsSeconds(key string, defaultValue int) time.Duration {
	return time.Duration(getEnvAsInt(key, defaultValue)) * time.Second
}
