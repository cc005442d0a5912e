package config

import (
	"os"
	"strconv"
	"time"
)

// Config はアプリケーション設定を表す
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Gateway  GatewayConfig
	Booking  BookingConfig
}

// ServerConfig はサーバー設定
type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DatabaseConfig はデータベース設定
type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// RedisConfig はRedis設定
type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

// GatewayConfig は決済ゲートウェイ（SumUp）設定
// APIKey が空の場合はサンドボックスアダプターが使用される
type GatewayConfig struct {
	BaseURL       string
	APIKey        string
	MerchantEmail string
	Timeout       time.Duration
	WebhookSecret string
}

// BookingConfig は予約ポリシー設定
type BookingConfig struct {
	// HoldWindow は未決済のpending予約が枠をブロックし続ける時間
	HoldWindow time.Duration
	// SessionGrace はチェックアウトセッションのないpending予約を掃除するまでの猶予
	SessionGrace time.Duration
	// SweepInterval は期限切れ予約スイーパーの実行間隔
	SweepInterval time.Duration
	// OpenHour / CloseHour は営業時間（時単位、半開区間 [Open, Close)）
	OpenHour  int
	CloseHour int
}

// Load は環境変数から設定を読み込む
func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         getEnv("PORT", "8080"),
			ReadTimeout:  getDurationEnv("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout: getDurationEnv("SERVER_WRITE_TIMEOUT", 30*time.Second),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "karaoke_booking"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getIntEnv("REDIS_DB", 0),
		},
		Gateway: GatewayConfig{
			BaseURL:       getEnv("SUMUP_BASE_URL", "https://api.sumup.com"),
			APIKey:        getEnv("SUMUP_API_KEY", ""),
			MerchantEmail: getEnv("SUMUP_MERCHANT_EMAIL", ""),
			Timeout:       getDurationEnv("SUMUP_TIMEOUT", 10*time.Second),
			WebhookSecret: getEnv("PAYMENT_WEBHOOK_SECRET", ""),
		},
		Booking: BookingConfig{
			HoldWindow:    getDurationEnv("BOOKING_HOLD_WINDOW", 15*time.Minute),
			SessionGrace:  getDurationEnv("BOOKING_SESSION_GRACE", 5*time.Minute),
			SweepInterval: getDurationEnv("BOOKING_SWEEP_INTERVAL", 1*time.Minute),
			OpenHour:      getIntEnv("BOOKING_OPEN_HOUR", 12),
			CloseHour:     getIntEnv("BOOKING_CLOSE_HOUR", 24),
		},
	}
}

// DSN はPostgreSQL接続文字列を返す
func (c *DatabaseConfig) DSN() string {
	return "host=" + c.Host +
		" port=" + c.Port +
		" user=" + c.User +
		" password=" + c.Password +
		" dbname=" + c.DBName +
		" sslmode=" + c.SSLMode
}

// Addr はRedis接続アドレスを返す
func (c *RedisConfig) Addr() string {
	return c.Host + ":" + c.Port
}

// IsSandbox はゲートウェイ認証情報が未設定かを返す
func (c *GatewayConfig) IsSandbox() bool {
	return c.APIKey == ""
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
