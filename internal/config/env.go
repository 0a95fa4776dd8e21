package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type BaseEnv struct {
	Env      string `envconfig:"ENV" default:"local"`
	HTTPHost string `envconfig:"HTTP_HOST" default:""`
	HTTPPort string `envconfig:"HTTP_PORT" default:"3200"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"debug"`
	LogFile  string `envconfig:"LOG_FILE"`
	APIKey   string `envconfig:"API_KEY" required:"true"`
}

type StorageEnv struct {
	Type    string `envconfig:"STORAGE_TYPE" default:"local"`
	BaseDir string `envconfig:"STORAGE_BASE_DIR" default:".devguild/data"`

	// S3 settings (used when Type == "s3")
	S3Bucket string `envconfig:"S3_BUCKET"`
	S3Prefix string `envconfig:"S3_PREFIX" default:"devguild/"`
	S3Region string `envconfig:"S3_REGION" default:"ap-northeast-1"`
}

// DatabaseEnv selects where records live. "yaml" keeps one file per record in
// the configured storage; "sql" uses gorm against DSN.
type DatabaseEnv struct {
	StoreType       string        `envconfig:"STORE_TYPE" default:"yaml"`
	Driver          string        `envconfig:"DB_DRIVER" default:"postgres"`
	DSN             string        `envconfig:"DB_DSN"`
	MaxIdleConns    int           `envconfig:"DB_MAX_IDLE_CONNS" default:"5"`
	MaxOpenConns    int           `envconfig:"DB_MAX_OPEN_CONNS" default:"20"`
	ConnMaxLifetime time.Duration `envconfig:"DB_CONN_MAX_LIFETIME" default:"30m"`
}

type WorkspaceEnv struct {
	// Root prefix for provisioned workspaces inside the workspace storage.
	Root      string `envconfig:"WORKSPACE_ROOT" default:".devguild/workspaces"`
	PoolFile  string `envconfig:"WORKSPACE_POOL_FILE" default:".devguild/servers.yaml"`
	WatchPool bool   `envconfig:"WORKSPACE_WATCH_POOL" default:"true"`
}

type AnalyzerEnv struct {
	Provider string        `envconfig:"ANALYZER_PROVIDER" default:"none"`
	Timeout  time.Duration `envconfig:"ANALYZER_TIMEOUT" default:"30s"`

	OpenAIAPIKey  string `envconfig:"OPENAI_API_KEY"`
	OpenAIBaseURL string `envconfig:"OPENAI_BASE_URL"`
	OpenAIModel   string `envconfig:"OPENAI_MODEL" default:"gpt-4o-mini"`

	ClaudeMaxTurns int `envconfig:"CLAUDE_MAX_TURNS" default:"1"`
}

type PaymentEnv struct {
	BaseURL      string        `envconfig:"PAYMENT_BASE_URL" default:"https://api-m.sandbox.paypal.com"`
	ClientID     string        `envconfig:"PAYMENT_CLIENT_ID"`
	ClientSecret string        `envconfig:"PAYMENT_CLIENT_SECRET"`
	Currency     string        `envconfig:"PAYMENT_CURRENCY" default:"USD"`
	Timeout      time.Duration `envconfig:"PAYMENT_TIMEOUT" default:"15s"`
	AutoSettle   bool          `envconfig:"PAYMENT_AUTO_SETTLE" default:"false"`
	SweepEvery   time.Duration `envconfig:"PAYMENT_SWEEP_INTERVAL" default:"5m"`
}

type VAPIDEnv struct {
	VAPIDPublicKey  string `envconfig:"VAPID_PUBLIC_KEY"`
	VAPIDPrivateKey string `envconfig:"VAPID_PRIVATE_KEY"`
	VAPIDContact    string `envconfig:"VAPID_CONTACT" default:"mailto:admin@example.com"`
}

type Env struct {
	BaseEnv
	StorageEnv
	DatabaseEnv
	WorkspaceEnv
	AnalyzerEnv
	PaymentEnv
	VAPIDEnv
}

const namespace = "DEVGUILD"

func LoadEnv() (*Env, error) {
	var env Env
	if err := envconfig.Process(namespace, &env); err != nil {
		return nil, fmt.Errorf("failed to load env: %w", err)
	}
	return &env, nil
}

func (e *BaseEnv) SlogLevel() slog.Level {
	if e == nil {
		return slog.LevelDebug
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(e.LogLevel)); err != nil {
		return slog.LevelDebug
	}
	return level
}

func BaseEnvFromEnv(env *Env) *BaseEnv {
	return &env.BaseEnv
}

func StorageEnvFromEnv(env *Env) *StorageEnv {
	return &env.StorageEnv
}

func DatabaseEnvFromEnv(env *Env) *DatabaseEnv {
	return &env.DatabaseEnv
}

func WorkspaceEnvFromEnv(env *Env) *WorkspaceEnv {
	return &env.WorkspaceEnv
}

func AnalyzerEnvFromEnv(env *Env) *AnalyzerEnv {
	return &env.AnalyzerEnv
}

func PaymentEnvFromEnv(env *Env) *PaymentEnv {
	return &env.PaymentEnv
}

func VAPIDEnvFromEnv(env *Env) *VAPIDEnv {
	return &env.VAPIDEnv
}
