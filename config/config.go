package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	JWT      JWTConfig      `mapstructure:"jwt"`
	CORS     CORSConfig     `mapstructure:"cors"`
	OSS      OSSConfig      `mapstructure:"oss"`
	Queue    QueueConfig    `mapstructure:"queue"`
	Billing  BillingConfig  `mapstructure:"billing"`
	Gateway  GatewayConfig  `mapstructure:"gateway"`
	Report   ReportConfig   `mapstructure:"report"`
}

type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

type DatabaseConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	Username     string `mapstructure:"username"`
	Password     string `mapstructure:"password"`
	Database     string `mapstructure:"database"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

type JWTConfig struct {
	Secret      string `mapstructure:"secret"`
	ExpireHours int    `mapstructure:"expire_hours"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	AllowedMethods []string `mapstructure:"allowed_methods"`
	AllowedHeaders []string `mapstructure:"allowed_headers"`
}

type OSSConfig struct {
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	AccessKeySecret string `mapstructure:"access_key_secret"`
	BucketName      string `mapstructure:"bucket_name"`
	CDNDomain       string `mapstructure:"cdn_domain"`
}

type QueueConfig struct {
	BillingRunQueue string `mapstructure:"billing_run_queue"`
	MaxWorkers      int    `mapstructure:"max_workers"`
}

// BillingConfig 定期扣款处理器配置
type BillingConfig struct {
	MaxRetryAttempts      int   `mapstructure:"max_retry_attempts"`
	RetryDelayDays        []int `mapstructure:"retry_delay_days"`
	EnableNotifications   bool  `mapstructure:"enable_notifications"`
	DryRun                bool  `mapstructure:"dry_run"`
	InterAttemptDelayMS   int   `mapstructure:"inter_attempt_delay_ms"`
	Workers               int   `mapstructure:"workers"`
	GatewayTimeoutSeconds int   `mapstructure:"gateway_timeout_seconds"`
	LockTTLSeconds        int   `mapstructure:"lock_ttl_seconds"`
	RunIntervalMinutes    int   `mapstructure:"run_interval_minutes"`
}

// GatewayConfig 刷卡终端网关配置（租户未配置时使用的默认凭证）
type GatewayConfig struct {
	BaseURL    string `mapstructure:"base_url"`
	AuthToken  string `mapstructure:"auth_token"`
	MerchantID string `mapstructure:"merchant_id"`
}

// ReportConfig 扣款报告归档配置
type ReportConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	LocalDir string `mapstructure:"local_dir"` // OSS 未配置时的本地目录
}

const (
	DefaultMaxRetryAttempts      = 3
	DefaultInterAttemptDelayMS   = 1000
	DefaultWorkers               = 1
	DefaultGatewayTimeoutSeconds = 30
	DefaultLockTTLSeconds        = 120
	DefaultRunIntervalMinutes    = 60
)

// DefaultRetryDelayDays 默认重试间隔阶梯：第 1 次失败后 1 天，第 2 次 3 天，之后 7 天
func DefaultRetryDelayDays() []int {
	return []int{1, 3, 7}
}

// DefaultBilling 返回带默认值的扣款配置
func DefaultBilling() BillingConfig {
	return BillingConfig{
		MaxRetryAttempts:      DefaultMaxRetryAttempts,
		RetryDelayDays:        DefaultRetryDelayDays(),
		EnableNotifications:   true,
		DryRun:                false,
		InterAttemptDelayMS:   DefaultInterAttemptDelayMS,
		Workers:               DefaultWorkers,
		GatewayTimeoutSeconds: DefaultGatewayTimeoutSeconds,
		LockTTLSeconds:        DefaultLockTTLSeconds,
		RunIntervalMinutes:    DefaultRunIntervalMinutes,
	}
}

// Default 返回一份完整的默认配置
func Default() *Config {
	return &Config{
		Queue:   QueueConfig{BillingRunQueue: "billing_runs", MaxWorkers: 1},
		Billing: DefaultBilling(),
		Report:  ReportConfig{LocalDir: "reports"},
	}
}

// WithDefaults 用默认值填充未设置的数值项。布尔项保持原值。
// inter_attempt_delay_ms 为 0 表示关闭限速，只有负数才回落到默认值。
func (b BillingConfig) WithDefaults() BillingConfig {
	if b.MaxRetryAttempts <= 0 {
		b.MaxRetryAttempts = DefaultMaxRetryAttempts
	}
	if len(b.RetryDelayDays) == 0 {
		b.RetryDelayDays = DefaultRetryDelayDays()
	}
	if b.InterAttemptDelayMS < 0 {
		b.InterAttemptDelayMS = DefaultInterAttemptDelayMS
	}
	if b.Workers <= 0 {
		b.Workers = DefaultWorkers
	}
	if b.GatewayTimeoutSeconds <= 0 {
		b.GatewayTimeoutSeconds = DefaultGatewayTimeoutSeconds
	}
	if b.LockTTLSeconds <= 0 {
		b.LockTTLSeconds = DefaultLockTTLSeconds
	}
	if b.RunIntervalMinutes <= 0 {
		b.RunIntervalMinutes = DefaultRunIntervalMinutes
	}
	return b
}

// Validate 校验扣款配置，重试阶梯必须非负且单调不减。
// 订阅锁必须比单次网关调用活得久，否则慢扣款期间锁过期会被另一轮重复认领。
func (b BillingConfig) Validate() error {
	if b.MaxRetryAttempts < 1 {
		return errors.New("billing.max_retry_attempts must be at least 1")
	}
	if len(b.RetryDelayDays) == 0 {
		return errors.New("billing.retry_delay_days must not be empty")
	}
	for i, d := range b.RetryDelayDays {
		if d < 0 {
			return fmt.Errorf("billing.retry_delay_days[%d] is negative", i)
		}
		if i > 0 && d < b.RetryDelayDays[i-1] {
			return fmt.Errorf("billing.retry_delay_days must be non-decreasing (index %d)", i)
		}
	}
	if b.Workers < 1 {
		return errors.New("billing.workers must be at least 1")
	}
	if b.InterAttemptDelayMS < 0 {
		return errors.New("billing.inter_attempt_delay_ms must not be negative")
	}
	if b.GatewayTimeoutSeconds < 1 {
		return errors.New("billing.gateway_timeout_seconds must be at least 1")
	}
	if b.LockTTL() < b.MinLockTTL() {
		return fmt.Errorf("billing.lock_ttl_seconds (%d) must be at least %s (gateway timeout + %s)",
			b.LockTTLSeconds, b.MinLockTTL(), LockTTLMargin)
	}
	return nil
}

func (b BillingConfig) InterAttemptDelay() time.Duration {
	return time.Duration(b.InterAttemptDelayMS) * time.Millisecond
}

func (b BillingConfig) GatewayTimeout() time.Duration {
	return time.Duration(b.GatewayTimeoutSeconds) * time.Second
}

func (b BillingConfig) LockTTL() time.Duration {
	return time.Duration(b.LockTTLSeconds) * time.Second
}

// LockTTLMargin 锁在网关超时之外额外覆盖的时间（重新读取、写状态、写审计）
const LockTTLMargin = 10 * time.Second

// MinLockTTL 订阅锁允许的最小 TTL
func (b BillingConfig) MinLockTTL() time.Duration {
	return b.GatewayTimeout() + LockTTLMargin
}

func (b BillingConfig) RunInterval() time.Duration {
	return time.Duration(b.RunIntervalMinutes) * time.Minute
}

func setDefaults(v *viper.Viper) {
	d := DefaultBilling()
	v.SetDefault("billing.max_retry_attempts", d.MaxRetryAttempts)
	v.SetDefault("billing.retry_delay_days", d.RetryDelayDays)
	v.SetDefault("billing.enable_notifications", d.EnableNotifications)
	v.SetDefault("billing.dry_run", d.DryRun)
	v.SetDefault("billing.inter_attempt_delay_ms", d.InterAttemptDelayMS)
	v.SetDefault("billing.workers", d.Workers)
	v.SetDefault("billing.gateway_timeout_seconds", d.GatewayTimeoutSeconds)
	v.SetDefault("billing.lock_ttl_seconds", d.LockTTLSeconds)
	v.SetDefault("billing.run_interval_minutes", d.RunIntervalMinutes)
	v.SetDefault("queue.billing_run_queue", "billing_runs")
	v.SetDefault("queue.max_workers", 1)
	v.SetDefault("report.local_dir", "reports")
}

func Load(configPath string) (*Config, error) {
	// .env 只用于本地开发，不存在时忽略
	_ = godotenv.Load()

	// 优先尝试读取 config.local.yaml（包含真实密钥，不提交到git）
	dir := filepath.Dir(configPath)
	localConfigPath := filepath.Join(dir, "config.local.yaml")

	if _, err := os.Stat(localConfigPath); err == nil {
		configPath = localConfigPath
	}

	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")

	// 环境变量覆盖
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if err := cfg.Billing.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}
