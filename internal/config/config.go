package config

import (
	"fmt"
	"log"
	"net"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

const ConfigPathEnv = "SETTLEMENT_CONFIG_PATH"

type SettlementConfig struct {
	Env             string `yaml:"env" env:"SETTLEMENT_ENV" env-default:"local"`
	HTTPServer      `yaml:"http_server"`
	GRPCServer      `yaml:"grpc_server"`
	SettlementDB    `yaml:"settlement_db"`
	LogConfig       `yaml:"log_config"`
	Gateway         `yaml:"gateway"`
	Webhook         `yaml:"webhook"`
	KafkaService    `yaml:"kafka-service"`
	PlatformService `yaml:"platform-service"`
	Reconcile       `yaml:"reconcile"`
	Settlement      `yaml:"settlement"`
	Audit           `yaml:"audit"`
}

type HTTPServer struct {
	Host         string        `yaml:"host" env-default:"0.0.0.0"`
	Port         string        `yaml:"port" env:"HTTP_PORT" env-default:"8080"`
	ReadTimeout  time.Duration `yaml:"read_timeout" env-default:"10s"`
	WriteTimeout time.Duration `yaml:"write_timeout" env-default:"10s"`
	// Сервисный токен, которым нас вызывает API-гейтвей платформы
	ServiceToken string `yaml:"service_token" env:"SETTLEMENT_SERVICE_TOKEN"`
}

func (s HTTPServer) Addr() string {
	return net.JoinHostPort(s.Host, s.Port)
}

type GRPCServer struct {
	Host string `yaml:"host" env-default:"0.0.0.0"`
	Port string `yaml:"port" env:"GRPC_PORT" env-default:"50061"`
}

func (s GRPCServer) Addr() string {
	return net.JoinHostPort(s.Host, s.Port)
}

type SettlementDB struct {
	Dsn             string        `yaml:"dsn" env:"SETTLEMENT_DB_DSN" env-required:"true"`
	MigrationsPath  string        `yaml:"migrations_path" env-default:"migrations"`
	MigrateOnStart  bool          `yaml:"migrate_on_start" env-default:"true"`
	MaxOpenConns    int           `yaml:"max_open_conns" env-default:"20"`
	MaxIdleConns    int           `yaml:"max_idle_conns" env-default:"5"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" env-default:"30m"`
}

type LogConfig struct {
	LogLevel  string `yaml:"log_level" env:"LOG_LEVEL" env-default:"info"`
	LogFormat string `yaml:"log_format" env-default:"json"`
	LogOutput string `yaml:"log_output" env-default:"stdout"`
}

type Gateway struct {
	BaseURL      string        `yaml:"base_url" env:"GATEWAY_BASE_URL" env-default:"https://api-m.sandbox.paypal.com"`
	ClientID     string        `yaml:"client_id" env:"GATEWAY_CLIENT_ID"`
	ClientSecret string        `yaml:"client_secret" env:"GATEWAY_CLIENT_SECRET"`
	Timeout      time.Duration `yaml:"timeout" env-default:"15s"`
	MaxAttempts  int           `yaml:"max_attempts" env-default:"3"`
	RetryBackoff time.Duration `yaml:"retry_backoff" env-default:"500ms"`
	ReturnURL    string        `yaml:"return_url" env-default:"https://example.com/contributions/return"`
	CancelURL    string        `yaml:"cancel_url" env-default:"https://example.com/contributions/cancel"`
}

type Webhook struct {
	Secret string `yaml:"secret" env:"GATEWAY_WEBHOOK_SECRET"`
}

type KafkaService struct {
	Brokers      []string `yaml:"brokers" env:"KAFKA_BROKERS" env-separator:","`
	EventsTopic  string   `yaml:"events_topic" env-default:"settlement-events"`
	WebhookTopic string   `yaml:"webhook_topic"`
	GroupID      string   `yaml:"group_id" env-default:"settlement-service"`
}

func (k KafkaService) Enabled() bool {
	return len(k.Brokers) > 0
}

type PlatformService struct {
	BaseURL string        `yaml:"base_url" env:"PLATFORM_BASE_URL"`
	Token   string        `yaml:"token" env:"PLATFORM_TOKEN"`
	Timeout time.Duration `yaml:"timeout" env-default:"5s"`
	// Куда слать события, если Kafka не настроена
	EventsPath string `yaml:"events_path" env-default:"/internal/settlement-events"`
}

type Reconcile struct {
	Enabled          bool          `yaml:"enabled" env-default:"true"`
	Interval         time.Duration `yaml:"interval" env-default:"2m"`
	PendingThreshold time.Duration `yaml:"pending_threshold" env-default:"15m"`
	OrderExpiry      time.Duration `yaml:"order_expiry" env-default:"3h"`
	BatchSize        int           `yaml:"batch_size" env-default:"100"`
	AuditInvariant   bool          `yaml:"audit_invariant" env-default:"true"`
}

type Settlement struct {
	AllowAutoClose bool `yaml:"allow_auto_close" env-default:"false"`
}

type Audit struct {
	Enabled         bool   `yaml:"enabled" env-default:"false"`
	Bucket          string `yaml:"bucket" env:"AUDIT_BUCKET"`
	Prefix          string `yaml:"prefix" env-default:"gateway-responses"`
	Region          string `yaml:"region" env-default:"auto"`
	Endpoint        string `yaml:"endpoint" env:"AUDIT_ENDPOINT"`
	AccessKeyID     string `yaml:"access_key_id" env:"AUDIT_ACCESS_KEY_ID"`
	SecretAccessKey string `yaml:"secret_access_key" env:"AUDIT_SECRET_ACCESS_KEY"`
}

// Load reads the YAML file at path and applies environment overrides.
func Load(path string) (*SettlementConfig, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("failed to find config file: %w", err)
	}

	var cfg SettlementConfig
	if err := cleanenv.ReadConfig(path, &cfg); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func MustLoad() *SettlementConfig {
	configPath := os.Getenv(ConfigPathEnv)
	if configPath == "" {
		log.Fatalf("%s was not found\n", ConfigPathEnv)
	}

	cfg, err := Load(configPath)
	if err != nil {
		log.Fatalf("%v", err)
	}
	return cfg
}

func (c *SettlementConfig) validate() error {
	if c.Gateway.MaxAttempts < 1 {
		return fmt.Errorf("gateway.max_attempts must be at least 1, got %d", c.Gateway.MaxAttempts)
	}
	if c.Reconcile.Enabled && c.Reconcile.Interval <= 0 {
		return fmt.Errorf("reconcile.interval must be positive")
	}
	if c.Reconcile.BatchSize < 1 {
		return fmt.Errorf("reconcile.batch_size must be at least 1, got %d", c.Reconcile.BatchSize)
	}
	if c.Audit.Enabled && c.Audit.Bucket == "" {
		return fmt.Errorf("audit.bucket is required when audit is enabled")
	}
	return nil
}
