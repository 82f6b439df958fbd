package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	HTTP     HTTPConfig     `mapstructure:"http"`
	GRPC     GRPCConfig     `mapstructure:"grpc"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Provider ProviderConfig `mapstructure:"provider"`
	MinIO    MinIOConfig    `mapstructure:"minio"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	Fetch    FetchConfig    `mapstructure:"fetch"`
	Store    StoreConfig    `mapstructure:"store"`
	Log      LogConfig      `mapstructure:"log"`
}

type HTTPConfig struct {
	Port           string `mapstructure:"port"`
	MaxUploadBytes int64  `mapstructure:"max_upload_bytes"`
	RunQueueSize   int    `mapstructure:"run_queue_size"`
}

type GRPCConfig struct {
	Port string `mapstructure:"port"`
}

type MetricsConfig struct {
	Port string `mapstructure:"port"`
}

// ProviderConfig describes the OpenAI-compatible image provider.
// APIKey is the server-side fallback credential; callers may override it per request.
type ProviderConfig struct {
	APIKey      string        `mapstructure:"api_key"`
	BaseURL     string        `mapstructure:"base_url"`
	Model       string        `mapstructure:"model"`
	ImageModel  string        `mapstructure:"image_model"`
	Strategy    string        `mapstructure:"strategy"`
	CallTimeout time.Duration `mapstructure:"call_timeout"`
}

type MinIOConfig struct {
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key"`
	SecretAccessKey string `mapstructure:"secret_key"`
	UseSSL          bool   `mapstructure:"use_ssl"`
	BucketName      string `mapstructure:"bucket"`
}

// Kafka consumer configuration
type KafkaConfig struct {
	Brokers       string `mapstructure:"brokers"`
	RequestsTopic string `mapstructure:"requests_topic"`
	ResultsTopic  string `mapstructure:"results_topic"`
	GroupID       string `mapstructure:"group_id"`
}

// FetchConfig limits which hosts http(s) asset references may point at.
// Only queue jobs carry references; the HTTP API accepts inline images only.
type FetchConfig struct {
	AllowedHosts string `mapstructure:"allowed_hosts"`
}

type StoreConfig struct {
	DSN string `mapstructure:"dsn"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

const (
	StrategyChat = "chat"
	StrategyEdit = "edit"
)

func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system env")
	}

	v := viper.New()

	// 设置默认值
	v.SetDefault("http.port", "8080")
	v.SetDefault("http.max_upload_bytes", 20<<20)
	v.SetDefault("http.run_queue_size", 64)
	v.SetDefault("grpc.port", "50058")
	v.SetDefault("metrics.port", "2112")
	v.SetDefault("provider.base_url", "https://api.openai.com/v1")
	v.SetDefault("provider.model", "gpt-4o")
	v.SetDefault("provider.image_model", "gpt-image-1")
	v.SetDefault("provider.strategy", StrategyChat)
	v.SetDefault("provider.call_timeout", 120*time.Second)
	v.SetDefault("kafka.requests_topic", "compose.requests")
	v.SetDefault("kafka.results_topic", "compose.results")
	v.SetDefault("kafka.group_id", "compose-worker")
	v.SetDefault("store.dsn", "file::memory:?cache=shared")
	v.SetDefault("log.level", "info")

	v.AutomaticEnv()

	// 绑定环境变量
	bindings := map[string]string{
		"http.port":             "GATEWAY_PORT",
		"http.max_upload_bytes": "MAX_UPLOAD_BYTES",
		"http.run_queue_size":   "RUN_QUEUE_SIZE",
		"grpc.port":             "GRPC_PORT",
		"metrics.port":          "METRICS_PORT",
		"provider.api_key":      "OPENAI_API_KEY",
		"provider.base_url":     "OPENAI_BASE_URL",
		"provider.model":        "OPENAI_MODEL",
		"provider.image_model":  "OPENAI_IMAGE_MODEL",
		"provider.strategy":     "PROVIDER_STRATEGY",
		"provider.call_timeout": "PROVIDER_CALL_TIMEOUT",
		"minio.endpoint":        "MINIO_ENDPOINT",
		"minio.access_key":      "MINIO_ACCESS_KEY",
		"minio.secret_key":      "MINIO_SECRET_KEY",
		"minio.use_ssl":         "MINIO_USE_SSL",
		"minio.bucket":          "MINIO_BUCKET_NAME",
		"kafka.brokers":         "KAFKA_BROKERS",
		"kafka.requests_topic":  "KAFKA_TOPIC_COMPOSE_REQUESTS",
		"kafka.results_topic":   "KAFKA_TOPIC_COMPOSE_RESULTS",
		"kafka.group_id":        "KAFKA_GROUP_ID",
		"fetch.allowed_hosts":   "FETCH_ALLOWED_HOSTS",
		"store.dsn":             "STORE_DSN",
		"log.level":             "LOG_LEVEL",
	}
	for key, env := range bindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("bind %s: %w", env, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if cfg.Provider.APIKey == "" {
		log.Println("Warning: OPENAI_API_KEY not configured, callers must supply their own key")
	}

	return cfg, nil
}

// Validate normalizes and checks the loaded values.
func (c *Config) Validate() error {
	c.Provider.Strategy = strings.ToLower(strings.TrimSpace(c.Provider.Strategy))
	switch c.Provider.Strategy {
	case "":
		c.Provider.Strategy = StrategyChat
	case StrategyChat, StrategyEdit:
	default:
		return fmt.Errorf("unknown PROVIDER_STRATEGY %q (want %q or %q)", c.Provider.Strategy, StrategyChat, StrategyEdit)
	}
	if c.Provider.CallTimeout <= 0 {
		return fmt.Errorf("PROVIDER_CALL_TIMEOUT must be positive, got %s", c.Provider.CallTimeout)
	}
	c.Provider.APIKey = strings.TrimSpace(c.Provider.APIKey)
	if c.HTTP.MaxUploadBytes <= 0 {
		c.HTTP.MaxUploadBytes = 20 << 20
	}
	if c.HTTP.RunQueueSize <= 0 {
		c.HTTP.RunQueueSize = 64
	}
	return nil
}

// HasServerKey reports whether a fallback provider credential is configured.
func (c *Config) HasServerKey() bool {
	return c.Provider.APIKey != ""
}

func (c *KafkaConfig) Enabled() bool {
	return c.Brokers != "" && c.RequestsTopic != "" && c.GroupID != ""
}

func (c *KafkaConfig) BrokerList() []string {
	return splitList(c.Brokers)
}

func (c *FetchConfig) HostList() []string {
	return splitList(c.AllowedHosts)
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (c *MinIOConfig) Enabled() bool {
	return c.Endpoint != ""
}
