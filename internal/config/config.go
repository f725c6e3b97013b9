package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all service configuration, loaded once from the environment.
type Config struct {
	Environment string

	Server        ServerConfig
	Logging       LoggingConfig
	Redis         RedisConfig
	Scylla        ScyllaConfig
	Clickhouse    ClickhouseConfig
	Kafka         KafkaConfig
	Elasticsearch ElasticsearchConfig
	Detection     DetectionConfig
}

type ServerConfig struct {
	Port         int
	TLSPort      int
	EnableTLS    bool
	AutoCert     bool
	Domain       string
	CertFile     string
	KeyFile      string
	AutoCertDir  string
	Email        string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type LoggingConfig struct {
	Level  string
	Format string
}

type RedisConfig struct {
	URL      string
	Password string
	DB       int
	PoolSize int
}

type ScyllaConfig struct {
	Nodes    []string
	Keyspace string
	Username string
	Password string
}

type ClickhouseConfig struct {
	URL      string
	Database string
	Username string
	Password string
}

type KafkaConfig struct {
	Brokers       []string
	ActivityTopic string
	AlertTopic    string
	ConsumerGroup string
}

type ElasticsearchConfig struct {
	URL        string
	Username   string
	Password   string
	AlertIndex string
}

// DetectionConfig tunes the anomaly scoring pipeline. Defaults reproduce the
// alert frequency the system was calibrated against; change with care.
type DetectionConfig struct {
	Trees               int
	Contamination       float64
	MinFitSamples       int
	MinAnalysisSamples  int
	RecentWindow        int
	FetchLimit          int
	AlertScoreFloor     float64
	AnomalyRatioFloor   float64
	EvaluationInterval  time.Duration
	DistractingKeywords []string
	ReportInterval      time.Duration
	IdleThreshold       time.Duration
	IngestRatePerMinute int
}

// defaultDistractingKeywords is the baked-in taxonomy of non-work foreground
// applications. Overridable via DETECTION_DISTRACTING_KEYWORDS (comma list).
var defaultDistractingKeywords = []string{
	"youtube", "reddit", "netflix", "game", "social",
	"facebook", "twitter", "instagram", "discord", "steam",
	"tiktok", "hulu", "prime video", "spotify", "telegram",
}

var (
	globalConfig *Config
	once         sync.Once
)

// LoadConfig reads configuration from the environment (and .env if present).
func LoadConfig() *Config {
	once.Do(func() {
		// Best effort; a missing .env just means pure-env configuration.
		_ = godotenv.Load()

		globalConfig = &Config{
			Environment: getEnv("ENVIRONMENT", "development"),
			Server: ServerConfig{
				Port:         getEnvInt("SERVER_PORT", 5000),
				TLSPort:      getEnvInt("SERVER_TLS_PORT", 5443),
				EnableTLS:    getEnvBool("SERVER_ENABLE_TLS", false),
				AutoCert:     getEnvBool("SERVER_AUTO_CERT", false),
				Domain:       getEnv("SERVER_DOMAIN", "localhost"),
				CertFile:     getEnv("SERVER_CERT_FILE", ""),
				KeyFile:      getEnv("SERVER_KEY_FILE", ""),
				AutoCertDir:  getEnv("SERVER_AUTOCERT_DIR", "/var/cache/fraud-detection/certs"),
				Email:        getEnv("SERVER_ACME_EMAIL", ""),
				ReadTimeout:  getEnvDuration("SERVER_READ_TIMEOUT", 15*time.Second),
				WriteTimeout: getEnvDuration("SERVER_WRITE_TIMEOUT", 30*time.Second),
				IdleTimeout:  getEnvDuration("SERVER_IDLE_TIMEOUT", 120*time.Second),
			},
			Logging: LoggingConfig{
				Level:  getEnv("LOG_LEVEL", "info"),
				Format: getEnv("LOG_FORMAT", "json"),
			},
			Redis: RedisConfig{
				URL:      getEnv("REDIS_URL", "redis://localhost:6379"),
				Password: getEnv("REDIS_PASSWORD", ""),
				DB:       getEnvInt("REDIS_DB", 0),
				PoolSize: getEnvInt("REDIS_POOL_SIZE", 50),
			},
			Scylla: ScyllaConfig{
				Nodes:    splitAndTrim(getEnv("SCYLLA_NODES", "localhost:9042")),
				Keyspace: getEnv("SCYLLA_KEYSPACE", "fraud_detection"),
				Username: getEnv("SCYLLA_USERNAME", ""),
				Password: getEnv("SCYLLA_PASSWORD", ""),
			},
			Clickhouse: ClickhouseConfig{
				URL:      getEnv("CLICKHOUSE_URL", "http://localhost:8123"),
				Database: getEnv("CLICKHOUSE_DATABASE", "fraud_detection"),
				Username: getEnv("CLICKHOUSE_USERNAME", "default"),
				Password: getEnv("CLICKHOUSE_PASSWORD", ""),
			},
			Kafka: KafkaConfig{
				Brokers:       splitAndTrim(getEnv("KAFKA_BROKERS", "localhost:9092")),
				ActivityTopic: getEnv("KAFKA_ACTIVITY_TOPIC", "activity-events"),
				AlertTopic:    getEnv("KAFKA_ALERT_TOPIC", "fraud-alerts"),
				ConsumerGroup: getEnv("KAFKA_CONSUMER_GROUP", "fraud-detection-ingest"),
			},
			Elasticsearch: ElasticsearchConfig{
				URL:        getEnv("ELASTICSEARCH_URL", "http://localhost:9200"),
				Username:   getEnv("ELASTICSEARCH_USERNAME", ""),
				Password:   getEnv("ELASTICSEARCH_PASSWORD", ""),
				AlertIndex: getEnv("ELASTICSEARCH_ALERT_INDEX", "fraud-alerts"),
			},
			Detection: DetectionConfig{
				Trees:               getEnvInt("DETECTION_TREES", 100),
				Contamination:       getEnvFloat("DETECTION_CONTAMINATION", 0.1),
				MinFitSamples:       getEnvInt("DETECTION_MIN_FIT_SAMPLES", 10),
				MinAnalysisSamples:  getEnvInt("DETECTION_MIN_ANALYSIS_SAMPLES", 5),
				RecentWindow:        getEnvInt("DETECTION_RECENT_WINDOW", 10),
				FetchLimit:          getEnvInt("DETECTION_FETCH_LIMIT", 100),
				AlertScoreFloor:     getEnvFloat("DETECTION_ALERT_SCORE_FLOOR", 60),
				AnomalyRatioFloor:   getEnvFloat("DETECTION_ANOMALY_RATIO_FLOOR", 0.3),
				EvaluationInterval:  getEnvDuration("DETECTION_EVALUATION_INTERVAL", 60*time.Second),
				DistractingKeywords: keywordsFromEnv(),
				ReportInterval:      getEnvDuration("AGENT_REPORT_INTERVAL", 15*time.Second),
				IdleThreshold:       getEnvDuration("AGENT_IDLE_THRESHOLD", 60*time.Second),
				IngestRatePerMinute: getEnvInt("INGEST_RATE_PER_MINUTE", 30),
			},
		}
	})

	return globalConfig
}

// Get returns the loaded configuration, loading it on first use.
func Get() *Config {
	if globalConfig == nil {
		return LoadConfig()
	}
	return globalConfig
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func (c *Config) IsDevelopment() bool {
	return !c.IsProduction()
}

func (c *Config) GetServerAddress() string {
	return fmt.Sprintf(":%d", c.Server.Port)
}

func keywordsFromEnv() []string {
	raw := getEnv("DETECTION_DISTRACTING_KEYWORDS", "")
	if raw == "" {
		return append([]string(nil), defaultDistractingKeywords...)
	}
	return splitAndTrim(raw)
}

func splitAndTrim(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return fallback
}
