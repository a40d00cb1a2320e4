package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	HTTP         HTTPConfig         `yaml:"http"`
	GRPC         GRPCConfig         `yaml:"grpc"`
	Database     DatabaseConfig     `yaml:"database"`
	Redis        RedisConfig        `yaml:"redis"`
	Kafka        KafkaConfig        `yaml:"kafka"`
	RabbitMQ     RabbitMQConfig     `yaml:"rabbitmq"`
	Solr         SolrConfig         `yaml:"solr"`
	Index        IndexConfig        `yaml:"index"`
	Booking      BookingConfig      `yaml:"booking"`
	Alternatives AlternativesConfig `yaml:"alternatives"`
	Worker       WorkerConfig       `yaml:"worker"`
	Auth         AuthConfig         `yaml:"auth"`
	SMTP         SMTPConfig         `yaml:"smtp"`
	Cache        CacheConfig        `yaml:"cache"`
	Log          LogConfig          `yaml:"log"`
	Tracing      TracingConfig      `yaml:"tracing"`
}

type HTTPConfig struct {
	Address    string `yaml:"address"`
	SwaggerDir string `yaml:"swagger_dir"`
}

type GRPCConfig struct {
	Address string `yaml:"address"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
	SSLMode  string `yaml:"ssl_mode"`
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s", d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode)
}

// RedisConfig with an empty Addr disables the shared lock and cache.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type KafkaConfig struct {
	Brokers            []string `yaml:"brokers"`
	BookingEventsTopic string   `yaml:"booking_events_topic"`
	AvailabilityTopic  string   `yaml:"availability_topic"`
	NotificationsTopic string   `yaml:"notifications_topic"`
	GroupID            string   `yaml:"group_id"`
}

type RabbitMQConfig struct {
	URL   string `yaml:"url"`
	Queue string `yaml:"queue"`
}

type SolrConfig struct {
	BaseURL        string `yaml:"base_url"`
	Collection     string `yaml:"collection"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

const (
	TransportKafka    = "kafka"
	TransportRabbitMQ = "rabbitmq"
	TransportSolr     = "solr"
)

type IndexConfig struct {
	Transport          string `yaml:"transport"`
	HorizonMonths      int    `yaml:"horizon_months"`
	MaxAttempts        int    `yaml:"max_attempts"`
	BackoffStepSeconds int    `yaml:"backoff_step_seconds"`
	Workers            int    `yaml:"workers"`
	QueueSize          int    `yaml:"queue_size"`
	// BreakerFailures consecutive failures open the circuit for BreakerOpenSeconds.
	BreakerFailures    uint32 `yaml:"breaker_failures"`
	BreakerOpenSeconds int    `yaml:"breaker_open_seconds"`
}

func (c IndexConfig) BreakerOpen() time.Duration {
	return time.Duration(c.BreakerOpenSeconds) * time.Second
}

func (c SolrConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

func (c WorkerConfig) ExpirationSweep() time.Duration {
	return time.Duration(c.ExpirationSweepMinutes) * time.Minute
}

func (c WorkerConfig) OutboxPoll() time.Duration {
	return time.Duration(c.OutboxPollSeconds) * time.Second
}

func (c WorkerConfig) OutboxLease() time.Duration {
	return time.Duration(c.OutboxLeaseSeconds) * time.Second
}

func (c IndexConfig) BackoffStep() time.Duration {
	return time.Duration(c.BackoffStepSeconds) * time.Second
}

type BookingConfig struct {
	HoldTTLMinutes int `yaml:"hold_ttl_minutes"`
	LockTTLSeconds int `yaml:"lock_ttl_seconds"`
}

func (c BookingConfig) HoldTTL() time.Duration {
	return time.Duration(c.HoldTTLMinutes) * time.Minute
}

func (c BookingConfig) LockTTL() time.Duration {
	return time.Duration(c.LockTTLSeconds) * time.Second
}

type AlternativesConfig struct {
	MaxDaysBefore int `yaml:"max_days_before"`
	MaxDaysAfter  int `yaml:"max_days_after"`
}

type WorkerConfig struct {
	ExpirationSweepMinutes int `yaml:"expiration_sweep_minutes"`
	OutboxPollSeconds      int `yaml:"outbox_poll_seconds"`
	OutboxBatchSize        int `yaml:"outbox_batch_size"`
	OutboxLeaseSeconds     int `yaml:"outbox_lease_seconds"`
}

type SMTPConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	From     string `yaml:"from"`
}

type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
}

const (
	SharedCacheRedis     = "redis"
	SharedCacheMemcached = "memcached"
	SharedCacheNone      = "none"
)

type CacheConfig struct {
	// Shared picks the cross-process snapshot layer: redis, memcached or none.
	Shared           string   `yaml:"shared"`
	MemcachedAddrs   []string `yaml:"memcached_addrs"`
	LocalTTLSeconds  int      `yaml:"local_ttl_seconds"`
	SharedTTLSeconds int      `yaml:"shared_ttl_seconds"`
	LocalMaxSize     int64    `yaml:"local_max_size"`
}

func (c CacheConfig) LocalTTL() time.Duration {
	return time.Duration(c.LocalTTLSeconds) * time.Second
}

func (c CacheConfig) SharedTTL() time.Duration {
	return time.Duration(c.SharedTTLSeconds) * time.Second
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// TracingConfig.Exporter is "stdout" or empty for no export.
type TracingConfig struct {
	Exporter string `yaml:"exporter"`
}

// LoadConfig reads the YAML file at path after loading an optional .env file.
// ${VAR} references in the file are expanded from the environment.
func LoadConfig(path string) (*Config, error) {
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Path returns CONFIG_PATH or the default file name.
func Path() string {
	_ = godotenv.Load()
	if p := os.Getenv("CONFIG_PATH"); p != "" {
		return p
	}
	return "config.yaml"
}

func (c *Config) ApplyDefaults() {
	setDefault(&c.HTTP.Address, ":8080")
	setDefault(&c.GRPC.Address, ":50051")
	setDefault(&c.Kafka.BookingEventsTopic, "booking_events")
	setDefault(&c.Kafka.AvailabilityTopic, "availability_snapshots")
	setDefault(&c.Kafka.GroupID, "availability-indexer")
	setDefault(&c.RabbitMQ.Queue, "availability_snapshots")
	setDefault(&c.Solr.Collection, "units")
	setDefault(&c.Index.Transport, TransportKafka)
	setDefault(&c.Cache.Shared, SharedCacheRedis)
	setDefault(&c.Log.Level, "info")
	setDefault(&c.Log.Format, "json")

	setDefault(&c.SMTP.Port, 587)
	setDefault(&c.Solr.TimeoutSeconds, 5)
	setDefault(&c.Index.HorizonMonths, 6)
	setDefault(&c.Index.MaxAttempts, 3)
	setDefault(&c.Index.BackoffStepSeconds, 1)
	setDefault(&c.Index.Workers, 2)
	setDefault(&c.Index.QueueSize, 256)
	setDefault(&c.Index.BreakerOpenSeconds, 30)
	if c.Index.BreakerFailures == 0 {
		c.Index.BreakerFailures = 5
	}
	setDefault(&c.Booking.HoldTTLMinutes, 15)
	setDefault(&c.Booking.LockTTLSeconds, 10)
	setDefault(&c.Alternatives.MaxDaysBefore, 14)
	setDefault(&c.Alternatives.MaxDaysAfter, 14)
	setDefault(&c.Worker.ExpirationSweepMinutes, 1)
	setDefault(&c.Worker.OutboxPollSeconds, 10)
	setDefault(&c.Worker.OutboxBatchSize, 100)
	setDefault(&c.Worker.OutboxLeaseSeconds, 60)
	setDefault(&c.Cache.LocalTTLSeconds, 30)
	setDefault(&c.Cache.SharedTTLSeconds, 300)
	if c.Cache.LocalMaxSize == 0 {
		c.Cache.LocalMaxSize = 10000
	}
}

func (c *Config) Validate() error {
	switch c.Index.Transport {
	case TransportKafka, TransportRabbitMQ, TransportSolr:
	default:
		return fmt.Errorf("unknown index transport %q", c.Index.Transport)
	}
	switch c.Cache.Shared {
	case SharedCacheRedis, SharedCacheMemcached, SharedCacheNone:
	default:
		return fmt.Errorf("unknown shared cache %q", c.Cache.Shared)
	}
	if c.Alternatives.MaxDaysBefore < 0 || c.Alternatives.MaxDaysAfter < 0 {
		return fmt.Errorf("alternatives window must not be negative")
	}
	return nil
}

func setDefault[T comparable](field *T, value T) {
	var zero T
	if *field == zero {
		*field = value
	}
}
