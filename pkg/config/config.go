package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Source types.
const (
	SourcePostgres   = "postgres"
	SourceClickHouse = "clickhouse"
	SourceCSV        = "csv"
)

type Config struct {
	Environment string           `yaml:"environment" default:"development" validate:"required"`
	Server      ServerConfig     `yaml:"server"`
	Metrics     MetricsConfig    `yaml:"metrics"`
	Log         LogConfig        `yaml:"log"`
	Forecast    ForecastConfig   `yaml:"forecast"`
	Source      SourceConfig     `yaml:"source"`
	Postgres    PostgresConfig   `yaml:"postgres"`
	ClickHouse  ClickHouseConfig `yaml:"clickhouse"`
	Redis       RedisConfig      `yaml:"redis"`
	Cache       CacheConfig      `yaml:"cache"`
	Kafka       KafkaConfig      `yaml:"kafka"`
	RateLimit   RateLimitConfig  `yaml:"rate_limit"`
}

type ServerConfig struct {
	Port            int           `yaml:"port" default:"8080" validate:"gte=1,lte=65535"`
	ReadTimeout     time.Duration `yaml:"read_timeout" default:"15s"`
	WriteTimeout    time.Duration `yaml:"write_timeout" default:"120s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"15s"`
	SlowThreshold   time.Duration `yaml:"slow_threshold" default:"5s"`
	CORS            bool          `yaml:"cors" default:"true"`
	CORSOrigins     []string      `yaml:"cors_origins"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" default:"true"`
	Path    string `yaml:"path" default:"/metrics" validate:"startswith=/"`
}

type LogConfig struct {
	Level  string `yaml:"level" default:"info" validate:"oneof=trace debug info warn error fatal panic"`
	Format string `yaml:"format" default:"json" validate:"oneof=json console"`
	Output string `yaml:"output" default:"stdout"`
}

type SpecialMonth struct {
	Name  string `yaml:"name" validate:"required"`
	Month int    `yaml:"month" validate:"gte=1,lte=12"`
}

// ForecastConfig carries the pipeline defaults; requests may override some.
type ForecastConfig struct {
	Granularity    string         `yaml:"segment_granularity" default:"GLOBAL" validate:"oneof=GLOBAL PER_CALENDAR_MONTH"`
	LagWindows     []int          `yaml:"lag_windows" default:"[1]" validate:"dive,gte=1"`
	RollingWindows []int          `yaml:"rolling_windows" default:"[3,6]" validate:"dive,gte=1"`
	SpecialMonths  []SpecialMonth `yaml:"special_months" validate:"dive"`
	MinSegmentRows int            `yaml:"min_segment_rows" default:"2" validate:"gte=1"`
	Strategy       string         `yaml:"model_strategy" default:"ols" validate:"oneof=ols random_forest gradient_boosting"`
	Fallbacks      []string       `yaml:"fallback_strategies" default:"[\"ols\"]" validate:"dive,oneof=ols random_forest gradient_boosting"`
	Search         bool           `yaml:"hyperparameter_search"`
	CVFolds        int            `yaml:"cv_folds" default:"5" validate:"gte=2"`
	HorizonMonths  int            `yaml:"forecast_horizon_months" default:"12" validate:"gte=1,lte=60"`
	Anchor         string         `yaml:"horizon_anchor" default:"calendar_year" validate:"oneof=calendar_year next_period"`
	Seed           int64          `yaml:"random_seed" default:"42"`
	Timeout        time.Duration  `yaml:"timeout" default:"60s"`
}

// SourceConfig selects the sales ingestion adapter.
type SourceConfig struct {
	Type               string `yaml:"type" default:"postgres" validate:"oneof=postgres clickhouse csv"`
	Table              string `yaml:"table" default:"sales_data"`
	CSVPath            string `yaml:"csv_path"`
	PreAggregated      bool   `yaml:"pre_aggregated" default:"true"`
	ExcludeCurrentYear bool   `yaml:"exclude_current_year" default:"true"`
}

type PostgresConfig struct {
	URL             string        `yaml:"url"`
	MaxConns        int32         `yaml:"max_conns" default:"10" validate:"gte=1"`
	MinConns        int32         `yaml:"min_conns" default:"1" validate:"gte=0"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" default:"30m"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time" default:"5m"`
}

type ClickHouseConfig struct {
	Host             string        `yaml:"host"`
	Port             int           `yaml:"port" default:"9000"`
	Database         string        `yaml:"database" default:"default"`
	User             string        `yaml:"user" default:"default"`
	Password         string        `yaml:"password"`
	UseHTTP          bool          `yaml:"use_http"`
	InitSchema       bool          `yaml:"init_schema"`
	DialTimeout      time.Duration `yaml:"dial_timeout" default:"5s"`
	ReadTimeout      time.Duration `yaml:"read_timeout" default:"30s"`
	MaxExecutionTime time.Duration `yaml:"max_execution_time" default:"60s"`
}

type RedisConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Addr     string        `yaml:"addr" default:"localhost:6379"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	PoolSize int           `yaml:"pool_size" default:"10"`
	Timeout  time.Duration `yaml:"timeout" default:"3s"`
	Prefix   string        `yaml:"prefix" default:"salescast"`
}

type CacheConfig struct {
	Enabled        bool          `yaml:"enabled" default:"true"`
	TTL            time.Duration `yaml:"ttl" default:"1h"`
	MemoryMaxSize  int           `yaml:"memory_max_size" default:"256" validate:"gte=1"`
	ModelCacheSize int           `yaml:"model_cache_size" default:"64" validate:"gte=1"`
	LockTTL        time.Duration `yaml:"lock_ttl" default:"2m"`
	LockPoll       time.Duration `yaml:"lock_poll" default:"100ms"`
}

type KafkaConfig struct {
	Enabled      bool          `yaml:"enabled"`
	Brokers      []string      `yaml:"brokers"`
	Topic        string        `yaml:"topic" default:"salescast.forecasts"`
	RequiredAcks int           `yaml:"required_acks" default:"-1" validate:"oneof=-1 0 1"`
	Compression  string        `yaml:"compression" default:"gzip" validate:"oneof=gzip snappy lz4 zstd"`
	MaxAttempts  int           `yaml:"max_attempts" default:"3" validate:"gte=1"`
	WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
	Linger       time.Duration `yaml:"linger" default:"50ms"`
	Async        bool          `yaml:"async"`
}

type RateLimitConfig struct {
	Enabled bool    `yaml:"enabled" default:"true"`
	RPS     float64 `yaml:"rps" default:"2" validate:"gt=0"`
	Burst   int     `yaml:"burst" default:"5" validate:"gte=1"`
}

var validate = validator.New()

// Default returns a configuration with every default applied.
func Default() (*Config, error) {
	var c Config
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("config defaults: %w", err)
	}
	return &c, nil
}

// Load reads a YAML file over the defaults and validates the result. An
// empty path yields the defaults.
func Load(path string) (*Config, error) {
	c, err := load(path)
	if err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

// LoadWithEnv loads config from YAML and overrides with environment variables.
func LoadWithEnv(path string) (*Config, error) {
	c, err := load(path)
	if err != nil {
		return nil, err
	}
	if err := c.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

func load(path string) (*Config, error) {
	c, err := Default()
	if err != nil {
		return nil, err
	}
	if path == "" {
		return c, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(b, c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return c, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup("DATABASE_URL"); ok && v != "" {
		c.Postgres.URL = v
	}
	if v, ok := lookup("APP_PORT"); ok && v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("APP_PORT: %w", err)
		}
		c.Server.Port = port
	}
	if v, ok := lookup("REDIS_ADDR"); ok && v != "" {
		c.Redis.Addr = v
		c.Redis.Enabled = true
	}
	if v, ok := lookup("KAFKA_BROKERS"); ok && v != "" {
		c.Kafka.Brokers = splitList(v)
		c.Kafka.Enabled = true
	}
	if v, ok := lookup("KAFKA_TOPIC"); ok && v != "" {
		c.Kafka.Topic = v
	}
	if v, ok := lookup("LOG_LEVEL"); ok && v != "" {
		c.Log.Level = strings.ToLower(v)
	}
	if v, ok := lookup("SALES_SOURCE"); ok && v != "" {
		c.Source.Type = strings.ToLower(v)
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate checks struct tags and the cross-field rules tags cannot express.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}
	var errs []error
	switch c.Source.Type {
	case SourcePostgres:
		if c.Postgres.URL == "" {
			errs = append(errs, errors.New("postgres.url is required for the postgres source"))
		}
	case SourceClickHouse:
		if c.ClickHouse.Host == "" {
			errs = append(errs, errors.New("clickhouse.host is required for the clickhouse source"))
		}
	case SourceCSV:
		if c.Source.CSVPath == "" {
			errs = append(errs, errors.New("source.csv_path is required for the csv source"))
		}
	}
	if c.Postgres.MinConns > c.Postgres.MaxConns {
		errs = append(errs, fmt.Errorf("postgres.min_conns %d exceeds max_conns %d", c.Postgres.MinConns, c.Postgres.MaxConns))
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		errs = append(errs, errors.New("kafka.brokers cannot be empty when kafka is enabled"))
	}
	if c.Kafka.Enabled && c.Kafka.Topic == "" {
		errs = append(errs, errors.New("kafka.topic is required when kafka is enabled"))
	}
	if c.Redis.Enabled && c.Redis.Addr == "" {
		errs = append(errs, errors.New("redis.addr is required when redis is enabled"))
	}
	return errors.Join(errs...)
}
