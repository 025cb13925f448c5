package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"github.com/jessevdk/go-flags"
	"gopkg.in/yaml.v3"
)

var ErrInvalid = errors.New("invalid configuration")

const (
	OriginHTTP  = "http"
	OriginS3    = "s3"
	OriginRedis = "redis"
)

type StorageConfig struct {
	Endpoint        string `yaml:"endpoint" long:"s3-endpoint" env:"S3_ENDPOINT" description:"S3/MinIO endpoint"`
	AccessKeyID     string `yaml:"access_key" long:"s3-access-key" env:"S3_ACCESS_KEY" description:"S3 access key"`
	SecretAccessKey string `yaml:"secret_key" long:"s3-secret-key" env:"S3_SECRET_KEY" description:"S3 secret key"`
	UseSSL          bool   `yaml:"use_ssl" long:"s3-use-ssl" env:"S3_USE_SSL" description:"Use TLS for S3"`
}

type CacheConfig struct {
	MaxEntries    int           `yaml:"max_entries" long:"cache-max-entries" env:"CACHE_MAX_ENTRIES" description:"Maximum cached slugs"`
	TTL           time.Duration `yaml:"ttl" long:"cache-ttl" env:"CACHE_TTL" description:"Cached slug lifetime"`
	SweepInterval time.Duration `yaml:"sweep_interval" long:"cache-sweep-interval" env:"CACHE_SWEEP_INTERVAL" description:"Expired entry purge period"`
}

type OriginConfig struct {
	Kind         string        `yaml:"kind" long:"origin" env:"ORIGIN_KIND" description:"Origin resolver: http, s3 or redis"`
	Timeout      time.Duration `yaml:"timeout" long:"origin-timeout" env:"ORIGIN_TIMEOUT" description:"Origin lookup timeout"`
	SingleFlight bool          `yaml:"single_flight" long:"origin-single-flight" env:"ORIGIN_SINGLE_FLIGHT" description:"Share concurrent origin lookups of one slug"`
	URL          string        `yaml:"url" long:"url-service-url" env:"URL_SERVICE_URL" description:"url-service base URL"`
	Bucket       string        `yaml:"bucket" long:"origin-bucket" env:"ORIGIN_BUCKET" description:"Bucket holding slug objects"`
	Prefix       string        `yaml:"prefix" long:"origin-prefix" env:"ORIGIN_PREFIX" description:"Object or key prefix for slugs"`
	RedisAddr    string        `yaml:"redis_addr" long:"redis-addr" env:"REDIS_ADDR" description:"Redis address for the origin and click counter"`
	RedisPass    string        `yaml:"redis_password" long:"redis-password" env:"REDIS_PASSWORD" description:"Redis password"`
	RedisDB      int           `yaml:"redis_db" long:"redis-db" env:"REDIS_DB" description:"Redis database"`
}

type EventsConfig struct {
	QueueSize     int           `yaml:"queue_size" long:"events-queue-size" env:"EVENTS_QUEUE_SIZE" description:"Pending event queue size"`
	Workers       int           `yaml:"workers" long:"events-workers" env:"EVENTS_WORKERS" description:"Event delivery workers"`
	SinkTimeout   time.Duration `yaml:"sink_timeout" long:"events-sink-timeout" env:"EVENTS_SINK_TIMEOUT" description:"Per-event delivery timeout"`
	Log           bool          `yaml:"log" long:"events-log" env:"EVENTS_LOG" description:"Write an access log line per redirect"`
	Clicks        bool          `yaml:"clicks" long:"events-clicks" env:"EVENTS_CLICKS" description:"Count redirects per slug in Redis"`
	ClicksPrefix  string        `yaml:"clicks_prefix" long:"clicks-prefix" env:"CLICKS_PREFIX" description:"Redis key prefix for click counters"`
	NATSURL       string        `yaml:"nats_url" long:"nats-url" env:"NATS_URL" description:"Publish events to this NATS server"`
	NATSSubject   string        `yaml:"nats_subject" long:"nats-subject" env:"NATS_SUBJECT" description:"NATS subject for events"`
	ArchiveBucket string        `yaml:"archive_bucket" long:"archive-bucket" env:"ARCHIVE_BUCKET" description:"Archive events to this bucket"`
	ArchivePrefix string        `yaml:"archive_prefix" long:"archive-prefix" env:"ARCHIVE_PREFIX" description:"Archive object prefix"`
	ArchiveBatch  int           `yaml:"archive_batch" long:"archive-batch" env:"ARCHIVE_BATCH" description:"Events per archive object"`
}

type Config struct {
	ConfigFile string `yaml:"-" short:"c" long:"config" env:"CONFIG_FILE" description:"YAML configuration file"`

	Port      string  `yaml:"port" long:"port" env:"PORT" description:"HTTP listen port"`
	Domain    string  `yaml:"domain" long:"domain" env:"DOMAIN" description:"Public short link domain"`
	AdminKey  string  `yaml:"admin_key" long:"admin-key" env:"ADMIN_API_KEY" description:"API key for admin endpoints"`
	RateLimit float64 `yaml:"rate_limit" long:"rate-limit" env:"RATE_LIMIT" description:"Redirects per second per client, 0 disables"`
	RateBurst int     `yaml:"rate_burst" long:"rate-burst" env:"RATE_BURST" description:"Redirect burst per client"`
	LogLevel  string  `yaml:"log_level" long:"log-level" env:"LOG_LEVEL" description:"debug, info, warn or error"`
	LogFormat string  `yaml:"log_format" long:"log-format" env:"LOG_FORMAT" description:"json or text"`

	// TrustedProxies may set X-Forwarded-For; empty trusts none and rate
	// limits on the peer address.
	TrustedProxies []string `yaml:"trusted_proxies" long:"trusted-proxy" env:"TRUSTED_PROXIES" env-delim:"," description:"Proxy IP or CIDR allowed to set client address headers"`

	Cache   CacheConfig   `yaml:"cache" group:"Cache"`
	Origin  OriginConfig  `yaml:"origin" group:"Origin"`
	Events  EventsConfig  `yaml:"events" group:"Events"`
	Storage StorageConfig `yaml:"storage" group:"Storage"`
}

func Default() Config {
	return Config{
		Port:      "8080",
		Domain:    "localhost:8080",
		RateLimit: 50,
		RateBurst: 100,
		LogLevel:  "info",
		LogFormat: "json",
		Cache: CacheConfig{
			MaxEntries:    10000,
			TTL:           5 * time.Minute,
			SweepInterval: time.Minute,
		},
		Origin: OriginConfig{
			Kind:      OriginHTTP,
			Timeout:   2 * time.Second,
			URL:       "http://url-service:3002",
			RedisAddr: "localhost:6379",
		},
		Events: EventsConfig{
			QueueSize:    1024,
			Workers:      2,
			SinkTimeout:  5 * time.Second,
			Log:          true,
			ClicksPrefix: "clicks:",
			NATSSubject:  "slugcache.events",
			ArchiveBatch: 500,
		},
		Storage: StorageConfig{
			Endpoint:        "localhost:9000",
			AccessKeyID:     "minioadmin",
			SecretAccessKey: "minioadmin",
		},
	}
}

// Load layers configuration: defaults, then the YAML file named by
// --config or CONFIG_FILE, then environment variables and flags.
func Load(args []string) (Config, error) {
	cfg := Default()

	if path := configFile(args); path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}

	// Errors are returned, not printed; main reports them once.
	parser := flags.NewParser(&cfg, flags.HelpFlag)
	if _, err := parser.ParseArgs(args); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// configFile finds the config path before the full parse so the file can
// sit underneath env and flag values.
func configFile(args []string) string {
	var opts struct {
		ConfigFile string `short:"c" long:"config" env:"CONFIG_FILE"`
	}
	parser := flags.NewParser(&opts, flags.IgnoreUnknown)
	if _, err := parser.ParseArgs(args); err != nil {
		return ""
	}
	return opts.ConfigFile
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func (c Config) Validate() error {
	var problems []string

	if c.Cache.MaxEntries <= 0 {
		problems = append(problems, "cache max entries must be positive")
	}
	if c.Cache.TTL <= 0 {
		problems = append(problems, "cache ttl must be positive")
	}
	if c.Cache.SweepInterval < 0 {
		problems = append(problems, "cache sweep interval cannot be negative")
	}
	if c.Origin.Timeout <= 0 {
		problems = append(problems, "origin timeout must be positive")
	}
	switch c.Origin.Kind {
	case OriginHTTP:
		if c.Origin.URL == "" {
			problems = append(problems, "url-service url cannot be empty")
		}
	case OriginS3:
		if c.Origin.Bucket == "" {
			problems = append(problems, "origin bucket cannot be empty")
		}
	case OriginRedis:
		if c.Origin.RedisAddr == "" {
			problems = append(problems, "redis address cannot be empty")
		}
	default:
		problems = append(problems, fmt.Sprintf("unknown origin %q", c.Origin.Kind))
	}
	for _, p := range c.TrustedProxies {
		if !validProxy(p) {
			problems = append(problems, fmt.Sprintf("trusted proxy %q is not an IP or CIDR", p))
		}
	}
	if c.RateLimit < 0 {
		problems = append(problems, "rate limit cannot be negative")
	}
	if c.RateLimit > 0 && c.RateBurst <= 0 {
		problems = append(problems, "rate burst must be positive when rate limiting")
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(problems, "; "))
	}
	return nil
}

func validProxy(p string) bool {
	if strings.Contains(p, "/") {
		_, _, err := net.ParseCIDR(p)
		return err == nil
	}
	return net.ParseIP(p) != nil
}

// Addr is the listen address for the HTTP server.
func (c Config) Addr() string {
	if strings.Contains(c.Port, ":") {
		return c.Port
	}
	return ":" + c.Port
}
