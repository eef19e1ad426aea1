// Package config loads service and client settings from an optional TOML
// file, then lets environment variables override individual values.
package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/Cross4solution/MedGama-sub003/internal/kv"
	"github.com/Cross4solution/MedGama-sub003/internal/realtime"
)

// Config holds every setting of the connections service and the chat client.
type Config struct {
	Port        string `toml:"port"`
	ServiceName string `toml:"service_name"`
	Environment string `toml:"environment"`
	DebugRoutes bool   `toml:"debug_routes"`
	JWTSecret   string `toml:"jwt_secret"`
	APIBaseURL  string `toml:"api_base_url"`

	KV        KVConfig        `toml:"kv"`
	AMQP      AMQPConfig      `toml:"amqp"`
	Telemetry TelemetryConfig `toml:"telemetry"`
	Reverb    ReverbConfig    `toml:"reverb"`
	Pusher    PusherConfig    `toml:"pusher"`
	Uploads   UploadsConfig   `toml:"uploads"`
}

type KVConfig struct {
	Driver         string `toml:"driver"`
	DSN            string `toml:"dsn"`
	SQLitePath     string `toml:"sqlite_path"`
	ValkeyAddr     string `toml:"valkey_addr"`
	ValkeyPassword string `toml:"valkey_password"`
	ValkeyDB       int    `toml:"valkey_db"`
}

type AMQPConfig struct {
	URL            string `toml:"url"`
	Exchange       string `toml:"exchange"`
	ChangeExchange string `toml:"change_exchange"`
	AuditRouting   string `toml:"audit_routing_key"`
}

type TelemetryConfig struct {
	OTLPEndpoint string `toml:"otlp_endpoint"`
}

// ReverbConfig is the self-hosted broker.
type ReverbConfig struct {
	Key    string `toml:"key"`
	Host   string `toml:"host"`
	Port   string `toml:"port"`
	Scheme string `toml:"scheme"`
}

// PusherConfig is the cloud pub/sub service.
type PusherConfig struct {
	Key     string `toml:"key"`
	Cluster string `toml:"cluster"`
}

type UploadsConfig struct {
	GCSBucket          string `toml:"gcs_bucket"`
	GCSCredentialsFile string `toml:"gcs_credentials_file"`
}

// Defaults returns the settings used when neither file nor env set a value.
func Defaults() Config {
	return Config{
		Port:        "8083",
		ServiceName: "medgama-connections",
		Environment: "development",
		APIBaseURL:  "http://localhost:8000/api",
		KV: KVConfig{
			Driver:     "memory",
			SQLitePath: "data/medgama.db",
		},
		AMQP: AMQPConfig{
			Exchange:       "medgama.audit",
			ChangeExchange: "medgama.changes",
			AuditRouting:   "audit.log",
		},
		Reverb: ReverbConfig{Scheme: "ws"},
	}
}

// Load reads path (when non-empty) over the defaults and applies env overrides.
func Load(path string) (Config, error) {
	cfg := Defaults()
	if path != "" {
		meta, err := toml.DecodeFile(path, &cfg)
		if err != nil {
			return Config{}, fmt.Errorf("decode config %s: %w", path, err)
		}
		if undecoded := meta.Undecoded(); len(undecoded) > 0 {
			keys := make([]string, 0, len(undecoded))
			for _, k := range undecoded {
				keys = append(keys, k.String())
			}
			log.Printf("config: ignoring unknown keys path=%s keys=%s", path, strings.Join(keys, ","))
		}
	}
	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// FromEnv loads the file named by MEDGAMA_CONFIG, if any.
func FromEnv() (Config, error) {
	return Load(os.Getenv("MEDGAMA_CONFIG"))
}

func applyEnv(cfg *Config) {
	cfg.Port = getEnv("PORT", cfg.Port)
	cfg.ServiceName = getEnv("SERVICE_NAME", cfg.ServiceName)
	cfg.Environment = getEnv("ENVIRONMENT", cfg.Environment)
	cfg.DebugRoutes = getEnvBool("DEBUG_ROUTES", cfg.DebugRoutes)
	cfg.JWTSecret = getEnv("JWT_SECRET", cfg.JWTSecret)
	cfg.APIBaseURL = getEnv("API_BASE_URL", cfg.APIBaseURL)

	cfg.KV.Driver = getEnv("KV_DRIVER", cfg.KV.Driver)
	cfg.KV.DSN = getEnv("DB_DSN", cfg.KV.DSN)
	cfg.KV.SQLitePath = getEnv("SQLITE_PATH", cfg.KV.SQLitePath)
	cfg.KV.ValkeyAddr = getEnv("VALKEY_ADDR", cfg.KV.ValkeyAddr)
	cfg.KV.ValkeyPassword = getEnv("VALKEY_PASSWORD", cfg.KV.ValkeyPassword)

	cfg.AMQP.URL = getEnv("AMQP_URL", cfg.AMQP.URL)
	cfg.AMQP.Exchange = getEnv("AMQP_EXCHANGE", cfg.AMQP.Exchange)

	cfg.Telemetry.OTLPEndpoint = getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", cfg.Telemetry.OTLPEndpoint)

	cfg.Reverb.Key = getEnv("REVERB_APP_KEY", cfg.Reverb.Key)
	cfg.Reverb.Host = getEnv("REVERB_HOST", cfg.Reverb.Host)
	cfg.Reverb.Port = getEnv("REVERB_PORT", cfg.Reverb.Port)
	cfg.Reverb.Scheme = getEnv("REVERB_SCHEME", cfg.Reverb.Scheme)
	cfg.Pusher.Key = getEnv("PUSHER_APP_KEY", cfg.Pusher.Key)
	cfg.Pusher.Cluster = getEnv("PUSHER_APP_CLUSTER", cfg.Pusher.Cluster)

	cfg.Uploads.GCSBucket = getEnv("GCS_BUCKET", cfg.Uploads.GCSBucket)
	cfg.Uploads.GCSCredentialsFile = getEnv("GCS_CREDENTIALS_FILE", cfg.Uploads.GCSCredentialsFile)
}

// Validate rejects settings that cannot work together.
func (c Config) Validate() error {
	switch c.KV.Driver {
	case "memory", "sqlite":
	case "postgres":
		if c.KV.DSN == "" {
			return fmt.Errorf("kv driver postgres requires DB_DSN")
		}
	case "valkey":
		if c.KV.ValkeyAddr == "" {
			return fmt.Errorf("kv driver valkey requires VALKEY_ADDR")
		}
	default:
		return fmt.Errorf("invalid kv driver %q: must be one of memory, sqlite, postgres, valkey", c.KV.Driver)
	}
	switch c.Reverb.Scheme {
	case "ws", "wss", "http", "https":
	default:
		return fmt.Errorf("invalid reverb scheme %q", c.Reverb.Scheme)
	}
	return nil
}

// Realtime maps the broker and cloud settings onto the client transport config.
func (c Config) Realtime() realtime.Config {
	return realtime.Config{
		Broker:     realtime.BrokerConfig{Key: c.Reverb.Key, Host: c.Reverb.Host, Port: c.Reverb.Port, Scheme: c.Reverb.Scheme},
		Cloud:      realtime.CloudConfig{Key: c.Pusher.Key, Cluster: c.Pusher.Cluster},
		APIBaseURL: c.APIBaseURL,
	}
}

// KVDriver returns the driver settings for kv.Open.
func (c Config) KVDriver() kv.DriverConfig {
	return kv.DriverConfig{
		DSN:      c.KV.DSN,
		Path:     c.KV.SQLitePath,
		Addr:     c.KV.ValkeyAddr,
		Password: c.KV.ValkeyPassword,
		DB:       c.KV.ValkeyDB,
	}
}

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	val, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		log.Printf("config: invalid bool %s=%q, keeping %t", key, val, fallback)
		return fallback
	}
	return parsed
}
