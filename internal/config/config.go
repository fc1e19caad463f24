package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// ConfigPathEnvVar overrides the YAML config file location.
const ConfigPathEnvVar = "CONFIG_PATH"

// EnvPrefix namespaces environment overrides: BETE_SERVER__ADDRESS -> server.address.
const EnvPrefix = "BETE_"

var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/bete/config.yaml",
}

type Config struct {
	Server    ServerConfig   `koanf:"server"`
	Auth      AuthConfig     `koanf:"auth"`
	Database  DatabaseConfig `koanf:"database"`
	Mongo     MongoConfig    `koanf:"mongo"`
	Uploads   UploadConfig   `koanf:"uploads"`
	Reminders ReminderConfig `koanf:"reminders"`
	Firebase  FirebaseConfig `koanf:"firebase"`
	SendGrid  SendGridConfig `koanf:"sendgrid"`
	Cache     CacheConfig    `koanf:"cache"`
	Events    EventsConfig   `koanf:"events"`
	Logging   LoggingConfig  `koanf:"logging"`
}

type ServerConfig struct {
	Address         string        `koanf:"address" validate:"required"`
	AllowedOrigins  []string      `koanf:"allowed_origins"`
	RequestTimeout  time.Duration `koanf:"request_timeout" validate:"gt=0"`
	AuthRateLimit   int           `koanf:"auth_rate_limit" validate:"gte=0"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" validate:"gt=0"`
}

type AuthConfig struct {
	JWTSecret     string        `koanf:"jwt_secret" validate:"required"`
	JWTExpiration time.Duration `koanf:"jwt_expiration" validate:"gt=0"`

	// RecaptchaSecret, when set, makes signup require a reCAPTCHA v2 token.
	RecaptchaSecret string `koanf:"recaptcha_secret"`
}

type DatabaseConfig struct {
	// Driver is one of postgres, mysql, sqlite.
	Driver string `koanf:"driver" validate:"oneof=postgres mysql sqlite"`
	DSN    string `koanf:"dsn" validate:"required"`
	Debug  bool   `koanf:"debug"`
}

// MongoConfig enables the document-store variants of chat and favorites when URI is set.
type MongoConfig struct {
	URI      string `koanf:"uri"`
	Database string `koanf:"database"`
}

type UploadConfig struct {
	Backend    string `koanf:"backend" validate:"oneof=local gcs"`
	Dir        string `koanf:"dir"`
	PublicBase string `koanf:"public_base"`
	Bucket     string `koanf:"bucket" validate:"required_if=Backend gcs"`
	Folder     string `koanf:"folder"`
	MaxSizeMB  int64  `koanf:"max_size_mb" validate:"gt=0"`
	MaxFiles   int    `koanf:"max_files" validate:"gt=0"`
	SafeSearch bool   `koanf:"safe_search"`
}

type ReminderConfig struct {
	// Rollover is "fixed" (exactly CycleDays) or "monthly" (same day next month).
	Rollover      string        `koanf:"rollover" validate:"oneof=fixed monthly"`
	CycleDays     int           `koanf:"cycle_days" validate:"gt=0"`
	SweepInterval time.Duration `koanf:"sweep_interval" validate:"gt=0"`
	Timezone      string        `koanf:"timezone"`
}

type FirebaseConfig struct {
	ProjectID       string `koanf:"project_id"`
	CredentialsJSON string `koanf:"credentials_json"`
	CredentialsFile string `koanf:"credentials_file"`
}

func (c FirebaseConfig) Enabled() bool {
	return c.CredentialsJSON != "" || c.CredentialsFile != ""
}

type SendGridConfig struct {
	APIKey    string `koanf:"api_key"`
	FromEmail string `koanf:"from_email"`
}

type CacheConfig struct {
	PropertyTTL    time.Duration `koanf:"property_ttl"`
	LocalSize      int64         `koanf:"local_size"`
	MemcachedAddrs []string      `koanf:"memcached_addrs"`
}

type EventsConfig struct {
	AMQPURL string `koanf:"amqp_url"`
	Queue   string `koanf:"queue"`
}

type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Address:         ":4000",
			AllowedOrigins:  []string{"*"},
			RequestTimeout:  10 * time.Second,
			AuthRateLimit:   20,
			ShutdownTimeout: 10 * time.Second,
		},
		Auth: AuthConfig{
			JWTSecret:     "dev_secret_change_me",
			JWTExpiration: 7 * 24 * time.Hour,
		},
		Database: DatabaseConfig{
			Driver: "sqlite",
			DSN:    "bete.db",
		},
		Mongo: MongoConfig{
			Database: "bete",
		},
		Uploads: UploadConfig{
			Backend:    "local",
			Dir:        "./uploads",
			PublicBase: "/uploads/",
			Folder:     "bete_properties",
			MaxSizeMB:  10,
			MaxFiles:   10,
		},
		Reminders: ReminderConfig{
			Rollover:      "fixed",
			CycleDays:     30,
			SweepInterval: time.Hour,
			Timezone:      "Local",
		},
		Cache: CacheConfig{
			PropertyTTL: 5 * time.Minute,
			LocalSize:   1000,
		},
		Events: EventsConfig{
			Queue: "properties_queue",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// legacyEnv maps the plain variable names older deployments still set.
var legacyEnv = map[string]string{
	"PORT":                      "server.address",
	"JWT_SECRET":                "auth.jwt_secret",
	"DATABASE_URL":              "database.dsn",
	"DATABASE_DRIVER":           "database.driver",
	"MONGO_URI":                 "mongo.uri",
	"UPLOAD_DIR":                "uploads.dir",
	"GCS_BUCKET":                "uploads.bucket",
	"FIREBASE_PROJECT_ID":       "firebase.project_id",
	"FIREBASE_CREDENTIALS_JSON": "firebase.credentials_json",
	"SENDGRID_API_KEY":          "sendgrid.api_key",
	"RECAPTCHA_SECRET":          "auth.recaptcha_secret",
	"AMQP_URL":                  "events.amqp_url",
	"LOG_LEVEL":                 "logging.level",
	"LOG_FORMAT":                "logging.format",
}

// Load reads configuration: defaults, then .env, then YAML, then environment.
func Load() (*Config, error) {
	loadDotenv()

	k := koanf.New(".")
	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransform), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	for _, key := range []string{"server.allowed_origins", "cache.memcached_addrs"} {
		if raw, ok := k.Get(key).(string); ok {
			_ = k.Set(key, splitList(raw))
		}
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if cfg.Server.Address != "" && !strings.Contains(cfg.Server.Address, ":") {
		cfg.Server.Address = ":" + cfg.Server.Address
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks struct constraints.
func (c *Config) Validate() error {
	if err := validator.New(validator.WithRequiredStructEnabled()).Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if _, err := c.Reminders.Location(); err != nil {
		return fmt.Errorf("invalid reminders.timezone: %w", err)
	}
	return nil
}

// Location resolves the timezone used to truncate due dates to midnight.
func (c ReminderConfig) Location() (*time.Location, error) {
	if c.Timezone == "" || c.Timezone == "Local" {
		return time.Local, nil
	}
	return time.LoadLocation(c.Timezone)
}

func envTransform(key string) string {
	if path, ok := legacyEnv[key]; ok {
		return path
	}
	if !strings.HasPrefix(key, EnvPrefix) {
		return ""
	}
	key = strings.ToLower(strings.TrimPrefix(key, EnvPrefix))
	return strings.ReplaceAll(key, "__", ".")
}

func findConfigFile() string {
	if p := os.Getenv(ConfigPathEnvVar); p != "" {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	for _, p := range DefaultConfigPaths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

func loadDotenv() {
	for _, p := range []string{".env", filepath.Join("..", ".env")} {
		if _, err := os.Stat(p); err == nil {
			_ = godotenv.Load(p)
			return
		}
	}
}

func splitList(raw string) []string {
	var out []string
	for _, p := range strings.Split(raw, ",") {
		if v := strings.TrimSpace(p); v != "" {
			out = append(out, v)
		}
	}
	return out
}
