package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

const (
	BackendNone     = "none"
	BackendRabbitMQ = "rabbitmq"
	BackendPubSub   = "pubsub"
	BackendMinio    = "minio"
	BackendGCS      = "gcs"
)

type Config struct {
	Env        string `env:"ENV" envDefault:"prod"`
	ServerPort int    `env:"SERVER_PORT" envDefault:"8080"`
	// Origin allowed by CORS. Empty disables cross-origin requests.
	AllowedOrigin string `env:"ORIGINS_URL"`
	LogLevel      string `env:"LOG_LEVEL" envDefault:"info"`

	Database DatabaseConfig
	Auth     AuthConfig
	MQ       MQConfig
	Storage  StorageConfig
}

type DatabaseConfig struct {
	// URL takes precedence over the discrete fields when set.
	URL      string `env:"DATABASE_URL"`
	Host     string `env:"DB_HOST" envDefault:"localhost"`
	Port     int    `env:"DB_PORT" envDefault:"5432"`
	User     string `env:"DB_USER" envDefault:"taskhub"`
	Password string `env:"DB_PASSWORD" envDefault:"password"`
	DBName   string `env:"DB_NAME" envDefault:"taskhub"`
	UseSSL   bool   `env:"DB_USE_SSL" envDefault:"false"`
}

type AuthConfig struct {
	SecretKey                string `env:"SECRET_KEY,required,notEmpty"`
	Algorithm                string `env:"ALGORITHM,required,notEmpty"`
	AccessTokenExpireMinutes int    `env:"ACCESS_TOKEN_EXPIRE_MINUTES" envDefault:"30"`
	BcryptCost               int    `env:"BCRYPT_COST" envDefault:"10"`
}

// AccessTokenTTL returns the configured access token lifetime.
func (c AuthConfig) AccessTokenTTL() time.Duration {
	return time.Duration(c.AccessTokenExpireMinutes) * time.Minute
}

type MQConfig struct {
	Backend  string `env:"MQ_BACKEND" envDefault:"none"`
	RabbitMQ RabbitMQConfig
	PubSub   PubSubConfig
}

type RabbitMQConfig struct {
	URL             string `env:"RABBITMQ_URL"`
	QueueDurable    bool   `env:"RABBITMQ_QUEUE_DURABLE" envDefault:"true"`
	QueueAutoDelete bool   `env:"RABBITMQ_QUEUE_AUTO_DELETE" envDefault:"false"`
	PrefetchCount   int    `env:"RABBITMQ_PREFETCH" envDefault:"10"`
}

type PubSubConfig struct {
	ProjectID          string `env:"PUBSUB_PROJECT_ID"`
	CredentialsFile    string `env:"PUBSUB_CREDENTIALS_FILE"`
	SubscriptionSuffix string `env:"PUBSUB_SUBSCRIPTION_SUFFIX" envDefault:"-sub"`
}

type StorageConfig struct {
	Backend string `env:"STORAGE_BACKEND" envDefault:"none"`
	Minio   MinioConfig
	GCS     GCSConfig
}

type MinioConfig struct {
	Endpoint  string `env:"MINIO_ENDPOINT" envDefault:"localhost:9000"`
	AccessKey string `env:"MINIO_ACCESS_KEY"`
	SecretKey string `env:"MINIO_SECRET_KEY"`
	Bucket    string `env:"MINIO_BUCKET" envDefault:"taskhub"`
	UseSSL    bool   `env:"MINIO_USE_SSL" envDefault:"false"`
}

type GCSConfig struct {
	Bucket          string `env:"GCS_BUCKET"`
	ProjectID       string `env:"GCS_PROJECT_ID"`
	CredentialsFile string `env:"GCS_CREDENTIALS_FILE"`
}

// LoadConfig reads the process environment. A .env file is honoured when ENV=dev.
func LoadConfig() (Config, error) {
	if os.Getenv("ENV") == "dev" {
		_ = godotenv.Load()
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadDatabaseConfig reads only the database settings. Tooling that never
// signs tokens, such as migrations, uses it so SECRET_KEY is not required.
func LoadDatabaseConfig() (DatabaseConfig, error) {
	return loadSection[DatabaseConfig]()
}

// LoadMQConfig reads only the message queue settings.
func LoadMQConfig() (MQConfig, error) {
	cfg, err := loadSection[MQConfig]()
	if err != nil {
		return MQConfig{}, err
	}
	if err := cfg.Validate(); err != nil {
		return MQConfig{}, err
	}
	return cfg, nil
}

func loadSection[T any]() (T, error) {
	if os.Getenv("ENV") == "dev" {
		_ = godotenv.Load()
	}
	var section T
	if err := env.Parse(&section); err != nil {
		return section, fmt.Errorf("parse env: %w", err)
	}
	return section, nil
}

// Validate checks cross-field constraints the env tags cannot express.
func (c Config) Validate() error {
	return errors.Join(c.Auth.Validate(), c.MQ.Validate(), c.Storage.Validate())
}

func (c AuthConfig) Validate() error {
	var errs []error
	switch strings.ToUpper(strings.TrimSpace(c.Algorithm)) {
	case "HS256", "HS384", "HS512":
	default:
		errs = append(errs, fmt.Errorf("unsupported ALGORITHM %q: only HS256, HS384 and HS512 are allowed", c.Algorithm))
	}
	if c.AccessTokenExpireMinutes <= 0 {
		errs = append(errs, errors.New("ACCESS_TOKEN_EXPIRE_MINUTES must be positive"))
	}
	return errors.Join(errs...)
}

func (c MQConfig) Validate() error {
	switch c.Backend {
	case BackendNone, "":
	case BackendRabbitMQ:
		if strings.TrimSpace(c.RabbitMQ.URL) == "" {
			return errors.New("RABBITMQ_URL is required when MQ_BACKEND=rabbitmq")
		}
	case BackendPubSub:
		if strings.TrimSpace(c.PubSub.ProjectID) == "" {
			return errors.New("PUBSUB_PROJECT_ID is required when MQ_BACKEND=pubsub")
		}
	default:
		return fmt.Errorf("unknown MQ_BACKEND %q", c.Backend)
	}
	return nil
}

func (c StorageConfig) Validate() error {
	switch c.Backend {
	case BackendNone, "", BackendMinio:
	case BackendGCS:
		if strings.TrimSpace(c.GCS.Bucket) == "" {
			return errors.New("GCS_BUCKET is required when STORAGE_BACKEND=gcs")
		}
	default:
		return fmt.Errorf("unknown STORAGE_BACKEND %q", c.Backend)
	}
	return nil
}
