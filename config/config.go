package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/AnthoniusHendriyanto/identity-service/internal/auth/service"
	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

const (
	DefaultEnv                = "development"
	DefaultPort               = "8080"
	DefaultCORSAllowOrigins   = "*"
	DefaultStorageDriver      = "postgres"
	DefaultSQLitePath         = "identity.db"
	DefaultDBMaxConns         = 10
	DefaultBcryptCost         = 10
	DefaultOTPValidity        = service.DefaultOTPValidity
	DefaultOTPCooldown        = service.DefaultOTPCooldown
	DefaultLoginMaxAttempts   = service.DefaultLockoutThreshold
	DefaultLoginLockoutWindow = service.DefaultLockoutWindow
	DefaultNotifyTimeout      = 5 * time.Second
	DefaultKafkaTopic         = "identity.otp"
	DefaultKafkaGroupID       = "identity-mailer"
	DefaultSMTPPort           = 587
	DefaultMailFromName       = "Identity Service"
	DefaultMailMaxRetries     = 5
	DefaultLogLevel           = "info"
)

const (
	StoragePostgres = "postgres"
	StorageSQLite   = "sqlite"
	StorageMemory   = "memory"
)

type Config struct {
	Env           string `env:"ENV" envDefault:"development"`
	Port          string `env:"PORT" envDefault:"8080"`
	CORSOrigins   string `env:"CORS_ALLOW_ORIGINS" envDefault:"*"`
	StorageDriver string `env:"STORAGE_DRIVER" envDefault:"postgres"`
	DBURL         string `env:"DB_URL"`
	SQLitePath    string `env:"SQLITE_PATH" envDefault:"identity.db"`
	DBMaxConns    int32  `env:"DB_MAX_CONNS" envDefault:"10"`

	BcryptCost         int           `env:"BCRYPT_COST" envDefault:"10"`
	OTPValidity        time.Duration `env:"OTP_VALIDITY" envDefault:"10m"`
	OTPCooldown        time.Duration `env:"OTP_COOLDOWN" envDefault:"60s"`
	LoginMaxAttempts   int           `env:"LOGIN_MAX_ATTEMPTS" envDefault:"5"`
	LoginLockoutWindow time.Duration `env:"LOGIN_LOCKOUT_WINDOW" envDefault:"15m"`
	NotifyTimeout      time.Duration `env:"NOTIFY_TIMEOUT" envDefault:"5s"`

	Kafka KafkaConfig `envPrefix:"KAFKA_"`
	SMTP  SMTPConfig  `envPrefix:"SMTP_"`

	MailFrom       string `env:"MAIL_FROM"`
	MailFromName   string `env:"MAIL_FROM_NAME" envDefault:"Identity Service"`
	MailMaxRetries int    `env:"MAIL_MAX_RETRIES" envDefault:"5"`

	OTELEndpoint string `env:"OTEL_ENDPOINT"`
	LogLevel     string `env:"LOG_LEVEL" envDefault:"info"`
}

type KafkaConfig struct {
	Broker   string `env:"BROKER"`
	Topic    string `env:"TOPIC" envDefault:"identity.otp"`
	GroupID  string `env:"GROUP_ID" envDefault:"identity-mailer"`
	Username string `env:"USERNAME"`
	Password string `env:"PASSWORD"`
	TLS      bool   `env:"TLS"`
}

type SMTPConfig struct {
	Host     string `env:"HOST"`
	Port     int    `env:"PORT" envDefault:"587"`
	Username string `env:"USERNAME"`
	Password string `env:"PASSWORD"`
}

// Load reads config/.env.dev (or config/.env.prod when ENV=production) and
// overlays the process environment on top. Malformed values are fatal.
func Load() *Config {
	environment := fileEnvironment(getEnv("ENV", DefaultEnv))
	for k, v := range env.ToMap(os.Environ()) {
		environment[k] = v
	}

	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Environment: environment}); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}

	return &cfg
}

// ValidateStorage checks the keys only the API server needs. The mailer
// never opens a database and skips it.
func (c *Config) ValidateStorage() error {
	switch c.StorageDriver {
	case StoragePostgres:
		if c.DBURL == "" {
			return fmt.Errorf("missing required config: %s", "DB_URL")
		}
	case StorageSQLite, StorageMemory:
	default:
		return fmt.Errorf("unknown STORAGE_DRIVER %q", c.StorageDriver)
	}
	return nil
}

// AuthPolicy builds the OTP and lockout policy from the loaded values.
func (c *Config) AuthPolicy() service.Policy {
	return service.Policy{
		OTPValidity:      c.OTPValidity,
		OTPCooldown:      c.OTPCooldown,
		LockoutThreshold: c.LoginMaxAttempts,
		LockoutWindow:    c.LoginLockoutWindow,
	}
}

func (c *Config) KafkaEnabled() bool {
	return c.Kafka.Broker != ""
}

func fileEnvironment(environment string) map[string]string {
	name := ".env.dev"
	if environment == "production" {
		name = ".env.prod"
	}

	values, err := godotenv.Read(filepath.Join("config", name))
	if err != nil {
		if !os.IsNotExist(err) {
			log.Printf("Could not read %s: %v", name, err)
		}
		return map[string]string{}
	}
	return values
}

func getEnv(key string, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}
