package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	// EnvPrefix namespaces every environment variable the service reads.
	EnvPrefix = "stockroom"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

type Config struct {
	App           AppConfig
	DB            DBConfig
	Redis         RedisConfig
	JWT           JWTConfig
	Password      PasswordConfig
	AuthRateLimit AuthRateLimitConfig
	FeatureFlags  FeatureFlagsConfig
	Storage       StorageConfig
	Zoho          ZohoConfig
	Webhook       WebhookConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"STOCKROOM_APP_ENV" required:"true"`
	Port         string `envconfig:"STOCKROOM_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"STOCKROOM_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"STOCKROOM_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"STOCKROOM_DB_DSN"`
	Driver string `envconfig:"STOCKROOM_DB_DRIVER" default:"postgres"`

	Host     string `envconfig:"STOCKROOM_DB_HOST"`
	Port     int    `envconfig:"STOCKROOM_DB_PORT" default:"5432"`
	User     string `envconfig:"STOCKROOM_DB_USER"`
	Password string `envconfig:"STOCKROOM_DB_PASSWORD"`
	Name     string `envconfig:"STOCKROOM_DB_NAME"`
	SSLMode  string `envconfig:"STOCKROOM_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"STOCKROOM_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"STOCKROOM_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"STOCKROOM_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"STOCKROOM_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"STOCKROOM_REDIS_URL" required:"true"`
	Address      string        `envconfig:"STOCKROOM_REDIS_ADDR"`
	Password     string        `envconfig:"STOCKROOM_REDIS_PASSWORD"`
	DB           int           `envconfig:"STOCKROOM_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"STOCKROOM_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"STOCKROOM_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"STOCKROOM_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"STOCKROOM_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"STOCKROOM_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"STOCKROOM_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"STOCKROOM_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"STOCKROOM_JWT_EXPIRATION_MINUTES" default:"720"`
}

type PasswordConfig struct {
	ArgonMemoryKB    int `envconfig:"STOCKROOM_ARGON_MEMORY_KB" default:"65536"`
	ArgonTime        int `envconfig:"STOCKROOM_ARGON_TIME" default:"3"`
	ArgonParallelism int `envconfig:"STOCKROOM_ARGON_PARALLELISM" default:"2"`
	ArgonSaltLen     int `envconfig:"STOCKROOM_ARGON_SALT_LEN" default:"16"`
	ArgonKeyLen      int `envconfig:"STOCKROOM_ARGON_KEY_LEN" default:"32"`
}

type AuthRateLimitConfig struct {
	LoginWindow     time.Duration `envconfig:"STOCKROOM_AUTH_RATE_LIMIT_LOGIN_WINDOW" default:"1m"`
	LoginEmailLimit int           `envconfig:"STOCKROOM_AUTH_RATE_LIMIT_LOGIN_EMAIL_LIMIT" default:"5"`
	LoginIPLimit    int           `envconfig:"STOCKROOM_AUTH_RATE_LIMIT_LOGIN_IP_LIMIT" default:"20"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"STOCKROOM_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"STOCKROOM_AUTO_MIGRATE" default:"false"`
}

// StorageConfig locates the local object store for photos and QR images.
type StorageConfig struct {
	UploadDir string `envconfig:"STOCKROOM_STORAGE_UPLOAD_DIR" default:"uploads"`
	QRDir     string `envconfig:"STOCKROOM_STORAGE_QR_DIR" default:"uploads/qr"`
	PublicURL string `envconfig:"STOCKROOM_STORAGE_PUBLIC_URL" default:"/uploads"`
}

// ZohoConfig configures the Zoho Books invoicing integration.
type ZohoConfig struct {
	ClientID     string        `envconfig:"STOCKROOM_ZOHO_CLIENT_ID"`
	ClientSecret string        `envconfig:"STOCKROOM_ZOHO_CLIENT_SECRET"`
	OrgID        string        `envconfig:"STOCKROOM_ZOHO_ORG_ID"`
	AuthURL      string        `envconfig:"STOCKROOM_ZOHO_AUTH_URL" default:"https://accounts.zoho.in/oauth/v2"`
	APIBaseURL   string        `envconfig:"STOCKROOM_ZOHO_API_BASE_URL" default:"https://www.zohoapis.in/books/v3"`
	RedirectURI  string        `envconfig:"STOCKROOM_ZOHO_REDIRECT_URI"`
	CallTimeout  time.Duration `envconfig:"STOCKROOM_ZOHO_CALL_TIMEOUT" default:"15s"`
	MaxRetries   uint64        `envconfig:"STOCKROOM_ZOHO_MAX_RETRIES" default:"3"`
}

// WebhookConfig tunes the inbound webhook dedupe guard.
type WebhookConfig struct {
	IdempotencyTTL time.Duration `envconfig:"STOCKROOM_WEBHOOK_IDEMPOTENCY_TTL" default:"168h"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	for env, value := range map[string]string{
		"STOCKROOM_DB_HOST": db.Host,
		"STOCKROOM_DB_USER": db.User,
		"STOCKROOM_DB_NAME": db.Name,
	} {
		if value == "" {
			missing = append(missing, env)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("either STOCKROOM_DB_DSN or %s are required", strings.Join(missing, ", "))
	}

	userInfo := url.User(db.User)
	if db.Password != "" {
		userInfo = url.UserPassword(db.User, db.Password)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.Host, db.Port),
		Path:   db.Name,
	}
	if db.SSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.SSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
