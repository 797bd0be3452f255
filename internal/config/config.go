package config

import (
	"context"
	"time"

	"github.com/sethvargo/go-envconfig"
)

// Config holds runtime configuration for the visiond service.
type Config struct {
	Addr    string `env:"ADDR,default=:8080"`
	EnvMode string `env:"ENV_MODE,default=development"`

	DBDSN string `env:"DB_DSN,required"`

	SessionSecret string        `env:"SESSION_SECRET,required"`
	SessionTTL    time.Duration `env:"SESSION_TTL,default=24h"`

	CSRFSecret  string        `env:"CSRF_SECRET,required"`
	CSRFTimeout time.Duration `env:"CSRF_TOKEN_TIMEOUT,default=1h"`

	LoginMaxAttempts   int           `env:"LOGIN_MAX_ATTEMPTS,default=5"`
	LoginWindow        time.Duration `env:"LOGIN_WINDOW,default=15m"`
	AccountLockout     time.Duration `env:"ACCOUNT_LOCKOUT,default=30m"`
	APIRateLimit       int           `env:"API_RATE_LIMIT,default=100"`
	APIRateLimitWindow time.Duration `env:"API_RATE_LIMIT_WINDOW,default=1m"`

	S3Endpoint       string        `env:"S3_ENDPOINT,required"`
	S3AccessKey      string        `env:"S3_ACCESS_KEY,required"`
	S3SecretKey      string        `env:"S3_SECRET_KEY,required"`
	S3Region         string        `env:"S3_REGION,default=us-east-1"`
	S3DisableTLS     bool          `env:"S3_DISABLE_TLS,default=false"`
	DatasetBucket    string        `env:"S3_BUCKET_DATASET,default=datasets"`
	InferenceBucket  string        `env:"S3_BUCKET_INFERENCES,default=inferences"`
	PresignExpiry    time.Duration `env:"S3_PRESIGNED_EXPIRATION,default=15m"`
	S3PublicBaseURL  string        `env:"S3_LIVE_BASE_URL"`
	APIBaseURL       string        `env:"API_BASE_URL,default=http://localhost:8080"`
	InferenceAPIURL  string        `env:"NN_API_HOST,required"`
	InferenceSecret  string        `env:"NN_API_SECRET_KEY,required"`
	NATSURL          string        `env:"NATS_URL"`
	OTLPEndpoint     string        `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	AllowedOrigins   []string      `env:"CORS_ALLOWED_ORIGINS,default=http://localhost:5173"`
	CookieDomain     string        `env:"COOKIE_DOMAIN"`
	CookieSecure     bool          `env:"COOKIE_SECURE,default=false"`
	SystemUserEmail  string        `env:"SYSTEM_USER_EMAIL,default=system@visiond.local"`
	SuperAdminEmail  string        `env:"SUPERADMIN_EMAIL"`
	SuperAdminPasswd string        `env:"SUPERADMIN_PASSWORD"`
}

// Production reports whether the service runs in production mode. The rate
// limiter and account lockout are only enforced in production to keep local
// testing friction-free.
func (c Config) Production() bool { return c.EnvMode == "production" }

// Load returns a Config populated from environment variables.
func Load(ctx context.Context) (Config, error) {
	var cfg Config
	if err := envconfig.Process(ctx, &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
