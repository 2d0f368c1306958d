package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
)

const (
	IdentityFirebase = "firebase"
	IdentityLocal    = "local"

	PushFCM   = "fcm"
	PushRedis = "redis"
)

type Config struct {
	Environment string `env:"ENV,default=development"`
	Port        string `env:"PORT,default=8080"`

	MongoURI          string `env:"MONGODB_URI,default=mongodb://localhost:27017/neighbourwatch"`
	MongoDatabase     string `env:"MONGO_DATABASE"`
	MongoTransactions bool   `env:"MONGO_TRANSACTIONS,default=false"` // requires a replica set
	RedisURI          string `env:"REDIS_URI,default=redis://localhost:6379/0"`

	IdentityProvider        string        `env:"IDENTITY_PROVIDER,default=local"`
	PushProvider            string        `env:"PUSH_PROVIDER,default=redis"`
	FirebaseProjectID       string        `env:"FIREBASE_PROJECT_ID,default=neighbourwatch-dev"`
	FirebaseCredentialsFile string        `env:"FIREBASE_CREDENTIALS_FILE"`
	FirebaseWebAPIKey       string        `env:"FIREBASE_WEB_API_KEY"`
	JWTSecret               string        `env:"JWT_SECRET,default=your-secret-key-change-in-production"`
	TokenTTL                time.Duration `env:"TOKEN_TTL,default=1h"`

	AllowedOriginsRaw  string `env:"ALLOWED_ORIGINS,default=*"`
	AllowedOrigins     []string
	AllowedHost        string        `env:"ALLOWED_HOST"` // empty accepts any Host header
	RateLimitPerMinute int           `env:"RATE_LIMIT_PER_MINUTE,default=100"`
	RequestTimeout     time.Duration `env:"REQUEST_TIMEOUT,default=10s"`

	CloudinaryName      string `env:"CLOUDINARY_CLOUD_NAME"`
	CloudinaryAPIKey    string `env:"CLOUDINARY_API_KEY"`
	CloudinaryAPISecret string `env:"CLOUDINARY_API_SECRET"`
	CloudinaryFolder    string `env:"CLOUDINARY_FOLDER,default=neighbourwatch"`

	SweepSchedule string `env:"SWEEP_SCHEDULE,default=@every 15m"`
	SweepToken    string `env:"SWEEP_TOKEN"`

	LogLevel  string `env:"LOG_LEVEL,default=info"`
	LogFormat string `env:"LOG_FORMAT"` // text or json; json by default in production
}

// Load reads the configuration from the environment. main loads .env first.
func Load() (*Config, error) {
	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode environment: %w", err)
	}

	cfg.Environment = strings.ToLower(strings.TrimSpace(cfg.Environment))
	cfg.IdentityProvider = strings.ToLower(strings.TrimSpace(cfg.IdentityProvider))
	cfg.PushProvider = strings.ToLower(strings.TrimSpace(cfg.PushProvider))

	cfg.AllowedOrigins = parseOrigins(cfg.AllowedOriginsRaw)
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = []string{"*"}
	}
	if cfg.MongoDatabase == "" {
		cfg.MongoDatabase = databaseFromURI(cfg.MongoURI, "neighbourwatch")
	}
	if cfg.LogFormat == "" {
		cfg.LogFormat = "text"
		if cfg.IsProduction() {
			cfg.LogFormat = "json"
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.IdentityProvider {
	case IdentityFirebase:
		if c.FirebaseWebAPIKey == "" {
			return fmt.Errorf("FIREBASE_WEB_API_KEY is required for the firebase identity provider")
		}
	case IdentityLocal:
		if c.IsProduction() && c.JWTSecret == "your-secret-key-change-in-production" {
			return fmt.Errorf("JWT_SECRET must be set in production")
		}
	default:
		return fmt.Errorf("unknown IDENTITY_PROVIDER %q", c.IdentityProvider)
	}
	switch c.PushProvider {
	case PushFCM, PushRedis:
	default:
		return fmt.Errorf("unknown PUSH_PROVIDER %q", c.PushProvider)
	}
	if c.RateLimitPerMinute <= 0 {
		return fmt.Errorf("RATE_LIMIT_PER_MINUTE must be positive")
	}
	return nil
}

// NeedsFirebase reports whether either gateway is backed by Firebase.
func (c *Config) NeedsFirebase() bool {
	return c.IdentityProvider == IdentityFirebase || c.PushProvider == PushFCM
}

// TokenIssuer is the issuer every bearer token must carry.
func (c *Config) TokenIssuer() string {
	return "https://securetoken.google.com/" + c.FirebaseProjectID
}

// CloudinaryEnabled reports whether media uploads can be served.
func (c *Config) CloudinaryEnabled() bool {
	return c.CloudinaryName != "" && c.CloudinaryAPIKey != "" && c.CloudinaryAPISecret != ""
}

// IsProduction returns true when ENV is set to "production".
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func parseOrigins(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

// databaseFromURI extracts the database path segment of a mongodb:// URI.
func databaseFromURI(uri, fallback string) string {
	rest := uri
	if i := strings.Index(rest, "://"); i != -1 {
		rest = rest[i+3:]
	}
	i := strings.Index(rest, "/")
	if i == -1 {
		return fallback
	}
	name := strings.SplitN(rest[i+1:], "?", 2)[0]
	if name == "" {
		return fallback
	}
	return name
}
