package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// AuthMode selects how the auth provider identifies callers.
type AuthMode string

const (
	AuthGateway AuthMode = "gateway"
	AuthJWT     AuthMode = "jwt"
	AuthNone    AuthMode = "none"
)

// Config holds the full engine configuration. Zero values fall back to the
// defaults applied by ApplyDefaults.
type Config struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port" validate:"min=0,max=65535"`
	BasePath string `yaml:"basePath"`

	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
	BodyLimitBytes  int64         `yaml:"bodyLimitBytes" validate:"min=0"`

	Production        bool `yaml:"production"`
	EnableCompression bool `yaml:"enableCompression"`
	EnableCORS        bool `yaml:"enableCors"`
	// SingleQueue collapses the primary queues onto the collector queue.
	// Retained for compatibility; not recommended.
	SingleQueue bool `yaml:"singleQueue"`

	Auth  AuthConfig  `yaml:"auth"`
	Redis RedisConfig `yaml:"redis"`
	DB    DBConfig    `yaml:"db"`
	Blob  BlobConfig  `yaml:"blob"`

	UploadConcurrency int `yaml:"uploadConcurrency" validate:"min=0,max=64"`
}

// AuthConfig holds the auth provider inputs of the three modes.
type AuthConfig struct {
	Mode            AuthMode `yaml:"mode" validate:"omitempty,oneof=gateway jwt none"`
	Disabled        bool     `yaml:"disabled"`
	AnonymousUserID string   `yaml:"anonymousUserId"`
	AdminRoleName   string   `yaml:"adminRoleName"`

	JWTSecret      string `yaml:"jwtSecret"`
	JWTPublicKey   string `yaml:"jwtPublicKey"`
	JWTAlgorithm   string `yaml:"jwtAlgorithm"`
	JWTIssuer      string `yaml:"jwtIssuer"`
	JWTAudience    string `yaml:"jwtAudience"`
	JWTUserIDClaim string `yaml:"jwtUserIdClaim"`
	JWTRolesClaim  string `yaml:"jwtRolesClaim"`
}

// RedisConfig points the queue transport at its Redis instance.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db" validate:"min=0"`
}

// DBConfig selects the record store backend.
type DBConfig struct {
	// Driver is "sqlite3" or "postgres".
	Driver string `yaml:"driver" validate:"omitempty,oneof=sqlite3 postgres"`
	DSN    string `yaml:"dsn"`
}

// BlobConfig selects the blob store backend.
type BlobConfig struct {
	BasePath string `yaml:"basePath"`
	// PublicBaseURL prefixes handles when building public URLs.
	PublicBaseURL string `yaml:"publicBaseUrl"`
}

// Default returns a configuration with all defaults applied.
func Default() *Config {
	cfg := &Config{}
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults fills unset fields with their defaults.
func (c *Config) ApplyDefaults() {
	if c.Host == "" {
		c.Host = "0.0.0.0"
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = 30 * time.Second
	}
	if c.BodyLimitBytes == 0 {
		c.BodyLimitBytes = 64 << 20
	}
	if c.UploadConcurrency == 0 {
		c.UploadConcurrency = 2
	}
	if c.Auth.Mode == "" {
		c.Auth.Mode = AuthGateway
	}
	if c.Auth.AnonymousUserID == "" {
		c.Auth.AnonymousUserID = "anonymous"
	}
	if c.Auth.AdminRoleName == "" {
		c.Auth.AdminRoleName = "admin"
	}
	if c.Auth.JWTUserIDClaim == "" {
		c.Auth.JWTUserIDClaim = "sub"
	}
	if c.Auth.JWTRolesClaim == "" {
		c.Auth.JWTRolesClaim = "realm_access.roles"
	}
	if c.Redis.Addr == "" {
		c.Redis.Addr = "localhost:6379"
	}
	if c.DB.Driver == "" {
		c.DB.Driver = "sqlite3"
	}
	if c.DB.DSN == "" {
		c.DB.DSN = "file:twinforge.db?_fk=1"
	}
	if c.Blob.BasePath == "" {
		c.Blob.BasePath = "/var/lib/twinforge/blobs"
	}
}

// FromEnv overlays the stable environment contract onto the config.
// Explicit values already set by the host keep precedence over env for the
// auth mode; env keeps precedence over the default.
func (c *Config) FromEnv() {
	if c.Auth.Mode == "" {
		if v := os.Getenv("AUTH_MODE"); v != "" {
			c.Auth.Mode = AuthMode(v)
		}
	}
	if truthy(os.Getenv("DISABLE_AUTH")) {
		c.Auth.Disabled = true
	}
	if v := os.Getenv("ANONYMOUS_USER_ID"); v != "" {
		c.Auth.AnonymousUserID = v
	}
	if v := os.Getenv("ADMIN_ROLE_NAME"); v != "" {
		c.Auth.AdminRoleName = v
	}
	if v := os.Getenv("JWT_SECRET"); v != "" {
		c.Auth.JWTSecret = v
	}
	if v := os.Getenv("JWT_PUBLIC_KEY"); v != "" {
		c.Auth.JWTPublicKey = v
	}
	if v := os.Getenv("JWT_ALGORITHM"); v != "" {
		c.Auth.JWTAlgorithm = v
	}
	if v := os.Getenv("JWT_ISSUER"); v != "" {
		c.Auth.JWTIssuer = v
	}
	if v := os.Getenv("JWT_AUDIENCE"); v != "" {
		c.Auth.JWTAudience = v
	}
	if v := os.Getenv("JWT_USER_ID_CLAIM"); v != "" {
		c.Auth.JWTUserIDClaim = v
	}
	if v := os.Getenv("JWT_ROLES_CLAIM"); v != "" {
		c.Auth.JWTRolesClaim = v
	}
	if v := os.Getenv("NODE_ENV"); v == "production" {
		c.Production = true
	}
	if truthy(os.Getenv("ENABLE_COMPRESSION")) {
		c.EnableCompression = true
	}
	if truthy(os.Getenv("ENABLE_CORS")) {
		c.EnableCORS = true
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
	}
	if v := os.Getenv("DATABASE_DRIVER"); v != "" {
		c.DB.Driver = v
	}
	if v := os.Getenv("DATABASE_DSN"); v != "" {
		c.DB.DSN = v
	}
	if v := os.Getenv("BLOB_BASE_PATH"); v != "" {
		c.Blob.BasePath = v
	}
	if v := os.Getenv("PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			c.Port = p
		}
	}
}

// LoadFile reads a YAML config file into a fresh config, then applies env
// and defaults in that order of precedence.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	cfg.FromEnv()
	cfg.ApplyDefaults()
	return cfg, nil
}

// ValidationReport lists the problems found by Validate.
type ValidationReport struct {
	Problems []string
}

// OK reports whether validation found no problems.
func (r *ValidationReport) OK() bool {
	return len(r.Problems) == 0
}

var validate = validator.New()

// Validate checks the configuration and returns a report. Used directly by
// the engine's dry-run mode.
func (c *Config) Validate() *ValidationReport {
	report := &ValidationReport{}

	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if ok := asValidationErrors(err, &verrs); ok {
			for _, fe := range verrs {
				report.Problems = append(report.Problems,
					fmt.Sprintf("field %s failed rule %q", fe.Namespace(), fe.Tag()))
			}
		} else {
			report.Problems = append(report.Problems, err.Error())
		}
	}

	mode := c.EffectiveAuthMode()
	if mode == AuthJWT {
		alg := strings.ToUpper(c.Auth.JWTAlgorithm)
		switch {
		case alg == "":
			report.Problems = append(report.Problems, "jwt mode requires JWT_ALGORITHM")
		case strings.HasPrefix(alg, "HS"):
			if c.Auth.JWTSecret == "" {
				report.Problems = append(report.Problems, "HS algorithms require JWT_SECRET")
			}
		case strings.HasPrefix(alg, "RS") || strings.HasPrefix(alg, "ES"):
			if c.Auth.JWTPublicKey == "" {
				report.Problems = append(report.Problems, "RS/ES algorithms require JWT_PUBLIC_KEY")
			}
		default:
			report.Problems = append(report.Problems, fmt.Sprintf("unsupported JWT algorithm %q", c.Auth.JWTAlgorithm))
		}
	}

	switch mode {
	case AuthGateway, AuthJWT, AuthNone:
	default:
		report.Problems = append(report.Problems, fmt.Sprintf("unknown auth mode %q", mode))
	}

	return report
}

// EffectiveAuthMode resolves the auth mode after the disabled escape hatch.
func (c *Config) EffectiveAuthMode() AuthMode {
	if c.Auth.Disabled {
		return AuthNone
	}
	if c.Auth.Mode == "" {
		return AuthGateway
	}
	return c.Auth.Mode
}

func asValidationErrors(err error, target *validator.ValidationErrors) bool {
	verrs, ok := err.(validator.ValidationErrors)
	if ok {
		*target = verrs
	}
	return ok
}

func truthy(v string) bool {
	switch strings.ToLower(v) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}
