// Package config loads process configuration from the environment and
// carries it through a context.Context, the way the rest of the engine
// threads request-scoped values through reqctx.Context.
package config

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

type contextKey string

func (c contextKey) String() string {
	return "relay/config/" + string(c)
}

const (
	ctxKeyConfiguration = contextKey("configurationKey")
	httpStatusOKClass   = 2
)

// ToContext adds service configuration to the current supplied context.
func ToContext(ctx context.Context, config any) context.Context {
	return context.WithValue(ctx, ctxKeyConfiguration, config)
}

// FromContext extracts service configuration from the supplied context if any exist.
func FromContext[T any](ctx context.Context) T {
	if cfg, ok := ctx.Value(ctxKeyConfiguration).(T); ok {
		return cfg
	}
	var zero T
	return zero
}

// FromEnv parses environment variables into a configuration struct T.
func FromEnv[T any]() (T, error) {
	return env.ParseAs[T]()
}

// FillEnv fills an existing configuration value with environment data.
func FillEnv(v any) error {
	return env.Parse(v)
}

// LoadWithOIDC parses T from the environment and, if it carries OAuth2
// discovery settings, eagerly resolves its OIDC document and JWKS.
func LoadWithOIDC[T any](ctx context.Context) (T, error) {
	cfg, err := FromEnv[T]()
	if err != nil {
		return cfg, err
	}

	oauth2Cfg, ok := any(&cfg).(ConfigurationOAUTH2)
	if !ok || oauth2Cfg.GetOauth2ServiceURI() == "" {
		return cfg, nil
	}

	if err = oauth2Cfg.LoadOauth2Config(ctx); err != nil {
		return cfg, err
	}

	return cfg, nil
}

// ConfigurationDefault is the engine's baseline configuration shape,
// parsed with env tags via FromEnv/LoadWithOIDC. Embed it into an
// application-specific struct to extend with additional fields.
type ConfigurationDefault struct {
	LogLevel      string `envDefault:"info"                      env:"LOG_LEVEL"       yaml:"log_level"       toml:"log_level"`
	LogFormat     string `envDefault:"info"                      env:"LOG_FORMAT"      yaml:"log_format"      toml:"log_format"`
	LogTimeFormat string `envDefault:"2006-01-02T15:04:05Z07:00" env:"LOG_TIME_FORMAT" yaml:"log_time_format" toml:"log_time_format"`
	LogColored    bool   `envDefault:"true"                      env:"LOG_COLORED"     yaml:"log_colored"     toml:"log_colored"`

	LogShowStackTrace bool `envDefault:"false" env:"LOG_SHOW_STACK_TRACE" yaml:"log_show_stack_trace" toml:"log_show_stack_trace"`

	OpenTelemetryDisable    bool    `envDefault:"false" env:"OPENTELEMETRY_DISABLE"        yaml:"opentelemetry_disable"        toml:"opentelemetry_disable"`
	OpenTelemetryTraceRatio float64 `envDefault:"0.1"   env:"OPENTELEMETRY_TRACE_ID_RATIO" yaml:"opentelemetry_trace_id_ratio" toml:"opentelemetry_trace_id_ratio"`

	ServiceName        string `envDefault:""     env:"SERVICE_NAME"        yaml:"service_name"        toml:"service_name"`
	ServiceEnvironment string `envDefault:""     env:"SERVICE_ENVIRONMENT" yaml:"service_environment" toml:"service_environment"`
	ServiceVersion     string `envDefault:""     env:"SERVICE_VERSION"     yaml:"service_version"     toml:"service_version"`
	RunServiceSecurely bool   `envDefault:"true" env:"RUN_SERVICE_SECURELY" yaml:"run_service_securely" toml:"run_service_securely"`

	HTTPServerPort string `envDefault:":8080" env:"HTTP_PORT" yaml:"http_server_port" toml:"http_server_port"`

	ShutdownTimeoutSeconds int `envDefault:"10" env:"SHUTDOWN_TIMEOUT_SECONDS" yaml:"shutdown_timeout_seconds" toml:"shutdown_timeout_seconds"`

	MaxBodyBytes int64 `envDefault:"10485760" env:"MAX_BODY_BYTES" yaml:"max_body_bytes" toml:"max_body_bytes"`

	WorkerPoolCPUFactorForWorkerCount int    `envDefault:"10"  env:"WORKER_POOL_CPU_FACTOR_FOR_WORKER_COUNT" yaml:"worker_pool_cpu_factor_for_worker_count" toml:"worker_pool_cpu_factor_for_worker_count"`
	WorkerPoolCapacity                int    `envDefault:"100" env:"WORKER_POOL_CAPACITY"                    yaml:"worker_pool_capacity"                    toml:"worker_pool_capacity"`
	WorkerPoolExpiryDuration          string `envDefault:"1s"  env:"WORKER_POOL_EXPIRY_DURATION"             yaml:"worker_pool_expiry_duration"             toml:"worker_pool_expiry_duration"`

	TLSCertificatePath    string `env:"TLS_CERTIFICATE_PATH"     yaml:"tls_certificate_path"     toml:"tls_certificate_path"`
	TLSCertificateKeyPath string `env:"TLS_CERTIFICATE_KEY_PATH" yaml:"tls_certificate_key_path" toml:"tls_certificate_key_path"`

	Oauth2ServiceURI        string   `env:"OAUTH2_SERVICE_URI"           yaml:"oauth2_service_uri"           toml:"oauth2_service_uri"`
	Oauth2WellKnownOIDCPath string   `env:"OAUTH2_WELL_KNOWN_OIDC_PATH"  yaml:"oauth2_well_known_oidc_path"  toml:"oauth2_well_known_oidc_path" envDefault:".well-known/openid-configuration"`
	Oauth2WellKnownJwkData  string   `env:"OAUTH2_WELL_KNOWN_JWK_DATA" yaml:"oauth2_well_known_jwk_data" toml:"oauth2_well_known_jwk_data"`
	Oauth2JwtVerifyAudience []string `env:"OAUTH2_JWT_VERIFY_AUDIENCE" yaml:"oauth2_jwt_verify_audience" toml:"oauth2_jwt_verify_audience"`
	Oauth2JwtVerifyIssuer   string   `env:"OAUTH2_JWT_VERIFY_ISSUER"   yaml:"oauth2_jwt_verify_issuer"   toml:"oauth2_jwt_verify_issuer"`

	RedisURL string `env:"REDIS_URL" yaml:"redis_url" toml:"redis_url" envDefault:"redis://localhost:6379/0"`

	oidcMap OIDCMap `env:"-" yaml:"-" toml:"-"`
}

// LoadFile overlays v (normally a *ConfigurationDefault or an embedding
// struct) with values from a YAML or TOML file, chosen by path's
// extension (.yaml/.yml or .toml). FromEnv and LoadWithOIDC build a fresh
// value from the environment and do not read v; to layer environment
// variables over the file's values, call FillEnv(v) after LoadFile.
func LoadFile(path string, v any) error {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("config: reading %q: %w", path, err)
		}
		if err := yaml.Unmarshal(data, v); err != nil {
			return fmt.Errorf("config: parsing YAML file %q: %w", path, err)
		}
		return nil
	case ".toml":
		if _, err := toml.DecodeFile(path, v); err != nil {
			return fmt.Errorf("config: parsing TOML file %q: %w", path, err)
		}
		return nil
	default:
		return fmt.Errorf("config: unsupported configuration file extension %q", ext)
	}
}

type ConfigurationService interface {
	Name() string
	Environment() string
	Version() string
}

var _ ConfigurationService = new(ConfigurationDefault)

func (c *ConfigurationDefault) Name() string       { return c.ServiceName }
func (c *ConfigurationDefault) Environment() string { return c.ServiceEnvironment }
func (c *ConfigurationDefault) Version() string     { return c.ServiceVersion }

type ConfigurationSecurity interface {
	IsRunSecurely() bool
}

var _ ConfigurationSecurity = new(ConfigurationDefault)

func (c *ConfigurationDefault) IsRunSecurely() bool { return c.RunServiceSecurely }

type ConfigurationLogLevel interface {
	LoggingLevel() string
	LoggingFormat() string
	LoggingTimeFormat() string
	LoggingShowStackTrace() bool
	LoggingColored() bool
	LoggingLevelIsDebug() bool
}

var _ ConfigurationLogLevel = new(ConfigurationDefault)

func (c *ConfigurationDefault) LoggingLevel() string      { return c.LogLevel }
func (c *ConfigurationDefault) LoggingTimeFormat() string { return c.LogTimeFormat }
func (c *ConfigurationDefault) LoggingFormat() string     { return c.LogFormat }
func (c *ConfigurationDefault) LoggingColored() bool      { return c.LogColored }
func (c *ConfigurationDefault) LoggingShowStackTrace() bool {
	return c.LogShowStackTrace
}

func (c *ConfigurationDefault) LoggingLevelIsDebug() bool {
	return c.LoggingLevel() == "debug" || c.LoggingLevel() == "trace"
}

type ConfigurationTelemetry interface {
	DisableOpenTelemetry() bool
	SamplingRatio() float64
}

var _ ConfigurationTelemetry = new(ConfigurationDefault)

func (c *ConfigurationDefault) DisableOpenTelemetry() bool { return c.OpenTelemetryDisable }
func (c *ConfigurationDefault) SamplingRatio() float64     { return c.OpenTelemetryTraceRatio }

type ConfigurationWorkerPool interface {
	GetCPUFactor() int
	GetCapacity() int
	GetExpiryDuration() time.Duration
}

var _ ConfigurationWorkerPool = new(ConfigurationDefault)

func (c *ConfigurationDefault) GetCPUFactor() int { return c.WorkerPoolCPUFactorForWorkerCount }
func (c *ConfigurationDefault) GetCapacity() int  { return c.WorkerPoolCapacity }

func (c *ConfigurationDefault) GetExpiryDuration() time.Duration {
	if c.WorkerPoolExpiryDuration != "" {
		if d, err := time.ParseDuration(c.WorkerPoolExpiryDuration); err == nil {
			return d
		}
	}
	return time.Second
}

type ConfigurationPorts interface {
	HTTPPort() string
}

var _ ConfigurationPorts = new(ConfigurationDefault)

func (c *ConfigurationDefault) HTTPPort() string {
	if i, err := strconv.Atoi(c.HTTPServerPort); err == nil && i > 0 {
		return fmt.Sprintf(":%s", strings.TrimSpace(c.HTTPServerPort))
	}
	if strings.HasPrefix(c.HTTPServerPort, ":") || strings.Contains(c.HTTPServerPort, ":") {
		return c.HTTPServerPort
	}
	return ":8080"
}

type ConfigurationTLS interface {
	TLSCertPath() string
	TLSCertKeyPath() string
	SetTLSCertAndKeyPath(certificatePath, certificateKeyPath string)
}

var _ ConfigurationTLS = new(ConfigurationDefault)

func (c *ConfigurationDefault) TLSCertKeyPath() string { return c.TLSCertificateKeyPath }
func (c *ConfigurationDefault) TLSCertPath() string    { return c.TLSCertificatePath }

func (c *ConfigurationDefault) SetTLSCertAndKeyPath(certificatePath, certificateKeyPath string) {
	c.TLSCertificatePath = certificatePath
	c.TLSCertificateKeyPath = certificateKeyPath
}

// ConfigurationOAUTH2 describes a service that discovers its identity
// provider's OIDC document and JWKS endpoint at startup, consumed by
// the auth package's FromOIDC.
type ConfigurationOAUTH2 interface {
	LoadOauth2Config(ctx context.Context) error
	GetOauth2WellKnownOIDC() string
	GetOauth2WellKnownJwk() string
	GetOauth2WellKnownJwkData() string
	GetOauth2ServiceURI() string
}

var _ ConfigurationOAUTH2 = new(ConfigurationDefault)

func (c *ConfigurationDefault) LoadOauth2Config(ctx context.Context) error {
	if len(c.oidcMap) == 0 {
		c.oidcMap = make(OIDCMap)
	}

	if err := c.oidcMap.loadOIDC(ctx, c.GetOauth2WellKnownOIDC()); err != nil {
		return err
	}

	jwkData, err := c.oidcMap.loadJWKData(ctx, c.GetOauth2WellKnownJwk())
	if err != nil {
		return err
	}
	c.Oauth2WellKnownJwkData = jwkData
	return nil
}

func (c *ConfigurationDefault) GetOauth2ServiceURI() string { return c.Oauth2ServiceURI }

func (c *ConfigurationDefault) GetOauth2WellKnownOIDC() string {
	res, _ := url.JoinPath(c.GetOauth2ServiceURI(), c.Oauth2WellKnownOIDCPath)
	return res
}

func (c *ConfigurationDefault) GetOauth2WellKnownJwk() string {
	val, ok := c.oidcMap["jwks_uri"]
	if !ok {
		return ""
	}
	sVal, ok := val.(string)
	if !ok {
		return ""
	}
	return sVal
}

func (c *ConfigurationDefault) GetOauth2WellKnownJwkData() string { return c.Oauth2WellKnownJwkData }

type ConfigurationJWTVerification interface {
	GetOauth2WellKnownJwk() string
	GetVerificationAudience() []string
	GetVerificationIssuer() string
}

var _ ConfigurationJWTVerification = new(ConfigurationDefault)

func (c *ConfigurationDefault) GetVerificationAudience() []string { return c.Oauth2JwtVerifyAudience }
func (c *ConfigurationDefault) GetVerificationIssuer() string     { return c.Oauth2JwtVerifyIssuer }

// ConfigurationRedis describes a service backed by a Redis instance,
// consumed by the caller building the ratelimiter's Redis client.
type ConfigurationRedis interface {
	GetRedisURL() string
}

var _ ConfigurationRedis = new(ConfigurationDefault)

func (c *ConfigurationDefault) GetRedisURL() string { return c.RedisURL }

// OIDCMap holds the parsed OIDC discovery document.
type OIDCMap map[string]any

func (oid *OIDCMap) loadOIDC(ctx context.Context, discoveryURL string) error {
	body, err := fetchJSON(ctx, discoveryURL)
	if err != nil {
		return err
	}
	defer func() { _ = body.Close() }()

	if err = json.NewDecoder(body).Decode(oid); err != nil {
		return fmt.Errorf("decoding OIDC discovery response from %q: %w", discoveryURL, err)
	}
	return nil
}

func (oid *OIDCMap) loadJWKData(ctx context.Context, jwksURL string) (string, error) {
	body, err := fetchJSON(ctx, jwksURL)
	if err != nil {
		return "", err
	}
	defer func() { _ = body.Close() }()

	data, err := io.ReadAll(body)
	return string(data), err
}

func fetchJSON(ctx context.Context, target string) (io.ReadCloser, error) {
	hreq, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	hreq.Header.Set("Accept", "application/jrd+json,application/json;q=0.9")

	hresp, err := http.DefaultClient.Do(hreq)
	if err != nil {
		return nil, err
	}

	if hresp.StatusCode/100 != httpStatusOKClass {
		_ = hresp.Body.Close()
		return nil, fmt.Errorf("request %q failed: %d %s", target, hresp.StatusCode, hresp.Status)
	}

	return hresp.Body, nil
}
