package config

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
)

type ConfigSuite struct {
	suite.Suite
}

func TestConfigSuite(t *testing.T) {
	suite.Run(t, new(ConfigSuite))
}

func (s *ConfigSuite) TestContextHelpersAndKeyString() {
	ctx := context.Background()
	cfg := ConfigurationDefault{ServiceName: "svc"}

	s.Equal("relay/config/configurationKey", ctxKeyConfiguration.String())

	ctx = ToContext(ctx, cfg)
	fromCtx := FromContext[ConfigurationDefault](ctx)
	s.Equal("svc", fromCtx.ServiceName)

	missing := FromContext[*ConfigurationDefault](context.Background())
	s.Nil(missing)
}

func (s *ConfigSuite) TestFromEnvAndFillEnv() {
	type envCfg struct {
		Value string `env:"RELAY_TEST_VALUE"`
	}

	s.T().Setenv("RELAY_TEST_VALUE", "abc")

	fromEnv, err := FromEnv[envCfg]()
	s.Require().NoError(err)
	s.Equal("abc", fromEnv.Value)

	var target envCfg
	s.Require().NoError(FillEnv(&target))
	s.Equal("abc", target.Value)
}

func (s *ConfigSuite) TestCoreGettersAndBooleans() {
	cfg := &ConfigurationDefault{
		ServiceName:        "svc",
		ServiceEnvironment: "prod",
		ServiceVersion:     "1.2.3",
		RunServiceSecurely: true,
		LogLevel:           "trace",
		LogFormat:          "json",
		LogTimeFormat:      time.RFC3339,
		LogColored:         true,
		LogShowStackTrace:  true,
	}

	s.Equal("svc", cfg.Name())
	s.Equal("prod", cfg.Environment())
	s.Equal("1.2.3", cfg.Version())
	s.True(cfg.IsRunSecurely())
	s.Equal("trace", cfg.LoggingLevel())
	s.Equal("json", cfg.LoggingFormat())
	s.Equal(time.RFC3339, cfg.LoggingTimeFormat())
	s.True(cfg.LoggingColored())
	s.True(cfg.LoggingShowStackTrace())
	s.True(cfg.LoggingLevelIsDebug())

	cfg.LogLevel = "info"
	s.False(cfg.LoggingLevelIsDebug())
}

func (s *ConfigSuite) TestTelemetryAndWorkerPoolGetters() {
	cfg := &ConfigurationDefault{
		OpenTelemetryDisable:              true,
		OpenTelemetryTraceRatio:           0.25,
		WorkerPoolCPUFactorForWorkerCount: 4,
		WorkerPoolCapacity:                50,
		WorkerPoolExpiryDuration:          "2s",
	}

	s.True(cfg.DisableOpenTelemetry())
	s.InDelta(0.25, cfg.SamplingRatio(), 0.0001)
	s.Equal(4, cfg.GetCPUFactor())
	s.Equal(50, cfg.GetCapacity())
	s.Equal(2*time.Second, cfg.GetExpiryDuration())

	cfg.WorkerPoolExpiryDuration = "bogus"
	s.Equal(time.Second, cfg.GetExpiryDuration())
}

func (s *ConfigSuite) TestHTTPPortDefaultsAndOverrides() {
	tests := []struct {
		name     string
		cfg      *ConfigurationDefault
		wantHTTP string
	}{
		{"bareNumber", &ConfigurationDefault{HTTPServerPort: "9090"}, ":9090"},
		{"withColon", &ConfigurationDefault{HTTPServerPort: ":9091"}, ":9091"},
		{"empty", &ConfigurationDefault{}, ":8080"},
	}

	for _, tc := range tests {
		s.Run(tc.name, func() {
			s.Equal(tc.wantHTTP, tc.cfg.HTTPPort())
		})
	}
}

func (s *ConfigSuite) TestTLSAndRedisGetters() {
	cfg := &ConfigurationDefault{RedisURL: "redis://cache:6379/1"}
	cfg.SetTLSCertAndKeyPath("/cert.pem", "/key.pem")

	s.Equal("/cert.pem", cfg.TLSCertPath())
	s.Equal("/key.pem", cfg.TLSCertKeyPath())
	s.Equal("redis://cache:6379/1", cfg.GetRedisURL())
}

func (s *ConfigSuite) TestJWTVerificationGetters() {
	cfg := &ConfigurationDefault{
		Oauth2JwtVerifyAudience: []string{"aud1", "aud2"},
		Oauth2JwtVerifyIssuer:   "http://issuer.local",
	}

	s.Equal([]string{"aud1", "aud2"}, cfg.GetVerificationAudience())
	s.Equal("http://issuer.local", cfg.GetVerificationIssuer())
}

func (s *ConfigSuite) TestLoadOauth2ConfigSuccess() {
	oidc := newTestOIDCServer(s.T(), false, false)

	cfg := &ConfigurationDefault{Oauth2ServiceURI: oidc.discoveryURLRoot()}
	err := cfg.LoadOauth2Config(context.Background())
	s.Require().NoError(err)

	s.Equal(oidc.jwksURL(), cfg.GetOauth2WellKnownJwk())
	s.Contains(cfg.GetOauth2WellKnownJwkData(), `"kty":"RSA"`)
}

func (s *ConfigSuite) TestLoadOauth2ConfigDiscoveryFailure() {
	oidc := newTestOIDCServer(s.T(), true, false)

	cfg := &ConfigurationDefault{Oauth2ServiceURI: oidc.discoveryURLRoot()}
	err := cfg.LoadOauth2Config(context.Background())
	s.Require().Error(err)
}

func (s *ConfigSuite) TestLoadOauth2ConfigJWKFailure() {
	oidc := newTestOIDCServer(s.T(), false, true)

	cfg := &ConfigurationDefault{Oauth2ServiceURI: oidc.discoveryURLRoot()}
	err := cfg.LoadOauth2Config(context.Background())
	s.Require().Error(err)
}

func (s *ConfigSuite) TestLoadWithOIDCSkipsWhenNoServiceURI() {
	s.T().Setenv("SERVICE_NAME", "svc")
	cfg, err := LoadWithOIDC[ConfigurationDefault](context.Background())
	s.Require().NoError(err)
	s.Equal("svc", cfg.ServiceName)
}

func (s *ConfigSuite) TestLoadFileYAMLOverlay() {
	dir := s.T().TempDir()
	path := dir + "/config.yaml"
	s.Require().NoError(os.WriteFile(path, []byte("service_name: from-yaml\nhttp_server_port: \":9090\"\n"), 0o600))

	var cfg ConfigurationDefault
	s.Require().NoError(LoadFile(path, &cfg))
	s.Equal("from-yaml", cfg.ServiceName)
	s.Equal(":9090", cfg.HTTPServerPort)
}

func (s *ConfigSuite) TestLoadFileTOMLOverlay() {
	dir := s.T().TempDir()
	path := dir + "/config.toml"
	s.Require().NoError(os.WriteFile(path, []byte("service_name = \"from-toml\"\nmax_body_bytes = 2048\n"), 0o600))

	var cfg ConfigurationDefault
	s.Require().NoError(LoadFile(path, &cfg))
	s.Equal("from-toml", cfg.ServiceName)
	s.Equal(int64(2048), cfg.MaxBodyBytes)
}

func (s *ConfigSuite) TestLoadFileRejectsUnknownExtension() {
	dir := s.T().TempDir()
	path := dir + "/config.ini"
	s.Require().NoError(os.WriteFile(path, []byte("service_name=from-ini"), 0o600))

	var cfg ConfigurationDefault
	s.Require().Error(LoadFile(path, &cfg))
}
