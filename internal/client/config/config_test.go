package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func defaults() *Config {
	c := &Config{}
	c.LoadDefaults()
	return c
}

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	c := defaults()

	assert.Equal(t, "http://127.0.0.1:8000/api/", c.ServerEndpointAddr)
	assert.Equal(t, 3*time.Second, c.OnlineCheckInterval)
	assert.Equal(t, 60*time.Second, c.ResendCooldown)
	assert.Equal(t, "Token", c.AuthScheme)
	assert.Equal(t, LogConfig{Level: "info", Format: "text", Backend: "slog"}, c.Log)
	require.NoError(t, c.Validate())
}

func TestLoad_DefaultsOnly(t *testing.T) {
	cfg, err := Load(Sources{EnvPrefix: "TICKETDESK_TEST_NONE_"})
	require.NoError(t, err)
	assert.Empty(t, cmp.Diff(defaults(), cfg))
}

func TestLoad_File(t *testing.T) {
	path := writeFile(t, "client.yaml", `
server_endpoint_addr: https://desk.example.com/api/
online_check_interval: 10s
log:
  level: debug
breaker:
  max_failures: 2
`)

	cfg, err := Load(Sources{File: path, EnvPrefix: "TICKETDESK_TEST_NONE_"})
	require.NoError(t, err)

	want := defaults()
	want.ServerEndpointAddr = "https://desk.example.com/api/"
	want.OnlineCheckInterval = 10 * time.Second
	want.Log.Level = "debug"
	want.Breaker.MaxFailures = 2
	assert.Empty(t, cmp.Diff(want, cfg))
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(Sources{File: filepath.Join(t.TempDir(), "nope.yaml")})
	require.Error(t, err)
}

func TestLoad_Precedence(t *testing.T) {
	path := writeFile(t, "client.yaml", `
server_endpoint_addr: http://file:8000/api/
request_timeout: 20s
log:
  level: debug
  format: json
`)
	t.Setenv("TICKETDESK_T1_SERVER_ENDPOINT_ADDR", "http://env:8000/api/")
	t.Setenv("TICKETDESK_T1_LOG__FORMAT", "text")
	t.Setenv("TICKETDESK_T1_BREAKER__MAX_FAILURES", "7")

	cfg, err := Load(Sources{
		File:      path,
		EnvPrefix: "TICKETDESK_T1_",
		Overrides: map[string]any{
			"server_endpoint_addr": "http://flag:8000/api/",
			"log.backend":          "zap",
		},
	})
	require.NoError(t, err)

	want := defaults()
	want.ServerEndpointAddr = "http://flag:8000/api/"
	want.RequestTimeout = 20 * time.Second
	want.Log = LogConfig{Level: "debug", Format: "text", Backend: "zap"}
	want.Breaker.MaxFailures = 7
	assert.Empty(t, cmp.Diff(want, cfg))
}

func TestLoad_DotEnv(t *testing.T) {
	path := writeFile(t, ".env", "TICKETDESK_T2_DATABASE_PATH=/var/lib/ticketdesk/client.db\n")
	t.Cleanup(func() { _ = os.Unsetenv("TICKETDESK_T2_DATABASE_PATH") })

	cfg, err := Load(Sources{DotEnv: path, EnvPrefix: "TICKETDESK_T2_"})
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/ticketdesk/client.db", cfg.DatabasePath)
}

func TestLoad_MissingDotEnvIgnored(t *testing.T) {
	_, err := Load(Sources{DotEnv: filepath.Join(t.TempDir(), ".env"), EnvPrefix: "TICKETDESK_TEST_NONE_"})
	require.NoError(t, err)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name      string
		overrides map[string]any
	}{
		{"empty endpoint", map[string]any{"server_endpoint_addr": ""}},
		{"zero interval", map[string]any{"online_check_interval": "0s"}},
		{"bad duration", map[string]any{"request_timeout": "soon"}},
		{"unknown log backend", map[string]any{"log.backend": "logrus"}},
		{"unknown log level", map[string]any{"log.level": "trace"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(Sources{EnvPrefix: "TICKETDESK_TEST_NONE_", Overrides: tt.overrides})
			require.Error(t, err)
		})
	}
}
