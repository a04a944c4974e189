package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := Defaults()
	assert.Equal(t, 18790, cfg.Gateway.Port)
	assert.Equal(t, "loopback", cfg.Gateway.Bind)
	assert.Equal(t, "none", cfg.Gateway.Auth.Mode)
	assert.Equal(t, "groq", cfg.LLM.Primary)
	assert.Equal(t, DefaultModel, cfg.LLM.Providers["groq"].Model)
	assert.Equal(t, DefaultCatalog, cfg.Booking.Catalog)
	assert.Equal(t, "09:00", cfg.Booking.WorkingHours.Start)
	assert.Equal(t, "18:00", cfg.Booking.WorkingHours.End)
	assert.Equal(t, 90, cfg.Booking.WindowDays)
	assert.Equal(t, 20, cfg.Session.HistoryLimit)
	assert.Equal(t, 1000, cfg.RAG.ChunkSize)
	assert.Equal(t, 200, cfg.RAG.ChunkOverlap)
	assert.Equal(t, 5, cfg.RAG.TopK)
	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "smtp.gmail.com", cfg.Mail.SMTP.Host)
	assert.Equal(t, 587, cfg.Mail.SMTP.Port)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestDefaults_CatalogIsCopied(t *testing.T) {
	cfg := Defaults()
	cfg.Booking.Catalog[0] = "Changed"
	assert.Equal(t, "General Consultation", DefaultCatalog[0])
}

func TestLoadMissingFile(t *testing.T) {
	cfg, err := Load("/nonexistent/path/config.yaml")
	require.NoError(t, err)
	assert.Equal(t, 18790, cfg.Gateway.Port)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadValidYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	yaml := `
gateway:
  port: 9999
  bind: lan
  auth:
    mode: password
    password: secret123
llm:
  primary: local
  providers:
    local:
      api: ollama
      baseUrl: http://localhost:11434
      model: llama3
booking:
  catalog:
    - Dental
    - Cardiology
  workingHours:
    start: "08:30"
    end: "17:00"
  windowDays: 30
store:
  driver: postgres
  dsn: postgres://clinic@localhost/clinic
mail:
  transport: gmail
  gmail:
    credentialsFile: /etc/clinic/credentials.json
logging:
  level: debug
  consoleStyle: json
channels:
  irc:
    server: irc.libera.chat
    port: 6697
    nick: clinicbot
    channels:
      - "#front-desk"
    useTLS: true
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9999, cfg.Gateway.Port)
	assert.Equal(t, "lan", cfg.Gateway.Bind)
	assert.Equal(t, "password", cfg.Gateway.Auth.Mode)
	assert.Equal(t, "secret123", cfg.Gateway.Auth.Password)
	assert.Equal(t, "local", cfg.LLM.Primary)
	assert.Equal(t, "ollama", cfg.LLM.Providers["local"].API)
	assert.Equal(t, []string{"Dental", "Cardiology"}, cfg.Booking.Catalog)
	assert.Equal(t, "08:30", cfg.Booking.WorkingHours.Start)
	assert.Equal(t, 30, cfg.Booking.WindowDays)
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "gmail", cfg.Mail.Transport)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.ConsoleStyle)

	// Unset sections fall back to defaults.
	assert.Equal(t, 5, cfg.RAG.TopK)
	assert.Equal(t, 20, cfg.Session.HistoryLimit)
	assert.Equal(t, "Sent", cfg.Mail.Archive.Mailbox)

	require.NotNil(t, cfg.Channels.IRC)
	assert.Equal(t, "irc.libera.chat", cfg.Channels.IRC.Server)
	assert.Equal(t, 6697, cfg.Channels.IRC.Port)
	assert.Equal(t, []string{"#front-desk"}, cfg.Channels.IRC.Channels)
	assert.True(t, cfg.Channels.IRC.UseTLS)

	assert.Empty(t, Validate(&cfg))
}

func TestLoadInvalidYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("{{invalid yaml"), 0o600))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse config")
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("CLINICBOT_GATEWAY_PORT", "12345")
	t.Setenv("CLINICBOT_LOG_LEVEL", "TRACE")
	t.Setenv("CLINICBOT_STORE_DSN", "postgres://localhost/clinic")
	t.Setenv("CLINICBOT_NATS_URL", "nats://localhost:4222")

	cfg, err := Load("/nonexistent/config.yaml")
	require.NoError(t, err)

	assert.Equal(t, 12345, cfg.Gateway.Port)
	assert.Equal(t, "trace", cfg.Logging.Level)
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "postgres://localhost/clinic", cfg.Store.DSN)
	assert.Equal(t, "nats://localhost:4222", cfg.Events.NATSURL)
}

func TestLoadExpandsCredentials(t *testing.T) {
	t.Setenv("GROQ_API_KEY", "gsk-test")
	t.Setenv("EMAIL_SENDER", "desk@clinic.example")
	t.Setenv("EMAIL_PASSWORD", "app-password")

	cfg, err := Load("/nonexistent/config.yaml")
	require.NoError(t, err)

	assert.Equal(t, "gsk-test", cfg.LLM.Providers["groq"].APIKey)
	assert.Equal(t, "desk@clinic.example", cfg.Mail.Sender)
	assert.Equal(t, "app-password", cfg.Mail.SMTP.Password)
	assert.Empty(t, Validate(&cfg))
}

func TestLoadLeavesUnsetVariables(t *testing.T) {
	os.Unsetenv("CLINICBOT_TEST_UNSET")
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("gateway:\n  auth:\n    mode: token\n    token: ${CLINICBOT_TEST_UNSET}\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "${CLINICBOT_TEST_UNSET}", cfg.Gateway.Auth.Token)
	assert.True(t, Unresolved(cfg.Gateway.Auth.Token))
}

func TestUnresolved(t *testing.T) {
	assert.True(t, Unresolved(""))
	assert.True(t, Unresolved("   "))
	assert.True(t, Unresolved("${GROQ_API_KEY}"))
	assert.False(t, Unresolved("gsk-abc"))
	assert.False(t, Unresolved("prefix-${X}"))
}

func TestLoadRawAndSaveRaw(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	raw := map[string]any{
		"booking": map[string]any{
			"windowDays": 60,
		},
	}

	require.NoError(t, SaveRaw(path, raw))

	loaded, err := LoadRaw(path)
	require.NoError(t, err)

	val, ok := GetValueAtPath(loaded, []string{"booking", "windowDays"})
	assert.True(t, ok)
	assert.Equal(t, 60, val)
}

func TestLoadRawMissingFile(t *testing.T) {
	raw, err := LoadRaw(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Empty(t, raw)
}
