package config

import (
	"errors"
	"io/fs"
	"os"
	"regexp"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

var envRef = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// expandEnvVars substitutes ${VAR} references that name a set variable
// and leaves the rest as written.
func expandEnvVars(s string) string {
	return envRef.ReplaceAllStringFunc(s, func(ref string) string {
		if val, ok := os.LookupEnv(ref[2 : len(ref)-1]); ok {
			return val
		}
		return ref
	})
}

// Unresolved reports whether a credential is blank or nothing but a
// ${VAR} reference that did not expand.
func Unresolved(s string) bool {
	s = strings.TrimSpace(s)
	return s == "" || envRef.FindString(s) == s
}

// secrets lists the fields that may be written as ${VAR} in the file.
func secrets(cfg *Config) []*string {
	out := []*string{
		&cfg.Gateway.Auth.Token,
		&cfg.Gateway.Auth.Password,
		&cfg.Mail.Sender,
		&cfg.Mail.SMTP.Username,
		&cfg.Mail.SMTP.Password,
		&cfg.Store.DSN,
		&cfg.Events.Token,
	}
	if cfg.Channels.IRC != nil {
		out = append(out, &cfg.Channels.IRC.Password)
	}
	return out
}

func expandSecrets(cfg *Config) {
	for _, field := range secrets(cfg) {
		*field = expandEnvVars(*field)
	}
	for name, p := range cfg.LLM.Providers {
		p.APIKey = expandEnvVars(p.APIKey)
		cfg.LLM.Providers[name] = p
	}
}

// Load layers the file at path over Defaults, then CLINICBOT_* variables
// over that, and expands secret references. A missing file is not an
// error.
func Load(path string) (Config, error) {
	cfg := Defaults()
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return cfg, err
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, &ConfigError{Message: "failed to parse config: " + err.Error()}
		}
		applyDefaults(&cfg)
	}
	applyEnvOverrides(&cfg)
	expandSecrets(&cfg)
	return cfg, nil
}

// LoadRaw reads the file as an untyped document for key path edits.
func LoadRaw(path string) (map[string]any, error) {
	raw := map[string]any{}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return raw, nil
	}
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, &ConfigError{Message: "failed to parse config: " + err.Error()}
	}
	if raw == nil {
		raw = map[string]any{}
	}
	return raw, nil
}

// SaveRaw writes the document back. The file may hold secrets, so it is
// readable by the owner only.
func SaveRaw(path string, raw map[string]any) error {
	data, err := yaml.Marshal(raw)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

func orDefault[T comparable](field *T, def T) {
	var zero T
	if *field == zero {
		*field = def
	}
}

// applyDefaults restores defaults for settings the file spelled out as
// zero or empty.
func applyDefaults(cfg *Config) {
	d := Defaults()

	orDefault(&cfg.Gateway.Port, d.Gateway.Port)
	orDefault(&cfg.Gateway.Bind, d.Gateway.Bind)
	orDefault(&cfg.Gateway.Auth.Mode, d.Gateway.Auth.Mode)
	if cfg.Gateway.RateLimit.PerMinute == 0 {
		cfg.Gateway.RateLimit = d.Gateway.RateLimit
	}

	orDefault(&cfg.LLM.Primary, d.LLM.Primary)
	if len(cfg.LLM.Providers) == 0 {
		cfg.LLM.Providers = d.LLM.Providers
	}

	if len(cfg.Booking.Catalog) == 0 {
		cfg.Booking.Catalog = d.Booking.Catalog
	}
	orDefault(&cfg.Booking.WorkingHours.Start, d.Booking.WorkingHours.Start)
	orDefault(&cfg.Booking.WorkingHours.End, d.Booking.WorkingHours.End)
	orDefault(&cfg.Booking.WindowDays, d.Booking.WindowDays)

	orDefault(&cfg.Session.Scope, d.Session.Scope)
	orDefault(&cfg.Session.HistoryLimit, d.Session.HistoryLimit)
	orDefault(&cfg.Session.IdleMinutes, d.Session.IdleMinutes)

	orDefault(&cfg.RAG.ChunkSize, d.RAG.ChunkSize)
	orDefault(&cfg.RAG.ChunkOverlap, d.RAG.ChunkOverlap)
	orDefault(&cfg.RAG.TopK, d.RAG.TopK)

	orDefault(&cfg.Store.Driver, d.Store.Driver)

	orDefault(&cfg.Mail.Transport, d.Mail.Transport)
	orDefault(&cfg.Mail.SMTP.Host, d.Mail.SMTP.Host)
	orDefault(&cfg.Mail.SMTP.Port, d.Mail.SMTP.Port)
	orDefault(&cfg.Mail.Archive.IMAPPort, d.Mail.Archive.IMAPPort)
	orDefault(&cfg.Mail.Archive.Mailbox, d.Mail.Archive.Mailbox)

	orDefault(&cfg.Events.SubjectPrefix, d.Events.SubjectPrefix)

	orDefault(&cfg.Logging.Level, d.Logging.Level)
	orDefault(&cfg.Logging.ConsoleStyle, d.Logging.ConsoleStyle)
}

// envOverrides maps CLINICBOT_* variables onto config fields. Values that
// do not parse are ignored.
var envOverrides = map[string]func(cfg *Config, v string){
	"CLINICBOT_GATEWAY_PORT": func(cfg *Config, v string) {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Gateway.Port = port
		}
	},
	"CLINICBOT_GATEWAY_BIND": func(cfg *Config, v string) { cfg.Gateway.Bind = v },
	"CLINICBOT_LOG_LEVEL":    func(cfg *Config, v string) { cfg.Logging.Level = strings.ToLower(v) },
	"CLINICBOT_STORE_DSN": func(cfg *Config, v string) {
		cfg.Store.Driver, cfg.Store.DSN = "postgres", v
	},
	"CLINICBOT_NATS_URL":    func(cfg *Config, v string) { cfg.Events.NATSURL = v },
	"CLINICBOT_LLM_PRIMARY": func(cfg *Config, v string) { cfg.LLM.Primary = v },
}

func applyEnvOverrides(cfg *Config) {
	for name, apply := range envOverrides {
		if v := os.Getenv(name); v != "" {
			apply(cfg, v)
		}
	}
}
