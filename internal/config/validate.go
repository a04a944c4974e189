package config

import (
	"fmt"
	"slices"
	"time"
)

// ValidationIssue describes a problem with a config value.
type ValidationIssue struct {
	Path    string
	Message string
}

func (v ValidationIssue) String() string {
	return fmt.Sprintf("%s: %s", v.Path, v.Message)
}

func checkOneOf(issues []ValidationIssue, path, value string, allowed []string) []ValidationIssue {
	if value != "" && !slices.Contains(allowed, value) {
		issues = append(issues, ValidationIssue{
			Path:    path,
			Message: fmt.Sprintf("must be one of %v, got %q", allowed, value),
		})
	}
	return issues
}

func checkPort(issues []ValidationIssue, path string, port int) []ValidationIssue {
	if port < 0 || port > 65535 {
		issues = append(issues, ValidationIssue{
			Path:    path,
			Message: fmt.Sprintf("port must be 0-65535, got %d", port),
		})
	}
	return issues
}

// Validate checks a Config for issues. Returns nil if valid.
func Validate(cfg *Config) []ValidationIssue {
	var issues []ValidationIssue

	// Gateway validation
	issues = checkPort(issues, "gateway.port", cfg.Gateway.Port)
	issues = checkOneOf(issues, "gateway.bind", cfg.Gateway.Bind, []string{"auto", "lan", "loopback", "custom"})
	issues = checkOneOf(issues, "gateway.auth.mode", cfg.Gateway.Auth.Mode, []string{"none", "token", "password"})
	if cfg.Gateway.Bind == "custom" && cfg.Gateway.CustomBindHost == "" {
		issues = append(issues, ValidationIssue{
			Path:    "gateway.customBindHost",
			Message: "required when bind is custom",
		})
	}
	if cfg.Gateway.TLS.Enabled && (cfg.Gateway.TLS.CertPath == "" || cfg.Gateway.TLS.KeyPath == "") {
		issues = append(issues, ValidationIssue{
			Path:    "gateway.tls",
			Message: "certPath and keyPath are required when TLS is enabled",
		})
	}
	if cfg.Gateway.RateLimit.PerMinute < 0 || cfg.Gateway.RateLimit.Burst < 0 {
		issues = append(issues, ValidationIssue{
			Path:    "gateway.rateLimit",
			Message: "perMinute and burst must not be negative",
		})
	}

	// LLM validation
	primary, ok := cfg.LLM.Providers[cfg.LLM.Primary]
	if !ok {
		issues = append(issues, ValidationIssue{
			Path:    "llm.primary",
			Message: fmt.Sprintf("provider %q is not defined under llm.providers", cfg.LLM.Primary),
		})
	} else if primary.API != "ollama" && Unresolved(primary.APIKey) {
		issues = append(issues, ValidationIssue{
			Path:    "llm.providers." + cfg.LLM.Primary + ".apiKey",
			Message: "required (set GROQ_API_KEY or configure the key directly)",
		})
	}
	for _, name := range cfg.LLM.Fallbacks {
		if _, ok := cfg.LLM.Providers[name]; !ok {
			issues = append(issues, ValidationIssue{
				Path:    "llm.fallbacks",
				Message: fmt.Sprintf("provider %q is not defined under llm.providers", name),
			})
		}
	}
	for name, p := range cfg.LLM.Providers {
		issues = checkOneOf(issues, "llm.providers."+name+".api", p.API, []string{"openai", "claude", "gemini", "ollama"})
		if p.API == "" {
			issues = append(issues, ValidationIssue{Path: "llm.providers." + name + ".api", Message: "api is required"})
		}
		if p.Model == "" {
			issues = append(issues, ValidationIssue{Path: "llm.providers." + name + ".model", Message: "model is required"})
		}
	}

	// Booking validation
	if len(cfg.Booking.Catalog) == 0 {
		issues = append(issues, ValidationIssue{
			Path:    "booking.catalog",
			Message: "at least one appointment type is required",
		})
	}
	start, errStart := time.Parse("15:04", cfg.Booking.WorkingHours.Start)
	end, errEnd := time.Parse("15:04", cfg.Booking.WorkingHours.End)
	switch {
	case errStart != nil:
		issues = append(issues, ValidationIssue{Path: "booking.workingHours.start", Message: "must be HH:MM"})
	case errEnd != nil:
		issues = append(issues, ValidationIssue{Path: "booking.workingHours.end", Message: "must be HH:MM"})
	case end.Before(start):
		issues = append(issues, ValidationIssue{Path: "booking.workingHours", Message: "end must not be before start"})
	}
	if cfg.Booking.WindowDays < 1 {
		issues = append(issues, ValidationIssue{
			Path:    "booking.windowDays",
			Message: fmt.Sprintf("must be at least 1, got %d", cfg.Booking.WindowDays),
		})
	}
	if cfg.Booking.Timezone != "" {
		if _, err := time.LoadLocation(cfg.Booking.Timezone); err != nil {
			issues = append(issues, ValidationIssue{Path: "booking.timezone", Message: err.Error()})
		}
	}

	// Session validation
	issues = checkOneOf(issues, "session.scope", cfg.Session.Scope, []string{"per-sender", "global"})
	if cfg.Session.HistoryLimit < 0 {
		issues = append(issues, ValidationIssue{Path: "session.historyLimit", Message: "must not be negative"})
	}

	// RAG validation
	if cfg.RAG.ChunkSize < 1 {
		issues = append(issues, ValidationIssue{Path: "rag.chunkSize", Message: "must be positive"})
	}
	if cfg.RAG.ChunkOverlap < 0 || cfg.RAG.ChunkOverlap >= cfg.RAG.ChunkSize {
		issues = append(issues, ValidationIssue{
			Path:    "rag.chunkOverlap",
			Message: fmt.Sprintf("must be between 0 and chunkSize-1, got %d", cfg.RAG.ChunkOverlap),
		})
	}
	if cfg.RAG.TopK < 1 {
		issues = append(issues, ValidationIssue{Path: "rag.topK", Message: "must be positive"})
	}

	// Store validation
	issues = checkOneOf(issues, "store.driver", cfg.Store.Driver, []string{"sqlite", "postgres"})
	if cfg.Store.Driver == "postgres" && Unresolved(cfg.Store.DSN) {
		issues = append(issues, ValidationIssue{Path: "store.dsn", Message: "required when driver is postgres"})
	}

	// Mail validation
	issues = checkOneOf(issues, "mail.transport", cfg.Mail.Transport, []string{"smtp", "gmail", "none"})
	switch cfg.Mail.Transport {
	case "smtp":
		if Unresolved(cfg.Mail.Sender) {
			issues = append(issues, ValidationIssue{Path: "mail.sender", Message: "required (set EMAIL_SENDER)"})
		}
		if Unresolved(cfg.Mail.SMTP.Password) {
			issues = append(issues, ValidationIssue{Path: "mail.smtp.password", Message: "required (set EMAIL_PASSWORD)"})
		}
		issues = checkPort(issues, "mail.smtp.port", cfg.Mail.SMTP.Port)
	case "gmail":
		if cfg.Mail.Gmail.CredentialsFile == "" {
			issues = append(issues, ValidationIssue{Path: "mail.gmail.credentialsFile", Message: "required when transport is gmail"})
		}
	}
	if cfg.Mail.Archive.Enabled {
		if cfg.Mail.Archive.IMAPHost == "" {
			issues = append(issues, ValidationIssue{Path: "mail.archive.imapHost", Message: "required when archive is enabled"})
		}
		issues = checkPort(issues, "mail.archive.imapPort", cfg.Mail.Archive.IMAPPort)
	}

	// Logging validation
	issues = checkOneOf(issues, "logging.level", cfg.Logging.Level,
		[]string{"silent", "fatal", "error", "warn", "info", "debug", "trace"})
	issues = checkOneOf(issues, "logging.consoleStyle", cfg.Logging.ConsoleStyle, []string{"pretty", "compact", "json"})

	// IRC validation (only if configured)
	if cfg.Channels.IRC != nil {
		irc := cfg.Channels.IRC
		if irc.Server == "" {
			issues = append(issues, ValidationIssue{
				Path:    "channels.irc.server",
				Message: "server is required",
			})
		}
		if irc.Nick == "" {
			issues = append(issues, ValidationIssue{
				Path:    "channels.irc.nick",
				Message: "nick is required",
			})
		}
		issues = checkPort(issues, "channels.irc.port", irc.Port)
		if irc.SASL && irc.Password == "" {
			issues = append(issues, ValidationIssue{
				Path:    "channels.irc.sasl",
				Message: "SASL requires a password to be set",
			})
		}
	}

	return issues
}
