package config

import "fmt"

// ConfigError represents a configuration error.
type ConfigError struct {
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s", e.Message)
}

// DefaultModel is the Groq-hosted model used when no provider is configured.
const DefaultModel = "llama-3.3-70b-versatile"

// DefaultCatalog is the set of appointment categories offered out of the box.
var DefaultCatalog = []string{
	"General Consultation",
	"Pediatrics",
	"Cardiology",
	"Dermatology",
	"Orthopedics",
	"Dental",
}

// Defaults returns a Config with sensible defaults applied.
func Defaults() Config {
	return Config{
		Gateway: GatewayConfig{
			Port: 18790,
			Bind: "loopback",
			Auth: GatewayAuth{
				Mode: "none",
			},
			RateLimit: RateLimitConfig{
				PerMinute: 30,
				Burst:     5,
			},
		},
		LLM: LLMConfig{
			Primary: "groq",
			Providers: map[string]ProviderEntry{
				"groq": {
					API:     "openai",
					BaseURL: "https://api.groq.com/openai/v1",
					APIKey:  "${GROQ_API_KEY}",
					Model:   DefaultModel,
				},
			},
		},
		Booking: BookingConfig{
			Catalog: append([]string(nil), DefaultCatalog...),
			WorkingHours: WorkingHoursConfig{
				Start: "09:00",
				End:   "18:00",
			},
			WindowDays: 90,
		},
		Session: SessionConfig{
			Scope:        "per-sender",
			HistoryLimit: 20,
			IdleMinutes:  60,
		},
		RAG: RAGConfig{
			ChunkSize:    1000,
			ChunkOverlap: 200,
			TopK:         5,
		},
		Store: StoreConfig{
			Driver: "sqlite",
		},
		Mail: MailConfig{
			Transport: "smtp",
			Sender:    "${EMAIL_SENDER}",
			SMTP: SMTPConfig{
				Host:     "smtp.gmail.com",
				Port:     587,
				Password: "${EMAIL_PASSWORD}",
			},
			Archive: ArchiveConfig{
				IMAPPort: 993,
				Mailbox:  "Sent",
			},
		},
		Events: EventsConfig{
			SubjectPrefix: "clinicbot",
		},
		Logging: LoggingConfig{
			Level:        "info",
			ConsoleStyle: "pretty",
		},
	}
}
