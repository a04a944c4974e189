package config

// Config is the root configuration for clinicbot.
type Config struct {
	Gateway  GatewayConfig  `yaml:"gateway,omitempty"`
	LLM      LLMConfig      `yaml:"llm,omitempty"`
	Booking  BookingConfig  `yaml:"booking,omitempty"`
	Session  SessionConfig  `yaml:"session,omitempty"`
	RAG      RAGConfig      `yaml:"rag,omitempty"`
	Store    StoreConfig    `yaml:"store,omitempty"`
	Mail     MailConfig     `yaml:"mail,omitempty"`
	Events   EventsConfig   `yaml:"events,omitempty"`
	Channels ChannelsConfig `yaml:"channels,omitempty"`
	Logging  LoggingConfig  `yaml:"logging,omitempty"`
}

// GatewayConfig controls the gateway HTTP/WebSocket server.
type GatewayConfig struct {
	Port           int              `yaml:"port,omitempty"`
	Bind           string           `yaml:"bind,omitempty"` // "auto" | "lan" | "loopback" | "custom"
	CustomBindHost string           `yaml:"customBindHost,omitempty"`
	Auth           GatewayAuth      `yaml:"auth,omitempty"`
	TLS            GatewayTLS       `yaml:"tls,omitempty"`
	ControlUI      GatewayControlUI `yaml:"controlUi,omitempty"`
	RateLimit      RateLimitConfig  `yaml:"rateLimit,omitempty"`
}

// GatewayAuth configures gateway authentication.
// Mode "none" leaves the chat surface open; bookings never require a login.
type GatewayAuth struct {
	Mode     string `yaml:"mode,omitempty"` // "none" | "token" | "password"
	Token    string `yaml:"token,omitempty"`
	Password string `yaml:"password,omitempty"`
}

// GatewayTLS configures TLS for the gateway.
type GatewayTLS struct {
	Enabled  bool   `yaml:"enabled,omitempty"`
	CertPath string `yaml:"certPath,omitempty"`
	KeyPath  string `yaml:"keyPath,omitempty"`
}

// GatewayControlUI configures browser access to the gateway.
type GatewayControlUI struct {
	AllowedOrigins []string `yaml:"allowedOrigins,omitempty"`
}

// RateLimitConfig bounds how fast a single connection may send chat turns.
type RateLimitConfig struct {
	PerMinute int `yaml:"perMinute,omitempty"`
	Burst     int `yaml:"burst,omitempty"`
}

// LLMConfig selects completion providers.
type LLMConfig struct {
	Primary   string                   `yaml:"primary,omitempty"`
	Fallbacks []string                 `yaml:"fallbacks,omitempty"`
	Providers map[string]ProviderEntry `yaml:"providers,omitempty"`
}

// ProviderEntry defines one completion provider.
type ProviderEntry struct {
	API     string `yaml:"api"` // "openai" | "claude" | "gemini" | "ollama"
	BaseURL string `yaml:"baseUrl,omitempty"`
	APIKey  string `yaml:"apiKey,omitempty"`
	Model   string `yaml:"model"`
}

// BookingConfig holds the slot validation rules.
type BookingConfig struct {
	Catalog      []string           `yaml:"catalog,omitempty"`
	WorkingHours WorkingHoursConfig `yaml:"workingHours,omitempty"`
	WindowDays   int                `yaml:"windowDays,omitempty"`
	Timezone     string             `yaml:"timezone,omitempty"`
}

// WorkingHoursConfig is an inclusive HH:MM range.
type WorkingHoursConfig struct {
	Start string `yaml:"start,omitempty"`
	End   string `yaml:"end,omitempty"`
}

// SessionConfig defines conversation behavior.
type SessionConfig struct {
	Scope        string `yaml:"scope,omitempty"` // "per-sender" | "global"
	HistoryLimit int    `yaml:"historyLimit,omitempty"`
	IdleMinutes  int    `yaml:"idleMinutes,omitempty"`
}

// RAGConfig tunes document chunking and retrieval.
type RAGConfig struct {
	ChunkSize    int `yaml:"chunkSize,omitempty"`
	ChunkOverlap int `yaml:"chunkOverlap,omitempty"`
	TopK         int `yaml:"topK,omitempty"`
}

// StoreConfig selects the booking persistence backend.
type StoreConfig struct {
	Driver string `yaml:"driver,omitempty"` // "sqlite" | "postgres"
	Path   string `yaml:"path,omitempty"`
	DSN    string `yaml:"dsn,omitempty"`
}

// MailConfig configures confirmation email delivery.
type MailConfig struct {
	Transport string        `yaml:"transport,omitempty"` // "smtp" | "gmail" | "none"
	Sender    string        `yaml:"sender,omitempty"`
	SMTP      SMTPConfig    `yaml:"smtp,omitempty"`
	Gmail     GmailConfig   `yaml:"gmail,omitempty"`
	Archive   ArchiveConfig `yaml:"archive,omitempty"`
}

// SMTPConfig is an authenticated STARTTLS relay.
type SMTPConfig struct {
	Host     string `yaml:"host,omitempty"`
	Port     int    `yaml:"port,omitempty"`
	Username string `yaml:"username,omitempty"`
	Password string `yaml:"password,omitempty"`
}

// GmailConfig points at OAuth client credentials and a cached token.
type GmailConfig struct {
	CredentialsFile string `yaml:"credentialsFile,omitempty"`
	TokenFile       string `yaml:"tokenFile,omitempty"`
}

// ArchiveConfig stores a copy of each confirmation in an IMAP mailbox.
type ArchiveConfig struct {
	Enabled  bool   `yaml:"enabled,omitempty"`
	IMAPHost string `yaml:"imapHost,omitempty"`
	IMAPPort int    `yaml:"imapPort,omitempty"`
	Mailbox  string `yaml:"mailbox,omitempty"`
}

// EventsConfig publishes booking lifecycle events to NATS.
type EventsConfig struct {
	NATSURL       string `yaml:"natsUrl,omitempty"`
	Token         string `yaml:"token,omitempty"`
	SubjectPrefix string `yaml:"subjectPrefix,omitempty"`
}

// ChannelsConfig defines chat channel integrations.
type ChannelsConfig struct {
	IRC *IRCConfig `yaml:"irc,omitempty"`
}

// IRCConfig defines IRC channel settings.
type IRCConfig struct {
	Server   string   `yaml:"server"`
	Port     int      `yaml:"port,omitempty"`
	Nick     string   `yaml:"nick"`
	Password string   `yaml:"password,omitempty"`
	Channels []string `yaml:"channels,omitempty"`
	UseTLS   bool     `yaml:"useTLS,omitempty"`
	SASL     bool     `yaml:"sasl,omitempty"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level        string `yaml:"level,omitempty"` // "silent" | "fatal" | "error" | "warn" | "info" | "debug" | "trace"
	File         string `yaml:"file,omitempty"`
	ConsoleStyle string `yaml:"consoleStyle,omitempty"` // "pretty" | "compact" | "json"
}
