package gateway

import (
	"crypto/subtle"
	"net"
	"os"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/soyeahso/clinicbot/internal/config"
)

// Environment fallbacks for the gateway credentials.
const (
	EnvGatewayToken    = "CLINICBOT_GATEWAY_TOKEN"
	EnvGatewayPassword = "CLINICBOT_GATEWAY_PASSWORD"
)

// AuthResult says whether a client got in and how.
type AuthResult struct {
	OK     bool   `json:"ok"`
	Method string `json:"method,omitempty"`
	Reason string `json:"reason,omitempty"`
}

func denied(reason string) AuthResult { return AuthResult{Reason: reason} }

// ResolvedAuth is the gateway's effective credential policy.
type ResolvedAuth struct {
	Mode     string // none | token | password
	Token    string
	Password string
}

// ResolveAuth fills missing or unresolved ${VAR} secrets from the
// environment. Without an explicit mode, a password beats a token and
// neither means "none".
func ResolveAuth(cfg config.GatewayAuth) ResolvedAuth {
	secret := func(v, env string) string {
		if v == "" || config.Unresolved(v) {
			return os.Getenv(env)
		}
		return v
	}
	auth := ResolvedAuth{
		Mode:     cfg.Mode,
		Token:    secret(cfg.Token, EnvGatewayToken),
		Password: secret(cfg.Password, EnvGatewayPassword),
	}
	if auth.Mode == "" {
		auth.Mode = "none"
		if auth.Token != "" {
			auth.Mode = "token"
		}
		if auth.Password != "" {
			auth.Mode = "password"
		}
	}
	return auth
}

// Authorize checks connect credentials against the policy.
func Authorize(policy ResolvedAuth, creds *ConnectAuth) AuthResult {
	if policy.Mode == "none" {
		return AuthResult{OK: true, Method: "none"}
	}
	if creds == nil {
		return denied("no credentials provided")
	}

	var want, got string
	switch policy.Mode {
	case "token":
		want, got = policy.Token, creds.Token
	case "password":
		want, got = policy.Password, creds.Password
	default:
		return denied("unknown auth mode: " + policy.Mode)
	}
	switch {
	case want == "":
		return denied("server " + policy.Mode + " not configured")
	case got == "":
		return denied(policy.Mode + " required")
	case !safeEqual(got, want):
		return denied(policy.Mode + "_mismatch")
	}
	return AuthResult{OK: true, Method: policy.Mode}
}

// AuthorizeBearer checks an Authorization header for the REST API. The
// bearer value stands in for whichever secret the mode uses.
func AuthorizeBearer(policy ResolvedAuth, header string) AuthResult {
	if policy.Mode == "none" {
		return AuthResult{OK: true, Method: "none"}
	}
	value, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || value == "" {
		return denied("bearer token required")
	}
	return Authorize(policy, &ConnectAuth{Token: value, Password: value})
}

// safeEqual compares in constant time, including the length check.
func safeEqual(a, b string) bool {
	sameLen := subtle.ConstantTimeEq(int32(len(a)), int32(len(b)))
	same := subtle.ConstantTimeCompare([]byte(a), []byte(b))
	return subtle.ConstantTimeSelect(sameLen, same, 0) == 1
}

const (
	authFailBurst  = 10
	authFailRefill = 30 * time.Second
	authMaxHosts   = 10000
)

// failureLimiter keeps a token bucket of failed handshakes per host. A
// host with an empty bucket is turned away until it refills.
type failureLimiter struct {
	mu      sync.Mutex
	buckets map[string]*rate.Limiter
	now     func() time.Time
}

func newFailureLimiter() *failureLimiter {
	return &failureLimiter{buckets: make(map[string]*rate.Limiter), now: time.Now}
}

func hostOf(remoteAddr string) string {
	if host, _, err := net.SplitHostPort(remoteAddr); err == nil {
		return host
	}
	return remoteAddr
}

func (l *failureLimiter) allow(remoteAddr string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.buckets[hostOf(remoteAddr)]
	return !ok || b.TokensAt(l.now()) >= 1
}

func (l *failureLimiter) recordFailure(remoteAddr string) {
	host := hostOf(remoteAddr)
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.buckets[host]
	if !ok {
		if len(l.buckets) >= authMaxHosts && !l.evictRefilled(now) {
			return
		}
		b = rate.NewLimiter(rate.Every(authFailRefill), authFailBurst)
		l.buckets[host] = b
	}
	b.AllowN(now, 1)
}

// evictRefilled forgets hosts whose bucket is full again. Caller holds mu.
func (l *failureLimiter) evictRefilled(now time.Time) bool {
	before := len(l.buckets)
	for host, b := range l.buckets {
		if b.TokensAt(now) >= authFailBurst {
			delete(l.buckets, host)
		}
	}
	return len(l.buckets) < before
}
