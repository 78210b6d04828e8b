package profile

import (
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// devSecret signs session tokens when no secret is configured outside prod.
const devSecret = "autotask-development-secret"

// Profile is the configuration to start main server.
type Profile struct {
	// Mode can be "prod" or "dev" or "demo"
	Mode string
	// Addr is the binding address for server
	Addr string
	// Port is the binding port for server
	Port int
	// Version is the current version of server
	Version string
	// InstanceURL is the public url of this instance, used to derive callback urls.
	InstanceURL string
	// Secret signs session tokens.
	Secret string
	// CookieSecure marks the session cookie Secure.
	CookieSecure bool
	// LogLevel is one of debug, info, warn, error.
	LogLevel string

	// Identity provider
	GoogleClientID     string // AUTOTASK_GOOGLE_CLIENT_ID
	GoogleClientSecret string // AUTOTASK_GOOGLE_CLIENT_SECRET
	GoogleIssuer       string // AUTOTASK_GOOGLE_ISSUER (default: https://accounts.google.com)
	GmailBaseURL       string // AUTOTASK_GMAIL_BASE_URL (default: https://gmail.googleapis.com/gmail/v1)

	// Completion service
	CompletionBaseURL string // AUTOTASK_COMPLETION_BASE_URL (default: https://app.chipp.ai/api/v1)
	CompletionModel   string // AUTOTASK_COMPLETION_MODEL (default: hackathonassistant-70377)

	// Workspace integration
	ClickUpBaseURL      string // AUTOTASK_CLICKUP_BASE_URL (default: https://api.clickup.com/api/v2)
	ClickUpAuthorizeURL string // AUTOTASK_CLICKUP_AUTHORIZE_URL (default: https://app.clickup.com/api)

	// Session cache and processing
	CacheCapacity int           // AUTOTASK_CACHE_CAPACITY (default: 1000)
	CacheTTL      time.Duration // AUTOTASK_CACHE_TTL (default: 24h)
	MaxItems      int           // AUTOTASK_MAX_ITEMS (default: 5)
	RecoveryDelay time.Duration // AUTOTASK_RECOVERY_DELAY (default: 2s)
}

func (p *Profile) IsDev() bool {
	return p.Mode != "prod"
}

func setDefault(field *string, value string) {
	if *field == "" {
		*field = value
	}
}

func (p *Profile) Validate() error {
	if p.Mode != "demo" && p.Mode != "dev" && p.Mode != "prod" {
		p.Mode = "demo"
	}

	if p.Secret == "" {
		if p.Mode == "prod" {
			return errors.New("a session secret is required in prod mode")
		}
		slog.Warn("no session secret configured, using the development secret", slog.String("mode", p.Mode))
		p.Secret = devSecret
	}

	if p.Port < 0 || p.Port > 65535 {
		return errors.Errorf("invalid port %d", p.Port)
	}

	setDefault(&p.LogLevel, "info")
	setDefault(&p.GoogleIssuer, "https://accounts.google.com")
	setDefault(&p.GmailBaseURL, "https://gmail.googleapis.com/gmail/v1")
	setDefault(&p.CompletionBaseURL, "https://app.chipp.ai/api/v1")
	setDefault(&p.CompletionModel, "hackathonassistant-70377")
	setDefault(&p.ClickUpBaseURL, "https://api.clickup.com/api/v2")
	setDefault(&p.ClickUpAuthorizeURL, "https://app.clickup.com/api")

	if p.InstanceURL == "" {
		host := p.Addr
		if host == "" || host == "0.0.0.0" {
			host = "localhost"
		}
		p.InstanceURL = "http://" + host + ":" + strconv.Itoa(p.Port)
	}
	p.InstanceURL = strings.TrimRight(p.InstanceURL, "/")

	if p.CacheCapacity <= 0 {
		p.CacheCapacity = 1000
	}
	if p.CacheTTL <= 0 {
		p.CacheTTL = 24 * time.Hour
	}
	if p.MaxItems <= 0 {
		p.MaxItems = 5
	}
	if p.RecoveryDelay < 0 {
		p.RecoveryDelay = 0
	}

	return nil
}

// GoogleRedirectURL is the callback registered with the identity provider.
func (p *Profile) GoogleRedirectURL() string {
	return p.InstanceURL + "/auth/google/callback"
}

// ClickUpRedirectURL is the callback registered with the workspace integration.
func (p *Profile) ClickUpRedirectURL() string {
	return p.InstanceURL + "/api/workspace/callback"
}
