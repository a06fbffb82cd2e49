package config

import (
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	AppPort string

	SlackClientID     string
	SlackClientSecret string

	// RedirectOverride, when set, wins over the hard-coded production
	// fallback but loses to request-derived headers. See Redirect.
	RedirectOverride string
	RedirectFallback string

	// BotToken is the workspace-wide fallback; per-organization tokens
	// come from SLACK_BOT_TOKEN_<ORG> at lookup time.
	BotToken string

	// ChannelID is the channel whose membership drives the directory.
	// Accepts either an opaque channel id or a channel name.
	ChannelID string

	// PrivateChannelID receives billing and sync-summary notifications.
	PrivateChannelID string

	SyncInterval time.Duration

	// OrgSlugs seeds the organizations covered by scheduled syncs.
	OrgSlugs []string

	RedisAddr     string
	RedisPassword string

	DatabaseDSN string
}

const defaultRedirectFallback = "https://app.teamsync.io/oauth/callback"

func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		AppPort: envOr("APP_PORT", "8080"),

		SlackClientID:     os.Getenv("SLACK_CLIENT_ID"),
		SlackClientSecret: os.Getenv("SLACK_CLIENT_SECRET"),

		RedirectOverride: os.Getenv("OAUTH_REDIRECT_URL"),
		RedirectFallback: defaultRedirectFallback,

		BotToken:         os.Getenv("SLACK_BOT_TOKEN"),
		ChannelID:        os.Getenv("SLACK_CHANNEL_ID"),
		PrivateChannelID: os.Getenv("SLACK_PRIVATE_CHANNEL_ID"),

		SyncInterval: durationOr("SYNC_INTERVAL", 6*time.Hour),

		OrgSlugs: splitList(os.Getenv("ORG_SLUGS")),

		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),

		DatabaseDSN: os.Getenv("DATABASE_DSN"),
	}

	return cfg
}

// OAuthConfigured reports whether the login flow can be enabled.
// A missing client id or secret disables the feature at startup.
func (c Config) OAuthConfigured() bool {
	return c.SlackClientID != "" && c.SlackClientSecret != ""
}

// BotTokenFor returns the bot token for an organization, preferring a
// SLACK_BOT_TOKEN_<ORG> variable over the global fallback. Returns ""
// when neither is set.
func (c Config) BotTokenFor(orgSlug string) string {
	key := "SLACK_BOT_TOKEN_" + sanitizeEnvKey(orgSlug)
	if v := os.Getenv(key); v != "" {
		return v
	}
	return c.BotToken
}

// BaseURL returns the application's public base URL, used for links
// embedded in outbound messages. Derived from the redirect settings so
// both point at the same deployment.
func (c Config) BaseURL() string {
	if c.RedirectOverride != "" {
		return strings.TrimSuffix(c.RedirectOverride, "/oauth/callback")
	}
	return strings.TrimSuffix(c.RedirectFallback, "/oauth/callback")
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func sanitizeEnvKey(s string) string {
	s = strings.ToUpper(s)
	return strings.Map(func(r rune) rune {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			return r
		}
		return '_'
	}, s)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func durationOr(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
