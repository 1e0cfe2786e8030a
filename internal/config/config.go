// Package config loads the process configuration from the environment.
// Destination endpoints and timing knobs are injected here, never hardcoded
// in the adapters.
package config

import (
	"fmt"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

type Config struct {
	Verbose bool `env:"SYNDICATE_VERBOSE" env-default:"false"`

	HTTP      HTTP      `env-prefix:"SYNDICATE_HTTP_"`
	Endpoints Endpoints `env-prefix:"SYNDICATE_"`
	Instagram Instagram `env-prefix:"SYNDICATE_INSTAGRAM_"`
	MinIO     MinIO     `env-prefix:"SYNDICATE_MINIO_"`

	Twitter  TwitterCredential   `env-prefix:"SYNDICATE_TWITTER_"`
	Facebook FacebookCredential  `env-prefix:"SYNDICATE_FACEBOOK_"`
	LinkedIn LinkedInCredential  `env-prefix:"SYNDICATE_LINKEDIN_"`
	IGUser   InstagramCredential `env-prefix:"SYNDICATE_IG_"`
	Mastodon MastodonCredential  `env-prefix:"SYNDICATE_MASTODON_"`
	Bluesky  BlueskyCredential   `env-prefix:"SYNDICATE_BLUESKY_"`
}

type HTTP struct {
	Timeout      time.Duration `env:"TIMEOUT" env-default:"30s"`
	MediaTimeout time.Duration `env:"MEDIA_TIMEOUT" env-default:"5m"`
	MaxRetries   int           `env:"MAX_RETRIES" env-default:"2"`
	RetryWait    time.Duration `env:"RETRY_WAIT" env-default:"1s"`
}

type Endpoints struct {
	GraphBaseURL    string `env:"GRAPH_BASE_URL" env-default:"https://graph.facebook.com/v19.0"`
	LinkedInBaseURL string `env:"LINKEDIN_BASE_URL" env-default:"https://api.linkedin.com/v2"`
}

type Instagram struct {
	PollInterval    time.Duration `env:"POLL_INTERVAL" env-default:"3s"`
	PollMaxAttempts int           `env:"POLL_MAX_ATTEMPTS" env-default:"20"`
}

type MinIO struct {
	Endpoint        string `env:"ENDPOINT"`
	AccessKeyID     string `env:"ACCESS_KEY"`
	SecretAccessKey string `env:"SECRET_KEY"`
	Bucket          string `env:"BUCKET" env-default:"syndicate-media"`
	UseSSL          bool   `env:"USE_SSL" env-default:"true"`
	PublicBaseURL   string `env:"PUBLIC_BASE_URL"`
}

type TwitterCredential struct {
	ConsumerKey    string `env:"CONSUMER_KEY"`
	ConsumerSecret string `env:"CONSUMER_SECRET"`
	AccessToken    string `env:"ACCESS_TOKEN"`
	AccessSecret   string `env:"ACCESS_TOKEN_SECRET"`
}

type FacebookCredential struct {
	AccessToken string `env:"ACCESS_TOKEN"`
	PageID      string `env:"PAGE_ID"`
}

type LinkedInCredential struct {
	AccessToken string `env:"ACCESS_TOKEN"`
	AuthorURN   string `env:"AUTHOR_URN"`
}

type InstagramCredential struct {
	AccessToken string `env:"ACCESS_TOKEN"`
	AccountID   string `env:"ACCOUNT_ID"`
}

type MastodonCredential struct {
	Server      string `env:"SERVER"`
	AccessToken string `env:"ACCESS_TOKEN"`
}

type BlueskyCredential struct {
	Handle      string `env:"HANDLE"`
	AppPassword string `env:"APP_PASSWORD"`
	PDSURL      string `env:"PDS_URL" env-default:"https://bsky.social"`
}

// Load reads the configuration from the environment.
func Load() (*Config, error) {
	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return &cfg, nil
}
