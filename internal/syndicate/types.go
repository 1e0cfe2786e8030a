package syndicate

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// MediaKind distinguishes the two media families the destinations accept.
type MediaKind string

const (
	KindImage MediaKind = "image"
	KindVideo MediaKind = "video"
)

// MediaItem is one piece of media attached to a post. Exactly one of Data or
// URL is set: Data carries raw bytes with their MIME type, URL points at an
// already publicly fetchable asset.
type MediaItem struct {
	Data     []byte
	MimeType string
	URL      string
	Kind     MediaKind
	AltText  string
}

// NewMediaFromBytes builds a bytes-backed item, deriving the kind from the
// MIME type.
func NewMediaFromBytes(data []byte, mimeType string) (MediaItem, error) {
	if len(data) == 0 {
		return MediaItem{}, fmt.Errorf("media bytes are empty")
	}
	kind, err := KindFromMime(mimeType)
	if err != nil {
		return MediaItem{}, err
	}
	return MediaItem{Data: data, MimeType: mimeType, Kind: kind}, nil
}

// NewMediaFromURL builds a URL-backed item, deriving the kind from the URL's
// file extension.
func NewMediaFromURL(rawURL string) (MediaItem, error) {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return MediaItem{}, fmt.Errorf("media url is empty")
	}
	kind, err := KindFromURL(rawURL)
	if err != nil {
		return MediaItem{}, err
	}
	return MediaItem{URL: rawURL, Kind: kind}, nil
}

// Remote reports whether the item is URL-backed.
func (m MediaItem) Remote() bool { return m.URL != "" }

// Post is the destination-agnostic payload: text plus ordered media.
type Post struct {
	Content string
	Media   []MediaItem
}

// Empty reports whether the post carries neither text nor media.
func (p Post) Empty() bool {
	return strings.TrimSpace(p.Content) == "" && len(p.Media) == 0
}

// Credential is one destination's credential record. Which fields matter
// depends on the destination; the core never mutates or refreshes it.
type Credential struct {
	AccessToken string

	// OAuth 1.0a signing material (twitter).
	ConsumerKey    string
	ConsumerSecret string
	AccessSecret   string

	// Destination-scoped identifiers.
	PageID    string // facebook page
	AuthorURN string // linkedin member URN
	AccountID string // instagram business account

	// Self-hosted network endpoints and logins.
	Server      string // mastodon instance
	Handle      string // bluesky handle
	AppPassword string // bluesky app password
}

// PublishRequest is one logical post fanned out to several destinations.
type PublishRequest struct {
	Post         Post
	Destinations []string              `validate:"required,min=1,dive,required"`
	Credentials  map[string]Credential `validate:"required"`
}

// DestinationResult is the outcome of one destination's publish attempt.
// Success and the error fields are mutually exclusive.
type DestinationResult struct {
	Destination string        `json:"destination"`
	Success     bool          `json:"success"`
	PostID      string        `json:"post_id,omitempty"`
	ErrorKind   ErrorKind     `json:"error_kind,omitempty"`
	Message     string        `json:"message,omitempty"`
	RetryAfter  time.Duration `json:"retry_after,omitempty"`
}

// Succeeded builds a successful result.
func Succeeded(destination, postID string) DestinationResult {
	return DestinationResult{Destination: destination, Success: true, PostID: postID}
}

// Failed classifies err and builds a failed result.
func Failed(destination string, err error) DestinationResult {
	kind, message, retryAfter := Classify(err)
	return DestinationResult{
		Destination: destination,
		ErrorKind:   kind,
		Message:     message,
		RetryAfter:  retryAfter,
	}
}

// BatchReport aggregates one result per requested destination, in request
// order.
type BatchReport struct {
	Results      []DestinationResult `json:"results"`
	SuccessCount int                 `json:"success_count"`
	FailureCount int                 `json:"failure_count"`
}

// Capabilities describes a destination's static media limits. No network
// calls are involved in producing it.
type Capabilities struct {
	MaxMedia      int  `json:"max_media"`
	MaxImages     int  `json:"max_images"`
	MaxVideos     int  `json:"max_videos"`
	MixedKinds    bool `json:"mixed_kinds"`
	RequiresMedia bool `json:"requires_media"`
}

// Publisher abstracts one destination's publish protocol. Publish never
// returns an error: every failure is classified into the result.
type Publisher interface {
	Name() string
	Capabilities() Capabilities
	Publish(ctx context.Context, post Post, cred Credential) DestinationResult
}

// ObjectStore turns raw media bytes into a publicly fetchable URL. It is an
// external capability; failures are per-item and non-fatal to a batch.
type ObjectStore interface {
	Upload(ctx context.Context, data []byte, mimeType string, kind MediaKind) (string, error)
}
