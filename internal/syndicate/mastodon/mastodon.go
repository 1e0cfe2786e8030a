package mastodon

import (
	"bytes"
	"context"
	"fmt"
	"net/http"

	"github.com/blacktop/syndicate/internal/logutil"
	"github.com/blacktop/syndicate/internal/syndicate"
	mastodonapi "github.com/mattn/go-mastodon"
)

const (
	destinationName = "mastodon"

	maxMedia = 4
)

// Publisher posts statuses to a Mastodon instance. The protocol is the
// simplest of the set: one synchronous upload per media item, then one
// status call referencing the attachment ids.
type Publisher struct {
	policy  syndicate.RetryPolicy
	fetcher *http.Client
}

// New builds the mastodon publisher.
func New(policy syndicate.RetryPolicy) *Publisher {
	return &Publisher{policy: policy, fetcher: syndicate.NewHTTPClient(policy)}
}

// Name identifies the destination.
func (p *Publisher) Name() string { return destinationName }

// Capabilities reports the status limits.
func (p *Publisher) Capabilities() syndicate.Capabilities {
	return syndicate.Capabilities{MaxMedia: maxMedia, MaxImages: maxMedia, MaxVideos: 1}
}

// Publish posts a status to the instance named by the credential. Per-item
// upload failures skip the item.
func (p *Publisher) Publish(ctx context.Context, post syndicate.Post, cred syndicate.Credential) syndicate.DestinationResult {
	if cred.Server == "" || cred.AccessToken == "" {
		return syndicate.Failed(destinationName, syndicate.ValidationError{
			Destination: destinationName,
			Reason:      "credential needs a server and an access token",
		})
	}

	client := mastodonapi.NewClient(&mastodonapi.Config{
		Server:      cred.Server,
		AccessToken: cred.AccessToken,
	})
	client.Timeout = p.policy.Timeout

	media := post.Media
	if len(media) > maxMedia {
		logutil.Debugf("mastodon: truncating %d media items to %d", len(media), maxMedia)
		media = media[:maxMedia]
	}

	var mediaIDs []mastodonapi.ID
	for i, item := range media {
		attachment, err := p.uploadMedia(ctx, client, item)
		if err != nil {
			logutil.Warnf("mastodon: media %d upload failed, skipping: %v", i, err)
			continue
		}
		mediaIDs = append(mediaIDs, attachment.ID)
	}

	status, err := client.PostStatus(ctx, &mastodonapi.Toot{
		Status:   post.Content,
		MediaIDs: mediaIDs,
	})
	if err != nil {
		return syndicate.Failed(destinationName, fmt.Errorf("post status: %w", err))
	}
	return syndicate.Succeeded(destinationName, string(status.ID))
}

func (p *Publisher) uploadMedia(ctx context.Context, client *mastodonapi.Client, item syndicate.MediaItem) (*mastodonapi.Attachment, error) {
	data, _, err := syndicate.FetchBytes(ctx, p.fetcher, item)
	if err != nil {
		return nil, err
	}

	attachment, err := client.UploadMediaFromMedia(ctx, &mastodonapi.Media{
		File:        bytes.NewReader(data),
		Description: item.AltText,
	})
	if err != nil {
		return nil, fmt.Errorf("upload media: %w", err)
	}
	return attachment, nil
}
