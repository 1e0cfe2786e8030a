package bluesky

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/blacktop/syndicate/internal/logutil"
	"github.com/blacktop/syndicate/internal/syndicate"
	"github.com/bluesky-social/indigo/api/atproto"
	"github.com/bluesky-social/indigo/api/bsky"
	"github.com/bluesky-social/indigo/lex/util"
	"github.com/bluesky-social/indigo/xrpc"
)

const (
	destinationName = "bluesky"
	defaultPDSURL   = "https://bsky.social"

	maxImages = 4
)

// Publisher posts records to a Bluesky PDS. Each publish creates its own
// session from the credential's handle and app password.
type Publisher struct {
	timeout time.Duration
	fetcher *http.Client
}

// New builds the bluesky publisher.
func New(policy syndicate.RetryPolicy) *Publisher {
	return &Publisher{timeout: policy.Timeout, fetcher: syndicate.NewHTTPClient(policy)}
}

// Name identifies the destination.
func (p *Publisher) Name() string { return destinationName }

// Capabilities reports the post limits. Video embeds are not supported here.
func (p *Publisher) Capabilities() syndicate.Capabilities {
	return syndicate.Capabilities{MaxMedia: maxImages, MaxImages: maxImages}
}

// Publish creates a feed post with up to four image embeds. Video items and
// failed uploads are skipped.
func (p *Publisher) Publish(ctx context.Context, post syndicate.Post, cred syndicate.Credential) syndicate.DestinationResult {
	client, err := p.login(ctx, cred)
	if err != nil {
		return syndicate.Failed(destinationName, err)
	}

	record := &bsky.FeedPost{
		CreatedAt: time.Now().UTC().Format(time.RFC3339),
		Text:      post.Content,
	}

	var images []*bsky.EmbedImages_Image
	for i, item := range post.Media {
		if item.Kind != syndicate.KindImage {
			logutil.Debugf("bluesky: media %d skipped: only images are embeddable", i)
			continue
		}
		if len(images) >= maxImages {
			logutil.Debugf("bluesky: media %d skipped: over the %d image limit", i, maxImages)
			continue
		}
		blob, err := p.uploadImage(ctx, client, item)
		if err != nil {
			logutil.Warnf("bluesky: media %d upload failed, skipping: %v", i, err)
			continue
		}
		images = append(images, &bsky.EmbedImages_Image{Alt: item.AltText, Image: blob})
	}
	if len(images) > 0 {
		record.Embed = &bsky.FeedPost_Embed{
			EmbedImages: &bsky.EmbedImages{Images: images},
		}
	}

	resp, err := atproto.RepoCreateRecord(ctx, client, &atproto.RepoCreateRecord_Input{
		Collection: "app.bsky.feed.post",
		Repo:       client.Auth.Did,
		Record:     &util.LexiconTypeDecoder{Val: record},
	})
	if err != nil {
		return syndicate.Failed(destinationName, fmt.Errorf("create record: %w", err))
	}
	return syndicate.Succeeded(destinationName, resp.Uri)
}

func (p *Publisher) login(ctx context.Context, cred syndicate.Credential) (*xrpc.Client, error) {
	if cred.Handle == "" || cred.AppPassword == "" {
		return nil, syndicate.ValidationError{
			Destination: destinationName,
			Reason:      "credential needs a handle and an app password",
		}
	}
	pdsURL := cred.Server
	if pdsURL == "" {
		pdsURL = defaultPDSURL
	}

	userAgent := "syndicate/1"
	client := &xrpc.Client{
		Client:    &http.Client{Timeout: p.timeout},
		Host:      pdsURL,
		UserAgent: &userAgent,
	}

	session, err := atproto.ServerCreateSession(ctx, client, &atproto.ServerCreateSession_Input{
		Identifier: cred.Handle,
		Password:   cred.AppPassword,
	})
	if err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}
	client.Auth = &xrpc.AuthInfo{
		AccessJwt:  session.AccessJwt,
		RefreshJwt: session.RefreshJwt,
		Handle:     session.Handle,
		Did:        session.Did,
	}
	return client, nil
}

func (p *Publisher) uploadImage(ctx context.Context, client *xrpc.Client, item syndicate.MediaItem) (*util.LexBlob, error) {
	data, _, err := syndicate.FetchBytes(ctx, p.fetcher, item)
	if err != nil {
		return nil, err
	}

	resp, err := atproto.RepoUploadBlob(ctx, client, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("upload blob: %w", err)
	}
	if resp.Blob == nil {
		return nil, fmt.Errorf("upload blob: empty response")
	}
	return resp.Blob, nil
}
