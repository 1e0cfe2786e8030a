package facebook

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/blacktop/syndicate/internal/logutil"
	"github.com/blacktop/syndicate/internal/syndicate"
)

const (
	destinationName = "facebook"

	maxImages = 10
)

// Publisher implements the page publish protocol. Zero media goes to the
// feed endpoint, a single image or video is published in one call carrying
// the caption, and multiple images use the unpublished-photos album flow.
type Publisher struct {
	baseURL string
	client  *http.Client
	store   syndicate.ObjectStore
}

// New builds the facebook publisher. baseURL points at the Graph API version
// root, e.g. "https://graph.facebook.com/v19.0".
func New(baseURL string, store syndicate.ObjectStore, policy syndicate.RetryPolicy) *Publisher {
	return &Publisher{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  syndicate.NewHTTPClient(policy),
		store:   store,
	}
}

// Name identifies the destination.
func (p *Publisher) Name() string { return destinationName }

// Capabilities reports the page limits.
func (p *Publisher) Capabilities() syndicate.Capabilities {
	return syndicate.Capabilities{MaxMedia: maxImages, MaxImages: maxImages, MaxVideos: 1}
}

// Publish posts to the page identified by the credential. Media must be
// publicly fetchable, so bytes-backed items are normalized first.
func (p *Publisher) Publish(ctx context.Context, post syndicate.Post, cred syndicate.Credential) syndicate.DestinationResult {
	if cred.AccessToken == "" || cred.PageID == "" {
		return p.failed(syndicate.ValidationError{
			Destination: destinationName,
			Reason:      "credential needs an access token and a page id",
		})
	}
	if err := checkMediaShape(post.Media); err != nil {
		return p.failed(err)
	}

	media, skipped := syndicate.Normalize(ctx, post.Media, p.store)
	if len(skipped) > 0 {
		logutil.Warnf("facebook: %d media item(s) dropped during normalization", len(skipped))
	}

	var (
		postID string
		err    error
	)
	switch {
	case len(media) == 0:
		postID, err = p.publishText(ctx, cred, post.Content)
	case len(media) == 1 && media[0].Kind == syndicate.KindVideo:
		postID, err = p.publishVideo(ctx, cred, post.Content, media[0])
	case len(media) == 1:
		postID, err = p.publishPhoto(ctx, cred, post.Content, media[0])
	default:
		postID, err = p.publishAlbum(ctx, cred, post.Content, media)
	}
	if err != nil {
		return p.failed(err)
	}
	return syndicate.Succeeded(destinationName, postID)
}

// checkMediaShape rejects shapes the page API cannot express: more than one
// video, or a video mixed with anything else.
func checkMediaShape(media []syndicate.MediaItem) error {
	videos := 0
	for _, item := range media {
		if item.Kind == syndicate.KindVideo {
			videos++
		}
	}
	if videos > 1 {
		return syndicate.ValidationError{Destination: destinationName, Reason: "facebook supports a single video per post"}
	}
	if videos == 1 && len(media) > 1 {
		return syndicate.ValidationError{Destination: destinationName, Reason: "facebook cannot mix a video with other media"}
	}
	if len(media) > maxImages {
		return syndicate.ValidationError{Destination: destinationName, Reason: fmt.Sprintf("facebook albums carry at most %d photos", maxImages)}
	}
	return nil
}

func (p *Publisher) publishText(ctx context.Context, cred syndicate.Credential, message string) (string, error) {
	if strings.TrimSpace(message) == "" {
		return "", syndicate.ValidationError{Destination: destinationName, Reason: "a text-only post needs a message"}
	}
	form := url.Values{"message": {message}}
	return p.call(ctx, cred, cred.PageID+"/feed", form)
}

func (p *Publisher) publishPhoto(ctx context.Context, cred syndicate.Credential, caption string, item syndicate.MediaItem) (string, error) {
	form := url.Values{"url": {item.URL}}
	if caption != "" {
		form.Set("caption", caption)
	}
	return p.call(ctx, cred, cred.PageID+"/photos", form)
}

func (p *Publisher) publishVideo(ctx context.Context, cred syndicate.Credential, description string, item syndicate.MediaItem) (string, error) {
	form := url.Values{"file_url": {item.URL}}
	if description != "" {
		form.Set("description", description)
	}
	return p.call(ctx, cred, cred.PageID+"/videos", form)
}

// publishAlbum uploads every photo unpublished, then creates one parent feed
// post referencing all of them.
func (p *Publisher) publishAlbum(ctx context.Context, cred syndicate.Credential, message string, media []syndicate.MediaItem) (string, error) {
	var photoIDs []string
	for i, item := range media {
		form := url.Values{
			"url":       {item.URL},
			"published": {"false"},
		}
		photoID, err := p.call(ctx, cred, cred.PageID+"/photos", form)
		if err != nil {
			logutil.Warnf("facebook: album photo %d upload failed, skipping: %v", i, err)
			continue
		}
		photoIDs = append(photoIDs, photoID)
	}
	if len(photoIDs) == 0 {
		return "", syndicate.ValidationError{Destination: destinationName, Reason: "no album photo could be uploaded"}
	}

	form := url.Values{}
	if message != "" {
		form.Set("message", message)
	}
	for i, id := range photoIDs {
		attached, _ := json.Marshal(map[string]string{"media_fbid": id})
		form.Set(fmt.Sprintf("attached_media[%d]", i), string(attached))
	}
	return p.call(ctx, cred, cred.PageID+"/feed", form)
}

// graphResponse is the strict success shape shared by the endpoints used
// here: an object id, with feed posts also reporting a composite post id.
type graphResponse struct {
	ID     string `json:"id"`
	PostID string `json:"post_id"`
}

type graphErrorEnvelope struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    int    `json:"code"`
	} `json:"error"`
}

func (p *Publisher) call(ctx context.Context, cred syndicate.Credential, path string, form url.Values) (string, error) {
	form.Set("access_token", cred.AccessToken)

	endpoint := p.baseURL + "/" + path
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		apiErr := &syndicate.APIError{
			Destination: destinationName,
			StatusCode:  resp.StatusCode,
			Message:     fmt.Sprintf("POST /%s failed", path),
			RetryAfter:  syndicate.ParseRetryAfter(resp.Header),
		}
		var envelope graphErrorEnvelope
		if json.Unmarshal(body, &envelope) == nil && envelope.Error.Message != "" {
			apiErr.UpstreamMessage = envelope.Error.Message
		}
		return "", apiErr
	}

	var parsed graphResponse
	if err := json.Unmarshal(body, &parsed); err != nil || (parsed.ID == "" && parsed.PostID == "") {
		return "", syndicate.UpstreamShapeError{Destination: destinationName, Detail: "response carried no object id"}
	}
	if parsed.PostID != "" {
		return parsed.PostID, nil
	}
	return parsed.ID, nil
}

// failed classifies the error, then rewrites the user-facing phrasing for the
// failures page owners hit most. The kind is left as classified.
func (p *Publisher) failed(err error) syndicate.DestinationResult {
	res := syndicate.Failed(destinationName, err)
	switch res.ErrorKind {
	case syndicate.ErrRateLimit:
		res.Message = fmt.Sprintf("Facebook is rate limiting this page; retry in %s", res.RetryAfter)
		if res.RetryAfter == 0 {
			res.Message = "Facebook is rate limiting this page; retry later"
		}
	case syndicate.ErrPermission:
		res.Message = "the connected Facebook account is missing page publish permissions"
	}
	return res
}
