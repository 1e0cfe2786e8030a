package twitter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/blacktop/syndicate/internal/logutil"
	"github.com/blacktop/syndicate/internal/syndicate"
	"github.com/michimani/gotwi"
	"github.com/michimani/gotwi/media/upload"
	uploadtypes "github.com/michimani/gotwi/media/upload/types"
	"github.com/michimani/gotwi/resources"
	"github.com/michimani/gotwi/tweet/managetweet"
	managetweettypes "github.com/michimani/gotwi/tweet/managetweet/types"
)

const (
	destinationName = "twitter"

	maxMedia  = 4
	maxVideos = 1

	metadataEndpoint = "https://upload.twitter.com/1.1/media/metadata/create.json"
)

// Publisher implements the twitter publish protocol: one upload per media
// item accumulating media ids, then a single tweet-create call.
type Publisher struct {
	httpTimeout time.Duration
	fetcher     *http.Client
}

// New builds the twitter publisher.
func New(policy syndicate.RetryPolicy) *Publisher {
	return &Publisher{
		httpTimeout: policy.Timeout,
		fetcher:     syndicate.NewHTTPClient(policy),
	}
}

// Name identifies the destination.
func (p *Publisher) Name() string { return destinationName }

// Capabilities reports twitter's media limits.
func (p *Publisher) Capabilities() syndicate.Capabilities {
	return syndicate.Capabilities{MaxMedia: maxMedia, MaxImages: maxMedia, MaxVideos: maxVideos}
}

// Publish posts text plus up to four media items. Individual upload failures
// skip the item; the tweet goes out with whatever references were obtained,
// or text-only if none were.
func (p *Publisher) Publish(ctx context.Context, post syndicate.Post, cred syndicate.Credential) syndicate.DestinationResult {
	api, err := p.newClient(cred)
	if err != nil {
		return syndicate.Failed(destinationName, err)
	}

	media, skipped := selectMedia(post.Media)
	for _, skip := range skipped {
		logutil.Debugf("twitter: media %d not eligible: %s", skip.Index, skip.Reason)
	}

	var mediaIDs []string
	for i, item := range media {
		mediaID, err := p.uploadMedia(ctx, api, item)
		if err != nil {
			logutil.Warnf("twitter: media %d upload failed, skipping: %v", i, err)
			skipped = append(skipped, syndicate.SkippedMedia{Index: i, Reason: err.Error()})
			continue
		}
		mediaIDs = append(mediaIDs, mediaID)
		logutil.Debugf("twitter: media uploaded: media_id=%s", mediaID)
	}

	input := &managetweettypes.CreateInput{
		Text: gotwi.String(post.Content),
	}
	if len(mediaIDs) > 0 {
		input.Media = &managetweettypes.CreateInputMedia{MediaIDs: mediaIDs}
	}

	logutil.Debugf("twitter: creating tweet: media_count=%d skipped=%d", len(mediaIDs), len(skipped))
	res, err := managetweet.Create(ctx, api, input)
	if err != nil {
		return syndicate.Failed(destinationName, translateGotwiError(err))
	}
	if res == nil || res.Data.ID == nil {
		return syndicate.Failed(destinationName, syndicate.UpstreamShapeError{
			Destination: destinationName,
			Detail:      "tweet created without an id",
		})
	}
	return syndicate.Succeeded(destinationName, *res.Data.ID)
}

func (p *Publisher) newClient(cred syndicate.Credential) (*gotwi.Client, error) {
	if cred.ConsumerKey == "" || cred.ConsumerSecret == "" || cred.AccessToken == "" || cred.AccessSecret == "" {
		return nil, syndicate.ValidationError{
			Destination: destinationName,
			Reason:      "incomplete OAuth 1.0a credential",
		}
	}
	client, err := gotwi.NewClient(&gotwi.NewClientInput{
		HTTPClient:           &http.Client{Timeout: p.httpTimeout},
		AuthenticationMethod: gotwi.AuthenMethodOAuth1UserContext,
		OAuthToken:           cred.AccessToken,
		OAuthTokenSecret:     cred.AccessSecret,
		APIKey:               cred.ConsumerKey,
		APIKeySecret:         cred.ConsumerSecret,
		Debug:                logutil.Verbose(),
	})
	if err != nil {
		return nil, fmt.Errorf("create twitter client: %w", err)
	}
	return client, nil
}

// selectMedia enforces twitter's rules: at most four items, and a single
// video XOR up to four images. If the first item is a video the post carries
// that video alone; otherwise images win and videos are skipped.
func selectMedia(items []syndicate.MediaItem) ([]syndicate.MediaItem, []syndicate.SkippedMedia) {
	if len(items) == 0 {
		return nil, nil
	}

	var selected []syndicate.MediaItem
	var skipped []syndicate.SkippedMedia
	videoFirst := items[0].Kind == syndicate.KindVideo

	for i, item := range items {
		switch {
		case videoFirst && i == 0:
			selected = append(selected, item)
		case videoFirst:
			skipped = append(skipped, syndicate.SkippedMedia{Index: i, Reason: "video posts carry a single video"})
		case item.Kind == syndicate.KindVideo:
			skipped = append(skipped, syndicate.SkippedMedia{Index: i, Reason: "cannot mix video into an image post"})
		case len(selected) >= maxMedia:
			skipped = append(skipped, syndicate.SkippedMedia{Index: i, Reason: fmt.Sprintf("over the %d media limit", maxMedia)})
		default:
			selected = append(selected, item)
		}
	}
	return selected, skipped
}

func (p *Publisher) uploadMedia(ctx context.Context, api *gotwi.Client, item syndicate.MediaItem) (string, error) {
	data, mimeType, err := syndicate.FetchBytes(ctx, p.fetcher, item)
	if err != nil {
		return "", err
	}
	if mimeType == "" {
		mimeType = item.MimeType
	}

	mediaType, category, err := resolveMediaType(mimeType, item.Kind)
	if err != nil {
		return "", err
	}

	logutil.Debugf("twitter: initialize upload: media_type=%s bytes=%d", mediaType, len(data))
	initRes, err := upload.Initialize(ctx, api, &uploadtypes.InitializeInput{
		MediaType:     mediaType,
		TotalBytes:    len(data),
		MediaCategory: category,
	})
	if err != nil {
		return "", fmt.Errorf("initialize upload: %w", translateGotwiError(err))
	}
	if err := partialError(initRes.Errors); err != nil {
		return "", fmt.Errorf("initialize upload: %w", err)
	}
	mediaID := initRes.Data.MediaID

	appendIn := &uploadtypes.AppendInput{
		MediaID:      mediaID,
		Media:        bytes.NewReader(data),
		SegmentIndex: 0,
	}
	appendIn.GenerateBoundary()

	appendRes, err := upload.Append(ctx, api, appendIn)
	if err != nil {
		return "", fmt.Errorf("append upload: %w", translateGotwiError(err))
	}
	if err := partialError(appendRes.Errors); err != nil {
		return "", fmt.Errorf("append upload: %w", err)
	}

	finalizeRes, err := upload.Finalize(ctx, api, &uploadtypes.FinalizeInput{MediaID: mediaID})
	if err != nil {
		return "", fmt.Errorf("finalize upload: %w", translateGotwiError(err))
	}
	if err := partialError(finalizeRes.Errors); err != nil {
		return "", fmt.Errorf("finalize upload: %w", err)
	}

	state := finalizeRes.Data.ProcessingInfo.State
	logutil.Debugf("twitter: finalize state=%s media_id=%s", state, mediaID)
	switch state {
	case "", resources.ProcessingInfoStateSucceeded:
		// usable immediately
	case resources.ProcessingInfoStateInProgress, resources.ProcessingInfoStatePending:
		wait := time.Duration(finalizeRes.Data.ProcessingInfo.CheckAfterSecs) * time.Second
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return "", ctx.Err()
		case <-timer.C:
			// images clear quickly; videos are accepted best-effort after the
			// advertised wait
		}
	default:
		return "", fmt.Errorf("media processing failed: state=%s", state)
	}

	if alt := strings.TrimSpace(item.AltText); alt != "" {
		if err := setAltText(ctx, api, mediaID, alt); err != nil {
			return "", err
		}
	}

	return mediaID, nil
}

func setAltText(ctx context.Context, api *gotwi.Client, mediaID, altText string) error {
	params := &altTextParams{
		mediaID: mediaID,
		altText: altText,
	}

	ctx = context.WithValue(ctx, "Content-Type", "application/json;charset=UTF-8")

	if err := api.CallAPI(ctx, metadataEndpoint, http.MethodPost, params, &altTextResponse{}); err != nil {
		return fmt.Errorf("set alt text: %w", translateGotwiError(err))
	}
	logutil.Debugf("twitter: alt text set: media_id=%s", mediaID)

	return nil
}

func resolveMediaType(mimeType string, kind syndicate.MediaKind) (uploadtypes.MediaType, uploadtypes.MediaCategory, error) {
	mt := strings.ToLower(mimeType)
	switch {
	case strings.Contains(mt, "jpeg"):
		return uploadtypes.MediaTypeJPEG, uploadtypes.MediaCategoryTweetImage, nil
	case strings.Contains(mt, "png"):
		return uploadtypes.MediaTypePNG, uploadtypes.MediaCategoryTweetImage, nil
	case strings.Contains(mt, "gif"):
		return uploadtypes.MediaTypeGIF, uploadtypes.MediaCategoryTweetGIF, nil
	case strings.Contains(mt, "webp"):
		return uploadtypes.MediaTypeWebP, uploadtypes.MediaCategoryTweetImage, nil
	case kind == syndicate.KindVideo:
		return uploadtypes.MediaType("video/mp4"), uploadtypes.MediaCategory("tweet_video"), nil
	}
	return "", "", syndicate.ValidationError{
		Destination: destinationName,
		Reason:      fmt.Sprintf("unsupported media type %q", mimeType),
	}
}

func partialError(partials []resources.PartialError) error {
	if len(partials) == 0 {
		return nil
	}
	msgs := make([]string, 0, len(partials))
	for _, pe := range partials {
		switch {
		case pe.Detail != nil && *pe.Detail != "":
			msgs = append(msgs, *pe.Detail)
		case pe.Title != nil && *pe.Title != "":
			msgs = append(msgs, *pe.Title)
		}
	}
	if len(msgs) == 0 {
		msgs = append(msgs, "unknown error")
	}
	return fmt.Errorf("%s", strings.Join(msgs, "; "))
}

// altTextParams satisfies gotwi's parameter contract for the media/metadata
// endpoint, which the SDK does not model itself.
type altTextParams struct {
	mediaID     string
	altText     string
	accessToken string
}

func (p *altTextParams) SetAccessToken(token string) { p.accessToken = token }

func (p *altTextParams) AccessToken() string { return p.accessToken }

func (p *altTextParams) ResolveEndpoint(endpointBase string) string { return endpointBase }

func (p *altTextParams) Body() (io.Reader, error) {
	body := struct {
		MediaID string `json:"media_id"`
		AltText struct {
			Text string `json:"text"`
		} `json:"alt_text"`
	}{}
	body.MediaID = p.mediaID
	body.AltText.Text = p.altText

	buf, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	return bytes.NewReader(buf), nil
}

func (p *altTextParams) ParameterMap() map[string]string { return map[string]string{} }

type altTextResponse struct{}

func (altTextResponse) HasPartialError() bool { return false }

// translateGotwiError rewrites gotwi's error type into the shared APIError so
// the classifier sees the nested API message and status.
func translateGotwiError(err error) error {
	var gwErr *gotwi.GotwiError
	if !errors.As(err, &gwErr) || gwErr == nil {
		return err
	}

	parts := make([]string, 0, 4)
	if gwErr.Title != "" {
		parts = append(parts, gwErr.Title)
	}
	if gwErr.Detail != "" {
		parts = append(parts, gwErr.Detail)
	}
	for _, apiErr := range gwErr.APIErrors {
		if apiErr.Message != "" {
			parts = append(parts, apiErr.Message)
		}
	}

	return &syndicate.APIError{
		Destination:     destinationName,
		StatusCode:      gwErr.StatusCode,
		Message:         http.StatusText(gwErr.StatusCode),
		UpstreamMessage: strings.Join(parts, "; "),
	}
}
