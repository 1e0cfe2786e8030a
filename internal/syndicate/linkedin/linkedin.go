package linkedin

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/blacktop/syndicate/internal/logutil"
	"github.com/blacktop/syndicate/internal/syndicate"
)

const (
	destinationName = "linkedin"

	maxMedia = 9

	restliProtocolHeader  = "X-Restli-Protocol-Version"
	restliProtocolVersion = "2.0.0"

	imageRecipe = "urn:li:digitalmediaRecipe:feedshare-image"
	videoRecipe = "urn:li:digitalmediaRecipe:feedshare-video"
)

// Publisher implements the asset-based publish protocol: every media item is
// registered, its bytes are transferred to the returned upload URL, and the
// resulting asset URNs are referenced by one ugcPosts call. No finalize step
// exists; assets are usable as soon as the transfer completes.
type Publisher struct {
	baseURL  string
	client   *http.Client
	transfer *http.Client
}

// New builds the linkedin publisher. baseURL points at the REST root, e.g.
// "https://api.linkedin.com/v2".
func New(baseURL string, metadata, media syndicate.RetryPolicy) *Publisher {
	return &Publisher{
		baseURL:  strings.TrimRight(baseURL, "/"),
		client:   syndicate.NewHTTPClient(metadata),
		transfer: syndicate.NewHTTPClient(media),
	}
}

// Name identifies the destination.
func (p *Publisher) Name() string { return destinationName }

// Capabilities reports the share limits.
func (p *Publisher) Capabilities() syndicate.Capabilities {
	return syndicate.Capabilities{MaxMedia: maxMedia, MaxImages: maxMedia, MaxVideos: 1, MixedKinds: true}
}

// Publish shares text plus media under the credential's author URN. A failed
// per-item upload is logged and skipped, never fatal on its own.
func (p *Publisher) Publish(ctx context.Context, post syndicate.Post, cred syndicate.Credential) syndicate.DestinationResult {
	if cred.AccessToken == "" || cred.AuthorURN == "" {
		return syndicate.Failed(destinationName, syndicate.ValidationError{
			Destination: destinationName,
			Reason:      "credential needs an access token and an author urn",
		})
	}
	if len(post.Media) > maxMedia {
		return syndicate.Failed(destinationName, syndicate.ValidationError{
			Destination: destinationName,
			Reason:      fmt.Sprintf("linkedin shares carry at most %d media items", maxMedia),
		})
	}

	var (
		assets   []string
		hasVideo bool
		skipped  []syndicate.SkippedMedia
	)
	for i, item := range post.Media {
		asset, err := p.uploadAsset(ctx, cred, item)
		if err != nil {
			logutil.Warnf("linkedin: media %d upload failed, skipping: %v", i, err)
			skipped = append(skipped, syndicate.SkippedMedia{Index: i, Reason: err.Error()})
			continue
		}
		assets = append(assets, asset)
		if item.Kind == syndicate.KindVideo {
			hasVideo = true
		}
	}
	logutil.Debugf("linkedin: %d asset(s) ready, %d skipped", len(assets), len(skipped))

	postID, err := p.createShare(ctx, cred, post.Content, assets, hasVideo)
	if err != nil {
		return syndicate.Failed(destinationName, err)
	}
	return syndicate.Succeeded(destinationName, postID)
}

// uploadAsset drives the three-step flow for one item: register the upload
// intent, transfer the bytes, keep the asset URN.
func (p *Publisher) uploadAsset(ctx context.Context, cred syndicate.Credential, item syndicate.MediaItem) (string, error) {
	data, mimeType, err := syndicate.FetchBytes(ctx, p.transfer, item)
	if err != nil {
		return "", err
	}

	uploadURL, asset, err := p.registerUpload(ctx, cred, item.Kind)
	if err != nil {
		return "", err
	}
	logutil.Debugf("linkedin: registered upload: asset=%s bytes=%d", asset, len(data))

	if err := p.transferBytes(ctx, cred, uploadURL, data, mimeType); err != nil {
		return "", err
	}
	return asset, nil
}

type registerUploadRequest struct {
	RegisterUploadRequest struct {
		Recipes              []string              `json:"recipes"`
		Owner                string                `json:"owner"`
		ServiceRelationships []serviceRelationship `json:"serviceRelationships"`
	} `json:"registerUploadRequest"`
}

type serviceRelationship struct {
	RelationshipType string `json:"relationshipType"`
	Identifier       string `json:"identifier"`
}

type registerUploadResponse struct {
	Value struct {
		Asset           string `json:"asset"`
		UploadMechanism map[string]struct {
			UploadURL string            `json:"uploadUrl"`
			Headers   map[string]string `json:"headers"`
		} `json:"uploadMechanism"`
	} `json:"value"`
}

func (p *Publisher) registerUpload(ctx context.Context, cred syndicate.Credential, kind syndicate.MediaKind) (uploadURL, asset string, err error) {
	recipe := imageRecipe
	if kind == syndicate.KindVideo {
		recipe = videoRecipe
	}

	var reqBody registerUploadRequest
	reqBody.RegisterUploadRequest.Recipes = []string{recipe}
	reqBody.RegisterUploadRequest.Owner = cred.AuthorURN
	reqBody.RegisterUploadRequest.ServiceRelationships = []serviceRelationship{
		{RelationshipType: "OWNER", Identifier: "urn:li:userGeneratedContent"},
	}

	var parsed registerUploadResponse
	if err := p.postJSON(ctx, cred, "/assets?action=registerUpload", reqBody, &parsed); err != nil {
		return "", "", fmt.Errorf("register upload: %w", err)
	}

	for _, mechanism := range parsed.Value.UploadMechanism {
		if mechanism.UploadURL != "" {
			return mechanism.UploadURL, parsed.Value.Asset, nil
		}
	}
	return "", "", syndicate.UpstreamShapeError{Destination: destinationName, Detail: "register response carried no upload url"}
}

func (p *Publisher) transferBytes(ctx context.Context, cred syndicate.Credential, uploadURL string, data []byte, mimeType string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, uploadURL, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("transfer bytes: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+cred.AccessToken)
	if mimeType != "" {
		req.Header.Set("Content-Type", mimeType)
	}

	resp, err := p.transfer.Do(req)
	if err != nil {
		return fmt.Errorf("transfer bytes: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &syndicate.APIError{
			Destination: destinationName,
			StatusCode:  resp.StatusCode,
			Message:     "binary transfer rejected",
			RetryAfter:  syndicate.ParseRetryAfter(resp.Header),
		}
	}
	return nil
}

type shareRequest struct {
	Author          string                  `json:"author"`
	LifecycleState  string                  `json:"lifecycleState"`
	SpecificContent map[string]shareContent `json:"specificContent"`
	Visibility      map[string]string       `json:"visibility"`
}

type shareContent struct {
	ShareCommentary    textBlock    `json:"shareCommentary"`
	ShareMediaCategory string       `json:"shareMediaCategory"`
	Media              []shareMedia `json:"media,omitempty"`
}

type textBlock struct {
	Text string `json:"text"`
}

type shareMedia struct {
	Status string `json:"status"`
	Media  string `json:"media"`
}

type shareResponse struct {
	ID string `json:"id"`
}

func (p *Publisher) createShare(ctx context.Context, cred syndicate.Credential, commentary string, assets []string, hasVideo bool) (string, error) {
	// linkedin rejects empty commentary, so a media-only share carries a
	// single space.
	if strings.TrimSpace(commentary) == "" {
		commentary = " "
	}

	category := "NONE"
	if len(assets) > 0 {
		category = "IMAGE"
		if hasVideo {
			category = "VIDEO"
		}
	}

	content := shareContent{
		ShareCommentary:    textBlock{Text: commentary},
		ShareMediaCategory: category,
	}
	for _, asset := range assets {
		content.Media = append(content.Media, shareMedia{Status: "READY", Media: asset})
	}

	reqBody := shareRequest{
		Author:          cred.AuthorURN,
		LifecycleState:  "PUBLISHED",
		SpecificContent: map[string]shareContent{"com.linkedin.ugc.ShareContent": content},
		Visibility:      map[string]string{"com.linkedin.ugc.MemberNetworkVisibility": "PUBLIC"},
	}

	var parsed shareResponse
	if err := p.postJSON(ctx, cred, "/ugcPosts", reqBody, &parsed); err != nil {
		return "", fmt.Errorf("create share: %w", err)
	}
	if parsed.ID == "" {
		return "", syndicate.UpstreamShapeError{Destination: destinationName, Detail: "share response carried no id"}
	}
	return parsed.ID, nil
}

type errorEnvelope struct {
	Message          string `json:"message"`
	ServiceErrorCode int    `json:"serviceErrorCode"`
	Status           int    `json:"status"`
}

func (p *Publisher) postJSON(ctx context.Context, cred syndicate.Credential, path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+cred.AccessToken)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(restliProtocolHeader, restliProtocolVersion)

	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &syndicate.APIError{
			Destination: destinationName,
			StatusCode:  resp.StatusCode,
			Message:     fmt.Sprintf("POST %s failed", path),
			RetryAfter:  syndicate.ParseRetryAfter(resp.Header),
		}
		var envelope errorEnvelope
		if json.Unmarshal(respBody, &envelope) == nil && envelope.Message != "" {
			apiErr.UpstreamMessage = envelope.Message
		}
		return apiErr
	}

	if out != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, out); err != nil {
			return syndicate.UpstreamShapeError{Destination: destinationName, Detail: err.Error()}
		}
	}
	return nil
}
