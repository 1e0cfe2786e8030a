package instagram

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/blacktop/syndicate/internal/logutil"
	"github.com/blacktop/syndicate/internal/syndicate"
)

const (
	destinationName = "instagram"

	maxImages = 10
)

// PollPolicy bounds the container status loop.
type PollPolicy struct {
	Interval    time.Duration
	MaxAttempts int
}

// DefaultPollPolicy checks every three seconds for up to twenty attempts.
func DefaultPollPolicy() PollPolicy {
	return PollPolicy{Interval: 3 * time.Second, MaxAttempts: 20}
}

// Publisher implements the container publish protocol: media containers are
// created from public URLs, polled until processed, then published. It is the
// only destination whose upload step is asynchronous on the remote side.
type Publisher struct {
	baseURL string
	client  *http.Client
	store   syndicate.ObjectStore
	poll    PollPolicy
}

// New builds the instagram publisher. baseURL points at the Graph API version
// root, e.g. "https://graph.facebook.com/v19.0".
func New(baseURL string, store syndicate.ObjectStore, policy syndicate.RetryPolicy, poll PollPolicy) *Publisher {
	if poll.Interval <= 0 {
		poll = DefaultPollPolicy()
	}
	return &Publisher{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  syndicate.NewHTTPClient(policy),
		store:   store,
		poll:    poll,
	}
}

// Name identifies the destination.
func (p *Publisher) Name() string { return destinationName }

// Capabilities reports the container limits.
func (p *Publisher) Capabilities() syndicate.Capabilities {
	return syndicate.Capabilities{MaxMedia: maxImages, MaxImages: maxImages, MaxVideos: 1, RequiresMedia: true}
}

// Publish creates, waits on, and publishes the media container(s). A post is
// one video or one to ten images, never a mix, and always needs media.
func (p *Publisher) Publish(ctx context.Context, post syndicate.Post, cred syndicate.Credential) syndicate.DestinationResult {
	if cred.AccessToken == "" || cred.AccountID == "" {
		return syndicate.Failed(destinationName, syndicate.ValidationError{
			Destination: destinationName,
			Reason:      "credential needs an access token and an account id",
		})
	}
	if err := checkMediaShape(post.Media); err != nil {
		return syndicate.Failed(destinationName, err)
	}

	media, skipped := syndicate.Normalize(ctx, post.Media, p.store)
	if len(skipped) > 0 {
		logutil.Warnf("instagram: %d media item(s) dropped during normalization", len(skipped))
	}
	if len(media) == 0 {
		return syndicate.Failed(destinationName, syndicate.ValidationError{
			Destination: destinationName,
			Reason:      "no publishable media remained after upload",
		})
	}

	containerID, err := p.createContainers(ctx, cred, post.Content, media)
	if err != nil {
		return syndicate.Failed(destinationName, err)
	}

	if err := p.waitForContainer(ctx, cred, containerID); err != nil {
		return syndicate.Failed(destinationName, err)
	}

	postID, err := p.publishContainer(ctx, cred, containerID)
	if err != nil {
		return syndicate.Failed(destinationName, err)
	}
	return syndicate.Succeeded(destinationName, postID)
}

// checkMediaShape runs before any network call: media is required, kinds
// never mix, and a post is at most one video or ten images.
func checkMediaShape(media []syndicate.MediaItem) error {
	if len(media) == 0 {
		return syndicate.ValidationError{Destination: destinationName, Reason: "instagram posts require media"}
	}
	images, videos := 0, 0
	for _, item := range media {
		if item.Kind == syndicate.KindVideo {
			videos++
		} else {
			images++
		}
	}
	switch {
	case videos > 0 && images > 0:
		return syndicate.ValidationError{Destination: destinationName, Reason: "instagram cannot mix images and video in one post"}
	case videos > 1:
		return syndicate.ValidationError{Destination: destinationName, Reason: "instagram posts carry a single video"}
	case images > maxImages:
		return syndicate.ValidationError{Destination: destinationName, Reason: fmt.Sprintf("instagram carousels carry at most %d images", maxImages)}
	}
	return nil
}

// createContainers stages the media remotely: one container for a single
// item, or one child container per image plus a carousel parent referencing
// them all.
func (p *Publisher) createContainers(ctx context.Context, cred syndicate.Credential, caption string, media []syndicate.MediaItem) (string, error) {
	if len(media) == 1 {
		item := media[0]
		form := url.Values{}
		if item.Kind == syndicate.KindVideo {
			form.Set("media_type", "REELS")
			form.Set("video_url", item.URL)
		} else {
			form.Set("image_url", item.URL)
		}
		if caption != "" {
			form.Set("caption", caption)
		}
		return p.call(ctx, cred, cred.AccountID+"/media", form)
	}

	childIDs := make([]string, 0, len(media))
	for i, item := range media {
		form := url.Values{
			"image_url":        {item.URL},
			"is_carousel_item": {"true"},
		}
		childID, err := p.call(ctx, cred, cred.AccountID+"/media", form)
		if err != nil {
			return "", fmt.Errorf("carousel item %d: %w", i, err)
		}
		childIDs = append(childIDs, childID)
		logutil.Debugf("instagram: carousel child created: id=%s", childID)
	}

	form := url.Values{
		"media_type": {"CAROUSEL"},
		"children":   {strings.Join(childIDs, ",")},
	}
	if caption != "" {
		form.Set("caption", caption)
	}
	return p.call(ctx, cred, cred.AccountID+"/media", form)
}

// containerState is the remote processing state of a staged container.
type containerState string

const (
	stateInProgress containerState = "IN_PROGRESS"
	stateFinished   containerState = "FINISHED"
	statePublished  containerState = "PUBLISHED"
	stateError      containerState = "ERROR"
	stateExpired    containerState = "EXPIRED"
)

// waitForContainer polls the container status on a fixed interval until it is
// ready, errored, or the attempt budget runs out. Exhausting the budget exits
// ready anyway: the publish call may still succeed even when the status
// endpoint was flaky, so a hard failure here would throw away a viable post.
func (p *Publisher) waitForContainer(ctx context.Context, cred syndicate.Credential, containerID string) error {
	for attempt := 1; attempt <= p.poll.MaxAttempts; attempt++ {
		state, err := p.containerStatus(ctx, cred, containerID)
		if err != nil {
			return err
		}
		logutil.Debugf("instagram: container %s state=%s attempt=%d", containerID, state, attempt)

		switch state {
		case stateFinished, statePublished:
			return nil
		case stateError, stateExpired:
			return syndicate.UpstreamShapeError{
				Destination: destinationName,
				Detail:      fmt.Sprintf("container %s processing ended in %s", containerID, state),
			}
		}

		timer := time.NewTimer(p.poll.Interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	logutil.Warnf("instagram: container %s still processing after %d attempts, publishing anyway", containerID, p.poll.MaxAttempts)
	return nil
}

type statusResponse struct {
	StatusCode string `json:"status_code"`
	ID         string `json:"id"`
}

func (p *Publisher) containerStatus(ctx context.Context, cred syndicate.Credential, containerID string) (containerState, error) {
	endpoint := fmt.Sprintf("%s/%s?fields=status_code&access_token=%s", p.baseURL, containerID, url.QueryEscape(cred.AccessToken))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("build status request: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read status response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", graphError(resp, body, "container status check failed")
	}

	var parsed statusResponse
	if err := json.Unmarshal(body, &parsed); err != nil || parsed.StatusCode == "" {
		return "", syndicate.UpstreamShapeError{Destination: destinationName, Detail: "status response carried no status_code"}
	}
	return containerState(parsed.StatusCode), nil
}

func (p *Publisher) publishContainer(ctx context.Context, cred syndicate.Credential, containerID string) (string, error) {
	form := url.Values{"creation_id": {containerID}}
	return p.call(ctx, cred, cred.AccountID+"/media_publish", form)
}

type graphResponse struct {
	ID string `json:"id"`
}

type graphErrorEnvelope struct {
	Error struct {
		Message string `json:"message"`
		Code    int    `json:"code"`
	} `json:"error"`
}

func (p *Publisher) call(ctx context.Context, cred syndicate.Credential, path string, form url.Values) (string, error) {
	form.Set("access_token", cred.AccessToken)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/"+path, strings.NewReader(form.Encode()))
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
		return "", graphError(resp, body, fmt.Sprintf("POST /%s failed", path))
	}

	var parsed graphResponse
	if err := json.Unmarshal(body, &parsed); err != nil || parsed.ID == "" {
		return "", syndicate.UpstreamShapeError{Destination: destinationName, Detail: "response carried no object id"}
	}
	return parsed.ID, nil
}

func graphError(resp *http.Response, body []byte, message string) error {
	apiErr := &syndicate.APIError{
		Destination: destinationName,
		StatusCode:  resp.StatusCode,
		Message:     message,
		RetryAfter:  syndicate.ParseRetryAfter(resp.Header),
	}
	var envelope graphErrorEnvelope
	if json.Unmarshal(body, &envelope) == nil && envelope.Error.Message != "" {
		apiErr.UpstreamMessage = envelope.Error.Message
	}
	return apiErr
}
