package syndicate_test

import (
	"context"
	"testing"
	"time"

	"github.com/blacktop/syndicate/internal/syndicate"
	"github.com/blacktop/syndicate/internal/syndicate/instagram"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type textPublisher struct{ name string }

func (p textPublisher) Name() string { return p.name }

func (p textPublisher) Capabilities() syndicate.Capabilities {
	return syndicate.Capabilities{MaxMedia: 4}
}
func (p textPublisher) Publish(_ context.Context, post syndicate.Post, _ syndicate.Credential) syndicate.DestinationResult {
	return syndicate.Succeeded(p.name, "tp-1")
}

// A text-only post fanned out to a text-friendly destination and instagram:
// the first succeeds, instagram fails validation, and the batch still
// reports both slots in request order.
func TestTextOnlyFanOutAcrossStrictness(t *testing.T) {
	ig := instagram.New("http://unreachable.invalid", nil,
		syndicate.RetryPolicy{MaxRetries: 0, Timeout: time.Second},
		instagram.PollPolicy{Interval: time.Millisecond, MaxAttempts: 1})

	coordinator := syndicate.NewCoordinator([]syndicate.Publisher{textPublisher{name: "micro"}, ig})

	report, err := coordinator.PublishMany(context.Background(), syndicate.PublishRequest{
		Post:         syndicate.Post{Content: "hello"},
		Destinations: []string{"micro", "instagram"},
		Credentials: map[string]syndicate.Credential{
			"micro":     {AccessToken: "t"},
			"instagram": {AccessToken: "t", AccountID: "ig1"},
		},
	})
	require.NoError(t, err)
	require.Len(t, report.Results, 2)

	assert.Equal(t, "micro", report.Results[0].Destination)
	assert.True(t, report.Results[0].Success)

	assert.Equal(t, "instagram", report.Results[1].Destination)
	assert.False(t, report.Results[1].Success)
	assert.Equal(t, syndicate.ErrValidation, report.Results[1].ErrorKind)
	assert.Contains(t, report.Results[1].Message, "media")

	assert.Equal(t, 1, report.SuccessCount)
	assert.Equal(t, 1, report.FailureCount)
}
