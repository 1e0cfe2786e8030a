package syndicate

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubPublisher struct {
	name    string
	delay   time.Duration
	fail    error
	invoked atomic.Int32
}

func (s *stubPublisher) Name() string { return s.name }

func (s *stubPublisher) Capabilities() Capabilities { return Capabilities{MaxMedia: 1} }

func (s *stubPublisher) Publish(ctx context.Context, post Post, cred Credential) DestinationResult {
	s.invoked.Add(1)
	if s.delay > 0 {
		select {
		case <-ctx.Done():
			return Failed(s.name, ctx.Err())
		case <-time.After(s.delay):
		}
	}
	if s.fail != nil {
		return Failed(s.name, s.fail)
	}
	return Succeeded(s.name, s.name+"-post-1")
}

func creds(destinations ...string) map[string]Credential {
	m := make(map[string]Credential, len(destinations))
	for _, d := range destinations {
		m[d] = Credential{AccessToken: "token"}
	}
	return m
}

func TestPublishManyRejectsEmptyDestinations(t *testing.T) {
	stub := &stubPublisher{name: "alpha"}
	coordinator := NewCoordinator([]Publisher{stub})

	_, err := coordinator.PublishMany(context.Background(), PublishRequest{
		Post:        Post{Content: "hello"},
		Credentials: creds("alpha"),
	})
	require.Error(t, err)
	assert.Zero(t, stub.invoked.Load(), "no adapter may run for a malformed request")
}

func TestPublishManyRejectsEmptyPost(t *testing.T) {
	stub := &stubPublisher{name: "alpha"}
	coordinator := NewCoordinator([]Publisher{stub})

	_, err := coordinator.PublishMany(context.Background(), PublishRequest{
		Destinations: []string{"alpha"},
		Credentials:  creds("alpha"),
	})
	require.Error(t, err)
	assert.Zero(t, stub.invoked.Load())
}

func TestPublishManyPreservesRequestOrder(t *testing.T) {
	// the slowest destination comes first; order must still match the request
	slow := &stubPublisher{name: "slow", delay: 50 * time.Millisecond}
	fast := &stubPublisher{name: "fast"}
	coordinator := NewCoordinator([]Publisher{slow, fast})

	report, err := coordinator.PublishMany(context.Background(), PublishRequest{
		Post:         Post{Content: "hello"},
		Destinations: []string{"slow", "fast"},
		Credentials:  creds("slow", "fast"),
	})
	require.NoError(t, err)
	require.Len(t, report.Results, 2)
	assert.Equal(t, "slow", report.Results[0].Destination)
	assert.Equal(t, "fast", report.Results[1].Destination)
	assert.Equal(t, 2, report.SuccessCount)
}

func TestPublishManyIsolatesFailures(t *testing.T) {
	good := &stubPublisher{name: "good"}
	bad := &stubPublisher{name: "bad", fail: &APIError{StatusCode: 500, UpstreamMessage: "exploded"}}
	coordinator := NewCoordinator([]Publisher{good, bad})

	report, err := coordinator.PublishMany(context.Background(), PublishRequest{
		Post:         Post{Content: "hello"},
		Destinations: []string{"bad", "good"},
		Credentials:  creds("bad", "good"),
	})
	require.NoError(t, err)
	require.Len(t, report.Results, 2)

	assert.False(t, report.Results[0].Success)
	assert.Equal(t, ErrUpstreamInvalid, report.Results[0].ErrorKind)
	assert.True(t, report.Results[1].Success)
	assert.Equal(t, 1, report.SuccessCount)
	assert.Equal(t, 1, report.FailureCount)
}

func TestPublishManyUnknownDestinationFillsSlot(t *testing.T) {
	stub := &stubPublisher{name: "alpha"}
	coordinator := NewCoordinator([]Publisher{stub})

	report, err := coordinator.PublishMany(context.Background(), PublishRequest{
		Post:         Post{Content: "hello"},
		Destinations: []string{"alpha", "nope"},
		Credentials:  creds("alpha", "nope"),
	})
	require.NoError(t, err)
	require.Len(t, report.Results, 2)
	assert.True(t, report.Results[0].Success)
	assert.Equal(t, ErrValidation, report.Results[1].ErrorKind)
	assert.Equal(t, "nope", report.Results[1].Destination)
}

func TestPublishManyMissingCredential(t *testing.T) {
	stub := &stubPublisher{name: "alpha"}
	coordinator := NewCoordinator([]Publisher{stub})

	report, err := coordinator.PublishMany(context.Background(), PublishRequest{
		Post:         Post{Content: "hello"},
		Destinations: []string{"alpha"},
		Credentials:  creds("other"),
	})
	require.NoError(t, err)
	require.Len(t, report.Results, 1)
	assert.Equal(t, ErrValidation, report.Results[0].ErrorKind)
	assert.Zero(t, stub.invoked.Load())
}

func TestPublishManyCollapsesDuplicates(t *testing.T) {
	stub := &stubPublisher{name: "alpha"}
	coordinator := NewCoordinator([]Publisher{stub})

	report, err := coordinator.PublishMany(context.Background(), PublishRequest{
		Post:         Post{Content: "hello"},
		Destinations: []string{"alpha", "alpha", "alpha"},
		Credentials:  creds("alpha"),
	})
	require.NoError(t, err)
	assert.Len(t, report.Results, 1)
	assert.Equal(t, int32(1), stub.invoked.Load())
}

func TestPublishOneUnknownDestination(t *testing.T) {
	coordinator := NewCoordinator(nil)
	res := coordinator.PublishOne(context.Background(), "ghost", Post{Content: "hi"}, Credential{})
	assert.False(t, res.Success)
	assert.Equal(t, ErrValidation, res.ErrorKind)
}

func TestPublishOneAppliesTimeout(t *testing.T) {
	slow := &stubPublisher{name: "slow", delay: time.Second}
	coordinator := NewCoordinator([]Publisher{slow}, WithPublishTimeout(20*time.Millisecond))

	res := coordinator.PublishOne(context.Background(), "slow", Post{Content: "hi"}, Credential{})
	assert.False(t, res.Success)
	assert.Equal(t, ErrTimeout, res.ErrorKind)
}

func TestCapabilitiesTable(t *testing.T) {
	coordinator := NewCoordinator([]Publisher{&stubPublisher{name: "alpha"}, &stubPublisher{name: "beta"}})
	caps := coordinator.Capabilities()
	require.Len(t, caps, 2)
	assert.Equal(t, 1, caps["alpha"].MaxMedia)
	assert.Equal(t, []string{"alpha", "beta"}, coordinator.Destinations())
}
