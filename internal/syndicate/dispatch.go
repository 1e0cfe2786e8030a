package syndicate

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/blacktop/syndicate/internal/logutil"
	"github.com/go-playground/validator/v10"
	"golang.org/x/sync/errgroup"
)

// Coordinator fans one publish request out to the registered destinations and
// aggregates per-destination outcomes. It holds no per-request state.
type Coordinator struct {
	publishers map[string]Publisher
	validate   *validator.Validate
	timeout    time.Duration
}

// CoordinatorOption tweaks Coordinator construction.
type CoordinatorOption func(*Coordinator)

// WithPublishTimeout bounds each destination's publish attempt. Zero means
// no coordinator-imposed deadline beyond the caller's context.
func WithPublishTimeout(d time.Duration) CoordinatorOption {
	return func(c *Coordinator) { c.timeout = d }
}

// NewCoordinator registers the given publishers by name.
func NewCoordinator(publishers []Publisher, opts ...CoordinatorOption) *Coordinator {
	c := &Coordinator{
		publishers: make(map[string]Publisher, len(publishers)),
		validate:   validator.New(),
	}
	for _, p := range publishers {
		c.publishers[p.Name()] = p
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Destinations returns the registered destination names, sorted.
func (c *Coordinator) Destinations() []string {
	names := make([]string, 0, len(c.publishers))
	for name := range c.publishers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Capabilities returns the static limits table for every registered
// destination.
func (c *Coordinator) Capabilities() map[string]Capabilities {
	caps := make(map[string]Capabilities, len(c.publishers))
	for name, p := range c.publishers {
		caps[name] = p.Capabilities()
	}
	return caps
}

// PublishOne publishes to a single destination. Unknown destinations come
// back as a validation-kind failure, mirroring the batch path.
func (c *Coordinator) PublishOne(ctx context.Context, destination string, post Post, cred Credential) DestinationResult {
	publisher, ok := c.publishers[destination]
	if !ok {
		return Failed(destination, ValidationError{
			Destination: destination,
			Reason:      fmt.Sprintf("unknown destination %q", destination),
		})
	}
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	return publisher.Publish(ctx, post, cred)
}

// PublishMany fans the request out to every destination concurrently and
// joins on all of them. Results keep the request's destination order no
// matter which adapter finishes first. The only batch-level failure is a
// malformed request; individual destination failures land in their slot.
func (c *Coordinator) PublishMany(ctx context.Context, req PublishRequest) (BatchReport, error) {
	if err := c.validateRequest(req); err != nil {
		return BatchReport{}, err
	}

	destinations := dedupe(req.Destinations)
	results := make([]DestinationResult, len(destinations))

	g, gctx := errgroup.WithContext(ctx)
	for i, destination := range destinations {
		g.Go(func() error {
			cred, ok := req.Credentials[destination]
			if !ok {
				results[i] = Failed(destination, ValidationError{
					Destination: destination,
					Reason:      fmt.Sprintf("no credential supplied for %q", destination),
				})
				return nil
			}
			dlog := logutil.With("destination", destination)
			dlog.Debug("dispatching")
			results[i] = c.PublishOne(gctx, destination, req.Post, cred)
			if res := results[i]; !res.Success {
				dlog.Warn("publish failed", "kind", res.ErrorKind, "message", res.Message)
			}
			return nil
		})
	}
	// Adapters never return errors, so the join cannot fail.
	_ = g.Wait()

	report := BatchReport{Results: results}
	for _, res := range results {
		if res.Success {
			report.SuccessCount++
		} else {
			report.FailureCount++
		}
	}
	logutil.Infof("batch complete: %d ok, %d failed", report.SuccessCount, report.FailureCount)
	return report, nil
}

func (c *Coordinator) validateRequest(req PublishRequest) error {
	if err := c.validate.Struct(req); err != nil {
		return fmt.Errorf("invalid publish request: %w", err)
	}
	if req.Post.Empty() {
		return errors.New("invalid publish request: post needs text or media")
	}
	return nil
}

func dedupe(destinations []string) []string {
	seen := make(map[string]struct{}, len(destinations))
	out := make([]string, 0, len(destinations))
	for _, d := range destinations {
		if _, ok := seen[d]; ok {
			continue
		}
		seen[d] = struct{}{}
		out = append(out, d)
	}
	return out
}
