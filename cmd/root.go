/*
Copyright © 2025 blacktop

Permission is hereby granted, free of charge, to any person obtaining a copy
of this software and associated documentation files (the "Software"), to deal
in the Software without restriction, including without limitation the rights
to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
copies of the Software, and to permit persons to whom the Software is
furnished to do so, subject to the following conditions:

The above copyright notice and this permission notice shall be included in
all copies or substantial portions of the Software.

THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
THE SOFTWARE.
*/
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/blacktop/syndicate/internal/config"
	"github.com/blacktop/syndicate/internal/logutil"
	"github.com/blacktop/syndicate/internal/storage"
	"github.com/blacktop/syndicate/internal/syndicate"
	"github.com/blacktop/syndicate/internal/syndicate/bluesky"
	"github.com/blacktop/syndicate/internal/syndicate/facebook"
	"github.com/blacktop/syndicate/internal/syndicate/instagram"
	"github.com/blacktop/syndicate/internal/syndicate/linkedin"
	"github.com/blacktop/syndicate/internal/syndicate/mastodon"
	"github.com/blacktop/syndicate/internal/syndicate/twitter"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var (
	messageFlag string
	mediaFlags  []string
	altText     string
	targetsFlag []string
	dryRun      bool
	verbose     bool
)

var allTargets = []string{"bluesky", "facebook", "instagram", "linkedin", "mastodon", "twitter"}

// Execute runs the root command.
func Execute() error {
	return newRootCommand().Execute()
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "syndicate [message]",
		Short: "Publish one post to several social networks",
		Long: "syndicate publishes a single post (text plus optional media) to Twitter/X, " +
			"Facebook pages, Instagram, LinkedIn, Mastodon, and Bluesky in one shot, " +
			"reporting per-destination success independently.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runRoot,
		Example: `  syndicate --message "hello world" --media ./shot.png
  syndicate "Ship it!" --target twitter --target mastodon
  syndicate -m "new drop" --media ./clip.mp4 --target instagram
  echo "Release shipped" | syndicate --target all`,
	}

	cmd.PersistentFlags().BoolVarP(&verbose, "verbose", "V", false, "Enable verbose logging")
	cmd.Flags().StringVarP(&messageFlag, "message", "m", "", "Message text to post")
	cmd.Flags().StringSliceVar(&mediaFlags, "media", nil, "Image/video files or URLs to attach (repeatable)")
	cmd.Flags().StringVar(&altText, "alt-text", "", "Alternative text describing the media")
	cmd.Flags().StringSliceVar(&targetsFlag, "target", allTargets, "Destinations to post to, or all")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Print actions without posting")
	cmd.Flags().SortFlags = false

	cmd.AddCommand(newLimitsCommand())

	return cmd
}

func runRoot(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	logutil.SetVerbose(verbose)

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if cfg.Verbose {
		logutil.SetVerbose(true)
	}

	message, err := resolveMessage(cmd, args)
	if err != nil {
		return err
	}

	destinations, err := normalizeTargets(targetsFlag)
	if err != nil {
		return err
	}

	media, err := resolveMedia(mediaFlags, altText)
	if err != nil {
		return err
	}

	post := syndicate.Post{Content: message, Media: media}
	if post.Empty() {
		return errors.New("nothing to post: provide a message or media")
	}

	out := cmd.OutOrStdout()
	if dryRun {
		for _, destination := range destinations {
			fmt.Fprintf(out, "[dry-run] would post to %s: %q (%d media)\n", destination, post.Content, len(post.Media))
		}
		return nil
	}

	coordinator, err := buildCoordinator(ctx, cfg)
	if err != nil {
		return err
	}

	report, err := coordinator.PublishMany(ctx, syndicate.PublishRequest{
		Post:         post,
		Destinations: destinations,
		Credentials:  credentialsFromConfig(cfg),
	})
	if err != nil {
		return err
	}

	printReport(out, report)
	if report.SuccessCount == 0 {
		return errors.New("every destination failed")
	}
	return nil
}

func resolveMessage(cmd *cobra.Command, args []string) (string, error) {
	var message string

	if messageFlag != "" {
		message = messageFlag
	}

	if len(args) > 0 {
		if message != "" {
			return "", errors.New("provide the message either as an argument or with --message, not both")
		}
		message = strings.Join(args, " ")
	}

	if message != "" {
		return strings.TrimSpace(message), nil
	}

	stdin := cmd.InOrStdin()
	if file, ok := stdin.(*os.File); ok && !term.IsTerminal(int(file.Fd())) {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		message = strings.TrimSpace(string(data))
	}

	return message, nil
}

func normalizeTargets(values []string) ([]string, error) {
	supported := make(map[string]struct{}, len(allTargets))
	for _, t := range allTargets {
		supported[t] = struct{}{}
	}

	result := make([]string, 0, len(values))
	seen := map[string]struct{}{}
	for _, raw := range values {
		raw = strings.TrimSpace(strings.ToLower(raw))
		if raw == "" {
			continue
		}
		if raw == "all" {
			return append([]string(nil), allTargets...), nil
		}
		if _, ok := supported[raw]; !ok {
			return nil, fmt.Errorf("unsupported target %q", raw)
		}
		if _, ok := seen[raw]; ok {
			continue
		}
		seen[raw] = struct{}{}
		result = append(result, raw)
	}

	if len(result) == 0 {
		return nil, errors.New("no targets selected")
	}
	return result, nil
}

func resolveMedia(values []string, alt string) ([]syndicate.MediaItem, error) {
	items := make([]syndicate.MediaItem, 0, len(values))
	for _, value := range values {
		value = strings.TrimSpace(value)
		if value == "" {
			continue
		}

		var (
			item syndicate.MediaItem
			err  error
		)
		if strings.HasPrefix(value, "http://") || strings.HasPrefix(value, "https://") {
			item, err = syndicate.NewMediaFromURL(value)
		} else {
			var data []byte
			data, err = os.ReadFile(value)
			if err != nil {
				if errors.Is(err, os.ErrNotExist) {
					return nil, fmt.Errorf("media %q not found", value)
				}
				return nil, fmt.Errorf("read media: %w", err)
			}
			item, err = syndicate.NewMediaFromBytes(data, http.DetectContentType(data))
		}
		if err != nil {
			return nil, err
		}
		item.AltText = alt
		items = append(items, item)
	}
	return items, nil
}

func buildCoordinator(ctx context.Context, cfg *config.Config) (*syndicate.Coordinator, error) {
	var store syndicate.ObjectStore
	if cfg.MinIO.Endpoint != "" {
		s, err := storage.New(ctx, storage.Options{
			Endpoint:        cfg.MinIO.Endpoint,
			AccessKeyID:     cfg.MinIO.AccessKeyID,
			SecretAccessKey: cfg.MinIO.SecretAccessKey,
			Bucket:          cfg.MinIO.Bucket,
			UseSSL:          cfg.MinIO.UseSSL,
			PublicBaseURL:   cfg.MinIO.PublicBaseURL,
		})
		if err != nil {
			return nil, err
		}
		store = s
	}
	return syndicate.NewCoordinator(buildPublishers(cfg, store)), nil
}

func buildPublishers(cfg *config.Config, store syndicate.ObjectStore) []syndicate.Publisher {
	metadata := syndicate.RetryPolicy{
		MaxRetries: cfg.HTTP.MaxRetries,
		Wait:       cfg.HTTP.RetryWait,
		Timeout:    cfg.HTTP.Timeout,
	}
	media := syndicate.RetryPolicy{
		MaxRetries: cfg.HTTP.MaxRetries,
		Wait:       cfg.HTTP.RetryWait,
		Timeout:    cfg.HTTP.MediaTimeout,
	}

	return []syndicate.Publisher{
		twitter.New(media),
		facebook.New(cfg.Endpoints.GraphBaseURL, store, metadata),
		linkedin.New(cfg.Endpoints.LinkedInBaseURL, metadata, media),
		instagram.New(cfg.Endpoints.GraphBaseURL, store, metadata, instagram.PollPolicy{
			Interval:    cfg.Instagram.PollInterval,
			MaxAttempts: cfg.Instagram.PollMaxAttempts,
		}),
		mastodon.New(metadata),
		bluesky.New(media),
	}
}

func credentialsFromConfig(cfg *config.Config) map[string]syndicate.Credential {
	return map[string]syndicate.Credential{
		"twitter": {
			ConsumerKey:    cfg.Twitter.ConsumerKey,
			ConsumerSecret: cfg.Twitter.ConsumerSecret,
			AccessToken:    cfg.Twitter.AccessToken,
			AccessSecret:   cfg.Twitter.AccessSecret,
		},
		"facebook": {
			AccessToken: cfg.Facebook.AccessToken,
			PageID:      cfg.Facebook.PageID,
		},
		"linkedin": {
			AccessToken: cfg.LinkedIn.AccessToken,
			AuthorURN:   cfg.LinkedIn.AuthorURN,
		},
		"instagram": {
			AccessToken: cfg.IGUser.AccessToken,
			AccountID:   cfg.IGUser.AccountID,
		},
		"mastodon": {
			Server:      cfg.Mastodon.Server,
			AccessToken: cfg.Mastodon.AccessToken,
		},
		"bluesky": {
			Handle:      cfg.Bluesky.Handle,
			AppPassword: cfg.Bluesky.AppPassword,
			Server:      cfg.Bluesky.PDSURL,
		},
	}
}

func printReport(out io.Writer, report syndicate.BatchReport) {
	for _, res := range report.Results {
		if res.Success {
			fmt.Fprintf(out, "posted to %s (id=%s)\n", res.Destination, res.PostID)
			continue
		}
		if res.RetryAfter > 0 {
			fmt.Fprintf(out, "failed on %s [%s]: %s (retry after %s)\n", res.Destination, res.ErrorKind, res.Message, res.RetryAfter)
			continue
		}
		fmt.Fprintf(out, "failed on %s [%s]: %s\n", res.Destination, res.ErrorKind, res.Message)
	}
	fmt.Fprintf(out, "%d succeeded, %d failed\n", report.SuccessCount, report.FailureCount)
}
