package facebook

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/blacktop/syndicate/internal/syndicate"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testPolicy = syndicate.RetryPolicy{MaxRetries: 0, Wait: 0, Timeout: 5 * time.Second}

func testCred() syndicate.Credential {
	return syndicate.Credential{AccessToken: "token", PageID: "page42"}
}

func imageURL(name string) syndicate.MediaItem {
	return syndicate.MediaItem{URL: "https://cdn.example.com/" + name, Kind: syndicate.KindImage}
}

func TestPublishTextOnly(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/page42/feed", r.URL.Path)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "hello", r.PostForm.Get("message"))
		assert.Equal(t, "token", r.PostForm.Get("access_token"))
		json.NewEncoder(w).Encode(map[string]string{"id": "page42_123"})
	}))
	defer server.Close()

	publisher := New(server.URL, nil, testPolicy)
	res := publisher.Publish(context.Background(), syndicate.Post{Content: "hello"}, testCred())
	require.True(t, res.Success, res.Message)
	assert.Equal(t, "page42_123", res.PostID)
}

func TestPublishSinglePhotoCarriesCaption(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/page42/photos", r.URL.Path)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "https://cdn.example.com/a.png", r.PostForm.Get("url"))
		assert.Equal(t, "look", r.PostForm.Get("caption"))
		json.NewEncoder(w).Encode(map[string]string{"id": "ph1", "post_id": "page42_ph1"})
	}))
	defer server.Close()

	publisher := New(server.URL, nil, testPolicy)
	res := publisher.Publish(context.Background(), syndicate.Post{
		Content: "look",
		Media:   []syndicate.MediaItem{imageURL("a.png")},
	}, testCred())
	require.True(t, res.Success, res.Message)
	assert.Equal(t, "page42_ph1", res.PostID)
}

func TestPublishSingleVideoUsesVideosEndpoint(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/page42/videos", r.URL.Path)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "https://cdn.example.com/clip.mp4", r.PostForm.Get("file_url"))
		json.NewEncoder(w).Encode(map[string]string{"id": "vid7"})
	}))
	defer server.Close()

	publisher := New(server.URL, nil, testPolicy)
	res := publisher.Publish(context.Background(), syndicate.Post{
		Content: "watch",
		Media:   []syndicate.MediaItem{{URL: "https://cdn.example.com/clip.mp4", Kind: syndicate.KindVideo}},
	}, testCred())
	require.True(t, res.Success, res.Message)
	assert.Equal(t, "vid7", res.PostID)
}

func TestPublishAlbumSkipsFailedPhoto(t *testing.T) {
	var photoCalls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		switch r.URL.Path {
		case "/page42/photos":
			n := photoCalls.Add(1)
			assert.Equal(t, "false", r.PostForm.Get("published"))
			if n == 2 {
				w.WriteHeader(http.StatusInternalServerError)
				json.NewEncoder(w).Encode(map[string]map[string]string{"error": {"message": "transient"}})
				return
			}
			json.NewEncoder(w).Encode(map[string]string{"id": fmt.Sprintf("ph%d", n)})
		case "/page42/feed":
			var fbids []string
			for key, values := range r.PostForm {
				if strings.HasPrefix(key, "attached_media") {
					fbids = append(fbids, values[0])
				}
			}
			assert.Len(t, fbids, 2, "the failed photo must be skipped, not fatal")
			json.NewEncoder(w).Encode(map[string]string{"id": "album1"})
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer server.Close()

	publisher := New(server.URL, nil, testPolicy)
	res := publisher.Publish(context.Background(), syndicate.Post{
		Content: "album",
		Media:   []syndicate.MediaItem{imageURL("a.png"), imageURL("b.png"), imageURL("c.png")},
	}, testCred())
	require.True(t, res.Success, res.Message)
	assert.Equal(t, "album1", res.PostID)
}

func TestPublishRejectsMultipleVideosBeforeNetwork(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer server.Close()

	publisher := New(server.URL, nil, testPolicy)
	res := publisher.Publish(context.Background(), syndicate.Post{
		Content: "two clips",
		Media: []syndicate.MediaItem{
			{URL: "https://cdn.example.com/a.mp4", Kind: syndicate.KindVideo},
			{URL: "https://cdn.example.com/b.mp4", Kind: syndicate.KindVideo},
		},
	}, testCred())
	assert.False(t, res.Success)
	assert.Equal(t, syndicate.ErrValidation, res.ErrorKind)
	assert.Zero(t, calls.Load())
}

func TestPublishMapsGraphErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(map[string]map[string]string{"error": {"message": "Error validating access token"}})
	}))
	defer server.Close()

	publisher := New(server.URL, nil, testPolicy)
	res := publisher.Publish(context.Background(), syndicate.Post{Content: "hello"}, testCred())
	assert.False(t, res.Success)
	assert.Equal(t, syndicate.ErrAuth, res.ErrorKind)
	assert.Equal(t, "Error validating access token", res.Message)
}

func TestPublishRateLimitPhrasingKeepsKind(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "60")
		w.WriteHeader(http.StatusTooManyRequests)
		json.NewEncoder(w).Encode(map[string]map[string]string{"error": {"message": "too many calls"}})
	}))
	defer server.Close()

	publisher := New(server.URL, nil, testPolicy)
	res := publisher.Publish(context.Background(), syndicate.Post{Content: "hello"}, testCred())
	assert.False(t, res.Success)
	assert.Equal(t, syndicate.ErrRateLimit, res.ErrorKind)
	assert.Contains(t, res.Message, "rate limiting")
	assert.Equal(t, time.Minute, res.RetryAfter)
}
