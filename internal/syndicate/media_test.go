package syndicate

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	calls   int
	failOn  map[int]bool
	failAll bool
}

func (s *fakeStore) Upload(_ context.Context, data []byte, mimeType string, kind MediaKind) (string, error) {
	s.calls++
	if s.failAll || s.failOn[s.calls] {
		return "", errors.New("bucket unavailable")
	}
	return fmt.Sprintf("https://cdn.example.com/%s/%d.bin", kind, s.calls), nil
}

func TestKindFromMime(t *testing.T) {
	kind, err := KindFromMime("image/png")
	require.NoError(t, err)
	assert.Equal(t, KindImage, kind)

	kind, err = KindFromMime("video/mp4")
	require.NoError(t, err)
	assert.Equal(t, KindVideo, kind)

	_, err = KindFromMime("application/pdf")
	assert.Error(t, err)
}

func TestKindFromURL(t *testing.T) {
	kind, err := KindFromURL("https://cdn.example.com/a/b.JPG?x=1")
	require.NoError(t, err)
	assert.Equal(t, KindImage, kind)

	kind, err = KindFromURL("https://cdn.example.com/clip.mp4")
	require.NoError(t, err)
	assert.Equal(t, KindVideo, kind)

	_, err = KindFromURL("https://cdn.example.com/file.txt")
	assert.Error(t, err)
}

func TestMediaConstructors(t *testing.T) {
	item, err := NewMediaFromBytes([]byte{0x1}, "image/jpeg")
	require.NoError(t, err)
	assert.Equal(t, KindImage, item.Kind)
	assert.False(t, item.Remote())

	item, err = NewMediaFromURL("https://cdn.example.com/clip.mov")
	require.NoError(t, err)
	assert.Equal(t, KindVideo, item.Kind)
	assert.True(t, item.Remote())

	_, err = NewMediaFromBytes(nil, "image/png")
	assert.Error(t, err)
	_, err = NewMediaFromURL("   ")
	assert.Error(t, err)
}

func TestNormalizePassesThroughRemoteItems(t *testing.T) {
	store := &fakeStore{}
	items := []MediaItem{{URL: "https://cdn.example.com/a.png", Kind: KindImage}}

	out, skipped := Normalize(context.Background(), items, store)
	require.Len(t, out, 1)
	assert.Empty(t, skipped)
	assert.Zero(t, store.calls, "remote items must not hit the store")
	assert.Equal(t, items[0].URL, out[0].URL)
}

func TestNormalizeDropsFailedUploads(t *testing.T) {
	store := &fakeStore{failOn: map[int]bool{2: true}}
	items := []MediaItem{
		{Data: []byte{0x1}, MimeType: "image/png", Kind: KindImage},
		{Data: []byte{0x2}, MimeType: "image/png", Kind: KindImage},
		{Data: []byte{0x3}, MimeType: "image/png", Kind: KindImage},
	}

	out, skipped := Normalize(context.Background(), items, store)
	require.Len(t, out, 2)
	require.Len(t, skipped, 1)
	assert.Equal(t, 1, skipped[0].Index)
	for _, item := range out {
		assert.True(t, item.Remote())
	}
}

func TestNormalizeAllFailuresYieldsEmpty(t *testing.T) {
	store := &fakeStore{failAll: true}
	items := []MediaItem{
		{Data: []byte{0x1}, MimeType: "image/png", Kind: KindImage},
		{Data: []byte{0x2}, MimeType: "video/mp4", Kind: KindVideo},
	}

	out, skipped := Normalize(context.Background(), items, store)
	assert.Empty(t, out)
	assert.Len(t, skipped, 2)
}

func TestNormalizeWithoutStoreSkipsBytesItems(t *testing.T) {
	items := []MediaItem{
		{Data: []byte{0x1}, MimeType: "image/png", Kind: KindImage},
		{URL: "https://cdn.example.com/a.png", Kind: KindImage},
	}

	out, skipped := Normalize(context.Background(), items, nil)
	require.Len(t, out, 1)
	assert.Len(t, skipped, 1)
}

func TestFetchBytes(t *testing.T) {
	payload := []byte("fake-png-bytes")
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		w.Write(payload)
	}))
	defer server.Close()

	data, mimeType, err := FetchBytes(context.Background(), server.Client(), MediaItem{URL: server.URL + "/a.png", Kind: KindImage})
	require.NoError(t, err)
	assert.Equal(t, payload, data)
	assert.Equal(t, "image/png", mimeType)

	// bytes-backed items pass through untouched
	local := MediaItem{Data: []byte{0x9}, MimeType: "image/gif", Kind: KindImage}
	data, mimeType, err = FetchBytes(context.Background(), server.Client(), local)
	require.NoError(t, err)
	assert.Equal(t, local.Data, data)
	assert.Equal(t, "image/gif", mimeType)
}

func TestReadAllLimit(t *testing.T) {
	data, err := readAllLimit(bytes.NewReader([]byte("abcd")), 4)
	require.NoError(t, err)
	assert.Equal(t, []byte("abcd"), data)

	_, err = readAllLimit(bytes.NewReader([]byte("abcde")), 4)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cap")
}

func TestFetchBytesRejectsBadStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer server.Close()

	_, _, err := FetchBytes(context.Background(), server.Client(), MediaItem{URL: server.URL + "/missing.png", Kind: KindImage})
	assert.Error(t, err)
}
