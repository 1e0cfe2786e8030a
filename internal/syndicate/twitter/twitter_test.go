package twitter

import (
	"context"
	"encoding/json"
	"io"
	"testing"

	"github.com/blacktop/syndicate/internal/syndicate"
	uploadtypes "github.com/michimani/gotwi/media/upload/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func images(n int) []syndicate.MediaItem {
	items := make([]syndicate.MediaItem, n)
	for i := range items {
		items[i] = syndicate.MediaItem{Data: []byte{byte(i + 1)}, MimeType: "image/png", Kind: syndicate.KindImage}
	}
	return items
}

func TestSelectMediaTruncatesToFourImages(t *testing.T) {
	selected, skipped := selectMedia(images(5))
	assert.Len(t, selected, 4)
	require.Len(t, skipped, 1)
	assert.Equal(t, 4, skipped[0].Index)
}

func TestSelectMediaVideoFirstKeepsOnlyTheVideo(t *testing.T) {
	items := append([]syndicate.MediaItem{{Data: []byte{0xA}, MimeType: "video/mp4", Kind: syndicate.KindVideo}}, images(2)...)
	selected, skipped := selectMedia(items)
	require.Len(t, selected, 1)
	assert.Equal(t, syndicate.KindVideo, selected[0].Kind)
	assert.Len(t, skipped, 2)
}

func TestSelectMediaImagesFirstSkipsVideos(t *testing.T) {
	items := images(2)
	items = append(items, syndicate.MediaItem{Data: []byte{0xB}, MimeType: "video/mp4", Kind: syndicate.KindVideo})
	selected, skipped := selectMedia(items)
	require.Len(t, selected, 2)
	for _, item := range selected {
		assert.Equal(t, syndicate.KindImage, item.Kind)
	}
	require.Len(t, skipped, 1)
	assert.Equal(t, 2, skipped[0].Index)
}

func TestSelectMediaEmpty(t *testing.T) {
	selected, skipped := selectMedia(nil)
	assert.Empty(t, selected)
	assert.Empty(t, skipped)
}

func TestResolveMediaType(t *testing.T) {
	mt, category, err := resolveMediaType("image/jpeg", syndicate.KindImage)
	require.NoError(t, err)
	assert.Equal(t, uploadtypes.MediaTypeJPEG, mt)
	assert.Equal(t, uploadtypes.MediaCategoryTweetImage, category)

	mt, category, err = resolveMediaType("video/mp4", syndicate.KindVideo)
	require.NoError(t, err)
	assert.Equal(t, "video/mp4", string(mt))
	assert.Equal(t, "tweet_video", string(category))

	_, _, err = resolveMediaType("application/zip", syndicate.KindImage)
	assert.Error(t, err)
}

func TestAltTextParamsBody(t *testing.T) {
	params := &altTextParams{mediaID: "m-42", altText: "a red bicycle leaning on a wall"}
	body, err := params.Body()
	require.NoError(t, err)

	raw, err := io.ReadAll(body)
	require.NoError(t, err)

	var got struct {
		MediaID string `json:"media_id"`
		AltText struct {
			Text string `json:"text"`
		} `json:"alt_text"`
	}
	require.NoError(t, json.Unmarshal(raw, &got))
	assert.Equal(t, "m-42", got.MediaID)
	assert.Equal(t, "a red bicycle leaning on a wall", got.AltText.Text)

	params.SetAccessToken("tok")
	assert.Equal(t, "tok", params.AccessToken())
	assert.Equal(t, metadataEndpoint, params.ResolveEndpoint(metadataEndpoint))
	assert.Empty(t, params.ParameterMap())
}

func TestPublishRejectsIncompleteCredential(t *testing.T) {
	publisher := New(syndicate.DefaultRetryPolicy())
	res := publisher.Publish(context.Background(), syndicate.Post{Content: "hi"}, syndicate.Credential{AccessToken: "only-token"})
	assert.False(t, res.Success)
	assert.Equal(t, syndicate.ErrValidation, res.ErrorKind)
}
