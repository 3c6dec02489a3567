package pipeline

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMergeMetadataDecoderValueWinsOverContainerTag(t *testing.T) {
	container := map[string]string{"title": "Container Title", "album": "Container Album"}
	merged := MergeMetadata(container, `{"title":"Decoder Title"}`)

	require.Equal(t, "Decoder Title", merged["title"])
	require.Equal(t, "Container Album", merged["album"])
}

func TestMergeMetadataEmptyDecoderJSONReturnsContainerTagsUnchanged(t *testing.T) {
	container := map[string]string{"title": "Container Title"}
	merged := MergeMetadata(container, "")
	require.Equal(t, container, merged)
}

func TestMergeMetadataMalformedDecoderJSONReturnsContainerTagsUnchanged(t *testing.T) {
	container := map[string]string{"title": "Container Title"}
	merged := MergeMetadata(container, "{not json")
	require.Equal(t, container, merged)
}
