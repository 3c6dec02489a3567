package pipeline

import "encoding/json"

// MergeMetadata overlays the decoder-reported metadata (spec 3's optional
// get_metadata_json_utf8 capability) onto the container's own file-level tags: decoder
// values win per-key when present, absent keys keep the container's tag. A malformed or
// empty decoderMetadataJSON leaves containerTags untouched.
func MergeMetadata(containerTags map[string]string, decoderMetadataJSON string) map[string]string {
	merged := make(map[string]string, len(containerTags))
	for k, v := range containerTags {
		merged[k] = v
	}
	if decoderMetadataJSON == "" {
		return merged
	}
	var decoderTags map[string]string
	if err := json.Unmarshal([]byte(decoderMetadataJSON), &decoderTags); err != nil {
		return merged
	}
	for k, v := range decoderTags {
		merged[k] = v
	}
	return merged
}
