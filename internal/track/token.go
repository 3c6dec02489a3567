// Package track implements TrackToken parsing per spec §3/§6: an opaque UTF-8 locator
// that is either a raw filesystem path or a tagged JSON envelope referencing a plugin
// source.
package track

import (
	"encoding/json"
	"strings"
)

const envelopePrefix = "stref-json:"

// LocalSourceID is the reserved source_id that bypasses the envelope and is emitted
// as the raw locator.
const LocalSourceID = "local"

// SourceRef is the decoded form of a stref-json envelope.
type SourceRef struct {
	SourceID string `json:"source_id"`
	TrackID  string `json:"track_id"`
	Locator  string `json:"locator"`
}

// Token is the parsed form of a TrackToken: either a Path (local filesystem) or a
// SourceRef (plugin-owned source).
type Token struct {
	Path string
	Ref  *SourceRef
}

// IsLocal reports whether the token resolves to a plain filesystem path.
func (t Token) IsLocal() bool { return t.Ref == nil }

// Parse decodes a wire-form TrackToken. The engine never looks past the source-id
// prefix; resolution of the ref happens in the pipeline via the plugin host.
func Parse(wire string) Token {
	if !strings.HasPrefix(wire, envelopePrefix) {
		return Token{Path: wire}
	}
	body := strings.TrimPrefix(wire, envelopePrefix)
	var ref SourceRef
	if err := json.Unmarshal([]byte(body), &ref); err != nil {
		// Malformed envelope: treat verbatim as a path, matching the decoder
		// aggregation path's "caller sees errors.join" policy rather than panicking
		// at parse time.
		return Token{Path: wire}
	}
	if ref.SourceID == LocalSourceID {
		return Token{Path: ref.Locator}
	}
	return Token{Ref: &ref}
}

// Encode renders a Token back to its wire form.
func Encode(t Token) string {
	if t.Ref == nil {
		return t.Path
	}
	if t.Ref.SourceID == LocalSourceID {
		return t.Ref.Locator
	}
	body, err := json.Marshal(t.Ref)
	if err != nil {
		return t.Ref.Locator
	}
	return envelopePrefix + string(body)
}

// Normalize implements the path-comparison rule from spec §8: replace backslashes
// with forward slashes and lowercase ASCII, so normalize(a) == normalize(b) implies
// an equal cursor mapping.
func Normalize(path string) string {
	b := []byte(strings.ReplaceAll(path, `\`, "/"))
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}

// SourceLocator is the decoded form of a source-stream locator JSON (spec §6):
// {ext_hint, decoder_plugin_id?, decoder_type_id?}. The decoder selector is either
// both fields set or neither; ValidateSelector enforces that.
type SourceLocator struct {
	ExtHint         string `json:"ext_hint"`
	DecoderPluginID string `json:"decoder_plugin_id,omitempty"`
	DecoderTypeID   string `json:"decoder_type_id,omitempty"`
}

// HasExplicitDecoder reports whether both decoder selector fields are set.
func (s SourceLocator) HasExplicitDecoder() bool {
	return s.DecoderPluginID != "" && s.DecoderTypeID != ""
}

// ValidateSelector rejects partial decoder selectors.
func (s SourceLocator) ValidateSelector() bool {
	bothSet := s.DecoderPluginID != "" && s.DecoderTypeID != ""
	neitherSet := s.DecoderPluginID == "" && s.DecoderTypeID == ""
	return bothSet || neitherSet
}
