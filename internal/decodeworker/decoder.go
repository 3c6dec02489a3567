package decodeworker

import "github.com/friendsincode/stellatune/internal/pluginhost/cabi"

// Decoder is the subset of *cabi.Decoder the decode worker drives directly. It is
// declared here, at the point of use, rather than consumed as the concrete cgo-backed
// type, so a fake decoder can satisfy it in tests without linking against a loaded
// plugin or the C-ABI boundary at all (spec §8's literal end-to-end scenarios exercise
// this interface).
type Decoder interface {
	GetInfo() (cabi.AudioSpec, error)
	ReadInterleavedF32(out []float32, channels int) (int, error)
	EstimatedRemainingFrames() uint64
	SeekMs(positionMS int64) error
	MetadataJSON() string
	Close()
}

// cabi.Decoder must keep satisfying Decoder; this fails to compile otherwise.
var _ Decoder = (*cabi.Decoder)(nil)
