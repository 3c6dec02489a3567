package cabi

/*
#include "cabi.h"
*/
import "C"

import (
	"fmt"
	"unsafe"
)

// AudioSpec mirrors StAudioSpec on the Go side.
type AudioSpec struct {
	SampleRate uint32
	Channels   uint16
}

func goAudioSpec(s C.StAudioSpec) AudioSpec {
	return AudioSpec{SampleRate: uint32(s.sample_rate), Channels: uint16(s.channels)}
}

func cAudioSpec(s AudioSpec) C.StAudioSpec {
	return C.StAudioSpec{sample_rate: C.uint32_t(s.SampleRate), channels: C.uint16_t(s.Channels)}
}

func statusError(st C.StStatus) error {
	if st.code == 0 {
		return nil
	}
	msg := goString(st.message)
	if msg == "" {
		return fmt.Errorf("plugin status %d", int32(st.code))
	}
	return fmt.Errorf("plugin status %d: %s", int32(st.code), msg)
}

// Decoder is a Go handle onto a plugin's decoder capability plus one opened instance.
// It is not safe for concurrent use — each decode worker owns its own instance (spec
// §3: "one decoder instance per active runner").
type Decoder struct {
	vtable     *C.DecoderVtable
	pluginData unsafe.Pointer
	instance   unsafe.Pointer
}

// NewDecoder returns a Decoder bound to h's decoder capability, or an error if h does
// not expose one.
func NewDecoder(h *PluginVtableHandle) (*Decoder, error) {
	if !h.HasDecoder() {
		return nil, fmt.Errorf("plugin does not expose a decoder capability")
	}
	return &Decoder{vtable: h.ptr.decoder, pluginData: h.ptr.plugin_data}, nil
}

// Probe asks the plugin whether it can likely decode a resource with the given
// extension and leading header bytes, returning a confidence score 0-255 (spec §4.A
// decoder-selection: "probe-based scoring, ties broken by (plugin_id, type_id)").
func (d *Decoder) Probe(ext string, header []byte) uint8 {
	extStr := cString(ext)
	defer freeCString(extStr)

	var hdrStr C.StStr
	if len(header) > 0 {
		hdrStr = C.StStr{ptr: (*C.uint8_t)(unsafe.Pointer(&header[0])), len: C.size_t(len(header))}
	} else {
		hdrStr = C.st_empty_str()
	}
	return uint8(C.decoder_probe_call(d.vtable, d.pluginData, extStr, hdrStr))
}

// Open opens a decoder instance for the given JSON-encoded open arguments (typically a
// serialized track.SourceRef — spec §6).
func (d *Decoder) Open(argsJSON string) error {
	args := cString(argsJSON)
	defer freeCString(args)

	var inst unsafe.Pointer
	st := C.decoder_open_call(d.vtable, d.pluginData, args, (*unsafe.Pointer)(unsafe.Pointer(&inst)))
	if err := statusError(st); err != nil {
		return err
	}
	d.instance = inst
	return nil
}

// GetInfo returns the decoded stream's native spec.
func (d *Decoder) GetInfo() (AudioSpec, error) {
	var spec C.StAudioSpec
	st := C.decoder_get_info_call(d.vtable, d.pluginData, d.instance, &spec)
	if err := statusError(st); err != nil {
		return AudioSpec{}, err
	}
	return goAudioSpec(spec), nil
}

// MetadataJSON returns plugin-reported track metadata, merged (not replaced) by the
// caller over any container-level tags already known (spec's supplemented
// merge-not-replace semantics — see SPEC_FULL.md §D).
func (d *Decoder) MetadataJSON() string {
	s := C.decoder_get_metadata_call(d.vtable, d.pluginData, d.instance)
	return goString(s)
}

// ReadInterleavedF32 fills out with up to len(out)/channels frames of interleaved f32
// samples, returning the number of frames actually written.
func (d *Decoder) ReadInterleavedF32(out []float32, channels int) (int, error) {
	if len(out) == 0 || channels <= 0 {
		return 0, nil
	}
	frameCapacity := len(out) / channels
	var framesWritten C.size_t
	st := C.decoder_read_call(
		d.vtable, d.pluginData, d.instance,
		(*C.float)(unsafe.Pointer(&out[0])),
		C.size_t(frameCapacity),
		&framesWritten,
	)
	if err := statusError(st); err != nil {
		return 0, err
	}
	return int(framesWritten), nil
}

// SeekMs seeks to an absolute position. Callers own recomputing any gapless-trim/
// crossfade state after a successful seek (spec §3 decode-worker responsibilities).
func (d *Decoder) SeekMs(positionMS int64) error {
	st := C.decoder_seek_call(d.vtable, d.pluginData, d.instance, C.int64_t(positionMS))
	return statusError(st)
}

// EstimatedRemainingFrames returns the decoder's best-effort remaining-frame estimate,
// used to compute the gapless-trim available_frames_hint (spec §3).
func (d *Decoder) EstimatedRemainingFrames() uint64 {
	return uint64(C.decoder_remaining_call(d.vtable, d.pluginData, d.instance))
}

// Close destroys the decoder instance. Safe to call once; subsequent calls are no-ops.
func (d *Decoder) Close() {
	if d.instance == nil {
		return
	}
	C.decoder_destroy_call(d.vtable, d.pluginData, d.instance)
	d.instance = nil
}
