package cabi

/*
#include "cabi.h"
*/
import "C"

import (
	"fmt"
	"unsafe"
)

// NegotiatedSpec is the result of OutputSink.Negotiate.
type NegotiatedSpec struct {
	Spec                  AudioSpec
	PreferredChunkFrames  uint32
	Flags                 uint32
}

// OutputSink is a Go handle onto a plugin's output-sink capability plus one opened
// instance. Owned exclusively by the sink worker's dedicated thread (spec §3).
type OutputSink struct {
	vtable     *C.OutputSinkVtable
	pluginData unsafe.Pointer
	instance   unsafe.Pointer
}

// NewOutputSink returns an OutputSink bound to h's output-sink capability, or an error
// if h does not expose one.
func NewOutputSink(h *PluginVtableHandle) (*OutputSink, error) {
	if !h.HasOutputSink() {
		return nil, fmt.Errorf("plugin does not expose an output-sink capability")
	}
	return &OutputSink{vtable: h.ptr.output_sink, pluginData: h.ptr.plugin_data}, nil
}

// Negotiate asks the plugin what spec it would actually deliver for a desired spec,
// called by Host.OpenOutputSink before it opens a sink instance.
func (o *OutputSink) Negotiate(desired AudioSpec) (NegotiatedSpec, error) {
	cDesired := cAudioSpec(desired)
	var outSpec C.StAudioSpec
	var chunkFrames, flags C.uint32_t

	st := C.sink_negotiate_call(o.vtable, o.pluginData, cDesired, &outSpec, &chunkFrames, &flags)
	if err := statusError(st); err != nil {
		return NegotiatedSpec{}, err
	}
	return NegotiatedSpec{
		Spec:                 goAudioSpec(outSpec),
		PreferredChunkFrames: uint32(chunkFrames),
		Flags:                uint32(flags),
	}, nil
}

// Open opens a sink instance against target (an opaque plugin-defined device
// identifier, e.g. "default" or a device name) at the given spec.
func (o *OutputSink) Open(target string, spec AudioSpec) error {
	t := cString(target)
	defer freeCString(t)

	var inst unsafe.Pointer
	st := C.sink_open_call(o.vtable, o.pluginData, t, cAudioSpec(spec), (*unsafe.Pointer)(unsafe.Pointer(&inst)))
	if err := statusError(st); err != nil {
		return err
	}
	o.instance = inst
	return nil
}

// WriteInterleavedF32 writes frames (an interleaved f32 buffer with the given channel
// count) and returns the number of frames actually accepted. A short write signals
// backpressure; the sink worker's stall-timeout/retry policy (spec §3/§9) applies.
func (o *OutputSink) WriteInterleavedF32(frames []float32, channels int) int {
	if len(frames) == 0 || channels <= 0 {
		return 0
	}
	sampleCount := len(frames)
	accepted := C.sink_write_call(
		o.vtable, o.pluginData, o.instance,
		(*C.float)(unsafe.Pointer(&frames[0])),
		C.uint32_t(channels),
		C.size_t(sampleCount),
	)
	framesAccepted := int(accepted) / channels
	return framesAccepted
}

// Flush blocks until previously written samples have been handed to the device.
func (o *OutputSink) Flush() error {
	st := C.sink_flush_call(o.vtable, o.pluginData, o.instance)
	return statusError(st)
}

// Close releases the sink instance. Safe to call once; subsequent calls are no-ops.
func (o *OutputSink) Close() {
	if o.instance == nil {
		return
	}
	C.sink_close_call(o.vtable, o.pluginData, o.instance)
	o.instance = nil
}
