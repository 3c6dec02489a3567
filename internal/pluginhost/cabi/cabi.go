// Package cabi implements the stable C ABI boundary plugins are loaded across (spec
// §6). It is the one corner of the codebase where no pack example performs a literal
// dlopen call; the vtable-marshaling technique (cgo + runtime/cgo.Handle to carry Go
// context through opaque void* fields) follows justyntemme/clapgo's
// pkg/api/cgo_wrapper.go, and dlopen/dlsym/dlclose are the standard POSIX calls for
// loading a C-ABI shared object at a stable entry symbol — see SPEC_FULL.md §C.
package cabi

/*
#cgo linux LDFLAGS: -ldl
#cgo darwin LDFLAGS: -ldl
#include <dlfcn.h>
#include <stdlib.h>
#include <string.h>
#include "cabi.h"

static void *st_dlopen(const char *path) {
    return dlopen(path, RTLD_NOW | RTLD_LOCAL);
}

static void *st_dlsym(void *handle, const char *name) {
    return dlsym(handle, name);
}

static int st_dlclose(void *handle) {
    return dlclose(handle);
}

static const char *st_dlerror(void) {
    return dlerror();
}

static const PluginVtable *st_call_entry(void *fn, const HostVtable *host) {
    entry_fn f = (entry_fn)fn;
    return f(host);
}

static StStr st_str(const char *s, size_t len) {
    StStr out;
    out.ptr = (const uint8_t *)s;
    out.len = len;
    return out;
}

static StStr st_empty_str(void) {
    StStr out;
    out.ptr = NULL;
    out.len = 0;
    return out;
}

// cgo cannot call a C function pointer stored in a struct field directly; every call
// through a vtable member goes through one of these thin trampolines instead.

static StStr metadata_json_utf8_call(const PluginVtable *v, void *plugin_data) {
    return v->metadata_json_utf8(plugin_data);
}

static void plugin_free_call(const PluginVtable *v, void *plugin_data, StStr s) {
    v->plugin_free(plugin_data, s);
}

static uint8_t decoder_probe_call(const DecoderVtable *d, void *plugin_data, StStr ext, StStr header) {
    return d->probe(plugin_data, ext, header);
}

static StStatus decoder_open_call(const DecoderVtable *d, void *plugin_data, StStr args_json, void **out_instance) {
    return d->open(plugin_data, args_json, out_instance);
}

static StStatus decoder_get_info_call(const DecoderVtable *d, void *plugin_data, void *instance, StAudioSpec *out_spec) {
    return d->get_info(plugin_data, instance, out_spec);
}

static StStr decoder_get_metadata_call(const DecoderVtable *d, void *plugin_data, void *instance) {
    if (d->get_metadata_json_utf8 == NULL) {
        return st_empty_str();
    }
    return d->get_metadata_json_utf8(plugin_data, instance);
}

static StStatus decoder_read_call(const DecoderVtable *d, void *plugin_data, void *instance, float *out_buf, size_t frame_capacity, size_t *out_frames) {
    return d->read_interleaved_f32(plugin_data, instance, out_buf, frame_capacity, out_frames);
}

static StStatus decoder_seek_call(const DecoderVtable *d, void *plugin_data, void *instance, int64_t position_ms) {
    return d->seek_ms(plugin_data, instance, position_ms);
}

static uint64_t decoder_remaining_call(const DecoderVtable *d, void *plugin_data, void *instance) {
    if (d->estimated_remaining_frames == NULL) {
        return 0;
    }
    return d->estimated_remaining_frames(plugin_data, instance);
}

static void decoder_destroy_call(const DecoderVtable *d, void *plugin_data, void *instance) {
    d->destroy(plugin_data, instance);
}

static StStatus sink_negotiate_call(const OutputSinkVtable *o, void *plugin_data, StAudioSpec desired, StAudioSpec *out_spec, uint32_t *out_preferred_chunk_frames, uint32_t *out_flags) {
    return o->negotiate_spec(plugin_data, desired, out_spec, out_preferred_chunk_frames, out_flags);
}

static StStatus sink_open_call(const OutputSinkVtable *o, void *plugin_data, StStr target, StAudioSpec spec, void **out_instance) {
    return o->open(plugin_data, target, spec, out_instance);
}

static uint32_t sink_write_call(const OutputSinkVtable *o, void *plugin_data, void *instance, const float *frames, uint32_t channels, size_t sample_count) {
    return o->write_interleaved_f32(plugin_data, instance, frames, channels, sample_count);
}

static StStatus sink_flush_call(const OutputSinkVtable *o, void *plugin_data, void *instance) {
    return o->flush(plugin_data, instance);
}

static void sink_close_call(const OutputSinkVtable *o, void *plugin_data, void *instance) {
    o->close(plugin_data, instance);
}

// Host-vtable call trampolines, used by HostHandle's Go-side callers when the plugin
// hands control back to host services (log/runtime-root/emit-event/poll-event).

static void host_log_call(const HostVtable *h, int32_t level, StStr msg) {
    h->log_utf8(h->host_data, level, msg);
}

static StStr host_runtime_root_call(const HostVtable *h) {
    return h->get_runtime_root_utf8(h->host_data);
}

static void host_emit_event_call(const HostVtable *h, StStr json) {
    h->emit_event_json_utf8(h->host_data, json);
}

static StStr host_poll_event_call(const HostVtable *h) {
    return h->poll_host_event_json_utf8(h->host_data);
}

static void host_free_str_call(const HostVtable *h, StStr s) {
    h->free_host_str_utf8(h->host_data, s);
}
*/
import "C"

import (
	"fmt"
	"unsafe"
)

// APIVersion is the ABI version this host speaks (spec §6: "API version constant must
// match host's").
const APIVersion uint32 = 1

// StStr is the Go mirror of the C StStr — an (ptr,len) UTF-8 view, empty iff ptr==nil.
type StStr = C.StStr

// goString copies a C StStr into a Go string. It does not free the underlying memory —
// callers are responsible for invoking the plugin's deallocator when the StStr is
// plugin-owned.
func goString(s C.StStr) string {
	if s.ptr == nil || s.len == 0 {
		return ""
	}
	return C.GoStringN((*C.char)(unsafe.Pointer(s.ptr)), C.int(s.len))
}

// cString builds a C StStr backed by Go-owned memory valid for the duration of the
// call (the callee must not retain the pointer past return).
func cString(s string) C.StStr {
	if len(s) == 0 {
		return C.st_empty_str()
	}
	cs := C.CString(s)
	return C.st_str(cs, C.size_t(len(s)))
}

// freeCString releases memory allocated by cString.
func freeCString(s C.StStr) {
	if s.ptr != nil {
		C.free(unsafe.Pointer(s.ptr))
	}
}

// Library is a loaded, not-yet-entered dynamic library handle.
type Library struct {
	handle unsafe.Pointer
	path   string
}

// Open calls dlopen(path, RTLD_NOW|RTLD_LOCAL). The caller owns the returned handle and
// must eventually call Close once the owning generation is unloadable.
func Open(path string) (*Library, error) {
	cpath := C.CString(path)
	defer C.free(unsafe.Pointer(cpath))

	handle := C.st_dlopen(cpath)
	if handle == nil {
		return nil, fmt.Errorf("dlopen %s: %s", path, C.GoString(C.st_dlerror()))
	}
	return &Library{handle: handle, path: path}, nil
}

// Close calls dlclose. It must only be called when the owning PluginGeneration is
// ready for unload (spec §3/§4.A) — never pre-emptively.
func (l *Library) Close() error {
	if l == nil || l.handle == nil {
		return nil
	}
	if rc := C.st_dlclose(l.handle); rc != 0 {
		return fmt.Errorf("dlclose %s: %s", l.path, C.GoString(C.st_dlerror()))
	}
	l.handle = nil
	return nil
}

// Entry resolves entrySymbol via dlsym and invokes it with host, returning the
// plugin-side vtable pointer. Returns an error if the symbol is missing or the
// returned vtable's api_version does not match APIVersion (spec §6).
func (l *Library) Entry(entrySymbol string, host *HostHandle) (*PluginVtableHandle, error) {
	csym := C.CString(entrySymbol)
	defer C.free(unsafe.Pointer(csym))

	fn := C.st_dlsym(l.handle, csym)
	if fn == nil {
		return nil, fmt.Errorf("entry symbol %s not found in %s: %s", entrySymbol, l.path, C.GoString(C.st_dlerror()))
	}

	vtable := C.st_call_entry(fn, host.cHostVtable())
	if vtable == nil {
		return nil, fmt.Errorf("entry symbol %s returned a null vtable", entrySymbol)
	}
	if uint32(vtable.api_version) != APIVersion {
		return nil, fmt.Errorf("plugin api_version %d does not match host api_version %d", vtable.api_version, APIVersion)
	}
	return &PluginVtableHandle{ptr: vtable}, nil
}

// PluginVtableHandle wraps the raw C plugin vtable pointer returned by Entry.
type PluginVtableHandle struct {
	ptr *C.PluginVtable
}

// MetadataJSON calls the plugin's metadata_json_utf8, freeing the plugin-owned string
// via plugin_free afterward (spec §4.A: "the host uses [plugin_free] to return
// plugin-allocated strings").
func (h *PluginVtableHandle) MetadataJSON() string {
	if h.ptr.metadata_json_utf8 == nil {
		return ""
	}
	s := C.metadata_json_utf8_call(h.ptr, h.ptr.plugin_data)
	defer h.freePluginString(s)
	return goString(s)
}

func (h *PluginVtableHandle) freePluginString(s C.StStr) {
	if s.ptr == nil || h.ptr.plugin_free == nil {
		return
	}
	C.plugin_free_call(h.ptr, h.ptr.plugin_data, s)
}

// HasDecoder reports whether this plugin vtable exposes a decoder capability.
func (h *PluginVtableHandle) HasDecoder() bool { return h.ptr.decoder != nil }

// HasOutputSink reports whether this plugin vtable exposes an output-sink capability.
func (h *PluginVtableHandle) HasOutputSink() bool { return h.ptr.output_sink != nil }
