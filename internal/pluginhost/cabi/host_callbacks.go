package cabi

/*
#include "cabi.h"

// Prototypes for the //export trampolines below. cgo generates the matching C
// definitions into _cgo_export.h; declaring them here lets this preamble build the
// HostVtable's function pointers without ordering on that generated header.
extern void go_host_log_utf8(void *host_data, int32_t level, StStr msg);
extern StStr go_host_get_runtime_root_utf8(void *host_data);
extern void go_host_emit_event_json_utf8(void *host_data, StStr payload);
extern StStr go_host_poll_host_event_json_utf8(void *host_data);
extern void go_host_free_host_str_utf8(void *host_data, StStr s);
*/
import "C"

import (
	"runtime/cgo"
	"unsafe"
)

// HostServices is the Go-side implementation of the services a loaded plugin may call
// back into: logging, runtime-root lookup, and the bounded host-event queue a plugin
// can emit into / poll from (spec §6, host_vtable). One HostServices is shared by every
// plugin generation; per-generation isolation happens in the pluginhost package, not
// here.
type HostServices interface {
	Log(level int32, msg string)
	RuntimeRoot() string
	EmitEvent(jsonPayload string)
	PollHostEvent() (jsonPayload string, ok bool)
}

// HostHandle owns the C HostVtable struct and the cgo.Handle keeping the Go-side
// HostServices alive for as long as a plugin might call back into it.
type HostHandle struct {
	vtable C.HostVtable
	handle cgo.Handle
}

// NewHostHandle wires svc into a C-callable vtable. Callers must call Release once no
// plugin generation can call back into it (i.e. after every Library sharing this
// handle has been dlclose'd).
func NewHostHandle(svc HostServices) *HostHandle {
	h := cgo.NewHandle(svc)
	hh := &HostHandle{handle: h}
	hh.vtable = C.HostVtable{
		api_version:              C.uint32_t(APIVersion),
		log_utf8:                 (*[0]byte)(C.go_host_log_utf8),
		get_runtime_root_utf8:    (*[0]byte)(C.go_host_get_runtime_root_utf8),
		emit_event_json_utf8:     (*[0]byte)(C.go_host_emit_event_json_utf8),
		poll_host_event_json_utf8: (*[0]byte)(C.go_host_poll_host_event_json_utf8),
		free_host_str_utf8:       (*[0]byte)(C.go_host_free_host_str_utf8),
		host_data:                unsafe.Pointer(h),
	}
	return hh
}

// Release invalidates the cgo.Handle. Must only be called after every plugin generation
// sharing this host handle has been unloaded (spec §3: generations may only unload once
// inflight_calls reaches zero).
func (hh *HostHandle) Release() {
	if hh == nil {
		return
	}
	hh.handle.Delete()
}

func (hh *HostHandle) cHostVtable() *C.HostVtable { return &hh.vtable }

func hostFromData(hostData unsafe.Pointer) HostServices {
	h := cgo.Handle(hostData)
	return h.Value().(HostServices)
}

//export go_host_log_utf8
func go_host_log_utf8(hostData unsafe.Pointer, level C.int32_t, msg C.StStr) {
	hostFromData(hostData).Log(int32(level), goString(msg))
}

//export go_host_get_runtime_root_utf8
func go_host_get_runtime_root_utf8(hostData unsafe.Pointer) C.StStr {
	return cString(hostFromData(hostData).RuntimeRoot())
}

//export go_host_emit_event_json_utf8
func go_host_emit_event_json_utf8(hostData unsafe.Pointer, payload C.StStr) {
	hostFromData(hostData).EmitEvent(goString(payload))
}

//export go_host_poll_host_event_json_utf8
func go_host_poll_host_event_json_utf8(hostData unsafe.Pointer) C.StStr {
	payload, ok := hostFromData(hostData).PollHostEvent()
	if !ok {
		return C.st_empty_str()
	}
	return cString(payload)
}

//export go_host_free_host_str_utf8
func go_host_free_host_str_utf8(hostData unsafe.Pointer, s C.StStr) {
	freeCString(s)
}
