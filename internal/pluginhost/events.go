package pluginhost

import (
	"sync"

	"github.com/rs/zerolog"
)

const (
	pluginToHostQueueCapacity = 2048 // spec §4.A emit_event_json_utf8
	hostToPluginQueueCapacity = 1024 // spec §4.A poll_host_event_json_utf8
)

// dropOldestQueue is a bounded FIFO of JSON payloads that drops the oldest entry when
// full rather than blocking the plugin thread (spec §4.A: both host-vtable event queues
// are "bounded ... drop-oldest").
type dropOldestQueue struct {
	mu       sync.Mutex
	items    []string
	capacity int
}

func newDropOldestQueue(capacity int) *dropOldestQueue {
	return &dropOldestQueue{capacity: capacity}
}

func (q *dropOldestQueue) push(item string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) >= q.capacity {
		q.items = q.items[1:]
	}
	q.items = append(q.items, item)
}

func (q *dropOldestQueue) pop() (string, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return "", false
	}
	item := q.items[0]
	q.items = q.items[1:]
	return item, true
}

// hostServicesImpl implements cabi.HostServices: the Go-side behavior backing every
// plugin's view of the host-vtable (spec §4.A "Host services exposed to plugins").
type hostServicesImpl struct {
	runtimeRoot string
	logger      zerolog.Logger

	pluginToHost *dropOldestQueue // plugin -> host, via emit_event_json_utf8
	hostToPlugin *dropOldestQueue // host -> plugin, via poll_host_event_json_utf8
}

func newHostServicesImpl(runtimeRoot string) *hostServicesImpl {
	return &hostServicesImpl{
		runtimeRoot:  runtimeRoot,
		pluginToHost: newDropOldestQueue(pluginToHostQueueCapacity),
		hostToPlugin: newDropOldestQueue(hostToPluginQueueCapacity),
	}
}

func (s *hostServicesImpl) Log(level int32, msg string) {
	var ev *zerolog.Event
	switch {
	case level <= 0:
		ev = s.logger.Debug()
	case level == 1:
		ev = s.logger.Info()
	case level == 2:
		ev = s.logger.Warn()
	default:
		ev = s.logger.Error()
	}
	ev.Str("source", "plugin").Msg(msg)
}

func (s *hostServicesImpl) RuntimeRoot() string { return s.runtimeRoot }

func (s *hostServicesImpl) EmitEvent(jsonPayload string) { s.pluginToHost.push(jsonPayload) }

func (s *hostServicesImpl) PollHostEvent() (string, bool) { return s.hostToPlugin.pop() }

// PushToPlugin queues a host->plugin event (e.g. a config-change notification) for the
// plugin to observe next time it polls.
func (s *hostServicesImpl) PushToPlugin(jsonPayload string) { s.hostToPlugin.push(jsonPayload) }

// DrainPluginEvents pops every currently queued plugin->host event.
func (s *hostServicesImpl) DrainPluginEvents() []string {
	var out []string
	for {
		item, ok := s.pluginToHost.pop()
		if !ok {
			break
		}
		out = append(out, item)
	}
	return out
}
