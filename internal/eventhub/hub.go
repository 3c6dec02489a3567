// Package eventhub implements the broadcast primitive from spec §4.F: multiple
// consumers, a bounded per-consumer queue, and tolerance for a slow consumer (events
// are dropped for that consumer rather than blocking the publisher).
package eventhub

import "sync"

// Kind enumerates the event categories emitted by the engine (spec §4.F).
type Kind string

const (
	KindStateChanged         Kind = "state_changed"
	KindTrackChanged         Kind = "track_changed"
	KindPosition             Kind = "position"
	KindError                Kind = "error"
	KindRecovering           Kind = "recovering"
	KindAudioStart           Kind = "audio_start"
	KindAudioEnd             Kind = "audio_end"
	KindEOF                  Kind = "eof"
	KindVolumeChanged        Kind = "volume_changed"
	KindLog                  Kind = "log"
	KindOutputDevicesChanged Kind = "output_devices_changed"
	KindPlaybackEnded        Kind = "playback_ended"
)

// Event is the payload broadcast to subscribers. Fields are a superset across kinds;
// only the ones relevant to Kind are populated.
type Event struct {
	Kind Kind

	State        string // StateChanged
	Path         string // TrackChanged, PlaybackEnded
	PositionMS   int64  // Position
	Message      string // Error, Log
	Attempt      int    // Recovering
	BackoffMS    int64  // Recovering
	VolumeUI     float64
	Devices      []string // OutputDevicesChanged
}

// Subscriber is a bounded receive channel handed to one consumer.
type Subscriber chan Event

// Hub is a simple in-process fan-out broadcaster with per-subscriber bounded queues.
type Hub struct {
	mu       sync.RWMutex
	subs     []Subscriber
	queueCap int
}

// New creates a Hub whose subscriber channels are buffered to queueCap.
func New(queueCap int) *Hub {
	if queueCap <= 0 {
		queueCap = 32
	}
	return &Hub{queueCap: queueCap}
}

// Subscribe registers a new subscriber and returns its receive handle.
func (h *Hub) Subscribe() Subscriber {
	ch := make(Subscriber, h.queueCap)
	h.mu.Lock()
	h.subs = append(h.subs, ch)
	h.mu.Unlock()
	return ch
}

// Unsubscribe removes and closes a subscriber handle.
func (h *Hub) Unsubscribe(sub Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i, candidate := range h.subs {
		if candidate == sub {
			h.subs = append(h.subs[:i], h.subs[i+1:]...)
			close(sub)
			return
		}
	}
}

// Publish broadcasts ev to every subscriber. A subscriber whose queue is full has the
// event dropped for it rather than blocking the publisher — lag is tolerated, not
// propagated.
func (h *Hub) Publish(ev Event) {
	h.mu.RLock()
	subs := append([]Subscriber(nil), h.subs...)
	h.mu.RUnlock()
	for _, sub := range subs {
		select {
		case sub <- ev:
		default:
		}
	}
}
