package eventhub

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"
)

// NATSMirrorConfig configures the optional external mirror used by out-of-process
// collaborators (UI, DLNA — spec §1 treats these as external, consuming the engine
// only by interface).
type NATSMirrorConfig struct {
	URL         string
	StreamName  string
	MaxFailures int
}

// NATSMirror republishes Hub events onto a NATS JetStream subject so external
// processes can subscribe without linking against the engine. It degrades to a no-op
// after MaxFailures consecutive publish failures, matching the teacher's
// NATSBus circuit breaker (internal/eventbus/nats.go) rather than retrying forever on
// the hot path.
type NATSMirror struct {
	conn   *nats.Conn
	js     jetstream.JetStream
	logger zerolog.Logger
	nodeID string
	stream string

	mu          sync.Mutex
	failCount   int
	maxFailures int
	disabled    bool
}

// NewNATSMirror connects to cfg.URL and ensures the configured stream exists. If the
// connection fails, it returns a disabled mirror rather than an error — the engine
// runs with only the in-process Hub, matching the teacher's warn-and-fallback habit.
func NewNATSMirror(ctx context.Context, cfg NATSMirrorConfig, logger zerolog.Logger) *NATSMirror {
	nodeID := uuid.NewString()
	m := &NATSMirror{
		logger:      logger.With().Str("component", "eventhub_nats_mirror").Logger(),
		nodeID:      nodeID,
		stream:      cfg.StreamName,
		maxFailures: cfg.MaxFailures,
	}
	if cfg.URL == "" {
		m.disabled = true
		return m
	}

	conn, err := nats.Connect(cfg.URL, nats.Name("stellatune-engine-"+nodeID[:8]), nats.MaxReconnects(-1))
	if err != nil {
		m.logger.Warn().Err(err).Msg("NATS connection failed, events stay in-process only")
		m.disabled = true
		return m
	}

	js, err := jetstream.New(conn)
	if err != nil {
		m.logger.Warn().Err(err).Msg("JetStream init failed, events stay in-process only")
		conn.Close()
		m.disabled = true
		return m
	}

	if _, err := js.Stream(ctx, cfg.StreamName); err != nil {
		_, err = js.CreateStream(ctx, jetstream.StreamConfig{
			Name:      cfg.StreamName,
			Subjects:  []string{"stellatune.events.>"},
			Retention: jetstream.LimitsPolicy,
			MaxAge:    24 * time.Hour,
			Storage:   jetstream.FileStorage,
		})
		if err != nil {
			m.logger.Warn().Err(err).Msg("failed to create JetStream stream, events stay in-process only")
			conn.Close()
			m.disabled = true
			return m
		}
	}

	m.conn = conn
	m.js = js
	return m
}

// Mirror republishes ev onto the engine's event subject. It is a best-effort side
// channel: publish errors never propagate to the in-process Hub.
func (m *NATSMirror) Mirror(ev Event) {
	if m == nil || m.disabled {
		return
	}

	data, err := json.Marshal(ev)
	if err != nil {
		return
	}

	subject := fmt.Sprintf("stellatune.events.%s", ev.Kind)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if _, err := m.js.Publish(ctx, subject, data); err != nil {
		m.handleFailure(err)
		return
	}
	m.mu.Lock()
	m.failCount = 0
	m.mu.Unlock()
}

func (m *NATSMirror) handleFailure(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failCount++
	if m.failCount >= m.maxFailures && m.maxFailures > 0 {
		m.logger.Warn().Err(err).Int("fail_count", m.failCount).Msg("NATS mirror failure threshold reached, disabling")
		m.disabled = true
		if m.conn != nil {
			m.conn.Close()
		}
	}
}

// Close releases the NATS connection, if any.
func (m *NATSMirror) Close() {
	if m == nil || m.conn == nil {
		return
	}
	m.conn.Close()
}
