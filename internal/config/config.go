// Package config covers process level configuration read from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds the engine's process-wide tunables.
type Config struct {
	Environment string

	PluginsRoot       string // STELLATUNE_PLUGINS_ROOT — discovery directory for plugin packages
	RuntimeRoot       string // STELLATUNE_RUNTIME_ROOT — root the host hands plugins via get_runtime_root_utf8
	ShadowCopyRoot    string // STELLATUNE_SHADOW_ROOT — scratch root for shadow-copy loads
	DisabledPluginIDs []string

	DBDSN string // STELLATUNE_DB_DSN — sqlite DSN for receipts / pending-uninstall / lyrics cache

	MetricsBind string // STELLATUNE_METRICS_BIND

	NATSURL          string // STELLATUNE_NATS_URL — optional external event mirror
	NATSStreamName   string
	NATSMaxFailures  int
	EventHubQueueCap int // bounded per-consumer queue capacity

	HighWatermarkExclusiveMS int64 // buffering watermark, exclusive (WASAPI-style) sinks
	LowWatermarkExclusiveMS  int64
	HighWatermarkSharedMS    int64 // buffering watermark, shared-mode sinks
	LowWatermarkSharedMS     int64

	OutputSinkQueueCapacity   int
	OutputSinkWriteStallMS    int64
	OutputSinkRetrySleepMS    int64
	TransitionInterruptWaitMS int64

	PluginEventQueueCapacity     int // host<->plugin bounded event queues
	HostEventQueueCapacity       int
	ShadowLoadHeaderProbeBytes   int64
	ActorCallTimeout             time.Duration
	LegacyEnvWarnings            []string
}

// FromEnv reads environment variables, applies defaults, and validates the result.
func FromEnv() (*Config, error) {
	cfg := &Config{
		Environment:    getEnv("STELLATUNE_ENV", "development"),
		PluginsRoot:    getEnv("STELLATUNE_PLUGINS_ROOT", "./plugins"),
		RuntimeRoot:    getEnv("STELLATUNE_RUNTIME_ROOT", "./runtime"),
		ShadowCopyRoot: getEnv("STELLATUNE_SHADOW_ROOT", "./runtime/shadow"),
		DBDSN:          getEnv("STELLATUNE_DB_DSN", "file:stellatune.db?cache=shared&_fk=1"),
		MetricsBind:    getEnv("STELLATUNE_METRICS_BIND", "127.0.0.1:9102"),

		NATSURL:          getEnv("STELLATUNE_NATS_URL", ""),
		NATSStreamName:   getEnv("STELLATUNE_NATS_STREAM", "STELLATUNE_EVENTS"),
		NATSMaxFailures:  getEnvInt("STELLATUNE_NATS_MAX_FAILURES", 5),
		EventHubQueueCap: getEnvInt("STELLATUNE_EVENT_QUEUE_CAP", 64),

		HighWatermarkExclusiveMS: getEnvInt64("STELLATUNE_WATERMARK_HIGH_EXCLUSIVE_MS", 400),
		LowWatermarkExclusiveMS:  getEnvInt64("STELLATUNE_WATERMARK_LOW_EXCLUSIVE_MS", 120),
		HighWatermarkSharedMS:    getEnvInt64("STELLATUNE_WATERMARK_HIGH_SHARED_MS", 800),
		LowWatermarkSharedMS:     getEnvInt64("STELLATUNE_WATERMARK_LOW_SHARED_MS", 250),

		OutputSinkQueueCapacity:   getEnvInt("STELLATUNE_SINK_QUEUE_CAPACITY", 256),
		OutputSinkWriteStallMS:    getEnvInt64("STELLATUNE_SINK_WRITE_STALL_TIMEOUT_MS", 2000),
		OutputSinkRetrySleepMS:    getEnvInt64("STELLATUNE_SINK_RETRY_SLEEP_MS", 5),
		TransitionInterruptWaitMS: getEnvInt64("STELLATUNE_TRANSITION_INTERRUPT_MAX_EXTRA_WAIT_MS", 250),

		PluginEventQueueCapacity:   getEnvInt("STELLATUNE_PLUGIN_EVENT_QUEUE_CAPACITY", 2048),
		HostEventQueueCapacity:     getEnvInt("STELLATUNE_HOST_EVENT_QUEUE_CAPACITY", 1024),
		ShadowLoadHeaderProbeBytes: int64(getEnvInt("STELLATUNE_DECODER_PROBE_HEADER_BYTES", 64*1024)),
		ActorCallTimeout:           time.Duration(getEnvInt("STELLATUNE_ACTOR_TIMEOUT_SECONDS", 30)) * time.Second,
	}

	if cfg.DBDSN == "" {
		return nil, fmt.Errorf("STELLATUNE_DB_DSN must be provided")
	}

	cfg.DisabledPluginIDs = splitNonEmpty(getEnv("STELLATUNE_PLUGINS_DISABLED", ""))
	cfg.LegacyEnvWarnings = detectLegacyEnvWarnings()

	return cfg, nil
}

func detectLegacyEnvWarnings() []string {
	legacy := map[string]string{
		"PLUGINS_ROOT": "use STELLATUNE_PLUGINS_ROOT",
		"DB_DSN":       "use STELLATUNE_DB_DSN",
	}
	warnings := make([]string, 0, len(legacy))
	for key, recommendation := range legacy {
		if os.Getenv(key) != "" {
			warnings = append(warnings, fmt.Sprintf("legacy env key %s is set; %s", key, recommendation))
		}
	}
	return warnings
}

func splitNonEmpty(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	start := 0
	for i := 0; i <= len(s); i++ {
		if i == len(s) || s[i] == ',' {
			if i > start {
				out = append(out, s[start:i])
			}
			start = i + 1
		}
	}
	return out
}

func getEnv(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

func getEnvInt(key string, def int) int {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			return parsed
		}
	}
	return def
}

func getEnvInt64(key string, def int64) int64 {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.ParseInt(val, 10, 64); err == nil {
			return parsed
		}
	}
	return def
}
