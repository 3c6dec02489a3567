// Package storedb owns the engine's local sqlite state: plugin install receipts,
// pending-uninstall markers, the disabled-plugin set, and the lyrics metadata cache
// table named explicitly in spec §6. It never sits on the real-time audio path —
// only the plugin host's discovery pass and install/uninstall operations touch it.
package storedb

import (
	"time"

	"github.com/rs/zerolog"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// PluginReceipt records a successful plugin install. The receipt is kept only in this
// table, so the host can list installed plugins without walking the filesystem; the
// plugin's directory holds its manifest (plugin.json) and library, not a receipt file.
type PluginReceipt struct {
	PluginID        string `gorm:"primaryKey"`
	Name            string
	APIVersion      int
	LibraryRelPath  string
	ManifestJSON    string
	InstalledAtUnix int64
}

func (PluginReceipt) TableName() string { return "plugin_receipts" }

// PendingUninstall records a plugin root that failed to delete (e.g. file-in-use on
// Windows) and must be retried on next discovery (spec §4.A).
type PendingUninstall struct {
	PluginID      string `gorm:"primaryKey"`
	QueuedAtUnix  int64
	RetryCount    int
	LastError     string
	State         string
}

func (PendingUninstall) TableName() string { return "pending_uninstalls" }

// DisabledPlugin is a plugin id the operator has explicitly disabled; discovery skips
// these (spec §4.A).
type DisabledPlugin struct {
	PluginID string `gorm:"primaryKey"`
}

func (DisabledPlugin) TableName() string { return "disabled_plugins" }

// LyricsCacheEntry is the cache table from spec §6:
// lyrics_cache(track_key TEXT PK, source TEXT, is_synced INT, doc_json TEXT, updated_at_ms INT).
// TTL is 30 days, enforced by Store.PruneLyricsCache rather than a DB-level expiry.
type LyricsCacheEntry struct {
	TrackKey    string `gorm:"primaryKey;column:track_key"`
	Source      string `gorm:"column:source"`
	IsSynced    bool   `gorm:"column:is_synced"`
	DocJSON     string `gorm:"column:doc_json"`
	UpdatedAtMS int64  `gorm:"column:updated_at_ms"`
}

func (LyricsCacheEntry) TableName() string { return "lyrics_cache" }

const lyricsCacheTTL = 30 * 24 * time.Hour

// Store wraps the gorm handle with the engine's local-state operations.
type Store struct {
	db *gorm.DB
}

// Open connects to dsn (a sqlite DSN, e.g. "file:stellatune.db?cache=shared&_fk=1")
// and migrates the schema. Grounded on the teacher's internal/db.Connect, trimmed to
// the single sqlite dialector the engine needs — see DESIGN.md for why the
// postgres/mysql dialectors were not carried over.
func Open(dsn string, logger zerolog.Logger) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, err
	}

	if err := db.AutoMigrate(
		&PluginReceipt{},
		&PendingUninstall{},
		&DisabledPlugin{},
		&LyricsCacheEntry{},
	); err != nil {
		return nil, err
	}

	return &Store{db: db}, nil
}

// Close releases the underlying sqlite connection.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// UpsertReceipt writes or replaces a plugin install receipt.
func (s *Store) UpsertReceipt(r PluginReceipt) error {
	return s.db.Save(&r).Error
}

// DeleteReceipt removes a plugin's receipt (uninstall).
func (s *Store) DeleteReceipt(pluginID string) error {
	return s.db.Delete(&PluginReceipt{}, "plugin_id = ?", pluginID).Error
}

// ListReceipts returns every installed-plugin receipt.
func (s *Store) ListReceipts() ([]PluginReceipt, error) {
	var out []PluginReceipt
	err := s.db.Find(&out).Error
	return out, err
}

// UpsertPendingUninstall records or updates a retry-pending uninstall.
func (s *Store) UpsertPendingUninstall(p PendingUninstall) error {
	return s.db.Save(&p).Error
}

// ListPendingUninstalls returns every pending uninstall, for retry on discovery.
func (s *Store) ListPendingUninstalls() ([]PendingUninstall, error) {
	var out []PendingUninstall
	err := s.db.Find(&out).Error
	return out, err
}

// DeletePendingUninstall clears a pending uninstall once it finally succeeds.
func (s *Store) DeletePendingUninstall(pluginID string) error {
	return s.db.Delete(&PendingUninstall{}, "plugin_id = ?", pluginID).Error
}

// DisabledPluginIDs returns the set of plugin ids discovery should skip.
func (s *Store) DisabledPluginIDs() (map[string]bool, error) {
	var rows []DisabledPlugin
	if err := s.db.Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make(map[string]bool, len(rows))
	for _, r := range rows {
		out[r.PluginID] = true
	}
	return out, nil
}

// SetPluginDisabled adds or removes pluginID from the disabled set.
func (s *Store) SetPluginDisabled(pluginID string, disabled bool) error {
	if disabled {
		return s.db.Save(&DisabledPlugin{PluginID: pluginID}).Error
	}
	return s.db.Delete(&DisabledPlugin{}, "plugin_id = ?", pluginID).Error
}

// GetLyrics reads a cached lyrics document, returning ok=false if absent or expired.
func (s *Store) GetLyrics(trackKey string) (entry LyricsCacheEntry, ok bool, err error) {
	var row LyricsCacheEntry
	res := s.db.First(&row, "track_key = ?", trackKey)
	if res.Error != nil {
		if res.Error == gorm.ErrRecordNotFound {
			return LyricsCacheEntry{}, false, nil
		}
		return LyricsCacheEntry{}, false, res.Error
	}
	age := time.Since(time.UnixMilli(row.UpdatedAtMS))
	if age > lyricsCacheTTL {
		return LyricsCacheEntry{}, false, nil
	}
	return row, true, nil
}

// PutLyrics upserts a cached lyrics document.
func (s *Store) PutLyrics(entry LyricsCacheEntry) error {
	return s.db.Save(&entry).Error
}

// PruneLyricsCache deletes entries older than the 30-day TTL.
func (s *Store) PruneLyricsCache() error {
	cutoff := time.Now().Add(-lyricsCacheTTL).UnixMilli()
	return s.db.Delete(&LyricsCacheEntry{}, "updated_at_ms < ?", cutoff).Error
}
