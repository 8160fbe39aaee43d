package main

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	_ "modernc.org/sqlite"
)

// ============================================================================
// Paired device cache
// ============================================================================
// The last device seen on each source is remembered across restarts so the UI
// can show "last paired: Pixel 8 Pro" before the backend reports anything.
// Purely informational; presence never reads it.
// ============================================================================

const deviceCacheSchema = `
CREATE TABLE IF NOT EXISTS paired_devices (
	source       TEXT PRIMARY KEY,
	device_name  TEXT NOT NULL,
	host         TEXT NOT NULL DEFAULT '',
	last_seen_at TIMESTAMP NOT NULL
);
`

// PairedDevice is one remembered device per source.
type PairedDevice struct {
	Source     string    `db:"source" json:"source"`
	DeviceName string    `db:"device_name" json:"deviceName"`
	Host       string    `db:"host" json:"host,omitempty"`
	LastSeenAt time.Time `db:"last_seen_at" json:"lastSeenAt"`
}

// DeviceCache is a small sqlite-backed store of paired devices.
type DeviceCache struct {
	DB *sqlx.DB
}

// OpenDeviceCache opens (creating if needed) the cache at dsn.
func OpenDeviceCache(dsn string) (*DeviceCache, error) {
	db, err := sqlx.Connect("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(deviceCacheSchema); err != nil {
		db.Close()
		return nil, err
	}
	return &DeviceCache{DB: db}, nil
}

func (c *DeviceCache) Close() error {
	return c.DB.Close()
}

// Upsert records the device last seen on source.
func (c *DeviceCache) Upsert(ctx context.Context, source, deviceName, host string, seenAt time.Time) error {
	query := `
	INSERT INTO paired_devices (source, device_name, host, last_seen_at)
	VALUES (?, ?, ?, ?)
	ON CONFLICT (source) DO UPDATE SET
	device_name = excluded.device_name,
	host = excluded.host,
	last_seen_at = excluded.last_seen_at
	`
	_, err := c.DB.ExecContext(ctx, query, source, deviceName, host, seenAt.UTC())
	return err
}

// Get returns the remembered device for source, or sql.ErrNoRows via sqlx.
func (c *DeviceCache) Get(ctx context.Context, source string) (PairedDevice, error) {
	d := PairedDevice{}
	err := c.DB.GetContext(ctx, &d, "SELECT source, device_name, host, last_seen_at FROM paired_devices WHERE source = ?", source)
	return d, err
}

// All returns every remembered device, most recent first.
func (c *DeviceCache) All(ctx context.Context) ([]PairedDevice, error) {
	devices := []PairedDevice{}
	err := c.DB.SelectContext(ctx, &devices, "SELECT source, device_name, host, last_seen_at FROM paired_devices ORDER BY last_seen_at DESC")
	return devices, err
}
