// Package dbtest opens throwaway SQLite databases carrying the intake schema.
package dbtest

import (
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

const manifestsDDL = `
CREATE TABLE IF NOT EXISTS manifests (
  id TEXT PRIMARY KEY,
  manifest_number TEXT NOT NULL UNIQUE,
  date DATETIME NOT NULL,
  uploaded_by TEXT NOT NULL DEFAULT '',
  created_at DATETIME,
  updated_at DATETIME
);`

const parcelsDDL = `
CREATE TABLE IF NOT EXISTS parcels (
  id TEXT PRIMARY KEY,
  manifest_id TEXT NOT NULL REFERENCES manifests(id) ON DELETE CASCADE,
  position INTEGER NOT NULL,
  tracking_number TEXT NOT NULL UNIQUE,
  consignee_name TEXT NOT NULL,
  shipment_date DATETIME,
  awb_number TEXT NOT NULL DEFAULT '',
  consignee_phone TEXT NOT NULL DEFAULT '',
  consignee_email TEXT NOT NULL DEFAULT '',
  consignee_address TEXT NOT NULL DEFAULT '',
  zip_code TEXT NOT NULL DEFAULT '',
  description TEXT NOT NULL DEFAULT '',
  actual_weight NUMERIC,
  declared_value NUMERIC,
  received INTEGER NOT NULL DEFAULT 0,
  received_at DATETIME,
  received_by TEXT NOT NULL DEFAULT '',
  scanned_by TEXT NOT NULL DEFAULT '',
  scanned_by_user TEXT NOT NULL DEFAULT '',
  scan_history TEXT NOT NULL DEFAULT '[]',
  version INTEGER NOT NULL DEFAULT 1,
  created_at DATETIME,
  updated_at DATETIME
);`

const scanSessionsDDL = `
CREATE TABLE IF NOT EXISTS scan_sessions (
  id TEXT PRIMARY KEY,
  user_id TEXT NOT NULL,
  user_name TEXT NOT NULL DEFAULT '',
  start_time DATETIME NOT NULL,
  end_time DATETIME,
  total_scans INTEGER NOT NULL DEFAULT 0,
  successful_scans INTEGER NOT NULL DEFAULT 0,
  error_scans INTEGER NOT NULL DEFAULT 0,
  is_active INTEGER NOT NULL DEFAULT 1,
  last_scan_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME
);`

const scanSessionsActiveIndex = `
CREATE UNIQUE INDEX IF NOT EXISTS ux_scan_sessions_active_user ON scan_sessions (user_id) WHERE is_active;`

const propagationTasksDDL = `
CREATE TABLE IF NOT EXISTS propagation_tasks (
  id TEXT PRIMARY KEY,
  tracking_number TEXT NOT NULL,
  stage TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'pending',
  run_at DATETIME NOT NULL,
  attempts INTEGER NOT NULL DEFAULT 0,
  last_error TEXT,
  parent_id TEXT,
  claimed_at DATETIME,
  completed_at DATETIME,
  canceled_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME
);`

// Open returns a fresh in-memory database private to the calling test.
func Open(t testing.TB) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_foreign_keys=1", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{SkipDefaultTransaction: true})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	// A single connection keeps the named memory database alive and serializes writers.
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	for _, stmt := range []string{manifestsDDL, parcelsDDL, scanSessionsDDL, scanSessionsActiveIndex, propagationTasksDDL} {
		require.NoError(t, db.Exec(stmt).Error)
	}
	return db
}
