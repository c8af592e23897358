package db

const schemaSQL = `
-- ===========================================================================
-- VOLUME SETTINGS (per user, zone, config, group)
-- ===========================================================================

CREATE TABLE IF NOT EXISTS volume_settings (
  user_id INTEGER NOT NULL,
  zone_id INTEGER NOT NULL,
  config_id INTEGER NOT NULL,
  group_id INTEGER NOT NULL,
  gain_index INTEGER NOT NULL,
  muted INTEGER NOT NULL DEFAULT 0,
  updated_at TEXT NOT NULL DEFAULT (datetime('now')),
  PRIMARY KEY (user_id, zone_id, config_id, group_id)
);

CREATE INDEX IF NOT EXISTS idx_volume_settings_updated ON volume_settings(updated_at);

-- ===========================================================================
-- USER PREFERENCES (policy toggles)
-- ===========================================================================

CREATE TABLE IF NOT EXISTS user_preferences (
  user_id INTEGER PRIMARY KEY,
  persist_mute INTEGER NOT NULL DEFAULT 1,
  reject_nav_during_call INTEGER NOT NULL DEFAULT 0,
  updated_at TEXT NOT NULL DEFAULT (datetime('now'))
);
`
