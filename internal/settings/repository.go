package settings

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// DBPair interface for dependency injection (matches db.DBPair).
type DBPair interface {
	Reader() *sql.DB
	Writer() *sql.DB
}

// Repository persists per-user volume state and policy toggles. It backs the
// volume groups' settings store, so the getters distinguish "no row" from an
// actual value.
type Repository struct {
	reader *sql.DB
	writer *sql.DB
}

// NewRepository creates a settings Repository.
func NewRepository(dbPair DBPair) *Repository {
	return &Repository{reader: dbPair.Reader(), writer: dbPair.Writer()}
}

// GainIndex returns a user's stored gain index for one group.
func (r *Repository) GainIndex(userID, zoneID, configID, groupID int) (int, bool, error) {
	var index int
	err := r.reader.QueryRow(`
		SELECT gain_index FROM volume_settings
		WHERE user_id = ? AND zone_id = ? AND config_id = ? AND group_id = ?
	`, userID, zoneID, configID, groupID).Scan(&index)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("query gain index: %w", err)
	}
	return index, true, nil
}

// StoreGainIndex upserts a user's gain index for one group.
func (r *Repository) StoreGainIndex(userID, zoneID, configID, groupID, index int) error {
	_, err := r.writer.Exec(`
		INSERT INTO volume_settings (user_id, zone_id, config_id, group_id, gain_index, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id, zone_id, config_id, group_id)
		DO UPDATE SET gain_index = excluded.gain_index, updated_at = excluded.updated_at
	`, userID, zoneID, configID, groupID, index, nowISO())
	if err != nil {
		return fmt.Errorf("store gain index: %w", err)
	}
	return nil
}

// Mute returns a user's stored mute state for one group.
func (r *Repository) Mute(userID, zoneID, configID, groupID int) (bool, bool, error) {
	var muted int
	err := r.reader.QueryRow(`
		SELECT muted FROM volume_settings
		WHERE user_id = ? AND zone_id = ? AND config_id = ? AND group_id = ?
	`, userID, zoneID, configID, groupID).Scan(&muted)
	if errors.Is(err, sql.ErrNoRows) {
		return false, false, nil
	}
	if err != nil {
		return false, false, fmt.Errorf("query mute: %w", err)
	}
	return muted != 0, true, nil
}

// StoreMute upserts a user's mute state for one group. A fresh row keeps the
// gain index at -1 until one is stored; the volume layer treats an invalid
// index as unset.
func (r *Repository) StoreMute(userID, zoneID, configID, groupID int, muted bool) error {
	value := 0
	if muted {
		value = 1
	}
	_, err := r.writer.Exec(`
		INSERT INTO volume_settings (user_id, zone_id, config_id, group_id, gain_index, muted, updated_at)
		VALUES (?, ?, ?, ?, -1, ?, ?)
		ON CONFLICT (user_id, zone_id, config_id, group_id)
		DO UPDATE SET muted = excluded.muted, updated_at = excluded.updated_at
	`, userID, zoneID, configID, groupID, value, nowISO())
	if err != nil {
		return fmt.Errorf("store mute: %w", err)
	}
	return nil
}

// IsPersistMuteEnabled reports whether a user opted into mute persistence.
// Missing rows default to enabled; a read failure disables persistence for
// the call rather than erroring the volume path.
func (r *Repository) IsPersistMuteEnabled(userID int) bool {
	var persist int
	err := r.reader.QueryRow(`
		SELECT persist_mute FROM user_preferences WHERE user_id = ?
	`, userID).Scan(&persist)
	if errors.Is(err, sql.ErrNoRows) {
		return true
	}
	if err != nil {
		return false
	}
	return persist != 0
}

// SetPersistMute stores a user's mute-persistence preference.
func (r *Repository) SetPersistMute(userID int, enabled bool) error {
	return r.upsertPreference(userID, "persist_mute", enabled)
}

// RejectNavigationDuringCall reports a user's navigation-during-call choice.
func (r *Repository) RejectNavigationDuringCall(userID int) (bool, error) {
	var reject int
	err := r.reader.QueryRow(`
		SELECT reject_nav_during_call FROM user_preferences WHERE user_id = ?
	`, userID).Scan(&reject)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("query nav preference: %w", err)
	}
	return reject != 0, nil
}

// SetRejectNavigationDuringCall stores the navigation-during-call choice.
func (r *Repository) SetRejectNavigationDuringCall(userID int, reject bool) error {
	return r.upsertPreference(userID, "reject_nav_during_call", reject)
}

func (r *Repository) upsertPreference(userID int, column string, value bool) error {
	intValue := 0
	if value {
		intValue = 1
	}
	// column comes from the two callers above, never from input.
	query := fmt.Sprintf(`
		INSERT INTO user_preferences (user_id, %s, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT (user_id)
		DO UPDATE SET %s = excluded.%s, updated_at = excluded.updated_at
	`, column, column, column)
	if _, err := r.writer.Exec(query, userID, intValue, nowISO()); err != nil {
		return fmt.Errorf("store preference %s: %w", column, err)
	}
	return nil
}

// PruneStale deletes volume settings untouched for longer than the retention
// window. Returns the number of rows removed.
func (r *Repository) PruneStale(retentionDays int) (int64, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -retentionDays).Format(time.RFC3339)
	result, err := r.writer.Exec(`
		DELETE FROM volume_settings WHERE updated_at < ?
	`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune volume settings: %w", err)
	}
	return result.RowsAffected()
}

func nowISO() string {
	return time.Now().UTC().Format(time.RFC3339)
}
