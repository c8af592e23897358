package settings

import (
	"path/filepath"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"

	"github.com/kmorales/car-audio-hub-go/internal/db"
)

func setupTestRepo(t *testing.T) *Repository {
	t.Helper()
	tempDir := t.TempDir()
	dbPath := filepath.Join(tempDir, "test.db")

	dbPair, err := db.Init(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { dbPair.Close() })

	return NewRepository(dbPair)
}

func TestRepository_GainIndexRoundTrip(t *testing.T) {
	repo := setupTestRepo(t)

	_, found, err := repo.GainIndex(7, 0, 0, 1)
	require.NoError(t, err)
	require.False(t, found)

	require.NoError(t, repo.StoreGainIndex(7, 0, 0, 1, 12))
	index, found, err := repo.GainIndex(7, 0, 0, 1)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, 12, index)

	// Upsert overwrites in place.
	require.NoError(t, repo.StoreGainIndex(7, 0, 0, 1, 4))
	index, _, err = repo.GainIndex(7, 0, 0, 1)
	require.NoError(t, err)
	require.Equal(t, 4, index)

	// Other users and groups are untouched.
	_, found, err = repo.GainIndex(8, 0, 0, 1)
	require.NoError(t, err)
	require.False(t, found)
	_, found, err = repo.GainIndex(7, 0, 0, 2)
	require.NoError(t, err)
	require.False(t, found)
}

func TestRepository_MuteRoundTrip(t *testing.T) {
	repo := setupTestRepo(t)

	_, found, err := repo.Mute(7, 0, 0, 1)
	require.NoError(t, err)
	require.False(t, found)

	require.NoError(t, repo.StoreMute(7, 0, 0, 1, true))
	muted, found, err := repo.Mute(7, 0, 0, 1)
	require.NoError(t, err)
	require.True(t, found)
	require.True(t, muted)

	require.NoError(t, repo.StoreMute(7, 0, 0, 1, false))
	muted, _, err = repo.Mute(7, 0, 0, 1)
	require.NoError(t, err)
	require.False(t, muted)
}

func TestRepository_StoreMuteBeforeGainIndex(t *testing.T) {
	repo := setupTestRepo(t)

	// A mute-only row keeps the placeholder gain index, which the volume
	// layer treats as unset.
	require.NoError(t, repo.StoreMute(7, 0, 0, 1, true))
	index, found, err := repo.GainIndex(7, 0, 0, 1)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, -1, index)

	// Storing an index later does not clobber the mute.
	require.NoError(t, repo.StoreGainIndex(7, 0, 0, 1, 5))
	muted, found, err := repo.Mute(7, 0, 0, 1)
	require.NoError(t, err)
	require.True(t, found)
	require.True(t, muted)
}

func TestRepository_PersistMutePreference(t *testing.T) {
	repo := setupTestRepo(t)

	// Default is enabled for unknown users.
	require.True(t, repo.IsPersistMuteEnabled(7))

	require.NoError(t, repo.SetPersistMute(7, false))
	require.False(t, repo.IsPersistMuteEnabled(7))

	require.NoError(t, repo.SetPersistMute(7, true))
	require.True(t, repo.IsPersistMuteEnabled(7))
}

func TestRepository_NavigationPreference(t *testing.T) {
	repo := setupTestRepo(t)

	reject, err := repo.RejectNavigationDuringCall(7)
	require.NoError(t, err)
	require.False(t, reject)

	require.NoError(t, repo.SetRejectNavigationDuringCall(7, true))
	reject, err = repo.RejectNavigationDuringCall(7)
	require.NoError(t, err)
	require.True(t, reject)

	// The two preference columns live in one row and do not clobber each
	// other.
	require.NoError(t, repo.SetPersistMute(7, false))
	reject, err = repo.RejectNavigationDuringCall(7)
	require.NoError(t, err)
	require.True(t, reject)
	require.False(t, repo.IsPersistMuteEnabled(7))
}

func TestRepository_PruneStale(t *testing.T) {
	repo := setupTestRepo(t)

	require.NoError(t, repo.StoreGainIndex(7, 0, 0, 1, 5))

	// Fresh rows survive the prune.
	count, err := repo.PruneStale(30)
	require.NoError(t, err)
	require.Zero(t, count)

	// Backdate the row past the retention window.
	stale := time.Now().UTC().AddDate(0, 0, -31).Format(time.RFC3339)
	_, err = repo.writer.Exec(`UPDATE volume_settings SET updated_at = ?`, stale)
	require.NoError(t, err)

	count, err = repo.PruneStale(30)
	require.NoError(t, err)
	require.Equal(t, int64(1), count)

	_, found, err := repo.GainIndex(7, 0, 0, 1)
	require.NoError(t, err)
	require.False(t, found)
}

func TestService_PruneJobLifecycle(t *testing.T) {
	repo := setupTestRepo(t)
	service := NewService(repo, 0, nil)

	require.Equal(t, DefaultRetentionDays, service.retentionDays)
	require.Same(t, repo, service.Repository())

	require.NoError(t, service.StartPruneJob())
	service.StopPruneJob()
}
