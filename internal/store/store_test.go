package store

import (
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"gatekeeper/internal/models"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	path := filepath.Join(t.TempDir(), "data.json")
	s, err := Open(path, 30, zap.NewNop())
	require.NoError(t, err)
	return s
}

func testRequest(userID int64, status models.Status, requestedAt time.Time) models.Request {
	return models.Request{
		UserID:        userID,
		ChatID:        -100,
		UserName:      "Test User",
		UserUsername:  "testuser",
		UserFirstName: "Test",
		UserLastName:  "User",
		Status:        status,
		RequestedAt:   requestedAt,
	}
}

func TestStoreUpsertGetRemove(t *testing.T) {
	s := newTestStore(t)

	assert.Nil(t, s.Get(1))

	s.Upsert(testRequest(1, models.StatusPending, time.Now()))
	got := s.Get(1)
	require.NotNil(t, got)
	assert.Equal(t, models.StatusPending, got.Status)

	// Get returns a copy: mutating it does not touch the store.
	got.Status = models.StatusApproved
	assert.Equal(t, models.StatusPending, s.Get(1).Status)

	s.Remove(1)
	assert.Nil(t, s.Get(1))
}

func TestStoreBanRegistry(t *testing.T) {
	s := newTestStore(t)

	assert.False(t, s.IsBanned(7))
	s.Ban(7)
	assert.True(t, s.IsBanned(7))
	s.Unban(7)
	assert.False(t, s.IsBanned(7))
	s.Ban(7)

	// Bans are independent of request records.
	s.Upsert(testRequest(7, models.StatusPending, time.Now().Add(-100*24*time.Hour)))
	s.Sweep(time.Now(), 30)
	assert.Nil(t, s.Get(7))
	assert.True(t, s.IsBanned(7))
}

func TestStoreSweepHorizon(t *testing.T) {
	s := newTestStore(t)
	now := time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)

	// 31 whole days old: removed.
	s.Upsert(testRequest(1, models.StatusApproved, now.Add(-31*24*time.Hour)))
	// Exactly 30 whole days old: kept.
	s.Upsert(testRequest(2, models.StatusPending, now.Add(-30*24*time.Hour)))
	// Fresh: kept.
	s.Upsert(testRequest(3, models.StatusDeclined, now))

	removed := s.Sweep(now, 30)

	assert.Equal(t, 1, removed)
	assert.Nil(t, s.Get(1))
	assert.NotNil(t, s.Get(2))
	assert.NotNil(t, s.Get(3))
}

func TestStoreSweepIgnoresStatus(t *testing.T) {
	s := newTestStore(t)
	now := time.Now()
	old := now.Add(-40 * 24 * time.Hour)

	for i, status := range []models.Status{
		models.StatusPending,
		models.StatusConfirmed,
		models.StatusApproved,
		models.StatusDeclined,
		models.StatusBanned,
	} {
		s.Upsert(testRequest(int64(i+1), status, old))
	}

	assert.Equal(t, 5, s.Sweep(now, 30))
	assert.Equal(t, 0, s.Stats().Total)
}

func TestStoreStats(t *testing.T) {
	s := newTestStore(t)
	now := time.Now()

	s.Upsert(testRequest(1, models.StatusPending, now))
	s.Upsert(testRequest(2, models.StatusPending, now))
	s.Upsert(testRequest(3, models.StatusConfirmed, now))
	s.Upsert(testRequest(4, models.StatusApproved, now))
	s.Upsert(testRequest(5, models.StatusDeclined, now))
	s.Ban(99)

	st := s.Stats()
	assert.Equal(t, Stats{Total: 5, Pending: 2, Confirmed: 1, Approved: 1, Declined: 1, Banned: 1}, st)
}

func TestStoreRecent(t *testing.T) {
	s := newTestStore(t)
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	for i := int64(1); i <= 15; i++ {
		s.Upsert(testRequest(i, models.StatusPending, base.Add(time.Duration(i)*time.Hour)))
	}

	recent := s.Recent(10)
	require.Len(t, recent, 10)
	// Oldest first, and only the latest ten survive the cut.
	assert.Equal(t, int64(6), recent[0].UserID)
	assert.Equal(t, int64(15), recent[9].UserID)
}

func TestStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.json")
	s, err := Open(path, 30, zap.NewNop())
	require.NoError(t, err)

	now := time.Now().UTC().Truncate(time.Second)
	confirmedAt := now.Add(time.Minute)
	msgID := 42

	req := testRequest(1, models.StatusConfirmed, now)
	req.ConfirmationMessageID = &msgID
	req.ConfirmedAt = &confirmedAt
	s.Upsert(req)
	s.Upsert(testRequest(2, models.StatusPending, now))
	s.Ban(3)

	restored, err := Open(path, 30, zap.NewNop())
	require.NoError(t, err)

	got := restored.Get(1)
	require.NotNil(t, got)
	assert.Equal(t, models.StatusConfirmed, got.Status)
	require.NotNil(t, got.ConfirmationMessageID)
	assert.Equal(t, 42, *got.ConfirmationMessageID)
	require.NotNil(t, got.ConfirmedAt)
	assert.True(t, got.ConfirmedAt.Equal(confirmedAt))
	assert.True(t, got.RequestedAt.Equal(now))

	assert.NotNil(t, restored.Get(2))
	assert.True(t, restored.IsBanned(3))
	assert.Equal(t, 2, restored.Stats().Total)
}

func TestStoreRestoreDropsAgedRecords(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.json")
	s, err := Open(path, 30, zap.NewNop())
	require.NoError(t, err)

	s.Upsert(testRequest(1, models.StatusApproved, time.Now().Add(-60*24*time.Hour)))
	s.Upsert(testRequest(2, models.StatusPending, time.Now()))
	s.Ban(1)

	restored, err := Open(path, 30, zap.NewNop())
	require.NoError(t, err)

	assert.Nil(t, restored.Get(1))
	assert.NotNil(t, restored.Get(2))
	// The ban outlives the purged record.
	assert.True(t, restored.IsBanned(1))
}

func TestStoreConcurrentUpsertsAllSurviveReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.json")
	s, err := Open(path, 30, zap.NewNop())
	require.NoError(t, err)

	const writers = 8
	const perWriter = 25

	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				id := int64(w*perWriter + i + 1)
				s.Upsert(testRequest(id, models.StatusPending, time.Now()))
			}
		}(w)
	}
	wg.Wait()

	// The file on disk reflects every mutation, not a stale snapshot.
	restored, err := Open(path, 30, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, writers*perWriter, restored.Stats().Total)
}

func TestStoreOpenMissingFile(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "missing.json"), 30, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, 0, s.Stats().Total)
}
