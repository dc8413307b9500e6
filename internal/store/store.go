package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"gatekeeper/internal/models"
)

// Store is the sole owner of all request records and the ban registry.
// Every mutation rewrites the full snapshot file so a restart picks up
// where the process left off. A snapshot write failure is logged as an
// operational error but does not fail the mutation: in-memory state stays
// authoritative for the running process.
type Store struct {
	mu       sync.RWMutex
	requests map[int64]*models.Request
	banned   map[int64]struct{}

	// persistMu serializes snapshot writes so concurrent mutations cannot
	// produce a torn file. Each write marshals current state, so
	// last-writer-wins is safe.
	persistMu sync.Mutex
	path      string

	logger *zap.Logger
}

// Stats holds the per-status request counters plus the ban registry size.
type Stats struct {
	Total     int `json:"total"`
	Pending   int `json:"pending"`
	Confirmed int `json:"confirmed"`
	Approved  int `json:"approved"`
	Declined  int `json:"declined"`
	Banned    int `json:"banned"`
}

// Open loads the snapshot file at path, dropping records already past the
// retention horizon, and returns a ready Store. A missing file yields an
// empty store.
func Open(path string, retentionDays int, logger *zap.Logger) (*Store, error) {
	s := &Store{
		requests: make(map[int64]*models.Request),
		banned:   make(map[int64]struct{}),
		path:     path,
		logger:   logger,
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			logger.Info("No snapshot file found, starting empty", zap.String("path", path))
			return s, nil
		}
		return nil, fmt.Errorf("failed to read snapshot file: %w", err)
	}

	var snap models.Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot file: %w", err)
	}

	now := time.Now()
	dropped := 0
	for id, req := range snap.ActiveRequests {
		req := req
		if !req.Status.Valid() {
			logger.Warn("Skipping request with unknown status",
				zap.Int64("user_id", id),
				zap.String("status", string(req.Status)),
			)
			continue
		}
		if req.AgeDays(now) > retentionDays {
			dropped++
			continue
		}
		s.requests[req.UserID] = &req
	}
	for _, id := range snap.BannedUsers {
		s.banned[id] = struct{}{}
	}

	logger.Info("Snapshot restored",
		zap.Int("requests", len(s.requests)),
		zap.Int("banned", len(s.banned)),
		zap.Int("aged_out", dropped),
	)

	return s, nil
}

// Get returns a copy of the record for the given user, or nil if absent.
func (s *Store) Get(userID int64) *models.Request {
	s.mu.RLock()
	defer s.mu.RUnlock()

	req, ok := s.requests[userID]
	if !ok {
		return nil
	}
	cp := *req
	return &cp
}

// Upsert creates or overwrites the record for req.UserID and persists the
// snapshot.
func (s *Store) Upsert(req models.Request) {
	s.mu.Lock()
	s.requests[req.UserID] = &req
	s.mu.Unlock()

	s.persist()
}

// Remove deletes the record for the given user, if present.
func (s *Store) Remove(userID int64) {
	s.mu.Lock()
	delete(s.requests, userID)
	s.mu.Unlock()

	s.persist()
}

// Ban adds the user to the ban registry. Ban registry entries outlive the
// request records that triggered them.
func (s *Store) Ban(userID int64) {
	s.mu.Lock()
	s.banned[userID] = struct{}{}
	s.mu.Unlock()

	s.persist()
}

// Unban removes the user from the ban registry. No bot flow calls this
// today; it exists so an operator-driven tool can lift a ban.
func (s *Store) Unban(userID int64) {
	s.mu.Lock()
	delete(s.banned, userID)
	s.mu.Unlock()

	s.persist()
}

// IsBanned reports whether the user is in the ban registry.
func (s *Store) IsBanned(userID int64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.banned[userID]
	return ok
}

// Stats returns the current counters.
func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := Stats{
		Total:  len(s.requests),
		Banned: len(s.banned),
	}
	for _, req := range s.requests {
		switch req.Status {
		case models.StatusPending:
			st.Pending++
		case models.StatusConfirmed:
			st.Confirmed++
		case models.StatusApproved:
			st.Approved++
		case models.StatusDeclined:
			st.Declined++
		}
	}
	return st
}

// Recent returns copies of the n most recent requests, oldest first.
func (s *Store) Recent(n int) []models.Request {
	s.mu.RLock()
	all := make([]models.Request, 0, len(s.requests))
	for _, req := range s.requests {
		all = append(all, *req)
	}
	s.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool {
		return all[i].RequestedAt.Before(all[j].RequestedAt)
	})
	if len(all) > n {
		all = all[len(all)-n:]
	}
	return all
}

// Sweep removes every record whose age in whole days exceeds retentionDays,
// regardless of status, and returns the number removed. This is storage
// hygiene, not a moderation action: the ban registry is untouched.
func (s *Store) Sweep(now time.Time, retentionDays int) int {
	s.mu.Lock()
	removed := 0
	for id, req := range s.requests {
		if req.AgeDays(now) > retentionDays {
			delete(s.requests, id)
			removed++
		}
	}
	s.mu.Unlock()

	if removed > 0 {
		s.persist()
	}
	return removed
}

// snapshot builds the persisted document from current state.
func (s *Store) snapshot() models.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := models.Snapshot{
		ActiveRequests: make(map[int64]models.Request, len(s.requests)),
		BannedUsers:    make([]int64, 0, len(s.banned)),
	}
	for id, req := range s.requests {
		snap.ActiveRequests[id] = *req
	}
	for id := range s.banned {
		snap.BannedUsers = append(snap.BannedUsers, id)
	}
	sort.Slice(snap.BannedUsers, func(i, j int) bool { return snap.BannedUsers[i] < snap.BannedUsers[j] })
	return snap
}

// persist writes the full snapshot to disk via a temp file and rename.
// The snapshot is captured inside the persist critical section so the last
// write always reflects the latest in-memory state.
func (s *Store) persist() {
	s.persistMu.Lock()
	defer s.persistMu.Unlock()

	snap := s.snapshot()

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		s.logger.Error("Failed to marshal snapshot", zap.Error(err))
		return
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".tmp-")
	if err != nil {
		s.logger.Error("Failed to create snapshot temp file, a restart may lose recent changes", zap.Error(err))
		return
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		s.logger.Error("Failed to write snapshot, a restart may lose recent changes", zap.Error(err))
		return
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		s.logger.Error("Failed to close snapshot temp file", zap.Error(err))
		return
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		os.Remove(tmp.Name())
		s.logger.Error("Failed to replace snapshot file, a restart may lose recent changes", zap.Error(err))
	}
}
