package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestStatusCanAdvance(t *testing.T) {
	tests := []struct {
		from    Status
		to      Status
		allowed bool
	}{
		{StatusPending, StatusConfirmed, true},
		{StatusPending, StatusApproved, true},
		{StatusPending, StatusDeclined, true},
		{StatusPending, StatusBanned, true},
		{StatusConfirmed, StatusApproved, true},
		{StatusConfirmed, StatusDeclined, true},
		{StatusConfirmed, StatusBanned, true},
		{StatusApproved, StatusBanned, true},
		{StatusDeclined, StatusBanned, true},

		// No regressions: a later status never moves back.
		{StatusConfirmed, StatusPending, false},
		{StatusApproved, StatusPending, false},
		{StatusApproved, StatusConfirmed, false},
		{StatusApproved, StatusDeclined, false},
		{StatusDeclined, StatusConfirmed, false},
		{StatusDeclined, StatusApproved, false},
		{StatusBanned, StatusPending, false},
		{StatusBanned, StatusApproved, false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.allowed, tt.from.CanAdvance(tt.to), "%s -> %s", tt.from, tt.to)
	}
}

func TestStatusValid(t *testing.T) {
	assert.True(t, StatusPending.Valid())
	assert.True(t, StatusBanned.Valid())
	assert.False(t, Status("unknown").Valid())
	assert.False(t, Status("").Valid())
}

func TestRequestAgeDays(t *testing.T) {
	now := time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)
	req := &Request{RequestedAt: now.Add(-49 * time.Hour)}

	assert.Equal(t, 2, req.AgeDays(now))

	req.RequestedAt = now.Add(-23 * time.Hour)
	assert.Equal(t, 0, req.AgeDays(now))
}
