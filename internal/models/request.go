package models

import "time"

// Status is the lifecycle state of a join request.
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusApproved  Status = "approved"
	StatusDeclined  Status = "declined"
	StatusBanned    Status = "banned"
)

// transitions lists the allowed forward moves for each status. A status
// never moves backwards: once a request is decided it can only be banned.
var transitions = map[Status][]Status{
	StatusPending:   {StatusConfirmed, StatusApproved, StatusDeclined, StatusBanned},
	StatusConfirmed: {StatusApproved, StatusDeclined, StatusBanned},
	StatusApproved:  {StatusBanned},
	StatusDeclined:  {StatusBanned},
	StatusBanned:    {},
}

// CanAdvance reports whether moving from s to next is a valid forward
// transition.
func (s Status) CanAdvance(next Status) bool {
	for _, t := range transitions[s] {
		if t == next {
			return true
		}
	}
	return false
}

// Valid reports whether s is a known status token.
func (s Status) Valid() bool {
	_, ok := transitions[s]
	return ok
}

// Request represents a channel join request being processed by the bot.
// Profile fields are a snapshot taken when the request arrived and are
// never re-fetched.
type Request struct {
	UserID                int64      `json:"user_id"`
	ChatID                int64      `json:"chat_id"`
	UserName              string     `json:"user_name"`
	UserUsername          string     `json:"user_username"`
	UserFirstName         string     `json:"user_first_name"`
	UserLastName          string     `json:"user_last_name"`
	Status                Status     `json:"status"`
	ConfirmationMessageID *int       `json:"confirmation_message_id,omitempty"`
	RequestedAt           time.Time  `json:"channel_request_date"`
	ConfirmedAt           *time.Time `json:"confirmation_date,omitempty"`
	DecidedAt             *time.Time `json:"decision_date,omitempty"`
}

// AgeDays returns the age of the request in whole days at the given time.
func (r *Request) AgeDays(now time.Time) int {
	return int(now.Sub(r.RequestedAt).Hours() / 24)
}

// Snapshot is the persisted document: all active requests keyed by user ID
// plus the list of banned user IDs. Requests and bans are written as a
// single unit so they cannot drift apart across a restart.
type Snapshot struct {
	ActiveRequests map[int64]Request `json:"active_requests"`
	BannedUsers    []int64           `json:"banned_users"`
}
