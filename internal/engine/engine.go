package engine

import (
	"context"
	"errors"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"gatekeeper/internal/models"
	"gatekeeper/internal/notifier"
	"gatekeeper/internal/store"
)

// Sentinel errors a Transport implementation uses to classify delivery
// failures the engine reacts to.
var (
	// ErrRecipientUnreachable means the recipient cannot receive messages
	// (e.g. blocked the bot). The engine auto-declines the request.
	ErrRecipientUnreachable = errors.New("recipient unreachable")

	// ErrJoinRequestMissing means the join request no longer exists on the
	// transport side. The approval is still recorded.
	ErrJoinRequestMissing = errors.New("join request no longer exists")
)

// Transport is the outbound side of the messaging service. Implementations
// must bound every call (the engine holds a per-requester lock across them).
type Transport interface {
	SendMessage(ctx context.Context, chatID int64, text string, keyboard *tgbotapi.InlineKeyboardMarkup) (int, error)
	EditMessage(ctx context.Context, chatID int64, messageID int, text string, keyboard *tgbotapi.InlineKeyboardMarkup) error
	ApproveJoin(ctx context.Context, chatID, userID int64) error
	DeclineJoin(ctx context.Context, chatID, userID int64) error
}

// Notifier renders requester-facing texts and fans lifecycle events out to
// the moderators.
type Notifier interface {
	Notify(ctx context.Context, event notifier.Event, req models.Request)
	Welcome() (string, *tgbotapi.InlineKeyboardMarkup)
	Confirmed() (string, *tgbotapi.InlineKeyboardMarkup)
	Declined() string
	Banned() string
}

// Policies are the behavior flags from the settings section of the config.
type Policies struct {
	AutoApprove      bool
	NotifyModerators bool
	BanOnDecline     bool
}

// Profile is the requester profile snapshot captured when a join request
// arrives.
type Profile struct {
	Username  string
	FirstName string
	LastName  string
}

// Engine applies lifecycle transitions to join requests. All transitions
// for one requester are serialized; re-applying a transition that already
// happened is a logged no-op, never a regression.
type Engine struct {
	store     *store.Store
	transport Transport
	notifier  Notifier
	policies  Policies
	logger    *zap.Logger
	locks     *userLocks
	now       func() time.Time
}

// New creates an Engine over the given store, transport and notifier.
func New(st *store.Store, transport Transport, n Notifier, policies Policies, logger *zap.Logger) *Engine {
	return &Engine{
		store:     st,
		transport: transport,
		notifier:  n,
		policies:  policies,
		logger:    logger,
		locks:     newUserLocks(),
		now:       time.Now,
	}
}

// Admit handles an inbound join request. Banned requesters are declined at
// the boundary without touching the store. A requester already confirmed or
// approved is short-circuited to approval when auto-approve is on, and
// otherwise ignored; anything else starts a fresh pending request and sends
// the confirmation prompt.
func (e *Engine) Admit(ctx context.Context, userID, chatID int64, profile Profile) {
	unlock := e.locks.lock(userID)
	defer unlock()

	if e.store.IsBanned(userID) {
		e.logger.Info("Join request from banned user declined", zap.Int64("user_id", userID))
		if err := e.transport.DeclineJoin(ctx, chatID, userID); err != nil {
			e.logger.Error("Failed to decline join request of banned user", zap.Int64("user_id", userID), zap.Error(err))
		}
		return
	}

	if existing := e.store.Get(userID); existing != nil &&
		(existing.Status == models.StatusConfirmed || existing.Status == models.StatusApproved) {
		if e.policies.AutoApprove {
			e.approve(ctx, existing)
		}
		return
	}

	fullName := profile.FirstName
	if profile.LastName != "" {
		fullName += " " + profile.LastName
	}
	req := models.Request{
		UserID:        userID,
		ChatID:        chatID,
		UserName:      fullName,
		UserUsername:  profile.Username,
		UserFirstName: profile.FirstName,
		UserLastName:  profile.LastName,
		Status:        models.StatusPending,
		RequestedAt:   e.now(),
	}
	e.store.Upsert(req)

	text, keyboard := e.notifier.Welcome()
	messageID, err := e.transport.SendMessage(ctx, userID, text, keyboard)
	switch {
	case errors.Is(err, ErrRecipientUnreachable):
		e.logger.Warn("User unreachable, auto-declining join request", zap.Int64("user_id", userID))
		e.autoDecline(ctx, &req)
	case err != nil:
		e.logger.Error("Failed to send confirmation prompt", zap.Int64("user_id", userID), zap.Error(err))
	default:
		req.ConfirmationMessageID = &messageID
		e.store.Upsert(req)
	}

	// Moderators hear about the request even when the prompt could not be
	// delivered and the record was auto-declined.
	if e.policies.NotifyModerators {
		e.notifier.Notify(ctx, notifier.EventNewRequest, req)
	}

	e.logger.Info("Join request registered", zap.Int64("user_id", userID), zap.String("username", profile.Username))
}

// Confirm records that the requester accepted the gate.
func (e *Engine) Confirm(ctx context.Context, userID int64) {
	unlock := e.locks.lock(userID)
	defer unlock()

	req := e.store.Get(userID)
	if req == nil {
		e.logger.Warn("Confirm for unknown request", zap.Int64("user_id", userID))
		return
	}
	if !req.Status.CanAdvance(models.StatusConfirmed) {
		e.logger.Warn("Stale confirm ignored",
			zap.Int64("user_id", userID),
			zap.String("status", string(req.Status)),
		)
		return
	}

	now := e.now()
	req.Status = models.StatusConfirmed
	req.ConfirmedAt = &now
	e.store.Upsert(*req)

	if req.ConfirmationMessageID != nil {
		text, keyboard := e.notifier.Confirmed()
		if err := e.transport.EditMessage(ctx, userID, *req.ConfirmationMessageID, text, keyboard); err != nil {
			e.logger.Error("Failed to update confirmation message", zap.Int64("user_id", userID), zap.Error(err))
		}
	}

	if e.policies.AutoApprove {
		e.approve(ctx, req)
	}

	if e.policies.NotifyModerators {
		e.notifier.Notify(ctx, notifier.EventConfirmed, *req)
	}

	e.logger.Info("User confirmed the rules", zap.Int64("user_id", userID))
}

// Decline records a negative decision, tells the transport to decline the
// join and, under the ban-on-decline policy, bans the requester.
func (e *Engine) Decline(ctx context.Context, userID int64) {
	unlock := e.locks.lock(userID)
	defer unlock()

	req := e.store.Get(userID)
	if req == nil {
		e.logger.Warn("Decline for unknown request", zap.Int64("user_id", userID))
		return
	}
	if !req.Status.CanAdvance(models.StatusDeclined) {
		e.logger.Warn("Stale decline ignored",
			zap.Int64("user_id", userID),
			zap.String("status", string(req.Status)),
		)
		return
	}

	now := e.now()
	req.Status = models.StatusDeclined
	req.DecidedAt = &now
	e.store.Upsert(*req)

	if req.ConfirmationMessageID != nil {
		if err := e.transport.EditMessage(ctx, userID, *req.ConfirmationMessageID, e.notifier.Declined(), nil); err != nil {
			e.logger.Error("Failed to update decline message", zap.Int64("user_id", userID), zap.Error(err))
		}
	}

	if err := e.transport.DeclineJoin(ctx, req.ChatID, userID); err != nil {
		e.logger.Error("Failed to decline join request", zap.Int64("user_id", userID), zap.Error(err))
	}

	if e.policies.BanOnDecline {
		e.ban(ctx, userID)
	}

	if e.policies.NotifyModerators {
		e.notifier.Notify(ctx, notifier.EventDeclined, *req)
	}

	e.logger.Info("Join request declined", zap.Int64("user_id", userID))
}

// Approve tells the transport to approve the join and records the decision.
func (e *Engine) Approve(ctx context.Context, userID int64) {
	unlock := e.locks.lock(userID)
	defer unlock()

	req := e.store.Get(userID)
	if req == nil {
		e.logger.Warn("Approve for unknown request", zap.Int64("user_id", userID))
		return
	}
	e.approve(ctx, req)
}

// approve performs the approval under an already-held user lock. The
// decision is recorded even when the transport call fails: the record
// reflects moderation intent, not delivery.
func (e *Engine) approve(ctx context.Context, req *models.Request) {
	if req.Status == models.StatusApproved {
		return
	}
	if !req.Status.CanAdvance(models.StatusApproved) {
		e.logger.Warn("Approve ignored for decided request",
			zap.Int64("user_id", req.UserID),
			zap.String("status", string(req.Status)),
		)
		return
	}

	err := e.transport.ApproveJoin(ctx, req.ChatID, req.UserID)
	switch {
	case errors.Is(err, ErrJoinRequestMissing):
		e.logger.Info("Join request already resolved on the transport side, recording approval",
			zap.Int64("user_id", req.UserID))
	case err != nil:
		e.logger.Error("Failed to approve join request, recording approval anyway",
			zap.Int64("user_id", req.UserID), zap.Error(err))
	}

	now := e.now()
	req.Status = models.StatusApproved
	req.DecidedAt = &now
	e.store.Upsert(*req)

	e.logger.Info("Join request approved", zap.Int64("user_id", req.UserID))
}

// Ban adds the requester to the ban registry regardless of whether a
// request record exists.
func (e *Engine) Ban(ctx context.Context, userID int64) {
	unlock := e.locks.lock(userID)
	defer unlock()

	e.ban(ctx, userID)
}

// ban performs the ban under an already-held user lock.
func (e *Engine) ban(ctx context.Context, userID int64) {
	e.store.Ban(userID)

	if req := e.store.Get(userID); req != nil && req.Status.CanAdvance(models.StatusBanned) {
		req.Status = models.StatusBanned
		e.store.Upsert(*req)
	}

	// Best effort: the user may have blocked the bot, which is fine.
	if _, err := e.transport.SendMessage(ctx, userID, e.notifier.Banned(), nil); err != nil {
		e.logger.Debug("Failed to deliver ban notice", zap.Int64("user_id", userID), zap.Error(err))
	}

	e.logger.Info("User banned", zap.Int64("user_id", userID))
}

// autoDecline marks a request declined without editing the prompt (there is
// none: delivery failed). The ban-on-decline policy is deliberately not
// applied here, an unreachable user is not a refusal.
func (e *Engine) autoDecline(ctx context.Context, req *models.Request) {
	now := e.now()
	req.Status = models.StatusDeclined
	req.DecidedAt = &now
	e.store.Upsert(*req)

	if err := e.transport.DeclineJoin(ctx, req.ChatID, req.UserID); err != nil {
		e.logger.Error("Failed to auto-decline join request", zap.Int64("user_id", req.UserID), zap.Error(err))
	}
}
