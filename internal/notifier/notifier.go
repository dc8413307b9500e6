package notifier

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"gatekeeper/internal/config"
	"gatekeeper/internal/models"
)

// Event identifies which lifecycle change a moderator notification is about.
type Event string

const (
	EventNewRequest Event = "new_request"
	EventConfirmed  Event = "confirmed"
	EventDeclined   Event = "declined"
)

// templateKeys maps an event to its message template in the config.
var templateKeys = map[Event]string{
	EventNewRequest: "admin_new",
	EventConfirmed:  "admin_confirmed",
	EventDeclined:   "admin_declined",
}

// Sender is the outbound message capability the dispatcher needs.
type Sender interface {
	SendMessage(ctx context.Context, chatID int64, text string, keyboard *tgbotapi.InlineKeyboardMarkup) (int, error)
}

// Dispatcher renders message templates and fans lifecycle notifications out
// to every configured moderator. A failed delivery to one moderator never
// blocks delivery to the rest.
type Dispatcher struct {
	sender Sender
	cfg    *config.Config
	logger *zap.Logger
}

// NewDispatcher creates a dispatcher over the given sender and config.
func NewDispatcher(sender Sender, cfg *config.Config, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		sender: sender,
		cfg:    cfg,
		logger: logger,
	}
}

// Notify sends the templated message for the event to every moderator,
// attaching the moderator action keyboard for the request's user.
func (d *Dispatcher) Notify(ctx context.Context, event Event, req models.Request) {
	key, ok := templateKeys[event]
	if !ok {
		d.logger.Error("Unknown notification event", zap.String("event", string(event)))
		return
	}

	text := d.render(d.cfg.Messages[key], req)
	keyboard := d.ModeratorKeyboard(req.UserID)

	for _, moderatorID := range d.cfg.Bot.ModeratorIDs {
		if _, err := d.sender.SendMessage(ctx, moderatorID, text, keyboard); err != nil {
			d.logger.Error("Failed to notify moderator",
				zap.Int64("moderator_id", moderatorID),
				zap.Int64("user_id", req.UserID),
				zap.String("event", string(event)),
				zap.Error(err),
			)
		}
	}
}

// render substitutes record fields into a message template.
func (d *Dispatcher) render(template string, req models.Request) string {
	username := req.UserUsername
	if username == "" {
		username = "без username"
	}
	replacer := strings.NewReplacer(
		"{user_name}", strings.TrimSpace(req.UserFirstName+" "+req.UserLastName),
		"{username}", username,
		"{user_id}", strconv.FormatInt(req.UserID, 10),
		"{time}", time.Now().Format("2006-01-02 15:04:05"),
		"{status}", string(req.Status),
		"{channel_title}", d.cfg.Channel.Title,
	)
	return replacer.Replace(template)
}

// Welcome returns the confirmation prompt text and keyboard for a new
// requester.
func (d *Dispatcher) Welcome() (string, *tgbotapi.InlineKeyboardMarkup) {
	replacer := strings.NewReplacer(
		"{channel_title}", d.cfg.Channel.Title,
		"{age_requirement}", strconv.Itoa(d.cfg.Channel.AgeRequirement),
	)
	keyboard := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(d.cfg.Keyboards.ConfirmLabel, "confirm"),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(d.cfg.Keyboards.DeclineLabel, "decline"),
		),
	)
	return replacer.Replace(d.cfg.Messages["welcome"]), &keyboard
}

// Confirmed returns the replacement text for the confirmation prompt after
// the requester accepted, plus the adapter channel follow-up keyboard if one
// is configured.
func (d *Dispatcher) Confirmed() (string, *tgbotapi.InlineKeyboardMarkup) {
	replacer := strings.NewReplacer(
		"{channel_title}", d.cfg.Channel.Title,
		"{adapter_channel}", d.cfg.Channel.AdapterChannel,
	)
	return replacer.Replace(d.cfg.Messages["confirmed"]), d.adapterKeyboard()
}

// Declined returns the replacement text shown after a decline.
func (d *Dispatcher) Declined() string {
	return d.cfg.Messages["declined"]
}

// Banned returns the text sent to a banned requester.
func (d *Dispatcher) Banned() string {
	return d.cfg.Messages["banned"]
}

func (d *Dispatcher) adapterKeyboard() *tgbotapi.InlineKeyboardMarkup {
	adapter := d.cfg.Channel.AdapterChannel
	if adapter == "" {
		return nil
	}
	url := "https://t.me/" + strings.TrimPrefix(adapter, "@")
	keyboard := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonURL("📢 ПОДПИСАТЬСЯ НА ПЕРЕХОДНИК", url),
		),
	)
	return &keyboard
}

// ModeratorKeyboard builds the configured moderator action rows for the
// given requester. The callback data embeds the requester ID so the action
// can be dispatched later without any other context.
func (d *Dispatcher) ModeratorKeyboard(userID int64) *tgbotapi.InlineKeyboardMarkup {
	if len(d.cfg.Keyboards.Moderator) == 0 {
		return nil
	}
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(d.cfg.Keyboards.Moderator))
	for _, row := range d.cfg.Keyboards.Moderator {
		buttons := make([]tgbotapi.InlineKeyboardButton, 0, len(row))
		for _, action := range row {
			buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonData(
				d.cfg.Keyboards.ModeratorLabels[action],
				fmt.Sprintf("%s:%d", action, userID),
			))
		}
		rows = append(rows, buttons)
	}
	keyboard := tgbotapi.NewInlineKeyboardMarkup(rows...)
	return &keyboard
}
