package telegram_bot

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"gatekeeper/internal/engine"
)

// Telegram API calls must not block a per-user transition indefinitely, so
// the underlying HTTP client carries a hard timeout.
const requestTimeout = 30 * time.Second

// Client wraps the Telegram Bot API and implements the engine's outbound
// transport contract.
type Client struct {
	api    *tgbotapi.BotAPI
	logger *zap.Logger
}

// NewClient authorizes against the Telegram Bot API.
func NewClient(token string, logger *zap.Logger) (*Client, error) {
	api, err := tgbotapi.NewBotAPIWithClient(token, tgbotapi.APIEndpoint, &http.Client{Timeout: requestTimeout})
	if err != nil {
		return nil, fmt.Errorf("failed to create Telegram bot API: %w", err)
	}

	logger.Info("Telegram bot authorized", zap.String("username", api.Self.UserName))

	return &Client{api: api, logger: logger}, nil
}

// Updates opens the long-poll update channel.
func (c *Client) Updates() tgbotapi.UpdatesChannel {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	return c.api.GetUpdatesChan(u)
}

// StopUpdates stops the long-poll loop.
func (c *Client) StopUpdates() {
	c.api.StopReceivingUpdates()
}

// Username returns the authorized bot account name.
func (c *Client) Username() string {
	return c.api.Self.UserName
}

// AnswerCallback acknowledges a callback query; with alert the text is
// shown only to the sender as a popup.
func (c *Client) AnswerCallback(queryID, text string, alert bool) error {
	var callback tgbotapi.CallbackConfig
	if alert {
		callback = tgbotapi.NewCallbackWithAlert(queryID, text)
	} else {
		callback = tgbotapi.NewCallback(queryID, text)
	}
	_, err := c.api.Request(callback)
	return err
}

// SendMessage delivers a Markdown message with an optional inline keyboard
// and returns the sent message ID.
func (c *Client) SendMessage(ctx context.Context, chatID int64, text string, keyboard *tgbotapi.InlineKeyboardMarkup) (int, error) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdown
	if keyboard != nil {
		msg.ReplyMarkup = *keyboard
	}

	sent, err := c.api.Send(msg)
	if err != nil {
		return 0, classifySendError(err)
	}
	return sent.MessageID, nil
}

// EditMessage replaces the text (and keyboard, if given) of a previously
// sent message.
func (c *Client) EditMessage(ctx context.Context, chatID int64, messageID int, text string, keyboard *tgbotapi.InlineKeyboardMarkup) error {
	var edit tgbotapi.EditMessageTextConfig
	if keyboard != nil {
		edit = tgbotapi.NewEditMessageTextAndMarkup(chatID, messageID, text, *keyboard)
	} else {
		edit = tgbotapi.NewEditMessageText(chatID, messageID, text)
	}
	edit.ParseMode = tgbotapi.ModeMarkdown

	if _, err := c.api.Send(edit); err != nil {
		return classifySendError(err)
	}
	return nil
}

// ApproveJoin approves the pending chat join request for the user.
func (c *Client) ApproveJoin(ctx context.Context, chatID, userID int64) error {
	_, err := c.api.Request(tgbotapi.ApproveChatJoinRequestConfig{
		ChatConfig: tgbotapi.ChatConfig{ChatID: chatID},
		UserID:     userID,
	})
	if err != nil {
		return classifyJoinError(err)
	}
	return nil
}

// DeclineJoin declines the pending chat join request for the user.
func (c *Client) DeclineJoin(ctx context.Context, chatID, userID int64) error {
	_, err := c.api.Request(tgbotapi.DeclineChatJoinRequest{
		ChatConfig: tgbotapi.ChatConfig{ChatID: chatID},
		UserID:     userID,
	})
	if err != nil {
		return classifyJoinError(err)
	}
	return nil
}

// classifySendError maps a Telegram API error to the engine's sentinel for
// an unreachable recipient (the user blocked the bot or never started it).
func classifySendError(err error) error {
	var apiErr *tgbotapi.Error
	if errors.As(err, &apiErr) && apiErr.Code == 403 {
		return fmt.Errorf("%w: %s", engine.ErrRecipientUnreachable, apiErr.Message)
	}
	return err
}

// classifyJoinError maps "the join request is gone" responses to the
// engine's non-fatal sentinel.
func classifyJoinError(err error) error {
	var apiErr *tgbotapi.Error
	if errors.As(err, &apiErr) && apiErr.Code == 400 &&
		(strings.Contains(apiErr.Message, "HIDE_REQUESTER_MISSING") ||
			strings.Contains(apiErr.Message, "USER_ALREADY_PARTICIPANT")) {
		return fmt.Errorf("%w: %s", engine.ErrJoinRequestMissing, apiErr.Message)
	}
	return err
}
