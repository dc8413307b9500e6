package notifier

import (
	"context"
	"errors"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"gatekeeper/internal/config"
	"gatekeeper/internal/models"
)

type recordedSend struct {
	chatID   int64
	text     string
	keyboard *tgbotapi.InlineKeyboardMarkup
}

type fakeSender struct {
	failFor map[int64]error
	sends   []recordedSend
}

func (f *fakeSender) SendMessage(_ context.Context, chatID int64, text string, keyboard *tgbotapi.InlineKeyboardMarkup) (int, error) {
	if err, ok := f.failFor[chatID]; ok {
		return 0, err
	}
	f.sends = append(f.sends, recordedSend{chatID, text, keyboard})
	return 1, nil
}

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Bot.ModeratorIDs = []int64{10, 20, 30}
	cfg.Channel.Title = "Test Channel"
	cfg.Channel.AgeRequirement = 18
	cfg.Channel.AdapterChannel = "@adapter"
	cfg.Messages = map[string]string{
		"welcome":         "Welcome to {channel_title}, {age_requirement}+ only",
		"confirmed":       "Confirmed for {channel_title} via {adapter_channel}",
		"declined":        "Declined",
		"banned":          "Banned",
		"admin_new":       "New request from {user_name} (@{username}) id={user_id}",
		"admin_confirmed": "Confirmed @{username} id={user_id}",
		"admin_declined":  "Declined @{username} id={user_id}",
	}
	cfg.Keyboards = config.Keyboards{
		ConfirmLabel: "Yes",
		DeclineLabel: "No",
		Moderator:    [][]string{{"approve", "decline"}, {"ban", "view"}},
		ModeratorLabels: map[string]string{
			"approve": "Approve",
			"decline": "Decline",
			"ban":     "Ban",
			"view":    "Info",
		},
	}
	return cfg
}

func testRequest() models.Request {
	return models.Request{
		UserID:        777,
		ChatID:        -100,
		UserName:      "Alice Smith",
		UserUsername:  "alice",
		UserFirstName: "Alice",
		UserLastName:  "Smith",
		Status:        models.StatusPending,
		RequestedAt:   time.Now(),
	}
}

func TestNotifyFansOutToAllModerators(t *testing.T) {
	sender := &fakeSender{}
	d := NewDispatcher(sender, testConfig(), zap.NewNop())

	d.Notify(context.Background(), EventNewRequest, testRequest())

	require.Len(t, sender.sends, 3)
	assert.Equal(t, int64(10), sender.sends[0].chatID)
	assert.Equal(t, int64(20), sender.sends[1].chatID)
	assert.Equal(t, int64(30), sender.sends[2].chatID)
	assert.Equal(t, "New request from Alice Smith (@alice) id=777", sender.sends[0].text)
}

func TestNotifyOneFailingModeratorDoesNotBlockOthers(t *testing.T) {
	sender := &fakeSender{failFor: map[int64]error{20: errors.New("blocked")}}
	d := NewDispatcher(sender, testConfig(), zap.NewNop())

	d.Notify(context.Background(), EventConfirmed, testRequest())

	require.Len(t, sender.sends, 2)
	assert.Equal(t, int64(10), sender.sends[0].chatID)
	assert.Equal(t, int64(30), sender.sends[1].chatID)
}

func TestNotifyAttachesModeratorKeyboard(t *testing.T) {
	sender := &fakeSender{}
	d := NewDispatcher(sender, testConfig(), zap.NewNop())

	d.Notify(context.Background(), EventDeclined, testRequest())

	require.Len(t, sender.sends, 3)
	kb := sender.sends[0].keyboard
	require.NotNil(t, kb)
	require.Len(t, kb.InlineKeyboard, 2)

	// The callback data embeds the requester ID for later dispatch.
	require.NotNil(t, kb.InlineKeyboard[0][0].CallbackData)
	assert.Equal(t, "approve:777", *kb.InlineKeyboard[0][0].CallbackData)
	assert.Equal(t, "decline:777", *kb.InlineKeyboard[0][1].CallbackData)
	assert.Equal(t, "ban:777", *kb.InlineKeyboard[1][0].CallbackData)
	assert.Equal(t, "view:777", *kb.InlineKeyboard[1][1].CallbackData)
}

func TestWelcomeRendersTemplateAndKeyboard(t *testing.T) {
	d := NewDispatcher(&fakeSender{}, testConfig(), zap.NewNop())

	text, kb := d.Welcome()

	assert.Equal(t, "Welcome to Test Channel, 18+ only", text)
	require.NotNil(t, kb)
	require.Len(t, kb.InlineKeyboard, 2)
	assert.Equal(t, "confirm", *kb.InlineKeyboard[0][0].CallbackData)
	assert.Equal(t, "decline", *kb.InlineKeyboard[1][0].CallbackData)
}

func TestConfirmedIncludesAdapterButton(t *testing.T) {
	d := NewDispatcher(&fakeSender{}, testConfig(), zap.NewNop())

	text, kb := d.Confirmed()

	assert.Equal(t, "Confirmed for Test Channel via @adapter", text)
	require.NotNil(t, kb)
	require.NotNil(t, kb.InlineKeyboard[0][0].URL)
	assert.Equal(t, "https://t.me/adapter", *kb.InlineKeyboard[0][0].URL)
}

func TestConfirmedWithoutAdapterHasNoKeyboard(t *testing.T) {
	cfg := testConfig()
	cfg.Channel.AdapterChannel = ""
	d := NewDispatcher(&fakeSender{}, cfg, zap.NewNop())

	_, kb := d.Confirmed()
	assert.Nil(t, kb)
}

func TestRenderFallbackUsername(t *testing.T) {
	sender := &fakeSender{}
	d := NewDispatcher(sender, testConfig(), zap.NewNop())

	req := testRequest()
	req.UserUsername = ""
	d.Notify(context.Background(), EventNewRequest, req)

	require.NotEmpty(t, sender.sends)
	assert.Contains(t, sender.sends[0].text, "без username")
}
