package telegram_bot

import (
	"context"
	"fmt"
	"strconv"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"gatekeeper/internal/config"
	"gatekeeper/internal/engine"
	"gatekeeper/internal/store"
)

// transport is the outbound surface the router needs from the Telegram
// client.
type transport interface {
	SendMessage(ctx context.Context, chatID int64, text string, keyboard *tgbotapi.InlineKeyboardMarkup) (int, error)
	AnswerCallback(queryID, text string, alert bool) error
	Updates() tgbotapi.UpdatesChannel
	StopUpdates()
	Username() string
}

// Bot routes inbound Telegram updates to the lifecycle engine. It owns no
// request state of its own.
type Bot struct {
	client transport
	engine *engine.Engine
	store  *store.Store
	cfg    *config.Config
	logger *zap.Logger
}

// NewBot creates the update router.
func NewBot(client transport, eng *engine.Engine, st *store.Store, cfg *config.Config, logger *zap.Logger) *Bot {
	return &Bot{
		client: client,
		engine: eng,
		store:  st,
		cfg:    cfg,
		logger: logger,
	}
}

// Start begins the long-poll loop and blocks until ctx is cancelled.
// Updates are handled one at a time, so transitions for a given requester
// are applied in arrival order.
func (b *Bot) Start(ctx context.Context) error {
	updates := b.client.Updates()

	b.logger.Info("Telegram bot started, waiting for updates...")

	for {
		select {
		case <-ctx.Done():
			b.logger.Info("Telegram bot shutting down...")
			b.client.StopUpdates()
			return nil
		case update := <-updates:
			b.handleUpdate(ctx, update)
		}
	}
}

func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	switch {
	case update.ChatJoinRequest != nil:
		b.handleJoinRequest(ctx, update.ChatJoinRequest)
	case update.CallbackQuery != nil:
		b.handleCallbackQuery(ctx, update.CallbackQuery)
	case update.Message != nil && update.Message.IsCommand():
		b.handleCommand(ctx, update.Message)
	}
}

// handleJoinRequest admits a join request for the configured channel.
func (b *Bot) handleJoinRequest(ctx context.Context, request *tgbotapi.ChatJoinRequest) {
	b.logger.Info("Received join request",
		zap.Int64("user_id", request.From.ID),
		zap.String("username", request.From.UserName),
	)

	if request.Chat.ID != b.cfg.Channel.ChatID {
		b.logger.Warn("Join request for a different chat ignored", zap.Int64("chat_id", request.Chat.ID))
		return
	}

	b.engine.Admit(ctx, request.From.ID, request.Chat.ID, engine.Profile{
		Username:  request.From.UserName,
		FirstName: request.From.FirstName,
		LastName:  request.From.LastName,
	})
}

// handleCallbackQuery decodes the payload into a typed action and dispatches
// it. Unauthorized or malformed actions answer the sender only and mutate
// nothing.
func (b *Bot) handleCallbackQuery(ctx context.Context, query *tgbotapi.CallbackQuery) {
	b.logger.Info("Received callback query",
		zap.String("data", query.Data),
		zap.Int64("from", query.From.ID),
	)

	act, err := parseAction(query.Data, query.From.ID)
	if err != nil {
		b.logger.Error("Failed to parse callback data", zap.String("data", query.Data), zap.Error(err))
		b.answer(query.ID, "❌ Ошибка обработки запроса", true)
		return
	}

	if act.moderator && !b.cfg.IsModerator(query.From.ID) {
		b.answer(query.ID, "Нет прав", true)
		return
	}

	switch act.kind {
	case actionConfirm:
		if b.store.Get(act.userID) == nil {
			b.answer(query.ID, "Заявка не найдена", true)
			return
		}
		b.engine.Confirm(ctx, act.userID)
		b.answer(query.ID, "✅ Заявка подтверждена!", false)
	case actionDecline:
		b.engine.Decline(ctx, act.userID)
		b.answer(query.ID, "❌ Заявка отклонена", false)
	case actionModApprove:
		b.engine.Approve(ctx, act.userID)
		b.answer(query.ID, "✅ Одобрено", false)
	case actionModDecline:
		b.engine.Decline(ctx, act.userID)
		b.answer(query.ID, "❌ Отклонено", false)
	case actionModBan:
		b.engine.Ban(ctx, act.userID)
		b.answer(query.ID, "⛔ Забанено", false)
	case actionModView:
		b.sendRequestInfo(ctx, query, act.userID)
	}
}

// sendRequestInfo sends the record details to the moderator who asked.
func (b *Bot) sendRequestInfo(ctx context.Context, query *tgbotapi.CallbackQuery, userID int64) {
	req := b.store.Get(userID)
	if req == nil {
		b.answer(query.ID, "❌ Заявка не найдена", false)
		return
	}

	info := fmt.Sprintf(
		"👤 Информация:\nID: %d\nИмя: %s %s\nUsername: @%s\nСтатус: %s\nДата: %s",
		req.UserID,
		req.UserFirstName,
		req.UserLastName,
		req.UserUsername,
		req.Status,
		req.RequestedAt.Format("2006-01-02 15:04:05"),
	)
	if _, err := b.client.SendMessage(ctx, query.From.ID, info, nil); err != nil {
		b.logger.Error("Failed to send request info", zap.Int64("moderator_id", query.From.ID), zap.Error(err))
		return
	}
	b.answer(query.ID, "ℹ️ Информация отправлена", false)
}

func (b *Bot) handleCommand(ctx context.Context, message *tgbotapi.Message) {
	switch message.Command() {
	case "start", "help":
		b.handleHelpCommand(ctx, message)
	case "stats":
		b.handleStatsCommand(ctx, message)
	case "cleanup":
		b.handleCleanupCommand(ctx, message)
	case "selftest":
		b.handleSelftestCommand(ctx, message)
	case "users":
		b.handleUsersCommand(ctx, message)
	default:
		b.reply(ctx, message.Chat.ID, "Неизвестная команда. Используйте /help для помощи.")
	}
}

func (b *Bot) handleHelpCommand(ctx context.Context, message *tgbotapi.Message) {
	helpText := "🤖 Channel Request Bot\n\n" +
		"Автоматическая обработка заявок на вступление в канал.\n\n" +
		"Для подачи заявки:\n" +
		"1. Перейдите в канал\n" +
		"2. Нажмите \"Вступить\"\n" +
		"3. Подтвердите правила в боте\n\n" +
		"Команды для модераторов:\n" +
		"/stats - статистика\n" +
		"/cleanup - очистка старых данных\n" +
		"/selftest - проверка работы\n" +
		"/users - последние заявки\n\n" +
		"Ваш Telegram ID: " + strconv.FormatInt(message.From.ID, 10)
	b.reply(ctx, message.Chat.ID, helpText)
}

// handleStatsCommand answers anyone: the counters are read-only.
func (b *Bot) handleStatsCommand(ctx context.Context, message *tgbotapi.Message) {
	st := b.store.Stats()
	statsText := fmt.Sprintf(
		"📊 Статистика:\n\n"+
			"• Всего заявок: %d\n"+
			"• Ожидают: %d\n"+
			"• Подтверждены: %d\n"+
			"• Одобрены: %d\n"+
			"• Отклонены: %d\n"+
			"• Забанено: %d\n\n"+
			"Канал: %s",
		st.Total, st.Pending, st.Confirmed, st.Approved, st.Declined, st.Banned,
		b.cfg.Channel.Title,
	)
	b.reply(ctx, message.Chat.ID, statsText)
}

func (b *Bot) handleCleanupCommand(ctx context.Context, message *tgbotapi.Message) {
	if !b.cfg.IsModerator(message.From.ID) {
		b.reply(ctx, message.Chat.ID, "❌ Нет прав администратора")
		return
	}

	removed := b.store.Sweep(time.Now(), b.cfg.Settings.RetentionDays)
	b.reply(ctx, message.Chat.ID, fmt.Sprintf("🗑️ Удалено %d старых заявок", removed))
}

func (b *Bot) handleSelftestCommand(ctx context.Context, message *tgbotapi.Message) {
	if !b.cfg.IsModerator(message.From.ID) {
		b.reply(ctx, message.Chat.ID, "❌ Нет прав администратора")
		return
	}

	b.reply(ctx, message.Chat.ID, fmt.Sprintf(
		"✅ Бот работает!\nБот: @%s\nКанал: %s",
		b.client.Username(),
		b.cfg.Channel.Title,
	))
}

func (b *Bot) handleUsersCommand(ctx context.Context, message *tgbotapi.Message) {
	if !b.cfg.IsModerator(message.From.ID) {
		return
	}

	recent := b.store.Recent(10)
	if len(recent) == 0 {
		b.reply(ctx, message.Chat.ID, "Нет заявок")
		return
	}

	usersText := "👥 Последние пользователи:\n\n"
	for _, req := range recent {
		usersText += fmt.Sprintf("• %s (@%s) - %s\n", req.UserFirstName, req.UserUsername, req.Status)
	}
	b.reply(ctx, message.Chat.ID, usersText)
}

// answer acknowledges a callback query; with alert=true the text is shown
// only to the sender as a popup.
func (b *Bot) answer(queryID, text string, alert bool) {
	if err := b.client.AnswerCallback(queryID, text, alert); err != nil {
		b.logger.Error("Failed to answer callback query", zap.Error(err))
	}
}

func (b *Bot) reply(ctx context.Context, chatID int64, text string) {
	if _, err := b.client.SendMessage(ctx, chatID, text, nil); err != nil {
		b.logger.Error("Failed to send message", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}
