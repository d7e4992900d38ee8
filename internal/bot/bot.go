// Package bot содержит главный модуль бота — запуск polling,
// маршрутизацию апдейтов и остановку. Каждый апдейт обрабатывается
// в своей горутине с ограничением параллелизма, роль отправителя
// разрешается заново на каждом апдейте.
package bot

import (
	"context"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	log "github.com/sirupsen/logrus"

	"sigilgate.ru/telegram-bot/internal/bot/middleware"
	"sigilgate.ru/telegram-bot/internal/config"
	"sigilgate.ru/telegram-bot/internal/features/admin"
	"sigilgate.ru/telegram-bot/internal/features/devices"
	"sigilgate.ru/telegram-bot/internal/features/reg"
	"sigilgate.ru/telegram-bot/internal/features/start"
	"sigilgate.ru/telegram-bot/internal/features/trial"
	"sigilgate.ru/telegram-bot/internal/fsm"
	"sigilgate.ru/telegram-bot/internal/registry"
	"sigilgate.ru/telegram-bot/internal/roles"
)

// Bot — главная структура бота, объединяющая все компоненты.
type Bot struct {
	api *tgbotapi.BotAPI
	cfg *config.Config

	resolver    *roles.Resolver
	store       *fsm.Store
	rateLimiter *middleware.RateLimiter

	startHandler   *start.Handler
	regHandler     *reg.Handler
	devicesHandler *devices.Handler
	trialHandler   *trial.Handler
	adminHandler   *admin.Handler

	// ограничитель параллелизма обработки апдейтов
	inflight chan struct{}
}

// New создаёт новый экземпляр бота со всеми зависимостями.
func New(
	api *tgbotapi.BotAPI,
	cfg *config.Config,
	resolver *roles.Resolver,
	store *fsm.Store,
	startHandler *start.Handler,
	regHandler *reg.Handler,
	devicesHandler *devices.Handler,
	trialHandler *trial.Handler,
	adminHandler *admin.Handler,
) *Bot {
	maxInFlight := cfg.BotMaxInflight
	if maxInFlight <= 0 {
		maxInFlight = 64
	}

	return &Bot{
		api:            api,
		cfg:            cfg,
		resolver:       resolver,
		store:          store,
		rateLimiter:    middleware.NewRateLimiter(cfg.RateLimitRequests, cfg.RateLimitWindow),
		startHandler:   startHandler,
		regHandler:     regHandler,
		devicesHandler: devicesHandler,
		trialHandler:   trialHandler,
		adminHandler:   adminHandler,
		inflight:       make(chan struct{}, maxInFlight),
	}
}

// Start запускает polling обновлений от Telegram.
func (b *Bot) Start(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = b.cfg.BotUpdateTimeoutSeconds

	updates := b.api.GetUpdatesChan(u)

	log.WithFields(log.Fields{
		"max_inflight": b.cfg.BotMaxInflight,
		"timeout_sec":  b.cfg.BotUpdateTimeoutSeconds,
	}).Info("Бот запущен и ожидает сообщения...")

	for {
		select {
		case <-ctx.Done():
			log.Info("Бот останавливается (ctx done)...")
			b.api.StopReceivingUpdates()
			b.rateLimiter.Close()
			return

		case update, ok := <-updates:
			if !ok {
				log.Info("Канал updates закрыт, бот остановлен")
				b.rateLimiter.Close()
				return
			}

			// лимит параллелизма
			b.inflight <- struct{}{}
			go func(upd tgbotapi.Update) {
				defer func() { <-b.inflight }()
				b.handleUpdate(ctx, upd)
			}(update)
		}
	}
}

// handleUpdate обрабатывает одно обновление от Telegram.
func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	defer middleware.RecoverFromPanic()

	switch {
	case update.CallbackQuery != nil:
		b.handleCallback(ctx, update.CallbackQuery)
	case update.Message != nil:
		b.handleMessage(ctx, update.Message)
	}
}

func (b *Bot) handleMessage(ctx context.Context, message *tgbotapi.Message) {
	// Бот работает только в личных сообщениях
	if message.From == nil || message.Chat == nil || !message.Chat.IsPrivate() {
		return
	}
	if message.Text == "" {
		return
	}

	middleware.LogMessage(message)

	userID := message.From.ID
	chatID := message.Chat.ID

	if !b.rateLimiter.Allow(userID) {
		log.WithField("user_id", userID).Debug("rate limited")
		return
	}

	role, user := b.resolver.Resolve(ctx, userID)

	cmd, isCommand := parseCommand(message.Text)
	if isCommand {
		b.routeCommand(ctx, chatID, userID, cmd, role, user)
		return
	}

	// Свободный текст — только как ввод шага активного диалога
	state := b.store.Get(chatID)
	if state != nil {
		switch {
		case strings.HasPrefix(state.Name, "reg_"):
			b.regHandler.HandleText(ctx, chatID, userID, role, message.Text)
			return
		case strings.HasPrefix(state.Name, "dev_"):
			b.devicesHandler.HandleText(ctx, chatID, role, user, message.Text)
			return
		case strings.HasPrefix(state.Name, "adm_"):
			// Админ-диалоги управляются только кнопками
			b.sendPlain(chatID, "Выберите вариант кнопкой ниже или откройте список заново: /users")
			return
		}
	}

	b.startHandler.HandleFallback(ctx, chatID, role, user)
}

// routeCommand маршрутизирует команду к нужному обработчику.
// Новая команда отменяет незавершённый диалог.
func (b *Bot) routeCommand(
	ctx context.Context,
	chatID, userID int64,
	cmd string,
	role roles.Role,
	user *registry.User,
) {
	log.WithFields(log.Fields{
		"cmd":  cmd,
		"role": role,
	}).Debug("routing command")

	b.store.Clear(chatID)

	switch cmd {
	case "start", "help":
		b.startHandler.HandleStart(ctx, chatID, role, user)

	case "reg":
		b.regHandler.HandleCommand(ctx, chatID, userID, role)

	case "trial":
		b.trialHandler.HandleTrial(ctx, chatID, userID, role)

	case "devices":
		b.devicesHandler.HandleList(ctx, chatID, role, user)

	case "add_device":
		b.devicesHandler.HandleAdd(ctx, chatID, role, user)

	case "users":
		b.adminHandler.HandleUsers(ctx, chatID, role)

	case "status":
		b.adminHandler.HandleStatus(ctx, chatID, role)

	default:
		b.startHandler.HandleFallback(ctx, chatID, role, user)
	}
}

func (b *Bot) handleCallback(ctx context.Context, query *tgbotapi.CallbackQuery) {
	if query.From == nil || query.Message == nil || query.Message.Chat == nil {
		return
	}

	middleware.LogCallback(query)

	userID := query.From.ID
	chatID := query.Message.Chat.ID
	messageID := query.Message.MessageID

	if !b.rateLimiter.Allow(userID) {
		log.WithField("user_id", userID).Debug("rate limited")
		return
	}

	role, user := b.resolver.Resolve(ctx, userID)
	payload := query.Data

	switch {
	case strings.HasPrefix(payload, "reg:"):
		b.regHandler.HandleCallback(ctx, chatID, userID, messageID, query.ID, payload, role, query.From.UserName)

	case strings.HasPrefix(payload, "dev:"):
		b.devicesHandler.HandleCallback(ctx, chatID, messageID, query.ID, payload, role, user)

	case strings.HasPrefix(payload, "adm:"):
		b.adminHandler.HandleCallback(ctx, chatID, messageID, query.ID, payload, role)
	}
}

func (b *Bot) sendPlain(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := b.api.Send(msg); err != nil {
		log.WithError(err).WithField("chat_id", chatID).Error("Ошибка отправки сообщения")
	}
}

// parseCommand выделяет имя команды из текста сообщения.
// Упоминание бота ("/start@sigil_gate_bot") отбрасывается.
func parseCommand(text string) (string, bool) {
	if !strings.HasPrefix(text, "/") {
		return "", false
	}
	cmd := strings.Fields(text)[0][1:]
	if at := strings.Index(cmd, "@"); at >= 0 {
		cmd = cmd[:at]
	}
	if cmd == "" {
		return "", false
	}
	return strings.ToLower(cmd), true
}
