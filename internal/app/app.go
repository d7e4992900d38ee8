// Package app инициализирует все компоненты приложения.
// app.go — точка сборки: создаёт клиент реестра, сервисы, обработчики
// и собирает всё в один объект Bot.
package app

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	log "github.com/sirupsen/logrus"

	"sigilgate.ru/telegram-bot/internal/bot"
	"sigilgate.ru/telegram-bot/internal/config"
	"sigilgate.ru/telegram-bot/internal/features/admin"
	"sigilgate.ru/telegram-bot/internal/features/devices"
	"sigilgate.ru/telegram-bot/internal/features/reg"
	"sigilgate.ru/telegram-bot/internal/features/start"
	"sigilgate.ru/telegram-bot/internal/features/trial"
	"sigilgate.ru/telegram-bot/internal/fsm"
	"sigilgate.ru/telegram-bot/internal/jobs"
	"sigilgate.ru/telegram-bot/internal/registry"
	"sigilgate.ru/telegram-bot/internal/roles"
)

// App содержит все компоненты приложения.
type App struct {
	Bot       *bot.Bot
	Scheduler *jobs.Scheduler
	BotAPI    *tgbotapi.BotAPI
}

// New создаёт и инициализирует приложение.
// Порядок инициализации важен — компоненты зависят друг от друга.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	// === 1. Telegram Bot API ===
	botAPI, err := tgbotapi.NewBotAPI(cfg.TelegramBotToken)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания Telegram API: %w", err)
	}
	log.Infof("Авторизован как @%s", botAPI.Self.UserName)

	msgr := bot.NewTelegramMessenger(botAPI)

	// === 2. Клиент реестра ===
	runner := registry.NewRunner(cfg.ScriptsPath, cfg.ScriptTimeout, cfg.Verbose)
	reg2 := registry.NewClient(runner, cfg.StorePath)

	// В verbose-режиме сырой вывод скриптов дублируется первому
	// администратору из списка
	if cfg.Verbose && len(cfg.AdminIDs) > 0 {
		adminChat := cfg.AdminIDs[0]
		reg2 = reg2.WithEcho(func(text string) {
			if err := msgr.Send(adminChat, text, nil); err != nil {
				log.WithError(err).Debug("Не удалось отправить verbose-вывод")
			}
		})
	}

	// === 3. Разрешение ролей и состояния диалогов ===
	resolver := roles.NewResolver(reg2, cfg.AdminIDs)
	store := fsm.NewStore()

	// === 4. Сервисы ===
	regService := reg.NewService(reg2, cfg.DefaultCoreNode)
	devicesService := devices.NewService(reg2)
	trialService := trial.NewService(reg2, cfg.TrialUserID, cfg.TrialLimitStart, cfg.TrialTTL)
	adminService := admin.NewService(reg2)

	// === 5. Обработчики ===
	startHandler := start.NewHandler(msgr)
	regHandler := reg.NewHandler(regService, store, msgr, cfg.AdminIDs)
	devicesHandler := devices.NewHandler(devicesService, store, msgr)
	trialHandler := trial.NewHandler(trialService, msgr)
	adminHandler := admin.NewHandler(adminService, store, msgr)

	// === 6. Собираем бота ===
	b := bot.New(
		botAPI, cfg,
		resolver, store,
		startHandler,
		regHandler,
		devicesHandler,
		trialHandler,
		adminHandler,
	)

	// === 7. Планировщик задач ===
	scheduler := jobs.NewScheduler(trialService, cfg.TrialSweepSpec)

	return &App{
		Bot:       b,
		Scheduler: scheduler,
		BotAPI:    botAPI,
	}, nil
}
