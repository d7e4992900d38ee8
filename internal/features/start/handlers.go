// Package start обрабатывает /start и сообщения без команды.
// Текст экрана зависит от роли, а для гостя — от подсостояния
// (нет записи / заявка на рассмотрении / заблокирован / архив).
package start

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"sigilgate.ru/telegram-bot/internal/chat"
	"sigilgate.ru/telegram-bot/internal/registry"
	"sigilgate.ru/telegram-bot/internal/roles"
)

const commandsUser = "Доступные команды:\n" +
	"/devices — список устройств\n" +
	"/add_device — добавить устройство"

const commandsAdmin = "Команды администратора:\n" +
	"/users — управление пользователями\n" +
	"/status — статус сети\n" +
	"\n" +
	"Команды пользователя:\n" +
	"/devices — список устройств\n" +
	"/add_device — добавить устройство"

const commandsGuest = "Доступные команды:\n" +
	"/start — информация о боте\n" +
	"/reg — подать заявку на подключение\n" +
	"/trial — пробное подключение"

// Экраны /start для гостя по подсостояниям.
var guestMessages = map[roles.GuestState]string{
	roles.GuestNoRecord: "Добро пожаловать в Sigil Gate!\n\n" + commandsGuest,
	roles.GuestPending: "Ваша заявка принята и рассматривается администратором.\n" +
		"Обратитесь к администратору для получения доступа.",
	roles.GuestBlocked: "Ваш аккаунт неактивен.\n" +
		"Обратитесь к администратору.",
	roles.GuestArchived: "Ваш аккаунт заблокирован.\n" +
		"Обратитесь к администратору.",
}

// Ответы гостю на произвольный текст вне диалога.
var guestFallbackMessages = map[roles.GuestState]string{
	roles.GuestNoRecord: "Доступ ограничен.\n" +
		"Используйте /reg для подачи заявки на подключение.",
	roles.GuestPending: "Ваша заявка рассматривается администратором.\n" +
		"Обратитесь к администратору для получения доступа.",
	roles.GuestBlocked: "Ваш аккаунт неактивен.\n" +
		"Обратитесь к администратору.",
	roles.GuestArchived: "Ваш аккаунт заблокирован.\n" +
		"Обратитесь к администратору.",
}

// Handler отвечает на /start и фоллбек-сообщения.
type Handler struct {
	msgr chat.Messenger
}

// NewHandler создаёт обработчик стартовых экранов.
func NewHandler(msgr chat.Messenger) *Handler {
	return &Handler{msgr: msgr}
}

// HandleStart показывает стартовый экран согласно роли.
func (h *Handler) HandleStart(ctx context.Context, chatID int64, role roles.Role, user *registry.User) {
	var text string
	switch role {
	case roles.RoleAdmin:
		text = "Sigil Gate — панель администратора.\n\n" + commandsAdmin
	case roles.RoleUser:
		name := ""
		if user != nil {
			name = user.Username
		}
		text = fmt.Sprintf("Добро пожаловать, %s!\n\n%s", name, commandsUser)
	default:
		text = guestMessages[roles.ResolveGuestState(user)]
	}

	if err := h.msgr.Send(chatID, text, nil); err != nil {
		log.WithError(err).WithField("chat_id", chatID).Error("Ошибка отправки стартового экрана")
	}
}

// HandleFallback отвечает на текст вне команд и диалогов.
func (h *Handler) HandleFallback(ctx context.Context, chatID int64, role roles.Role, user *registry.User) {
	var text string
	switch role {
	case roles.RoleAdmin:
		text = "Неизвестная команда.\n\n" + commandsAdmin
	case roles.RoleUser:
		text = "Неизвестная команда.\n\n" + commandsUser
	default:
		text = guestFallbackMessages[roles.ResolveGuestState(user)]
	}

	if err := h.msgr.Send(chatID, text, nil); err != nil {
		log.WithError(err).WithField("chat_id", chatID).Error("Ошибка отправки сообщения")
	}
}
