// Package reg — handlers.go ведёт диалог регистрации.
// Поток: /reg → никнейм → email (или «Пропустить») → подтверждение →
// заявка создана, администраторы уведомлены. «Отмена» доступна на
// каждом шаге и не оставляет побочных эффектов.
package reg

import (
	"context"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"

	"sigilgate.ru/telegram-bot/internal/chat"
	"sigilgate.ru/telegram-bot/internal/common"
	"sigilgate.ru/telegram-bot/internal/fsm"
	"sigilgate.ru/telegram-bot/internal/roles"
)

// Handler обрабатывает команды, текст и кнопки диалога регистрации.
type Handler struct {
	service  *Service
	store    *fsm.Store
	msgr     chat.Messenger
	adminIDs []int64
}

// NewHandler создаёт обработчик регистрации.
func NewHandler(service *Service, store *fsm.Store, msgr chat.Messenger, adminIDs []int64) *Handler {
	return &Handler{service: service, store: store, msgr: msgr, adminIDs: adminIDs}
}

func kbCancel() chat.Keyboard {
	return chat.Keyboard{chat.Row(chat.Button{Text: "Отмена", Data: CallbackCancel})}
}

func kbEmail() chat.Keyboard {
	return chat.Keyboard{chat.Row(
		chat.Button{Text: "Пропустить", Data: CallbackSkipEmail},
		chat.Button{Text: "Отмена", Data: CallbackCancel},
	)}
}

func kbConfirm() chat.Keyboard {
	return chat.Keyboard{
		chat.Row(chat.Button{Text: "Отправить заявку", Data: CallbackSubmit}),
		chat.Row(chat.Button{Text: "Отмена", Data: CallbackCancel}),
	}
}

func confirmText(data Data) string {
	email := "не указан"
	if data.Email != "" {
		email = data.Email
	}
	return fmt.Sprintf(
		"Проверьте данные перед отправкой:\n\nНикнейм: %s\nEmail: %s\n\nВсё верно?",
		data.Username, email,
	)
}

// HandleCommand — точка входа /reg. Доступна только гостям.
func (h *Handler) HandleCommand(ctx context.Context, chatID, userID int64, role roles.Role) {
	if role != roles.RoleGuest {
		h.send(chatID, "Вы уже зарегистрированы в системе.", nil)
		return
	}

	h.store.Set(chatID, StateWaitingUsername, Data{})
	h.send(chatID, "Регистрация в Sigil Gate.\n\nВведите ваш никнейм:", kbCancel())
}

// HandleText обрабатывает текстовый ввод в активном диалоге регистрации.
// Роль перепроверяется на каждом шаге: если гость успел стать
// пользователем, диалог прерывается.
func (h *Handler) HandleText(ctx context.Context, chatID, userID int64, role roles.Role, text string) {
	if role != roles.RoleGuest {
		h.store.Clear(chatID)
		h.send(chatID, "Вы уже зарегистрированы в системе.", nil)
		return
	}

	state := h.store.Get(chatID)
	if state == nil {
		return
	}
	data, _ := state.Data.(Data)

	switch state.Name {
	case StateWaitingUsername:
		h.stepUsername(ctx, chatID, data, text)
	case StateWaitingEmail:
		h.stepEmail(ctx, chatID, data, text)
	case StateConfirm:
		// На шаге подтверждения ждём кнопку, а не текст
		h.send(chatID, confirmText(data), kbConfirm())
	}
}

func (h *Handler) stepUsername(ctx context.Context, chatID int64, data Data, text string) {
	username, err := h.service.ValidateUsername(ctx, text)
	switch {
	case errors.Is(err, common.ErrEmptyInput):
		h.send(chatID, "Никнейм не может быть пустым. Попробуйте ещё раз:", kbCancel())
		return
	case errors.Is(err, common.ErrUsernameTaken):
		h.send(chatID, "Этот никнейм уже занят. Введите другой:", kbCancel())
		return
	case err != nil:
		log.WithError(err).Error("Проверка никнейма не удалась")
		h.store.Clear(chatID)
		h.send(chatID, "Произошла ошибка. Попробуйте позже.", nil)
		return
	}

	data.Username = username
	h.store.Set(chatID, StateWaitingEmail, data)
	h.send(chatID, "Введите email для связи (необязательно):", kbEmail())
}

func (h *Handler) stepEmail(ctx context.Context, chatID int64, data Data, text string) {
	email, err := ValidateEmail(text)
	switch {
	case errors.Is(err, common.ErrEmptyInput):
		h.send(chatID, "Введите email или нажмите «Пропустить»:", kbEmail())
		return
	case errors.Is(err, common.ErrBadEmail):
		h.send(chatID, "Некорректный email. Попробуйте ещё раз или нажмите «Пропустить»:", kbEmail())
		return
	}

	data.Email = email
	h.store.Set(chatID, StateConfirm, data)
	h.send(chatID, confirmText(data), kbConfirm())
}

// HandleCallback обрабатывает кнопки диалога регистрации.
func (h *Handler) HandleCallback(
	ctx context.Context,
	chatID, userID int64,
	messageID int,
	callbackID, payload string,
	role roles.Role,
	handle string,
) {
	state := h.store.Get(chatID)

	switch payload {
	case CallbackCancel:
		h.store.Clear(chatID)
		h.edit(chatID, messageID, "Регистрация отменена.", nil)
		h.ack(callbackID)

	case CallbackSkipEmail:
		if state == nil || state.Name != StateWaitingEmail {
			h.ack(callbackID)
			return
		}
		data, _ := state.Data.(Data)
		data.Email = ""
		h.store.Set(chatID, StateConfirm, data)
		h.edit(chatID, messageID, confirmText(data), kbConfirm())
		h.ack(callbackID)

	case CallbackSubmit:
		if state == nil || state.Name != StateConfirm {
			h.ack(callbackID)
			return
		}
		if role != roles.RoleGuest {
			h.store.Clear(chatID)
			h.edit(chatID, messageID, "Вы уже зарегистрированы в системе.", nil)
			h.ack(callbackID)
			return
		}
		data, _ := state.Data.(Data)
		h.submit(ctx, chatID, userID, messageID, callbackID, handle, data)
	}
}

func (h *Handler) submit(
	ctx context.Context,
	chatID, userID int64,
	messageID int,
	callbackID, handle string,
	data Data,
) {
	id, err := h.service.Submit(ctx, Applicant{TelegramID: userID, Handle: handle}, data)
	switch {
	case errors.Is(err, common.ErrAlreadyApplied):
		h.store.Clear(chatID)
		h.edit(chatID, messageID, "Вы уже подали заявку ранее. Ожидайте решения администратора.", nil)
		h.ack(callbackID)
		return
	case err != nil:
		h.store.Clear(chatID)
		h.edit(chatID, messageID, "Произошла ошибка при отправке заявки. Попробуйте позже.", nil)
		h.ack(callbackID)
		return
	}

	h.store.Clear(chatID)
	h.edit(chatID, messageID,
		"Ваша заявка направлена администратору и будет рассмотрена в ближайшее время.", nil)
	h.ack(callbackID)

	// Уведомляем администраторов, не задерживая ответ пользователю
	tgName := fmt.Sprintf("id=%d", userID)
	if handle != "" {
		tgName = "@" + handle
	}
	notify := fmt.Sprintf("Поступила заявка на подключение от пользователя %s (%s)", data.Username, tgName)
	go h.notifyAdmins(notify)

	log.WithField("user_id", id).Debug("Заявка отправлена, администраторы уведомлены")
}

// notifyAdmins рассылает текст всем администраторам.
// Недоставленное уведомление — не причина ломать заявку.
func (h *Handler) notifyAdmins(text string) {
	for _, adminID := range h.adminIDs {
		if err := h.msgr.Send(adminID, text, nil); err != nil {
			log.WithError(err).WithField("admin_id", adminID).Warn("Не удалось уведомить администратора")
		}
	}
}

func (h *Handler) send(chatID int64, text string, kb chat.Keyboard) {
	if err := h.msgr.Send(chatID, text, kb); err != nil {
		log.WithError(err).WithField("chat_id", chatID).Error("Ошибка отправки сообщения")
	}
}

func (h *Handler) edit(chatID int64, messageID int, text string, kb chat.Keyboard) {
	if err := h.msgr.Edit(chatID, messageID, text, kb); err != nil {
		log.WithError(err).WithField("chat_id", chatID).Error("Ошибка редактирования сообщения")
	}
}

func (h *Handler) ack(callbackID string) {
	if err := h.msgr.AnswerCallback(callbackID, "", false); err != nil {
		log.WithError(err).Debug("Не удалось подтвердить callback")
	}
}
