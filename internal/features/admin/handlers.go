// Package admin — handlers.go: экраны панели администратора.
// Поток: /users → карточка пользователя → действие (одобрить с выбором
// core-узла, приостановить, архивировать, удалить с подтверждением).
package admin

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"

	"sigilgate.ru/telegram-bot/internal/chat"
	"sigilgate.ru/telegram-bot/internal/common"
	"sigilgate.ru/telegram-bot/internal/fsm"
	"sigilgate.ru/telegram-bot/internal/registry"
	"sigilgate.ru/telegram-bot/internal/roles"
)

// Handler обрабатывает команды и кнопки панели администратора.
type Handler struct {
	service *Service
	store   *fsm.Store
	msgr    chat.Messenger
}

// NewHandler создаёт обработчик панели администратора.
func NewHandler(service *Service, store *fsm.Store, msgr chat.Messenger) *Handler {
	return &Handler{service: service, store: store, msgr: msgr}
}

// HandleUsers — команда /users.
func (h *Handler) HandleUsers(ctx context.Context, chatID int64, role roles.Role) {
	if role != roles.RoleAdmin {
		h.send(chatID, "Доступ ограничен.", nil)
		return
	}
	text, kb, err := h.usersScreen(ctx)
	if err != nil {
		log.WithError(err).Error("Список пользователей недоступен")
		h.send(chatID, "Не удалось получить список пользователей. Попробуйте позже.", nil)
		return
	}
	h.send(chatID, text, kb)
}

// HandleStatus — команда /status: сводка по сети.
func (h *Handler) HandleStatus(ctx context.Context, chatID int64, role roles.Role) {
	if role != roles.RoleAdmin {
		h.send(chatID, "Доступ ограничен.", nil)
		return
	}

	st, err := h.service.Status(ctx)
	if err != nil {
		log.WithError(err).Error("Статус сети недоступен")
		h.send(chatID, "Не удалось получить статус сети. Попробуйте позже.", nil)
		return
	}

	var sb strings.Builder
	sb.WriteString("Статус сети Sigil Gate\n\nCore-узлы:\n")
	for _, n := range st.CoreNodes {
		name := n.Name
		if name == "" {
			name = n.Host
		}
		sb.WriteString(fmt.Sprintf("  • %s\n", name))
	}
	sb.WriteString(fmt.Sprintf(
		"\nПользователи:\n  🟢 активных: %d\n  🟡 неактивных: %d\n  ⚫ в архиве: %d",
		st.Active, st.Inactive, st.Archived,
	))
	if st.Pending > 0 {
		sb.WriteString(fmt.Sprintf("\n\n⏳ %d %s на рассмотрении", st.Pending, common.PluralizeRequests(st.Pending)))
	}

	h.send(chatID, sb.String(), nil)
}

// HandleCallback обрабатывает кнопки панели администратора.
// Роль перепроверяется на каждом нажатии — разжалованный админ
// не завершит начатое действие.
func (h *Handler) HandleCallback(
	ctx context.Context,
	chatID int64,
	messageID int,
	callbackID, payload string,
	role roles.Role,
) {
	if role != roles.RoleAdmin {
		h.store.Clear(chatID)
		h.ackAlert(callbackID, "Доступ ограничен.")
		return
	}

	action, param := splitPayload(payload)

	switch action {
	case CallbackUsers:
		h.store.Clear(chatID)
		text, kb, err := h.usersScreen(ctx)
		if err != nil {
			h.ackAlert(callbackID, "Не удалось получить список пользователей.")
			return
		}
		h.edit(chatID, messageID, text, kb)
		h.ack(callbackID)

	case CallbackUser:
		h.showCard(ctx, chatID, messageID, callbackID, param)

	case CallbackApprove:
		h.startApprove(ctx, chatID, messageID, callbackID, param)

	case CallbackNode:
		h.finishApprove(ctx, chatID, messageID, callbackID, param)

	case CallbackSuspend:
		h.runCascade(ctx, chatID, messageID, callbackID, param, "Пользователь приостановлен.", h.service.Suspend)

	case CallbackArchive:
		h.runCascade(ctx, chatID, messageID, callbackID, param, "Пользователь архивирован.", h.service.Archive)

	case CallbackRemove:
		h.edit(chatID, messageID,
			"Удалить пользователя из реестра безвозвратно?",
			chat.Keyboard{
				chat.Row(chat.Button{Text: "Да, удалить", Data: CallbackRemoveYes + ":" + param}),
				chat.Row(chat.Button{Text: "Отмена", Data: CallbackUser + ":" + param}),
			})
		h.ack(callbackID)

	case CallbackRemoveYes:
		h.remove(ctx, chatID, messageID, callbackID, param)
	}
}

// usersScreen собирает список пользователей с кнопками-карточками.
func (h *Handler) usersScreen(ctx context.Context) (string, chat.Keyboard, error) {
	users, err := h.service.ListUsers(ctx)
	if err != nil {
		return "", nil, err
	}

	if len(users) == 0 {
		return "В реестре пока нет пользователей.", nil, nil
	}

	pending := 0
	kb := chat.Keyboard{}
	for _, u := range users {
		label := fmt.Sprintf("%s · %s", u.Username, common.StatusLabel(u.Status))
		if u.Status == registry.StatusInactive && len(u.CoreNodes) == 0 {
			label = "⏳ " + label
			pending++
		}
		kb = append(kb, chat.Row(chat.Button{Text: label, Data: CallbackUser + ":" + u.ID}))
	}

	text := "Пользователи реестра:"
	if pending > 0 {
		text += fmt.Sprintf("\n⏳ %d %s на рассмотрении", pending, common.PluralizeRequests(pending))
	}
	return text, kb, nil
}

func (h *Handler) showCard(ctx context.Context, chatID int64, messageID int, callbackID, userID string) {
	user, err := h.service.GetUser(ctx, userID)
	switch {
	case errors.Is(err, common.ErrNotFound):
		h.ackAlert(callbackID, "Пользователь не найден. Возможно, его уже удалили.")
		return
	case err != nil:
		h.ackAlert(callbackID, "Не удалось открыть пользователя.")
		return
	}

	text := fmt.Sprintf(
		"Пользователь %s\n\nСтатус: %s\nTelegram: %s\nEmail: %s\nCore-узлы: %s\nСоздан: %s",
		user.Username,
		common.StatusLabel(user.Status),
		common.Dash(user.Telegram),
		common.Dash(user.Email),
		common.Dash(strings.Join(user.CoreNodes, ", ")),
		common.Dash(user.CreatedAt),
	)

	var actions []chat.Button
	switch user.Status {
	case registry.StatusInactive:
		actions = append(actions, chat.Button{Text: "✅ Одобрить", Data: CallbackApprove + ":" + user.ID})
		actions = append(actions, chat.Button{Text: "⚫ Архивировать", Data: CallbackArchive + ":" + user.ID})
	case registry.StatusActive:
		actions = append(actions, chat.Button{Text: "⏸ Приостановить", Data: CallbackSuspend + ":" + user.ID})
		actions = append(actions, chat.Button{Text: "⚫ Архивировать", Data: CallbackArchive + ":" + user.ID})
	case registry.StatusArchived:
		actions = append(actions, chat.Button{Text: "🗑 Удалить", Data: CallbackRemove + ":" + user.ID})
	}

	kb := chat.Keyboard{actions, chat.Row(chat.Button{Text: "← К списку", Data: CallbackUsers})}
	h.edit(chatID, messageID, text, kb)
	h.ack(callbackID)
}

func (h *Handler) startApprove(ctx context.Context, chatID int64, messageID int, callbackID, userID string) {
	user, err := h.service.GetUser(ctx, userID)
	switch {
	case errors.Is(err, common.ErrNotFound):
		h.ackAlert(callbackID, "Пользователь не найден. Возможно, его уже удалили.")
		return
	case err != nil:
		h.ackAlert(callbackID, "Не удалось открыть пользователя.")
		return
	}

	nodes, err := h.service.CoreNodes(ctx)
	switch {
	case errors.Is(err, common.ErrNotFound):
		h.ackAlert(callbackID, "Нет доступных core-узлов.")
		return
	case err != nil:
		h.ackAlert(callbackID, "Не удалось получить список узлов.")
		return
	}

	h.store.Set(chatID, StateWaitingCoreNode, ApproveData{
		UserID:              user.ID,
		Username:            user.Username,
		ApplicantTelegramID: user.TelegramID,
		Nodes:               nodes,
	})

	kb := chat.Keyboard{}
	for i, node := range nodes {
		label := node.Name
		if label == "" {
			label = node.Host
		}
		kb = append(kb, chat.Row(chat.Button{
			Text: label,
			Data: fmt.Sprintf("%s:%d", CallbackNode, i),
		}))
	}
	kb = append(kb, chat.Row(chat.Button{Text: "Отмена", Data: CallbackUser + ":" + user.ID}))

	h.edit(chatID, messageID,
		fmt.Sprintf("Выберите core-узел для пользователя %s:", user.Username), kb)
	h.ack(callbackID)
}

func (h *Handler) finishApprove(ctx context.Context, chatID int64, messageID int, callbackID, param string) {
	state := h.store.Get(chatID)
	if state == nil || state.Name != StateWaitingCoreNode {
		h.ackAlert(callbackID, "Список устарел, откройте пользователя заново.")
		return
	}
	data, _ := state.Data.(ApproveData)

	index, err := strconv.Atoi(param)
	if err != nil {
		h.ackAlert(callbackID, "Список устарел, откройте пользователя заново.")
		return
	}

	node, err := h.service.Approve(ctx, data, index)
	h.store.Clear(chatID)
	switch {
	case errors.Is(err, common.ErrStaleSelection):
		h.ackAlert(callbackID, "Список узлов устарел. Откройте пользователя заново.")
		return
	case errors.Is(err, common.ErrNotFound):
		h.edit(chatID, messageID, "Пользователь не найден. Возможно, его уже удалили.", kbBack())
		h.ack(callbackID)
		return
	case err != nil:
		log.WithError(err).Error("Одобрение заявки не удалось")
		h.edit(chatID, messageID, "Не удалось одобрить заявку. Попробуйте позже.", kbBack())
		h.ack(callbackID)
		return
	}

	nodeName := node.Name
	if nodeName == "" {
		nodeName = node.Host
	}
	h.edit(chatID, messageID,
		fmt.Sprintf("Заявка пользователя %s одобрена, назначен узел %s.", data.Username, nodeName),
		kbBack())
	h.ack(callbackID)

	// Сообщаем заявителю, не задерживая ответ администратору
	if data.ApplicantTelegramID != 0 {
		go h.notifyApplicant(data.ApplicantTelegramID)
	}
}

func (h *Handler) notifyApplicant(telegramID int64) {
	text := "Ваша заявка одобрена! Доступ к Sigil Gate открыт.\n\n" +
		"Используйте /devices для управления подключениями."
	if err := h.msgr.Send(telegramID, text, nil); err != nil {
		log.WithError(err).WithField("telegram_id", telegramID).
			Warn("Не удалось уведомить заявителя об одобрении")
	}
}

// runCascade выполняет каскад и показывает итог.
// Прерванный каскад сообщается как прерванный: повторный запуск
// продолжит с места обрыва, это штатный путь восстановления.
func (h *Handler) runCascade(
	ctx context.Context,
	chatID int64,
	messageID int,
	callbackID, userID, successText string,
	op func(context.Context, string) error,
) {
	if err := op(ctx, userID); err != nil {
		log.WithError(err).WithField("user_id", userID).Error("Каскад прерван")
		h.edit(chatID, messageID,
			"Операция прервана на одном из устройств и выполнена частично.\n"+
				"Повторите действие — уже обработанные устройства будут пропущены.",
			chat.Keyboard{chat.Row(chat.Button{Text: "← К пользователю", Data: CallbackUser + ":" + userID})})
		h.ack(callbackID)
		return
	}

	h.edit(chatID, messageID, successText,
		chat.Keyboard{chat.Row(chat.Button{Text: "← К пользователю", Data: CallbackUser + ":" + userID})})
	h.ack(callbackID)
}

func (h *Handler) remove(ctx context.Context, chatID int64, messageID int, callbackID, userID string) {
	err := h.service.Remove(ctx, userID)
	switch {
	case errors.Is(err, common.ErrNotFound):
		h.edit(chatID, messageID, "Пользователь не найден. Возможно, его уже удалили.", kbBack())
		h.ack(callbackID)
		return
	case errors.Is(err, common.ErrAccessDenied):
		h.ackAlert(callbackID, "Удалить можно только архивированного пользователя.")
		return
	case err != nil:
		log.WithError(err).Error("Удаление пользователя не удалось")
		h.ackAlert(callbackID, "Не удалось удалить пользователя.")
		return
	}

	h.edit(chatID, messageID, "Пользователь удалён из реестра.", kbBack())
	h.ack(callbackID)
}

func kbBack() chat.Keyboard {
	return chat.Keyboard{chat.Row(chat.Button{Text: "← К списку", Data: CallbackUsers})}
}

// splitPayload отделяет действие от параметра после последнего двоеточия.
func splitPayload(payload string) (string, string) {
	switch payload {
	case CallbackUsers:
		return payload, ""
	}
	idx := strings.LastIndex(payload, ":")
	if idx < 0 {
		return payload, ""
	}
	return payload[:idx], payload[idx+1:]
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

func (h *Handler) ackAlert(callbackID, text string) {
	if err := h.msgr.AnswerCallback(callbackID, text, true); err != nil {
		log.WithError(err).Debug("Не удалось подтвердить callback")
	}
}
