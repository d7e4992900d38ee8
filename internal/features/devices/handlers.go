// Package devices — handlers.go ведёт экраны и диалоги устройств.
// Экраны: список → карточка устройства → действия (переименовать,
// активировать с выбором узла, деактивировать). Любая ошибка
// возвращает чат на безопасный навигируемый экран.
package devices

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

// Handler обрабатывает команды, текст и кнопки устройств.
type Handler struct {
	service *Service
	store   *fsm.Store
	msgr    chat.Messenger
}

// NewHandler создаёт обработчик устройств.
func NewHandler(service *Service, store *fsm.Store, msgr chat.Messenger) *Handler {
	return &Handler{service: service, store: store, msgr: msgr}
}

// allowed: устройствами управляют пользователи и администраторы,
// и только при наличии записи в реестре.
func allowed(role roles.Role, user *registry.User) bool {
	if user == nil {
		return false
	}
	return role == roles.RoleUser || role == roles.RoleAdmin
}

// HandleList — команда /devices.
func (h *Handler) HandleList(ctx context.Context, chatID int64, role roles.Role, user *registry.User) {
	if !allowed(role, user) {
		h.send(chatID, "Доступ ограничен.", nil)
		return
	}
	text, kb, err := h.listScreen(ctx, user.ID)
	if err != nil {
		log.WithError(err).Error("Список устройств недоступен")
		h.send(chatID, "Не удалось получить список устройств. Попробуйте позже.", nil)
		return
	}
	h.send(chatID, text, kb)
}

// HandleAdd — команда /add_device, вход в диалог добавления.
func (h *Handler) HandleAdd(ctx context.Context, chatID int64, role roles.Role, user *registry.User) {
	if !allowed(role, user) {
		h.send(chatID, "Доступ ограничен.", nil)
		return
	}
	h.store.Set(chatID, StateWaitingName, nil)
	h.send(chatID, "Введите имя нового устройства (до 64 символов):", kbCancel())
}

// HandleText обрабатывает текстовый ввод активного диалога устройств.
func (h *Handler) HandleText(ctx context.Context, chatID int64, role roles.Role, user *registry.User, text string) {
	if !allowed(role, user) {
		// Роль успела измениться посреди диалога — прерываемся
		h.store.Clear(chatID)
		h.send(chatID, "Доступ ограничен.", nil)
		return
	}

	state := h.store.Get(chatID)
	if state == nil {
		return
	}

	switch state.Name {
	case StateWaitingName:
		h.stepAddName(ctx, chatID, user.ID, text)
	case StateWaitingRename:
		data, _ := state.Data.(RenameData)
		h.stepRename(ctx, chatID, user.ID, data, text)
	case StateWaitingNode:
		// Узел выбирается кнопкой; текст игнорируем, повторяем подсказку
		h.send(chatID, "Выберите узел кнопкой ниже или нажмите «Отмена».", nil)
	}
}

func (h *Handler) stepAddName(ctx context.Context, chatID int64, ownerID, text string) {
	name, err := ValidateName(text)
	switch {
	case errors.Is(err, common.ErrEmptyInput):
		h.send(chatID, "Имя не может быть пустым. Попробуйте ещё раз:", kbCancel())
		return
	case errors.Is(err, common.ErrNameTooLong):
		h.send(chatID, "Имя слишком длинное (максимум 64 символа). Попробуйте ещё раз:", kbCancel())
		return
	}

	if _, err := h.service.Add(ctx, ownerID, name); err != nil {
		log.WithError(err).Error("Добавление устройства не удалось")
		h.store.Clear(chatID)
		h.send(chatID, "Не удалось добавить устройство. Попробуйте позже.", nil)
		return
	}

	h.store.Clear(chatID)
	h.showList(ctx, chatID, ownerID, fmt.Sprintf("Устройство «%s» добавлено.", name))
}

func (h *Handler) stepRename(ctx context.Context, chatID int64, ownerID string, data RenameData, text string) {
	name, err := ValidateName(text)
	switch {
	case errors.Is(err, common.ErrEmptyInput):
		h.send(chatID, "Имя не может быть пустым. Попробуйте ещё раз:", kbCancel())
		return
	case errors.Is(err, common.ErrNameTooLong):
		h.send(chatID, "Имя слишком длинное (максимум 64 символа). Попробуйте ещё раз:", kbCancel())
		return
	}

	err = h.service.Rename(ctx, ownerID, data.UUID, name)
	h.store.Clear(chatID)
	switch {
	case errors.Is(err, common.ErrAccessDenied):
		h.send(chatID, "Это устройство вам не принадлежит.", nil)
		return
	case errors.Is(err, common.ErrNotFound):
		h.send(chatID, "Устройство не найдено. Возможно, его уже удалили.", nil)
		return
	case err != nil:
		log.WithError(err).Error("Переименование не удалось")
		h.send(chatID, "Не удалось переименовать устройство. Попробуйте позже.", nil)
		return
	}

	h.showList(ctx, chatID, ownerID, fmt.Sprintf("Устройство переименовано в «%s».", name))
}

// HandleCallback обрабатывает кнопки экранов устройств.
func (h *Handler) HandleCallback(
	ctx context.Context,
	chatID int64,
	messageID int,
	callbackID, payload string,
	role roles.Role,
	user *registry.User,
) {
	if !allowed(role, user) {
		h.store.Clear(chatID)
		h.ackAlert(callbackID, "Доступ ограничен.")
		return
	}

	action, param := splitPayload(payload)

	switch action {
	case CallbackList:
		h.store.Clear(chatID)
		text, kb, err := h.listScreen(ctx, user.ID)
		if err != nil {
			h.ackAlert(callbackID, "Не удалось получить список устройств.")
			return
		}
		h.edit(chatID, messageID, text, kb)
		h.ack(callbackID)

	case CallbackAdd:
		h.store.Set(chatID, StateWaitingName, nil)
		h.edit(chatID, messageID, "Введите имя нового устройства (до 64 символов):", kbCancel())
		h.ack(callbackID)

	case CallbackCancel:
		h.store.Clear(chatID)
		text, kb, err := h.listScreen(ctx, user.ID)
		if err != nil {
			h.edit(chatID, messageID, "Действие отменено.", nil)
		} else {
			h.edit(chatID, messageID, "Действие отменено.\n\n"+text, kb)
		}
		h.ack(callbackID)

	case CallbackCard:
		h.showCard(ctx, chatID, messageID, callbackID, user.ID, param)

	case CallbackRename:
		h.store.Set(chatID, StateWaitingRename, RenameData{UUID: param})
		h.edit(chatID, messageID, "Введите новое имя устройства (до 64 символов):", kbCancel())
		h.ack(callbackID)

	case CallbackActivate:
		h.startActivation(ctx, chatID, messageID, callbackID, user.ID, param)

	case CallbackNode:
		h.finishActivation(ctx, chatID, messageID, callbackID, user.ID, param)

	case CallbackDeactivate:
		h.deactivate(ctx, chatID, messageID, callbackID, user.ID, param)
	}
}

func (h *Handler) showCard(ctx context.Context, chatID int64, messageID int, callbackID, ownerID, deviceUUID string) {
	device, err := h.service.owned(ctx, ownerID, deviceUUID)
	switch {
	case errors.Is(err, common.ErrNotFound):
		h.ackAlert(callbackID, "Устройство не найдено.")
		return
	case errors.Is(err, common.ErrAccessDenied):
		h.ackAlert(callbackID, "Это устройство вам не принадлежит.")
		return
	case err != nil:
		h.ackAlert(callbackID, "Не удалось открыть устройство.")
		return
	}

	text := fmt.Sprintf(
		"Устройство «%s»\n\nСтатус: %s\nUUID: <code>%s</code>\nСоздано: %s",
		device.Name,
		common.StatusLabel(device.Status),
		device.UUID,
		common.Dash(device.CreatedAt),
	)

	var actions []chat.Button
	switch device.Status {
	case registry.StatusInactive:
		actions = append(actions, chat.Button{Text: "Активировать", Data: CallbackActivate + ":" + device.UUID})
	case registry.StatusActive:
		actions = append(actions, chat.Button{Text: "Деактивировать", Data: CallbackDeactivate + ":" + device.UUID})
	}
	actions = append(actions, chat.Button{Text: "Переименовать", Data: CallbackRename + ":" + device.UUID})

	kb := chat.Keyboard{
		actions,
		chat.Row(chat.Button{Text: "← К списку", Data: CallbackList}),
	}
	h.edit(chatID, messageID, text, kb)
	h.ack(callbackID)
}

func (h *Handler) startActivation(ctx context.Context, chatID int64, messageID int, callbackID, ownerID, deviceUUID string) {
	device, nodes, err := h.service.ActivationCandidates(ctx, ownerID, deviceUUID)
	switch {
	case errors.Is(err, common.ErrAccessDenied):
		h.ackAlert(callbackID, "Активировать можно только неактивное устройство.")
		return
	case errors.Is(err, common.ErrNotFound):
		h.ackAlert(callbackID, "Нет доступных узлов. Обратитесь к администратору.")
		return
	case err != nil:
		log.WithError(err).Error("Подготовка активации не удалась")
		h.ackAlert(callbackID, "Не удалось подготовить активацию.")
		return
	}

	h.store.Set(chatID, StateWaitingNode, ActivateData{
		UUID:       device.UUID,
		DeviceName: device.Name,
		Nodes:      nodes,
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
	kb = append(kb, chat.Row(chat.Button{Text: "Отмена", Data: CallbackCancel}))

	h.edit(chatID, messageID,
		fmt.Sprintf("Выберите entry-узел для устройства «%s»:", device.Name), kb)
	h.ack(callbackID)
}

func (h *Handler) finishActivation(ctx context.Context, chatID int64, messageID int, callbackID, ownerID, param string) {
	state := h.store.Get(chatID)
	if state == nil || state.Name != StateWaitingNode {
		h.ackAlert(callbackID, "Список устарел, откройте устройство заново.")
		return
	}
	data, _ := state.Data.(ActivateData)

	index, err := strconv.Atoi(param)
	if err != nil {
		h.ackAlert(callbackID, "Список устарел, откройте устройство заново.")
		return
	}

	node, err := h.service.Activate(ctx, ownerID, data, index)
	h.store.Clear(chatID)
	switch {
	case errors.Is(err, common.ErrStaleSelection):
		h.ackAlert(callbackID, "Список узлов устарел. Откройте устройство заново.")
		return
	case errors.Is(err, common.ErrAccessDenied):
		h.edit(chatID, messageID, "Активация прервана: устройство недоступно или уже активно.", nil)
		h.ack(callbackID)
		return
	case errors.Is(err, common.ErrNotFound):
		h.edit(chatID, messageID, "Устройство не найдено. Возможно, его уже удалили.", nil)
		h.ack(callbackID)
		return
	case errors.Is(err, ErrPartialActivation):
		h.edit(chatID, messageID,
			fmt.Sprintf("Устройство зарегистрировано на узле %s, но статус обновить не удалось.\nОбратитесь к администратору.", node.Host),
			nil)
		h.ack(callbackID)
		return
	case err != nil:
		log.WithError(err).Error("Активация не удалась")
		h.edit(chatID, messageID, "Не удалось активировать устройство. Попробуйте позже.", nil)
		h.ack(callbackID)
		return
	}

	h.edit(chatID, messageID,
		fmt.Sprintf("Устройство «%s» активировано на узле %s.", data.DeviceName, node.Host),
		chat.Keyboard{chat.Row(chat.Button{Text: "← К списку", Data: CallbackList})})
	h.ack(callbackID)
}

func (h *Handler) deactivate(ctx context.Context, chatID int64, messageID int, callbackID, ownerID, deviceUUID string) {
	err := h.service.Deactivate(ctx, ownerID, deviceUUID)
	switch {
	case errors.Is(err, common.ErrAccessDenied):
		h.ackAlert(callbackID, "Деактивировать можно только активное устройство.")
		return
	case errors.Is(err, common.ErrNotFound):
		h.ackAlert(callbackID, "Устройство не найдено.")
		return
	case err != nil:
		log.WithError(err).Error("Деактивация не удалась")
		h.ackAlert(callbackID, "Не удалось деактивировать устройство.")
		return
	}

	text, kb, errList := h.listScreen(ctx, ownerID)
	if errList != nil {
		h.edit(chatID, messageID, "Устройство деактивировано.", nil)
	} else {
		h.edit(chatID, messageID, "Устройство деактивировано.\n\n"+text, kb)
	}
	h.ack(callbackID)
}

// listScreen собирает текст и клавиатуру списка устройств.
func (h *Handler) listScreen(ctx context.Context, ownerID string) (string, chat.Keyboard, error) {
	devicesList, err := h.service.List(ctx, ownerID)
	if err != nil {
		return "", nil, err
	}

	var sb strings.Builder
	sb.WriteString("Ваши устройства")
	if len(devicesList) == 0 {
		sb.WriteString("\n\nУстройств пока нет. Добавьте первое кнопкой ниже.")
	} else {
		sb.WriteString(fmt.Sprintf(" (%s):\n", common.FormatDeviceCount(len(devicesList))))
	}

	kb := chat.Keyboard{}
	for _, d := range devicesList {
		kb = append(kb, chat.Row(chat.Button{
			Text: fmt.Sprintf("%s · %s", d.Name, common.StatusLabel(d.Status)),
			Data: CallbackCard + ":" + d.UUID,
		}))
	}
	kb = append(kb, chat.Row(chat.Button{Text: "➕ Добавить устройство", Data: CallbackAdd}))

	return sb.String(), kb, nil
}

// showList отправляет список новым сообщением с префиксом-результатом.
func (h *Handler) showList(ctx context.Context, chatID int64, ownerID, prefix string) {
	text, kb, err := h.listScreen(ctx, ownerID)
	if err != nil {
		h.send(chatID, prefix, nil)
		return
	}
	h.send(chatID, prefix+"\n\n"+text, kb)
}

func kbCancel() chat.Keyboard {
	return chat.Keyboard{chat.Row(chat.Button{Text: "Отмена", Data: CallbackCancel})}
}

// splitPayload отделяет действие от параметра после последнего двоеточия.
// "dev:card:<uuid>" → ("dev:card", "<uuid>"); "dev:list" → ("dev:list", "").
func splitPayload(payload string) (string, string) {
	idx := strings.LastIndex(payload, ":")
	if idx < 0 {
		return payload, ""
	}
	action := payload[:idx]
	param := payload[idx+1:]
	// Токены без параметра тоже содержат двоеточие ("dev:list")
	switch payload {
	case CallbackList, CallbackAdd, CallbackCancel:
		return payload, ""
	}
	return action, param
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
