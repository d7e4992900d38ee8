// Package trial — handlers.go: команда /trial и отправка результата.
// Результат: QR-код первой ссылки отдельным фото и HTML-сообщение
// со ссылкой и остатком квоты.
package trial

import (
	"context"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"
	qrcode "github.com/skip2/go-qrcode"

	"sigilgate.ru/telegram-bot/internal/chat"
	"sigilgate.ru/telegram-bot/internal/common"
	"sigilgate.ru/telegram-bot/internal/roles"
)

// Handler обрабатывает /trial.
type Handler struct {
	service *Service
	msgr    chat.Messenger
}

// NewHandler создаёт обработчик триала.
func NewHandler(service *Service, msgr chat.Messenger) *Handler {
	return &Handler{service: service, msgr: msgr}
}

func resultText(link string, remaining int) string {
	return fmt.Sprintf(
		"🌐 Сеть <b>Sigil Gate</b> — доступ открыт\n"+
			"Добро пожаловать!\n\n"+
			"Ссылка действует <b>1 час</b>.\n"+
			"Лимит подключений: <b>%d</b>\n\n"+
			"<code>%s</code>",
		remaining, link,
	)
}

// HandleTrial — команда /trial.
// Доступна гостям (им и адресована) и администраторам (для проверки);
// активному пользователю триал не нужен.
func (h *Handler) HandleTrial(ctx context.Context, chatID, userID int64, role roles.Role) {
	if role == roles.RoleUser {
		h.send(chatID, "Вы уже зарегистрированы в системе.\nИспользуйте /devices для управления подключениями.")
		return
	}

	h.send(chatID, "⏳ Ваш запрос на подключение обрабатывается...")

	issued, err := h.service.Issue(ctx, userID)
	switch {
	case errors.Is(err, common.ErrTrialExhausted):
		h.send(chatID,
			"<b>Лимит пробных подключений исчерпан.</b>\n\n"+
				"Вы использовали все доступные пробные подключения.\n"+
				"Для получения постоянного доступа пройдите регистрацию: /reg")
		return
	case errors.Is(err, ErrLinkUnavailable):
		h.send(chatID, "Подключение создано, но не удалось сформировать ссылку. Обратитесь к администратору.")
		return
	case errors.Is(err, ErrNoRoute):
		h.send(chatID, "Подключение создано, но маршрут не найден. Обратитесь к администратору.")
		return
	case err != nil:
		log.WithError(err).Error("Выдача пробного подключения не удалась")
		h.send(chatID, "Не удалось создать пробное подключение. Попробуйте позже.")
		return
	}

	// QR-код — приятное дополнение; его отсутствие не ломает выдачу
	if png, qrErr := qrcode.Encode(issued.Link, qrcode.Medium, 512); qrErr == nil {
		if err := h.msgr.SendPhoto(chatID, "qr.png", png, ""); err != nil {
			log.WithError(err).Warn("Не удалось отправить QR-код")
		}
	} else {
		log.WithError(qrErr).Warn("Не удалось сгенерировать QR-код")
	}

	h.send(chatID, resultText(issued.Link, issued.Remaining))
}

func (h *Handler) send(chatID int64, text string) {
	if err := h.msgr.Send(chatID, text, nil); err != nil {
		log.WithError(err).WithField("chat_id", chatID).Error("Ошибка отправки сообщения")
	}
}
