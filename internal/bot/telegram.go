// telegram.go — реализация chat.Messenger поверх Bot API.
// Обработчики фич не знают про tgbotapi и собирают клавиатуры
// в нейтральном виде; конвертация в InlineKeyboardMarkup живёт здесь.
package bot

import (
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"sigilgate.ru/telegram-bot/internal/chat"
)

// TelegramMessenger отправляет сообщения через Telegram Bot API.
type TelegramMessenger struct {
	api *tgbotapi.BotAPI
}

// NewTelegramMessenger создаёт мессенджер поверх готового API-клиента.
func NewTelegramMessenger(api *tgbotapi.BotAPI) *TelegramMessenger {
	return &TelegramMessenger{api: api}
}

// Send отправляет текстовое сообщение с опциональной inline-клавиатурой.
func (m *TelegramMessenger) Send(chatID int64, text string, kb chat.Keyboard) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	if markup := toMarkup(kb); markup != nil {
		msg.ReplyMarkup = markup
	}
	_, err := m.api.Send(msg)
	return err
}

// Edit заменяет текст и клавиатуру уже отправленного сообщения.
func (m *TelegramMessenger) Edit(chatID int64, messageID int, text string, kb chat.Keyboard) error {
	msg := tgbotapi.NewEditMessageText(chatID, messageID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.ReplyMarkup = toMarkup(kb)
	_, err := m.api.Send(msg)
	return err
}

// AnswerCallback подтверждает нажатие кнопки; alert показывает
// всплывающее окно вместо тихой плашки.
func (m *TelegramMessenger) AnswerCallback(callbackID string, text string, alert bool) error {
	cb := tgbotapi.NewCallback(callbackID, text)
	cb.ShowAlert = alert
	_, err := m.api.Request(cb)
	return err
}

// SendPhoto отправляет изображение из памяти (QR-код подключения).
func (m *TelegramMessenger) SendPhoto(chatID int64, filename string, data []byte, caption string) error {
	photo := tgbotapi.NewPhoto(chatID, tgbotapi.FileBytes{Name: filename, Bytes: data})
	photo.Caption = caption
	_, err := m.api.Send(photo)
	return err
}

// toMarkup конвертирует нейтральную клавиатуру в формат Bot API.
func toMarkup(kb chat.Keyboard) *tgbotapi.InlineKeyboardMarkup {
	if len(kb) == 0 {
		return nil
	}
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(kb))
	for _, row := range kb {
		if len(row) == 0 {
			continue
		}
		buttons := make([]tgbotapi.InlineKeyboardButton, 0, len(row))
		for _, b := range row {
			buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonData(b.Text, b.Data))
		}
		rows = append(rows, buttons)
	}
	if len(rows) == 0 {
		return nil
	}
	markup := tgbotapi.NewInlineKeyboardMarkup(rows...)
	return &markup
}
