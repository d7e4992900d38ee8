// Package chat описывает способность бота доставлять сообщения в конкретный чат.
// Ядро (диалоги, каскады, триал) зависит только от этого интерфейса,
// а не от Telegram-клиента, поэтому в тестах используется двойник,
// записывающий вызовы.
package chat

// Button — одна инлайн-кнопка: текст и callback-токен.
type Button struct {
	Text string
	Data string
}

// Keyboard — раскладка инлайн-кнопок: строки по несколько кнопок.
type Keyboard [][]Button

// Row собирает одну строку клавиатуры.
func Row(buttons ...Button) []Button {
	return buttons
}

// Messenger — четыре глагола доставки, которых достаточно ядру:
// отправить текст (с клавиатурой или без), отредактировать предыдущее
// сообщение, подтвердить callback и отправить бинарное вложение.
// Редактирование и подтверждение применяются к последнему сообщению чата —
// порядок доставки гарантирует транспорт.
type Messenger interface {
	// Send отправляет текст (HTML-разметка) с опциональной клавиатурой.
	Send(chatID int64, text string, kb Keyboard) error
	// Edit заменяет текст и клавиатуру ранее отправленного сообщения.
	Edit(chatID int64, messageID int, text string, kb Keyboard) error
	// AnswerCallback подтверждает нажатие кнопки; alert=true показывает попап.
	AnswerCallback(callbackID string, text string, alert bool) error
	// SendPhoto отправляет PNG (QR-код) с подписью.
	SendPhoto(chatID int64, filename string, data []byte, caption string) error
}
