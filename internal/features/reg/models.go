// Package reg реализует диалог регистрации (заявки на подключение).
// models.go описывает шаги диалога и накапливаемые данные.
package reg

// Состояния диалога регистрации.
// Префикс "reg_" используется роутером для передачи текста владельцу.
const (
	StateWaitingUsername = "reg_waiting_username" // Ждём никнейм
	StateWaitingEmail    = "reg_waiting_email"    // Ждём email (или «Пропустить»)
	StateConfirm         = "reg_confirm"          // Ждём «Отправить заявку» / «Отмена»
)

// Callback-токены кнопок диалога.
const (
	CallbackCancel    = "reg:cancel"
	CallbackSkipEmail = "reg:skip_email"
	CallbackSubmit    = "reg:submit"
)

// Data — накопленные данные диалога регистрации.
type Data struct {
	Username string // Проверенный уникальный никнейм
	Email    string // Пустая строка = не указан
}
