// Package common — errors.go определяет пользовательские ошибки,
// которые используются во всех модулях бота.
// Эти ошибки позволяют обработчикам различать типы проблем
// и отправлять пользователю понятные сообщения.
package common

import "errors"

// Ошибки доступа
var (
	// ErrAccessDenied — роль или владение не позволяют выполнить действие.
	// Проверяется до любых побочных эффектов.
	ErrAccessDenied = errors.New("доступ ограничен")
	// ErrNotFound — пользователь/устройство/узел больше не существует
	// (обычно гонка с другим администратором)
	ErrNotFound = errors.New("запись не найдена")
	// ErrStaleSelection — выбор по номеру не совпадает со снапшотом списка
	ErrStaleSelection = errors.New("список устарел, откройте его заново")
)

// Ошибки валидации пользовательского ввода (диалог остаётся на том же шаге)
var (
	// ErrEmptyInput — пустой ввод там, где требуется значение
	ErrEmptyInput = errors.New("значение не может быть пустым")
	// ErrNameTooLong — имя длиннее 64 символов
	ErrNameTooLong = errors.New("имя слишком длинное (максимум 64 символа)")
	// ErrUsernameTaken — никнейм уже занят (без учёта регистра)
	ErrUsernameTaken = errors.New("этот никнейм уже занят")
	// ErrBadEmail — email не похож на email
	ErrBadEmail = errors.New("некорректный email")
	// ErrAlreadyApplied — заявка с этим telegram-id уже существует
	ErrAlreadyApplied = errors.New("заявка уже подана ранее")
)

// Ошибки триала
var (
	// ErrTrialExhausted — лимит пробных подключений исчерпан (суффикс дошёл до 0)
	ErrTrialExhausted = errors.New("лимит пробных подключений исчерпан")
)

// IsValidation сообщает, является ли ошибка ошибкой валидации ввода.
// Такие ошибки не прерывают диалог — пользователю показывается
// подсказка, и шаг повторяется.
func IsValidation(err error) bool {
	return errors.Is(err, ErrEmptyInput) ||
		errors.Is(err, ErrNameTooLong) ||
		errors.Is(err, ErrUsernameTaken) ||
		errors.Is(err, ErrBadEmail)
}
