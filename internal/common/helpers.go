// Package common содержит общие утилиты, используемые во всём проекте.
// Сюда входят: отображение отсутствующих полей, форматирование дат,
// человекочитаемые статусы и русская плюрализация.
package common

import (
	"fmt"
	"math"
	"time"
)

// Dash возвращает значение или «—», если оно пустое.
// Единая точка для правила «отсутствующее поле показываем прочерком»,
// чтобы не переизобретать его на каждом экране.
func Dash(s string) string {
	if s == "" {
		return "—"
	}
	return s
}

// StatusLabel возвращает человекочитаемый статус записи реестра.
func StatusLabel(status string) string {
	switch status {
	case "active":
		return "🟢 активен"
	case "inactive":
		return "🟡 неактивен"
	case "archived":
		return "⚫ архивирован"
	default:
		return Dash(status)
	}
}

// FormatDateTime форматирует время в формат "02.01.2006 15:04".
// Используется на карточках пользователей и устройств.
func FormatDateTime(t time.Time) string {
	if t.IsZero() {
		return "—"
	}
	return t.Format("02.01.2006 15:04")
}

// PluralizeDevices возвращает правильную форму слова «устройство» для числа n.
//
// Правила русского языка:
//   - n%10==1 И n%100!=11 → "устройство" (1, 21, 31, ...)
//   - n%10 в [2,3,4] И n%100 НЕ в [12,13,14] → "устройства" (2, 3, 4, 22, ...)
//   - Остальные случаи → "устройств" (0, 5-20, 25-30, ...)
func PluralizeDevices(n int) string {
	absN := int(math.Abs(float64(n)))
	lastDigit := absN % 10
	lastTwoDigits := absN % 100

	if lastDigit == 1 && lastTwoDigits != 11 {
		return "устройство"
	}
	if lastDigit >= 2 && lastDigit <= 4 && (lastTwoDigits < 12 || lastTwoDigits > 14) {
		return "устройства"
	}
	return "устройств"
}

// FormatDeviceCount форматирует количество устройств.
// Пример: FormatDeviceCount(3) → "3 устройства"
func FormatDeviceCount(n int) string {
	return fmt.Sprintf("%d %s", n, PluralizeDevices(n))
}

// PluralizeRequests возвращает правильную форму слова «заявка».
func PluralizeRequests(n int) string {
	absN := int(math.Abs(float64(n)))
	lastDigit := absN % 10
	lastTwoDigits := absN % 100

	if lastDigit == 1 && lastTwoDigits != 11 {
		return "заявка"
	}
	if lastDigit >= 2 && lastDigit <= 4 && (lastTwoDigits < 12 || lastTwoDigits > 14) {
		return "заявки"
	}
	return "заявок"
}

// Truncate обрезает строку до max рун, добавляя многоточие.
// Используется при логировании входящих сообщений.
func Truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max]) + "..."
}
