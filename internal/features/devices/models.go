// Package devices реализует управление устройствами пользователя:
// список, добавление, переименование, активацию и деактивацию.
// models.go описывает шаги диалогов и callback-токены.
package devices

import "sigilgate.ru/telegram-bot/internal/registry"

// Состояния диалогов устройств.
// Префикс "dev_" используется роутером для передачи текста владельцу.
const (
	StateWaitingName   = "dev_waiting_name"   // Ждём имя нового устройства
	StateWaitingRename = "dev_waiting_rename" // Ждём новое имя существующего
	StateWaitingNode   = "dev_waiting_node"   // Ждём выбор entry-узла кнопкой
)

// Callback-токены. Параметр (uuid или индекс) идёт после последнего двоеточия.
const (
	CallbackList       = "dev:list"
	CallbackAdd        = "dev:add"
	CallbackCancel     = "dev:cancel"
	CallbackCard       = "dev:card"       // dev:card:<uuid>
	CallbackRename     = "dev:rename"     // dev:rename:<uuid>
	CallbackActivate   = "dev:activate"   // dev:activate:<uuid>
	CallbackDeactivate = "dev:deactivate" // dev:deactivate:<uuid>
	CallbackNode       = "dev:node"       // dev:node:<index>
)

// RenameData — контекст диалога переименования.
type RenameData struct {
	UUID string // Устройство, захваченное на входе в диалог
}

// ActivateData — контекст выбора entry-узла.
// Список узлов снят один раз на входе; выбор — индекс в этот снапшот.
// Если список успел устареть (индекс вне диапазона), переход
// безопасно завершается ошибкой StaleSelection.
type ActivateData struct {
	UUID       string
	DeviceName string
	Nodes      []registry.Node
}
