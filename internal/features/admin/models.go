// Package admin реализует панель администратора: список пользователей,
// одобрение заявок, приостановку и архивирование с каскадом по
// устройствам. models.go описывает состояния и callback-токены.
package admin

import "sigilgate.ru/telegram-bot/internal/registry"

// Состояния админ-диалогов.
const (
	// StateWaitingCoreNode — ждём выбор core-узла при одобрении заявки
	StateWaitingCoreNode = "adm_waiting_core_node"
)

// Callback-токены. Параметр (id или индекс) идёт после последнего двоеточия.
const (
	CallbackUsers     = "adm:users"
	CallbackUser      = "adm:user"       // adm:user:<id>
	CallbackApprove   = "adm:approve"    // adm:approve:<id>
	CallbackNode      = "adm:node"       // adm:node:<index>
	CallbackSuspend   = "adm:suspend"    // adm:suspend:<id>
	CallbackArchive   = "adm:archive"    // adm:archive:<id>
	CallbackRemove    = "adm:remove"     // adm:remove:<id> — запрос подтверждения
	CallbackRemoveYes = "adm:remove_yes" // adm:remove_yes:<id> — подтверждено
)

// ApproveData — контекст одобрения заявки: пользователь и снапшот
// core-узлов, в который указывает выбранный индекс.
type ApproveData struct {
	UserID              string
	Username            string
	ApplicantTelegramID int64
	Nodes               []registry.Node
}
