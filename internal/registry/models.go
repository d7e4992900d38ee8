// Package registry — models.go описывает записи внешнего реестра.
// Реестр не версионирует схему, поэтому все необязательные поля
// декодируются мягко: отсутствующее поле — это null, а не ошибка.
package registry

import (
	"encoding/json"

	log "github.com/sirupsen/logrus"
)

// Статусы записей реестра (общие для пользователей и устройств).
const (
	StatusInactive = "inactive"
	StatusActive   = "active"
	StatusArchived = "archived"
)

// User — запись пользователя во внешнем реестре.
// Владеет записью реестр; бот никогда не кеширует её дольше одного запроса.
type User struct {
	ID         string   `json:"id"`
	Username   string   `json:"username"`
	Status     string   `json:"status"`
	TelegramID int64    `json:"telegram_id"`
	Telegram   string   `json:"telegram"` // @handle, может отсутствовать
	Email      string   `json:"email"`    // может отсутствовать
	CoreNodes  []string `json:"core_nodes"`
	CreatedAt  string   `json:"created_at"` // как отдаёт реестр, без парсинга
}

// Device — запись устройства во внешнем реестре.
type Device struct {
	UUID      string `json:"uuid"`
	UserID    string `json:"user"`
	Name      string `json:"device"`
	Status    string `json:"status"`
	CreatedAt string `json:"created_at"`
}

// Node — узел сети (core или entry).
type Node struct {
	Host        string `json:"host"`
	Name        string `json:"name"`
	ServiceName string `json:"service_name"`
}

// decodeUsers разбирает JSON-массив пользователей поэлементно.
// Битая запись пропускается с предупреждением — скан продолжается,
// резолвер ролей никогда не падает из-за одного кривого файла.
func decodeUsers(data []byte) ([]User, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	out := make([]User, 0, len(raw))
	for _, r := range raw {
		var u User
		if err := json.Unmarshal(r, &u); err != nil {
			log.WithError(err).Warn("Пропущена нечитаемая запись пользователя")
			continue
		}
		out = append(out, u)
	}
	return out, nil
}

// decodeDevices — то же самое для устройств.
func decodeDevices(data []byte) ([]Device, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	out := make([]Device, 0, len(raw))
	for _, r := range raw {
		var d Device
		if err := json.Unmarshal(r, &d); err != nil {
			log.WithError(err).Warn("Пропущена нечитаемая запись устройства")
			continue
		}
		out = append(out, d)
	}
	return out, nil
}

// decodeNodes — узлы приходят либо объектами, либо голыми строками-именами.
func decodeNodes(data []byte) ([]Node, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	out := make([]Node, 0, len(raw))
	for _, r := range raw {
		var n Node
		if err := json.Unmarshal(r, &n); err == nil && (n.Host != "" || n.Name != "") {
			out = append(out, n)
			continue
		}
		var name string
		if err := json.Unmarshal(r, &name); err == nil && name != "" {
			out = append(out, Node{Host: name, Name: name})
			continue
		}
		log.Warn("Пропущена нечитаемая запись узла")
	}
	return out, nil
}

// DisplayName возвращает отображаемое имя пользователя для уведомлений.
func (u *User) DisplayName() string {
	if u.Telegram != "" {
		return u.Telegram
	}
	return u.Username
}

// IsActive — статус active.
func (u *User) IsActive() bool { return u.Status == StatusActive }
