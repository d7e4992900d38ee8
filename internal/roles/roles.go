// Package roles определяет роли акторов и их вычисление.
// Роль вычисляется заново на каждый входящий апдейт, до запуска
// обработчиков, и только читает реестр — никаких побочных эффектов.
package roles

import (
	"context"

	log "github.com/sirupsen/logrus"

	"sigilgate.ru/telegram-bot/internal/registry"
)

// Role — роль актора в системе.
type Role string

const (
	RoleGuest Role = "guest"
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// GuestState — подсостояние гостя, вычисляется из записи реестра.
// Используется только для выбора текста сообщений.
type GuestState string

const (
	GuestNoRecord GuestState = "no_record" // нет записи в реестре
	GuestPending  GuestState = "pending"   // inactive + core_nodes пуст (ждёт одобрения)
	GuestBlocked  GuestState = "blocked"   // inactive + core_nodes не пуст (заблокирован)
	GuestArchived GuestState = "archived"  // archived (постоянный бан)
)

// ResolveGuestState вычисляет подсостояние гостя из записи реестра.
func ResolveGuestState(u *registry.User) GuestState {
	if u == nil {
		return GuestNoRecord
	}
	switch u.Status {
	case registry.StatusArchived:
		return GuestArchived
	case registry.StatusInactive:
		if len(u.CoreNodes) == 0 {
			return GuestPending
		}
		return GuestBlocked
	}
	return GuestNoRecord
}

// Finder — то, что резолверу нужно от реестра.
type Finder interface {
	FindUserByTelegramID(ctx context.Context, telegramID int64) (*registry.User, error)
}

// Resolver вычисляет роль по telegram-id и списку администраторов.
type Resolver struct {
	finder   Finder
	adminIDs map[int64]struct{}
}

// NewResolver создаёт резолвер ролей.
func NewResolver(finder Finder, adminIDs []int64) *Resolver {
	set := make(map[int64]struct{}, len(adminIDs))
	for _, id := range adminIDs {
		set[id] = struct{}{}
	}
	return &Resolver{finder: finder, adminIDs: set}
}

// Resolve возвращает роль актора и его запись реестра (если есть).
//
// Правила:
//   - id в списке администраторов → Admin, безусловно. Запись реестра
//     ищется только для отображения; её отсутствие или ошибка поиска
//     роль не меняют.
//   - запись найдена и status=active → User. Любой другой статус → Guest
//     (подсостояние считается через ResolveGuestState).
//   - записи нет или реестр недоступен → Guest/NoRecord. Недоступность
//     реестра логируется, но резолвер не падает никогда.
func (r *Resolver) Resolve(ctx context.Context, telegramID int64) (Role, *registry.User) {
	_, isAdmin := r.adminIDs[telegramID]

	user, err := r.finder.FindUserByTelegramID(ctx, telegramID)
	if err != nil {
		log.WithError(err).WithField("telegram_id", telegramID).
			Warn("Реестр недоступен при вычислении роли")
		user = nil
	}

	if isAdmin {
		return RoleAdmin, user
	}
	if user != nil && user.IsActive() {
		return RoleUser, user
	}
	return RoleGuest, user
}
