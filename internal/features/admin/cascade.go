// Package admin — cascade.go: каскадные операции над пользователем.
// Обе операции устроены одинаково: перечислить устройства, пройтись по
// каждому, остановиться на первой же неудаче. Отката нет — частично
// выполненный каскад остаётся как есть, а повторный запуск пропускает
// устройства, уже находящиеся в целевом статусе, и продолжает с места
// обрыва.
package admin

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"sigilgate.ru/telegram-bot/internal/registry"
)

// CascadeRegistry — то, что каскадам нужно от реестра.
type CascadeRegistry interface {
	ListDevices(ctx context.Context, userID string) ([]registry.Device, error)
	DeactivateDevice(ctx context.Context, deviceUUID string) error
	SetDeviceStatus(ctx context.Context, deviceUUID, status string) error
	UpdateUser(ctx context.Context, id string, p registry.UpdateUserParams) error
	Commit(ctx context.Context, message string) error
}

// Cascader выполняет каскадные операции.
type Cascader struct {
	reg CascadeRegistry
}

// NewCascader создаёт координатор каскадов.
func NewCascader(reg CascadeRegistry) *Cascader {
	return &Cascader{reg: reg}
}

// Suspend приостанавливает пользователя: деактивирует каждое активное
// устройство и, только если все деактивации прошли, переводит самого
// пользователя в inactive. Первая неудача прерывает каскад — часть
// устройств остаётся деактивированной, статус пользователя не меняется.
func (c *Cascader) Suspend(ctx context.Context, userID string) error {
	devices, err := c.reg.ListDevices(ctx, userID)
	if err != nil {
		return fmt.Errorf("список устройств пользователя %s: %w", userID, err)
	}

	for _, d := range devices {
		if d.Status != registry.StatusActive {
			// Уже не активно — повторный запуск продолжает с места обрыва
			continue
		}
		if err := c.reg.DeactivateDevice(ctx, d.UUID); err != nil {
			return fmt.Errorf("деактивация устройства %s (%s): %w", d.Name, d.UUID, err)
		}
		log.WithFields(log.Fields{"uuid": d.UUID, "user_id": userID}).
			Debug("Каскад: устройство деактивировано")
	}

	if err := c.reg.UpdateUser(ctx, userID, registry.UpdateUserParams{Status: registry.StatusInactive}); err != nil {
		return fmt.Errorf("перевод пользователя %s в inactive: %w", userID, err)
	}

	c.commit(ctx, fmt.Sprintf("User suspended: %s via Telegram", userID))
	log.WithField("user_id", userID).Info("Пользователь приостановлен")
	return nil
}

// Archive архивирует пользователя: каждое устройство сначала
// деактивируется (если активно), затем архивируется (если ещё не).
// Семантика обрыва та же; полный успех по устройствам — и только он —
// ведёт к архивированию самого пользователя.
func (c *Cascader) Archive(ctx context.Context, userID string) error {
	devices, err := c.reg.ListDevices(ctx, userID)
	if err != nil {
		return fmt.Errorf("список устройств пользователя %s: %w", userID, err)
	}

	for _, d := range devices {
		if d.Status == registry.StatusActive {
			if err := c.reg.DeactivateDevice(ctx, d.UUID); err != nil {
				return fmt.Errorf("деактивация устройства %s (%s): %w", d.Name, d.UUID, err)
			}
		}
		if d.Status == registry.StatusArchived {
			continue
		}
		if err := c.reg.SetDeviceStatus(ctx, d.UUID, registry.StatusArchived); err != nil {
			return fmt.Errorf("архивирование устройства %s (%s): %w", d.Name, d.UUID, err)
		}
		log.WithFields(log.Fields{"uuid": d.UUID, "user_id": userID}).
			Debug("Каскад: устройство архивировано")
	}

	if err := c.reg.UpdateUser(ctx, userID, registry.UpdateUserParams{Status: registry.StatusArchived}); err != nil {
		return fmt.Errorf("архивирование пользователя %s: %w", userID, err)
	}

	c.commit(ctx, fmt.Sprintf("User archived: %s via Telegram", userID))
	log.WithField("user_id", userID).Info("Пользователь архивирован")
	return nil
}

func (c *Cascader) commit(ctx context.Context, message string) {
	if err := c.reg.Commit(ctx, message); err != nil {
		log.WithError(err).Warn("Не удалось зафиксировать изменение в журнале реестра")
	}
}
