// Package trial выдаёт пробные подключения: ограниченный по квоте
// самообслуживаемый доступ без регистрации. Квота нигде не хранится —
// она закодирована последней цифрой имени триал-устройства, и
// единственный источник истины — минимальная цифра среди всех
// найденных устройств этого telegram-id.
package trial

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"sigilgate.ru/telegram-bot/internal/common"
	"sigilgate.ru/telegram-bot/internal/registry"
)

// Частичные неуспехи после создания устройства: о каждом сообщается отдельно.
var (
	// ErrLinkUnavailable — устройство создано, но ссылку сформировать не удалось
	ErrLinkUnavailable = errors.New("подключение создано, но ссылка недоступна")
	// ErrNoRoute — устройство создано, но маршрутов для него нет
	ErrNoRoute = errors.New("подключение создано, но маршрут не найден")
)

// Registry — то, что триалу нужно от реестра.
type Registry interface {
	FindTrialDevices(ctx context.Context, telegramID int64) ([]registry.Device, error)
	ExpireTrialDevice(ctx context.Context, deviceUUID string) error
	AddDevice(ctx context.Context, userID, name string) (string, error)
	ListDevices(ctx context.Context, userID string) ([]registry.Device, error)
	DeviceLinks(ctx context.Context, deviceUUID string) ([]string, error)
	DeviceModTime(deviceUUID string) (time.Time, bool)
	Commit(ctx context.Context, message string) error
}

// Service выдаёт и гасит пробные подключения.
type Service struct {
	reg        Registry
	trialUser  string        // id сервисного пользователя, владеющего триалами
	limitStart int           // суффикс первого устройства
	ttl        time.Duration // срок жизни одного подключения
	// now подменяется в тестах
	now func() time.Time
}

// NewService создаёт сервис триала.
func NewService(reg Registry, trialUser string, limitStart int, ttl time.Duration) *Service {
	return &Service{
		reg:        reg,
		trialUser:  trialUser,
		limitStart: limitStart,
		ttl:        ttl,
		now:        time.Now,
	}
}

// Issued — результат успешной выдачи.
type Issued struct {
	UUID      string
	Link      string
	Links     []string
	Remaining int // сколько попыток останется после этой
}

// Issue выдаёт новое пробное подключение для telegram-id.
//
// Шаги: найти прежние триал-устройства → лениво погасить истёкшие
// активные (в фоне, не дожидаясь) → вывести остаток квоты из
// минимального суффикса → создать устройство с суффиксом квота-1 →
// получить ссылки.
func (s *Service) Issue(ctx context.Context, telegramID int64) (*Issued, error) {
	devices, err := s.reg.FindTrialDevices(ctx, telegramID)
	if err != nil {
		return nil, fmt.Errorf("поиск триал-устройств: %w", err)
	}

	s.lazyExpire(devices)

	newDigit, err := s.nextDigit(devices)
	if err != nil {
		return nil, err
	}

	deviceName := fmt.Sprintf("%d%d", telegramID, newDigit)
	deviceUUID, err := s.reg.AddDevice(ctx, s.trialUser, deviceName)
	if err != nil {
		return nil, fmt.Errorf("создание триал-устройства %s: %w", deviceName, err)
	}

	s.commit(ctx, fmt.Sprintf("Trial device issued: %s (%s)", deviceName, deviceUUID))

	links, err := s.reg.DeviceLinks(ctx, deviceUUID)
	if err != nil {
		log.WithError(err).WithField("uuid", deviceUUID).Error("Ссылки триал-устройства недоступны")
		return nil, ErrLinkUnavailable
	}
	if len(links) == 0 {
		return nil, ErrNoRoute
	}

	log.WithFields(log.Fields{
		"telegram_id": telegramID,
		"device":      deviceName,
		"remaining":   newDigit,
	}).Info("Выдано пробное подключение")

	return &Issued{
		UUID:      deviceUUID,
		Link:      links[0],
		Links:     links,
		Remaining: newDigit,
	}, nil
}

// nextDigit выводит суффикс нового устройства из найденных.
// Минимальный суффикс 0 — квота исчерпана, устройство не создаётся.
// Устройств нет — первое использование, стартовая квота.
func (s *Service) nextDigit(devices []registry.Device) (int, error) {
	minDigit := -1
	for _, d := range devices {
		name := d.Name
		if name == "" {
			continue
		}
		last := name[len(name)-1]
		if last < '0' || last > '9' {
			continue
		}
		digit := int(last - '0')
		if minDigit < 0 || digit < minDigit {
			minDigit = digit
		}
	}

	if minDigit < 0 {
		return s.limitStart, nil
	}
	if minDigit == 0 {
		return 0, common.ErrTrialExhausted
	}
	return minDigit - 1, nil
}

// lazyExpire запускает гашение истёкших активных устройств в фоне.
// Контракт: может выполниться после возврата из Issue; неуспех только
// логируется и будет повторён при следующем естественном обращении.
func (s *Service) lazyExpire(devices []registry.Device) {
	now := s.now()
	for _, d := range devices {
		if d.Status != registry.StatusActive {
			continue
		}
		mtime, ok := s.reg.DeviceModTime(d.UUID)
		if !ok || now.Sub(mtime) < s.ttl {
			continue
		}
		age := now.Sub(mtime)
		deviceUUID := d.UUID
		log.WithFields(log.Fields{
			"uuid": deviceUUID,
			"age":  age.Round(time.Second),
		}).Info("Ленивое гашение истёкшего триал-устройства")

		go func() {
			expireCtx, cancel := context.WithTimeout(context.Background(), time.Minute)
			defer cancel()
			if err := s.reg.ExpireTrialDevice(expireCtx, deviceUUID); err != nil {
				log.WithError(err).WithField("uuid", deviceUUID).
					Warn("Не удалось погасить истёкшее триал-устройство")
			}
		}()
	}
}

// SweepExpired гасит истёкшие активные триал-устройства синхронно.
// Вызывается планировщиком по расписанию; это та же зачистка, что и
// ленивая, только не привязанная к чьему-то запросу.
func (s *Service) SweepExpired(ctx context.Context) error {
	devices, err := s.reg.ListDevices(ctx, s.trialUser)
	if err != nil {
		return fmt.Errorf("список триал-устройств: %w", err)
	}

	now := s.now()
	expired := 0
	for _, d := range devices {
		if d.Status != registry.StatusActive {
			continue
		}
		mtime, ok := s.reg.DeviceModTime(d.UUID)
		if !ok || now.Sub(mtime) < s.ttl {
			continue
		}
		if err := s.reg.ExpireTrialDevice(ctx, d.UUID); err != nil {
			log.WithError(err).WithField("uuid", d.UUID).Warn("Зачистка: гашение не удалось")
			continue
		}
		expired++
	}

	if expired > 0 {
		log.WithField("expired", expired).Info("Зачистка триал-устройств завершена")
	}
	return nil
}

func (s *Service) commit(ctx context.Context, message string) {
	if err := s.reg.Commit(ctx, message); err != nil {
		log.WithError(err).Warn("Не удалось зафиксировать изменение в журнале реестра")
	}
}
