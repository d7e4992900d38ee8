// Package devices — service.go: бизнес-логика операций с устройствами.
// Владение перепроверяется на каждом завершающем переходе, а не только
// на входе в диалог: смена владельца или удаление устройства посреди
// диалога обязаны завершиться отказом, а не чужой мутацией.
package devices

import (
	"context"
	"errors"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"

	"sigilgate.ru/telegram-bot/internal/common"
	"sigilgate.ru/telegram-bot/internal/registry"
)

// ErrPartialActivation — устройство зарегистрировано на узле, но статус
// обновить не удалось. Сообщается отдельно: молча считать это успехом нельзя.
var ErrPartialActivation = errors.New("устройство зарегистрировано на узле, но статус не обновлён")

// Registry — то, что устройствам нужно от реестра.
type Registry interface {
	ListDevices(ctx context.Context, userID string) ([]registry.Device, error)
	GetDevice(ctx context.Context, deviceUUID string) (*registry.Device, error)
	AddDevice(ctx context.Context, userID, name string) (string, error)
	RenameDevice(ctx context.Context, deviceUUID, name string) error
	SetDeviceStatus(ctx context.Context, deviceUUID, status string) error
	DeactivateDevice(ctx context.Context, deviceUUID string) error
	ListEntryNodes(ctx context.Context, userID string) ([]registry.Node, error)
	AddEntryClient(ctx context.Context, host, deviceUUID, serviceName, name string) error
	Commit(ctx context.Context, message string) error
}

// Service выполняет операции с устройствами от имени владельца.
type Service struct {
	reg Registry
}

// NewService создаёт сервис устройств.
func NewService(reg Registry) *Service {
	return &Service{reg: reg}
}

// List возвращает устройства владельца.
func (s *Service) List(ctx context.Context, ownerID string) ([]registry.Device, error) {
	return s.reg.ListDevices(ctx, ownerID)
}

// ValidateName проверяет имя устройства: непустое и не длиннее 64 символов.
func ValidateName(input string) (string, error) {
	name := strings.TrimSpace(input)
	if name == "" {
		return "", common.ErrEmptyInput
	}
	if len([]rune(name)) > 64 {
		return "", common.ErrNameTooLong
	}
	return name, nil
}

// Add создаёт устройство владельцу и возвращает его UUID.
func (s *Service) Add(ctx context.Context, ownerID, name string) (string, error) {
	deviceUUID, err := s.reg.AddDevice(ctx, ownerID, name)
	if err != nil {
		return "", fmt.Errorf("добавление устройства: %w", err)
	}
	s.commit(ctx, fmt.Sprintf("Device added: %s (%s) via Telegram", name, deviceUUID))
	return deviceUUID, nil
}

// owned возвращает устройство, убедившись, что им владеет ownerID.
// Отсутствие устройства — NotFound; чужое устройство — AccessDenied.
func (s *Service) owned(ctx context.Context, ownerID, deviceUUID string) (*registry.Device, error) {
	device, err := s.reg.GetDevice(ctx, deviceUUID)
	if err != nil {
		var scriptErr *registry.ScriptError
		if errors.As(err, &scriptErr) {
			return nil, common.ErrNotFound
		}
		return nil, err
	}
	if device.UserID != ownerID {
		return nil, common.ErrAccessDenied
	}
	return device, nil
}

// Rename переименовывает устройство владельца.
// Устройство перечитывается перед мутацией — оно всё ещё должно
// принадлежать запрашивающему.
func (s *Service) Rename(ctx context.Context, ownerID, deviceUUID, newName string) error {
	device, err := s.owned(ctx, ownerID, deviceUUID)
	if err != nil {
		return err
	}
	if err := s.reg.RenameDevice(ctx, deviceUUID, newName); err != nil {
		return fmt.Errorf("переименование устройства: %w", err)
	}
	s.commit(ctx, fmt.Sprintf("Device renamed: %s -> %s via Telegram", device.Name, newName))
	return nil
}

// ActivationCandidates готовит активацию: проверяет владение и статус
// inactive, затем снимает снапшот entry-узлов.
func (s *Service) ActivationCandidates(ctx context.Context, ownerID, deviceUUID string) (*registry.Device, []registry.Node, error) {
	device, err := s.owned(ctx, ownerID, deviceUUID)
	if err != nil {
		return nil, nil, err
	}
	if device.Status != registry.StatusInactive {
		return nil, nil, common.ErrAccessDenied
	}
	nodes, err := s.reg.ListEntryNodes(ctx, ownerID)
	if err != nil {
		return nil, nil, fmt.Errorf("список entry-узлов: %w", err)
	}
	if len(nodes) == 0 {
		return nil, nil, common.ErrNotFound
	}
	return device, nodes, nil
}

// Activate завершает активацию по индексу в снапшот узлов.
// Индекс вне диапазона — устаревший снапшот, скрипты не вызываются.
// Регистрация на узле прошла, а смена статуса нет — частичный успех,
// о котором нужно сообщить отдельно (ErrPartialActivation).
func (s *Service) Activate(ctx context.Context, ownerID string, data ActivateData, nodeIndex int) (registry.Node, error) {
	if nodeIndex < 0 || nodeIndex >= len(data.Nodes) {
		return registry.Node{}, common.ErrStaleSelection
	}
	node := data.Nodes[nodeIndex]

	// Повторная проверка владения и статуса: диалог мог висеть долго
	device, err := s.owned(ctx, ownerID, data.UUID)
	if err != nil {
		return node, err
	}
	if device.Status != registry.StatusInactive {
		return node, common.ErrAccessDenied
	}

	serviceName := node.ServiceName
	if serviceName == "" {
		serviceName = node.Name
	}
	if err := s.reg.AddEntryClient(ctx, node.Host, data.UUID, serviceName, device.Name); err != nil {
		return node, fmt.Errorf("регистрация на узле %s: %w", node.Host, err)
	}

	if err := s.reg.SetDeviceStatus(ctx, data.UUID, registry.StatusActive); err != nil {
		log.WithError(err).WithField("uuid", data.UUID).
			Error("Узел зарегистрировал устройство, но статус не обновился")
		return node, ErrPartialActivation
	}

	s.commit(ctx, fmt.Sprintf("Device activated: %s on %s via Telegram", device.Name, node.Host))
	return node, nil
}

// Deactivate снимает устройство владельца с его entry-узла.
func (s *Service) Deactivate(ctx context.Context, ownerID, deviceUUID string) error {
	device, err := s.owned(ctx, ownerID, deviceUUID)
	if err != nil {
		return err
	}
	if device.Status != registry.StatusActive {
		return common.ErrAccessDenied
	}
	if err := s.reg.DeactivateDevice(ctx, deviceUUID); err != nil {
		return fmt.Errorf("деактивация устройства: %w", err)
	}
	s.commit(ctx, fmt.Sprintf("Device deactivated: %s via Telegram", device.Name))
	return nil
}

// commit пишет в журнал реестра; его ошибка мутацию не отменяет.
func (s *Service) commit(ctx context.Context, message string) {
	if err := s.reg.Commit(ctx, message); err != nil {
		log.WithError(err).Warn("Не удалось зафиксировать изменение в журнале реестра")
	}
}
