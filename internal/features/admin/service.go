// Package admin — service.go: операции панели администратора.
package admin

import (
	"context"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"

	"sigilgate.ru/telegram-bot/internal/common"
	"sigilgate.ru/telegram-bot/internal/registry"
)

// Registry — то, что панели администратора нужно от реестра.
type Registry interface {
	CascadeRegistry
	ListUsers(ctx context.Context, status string) ([]registry.User, error)
	GetUser(ctx context.Context, id string) (*registry.User, error)
	RemoveUser(ctx context.Context, id string) error
	ListCoreNodes(ctx context.Context) ([]registry.Node, error)
}

// Service управляет пользователями реестра.
type Service struct {
	reg  Registry
	casc *Cascader
}

// NewService создаёт сервис панели администратора.
func NewService(reg Registry) *Service {
	return &Service{reg: reg, casc: NewCascader(reg)}
}

// ListUsers возвращает всех пользователей реестра.
func (s *Service) ListUsers(ctx context.Context) ([]registry.User, error) {
	return s.reg.ListUsers(ctx, "")
}

// GetUser возвращает пользователя или NotFound, если его уже нет
// (гонка с другим администратором).
func (s *Service) GetUser(ctx context.Context, id string) (*registry.User, error) {
	user, err := s.reg.GetUser(ctx, id)
	if err != nil {
		var scriptErr *registry.ScriptError
		if errors.As(err, &scriptErr) {
			return nil, common.ErrNotFound
		}
		return nil, err
	}
	return user, nil
}

// CoreNodes возвращает core-узлы для выбора при одобрении.
func (s *Service) CoreNodes(ctx context.Context) ([]registry.Node, error) {
	nodes, err := s.reg.ListCoreNodes(ctx)
	if err != nil {
		return nil, fmt.Errorf("список core-узлов: %w", err)
	}
	if len(nodes) == 0 {
		return nil, common.ErrNotFound
	}
	return nodes, nil
}

// Approve одобряет заявку по индексу в снапшот core-узлов:
// назначает узел и активирует пользователя. Индекс вне диапазона —
// устаревший снапшот, реестр не трогается.
func (s *Service) Approve(ctx context.Context, data ApproveData, nodeIndex int) (registry.Node, error) {
	if nodeIndex < 0 || nodeIndex >= len(data.Nodes) {
		return registry.Node{}, common.ErrStaleSelection
	}
	node := data.Nodes[nodeIndex]

	// Пользователь мог исчезнуть, пока админ выбирал узел
	if _, err := s.GetUser(ctx, data.UserID); err != nil {
		return node, err
	}

	nodeName := node.Name
	if nodeName == "" {
		nodeName = node.Host
	}
	err := s.reg.UpdateUser(ctx, data.UserID, registry.UpdateUserParams{
		Status:      registry.StatusActive,
		AddCoreNode: nodeName,
	})
	if err != nil {
		return node, fmt.Errorf("одобрение заявки %s: %w", data.UserID, err)
	}

	if err := s.reg.Commit(ctx, fmt.Sprintf("User approved: %s on %s via Telegram", data.Username, nodeName)); err != nil {
		log.WithError(err).Warn("Не удалось зафиксировать одобрение в журнале реестра")
	}

	log.WithFields(log.Fields{"user_id": data.UserID, "core_node": nodeName}).
		Info("Заявка одобрена")
	return node, nil
}

// Suspend запускает каскад приостановки.
func (s *Service) Suspend(ctx context.Context, userID string) error {
	return s.casc.Suspend(ctx, userID)
}

// Archive запускает каскад архивирования.
func (s *Service) Archive(ctx context.Context, userID string) error {
	return s.casc.Archive(ctx, userID)
}

// Remove удаляет пользователя из реестра (только архивированного).
func (s *Service) Remove(ctx context.Context, id string) error {
	user, err := s.GetUser(ctx, id)
	if err != nil {
		return err
	}
	if user.Status != registry.StatusArchived {
		return common.ErrAccessDenied
	}
	if err := s.reg.RemoveUser(ctx, id); err != nil {
		return fmt.Errorf("удаление пользователя %s: %w", id, err)
	}
	if err := s.reg.Commit(ctx, fmt.Sprintf("User removed: %s via Telegram", user.Username)); err != nil {
		log.WithError(err).Warn("Не удалось зафиксировать удаление в журнале реестра")
	}
	return nil
}

// NetworkStatus — сводка для /status.
type NetworkStatus struct {
	CoreNodes []registry.Node
	Active    int
	Inactive  int
	Archived  int
	Pending   int // inactive без core-узлов — ждут одобрения
}

// Status собирает сводку по сети и пользователям.
func (s *Service) Status(ctx context.Context) (*NetworkStatus, error) {
	users, err := s.reg.ListUsers(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("список пользователей: %w", err)
	}
	nodes, err := s.reg.ListCoreNodes(ctx)
	if err != nil {
		return nil, fmt.Errorf("список core-узлов: %w", err)
	}

	st := &NetworkStatus{CoreNodes: nodes}
	for _, u := range users {
		switch u.Status {
		case registry.StatusActive:
			st.Active++
		case registry.StatusInactive:
			st.Inactive++
			if len(u.CoreNodes) == 0 {
				st.Pending++
			}
		case registry.StatusArchived:
			st.Archived++
		}
	}
	return st, nil
}
