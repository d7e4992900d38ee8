// Package reg — service.go: валидация шагов и отправка заявки.
package reg

import (
	"context"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"

	"sigilgate.ru/telegram-bot/internal/common"
	"sigilgate.ru/telegram-bot/internal/registry"
)

// Registry — то, что регистрации нужно от реестра.
type Registry interface {
	FindUserByUsername(ctx context.Context, username string) (*registry.User, error)
	FindUserByTelegramID(ctx context.Context, telegramID int64) (*registry.User, error)
	CreateUser(ctx context.Context, p registry.CreateUserParams) (string, error)
	Commit(ctx context.Context, message string) error
}

// Service проверяет шаги регистрации и создаёт заявку в реестре.
type Service struct {
	reg             Registry
	defaultCoreNode string
}

// NewService создаёт сервис регистрации.
func NewService(reg Registry, defaultCoreNode string) *Service {
	return &Service{reg: reg, defaultCoreNode: defaultCoreNode}
}

// ValidateUsername проверяет никнейм: непустой и уникальный без учёта регистра.
// Возвращает обрезанный никнейм или ошибку валидации (шаг повторяется).
func (s *Service) ValidateUsername(ctx context.Context, input string) (string, error) {
	username := strings.TrimSpace(input)
	if username == "" {
		return "", common.ErrEmptyInput
	}
	existing, err := s.reg.FindUserByUsername(ctx, username)
	if err != nil {
		return "", fmt.Errorf("проверка никнейма: %w", err)
	}
	if existing != nil {
		return "", common.ErrUsernameTaken
	}
	return username, nil
}

// ValidateEmail проверяет email: непустой, содержит @ и точку после него.
// Кнопка «Пропустить» обходит эту проверку целиком.
func ValidateEmail(input string) (string, error) {
	email := strings.TrimSpace(input)
	if email == "" {
		return "", common.ErrEmptyInput
	}
	at := strings.LastIndex(email, "@")
	if at < 0 || !strings.Contains(email[at+1:], ".") {
		return "", common.ErrBadEmail
	}
	return email, nil
}

// Applicant — данные подающего заявку из Telegram.
type Applicant struct {
	TelegramID int64
	Handle     string // @username, может быть пустым
}

// Submit отправляет заявку: повторно проверяет уникальность telegram-id
// (на случай гонки с более ранней заявкой), создаёт пользователя со
// статусом inactive и фиксирует изменение в журнале реестра.
func (s *Service) Submit(ctx context.Context, applicant Applicant, data Data) (string, error) {
	existing, err := s.reg.FindUserByTelegramID(ctx, applicant.TelegramID)
	if err != nil {
		return "", fmt.Errorf("повторная проверка telegram-id: %w", err)
	}
	if existing != nil {
		return "", common.ErrAlreadyApplied
	}

	p := registry.CreateUserParams{
		Username:   data.Username,
		CoreNode:   s.defaultCoreNode,
		Status:     registry.StatusInactive,
		TelegramID: applicant.TelegramID,
		Email:      data.Email,
	}
	if applicant.Handle != "" {
		p.Telegram = "@" + applicant.Handle
	}

	id, err := s.reg.CreateUser(ctx, p)
	if err != nil {
		return "", fmt.Errorf("создание заявки: %w", err)
	}

	msg := fmt.Sprintf("Reg request: %s (ID: %s) via Telegram", data.Username, id)
	if err := s.reg.Commit(ctx, msg); err != nil {
		// Журнал не должен ломать уже принятую заявку
		log.WithError(err).Warn("Не удалось зафиксировать заявку в журнале реестра")
	}

	log.WithFields(log.Fields{
		"username":    data.Username,
		"telegram_id": applicant.TelegramID,
		"user_id":     id,
	}).Info("Заявка на подключение создана")

	return id, nil
}
