// Package registry — client.go: типизированный доступ к внешнему реестру.
// Каждый метод соответствует одному скрипту. Клиент не владеет данными и
// ничего не кеширует — источник истины всегда сам реестр.
package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// uuidRe вытаскивает UUID из произвольного stdout скрипта devices/add.sh.
var uuidRe = regexp.MustCompile(`[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}`)

// Client — обёртка над раннером со знанием путей скриптов и хранилища.
type Client struct {
	runner    *Runner
	storePath string
}

// NewClient создаёт клиент реестра.
func NewClient(runner *Runner, storePath string) *Client {
	return &Client{runner: runner, storePath: storePath}
}

// WithEcho возвращает копию клиента, дублирующую вывод скриптов в чат.
func (c *Client) WithEcho(echo EchoFunc) *Client {
	return &Client{runner: c.runner.WithEcho(echo), storePath: c.storePath}
}

// --- Пользователи ---

// ListUsers возвращает пользователей реестра; status="" — без фильтра.
func (c *Client) ListUsers(ctx context.Context, status string) ([]User, error) {
	args := []string{}
	if status != "" {
		args = append(args, "--status", status)
	}
	out, err := c.runner.Run(ctx, "users/list.sh", args...)
	if err != nil {
		return nil, err
	}
	users, err := decodeUsers([]byte(out))
	if err != nil {
		return nil, fmt.Errorf("users/list.sh: нечитаемый JSON: %w", err)
	}
	return users, nil
}

// GetUser возвращает пользователя по внутреннему id.
func (c *Client) GetUser(ctx context.Context, id string) (*User, error) {
	out, err := c.runner.Run(ctx, "users/get.sh", "--id", id)
	if err != nil {
		return nil, err
	}
	var u User
	if err := unmarshalObject(out, &u); err != nil {
		return nil, fmt.Errorf("users/get.sh: нечитаемый JSON: %w", err)
	}
	return &u, nil
}

// FindUserByTelegramID ищет пользователя по telegram-id сканом списка.
// Возвращает (nil, nil), если записи нет. Битые записи пропускаются
// декодером — резолвер ролей не должен падать из-за одного кривого файла.
func (c *Client) FindUserByTelegramID(ctx context.Context, telegramID int64) (*User, error) {
	users, err := c.ListUsers(ctx, "")
	if err != nil {
		return nil, err
	}
	for i := range users {
		if users[i].TelegramID == telegramID {
			return &users[i], nil
		}
	}
	return nil, nil
}

// FindUserByUsername ищет пользователя по никнейму без учёта регистра.
func (c *Client) FindUserByUsername(ctx context.Context, username string) (*User, error) {
	users, err := c.ListUsers(ctx, "")
	if err != nil {
		return nil, err
	}
	for i := range users {
		if strings.EqualFold(users[i].Username, username) {
			return &users[i], nil
		}
	}
	return nil, nil
}

// CreateUserParams — аргументы users/create.sh.
type CreateUserParams struct {
	Username   string
	CoreNode   string
	Status     string
	TelegramID int64
	Telegram   string // @handle, опционально
	Email      string // опционально
}

// CreateUser создаёт пользователя и возвращает его id (голая строка stdout).
func (c *Client) CreateUser(ctx context.Context, p CreateUserParams) (string, error) {
	args := []string{
		"--username", p.Username,
		"--core-node", p.CoreNode,
		"--status", p.Status,
		"--telegram-id", strconv.FormatInt(p.TelegramID, 10),
	}
	if p.Telegram != "" {
		args = append(args, "--telegram", p.Telegram)
	}
	if p.Email != "" {
		args = append(args, "--email", p.Email)
	}
	out, err := c.runner.Run(ctx, "users/create.sh", args...)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// UpdateUserParams — аргументы users/update.sh; пустые поля не передаются.
type UpdateUserParams struct {
	Status      string
	AddCoreNode string
}

// UpdateUser меняет статус и/или добавляет core-узел.
func (c *Client) UpdateUser(ctx context.Context, id string, p UpdateUserParams) error {
	args := []string{"--id", id}
	if p.Status != "" {
		args = append(args, "--status", p.Status)
	}
	if p.AddCoreNode != "" {
		args = append(args, "--add-core-node", p.AddCoreNode)
	}
	_, err := c.runner.Run(ctx, "users/update.sh", args...)
	return err
}

// RemoveUser удаляет пользователя из реестра.
func (c *Client) RemoveUser(ctx context.Context, id string) error {
	_, err := c.runner.Run(ctx, "users/remove.sh", "--id", id)
	return err
}

// --- Устройства ---

// ListDevices возвращает устройства пользователя.
func (c *Client) ListDevices(ctx context.Context, userID string) ([]Device, error) {
	out, err := c.runner.Run(ctx, "devices/list.sh", "--user", userID)
	if err != nil {
		return nil, err
	}
	devices, err := decodeDevices([]byte(out))
	if err != nil {
		return nil, fmt.Errorf("devices/list.sh: нечитаемый JSON: %w", err)
	}
	return devices, nil
}

// GetDevice возвращает устройство по UUID.
func (c *Client) GetDevice(ctx context.Context, deviceUUID string) (*Device, error) {
	out, err := c.runner.Run(ctx, "devices/get.sh", "--uuid", deviceUUID)
	if err != nil {
		return nil, err
	}
	var d Device
	if err := unmarshalObject(out, &d); err != nil {
		return nil, fmt.Errorf("devices/get.sh: нечитаемый JSON: %w", err)
	}
	return &d, nil
}

// AddDevice создаёт устройство и возвращает его UUID.
// Скрипт пишет UUID где-то в stdout — вытаскиваем регуляркой и валидируем.
func (c *Client) AddDevice(ctx context.Context, userID, name string) (string, error) {
	out, err := c.runner.Run(ctx, "devices/add.sh", "--user", userID, "--device", name)
	if err != nil {
		return "", err
	}
	match := uuidRe.FindString(strings.ToLower(out))
	if match == "" {
		return "", fmt.Errorf("devices/add.sh: UUID не найден в выводе: %q", out)
	}
	if _, err := uuid.Parse(match); err != nil {
		return "", fmt.Errorf("devices/add.sh: некорректный UUID %q: %w", match, err)
	}
	return match, nil
}

// RenameDevice меняет отображаемое имя устройства.
func (c *Client) RenameDevice(ctx context.Context, deviceUUID, name string) error {
	_, err := c.runner.Run(ctx, "devices/update.sh", "--uuid", deviceUUID, "--device", name)
	return err
}

// SetDeviceStatus меняет статус устройства.
func (c *Client) SetDeviceStatus(ctx context.Context, deviceUUID, status string) error {
	_, err := c.runner.Run(ctx, "devices/update.sh", "--uuid", deviceUUID, "--status", status)
	return err
}

// DeactivateDevice снимает устройство с его entry-узла.
func (c *Client) DeactivateDevice(ctx context.Context, deviceUUID string) error {
	_, err := c.runner.Run(ctx, "devices/deactivate.sh", "--uuid", deviceUUID)
	return err
}

// RemoveDevice удаляет устройство из реестра.
func (c *Client) RemoveDevice(ctx context.Context, deviceUUID string) error {
	_, err := c.runner.Run(ctx, "devices/remove.sh", "--uuid", deviceUUID)
	return err
}

// DeviceLinks возвращает ссылки доступа устройства (JSON-массив строк).
func (c *Client) DeviceLinks(ctx context.Context, deviceUUID string) ([]string, error) {
	out, err := c.runner.Run(ctx, "devices/config.sh", "--uuid", deviceUUID)
	if err != nil {
		return nil, err
	}
	var links []string
	if err := unmarshalObject(out, &links); err != nil {
		return nil, fmt.Errorf("devices/config.sh: нечитаемый JSON: %w", err)
	}
	return links, nil
}

// DeviceModTime возвращает mtime файла устройства в хранилище.
// Триал считает TTL от последнего изменения файла (так делает реестр).
func (c *Client) DeviceModTime(deviceUUID string) (time.Time, bool) {
	path := filepath.Join(c.storePath, "devices", deviceUUID+".json")
	info, err := os.Stat(path)
	if err != nil {
		return time.Time{}, false
	}
	return info.ModTime(), true
}

// --- Узлы ---

// ListCoreNodes возвращает core-узлы сети.
func (c *Client) ListCoreNodes(ctx context.Context) ([]Node, error) {
	out, err := c.runner.Run(ctx, "nodes/list-core.sh")
	if err != nil {
		return nil, err
	}
	nodes, err := decodeNodes([]byte(out))
	if err != nil {
		return nil, fmt.Errorf("nodes/list-core.sh: нечитаемый JSON: %w", err)
	}
	return nodes, nil
}

// ListEntryNodes возвращает entry-узлы, доступные пользователю.
func (c *Client) ListEntryNodes(ctx context.Context, userID string) ([]Node, error) {
	out, err := c.runner.Run(ctx, "nodes/list-entry.sh", "--user", userID)
	if err != nil {
		return nil, err
	}
	nodes, err := decodeNodes([]byte(out))
	if err != nil {
		return nil, fmt.Errorf("nodes/list-entry.sh: нечитаемый JSON: %w", err)
	}
	return nodes, nil
}

// --- Entry ---

// AddEntryClient регистрирует устройство на entry-узле.
func (c *Client) AddEntryClient(ctx context.Context, host, deviceUUID, serviceName, name string) error {
	_, err := c.runner.Run(ctx, "entry/add-client.sh",
		"--host", host,
		"--uuid", deviceUUID,
		"--service-name", serviceName,
		"--name", name,
	)
	return err
}

// --- Trial ---

// FindTrialDevices возвращает триал-устройства, выданные этому telegram-id.
func (c *Client) FindTrialDevices(ctx context.Context, telegramID int64) ([]Device, error) {
	out, err := c.runner.Run(ctx, "trial/find.sh", "--telegram-id", strconv.FormatInt(telegramID, 10))
	if err != nil {
		return nil, err
	}
	devices, err := decodeDevices([]byte(out))
	if err != nil {
		return nil, fmt.Errorf("trial/find.sh: нечитаемый JSON: %w", err)
	}
	return devices, nil
}

// ExpireTrialDevice гасит истёкшее триал-устройство.
func (c *Client) ExpireTrialDevice(ctx context.Context, deviceUUID string) error {
	_, err := c.runner.Run(ctx, "trial/expire.sh", "--uuid", deviceUUID)
	return err
}

// --- Store ---

// Commit фиксирует изменение состояния в журнале реестра.
// Вызывается после каждой мутации; его ошибку логируют, но не показывают.
func (c *Client) Commit(ctx context.Context, message string) error {
	_, err := c.runner.Run(ctx, "store/commit.sh", "--message", message)
	return err
}

// unmarshalObject — json.Unmarshal со строковым входом.
func unmarshalObject(s string, v interface{}) error {
	return json.Unmarshal([]byte(s), v)
}
