// Package config загружает конфигурацию бота из переменных окружения.
// Используется envconfig для маппинга переменных окружения на поля структуры.
package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config содержит ВСЕ настройки приложения.
type Config struct {
	// --- Telegram ---
	TelegramBotToken string  `envconfig:"SIGILGATE_BOT_TOKEN" required:"true"`
	AdminIDsRaw      string  `envconfig:"SIGILGATE_ADMIN_IDS" required:"true"`
	AdminIDs         []int64 `envconfig:"-"` // заполним вручную из CSV

	// --- Реестр ---
	// Корень файлового хранилища (нужен для mtime файлов устройств)
	StorePath string `envconfig:"SIGIL_STORE_PATH" required:"true"`
	// Корень внешних скриптов (users/create.sh, devices/add.sh, ...)
	ScriptsPath string `envconfig:"SIGIL_SCRIPTS_PATH" required:"true"`
	// Core-узел, назначаемый новым заявкам
	DefaultCoreNode string `envconfig:"SIGIL_DEFAULT_CORE_NODE" required:"true"`
	// Таймаут выполнения одного скрипта.
	// Зависший скрипт останавливает диалог целого чата, поэтому таймаут обязателен.
	ScriptTimeout time.Duration `envconfig:"SIGIL_SCRIPT_TIMEOUT" default:"30s"`
	// Дублировать сырой вывод скриптов в чат (для отладки)
	Verbose bool `envconfig:"SIGIL_VERBOSE" default:"false"`

	// --- Trial ---
	// ID сервисного пользователя, на котором висят все триал-устройства
	TrialUserID string `envconfig:"TRIAL_USER_ID" default:"3"`
	// Суффикс первого триал-устройства (9 = ещё 9 попыток после этой)
	TrialLimitStart int `envconfig:"TRIAL_LIMIT_START" default:"9"`
	// Время жизни одного триал-подключения
	TrialTTL time.Duration `envconfig:"TRIAL_TTL" default:"1h"`
	// Cron-расписание фоновой зачистки истёкших триалов
	TrialSweepSpec string `envconfig:"TRIAL_SWEEP_SPEC" default:"*/15 * * * *"`

	// --- Application ---
	AppLogLevel string `envconfig:"APP_LOG_LEVEL" default:"debug"`

	// --- Bot runtime ---
	// Сколько апдейтов обрабатываем параллельно. Иначе "go на каждый апдейт" = утечка памяти при флуде.
	BotMaxInflight int `envconfig:"BOT_MAX_INFLIGHT" default:"64"`
	// Таймаут long polling (секунды)
	BotUpdateTimeoutSeconds int `envconfig:"BOT_UPDATE_TIMEOUT_SECONDS" default:"60"`

	// --- Rate Limiting ---
	RateLimitRequests int           `envconfig:"RATE_LIMIT_REQUESTS" default:"10"`
	RateLimitWindow   time.Duration `envconfig:"RATE_LIMIT_WINDOW" default:"1m"`
}

// IsAdmin проверяет, входит ли telegram-id в список администраторов.
func (c *Config) IsAdmin(telegramID int64) bool {
	for _, id := range c.AdminIDs {
		if id == telegramID {
			return true
		}
	}
	return false
}

// Validate проверяет согласованность настроек.
func (c *Config) Validate() error {
	if len(c.AdminIDs) == 0 {
		return fmt.Errorf("SIGILGATE_ADMIN_IDS пуст — некому управлять ботом")
	}
	if c.ScriptTimeout <= 0 {
		return fmt.Errorf("SIGIL_SCRIPT_TIMEOUT должен быть > 0")
	}
	if c.TrialLimitStart < 0 || c.TrialLimitStart > 9 {
		return fmt.Errorf("TRIAL_LIMIT_START должен быть в диапазоне 0-9 (суффикс — одна цифра)")
	}
	if c.BotMaxInflight <= 0 {
		return fmt.Errorf("BOT_MAX_INFLIGHT должен быть > 0")
	}
	if c.BotUpdateTimeoutSeconds <= 0 {
		return fmt.Errorf("BOT_UPDATE_TIMEOUT_SECONDS должен быть > 0")
	}
	return nil
}

// Load читает переменные окружения и заполняет структуру Config.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("не удалось загрузить конфигурацию: %w", err)
	}

	ids, err := parseInt64CSV(cfg.AdminIDsRaw)
	if err != nil {
		return nil, fmt.Errorf("SIGILGATE_ADMIN_IDS parse: %w", err)
	}
	cfg.AdminIDs = ids

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func parseInt64CSV(s string) ([]int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	out := make([]int64, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		v, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("bad int64 %q: %w", p, err)
		}
		out = append(out, v)
	}
	return out, nil
}
