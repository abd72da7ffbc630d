// Файл: pkg/config/config.go
package config

import (
	"fmt"
	"log"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type ServerConfig struct {
	Port string
}

type PostgresConfig struct {
	DSN string
}

type RedisConfig struct {
	Address  string
	Password string
}

type IikoConfig struct {
	BaseURL  string
	Login    string
	Password string
}

type FintabloConfig struct {
	BaseURL  string
	APIToken string
}

type CloudConfig struct {
	BaseURL       string
	WebhookSecret string
	WebhookPath   string
}

type TelegramConfig struct {
	BotToken     string
	AdminChatIDs []int64
}

type SheetConfig struct {
	// Путь к xlsx-книге с правами, мин-остатками и выгрузками.
	WorkbookPath   string
	PermissionsTab string
	MinStockTab    string
	CatalogTab     string
	SettingsTab    string
}

type TransferConfig struct {
	SourcePrefix string
	TargetTypes  []string
	ProductGroup string
}

type StockConfig struct {
	OrderCheckInterval int
	ChangeThresholdPct float64
	DebounceWindow     time.Duration
}

type Config struct {
	Server           ServerConfig
	Postgres         PostgresConfig
	Redis            RedisConfig
	Iiko             IikoConfig
	Fintablo         FintabloConfig
	Cloud            CloudConfig
	Telegram         TelegramConfig
	Sheet            SheetConfig
	Transfer         TransferConfig
	Stock            StockConfig
	Timezone         string
	LegacyAdminTables bool
}

// New читает окружение и валидирует его целиком.
// Отсутствие любой обязательной переменной — ошибка запуска,
// сервис не должен подниматься с наполовину собранным конфигом.
func New() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("Предупреждение: .env файл не найден или не удалось его загрузить.")
	}

	var missing []string
	requireEnv := func(key string) string {
		v, ok := os.LookupEnv(key)
		if !ok || strings.TrimSpace(v) == "" {
			missing = append(missing, key)
			return ""
		}
		return strings.TrimSpace(v)
	}

	cfg := &Config{
		Server: ServerConfig{
			Port: getEnv("SERVER_PORT", "8080"),
		},
		Postgres: PostgresConfig{
			DSN: requireEnv("DATABASE_URL"),
		},
		Redis: RedisConfig{
			Address:  getEnv("REDIS_ADDRESS", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
		},
		Iiko: IikoConfig{
			BaseURL:  requireEnv("IIKO_BASE_URL"),
			Login:    requireEnv("IIKO_LOGIN"),
			Password: requireEnv("IIKO_PASSWORD"),
		},
		Fintablo: FintabloConfig{
			BaseURL:  getEnv("FINTABLO_BASE_URL", "https://api.fintablo.ru"),
			APIToken: requireEnv("FINTABLO_API_TOKEN"),
		},
		Cloud: CloudConfig{
			BaseURL:       getEnv("IIKO_CLOUD_BASE_URL", "https://api-ru.iiko.services"),
			WebhookSecret: requireEnv("IIKO_WEBHOOK_SECRET"),
			WebhookPath:   getEnv("IIKO_WEBHOOK_PATH", "/iiko-webhook"),
		},
		Telegram: TelegramConfig{
			BotToken:     requireEnv("TELEGRAM_BOT_TOKEN"),
			AdminChatIDs: parseChatIDs(getEnv("TELEGRAM_ADMIN_CHAT_IDS", "")),
		},
		Sheet: SheetConfig{
			WorkbookPath:   requireEnv("SHEET_WORKBOOK_PATH"),
			PermissionsTab: getEnv("SHEET_PERMISSIONS_TAB", "Права"),
			MinStockTab:    getEnv("SHEET_MINSTOCK_TAB", "Минимумы"),
			CatalogTab:     getEnv("SHEET_CATALOG_TAB", "Номенклатура"),
			SettingsTab:    getEnv("SHEET_SETTINGS_TAB", "Настройки"),
		},
		Transfer: TransferConfig{
			SourcePrefix: getEnv("TRANSFER_SOURCE_PREFIX", "Хоз. товары"),
			TargetTypes:  splitCSV(getEnv("TRANSFER_TARGET_TYPES", "Бар,Кухня")),
			ProductGroup: getEnv("TRANSFER_PRODUCT_GROUP", "Расходные материалы"),
		},
		Stock: StockConfig{
			OrderCheckInterval: getEnvInt("STOCK_CHECK_ORDER_INTERVAL", 10),
			ChangeThresholdPct: getEnvFloat("STOCK_CHANGE_THRESHOLD_PCT", 5.0),
			DebounceWindow:     time.Duration(getEnvInt("STOPLIST_DEBOUNCE_SECONDS", 60)) * time.Second,
		},
		Timezone:          getEnv("APP_TIMEZONE", "Europe/Kaliningrad"),
		LegacyAdminTables: getEnv("LEGACY_ADMIN_TABLES", "false") == "true",
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("отсутствуют обязательные переменные окружения: %s", strings.Join(missing, ", "))
	}

	for _, pair := range []struct{ key, raw string }{
		{"IIKO_BASE_URL", cfg.Iiko.BaseURL},
		{"FINTABLO_BASE_URL", cfg.Fintablo.BaseURL},
		{"IIKO_CLOUD_BASE_URL", cfg.Cloud.BaseURL},
	} {
		u, err := url.Parse(pair.raw)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return nil, fmt.Errorf("переменная %s содержит некорректный URL: %q", pair.key, pair.raw)
		}
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, exists := os.LookupEnv(key); exists {
		if n, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if value, exists := os.LookupEnv(key); exists {
		if f, err := strconv.ParseFloat(strings.TrimSpace(value), 64); err == nil {
			return f
		}
	}
	return fallback
}

func splitCSV(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseChatIDs(raw string) []int64 {
	var out []int64
	for _, part := range splitCSV(raw) {
		if id, err := strconv.ParseInt(part, 10, 64); err == nil {
			out = append(out, id)
		}
	}
	return out
}

// MaskSecret прячет секрет в логах: первые и последние 2 символа, середина звёздочками.
func MaskSecret(s string) string {
	if len(s) <= 4 {
		return "****"
	}
	return s[:2] + strings.Repeat("*", len(s)-4) + s[len(s)-2:]
}

// MaskURL маскирует значения секретных query-параметров (key, token, pass).
func MaskURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	q := u.Query()
	for name := range q {
		lower := strings.ToLower(name)
		if strings.Contains(lower, "key") || strings.Contains(lower, "token") || strings.Contains(lower, "pass") {
			q.Set(name, "***")
		}
	}
	u.RawQuery = q.Encode()
	return u.String()
}
