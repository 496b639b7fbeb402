package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/zalando/go-keyring"
	"gopkg.in/yaml.v3"
)

const (
	DefaultConfigFile = "config.yaml"
	secretsDir        = "/run/secrets"
	keyringService    = "ourmate-bot"
)

type Config struct {
	Telegram  TelegramConfig  `yaml:"telegram"`
	LLM       LLMConfig       `yaml:"llm"`
	Schedule  ScheduleConfig  `yaml:"schedule"`
	Birthdays BirthdaysConfig `yaml:"birthdays"`
	Storage   StorageConfig   `yaml:"storage"`
	Log       LogConfig       `yaml:"log"`
	Timezone  string          `yaml:"timezone"`
}

type TelegramConfig struct {
	Token       string `yaml:"token"`
	OwnerChatID int64  `yaml:"owner_chat_id"`
	GroupChatID int64  `yaml:"group_chat_id"`
}

type LLMConfig struct {
	APIURL            string        `yaml:"api_url"`
	APIKey            string        `yaml:"api_key"`
	Model             string        `yaml:"model"`
	Timeout           time.Duration `yaml:"timeout"`
	Workers           int           `yaml:"workers"`
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
	ChatPrompt        string        `yaml:"chat_prompt"`
	ContextPairs      int           `yaml:"context_pairs"`
	ContextTTL        time.Duration `yaml:"context_ttl"`
}

type BirthdaysConfig struct {
	File         string  `yaml:"file"`
	Send         AtClock `yaml:"send"`
	OptInRefresh AtClock `yaml:"optin_refresh"`
	PromptActive string  `yaml:"prompt_active"`
	PromptFormer string  `yaml:"prompt_former"`
	SystemPrompt string  `yaml:"system_prompt"`
}

type ScheduleConfig struct {
	FilesPattern  string  `yaml:"files_pattern"`
	Notice        AtClock `yaml:"notice"`
	PinnedEnabled bool    `yaml:"pinned_enabled"`
	PinnedUpdate  AtClock `yaml:"pinned_update"`
	Footer        string  `yaml:"footer"`
}

type StorageConfig struct {
	DBPath string `yaml:"db_path"`
}

type LogConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	Console    bool   `yaml:"console"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// AtClock is a daily trigger time in the configured timezone.
type AtClock struct {
	Hour   int `yaml:"hour"`
	Minute int `yaml:"minute"`
}

func (a AtClock) String() string { return fmt.Sprintf("%02d:%02d", a.Hour, a.Minute) }

func (a AtClock) valid() bool {
	return a.Hour >= 0 && a.Hour < 24 && a.Minute >= 0 && a.Minute < 60
}

func defaults() *Config {
	return &Config{
		Timezone: "Europe/Moscow",
		LLM: LLMConfig{
			APIURL:            "https://api.intelligence.io.solutions/api/v1/chat/completions",
			Model:             "deepseek-ai/DeepSeek-R1-0528",
			Timeout:           60 * time.Second,
			Workers:           4,
			HeartbeatInterval: 4 * time.Second,
			ContextPairs:      2,
			ContextTTL:        24 * time.Hour,
		},
		Birthdays: BirthdaysConfig{
			File:         filepath.Join("data", "birthdays.json"),
			Send:         AtClock{Hour: 10},
			OptInRefresh: AtClock{Hour: 9, Minute: 30},
			SystemPrompt: "Ты — бот-поздравлятор для студентов.",
		},
		Schedule: ScheduleConfig{
			FilesPattern:  filepath.Join("data", "schedule", "*.ics"),
			Notice:        AtClock{Hour: 8},
			PinnedEnabled: true,
			PinnedUpdate:  AtClock{Hour: 0, Minute: 5},
		},
		Storage: StorageConfig{DBPath: filepath.Join("data", "bot.db")},
		Log:     LogConfig{Level: "info", Console: true, MaxSizeMB: 50, MaxBackups: 3, MaxAgeDays: 30},
	}
}

// Load reads .env, the optional YAML file and environment overrides, in that
// order. An empty path falls back to DefaultConfigFile when it exists.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	c := defaults()

	explicit := path != ""
	if !explicit {
		path = DefaultConfigFile
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, c); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	case explicit || !errors.Is(err, os.ErrNotExist):
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	envOverride(&c.LLM.APIURL, "LLM_API_URL")
	envOverride(&c.LLM.Model, "MODEL")
	envOverride(&c.LLM.ChatPrompt, "PROMPT_TEMPLATE_CHAT")
	envOverride(&c.Birthdays.PromptActive, "PROMPT_TEMPLATE_BIRTHDAY_ACTIVE")
	envOverride(&c.Birthdays.PromptFormer, "PROMPT_TEMPLATE_BIRTHDAY_FORMER")
	envOverride(&c.Birthdays.File, "BIRTHDAYS_FILE")
	envOverride(&c.Schedule.FilesPattern, "SCHEDULE_FILES_PATTERN")
	envOverride(&c.Schedule.Footer, "PINNED_SCHEDULE_FOOTER")
	envOverride(&c.Storage.DBPath, "DB_PATH")
	envOverride(&c.Timezone, "TIMEZONE")
	envOverride(&c.Log.Level, "LOG_LEVEL")
	envOverride(&c.Log.File, "LOG_FILE")
	envOverrideInt64(&c.Telegram.OwnerChatID, "OWNER_CHAT_ID")
	envOverrideInt64(&c.Telegram.GroupChatID, "CHAT_ID")
	envOverrideInt(&c.Birthdays.Send.Hour, "SEND_HOUR")
	envOverrideInt(&c.Birthdays.Send.Minute, "SEND_MINUTE")
	envOverrideInt(&c.Birthdays.OptInRefresh.Hour, "OPTIN_REFRESH_HOUR")
	envOverrideInt(&c.Birthdays.OptInRefresh.Minute, "OPTIN_REFRESH_MINUTE")
	envOverrideInt(&c.Schedule.Notice.Hour, "SCHEDULE_SEND_HOUR")
	envOverrideInt(&c.Schedule.Notice.Minute, "SCHEDULE_SEND_MINUTE")
	envOverrideInt(&c.Schedule.PinnedUpdate.Hour, "PINNED_SCHEDULE_UPDATE_HOUR")
	envOverrideInt(&c.Schedule.PinnedUpdate.Minute, "PINNED_SCHEDULE_UPDATE_MINUTE")
	envOverrideInt(&c.LLM.Workers, "LLM_WORKERS")
	envOverrideBool(&c.Schedule.PinnedEnabled, "PINNED_SCHEDULE_ENABLED")

	c.Telegram.Token = secret("bot_token", "BOT_TOKEN", c.Telegram.Token)
	c.LLM.APIKey = secret("llm_api_key", "LLM_API_KEY", c.LLM.APIKey)

	return c, nil
}

// Validate reports configuration that makes the bot unusable.
func (c *Config) Validate() error {
	var errs []error
	if c.Telegram.Token == "" {
		errs = append(errs, errors.New("telegram token is not set (BOT_TOKEN)"))
	}
	if c.Telegram.OwnerChatID == 0 {
		errs = append(errs, errors.New("owner chat id is not set (OWNER_CHAT_ID)"))
	}
	if c.Telegram.GroupChatID == 0 {
		errs = append(errs, errors.New("group chat id is not set (CHAT_ID)"))
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("timezone %q: %w", c.Timezone, err))
	}
	for name, at := range map[string]AtClock{
		"birthdays.send":          c.Birthdays.Send,
		"birthdays.optin_refresh": c.Birthdays.OptInRefresh,
		"schedule.notice":         c.Schedule.Notice,
		"schedule.pinned_update":  c.Schedule.PinnedUpdate,
	} {
		if !at.valid() {
			errs = append(errs, fmt.Errorf("%s: bad time %s", name, at))
		}
	}
	if c.LLM.Workers < 1 {
		errs = append(errs, errors.New("llm.workers must be positive"))
	}
	return errors.Join(errs...)
}

// Location resolves the configured timezone, UTC when it is unknown.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// secret looks for a Docker secret, then the environment, then the OS keyring.
func secret(file, env, fallback string) string {
	if data, err := os.ReadFile(filepath.Join(secretsDir, file)); err == nil {
		if v := strings.TrimSpace(string(data)); v != "" {
			return v
		}
	}
	if v := strings.TrimSpace(os.Getenv(env)); v != "" {
		return v
	}
	if fallback != "" {
		return fallback
	}
	if v, err := keyring.Get(keyringService, file); err == nil {
		return strings.TrimSpace(v)
	}
	return ""
}

func envOverride(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envOverrideInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func envOverrideInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func envOverrideBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}
