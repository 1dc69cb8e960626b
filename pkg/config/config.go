package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

var ErrMissingToken = errors.New("DISCORD_TOKEN is required")

var weekdayNames = map[string]time.Weekday{
	"SUN": time.Sunday,
	"MON": time.Monday,
	"TUE": time.Tuesday,
	"WED": time.Wednesday,
	"THU": time.Thursday,
	"FRI": time.Friday,
	"SAT": time.Saturday,
}

// Weekday accepts three-letter English day names ("MON") or full names.
type Weekday time.Weekday

func (w *Weekday) UnmarshalText(text []byte) error {
	d, err := parseWeekday(string(text))
	if err != nil {
		return err
	}
	*w = Weekday(d)
	return nil
}

func (w Weekday) MarshalText() ([]byte, error) {
	return []byte(strings.ToUpper(time.Weekday(w).String()[:3])), nil
}

func (w Weekday) Weekday() time.Weekday { return time.Weekday(w) }

// Weekdays is a comma separated weekday set such as "MON,TUE,WED".
type Weekdays []time.Weekday

func (ws *Weekdays) UnmarshalText(text []byte) error {
	parts := strings.Split(string(text), ",")
	out := make([]time.Weekday, 0, len(parts))
	seen := map[time.Weekday]bool{}
	for _, p := range parts {
		if strings.TrimSpace(p) == "" {
			continue
		}
		d, err := parseWeekday(p)
		if err != nil {
			return err
		}
		if seen[d] {
			continue
		}
		seen[d] = true
		out = append(out, d)
	}
	*ws = out
	return nil
}

func (ws Weekdays) MarshalText() ([]byte, error) {
	names := make([]string, 0, len(ws))
	for _, d := range ws {
		names = append(names, strings.ToUpper(d.String()[:3]))
	}
	return []byte(strings.Join(names, ",")), nil
}

func (ws Weekdays) Contains(d time.Weekday) bool {
	for _, w := range ws {
		if w == d {
			return true
		}
	}
	return false
}

func parseWeekday(s string) (time.Weekday, error) {
	key := strings.ToUpper(strings.TrimSpace(s))
	if len(key) > 3 {
		key = key[:3]
	}
	d, ok := weekdayNames[key]
	if !ok {
		return 0, fmt.Errorf("invalid weekday %q", s)
	}
	return d, nil
}

// OptionalHour records whether an hour was configured at all.
type OptionalHour struct {
	Value int
	Set   bool
}

func (h *OptionalHour) UnmarshalText(text []byte) error {
	v, err := strconv.Atoi(strings.TrimSpace(string(text)))
	if err != nil {
		return fmt.Errorf("invalid hour %q: %w", string(text), err)
	}
	h.Value, h.Set = v, true
	return nil
}

func (h *OptionalHour) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		return nil
	}
	return h.UnmarshalText([]byte(strings.Trim(string(data), `"`)))
}

func (h OptionalHour) MarshalJSON() ([]byte, error) {
	if !h.Set {
		return []byte("null"), nil
	}
	return []byte(strconv.Itoa(h.Value)), nil
}

type Config struct {
	Discord   DiscordConfig   `json:"discord"`
	Providers ProvidersConfig `json:"providers"`
	Judges    JudgesConfig    `json:"judges"`
	Bot       BotConfig       `json:"bot"`
	Topics    TopicConfig     `json:"topics"`
	Outreach  OutreachConfig  `json:"outreach"`
	Storage   StorageConfig   `json:"storage"`
	Gateway   GatewayConfig   `json:"gateway"`
	LogLevel  string          `json:"log_level" env:"LOG_LEVEL"`
}

type DiscordConfig struct {
	Token            string `json:"token" env:"DISCORD_TOKEN"`
	GuildID          string `json:"guild_id" env:"DISCORD_GUILD_ID"`
	WelcomeChannelID string `json:"welcome_channel_id" env:"WELCOME_CHANNEL_ID"`
}

type ProviderConfig struct {
	APIKey  string `json:"api_key" env:"API_KEY"`
	APIBase string `json:"api_base" env:"API_BASE"`
	Proxy   string `json:"proxy,omitempty" env:"PROXY"`
}

type ProvidersConfig struct {
	Gemini     ProviderConfig `json:"gemini" envPrefix:"GEMINI_"`
	OpenAI     ProviderConfig `json:"openai" envPrefix:"OPENAI_"`
	Anthropic  ProviderConfig `json:"anthropic" envPrefix:"ANTHROPIC_"`
	OpenRouter ProviderConfig `json:"openrouter" envPrefix:"OPENROUTER_"`
}

// JudgesConfig selects which provider backs each judge. An empty model
// falls back to the provider's default.
type JudgesConfig struct {
	PrimaryProvider   string `json:"primary_provider" env:"PRIMARY_JUDGE_PROVIDER"`
	PrimaryModel      string `json:"primary_model" env:"PRIMARY_JUDGE_MODEL"`
	SecondaryProvider string `json:"secondary_provider" env:"SECONDARY_JUDGE_PROVIDER"`
	SecondaryModel    string `json:"secondary_model" env:"SECONDARY_JUDGE_MODEL"`
	// RequestsPerMinute paces each judge's provider calls. Zero disables pacing.
	RequestsPerMinute int `json:"requests_per_minute" env:"JUDGE_REQUESTS_PER_MINUTE"`
}

type BotConfig struct {
	DailyTopicLimit        int    `json:"daily_topic_limit" env:"BOT_DAILY_TOPIC_LIMIT"`
	DailyInterventionLimit int    `json:"daily_intervention_limit" env:"BOT_DAILY_INTERVENTION_LIMIT"`
	QuietHoursStart        int    `json:"quiet_hours_start" env:"BOT_QUIET_HOURS_START"`
	QuietHoursEnd          int    `json:"quiet_hours_end" env:"BOT_QUIET_HOURS_END"`
	EnabledDefault         bool   `json:"enabled_default" env:"BOT_ENABLED_DEFAULT"`
	Timezone               string `json:"timezone" env:"BOT_TIMEZONE"`
}

type TopicConfig struct {
	ChannelID  string   `json:"channel_id" env:"TOPIC_CHANNEL_ID"`
	ChannelIDs []string `json:"channel_ids" env:"TOPIC_CHANNEL_IDS" envSeparator:","`
	Weekdays   Weekdays `json:"weekdays" env:"TOPIC_WEEKDAYS"`
	Hour       int      `json:"hour" env:"TOPIC_HOUR"`
	Minute     int      `json:"minute" env:"TOPIC_MINUTE"`
	// CheckStartHour defaults to Hour when unset.
	CheckStartHour     OptionalHour `json:"check_start_hour" env:"ATMOSPHERE_CHECK_START_HOUR"`
	CheckEndHour       int          `json:"check_end_hour" env:"ATMOSPHERE_CHECK_END_HOUR"`
	CheckIntervalHours int          `json:"check_interval_hours" env:"ATMOSPHERE_CHECK_INTERVAL_HOURS"`
}

type OutreachConfig struct {
	ThresholdDays int     `json:"threshold_days" env:"INACTIVE_THRESHOLD_DAYS"`
	CheckWeekday  Weekday `json:"check_weekday" env:"INACTIVE_CHECK_WEEKDAY"`
	CheckHour     int     `json:"check_hour" env:"INACTIVE_CHECK_HOUR"`
	DryRun        bool    `json:"dry_run" env:"INACTIVE_DM_DRY_RUN"`
}

type StorageConfig struct {
	// Path of the SQLite document store. Empty disables persistence.
	Path string `json:"path" env:"BOT_DB_PATH"`
}

type GatewayConfig struct {
	Addr string `json:"addr" env:"BOT_HEALTH_ADDR"`
}

func DefaultConfig() *Config {
	return &Config{
		Judges: JudgesConfig{
			PrimaryProvider:   "gemini",
			SecondaryProvider: "anthropic",
			RequestsPerMinute: 60,
		},
		Bot: BotConfig{
			DailyTopicLimit:        3,
			DailyInterventionLimit: 20,
			QuietHoursStart:        23,
			QuietHoursEnd:          7,
			EnabledDefault:         true,
			Timezone:               "Asia/Tokyo",
		},
		Topics: TopicConfig{
			Weekdays:           Weekdays{time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday},
			Hour:               9,
			Minute:             0,
			CheckEndHour:       17,
			CheckIntervalHours: 1,
		},
		Outreach: OutreachConfig{
			ThresholdDays: 14,
			CheckWeekday:  Weekday(time.Monday),
			CheckHour:     10,
			DryRun:        true,
		},
		LogLevel: "info",
	}
}

// LoadConfig applies an optional JSON file and then the environment on top of
// the defaults, and validates the result. Any error is fatal for startup.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path = strings.TrimSpace(path); path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err == nil {
			if err := json.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config file: %w", err)
			}
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Discord.Token) == "" {
		errs = append(errs, ErrMissingToken)
	}
	if _, err := time.LoadLocation(c.Bot.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("BOT_TIMEZONE: %w", err))
	}

	checkHour := func(name string, v int) {
		if v < 0 || v > 23 {
			errs = append(errs, fmt.Errorf("%s must be within 0-23, got %d", name, v))
		}
	}
	checkHour("BOT_QUIET_HOURS_START", c.Bot.QuietHoursStart)
	checkHour("BOT_QUIET_HOURS_END", c.Bot.QuietHoursEnd)
	checkHour("TOPIC_HOUR", c.Topics.Hour)
	checkHour("ATMOSPHERE_CHECK_START_HOUR", c.Topics.WindowStartHour())
	checkHour("ATMOSPHERE_CHECK_END_HOUR", c.Topics.CheckEndHour)
	checkHour("INACTIVE_CHECK_HOUR", c.Outreach.CheckHour)
	if c.Topics.Minute < 0 || c.Topics.Minute > 59 {
		errs = append(errs, fmt.Errorf("TOPIC_MINUTE must be within 0-59, got %d", c.Topics.Minute))
	}
	if c.Topics.WindowStartHour() > c.Topics.CheckEndHour {
		errs = append(errs, fmt.Errorf("ATMOSPHERE_CHECK_START_HOUR (%d) must not exceed ATMOSPHERE_CHECK_END_HOUR (%d)", c.Topics.WindowStartHour(), c.Topics.CheckEndHour))
	}
	if c.Topics.CheckIntervalHours < 1 {
		errs = append(errs, fmt.Errorf("ATMOSPHERE_CHECK_INTERVAL_HOURS must be >= 1, got %d", c.Topics.CheckIntervalHours))
	}
	if len(c.Topics.Weekdays) == 0 {
		errs = append(errs, errors.New("TOPIC_WEEKDAYS must name at least one day"))
	}
	if c.Bot.DailyTopicLimit < 0 || c.Bot.DailyInterventionLimit < 0 {
		errs = append(errs, errors.New("daily limits must not be negative"))
	}
	if c.Judges.RequestsPerMinute < 0 {
		errs = append(errs, fmt.Errorf("JUDGE_REQUESTS_PER_MINUTE must not be negative, got %d", c.Judges.RequestsPerMinute))
	}
	if c.Outreach.ThresholdDays < 1 {
		errs = append(errs, fmt.Errorf("INACTIVE_THRESHOLD_DAYS must be >= 1, got %d", c.Outreach.ThresholdDays))
	}

	ids := map[string]string{
		"DISCORD_GUILD_ID":   c.Discord.GuildID,
		"WELCOME_CHANNEL_ID": c.Discord.WelcomeChannelID,
		"TOPIC_CHANNEL_ID":   c.Topics.ChannelID,
	}
	for _, id := range c.Topics.ChannelIDs {
		if err := checkSnowflake("TOPIC_CHANNEL_IDS", id); err != nil {
			errs = append(errs, err)
		}
	}
	for name, id := range ids {
		if err := checkSnowflake(name, id); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func checkSnowflake(name, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil
	}
	if _, err := strconv.ParseUint(id, 10, 64); err != nil {
		return fmt.Errorf("%s must be a numeric id, got %q", name, id)
	}
	return nil
}

// Location returns the configured timezone, or UTC if it cannot be loaded.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Bot.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// TopicChannels returns TOPIC_CHANNEL_IDS in order without duplicates, or
// TOPIC_CHANNEL_ID when the list is empty.
func (t TopicConfig) TopicChannels() []string {
	out := make([]string, 0, len(t.ChannelIDs)+1)
	seen := map[string]bool{}
	for _, id := range t.ChannelIDs {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	if len(out) == 0 {
		if id := strings.TrimSpace(t.ChannelID); id != "" {
			out = append(out, id)
		}
	}
	return out
}

func (t TopicConfig) WindowStartHour() int {
	if t.CheckStartHour.Set {
		return t.CheckStartHour.Value
	}
	return t.Hour
}
