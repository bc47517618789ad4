package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"referral-gate/internal/model"
)

// ErrInvalidConfig marks configuration that must stop the process at startup.
var ErrInvalidConfig = errors.New("invalid configuration")

const (
	defaultDatabaseURL       = "referral_bot.db"
	defaultReferralThreshold = 5
	defaultLookupTimeout     = 5 * time.Second
	defaultStatsInterval     = 24 * time.Hour
	defaultLogLevel          = "info"
)

// DefaultStartText is used when START_TEXT is not set.
const DefaultStartText = "👋 Welcome! To unlock your private link, please complete:\n\n" +
	"1️⃣ Join all {channels} channels below\n" +
	"2️⃣ Invite {threshold} friends with your personal link:\n" +
	"   {link}\n" +
	"3️⃣ Your friends must join the same channels\n\n" +
	"When you're done, tap DONE ✅ below."

// Config keeps runtime settings for the bot. It is read once at startup.
type Config struct {
	TelegramToken     string
	DatabaseURL       string
	Channels          []model.Channel
	ReferralThreshold int
	RewardLink        string
	StartText         string
	LookupTimeout     time.Duration
	StatsInterval     time.Duration
	AdminIDs          []int64
	LogLevel          string
}

// Load reads configuration from environment variables, after an optional .env file.
func Load() (Config, error) {
	_ = godotenv.Load()
	return load(os.Getenv)
}

func load(getenv func(string) string) (Config, error) {
	env := func(key string) string {
		return strings.TrimSpace(getenv(key))
	}

	cfg := Config{
		TelegramToken:     env("TELEGRAM_TOKEN"),
		DatabaseURL:       env("DATABASE_URL"),
		RewardLink:        env("REWARD_LINK"),
		StartText:         strings.ReplaceAll(getenv("START_TEXT"), `\n`, "\n"),
		LogLevel:          env("LOG_LEVEL"),
		ReferralThreshold: defaultReferralThreshold,
		LookupTimeout:     defaultLookupTimeout,
		StatsInterval:     defaultStatsInterval,
	}

	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = defaultDatabaseURL
	}
	if strings.TrimSpace(cfg.StartText) == "" {
		cfg.StartText = DefaultStartText
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = defaultLogLevel
	}

	if cfg.TelegramToken == "" {
		return cfg, fmt.Errorf("%w: TELEGRAM_TOKEN is required", ErrInvalidConfig)
	}
	if cfg.RewardLink == "" {
		return cfg, fmt.Errorf("%w: REWARD_LINK is required", ErrInvalidConfig)
	}

	if raw := env("REFERRAL_THRESHOLD"); raw != "" {
		threshold, err := strconv.Atoi(raw)
		if err != nil || threshold < 0 {
			return cfg, fmt.Errorf("%w: REFERRAL_THRESHOLD must be a non-negative integer, got %q", ErrInvalidConfig, raw)
		}
		cfg.ReferralThreshold = threshold
	}

	if raw := env("MEMBERSHIP_TIMEOUT_SECONDS"); raw != "" {
		seconds, err := strconv.Atoi(raw)
		if err != nil || seconds <= 0 {
			return cfg, fmt.Errorf("%w: MEMBERSHIP_TIMEOUT_SECONDS must be a positive integer, got %q", ErrInvalidConfig, raw)
		}
		cfg.LookupTimeout = time.Duration(seconds) * time.Second
	}

	if raw := env("STATS_INTERVAL_HOURS"); raw != "" {
		interval, err := parseInterval(raw)
		if err != nil {
			return cfg, fmt.Errorf("%w: STATS_INTERVAL_HOURS: %v", ErrInvalidConfig, err)
		}
		cfg.StatsInterval = interval
	}

	admins, err := parseAdminIDs(env("ADMIN_IDS"))
	if err != nil {
		return cfg, err
	}
	cfg.AdminIDs = admins

	channels, err := loadChannels(env("CHANNELS"), env("CHANNELS_FILE"))
	if err != nil {
		return cfg, err
	}
	cfg.Channels = channels

	return cfg, nil
}

// IsAdmin reports whether the Telegram user may run admin commands.
func (c Config) IsAdmin(userID int64) bool {
	for _, id := range c.AdminIDs {
		if id == userID {
			return true
		}
	}
	return false
}

func parseInterval(raw string) (time.Duration, error) {
	hours, err := strconv.Atoi(raw)
	if err != nil || hours < 0 {
		return 0, fmt.Errorf("expected a non-negative number of hours, got %q", raw)
	}
	return time.Duration(hours) * time.Hour, nil
}

func parseAdminIDs(raw string) ([]int64, error) {
	if raw == "" {
		return nil, nil
	}
	var ids []int64
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: ADMIN_IDS contains %q", ErrInvalidConfig, part)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

type channelsFile struct {
	Channels []model.Channel `yaml:"channels"`
}

// loadChannels reads CHANNELS ("Label|locator;Label|locator") or, when it is
// empty, the YAML file named by CHANNELS_FILE.
func loadChannels(inline, path string) ([]model.Channel, error) {
	var channels []model.Channel
	switch {
	case inline != "":
		for _, entry := range strings.Split(inline, ";") {
			entry = strings.TrimSpace(entry)
			if entry == "" {
				continue
			}
			label, locator, ok := strings.Cut(entry, "|")
			if !ok {
				return nil, fmt.Errorf("%w: CHANNELS entry %q must be Label|locator", ErrInvalidConfig, entry)
			}
			channels = append(channels, model.Channel{Label: strings.TrimSpace(label), Locator: strings.TrimSpace(locator)})
		}
	case path != "":
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("%w: read CHANNELS_FILE: %v", ErrInvalidConfig, err)
		}
		var file channelsFile
		if err := yaml.Unmarshal(data, &file); err != nil {
			return nil, fmt.Errorf("%w: parse CHANNELS_FILE: %v", ErrInvalidConfig, err)
		}
		channels = file.Channels
	}

	if len(channels) == 0 {
		return nil, fmt.Errorf("%w: at least one channel is required (CHANNELS or CHANNELS_FILE)", ErrInvalidConfig)
	}

	for i, ch := range channels {
		if ch.Label == "" {
			return nil, fmt.Errorf("%w: channel #%d has no label", ErrInvalidConfig, i+1)
		}
		if _, err := model.ParseLocator(ch.Locator); err != nil {
			return nil, fmt.Errorf("%w: channel %q: %v", ErrInvalidConfig, ch.Label, err)
		}
	}
	return channels, nil
}
