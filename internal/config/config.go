package config

import (
	"fmt"
	"os"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// KnownModeratorActions are the moderator keyboard actions the bot knows how
// to dispatch. The config may arrange them into rows but cannot invent new
// ones.
var KnownModeratorActions = []string{"approve", "decline", "ban", "view"}

// requiredMessages are the template keys that must be present in the config.
var requiredMessages = []string{
	"welcome",
	"confirmed",
	"declined",
	"banned",
	"admin_new",
	"admin_confirmed",
	"admin_declined",
}

// Config holds the application's configuration.
type Config struct {
	Bot struct {
		Token        string  `yaml:"token" env:"GATEKEEPER_BOT_TOKEN"`
		ModeratorIDs []int64 `yaml:"moderator_ids"`
	} `yaml:"bot"`
	Channel struct {
		ChatID         int64  `yaml:"chat_id"`
		Title          string `yaml:"title"`
		AgeRequirement int    `yaml:"age_requirement"`
		AdapterChannel string `yaml:"adapter_channel"`
	} `yaml:"channel"`
	Settings struct {
		AutoApprove      bool   `yaml:"auto_approve"`
		NotifyModerators bool   `yaml:"notify_moderators"`
		BanOnDecline     bool   `yaml:"ban_on_decline"`
		RetentionDays    int    `yaml:"retention_days"`
		SweepSchedule    string `yaml:"sweep_schedule"`
	} `yaml:"settings"`
	Storage struct {
		DataFile string `yaml:"data_file" env:"GATEKEEPER_DATA_FILE"`
	} `yaml:"storage"`
	Server struct {
		Port string `yaml:"port" env:"GATEKEEPER_HTTP_PORT"`
	} `yaml:"server"`
	Messages  map[string]string `yaml:"messages"`
	Keyboards Keyboards         `yaml:"keyboards"`
}

// Keyboards declares the fixed set of buttons the bot renders. Moderator
// rows reference actions by name; the shape is validated once at load time
// instead of on every send.
type Keyboards struct {
	ConfirmLabel    string            `yaml:"confirm_label"`
	DeclineLabel    string            `yaml:"decline_label"`
	Moderator       [][]string        `yaml:"moderator"`
	ModeratorLabels map[string]string `yaml:"moderator_labels"`
}

// LoadConfig reads configuration from the specified YAML file, applies
// environment variable overrides and validates the result.
func LoadConfig(configPath string) (*Config, error) {
	config := &Config{}

	file, err := os.Open(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	decoder := yaml.NewDecoder(file)
	if err := decoder.Decode(config); err != nil {
		return nil, fmt.Errorf("failed to decode config file: %w", err)
	}

	if err := env.Parse(config); err != nil {
		return nil, fmt.Errorf("failed to parse environment overrides: %w", err)
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func (c *Config) applyDefaults() {
	if c.Settings.RetentionDays == 0 {
		c.Settings.RetentionDays = 30
	}
	if c.Settings.SweepSchedule == "" {
		c.Settings.SweepSchedule = "0 0 3 * * *"
	}
	if c.Storage.DataFile == "" {
		c.Storage.DataFile = "channel_requests_data.json"
	}
	if c.Server.Port == "" {
		c.Server.Port = ":8080"
	}
}

// Validate checks the config shape once at load time.
func (c *Config) Validate() error {
	if c.Bot.Token == "" {
		return fmt.Errorf("bot.token is required")
	}
	if c.Channel.ChatID == 0 {
		return fmt.Errorf("channel.chat_id is required")
	}
	if len(c.Bot.ModeratorIDs) == 0 {
		return fmt.Errorf("bot.moderator_ids must contain at least one moderator")
	}
	if c.Settings.RetentionDays < 0 {
		return fmt.Errorf("settings.retention_days must not be negative")
	}
	for _, key := range requiredMessages {
		if c.Messages[key] == "" {
			return fmt.Errorf("messages.%s is required", key)
		}
	}
	return c.Keyboards.validate()
}

func (k *Keyboards) validate() error {
	if k.ConfirmLabel == "" || k.DeclineLabel == "" {
		return fmt.Errorf("keyboards.confirm_label and keyboards.decline_label are required")
	}
	for i, row := range k.Moderator {
		if len(row) == 0 {
			return fmt.Errorf("keyboards.moderator row %d is empty", i)
		}
		for _, action := range row {
			if !isKnownAction(action) {
				return fmt.Errorf("keyboards.moderator row %d references unknown action %q", i, action)
			}
			if k.ModeratorLabels[action] == "" {
				return fmt.Errorf("keyboards.moderator_labels.%s is required", action)
			}
		}
	}
	return nil
}

func isKnownAction(action string) bool {
	for _, a := range KnownModeratorActions {
		if a == action {
			return true
		}
	}
	return false
}

// IsModerator reports whether the given Telegram user ID is a configured
// moderator.
func (c *Config) IsModerator(userID int64) bool {
	for _, id := range c.Bot.ModeratorIDs {
		if id == userID {
			return true
		}
	}
	return false
}
