// Package config loads the business, campaign and AI settings of WinBackBot.
//
// Settings are read from a YAML document once at startup, validated, and exposed as
// typed values. Anything the document omits keeps the built-in default.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"text/template"

	"github.com/BTreeMap/WinBackBot/internal/models"
	"gopkg.in/yaml.v3"
)

var (
	ErrMissingModel     = errors.New("ai.model is required")
	ErrInvalidMaxTokens = errors.New("ai.max_tokens must be positive")
)

// Delivery describes delivery terms quoted by the assistant.
type Delivery struct {
	MinOrder      float64 `yaml:"min_order"`
	Fee           float64 `yaml:"delivery_fee"`
	EstimatedTime string  `yaml:"estimated_time"`
	Area          string  `yaml:"area"`
}

// Contact holds the business contact details.
type Contact struct {
	Address  string `yaml:"address"`
	WhatsApp string `yaml:"whatsapp"`
}

// Business is the catalog content the assistant is allowed to talk about.
type Business struct {
	Name        string   `yaml:"name"`
	Type        string   `yaml:"type"`
	Description string   `yaml:"description"`
	Hours       string   `yaml:"hours"`
	Services    []string `yaml:"services"`
	Menu        []string `yaml:"menu_example"`
	Delivery    Delivery `yaml:"delivery_info"`
	Contact     Contact  `yaml:"contact"`
}

// Campaign lists the inactivity tiers, ascending by threshold after Validate.
type Campaign struct {
	Tiers []models.CampaignTier `yaml:"coupons"`
}

// AI configures the generation service.
type AI struct {
	Model     string `yaml:"model"`
	MaxTokens int    `yaml:"max_tokens"`
	// SystemPrompt is a text/template rendered with Business. Empty uses the built-in prompt.
	SystemPrompt string `yaml:"system_prompt"`
}

// Config is the full static configuration.
type Config struct {
	Business Business `yaml:"business"`
	Campaign Campaign `yaml:"campaign"`
	AI       AI       `yaml:"ai"`
}

// Load reads path over the defaults and validates the result.
// An empty path returns the validated defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		slog.Debug("config.Load: no config file, using defaults")
		return cfg, cfg.Validate()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config %s: %w", path, err)
	}
	slog.Info("config.Load: configuration loaded", "path", path, "business", cfg.Business.Name, "tiers", len(cfg.Campaign.Tiers))
	return cfg, nil
}

// Validate checks the configuration and sorts the campaign tiers ascending.
func (c *Config) Validate() error {
	tiers, err := models.SortTiers(c.Campaign.Tiers)
	if err != nil {
		return err
	}
	c.Campaign.Tiers = tiers
	if strings.TrimSpace(c.AI.Model) == "" {
		return ErrMissingModel
	}
	if c.AI.MaxTokens <= 0 {
		return ErrInvalidMaxTokens
	}
	if _, err := c.SystemPrompt(); err != nil {
		return err
	}
	return nil
}

// SystemPrompt renders the fixed leading instruction sent with every generation call.
func (c Config) SystemPrompt() (string, error) {
	src := c.AI.SystemPrompt
	if strings.TrimSpace(src) == "" {
		src = defaultSystemPromptTemplate
	}
	tmpl, err := template.New("system_prompt").Option("missingkey=error").Parse(src)
	if err != nil {
		return "", fmt.Errorf("invalid ai.system_prompt template: %w", err)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, c.Business); err != nil {
		return "", fmt.Errorf("failed to render system prompt: %w", err)
	}
	return buf.String(), nil
}
