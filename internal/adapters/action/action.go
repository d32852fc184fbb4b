package action

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ghalamif/AegisWatch/internal/ports"
)

const (
	TypeLog     = "log"
	TypeWebhook = "webhook"
)

// Config declares a named action that roots refer to.
type Config struct {
	Name    string        `yaml:"name"`
	Type    string        `yaml:"type"`
	URL     string        `yaml:"url"`
	Secret  string        `yaml:"secret"`
	Timeout time.Duration `yaml:"timeout"`
}

func (c *Config) Validate() error {
	if c.Name == "" {
		return errors.New("action name is required")
	}
	switch c.Type {
	case TypeLog:
	case TypeWebhook:
		if c.URL == "" {
			return fmt.Errorf("action %q: webhook url is required", c.Name)
		}
	default:
		return fmt.Errorf("action %q: unknown type %q", c.Name, c.Type)
	}
	return nil
}

// New builds the action described by cfg.
func New(cfg Config, logger *slog.Logger) (ports.Action, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch cfg.Type {
	case TypeWebhook:
		return NewWebhook(cfg.Name, cfg.URL, cfg.Secret, cfg.Timeout), nil
	default:
		return NewLog(cfg.Name, logger), nil
	}
}
