package notify

import (
	"fmt"
	"strings"
	"time"
)

const (
	ModeLog                = "log"
	ModeSendgrid           = "sendgrid"
	defaultQueueSize       = 128
	defaultWorkers         = 2
	defaultDeliveryTimeout = 10 * time.Second
	defaultFromName        = "Lessons"
	defaultSendgridHost    = "https://api.sendgrid.com"
)

// Config selects and tunes the notification transport.
type Config struct {
	Mode            string
	SendgridAPIKey  string
	SendgridHost    string
	FromAddress     string
	FromName        string
	QueueSize       int
	Workers         int
	DeliveryTimeout time.Duration
}

// Validate fills defaults and rejects incomplete transport settings.
func (cfg *Config) Validate() error {
	cfg.Mode = strings.ToLower(strings.TrimSpace(cfg.Mode))
	if cfg.Mode == "" {
		cfg.Mode = ModeLog
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaultQueueSize
	}
	if cfg.Workers <= 0 {
		cfg.Workers = defaultWorkers
	}
	if cfg.DeliveryTimeout <= 0 {
		cfg.DeliveryTimeout = defaultDeliveryTimeout
	}
	if strings.TrimSpace(cfg.FromName) == "" {
		cfg.FromName = defaultFromName
	}
	switch cfg.Mode {
	case ModeLog:
		return nil
	case ModeSendgrid:
		if strings.TrimSpace(cfg.SendgridAPIKey) == "" {
			return fmt.Errorf("sendgrid api key is required")
		}
		if strings.TrimSpace(cfg.FromAddress) == "" {
			return fmt.Errorf("mail from address is required")
		}
		if strings.TrimSpace(cfg.SendgridHost) == "" {
			cfg.SendgridHost = defaultSendgridHost
		}
		return nil
	default:
		return fmt.Errorf("unsupported notifier %q", cfg.Mode)
	}
}
