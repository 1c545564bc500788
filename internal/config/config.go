package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

const envPrefix = "VOLUNTEERD_"

// Config is the runtime configuration of volunteerd. Values come from an
// optional YAML file, then VOLUNTEERD_* environment variables override them.
type Config struct {
	Port      string `yaml:"port" validate:"required,numeric"`
	DBPath    string `yaml:"db_path" validate:"required"`
	LogLevel  string `yaml:"log_level" validate:"omitempty,oneof=debug info warn error"`
	LogFormat string `yaml:"log_format" validate:"omitempty,oneof=text json"`
	BaseURL   string `yaml:"base_url" validate:"omitempty,url"`

	TokenSecret string `yaml:"token_secret" validate:"required,min=16"`

	PostmarkToken string `yaml:"postmark_token"`
	FromEmail     string `yaml:"from_email" validate:"omitempty,email"`

	AMQPURL      string `yaml:"amqp_url" validate:"omitempty,url"`
	AMQPExchange string `yaml:"amqp_exchange" validate:"required_with=AMQPURL"`

	CompletionSweepInterval time.Duration `yaml:"completion_sweep_interval" validate:"min=0"`

	RSVPRateLimit  int           `yaml:"rsvp_rate_limit" validate:"min=0"`
	RSVPRateWindow time.Duration `yaml:"rsvp_rate_window" validate:"min=0"`

	Backup BackupConfig `yaml:"backup"`
	Push   PushConfig   `yaml:"push"`
}

// PushConfig configures Web Push shift reminders. Reminders are off unless
// both VAPID keys are set.
type PushConfig struct {
	VAPIDPublicKey   string        `yaml:"vapid_public_key" validate:"required_with=VAPIDPrivateKey"`
	VAPIDPrivateKey  string        `yaml:"vapid_private_key" validate:"required_with=VAPIDPublicKey"`
	Subscriber       string        `yaml:"subscriber"`
	ReminderLead     time.Duration `yaml:"reminder_lead" validate:"min=0"`
	ReminderInterval time.Duration `yaml:"reminder_interval" validate:"min=0"`
}

// BackupConfig configures encrypted database snapshots to S3-compatible
// storage. Backups are off unless a bucket is set.
type BackupConfig struct {
	Endpoint   string        `yaml:"s3_endpoint" validate:"omitempty,url"`
	Bucket     string        `yaml:"s3_bucket"`
	Region     string        `yaml:"s3_region" validate:"required_with=Bucket"`
	AccessKey  string        `yaml:"s3_access_key" validate:"required_with=Bucket"`
	SecretKey  string        `yaml:"s3_secret_key" validate:"required_with=Bucket"`
	Prefix     string        `yaml:"prefix"`
	Passphrase string        `yaml:"passphrase" validate:"omitempty,min=12"`
	Interval   time.Duration `yaml:"interval" validate:"min=0"`
	Retention  time.Duration `yaml:"retention" validate:"min=0"`
}

var validate = validator.New()

func defaults() Config {
	return Config{
		Port:                    "8080",
		DBPath:                  "volunteerd.db",
		LogLevel:                "info",
		LogFormat:               "text",
		AMQPExchange:            "volunteerd.events",
		CompletionSweepInterval: 15 * time.Minute,
		RSVPRateLimit:           30,
		RSVPRateWindow:          time.Minute,
		Backup: BackupConfig{
			Region:    "us-east-1",
			Prefix:    "volunteerd/",
			Retention: 30 * 24 * time.Hour,
		},
		Push: PushConfig{
			ReminderLead:     24 * time.Hour,
			ReminderInterval: time.Minute,
		},
	}
}

// Load reads path (when non-empty) over the defaults, applies the
// environment and validates the result.
func Load(path string) (*Config, error) {
	return load(path, os.LookupEnv)
}

func load(path string, lookup func(string) (string, bool)) (*Config, error) {
	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	if err := applyEnv(&cfg, lookup); err != nil {
		return nil, err
	}

	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:" + cfg.Port
	}
	if cfg.Push.Subscriber == "" && cfg.FromEmail != "" {
		cfg.Push.Subscriber = "mailto:" + cfg.FromEmail
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate runs struct validation and reports every failing field.
func Validate(cfg *Config) error {
	err := validate.Struct(cfg)
	if err == nil {
		if cfg.PostmarkToken != "" && cfg.FromEmail == "" {
			return errors.New("config validation failed: from_email is required when postmark_token is set")
		}
		if cfg.Backup.Bucket != "" && cfg.Backup.Passphrase == "" {
			return errors.New("config validation failed: backup passphrase is required when a backup bucket is set")
		}
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("config validation failed: %w", err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s (%s)", fe.Field(), fe.Tag()))
	}
	return fmt.Errorf("config validation failed: %s", strings.Join(msgs, ", "))
}

func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	str := map[string]*string{
		"PORT":           &cfg.Port,
		"DB_PATH":        &cfg.DBPath,
		"LOG_LEVEL":      &cfg.LogLevel,
		"LOG_FORMAT":     &cfg.LogFormat,
		"BASE_URL":       &cfg.BaseURL,
		"TOKEN_SECRET":   &cfg.TokenSecret,
		"POSTMARK_TOKEN": &cfg.PostmarkToken,
		"FROM_EMAIL":     &cfg.FromEmail,
		"AMQP_URL":       &cfg.AMQPURL,
		"AMQP_EXCHANGE":  &cfg.AMQPExchange,

		"BACKUP_S3_ENDPOINT":   &cfg.Backup.Endpoint,
		"BACKUP_S3_BUCKET":     &cfg.Backup.Bucket,
		"BACKUP_S3_REGION":     &cfg.Backup.Region,
		"BACKUP_S3_ACCESS_KEY": &cfg.Backup.AccessKey,
		"BACKUP_S3_SECRET_KEY": &cfg.Backup.SecretKey,
		"BACKUP_PREFIX":        &cfg.Backup.Prefix,
		"BACKUP_PASSPHRASE":    &cfg.Backup.Passphrase,

		"VAPID_PUBLIC_KEY":  &cfg.Push.VAPIDPublicKey,
		"VAPID_PRIVATE_KEY": &cfg.Push.VAPIDPrivateKey,
		"VAPID_SUBSCRIBER":  &cfg.Push.Subscriber,
	}
	for key, dst := range str {
		if v, ok := lookup(envPrefix + key); ok {
			*dst = v
		}
	}

	durations := map[string]*time.Duration{
		"COMPLETION_SWEEP_INTERVAL": &cfg.CompletionSweepInterval,
		"RSVP_RATE_WINDOW":          &cfg.RSVPRateWindow,
		"BACKUP_INTERVAL":           &cfg.Backup.Interval,
		"BACKUP_RETENTION":          &cfg.Backup.Retention,
		"REMINDER_LEAD":             &cfg.Push.ReminderLead,
		"REMINDER_INTERVAL":         &cfg.Push.ReminderInterval,
	}
	for key, dst := range durations {
		v, ok := lookup(envPrefix + key)
		if !ok {
			continue
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s%s: %w", envPrefix, key, err)
		}
		*dst = d
	}

	if v, ok := lookup(envPrefix + "RSVP_RATE_LIMIT"); ok {
		var n int
		if _, err := fmt.Sscanf(v, "%d", &n); err != nil {
			return fmt.Errorf("%sRSVP_RATE_LIMIT: %w", envPrefix, err)
		}
		cfg.RSVPRateLimit = n
	}
	return nil
}

// EmailEnabled reports whether signup confirmations can be sent.
func (c *Config) EmailEnabled() bool {
	return c.PostmarkToken != ""
}

// BrokerEnabled reports whether domain events go to a message broker.
func (c *Config) BrokerEnabled() bool {
	return c.AMQPURL != ""
}

// BackupEnabled reports whether database backups are configured.
func (c *Config) BackupEnabled() bool {
	return c.Backup.Bucket != ""
}

// PushEnabled reports whether shift reminders can be pushed to browsers.
func (c *Config) PushEnabled() bool {
	return c.Push.VAPIDPublicKey != "" && c.Push.VAPIDPrivateKey != ""
}
