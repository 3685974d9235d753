package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	DeliverySync   = "sync"
	DeliveryOutbox = "outbox"
)

type Config struct {
	Env             string        `mapstructure:"APP_ENV"`
	Port            string        `mapstructure:"PORT"`
	DatabaseURL     string        `mapstructure:"DATABASE_URL"`
	DBMaxConns      int32         `mapstructure:"DB_MAX_CONNS"`
	AdminKey        string        `mapstructure:"ADMIN_KEY"`
	BaseURL         string        `mapstructure:"BASE_URL"`
	CORSAllowed     string        `mapstructure:"CORS_ALLOWED"`
	RequestTimeout  time.Duration `mapstructure:"REQUEST_TIMEOUT"`
	ExternalTimeout time.Duration `mapstructure:"EXTERNAL_TIMEOUT"`
	LogLevel        string        `mapstructure:"LOG_LEVEL"`

	AuthTTLDays     int           `mapstructure:"AUTH_TTL_DAYS"`
	VerificationTTL time.Duration `mapstructure:"VERIFICATION_TTL"`

	DeliveryMode    string        `mapstructure:"DELIVERY_MODE"`
	OutboxBatchSize int           `mapstructure:"OUTBOX_BATCH_SIZE"`
	OutboxBackoff   time.Duration `mapstructure:"OUTBOX_BACKOFF"`
	OutboxBusyPoll  time.Duration `mapstructure:"OUTBOX_BUSY_POLL"`
	OutboxIdlePoll  time.Duration `mapstructure:"OUTBOX_IDLE_POLL"`

	RateLimitWindowSeconds int `mapstructure:"RATE_LIMIT_WINDOW_SECONDS"`
	RateLimitMax           int `mapstructure:"RATE_LIMIT_MAX"`

	AIURL    string `mapstructure:"AI_URL"`
	AIAPIKey string `mapstructure:"AI_API_KEY"`
	AIModel  string `mapstructure:"AI_MODEL"`

	JiraBaseURL        string `mapstructure:"JIRA_BASE_URL"`
	JiraEmail          string `mapstructure:"JIRA_EMAIL"`
	JiraAPIToken       string `mapstructure:"JIRA_API_TOKEN"`
	JiraServiceDeskID  string `mapstructure:"JIRA_SERVICE_DESK_ID"`
	JiraRequestTypeID  string `mapstructure:"JIRA_REQUEST_TYPE_ID"`
	JiraProjectKey     string `mapstructure:"JIRA_PROJECT_KEY"`
	JiraStartDateField string `mapstructure:"JIRA_START_DATE_FIELD"`
	JiraPriorityIDs    string `mapstructure:"JIRA_PRIORITY_IDS"`
	JiraWebhookSecret  string `mapstructure:"JIRA_WEBHOOK_SECRET"`

	SMTPHost     string `mapstructure:"SMTP_HOST"`
	SMTPPort     int    `mapstructure:"SMTP_PORT"`
	SMTPUsername string `mapstructure:"SMTP_USERNAME"`
	SMTPPassword string `mapstructure:"SMTP_PASSWORD"`
	SMTPFrom     string `mapstructure:"SMTP_FROM"`

	WhatsAppToken         string `mapstructure:"WHATSAPP_TOKEN"`
	WhatsAppPhoneNumberID string `mapstructure:"WHATSAPP_PHONE_NUMBER_ID"`
	WhatsAppAppSecret     string `mapstructure:"WHATSAPP_APP_SECRET"`
	WhatsAppVerifyToken   string `mapstructure:"WHATSAPP_VERIFY_TOKEN"`

	TelegramBotToken    string `mapstructure:"TELEGRAM_BOT_TOKEN"`
	TelegramSecretToken string `mapstructure:"TELEGRAM_SECRET_TOKEN"`

	LineChannelAccessToken string `mapstructure:"LINE_CHANNEL_ACCESS_TOKEN"`
	LineChannelSecret      string `mapstructure:"LINE_CHANNEL_SECRET"`

	KafkaBrokers string `mapstructure:"KAFKA_BROKERS"`
	KafkaTopic   string `mapstructure:"KAFKA_TOPIC"`

	DirectorySyncSchedule string `mapstructure:"DIRECTORY_SYNC_SCHEDULE"`
}

func Load() (Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	_ = v.ReadInConfig()

	// Unmarshal only sees env-only keys once they are bound.
	t := reflect.TypeOf(Config{})
	for i := 0; i < t.NumField(); i++ {
		_ = v.BindEnv(t.Field(i).Tag.Get("mapstructure"))
	}

	v.SetDefault("APP_ENV", "dev")
	v.SetDefault("PORT", "8080")
	v.SetDefault("DB_MAX_CONNS", 10)
	v.SetDefault("BASE_URL", "http://localhost:8080")
	v.SetDefault("CORS_ALLOWED", "*")
	v.SetDefault("REQUEST_TIMEOUT", "30s")
	v.SetDefault("EXTERNAL_TIMEOUT", "15s")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("AUTH_TTL_DAYS", 30)
	v.SetDefault("VERIFICATION_TTL", "15m")
	v.SetDefault("DELIVERY_MODE", DeliveryOutbox)
	v.SetDefault("OUTBOX_BATCH_SIZE", 20)
	v.SetDefault("OUTBOX_BACKOFF", "5m")
	v.SetDefault("OUTBOX_BUSY_POLL", "100ms")
	v.SetDefault("OUTBOX_IDLE_POLL", "1s")
	v.SetDefault("RATE_LIMIT_WINDOW_SECONDS", 60)
	v.SetDefault("RATE_LIMIT_MAX", 20)
	v.SetDefault("AI_MODEL", "gpt-4o-mini")
	v.SetDefault("JIRA_PROJECT_KEY", "SUP")
	v.SetDefault("JIRA_START_DATE_FIELD", "customfield_10015")
	v.SetDefault("JIRA_PRIORITY_IDS", "P1=1,P2=2,P3=3,P4=4")
	v.SetDefault("SMTP_PORT", 587)
	v.SetDefault("SMTP_FROM", "support@localhost")
	v.SetDefault("KAFKA_TOPIC", "omnibridge.events")
	v.SetDefault("DIRECTORY_SYNC_SCHEDULE", "@every 6h")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	cfg.DeliveryMode = strings.ToLower(strings.TrimSpace(cfg.DeliveryMode))
	return cfg, nil
}

// Validate reports settings the process cannot start without.
func (c Config) Validate() error {
	var errs []error
	if c.DatabaseURL == "" {
		errs = append(errs, errors.New("DATABASE_URL is required"))
	}
	if c.DeliveryMode != DeliverySync && c.DeliveryMode != DeliveryOutbox {
		errs = append(errs, fmt.Errorf("DELIVERY_MODE must be %q or %q, got %q", DeliverySync, DeliveryOutbox, c.DeliveryMode))
	}
	if c.AuthTTLDays <= 0 {
		errs = append(errs, errors.New("AUTH_TTL_DAYS must be positive"))
	}
	if c.RateLimitMax <= 0 || c.RateLimitWindowSeconds <= 0 {
		errs = append(errs, errors.New("RATE_LIMIT_MAX and RATE_LIMIT_WINDOW_SECONDS must be positive"))
	}
	return errors.Join(errs...)
}

func (c Config) AuthTTL() time.Duration {
	return time.Duration(c.AuthTTLDays) * 24 * time.Hour
}

func (c Config) RateLimitWindow() time.Duration {
	return time.Duration(c.RateLimitWindowSeconds) * time.Second
}

// PriorityIDs parses JIRA_PRIORITY_IDS ("P1=1,P2=2").
func (c Config) PriorityIDs() map[string]string {
	out := map[string]string{}
	for _, pair := range strings.Split(c.JiraPriorityIDs, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if !ok {
			continue
		}
		k = strings.ToUpper(strings.TrimSpace(k))
		v = strings.TrimSpace(v)
		if k != "" && v != "" {
			out[k] = v
		}
	}
	return out
}

func (c Config) KafkaBrokerList() []string {
	var out []string
	for _, b := range strings.Split(c.KafkaBrokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}
