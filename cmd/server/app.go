package main

import (
	"context"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/omnibridge/backend/internal/ai"
	"github.com/omnibridge/backend/internal/channel"
	"github.com/omnibridge/backend/internal/config"
	"github.com/omnibridge/backend/internal/db"
	"github.com/omnibridge/backend/internal/events"
	"github.com/omnibridge/backend/internal/mail"
	"github.com/omnibridge/backend/internal/service"
	"github.com/omnibridge/backend/internal/tracker"
)

// app holds the wired process dependencies shared by every command.
type app struct {
	cfg      config.Config
	logger   zerolog.Logger
	store    *db.Store
	client   *http.Client
	channels *channel.Registry
	events   *events.Kafka
	bridge   *service.Orchestrator
	sync     *service.DirectorySync
}

func newApp(ctx context.Context, cfg config.Config, logger zerolog.Logger) (*app, error) {
	store, err := db.New(ctx, cfg.DatabaseURL, cfg.DBMaxConns)
	if err != nil {
		return nil, err
	}

	client := &http.Client{Timeout: cfg.ExternalTimeout}
	a := &app{
		cfg:      cfg,
		logger:   logger,
		store:    store,
		client:   client,
		channels: buildChannels(cfg, client, logger),
		events:   events.NewKafka(cfg.KafkaBrokerList(), cfg.KafkaTopic, logger),
	}
	if !a.events.Enabled() {
		logger.Info().Msg("kafka not configured, domain events are dropped")
	}

	var it interface {
		tracker.IssueTracker
		tracker.Directory
	}
	if cfg.JiraBaseURL == "" {
		logger.Warn().Msg("JIRA_BASE_URL not set, using in-memory tracker")
		it = tracker.NewMemory(cfg.JiraProjectKey)
	} else {
		it = &tracker.Jira{
			BaseURL:        cfg.JiraBaseURL,
			Email:          cfg.JiraEmail,
			APIToken:       cfg.JiraAPIToken,
			ServiceDeskID:  cfg.JiraServiceDeskID,
			RequestTypeID:  cfg.JiraRequestTypeID,
			ProjectKey:     cfg.JiraProjectKey,
			StartDateField: cfg.JiraStartDateField,
			PriorityIDs:    cfg.PriorityIDs(),
			Timeout:        cfg.ExternalTimeout,
			Client:         client,
		}
	}

	var assistant ai.Capabilities
	if cfg.AIURL == "" {
		assistant = ai.MockAI{}
		logger.Info().Msg("using mock AI adapter")
	} else {
		assistant = ai.NewOpenAICompat(cfg.AIURL, cfg.AIModel, cfg.AIAPIKey, client, cfg.ExternalTimeout)
	}

	var mailer mail.Sender
	if cfg.SMTPHost == "" {
		logger.Warn().Msg("SMTP_HOST not set, verification mails are only logged")
		mailer = &mail.LogSender{Logger: logger}
	} else {
		mailer = &mail.SMTPSender{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.SMTPFrom,
			Timeout:  cfg.ExternalTimeout,
		}
	}

	var delivery service.Delivery
	if cfg.DeliveryMode == config.DeliverySync {
		delivery = &service.SyncDelivery{Sender: a.channels, Logger: logger}
	} else {
		delivery = service.OutboxDelivery{}
	}

	a.bridge = &service.Orchestrator{
		Repo:     store,
		Tracker:  it,
		Mail:     mailer,
		AI:       assistant,
		Delivery: delivery,
		Sender:   a.channels,
		Events:   a.events,
		Options: service.Options{
			BaseURL:          cfg.BaseURL,
			VerificationTTL:  cfg.VerificationTTL,
			AuthTTL:          cfg.AuthTTL(),
			IntegrationEmail: cfg.JiraEmail,
		},
		Logger: logger,
	}
	a.sync = &service.DirectorySync{
		Repo:      store,
		Directory: it,
		Events:    a.events,
		Logger:    logger,
	}
	return a, nil
}

func (a *app) outboxWorker() *service.OutboxWorker {
	return &service.OutboxWorker{
		Repo:      a.store,
		Sender:    a.channels,
		BatchSize: a.cfg.OutboxBatchSize,
		Backoff:   a.cfg.OutboxBackoff,
		BusyPoll:  a.cfg.OutboxBusyPoll,
		IdlePoll:  a.cfg.OutboxIdlePoll,
		Logger:    a.logger.With().Str("component", "outbox").Logger(),
	}
}

func (a *app) Close() {
	if err := a.events.Close(); err != nil {
		a.logger.Warn().Err(err).Msg("kafka writer close failed")
	}
	a.client.CloseIdleConnections()
	a.store.Close()
}

// buildChannels registers an adapter for every platform that has
// credentials and warns when its webhook signature check is disabled.
func buildChannels(cfg config.Config, client *http.Client, logger zerolog.Logger) *channel.Registry {
	reg := channel.NewRegistry()
	if cfg.WhatsAppToken != "" {
		if cfg.WhatsAppAppSecret == "" {
			logger.Warn().Msg("WHATSAPP_APP_SECRET not set, webhook signatures are not checked")
		}
		reg.Register(&channel.WhatsApp{
			Token:         cfg.WhatsAppToken,
			PhoneNumberID: cfg.WhatsAppPhoneNumberID,
			AppSecret:     cfg.WhatsAppAppSecret,
			VerifyToken:   cfg.WhatsAppVerifyToken,
			Client:        client,
		})
	}
	if cfg.TelegramBotToken != "" {
		if cfg.TelegramSecretToken == "" {
			logger.Warn().Msg("TELEGRAM_SECRET_TOKEN not set, webhook secrets are not checked")
		}
		reg.Register(channel.NewTelegram(cfg.TelegramBotToken, cfg.TelegramSecretToken, client))
	}
	if cfg.LineChannelAccessToken != "" {
		if cfg.LineChannelSecret == "" {
			logger.Warn().Msg("LINE_CHANNEL_SECRET not set, webhook signatures are not checked")
		}
		reg.Register(&channel.Line{
			ChannelAccessToken: cfg.LineChannelAccessToken,
			ChannelSecret:      cfg.LineChannelSecret,
			Client:             client,
		})
	}
	logger.Info().Strs("platforms", reg.Platforms()).Msg("channels registered")
	return reg
}
