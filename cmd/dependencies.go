package cmd

import (
	"job-trigger-portal/config"
	"job-trigger-portal/pkg/alert"
	"job-trigger-portal/pkg/cache"
	"job-trigger-portal/pkg/logger"
	"job-trigger-portal/pkg/postgres"
)

type AppDependency struct {
	cfg      *config.Config
	log      *logger.Logger
	db       *postgres.DB
	cache    cache.Cache
	notifier alert.Notifier
}

func NewAppDependency() (*AppDependency, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	// Bootstrap logger so the webhook sender has something to log with.
	baseLog, err := logger.New(cfg.Log.Level, cfg.Log.Encoding)
	if err != nil {
		return nil, err
	}

	notifier := alert.NewWebhookNotifier(cfg.Alert.WebhookURL, cfg.Alert.Timeout, baseLog)

	log := baseLog
	if sender, ok := notifier.(logger.AlertSender); ok && cfg.Alert.WebhookURL != "" {
		log, err = logger.NewWithAlert(cfg.Log.Level, cfg.Log.Encoding, sender)
		if err != nil {
			return nil, err
		}
	}

	db, err := postgres.NewDB(cfg.DB, log)
	if err != nil {
		log.Error("Failed to connect to database", logger.ErrorField(err))
		return nil, err
	}

	return &AppDependency{
		cfg:      cfg,
		log:      log,
		db:       db,
		cache:    cache.NewCache(cfg.Cache.DefaultExpiration, cfg.Cache.CleanupInterval),
		notifier: notifier,
	}, nil
}

func (d *AppDependency) Close() error {
	d.log.Info("Closing app dependency")
	if d.db != nil {
		return d.db.Close()
	}
	return nil
}
