package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"autopost/account"
	"autopost/analytics"
	"autopost/config"
	"autopost/events"
	"autopost/generator"
	"autopost/imagegen"
	"autopost/logging"
	"autopost/post"
	"autopost/publisher"
	"autopost/scheduler"
	"autopost/server"
	"autopost/storage"
)

// app is every component wired from one configuration.
type app struct {
	cfg       *config.Config
	logger    *logrus.Logger
	backend   storage.Backend
	posts     *post.Store
	accounts  *account.Store
	sched     *scheduler.Service
	publisher *publisher.Orchestrator
	text      *generator.TextGenerator
	images    *imagegen.Generator
	analytics *analytics.Service
	hub       *events.Hub
}

func buildApp(ctx context.Context, configPath string) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	logger := logging.New(cfg.Log.Level, cfg.Log.Format)
	if verbose {
		logger.SetLevel(logrus.DebugLevel)
	}

	backend, err := storage.Open(ctx, storage.Options{
		Driver:   cfg.Storage.Driver,
		Path:     cfg.Storage.Path,
		DSN:      cfg.Storage.DSN,
		RedisURL: cfg.Storage.RedisURL,
		Prefix:   "autopost:",
	})
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}

	a := &app{cfg: cfg, logger: logger, backend: backend, hub: events.NewHub(0)}
	if err := a.wire(ctx); err != nil {
		_ = backend.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) wire(ctx context.Context) error {
	cfg, logger := a.cfg, a.logger

	a.posts = post.NewStore(a.backend, post.UUIDGenerator{}, logger)
	if err := a.posts.Load(ctx); err != nil {
		return err
	}
	a.accounts = account.NewStore(a.backend, logger)
	if err := a.accounts.Load(ctx); err != nil {
		return err
	}

	llm, err := buildLLM(cfg)
	if err != nil {
		return err
	}
	if a.text, err = generator.NewTextGenerator(cfg.TextMode(), llm, logger); err != nil {
		return err
	}
	a.images, err = imagegen.New(imagegen.Config{
		Mode:         cfg.ImageMode(),
		APIKey:       cfg.Image.APIKey,
		BaseURL:      cfg.Image.BaseURL,
		Model:        cfg.Image.Model,
		PollInterval: cfg.Image.PollInterval,
		MaxAttempts:  cfg.Image.MaxAttempts,
		OfflineDelay: cfg.Image.OfflineDelay,
	}, nil, logger)
	if err != nil {
		return err
	}

	publishers, err := publisher.FromConfig(cfg.Publish, cfg.PublishMode(), logger)
	if err != nil {
		return err
	}
	a.publisher = publisher.NewOrchestrator(publishers, a.hub, logger)
	a.publisher.SetTimeout(cfg.Publish.Timeout)

	a.sched = scheduler.NewService(scheduler.Deps{
		Persister: a.backend,
		IDs:       post.UUIDGenerator{},
		Publisher: a.publisher,
		Posts:     a.posts,
		Hub:       a.hub,
		Logger:    logger,
	})
	if err := a.sched.Load(ctx); err != nil {
		return err
	}
	a.analytics = analytics.New(0)

	logger.WithFields(logrus.Fields{
		"text_mode":    cfg.TextMode(),
		"image_mode":   cfg.ImageMode(),
		"publish_mode": cfg.PublishMode(),
		"storage":      cfg.Storage.Driver,
	}).Info("components ready")
	return nil
}

// buildLLM returns nil in offline mode; the text generator then uses the
// canned copy.
func buildLLM(cfg *config.Config) (generator.LLMClient, error) {
	if cfg.TextMode() != config.ModeLive {
		return nil, nil
	}
	return generator.NewOpenAILLMFromConfig(&generator.LLMSettings{
		Model:   cfg.LLM.Model,
		APIKey:  cfg.LLM.APIKey,
		BaseURL: cfg.LLM.BaseURL,
		Referer: cfg.LLM.Referer,
	})
}

func (a *app) Close() error {
	return a.backend.Close()
}

// httpServer builds the API server listening on addr.
func (a *app) httpServer(addr string) (*http.Server, error) {
	srv, err := server.New(server.Deps{
		Posts:     a.posts,
		Scheduler: a.sched,
		Publisher: a.publisher,
		Text:      a.text,
		Images:    a.images,
		Accounts:  a.accounts,
		Analytics: a.analytics,
		Hub:       a.hub,
		Logger:    a.logger,
	})
	if err != nil {
		return nil, err
	}
	return &http.Server{Addr: addr, Handler: srv.Routes()}, nil
}

func (a *app) publishNow(ctx context.Context, id string) (publisher.Result, error) {
	return publisher.PublishStored(ctx, a.posts, a.publisher, id, time.Now(), a.logger)
}
