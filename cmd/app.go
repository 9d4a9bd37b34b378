package main

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/zerorich/rating-bot/internal/config"
	"github.com/zerorich/rating-bot/internal/integrations/paramstore"
	"github.com/zerorich/rating-bot/internal/integrations/telegram"
	"github.com/zerorich/rating-bot/internal/repository"
	"github.com/zerorich/rating-bot/internal/repository/memory"
	"github.com/zerorich/rating-bot/internal/repository/mongostore"
	"github.com/zerorich/rating-bot/internal/state"
	"github.com/zerorich/rating-bot/internal/usecase"
)

type app struct {
	cfg        config.Config
	log        *slog.Logger
	states     *state.Store
	dispatcher *telegram.Dispatcher
	closers    []func(context.Context) error
	closeMu    sync.Mutex
}

func newApp(ctx context.Context, cfg config.Config, log *slog.Logger) (*app, error) {
	a := &app{cfg: cfg, log: log}

	var awsCfg aws.Config
	if cfg.NeedsAWS() {
		var err error
		awsCfg, err = awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, fmt.Errorf("load AWS config: %w", err)
		}
	}

	token, err := botToken(ctx, cfg, awsCfg)
	if err != nil {
		return nil, err
	}
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("connect to telegram: %w", err)
	}
	username := cfg.BotUsername
	if username == "" {
		username = api.Self.UserName
	}

	repo, err := a.openRepository(ctx, awsCfg)
	if err != nil {
		return nil, err
	}

	a.states = state.NewStore(state.WithTTL(cfg.StateTTL))
	transport, err := telegram.NewTransport(api)
	if err != nil {
		return nil, err
	}
	bot, err := usecase.NewBot(repo, a.states, transport, usecase.BotConfig{
		EntryURL:      "https://t.me/" + username,
		MessagesLimit: cfg.MessagesLimit,
		RatingsLimit:  cfg.RatingsLimit,
	}, log)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("create bot: %w", err)
	}
	a.dispatcher, err = telegram.NewDispatcher(api, bot, log,
		telegram.WithWorkers(cfg.Workers),
		telegram.WithPollTimeout(cfg.PollTimeout),
	)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("create dispatcher: %w", err)
	}

	log.Info("bot ready", "bot", username, "backend", cfg.StorageBackend, "state_ttl", cfg.StateTTL)
	return a, nil
}

func botToken(ctx context.Context, cfg config.Config, awsCfg aws.Config) (string, error) {
	if cfg.TelegramToken != "" {
		return cfg.TelegramToken, nil
	}
	ps, err := paramstore.New(awsssm.NewFromConfig(awsCfg))
	if err != nil {
		return "", fmt.Errorf("create SSM client: %w", err)
	}
	token, err := paramstore.Token(ctx, ps, cfg.TelegramTokenParam)
	if err != nil {
		return "", fmt.Errorf("resolve bot token: %w", err)
	}
	return token, nil
}

func (a *app) openRepository(ctx context.Context, awsCfg aws.Config) (usecase.Repository, error) {
	switch a.cfg.StorageBackend {
	case config.BackendDynamoDB:
		repo, err := repository.New(awsdynamodb.NewFromConfig(awsCfg), a.cfg.StateTable)
		if err != nil {
			return nil, fmt.Errorf("create dynamodb repository: %w", err)
		}
		return repo, nil
	case config.BackendMongo:
		client, err := mongostore.Connect(ctx, a.cfg.MongoURI)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, client.Disconnect)
		store, err := mongostore.New(client.Database(a.cfg.MongoDatabase))
		if err != nil {
			a.close()
			return nil, err
		}
		if err := store.EnsureIndexes(ctx); err != nil {
			a.close()
			return nil, err
		}
		return store, nil
	default:
		a.log.Warn("using in-memory storage; data is lost on restart")
		return memory.NewStore(), nil
	}
}

// sweep evicts abandoned conversations until ctx is done.
func (a *app) sweep(ctx context.Context) {
	a.states.Run(ctx, a.cfg.SweepInterval, func(n int) {
		a.log.Debug("expired conversations", "count", n)
	})
}

// close runs the registered closers newest first. Later calls are no-ops.
func (a *app) close() {
	a.closeMu.Lock()
	defer a.closeMu.Unlock()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			a.log.Warn("shutdown step failed", "err", err)
		}
	}
	a.closers = nil
}
