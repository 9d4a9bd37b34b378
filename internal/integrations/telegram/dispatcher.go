package telegram

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/zerorich/rating-bot/internal/domain"
	"github.com/zerorich/rating-bot/internal/usecase"
)

const (
	defaultWorkers     = 8
	defaultPollTimeout = 30
)

// EventHandler consumes converted events.
type EventHandler interface {
	HandleEvent(ctx context.Context, ev domain.Event) error
}

type DispatcherOption func(*Dispatcher)

// WithWorkers sets the number of worker shards.
func WithWorkers(n int) DispatcherOption {
	return func(d *Dispatcher) {
		if n > 0 {
			d.workers = n
		}
	}
}

// WithPollTimeout sets the long-poll timeout in seconds.
func WithPollTimeout(seconds int) DispatcherOption {
	return func(d *Dispatcher) {
		if seconds > 0 {
			d.pollTimeout = seconds
		}
	}
}

// Dispatcher feeds Telegram updates into an EventHandler. Updates of one
// chat always land on the same worker, so a conversation never sees two of
// its updates processed concurrently or out of order.
type Dispatcher struct {
	api         API
	transport   *Transport
	handler     EventHandler
	log         *slog.Logger
	workers     int
	pollTimeout int
}

func NewDispatcher(api API, handler EventHandler, log *slog.Logger, opts ...DispatcherOption) (*Dispatcher, error) {
	if handler == nil {
		return nil, errors.New("telegram: handler must not be nil")
	}
	transport, err := NewTransport(api)
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = slog.Default()
	}
	d := &Dispatcher{
		api:         api,
		transport:   transport,
		handler:     handler,
		log:         log,
		workers:     defaultWorkers,
		pollTimeout: defaultPollTimeout,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Dispatch handles one update synchronously and acknowledges button presses.
func (d *Dispatcher) Dispatch(ctx context.Context, u tgbotapi.Update) {
	ev, ok := EventFromUpdate(u)
	if !ok {
		d.log.Debug("skipped update", "update_id", u.UpdateID)
		return
	}
	if err := d.handler.HandleEvent(ctx, ev); err != nil {
		d.log.Error("handle update failed",
			"update_id", u.UpdateID,
			"chat_id", ev.ChatID,
			"code", usecase.CodeOf(err),
			"error", err,
		)
	}
	if u.CallbackQuery != nil {
		if err := d.transport.Acknowledge(ctx, u.CallbackQuery.ID); err != nil {
			d.log.Warn("callback acknowledgement failed", "update_id", u.UpdateID, "error", err)
		}
	}
}

// Run long-polls for updates until ctx is cancelled, then waits for
// in-flight updates to finish.
func (d *Dispatcher) Run(ctx context.Context) error {
	cfg := tgbotapi.NewUpdate(0)
	cfg.Timeout = d.pollTimeout
	cfg.AllowedUpdates = []string{"message", "callback_query"}
	updates := d.api.GetUpdatesChan(cfg)

	// Handlers outlive the poll loop so a cancelled run never cuts a flow
	// between persisting and delivering.
	work := context.WithoutCancel(ctx)

	shards := make([]chan tgbotapi.Update, d.workers)
	var wg sync.WaitGroup
	for i := range shards {
		shards[i] = make(chan tgbotapi.Update, 16)
		wg.Add(1)
		go func(in <-chan tgbotapi.Update) {
			defer wg.Done()
			for u := range in {
				d.Dispatch(work, u)
			}
		}(shards[i])
	}

	d.log.Info("polling for updates", "workers", d.workers, "timeout_s", d.pollTimeout)
	defer func() {
		for _, s := range shards {
			close(s)
		}
		wg.Wait()
		d.log.Info("polling stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			d.api.StopReceivingUpdates()
			return nil
		case u, ok := <-updates:
			if !ok {
				return nil
			}
			select {
			case shards[d.shardOf(u)] <- u:
			case <-ctx.Done():
				d.api.StopReceivingUpdates()
				return nil
			}
		}
	}
}

func (d *Dispatcher) shardOf(u tgbotapi.Update) int {
	return int(uint64(chatOf(u)) % uint64(d.workers))
}
