package usecase

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/zerorich/rating-bot/internal/domain"
)

const commandStart = "start"

type BotConfig struct {
	// EntryURL is the bot deep-link base, e.g. https://t.me/some_bot.
	EntryURL      string
	MessagesLimit int
	RatingsLimit  int
}

// Bot routes inbound events to the link registry, the flows and the history views.
type Bot struct {
	links       *LinkRegistry
	history     *History
	coordinator *Coordinator
	states      StateStore
	transport   Transport
	machine     *machine
	cfg         BotConfig
	log         *slog.Logger
}

func NewBot(repo Repository, states StateStore, transport Transport, cfg BotConfig, log *slog.Logger) (*Bot, error) {
	if repo == nil {
		return nil, errors.New("usecase: repository must not be nil")
	}
	if states == nil {
		return nil, errors.New("usecase: state store must not be nil")
	}
	if transport == nil {
		return nil, errors.New("usecase: transport must not be nil")
	}
	cfg.EntryURL = strings.TrimSpace(cfg.EntryURL)
	if cfg.EntryURL == "" {
		return nil, errors.New("usecase: entry url must not be empty")
	}
	if cfg.MessagesLimit <= 0 {
		cfg.MessagesLimit = defaultMessagesLimit
	}
	if cfg.RatingsLimit <= 0 {
		cfg.RatingsLimit = defaultRatingsLimit
	}
	if log == nil {
		log = slog.Default()
	}

	links, err := NewLinkRegistry(repo, log)
	if err != nil {
		return nil, err
	}
	history, err := NewHistory(repo, repo)
	if err != nil {
		return nil, err
	}
	coordinator, err := NewCoordinator(repo, repo, transport, log)
	if err != nil {
		return nil, err
	}
	return &Bot{
		links:       links,
		history:     history,
		coordinator: coordinator,
		states:      states,
		transport:   transport,
		machine:     newMachine(flowTransitions()),
		cfg:         cfg,
		log:         log,
	}, nil
}

// HandleEvent processes one inbound event. Stale or out-of-order input is
// dropped without touching state and without an error.
func (b *Bot) HandleEvent(ctx context.Context, ev domain.Event) error {
	var err error
	switch ev.Kind {
	case domain.EventCommand:
		err = b.handleCommand(ctx, ev)
	case domain.EventChoice:
		err = b.handleChoice(ctx, ev)
	case domain.EventText:
		err = b.advance(ctx, ev)
	default:
		return nil
	}
	if err == nil {
		return nil
	}
	if CodeOf(err) == ErrorProtocol {
		b.log.Debug("ignored input", "chat_id", ev.ChatID, "kind", ev.Kind, "error", err)
		return nil
	}
	return err
}

func (b *Bot) handleCommand(ctx context.Context, ev domain.Event) error {
	if ev.Command != commandStart {
		return nil
	}
	if token, ok := strings.CutPrefix(strings.TrimSpace(ev.Argument), StartPayloadPrefix); ok {
		return b.openLink(ctx, ev, token)
	}
	return b.showStart(ctx, ev)
}

func (b *Bot) handleChoice(ctx context.Context, ev domain.Event) error {
	switch ev.Data {
	case dataMyMessages:
		return b.showMessages(ctx, ev)
	case dataMyRatings:
		return b.showRatings(ctx, ev)
	case dataBack:
		return b.showStart(ctx, ev)
	}
	return b.advance(ctx, ev)
}

func (b *Bot) showStart(ctx context.Context, ev domain.Event) error {
	name := domain.DisplayNameFor(ev.SenderID, ev.SenderName)
	token, err := b.links.GetOrCreateLink(ctx, ev.SenderID, name)
	if err != nil {
		b.reply(ctx, ev.Target(), domain.Prompt{Text: textInternalError})
		return err
	}
	return b.transport.Reply(ctx, ev.Target(), renderStartMenu(LinkURL(b.cfg.EntryURL, token)))
}

// openLink enters a new flow for the visitor, discarding any flow in progress.
func (b *Bot) openLink(ctx context.Context, ev domain.Event, token string) error {
	owner, err := b.links.ResolveLink(ctx, token)
	if err != nil {
		if CodeOf(err) == ErrorInvalidLink {
			return b.transport.Reply(ctx, ev.Target(), domain.Prompt{Text: textInvalidLink})
		}
		b.reply(ctx, ev.Target(), domain.Prompt{Text: textInternalError})
		return err
	}

	st := domain.ConversationState{
		Step:                 domain.StepChoosingAction,
		FlowID:               newFlowID(),
		RecipientUserID:      owner.UserID,
		RecipientDisplayName: owner.DisplayName,
	}
	b.states.Start(conversationOf(ev), st)
	return b.transport.Reply(ctx, ev.Target(), renderStep(st))
}

func (b *Bot) advance(ctx context.Context, ev domain.Event) error {
	id := conversationOf(ev)
	st, err := b.states.Update(id, func(st *domain.ConversationState) error {
		return b.machine.advance(ctx, st, ev)
	})
	if err != nil {
		var ue *Error
		if errors.As(err, &ue) {
			return ue
		}
		return newError(ErrorProtocol, "no_conversation", err)
	}

	// The update that completes a flow also removes it from the store.
	if st.Step != domain.StepComplete {
		return b.transport.Reply(ctx, ev.Target(), renderStep(st))
	}
	return b.complete(ctx, ev, st)
}

func (b *Bot) complete(ctx context.Context, ev domain.Event, st domain.ConversationState) error {
	if st.Ratings == nil {
		if st.Message == nil {
			return newError(ErrorInternal, "message_missing", nil)
		}
		_, err := b.coordinator.FinalizeMessage(ctx, ev.Target(), domain.Message{
			RecipientUserID: st.RecipientUserID,
			SenderUserID:    ev.SenderID,
			Text:            *st.Message,
		})
		return err
	}

	scores, ok := st.Scores()
	if !ok || st.WantsRelationship == nil || st.KnowsPersonally == nil || st.Anonymous == nil {
		b.reply(ctx, ev.Target(), domain.Prompt{Text: textInternalError})
		return newError(ErrorInternal, "rating_incomplete", nil)
	}
	_, err := b.coordinator.FinalizeRating(ctx, ev.Target(), domain.Rating{
		SenderUserID:      ev.SenderID,
		SenderDisplayName: domain.DisplayNameFor(ev.SenderID, ev.SenderName),
		RecipientUserID:   st.RecipientUserID,
		Anonymous:         *st.Anonymous,
		Scores:            scores,
		WantsRelationship: *st.WantsRelationship,
		KnowsPersonally:   *st.KnowsPersonally,
		Message:           st.Message,
	})
	return err
}

func (b *Bot) showMessages(ctx context.Context, ev domain.Event) error {
	msgs, err := b.history.RecentMessages(ctx, ev.SenderID, b.cfg.MessagesLimit)
	if err != nil {
		b.reply(ctx, ev.Target(), domain.Prompt{Text: textInternalError, Choices: backMenu()})
		return err
	}
	return b.transport.Reply(ctx, ev.Target(), renderMessageHistory(msgs))
}

func (b *Bot) showRatings(ctx context.Context, ev domain.Event) error {
	ratings, err := b.history.RecentRatings(ctx, ev.SenderID, b.cfg.RatingsLimit)
	if err != nil {
		b.reply(ctx, ev.Target(), domain.Prompt{Text: textInternalError, Choices: backMenu()})
		return err
	}
	return b.transport.Reply(ctx, ev.Target(), renderRatingHistory(ratings))
}

// reply sends a best-effort notice whose failure is only logged.
func (b *Bot) reply(ctx context.Context, to domain.ReplyTarget, p domain.Prompt) {
	if err := b.transport.Reply(ctx, to, p); err != nil {
		b.log.Error("failed to reply", "chat_id", to.ChatID, "error", err)
	}
}

func conversationOf(ev domain.Event) domain.ConversationID {
	return domain.ConversationID(ev.ChatID)
}
