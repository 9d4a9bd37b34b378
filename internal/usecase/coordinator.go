package usecase

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/zerorich/rating-bot/internal/domain"
)

// DeliveryOutcome reports what happened to the recipient notification.
type DeliveryOutcome int

const (
	// DeliveryNotAttempted means the record could not be persisted.
	DeliveryNotAttempted DeliveryOutcome = iota
	DeliveryDelivered
	DeliveryUnreachable
)

func (o DeliveryOutcome) String() string {
	switch o {
	case DeliveryDelivered:
		return "delivered"
	case DeliveryUnreachable:
		return "unreachable"
	default:
		return "not_attempted"
	}
}

// flowResult is a finished flow ready to be persisted and announced.
type flowResult interface {
	kind() string
	recipient() int64
	persist(ctx context.Context, c *Coordinator) error
	notification() string
	notices() (sent, undelivered, notSaved string)
}

type messageResult struct{ domain.Message }

func (r messageResult) kind() string     { return "message" }
func (r messageResult) recipient() int64 { return r.RecipientUserID }
func (r messageResult) persist(ctx context.Context, c *Coordinator) error {
	return c.messages.InsertMessage(ctx, r.Message)
}
func (r messageResult) notification() string { return renderMessageNotification(r.Message) }
func (r messageResult) notices() (string, string, string) {
	return textMessageSent, textMessageUndelivered, textMessageNotSaved
}

type ratingResult struct{ domain.Rating }

func (r ratingResult) kind() string     { return "rating" }
func (r ratingResult) recipient() int64 { return r.RecipientUserID }
func (r ratingResult) persist(ctx context.Context, c *Coordinator) error {
	return c.ratings.InsertRating(ctx, r.Rating)
}
func (r ratingResult) notification() string { return renderRatingNotification(r.Rating) }
func (r ratingResult) notices() (string, string, string) {
	return textRatingSent, textRatingUndelivered, textRatingNotSaved
}

// Coordinator persists finished flows, then makes one best-effort delivery
// attempt and tells the sender how it went.
type Coordinator struct {
	messages  MessageRepository
	ratings   RatingRepository
	transport Transport
	log       *slog.Logger
	now       func() time.Time
}

func NewCoordinator(messages MessageRepository, ratings RatingRepository, transport Transport, log *slog.Logger) (*Coordinator, error) {
	if messages == nil || ratings == nil {
		return nil, errors.New("usecase: repositories must not be nil")
	}
	if transport == nil {
		return nil, errors.New("usecase: transport must not be nil")
	}
	if log == nil {
		log = slog.Default()
	}
	return &Coordinator{messages: messages, ratings: ratings, transport: transport, log: log, now: time.Now}, nil
}

// FinalizeMessage stamps, persists and delivers an anonymous message.
func (c *Coordinator) FinalizeMessage(ctx context.Context, to domain.ReplyTarget, m domain.Message) (DeliveryOutcome, error) {
	m.ID = newUUID()
	m.SentAt = c.now().UTC()
	m.IsRead = false
	return c.finalize(ctx, to, messageResult{m})
}

// FinalizeRating stamps, persists and delivers a rating.
func (c *Coordinator) FinalizeRating(ctx context.Context, to domain.ReplyTarget, r domain.Rating) (DeliveryOutcome, error) {
	r.ID = newUUID()
	r.SentAt = c.now().UTC()
	if r.Anonymous {
		r.SenderDisplayName = ""
	}
	return c.finalize(ctx, to, ratingResult{r})
}

func (c *Coordinator) finalize(ctx context.Context, to domain.ReplyTarget, res flowResult) (DeliveryOutcome, error) {
	log := c.log.With("flow", res.kind(), "conversation", to.ChatID, "recipient", res.recipient())
	sent, undelivered, notSaved := res.notices()

	if err := res.persist(ctx, c); err != nil {
		log.Error("failed to persist record", "error", err)
		c.notify(ctx, log, to, notSaved)
		return DeliveryNotAttempted, newError(ErrorPersistence, res.kind()+"_insert_error", err)
	}

	outcome := DeliveryDelivered
	notice := sent
	if err := c.transport.Deliver(ctx, res.recipient(), res.notification()); err != nil {
		log.Warn("recipient unreachable", "error", err)
		outcome = DeliveryUnreachable
		notice = undelivered
	}
	c.notify(ctx, log, to, notice)
	log.Info("flow completed", "outcome", outcome.String())
	return outcome, nil
}

func (c *Coordinator) notify(ctx context.Context, log *slog.Logger, to domain.ReplyTarget, text string) {
	if err := c.transport.Reply(ctx, to, domain.Prompt{Text: text}); err != nil {
		log.Error("failed to notify sender", "error", err)
	}
}
