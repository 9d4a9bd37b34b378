package usecase

import (
	"context"

	"github.com/zerorich/rating-bot/internal/domain"
)

// UserRepository persists link owners. FindUserBy* return domain.ErrNotFound
// for unknown keys; InsertUser returns domain.ErrAlreadyExists when either the
// user id or the link token is taken.
type UserRepository interface {
	FindUserByID(ctx context.Context, userID int64) (domain.User, error)
	FindUserByLinkToken(ctx context.Context, token string) (domain.User, error)
	InsertUser(ctx context.Context, u domain.User) error
}

// MessageRepository persists anonymous messages. ListMessages returns newest first.
type MessageRepository interface {
	InsertMessage(ctx context.Context, m domain.Message) error
	ListMessages(ctx context.Context, recipientUserID int64, limit int) ([]domain.Message, error)
}

// RatingRepository persists ratings. ListRatings returns newest first.
type RatingRepository interface {
	InsertRating(ctx context.Context, r domain.Rating) error
	ListRatings(ctx context.Context, recipientUserID int64, limit int) ([]domain.Rating, error)
}

// Repository is implemented by every storage backend.
type Repository interface {
	UserRepository
	MessageRepository
	RatingRepository
}

// Transport sends prompts back into a conversation and delivers
// notifications to arbitrary users. Deliver fails when the recipient is
// unreachable.
type Transport interface {
	Reply(ctx context.Context, to domain.ReplyTarget, p domain.Prompt) error
	Deliver(ctx context.Context, userID int64, text string) error
}

// StateStore holds in-flight conversation state. Update is atomic per key and
// drops the state in the same step when it reaches domain.StepComplete.
type StateStore interface {
	Start(id domain.ConversationID, initial domain.ConversationState)
	Get(id domain.ConversationID) (domain.ConversationState, bool)
	Update(id domain.ConversationID, fn func(*domain.ConversationState) error) (domain.ConversationState, error)
	Clear(id domain.ConversationID)
}
