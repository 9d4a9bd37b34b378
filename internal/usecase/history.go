package usecase

import (
	"context"
	"errors"

	"github.com/zerorich/rating-bot/internal/domain"
)

const (
	defaultMessagesLimit = 10
	defaultRatingsLimit  = 5
)

// History lists a user's received records, newest first. Every call re-queries.
type History struct {
	messages MessageRepository
	ratings  RatingRepository
}

func NewHistory(messages MessageRepository, ratings RatingRepository) (*History, error) {
	if messages == nil || ratings == nil {
		return nil, errors.New("usecase: repositories must not be nil")
	}
	return &History{messages: messages, ratings: ratings}, nil
}

func (h *History) RecentMessages(ctx context.Context, userID int64, limit int) ([]domain.Message, error) {
	if limit <= 0 {
		limit = defaultMessagesLimit
	}
	msgs, err := h.messages.ListMessages(ctx, userID, limit)
	if err != nil {
		return nil, newError(ErrorPersistence, "message_list_error", err)
	}
	if len(msgs) > limit {
		msgs = msgs[:limit]
	}
	return msgs, nil
}

func (h *History) RecentRatings(ctx context.Context, userID int64, limit int) ([]domain.Rating, error) {
	if limit <= 0 {
		limit = defaultRatingsLimit
	}
	ratings, err := h.ratings.ListRatings(ctx, userID, limit)
	if err != nil {
		return nil, newError(ErrorPersistence, "rating_list_error", err)
	}
	if len(ratings) > limit {
		ratings = ratings[:limit]
	}
	return ratings, nil
}
