package mongostore

import (
	"time"

	"github.com/zerorich/rating-bot/internal/domain"
)

type userDoc struct {
	UserID    int64     `bson:"user_id"`
	Username  string    `bson:"username"`
	LinkID    string    `bson:"link_id"`
	CreatedAt time.Time `bson:"created_at"`
}

func newUserDoc(u domain.User) userDoc {
	return userDoc{
		UserID:    u.UserID,
		Username:  u.DisplayName,
		LinkID:    u.LinkToken,
		CreatedAt: toStored(u.CreatedAt),
	}
}

func (d userDoc) toDomain() domain.User {
	return domain.User{
		UserID:      d.UserID,
		DisplayName: d.Username,
		LinkToken:   d.LinkID,
		CreatedAt:   d.CreatedAt,
	}
}

// _id carries the record id so a replayed insert hits the primary key.
type messageDoc struct {
	ID              string    `bson:"_id"`
	RecipientUserID int64     `bson:"recipient_user_id"`
	SenderUserID    int64     `bson:"sender_user_id"`
	Text            string    `bson:"message_text"`
	Timestamp       time.Time `bson:"timestamp"`
	IsRead          bool      `bson:"is_read"`
}

func newMessageDoc(m domain.Message) messageDoc {
	return messageDoc{
		ID:              m.ID,
		RecipientUserID: m.RecipientUserID,
		SenderUserID:    m.SenderUserID,
		Text:            m.Text,
		Timestamp:       toStored(m.SentAt),
		IsRead:          m.IsRead,
	}
}

func (d messageDoc) toDomain() domain.Message {
	return domain.Message{
		ID:              d.ID,
		RecipientUserID: d.RecipientUserID,
		SenderUserID:    d.SenderUserID,
		Text:            d.Text,
		SentAt:          d.Timestamp,
		IsRead:          d.IsRead,
	}
}

type scoresDoc struct {
	Appearance   int `bson:"appearance"`
	Character    int `bson:"character"`
	Intelligence int `bson:"intelligence"`
	Humor        int `bson:"humor"`
	Trust        int `bson:"trust"`
}

type ratingDoc struct {
	ID                string    `bson:"_id"`
	FromUserID        int64     `bson:"from_user_id"`
	FromUsername      string    `bson:"from_username,omitempty"`
	ToUserID          int64     `bson:"to_user_id"`
	Anonymous         bool      `bson:"anonymous"`
	Ratings           scoresDoc `bson:"ratings"`
	WantsRelationship bool      `bson:"wants_relationship"`
	KnowsPersonally   bool      `bson:"knows_personally"`
	Message           *string   `bson:"message"`
	Timestamp         time.Time `bson:"timestamp"`
}

func newRatingDoc(r domain.Rating) ratingDoc {
	return ratingDoc{
		ID:           r.ID,
		FromUserID:   r.SenderUserID,
		FromUsername: r.SenderDisplayName,
		ToUserID:     r.RecipientUserID,
		Anonymous:    r.Anonymous,
		Ratings: scoresDoc{
			Appearance:   r.Scores.Appearance,
			Character:    r.Scores.Character,
			Intelligence: r.Scores.Intelligence,
			Humor:        r.Scores.Humor,
			Trust:        r.Scores.Trust,
		},
		WantsRelationship: r.WantsRelationship,
		KnowsPersonally:   r.KnowsPersonally,
		Message:           r.Message,
		Timestamp:         toStored(r.SentAt),
	}
}

func (d ratingDoc) toDomain() domain.Rating {
	return domain.Rating{
		ID:                d.ID,
		SenderUserID:      d.FromUserID,
		SenderDisplayName: d.FromUsername,
		RecipientUserID:   d.ToUserID,
		Anonymous:         d.Anonymous,
		Scores: domain.Scores{
			Appearance:   d.Ratings.Appearance,
			Character:    d.Ratings.Character,
			Intelligence: d.Ratings.Intelligence,
			Humor:        d.Ratings.Humor,
			Trust:        d.Ratings.Trust,
		},
		WantsRelationship: d.WantsRelationship,
		KnowsPersonally:   d.KnowsPersonally,
		Message:           d.Message,
		SentAt:            d.Timestamp,
	}
}
