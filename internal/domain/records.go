package domain

import "time"

// Message is a persisted anonymous text message.
type Message struct {
	ID              string
	RecipientUserID int64
	SenderUserID    int64
	Text            string
	SentAt          time.Time
	IsRead          bool
}

// Scores holds the five attribute ratings, each in [MinScore, MaxScore].
type Scores struct {
	Appearance   int
	Character    int
	Intelligence int
	Humor        int
	Trust        int
}

// Get returns the score of a single attribute.
func (s Scores) Get(a Attribute) int {
	switch a {
	case Appearance:
		return s.Appearance
	case Character:
		return s.Character
	case Intelligence:
		return s.Intelligence
	case Humor:
		return s.Humor
	case Trust:
		return s.Trust
	}
	return 0
}

// Rating is a persisted rating. SenderDisplayName is empty for anonymous ratings.
type Rating struct {
	ID                string
	SenderUserID      int64
	SenderDisplayName string
	RecipientUserID   int64
	Anonymous         bool
	Scores            Scores
	WantsRelationship bool
	KnowsPersonally   bool
	Message           *string
	SentAt            time.Time
}
