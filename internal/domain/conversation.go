package domain

import "time"

// Attribute is one of the five rated qualities.
type Attribute string

const (
	Appearance   Attribute = "appearance"
	Character    Attribute = "character"
	Intelligence Attribute = "intelligence"
	Humor        Attribute = "humor"
	Trust        Attribute = "trust"
)

// Attributes lists the rated qualities in collection and display order.
var Attributes = []Attribute{Appearance, Character, Intelligence, Humor, Trust}

const (
	MinScore = 1
	MaxScore = 10
)

// Step is the position of a conversation in its flow.
type Step string

const (
	StepChoosingAction     Step = "choosing_action"
	StepRatingAppearance   Step = "rating_appearance"
	StepRatingCharacter    Step = "rating_character"
	StepRatingIntelligence Step = "rating_intelligence"
	StepRatingHumor        Step = "rating_humor"
	StepRatingTrust        Step = "rating_trust"
	StepWantsRelationship  Step = "wants_relationship"
	StepKnowsPersonally    Step = "knows_personally"
	StepAskingForMessage   Step = "asking_for_message"
	StepWritingMessage     Step = "writing_message"
	StepChoosingAnonymity  Step = "choosing_anonymity"
	StepWaitingForMessage  Step = "waiting_for_message"
	StepComplete           Step = "complete"
)

// ConversationID keys the in-flight state of one sender interaction.
type ConversationID int64

// ConversationState is the mutable bag of answers accumulated during a flow.
// Optional answers stay nil until their step has been answered.
type ConversationState struct {
	Step Step
	// FlowID identifies one opening of a link; menus of a discarded flow
	// carry a different id.
	FlowID string

	RecipientUserID      int64
	RecipientDisplayName string

	Ratings           map[Attribute]int
	WantsRelationship *bool
	KnowsPersonally   *bool
	Message           *string
	Anonymous         *bool

	UpdatedAt time.Time
}

// Clone returns a deep copy so callers never share maps or pointers with the store.
func (s ConversationState) Clone() ConversationState {
	out := s
	if s.Ratings != nil {
		out.Ratings = make(map[Attribute]int, len(s.Ratings))
		for k, v := range s.Ratings {
			out.Ratings[k] = v
		}
	}
	out.WantsRelationship = cloneBool(s.WantsRelationship)
	out.KnowsPersonally = cloneBool(s.KnowsPersonally)
	out.Anonymous = cloneBool(s.Anonymous)
	if s.Message != nil {
		m := *s.Message
		out.Message = &m
	}
	return out
}

// Scores converts collected ratings into the persisted shape. ok is false
// until all five attributes have been answered.
func (s ConversationState) Scores() (Scores, bool) {
	for _, a := range Attributes {
		if _, ok := s.Ratings[a]; !ok {
			return Scores{}, false
		}
	}
	return Scores{
		Appearance:   s.Ratings[Appearance],
		Character:    s.Ratings[Character],
		Intelligence: s.Ratings[Intelligence],
		Humor:        s.Ratings[Humor],
		Trust:        s.Ratings[Trust],
	}, true
}

func cloneBool(b *bool) *bool {
	if b == nil {
		return nil
	}
	v := *b
	return &v
}
