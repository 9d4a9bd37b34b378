package usecase

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/looplab/fsm"

	"github.com/zerorich/rating-bot/internal/domain"
)

// Event names double as the prefix of menu choice payloads ("<event>:<value>").
const (
	eventStartRating  = "start_rating"
	eventStartMessage = "send_message"
	eventRelationship = "relationship"
	eventKnows        = "knows"
	eventWriteMessage = "write_message"
	eventSkipMessage  = "skip_message"
	eventMessageText  = "message_text"
	eventAnonymity    = "send"
	eventDirectText   = "direct_text"

	answerYes          = "yes"
	answerNo           = "no"
	anonymityAnonymous = "anonymous"
	anonymityNamed     = "named"
)

type inputShape int

const (
	shapeChoice inputShape = iota + 1
	shapeText
)

// transition is one edge of the flow: the only input shape accepted in from,
// the single successor, and how the input value is merged into the state.
type transition struct {
	event string
	from  domain.Step
	to    domain.Step
	shape inputShape
	apply func(st *domain.ConversationState, value string) error
}

// ratingSteps lists the five score steps followed by the step that comes after them.
var ratingSteps = []domain.Step{
	domain.StepRatingAppearance,
	domain.StepRatingCharacter,
	domain.StepRatingIntelligence,
	domain.StepRatingHumor,
	domain.StepRatingTrust,
	domain.StepWantsRelationship,
}

var ratingStepAttribute = map[domain.Step]domain.Attribute{
	domain.StepRatingAppearance:   domain.Appearance,
	domain.StepRatingCharacter:    domain.Character,
	domain.StepRatingIntelligence: domain.Intelligence,
	domain.StepRatingHumor:        domain.Humor,
	domain.StepRatingTrust:        domain.Trust,
}

func rateEvent(a domain.Attribute) string {
	return "rate_" + string(a)
}

func choiceData(event, value string) string {
	return event + ":" + value
}

// flowSeparator joins a choice payload and the id of the flow whose menu
// carries it, e.g. "rate_humor:7@1f0c9a2b".
const flowSeparator = "@"

func flowChoice(flowID, data string) string {
	if flowID == "" {
		return data
	}
	return data + flowSeparator + flowID
}

var newFlowID = func() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

func flowTransitions() []transition {
	ts := []transition{
		{event: eventStartRating, from: domain.StepChoosingAction, to: domain.StepRatingAppearance, shape: shapeChoice, apply: resetRatings},
		{event: eventStartMessage, from: domain.StepChoosingAction, to: domain.StepWaitingForMessage, shape: shapeChoice},
		{event: eventDirectText, from: domain.StepWaitingForMessage, to: domain.StepComplete, shape: shapeText, apply: setMessage},
	}
	for i, a := range domain.Attributes {
		ts = append(ts, transition{event: rateEvent(a), from: ratingSteps[i], to: ratingSteps[i+1], shape: shapeChoice, apply: setScore(a)})
	}
	return append(ts,
		transition{event: eventRelationship, from: domain.StepWantsRelationship, to: domain.StepKnowsPersonally, shape: shapeChoice,
			apply: setAnswer(func(st *domain.ConversationState) **bool { return &st.WantsRelationship })},
		transition{event: eventKnows, from: domain.StepKnowsPersonally, to: domain.StepAskingForMessage, shape: shapeChoice,
			apply: setAnswer(func(st *domain.ConversationState) **bool { return &st.KnowsPersonally })},
		transition{event: eventWriteMessage, from: domain.StepAskingForMessage, to: domain.StepWritingMessage, shape: shapeChoice},
		transition{event: eventSkipMessage, from: domain.StepAskingForMessage, to: domain.StepChoosingAnonymity, shape: shapeChoice, apply: clearMessage},
		transition{event: eventMessageText, from: domain.StepWritingMessage, to: domain.StepChoosingAnonymity, shape: shapeText, apply: setMessage},
		transition{event: eventAnonymity, from: domain.StepChoosingAnonymity, to: domain.StepComplete, shape: shapeChoice, apply: setAnonymity},
	)
}

// machine resolves inbound events against the transition table and lets
// looplab/fsm enforce that the event is legal from the current step.
type machine struct {
	byEvent    map[string]transition
	textByStep map[domain.Step]transition
	events     fsm.Events
}

func newMachine(ts []transition) *machine {
	m := &machine{
		byEvent:    make(map[string]transition, len(ts)),
		textByStep: make(map[domain.Step]transition),
	}
	for _, t := range ts {
		m.byEvent[t.event] = t
		if t.shape == shapeText {
			m.textByStep[t.from] = t
		}
		m.events = append(m.events, fsm.EventDesc{Name: t.event, Src: []string{string(t.from)}, Dst: string(t.to)})
	}
	return m
}

// lookup resolves ev against the current state. A choice is only accepted
// from the menu of the flow that currently holds the conversation.
func (m *machine) lookup(st *domain.ConversationState, ev domain.Event) (transition, string, bool) {
	switch ev.Kind {
	case domain.EventChoice:
		payload, flowID, _ := strings.Cut(ev.Data, flowSeparator)
		if flowID != st.FlowID {
			return transition{}, "", false
		}
		name, value, _ := strings.Cut(payload, ":")
		t, ok := m.byEvent[name]
		if !ok || t.shape != shapeChoice {
			return transition{}, "", false
		}
		return t, value, true
	case domain.EventText:
		t, ok := m.textByStep[st.Step]
		return t, ev.Text, ok
	}
	return transition{}, "", false
}

// advance applies ev to st. Any input not legal for the current step is
// rejected with ErrorProtocol and st must then be discarded by the caller.
func (m *machine) advance(ctx context.Context, st *domain.ConversationState, ev domain.Event) error {
	t, value, ok := m.lookup(st, ev)
	if !ok {
		return newError(ErrorProtocol, "unexpected_input", nil)
	}
	f := fsm.NewFSM(string(st.Step), m.events, fsm.Callbacks{})
	if err := f.Event(ctx, t.event); err != nil {
		return newError(ErrorProtocol, "illegal_transition", err)
	}
	if t.apply != nil {
		if err := t.apply(st, value); err != nil {
			return newError(ErrorProtocol, "invalid_value", err)
		}
	}
	st.Step = domain.Step(f.Current())
	return nil
}

func resetRatings(st *domain.ConversationState, _ string) error {
	st.Ratings = make(map[domain.Attribute]int, len(domain.Attributes))
	st.WantsRelationship = nil
	st.KnowsPersonally = nil
	st.Message = nil
	st.Anonymous = nil
	return nil
}

func setScore(a domain.Attribute) func(*domain.ConversationState, string) error {
	return func(st *domain.ConversationState, value string) error {
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("score %q: %w", value, err)
		}
		if n < domain.MinScore || n > domain.MaxScore {
			return fmt.Errorf("score %d out of range", n)
		}
		if st.Ratings == nil {
			st.Ratings = make(map[domain.Attribute]int, len(domain.Attributes))
		}
		st.Ratings[a] = n
		return nil
	}
}

func setAnswer(field func(*domain.ConversationState) **bool) func(*domain.ConversationState, string) error {
	return func(st *domain.ConversationState, value string) error {
		var b bool
		switch value {
		case answerYes:
			b = true
		case answerNo:
		default:
			return fmt.Errorf("answer %q is not yes/no", value)
		}
		*field(st) = &b
		return nil
	}
}

func setMessage(st *domain.ConversationState, value string) error {
	if strings.TrimSpace(value) == "" {
		return errors.New("empty message")
	}
	st.Message = &value
	return nil
}

func clearMessage(st *domain.ConversationState, _ string) error {
	st.Message = nil
	return nil
}

func setAnonymity(st *domain.ConversationState, value string) error {
	var anonymous bool
	switch value {
	case anonymityAnonymous:
		anonymous = true
	case anonymityNamed:
	default:
		return fmt.Errorf("anonymity %q is not recognised", value)
	}
	st.Anonymous = &anonymous
	return nil
}
