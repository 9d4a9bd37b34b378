package usecase

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zerorich/rating-bot/internal/domain"
)

var sampleScores = map[domain.Attribute]int{
	domain.Appearance:   8,
	domain.Character:    7,
	domain.Intelligence: 9,
	domain.Humor:        6,
	domain.Trust:        10,
}

func TestNewBot_ValidatesDependencies(t *testing.T) {
	h := newHarness(t)
	_, err := NewBot(nil, h.states, h.transport, BotConfig{EntryURL: entryURL}, nil)
	require.Error(t, err)
	_, err = NewBot(h.repo, nil, h.transport, BotConfig{EntryURL: entryURL}, nil)
	require.Error(t, err)
	_, err = NewBot(h.repo, h.states, nil, BotConfig{EntryURL: entryURL}, nil)
	require.Error(t, err)
	_, err = NewBot(h.repo, h.states, h.transport, BotConfig{}, nil)
	require.Error(t, err)
}

func TestStart_ShowsLinkMenu(t *testing.T) {
	h := newHarness(t)

	r := h.transport.lastReply(t)
	link := LinkURL(entryURL, h.token)
	require.Equal(t, entryURL+"?start=send_"+h.token, link)
	require.Contains(t, r.prompt.Text, link)
	require.Equal(t, link, r.prompt.Choices[0][0].URL)
	require.Equal(t, dataMyMessages, r.prompt.Choices[1][0].Data)
	require.Equal(t, dataMyRatings, r.prompt.Choices[2][0].Data)
}

func TestOpenLink_UnknownTokenCreatesNoState(t *testing.T) {
	h := newHarness(t)

	err := h.bot.HandleEvent(context.Background(), domain.Event{
		Kind: domain.EventCommand, ChatID: visitorID, SenderID: visitorID, Command: "start", Argument: "send_nope",
	})
	require.NoError(t, err)
	require.Equal(t, textInvalidLink, h.transport.lastReply(t).prompt.Text)
	_, ok := h.states.Get(domain.ConversationID(visitorID))
	require.False(t, ok)
}

func TestOpenLink_EntersChoosingAction(t *testing.T) {
	h := newHarness(t)
	h.open()

	require.Equal(t, domain.StepChoosingAction, h.step())
	r := h.transport.lastReply(t)
	require.Contains(t, r.prompt.Text, "@owner")
	require.Equal(t, eventStartRating, r.prompt.Choices[0][0].Data)
	require.Equal(t, eventStartMessage, r.prompt.Choices[1][0].Data)
}

func TestRatingSteps_SummaryListsAnsweredAttributesInOrder(t *testing.T) {
	for v := domain.MinScore; v <= domain.MaxScore; v++ {
		t.Run(strconv.Itoa(v), func(t *testing.T) {
			h := newHarness(t)
			h.open()
			h.mustChoose(eventStartRating)
			require.Empty(t, scoreLines(h.transport.lastReply(t).prompt.Text))

			var want []string
			for i, a := range domain.Attributes {
				value := (v+i-1)%domain.MaxScore + 1
				h.mustChoose(choiceData(rateEvent(a), strconv.Itoa(value)))

				at := attributeTexts[a]
				want = append(want, fmt.Sprintf("%s %s: %d/10 ✅", at.emoji, at.label, value))
				r := h.transport.lastReply(t)
				require.Equal(t, want, scoreLines(r.prompt.Text))
				require.Equal(t, menuMsgID, r.to.MessageID)
			}
			require.Equal(t, domain.StepWantsRelationship, h.step())
		})
	}
}

func TestRatingStep_OffersTenChoices(t *testing.T) {
	h := newHarness(t)
	h.open()
	h.mustChoose(eventStartRating)

	var data []string
	for _, row := range h.transport.lastReply(t).prompt.Choices {
		for _, c := range row {
			data = append(data, c.Data)
		}
	}
	require.Len(t, data, 10)
	require.Equal(t, flowChoice(h.flowID(), "rate_appearance:1"), data[0])
	require.Equal(t, flowChoice(h.flowID(), "rate_appearance:10"), data[9])
}

func TestFullRatingFlow_AnonymousWithoutMessage(t *testing.T) {
	h := newHarness(t)
	h.open()
	h.rateAll(sampleScores)
	h.mustChoose(choiceData(eventRelationship, answerYes))
	h.mustChoose(choiceData(eventKnows, answerNo))
	h.mustChoose(eventSkipMessage)
	require.Equal(t, domain.StepChoosingAnonymity, h.step())
	h.mustChoose(choiceData(eventAnonymity, anonymityAnonymous))

	ratings, err := h.repo.ListRatings(context.Background(), ownerID, 10)
	require.NoError(t, err)
	require.Len(t, ratings, 1)
	r := ratings[0]
	require.True(t, r.Anonymous)
	require.Nil(t, r.Message)
	require.Empty(t, r.SenderDisplayName)
	require.Equal(t, domain.Scores{Appearance: 8, Character: 7, Intelligence: 9, Humor: 6, Trust: 10}, r.Scores)
	require.True(t, r.WantsRelationship)
	require.False(t, r.KnowsPersonally)
	require.Equal(t, visitorID, r.SenderUserID)
	require.Equal(t, ownerID, r.RecipientUserID)
	require.NotEmpty(t, r.ID)
	require.False(t, r.SentAt.IsZero())

	require.Len(t, h.transport.deliveries, 1)
	require.Equal(t, ownerID, h.transport.deliveries[0].userID)
	require.Contains(t, h.transport.deliveries[0].text, "Аноним")
	require.Equal(t, textRatingSent, h.transport.lastReply(t).prompt.Text)

	_, ok := h.states.Get(domain.ConversationID(visitorID))
	require.False(t, ok)
}

func TestFullRatingFlow_NamedWithMessage(t *testing.T) {
	h := newHarness(t)
	h.open()
	h.rateAll(sampleScores)
	h.mustChoose(choiceData(eventRelationship, answerNo))
	h.mustChoose(choiceData(eventKnows, answerYes))
	h.mustChoose(eventWriteMessage)
	require.Equal(t, domain.StepWritingMessage, h.step())

	require.NoError(t, h.text("hello"))
	require.Equal(t, domain.StepChoosingAnonymity, h.step())
	require.Zero(t, h.transport.lastReply(t).to.MessageID)

	h.mustChoose(choiceData(eventAnonymity, anonymityNamed))

	ratings, err := h.repo.ListRatings(context.Background(), ownerID, 10)
	require.NoError(t, err)
	require.Len(t, ratings, 1)
	require.NotNil(t, ratings[0].Message)
	require.Equal(t, "hello", *ratings[0].Message)
	require.False(t, ratings[0].Anonymous)
	require.Equal(t, "visitor", ratings[0].SenderDisplayName)
	require.Contains(t, h.transport.deliveries[0].text, "@visitor")
	require.Contains(t, h.transport.deliveries[0].text, "hello")
}

func TestSummary_ShowsBooleansOnlyOnceAnswered(t *testing.T) {
	h := newHarness(t)
	h.open()
	h.rateAll(sampleScores)
	require.NotContains(t, h.transport.lastReply(t).prompt.Text, "Хочет встречаться:")

	h.mustChoose(choiceData(eventRelationship, answerYes))
	text := h.transport.lastReply(t).prompt.Text
	require.Contains(t, text, "Хочет встречаться: Да ✅")
	require.NotContains(t, text, "Знакомы лично:")

	h.mustChoose(choiceData(eventKnows, answerNo))
	require.Contains(t, h.transport.lastReply(t).prompt.Text, "Знакомы лично: Нет ✅")
}

func TestStaleOrMalformedInputIsIgnored(t *testing.T) {
	h := newHarness(t)
	h.open()
	h.mustChoose(eventStartRating)
	h.mustChoose(choiceData(rateEvent(domain.Appearance), "5"))
	before, _ := h.states.Get(domain.ConversationID(visitorID))
	replies := h.transport.replyCount()

	for _, data := range []string{
		choiceData(rateEvent(domain.Appearance), "9"),
		choiceData(rateEvent(domain.Character), "11"),
		choiceData(rateEvent(domain.Character), "0"),
		choiceData(rateEvent(domain.Character), "x"),
		choiceData(eventRelationship, answerYes),
		choiceData(eventAnonymity, anonymityAnonymous),
		eventSkipMessage,
		"garbage",
	} {
		require.NoError(t, h.choose(data), data)
	}
	require.NoError(t, h.text("free text out of place"))

	after, _ := h.states.Get(domain.ConversationID(visitorID))
	require.Equal(t, before.Step, after.Step)
	require.Equal(t, before.Ratings, after.Ratings)
	require.Equal(t, replies, h.transport.replyCount())
}

func TestInputWithoutConversationIsIgnored(t *testing.T) {
	h := newHarness(t)
	replies := h.transport.replyCount()

	require.NoError(t, h.choose(choiceData(rateEvent(domain.Trust), "3")))
	require.NoError(t, h.text("hi"))
	require.Equal(t, replies, h.transport.replyCount())
}

func TestAnonymityPressedTwicePersistsOnce(t *testing.T) {
	h := newHarness(t)
	h.open()
	h.rateAll(sampleScores)
	h.mustChoose(choiceData(eventRelationship, answerYes))
	h.mustChoose(choiceData(eventKnows, answerYes))
	h.mustChoose(eventSkipMessage)
	h.mustChoose(choiceData(eventAnonymity, anonymityAnonymous))
	h.mustChoose(choiceData(eventAnonymity, anonymityAnonymous))

	ratings, err := h.repo.ListRatings(context.Background(), ownerID, 10)
	require.NoError(t, err)
	require.Len(t, ratings, 1)
}

func TestOpeningLinkAgainRestartsFlow(t *testing.T) {
	h := newHarness(t)
	h.open()
	h.mustChoose(eventStartRating)
	h.mustChoose(choiceData(rateEvent(domain.Appearance), "4"))

	h.open()
	st, ok := h.states.Get(domain.ConversationID(visitorID))
	require.True(t, ok)
	require.Equal(t, domain.StepChoosingAction, st.Step)
	require.Empty(t, st.Ratings)
}

func TestButtonsOfDiscardedFlowAreIgnored(t *testing.T) {
	h := newHarness(t)
	otherToken := h.register(300, "other")

	h.open()
	require.NoError(t, h.press(flowChoice(h.flowID(), eventStartRating), 70))
	require.NoError(t, h.press(flowChoice(h.flowID(), choiceData(rateEvent(domain.Appearance), "9")), 70))
	staleFlow := h.flowID()

	h.openLink(otherToken)
	require.NotEqual(t, staleFlow, h.flowID())
	require.NoError(t, h.press(flowChoice(h.flowID(), eventStartRating), 80))
	require.NoError(t, h.press(flowChoice(h.flowID(), choiceData(rateEvent(domain.Appearance), "2")), 80))
	replies := h.transport.replyCount()

	require.NoError(t, h.press(flowChoice(staleFlow, choiceData(rateEvent(domain.Character), "3")), 70))
	require.NoError(t, h.press(choiceData(rateEvent(domain.Character), "3"), 70))

	st, ok := h.states.Get(domain.ConversationID(visitorID))
	require.True(t, ok)
	require.Equal(t, int64(300), st.RecipientUserID)
	require.Equal(t, domain.StepRatingCharacter, st.Step)
	require.Equal(t, map[domain.Attribute]int{domain.Appearance: 2}, st.Ratings)
	require.Equal(t, replies, h.transport.replyCount())
}

func TestRenderedMenusCarryFlowID(t *testing.T) {
	h := newHarness(t)
	h.open()
	flow := h.flowID()
	require.NotEmpty(t, flow)

	for _, row := range h.transport.lastReply(t).prompt.Choices {
		for _, c := range row {
			require.True(t, strings.HasSuffix(c.Data, flowSeparator+flow), c.Data)
		}
	}
}

func TestLinkReopenedDuringDeliveryKeepsNewFlow(t *testing.T) {
	h := newHarness(t)
	h.open()
	h.rateAll(sampleScores)
	h.mustChoose(choiceData(eventRelationship, answerYes))
	h.mustChoose(choiceData(eventKnows, answerNo))
	h.mustChoose(eventSkipMessage)

	h.transport.onDeliver = func() {
		h.transport.onDeliver = nil
		h.open()
	}
	h.mustChoose(choiceData(eventAnonymity, anonymityAnonymous))

	st, ok := h.states.Get(domain.ConversationID(visitorID))
	require.True(t, ok)
	require.Equal(t, domain.StepChoosingAction, st.Step)
	require.Empty(t, st.Ratings)
}

func TestRatingPersistenceFailure_NoDeliveryAttempt(t *testing.T) {
	h := newHarness(t)
	h.repo.insertRatingErr = errors.New("write timeout")
	h.open()
	h.rateAll(sampleScores)
	h.mustChoose(choiceData(eventRelationship, answerYes))
	h.mustChoose(choiceData(eventKnows, answerNo))
	h.mustChoose(eventSkipMessage)

	err := h.choose(choiceData(eventAnonymity, anonymityAnonymous))
	require.Error(t, err)
	require.Equal(t, ErrorPersistence, CodeOf(err))

	require.Empty(t, h.transport.deliveries)
	require.Equal(t, textRatingNotSaved, h.transport.lastReply(t).prompt.Text)
	_, ok := h.states.Get(domain.ConversationID(visitorID))
	require.False(t, ok)
}

func TestRatingDeliveryFailure_RecordStillListed(t *testing.T) {
	h := newHarness(t)
	h.transport.deliverErr = errBlocked
	h.open()
	h.rateAll(sampleScores)
	h.mustChoose(choiceData(eventRelationship, answerYes))
	h.mustChoose(choiceData(eventKnows, answerNo))
	h.mustChoose(eventSkipMessage)
	h.mustChoose(choiceData(eventAnonymity, anonymityAnonymous))

	require.Len(t, h.transport.deliveries, 1)
	require.Equal(t, textRatingUndelivered, h.transport.lastReply(t).prompt.Text)
	require.NotEqual(t, textRatingNotSaved, textRatingUndelivered)

	require.NoError(t, h.bot.HandleEvent(context.Background(), domain.Event{
		Kind: domain.EventChoice, ChatID: ownerID, SenderID: ownerID, Data: dataMyRatings, MessageID: 9,
	}))
	history := h.transport.lastReply(t).prompt.Text
	require.Contains(t, history, textRatingsHeader)
	require.Contains(t, history, "Внешность: 8/10")
}

func TestDirectMessageFlow(t *testing.T) {
	h := newHarness(t)
	h.open()
	h.mustChoose(eventStartMessage)
	require.Equal(t, domain.StepWaitingForMessage, h.step())
	require.Contains(t, h.transport.lastReply(t).prompt.Text, "@owner")

	require.NoError(t, h.text("you rock"))

	msgs, err := h.repo.ListMessages(context.Background(), ownerID, 10)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	require.Equal(t, "you rock", msgs[0].Text)
	require.Equal(t, visitorID, msgs[0].SenderUserID)
	require.False(t, msgs[0].IsRead)

	require.Equal(t, []delivery{{userID: ownerID, text: "📨 Вам пришло анонимное сообщение:\n\nyou rock"}}, h.transport.deliveries)
	require.Equal(t, textMessageSent, h.transport.lastReply(t).prompt.Text)
	require.Equal(t, domain.Step(""), h.step())
}

func TestDirectMessageFlow_Failures(t *testing.T) {
	t.Run("persistence", func(t *testing.T) {
		h := newHarness(t)
		h.repo.insertMessageErr = errors.New("disk full")
		h.open()
		h.mustChoose(eventStartMessage)

		err := h.text("hi")
		require.Equal(t, ErrorPersistence, CodeOf(err))
		require.Empty(t, h.transport.deliveries)
		require.Equal(t, textMessageNotSaved, h.transport.lastReply(t).prompt.Text)
	})

	t.Run("delivery", func(t *testing.T) {
		h := newHarness(t)
		h.transport.deliverErr = errBlocked
		h.open()
		h.mustChoose(eventStartMessage)

		require.NoError(t, h.text("hi"))
		require.Equal(t, textMessageUndelivered, h.transport.lastReply(t).prompt.Text)
		msgs, err := h.repo.ListMessages(context.Background(), ownerID, 10)
		require.NoError(t, err)
		require.Len(t, msgs, 1)
	})
}

func TestDirectMessage_BlankTextIgnored(t *testing.T) {
	h := newHarness(t)
	h.open()
	h.mustChoose(eventStartMessage)

	require.NoError(t, h.text("   "))
	require.Equal(t, domain.StepWaitingForMessage, h.step())
}

func TestHistory_EmptyStates(t *testing.T) {
	h := newHarness(t)

	require.NoError(t, h.bot.HandleEvent(context.Background(), domain.Event{
		Kind: domain.EventChoice, ChatID: ownerID, SenderID: ownerID, Data: dataMyMessages, MessageID: 3,
	}))
	r := h.transport.lastReply(t)
	require.Equal(t, textNoMessages, r.prompt.Text)
	require.Equal(t, dataBack, r.prompt.Choices[0][0].Data)

	require.NoError(t, h.bot.HandleEvent(context.Background(), domain.Event{
		Kind: domain.EventChoice, ChatID: ownerID, SenderID: ownerID, Data: dataMyRatings, MessageID: 3,
	}))
	require.Equal(t, textNoRatings, h.transport.lastReply(t).prompt.Text)

	require.NoError(t, h.bot.HandleEvent(context.Background(), domain.Event{
		Kind: domain.EventChoice, ChatID: ownerID, SenderID: ownerID, Data: dataBack, MessageID: 3,
	}))
	require.Contains(t, h.transport.lastReply(t).prompt.Text, h.token)
}

func TestHistory_ListErrorIsReported(t *testing.T) {
	h := newHarness(t)
	h.repo.listErr = errors.New("timeout")

	err := h.bot.HandleEvent(context.Background(), domain.Event{
		Kind: domain.EventChoice, ChatID: ownerID, SenderID: ownerID, Data: dataMyMessages,
	})
	require.Equal(t, ErrorPersistence, CodeOf(err))
	require.Equal(t, textInternalError, h.transport.lastReply(t).prompt.Text)
}

func TestConcurrentVisitorsDoNotShareState(t *testing.T) {
	h := newHarness(t)
	other := visitorID + 1

	h.open()
	require.NoError(t, h.bot.HandleEvent(context.Background(), domain.Event{
		Kind: domain.EventCommand, ChatID: other, SenderID: other, Command: "start", Argument: StartPayloadPrefix + h.token,
	}))
	h.mustChoose(eventStartRating)
	h.mustChoose(choiceData(rateEvent(domain.Appearance), "2"))

	st, ok := h.states.Get(domain.ConversationID(other))
	require.True(t, ok)
	require.Equal(t, domain.StepChoosingAction, st.Step)
	require.Empty(t, st.Ratings)
}
