package usecase

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zerorich/rating-bot/internal/domain"
	"github.com/zerorich/rating-bot/internal/repository/memory"
	"github.com/zerorich/rating-bot/internal/state"
)

const (
	ownerID   int64 = 100
	visitorID int64 = 200
	menuMsgID       = 55
	entryURL        = "https://t.me/rate_me_bot"
)

type sentReply struct {
	to     domain.ReplyTarget
	prompt domain.Prompt
}

type delivery struct {
	userID int64
	text   string
}

type fakeTransport struct {
	mu         sync.Mutex
	replies    []sentReply
	deliveries []delivery
	deliverErr error
	replyErr   error
	// onDeliver runs after a delivery is recorded, outside the lock.
	onDeliver func()
}

func (f *fakeTransport) Reply(_ context.Context, to domain.ReplyTarget, p domain.Prompt) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replies = append(f.replies, sentReply{to: to, prompt: p})
	return f.replyErr
}

func (f *fakeTransport) Deliver(_ context.Context, userID int64, text string) error {
	f.mu.Lock()
	f.deliveries = append(f.deliveries, delivery{userID: userID, text: text})
	err, hook := f.deliverErr, f.onDeliver
	f.mu.Unlock()
	if hook != nil {
		hook()
	}
	return err
}

func (f *fakeTransport) lastReply(t *testing.T) sentReply {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.replies, "expected at least one reply")
	return f.replies[len(f.replies)-1]
}

func (f *fakeTransport) replyCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.replies)
}

// failingRepo wraps the memory backend and fails selected writes.
type failingRepo struct {
	*memory.Store
	insertMessageErr error
	insertRatingErr  error
	listErr          error
}

func (r *failingRepo) InsertMessage(ctx context.Context, m domain.Message) error {
	if r.insertMessageErr != nil {
		return r.insertMessageErr
	}
	return r.Store.InsertMessage(ctx, m)
}

func (r *failingRepo) InsertRating(ctx context.Context, rt domain.Rating) error {
	if r.insertRatingErr != nil {
		return r.insertRatingErr
	}
	return r.Store.InsertRating(ctx, rt)
}

func (r *failingRepo) ListMessages(ctx context.Context, id int64, limit int) ([]domain.Message, error) {
	if r.listErr != nil {
		return nil, r.listErr
	}
	return r.Store.ListMessages(ctx, id, limit)
}

var errBlocked = errors.New("Forbidden: bot was blocked by the user")

type harness struct {
	t         *testing.T
	bot       *Bot
	repo      *failingRepo
	states    *state.Store
	transport *fakeTransport
	token     string
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		t:         t,
		repo:      &failingRepo{Store: memory.NewStore()},
		states:    state.NewStore(),
		transport: &fakeTransport{},
	}
	bot, err := NewBot(h.repo, h.states, h.transport, BotConfig{EntryURL: entryURL}, discardLogger())
	require.NoError(t, err)
	h.bot = bot
	h.token = h.register(ownerID, "owner")
	return h
}

// register runs /start for a user and returns their link token.
func (h *harness) register(userID int64, name string) string {
	h.t.Helper()
	require.NoError(h.t, h.bot.HandleEvent(context.Background(), domain.Event{
		Kind: domain.EventCommand, ChatID: userID, SenderID: userID, SenderName: name, Command: "start",
	}))
	u, err := h.repo.FindUserByID(context.Background(), userID)
	require.NoError(h.t, err)
	return u.LinkToken
}

func (h *harness) open() {
	h.t.Helper()
	h.openLink(h.token)
}

func (h *harness) openLink(token string) {
	h.t.Helper()
	require.NoError(h.t, h.bot.HandleEvent(context.Background(), domain.Event{
		Kind: domain.EventCommand, ChatID: visitorID, SenderID: visitorID, SenderName: "visitor",
		Command: "start", Argument: StartPayloadPrefix + token,
	}))
}

// choose presses a button on the menu of the flow currently in progress.
func (h *harness) choose(data string) error {
	st, _ := h.states.Get(domain.ConversationID(visitorID))
	return h.press(flowChoice(st.FlowID, data), menuMsgID)
}

// press sends raw button data as if pressed on message msgID.
func (h *harness) press(data string, msgID int) error {
	return h.bot.HandleEvent(context.Background(), domain.Event{
		Kind: domain.EventChoice, ChatID: visitorID, SenderID: visitorID, SenderName: "visitor",
		Data: data, MessageID: msgID,
	})
}

func (h *harness) flowID() string {
	st, _ := h.states.Get(domain.ConversationID(visitorID))
	return st.FlowID
}

func (h *harness) mustChoose(data string) {
	h.t.Helper()
	require.NoError(h.t, h.choose(data))
}

func (h *harness) text(s string) error {
	return h.bot.HandleEvent(context.Background(), domain.Event{
		Kind: domain.EventText, ChatID: visitorID, SenderID: visitorID, SenderName: "visitor", Text: s,
	})
}

func (h *harness) step() domain.Step {
	st, ok := h.states.Get(domain.ConversationID(visitorID))
	if !ok {
		return ""
	}
	return st.Step
}

// rateAll walks the five score steps with the given values.
func (h *harness) rateAll(values map[domain.Attribute]int) {
	h.t.Helper()
	h.mustChoose(eventStartRating)
	for _, a := range domain.Attributes {
		h.mustChoose(choiceData(rateEvent(a), strconv.Itoa(values[a])))
	}
}

// scoreLines extracts the checked score lines of a rendered summary.
func scoreLines(text string) []string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		if strings.HasSuffix(line, "/10 ✅") {
			out = append(out, line)
		}
	}
	return out
}
