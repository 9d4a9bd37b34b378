package usecase

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/zerorich/rating-bot/internal/domain"
)

// Choice payloads for menus outside the flows.
const (
	dataMyMessages = "menu_messages"
	dataMyRatings  = "menu_ratings"
	dataBack       = "menu_back"
)

const (
	textInvalidLink    = "❌ Неверная или устаревшая ссылка."
	textNoMessages     = "📭 У вас пока нет сообщений."
	textNoRatings      = "📊 У вас пока нет оценок."
	textMessagesHeader = "📨 Ваши последние сообщения:"
	textRatingsHeader  = "📊 Ваши последние оценки:"
	textInternalError  = "❌ Произошла ошибка. Попробуйте еще раз."

	textMessageSent        = "✅ Сообщение успешно отправлено!"
	textMessageUndelivered = "❌ Не удалось доставить сообщение. Возможно, пользователь заблокировал бота."
	textMessageNotSaved    = "❌ Не удалось сохранить сообщение. Попробуйте еще раз."
	textRatingSent         = "✅ Оценка успешно отправлена!"
	textRatingUndelivered  = "❌ Оценка сохранена, но не доставлена. Возможно, пользователь заблокировал бота."
	textRatingNotSaved     = "❌ Не удалось сохранить оценку. Попробуйте еще раз."

	historyTimeLayout = "02.01.2006 15:04"
	previewRunes      = 50
)

type attributeText struct {
	emoji  string
	label  string
	prompt string
}

var attributeTexts = map[domain.Attribute]attributeText{
	domain.Appearance:   {emoji: "😍", label: "Внешность", prompt: "Оцените внешность"},
	domain.Character:    {emoji: "👏", label: "Характер", prompt: "Оцените характер"},
	domain.Intelligence: {emoji: "🧠", label: "Ум", prompt: "Оцените ум"},
	domain.Humor:        {emoji: "😂", label: "Чувство юмора", prompt: "Оцените чувство юмора"},
	domain.Trust:        {emoji: "🍬", label: "Уровень доверия", prompt: "Оцените уровень доверия"},
}

func yesNo(b bool) string {
	if b {
		return "Да"
	}
	return "Нет"
}

func backMenu() [][]domain.Choice {
	return [][]domain.Choice{{{Label: "🔙 Назад", Data: dataBack}}}
}

func renderStartMenu(link string) domain.Prompt {
	return domain.Prompt{
		Text: strings.Join([]string{
			"👋 Добро пожаловать в бота анонимных сообщений и оценок!",
			"",
			"🔗 Ваша ссылка:",
			link,
			"",
			"📝 Поделитесь этой ссылкой с друзьями, чтобы получать анонимные сообщения и оценки!",
			"",
			"✨ По вашей ссылке люди смогут:",
			"• Оценить вас по различным критериям",
			"• Отправить анонимное сообщение",
			"• Выбрать, показывать ли свое имя или остаться анонимом",
		}, "\n"),
		Choices: [][]domain.Choice{
			{{Label: "📬 Моя ссылка", URL: link}},
			{{Label: "📊 Мои сообщения", Data: dataMyMessages}},
			{{Label: "📈 Мои оценки", Data: dataMyRatings}},
		},
	}
}

// summaryLines renders only the answers already present in st, in fixed order.
func summaryLines(st domain.ConversationState) []string {
	var lines []string
	for _, a := range domain.Attributes {
		v, ok := st.Ratings[a]
		if !ok {
			continue
		}
		t := attributeTexts[a]
		lines = append(lines, fmt.Sprintf("%s %s: %d/10 ✅", t.emoji, t.label, v))
	}
	if st.WantsRelationship != nil {
		lines = append(lines, fmt.Sprintf("👩‍❤️‍👨 Хочет встречаться: %s ✅", yesNo(*st.WantsRelationship)))
	}
	if st.KnowsPersonally != nil {
		lines = append(lines, fmt.Sprintf("👀 Знакомы лично: %s ✅", yesNo(*st.KnowsPersonally)))
	}
	return lines
}

func withSummary(st domain.ConversationState, question string) string {
	parts := []string{"Оценка пользователя: @" + st.RecipientDisplayName, ""}
	if lines := summaryLines(st); len(lines) > 0 {
		parts = append(parts, lines...)
		parts = append(parts, "")
	}
	parts = append(parts, question)
	return strings.Join(parts, "\n")
}

func scoreMenu(a domain.Attribute) [][]domain.Choice {
	rows := make([][]domain.Choice, 0, 2)
	row := make([]domain.Choice, 0, 5)
	for v := domain.MinScore; v <= domain.MaxScore; v++ {
		row = append(row, domain.Choice{Label: strconv.Itoa(v), Data: choiceData(rateEvent(a), strconv.Itoa(v))})
		if len(row) == 5 {
			rows = append(rows, row)
			row = make([]domain.Choice, 0, 5)
		}
	}
	return rows
}

func yesNoMenu(event string) [][]domain.Choice {
	return [][]domain.Choice{
		{{Label: "Да", Data: choiceData(event, answerYes)}},
		{{Label: "Нет", Data: choiceData(event, answerNo)}},
	}
}

// renderStep renders the prompt shown on entering step. Every choice is
// bound to the flow of st.
func renderStep(st domain.ConversationState) domain.Prompt {
	p := stepPrompt(st)
	for _, row := range p.Choices {
		for i := range row {
			if row[i].URL == "" {
				row[i].Data = flowChoice(st.FlowID, row[i].Data)
			}
		}
	}
	return p
}

func stepPrompt(st domain.ConversationState) domain.Prompt {
	switch st.Step {
	case domain.StepChoosingAction:
		return domain.Prompt{
			Text: fmt.Sprintf("👤 Вы открыли ссылку пользователя @%s.\n\nЧто вы хотите сделать?", st.RecipientDisplayName),
			Choices: [][]domain.Choice{
				{{Label: "⭐ Оценить пользователя", Data: eventStartRating}},
				{{Label: "📩 Отправить сообщение", Data: eventStartMessage}},
			},
		}
	case domain.StepWaitingForMessage:
		return domain.Prompt{
			Text: fmt.Sprintf("📩 Отправьте анонимное сообщение пользователю @%s:\n\nПросто напишите текст следующим сообщением.", st.RecipientDisplayName),
		}
	case domain.StepWantsRelationship:
		return domain.Prompt{
			Text:    withSummary(st, "👩‍❤️‍👨 Хотели бы встречаться с этим человеком?"),
			Choices: yesNoMenu(eventRelationship),
		}
	case domain.StepKnowsPersonally:
		return domain.Prompt{
			Text:    withSummary(st, "👀 Знакомы ли вы лично с этим человеком?"),
			Choices: yesNoMenu(eventKnows),
		}
	case domain.StepAskingForMessage:
		return domain.Prompt{
			Text: withSummary(st, "💬 Хотите добавить личное сообщение к оценке?"),
			Choices: [][]domain.Choice{
				{{Label: "✍️ Да, хочу написать сообщение", Data: eventWriteMessage}},
				{{Label: "➡️ Нет, отправить только оценку", Data: eventSkipMessage}},
			},
		}
	case domain.StepWritingMessage:
		return domain.Prompt{
			Text: "✍️ Напишите ваше сообщение для этого пользователя:\n\nОтправьте текст сообщения следующим сообщением.",
		}
	case domain.StepChoosingAnonymity:
		return domain.Prompt{
			Text: withSummary(st, "Как отправить оценку?"),
			Choices: [][]domain.Choice{
				{{Label: "👤 Скрыть мою личность (анонимно)", Data: choiceData(eventAnonymity, anonymityAnonymous)}},
				{{Label: "📝 Показать мое имя", Data: choiceData(eventAnonymity, anonymityNamed)}},
			},
		}
	}
	if a, ok := ratingStepAttribute[st.Step]; ok {
		return domain.Prompt{
			Text:    withSummary(st, fmt.Sprintf("%s %s (1-10):", attributeTexts[a].emoji, attributeTexts[a].prompt)),
			Choices: scoreMenu(a),
		}
	}
	return domain.Prompt{Text: textInternalError}
}

func renderMessageNotification(m domain.Message) string {
	return "📨 Вам пришло анонимное сообщение:\n\n" + m.Text
}

func renderRatingNotification(r domain.Rating) string {
	sender := "👤 Аноним"
	if !r.Anonymous {
		sender = "👤 @" + r.SenderDisplayName
	}
	lines := []string{"⭐️ Новая оценка!", "От кого: " + sender, ""}
	for _, a := range domain.Attributes {
		t := attributeTexts[a]
		lines = append(lines, fmt.Sprintf("%s %s: %d/10", t.emoji, t.label, r.Scores.Get(a)))
	}
	lines = append(lines,
		"👩‍❤️‍👨 Хочет встречаться: "+yesNo(r.WantsRelationship),
		"👀 Знакомы лично: "+yesNo(r.KnowsPersonally),
	)
	text := strings.Join(lines, "\n")
	if r.Message != nil && *r.Message != "" {
		text += "\n\n💬 Сообщение:\n" + *r.Message
	}
	return text
}

func renderMessageHistory(msgs []domain.Message) domain.Prompt {
	if len(msgs) == 0 {
		return domain.Prompt{Text: textNoMessages, Choices: backMenu()}
	}
	var b strings.Builder
	b.WriteString(textMessagesHeader + "\n\n")
	for i, m := range msgs {
		fmt.Fprintf(&b, "%d. %s\n%s\n\n", i+1, formatTime(m.SentAt), preview(m.Text))
	}
	return domain.Prompt{Text: strings.TrimRight(b.String(), "\n"), Choices: backMenu()}
}

func renderRatingHistory(ratings []domain.Rating) domain.Prompt {
	if len(ratings) == 0 {
		return domain.Prompt{Text: textNoRatings, Choices: backMenu()}
	}
	var b strings.Builder
	b.WriteString(textRatingsHeader + "\n\n")
	for i, r := range ratings {
		sender := "Аноним"
		if !r.Anonymous {
			sender = "@" + r.SenderDisplayName
		}
		fmt.Fprintf(&b, "%d. От: %s (%s)\n", i+1, sender, formatTime(r.SentAt))
		for _, a := range domain.Attributes {
			t := attributeTexts[a]
			fmt.Fprintf(&b, "   %s %s: %d/10\n", t.emoji, t.label, r.Scores.Get(a))
		}
		b.WriteString("\n")
	}
	return domain.Prompt{Text: strings.TrimRight(b.String(), "\n"), Choices: backMenu()}
}

func formatTime(t time.Time) string {
	return t.UTC().Format(historyTimeLayout)
}

func preview(s string) string {
	r := []rune(s)
	if len(r) <= previewRunes {
		return s
	}
	return string(r[:previewRunes]) + "..."
}
