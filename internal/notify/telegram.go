package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/tbourn/go-comment-moderation/internal/config"
	"github.com/tbourn/go-comment-moderation/internal/domain"
)

// SecretHeader carries the webhook secret on inbound Telegram updates.
const SecretHeader = "X-Telegram-Bot-Api-Secret-Token"

// Telegram posts moderation prompts to a single chat through the Bot API.
// Message handles are encoded as "chatID:messageID".
type Telegram struct {
	bot    *tgbotapi.BotAPI
	chatID int64
}

// NewTelegram connects to the Bot API (one getMe round trip) using cfg.
func NewTelegram(cfg config.TelegramConfig) (*Telegram, error) {
	if !cfg.Enabled() {
		return nil, ErrDisabled
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	endpoint := cfg.APIEndpoint
	if endpoint == "" {
		endpoint = tgbotapi.APIEndpoint
	}
	bot, err := tgbotapi.NewBotAPIWithClient(cfg.BotToken, endpoint, &http.Client{Timeout: timeout})
	if err != nil {
		return nil, fmt.Errorf("telegram: connect: %w", err)
	}
	return &Telegram{bot: bot, chatID: cfg.ChatID}, nil
}

// ChatID is the moderator chat this gateway posts to.
func (t *Telegram) ChatID() int64 { return t.chatID }

// PostModerationRequest sends req as a plain-text message with one inline
// button row.
func (t *Telegram) PostModerationRequest(ctx context.Context, req Request) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	msg := tgbotapi.NewMessage(t.chatID, req.Text)
	if len(req.Actions) > 0 {
		row := make([]tgbotapi.InlineKeyboardButton, 0, len(req.Actions))
		for _, a := range req.Actions {
			row = append(row, tgbotapi.NewInlineKeyboardButtonData(a.Label, a.Payload))
		}
		msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(row)
	}
	sent, err := t.bot.Send(msg)
	if err != nil {
		return "", fmt.Errorf("telegram: send: %w", err)
	}
	chatID := t.chatID
	if sent.Chat != nil {
		chatID = sent.Chat.ID
	}
	return EncodeRef(chatID, sent.MessageID), nil
}

// EditMessage replaces the text of ref. The inline keyboard is dropped
// because the edit carries no reply markup.
func (t *Telegram) EditMessage(ctx context.Context, ref, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	chatID, msgID, err := DecodeRef(ref)
	if err != nil {
		return err
	}
	_, err = t.bot.Request(tgbotapi.NewEditMessageText(chatID, msgID, text))
	if err != nil && strings.Contains(err.Error(), "message is not modified") {
		return nil
	}
	if err != nil {
		return fmt.Errorf("telegram: edit: %w", err)
	}
	return nil
}

// Acknowledge answers a callback query with a short toast.
func (t *Telegram) Acknowledge(ctx context.Context, eventID, text string) error {
	if eventID == "" {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := t.bot.Request(tgbotapi.NewCallback(eventID, text)); err != nil {
		return fmt.Errorf("telegram: answer callback: %w", err)
	}
	return nil
}

// SetWebhook registers url as the update endpoint. A non-empty secret is
// echoed by Telegram in SecretHeader on every delivery.
func (t *Telegram) SetWebhook(url, secret string) error {
	params := tgbotapi.Params{}
	params["url"] = url
	params.AddNonEmpty("secret_token", secret)
	params["allowed_updates"] = `["callback_query"]`
	if _, err := t.bot.MakeRequest("setWebhook", params); err != nil {
		return fmt.Errorf("telegram: setWebhook: %w", err)
	}
	return nil
}

// EncodeRef renders a message handle.
func EncodeRef(chatID int64, messageID int) string {
	return strconv.FormatInt(chatID, 10) + ":" + strconv.Itoa(messageID)
}

// DecodeRef parses a handle produced by EncodeRef.
func DecodeRef(ref string) (chatID int64, messageID int, err error) {
	c, m, ok := strings.Cut(ref, ":")
	if !ok {
		return 0, 0, fmt.Errorf("telegram: bad message ref %q", ref)
	}
	if chatID, err = strconv.ParseInt(c, 10, 64); err != nil {
		return 0, 0, fmt.Errorf("telegram: bad message ref %q", ref)
	}
	if messageID, err = strconv.Atoi(m); err != nil {
		return 0, 0, fmt.Errorf("telegram: bad message ref %q", ref)
	}
	return chatID, messageID, nil
}

// ErrNotDecision is returned by DecodeUpdate for updates that carry no
// callback query (plain messages, edits, joins).
var ErrNotDecision = errors.New("telegram: update carries no callback query")

// DecodeUpdate reads a webhook body and extracts the moderator decision.
// chatID is the chat the button was pressed in, or 0 when unknown.
func DecodeUpdate(r io.Reader) (ev domain.DecisionEvent, chatID int64, err error) {
	var u tgbotapi.Update
	if err := json.NewDecoder(io.LimitReader(r, 1<<20)).Decode(&u); err != nil {
		return domain.DecisionEvent{}, 0, fmt.Errorf("telegram: decode update: %w", err)
	}
	cq := u.CallbackQuery
	if cq == nil {
		return domain.DecisionEvent{}, 0, ErrNotDecision
	}
	ev = domain.DecisionEvent{EventID: cq.ID, Payload: cq.Data}
	if cq.Message != nil {
		if cq.Message.Chat != nil {
			chatID = cq.Message.Chat.ID
		}
		ev.MessageRef = EncodeRef(chatID, cq.Message.MessageID)
	}
	return ev, chatID, nil
}
