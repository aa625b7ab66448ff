package channel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"topicrelay/internal/domain"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const (
	telegramMaxMsgLen     = 4000
	telegramPollRetryWait = 3 * time.Second
	telegramParseMode     = tgbotapi.ModeMarkdown
)

// mediaMethods maps a media kind to its send method and file parameter.
var mediaMethods = map[domain.MediaKind][2]string{
	domain.MediaPhoto:     {"sendPhoto", "photo"},
	domain.MediaVideo:     {"sendVideo", "video"},
	domain.MediaDocument:  {"sendDocument", "document"},
	domain.MediaAudio:     {"sendAudio", "audio"},
	domain.MediaVoice:     {"sendVoice", "voice"},
	domain.MediaVideoNote: {"sendVideoNote", "video_note"},
	domain.MediaSticker:   {"sendSticker", "sticker"},
}

var (
	_ domain.Channel   = (*Telegram)(nil)
	_ domain.Deliverer = (*Telegram)(nil)
)

// Telegram polls one forum supergroup for updates and delivers into its
// topics.
type Telegram struct {
	token          string
	groupID        int64
	pollTimeout    int
	requestTimeout time.Duration
	endpoint       string
	client         tgbotapi.HTTPClient

	bot    *tgbotapi.BotAPI
	offset int
	logger *slog.Logger
}

type TelegramConfig struct {
	Token          string
	GroupID        int64
	PollTimeout    int           // long-poll seconds passed to getUpdates
	RequestTimeout time.Duration // per-send deadline
	APIEndpoint    string        // defaults to tgbotapi.APIEndpoint
	HTTPClient     *http.Client
	Logger         *slog.Logger
}

func NewTelegram(cfg TelegramConfig) *Telegram {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.APIEndpoint == "" {
		cfg.APIEndpoint = tgbotapi.APIEndpoint
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 60 * time.Second
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{
			Timeout: cfg.RequestTimeout + time.Duration(cfg.PollTimeout)*time.Second,
		}
	}
	return &Telegram{
		token:          cfg.Token,
		groupID:        cfg.GroupID,
		pollTimeout:    cfg.PollTimeout,
		requestTimeout: cfg.RequestTimeout,
		endpoint:       cfg.APIEndpoint,
		client:         cfg.HTTPClient,
		logger:         cfg.Logger,
	}
}

func (t *Telegram) Name() string { return "telegram" }

// Connect authenticates the token with getMe. Start calls it when needed.
func (t *Telegram) Connect() error {
	if t.bot != nil {
		return nil
	}
	bot, err := tgbotapi.NewBotAPIWithClient(t.token, t.endpoint, t.client)
	if err != nil {
		return fmt.Errorf("telegram bot init: %w", err)
	}
	t.bot = bot
	t.logger.Info("telegram bot connected",
		"username", bot.Self.UserName,
		"id", bot.Self.ID,
	)
	return nil
}

// BotUsername returns the authenticated bot's username, empty before Connect.
func (t *Telegram) BotUsername() string {
	if t.bot == nil {
		return ""
	}
	return t.bot.Self.UserName
}

// Start long-polls getUpdates and publishes every message to bus until ctx
// is cancelled. Poll failures are logged and retried.
func (t *Telegram) Start(ctx context.Context, bus domain.MessageBus) error {
	if err := t.Connect(); err != nil {
		return err
	}
	t.logger.Info("telegram polling started", "timeout", t.pollTimeout)

	for {
		if ctx.Err() != nil {
			t.logger.Info("telegram channel stopping")
			return nil
		}

		updates, err := t.poll(ctx)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			t.logger.Warn("telegram getUpdates failed, retrying", "err", err, "wait", telegramPollRetryWait)
			select {
			case <-ctx.Done():
			case <-time.After(telegramPollRetryWait):
			}
			continue
		}

		for _, u := range updates {
			if u.UpdateID >= t.offset {
				t.offset = u.UpdateID + 1
			}
			msg, ok := decodeMessage(u)
			if !ok {
				continue
			}
			t.logger.Debug("telegram message received",
				"update_id", msg.UpdateID,
				"chat_id", msg.VenueID,
				"thread_id", msg.ThreadID,
			)
			bus.Publish(msg)
		}
	}
}

// Stop is a no-op: polling ends when Start's context is cancelled.
func (t *Telegram) Stop() error {
	return nil
}

type forumUpdate struct {
	UpdateID int           `json:"update_id"`
	Message  *forumMessage `json:"message"`
}

// forumMessage adds the topic ID, which the bot library does not decode.
type forumMessage struct {
	tgbotapi.Message
	MessageThreadID int `json:"message_thread_id"`
}

func (t *Telegram) poll(ctx context.Context) ([]forumUpdate, error) {
	params := tgbotapi.Params{
		"allowed_updates": `["message"]`,
	}
	params.AddNonZero("offset", t.offset)
	params.AddNonZero("timeout", t.pollTimeout)

	resp, err := t.api(ctx).MakeRequest("getUpdates", params)
	if err != nil {
		return nil, err
	}
	var updates []forumUpdate
	if err := json.Unmarshal(resp.Result, &updates); err != nil {
		return nil, fmt.Errorf("decode updates: %w", err)
	}
	return updates, nil
}

func decodeMessage(u forumUpdate) (domain.InboundMessage, bool) {
	m := u.Message
	if m == nil || m.Chat == nil {
		return domain.InboundMessage{}, false
	}

	msg := domain.InboundMessage{
		UpdateID:  u.UpdateID,
		MessageID: m.MessageID,
		VenueID:   m.Chat.ID,
		ThreadID:  m.MessageThreadID,
		Text:      m.Text,
		Caption:   m.Caption,
		Timestamp: time.Unix(int64(m.Date), 0),
	}
	if m.From != nil {
		name := strings.TrimSpace(m.From.FirstName)
		if name == "" {
			name = m.From.UserName
		}
		msg.Sender = &domain.Sender{ID: m.From.ID, DisplayName: name, Username: m.From.UserName}
	}

	if n := len(m.Photo); n > 0 {
		msg.Attachments.Photo = m.Photo[n-1].FileID
	}
	if m.Video != nil {
		msg.Attachments.Video = m.Video.FileID
	}
	if m.Document != nil {
		msg.Attachments.Document = m.Document.FileID
	}
	if m.Audio != nil {
		msg.Attachments.Audio = m.Audio.FileID
	}
	if m.Voice != nil {
		msg.Attachments.Voice = m.Voice.FileID
	}
	if m.VideoNote != nil {
		msg.Attachments.VideoNote = m.VideoNote.FileID
	}
	if m.Sticker != nil {
		msg.Attachments.Sticker = m.Sticker.FileID
	}
	return msg, true
}

// SendText posts body into the destination topic, split into chunks below
// Telegram's message limit. It returns the ID of the last chunk sent.
func (t *Telegram) SendText(ctx context.Context, dest domain.DestinationID, body string) (int, error) {
	var id int
	for _, chunk := range splitText(body, telegramMaxMsgLen) {
		params := t.topicParams(dest)
		params["text"] = chunk
		params["parse_mode"] = telegramParseMode

		var err error
		if id, err = t.send(ctx, "sendMessage", params); err != nil {
			return 0, err
		}
	}
	return id, nil
}

// SendMedia re-sends a received file into the destination topic by file ID.
func (t *Telegram) SendMedia(ctx context.Context, dest domain.DestinationID, media domain.Media, caption string) (int, error) {
	m, ok := mediaMethods[media.Kind]
	if !ok {
		return 0, fmt.Errorf("unsupported media kind %s", media.Kind)
	}
	if media.FileID == "" {
		return 0, errors.New("media without file ID")
	}

	params := t.topicParams(dest)
	params[m[1]] = media.FileID
	if caption != "" && media.Kind.SupportsCaption() {
		params["caption"] = caption
		params["parse_mode"] = telegramParseMode
	}
	return t.send(ctx, m[0], params)
}

func (t *Telegram) topicParams(dest domain.DestinationID) tgbotapi.Params {
	params := tgbotapi.Params{"chat_id": strconv.FormatInt(t.groupID, 10)}
	params.AddNonZero("message_thread_id", int(dest))
	return params
}

func (t *Telegram) send(ctx context.Context, method string, params tgbotapi.Params) (int, error) {
	if t.bot == nil {
		return 0, errors.New("telegram bot not connected")
	}
	ctx, cancel := context.WithTimeout(ctx, t.requestTimeout)
	defer cancel()

	resp, err := t.api(ctx).MakeRequest(method, params)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", method, err)
	}
	var sent tgbotapi.Message
	if err := json.Unmarshal(resp.Result, &sent); err != nil {
		return 0, fmt.Errorf("%s: decode result: %w", method, err)
	}
	return sent.MessageID, nil
}

// api returns a shallow copy of the bot whose requests carry ctx.
func (t *Telegram) api(ctx context.Context) *tgbotapi.BotAPI {
	b := *t.bot
	b.Client = contextClient{ctx: ctx, next: t.bot.Client}
	return &b
}

type contextClient struct {
	ctx  context.Context
	next tgbotapi.HTTPClient
}

func (c contextClient) Do(req *http.Request) (*http.Response, error) {
	return c.next.Do(req.WithContext(c.ctx))
}

// splitText cuts text into pieces of at most limit bytes, preferring a line
// break in the second half of each piece. It never splits a rune or a
// backslash escape.
func splitText(text string, limit int) []string {
	var chunks []string
	for len(text) > limit {
		cutAt := strings.LastIndex(text[:limit], "\n")
		if cutAt < limit/2 {
			cutAt = limit
			for cutAt > 0 && !utf8.RuneStart(text[cutAt]) {
				cutAt--
			}
		}
		for cutAt > 1 && text[cutAt-1] == '\\' {
			cutAt--
		}
		chunks = append(chunks, text[:cutAt])
		text = text[cutAt:]
	}
	return append(chunks, text)
}
