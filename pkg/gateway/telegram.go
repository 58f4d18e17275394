package gateway

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
	tele "gopkg.in/telebot.v4"

	"github.com/postline/postline/pkg/config"
	"github.com/postline/postline/pkg/metrics"
)

// Telegram delivers messages through the Bot API via telebot. One
// instance is shared by the API server and the scheduler worker.
type Telegram struct {
	bot    *tele.Bot
	cfg    config.TelegramConfig
	logger *zap.Logger
	http   *http.Client

	mu       sync.Mutex
	chats    map[string]*tele.Chat
	limiters map[int64]*rate.Limiter
}

func NewTelegram(cfg config.TelegramConfig, logger *zap.Logger) (*Telegram, error) {
	if strings.TrimSpace(cfg.BotToken) == "" {
		return nil, errors.New("telegram bot token is empty")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	bot, err := tele.NewBot(tele.Settings{
		Token:  cfg.BotToken,
		Client: &http.Client{Timeout: timeout},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}
	return &Telegram{
		bot:      bot,
		cfg:      cfg,
		logger:   logger,
		http:     &http.Client{Timeout: timeout},
		chats:    make(map[string]*tele.Chat),
		limiters: make(map[int64]*rate.Limiter),
	}, nil
}

// NormalizeIdentifier turns the raw stored channel identifier (numeric
// id, @handle, bare handle or t.me URL) into the form the Bot API
// accepts: a numeric chat id or an @-prefixed username.
func NormalizeIdentifier(identifier string) string {
	value := strings.TrimSpace(identifier)
	for _, prefix := range []string{"https://t.me/", "http://t.me/", "t.me/"} {
		if strings.HasPrefix(value, prefix) {
			value = strings.TrimPrefix(value, prefix)
			break
		}
	}
	if isNumericID(value) {
		return value
	}
	if !strings.HasPrefix(value, "@") {
		value = "@" + value
	}
	return value
}

func isNumericID(value string) bool {
	trimmed := strings.TrimPrefix(value, "-")
	if trimmed == "" {
		return false
	}
	for _, r := range trimmed {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func (t *Telegram) resolveChat(identifier string) (*tele.Chat, error) {
	normalized := NormalizeIdentifier(identifier)

	t.mu.Lock()
	if chat, ok := t.chats[normalized]; ok {
		t.mu.Unlock()
		return chat, nil
	}
	t.mu.Unlock()

	var chat *tele.Chat
	if isNumericID(normalized) {
		id, err := strconv.ParseInt(normalized, 10, 64)
		if err != nil {
			return nil, err
		}
		chat = &tele.Chat{ID: id}
	} else {
		resolved, err := t.bot.ChatByUsername(normalized)
		if err != nil {
			return nil, err
		}
		chat = resolved
	}

	t.mu.Lock()
	t.chats[normalized] = chat
	t.mu.Unlock()
	return chat, nil
}

func (t *Telegram) limiter(chatID int64) *rate.Limiter {
	t.mu.Lock()
	defer t.mu.Unlock()
	lim, ok := t.limiters[chatID]
	if !ok {
		sendRate := t.cfg.SendRate
		if sendRate <= 0 {
			sendRate = 1
		}
		lim = rate.NewLimiter(rate.Limit(sendRate), 1)
		t.limiters[chatID] = lim
	}
	return lim
}

// classify maps a telebot error onto the retryable/permanent split.
// Flood control and remote 5xx are retryable, other API responses are
// permanent, anything else is transport trouble and retryable. The
// second return is a server-requested wait, zero if none.
func classify(err error) (retryable bool, wait time.Duration) {
	var flood tele.FloodError
	if errors.As(err, &flood) {
		return true, time.Duration(flood.RetryAfter) * time.Second
	}
	var apiErr *tele.Error
	if errors.As(err, &apiErr) {
		if apiErr.Code == http.StatusTooManyRequests || apiErr.Code >= http.StatusInternalServerError {
			return true, 0
		}
		return false, 0
	}
	return true, 0
}

func (t *Telegram) Send(ctx context.Context, identifier, text, mediaURL string) (Result, error) {
	chat, err := t.resolveChat(identifier)
	if err != nil {
		return Result{}, t.fail("send", err)
	}

	msg, err := t.withRetry(ctx, "send", chat.ID, func() (*tele.Message, error) {
		if mediaURL != "" {
			photo := &tele.Photo{File: tele.FromURL(mediaURL), Caption: text}
			return t.bot.Send(chat, photo)
		}
		return t.bot.Send(chat, text)
	})
	if err != nil {
		return Result{}, err
	}
	return Result{MessageID: strconv.Itoa(msg.ID)}, nil
}

func (t *Telegram) Edit(ctx context.Context, identifier, messageID, text, mediaURL string) (Result, error) {
	chat, err := t.resolveChat(identifier)
	if err != nil {
		return Result{}, t.fail("edit", err)
	}
	stored := tele.StoredMessage{MessageID: messageID, ChatID: chat.ID}

	_, err = t.withRetry(ctx, "edit", chat.ID, func() (*tele.Message, error) {
		if mediaURL != "" {
			photo := &tele.Photo{File: tele.FromURL(mediaURL), Caption: text}
			return t.bot.Edit(stored, photo)
		}
		return t.bot.Edit(stored, text)
	})
	if err != nil {
		// An unchanged message is not a failure from the caller's
		// point of view.
		if isNotModified(err) {
			return Result{MessageID: messageID}, nil
		}
		return Result{}, err
	}
	return Result{MessageID: messageID}, nil
}

func isNotModified(err error) bool {
	var apiErr *tele.Error
	if errors.As(err, &apiErr) {
		return strings.Contains(strings.ToLower(apiErr.Description), "message is not modified")
	}
	return false
}

func (t *Telegram) Delete(ctx context.Context, identifier, messageID string) error {
	chat, err := t.resolveChat(identifier)
	if err != nil {
		return t.fail("delete", err)
	}
	stored := tele.StoredMessage{MessageID: messageID, ChatID: chat.ID}

	_, err = t.withRetry(ctx, "delete", chat.ID, func() (*tele.Message, error) {
		return nil, t.bot.Delete(stored)
	})
	return err
}

// withRetry performs bounded transport-level retries with exponential
// backoff inside a single gateway call. The entity-level retry policy
// in the publisher is a separate, longer-horizon loop.
func (t *Telegram) withRetry(ctx context.Context, action string, chatID int64, call func() (*tele.Message, error)) (*tele.Message, error) {
	attempts := t.cfg.Retries + 1
	if attempts < 1 {
		attempts = 1
	}
	backoff := time.Second

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if err := t.limiter(chatID).Wait(ctx); err != nil {
			return nil, t.fail(action, err)
		}

		msg, err := call()
		if err == nil {
			return msg, nil
		}
		lastErr = err

		retryable, wait := classify(err)
		metrics.GatewayErrorsTotal.WithLabelValues(action, strconv.FormatBool(retryable)).Inc()
		if !retryable {
			t.logger.Warn("gateway permanent failure",
				zap.String("action", action), zap.Int64("chat_id", chatID), zap.Error(err))
			return nil, &DeliveryError{Action: action, Retryable: false, Err: err}
		}

		t.logger.Info("gateway transient failure",
			zap.String("action", action), zap.Int64("chat_id", chatID),
			zap.Int("attempt", attempt+1), zap.Error(err))

		if attempt == attempts-1 {
			break
		}
		delay := backoff
		if wait > delay {
			delay = wait
		}
		select {
		case <-ctx.Done():
			return nil, &DeliveryError{Action: action, Retryable: true, Err: ctx.Err()}
		case <-time.After(delay):
		}
		backoff *= 2
	}

	return nil, &DeliveryError{Action: action, Retryable: true, Err: lastErr}
}

// fail wraps a pre-flight error (identifier resolution, cancelled
// context). Resolution failures against the API are classified like
// any other call.
func (t *Telegram) fail(action string, err error) error {
	retryable, _ := classify(err)
	metrics.GatewayErrorsTotal.WithLabelValues(action, strconv.FormatBool(retryable)).Inc()
	return &DeliveryError{Action: action, Retryable: retryable, Err: err}
}

var viewsPattern = regexp.MustCompile(`tgme_widget_message_views[^>]*>([0-9.,]+[KM]?)<`)

// GetViews scrapes the public t.me embed widget, which is the only way
// to read channel post view counts without an MTProto session. Only
// username-addressed channels have a public widget.
func (t *Telegram) GetViews(ctx context.Context, identifier, messageID string) (int, error) {
	normalized := NormalizeIdentifier(identifier)
	if isNumericID(normalized) {
		return 0, &DeliveryError{Action: "views", Retryable: false, Err: errors.New("view counts need a public channel username")}
	}
	username := strings.TrimPrefix(normalized, "@")

	url := fmt.Sprintf("https://t.me/%s/%s?embed=1", username, messageID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, &DeliveryError{Action: "views", Retryable: false, Err: err}
	}
	resp, err := t.http.Do(req)
	if err != nil {
		return 0, t.fail("views", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		retryable := resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError
		metrics.GatewayErrorsTotal.WithLabelValues("views", strconv.FormatBool(retryable)).Inc()
		return 0, &DeliveryError{Action: "views", Retryable: retryable, Err: fmt.Errorf("widget returned %d", resp.StatusCode)}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return 0, t.fail("views", err)
	}
	match := viewsPattern.FindSubmatch(body)
	if match == nil {
		return 0, &DeliveryError{Action: "views", Retryable: false, Err: errors.New("no view counter in widget")}
	}
	return ParseViewCount(string(match[1]))
}

// ParseViewCount decodes the widget's abbreviated counter ("874",
// "1.2K", "3.4M") into an absolute number.
func ParseViewCount(value string) (int, error) {
	value = strings.ReplaceAll(strings.TrimSpace(value), ",", "")
	multiplier := 1.0
	switch {
	case strings.HasSuffix(value, "K"):
		multiplier = 1_000
		value = strings.TrimSuffix(value, "K")
	case strings.HasSuffix(value, "M"):
		multiplier = 1_000_000
		value = strings.TrimSuffix(value, "M")
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("malformed view counter %q: %w", value, err)
	}
	return int(parsed * multiplier), nil
}
