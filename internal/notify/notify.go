package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"text/template"
	"time"

	"stockwatch/internal/config"
	"stockwatch/internal/domain"
	"stockwatch/internal/templatefmt"

	tgbot "github.com/go-telegram/bot"
	tgmodels "github.com/go-telegram/bot/models"
)

// ErrRender marks a message-template rendering failure. Retrying delivery
// of the same alert cannot recover from it.
var ErrRender = errors.New("render alert message")

// SendResult returns channel-specific metadata after successful delivery.
// Params: sender-specific metadata fields.
// Returns: optional message identifiers.
type SendResult struct {
	MessageID int
}

// ChannelSender sends one rendered alert message to one channel.
// Params: context, source alert, and rendered message text.
// Returns: channel send metadata and transport error when send fails.
type ChannelSender interface {
	Channel() string
	Send(ctx context.Context, alert domain.Alert, message string) (SendResult, error)
}

// Dispatcher renders alert messages and delivers them to every enabled
// channel with per-channel retry policy. A failing channel never interrupts
// the check cycle; the caller logs and moves on.
// Params: sender list, retry policies, and compiled message template.
// Returns: notification sink for the manager layer.
type Dispatcher struct {
	senders  map[string]ChannelSender
	channels []string
	retries  map[string]config.NotifyRetry
	logger   *slog.Logger
	message  *template.Template
}

// NewDispatcher builds the notification dispatcher from enabled channels.
// Params: notify config and logger.
// Returns: configured dispatcher or template/channel setup error.
func NewDispatcher(cfg config.NotifyConfig, logger *slog.Logger) (*Dispatcher, error) {
	body := cfg.Telegram.MessageTemplate
	if strings.TrimSpace(body) == "" {
		body = config.DefaultMessageTemplate
	}
	message, err := templatefmt.ParseMessageTemplate("alert.message", body)
	if err != nil {
		return nil, fmt.Errorf("parse message template: %w", err)
	}

	senders := make(map[string]ChannelSender)
	retries := make(map[string]config.NotifyRetry)
	if cfg.Telegram.Enabled {
		senders["telegram"] = NewTelegramSender(cfg.Telegram)
		retries["telegram"] = cfg.Telegram.Retry
	}

	channels := make([]string, 0, len(senders))
	for channel := range senders {
		channels = append(channels, channel)
	}
	sort.Strings(channels)

	return &Dispatcher{
		senders:  senders,
		channels: channels,
		retries:  retries,
		logger:   logger,
		message:  message,
	}, nil
}

// Channels lists configured channel names.
// Params: none.
// Returns: sorted channel keys.
func (d *Dispatcher) Channels() []string {
	return d.channels
}

// Render renders one alert through the configured message template.
// Params: alert payload.
// Returns: message text or render error.
func (d *Dispatcher) Render(alert domain.Alert) (string, error) {
	return templatefmt.RenderMessage(d.message, alert)
}

// Deliver renders one alert and sends it to every configured channel.
// Params: context and alert payload.
// Returns: first channel error after retries; rendering errors are terminal.
func (d *Dispatcher) Deliver(ctx context.Context, alert domain.Alert) error {
	message, err := d.Render(alert)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRender, err)
	}

	var firstErr error
	for _, channel := range d.channels {
		sender := d.senders[channel]
		if _, err := d.sendWithRetry(ctx, sender, alert, message, d.retries[channel]); err != nil {
			d.logger.Error("alert delivery failed",
				"channel", channel, "product", alert.Product, "error", err.Error())
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		d.logger.Info("alert delivered", "channel", channel, "product", alert.Product)
	}
	return firstErr
}

// sendWithRetry sends one message with channel-specific retry policy.
// Params: sender, alert, rendered message, and retry policy.
// Returns: channel metadata and final error after retries.
func (d *Dispatcher) sendWithRetry(ctx context.Context, sender ChannelSender, alert domain.Alert, message string, retry config.NotifyRetry) (SendResult, error) {
	if !retry.Enabled {
		return sender.Send(ctx, alert, message)
	}

	attempt := 0
	backoff := time.Duration(retry.InitialMS) * time.Millisecond
	maxBackoff := time.Duration(retry.MaxMS) * time.Millisecond

	for {
		attempt++
		result, err := sender.Send(ctx, alert, message)
		if err == nil {
			if retry.LogEachAttempt && attempt > 1 {
				d.logger.Info("alert send recovered after retries",
					"channel", sender.Channel(), "attempt", attempt)
			}
			return result, nil
		}
		if retry.LogEachAttempt {
			d.logger.Warn("alert send attempt failed",
				"channel", sender.Channel(), "attempt", attempt, "error", err.Error())
		}

		if retry.MaxAttempts > 0 && attempt >= retry.MaxAttempts {
			return SendResult{}, fmt.Errorf("channel %s failed after %d attempts: %w", sender.Channel(), attempt, err)
		}

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return SendResult{}, ctx.Err()
		case <-timer.C:
		}

		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

// TelegramSender sends alert messages to the Telegram Bot API.
// Params: bot token, chat id, and optional base URL override.
// Returns: Telegram channel sender.
type TelegramSender struct {
	client  *tgbot.Bot
	chatID  any
	initErr error
}

// NewTelegramSender creates the Telegram sender.
// Params: Telegram notifier config.
// Returns: initialized sender; init failures surface on first Send.
func NewTelegramSender(cfg config.TelegramNotifier) *TelegramSender {
	sender := &TelegramSender{
		chatID: normalizeChatID(cfg.ChatID),
	}

	if strings.TrimSpace(cfg.BotToken) == "" {
		sender.initErr = errors.New("telegram bot token is required")
		return sender
	}
	if strings.TrimSpace(cfg.ChatID) == "" {
		sender.initErr = errors.New("telegram chat_id is required")
		return sender
	}

	httpClient := &http.Client{Timeout: time.Duration(cfg.TimeoutSec) * time.Second}
	options := []tgbot.Option{
		tgbot.WithSkipGetMe(),
		tgbot.WithHTTPClient(httpClient.Timeout, httpClient),
	}
	if strings.TrimSpace(cfg.APIBase) != "" {
		options = append(options, tgbot.WithServerURL(strings.TrimRight(cfg.APIBase, "/")))
	}
	botClient, err := tgbot.New(cfg.BotToken, options...)
	if err != nil {
		sender.initErr = fmt.Errorf("init telegram bot: %w", err)
		return sender
	}
	sender.client = botClient
	return sender
}

// Channel returns sender channel name.
// Params: none.
// Returns: static channel key.
func (s *TelegramSender) Channel() string {
	return "telegram"
}

// Send posts one alert message to the Telegram chat.
// Params: context, source alert, and rendered message text.
// Returns: transport or API error.
func (s *TelegramSender) Send(ctx context.Context, _ domain.Alert, message string) (SendResult, error) {
	if s.initErr != nil {
		return SendResult{}, s.initErr
	}
	if s.client == nil {
		return SendResult{}, errors.New("telegram client is not initialized")
	}

	sent, err := s.client.SendMessage(ctx, &tgbot.SendMessageParams{
		ChatID:    s.chatID,
		Text:      message,
		ParseMode: tgmodels.ParseModeMarkdown,
	})
	if err != nil {
		return SendResult{}, fmt.Errorf("telegram send: %w", err)
	}
	if sent == nil || sent.ID <= 0 {
		return SendResult{}, errors.New("telegram send returned empty message id")
	}
	return SendResult{MessageID: sent.ID}, nil
}

// normalizeChatID converts numeric chat IDs to int64 and keeps non-numeric IDs as string.
// Params: configured chat ID value from TOML.
// Returns: Telegram API chat id union value.
func normalizeChatID(raw string) any {
	trimmed := strings.TrimSpace(raw)
	if numeric, err := strconv.ParseInt(trimmed, 10, 64); err == nil {
		return numeric
	}
	return trimmed
}
