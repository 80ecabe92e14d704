package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"stockwatch/internal/config"
	"stockwatch/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type flakySender struct {
	channel string
	fails   int
	calls   int
}

func (s *flakySender) Channel() string { return s.channel }

func (s *flakySender) Send(context.Context, domain.Alert, string) (SendResult, error) {
	s.calls++
	if s.calls <= s.fails {
		return SendResult{}, errors.New("temporary error")
	}
	return SendResult{MessageID: s.calls}, nil
}

type captureSender struct {
	channel  string
	messages []string
}

func (s *captureSender) Channel() string { return s.channel }

func (s *captureSender) Send(_ context.Context, _ domain.Alert, message string) (SendResult, error) {
	s.messages = append(s.messages, message)
	return SendResult{MessageID: 1}, nil
}

func testDispatcher(t *testing.T, sender ChannelSender, retry config.NotifyRetry) *Dispatcher {
	t.Helper()
	dispatcher, err := NewDispatcher(config.NotifyConfig{}, testLogger())
	if err != nil {
		t.Fatalf("new dispatcher: %v", err)
	}
	dispatcher.senders = map[string]ChannelSender{sender.Channel(): sender}
	dispatcher.channels = []string{sender.Channel()}
	dispatcher.retries = map[string]config.NotifyRetry{sender.Channel(): retry}
	return dispatcher
}

func TestDispatcherRetriesUntilSuccess(t *testing.T) {
	t.Parallel()

	sender := &flakySender{channel: "telegram", fails: 2}
	dispatcher := testDispatcher(t, sender, config.NotifyRetry{
		Enabled:     true,
		InitialMS:   1,
		MaxMS:       2,
		MaxAttempts: 5,
	})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	alert := domain.Alert{Product: "A", Stock: 3, Threshold: 5, At: time.Now()}
	if err := dispatcher.Deliver(ctx, alert); err != nil {
		t.Fatalf("expected delivery after retries, got %v", err)
	}
	if sender.calls != 3 {
		t.Fatalf("expected three attempts, got %d", sender.calls)
	}
}

func TestDispatcherStopsAtMaxAttempts(t *testing.T) {
	t.Parallel()

	sender := &flakySender{channel: "telegram", fails: 100}
	dispatcher := testDispatcher(t, sender, config.NotifyRetry{
		Enabled:     true,
		InitialMS:   1,
		MaxMS:       2,
		MaxAttempts: 3,
	})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	err := dispatcher.Deliver(ctx, domain.Alert{Product: "A", At: time.Now()})
	if err == nil || !strings.Contains(err.Error(), "after 3 attempts") {
		t.Fatalf("expected bounded retry failure, got %v", err)
	}
	if sender.calls != 3 {
		t.Fatalf("expected exactly three attempts, got %d", sender.calls)
	}
}

func TestDispatcherRendersAllMandatoryFields(t *testing.T) {
	t.Parallel()

	sender := &captureSender{channel: "telegram"}
	dispatcher := testDispatcher(t, sender, config.NotifyRetry{})

	at := time.Date(2026, 8, 28, 14, 45, 0, 0, time.Local)
	alert := domain.Alert{Product: "widget-7", Stock: 2, Threshold: 9, At: at}
	if err := dispatcher.Deliver(context.Background(), alert); err != nil {
		t.Fatalf("deliver: %v", err)
	}
	if len(sender.messages) != 1 {
		t.Fatalf("expected one message, got %d", len(sender.messages))
	}
	message := sender.messages[0]
	for _, marker := range []string{"widget-7", "2", "9", "2026-08-28 14:45:00"} {
		if !strings.Contains(message, marker) {
			t.Fatalf("message missing %q: %q", marker, message)
		}
	}
}

func TestNewDispatcherWithoutChannels(t *testing.T) {
	t.Parallel()

	dispatcher, err := NewDispatcher(config.NotifyConfig{}, testLogger())
	if err != nil {
		t.Fatalf("new dispatcher: %v", err)
	}
	if len(dispatcher.Channels()) != 0 {
		t.Fatalf("expected no channels, got %v", dispatcher.Channels())
	}
	// Delivery with no channels is a silent no-op, not an error.
	if err := dispatcher.Deliver(context.Background(), domain.Alert{Product: "A", At: time.Now()}); err != nil {
		t.Fatalf("expected no-op delivery, got %v", err)
	}
}

func TestTelegramSenderPostsMessage(t *testing.T) {
	t.Parallel()

	var gotText string
	var gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		gotPath = request.URL.Path
		_ = request.ParseMultipartForm(1 << 20)
		gotText = request.FormValue("text")
		writer.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(writer).Encode(map[string]any{
			"ok":     true,
			"result": map[string]any{"message_id": 42},
		})
	}))
	defer server.Close()

	sender := NewTelegramSender(config.TelegramNotifier{
		Enabled:  true,
		BotToken: "123:token",
		ChatID:   "-1001",
		APIBase:  server.URL,
	})

	result, err := sender.Send(context.Background(), domain.Alert{Product: "A"}, "low stock on A")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if result.MessageID != 42 {
		t.Fatalf("expected message id 42, got %d", result.MessageID)
	}
	if !strings.Contains(gotPath, "123:token") {
		t.Fatalf("expected bot token in request path, got %q", gotPath)
	}
	if gotText != "low stock on A" {
		t.Fatalf("unexpected message text %q", gotText)
	}
}

func TestTelegramSenderMissingCredentials(t *testing.T) {
	t.Parallel()

	sender := NewTelegramSender(config.TelegramNotifier{Enabled: true})
	if _, err := sender.Send(context.Background(), domain.Alert{}, "msg"); err == nil {
		t.Fatalf("expected init error without credentials")
	}
}

func TestNormalizeChatID(t *testing.T) {
	t.Parallel()

	if got := normalizeChatID("-1001234"); got != int64(-1001234) {
		t.Fatalf("expected numeric chat id, got %T %v", got, got)
	}
	if got := normalizeChatID("@channel"); got != "@channel" {
		t.Fatalf("expected string chat id, got %T %v", got, got)
	}
}
