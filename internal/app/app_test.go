package app

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"stockwatch/internal/archive"
	"stockwatch/internal/config"
	"stockwatch/internal/domain"
	"stockwatch/internal/engine"
	"stockwatch/internal/notify"
	"stockwatch/internal/notifyqueue"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeClock struct {
	now time.Time
}

func (f *fakeClock) Now() time.Time {
	return f.now
}

type stubFetcher struct {
	readings []domain.Reading
	err      error
	calls    int
}

func (s *stubFetcher) Fetch(context.Context) ([]domain.Reading, error) {
	s.calls++
	return s.readings, s.err
}

type stubSink struct {
	err       error
	delivered []domain.Alert
}

func (s *stubSink) Deliver(_ context.Context, alert domain.Alert) error {
	s.delivered = append(s.delivered, alert)
	return s.err
}

type stubProducer struct {
	err  error
	jobs []notifyqueue.Job
}

func (s *stubProducer) Enqueue(_ context.Context, job notifyqueue.Job) error {
	if s.err != nil {
		return s.err
	}
	s.jobs = append(s.jobs, job)
	return nil
}

func (s *stubProducer) Close() error {
	return nil
}

func TestInQuietWindow(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name       string
		hour       int
		start, end int
		want       bool
	}{
		{name: "inside plain window", hour: 3, start: 0, end: 6, want: true},
		{name: "at window start", hour: 0, start: 0, end: 6, want: true},
		{name: "at window end", hour: 6, start: 0, end: 6, want: false},
		{name: "outside plain window", hour: 12, start: 0, end: 6, want: false},
		{name: "wrap before midnight", hour: 23, start: 23, end: 6, want: true},
		{name: "wrap after midnight", hour: 2, start: 23, end: 6, want: true},
		{name: "wrap daytime excluded", hour: 10, start: 23, end: 6, want: false},
		{name: "wrap at end", hour: 6, start: 23, end: 6, want: false},
		{name: "empty window", hour: 3, start: 3, end: 3, want: false},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := inQuietWindow(tc.hour, tc.start, tc.end); got != tc.want {
				t.Fatalf("inQuietWindow(%d, %d, %d) = %v, want %v", tc.hour, tc.start, tc.end, got, tc.want)
			}
		})
	}
}

func TestRunCycleDeliversAlerts(t *testing.T) {
	t.Parallel()

	clk := &fakeClock{now: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)}
	catalog := []domain.Product{{Name: "Widget", Threshold: 5}}
	fetcher := &stubFetcher{readings: []domain.Reading{{Name: "Widget", Stock: 2}}}
	sink := &stubSink{}
	eng := engine.New(catalog, 10*time.Minute, testLogger(), clk)

	manager := NewManager(testLogger(), fetcher, eng, sink, archive.Nop{}, clk)
	if err := manager.RunCycle(context.Background()); err != nil {
		t.Fatalf("RunCycle returned error: %v", err)
	}
	if len(sink.delivered) != 1 {
		t.Fatalf("delivered %d alerts, want 1", len(sink.delivered))
	}
	if sink.delivered[0].Product != "Widget" || sink.delivered[0].Stock != 2 {
		t.Fatalf("unexpected alert payload: %+v", sink.delivered[0])
	}
}

func TestRunCycleFetchFailureSurfaces(t *testing.T) {
	t.Parallel()

	clk := &fakeClock{now: time.Now()}
	fetcher := &stubFetcher{err: errors.New("all strategies down")}
	sink := &stubSink{}
	eng := engine.New([]domain.Product{{Name: "Widget", Threshold: 5}}, time.Minute, testLogger(), clk)

	manager := NewManager(testLogger(), fetcher, eng, sink, archive.Nop{}, clk)
	err := manager.RunCycle(context.Background())
	if err == nil {
		t.Fatal("RunCycle should surface acquisition failure")
	}
	if len(sink.delivered) != 0 {
		t.Fatalf("no alerts should be delivered on acquisition failure, got %d", len(sink.delivered))
	}
}

func TestRunCycleSinkFailureIsAbsorbed(t *testing.T) {
	t.Parallel()

	clk := &fakeClock{now: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)}
	catalog := []domain.Product{{Name: "Widget", Threshold: 5}}
	fetcher := &stubFetcher{readings: []domain.Reading{{Name: "Widget", Stock: 1}}}
	sink := &stubSink{err: errors.New("channel offline")}
	eng := engine.New(catalog, 10*time.Minute, testLogger(), clk)

	manager := NewManager(testLogger(), fetcher, eng, sink, archive.Nop{}, clk)
	if err := manager.RunCycle(context.Background()); err != nil {
		t.Fatalf("sink failure must not fail the cycle: %v", err)
	}

	// The cooldown was recorded before delivery, so the next check inside
	// the window stays silent even though the send failed.
	clk.now = clk.now.Add(5 * time.Minute)
	if err := manager.RunCycle(context.Background()); err != nil {
		t.Fatalf("second cycle failed: %v", err)
	}
	if len(sink.delivered) != 1 {
		t.Fatalf("delivered %d alerts, want 1 (cooldown records before delivery)", len(sink.delivered))
	}
}

func TestRunCyclePrefersQueue(t *testing.T) {
	t.Parallel()

	clk := &fakeClock{now: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)}
	catalog := []domain.Product{{Name: "Widget", Threshold: 5}}
	fetcher := &stubFetcher{readings: []domain.Reading{{Name: "Widget", Stock: 0}}}
	sink := &stubSink{}
	producer := &stubProducer{}
	eng := engine.New(catalog, 10*time.Minute, testLogger(), clk)

	manager := NewManager(testLogger(), fetcher, eng, sink, archive.Nop{}, clk)
	manager.SetProducer(producer)
	if err := manager.RunCycle(context.Background()); err != nil {
		t.Fatalf("RunCycle returned error: %v", err)
	}
	if len(producer.jobs) != 1 {
		t.Fatalf("enqueued %d jobs, want 1", len(producer.jobs))
	}
	if len(sink.delivered) != 0 {
		t.Fatalf("direct sink must not be used when the queue accepts the job")
	}
	if producer.jobs[0].Alert.Product != "Widget" {
		t.Fatalf("unexpected job payload: %+v", producer.jobs[0])
	}
}

func TestRunCycleFallsBackWhenEnqueueFails(t *testing.T) {
	t.Parallel()

	clk := &fakeClock{now: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)}
	catalog := []domain.Product{{Name: "Widget", Threshold: 5}}
	fetcher := &stubFetcher{readings: []domain.Reading{{Name: "Widget", Stock: 0}}}
	sink := &stubSink{}
	producer := &stubProducer{err: errors.New("jetstream unavailable")}
	eng := engine.New(catalog, 10*time.Minute, testLogger(), clk)

	manager := NewManager(testLogger(), fetcher, eng, sink, archive.Nop{}, clk)
	manager.SetProducer(producer)
	if err := manager.RunCycle(context.Background()); err != nil {
		t.Fatalf("RunCycle returned error: %v", err)
	}
	if len(sink.delivered) != 1 {
		t.Fatalf("delivered %d alerts directly, want 1 after enqueue failure", len(sink.delivered))
	}
}

func TestProcessQueuedJobClassifiesRenderErrors(t *testing.T) {
	t.Parallel()

	clk := &fakeClock{now: time.Now()}
	eng := engine.New([]domain.Product{{Name: "Widget", Threshold: 5}}, time.Minute, testLogger(), clk)

	renderErr := &stubSink{err: notify.ErrRender}
	manager := NewManager(testLogger(), &stubFetcher{}, eng, renderErr, archive.Nop{}, clk)

	job := notifyqueue.Job{Alert: domain.NewAlert("Widget", 1, 5, clk.Now())}
	err := manager.ProcessQueuedJob(context.Background(), job)
	if err == nil {
		t.Fatal("render failure must surface")
	}
	if !notifyqueue.IsPermanent(err) {
		t.Fatalf("render failures must be permanent, got %v", err)
	}

	transient := &stubSink{err: errors.New("telegram timeout")}
	manager = NewManager(testLogger(), &stubFetcher{}, eng, transient, archive.Nop{}, clk)
	err = manager.ProcessQueuedJob(context.Background(), job)
	if err == nil {
		t.Fatal("transient failure must surface")
	}
	if notifyqueue.IsPermanent(err) {
		t.Fatalf("transient failures must stay retryable, got %v", err)
	}

	ok := &stubSink{}
	manager = NewManager(testLogger(), &stubFetcher{}, eng, ok, archive.Nop{}, clk)
	if err := manager.ProcessQueuedJob(context.Background(), job); err != nil {
		t.Fatalf("successful delivery must ack: %v", err)
	}
}

func TestNormalizeQuietHoursFallback(t *testing.T) {
	t.Parallel()

	start, end, fellBack := config.NormalizeQuietHours(30, 6)
	if !fellBack {
		t.Fatal("out-of-range start must trigger fallback")
	}
	if start != 0 || end != 6 {
		t.Fatalf("fallback window = (%d, %d), want (0, 6)", start, end)
	}

	start, end, fellBack = config.NormalizeQuietHours(23, 6)
	if fellBack {
		t.Fatal("wraparound window is valid and must pass through")
	}
	if start != 23 || end != 6 {
		t.Fatalf("window = (%d, %d), want (23, 6)", start, end)
	}
}
