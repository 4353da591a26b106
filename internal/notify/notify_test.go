package notify

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/tabguard-ai/tabguard/internal/risk"
)

type captureSink struct {
	mu     sync.Mutex
	events []*Event
}

func (c *captureSink) Name() string { return "capture" }

func (c *captureSink) Deliver(_ context.Context, ev *Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
	return nil
}

func (c *captureSink) Close(context.Context) error { return nil }

func (c *captureSink) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.events)
}

type policyFixture struct {
	notifier *Notifier
	sink     *captureSink
	now      *time.Time
}

func newPolicyFixture(cfg Config) *policyFixture {
	now := time.Unix(1_700_000_000, 0)
	f := &policyFixture{sink: &captureSink{}, now: &now}
	cfg.Now = func() time.Time { return *f.now }
	f.notifier = NewNotifier(NewEmitter(EmitterConfig{}, []Sink{f.sink}), cfg)
	return f
}

func (f *policyFixture) advance(d time.Duration) { *f.now = f.now.Add(d) }

// drain closes the notifier so every queued event reaches the sink.
func (f *policyFixture) drain() { f.notifier.Close(context.Background()) }

func TestNotifierThreshold(t *testing.T) {
	f := newPolicyFixture(Config{})
	f.notifier.Escalate(context.Background(), "https://a.example", risk.LevelLow)
	f.drain()
	if f.sink.count() != 0 {
		t.Fatalf("low risk passed a medium threshold")
	}

	f = newPolicyFixture(Config{Threshold: risk.LevelLow})
	f.notifier.Escalate(context.Background(), "https://a.example", risk.LevelLow)
	f.drain()
	if f.sink.count() != 1 {
		t.Fatalf("low threshold rejected a low escalation")
	}
}

func TestNotifierGlobalCooldown(t *testing.T) {
	f := newPolicyFixture(Config{})
	f.notifier.Escalate(context.Background(), "https://a.example", risk.LevelHigh)
	f.advance(10 * time.Second)
	f.notifier.Escalate(context.Background(), "https://b.example", risk.LevelHigh)
	f.advance(55 * time.Second)
	f.notifier.Escalate(context.Background(), "https://c.example", risk.LevelHigh)
	f.drain()
	if got := f.sink.count(); got != 2 {
		t.Fatalf("delivered %d events, want 2 (global cooldown)", got)
	}
}

func TestNotifierOriginCooldown(t *testing.T) {
	f := newPolicyFixture(Config{})
	origin := "https://bank.example"
	f.notifier.Escalate(context.Background(), origin, risk.LevelHigh)

	f.advance(2 * time.Minute) // past global, inside origin cooldown
	f.notifier.Escalate(context.Background(), origin, risk.LevelHigh)

	f.advance(4 * time.Minute) // past origin cooldown
	f.notifier.Escalate(context.Background(), origin, risk.LevelHigh)

	f.drain()
	if got := f.sink.count(); got != 2 {
		t.Fatalf("delivered %d events, want 2 (origin cooldown)", got)
	}
}

func TestNotifierRepeatRequiresActivity(t *testing.T) {
	active := false
	f := newPolicyFixture(Config{Activity: func(string) bool { return active }})
	origin := "https://bank.example"

	f.notifier.Escalate(context.Background(), origin, risk.LevelHigh)
	f.advance(10 * time.Minute)
	f.notifier.Escalate(context.Background(), origin, risk.LevelHigh)

	active = true
	f.advance(10 * time.Minute)
	f.notifier.Escalate(context.Background(), origin, risk.LevelHigh)

	f.drain()
	if got := f.sink.count(); got != 2 {
		t.Fatalf("delivered %d events, want 2 (activity gate)", got)
	}
}

// Callers keying metrics off Escalate need the return to track
// real emissions, not attempts.
func TestNotifierEscalateReportsEmission(t *testing.T) {
	f := newPolicyFixture(Config{})

	if f.notifier.Escalate(context.Background(), "https://a.example", risk.LevelLow) {
		t.Fatalf("suppressed-by-threshold escalation reported as emitted")
	}
	if !f.notifier.Escalate(context.Background(), "https://a.example", risk.LevelHigh) {
		t.Fatalf("first high escalation not reported as emitted")
	}
	f.advance(10 * time.Second)
	if f.notifier.Escalate(context.Background(), "https://b.example", risk.LevelHigh) {
		t.Fatalf("cooldown-suppressed escalation reported as emitted")
	}

	f.drain()
	if got := f.sink.count(); got != 1 {
		t.Fatalf("delivered %d events, want 1", got)
	}
}

func TestNotifierEventShape(t *testing.T) {
	f := newPolicyFixture(Config{})
	f.notifier.Escalate(context.Background(), "https://a.example", risk.LevelHigh)
	f.drain()
	if f.sink.count() != 1 {
		t.Fatalf("no event delivered")
	}
	ev := f.sink.events[0]
	if ev.ID == "" || ev.Origin != "https://a.example" || ev.RiskLevel != "high" {
		t.Fatalf("event = %+v", ev)
	}
}

func TestFileSinkWritesJSONL(t *testing.T) {
	path := filepath.Join(t.TempDir(), "escalations", "events.jsonl")
	sink, err := NewFileSink(path)
	if err != nil {
		t.Fatalf("NewFileSink: %v", err)
	}
	events := []*Event{
		{ID: "1", Origin: "https://a.example", RiskLevel: "high"},
		{ID: "2", Origin: "https://b.example", RiskLevel: "medium"},
	}
	for _, ev := range events {
		if err := sink.Deliver(context.Background(), ev); err != nil {
			t.Fatalf("Deliver: %v", err)
		}
	}
	if err := sink.Close(context.Background()); err != nil {
		t.Fatalf("Close: %v", err)
	}

	file, err := os.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer file.Close()
	scanner := bufio.NewScanner(file)
	var got []Event
	for scanner.Scan() {
		var ev Event
		if err := json.Unmarshal(scanner.Bytes(), &ev); err != nil {
			t.Fatalf("bad JSONL line: %v", err)
		}
		got = append(got, ev)
	}
	if len(got) != 2 || got[0].ID != "1" || got[1].Origin != "https://b.example" {
		t.Fatalf("file contents = %+v", got)
	}
}

func TestWebhookSinkRetries(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	sink, err := NewWebhookSink(srv.URL, map[string]string{"X-Token": "t"}, time.Second)
	if err != nil {
		t.Fatalf("NewWebhookSink: %v", err)
	}
	if err := sink.Deliver(context.Background(), &Event{ID: "1"}); err != nil {
		t.Fatalf("Deliver after retry: %v", err)
	}
	if calls != 2 {
		t.Fatalf("calls = %d, want 2", calls)
	}
}

func TestWebhookSinkReportsFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	sink, err := NewWebhookSink(srv.URL, nil, time.Second)
	if err != nil {
		t.Fatalf("NewWebhookSink: %v", err)
	}
	if err := sink.Deliver(context.Background(), &Event{ID: "1"}); err == nil {
		t.Fatalf("persistent failure reported nil error")
	}
}

func TestEmitterCountsDrops(t *testing.T) {
	e := NewEmitter(EmitterConfig{QueueSize: 1, Workers: 1}, nil)
	e.Close(context.Background())
	e.Emit(context.Background(), &Event{ID: "after-close"})
	if e.MetricsSnapshot().Dropped() != 1 {
		t.Fatalf("drop after close not counted")
	}
}
