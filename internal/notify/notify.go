// Package notify turns AI-flagged classifications into one-way
// escalation events for external consumers. It owns the escalation
// policy (minimum risk threshold, per-origin and global cooldowns)
// and hands accepted events to a buffered emitter so delivery never
// blocks classification.
package notify

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tabguard-ai/tabguard/internal/risk"
)

// Default escalation policy.
const (
	DefaultThreshold      = risk.LevelMedium
	DefaultOriginCooldown = 5 * time.Minute
	DefaultGlobalCooldown = time.Minute
)

// Event is one escalation suggestion. Consumers decide what to do
// with it; the engine only reports.
type Event struct {
	ID        string    `json:"id"`
	Origin    string    `json:"origin"`
	RiskLevel string    `json:"risk_level"`
	EmittedAt time.Time `json:"emitted_at"`
}

// Config tunes the escalation policy. Zero values take defaults.
type Config struct {
	Threshold      risk.Level
	OriginCooldown time.Duration
	GlobalCooldown time.Duration

	// Activity, when set, gates repeat escalations for an origin on
	// whether that origin still shows recent signal activity.
	Activity func(origin string) bool

	Now func() time.Time
}

// Notifier applies the policy and forwards accepted events.
type Notifier struct {
	emitter *Emitter
	cfg     Config

	mu         sync.Mutex
	lastOrigin map[string]time.Time
	lastGlobal time.Time
}

// NewNotifier builds a Notifier in front of emitter.
func NewNotifier(emitter *Emitter, cfg Config) *Notifier {
	if cfg.Threshold == "" {
		cfg.Threshold = DefaultThreshold
	}
	if cfg.OriginCooldown <= 0 {
		cfg.OriginCooldown = DefaultOriginCooldown
	}
	if cfg.GlobalCooldown <= 0 {
		cfg.GlobalCooldown = DefaultGlobalCooldown
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Notifier{
		emitter:    emitter,
		cfg:        cfg,
		lastOrigin: make(map[string]time.Time),
	}
}

// Escalate emits an event for origin at level when the policy allows
// it. Suppressed escalations are silent; the return reports whether
// an event was handed to the emitter.
func (n *Notifier) Escalate(ctx context.Context, origin string, level risk.Level) bool {
	if n == nil || origin == "" {
		return false
	}
	if level.Rank() < n.cfg.Threshold.Rank() {
		return false
	}

	now := n.cfg.Now()
	n.mu.Lock()
	if now.Sub(n.lastGlobal) < n.cfg.GlobalCooldown && !n.lastGlobal.IsZero() {
		n.mu.Unlock()
		return false
	}
	last, seenBefore := n.lastOrigin[origin]
	if seenBefore && now.Sub(last) < n.cfg.OriginCooldown {
		n.mu.Unlock()
		return false
	}
	if seenBefore && n.cfg.Activity != nil && !n.cfg.Activity(origin) {
		n.mu.Unlock()
		return false
	}
	n.lastOrigin[origin] = now
	n.lastGlobal = now
	n.mu.Unlock()

	n.emitter.Emit(ctx, &Event{
		ID:        uuid.NewString(),
		Origin:    origin,
		RiskLevel: string(level),
		EmittedAt: now,
	})
	return true
}

// Close drains the underlying emitter.
func (n *Notifier) Close(ctx context.Context) {
	if n == nil {
		return
	}
	n.emitter.Close(ctx)
}
