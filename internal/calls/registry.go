// Package calls tracks the phone calls currently in progress.
package calls

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"
)

var ErrNotFound = errors.New("call not found")

// End reasons.
const (
	EndCompleted = "completed"
	EndExpired   = "expired"
)

type Call struct {
	SID            string    `json:"call_sid"`
	From           string    `json:"from,omitempty"`
	To             string    `json:"to,omitempty"`
	Turns          int       `json:"turns"`
	StartedAt      time.Time `json:"started_at"`
	LastActivityAt time.Time `json:"last_activity_at"`
	EndedAt        time.Time `json:"ended_at,omitempty"`
	EndReason      string    `json:"end_reason,omitempty"`
}

// Registry holds active calls keyed by the provider's call SID. Ended calls are
// dropped from the registry and handed to the end hook.
type Registry struct {
	mu                sync.RWMutex
	calls             map[string]*Call
	inactivityTimeout time.Duration
	now               func() time.Time
	onEnd             func(Call)
}

func NewRegistry(inactivityTimeout time.Duration) *Registry {
	if inactivityTimeout <= 0 {
		inactivityTimeout = 2 * time.Minute
	}
	return &Registry{
		calls:             make(map[string]*Call),
		inactivityTimeout: inactivityTimeout,
		now:               func() time.Time { return time.Now().UTC() },
	}
}

// SetEndHook registers a callback run outside the lock for every ended call,
// whether ended explicitly or by the janitor.
func (r *Registry) SetEndHook(hook func(Call)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onEnd = hook
}

// Begin registers sid, or touches it when already active. The bool reports
// whether the call is new.
func (r *Registry) Begin(sid, from, to string) (Call, bool) {
	sid = strings.TrimSpace(sid)
	now := r.now()

	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.calls[sid]; ok {
		c.LastActivityAt = now
		return *c, false
	}
	c := &Call{
		SID:            sid,
		From:           from,
		To:             to,
		StartedAt:      now,
		LastActivityAt: now,
	}
	r.calls[sid] = c
	return *c, true
}

// Turn records one caller utterance and returns the new turn count.
func (r *Registry) Turn(sid string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.calls[sid]
	if !ok {
		return 0, ErrNotFound
	}
	c.Turns++
	c.LastActivityAt = r.now()
	return c.Turns, nil
}

func (r *Registry) Get(sid string) (Call, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.calls[sid]
	if !ok {
		return Call{}, ErrNotFound
	}
	return *c, nil
}

func (r *Registry) End(sid, reason string) (Call, error) {
	if reason == "" {
		reason = EndCompleted
	}
	r.mu.Lock()
	c, ok := r.calls[sid]
	if !ok {
		r.mu.Unlock()
		return Call{}, ErrNotFound
	}
	delete(r.calls, sid)
	c.EndedAt = r.now()
	c.EndReason = reason
	ended := *c
	hook := r.onEnd
	r.mu.Unlock()

	if hook != nil {
		hook(ended)
	}
	return ended, nil
}

func (r *Registry) ActiveCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.calls)
}

// StartJanitor ends calls with no activity for the inactivity timeout. Providers
// do not always deliver a final status callback.
func (r *Registry) StartJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.expireInactive()
			}
		}
	}()
}

func (r *Registry) expireInactive() int {
	now := r.now()
	var expired []Call

	r.mu.Lock()
	for sid, c := range r.calls {
		if now.Sub(c.LastActivityAt) < r.inactivityTimeout {
			continue
		}
		delete(r.calls, sid)
		c.EndedAt = now
		c.EndReason = EndExpired
		expired = append(expired, *c)
	}
	hook := r.onEnd
	r.mu.Unlock()

	if hook != nil {
		for _, c := range expired {
			hook(c)
		}
	}
	return len(expired)
}
