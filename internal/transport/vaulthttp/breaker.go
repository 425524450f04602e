package vaulthttp

import (
	"sync"
	"time"

	"github.com/kailas-cloud/vaultctx/internal/domain"
)

// State is a circuit breaker state.
type State int

// Breaker states. Numeric values match the breaker gauge.
const (
	StateClosed State = iota
	StateHalfOpen
	StateOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateHalfOpen:
		return "half-open"
	case StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

// BreakerConfig tunes the breaker.
// The breaker opens after FailureThreshold consecutive failures, or when the rolling Window holds at least
// FailureThreshold failures that make up FailureRatio or more of its calls.
type BreakerConfig struct {
	FailureThreshold int
	FailureRatio     float64
	Window           time.Duration
	Cooldown         time.Duration
}

// BreakerSnapshot is a point-in-time view of the breaker.
type BreakerSnapshot struct {
	State               State     `json:"-"`
	StateName           string    `json:"state"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	WindowRequests      int       `json:"window_requests"`
	WindowFailures      int       `json:"window_failures"`
	OpenedAt            time.Time `json:"opened_at,omitzero"`
	RetryAt             time.Time `json:"retry_at,omitzero"`
}

type outcome struct {
	at     time.Time
	failed bool
}

// breaker is the Closed → Open → HalfOpen state machine shared by all calls of one Client.
//
//	Closed   --trip-->          Open
//	Open     --cooldown-->      HalfOpen (one trial admitted)
//	HalfOpen --trial ok-->      Closed
//	HalfOpen --trial failed-->  Open (cooldown restarts)
type breaker struct {
	mu       sync.Mutex
	cfg      BreakerConfig
	now      func() time.Time
	onChange func(from, to State)

	state       State
	generation  uint64
	consecutive int
	window      []outcome
	openedAt    time.Time
	trialActive bool
}

func newBreaker(cfg BreakerConfig, now func() time.Time, onChange func(from, to State)) *breaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.Window <= 0 {
		cfg.Window = time.Minute
	}
	if now == nil {
		now = time.Now
	}
	return &breaker{cfg: cfg, now: now, onChange: onChange}
}

// allow admits a call or rejects it with domain.ErrCircuitOpen. The returned generation must be handed
// back to record or release.
func (b *breaker) allow() (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateOpen:
		if b.now().Sub(b.openedAt) < b.cfg.Cooldown {
			return 0, domain.ErrCircuitOpen
		}
		b.transition(StateHalfOpen)
		b.trialActive = true
		return b.generation, nil
	case StateHalfOpen:
		if b.trialActive {
			return 0, domain.ErrCircuitOpen
		}
		b.trialActive = true
		return b.generation, nil
	default:
		return b.generation, nil
	}
}

// record reports the outcome of an admitted call. Outcomes from an older generation are ignored.
func (b *breaker) record(gen uint64, failed bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if gen != b.generation {
		return
	}

	switch b.state {
	case StateHalfOpen:
		b.trialActive = false
		if failed {
			b.trip()
			return
		}
		b.transition(StateClosed)
	case StateClosed:
		now := b.now()
		b.prune(now)
		b.window = append(b.window, outcome{at: now, failed: failed})
		if !failed {
			b.consecutive = 0
			return
		}
		b.consecutive++
		if b.shouldTrip() {
			b.trip()
		}
	}
}

// release gives back an admitted call that produced no verdict (caller cancelled).
func (b *breaker) release(gen uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if gen == b.generation && b.state == StateHalfOpen {
		b.trialActive = false
	}
}

func (b *breaker) shouldTrip() bool {
	if b.consecutive >= b.cfg.FailureThreshold {
		return true
	}
	if b.cfg.FailureRatio <= 0 {
		return false
	}
	failures := 0
	for _, o := range b.window {
		if o.failed {
			failures++
		}
	}
	return failures >= b.cfg.FailureThreshold &&
		float64(failures)/float64(len(b.window)) >= b.cfg.FailureRatio
}

func (b *breaker) trip() {
	b.openedAt = b.now()
	b.transition(StateOpen)
}

// transition must be called with mu held.
func (b *breaker) transition(to State) {
	from := b.state
	b.state = to
	b.generation++
	b.trialActive = false
	if to == StateClosed {
		b.consecutive = 0
		b.window = nil
	}
	if from != to && b.onChange != nil {
		b.onChange(from, to)
	}
}

func (b *breaker) prune(now time.Time) {
	cutoff := now.Add(-b.cfg.Window)
	i := 0
	for i < len(b.window) && b.window[i].at.Before(cutoff) {
		i++
	}
	b.window = b.window[i:]
}

func (b *breaker) snapshot() BreakerSnapshot {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.prune(b.now())
	s := BreakerSnapshot{
		State:               b.state,
		StateName:           b.state.String(),
		ConsecutiveFailures: b.consecutive,
		WindowRequests:      len(b.window),
	}
	for _, o := range b.window {
		if o.failed {
			s.WindowFailures++
		}
	}
	if b.state != StateClosed {
		s.OpenedAt = b.openedAt
		s.RetryAt = b.openedAt.Add(b.cfg.Cooldown)
	}
	return s
}
