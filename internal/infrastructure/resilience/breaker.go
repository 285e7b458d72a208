package resilience

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"
)

// ErrCrashLoop is returned when a key's breaker refuses a restart.
var ErrCrashLoop = errors.New("crash loop detected")

// errCrashed is the failure recorded for an unexpected exit.
var errCrashed = errors.New("process crashed")

// Default guard settings
const (
	DefaultMaxFailures uint32 = 5
	DefaultInterval           = 5 * time.Minute
	DefaultTimeout            = time.Minute
)

// Settings configures a Guard
type Settings struct {
	// MaxFailures is the number of failures within Interval that opens a key's breaker
	MaxFailures uint32
	// Interval is the closed-state window after which failure counts reset
	Interval time.Duration
	// Timeout is how long a breaker stays open before allowing one probe
	Timeout time.Duration
	// OnStateChange is called whenever a key's breaker changes state
	OnStateChange func(key string, from, to gobreaker.State)
}

// Guard keeps one circuit breaker per key. Failures are start errors and
// unexpected exits; a key that keeps failing is refused until its timeout
// elapses, then allowed a single probe.
type Guard struct {
	settings Settings

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker[int]
}

// NewGuard creates a guard, filling zero settings with defaults
func NewGuard(settings Settings) *Guard {
	if settings.MaxFailures == 0 {
		settings.MaxFailures = DefaultMaxFailures
	}
	if settings.Interval == 0 {
		settings.Interval = DefaultInterval
	}
	if settings.Timeout == 0 {
		settings.Timeout = DefaultTimeout
	}
	return &Guard{
		settings: settings,
		breakers: make(map[string]*gobreaker.CircuitBreaker[int]),
	}
}

func (g *Guard) breaker(key string) *gobreaker.CircuitBreaker[int] {
	g.mu.Lock()
	defer g.mu.Unlock()

	if cb, ok := g.breakers[key]; ok {
		return cb
	}

	maxFailures := g.settings.MaxFailures
	cb := gobreaker.NewCircuitBreaker[int](gobreaker.Settings{
		Name:        key,
		MaxRequests: 1,
		Interval:    g.settings.Interval,
		Timeout:     g.settings.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.TotalFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			if g.settings.OnStateChange != nil {
				g.settings.OnStateChange(name, from, to)
			}
		},
	})
	g.breakers[key] = cb
	return cb
}

// Execute runs start through the key's breaker. start returns the new PID.
func (g *Guard) Execute(key string, start func() (int, error)) (int, error) {
	pid, err := g.breaker(key).Execute(start)
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return 0, fmt.Errorf("%w: %s: %w", ErrCrashLoop, key, err)
	}
	return pid, err
}

// RecordCrash counts an unexpected exit against the key
func (g *Guard) RecordCrash(key string) {
	_, _ = g.breaker(key).Execute(func() (int, error) {
		return 0, errCrashed
	})
}

// State returns the key's breaker state; unknown keys are closed
func (g *Guard) State(key string) gobreaker.State {
	g.mu.Lock()
	cb, ok := g.breakers[key]
	g.mu.Unlock()
	if !ok {
		return gobreaker.StateClosed
	}
	return cb.State()
}

// Counts returns the key's current counts
func (g *Guard) Counts(key string) gobreaker.Counts {
	g.mu.Lock()
	cb, ok := g.breakers[key]
	g.mu.Unlock()
	if !ok {
		return gobreaker.Counts{}
	}
	return cb.Counts()
}

// Forget drops the key's breaker
func (g *Guard) Forget(key string) {
	g.mu.Lock()
	delete(g.breakers, key)
	g.mu.Unlock()
}

// Len returns the number of tracked keys
func (g *Guard) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.breakers)
}
