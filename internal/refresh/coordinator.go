// Package refresh implements the polling coordinator that multiplexes
// many subscribers onto deduplicated fetch streams. Cadence adapts to
// market hours and app foreground state, with exponential backoff after
// repeated failures.
package refresh

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jpillora/backoff"
	"github.com/rs/zerolog"

	"github.com/pocketfolio/pocketfolio/internal/marketclock"
)

// FetchFunc loads fresh data for one stream. It must respect ctx: a
// fetch that ignores cancellation risks stale writes after teardown.
// Failures are reported through the returned error and are never
// surfaced to subscribers; the fetch implementation owns recording its
// own error state wherever it writes results.
type FetchFunc func(ctx context.Context) error

// Gate reports whether the reference market is in its trading session
type Gate interface {
	Open() bool
	ForceRecompute()
}

const (
	// Polling slows down by this factor outside trading hours
	closedMarketMultiplier = 5

	// A stream is stale when its last success is older than this factor
	// times the effective interval. Generous on purpose, so normal
	// scheduling jitter never flags a healthy stream.
	staleFactor = 1.5

	defaultBackoffMin = 30 * time.Second
	defaultBackoffMax = 5 * time.Minute
)

// stream is the unit of scheduled work. All fields are protected by the
// coordinator mutex.
type stream struct {
	key          string
	fetch        FetchFunc
	baseInterval time.Duration

	// Subscription tokens. The stream is torn down when the last one
	// unsubscribes.
	subs map[string]struct{}

	lastFetchedAt     time.Time
	consecutiveErrors int
	fetching          bool

	// Pending timer for the next scheduled fetch, nil if none. timerGen
	// invalidates callbacks from timers that fired before being cleared
	// but have not taken the lock yet.
	timer    *time.Timer
	timerGen uint64

	// Live only while a fetch is in flight
	cancel context.CancelFunc
}

// Config holds coordinator configuration. All fields are optional: a
// nil Gate makes the coordinator own its own market clock, and zero
// backoff bounds fall back to the 30s..5m defaults.
type Config struct {
	Gate Gate
	Log  zerolog.Logger

	BackoffMin time.Duration
	BackoffMax time.Duration
}

// Coordinator owns the registry of named fetch streams. Construct one
// per process with New and tear it down with Stop.
type Coordinator struct {
	log  zerolog.Logger
	gate Gate
	boff *backoff.Backoff

	// Set when the coordinator constructed its own market clock; Stop
	// owns its lifecycle then.
	ownedClock *marketclock.Clock

	mu      sync.Mutex
	streams map[string]*stream
	paused  bool
	stopped bool

	// Parent of every per-fetch context
	rootCtx    context.Context
	rootCancel context.CancelFunc
}

// New creates a refresh coordinator
func New(cfg Config) *Coordinator {
	log := cfg.Log.With().Str("component", "refresh_coordinator").Logger()

	gate := cfg.Gate
	var owned *marketclock.Clock
	if gate == nil {
		owned = marketclock.New(marketclock.Config{Log: cfg.Log})
		owned.Start()
		gate = owned
	}

	min := cfg.BackoffMin
	if min <= 0 {
		min = defaultBackoffMin
	}
	max := cfg.BackoffMax
	if max <= 0 {
		max = defaultBackoffMax
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Coordinator{
		log:        log,
		gate:       gate,
		boff:       &backoff.Backoff{Min: min, Max: max, Factor: 2},
		ownedClock: owned,
		streams:    make(map[string]*stream),
		rootCtx:    ctx,
		rootCancel: cancel,
	}
}

// Subscribe attaches a subscriber to the stream identified by key,
// creating the stream on first subscription. A fresh stream fetches
// immediately when the coordinator is not paused. When the stream
// already exists, fn and interval are ignored: the first subscriber
// defines the contract for a key, later ones only add a refcount.
//
// The returned function detaches this subscriber. It is safe to call
// more than once; only the first call counts.
func (c *Coordinator) Subscribe(key string, fn FetchFunc, interval time.Duration) (func(), error) {
	noop := func() {}

	if key == "" {
		return noop, fmt.Errorf("stream key must not be empty")
	}
	if fn == nil {
		return noop, fmt.Errorf("fetch function must not be nil")
	}
	if interval <= 0 {
		return noop, fmt.Errorf("base interval must be positive, got %s", interval)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stopped {
		return noop, fmt.Errorf("coordinator is stopped")
	}

	token := uuid.New().String()

	s, exists := c.streams[key]
	if exists {
		s.subs[token] = struct{}{}
		c.log.Debug().
			Str("key", key).
			Int("subscribers", len(s.subs)).
			Msg("Subscriber attached to existing stream")

		// Revive a dormant stream: nothing pending and nothing in
		// flight means no reschedule is coming on its own.
		if s.timer == nil && !s.fetching && !c.paused {
			c.startFetchLocked(s)
		}
	} else {
		s = &stream{
			key:          key,
			fetch:        fn,
			baseInterval: interval,
			subs:         map[string]struct{}{token: {}},
		}
		c.streams[key] = s
		c.log.Info().
			Str("key", key).
			Dur("base_interval", interval).
			Msg("Stream registered")

		if !c.paused {
			c.startFetchLocked(s)
		}
	}

	return c.unsubscribeFunc(s, token), nil
}

// unsubscribeFunc builds the single-use detach closure for one token
func (c *Coordinator) unsubscribeFunc(s *stream, token string) func() {
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()

		// The stream may have been torn down and recreated under the
		// same key since this subscription was issued.
		if cur, ok := c.streams[s.key]; !ok || cur != s {
			return
		}
		if _, ok := s.subs[token]; !ok {
			return
		}
		delete(s.subs, token)

		if len(s.subs) > 0 {
			c.log.Debug().
				Str("key", s.key).
				Int("subscribers", len(s.subs)).
				Msg("Subscriber detached")
			return
		}
		c.removeStreamLocked(s)
	}
}

// removeStreamLocked tears the stream down completely. A later
// Subscribe with the same key starts from scratch.
func (c *Coordinator) removeStreamLocked(s *stream) {
	c.clearTimerLocked(s)
	if s.cancel != nil {
		s.cancel()
	}
	delete(c.streams, s.key)
	c.log.Info().Str("key", s.key).Msg("Stream removed")
}

// Pause cancels every pending timer and in-flight fetch. Streams stay
// registered with their subscribers intact but issue no fetches until
// Resume. Called when the app moves to the background.
func (c *Coordinator) Pause() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stopped {
		return
	}
	c.paused = true

	for _, s := range c.streams {
		c.clearTimerLocked(s)
		if s.cancel != nil {
			s.cancel()
		}
	}
	c.log.Info().Int("streams", len(c.streams)).Msg("Refresh paused")
}

// Resume reactivates scheduling, refreshes the market-hours cache and
// immediately fetches every registered stream so the foreground always
// comes back to fresh data.
func (c *Coordinator) Resume() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stopped {
		return
	}
	c.paused = false
	c.gate.ForceRecompute()

	for _, s := range c.streams {
		c.startFetchLocked(s)
	}
	c.log.Info().Int("streams", len(c.streams)).Msg("Refresh resumed")
}

// Refresh fetches key immediately, out of band from its schedule, and
// blocks until that fetch settles. It returns right away when the key
// is unknown, the coordinator is paused or stopped, or a fetch is
// already in flight.
func (c *Coordinator) Refresh(key string) {
	c.mu.Lock()
	if c.stopped || c.paused {
		c.mu.Unlock()
		return
	}
	s, ok := c.streams[key]
	if !ok {
		c.mu.Unlock()
		return
	}
	done := c.startFetchLocked(s)
	c.mu.Unlock()

	if done != nil {
		<-done
	}
}

// RefreshAll refreshes every registered stream concurrently and waits
// for all of them to settle
func (c *Coordinator) RefreshAll() {
	c.mu.Lock()
	keys := make([]string, 0, len(c.streams))
	for key := range c.streams {
		keys = append(keys, key)
	}
	c.mu.Unlock()

	var wg sync.WaitGroup
	for _, key := range keys {
		wg.Add(1)
		go func(k string) {
			defer wg.Done()
			c.Refresh(k)
		}(key)
	}
	wg.Wait()
}

// Stop cancels everything and clears the registry. Used for process
// teardown; the coordinator does not accept new subscriptions after.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return
	}
	c.stopped = true

	for _, s := range c.streams {
		c.clearTimerLocked(s)
		if s.cancel != nil {
			s.cancel()
		}
	}
	count := len(c.streams)
	c.streams = make(map[string]*stream)
	c.mu.Unlock()

	c.rootCancel()

	if c.ownedClock != nil {
		c.ownedClock.Stop()
	}
	c.log.Info().Int("streams", count).Msg("Refresh coordinator stopped")
}

// startFetchLocked begins a fetch for s unless one is already in
// flight. Any pending timer is consumed. Returns a channel closed when
// the fetch settles, or nil when suppressed. Caller must hold c.mu.
func (c *Coordinator) startFetchLocked(s *stream) <-chan struct{} {
	if s.fetching || c.stopped {
		return nil
	}

	c.clearTimerLocked(s)

	ctx, cancel := context.WithCancel(c.rootCtx)
	done := make(chan struct{})

	s.fetching = true
	s.cancel = cancel

	c.log.Debug().Str("key", s.key).Msg("Fetch started")

	go c.runFetch(ctx, cancel, s, done)
	return done
}

// runFetch executes the fetch outside the lock and settles the result
func (c *Coordinator) runFetch(ctx context.Context, cancel context.CancelFunc, s *stream, done chan struct{}) {
	defer close(done)
	defer cancel()

	err := s.fetch(ctx)

	// Read before the deferred cancel fires, otherwise every fetch
	// would look cancelled.
	cancelled := ctx.Err() == context.Canceled

	c.settle(s, err, cancelled)
}

// settle records the outcome of a fetch and chains the next cycle
func (c *Coordinator) settle(s *stream, err error, cancelled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// The stream may have been removed, or replaced under the same key,
	// while the fetch was running.
	if cur, ok := c.streams[s.key]; !ok || cur != s {
		return
	}

	s.fetching = false
	s.cancel = nil

	switch {
	case cancelled:
		// Cancellation is not evidence of failure: no counter bump, no
		// last-fetched update.
		c.log.Debug().Str("key", s.key).Msg("Fetch cancelled")
	case err != nil:
		s.consecutiveErrors++
		c.log.Warn().
			Err(err).
			Str("key", s.key).
			Int("consecutive_errors", s.consecutiveErrors).
			Msg("Fetch failed")
	default:
		s.lastFetchedAt = time.Now()
		if s.consecutiveErrors > 0 {
			c.log.Info().
				Str("key", s.key).
				Int("recovered_after", s.consecutiveErrors).
				Msg("Fetch recovered")
		}
		s.consecutiveErrors = 0
		c.log.Debug().Str("key", s.key).Msg("Fetch succeeded")
	}

	if c.paused || c.stopped {
		return
	}
	c.scheduleLocked(s, c.nextDelayLocked(s))
}

// scheduleLocked arms the timer for the next fetch. Caller must hold
// c.mu.
func (c *Coordinator) scheduleLocked(s *stream, delay time.Duration) {
	c.clearTimerLocked(s)
	gen := s.timerGen
	s.timer = time.AfterFunc(delay, func() {
		c.timerFired(s, gen)
	})
	c.log.Debug().
		Str("key", s.key).
		Dur("delay", delay).
		Msg("Next fetch scheduled")
}

// clearTimerLocked stops any pending timer and bumps the generation so
// a callback that already fired but has not taken the lock yet becomes
// a no-op. Caller must hold c.mu.
func (c *Coordinator) clearTimerLocked(s *stream) {
	s.timerGen++
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

func (c *Coordinator) timerFired(s *stream, gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if cur, ok := c.streams[s.key]; !ok || cur != s {
		return
	}
	if gen != s.timerGen {
		return
	}
	s.timer = nil

	if c.paused || c.stopped {
		return
	}
	c.startFetchLocked(s)
}

// nextDelayLocked computes the delay before the next fetch: the
// market-adjusted interval, plus backoff when the stream is failing.
// Caller must hold c.mu.
func (c *Coordinator) nextDelayLocked(s *stream) time.Duration {
	delay := c.effectiveIntervalLocked(s)
	if s.consecutiveErrors > 0 {
		delay += c.boff.ForAttempt(float64(s.consecutiveErrors - 1))
	}
	return delay
}

// effectiveIntervalLocked is the base interval, stretched when the
// market is closed. Caller must hold c.mu.
func (c *Coordinator) effectiveIntervalLocked(s *stream) time.Duration {
	if !c.gate.Open() {
		return s.baseInterval * closedMarketMultiplier
	}
	return s.baseInterval
}
