// Package marketclock tracks whether the US equity market is currently
// in its regular trading session.
package marketclock

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// DefaultTimezone is the exchange timezone used when none is configured
const DefaultTimezone = "America/New_York"

const (
	// Regular session bounds: 9:30 <= t < 16:00, Monday through Friday
	openHour    = 9
	openMinute  = 30
	closeHour   = 16
	closeMinute = 0

	// How often the background loop recomputes the cached state
	recomputeInterval = 60 * time.Second
)

// Config holds market clock configuration
type Config struct {
	Timezone string
	Log      zerolog.Logger
}

// Clock caches the open/closed state of the market so that hot paths
// never pay for timezone math. The cached value is recomputed once a
// minute by a background loop, lazily when it was never computed, and
// on demand via ForceRecompute.
type Clock struct {
	loc *time.Location
	log zerolog.Logger

	// Cache (protected by mu)
	mu     sync.RWMutex
	open   bool
	primed bool
	asOf   time.Time

	// Lifecycle
	lifecycleMu sync.Mutex
	started     bool
	stopped     bool
	stop        chan struct{}
	wg          sync.WaitGroup
}

// Status is a point-in-time snapshot of the clock state
type Status struct {
	Open     bool      `json:"open"`
	Timezone string    `json:"timezone"`
	AsOf     time.Time `json:"as_of"`
}

// New creates a market clock for the given timezone
func New(cfg Config) *Clock {
	tz := cfg.Timezone
	if tz == "" {
		tz = DefaultTimezone
	}

	log := cfg.Log.With().Str("component", "market_clock").Logger()

	loc, err := time.LoadLocation(tz)
	if err != nil {
		log.Warn().
			Err(err).
			Str("timezone", tz).
			Msg("Failed to load timezone, using UTC")
		loc = time.UTC
	}

	return &Clock{
		loc:  loc,
		log:  log,
		stop: make(chan struct{}),
	}
}

// IsOpenAt reports whether the regular session is in progress at t.
// Weekends are closed; holidays are not modelled, so a holiday weekday
// counts as open.
func (c *Clock) IsOpenAt(t time.Time) bool {
	mt := t.In(c.loc)

	switch mt.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}

	openTime := time.Date(mt.Year(), mt.Month(), mt.Day(), openHour, openMinute, 0, 0, c.loc)
	closeTime := time.Date(mt.Year(), mt.Month(), mt.Day(), closeHour, closeMinute, 0, 0, c.loc)

	// Open boundary is inclusive, close boundary is exclusive
	return !mt.Before(openTime) && mt.Before(closeTime)
}

// Open returns the cached open/closed state. If the cache was never
// primed it recomputes synchronously first.
func (c *Clock) Open() bool {
	c.mu.RLock()
	primed := c.primed
	open := c.open
	c.mu.RUnlock()

	if !primed {
		return c.recompute()
	}
	return open
}

// ForceRecompute refreshes the cached state immediately. Called after
// the app returns to the foreground, where the minute loop may have
// been asleep for a long time.
func (c *Clock) ForceRecompute() {
	c.recompute()
}

// Status returns the current clock state for API consumers
func (c *Clock) Status() Status {
	open := c.Open()

	c.mu.RLock()
	asOf := c.asOf
	c.mu.RUnlock()

	return Status{
		Open:     open,
		Timezone: c.loc.String(),
		AsOf:     asOf,
	}
}

func (c *Clock) recompute() bool {
	now := time.Now()
	open := c.IsOpenAt(now)

	c.mu.Lock()
	changed := !c.primed || c.open != open
	c.open = open
	c.primed = true
	c.asOf = now
	c.mu.Unlock()

	if changed {
		c.log.Info().
			Bool("open", open).
			Str("timezone", c.loc.String()).
			Msg("Market session state changed")
	}
	return open
}

// Start launches the background recompute loop
func (c *Clock) Start() {
	c.lifecycleMu.Lock()
	defer c.lifecycleMu.Unlock()

	// Prevent multiple starts
	if c.started && !c.stopped {
		c.log.Warn().Msg("Market clock already started, ignoring")
		return
	}

	if c.stopped {
		// Reset stop channel if it was stopped
		c.stop = make(chan struct{})
		c.stopped = false
	}

	c.started = true
	c.recompute()
	c.log.Info().Str("timezone", c.loc.String()).Msg("Market clock started")

	ticker := time.NewTicker(recomputeInterval)
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for {
			select {
			case <-c.stop:
				ticker.Stop()
				return
			case <-ticker.C:
				c.recompute()
			}
		}
	}()
}

// Stop stops the background loop and waits for it to finish
func (c *Clock) Stop() {
	c.lifecycleMu.Lock()
	if c.stopped {
		c.lifecycleMu.Unlock()
		return
	}

	close(c.stop)
	c.stopped = true
	c.started = false
	c.lifecycleMu.Unlock()

	c.wg.Wait()
	c.log.Info().Msg("Market clock stopped")
}
