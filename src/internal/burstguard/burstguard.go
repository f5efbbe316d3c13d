// Package burstguard coalesces bursts of change notifications into a single deferred action.
//
// The OS usually reports one logical topology change (a DHCP renewal, a Wi-Fi roam) as a
// flurry of route, link and address messages. Running an expensive re-evaluation for each
// of them is wasteful, so callers Trigger a BurstGuard instead and the wrapped action runs
// once the burst is over.
package burstguard

import (
	"sync"
	"time"

	"github.com/maksimkurb/tunroute/src/internal/log"
)

const (
	// DefaultBufferPeriod is how long the guard waits for another trigger before firing.
	DefaultBufferPeriod = 200 * time.Millisecond
	// DefaultLongestBufferPeriod bounds the delay from the first trigger of a burst to firing.
	DefaultLongestBufferPeriod = 2 * time.Second
)

// Config holds the timing of a BurstGuard. Zero values are replaced by the defaults.
type Config struct {
	// BufferPeriod is the quiescence window: the action fires once no trigger has
	// arrived for this long.
	BufferPeriod time.Duration
	// LongestBufferPeriod is the maximum total delay between the first trigger of a burst
	// and the action, so continuous triggering cannot starve it.
	LongestBufferPeriod time.Duration
}

// BurstGuard runs its action at most once per burst of Trigger calls, never concurrently
// with itself, and always eventually.
type BurstGuard struct {
	cfg    Config
	action func()

	trigger  chan struct{}
	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// New creates a BurstGuard and starts its worker goroutine.
func New(cfg Config, action func()) *BurstGuard {
	if cfg.BufferPeriod <= 0 {
		cfg.BufferPeriod = DefaultBufferPeriod
	}
	if cfg.LongestBufferPeriod <= 0 {
		cfg.LongestBufferPeriod = DefaultLongestBufferPeriod
	}
	if cfg.LongestBufferPeriod < cfg.BufferPeriod {
		cfg.LongestBufferPeriod = cfg.BufferPeriod
	}

	g := &BurstGuard{
		cfg:     cfg,
		action:  action,
		trigger: make(chan struct{}, 1),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	go g.run()
	return g
}

// Trigger requests a deferred run of the action. It never blocks and may be called from
// any goroutine, including from inside the action itself. Triggers after Stop are ignored.
func (g *BurstGuard) Trigger() {
	select {
	case g.trigger <- struct{}{}:
	default:
		// A trigger is already pending; it covers this one.
	}
}

// Stop cancels any pending firing and blocks until an in-flight action has returned.
// After Stop returns the action is never called again. Stop is idempotent but must not be
// called from inside the action.
func (g *BurstGuard) Stop() {
	g.stopOnce.Do(func() {
		close(g.stop)
	})
	<-g.done
}

func (g *BurstGuard) run() {
	defer close(g.done)

	for {
		select {
		case <-g.stop:
			return
		case <-g.trigger:
		}

		if !g.waitForQuiescence() {
			return
		}
		g.fire()
	}
}

// waitForQuiescence returns true when the burst is over and the action should fire,
// or false if the guard was stopped meanwhile.
func (g *BurstGuard) waitForQuiescence() bool {
	start := time.Now()
	timer := time.NewTimer(g.cfg.BufferPeriod)
	defer timer.Stop()

	for {
		select {
		case <-g.stop:
			return false

		case <-timer.C:
			return true

		case <-g.trigger:
			remaining := g.cfg.LongestBufferPeriod - time.Since(start)
			if remaining <= 0 {
				return true
			}
			wait := g.cfg.BufferPeriod
			if remaining < wait {
				wait = remaining
			}
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(wait)
		}
	}
}

func (g *BurstGuard) fire() {
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("Burst guard action panicked: %v", r)
		}
	}()
	g.action()
}
