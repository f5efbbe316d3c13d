package commands

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/maksimkurb/tunroute/src/internal/log"
)

// Supervisor runs a long-lived task in a goroutine and restarts it with exponential
// backoff when it fails or panics. A task that returns nil is not restarted.
//
// The task must return once its context is cancelled.
type Supervisor struct {
	cfg  SupervisorConfig
	task func(ctx context.Context) error

	mu       sync.Mutex
	cancel   context.CancelFunc
	done     chan struct{}
	lastErr  error
	restarts int
}

// SupervisorConfig contains configuration for Supervisor.
type SupervisorConfig struct {
	Name string
	// MaxRestarts stops the supervisor after this many failures. Zero means unlimited.
	MaxRestarts int
	// InitialBackoff is the delay before the first restart (default: 1s).
	InitialBackoff time.Duration
	// MaxBackoff caps the doubling delay (default: 30s).
	MaxBackoff time.Duration
	// StopTimeout bounds how long Stop waits for the task (default: 30s).
	StopTimeout time.Duration
}

// NewSupervisor creates a stopped supervisor for task.
func NewSupervisor(cfg SupervisorConfig, task func(ctx context.Context) error) *Supervisor {
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = time.Second
	}
	if cfg.MaxBackoff < cfg.InitialBackoff {
		cfg.MaxBackoff = 30 * time.Second
	}
	if cfg.StopTimeout <= 0 {
		cfg.StopTimeout = 30 * time.Second
	}
	return &Supervisor{cfg: cfg, task: task}
}

// Start launches the task. It fails if the supervisor is already running.
func (s *Supervisor) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.done != nil {
		return fmt.Errorf("%s is already running", s.cfg.Name)
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.lastErr = nil
	s.restarts = 0

	go s.loop(runCtx, s.done)
	return nil
}

// Stop cancels the task and waits for it to return.
func (s *Supervisor) Stop() error {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.mu.Unlock()

	if done == nil {
		return nil
	}
	cancel()

	select {
	case <-done:
	case <-time.After(s.cfg.StopTimeout):
		return fmt.Errorf("%s: timeout waiting for stop", s.cfg.Name)
	}

	s.mu.Lock()
	s.cancel, s.done = nil, nil
	s.mu.Unlock()
	return nil
}

// IsRunning reports whether the task loop is active.
func (s *Supervisor) IsRunning() bool {
	s.mu.Lock()
	done := s.done
	s.mu.Unlock()

	if done == nil {
		return false
	}
	select {
	case <-done:
		return false
	default:
		return true
	}
}

// LastError returns the error of the most recent run.
func (s *Supervisor) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// RestartCount returns how many times the task failed since Start.
func (s *Supervisor) RestartCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.restarts
}

func (s *Supervisor) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	backoff := s.cfg.InitialBackoff
	for {
		err := s.runOnce(ctx)

		s.mu.Lock()
		s.lastErr = err
		if err != nil && ctx.Err() == nil {
			s.restarts++
		}
		restarts := s.restarts
		s.mu.Unlock()

		if ctx.Err() != nil {
			log.Debugf("%s: stopped", s.cfg.Name)
			return
		}
		if err == nil {
			log.Infof("%s: exited cleanly", s.cfg.Name)
			return
		}
		if s.cfg.MaxRestarts > 0 && restarts >= s.cfg.MaxRestarts {
			log.Errorf("%s: max restarts (%d) reached, giving up. Last error: %v", s.cfg.Name, s.cfg.MaxRestarts, err)
			return
		}

		log.Errorf("%s: failed: %v. Restarting in %v (restart #%d)", s.cfg.Name, err, backoff, restarts)

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		backoff = min(backoff*2, s.cfg.MaxBackoff)
	}
}

func (s *Supervisor) runOnce(ctx context.Context) (err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("panic: %v", recovered)
		}
	}()

	return s.task(ctx)
}
