// Package runstate holds the start/stop state machine shared by the HTTP
// components. States: stopped, starting, running, stopping.
package runstate

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/c360studio/semstreams/component"
)

const (
	stateStopped int32 = iota
	stateStarting
	stateRunning
	stateStopping
)

// State tracks one component's lifecycle. The zero value is stopped.
type State struct {
	state     atomic.Int32
	mu        sync.RWMutex
	startTime time.Time
	cancel    context.CancelFunc
}

// Start moves stopped to running and returns a context cancelled by Stop.
func (s *State) Start(ctx context.Context) (context.Context, error) {
	if !s.state.CompareAndSwap(stateStopped, stateStarting) {
		current := s.state.Load()
		if current == stateRunning || current == stateStarting {
			return nil, fmt.Errorf("component already running or starting")
		}
		return nil, fmt.Errorf("component in invalid state: %d", current)
	}

	runCtx, cancel := context.WithCancel(ctx)

	s.mu.Lock()
	s.cancel = cancel
	s.startTime = time.Now()
	s.mu.Unlock()

	s.state.Store(stateRunning)
	return runCtx, nil
}

// Stop moves running to stopped. Stopping a stopped component is a no-op
// and reports false.
func (s *State) Stop() (bool, error) {
	if !s.state.CompareAndSwap(stateRunning, stateStopping) {
		current := s.state.Load()
		if current == stateStopped || current == stateStopping {
			return false, nil
		}
		return false, fmt.Errorf("component in unexpected state: %d", current)
	}

	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	s.state.Store(stateStopped)
	return true, nil
}

// Running reports whether the component is serving.
func (s *State) Running() bool {
	return s.state.Load() == stateRunning
}

// Health reports the current state.
func (s *State) Health() component.HealthStatus {
	state := s.state.Load()

	s.mu.RLock()
	startTime := s.startTime
	s.mu.RUnlock()

	status := "stopped"
	switch state {
	case stateStarting:
		status = "starting"
	case stateRunning:
		status = "running"
	case stateStopping:
		status = "stopping"
	}

	var uptime time.Duration
	if state == stateRunning {
		uptime = time.Since(startTime)
	}

	return component.HealthStatus{
		Healthy:   state == stateRunning,
		LastCheck: time.Now(),
		Uptime:    uptime,
		Status:    status,
	}
}
