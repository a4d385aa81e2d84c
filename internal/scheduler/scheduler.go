// Package scheduler implements the Sync Scheduler (C10): the top-level
// loop that ticks the Event Sync Engine for every enabled instance, plus
// the supplementary rewards-event and TVL sub-tasks that ride alongside it.
package scheduler

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/r3e-network/oracle-observatory/infrastructure/logging"
	"github.com/r3e-network/oracle-observatory/infrastructure/metrics"
	"github.com/r3e-network/oracle-observatory/internal/domain/oracle"
	syncengine "github.com/r3e-network/oracle-observatory/internal/sync"
)

const (
	tickInterval         = 30 * time.Second
	initialDelay         = 5 * time.Second
	instanceSyncTimeout  = 120 * time.Second
	maxConsecutiveErrors = 5

	defaultRewardsInterval = 5 * time.Minute
	defaultTVLInterval     = 10 * time.Minute
)

// InstanceLister returns the current enabled instance list. A failure is
// treated as best-effort: the scheduler keeps its previous list.
type InstanceLister func(ctx context.Context) ([]oracle.ProtocolInstance, error)

// SubTaskFunc is a supplementary per-instance task (rewards sync, TVL
// snapshot). Errors are logged, never escalated to the main loop's
// circuit breaker.
type SubTaskFunc func(ctx context.Context, instance oracle.ProtocolInstance) error

// Scheduler drives the main sync loop described in §4.9, grounded on the
// ticker/cancel/waitgroup lifecycle shape the teacher repo uses for its
// background dispatchers.
type Scheduler struct {
	engine   *syncengine.Engine
	lister   InstanceLister
	logger   *logging.Logger
	metrics  *metrics.Metrics

	rewardsSync     SubTaskFunc
	tvlSnapshot     SubTaskFunc
	rewardsInterval time.Duration
	tvlInterval     time.Duration

	mu        sync.Mutex
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	running   bool
	instances []oracle.ProtocolInstance

	inFlight          map[string]bool
	consecutiveErrors int
	stopped           bool
}

// New constructs a Scheduler. rewardsSync/tvlSnapshot may be nil, in which
// case the corresponding sub-task is a no-op tick.
func New(engine *syncengine.Engine, lister InstanceLister, logger *logging.Logger, m *metrics.Metrics, rewardsSync, tvlSnapshot SubTaskFunc) *Scheduler {
	return &Scheduler{
		engine:          engine,
		lister:          lister,
		logger:          logger,
		metrics:         m,
		rewardsSync:     rewardsSync,
		tvlSnapshot:     tvlSnapshot,
		rewardsInterval: defaultRewardsInterval,
		tvlInterval:     defaultTVLInterval,
		inFlight:        make(map[string]bool),
	}
}

// WithSubTaskIntervals overrides the rewards/TVL tick cadence from a
// cron-style spec ("@every 5m" or a duration literal), mirroring the
// env-var overrides UMA_REWARDS_SYNC_INTERVAL_MS/UMA_TVL_SYNC_INTERVAL_MS
// resolve to once parsed as durations.
func (s *Scheduler) WithSubTaskIntervals(rewardsSpec, tvlSpec string) error {
	if rewardsSpec != "" {
		d, err := parseIntervalSpec(rewardsSpec)
		if err != nil {
			return err
		}
		s.rewardsInterval = d
	}
	if tvlSpec != "" {
		d, err := parseIntervalSpec(tvlSpec)
		if err != nil {
			return err
		}
		s.tvlInterval = d
	}
	return nil
}

// SetSubTaskIntervals overrides the rewards/TVL tick cadence directly,
// for callers that have already resolved a duration (e.g. from the
// UMA_REWARDS_SYNC_INTERVAL_MS/UMA_TVL_SYNC_INTERVAL_MS env overrides)
// rather than a cron-style spec string.
func (s *Scheduler) SetSubTaskIntervals(rewards, tvl time.Duration) {
	if rewards > 0 {
		s.rewardsInterval = rewards
	}
	if tvl > 0 {
		s.tvlInterval = tvl
	}
}

// parseIntervalSpec accepts either a cron "@every" spec or a plain
// duration literal, generalizing the teacher's parseInterval helper with
// robfig/cron's schedule parser so standard cron expressions also work.
func parseIntervalSpec(spec string) (time.Duration, error) {
	spec = strings.TrimSpace(spec)
	if strings.HasPrefix(spec, "@every") {
		return time.ParseDuration(strings.TrimSpace(spec[len("@every"):]))
	}
	if d, err := time.ParseDuration(spec); err == nil {
		return d, nil
	}
	// Fall back to a full cron parse so a standard 5-field expression is
	// accepted too; since we only need a fixed interval, approximate it by
	// the gap between the next two scheduled activations.
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	schedule, err := parser.Parse(spec)
	if err != nil {
		return 0, err
	}
	now := time.Now()
	first := schedule.Next(now)
	second := schedule.Next(first)
	return second.Sub(first), nil
}

// Start launches the main loop and both sub-tasks. Idempotent: a second
// call while already running is a no-op.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.running = true
	s.stopped = false
	s.mu.Unlock()

	s.wg.Add(3)
	go s.runMainLoop(runCtx)
	go s.runSubTask(runCtx, "rewards-sync", s.rewardsInterval, s.rewardsSync)
	go s.runSubTask(runCtx, "tvl-snapshot", s.tvlInterval, s.tvlSnapshot)
}

// Stop is synchronous: it cancels the run context and waits for the main
// loop and both sub-tasks to observe cancellation and return. Outstanding
// ticks finish naturally; none reschedule after Stop returns.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	cancel := s.cancel
	s.running = false
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.wg.Wait()
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Terminated reports whether the loop self-stopped via the circuit
// breaker (consecutiveErrors >= maxConsecutiveErrors). Operators must
// call Start again after addressing the underlying failure.
func (s *Scheduler) Terminated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

func (s *Scheduler) runMainLoop(ctx context.Context) {
	defer s.wg.Done()

	select {
	case <-ctx.Done():
		return
	case <-time.After(initialDelay):
	}

	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if s.tick(ctx) {
				return
			}
		}
	}
}

// tick runs one scheduler cycle. It returns true if the circuit breaker
// tripped and the loop should stop.
func (s *Scheduler) tick(ctx context.Context) bool {
	if instances, err := s.lister(ctx); err != nil {
		if s.logger != nil {
			s.logger.Warn(ctx, "scheduler instance refresh failed, keeping previous list", map[string]interface{}{"error": err.Error()})
		}
	} else {
		s.mu.Lock()
		s.instances = instances
		s.mu.Unlock()
	}

	s.mu.Lock()
	instances := append([]oracle.ProtocolInstance(nil), s.instances...)
	s.mu.Unlock()

	var wg sync.WaitGroup
	var mu sync.Mutex
	successCount, failureCount := 0, 0

	for _, instance := range instances {
		if !instance.Enabled {
			continue
		}
		s.mu.Lock()
		already := s.inFlight[instance.ID]
		if !already {
			s.inFlight[instance.ID] = true
		}
		s.mu.Unlock()
		if already {
			continue
		}

		wg.Add(1)
		go func(inst oracle.ProtocolInstance) {
			defer wg.Done()
			defer func() {
				s.mu.Lock()
				delete(s.inFlight, inst.ID)
				s.mu.Unlock()
			}()

			syncCtx, cancel := context.WithTimeout(ctx, instanceSyncTimeout)
			defer cancel()

			err := s.engine.EnsureSynced(syncCtx, inst)

			mu.Lock()
			if err != nil {
				failureCount++
			} else {
				successCount++
			}
			mu.Unlock()
		}(instance)
	}

	wg.Wait()

	s.mu.Lock()
	defer s.mu.Unlock()
	if failureCount == 0 {
		s.consecutiveErrors = 0
		return false
	}
	s.consecutiveErrors++
	if s.consecutiveErrors >= maxConsecutiveErrors {
		s.stopped = true
		s.running = false
		if s.metrics != nil {
			s.metrics.RecordError("scheduler_circuit_broken")
		}
		if s.logger != nil {
			s.logger.Warn(ctx, "sync scheduler circuit-broken after consecutive failing ticks; operator restart required", map[string]interface{}{
				"consecutive_errors": s.consecutiveErrors,
			})
		}
		return true
	}
	return false
}

func (s *Scheduler) runSubTask(ctx context.Context, name string, interval time.Duration, fn SubTaskFunc) {
	defer s.wg.Done()
	if interval <= 0 {
		interval = defaultRewardsInterval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	inFlight := make(map[string]bool)
	var mu sync.Mutex

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if fn == nil {
				continue
			}
			s.mu.Lock()
			instances := append([]oracle.ProtocolInstance(nil), s.instances...)
			s.mu.Unlock()

			for _, instance := range instances {
				if !instance.Enabled {
					continue
				}
				mu.Lock()
				already := inFlight[instance.ID]
				if !already {
					inFlight[instance.ID] = true
				}
				mu.Unlock()
				if already {
					continue
				}

				go func(inst oracle.ProtocolInstance) {
					defer func() {
						mu.Lock()
						delete(inFlight, inst.ID)
						mu.Unlock()
					}()
					taskCtx, cancel := context.WithTimeout(ctx, instanceSyncTimeout)
					defer cancel()
					if err := fn(taskCtx, inst); err != nil && s.logger != nil {
						s.logger.Warn(taskCtx, name+" sub-task failed", map[string]interface{}{
							"instance_id": inst.ID,
							"error":       err.Error(),
						})
					}
				}(instance)
			}
		}
	}
}
