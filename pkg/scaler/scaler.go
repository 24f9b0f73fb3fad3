package scaler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/bullscale/bullscale/pkg/config"
	"github.com/bullscale/bullscale/pkg/health"
	"github.com/bullscale/bullscale/pkg/orchestrator"
	"github.com/bullscale/bullscale/pkg/queue"
)

// QueueSource provides queue snapshots. *queue.Client implements it.
type QueueSource interface {
	Counts(ctx context.Context, prefix, name string) (queue.Snapshot, error)
}

// After this many consecutive failed polls the miss log escalates from
// warn to error. The loop never exits over queue unavailability; when the
// backend recovers, normal operation resumes on its own.
const missEscalation = 5

// rehydrateAttempts bounds startup retries against a transiently
// unavailable orchestrator; the delay doubles per attempt up to the cap.
const (
	rehydrateAttempts  = 5
	rehydrateBaseDelay = 2 * time.Second
	rehydrateMaxDelay  = 30 * time.Second
)

func rehydrateDelay(attempt int) time.Duration {
	d := rehydrateBaseDelay
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= rehydrateMaxDelay {
			return rehydrateMaxDelay
		}
	}
	return d
}

// Scaler is the autoscaling controller. It owns its State exclusively;
// evaluation and the resulting scale call are strictly sequential within
// one loop, so no two setReplicas calls can race on the same service.
type Scaler struct {
	cfg    config.ScalerConfig
	queue  QueueSource
	orch   orchestrator.Client
	rec    *health.Recorder
	logger *slog.Logger

	state  State
	misses int
}

// New builds a controller and rehydrates its state from the orchestrator's
// live replica count. The count is never assumed to be MinReplicas; after
// a crash the controller's view converges with reality here.
func New(ctx context.Context, cfg config.ScalerConfig, source QueueSource, orch orchestrator.Client, rec *health.Recorder, logger *slog.Logger) (*Scaler, error) {
	s := &Scaler{
		cfg:    cfg,
		queue:  source,
		orch:   orch,
		rec:    rec,
		logger: logger.With("component", "scaler", "service", cfg.ServiceName),
	}

	current, err := s.rehydrate(ctx)
	if err != nil {
		return nil, err
	}

	s.state = State{CurrentReplicas: current}
	s.logger.Info("controller state rehydrated", "replicas", current)
	return s, nil
}

func (s *Scaler) rehydrate(ctx context.Context) (int, error) {
	var lastErr error
	for attempt := 1; attempt <= rehydrateAttempts; attempt++ {
		opCtx, cancel := context.WithTimeout(ctx, s.cfg.OpTimeout())
		current, err := s.orch.CurrentReplicas(opCtx, s.cfg.ServiceName)
		cancel()

		if err == nil {
			return s.reconcileIntoBounds(ctx, current)
		}
		if orchestrator.IsPermanent(err) {
			return 0, fmt.Errorf("reading current replicas: %w", err)
		}

		lastErr = err
		delay := rehydrateDelay(attempt)
		s.logger.Warn("could not read current replicas, retrying", "attempt", attempt, "retry_in", delay.String(), "error", err)

		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-time.After(delay):
		}
	}

	return 0, fmt.Errorf("reading current replicas: %w", lastErr)
}

// reconcileIntoBounds pushes an out-of-bounds live count to the nearest
// bound before the loop starts, so the bounds invariant holds from the
// first cycle on.
func (s *Scaler) reconcileIntoBounds(ctx context.Context, current int) (int, error) {
	target := current
	if current < s.cfg.MinReplicas {
		target = s.cfg.MinReplicas
	} else if current > s.cfg.MaxReplicas {
		target = s.cfg.MaxReplicas
	}
	if target == current {
		return current, nil
	}

	s.logger.Info("live replica count outside bounds, reconciling", "current", current, "target", target)

	opCtx, cancel := context.WithTimeout(ctx, s.cfg.OpTimeout())
	defer cancel()
	if err := s.orch.SetReplicas(opCtx, s.cfg.ServiceName, target); err != nil {
		return 0, fmt.Errorf("reconciling replicas into bounds: %w", err)
	}
	return target, nil
}

// State returns a copy of the controller state.
func (s *Scaler) State() State {
	return s.state
}

// Run polls on a fixed-delay loop until ctx is canceled. A cycle runs to
// completion before the next delay starts, so a slow call shifts the
// schedule instead of stacking cycles. The returned error is fatal.
func (s *Scaler) Run(ctx context.Context) error {
	s.logger.Info("autoscaler started",
		"queue", s.cfg.QueueNamePrefix+":"+s.cfg.QueueName,
		"min_replicas", s.cfg.MinReplicas,
		"max_replicas", s.cfg.MaxReplicas,
		"scale_up_threshold", s.cfg.ScaleUpThreshold,
		"scale_down_threshold", s.cfg.ScaleDownThreshold,
		"poll_interval", s.cfg.PollInterval.String(),
		"cooldown_period", s.cfg.CooldownPeriod.String(),
	)

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("autoscaler stopping")
			return nil
		case <-timer.C:
			if err := s.cycle(ctx); err != nil {
				return err
			}
			timer.Reset(s.cfg.PollInterval)
		}
	}
}

// cycle runs one evaluate-and-act pass. A nil return means the loop keeps
// going; an error is fatal to the process.
func (s *Scaler) cycle(ctx context.Context) error {
	opCtx, cancel := context.WithTimeout(ctx, s.cfg.OpTimeout())
	snap, err := s.queue.Counts(opCtx, s.cfg.QueueNamePrefix, s.cfg.QueueName)
	cancel()
	if err != nil {
		// An unreachable queue is not evidence of an empty queue. Skip
		// the cycle and keep the last known state.
		s.misses++
		if s.misses >= missEscalation {
			s.logger.Error("skipping cycle, queue unreachable", "consecutive_misses", s.misses, "error", err)
		} else {
			s.logger.Warn("skipping cycle, queue unreachable", "consecutive_misses", s.misses, "error", err)
		}
		return nil
	}
	s.misses = 0
	if s.rec != nil {
		s.rec.RecordPoll()
	}

	now := time.Now()
	decision := Decide(snap, s.cfg, s.state, now)

	if decision.Action == ActionHold {
		s.logger.Debug("holding",
			"reason", decision.Reason,
			"waiting", snap.Waiting,
			"replicas", s.state.CurrentReplicas,
		)
		return nil
	}

	s.logger.Info("scaling decision",
		"action", decision.Action.String(),
		"target", decision.Target,
		"reason", decision.Reason,
		"waiting", snap.Waiting,
	)

	opCtx, cancel = context.WithTimeout(ctx, s.cfg.OpTimeout())
	err = s.orch.SetReplicas(opCtx, s.cfg.ServiceName, decision.Target)
	cancel()
	if err != nil {
		if orchestrator.IsPermanent(err) {
			s.logger.Error("permanent orchestrator error, giving up", "error", err)
			return fmt.Errorf("scaling %s to %d: %w", s.cfg.ServiceName, decision.Target, err)
		}
		// State stays at last known good; no cooldown is applied because
		// no scaling action actually happened.
		s.logger.Warn("scale call failed, retrying next cycle", "target", decision.Target, "error", err)
		return nil
	}

	s.state.CurrentReplicas = decision.Target
	s.state.LastScaleAt = now
	s.state.CooldownUntil = now.Add(s.cfg.CooldownPeriod)

	s.logger.Info("scaled service",
		"replicas", decision.Target,
		"action", decision.Action.String(),
		"cooldown_until", s.state.CooldownUntil.Format(time.RFC3339),
	)
	return nil
}
