package scaler

import (
	"fmt"
	"time"

	"github.com/bullscale/bullscale/pkg/config"
	"github.com/bullscale/bullscale/pkg/queue"
)

// Action is what a decision tells the controller to do this cycle.
type Action int

const (
	ActionHold Action = iota
	ActionScaleUp
	ActionScaleDown
)

func (a Action) String() string {
	switch a {
	case ActionScaleUp:
		return "scale_up"
	case ActionScaleDown:
		return "scale_down"
	default:
		return "hold"
	}
}

// Decision is the outcome of one evaluation cycle. It drives at most one
// orchestrator call and one log line, and is not persisted.
type Decision struct {
	Action Action
	Target int
	Reason string
}

// State is the controller's long-lived mutable state. It is owned by a
// single loop and rehydrated from the orchestrator on restart, never from
// memory.
type State struct {
	CurrentReplicas int
	LastScaleAt     time.Time
	CooldownUntil   time.Time
}

// Decide is the scaling policy: a pure function of the snapshot, config,
// state and current time. Replicas change by exactly one per decision;
// gradual scaling is a deliberate damping choice. Equality at a shared
// threshold favors holding (strict > on the way up, <= on the way down),
// so the loop cannot oscillate on the boundary value itself.
func Decide(snap queue.Snapshot, cfg config.ScalerConfig, st State, now time.Time) Decision {
	if now.Before(st.CooldownUntil) {
		return Decision{Action: ActionHold, Target: st.CurrentReplicas, Reason: "cooldown active"}
	}

	if snap.Waiting > int64(cfg.ScaleUpThreshold) && st.CurrentReplicas < cfg.MaxReplicas {
		return Decision{
			Action: ActionScaleUp,
			Target: st.CurrentReplicas + 1,
			Reason: fmt.Sprintf("queue length %d > threshold %d", snap.Waiting, cfg.ScaleUpThreshold),
		}
	}

	if snap.Waiting <= int64(cfg.ScaleDownThreshold) && st.CurrentReplicas > cfg.MinReplicas {
		return Decision{
			Action: ActionScaleDown,
			Target: st.CurrentReplicas - 1,
			Reason: fmt.Sprintf("queue length %d <= threshold %d", snap.Waiting, cfg.ScaleDownThreshold),
		}
	}

	return Decision{Action: ActionHold, Target: st.CurrentReplicas, Reason: "within bounds, no action needed"}
}
