package scaler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/bullscale/bullscale/pkg/config"
	"github.com/bullscale/bullscale/pkg/queue"
)

func testConfig() config.ScalerConfig {
	return config.ScalerConfig{
		MinReplicas:        1,
		MaxReplicas:        5,
		ScaleUpThreshold:   5,
		ScaleDownThreshold: 0,
		PollInterval:       30 * time.Second,
		CooldownPeriod:     60 * time.Second,
		QueueNamePrefix:    "bull",
		QueueName:          "jobs",
		ServiceName:        "worker",
		ProjectName:        "stack",
	}
}

func TestDecideScaleUp(t *testing.T) {
	now := time.Now()
	d := Decide(
		queue.Snapshot{Waiting: 7, ObservedAt: now},
		testConfig(),
		State{CurrentReplicas: 2},
		now,
	)
	assert.Equal(t, ActionScaleUp, d.Action)
	assert.Equal(t, 3, d.Target)
	assert.Equal(t, "queue length 7 > threshold 5", d.Reason)
}

func TestDecideScaleDown(t *testing.T) {
	now := time.Now()
	cfg := testConfig()
	d := Decide(
		queue.Snapshot{Waiting: 0, ObservedAt: now},
		cfg,
		State{CurrentReplicas: 3},
		now,
	)
	assert.Equal(t, ActionScaleDown, d.Action)
	assert.Equal(t, 2, d.Target)
	assert.Equal(t, "queue length 0 <= threshold 0", d.Reason)
}

func TestDecideHoldAtMax(t *testing.T) {
	now := time.Now()
	d := Decide(
		queue.Snapshot{Waiting: 10, ObservedAt: now},
		testConfig(),
		State{CurrentReplicas: 5},
		now,
	)
	assert.Equal(t, ActionHold, d.Action)
	assert.Equal(t, 5, d.Target)
}

func TestDecideHoldAtMin(t *testing.T) {
	now := time.Now()
	d := Decide(
		queue.Snapshot{Waiting: 0, ObservedAt: now},
		testConfig(),
		State{CurrentReplicas: 1},
		now,
	)
	assert.Equal(t, ActionHold, d.Action)
}

func TestDecideHoldDuringCooldown(t *testing.T) {
	now := time.Now()
	d := Decide(
		queue.Snapshot{Waiting: 7, ObservedAt: now},
		testConfig(),
		State{CurrentReplicas: 2, CooldownUntil: now.Add(60 * time.Second)},
		now,
	)
	assert.Equal(t, ActionHold, d.Action)
	assert.Equal(t, "cooldown active", d.Reason)
}

func TestDecideAfterCooldownExpires(t *testing.T) {
	now := time.Now()
	d := Decide(
		queue.Snapshot{Waiting: 7, ObservedAt: now},
		testConfig(),
		State{CurrentReplicas: 2, CooldownUntil: now.Add(-time.Second)},
		now,
	)
	assert.Equal(t, ActionScaleUp, d.Action)
}

// With equal thresholds, a queue length exactly on the boundary must hold:
// scale-up requires strictly greater, scale-down fires at or below.
func TestDecideEqualThresholdsFavorHold(t *testing.T) {
	now := time.Now()
	cfg := testConfig()
	cfg.ScaleUpThreshold = 3
	cfg.ScaleDownThreshold = 3

	d := Decide(queue.Snapshot{Waiting: 3, ObservedAt: now}, cfg, State{CurrentReplicas: 3}, now)
	assert.Equal(t, ActionScaleDown, d.Action, "3 <= 3 scales down when above min")

	d = Decide(queue.Snapshot{Waiting: 3, ObservedAt: now}, cfg, State{CurrentReplicas: 1}, now)
	assert.Equal(t, ActionHold, d.Action, "at min, boundary value holds")

	d = Decide(queue.Snapshot{Waiting: 4, ObservedAt: now}, cfg, State{CurrentReplicas: 1}, now)
	assert.Equal(t, ActionScaleUp, d.Action, "strictly above threshold scales up")
}

func TestDecideMinEqualsMaxNeverScales(t *testing.T) {
	now := time.Now()
	cfg := testConfig()
	cfg.MinReplicas = 3
	cfg.MaxReplicas = 3

	for _, waiting := range []int64{0, 3, 100} {
		d := Decide(queue.Snapshot{Waiting: waiting, ObservedAt: now}, cfg, State{CurrentReplicas: 3}, now)
		assert.Equal(t, ActionHold, d.Action, "waiting=%d", waiting)
	}
}

func TestDecideIsIdempotent(t *testing.T) {
	now := time.Now()
	snap := queue.Snapshot{Waiting: 7, Active: 2, ObservedAt: now}
	cfg := testConfig()
	st := State{CurrentReplicas: 2, CooldownUntil: now.Add(-time.Minute)}

	first := Decide(snap, cfg, st, now)
	second := Decide(snap, cfg, st, now)
	assert.Equal(t, first, second)
}

func TestDecideChangesByExactlyOne(t *testing.T) {
	now := time.Now()
	cfg := testConfig()
	for current := cfg.MinReplicas; current <= cfg.MaxReplicas; current++ {
		for _, waiting := range []int64{0, 5, 6, 1000} {
			d := Decide(queue.Snapshot{Waiting: waiting, ObservedAt: now}, cfg, State{CurrentReplicas: current}, now)
			switch d.Action {
			case ActionScaleUp:
				assert.Equal(t, current+1, d.Target)
			case ActionScaleDown:
				assert.Equal(t, current-1, d.Target)
			default:
				assert.Equal(t, current, d.Target)
			}
			assert.GreaterOrEqual(t, d.Target, cfg.MinReplicas)
			assert.LessOrEqual(t, d.Target, cfg.MaxReplicas)
		}
	}
}
