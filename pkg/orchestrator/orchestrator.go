package orchestrator

import (
	"context"
	"errors"
	"fmt"
)

// Client sets and reads the replica count of a worker service. Any control
// plane that can answer these two calls satisfies the contract.
type Client interface {
	// CurrentReplicas returns the number of running replicas of service.
	CurrentReplicas(ctx context.Context, service string) (int, error)
	// SetReplicas scales service to target replicas. It returns only after
	// the control plane acknowledged the request.
	SetReplicas(ctx context.Context, service string, target int) error
}

// ErrorKind splits orchestrator failures into the two classes the control
// loop treats differently.
type ErrorKind int

const (
	// KindTransient covers network trouble and timeouts. The controller
	// retries on the next cycle.
	KindTransient ErrorKind = iota
	// KindPermanent covers misconfiguration such as an unknown service.
	// The controller must not retry; the deployment itself is broken.
	KindPermanent
)

func (k ErrorKind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindPermanent:
		return "permanent"
	default:
		return "unknown"
	}
}

// Error is the typed error returned by Client implementations.
type Error struct {
	Kind ErrorKind
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("orchestrator %s error: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsPermanent reports whether err is a permanent orchestrator error.
func IsPermanent(err error) bool {
	var oe *Error
	return errors.As(err, &oe) && oe.Kind == KindPermanent
}

// Bounds is the replica range a client refuses to scale outside of. It is
// a second line of defense behind the decision policy: a target outside
// the bounds indicates a logic fault, so the client panics instead of
// issuing the call.
type Bounds struct {
	Min int
	Max int
}

// Check panics if target lies outside the bounds.
func (b Bounds) Check(target int) {
	if target < b.Min || target > b.Max {
		panic(fmt.Sprintf("orchestrator: target %d outside replica bounds [%d, %d]", target, b.Min, b.Max))
	}
}
