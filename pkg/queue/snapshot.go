package queue

import (
	"errors"
	"fmt"
	"time"
)

// Snapshot is a point-in-time view of the queue counters. It is produced
// fresh on every poll and never mutated.
type Snapshot struct {
	Waiting    int64
	Active     int64
	Completed  int64
	Failed     int64
	ObservedAt time.Time
}

// Stats holds per-state counts for the detailed observer report.
type Stats map[string]int64

// detailStates are the queue states included in a detailed stats report.
var detailStates = []string{"wait", "waiting", "active", "completed", "failed", "delayed"}

// ErrorKind classifies queue client failures.
type ErrorKind int

const (
	// KindUnavailable means the queue backend cannot currently be reached.
	// Callers should skip the cycle and let reconnection run its course.
	KindUnavailable ErrorKind = iota
	// KindMalformed means the backend answered, but not with something a
	// queue counter should look like.
	KindMalformed
)

func (k ErrorKind) String() string {
	switch k {
	case KindUnavailable:
		return "unavailable"
	case KindMalformed:
		return "malformed"
	default:
		return "unknown"
	}
}

// Error is the typed error surfaced by Client operations.
type Error struct {
	Kind ErrorKind
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("queue %s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsUnavailable reports whether err is a queue error of kind unavailable.
func IsUnavailable(err error) bool {
	var qe *Error
	return errors.As(err, &qe) && qe.Kind == KindUnavailable
}

// ConnectError reports a failed initial connection to the queue backend.
type ConnectError struct {
	Addr string
	Err  error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("failed to connect to Redis at %s: %v", e.Addr, e.Err)
}

func (e *ConnectError) Unwrap() error {
	return e.Err
}
