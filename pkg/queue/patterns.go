package queue

import "fmt"

// KeyPattern identifies the key-naming scheme of the queue library version
// that populated Redis. The scheme is stable for a given deployment, so the
// first pattern that resolves is cached for the connection lifetime.
type KeyPattern int

const (
	PatternUnknown KeyPattern = iota
	// PatternV3 stores waiting jobs under <prefix>:<name>:wait.
	PatternV3
	// PatternV4 stores waiting jobs under <prefix>:<name>:waiting.
	PatternV4
	// PatternLegacy stores the whole queue as a single list <prefix>:<name>.
	PatternLegacy
)

// resolutionOrder is the sequence patterns are probed in.
var resolutionOrder = []KeyPattern{PatternV3, PatternV4, PatternLegacy}

func (p KeyPattern) String() string {
	switch p {
	case PatternV3:
		return "v3"
	case PatternV4:
		return "v4"
	case PatternLegacy:
		return "legacy"
	default:
		return "unknown"
	}
}

// WaitKey returns the key holding jobs that are enqueued but not yet
// picked up, for this pattern.
func (p KeyPattern) WaitKey(prefix, name string) string {
	switch p {
	case PatternV4:
		return fmt.Sprintf("%s:%s:waiting", prefix, name)
	case PatternLegacy:
		return fmt.Sprintf("%s:%s", prefix, name)
	default:
		return fmt.Sprintf("%s:%s:wait", prefix, name)
	}
}

// stateKey returns the key for a secondary counter (active, completed,
// failed). All patterns share the suffixed form for these.
func stateKey(prefix, name, state string) string {
	return fmt.Sprintf("%s:%s:%s", prefix, name, state)
}
