package recovery

import (
	"regexp"

	"github.com/sukryu/stellane/internal/journal"
)

// Priority levels on the same uint8 scale the scheduler's priority
// policy compares directly (higher value dispatches first).
const (
	PriorityLow      uint8 = 10
	PriorityNormal   uint8 = 50
	PriorityHigh     uint8 = 90
	PriorityCritical uint8 = 200
)

// PathPriority maps a path pattern to the priority recovered requests
// matching it should run at.
type PathPriority struct {
	Pattern  *regexp.Regexp
	Priority uint8
}

// PriorityConfig computes a recovered entry's scheduling priority.
// Resolution order follows the algorithm directly: an explicit per-method
// mapping first, then the first matching path pattern, then a
// user-supplied function, and PriorityNormal if none apply.
type PriorityConfig struct {
	MethodPriority map[string]uint8
	PathPatterns   []PathPriority
	PriorityFunc   func(e *journal.Entry) (uint8, bool)
}

func (c *PriorityConfig) resolve(e *journal.Entry) uint8 {
	if c == nil {
		return PriorityNormal
	}
	if c.MethodPriority != nil {
		if p, ok := c.MethodPriority[e.Method]; ok {
			return p
		}
	}
	for _, pp := range c.PathPatterns {
		if pp.Pattern != nil && pp.Pattern.MatchString(e.Path) {
			return pp.Priority
		}
	}
	if c.PriorityFunc != nil {
		if p, ok := c.PriorityFunc(e); ok {
			return p
		}
	}
	return PriorityNormal
}
