package recovery

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sukryu/stellane/internal/journal"
)

func TestPriorityConfig_Resolve(t *testing.T) {
	cfg := &PriorityConfig{
		MethodPriority: map[string]uint8{"DELETE": PriorityCritical},
		PathPatterns: []PathPriority{
			{Pattern: regexp.MustCompile(`^/billing`), Priority: PriorityHigh},
		},
		PriorityFunc: func(e *journal.Entry) (uint8, bool) {
			if e.Path == "/func-only" {
				return PriorityLow, true
			}
			return 0, false
		},
	}

	assert.Equal(t, PriorityCritical, cfg.resolve(&journal.Entry{Method: "DELETE", Path: "/anything"}))
	assert.Equal(t, PriorityHigh, cfg.resolve(&journal.Entry{Method: "POST", Path: "/billing/charge"}))
	assert.Equal(t, PriorityLow, cfg.resolve(&journal.Entry{Method: "POST", Path: "/func-only"}))
	assert.Equal(t, PriorityNormal, cfg.resolve(&journal.Entry{Method: "GET", Path: "/unmatched"}))
}

func TestPriorityConfig_NilIsNormal(t *testing.T) {
	var cfg *PriorityConfig
	assert.Equal(t, PriorityNormal, cfg.resolve(&journal.Entry{Method: "GET", Path: "/x"}))
}
