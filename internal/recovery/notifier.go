package recovery

import (
	"bytes"
	"encoding/json"
	"net/http"
	"time"

	"github.com/sukryu/stellane/internal/logger"
)

// notifier POSTs outcome notifications to configured endpoints. The core
// only issues a bare POST — it owns no request/response codec, matching
// the HTTP-encoding boundary the rest of the runtime stays outside of.
// Deliberately plain net/http.Client: the teacher imports nothing extra
// for outbound HTTP calls either.
type notifier struct {
	client    *http.Client
	endpoints []string
}

func newNotifier(endpoints []string, timeout time.Duration) *notifier {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &notifier{
		client:    &http.Client{Timeout: timeout},
		endpoints: endpoints,
	}
}

func (n *notifier) notify(o Outcome) {
	if n == nil || len(n.endpoints) == 0 {
		return
	}
	body, err := json.Marshal(o)
	if err != nil {
		return
	}
	log := logger.WithRecovery("notify")
	for _, endpoint := range n.endpoints {
		go func(url string) {
			resp, err := n.client.Post(url, "application/json", bytes.NewReader(body))
			if err != nil {
				log.Warn().Str("endpoint", url).Str("journal_id", o.JournalID).Err(err).Msg("outcome notification failed")
				return
			}
			resp.Body.Close()
		}(endpoint)
	}
}
