package boundary

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/ygopack/packtrack/internal/service"
)

// defaultPollInterval is how often the watcher re-checks reachability.
const defaultPollInterval = 15 * time.Second

// PollWatcher implements service.ConnectivityWatcher by probing a URL.
// Any HTTP response counts as online; only transport failures count as
// offline, so 5xx answers from a struggling service do not strand the
// app in offline mode.
type PollWatcher struct {
	url      string
	interval time.Duration
	client   *http.Client
	online   atomic.Bool
}

// NewPollWatcher creates a watcher probing the given URL. An interval of
// zero uses the default.
func NewPollWatcher(url string, interval time.Duration) *PollWatcher {
	if interval <= 0 {
		interval = defaultPollInterval
	}
	w := &PollWatcher{
		url:      url,
		interval: interval,
		client:   &http.Client{Timeout: 5 * time.Second},
	}
	w.online.Store(true)
	return w
}

// Online reports the last observed state.
func (w *PollWatcher) Online() bool {
	return w.online.Load()
}

// Watch probes until ctx is canceled, emitting on every state change.
// The channel closes when the watcher stops.
func (w *PollWatcher) Watch(ctx context.Context) <-chan bool {
	events := make(chan bool, 1)
	go func() {
		defer close(events)
		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				state := w.probe(ctx)
				if state != w.online.Swap(state) {
					select {
					case events <- state:
					case <-ctx.Done():
						return
					}
				}
			}
		}
	}()
	return events
}

func (w *PollWatcher) probe(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, w.url, nil)
	if err != nil {
		return false
	}
	resp, err := w.client.Do(req)
	if err != nil {
		return false
	}
	_ = resp.Body.Close()
	return true
}

var _ service.ConnectivityWatcher = (*PollWatcher)(nil)
