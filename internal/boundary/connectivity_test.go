package boundary

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPollWatcherDetectsOutage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	watcher := NewPollWatcher(server.URL, 10*time.Millisecond)
	assert.True(t, watcher.Online())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events := watcher.Watch(ctx)

	server.Close()

	select {
	case online := <-events:
		assert.False(t, online)
	case <-time.After(2 * time.Second):
		t.Fatal("no offline event after server shutdown")
	}
	assert.False(t, watcher.Online())
}

func TestPollWatcherServerErrorStillOnline(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	watcher := NewPollWatcher(server.URL, 10*time.Millisecond)
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	events := watcher.Watch(ctx)

	// A responding server is online regardless of status code, so no
	// transition fires before the context expires.
	select {
	case online, ok := <-events:
		if ok {
			require.True(t, online)
		}
	case <-time.After(300 * time.Millisecond):
	}
	assert.True(t, watcher.Online())
}
