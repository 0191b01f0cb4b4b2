package boundary

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ygopack/packtrack/internal/common"
	"github.com/ygopack/packtrack/internal/service"
)

// stubView records the view calls the boundary makes. The embedded
// interface panics on anything not overridden, which is the point.
type stubView struct {
	service.ViewPort

	mu           sync.Mutex
	toasts       []string
	connection   []bool
	manualText   string
	manualOK     bool
	manualPrompt string
}

func (v *stubView) ShowToast(message string, level service.ToastLevel) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.toasts = append(v.toasts, message)
}

func (v *stubView) UpdateConnectionStatus(online bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.connection = append(v.connection, online)
}

func (v *stubView) PromptManualEntry(ctx context.Context, prompt string) (string, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.manualPrompt = prompt
	return v.manualText, v.manualOK
}

// fakeStore implements service.Storage with scriptable downgrade results.
type fakeStore struct {
	data          map[string]any
	backend       service.BackendKind
	downgradeTo   service.BackendKind
	downgradeErr  error
	downgradeHits int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		data:        map[string]any{},
		backend:     service.BackendIndexed,
		downgradeTo: service.BackendMemory,
	}
}

func (f *fakeStore) Get(ctx context.Context, key string, out any) (bool, error) {
	v, ok := f.data[key]
	if !ok {
		return false, nil
	}
	if p, isAny := out.(*any); isAny {
		*p = v
	}
	return true, nil
}

func (f *fakeStore) Set(ctx context.Context, key string, value any) error {
	f.data[key] = value
	return nil
}

func (f *fakeStore) Remove(ctx context.Context, key string) error {
	delete(f.data, key)
	return nil
}

func (f *fakeStore) Keys(ctx context.Context) ([]string, error) { return nil, nil }

func (f *fakeStore) Clear(ctx context.Context) error {
	f.data = map[string]any{}
	return nil
}

func (f *fakeStore) CurrentBackend() service.BackendKind { return f.backend }

func (f *fakeStore) Close() error { return nil }

func (f *fakeStore) Migrate(ctx context.Context, from, to service.BackendKind) (int, error) {
	return 0, nil
}

func (f *fakeStore) Downgrade(ctx context.Context) (service.BackendKind, error) {
	f.downgradeHits++
	if f.downgradeErr != nil {
		return f.backend, f.downgradeErr
	}
	f.backend = f.downgradeTo
	return f.downgradeTo, nil
}

// fakeWatcher is a scriptable connectivity source.
type fakeWatcher struct {
	online bool
	events chan bool
}

func newFakeWatcher(online bool) *fakeWatcher {
	return &fakeWatcher{online: online, events: make(chan bool, 4)}
}

func (w *fakeWatcher) Online() bool { return w.online }

func (w *fakeWatcher) Watch(ctx context.Context) <-chan bool { return w.events }

func newTestBoundary(view *stubView, store service.Storage, watcher service.ConnectivityWatcher) *Boundary {
	b := New(view, store, watcher)
	b.sleep = func(ctx context.Context, d time.Duration) error { return nil }
	return b
}

func TestHandleRetriesUntilSuccess(t *testing.T) {
	b := newTestBoundary(&stubView{}, newFakeStore(), nil)

	calls := 0
	outcome := b.Handle(context.Background(), errors.New("flaky"), service.KindAPI, service.ErrorContext{
		Operation: "price-check",
		Retry: func(ctx context.Context) (any, error) {
			calls++
			if calls < 2 {
				return nil, errors.New("flaky")
			}
			return "priced", nil
		},
	})

	assert.True(t, outcome.Success)
	assert.Equal(t, "priced", outcome.Result)
	assert.Equal(t, 2, calls)
	assert.Equal(t, 2, b.Attempts(outcome.ErrorID))
}

func TestHandleRespectsRetryBudget(t *testing.T) {
	view := &stubView{}
	b := newTestBoundary(view, newFakeStore(), nil)

	calls := 0
	outcome := b.Handle(context.Background(), errors.New("down"), service.KindAPI, service.ErrorContext{
		Operation: "price-check",
		Retry: func(ctx context.Context) (any, error) {
			calls++
			return nil, errors.New("down")
		},
	})

	// KindAPI allows 2 retries; the fallback found no cache, so the
	// outcome fails with a user message.
	assert.Equal(t, 2, calls)
	assert.False(t, outcome.Success)
	assert.NotEmpty(t, outcome.UserMessage)
	assert.NotEmpty(t, outcome.ErrorID)
}

func TestValidationNeverRetries(t *testing.T) {
	b := newTestBoundary(&stubView{}, newFakeStore(), nil)

	calls := 0
	outcome := b.Handle(context.Background(), common.NewValidationError("name", "card name is required"),
		service.KindValidation, service.ErrorContext{
			Retry: func(ctx context.Context) (any, error) {
				calls++
				return nil, errors.New("should not run")
			},
		})

	assert.Zero(t, calls)
	assert.False(t, outcome.Success)
	assert.Contains(t, outcome.UserMessage, "card name is required")
}

func TestVoiceFallbackPromptsManualEntry(t *testing.T) {
	view := &stubView{manualText: "blue eyes white dragon", manualOK: true}
	b := newTestBoundary(view, newFakeStore(), nil)

	outcome := b.Handle(context.Background(),
		service.VoiceError{Code: service.VoiceNoSpeech},
		service.KindVoiceRecognition, service.ErrorContext{Operation: "listen"})

	require.True(t, outcome.Success)
	result, ok := outcome.Result.(service.VoiceResult)
	require.True(t, ok)
	assert.Equal(t, "blue eyes white dragon", result.Transcript)
	assert.True(t, result.Manual)
	assert.Equal(t, 1.0, result.Confidence)
}

func TestVoiceFallbackDismissed(t *testing.T) {
	view := &stubView{manualOK: false}
	b := newTestBoundary(view, newFakeStore(), nil)

	outcome := b.Handle(context.Background(),
		service.VoiceError{Code: service.VoiceTimeout},
		service.KindVoiceRecognition, service.ErrorContext{})

	assert.False(t, outcome.Success)
	assert.Contains(t, outcome.UserMessage, "timed out")
}

func TestAPIFallbackServesCache(t *testing.T) {
	store := newFakeStore()
	store.data["cardSets"] = []any{"cached"}
	view := &stubView{}
	b := newTestBoundary(view, store, nil)

	outcome := b.Handle(context.Background(), common.ErrAPIConnection, service.KindAPI, service.ErrorContext{
		Operation: "load-sets",
		CacheKey:  "cardSets",
	})

	require.True(t, outcome.Success)
	assert.Equal(t, []any{"cached"}, outcome.Result)
	assert.Contains(t, view.toasts, "Showing cached data")
}

func TestAPIFallbackWithoutCacheGoesOffline(t *testing.T) {
	b := newTestBoundary(&stubView{}, newFakeStore(), nil)

	outcome := b.Handle(context.Background(), common.ErrAPIConnection, service.KindAPI, service.ErrorContext{
		Operation: "load-sets",
		CacheKey:  "missing",
	})

	assert.False(t, outcome.Success)
	assert.True(t, b.Offline())
}

func TestStorageFallbackDowngradesTier(t *testing.T) {
	store := newFakeStore()
	view := &stubView{}
	b := newTestBoundary(view, store, nil)

	saved := false
	outcome := b.Handle(context.Background(), common.ErrQuotaExceeded, service.KindStorage, service.ErrorContext{
		Operation: "save-session",
		Retry: func(ctx context.Context) (any, error) {
			if store.backend == service.BackendMemory {
				saved = true
				return nil, nil
			}
			return nil, common.ErrQuotaExceeded
		},
	})

	assert.True(t, outcome.Success)
	assert.True(t, saved)
	assert.Equal(t, service.BackendMemory, store.backend)
	require.NotEmpty(t, view.toasts)
	assert.Contains(t, view.toasts[len(view.toasts)-1], "Storage degraded")
}

func TestNetworkFallbackGoesOffline(t *testing.T) {
	view := &stubView{}
	b := newTestBoundary(view, newFakeStore(), nil)

	calls := 0
	outcome := b.Handle(context.Background(), common.ErrAPIConnection, service.KindNetwork, service.ErrorContext{
		Operation: "refresh",
		Retry: func(ctx context.Context) (any, error) {
			calls++
			return nil, common.ErrAPIConnection
		},
	})

	assert.False(t, outcome.Success)
	assert.Equal(t, 3, calls)
	assert.True(t, b.Offline())
	assert.Contains(t, view.connection, false)
	assert.Contains(t, outcome.UserMessage, "offline")
}

func TestOfflineQueuesNetworkDependentOps(t *testing.T) {
	view := &stubView{}
	watcher := newFakeWatcher(false)
	b := newTestBoundary(view, newFakeStore(), watcher)
	require.True(t, b.Offline())

	calls := 0
	outcome := b.Handle(context.Background(), common.ErrOffline, service.KindNetwork, service.ErrorContext{
		Operation:        "refresh-prices",
		NetworkDependent: true,
		Retry: func(ctx context.Context) (any, error) {
			calls++
			return "done", nil
		},
	})

	// Offline: the retry is parked, not burned.
	assert.False(t, outcome.Success)
	assert.Zero(t, calls)

	// Reconnecting replays the queue.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	b.Watch(ctx)
	watcher.events <- true

	require.Eventually(t, func() bool { return calls == 1 }, time.Second, 5*time.Millisecond)
	assert.False(t, b.Offline())
}

func TestClearErrorHistory(t *testing.T) {
	b := newTestBoundary(&stubView{}, newFakeStore(), nil)

	outcome := b.Handle(context.Background(), errors.New("x"), service.KindAPI, service.ErrorContext{
		Retry: func(ctx context.Context) (any, error) { return nil, errors.New("x") },
	})
	require.NotZero(t, b.Attempts(outcome.ErrorID))

	b.ClearErrorHistory()
	assert.Zero(t, b.Attempts(outcome.ErrorID))
}

func TestUserMessages(t *testing.T) {
	tests := []struct {
		kind service.ErrorKind
		err  error
		want string
	}{
		{service.KindVoiceRecognition, service.VoiceError{Code: service.VoiceNoSpeech}, "No speech detected"},
		{service.KindVoiceRecognition, service.VoiceError{Code: service.VoicePermissionDenied}, "Microphone access is blocked"},
		{service.KindAPI, common.ErrAPITimeout, "timed out"},
		{service.KindStorage, common.ErrQuotaExceeded, "Storage is full"},
		{service.KindNetwork, common.ErrOffline, "offline"},
	}

	for _, tt := range tests {
		assert.Contains(t, userMessage(tt.kind, tt.err), tt.want, string(tt.kind))
	}
}

func TestSafeReturnsTypedResult(t *testing.T) {
	b := newTestBoundary(&stubView{}, newFakeStore(), nil)

	calls := 0
	got, ok := Safe(context.Background(), b, service.KindAPI, "lookup", func(ctx context.Context) (int, error) {
		calls++
		if calls < 2 {
			return 0, errors.New("flaky")
		}
		return 42, nil
	})

	assert.True(t, ok)
	assert.Equal(t, 42, got)
}

func TestSafePassesThroughSuccess(t *testing.T) {
	b := newTestBoundary(&stubView{}, newFakeStore(), nil)

	got, ok := Safe(context.Background(), b, service.KindAPI, "lookup", func(ctx context.Context) (string, error) {
		return "immediate", nil
	})

	assert.True(t, ok)
	assert.Equal(t, "immediate", got)
}
