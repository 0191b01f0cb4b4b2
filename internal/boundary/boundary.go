// Package boundary implements the central failure coordinator. Components
// hand failures here instead of surfacing raw errors; the boundary retries
// with backoff, dispatches kind-specific fallbacks, and keeps the user
// informed through the view.
package boundary

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ygopack/packtrack/internal/common"
	"github.com/ygopack/packtrack/internal/service"
)

// policy is the retry budget for one error kind.
type policy struct {
	maxRetries int
	retryDelay time.Duration
}

// policies is the per-kind retry table. Delay doubles on each attempt.
// Permission and validation failures never retry; retrying cannot help.
var policies = map[service.ErrorKind]policy{
	service.KindVoiceRecognition: {maxRetries: 3, retryDelay: 1000 * time.Millisecond},
	service.KindAPI:              {maxRetries: 2, retryDelay: 2000 * time.Millisecond},
	service.KindStorage:          {maxRetries: 1, retryDelay: 500 * time.Millisecond},
	service.KindNetwork:          {maxRetries: 3, retryDelay: 1000 * time.Millisecond},
	service.KindPermission:       {maxRetries: 0},
	service.KindValidation:       {maxRetries: 0},
	service.KindUnknown:          {maxRetries: 0},
}

// queuedOp is a network-dependent operation parked while offline.
type queuedOp struct {
	retry     func(ctx context.Context) (any, error)
	operation string
}

// Boundary implements service.ErrorBoundary.
type Boundary struct {
	mu       sync.Mutex
	view     service.ViewPort
	store    service.Storage
	watcher  service.ConnectivityWatcher
	handlers map[service.ErrorKind]service.FallbackHandler
	history  map[string]int
	queue    []queuedOp
	offline  bool

	// sleep is swapped out in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// New creates an error boundary wired to the view and storage tier. The
// built-in fallbacks for each kind are registered up front; RegisterHandler
// replaces them.
func New(view service.ViewPort, store service.Storage, watcher service.ConnectivityWatcher) *Boundary {
	b := &Boundary{
		view:     view,
		store:    store,
		watcher:  watcher,
		handlers: make(map[service.ErrorKind]service.FallbackHandler),
		history:  make(map[string]int),
		sleep:    sleepCtx,
	}
	if watcher != nil {
		b.offline = !watcher.Online()
	}
	b.handlers[service.KindVoiceRecognition] = b.voiceFallback
	b.handlers[service.KindAPI] = b.apiFallback
	b.handlers[service.KindStorage] = b.storageFallback
	b.handlers[service.KindNetwork] = b.networkFallback
	return b
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Watch observes connectivity transitions until ctx is canceled. Going
// offline flips the flag and banners the view; coming back replays any
// operations queued while offline.
func (b *Boundary) Watch(ctx context.Context) {
	if b.watcher == nil {
		return
	}
	events := b.watcher.Watch(ctx)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case online, ok := <-events:
				if !ok {
					return
				}
				b.setOnline(ctx, online)
			}
		}
	}()
}

func (b *Boundary) setOnline(ctx context.Context, online bool) {
	b.mu.Lock()
	wasOffline := b.offline
	b.offline = !online
	var replay []queuedOp
	if online && wasOffline {
		replay = b.queue
		b.queue = nil
	}
	b.mu.Unlock()

	if b.view != nil {
		b.view.UpdateConnectionStatus(online)
	}
	if !online {
		common.LogWarn("connection lost", nil)
		return
	}

	for _, op := range replay {
		if _, err := op.retry(ctx); err != nil {
			common.LogWarn("queued operation failed after reconnect", common.Fields{
				"operation": op.operation,
				"error":     err.Error(),
			})
		} else {
			common.LogInfo("queued operation replayed", common.Fields{"operation": op.operation})
		}
	}
	if len(replay) > 0 && b.view != nil {
		b.view.ShowToast("Back online", service.ToastSuccess)
	}
}

// Offline reports the current connectivity flag.
func (b *Boundary) Offline() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.offline
}

// RegisterHandler replaces the fallback for a kind.
func (b *Boundary) RegisterHandler(kind service.ErrorKind, h service.FallbackHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[kind] = h
}

// ClearErrorHistory drops all per-error attempt records.
func (b *Boundary) ClearErrorHistory() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.history = make(map[string]int)
}

// Handle resolves a failure: retry within the kind's budget, then fall
// back, then report. The returned outcome always carries a user-facing
// message and a unique error ID.
func (b *Boundary) Handle(ctx context.Context, err error, kind service.ErrorKind, ec service.ErrorContext) service.ErrorOutcome {
	errorID := uuid.New().String()
	pol := policies[kind]

	common.LogError(err, "handling failure", common.Fields{
		"kind":      string(kind),
		"operation": ec.Operation,
		"error_id":  errorID,
	})

	// A network-dependent operation while offline skips straight to the
	// fallback; the retry is queued for reconnect instead of burned now.
	if ec.NetworkDependent && b.Offline() {
		if ec.Retry != nil {
			b.mu.Lock()
			b.queue = append(b.queue, queuedOp{retry: ec.Retry, operation: ec.Operation})
			b.mu.Unlock()
		}
	} else if ec.Retry != nil && pol.maxRetries > 0 {
		for attempt := 1; attempt <= pol.maxRetries; attempt++ {
			delay := pol.retryDelay * (1 << (attempt - 1))
			if sleepErr := b.sleep(ctx, delay); sleepErr != nil {
				break
			}
			b.recordAttempt(errorID)

			result, retryErr := ec.Retry(ctx)
			if retryErr == nil {
				common.LogInfo("retry succeeded", common.Fields{
					"operation": ec.Operation,
					"attempt":   attempt,
				})
				return service.ErrorOutcome{
					Result:  result,
					ErrorID: errorID,
					Success: true,
				}
			}
			err = retryErr
		}
	}

	b.mu.Lock()
	handler := b.handlers[kind]
	b.mu.Unlock()

	if handler != nil {
		if result, ok := handler(ctx, err, ec); ok {
			return service.ErrorOutcome{
				Result:      result,
				ErrorID:     errorID,
				Success:     true,
				UserMessage: userMessage(kind, err),
			}
		}
	}

	msg := userMessage(kind, err)
	if b.view != nil {
		b.view.ShowToast(msg, service.ToastError)
	}
	return service.ErrorOutcome{
		ErrorID:     errorID,
		UserMessage: msg,
	}
}

func (b *Boundary) recordAttempt(errorID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.history[errorID]++
}

// Attempts reports how many retries were burned for an error ID.
func (b *Boundary) Attempts(errorID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.history[errorID]
}

// voiceFallback prompts for manual card entry when recognition is
// exhausted. The result is marked manual so downstream treats it as
// fully confident.
func (b *Boundary) voiceFallback(ctx context.Context, err error, ec service.ErrorContext) (any, bool) {
	var verr service.VoiceError
	if errors.As(err, &verr) && verr.Code == service.VoicePermissionDenied {
		// Prompting cannot recover a denied microphone either, but manual
		// entry still gets the card into the session.
		common.LogWarn("microphone denied, offering manual entry", nil)
	}
	if b.view == nil {
		return nil, false
	}
	text, ok := b.view.PromptManualEntry(ctx, "Type the card name")
	if !ok || strings.TrimSpace(text) == "" {
		return nil, false
	}
	return service.VoiceResult{
		Transcript: text,
		Confidence: 1.0,
		Manual:     true,
	}, true
}

// apiFallback serves the cached copy of the failed request when one
// exists, marking the app offline otherwise.
func (b *Boundary) apiFallback(ctx context.Context, err error, ec service.ErrorContext) (any, bool) {
	if ec.CacheKey != "" && b.store != nil {
		var cached any
		if found, getErr := b.store.Get(ctx, ec.CacheKey, &cached); getErr == nil && found {
			if b.view != nil {
				b.view.ShowToast("Showing cached data", service.ToastWarning)
			}
			return cached, true
		}
	}
	b.markOffline()
	return nil, false
}

// storageFallback downgrades the storage tier so writes keep landing
// somewhere, even if only in memory.
func (b *Boundary) storageFallback(ctx context.Context, err error, ec service.ErrorContext) (any, bool) {
	if b.store == nil {
		return nil, false
	}
	tier, downErr := b.store.Downgrade(ctx)
	if downErr != nil {
		return nil, false
	}
	common.LogWarn("storage tier downgraded", common.Fields{"tier": string(tier)})
	if b.view != nil {
		b.view.ShowToast("Storage degraded; data may not survive a restart", service.ToastWarning)
	}
	if ec.Retry != nil {
		if result, retryErr := ec.Retry(ctx); retryErr == nil {
			return result, true
		}
	}
	return nil, true
}

// networkFallback flips the app offline and banners the view.
func (b *Boundary) networkFallback(ctx context.Context, err error, ec service.ErrorContext) (any, bool) {
	b.markOffline()
	return nil, false
}

func (b *Boundary) markOffline() {
	b.mu.Lock()
	changed := !b.offline
	b.offline = true
	b.mu.Unlock()
	if changed && b.view != nil {
		b.view.UpdateConnectionStatus(false)
	}
}

// userMessage maps a classified failure to the sentence shown to the user.
func userMessage(kind service.ErrorKind, err error) string {
	text := ""
	if err != nil {
		text = strings.ToLower(err.Error())
	}

	switch kind {
	case service.KindVoiceRecognition:
		switch {
		case strings.Contains(text, "no-speech") || strings.Contains(text, "no speech"):
			return "No speech detected. Try speaking closer to the microphone."
		case strings.Contains(text, "permission") || strings.Contains(text, "denied"):
			return "Microphone access is blocked. Enable it to use voice input."
		case strings.Contains(text, "timeout"):
			return "Listening timed out. Tap the microphone to try again."
		}
		return "Voice recognition failed. You can type the card name instead."
	case service.KindAPI:
		if strings.Contains(text, "timed out") || strings.Contains(text, "timeout") {
			return "The request timed out. Please try again."
		}
		return "The pricing service is unavailable right now."
	case service.KindStorage:
		if strings.Contains(text, "quota") {
			return "Storage is full. Older data may be dropped."
		}
		return "Saving failed. Your session is kept in memory."
	case service.KindNetwork:
		return "You appear to be offline. Changes will sync when the connection returns."
	case service.KindPermission:
		return "Permission was denied."
	case service.KindValidation:
		if err != nil {
			return err.Error()
		}
		return "That input is not valid."
	default:
		return "Something went wrong. Please try again."
	}
}

// Safe runs an operation through the boundary, returning its typed result.
// On failure the boundary's resolution is consulted; the bool reports
// whether a usable result came back either way.
func Safe[T any](ctx context.Context, b service.ErrorBoundary, kind service.ErrorKind, operation string, fn func(ctx context.Context) (T, error)) (T, bool) {
	result, err := fn(ctx)
	if err == nil {
		return result, true
	}

	outcome := b.Handle(ctx, err, kind, service.ErrorContext{
		Operation: operation,
		Retry: func(ctx context.Context) (any, error) {
			return fn(ctx)
		},
	})
	if outcome.Success {
		if typed, ok := outcome.Result.(T); ok {
			return typed, true
		}
	}
	var zero T
	return zero, false
}
