package voice

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ygopack/packtrack/internal/common"
	"github.com/ygopack/packtrack/internal/service"
)

// Capture implements service.VoiceCapture over an injected platform
// recognizer and microphone probe.
//
// State machine: uninitialized -> ready -> listening -> ready, with a
// one-way terminal disabled state on unrecoverable failure.
type Capture struct {
	recognizer service.Recognizer
	probe      service.MicrophoneProbe

	onResult func(service.VoiceResult)
	onError  func(service.VoiceError)
	onStatus func(service.VoiceStatus)

	cancel     context.CancelFunc
	status     service.VoiceStatus
	cfg        service.VoiceConfig
	quirks     platformQuirks
	generation uint64
	mu         sync.Mutex
}

// New creates an uninitialized capture component. A nil recognizer means
// the platform has no speech support; Initialize will disable the
// component.
func New(recognizer service.Recognizer, probe service.MicrophoneProbe, cfg service.VoiceConfig) *Capture {
	c := &Capture{
		recognizer: recognizer,
		probe:      probe,
		status:     service.VoiceUninitialized,
		quirks:     currentQuirks(),
	}
	c.applyConfig(cfg)
	return c
}

// Initialize verifies platform support and moves the component to ready.
// Unsupported platforms disable it permanently.
func (c *Capture) Initialize(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.status == service.VoiceDisabled {
		return service.VoiceError{Code: service.VoiceNotSupported}
	}
	if c.status != service.VoiceUninitialized {
		return nil
	}
	if c.recognizer == nil || !c.recognizer.Supported() {
		c.setStatusLocked(service.VoiceDisabled)
		return service.VoiceError{Code: service.VoiceNotSupported}
	}

	c.setStatusLocked(service.VoiceReady)
	return nil
}

// Available reports whether the component can listen.
func (c *Capture) Available() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status == service.VoiceReady || c.status == service.VoiceListening
}

// Status returns the current lifecycle state.
func (c *Capture) Status() service.VoiceStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// OnResult registers the recognized-utterance callback.
func (c *Capture) OnResult(fn func(service.VoiceResult)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onResult = fn
}

// OnError registers the classified-error callback.
func (c *Capture) OnError(fn func(service.VoiceError)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onError = fn
}

// OnStatusChange registers the lifecycle-transition callback.
func (c *Capture) OnStatusChange(fn func(service.VoiceStatus)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onStatus = fn
}

// UpdateConfig applies a settings subset, with platform quirks layered
// on top.
func (c *Capture) UpdateConfig(cfg service.VoiceConfig) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.applyConfig(cfg)
}

func (c *Capture) applyConfig(cfg service.VoiceConfig) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.MaxAlternatives <= 0 {
		cfg.MaxAlternatives = 3
	}
	if c.quirks.forceNonContinuous {
		cfg.Continuous = false
	}
	if c.quirks.singleAlternative {
		cfg.MaxAlternatives = 1
	}
	c.cfg = cfg
}

// StartListening gates on the microphone permission, starts the
// recognizer, and consumes its stream until a stop, an error, or the
// configured timeout with no result.
func (c *Capture) StartListening(ctx context.Context) error {
	c.mu.Lock()
	switch c.status {
	case service.VoiceDisabled:
		c.mu.Unlock()
		return service.VoiceError{Code: service.VoiceNotSupported}
	case service.VoiceListening:
		c.mu.Unlock()
		return nil
	case service.VoiceUninitialized:
		c.mu.Unlock()
		return fmt.Errorf("voice capture not initialized")
	case service.VoiceReady:
	}
	cfg := c.cfg
	c.mu.Unlock()

	if err := c.ensurePermission(ctx); err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(context.Background())
	events, err := c.recognizer.Start(runCtx, cfg)
	if err != nil {
		cancel()
		ve := classify(err)
		c.emitError(ve)
		return ve
	}

	c.mu.Lock()
	c.cancel = cancel
	c.generation++
	gen := c.generation
	c.setStatusLocked(service.VoiceListening)
	c.mu.Unlock()

	go c.consume(gen, cfg, events)
	return nil
}

// consume drains recognizer events for one listening session. A stale
// generation means StopListening already cancelled this session; its
// remaining events are dropped.
func (c *Capture) consume(gen uint64, cfg service.VoiceConfig, events <-chan service.RecognitionEvent) {
	timeout := time.NewTimer(cfg.Timeout)
	defer timeout.Stop()

	for {
		select {
		case <-timeout.C:
			if !c.isCurrent(gen) {
				return
			}
			c.finish(gen)
			c.emitError(service.VoiceError{Code: service.VoiceTimeout, Retryable: true})
			return
		case ev, ok := <-events:
			if !ok {
				c.finish(gen)
				return
			}
			if !c.isCurrent(gen) {
				return
			}
			switch {
			case ev.Result != nil:
				// A result arrived; the timeout covers silence
				// only, so reset it for continuous sessions.
				if !timeout.Stop() {
					select {
					case <-timeout.C:
					default:
					}
				}
				timeout.Reset(cfg.Timeout)
				c.emitResult(*ev.Result)
				if !cfg.Continuous {
					c.finish(gen)
					return
				}
			case ev.Err != nil:
				c.finish(gen)
				c.handleVoiceError(*ev.Err)
				return
			case ev.End:
				c.finish(gen)
				return
			}
		}
	}
}

// StopListening is a hard cancel of any in-flight recognition. It is
// idempotent from any state.
func (c *Capture) StopListening() {
	c.mu.Lock()
	cancel := c.cancel
	c.cancel = nil
	c.generation++ // invalidate the consuming goroutine
	if c.status == service.VoiceListening {
		c.setStatusLocked(service.VoiceReady)
	}
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if c.recognizer != nil {
		c.recognizer.Stop()
	}
}

// TestRecognition runs a single supervised listen and returns the first
// result, for the settings panel's microphone check.
func (c *Capture) TestRecognition(ctx context.Context) (service.VoiceResult, error) {
	c.mu.Lock()
	timeout := c.cfg.Timeout
	c.mu.Unlock()

	resultCh := make(chan service.VoiceResult, 1)
	errCh := make(chan service.VoiceError, 1)

	c.mu.Lock()
	prevResult, prevErr := c.onResult, c.onError
	c.onResult = func(r service.VoiceResult) {
		select {
		case resultCh <- r:
		default:
		}
	}
	c.onError = func(e service.VoiceError) {
		select {
		case errCh <- e:
		default:
		}
	}
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.onResult, c.onError = prevResult, prevErr
		c.mu.Unlock()
	}()

	if err := c.StartListening(ctx); err != nil {
		return service.VoiceResult{}, err
	}
	defer c.StopListening()

	select {
	case r := <-resultCh:
		return r, nil
	case e := <-errCh:
		return service.VoiceResult{}, e
	case <-time.After(timeout + time.Second):
		return service.VoiceResult{}, service.VoiceError{Code: service.VoiceTimeout, Retryable: true}
	case <-ctx.Done():
		return service.VoiceResult{}, ctx.Err()
	}
}

// ensurePermission queries the microphone permission and, when the state
// is unknown, forces the prompt with a capture probe. Denial disables
// the component permanently.
func (c *Capture) ensurePermission(ctx context.Context) error {
	if c.probe == nil {
		return nil
	}

	state := c.probe.Query(ctx)
	switch state {
	case service.PermissionGranted:
		return nil
	case service.PermissionDenied:
		c.disable()
		ve := service.VoiceError{Code: service.VoicePermissionDenied}
		c.emitError(ve)
		return ve
	case service.PermissionPrompt, service.PermissionUnknown:
	}

	if err := c.probe.Probe(ctx); err != nil {
		c.disable()
		ve := service.VoiceError{Code: service.VoicePermissionDenied, Err: err}
		c.emitError(ve)
		return ve
	}
	return nil
}

func (c *Capture) handleVoiceError(ve service.VoiceError) {
	if ve.Code == service.VoicePermissionDenied || ve.Code == service.VoiceNotSupported {
		c.disable()
	}
	c.emitError(ve)
}

func (c *Capture) disable() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.setStatusLocked(service.VoiceDisabled)
}

// finish returns a listening session to ready if it is still current.
func (c *Capture) finish(gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.generation != gen {
		return
	}
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	if c.status == service.VoiceListening {
		c.setStatusLocked(service.VoiceReady)
	}
}

func (c *Capture) isCurrent(gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generation == gen
}

func (c *Capture) emitResult(r service.VoiceResult) {
	c.mu.Lock()
	fn := c.onResult
	c.mu.Unlock()
	if fn != nil {
		fn(r)
	}
}

func (c *Capture) emitError(ve service.VoiceError) {
	common.LogDebug("voice error", common.Fields{"code": string(ve.Code)})
	c.mu.Lock()
	fn := c.onError
	c.mu.Unlock()
	if fn != nil {
		fn(ve)
	}
}

// setStatusLocked transitions state and notifies; callers hold the lock.
func (c *Capture) setStatusLocked(s service.VoiceStatus) {
	if c.status == s {
		return
	}
	c.status = s
	if fn := c.onStatus; fn != nil {
		go fn(s)
	}
}

// classify maps an arbitrary recognizer error onto the voice taxonomy.
func classify(err error) service.VoiceError {
	var ve service.VoiceError
	if errors.As(err, &ve) {
		return ve
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return service.VoiceError{Code: service.VoiceTimeout, Retryable: true, Err: err}
	case errors.Is(err, context.Canceled):
		return service.VoiceError{Code: service.VoiceAborted, Err: err}
	default:
		return service.VoiceError{Code: service.VoiceUnknown, Retryable: true, Err: err}
	}
}
