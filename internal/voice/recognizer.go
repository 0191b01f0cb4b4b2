package voice

import (
	"bufio"
	"context"
	"io"
	"strings"
	"sync"

	"github.com/ygopack/packtrack/internal/service"
)

// StaticProbe is a microphone probe with a fixed permission state, used
// where the platform exposes no permission model (the terminal client)
// and in tests.
type StaticProbe struct {
	State service.PermissionState
}

// Query returns the configured permission state.
func (p StaticProbe) Query(_ context.Context) service.PermissionState { return p.State }

// Probe succeeds unless the configured state is denied.
func (p StaticProbe) Probe(_ context.Context) error {
	if p.State == service.PermissionDenied {
		return service.VoiceError{Code: service.VoicePermissionDenied}
	}
	return nil
}

// ReaderRecognizer adapts a line-oriented reader into the recognizer
// contract. It backs the typed-input path: each line becomes one final
// utterance with full confidence.
type ReaderRecognizer struct {
	r       io.Reader
	scanner *bufio.Scanner
	mu      sync.Mutex
	stopped bool
}

// NewReaderRecognizer wraps r, typically standard input.
func NewReaderRecognizer(r io.Reader) *ReaderRecognizer {
	return &ReaderRecognizer{r: r, scanner: bufio.NewScanner(r)}
}

// Supported always holds; any reader can produce utterances.
func (r *ReaderRecognizer) Supported() bool { return true }

// Start begins emitting one event per non-empty line until the reader is
// exhausted, the context ends, or Stop is called.
func (r *ReaderRecognizer) Start(ctx context.Context, cfg service.VoiceConfig) (<-chan service.RecognitionEvent, error) {
	r.mu.Lock()
	r.stopped = false
	r.mu.Unlock()

	events := make(chan service.RecognitionEvent)
	go func() {
		defer close(events)
		for r.scanner.Scan() {
			r.mu.Lock()
			stopped := r.stopped
			r.mu.Unlock()
			if stopped {
				return
			}

			line := strings.TrimSpace(r.scanner.Text())
			if line == "" {
				continue
			}
			ev := service.RecognitionEvent{Result: &service.VoiceResult{
				Transcript: line,
				Confidence: 1.0,
			}}
			select {
			case events <- ev:
			case <-ctx.Done():
				return
			}
			if !cfg.Continuous {
				return
			}
		}
	}()
	return events, nil
}

// Stop halts emission after the current line.
func (r *ReaderRecognizer) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopped = true
}
