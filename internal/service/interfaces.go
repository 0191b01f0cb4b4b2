// Package service defines the interfaces for all application services.
package service

import (
	"context"
	"image"
	"time"

	"github.com/ygopack/packtrack/internal/model"
)

// BackendKind identifies one tier of the storage layer.
type BackendKind string

// Storage backend tiers, in preference order.
const (
	BackendIndexed BackendKind = "indexed" // SQLite object store
	BackendDurable BackendKind = "durable" // JSON file store in the data dir
	BackendScratch BackendKind = "scratch" // process-scoped temp file store
	BackendMemory  BackendKind = "memory"  // in-process map
)

// Storage is the uniform async key/value contract over the tiered backends.
// Get decodes into out and reports whether the key existed; corrupted
// entries read as absent. Set serializes any JSON-compatible value.
type Storage interface {
	Get(ctx context.Context, key string, out any) (bool, error)
	Set(ctx context.Context, key string, value any) error
	Remove(ctx context.Context, key string) error
	Keys(ctx context.Context) ([]string, error)
	Clear(ctx context.Context) error

	// CurrentBackend reports the tier serving operations right now.
	CurrentBackend() BackendKind
	// Migrate copies every key from one backend to another, skipping
	// individual failures, and returns the number of keys copied.
	Migrate(ctx context.Context, from, to BackendKind) (int, error)
	// Downgrade switches to the next available lower tier. The memory
	// tier is always available as the floor.
	Downgrade(ctx context.Context) (BackendKind, error)
	Close() error
}

// SlotID names a view slot an image can be rendered into. The view owns
// the actual rendering; the cache only addresses slots.
type SlotID string

// ImageSize is a requested display size in pixels.
type ImageSize struct {
	Width  int
	Height int
}

// ImageCacheStats describes cache occupancy and effectiveness.
type ImageCacheStats struct {
	MemoryEntries     int
	PersistentEntries int
	FailedURLs        int
	Hits              uint64
	Misses            uint64
	Evictions         uint64
}

// ImageCache loads card images into view slots with well-defined visual
// fallback, backed by a memory LRU over a persistent tier.
type ImageCache interface {
	LoadForDisplay(ctx context.Context, cardID, url string, size ImageSize, slot SlotID) error
	Placeholder(size ImageSize) image.Image
	Clear(ctx context.Context) error
	Stats() ImageCacheStats
}

// VoiceStatus is the voice capture component's lifecycle state.
type VoiceStatus string

// Voice capture states. Disabled is terminal.
const (
	VoiceUninitialized VoiceStatus = "uninitialized"
	VoiceReady         VoiceStatus = "ready"
	VoiceListening     VoiceStatus = "listening"
	VoiceDisabled      VoiceStatus = "disabled"
)

// VoiceResult is one recognized utterance. Manual marks results entered
// through the fallback dialog rather than recognized speech.
type VoiceResult struct {
	Transcript   string
	Alternatives []string
	Confidence   float64
	Manual       bool
}

// VoiceErrorCode classifies a recognition failure.
type VoiceErrorCode string

// Voice error classifications.
const (
	VoicePermissionDenied VoiceErrorCode = "permission-denied"
	VoiceNotSupported     VoiceErrorCode = "not-supported"
	VoiceNetworkError     VoiceErrorCode = "network-error"
	VoiceNoSpeech         VoiceErrorCode = "no-speech"
	VoiceAudioCapture     VoiceErrorCode = "audio-capture"
	VoiceAborted          VoiceErrorCode = "aborted"
	VoiceTimeout          VoiceErrorCode = "timeout"
	VoiceUnknown          VoiceErrorCode = "unknown"
)

// VoiceError is a classified recognition failure, emitted instead of thrown.
type VoiceError struct {
	Err       error
	Code      VoiceErrorCode
	Retryable bool
}

func (e VoiceError) Error() string {
	if e.Err != nil {
		return string(e.Code) + ": " + e.Err.Error()
	}
	return string(e.Code)
}

func (e VoiceError) Unwrap() error { return e.Err }

// VoiceConfig is the settings subset the capture component consumes.
type VoiceConfig struct {
	Language        string
	Timeout         time.Duration
	MaxAlternatives int
	Continuous      bool
}

// VoiceCapture wraps a streaming speech recognizer behind a permission
// gate with timeout handling and error classification.
type VoiceCapture interface {
	Initialize(ctx context.Context) error
	Available() bool
	Status() VoiceStatus
	StartListening(ctx context.Context) error
	StopListening()
	OnResult(fn func(VoiceResult))
	OnError(fn func(VoiceError))
	OnStatusChange(fn func(VoiceStatus))
	UpdateConfig(cfg VoiceConfig)
	TestRecognition(ctx context.Context) (VoiceResult, error)
}

// RecognitionEvent is one event from the platform recognizer stream.
// Exactly one field is set; End marks the end of the stream.
type RecognitionEvent struct {
	Result *VoiceResult
	Err    *VoiceError
	End    bool
}

// Recognizer is the platform streaming speech recognizer.
type Recognizer interface {
	Supported() bool
	Start(ctx context.Context, cfg VoiceConfig) (<-chan RecognitionEvent, error)
	Stop()
}

// PermissionState is the microphone permission as reported by the platform.
type PermissionState string

// Microphone permission states.
const (
	PermissionGranted PermissionState = "granted"
	PermissionDenied  PermissionState = "denied"
	PermissionPrompt  PermissionState = "prompt"
	PermissionUnknown PermissionState = "unknown"
)

// MicrophoneProbe queries and, when necessary, forces the permission prompt.
type MicrophoneProbe interface {
	Query(ctx context.Context) PermissionState
	Probe(ctx context.Context) error
}

// ConnectivityWatcher observes process-level online/offline transitions.
type ConnectivityWatcher interface {
	Online() bool
	Watch(ctx context.Context) <-chan bool
}

// PriceRequest identifies a card for a pricing lookup.
type PriceRequest struct {
	CardNumber   string `json:"card_number"`
	CardName     string `json:"card_name"`
	Rarity       string `json:"card_rarity"`
	ArtVariant   string `json:"art_variant"`
	ForceRefresh bool   `json:"force_refresh"`
}

// PriceResult is the pricing service's answer for one card.
type PriceResult struct {
	Timestamp time.Time `json:"timestamp"`
	CardName  string    `json:"cardName"`
	ImageURL  string    `json:"imageUrl"`
	Message   string    `json:"message,omitempty"`
	TCGLow    float64   `json:"tcgLow"`
	TCGMid    float64   `json:"tcgMid"`
	TCGMarket float64   `json:"tcgMarket"`
	TCGHigh   float64   `json:"tcgHigh"`
	Success   bool      `json:"success"`
}

// PriceClient talks to the remote pricing and catalog service.
type PriceClient interface {
	CheckPrice(ctx context.Context, req PriceRequest) (*PriceResult, error)
	CardSets(ctx context.Context) ([]model.CardSet, error)
	SearchSets(ctx context.Context, term string) ([]model.CardSet, error)
	SetCards(ctx context.Context, setName string) ([]model.CatalogCard, error)
}

// SessionManager is the authoritative owner of the current session.
type SessionManager interface {
	Initialize(ctx context.Context) error
	Current() *model.Session
	StartSession(ctx context.Context, setID string) (*model.Session, error)
	StopSession(ctx context.Context) error
	ClearSession(ctx context.Context) error
	AddCard(ctx context.Context, card model.SessionCard) (*model.SessionCard, error)
	RemoveCard(ctx context.Context, id string) error
	AdjustCardQuantity(ctx context.Context, id string, delta int) error
	UpdateCardPricing(ctx context.Context, id string, pricing model.PricingSnapshot) error
	ProcessVoiceInput(ctx context.Context, transcript string) ([]model.Candidate, error)
	SaveSession(ctx context.Context) error
	LoadLastSession(ctx context.Context) (*model.Session, error)
	ExportSession(format string) ([]byte, error)
	ImportSession(ctx context.Context, payload []byte) (*model.Session, error)
	Statistics() (model.Statistics, error)
	History() []*model.Session
	UpdateSettings(s model.Settings)
}

// ErrorKind is the tagged variant classifying a failure for the boundary's
// retry and fallback policy.
type ErrorKind string

// Error kinds.
const (
	KindVoiceRecognition ErrorKind = "voice-recognition"
	KindAPI              ErrorKind = "api"
	KindStorage          ErrorKind = "storage"
	KindNetwork          ErrorKind = "network"
	KindPermission       ErrorKind = "permission"
	KindValidation       ErrorKind = "validation"
	KindUnknown          ErrorKind = "unknown"
)

// ErrorContext carries what the boundary needs to retry or fall back.
// Retry re-issues the original operation; without it no retry happens.
type ErrorContext struct {
	Retry            func(ctx context.Context) (any, error)
	Operation        string
	CacheKey         string
	NetworkDependent bool
}

// ErrorOutcome is the boundary's resolution of a handled failure.
type ErrorOutcome struct {
	Result      any
	UserMessage string
	ErrorID     string
	Success     bool
}

// FallbackHandler substitutes a result for a failure of its kind. The bool
// reports whether the fallback produced a usable result.
type FallbackHandler func(ctx context.Context, err error, ec ErrorContext) (any, bool)

// ErrorBoundary is the central failure coordinator. Components hand
// failures here instead of surfacing raw errors to the user.
type ErrorBoundary interface {
	Handle(ctx context.Context, err error, kind ErrorKind, ec ErrorContext) ErrorOutcome
	RegisterHandler(kind ErrorKind, h FallbackHandler)
	Offline() bool
	ClearErrorHistory()
}

// ToastLevel grades a transient user notification.
type ToastLevel string

// Toast levels.
const (
	ToastInfo    ToastLevel = "info"
	ToastSuccess ToastLevel = "success"
	ToastWarning ToastLevel = "warning"
	ToastError   ToastLevel = "error"
)

// ModalDescriptor describes a modal the view should present.
type ModalDescriptor struct {
	Title   string
	Body    string
	Choices []string
}

// ViewEvents are the user-action handlers the coordinator registers with
// the view. Nil handlers are ignored.
type ViewEvents struct {
	OnTabChange          func(tab string)
	OnPriceCheck         func(req PriceRequest)
	OnSessionStart       func(setID string)
	OnSessionStop        func()
	OnSessionClear       func()
	OnSessionExport      func(format string)
	OnSessionImport      func(payload []byte)
	OnVoiceStart         func()
	OnVoiceStop          func()
	OnVoiceTest          func()
	OnQuantityAdjust     func(cardID string, delta int)
	OnCardRemove         func(cardID string)
	OnPricingRefresh     func(cardID string)
	OnBulkPricingRefresh func()
	OnSettingsSave       func(s model.Settings)
	OnSettingsShow       func()
}

// ViewPort is the contract with the view collaborator. The core never
// touches rendering directly; it emits through these hooks.
type ViewPort interface {
	Bind(events ViewEvents)
	UpdateSessionInfo(s *model.Session)
	DisplayPriceResults(r *PriceResult)
	UpdateVoiceStatus(status VoiceStatus)
	UpdateConnectionStatus(online bool)
	ShowToast(message string, level ToastLevel)
	SetLoading(loading bool)
	ShowModal(m ModalDescriptor)
	CloseModal()
	UpdateCardSets(sets []model.CardSet)
	UpdateCardDisplay(card *model.SessionCard)

	// Image slot primitives. Each clears the slot and installs exactly
	// one subtree.
	ShowLoading(slot SlotID)
	ShowPlaceholder(slot SlotID, label string)
	ShowImage(slot SlotID, img image.Image)

	// PromptManualEntry blocks for manual text entry, the fallback when
	// recognition is exhausted. ok is false when the user dismisses it.
	PromptManualEntry(ctx context.Context, prompt string) (text string, ok bool)
}

// RetryOptions configures retry behavior for operations.
type RetryOptions struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}
