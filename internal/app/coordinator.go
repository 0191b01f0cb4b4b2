// Package app wires the tracker's components together. The coordinator
// owns initialization order, settings persistence, and the routing of
// view events to the component that handles them.
package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/schollz/progressbar/v3"

	"github.com/ygopack/packtrack/internal/boundary"
	"github.com/ygopack/packtrack/internal/common"
	"github.com/ygopack/packtrack/internal/imagecache"
	"github.com/ygopack/packtrack/internal/model"
	"github.com/ygopack/packtrack/internal/pricing"
	"github.com/ygopack/packtrack/internal/service"
	"github.com/ygopack/packtrack/internal/session"
	"github.com/ygopack/packtrack/internal/storage"
	"github.com/ygopack/packtrack/internal/view"
	"github.com/ygopack/packtrack/internal/voice"
)

// settingsKey is where the coordinator persists settings.
const settingsKey = "settings"

// Config is the static configuration the coordinator boots from.
type Config struct {
	// DBPath is the SQLite file for the indexed storage tier.
	DBPath string
	// DataDir roots the durable file storage tier.
	DataDir string
	// APIBaseURL is the pricing service endpoint. Empty disables pricing.
	APIBaseURL string
	// RestrictedImageHost names the image host that requires the proxy.
	RestrictedImageHost string
	// ImageProxyPrefix is prepended to restricted image URLs on retry.
	ImageProxyPrefix string
	// MaxImageMemoryEntries caps the image cache's memory tier.
	MaxImageMemoryEntries int
	// ConnectivityInterval overrides the connectivity poll cadence.
	ConnectivityInterval time.Duration
}

// Options injects the platform collaborators the coordinator cannot
// construct itself. Any nil field gets a safe fallback.
type Options struct {
	View       service.ViewPort
	Store      service.Storage
	Prices     service.PriceClient
	Recognizer service.Recognizer
	Probe      service.MicrophoneProbe
	Watcher    service.ConnectivityWatcher
}

// App is the assembled application.
type App struct {
	cfg      Config
	settings model.Settings
	store    service.Storage
	view     service.ViewPort
	voice    service.VoiceCapture
	sessions *session.Manager
	prices   service.PriceClient
	images   service.ImageCache
	errs     *boundary.Boundary
}

// New boots every component in its fixed order. Each step has a safe
// fallback; initialization only fails outright if nothing at all can be
// stood up.
func New(ctx context.Context, cfg Config, opts Options) (*App, error) {
	a := &App{cfg: cfg}

	// 1. Settings: defaults now, persisted overrides once storage is up.
	a.settings = model.DefaultSettings()

	// 2. Storage: tiered store, memory floor on total failure.
	a.store = opts.Store
	if a.store == nil {
		store, err := storage.NewStore(ctx, storage.Config{DBPath: cfg.DBPath, DataDir: cfg.DataDir})
		if err != nil {
			common.LogError(err, "storage initialization failed, using memory tier", nil)
			store = storage.NewMemoryStore()
		}
		a.store = store
	}

	var persisted model.Settings
	if found, getErr := a.store.Get(ctx, settingsKey, &persisted); getErr == nil && found {
		persisted.Normalize()
		a.settings = persisted
	}

	// 3. View: injected, else the terminal surface, else a stub.
	a.view = opts.View
	if a.view == nil {
		a.view = view.NewTerminal(nil, nil)
	}

	// 4. Permission probe and voice capture. A nil recognizer leaves the
	// component disabled rather than absent.
	a.voice = voice.New(opts.Recognizer, opts.Probe, a.voiceConfig())
	if initErr := a.voice.Initialize(ctx); initErr != nil {
		common.LogWarn("voice capture unavailable", common.Fields{"error": initErr.Error()})
	}

	// 5. Pricing client. Constructed before the session manager so the
	// manager can fetch catalogs, but pricing stays optional.
	a.prices = opts.Prices
	if a.prices == nil && cfg.APIBaseURL != "" {
		client, priceErr := pricing.NewClient(cfg.APIBaseURL)
		if priceErr != nil {
			common.LogWarn("pricing disabled", common.Fields{"error": priceErr.Error()})
		} else {
			a.prices = client
		}
	}

	// 6. Session manager.
	a.sessions = session.NewManager(a.store, a.prices, a.settings)
	if initErr := a.sessions.Initialize(ctx); initErr != nil {
		common.LogError(initErr, "session manager initialization failed", nil)
	}

	// 7. Image cache over the same storage tier.
	a.images = imagecache.New(a.store, a.view, imagecache.Config{
		MaxMemoryEntries: cfg.MaxImageMemoryEntries,
		RestrictedHost:   cfg.RestrictedImageHost,
		ProxyPrefix:      cfg.ImageProxyPrefix,
	})

	// 8. Error boundary and connectivity.
	watcher := opts.Watcher
	if watcher == nil && cfg.APIBaseURL != "" {
		watcher = boundary.NewPollWatcher(cfg.APIBaseURL, cfg.ConnectivityInterval)
	}
	a.errs = boundary.New(a.view, a.store, watcher)
	a.errs.Watch(ctx)

	// 9. Wiring.
	a.wire(ctx)

	// 10. Initial data load.
	a.view.UpdateConnectionStatus(!a.errs.Offline())
	a.view.UpdateVoiceStatus(a.voice.Status())
	if sets := a.sessions.Sets(); len(sets) > 0 {
		a.view.UpdateCardSets(sets)
	}
	a.view.UpdateSessionInfo(a.sessions.Current())

	return a, nil
}

// wire connects voice callbacks and view events to their handlers.
func (a *App) wire(ctx context.Context) {
	a.voice.OnStatusChange(func(status service.VoiceStatus) {
		a.view.UpdateVoiceStatus(status)
	})
	a.voice.OnResult(func(r service.VoiceResult) {
		a.handleTranscript(ctx, r.Transcript)
	})
	a.voice.OnError(func(ve service.VoiceError) {
		outcome := a.errs.Handle(ctx, ve, service.KindVoiceRecognition, service.ErrorContext{
			Operation: "voice-recognition",
		})
		if result, ok := outcome.Result.(service.VoiceResult); ok && outcome.Success {
			a.handleTranscript(ctx, result.Transcript)
		}
	})

	a.view.Bind(service.ViewEvents{
		OnPriceCheck: func(req service.PriceRequest) {
			a.CheckPrice(ctx, req)
		},
		OnSessionStart: func(setID string) {
			if _, err := a.sessions.StartSession(ctx, setID); err != nil {
				a.errs.Handle(ctx, err, classifyKind(err), service.ErrorContext{Operation: "start-session", Retry: a.saveRetry()})
				return
			}
			a.view.UpdateSessionInfo(a.sessions.Current())
		},
		OnSessionStop: func() {
			if err := a.sessions.StopSession(ctx); err != nil {
				a.errs.Handle(ctx, err, classifyKind(err), service.ErrorContext{Operation: "stop-session"})
				return
			}
			a.view.UpdateSessionInfo(nil)
		},
		OnSessionClear: func() {
			if err := a.sessions.ClearSession(ctx); err != nil {
				a.errs.Handle(ctx, err, classifyKind(err), service.ErrorContext{Operation: "clear-session", Retry: a.saveRetry()})
				return
			}
			a.view.UpdateSessionInfo(a.sessions.Current())
		},
		OnSessionExport: func(format string) {
			if _, err := a.sessions.ExportSession(format); err != nil {
				a.errs.Handle(ctx, err, service.KindValidation, service.ErrorContext{Operation: "export-session"})
			}
		},
		OnSessionImport: func(payload []byte) {
			if _, err := a.sessions.ImportSession(ctx, payload); err != nil {
				a.errs.Handle(ctx, err, classifyKind(err), service.ErrorContext{Operation: "import-session", Retry: a.saveRetry()})
				return
			}
			a.view.UpdateSessionInfo(a.sessions.Current())
		},
		OnVoiceStart: func() {
			if err := a.voice.StartListening(ctx); err != nil {
				a.errs.Handle(ctx, err, service.KindVoiceRecognition, service.ErrorContext{Operation: "start-listening"})
			}
		},
		OnVoiceStop: func() {
			a.voice.StopListening()
		},
		OnVoiceTest: func() {
			if _, err := a.voice.TestRecognition(ctx); err != nil {
				a.errs.Handle(ctx, err, service.KindVoiceRecognition, service.ErrorContext{Operation: "test-recognition"})
				return
			}
			a.view.ShowToast("Voice recognition is working", service.ToastSuccess)
		},
		OnQuantityAdjust: func(cardID string, delta int) {
			if err := a.sessions.AdjustCardQuantity(ctx, cardID, delta); err != nil {
				a.errs.Handle(ctx, err, classifyKind(err), service.ErrorContext{Operation: "adjust-quantity", Retry: a.saveRetry()})
				return
			}
			a.view.UpdateSessionInfo(a.sessions.Current())
		},
		OnCardRemove: func(cardID string) {
			if err := a.sessions.RemoveCard(ctx, cardID); err != nil {
				a.errs.Handle(ctx, err, classifyKind(err), service.ErrorContext{Operation: "remove-card", Retry: a.saveRetry()})
				return
			}
			a.view.UpdateSessionInfo(a.sessions.Current())
		},
		OnPricingRefresh: func(cardID string) {
			a.refreshCardPricing(ctx, cardID)
		},
		OnBulkPricingRefresh: func() {
			if err := a.RefreshAllPricing(ctx); err != nil {
				a.errs.Handle(ctx, err, service.KindAPI, service.ErrorContext{Operation: "bulk-pricing-refresh"})
			}
		},
		OnSettingsSave: func(s model.Settings) {
			a.SaveSettings(ctx, s)
		},
		OnSettingsShow: func() {
			a.view.ShowModal(service.ModalDescriptor{
				Title: "Settings",
				Body:  fmt.Sprintf("%+v", a.Settings()),
			})
		},
	})
}

// saveRetry re-issues the session persist. Session mutations hand this to
// the boundary so a storage fallback (tier downgrade) can complete the
// save that failed.
func (a *App) saveRetry() func(context.Context) (any, error) {
	return func(ctx context.Context) (any, error) {
		return nil, a.sessions.SaveSession(ctx)
	}
}

// handleTranscript feeds recognized speech through the session manager
// and presents the outcome.
func (a *App) handleTranscript(ctx context.Context, transcript string) {
	candidates, err := a.sessions.ProcessVoiceInput(ctx, transcript)
	if err != nil {
		a.errs.Handle(ctx, err, classifyKind(err), service.ErrorContext{Operation: "process-voice-input", Retry: a.saveRetry()})
		return
	}
	a.view.UpdateSessionInfo(a.sessions.Current())
	if len(candidates) == 0 {
		return
	}
	settings := a.Settings()
	if len(candidates) == 1 && settings.AutoConfirmBestMatch &&
		candidates[0].Confidence >= settings.AutoConfirmMinConfidence {
		c := candidates[0]
		a.view.ShowToast(fmt.Sprintf("Added %s [%s] (%.0f%%)", c.Card.Name, c.Rarity, c.Confidence), service.ToastSuccess)
		return
	}

	choices := make([]string, 0, len(candidates))
	for _, c := range candidates {
		choices = append(choices, fmt.Sprintf("%s [%s] (%.0f%%)", c.Card.Name, c.Rarity, c.Confidence))
	}
	a.view.ShowModal(service.ModalDescriptor{
		Title:   "Which card did you mean?",
		Body:    "Say or pick a number",
		Choices: choices,
	})
}

// CheckPrice looks up prices for one card and renders the result. The
// lookup runs through the error boundary with the card-set cache as the
// API fallback.
func (a *App) CheckPrice(ctx context.Context, req service.PriceRequest) *service.PriceResult {
	if a.prices == nil {
		a.view.ShowToast("Pricing is not configured", service.ToastWarning)
		return nil
	}
	a.view.SetLoading(true)
	defer a.view.SetLoading(false)

	result, err := a.prices.CheckPrice(ctx, req)
	if err != nil {
		outcome := a.errs.Handle(ctx, err, classifyKind(err), service.ErrorContext{
			Operation:        "check-price",
			NetworkDependent: true,
			Retry: func(ctx context.Context) (any, error) {
				return a.prices.CheckPrice(ctx, req)
			},
		})
		recovered, ok := outcome.Result.(*service.PriceResult)
		if !ok {
			return nil
		}
		result = recovered
	}
	a.view.DisplayPriceResults(result)
	if result.ImageURL != "" {
		size := service.ImageSize{Width: 256, Height: 373}
		if imgErr := a.images.LoadForDisplay(ctx, result.CardName, result.ImageURL, size, "price-card"); imgErr != nil {
			common.LogDebug("card image load failed", common.Fields{"error": imgErr.Error()})
		}
	}
	return result
}

// refreshCardPricing updates one session card from the pricing service.
func (a *App) refreshCardPricing(ctx context.Context, cardID string) {
	current := a.sessions.Current()
	if current == nil || a.prices == nil {
		return
	}
	var target *model.SessionCard
	for _, c := range current.Cards {
		if c.ID == cardID {
			target = c
			break
		}
	}
	if target == nil {
		return
	}

	result, err := a.prices.CheckPrice(ctx, service.PriceRequest{
		CardNumber: target.CardNumber,
		CardName:   target.Name,
		Rarity:     target.Rarity,
		ArtVariant: target.ArtVariant,
	})
	if err != nil {
		a.errs.Handle(ctx, err, classifyKind(err), service.ErrorContext{Operation: "refresh-pricing"})
		return
	}
	if err := a.sessions.UpdateCardPricing(ctx, cardID, snapshotFrom(result)); err != nil {
		common.LogWarn("failed to store refreshed pricing", common.Fields{"error": err.Error()})
		return
	}
	a.view.UpdateSessionInfo(a.sessions.Current())
}

// RefreshAllPricing refetches prices for every card in the session,
// rendering progress as it goes. Per-card failures are logged and
// skipped; the refresh keeps moving.
func (a *App) RefreshAllPricing(ctx context.Context) error {
	current := a.sessions.Current()
	if current == nil {
		return common.ErrNoActiveSession
	}
	if a.prices == nil {
		return fmt.Errorf("%w: pricing API URL", common.ErrMissingConfig)
	}
	if len(current.Cards) == 0 {
		return nil
	}

	bar := progressbar.NewOptions(len(current.Cards),
		progressbar.OptionSetDescription("Refreshing prices"),
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish(),
	)

	failures := 0
	for _, c := range current.Cards {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		result, err := a.prices.CheckPrice(ctx, service.PriceRequest{
			CardNumber:   c.CardNumber,
			CardName:     c.Name,
			Rarity:       c.Rarity,
			ArtVariant:   c.ArtVariant,
			ForceRefresh: true,
		})
		if err != nil {
			failures++
			common.LogWarn("price refresh failed", common.Fields{
				"card":  c.Name,
				"error": err.Error(),
			})
		} else if err := a.sessions.UpdateCardPricing(ctx, c.ID, snapshotFrom(result)); err != nil {
			failures++
		}
		_ = bar.Add(1)
	}

	a.view.UpdateSessionInfo(a.sessions.Current())
	if failures > 0 {
		a.view.ShowToast(fmt.Sprintf("Prices refreshed with %d failures", failures), service.ToastWarning)
	} else {
		a.view.ShowToast("Prices refreshed", service.ToastSuccess)
	}
	return nil
}

// snapshotFrom converts a pricing answer into the stored snapshot. The
// market price is the estimate when present, falling back to the low.
func snapshotFrom(r *service.PriceResult) model.PricingSnapshot {
	estimated := r.TCGMarket
	if estimated <= 0 {
		estimated = r.TCGLow
	}
	return model.PricingSnapshot{
		Low:       r.TCGLow,
		Market:    r.TCGMarket,
		High:      r.TCGHigh,
		Estimated: estimated,
		FetchedAt: r.Timestamp,
	}
}

// Settings returns the coordinator's active settings.
func (a *App) Settings() model.Settings {
	return a.sessions.Settings()
}

// SaveSettings persists settings write-through and propagates them to
// the components that consume subsets of them.
func (a *App) SaveSettings(ctx context.Context, s model.Settings) {
	s.Normalize()
	a.settings = s
	if err := a.store.Set(ctx, settingsKey, s); err != nil {
		a.errs.Handle(ctx, err, service.KindStorage, service.ErrorContext{
			Operation: "save-settings",
			Retry: func(ctx context.Context) (any, error) {
				return nil, a.store.Set(ctx, settingsKey, s)
			},
		})
	}
	a.sessions.UpdateSettings(s)
	a.voice.UpdateConfig(a.voiceConfig())
	a.view.ShowToast("Settings saved", service.ToastSuccess)
}

// voiceConfig derives the voice component's config from settings.
func (a *App) voiceConfig() service.VoiceConfig {
	return service.VoiceConfig{
		Language:        a.settings.RecognitionLanguage,
		Timeout:         time.Duration(a.settings.VoiceTimeoutMS) * time.Millisecond,
		MaxAlternatives: a.settings.MaxAlternatives,
		Continuous:      a.settings.ContinuousRecognition,
	}
}

// Sessions exposes the session manager.
func (a *App) Sessions() *session.Manager { return a.sessions }

// Prices exposes the pricing client. Nil when pricing is not configured.
func (a *App) Prices() service.PriceClient { return a.prices }

// Store exposes the storage tier.
func (a *App) Store() service.Storage { return a.store }

// View exposes the bound view.
func (a *App) View() service.ViewPort { return a.view }

// Voice exposes the voice capture component.
func (a *App) Voice() service.VoiceCapture { return a.voice }

// Images exposes the image cache.
func (a *App) Images() service.ImageCache { return a.images }

// Boundary exposes the error boundary.
func (a *App) Boundary() *boundary.Boundary { return a.errs }

// Close releases held resources.
func (a *App) Close() error {
	a.voice.StopListening()
	return a.store.Close()
}

// classifyKind maps an error to the boundary kind that owns its policy.
func classifyKind(err error) service.ErrorKind {
	if err == nil {
		return service.KindUnknown
	}
	var verr *common.ValidationError
	if errors.As(err, &verr) {
		return service.KindValidation
	}
	var voiceErr service.VoiceError
	if errors.As(err, &voiceErr) {
		if voiceErr.Code == service.VoicePermissionDenied {
			return service.KindPermission
		}
		return service.KindVoiceRecognition
	}
	switch {
	case errors.Is(err, common.ErrAPIConnection), errors.Is(err, common.ErrAPITimeout):
		return service.KindAPI
	case errors.Is(err, common.ErrOffline):
		return service.KindNetwork
	case errors.Is(err, common.ErrQuotaExceeded), errors.Is(err, common.ErrAccessDenied),
		errors.Is(err, common.ErrCorruptedData):
		return service.KindStorage
	case errors.Is(err, common.ErrNoActiveSession), errors.Is(err, common.ErrUnknownSet),
		errors.Is(err, common.ErrNotFound), errors.Is(err, common.ErrInvalidImport):
		return service.KindValidation
	}
	if strings.Contains(err.Error(), "pricing service") {
		return service.KindAPI
	}
	return service.KindUnknown
}
