// Package session implements the authoritative owner of the current
// pack-opening session: the card list, its derived totals, voice input
// processing, persistence, and import/export.
package session

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ygopack/packtrack/internal/common"
	"github.com/ygopack/packtrack/internal/model"
	"github.com/ygopack/packtrack/internal/service"
)

// Storage keys owned by the session manager.
const (
	keyCurrentSession = "currentSession"
	keyCardSets       = "cardSets"
	keyHistory        = "sessionHistory"
	keyCatalogPrefix  = "cardCatalog:"
)

// defaultHistoryLimit bounds the archived session ring.
const defaultHistoryLimit = 10

// Manager implements service.SessionManager. All mutations are serialized
// under a single mutex; callers never observe stale totals.
type Manager struct {
	mu       sync.Mutex
	store    service.Storage
	prices   service.PriceClient
	settings model.Settings
	sets     []model.CardSet
	catalog  []model.CatalogCard
	current  *model.Session
	history  []*model.Session
	pending  []model.Candidate

	// Lookup indexes over the current card list. The slice stays the
	// source of order; the maps make merge-on-add and lookup-by-id O(1).
	byIdentity map[model.CardIdentity]*model.SessionCard
	byID       map[string]*model.SessionCard

	historyLimit int
}

// NewManager creates a session manager over the given storage tier.
// prices may be nil when the pricing service is unreachable; catalog
// operations then serve from cache only.
func NewManager(store service.Storage, prices service.PriceClient, settings model.Settings) *Manager {
	settings.Normalize()
	return &Manager{
		store:        store,
		prices:       prices,
		settings:     settings,
		historyLimit: defaultHistoryLimit,
	}
}

// Initialize loads the set catalog and restores any persisted state. A
// cold cache with an unreachable pricing service is not an error; the
// catalog is simply empty until connectivity returns.
func (m *Manager) Initialize(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if found, err := m.store.Get(ctx, keyCardSets, &m.sets); err != nil {
		common.LogWarn("failed to read cached card sets", common.Fields{"error": err.Error()})
	} else if !found && m.prices != nil {
		sets, err := m.prices.CardSets(ctx)
		if err != nil {
			common.LogWarn("card set catalog unavailable", common.Fields{"error": err.Error()})
		} else {
			m.sets = sets
			if err := m.store.Set(ctx, keyCardSets, sets); err != nil {
				common.LogWarn("failed to cache card sets", common.Fields{"error": err.Error()})
			}
		}
	}

	var history []*model.Session
	if found, err := m.store.Get(ctx, keyHistory, &history); err == nil && found {
		if len(history) > m.historyLimit {
			history = history[len(history)-m.historyLimit:]
		}
		m.history = history
	}

	if !m.settings.SessionAutoSave {
		return nil
	}
	var restored model.Session
	found, err := m.store.Get(ctx, keyCurrentSession, &restored)
	if err != nil {
		common.LogWarn("failed to restore session", common.Fields{"error": err.Error()})
		return nil
	}
	if found && restoredSessionUsable(&restored) {
		ensureCardIDs(&restored)
		restored.Recompute()
		m.current = &restored
		m.rebuildIndexLocked()
		m.loadCatalogLocked(ctx, restored.SetName)
		common.LogInfo("restored previous session", common.Fields{
			"set":   restored.SetName,
			"cards": restored.TotalCards,
		})
	}
	return nil
}

// ensureCardIDs backfills IDs on cards from sessions persisted before
// cards carried them. Without an ID a card cannot be addressed by the
// remove and adjust operations.
func ensureCardIDs(s *model.Session) {
	for _, c := range s.Cards {
		if c.ID == "" {
			c.ID = uuid.New().String()
		}
	}
}

// restoredSessionUsable rejects persisted sessions whose shape no longer
// matches what the manager writes.
func restoredSessionUsable(s *model.Session) bool {
	if s.StartTime.IsZero() {
		return false
	}
	for _, c := range s.Cards {
		if c == nil || strings.TrimSpace(c.Name) == "" || c.Quantity <= 0 {
			return false
		}
	}
	return true
}

// Current returns the active session, or nil when none is running.
func (m *Manager) Current() *model.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Sets returns the known card set catalog.
func (m *Manager) Sets() []model.CardSet {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.CardSet, len(m.sets))
	copy(out, m.sets)
	return out
}

// Settings returns a copy of the manager's active settings.
func (m *Manager) Settings() model.Settings {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.settings
}

// RefreshSets refetches the set catalog from the pricing service and
// replaces the cached copy.
func (m *Manager) RefreshSets(ctx context.Context) ([]model.CardSet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.prices == nil {
		return nil, common.ErrOffline
	}
	var fetched []model.CardSet
	err := common.WithRetry(ctx, func() error {
		sets, fetchErr := m.prices.CardSets(ctx)
		if fetchErr != nil {
			return &common.RetryableError{Err: fetchErr, Retryable: common.IsRetryable(fetchErr)}
		}
		fetched = sets
		return nil
	}, service.RetryOptions{MaxAttempts: 2, InitialDelay: 500 * time.Millisecond})
	if err != nil {
		return nil, err
	}
	m.sets = fetched
	if err := m.store.Set(ctx, keyCardSets, fetched); err != nil {
		common.LogWarn("failed to cache card sets", common.Fields{"error": err.Error()})
	}
	return fetched, nil
}

// StartSession begins a new session for the named set, archiving any
// session already in progress. setID may be a set ID, code, or name.
func (m *Manager) StartSession(ctx context.Context, setID string) (*model.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	set, ok := m.findSetLocked(setID)
	if !ok {
		return nil, fmt.Errorf("%w: %q", common.ErrUnknownSet, setID)
	}

	if m.current != nil && len(m.current.Cards) > 0 {
		m.archiveLocked(ctx, m.current)
	}

	m.current = model.NewSession(set)
	m.pending = nil
	m.rebuildIndexLocked()
	m.loadCatalogLocked(ctx, set.Name)

	if err := m.persistLocked(ctx); err != nil {
		common.LogWarn("failed to persist new session", common.Fields{"error": err.Error()})
	}
	common.LogInfo("session started", common.Fields{"set": set.Name})
	return m.current, nil
}

// StopSession archives the active session into the history ring and
// clears the current slot.
func (m *Manager) StopSession(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current == nil {
		return common.ErrNoActiveSession
	}
	if len(m.current.Cards) > 0 {
		m.archiveLocked(ctx, m.current)
	}
	m.current = nil
	m.pending = nil
	m.catalog = nil
	m.rebuildIndexLocked()
	if err := m.store.Remove(ctx, keyCurrentSession); err != nil {
		common.LogWarn("failed to clear persisted session", common.Fields{"error": err.Error()})
	}
	return nil
}

// ClearSession empties the active session's card list without ending it.
func (m *Manager) ClearSession(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current == nil {
		return common.ErrNoActiveSession
	}
	m.current.Cards = []*model.SessionCard{}
	m.rebuildIndexLocked()
	m.touchLocked()
	return m.autosaveLocked(ctx)
}

// AddCard validates and adds a card to the session. A card with the same
// identity merges into the existing entry instead of creating a duplicate.
func (m *Manager) AddCard(ctx context.Context, card model.SessionCard) (*model.SessionCard, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current == nil {
		return nil, common.ErrNoActiveSession
	}

	model.SanitizeCard(&card)
	if strings.TrimSpace(card.Name) == "" {
		return nil, common.NewValidationError("name", "card name is required")
	}
	if card.Quantity == 0 {
		card.Quantity = 1
	}
	if card.Quantity < 0 {
		return nil, common.NewValidationError("quantity", "quantity must be positive")
	}
	if card.Quantity > model.MaxQuantity {
		card.Quantity = model.MaxQuantity
	}

	identity := card.Identity()
	if existing, ok := m.byIdentity[identity]; ok {
		existing.Quantity += card.Quantity
		if existing.Quantity > model.MaxQuantity {
			existing.Quantity = model.MaxQuantity
		}
		if existing.Pricing == nil && card.Pricing != nil {
			existing.Pricing = card.Pricing
		}
		m.touchLocked()
		return existing, m.autosaveLocked(ctx)
	}

	card.ID = uuid.New().String()
	card.CreatedAt = time.Now()
	entry := card
	m.current.Cards = append(m.current.Cards, &entry)
	m.byIdentity[identity] = &entry
	m.byID[entry.ID] = &entry
	m.touchLocked()
	return &entry, m.autosaveLocked(ctx)
}

// RemoveCard deletes a card from the session by ID.
func (m *Manager) RemoveCard(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current == nil {
		return common.ErrNoActiveSession
	}
	card, ok := m.byID[id]
	if !ok {
		return fmt.Errorf("%w: card %q", common.ErrNotFound, id)
	}
	m.dropCardLocked(card)
	m.touchLocked()
	return m.autosaveLocked(ctx)
}

// dropCardLocked removes a card from the slice and both indexes.
func (m *Manager) dropCardLocked(card *model.SessionCard) {
	for i, c := range m.current.Cards {
		if c == card {
			m.current.Cards = append(m.current.Cards[:i], m.current.Cards[i+1:]...)
			break
		}
	}
	delete(m.byIdentity, card.Identity())
	delete(m.byID, card.ID)
}

// AdjustCardQuantity changes a card's quantity by delta. Dropping to zero
// or below removes the card; exceeding the maximum clamps.
func (m *Manager) AdjustCardQuantity(ctx context.Context, id string, delta int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current == nil {
		return common.ErrNoActiveSession
	}
	card, ok := m.byID[id]
	if !ok {
		return fmt.Errorf("%w: card %q", common.ErrNotFound, id)
	}
	card.Quantity += delta
	if card.Quantity <= 0 {
		m.dropCardLocked(card)
	} else if card.Quantity > model.MaxQuantity {
		card.Quantity = model.MaxQuantity
	}
	m.touchLocked()
	return m.autosaveLocked(ctx)
}

// UpdateCardPricing attaches a pricing snapshot to a card and rederives
// the session value.
func (m *Manager) UpdateCardPricing(ctx context.Context, id string, pricing model.PricingSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current == nil {
		return common.ErrNoActiveSession
	}
	card, ok := m.byID[id]
	if !ok {
		return fmt.Errorf("%w: card %q", common.ErrNotFound, id)
	}
	snapshot := pricing
	card.Pricing = &snapshot
	m.touchLocked()
	return m.autosaveLocked(ctx)
}

// ProcessVoiceInput parses a transcript into a card lookup and ranks the
// current set's catalog against it. When candidates from a previous call
// are pending, a spoken number confirms that candidate instead. With auto
// confirm enabled, a best match at or above the confidence floor is added
// immediately and returned alone.
func (m *Manager) ProcessVoiceInput(ctx context.Context, transcript string) ([]model.Candidate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current == nil {
		return nil, common.ErrNoActiveSession
	}

	if len(m.pending) > 0 {
		if n, ok := parseSelection(transcript); ok {
			if n > len(m.pending) {
				return nil, common.NewValidationError("selection", fmt.Sprintf("only %d options available", len(m.pending)))
			}
			chosen := m.pending[n-1]
			m.pending = nil
			return nil, m.confirmCandidateLocked(ctx, chosen)
		}
		if parseRejection(transcript) {
			m.pending = nil
			return nil, nil
		}
		// Neither a selection nor a dismissal; treat it as a fresh lookup.
		m.pending = nil
	}

	parsed := parseVoiceInput(transcript, m.settings.ExtractRarity, m.settings.ExtractArtVariant)
	if parsed.Name == "" {
		return nil, common.NewValidationError("transcript", "no card name in input")
	}
	if len(m.catalog) == 0 {
		m.loadCatalogLocked(ctx, m.current.SetName)
	}

	candidates := matchCards(m.catalog, parsed.Name, parsed.Rarity, parsed.ArtVariant)
	if len(candidates) == 0 {
		return nil, nil
	}

	if m.settings.AutoConfirmBestMatch && candidates[0].Confidence >= m.settings.AutoConfirmMinConfidence {
		if err := m.confirmCandidateLocked(ctx, candidates[0]); err != nil {
			return nil, err
		}
		return candidates[:1], nil
	}

	m.pending = candidates
	return candidates, nil
}

// confirmCandidateLocked adds a matched catalog card to the session.
func (m *Manager) confirmCandidateLocked(ctx context.Context, c model.Candidate) error {
	card := model.SessionCard{
		Name:       c.Card.Name,
		Rarity:     c.Rarity,
		CardNumber: c.Card.CardNumber,
		ArtVariant: c.ArtVariant,
		Quantity:   1,
	}
	model.SanitizeCard(&card)

	identity := card.Identity()
	if existing, ok := m.byIdentity[identity]; ok {
		if existing.Quantity < model.MaxQuantity {
			existing.Quantity++
		}
		m.touchLocked()
		return m.autosaveLocked(ctx)
	}
	card.ID = uuid.New().String()
	card.CreatedAt = time.Now()
	m.current.Cards = append(m.current.Cards, &card)
	m.byIdentity[identity] = &card
	m.byID[card.ID] = &card
	m.touchLocked()
	return m.autosaveLocked(ctx)
}

// SaveSession persists the active session unconditionally.
func (m *Manager) SaveSession(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current == nil {
		return common.ErrNoActiveSession
	}
	return m.persistLocked(ctx)
}

// LoadLastSession restores the persisted session, replacing any active one.
func (m *Manager) LoadLastSession(ctx context.Context) (*model.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var restored model.Session
	found, err := m.store.Get(ctx, keyCurrentSession, &restored)
	if err != nil {
		return nil, err
	}
	if !found || !restoredSessionUsable(&restored) {
		return nil, common.ErrNotFound
	}
	ensureCardIDs(&restored)
	restored.Recompute()
	m.current = &restored
	m.pending = nil
	m.rebuildIndexLocked()
	m.loadCatalogLocked(ctx, restored.SetName)
	return m.current, nil
}

// ExportSession serializes the active session in the requested format.
func (m *Manager) ExportSession(format string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current == nil {
		return nil, common.ErrNoActiveSession
	}
	return exportSession(m.current, format)
}

// ImportSession replaces the active session with a validated import,
// archiving any session in progress first.
func (m *Manager) ImportSession(ctx context.Context, payload []byte) (*model.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, err := importSession(payload)
	if err != nil {
		return nil, err
	}
	if m.current != nil && len(m.current.Cards) > 0 {
		m.archiveLocked(ctx, m.current)
	}
	m.current = s
	m.pending = nil
	m.rebuildIndexLocked()
	m.loadCatalogLocked(ctx, s.SetName)
	return s, m.persistLocked(ctx)
}

// Statistics summarizes the active session.
func (m *Manager) Statistics() (model.Statistics, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current == nil {
		return model.Statistics{}, common.ErrNoActiveSession
	}
	return m.current.Stats(), nil
}

// History returns the archived sessions, most recent last.
func (m *Manager) History() []*model.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*model.Session, len(m.history))
	copy(out, m.history)
	return out
}

// UpdateSettings swaps in new settings. Persistence of the settings
// themselves is the coordinator's job; the manager only consumes them.
func (m *Manager) UpdateSettings(s model.Settings) {
	s.Normalize()
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settings = s
}

// findSetLocked resolves a set reference against the catalog by ID, code,
// or name, case-insensitively.
func (m *Manager) findSetLocked(ref string) (model.CardSet, bool) {
	needle := strings.ToLower(strings.TrimSpace(ref))
	for _, set := range m.sets {
		if strings.ToLower(set.ID) == needle ||
			strings.ToLower(set.Code) == needle ||
			strings.ToLower(set.Name) == needle {
			return set, true
		}
	}
	return model.CardSet{}, false
}

// loadCatalogLocked loads the per-set reference card list, preferring the
// cache and falling back to the pricing service. Failure leaves an empty
// catalog; voice matching degrades but nothing else breaks.
func (m *Manager) loadCatalogLocked(ctx context.Context, setName string) {
	m.catalog = nil
	if setName == "" {
		return
	}
	key := keyCatalogPrefix + strings.ToLower(setName)

	var cached []model.CatalogCard
	if found, err := m.store.Get(ctx, key, &cached); err == nil && found {
		m.catalog = cached
		return
	}
	if m.prices == nil {
		return
	}
	cards, err := m.prices.SetCards(ctx, setName)
	if err != nil {
		common.LogWarn("set card list unavailable", common.Fields{
			"set":   setName,
			"error": err.Error(),
		})
		return
	}
	m.catalog = cards
	if err := m.store.Set(ctx, key, cards); err != nil {
		common.LogWarn("failed to cache set card list", common.Fields{"error": err.Error()})
	}
}

// archiveLocked pushes a finished session onto the history ring and
// persists the ring, trimming to the limit.
func (m *Manager) archiveLocked(ctx context.Context, s *model.Session) {
	s.Recompute()
	m.history = append(m.history, s)
	if len(m.history) > m.historyLimit {
		m.history = m.history[len(m.history)-m.historyLimit:]
	}
	if err := m.store.Set(ctx, keyHistory, m.history); err != nil {
		common.LogWarn("failed to persist session history", common.Fields{"error": err.Error()})
	}
}

// rebuildIndexLocked rederives the lookup maps from the card list.
func (m *Manager) rebuildIndexLocked() {
	m.byIdentity = make(map[model.CardIdentity]*model.SessionCard)
	m.byID = make(map[string]*model.SessionCard)
	if m.current == nil {
		return
	}
	for _, c := range m.current.Cards {
		m.byIdentity[c.Identity()] = c
		m.byID[c.ID] = c
	}
}

// touchLocked recomputes totals and stamps the modification time.
func (m *Manager) touchLocked() {
	m.current.UpdatedAt = time.Now()
	m.current.Recompute()
}

// autosaveLocked persists the session when auto-save is on. Persistence
// failures are reported; the in-memory session stays authoritative.
func (m *Manager) autosaveLocked(ctx context.Context) error {
	if !m.settings.SessionAutoSave {
		return nil
	}
	return m.persistLocked(ctx)
}

func (m *Manager) persistLocked(ctx context.Context) error {
	if err := m.store.Set(ctx, keyCurrentSession, m.current); err != nil {
		return fmt.Errorf("persist session: %w", err)
	}
	return nil
}
