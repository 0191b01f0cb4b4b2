package view

import (
	"bufio"
	"context"
	"fmt"
	"image"
	"io"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/ygopack/packtrack/internal/model"
	"github.com/ygopack/packtrack/internal/service"
)

// Terminal implements service.ViewPort over a plain reader and writer.
// It is line-oriented: state updates render as styled lines, modals and
// manual entry prompts block on the reader.
type Terminal struct {
	mu      sync.Mutex
	reader  *bufio.Reader
	writer  io.Writer
	events  service.ViewEvents
	slots   map[service.SlotID]string
	loading bool
}

// NewTerminal creates a terminal view. Nil reader or writer default to
// stdin and stdout.
func NewTerminal(reader io.Reader, writer io.Writer) *Terminal {
	if reader == nil {
		reader = os.Stdin
	}
	if writer == nil {
		writer = os.Stdout
	}
	return &Terminal{
		reader: bufio.NewReader(reader),
		writer: writer,
		slots:  make(map[service.SlotID]string),
	}
}

// Bind registers the coordinator's action handlers.
func (t *Terminal) Bind(events service.ViewEvents) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.events = events
}

// Events returns the bound handlers for dispatching user actions.
func (t *Terminal) Events() service.ViewEvents {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.events
}

// UpdateSessionInfo renders the session summary block.
func (t *Terminal) UpdateSessionInfo(s *model.Session) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if s == nil {
		t.println(SubtleStyle.Render("No active session"))
		return
	}

	t.println(TitleStyle.Render(fmt.Sprintf("Session: %s", s.SetName)))
	t.println(fmt.Sprintf("  Cards: %d (%d unique)   Value: %s",
		s.TotalCards, len(s.Cards), ValueStyle.Render(fmt.Sprintf("$%.2f", s.TotalValue))))
	for _, c := range s.Cards {
		line := fmt.Sprintf("  %dx %s", c.Quantity, c.Name)
		if c.Rarity != "" {
			line += SubtleStyle.Render(" [" + c.Rarity + "]")
		}
		if c.ArtVariant != "" {
			line += SubtleStyle.Render(" (art " + c.ArtVariant + ")")
		}
		if p := c.EstimatedPrice(); p > 0 {
			line += " " + ValueStyle.Render(fmt.Sprintf("$%.2f", p))
		}
		t.println(line)
	}
}

// DisplayPriceResults renders a pricing lookup.
func (t *Terminal) DisplayPriceResults(r *service.PriceResult) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if r == nil || !r.Success {
		t.println(ErrorStyle.Render("No pricing available"))
		return
	}
	t.println(TitleStyle.Render(r.CardName))
	t.println(fmt.Sprintf("  Low: $%.2f   Mid: $%.2f   Market: $%.2f   High: $%.2f",
		r.TCGLow, r.TCGMid, r.TCGMarket, r.TCGHigh))
	if r.Message != "" {
		t.println(SubtleStyle.Render("  " + r.Message))
	}
}

// UpdateVoiceStatus renders the voice capture state.
func (t *Terminal) UpdateVoiceStatus(status service.VoiceStatus) {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch status {
	case service.VoiceListening:
		t.println(InfoStyle.Render("Listening..."))
	case service.VoiceReady:
		t.println(SubtleStyle.Render("Voice ready"))
	case service.VoiceDisabled:
		t.println(WarningStyle.Render("Voice input disabled"))
	case service.VoiceUninitialized:
		t.println(SubtleStyle.Render("Voice not initialized"))
	}
}

// UpdateConnectionStatus renders online/offline transitions.
func (t *Terminal) UpdateConnectionStatus(online bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if online {
		t.println(SuccessStyle.Render("Online"))
	} else {
		t.println(WarningStyle.Render("Offline: showing cached data"))
	}
}

// ShowToast prints a transient notification.
func (t *Terminal) ShowToast(message string, level service.ToastLevel) {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch level {
	case service.ToastSuccess:
		t.println(SuccessStyle.Render("✓ " + message))
	case service.ToastWarning:
		t.println(WarningStyle.Render("! " + message))
	case service.ToastError:
		t.println(ErrorStyle.Render("✗ " + message))
	default:
		t.println(InfoStyle.Render(message))
	}
}

// SetLoading toggles the busy indicator.
func (t *Terminal) SetLoading(loading bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if loading && !t.loading {
		t.println(SubtleStyle.Render("Working..."))
	}
	t.loading = loading
}

// ShowModal renders a modal block and its choices.
func (t *Terminal) ShowModal(m service.ModalDescriptor) {
	t.mu.Lock()
	defer t.mu.Unlock()

	var b strings.Builder
	b.WriteString(TitleStyle.Render(m.Title) + "\n")
	if m.Body != "" {
		b.WriteString(m.Body + "\n")
	}
	for i, choice := range m.Choices {
		b.WriteString(fmt.Sprintf("  %d. %s\n", i+1, choice))
	}
	t.println(CardStyle.Render(strings.TrimRight(b.String(), "\n")))
}

// CloseModal is a no-op for a line-oriented surface.
func (t *Terminal) CloseModal() {}

// UpdateCardSets renders the set catalog.
func (t *Terminal) UpdateCardSets(sets []model.CardSet) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.println(TitleStyle.Render(fmt.Sprintf("Card sets (%d)", len(sets))))
	for _, s := range sets {
		t.println(fmt.Sprintf("  %-8s %s %s", s.Code, s.Name,
			SubtleStyle.Render(fmt.Sprintf("(%d cards)", s.CardCount))))
	}
}

// UpdateCardDisplay renders a single card entry.
func (t *Terminal) UpdateCardDisplay(card *model.SessionCard) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if card == nil {
		return
	}
	line := fmt.Sprintf("%dx %s", card.Quantity, card.Name)
	if card.Rarity != "" {
		line += " [" + card.Rarity + "]"
	}
	if p := card.EstimatedPrice(); p > 0 {
		line += " " + ValueStyle.Render(fmt.Sprintf("$%.2f", p))
	}
	t.println(CardStyle.Render(line))
}

// ShowLoading marks a slot as loading.
func (t *Terminal) ShowLoading(slot service.SlotID) {
	t.setSlot(slot, SubtleStyle.Render("[loading image]"))
}

// ShowPlaceholder installs the labeled placeholder in a slot.
func (t *Terminal) ShowPlaceholder(slot service.SlotID, label string) {
	if label == "" {
		label = "no image"
	}
	t.setSlot(slot, SubtleStyle.Render("["+label+"]"))
}

// ShowImage installs a decoded image in a slot. A terminal cannot render
// pixels; the slot records the dimensions instead.
func (t *Terminal) ShowImage(slot service.SlotID, img image.Image) {
	b := img.Bounds()
	t.setSlot(slot, fmt.Sprintf("[image %dx%d]", b.Dx(), b.Dy()))
}

func (t *Terminal) setSlot(slot service.SlotID, content string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.slots[slot] = content
}

// Slots returns the current slot contents, for rendering and tests.
func (t *Terminal) Slots() map[service.SlotID]string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[service.SlotID]string, len(t.slots))
	for k, v := range t.slots {
		out[k] = v
	}
	return out
}

// RenderSlots prints every slot in stable order.
func (t *Terminal) RenderSlots() {
	t.mu.Lock()
	defer t.mu.Unlock()

	ids := make([]string, 0, len(t.slots))
	for id := range t.slots {
		ids = append(ids, string(id))
	}
	sort.Strings(ids)
	for _, id := range ids {
		t.println(fmt.Sprintf("  %s: %s", id, t.slots[service.SlotID(id)]))
	}
}

// PromptManualEntry blocks for a typed line. It honors ctx cancellation
// by abandoning the read; an empty line counts as a dismissal.
func (t *Terminal) PromptManualEntry(ctx context.Context, prompt string) (string, bool) {
	t.mu.Lock()
	t.println(PromptStyle.Render(prompt + ": "))
	reader := t.reader
	t.mu.Unlock()

	type result struct {
		text string
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		line, err := reader.ReadString('\n')
		ch <- result{text: strings.TrimSpace(line), err: err}
	}()

	select {
	case <-ctx.Done():
		return "", false
	case res := <-ch:
		if res.err != nil || res.text == "" {
			return "", false
		}
		return res.text, true
	}
}

func (t *Terminal) println(line string) {
	fmt.Fprintln(t.writer, line)
}

var _ service.ViewPort = (*Terminal)(nil)
