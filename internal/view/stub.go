package view

import (
	"context"
	"image"

	"github.com/ygopack/packtrack/internal/model"
	"github.com/ygopack/packtrack/internal/service"
)

// Stub is a no-op view. The coordinator falls back to it when the real
// view cannot be constructed, so the core keeps running headless.
type Stub struct{}

// NewStub returns a view that swallows every call.
func NewStub() *Stub { return &Stub{} }

func (*Stub) Bind(service.ViewEvents)                  {}
func (*Stub) UpdateSessionInfo(*model.Session)         {}
func (*Stub) DisplayPriceResults(*service.PriceResult) {}
func (*Stub) UpdateVoiceStatus(service.VoiceStatus)    {}
func (*Stub) UpdateConnectionStatus(bool)              {}
func (*Stub) ShowToast(string, service.ToastLevel)     {}
func (*Stub) SetLoading(bool)                          {}
func (*Stub) ShowModal(service.ModalDescriptor)        {}
func (*Stub) CloseModal()                              {}
func (*Stub) UpdateCardSets([]model.CardSet)           {}
func (*Stub) UpdateCardDisplay(*model.SessionCard)     {}
func (*Stub) ShowLoading(service.SlotID)               {}
func (*Stub) ShowPlaceholder(service.SlotID, string)   {}
func (*Stub) ShowImage(service.SlotID, image.Image)    {}

func (*Stub) PromptManualEntry(context.Context, string) (string, bool) {
	return "", false
}

var _ service.ViewPort = (*Stub)(nil)
