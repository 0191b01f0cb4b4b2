package model

import (
	"math"
	"time"
)

// Session is the in-progress record of cards opened since the last start.
// TotalCards and TotalValue are derived; Recompute is the only writer.
type Session struct {
	StartTime  time.Time      `json:"startTime"`
	UpdatedAt  time.Time      `json:"updatedAt"`
	SetID      string         `json:"setId"`
	SetName    string         `json:"setName"`
	Cards      []*SessionCard `json:"cards"`
	TotalCards int            `json:"totalCards"`
	TotalValue float64        `json:"totalValue"`
}

// NewSession creates an empty session for the given set.
func NewSession(set CardSet) *Session {
	now := time.Now()
	return &Session{
		SetID:     set.ID,
		SetName:   set.Name,
		Cards:     []*SessionCard{},
		StartTime: now,
		UpdatedAt: now,
	}
}

// Recompute rederives the card and value totals from the card list.
// Totals are never stored as independent truth.
func (s *Session) Recompute() {
	total := 0
	value := 0.0
	for _, c := range s.Cards {
		total += c.Quantity
		value += float64(c.Quantity) * c.EstimatedPrice()
	}
	s.TotalCards = total
	s.TotalValue = RoundCents(value)
}

// RarityHistogram counts cards per rarity, weighted by quantity.
func (s *Session) RarityHistogram() map[string]int {
	hist := make(map[string]int)
	for _, c := range s.Cards {
		rarity := c.Rarity
		if rarity == "" {
			rarity = "Unknown"
		}
		hist[rarity] += c.Quantity
	}
	return hist
}

// Statistics summarizes a session for display.
type Statistics struct {
	Rarities    map[string]int
	TotalCards  int
	UniqueCards int
	TotalValue  float64
}

// Stats computes the session statistics.
func (s *Session) Stats() Statistics {
	return Statistics{
		TotalCards:  s.TotalCards,
		UniqueCards: len(s.Cards),
		TotalValue:  s.TotalValue,
		Rarities:    s.RarityHistogram(),
	}
}

// RoundCents rounds a monetary amount to two decimal places.
func RoundCents(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return math.Round(v*100) / 100
}
