// Package model defines the core domain models used throughout the application.
package model

import (
	"math"
	"strings"
	"time"
)

// MaxQuantity is the upper bound for a single session card's quantity.
// Adjustments past it clamp rather than fail.
const MaxQuantity = 99

// CardSet describes one entry of the reference catalog of released sets.
// Sets are read-only during a session.
type CardSet struct {
	ID        string `json:"id"`
	Name      string `json:"setName"`
	Code      string `json:"setCode"`
	CardCount int    `json:"cardCount"`
}

// CatalogCard is a reference card within a set, as returned by the pricing
// service. Rarities lists every printing of the card in the set.
type CatalogCard struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	CardNumber string   `json:"cardNumber"`
	Rarities   []string `json:"rarities"`
	ImageURL   string   `json:"imageUrl"`
}

// CardIdentity is the deduplication key for cards within a session. Two
// adds with the same identity merge into a single entry.
type CardIdentity struct {
	Name       string
	Rarity     string
	CardNumber string
}

// Identity returns the normalized identity tuple for a session card.
func (c *SessionCard) Identity() CardIdentity {
	return CardIdentity{
		Name:       strings.ToLower(strings.TrimSpace(c.Name)),
		Rarity:     strings.ToLower(strings.TrimSpace(c.Rarity)),
		CardNumber: strings.ToLower(strings.TrimSpace(c.CardNumber)),
	}
}

// PricingSnapshot captures the prices known for a card at a point in time.
type PricingSnapshot struct {
	FetchedAt time.Time `json:"fetchedAt"`
	Low       float64   `json:"low"`
	Market    float64   `json:"market"`
	High      float64   `json:"high"`
	Estimated float64   `json:"estimated"`
}

// SessionCard is one entry in a session's card list.
type SessionCard struct {
	CreatedAt  time.Time        `json:"createdAt"`
	Pricing    *PricingSnapshot `json:"pricing,omitempty"`
	ID         string           `json:"id"`
	Name       string           `json:"name"`
	Rarity     string           `json:"rarity"`
	CardNumber string           `json:"cardNumber"`
	ArtVariant string           `json:"artVariant,omitempty"`
	Quantity   int              `json:"quantity"`
}

// EstimatedPrice returns the card's estimated unit price, or zero when no
// usable price is known. Non-finite and negative values count as zero.
func (c *SessionCard) EstimatedPrice() float64 {
	if c.Pricing == nil {
		return 0
	}
	p := c.Pricing.Estimated
	if math.IsNaN(p) || math.IsInf(p, 0) || p < 0 {
		return 0
	}
	return p
}

// Candidate is a ranked catalog match for a processed voice transcript.
type Candidate struct {
	Card         CatalogCard
	Rarity       string
	ArtVariant   string
	ResidualName string
	Confidence   float64
}
