// Package pricing implements the client for the remote card pricing and
// catalog service.
package pricing

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ygopack/packtrack/internal/common"
	"github.com/ygopack/packtrack/internal/model"
	"github.com/ygopack/packtrack/internal/service"
)

// Client talks to the pricing service's HTTP API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a pricing client for the service at baseURL.
func NewClient(baseURL string) (*Client, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("%w: pricing API URL is empty", common.ErrMissingConfig)
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}, nil
}

// envelope is the service's uniform response wrapper.
type envelope struct {
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
	Success bool            `json:"success"`
}

// flexPrice tolerates the service's habit of sending prices as numbers,
// quoted strings, availability markers, or null.
type flexPrice float64

func (p *flexPrice) UnmarshalJSON(data []byte) error {
	s := strings.Trim(strings.TrimSpace(string(data)), `"`)
	if s == "" || s == "null" {
		*p = 0
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v < 0 {
		*p = 0
		return nil
	}
	*p = flexPrice(v)
	return nil
}

// priceData is the service's card pricing document.
type priceData struct {
	CardName      string    `json:"card_name"`
	CardNumber    string    `json:"card_number"`
	CardRarity    string    `json:"card_rarity"`
	SetName       string    `json:"booster_set_name"`
	ImageURL      string    `json:"image_url"`
	TCGLow        flexPrice `json:"tcg_price"`
	TCGMid        flexPrice `json:"tcg_mid_price"`
	TCGMarket     flexPrice `json:"tcg_market_price"`
	TCGHigh       flexPrice `json:"tcg_high_price"`
	ScrapeSuccess bool      `json:"scrape_success"`
}

// catalogSet is the service's card set record.
type catalogSet struct {
	SetName    string `json:"set_name"`
	SetCode    string `json:"set_code"`
	NumOfCards int    `json:"num_of_cards"`
}

// catalogCard is the service's per-set card record.
type catalogCard struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	CardNumber string `json:"card_number"`
	ImageURL   string `json:"image_url"`
	CardSets   []struct {
		SetRarity string `json:"set_rarity"`
	} `json:"card_sets"`
}

// CheckPrice looks up current prices for one card.
func (c *Client) CheckPrice(ctx context.Context, req service.PriceRequest) (*service.PriceResult, error) {
	if strings.TrimSpace(req.CardName) == "" && strings.TrimSpace(req.CardNumber) == "" {
		return nil, common.NewValidationError("card", "a card name or number is required")
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal price request: %w", err)
	}

	raw, err := c.post(ctx, "/cards/price", body)
	if err != nil {
		return nil, err
	}

	var data priceData
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("decode price data: %w", err)
	}

	return &service.PriceResult{
		Success:   true,
		CardName:  data.CardName,
		ImageURL:  data.ImageURL,
		TCGLow:    float64(data.TCGLow),
		TCGMid:    float64(data.TCGMid),
		TCGMarket: float64(data.TCGMarket),
		TCGHigh:   float64(data.TCGHigh),
		Timestamp: time.Now(),
	}, nil
}

// CardSets fetches the full set catalog from the service's cache.
func (c *Client) CardSets(ctx context.Context) ([]model.CardSet, error) {
	raw, err := c.get(ctx, "/card-sets/from-cache")
	if err != nil {
		return nil, err
	}
	return decodeSets(raw)
}

// SearchSets fetches sets matching a free-text term.
func (c *Client) SearchSets(ctx context.Context, term string) ([]model.CardSet, error) {
	term = strings.TrimSpace(term)
	if term == "" {
		return c.CardSets(ctx)
	}
	raw, err := c.get(ctx, "/card-sets/search/"+url.PathEscape(term))
	if err != nil {
		return nil, err
	}
	return decodeSets(raw)
}

// SetCards fetches the reference card list for one set.
func (c *Client) SetCards(ctx context.Context, setName string) ([]model.CatalogCard, error) {
	if strings.TrimSpace(setName) == "" {
		return nil, common.NewValidationError("setName", "set name is required")
	}
	raw, err := c.get(ctx, "/card-sets/"+url.PathEscape(setName)+"/cards")
	if err != nil {
		return nil, err
	}

	var records []catalogCard
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, fmt.Errorf("decode set cards: %w", err)
	}

	cards := make([]model.CatalogCard, 0, len(records))
	for _, r := range records {
		card := model.CatalogCard{
			ID:         r.ID,
			Name:       r.Name,
			CardNumber: r.CardNumber,
			ImageURL:   r.ImageURL,
		}
		for _, cs := range r.CardSets {
			if cs.SetRarity != "" {
				card.Rarities = append(card.Rarities, cs.SetRarity)
			}
		}
		cards = append(cards, card)
	}
	return cards, nil
}

func decodeSets(raw json.RawMessage) ([]model.CardSet, error) {
	var records []catalogSet
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, fmt.Errorf("decode card sets: %w", err)
	}
	sets := make([]model.CardSet, 0, len(records))
	for _, r := range records {
		sets = append(sets, model.CardSet{
			ID:        r.SetCode,
			Name:      r.SetName,
			Code:      r.SetCode,
			CardCount: r.NumOfCards,
		})
	}
	return sets, nil
}

func (c *Client) get(ctx context.Context, path string) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	return c.do(req)
}

func (c *Client) post(ctx context.Context, path string, body []byte) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req)
}

// do executes a request and unwraps the service envelope, classifying
// transport failures for the error boundary.
func (c *Client) do(req *http.Request) (json.RawMessage, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, classifyTransportError(err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", common.ErrAPIConnection, resp.StatusCode)
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if !env.Success {
		msg := env.Message
		if msg == "" {
			msg = "request failed"
		}
		return nil, fmt.Errorf("pricing service: %s", msg)
	}
	return env.Data, nil
}

func classifyTransportError(err error) error {
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", common.ErrAPITimeout, err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", common.ErrAPITimeout, err)
	}
	return fmt.Errorf("%w: %v", common.ErrAPIConnection, err)
}
