package pricing

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ygopack/packtrack/internal/common"
	"github.com/ygopack/packtrack/internal/service"
)

func TestCheckPrice(t *testing.T) {
	var gotBody service.PriceRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/cards/price", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		_, _ = w.Write([]byte(`{
			"success": true,
			"data": {
				"card_name": "Blue-Eyes White Dragon",
				"card_number": "LOB-001",
				"card_rarity": "Ultra Rare",
				"image_url": "https://images.example/lob-001.jpg",
				"tcg_price": "12.50",
				"tcg_mid_price": 18.75,
				"tcg_market_price": "15.00",
				"tcg_high_price": null,
				"scrape_success": true
			}
		}`))
	}))
	defer server.Close()

	client, err := NewClient(server.URL)
	require.NoError(t, err)

	result, err := client.CheckPrice(context.Background(), service.PriceRequest{
		CardNumber: "LOB-001",
		CardName:   "Blue-Eyes White Dragon",
		Rarity:     "Ultra Rare",
	})
	require.NoError(t, err)

	assert.Equal(t, "LOB-001", gotBody.CardNumber)
	assert.Equal(t, "Blue-Eyes White Dragon", result.CardName)
	assert.Equal(t, "https://images.example/lob-001.jpg", result.ImageURL)
	assert.Equal(t, 12.50, result.TCGLow)
	assert.Equal(t, 18.75, result.TCGMid)
	assert.Equal(t, 15.00, result.TCGMarket)
	assert.Zero(t, result.TCGHigh)
	assert.True(t, result.Success)
	assert.False(t, result.Timestamp.IsZero())
}

func TestCheckPriceRequiresIdentity(t *testing.T) {
	client, err := NewClient("http://localhost:0")
	require.NoError(t, err)

	_, err = client.CheckPrice(context.Background(), service.PriceRequest{})
	require.Error(t, err)

	var verr *common.ValidationError
	assert.True(t, errors.As(err, &verr))
}

func TestCheckPriceUnparseablePrices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{
			"success": true,
			"data": {
				"card_name": "Dark Magician",
				"tcg_price": "unavailable",
				"tcg_market_price": "-3.00"
			}
		}`))
	}))
	defer server.Close()

	client, err := NewClient(server.URL)
	require.NoError(t, err)

	result, err := client.CheckPrice(context.Background(), service.PriceRequest{CardName: "Dark Magician"})
	require.NoError(t, err)
	assert.Zero(t, result.TCGLow)
	assert.Zero(t, result.TCGMarket)
}

func TestCardSets(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/card-sets/from-cache", r.URL.Path)
		_, _ = w.Write([]byte(`{
			"success": true,
			"data": [
				{"set_name": "Legend of Blue Eyes White Dragon", "set_code": "LOB", "num_of_cards": 126},
				{"set_name": "Metal Raiders", "set_code": "MRD", "num_of_cards": 144}
			]
		}`))
	}))
	defer server.Close()

	client, err := NewClient(server.URL)
	require.NoError(t, err)

	sets, err := client.CardSets(context.Background())
	require.NoError(t, err)
	require.Len(t, sets, 2)
	assert.Equal(t, "Legend of Blue Eyes White Dragon", sets[0].Name)
	assert.Equal(t, "LOB", sets[0].Code)
	assert.Equal(t, 126, sets[0].CardCount)
}

func TestSearchSets(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/card-sets/search/blue%20eyes", r.URL.EscapedPath())
		_, _ = w.Write([]byte(`{"success": true, "data": [{"set_name": "Legend of Blue Eyes White Dragon", "set_code": "LOB", "num_of_cards": 126}]}`))
	}))
	defer server.Close()

	client, err := NewClient(server.URL)
	require.NoError(t, err)

	sets, err := client.SearchSets(context.Background(), "blue eyes")
	require.NoError(t, err)
	require.Len(t, sets, 1)
	assert.Equal(t, "LOB", sets[0].ID)
}

func TestSearchSetsEmptyTermFallsBackToCatalog(t *testing.T) {
	var path string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		_, _ = w.Write([]byte(`{"success": true, "data": []}`))
	}))
	defer server.Close()

	client, err := NewClient(server.URL)
	require.NoError(t, err)

	_, err = client.SearchSets(context.Background(), "   ")
	require.NoError(t, err)
	assert.Equal(t, "/card-sets/from-cache", path)
}

func TestSetCards(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/card-sets/Metal%20Raiders/cards", r.URL.EscapedPath())
		_, _ = w.Write([]byte(`{
			"success": true,
			"data": [
				{
					"id": "46986414",
					"name": "Dark Magician",
					"card_number": "MRD-000",
					"image_url": "https://images.example/mrd-000.jpg",
					"card_sets": [
						{"set_rarity": "Ultra Rare"},
						{"set_rarity": "Secret Rare"},
						{"set_rarity": ""}
					]
				}
			]
		}`))
	}))
	defer server.Close()

	client, err := NewClient(server.URL)
	require.NoError(t, err)

	cards, err := client.SetCards(context.Background(), "Metal Raiders")
	require.NoError(t, err)
	require.Len(t, cards, 1)
	assert.Equal(t, "Dark Magician", cards[0].Name)
	assert.Equal(t, []string{"Ultra Rare", "Secret Rare"}, cards[0].Rarities)
}

func TestSetCardsRequiresName(t *testing.T) {
	client, err := NewClient("http://localhost:0")
	require.NoError(t, err)

	_, err = client.SetCards(context.Background(), "  ")
	require.Error(t, err)
}

func TestEnvelopeFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"success": false, "message": "set not found"}`))
	}))
	defer server.Close()

	client, err := NewClient(server.URL)
	require.NoError(t, err)

	_, err = client.CardSets(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "set not found")
}

func TestNonOKStatusIsConnectionError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client, err := NewClient(server.URL)
	require.NoError(t, err)

	_, err = client.CardSets(context.Background())
	assert.True(t, errors.Is(err, common.ErrAPIConnection))
}

func TestTimeoutClassification(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer server.Close()

	client, err := NewClient(server.URL)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err = client.CardSets(ctx)
	assert.True(t, errors.Is(err, common.ErrAPITimeout))
}

func TestNewClientRequiresURL(t *testing.T) {
	_, err := NewClient("")
	assert.True(t, errors.Is(err, common.ErrMissingConfig))
}
