package session

import (
	"encoding/csv"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ygopack/packtrack/internal/common"
	"github.com/ygopack/packtrack/internal/model"
)

func sampleSession() *model.Session {
	s := &model.Session{
		SetID:     "LOB",
		SetName:   "Legend of Blue Eyes White Dragon",
		StartTime: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
		Cards: []*model.SessionCard{
			{
				ID:         "c1",
				Name:       "Blue-Eyes White Dragon",
				Rarity:     "Ultra Rare",
				CardNumber: "LOB-001",
				Quantity:   2,
				Pricing:    &model.PricingSnapshot{Estimated: 50.00},
				CreatedAt:  time.Date(2026, 3, 1, 10, 5, 0, 0, time.UTC),
			},
			{
				ID:        "c2",
				Name:      "Mystical Elf",
				Quantity:  3,
				CreatedAt: time.Date(2026, 3, 1, 10, 6, 0, 0, time.UTC),
			},
		},
	}
	s.Recompute()
	return s
}

func TestExportImportJSONRoundTrip(t *testing.T) {
	original := sampleSession()

	payload, err := exportSession(original, "json")
	require.NoError(t, err)

	restored, err := importSession(payload)
	require.NoError(t, err)

	assert.Equal(t, original.SetName, restored.SetName)
	require.Len(t, restored.Cards, 2)
	assert.Equal(t, "Blue-Eyes White Dragon", restored.Cards[0].Name)
	assert.Equal(t, 2, restored.Cards[0].Quantity)
	assert.Equal(t, 50.00, restored.Cards[0].Pricing.Estimated)
	assert.Equal(t, 5, restored.TotalCards)
	assert.Equal(t, 100.00, restored.TotalValue)
}

func TestExportCSV(t *testing.T) {
	payload, err := exportSession(sampleSession(), "csv")
	require.NoError(t, err)

	records, err := csv.NewReader(strings.NewReader(string(payload))).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)

	assert.Equal(t, csvHeader, records[0])
	assert.Equal(t, []string{"Blue-Eyes White Dragon", "Ultra Rare", "LOB-001", "2", "50.00"}, records[1])
	assert.Equal(t, []string{"Mystical Elf", "", "", "3", "0.00"}, records[2])
}

func TestExportUnknownFormat(t *testing.T) {
	_, err := exportSession(sampleSession(), "xml")
	require.Error(t, err)

	var verr *common.ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestImportRejectsGarbage(t *testing.T) {
	_, err := importSession([]byte("not json"))
	assert.ErrorIs(t, err, common.ErrInvalidImport)
}

func TestImportRejectsInvalidCards(t *testing.T) {
	doc := exportDocument{
		Version: exportVersion,
		Session: &model.Session{
			StartTime: time.Now(),
			Cards: []*model.SessionCard{
				{Name: "", Quantity: 1},
			},
		},
	}
	payload, err := json.Marshal(doc)
	require.NoError(t, err)

	_, err = importSession(payload)
	assert.ErrorIs(t, err, common.ErrInvalidImport)
}

func TestImportMergesDuplicateIdentities(t *testing.T) {
	s := sampleSession()
	s.Cards = []*model.SessionCard{
		{
			ID:         "c1",
			Name:       "Blue-Eyes White Dragon",
			Rarity:     "Ultra Rare",
			CardNumber: "LOB-001",
			Quantity:   2,
		},
		{
			Name:       "blue-eyes white dragon",
			Rarity:     "ULTRA RARE",
			CardNumber: "LOB-001",
			Quantity:   1,
			Pricing:    &model.PricingSnapshot{Estimated: 25.00},
		},
	}
	payload, err := exportSession(s, "json")
	require.NoError(t, err)

	restored, err := importSession(payload)
	require.NoError(t, err)

	// One entry per identity, quantities summed, pricing adopted.
	require.Len(t, restored.Cards, 1)
	assert.Equal(t, 3, restored.Cards[0].Quantity)
	assert.Equal(t, 3, restored.TotalCards)
	require.NotNil(t, restored.Cards[0].Pricing)
	assert.Equal(t, 25.00, restored.Cards[0].Pricing.Estimated)

	seen := make(map[model.CardIdentity]int)
	for _, c := range restored.Cards {
		seen[c.Identity()]++
		assert.LessOrEqual(t, seen[c.Identity()], 1)
	}
}

func TestImportAssignsMissingCardIDs(t *testing.T) {
	s := sampleSession()
	for _, c := range s.Cards {
		c.ID = ""
	}
	payload, err := exportSession(s, "json")
	require.NoError(t, err)

	restored, err := importSession(payload)
	require.NoError(t, err)

	require.Len(t, restored.Cards, 2)
	ids := make(map[string]bool)
	for _, c := range restored.Cards {
		require.NotEmpty(t, c.ID)
		ids[c.ID] = true
	}
	assert.Len(t, ids, 2)
}

func TestImportRecomputesTotals(t *testing.T) {
	doc := exportDocument{
		Version: exportVersion,
		Session: &model.Session{
			StartTime: time.Now(),
			Cards: []*model.SessionCard{
				{Name: "Kuriboh", Quantity: 4},
			},
			// Lies in the payload are ignored.
			TotalCards: 999,
			TotalValue: 12345.67,
		},
	}
	payload, err := json.Marshal(doc)
	require.NoError(t, err)

	restored, err := importSession(payload)
	require.NoError(t, err)
	assert.Equal(t, 4, restored.TotalCards)
	assert.Zero(t, restored.TotalValue)
}

func TestImportClampsQuantity(t *testing.T) {
	doc := exportDocument{
		Version: exportVersion,
		Session: &model.Session{
			StartTime: time.Now(),
			Cards: []*model.SessionCard{
				{Name: "Kuriboh", Quantity: 500},
			},
		},
	}
	payload, err := json.Marshal(doc)
	require.NoError(t, err)

	restored, err := importSession(payload)
	require.NoError(t, err)
	assert.Equal(t, model.MaxQuantity, restored.Cards[0].Quantity)
}

func TestImportSanitizesCardText(t *testing.T) {
	doc := exportDocument{
		Version: exportVersion,
		Session: &model.Session{
			StartTime: time.Now(),
			Cards: []*model.SessionCard{
				{Name: "<b>Kuriboh</b>", Quantity: 1},
			},
		},
	}
	payload, err := json.Marshal(doc)
	require.NoError(t, err)

	restored, err := importSession(payload)
	require.NoError(t, err)
	assert.Equal(t, "Kuriboh", restored.Cards[0].Name)
}
