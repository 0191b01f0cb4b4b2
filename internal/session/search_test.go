package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ygopack/packtrack/internal/model"
)

func TestNameVariantsCompounds(t *testing.T) {
	variants := nameVariants("metal flame")
	assert.Contains(t, variants, "metalflame")

	variants = nameVariants("gaia the fierce knight")
	assert.Contains(t, variants, "gaya the fierce knight")
}

func TestNameConfidenceExactMatch(t *testing.T) {
	score := nameConfidence("blue-eyes white dragon", "Blue-Eyes White Dragon",
		nameVariants("blue-eyes white dragon"))
	assert.Equal(t, 100.0, score)
}

func TestNameConfidenceWordOrderInsensitive(t *testing.T) {
	score := nameConfidence("white dragon blue eyes", "Blue-Eyes White Dragon",
		nameVariants("white dragon blue eyes"))
	assert.GreaterOrEqual(t, score, 80.0)
}

func TestNameConfidenceCompoundWords(t *testing.T) {
	score := nameConfidence("metal flame", "Metalflame Swordsman",
		nameVariants("metal flame"))
	assert.GreaterOrEqual(t, score, 50.0)
}

func TestNameConfidencePenalizesLengthMismatch(t *testing.T) {
	long := "Elemental HERO Shining Flare Wingman of the Crimson Sky"
	short := nameConfidence("dragon", long, nameVariants("dragon"))
	full := nameConfidence("blue-eyes white dragon", "Blue-Eyes White Dragon",
		nameVariants("blue-eyes white dragon"))
	assert.Less(t, short, full)
}

func TestRarityConfidence(t *testing.T) {
	printed := []string{"Ultra Rare", "Secret Rare"}

	assert.Equal(t, 100.0, rarityConfidence("ultra rare", printed))
	assert.Equal(t, 80.0, rarityConfidence("ultra", printed))
	assert.Zero(t, rarityConfidence("starlight rare", []string{"Common"}))
}

func TestDisplayRarityUsesPrintedForm(t *testing.T) {
	card := model.CatalogCard{Rarities: []string{"Ultra Rare", "Secret Rare"}}

	// A spoken rarity comes back in the catalog's casing.
	assert.Equal(t, "Ultra Rare", displayRarity(card, "ultra rare"))
	assert.Equal(t, "Secret Rare", displayRarity(card, "secret"))

	// Unmatched spoken rarities pass through as spoken.
	assert.Equal(t, "ghost rare", displayRarity(card, "ghost rare"))

	// Without a spoken rarity the first printing stands in.
	assert.Equal(t, "Ultra Rare", displayRarity(card, ""))
	assert.Equal(t, "Unknown", displayRarity(model.CatalogCard{}, ""))
}

func TestMatchCardsRanksAndFilters(t *testing.T) {
	catalog := []model.CatalogCard{
		{Name: "Blue-Eyes White Dragon", CardNumber: "LOB-001", Rarities: []string{"Ultra Rare"}},
		{Name: "Blue-Eyes Ultimate Dragon", CardNumber: "JMP-001", Rarities: []string{"Secret Rare"}},
		{Name: "Mystical Elf", CardNumber: "LOB-062", Rarities: []string{"Rare"}},
	}

	candidates := matchCards(catalog, "blue eyes white dragon", "ultra rare", "")
	require.NotEmpty(t, candidates)
	assert.Equal(t, "Blue-Eyes White Dragon", candidates[0].Card.Name)
	assert.Equal(t, "Ultra Rare", candidates[0].Rarity)

	for _, c := range candidates {
		assert.GreaterOrEqual(t, c.Confidence, 50.0)
		assert.NotEqual(t, "Mystical Elf", c.Card.Name)
	}
}

func TestMatchCardsWeakNameNotRescuedByRarity(t *testing.T) {
	catalog := []model.CatalogCard{
		{Name: "Pot of Greed", CardNumber: "LOB-119", Rarities: []string{"Ultra Rare"}},
	}

	// The rarity matches exactly but the name does not; the halved
	// combined score must stay under the threshold.
	candidates := matchCards(catalog, "summoned skull", "ultra rare", "")
	assert.Empty(t, candidates)
}

func TestMatchCardsNoRarityUsesNameOnly(t *testing.T) {
	catalog := []model.CatalogCard{
		{Name: "Dark Magician", CardNumber: "LOB-005", Rarities: []string{"Ultra Rare"}},
	}

	candidates := matchCards(catalog, "dark magician", "", "")
	require.Len(t, candidates, 1)
	assert.Equal(t, "Ultra Rare", candidates[0].Rarity)
	assert.Equal(t, 100.0, candidates[0].Confidence)
}

func TestMatchCardsCapsCandidateCount(t *testing.T) {
	var catalog []model.CatalogCard
	names := []string{
		"Dragon Knight", "Dragon Warrior", "Dragon Mage", "Dragon Lord",
		"Dragon King", "Dragon Queen", "Dragon Prince", "Dragon Duke",
		"Dragon Earl", "Dragon Baron",
	}
	for i, n := range names {
		catalog = append(catalog, model.CatalogCard{Name: n, CardNumber: string(rune('A' + i))})
	}

	candidates := matchCards(catalog, "dragon", "", "")
	assert.LessOrEqual(t, len(candidates), 8)
}

func TestMatchCardsCarriesArtVariant(t *testing.T) {
	catalog := []model.CatalogCard{
		{Name: "Dark Magician", CardNumber: "LOB-005", Rarities: []string{"Ultra Rare"}},
	}

	candidates := matchCards(catalog, "dark magician", "", "2")
	require.Len(t, candidates, 1)
	assert.Equal(t, "2", candidates[0].ArtVariant)
}
