package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeText(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "plain text unchanged", input: "Blue-Eyes White Dragon", want: "Blue-Eyes White Dragon"},
		{name: "strips tags", input: "<script>alert(1)</script>Dragon", want: "alert(1)Dragon"},
		{name: "strips unterminated tag", input: "Dragon<img src=x", want: "Dragon"},
		{name: "strips stray brackets", input: "a < b > c", want: "a  c"},
		{name: "strips javascript prefix", input: "javascript:alert(1)", want: "alert(1)"},
		{name: "strips data html prefix", input: "data:text/html,<b>x</b>", want: ",x"},
		{name: "strips stacked prefixes", input: "javascript:javascript:x", want: "x"},
		{name: "case insensitive prefix", input: "JavaScript:x", want: "x"},
		{name: "trims whitespace", input: "  Dark Magician  ", want: "Dark Magician"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SanitizeText(tt.input))
		})
	}
}

func TestSanitizeCard(t *testing.T) {
	c := &SessionCard{
		Name:       "<b>Dark Magician</b>",
		Rarity:     "Ultra <i>Rare",
		ArtVariant: "javascript:1",
		CardNumber: "LOB-005",
	}
	SanitizeCard(c)
	assert.Equal(t, "Dark Magician", c.Name)
	assert.Equal(t, "Ultra", c.Rarity)
	assert.Equal(t, "1", c.ArtVariant)
	assert.Equal(t, "LOB-005", c.CardNumber)
}
