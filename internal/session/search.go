package session

import (
	"regexp"
	"sort"
	"strings"

	"github.com/lithammer/fuzzysearch/fuzzy"

	"github.com/ygopack/packtrack/internal/model"
)

// matchThreshold is the minimum combined confidence for a candidate to be
// presented at all.
const matchThreshold = 50

// nameVariantTable maps tokens that speech recognizers commonly mangle to
// the spellings they come back as. Each card name is searched under every
// substitution so "blue eyes right dragon" can still find its card.
var nameVariantTable = []struct {
	token string
	alts  []string
}{
	{"yu", []string{"you", "u"}},
	{"gi", []string{"gee", "ji"}},
	{"oh", []string{"o"}},
	{"elemental", []string{"elemental", "element"}},
	{"hero", []string{"hiro", "heero", "hero"}},
	{"evil", []string{"evil", "evel"}},
	{"dark", []string{"dark", "drak"}},
	{"gaia", []string{"gaia", "gaya", "guy", "gya"}},
	{"cyber", []string{"siber", "cyber"}},
	{"dragon", []string{"drago", "drag"}},
	{"magician", []string{"magic", "mage"}},
	{"warrior", []string{"war", "warrior"}},
	{"machine", []string{"mach", "machin"}},
	{"beast", []string{"best", "beast"}},
	{"fiend", []string{"fend", "fiend"}},
	{"spellcaster", []string{"spell", "caster"}},
	{"aqua", []string{"agua", "aqua"}},
	{"winged", []string{"wing", "winged"}},
	{"thunder", []string{"under", "thunder"}},
	{"zombie", []string{"zomb", "zombie"}},
	{"plant", []string{"plan", "plant"}},
	{"insect", []string{"insec", "insect"}},
	{"rock", []string{"rok", "rock"}},
	{"pyro", []string{"fire", "pyro"}},
	{"sea", []string{"see", "sea"}},
	{"divine", []string{"divin", "divine"}},
	{"metal flame", []string{"metalflame", "metal flame"}},
	{"flame", []string{"flame", "flam"}},
	{"metal", []string{"metal", "mettle"}},
}

var nonWordPattern = regexp.MustCompile(`[^\w\s]`)

// nameVariants generates alternative spellings of a spoken card name.
func nameVariants(name string) []string {
	variants := []string{name}

	lower := strings.ToLower(name)
	for _, sub := range nameVariantTable {
		if strings.Contains(lower, sub.token) {
			for _, alt := range sub.alts {
				variants = append(variants, strings.ReplaceAll(lower, sub.token, alt))
			}
		}
	}

	// Compound variants cover names the recognizer splits or joins, like
	// "metal flame" for "Metalflame".
	words := strings.Fields(lower)
	if len(words) >= 2 {
		variants = append(variants, strings.Join(words, ""))
		for i := 1; i < len(words); i++ {
			variants = append(variants, strings.Join(words[:i], "")+" "+strings.Join(words[i:], " "))
		}
	}

	seen := make(map[string]bool, len(variants))
	unique := variants[:0]
	for _, v := range variants {
		key := strings.ToLower(v)
		if !seen[key] {
			seen[key] = true
			unique = append(unique, v)
		}
	}
	return unique
}

// levRatio is a 0..100 similarity score based on edit distance.
func levRatio(a, b string) float64 {
	if a == b {
		return 100
	}
	longest := max(len([]rune(a)), len([]rune(b)))
	if longest == 0 {
		return 100
	}
	dist := fuzzy.LevenshteinDistance(a, b)
	return (1 - float64(dist)/float64(longest)) * 100
}

// tokenSetRatio compares the sorted unique word sets of two strings, so
// word order and repeated words do not hurt the score.
func tokenSetRatio(a, b string) float64 {
	ta := tokenSet(a)
	tb := tokenSet(b)

	var shared, onlyA, onlyB []string
	inB := make(map[string]bool, len(tb))
	for _, t := range tb {
		inB[t] = true
	}
	inA := make(map[string]bool, len(ta))
	for _, t := range ta {
		inA[t] = true
		if inB[t] {
			shared = append(shared, t)
		} else {
			onlyA = append(onlyA, t)
		}
	}
	for _, t := range tb {
		if !inA[t] {
			onlyB = append(onlyB, t)
		}
	}

	base := strings.Join(shared, " ")
	combinedA := strings.TrimSpace(base + " " + strings.Join(onlyA, " "))
	combinedB := strings.TrimSpace(base + " " + strings.Join(onlyB, " "))

	score := levRatio(base, combinedA)
	if s := levRatio(base, combinedB); s > score {
		score = s
	}
	if s := levRatio(combinedA, combinedB); s > score {
		score = s
	}
	if base != "" && (base == combinedA || base == combinedB) {
		score = 100
	}
	return score
}

func tokenSet(s string) []string {
	words := strings.Fields(strings.ToLower(s))
	seen := make(map[string]bool, len(words))
	out := make([]string, 0, len(words))
	for _, w := range words {
		if !seen[w] {
			seen[w] = true
			out = append(out, w)
		}
	}
	sort.Strings(out)
	return out
}

// nameConfidence scores how well a spoken name matches a catalog card name.
// It takes the best of three methods, then penalizes large word-count
// mismatches so short inputs do not over-match long names.
func nameConfidence(inputName, cardName string, variants []string) float64 {
	var bestFuzzy float64
	cardLower := strings.ToLower(cardName)
	for _, v := range variants {
		if s := tokenSetRatio(strings.ToLower(v), cardLower); s > bestFuzzy {
			bestFuzzy = s
		}
	}

	cleanInput := nonWordPattern.ReplaceAllString(strings.ToLower(inputName), "")
	cleanCard := nonWordPattern.ReplaceAllString(cardLower, "")
	inputWords := strings.Fields(cleanInput)
	cardWords := strings.Fields(cleanCard)

	var wordScore float64
	if len(inputWords) > 0 {
		matched := 0
		for _, iw := range inputWords {
			if len(iw) < 2 {
				continue
			}
			var best float64
			for _, cw := range cardWords {
				if len(cw) >= 3 && len(iw) >= 3 &&
					(strings.Contains(cw, iw) || strings.Contains(iw, cw)) {
					best = 100
					break
				}
				if s := levRatio(iw, cw); s > best {
					best = s
				}
			}
			if best >= 80 {
				matched++
			}
		}
		wordScore = float64(matched) / float64(len(inputWords)) * 100
	}

	compound := levRatio(
		strings.ReplaceAll(cleanInput, " ", ""),
		strings.ReplaceAll(cleanCard, " ", ""),
	)

	score := max(bestFuzzy, max(wordScore, compound))

	if len(inputWords) > 0 && len(cardWords) > 0 {
		ratio := float64(min(len(inputWords), len(cardWords))) /
			float64(max(len(inputWords), len(cardWords)))
		switch {
		case ratio < 0.5:
			score *= 0.8
		case ratio < 0.7:
			score *= 0.9
		}
	}
	return score
}

// rarityConfidence scores a spoken rarity against the rarities the card was
// printed in. Exact match beats substring match beats fuzzy similarity.
func rarityConfidence(inputRarity string, printed []string) float64 {
	input := strings.ToLower(strings.TrimSpace(inputRarity))
	var best float64
	for _, r := range printed {
		setRarity := strings.ToLower(strings.TrimSpace(r))
		switch {
		case setRarity == input:
			return 100
		case strings.Contains(setRarity, input) || strings.Contains(input, setRarity):
			if best < 80 {
				best = 80
			}
		default:
			if s := levRatio(input, setRarity); s >= 70 && s*0.7 > best {
				best = s * 0.7
			}
		}
	}
	return best
}

// displayRarity resolves the rarity stored on a candidate. A spoken rarity
// maps back to the printed form it matched; without one the first printing
// stands in.
func displayRarity(card model.CatalogCard, specified string) string {
	if specified != "" {
		spoken := strings.ToLower(strings.TrimSpace(specified))
		for _, r := range card.Rarities {
			if strings.ToLower(strings.TrimSpace(r)) == spoken {
				return r
			}
		}
		for _, r := range card.Rarities {
			printed := strings.ToLower(strings.TrimSpace(r))
			if strings.Contains(printed, spoken) || strings.Contains(spoken, printed) {
				return r
			}
		}
		return specified
	}
	if len(card.Rarities) > 0 {
		return card.Rarities[0]
	}
	return "Unknown"
}

// matchCards ranks the set's catalog against parsed voice input. Name
// confidence dominates the combined score; a weak name match is halved
// even when the rarity matches perfectly.
func matchCards(catalog []model.CatalogCard, name, rarity, artVariant string) []model.Candidate {
	variants := nameVariants(name)

	byName := make(map[string]model.Candidate)
	for _, card := range catalog {
		nameScore := nameConfidence(name, card.Name, variants)

		var total float64
		if rarity != "" {
			rarityScore := rarityConfidence(rarity, card.Rarities)
			total = nameScore*0.75 + rarityScore*0.25
			if nameScore < 40 {
				total *= 0.5
			}
		} else {
			total = nameScore
		}

		if total < matchThreshold {
			continue
		}
		if prev, ok := byName[card.Name]; ok && prev.Confidence >= total {
			continue
		}
		byName[card.Name] = model.Candidate{
			Card:         card,
			Rarity:       displayRarity(card, rarity),
			ArtVariant:   artVariant,
			ResidualName: name,
			Confidence:   total,
		}
	}

	candidates := make([]model.Candidate, 0, len(byName))
	for _, c := range byName {
		candidates = append(candidates, c)
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Confidence != candidates[j].Confidence {
			return candidates[i].Confidence > candidates[j].Confidence
		}
		return candidates[i].Card.Name < candidates[j].Card.Name
	})
	if len(candidates) > 8 {
		candidates = candidates[:8]
	}
	return candidates
}
