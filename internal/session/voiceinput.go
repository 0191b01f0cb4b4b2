package session

import (
	"regexp"
	"strconv"
	"strings"
)

// parsedInput is a voice transcript split into its card name and any
// rarity or art variant qualifiers the speaker tacked on.
type parsedInput struct {
	Name       string
	Rarity     string
	ArtVariant string
}

// artPatterns recognize spoken art variant qualifiers. Ordered from most
// to least specific; the first match wins and is removed from the name.
var artPatterns = []*regexp.Regexp{
	regexp.MustCompile(`art variant (\w+)`),
	regexp.MustCompile(`art (\w+)`),
	regexp.MustCompile(`variant (\w+)`),
	regexp.MustCompile(`artwork (\w+)`),
	regexp.MustCompile(`art rarity (.+?)(?:\s|$)`),
	regexp.MustCompile(`art variant (.+?)(?:\s|$)`),
}

// rarityPattern pairs a pattern with whether the rarity is the whole match
// or its first capture group.
type rarityPattern struct {
	re      *regexp.Regexp
	grouped bool
}

// rarityPatterns recognize spoken rarities. The literal multi-word names
// come first so "quarter century secret rare" is not truncated to "rare".
var rarityPatterns = []rarityPattern{
	{re: regexp.MustCompile(`quarter century secret rare`)},
	{re: regexp.MustCompile(`quarter century secret`)},
	{re: regexp.MustCompile(`prismatic secret rare`)},
	{re: regexp.MustCompile(`prismatic secret`)},
	{re: regexp.MustCompile(`starlight rare`)},
	{re: regexp.MustCompile(`collector.*?rare`)},
	{re: regexp.MustCompile(`ghost rare`)},
	{re: regexp.MustCompile(`secret rare`)},
	{re: regexp.MustCompile(`ultra rare`)},
	{re: regexp.MustCompile(`super rare`)},
	{re: regexp.MustCompile(`rare`)},
	{re: regexp.MustCompile(`common`)},
	{re: regexp.MustCompile(`rarity (.+?)(?:\s|$)`), grouped: true},
	{re: regexp.MustCompile(`rare (.+?)(?:\s|$)`), grouped: true},
	{re: regexp.MustCompile(`(.+?) rare(?:\s|$)`), grouped: true},
	{re: regexp.MustCompile(`(.+?) rarity(?:\s|$)`), grouped: true},
}

var multiSpace = regexp.MustCompile(`\s+`)

// parseVoiceInput lowercases a transcript and strips recognized art variant
// and rarity qualifiers out of it, leaving the card name. Extraction of
// each qualifier can be switched off independently.
func parseVoiceInput(transcript string, extractRarity, extractArt bool) parsedInput {
	text := strings.ToLower(strings.TrimSpace(transcript))
	parsed := parsedInput{Name: text}

	if extractArt {
		for _, re := range artPatterns {
			if m := re.FindStringSubmatch(parsed.Name); m != nil {
				parsed.ArtVariant = strings.TrimSpace(m[1])
				parsed.Name = strings.TrimSpace(re.ReplaceAllString(parsed.Name, ""))
				break
			}
		}
	}

	if extractRarity {
		for _, p := range rarityPatterns {
			m := p.re.FindStringSubmatch(parsed.Name)
			if m == nil {
				continue
			}
			if p.grouped {
				parsed.Rarity = strings.TrimSpace(m[1])
			} else {
				parsed.Rarity = strings.TrimSpace(m[0])
			}
			parsed.Name = strings.TrimSpace(p.re.ReplaceAllString(parsed.Name, ""))
			break
		}
	}

	parsed.Name = multiSpace.ReplaceAllString(parsed.Name, " ")
	return parsed
}

// selectionPatterns recognize a spoken choice among presented candidates,
// like "2", "option 2", or "select 2".
var selectionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`^\s*(\d+)\s*$`),
	regexp.MustCompile(`option\s+(\d+)`),
	regexp.MustCompile(`select\s+(\d+)`),
	regexp.MustCompile(`choose\s+(\d+)`),
	regexp.MustCompile(`number\s+(\d+)`),
}

// rejectionPattern recognizes a spoken dismissal of pending candidates,
// like "cancel", "skip", or "none of those".
var rejectionPattern = regexp.MustCompile(`\b(reject|cancel|no|none|skip)\b`)

// parseRejection reports whether a transcript dismisses the pending
// candidate list.
func parseRejection(transcript string) bool {
	return rejectionPattern.MatchString(strings.ToLower(strings.TrimSpace(transcript)))
}

// parseSelection extracts a 1-based candidate number from a transcript.
func parseSelection(transcript string) (int, bool) {
	text := strings.ToLower(strings.TrimSpace(transcript))
	for _, re := range selectionPatterns {
		if m := re.FindStringSubmatch(text); m != nil {
			n, err := strconv.Atoi(m[1])
			if err == nil && n > 0 {
				return n, true
			}
		}
	}
	return 0, false
}
