package model

import (
	"regexp"
	"strings"
)

var tagPattern = regexp.MustCompile(`<[^>]*>?`)

// SanitizeText strips markup constructs and script-scheme prefixes from
// user-supplied text before it is stored. Card names arrive from voice
// transcripts and import payloads, both untrusted.
func SanitizeText(s string) string {
	s = tagPattern.ReplaceAllString(s, "")
	s = strings.ReplaceAll(s, "<", "")
	s = strings.ReplaceAll(s, ">", "")

	for {
		lower := strings.ToLower(strings.TrimSpace(s))
		switch {
		case strings.HasPrefix(lower, "javascript:"):
			s = strings.TrimSpace(s)[len("javascript:"):]
		case strings.HasPrefix(lower, "data:text/html"):
			s = strings.TrimSpace(s)[len("data:text/html"):]
		default:
			return strings.TrimSpace(s)
		}
	}
}

// SanitizeCard sanitizes the free-text fields of a session card in place.
func SanitizeCard(c *SessionCard) {
	c.Name = SanitizeText(c.Name)
	c.Rarity = SanitizeText(c.Rarity)
	c.ArtVariant = SanitizeText(c.ArtVariant)
	c.CardNumber = SanitizeText(c.CardNumber)
}
