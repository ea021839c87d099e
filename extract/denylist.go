package extract

import (
	"regexp"
	"strings"
)

// denyPattern rejects navigational chrome and known non-content
// destinations: social platforms, payment/donation pages, project and
// help pages. A landing page links to all of these next to the real
// download button.
var denyPattern = regexp.MustCompile(`(?i)(` +
	`paypal|patreon|donat|amazon\.|` +
	`facebook\.|twitter\.|x\.com|t\.me|telegram|discord|reddit\.|instagram\.|youtube\.|` +
	`wikipedia\.|github\.|gitlab\.|sourceforge\.|` +
	`/(faq|help|about|contact|privacy|terms|login|register|signup|signin|forum|blog|news|stats|upload)s?(/|$|\.))`)

// unfetchableSchemes cannot be handed to the transport directly.
var unfetchableSchemes = map[string]bool{
	"javascript": true,
	"mailto":     true,
	"tel":        true,
	"data":       true,
	"magnet":     true,
}

func isDenied(absURL string) bool {
	return denyPattern.MatchString(absURL)
}

func isUnfetchableScheme(scheme string) bool {
	return unfetchableSchemes[strings.ToLower(scheme)]
}
