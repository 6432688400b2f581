package reconciler

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"unicode"
)

// Slugify derives a URL-safe slug from a title. Runs of non-alphanumeric
// characters collapse to single hyphens.
func Slugify(title string) string {
	var b strings.Builder
	lastHyphen := true // suppress a leading hyphen

	for _, r := range strings.ToLower(title) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			lastHyphen = false
		case !lastHyphen:
			b.WriteByte('-')
			lastHyphen = true
		}
	}

	slug := strings.TrimSuffix(b.String(), "-")
	if slug == "" {
		slug = "untitled"
	}
	return slug
}

// FactSlug builds the synthetic addressable slug for a fact: owning entity
// slug, category, and a short content digest.
func FactSlug(entitySlug, category, content string) string {
	digest := sha256.Sum256([]byte(content))
	return entitySlug + "-" + Slugify(category) + "-" + hex.EncodeToString(digest[:4])
}
