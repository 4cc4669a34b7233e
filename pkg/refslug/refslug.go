// Package refslug normalizes the slugs embedded in referral links.
package refslug

import (
	"errors"
	"strings"

	"github.com/gosimple/slug"
)

const MaxLength = 64

var ErrInvalid = errors.New("invalid_slug")

// Normalize returns the canonical slug for raw, deriving it from fallback when
// raw is blank.
func Normalize(raw, fallback string) (string, error) {
	source := strings.TrimSpace(raw)
	if source == "" {
		source = strings.TrimSpace(fallback)
	}
	if source == "" {
		return "", ErrInvalid
	}

	value := slug.Make(source)
	if len(value) > MaxLength {
		value = strings.Trim(value[:MaxLength], "-")
	}
	if !slug.IsSlug(value) {
		return "", ErrInvalid
	}
	return value, nil
}

// Clean canonicalizes an incoming slug from a URL or cookie without deriving
// a new one. Blank input stays blank.
func Clean(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}
