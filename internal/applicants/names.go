package applicants

import (
	"regexp"
	"strings"
)

// FallbackName stands in when no usable name can be read.
const FallbackName = "Candidate"

var (
	verifiedSuffix = regexp.MustCompile(`(?i),\s*verified profile`)
	personPattern  = regexp.MustCompile(`^[a-zA-Z][a-zA-Z'.-]*(\s+[a-zA-Z][a-zA-Z'.-]*){0,5}$`)
)

var genericTitles = map[string]bool{
	"new message":     true,
	"message":         true,
	"messages":        true,
	"compose":         true,
	"compose message": true,
	"messaging":       true,
	"linkedin":        true,
	"candidate":       true,
}

// NormalizeSpace collapses whitespace runs and trims.
func NormalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func stripVerified(s string) string {
	return strings.TrimSpace(verifiedSuffix.ReplaceAllString(s, ""))
}

// IsGenericTitle reports panel titles that name the feature rather than a person.
func IsGenericTitle(s string) bool {
	t := strings.ToLower(NormalizeSpace(s))
	return t == "" || genericTitles[t]
}

// LooksLikePersonName accepts one to six latin words of 2 to 80 characters in total, such as
// "Abhi Pal" or "John A. Doe".
func LooksLikePersonName(s string) bool {
	t := NormalizeSpace(s)
	if IsGenericTitle(t) {
		return false
	}
	if n := len(t); n < 2 || n > 80 {
		return false
	}
	if words := strings.Fields(t); len(words) == 0 || len(words) > 6 {
		return false
	}
	return personPattern.MatchString(t)
}

// PickBestName prefers the card's name over the panel's, as long as it reads like a person.
func PickBestName(cardName, dialogName string) string {
	card := stripVerified(NormalizeSpace(cardName))
	dialog := stripVerified(NormalizeSpace(dialogName))
	switch {
	case LooksLikePersonName(card):
		return card
	case LooksLikePersonName(dialog):
		return dialog
	case card != "" && !IsGenericTitle(card):
		return card
	case dialog != "" && !IsGenericTitle(dialog):
		return dialog
	}
	return FallbackName
}

// ParseCandidateName cleans a display name. Empty input yields FallbackName.
func ParseCandidateName(full string) string {
	if clean := NormalizeSpace(full); clean != "" {
		return clean
	}
	return FallbackName
}

// FirstName is the first token of fullName, or of cardName when fullName is the fallback.
// It returns "there" when neither has one, so greetings still read naturally.
func FirstName(cardName, fullName string) string {
	src := fullName
	if src == "" || src == FallbackName {
		src = cardName
	}
	if fields := strings.Fields(stripVerified(src)); len(fields) > 0 {
		return fields[0]
	}
	return "there"
}
