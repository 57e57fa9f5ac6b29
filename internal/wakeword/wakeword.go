// Package wakeword decides whether a transcribed utterance addresses the
// agent by its configured display name. Nothing here is provider-specific;
// the matcher is a pure function over two strings and a strictness level.
package wakeword

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

type Strictness int

const (
	// StrictnessExact runs the deterministic tiers only: substring, token
	// sequence, merged form, and the primary-token fallback.
	StrictnessExact Strictness = iota
	// StrictnessFuzzy additionally tolerates speech-to-text noise with
	// bounded edit-distance variants and nickname forms.
	StrictnessFuzzy
)

// genericTokens never count as a wake token on their own.
var genericTokens = map[string]struct{}{
	"bot":       {},
	"ai":        {},
	"assistant": {},
	"agent":     {},
	"buddy":     {},
	"the":       {},
}

const minPrimaryTokenLen = 4

// Match reports whether transcript addresses the configured display name.
func Match(transcript, configuredName string, strictness Strictness) bool {
	name := Normalize(configuredName)
	text := Normalize(transcript)
	if name == "" || text == "" {
		return false
	}

	if strings.Contains(text, name) {
		return true
	}

	nameTokens := tokenize(name)
	textTokens := tokenize(text)
	if len(nameTokens) == 0 || len(textTokens) == 0 {
		return false
	}

	if containsSequence(textTokens, nameTokens) {
		return true
	}

	if len(nameTokens) > 1 {
		merged := strings.Join(nameTokens, "")
		for _, tok := range textTokens {
			if tok == merged {
				return true
			}
		}
	}

	primary := PrimaryToken(configuredName)
	if primary != "" {
		for _, tok := range textTokens {
			if tok == primary {
				return true
			}
		}
	}

	if strictness == StrictnessFuzzy {
		for _, wake := range fuzzyCandidates(nameTokens, primary) {
			for _, tok := range textTokens {
				if fuzzyTokenMatch(tok, wake) {
					return true
				}
			}
		}
	}

	return false
}

// Normalize lowercases, strips diacritics, and drops punctuation so that
// "Clánker-Conk?" and "clanker conk" compare equal.
func Normalize(s string) string {
	decomposed := norm.NFD.String(strings.ToLower(s))
	var b strings.Builder
	b.Grow(len(decomposed))
	for _, r := range decomposed {
		switch {
		case unicode.Is(unicode.Mn, r):
			// combining mark from decomposition, dropped
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		case unicode.IsSpace(r):
			b.WriteRune(' ')
		default:
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// PrimaryToken derives the main wake token from a display name: the longest
// token that is not a generic filler and is at least four characters long.
// Returns "" when the name has no usable token.
func PrimaryToken(configuredName string) string {
	best := ""
	for _, tok := range tokenize(Normalize(configuredName)) {
		if _, generic := genericTokens[tok]; generic {
			continue
		}
		if len(tok) < minPrimaryTokenLen {
			continue
		}
		if len(tok) > len(best) {
			best = tok
		}
	}
	return best
}

func tokenize(normalized string) []string {
	return strings.Fields(normalized)
}

func containsSequence(haystack, needle []string) bool {
	if len(needle) > len(haystack) {
		return false
	}
	for i := 0; i+len(needle) <= len(haystack); i++ {
		match := true
		for j := range needle {
			if haystack[i+j] != needle[j] {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}

func fuzzyCandidates(nameTokens []string, primary string) []string {
	seen := map[string]struct{}{}
	var out []string
	appendTok := func(tok string) {
		if tok == "" || len(tok) < minPrimaryTokenLen {
			return
		}
		if _, generic := genericTokens[tok]; generic {
			return
		}
		if _, dup := seen[tok]; dup {
			return
		}
		seen[tok] = struct{}{}
		out = append(out, tok)
	}
	appendTok(primary)
	for _, tok := range nameTokens {
		appendTok(tok)
	}
	return out
}

// fuzzyTokenMatch accepts tok as a speech-to-text variant of wake. The bounds
// scale with token length: longer wake tokens tolerate a larger absolute
// length difference but still require high similarity.
func fuzzyTokenMatch(tok, wake string) bool {
	if tok == wake {
		return true
	}
	if len(tok) == 0 || len(wake) == 0 {
		return false
	}

	// Suffix-extended nickname: "conk" -> "conkers".
	if strings.HasPrefix(tok, wake) && len(tok)-len(wake) <= 4 {
		return true
	}

	// "-er" -> "-y" contraction: "clanker" -> "clanky".
	if strings.HasSuffix(wake, "er") && strings.HasSuffix(tok, "y") {
		if tok[:len(tok)-1] == wake[:len(wake)-2] {
			return true
		}
	}

	if tok[0] != wake[0] {
		return false
	}
	maxLenDiff := 1
	threshold := 0.82
	if len(wake) >= 6 {
		maxLenDiff = 2
		threshold = 0.74
	}
	lenDiff := len(tok) - len(wake)
	if lenDiff < 0 {
		lenDiff = -lenDiff
	}
	if lenDiff > maxLenDiff {
		return false
	}
	longest := len(tok)
	if len(wake) > longest {
		longest = len(wake)
	}
	dist := editDistance(tok, wake)
	similarity := 1 - float64(dist)/float64(longest)
	return similarity >= threshold
}

func editDistance(a, b string) int {
	if a == b {
		return 0
	}
	prev := make([]int, len(b)+1)
	cur := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(a); i++ {
		cur[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			cur[j] = min3(prev[j]+1, cur[j-1]+1, prev[j-1]+cost)
		}
		prev, cur = cur, prev
	}
	return prev[len(b)]
}

func min3(a, b, c int) int {
	m := a
	if b < m {
		m = b
	}
	if c < m {
		m = c
	}
	return m
}
