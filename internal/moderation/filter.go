// Package moderation screens chat messages before they are relayed to the
// partner. It combines a configured banned-term filter with a small set of
// structural spam checks (links, character and word flooding).
package moderation

import (
	"regexp"
	"strings"
	"unicode"
)

// FilterResult is the outcome of screening one message.
type FilterResult struct {
	Blocked bool
	Reason  string // "blocked_keyword" or "spam_pattern"
	Term    string // offending term or pattern name
}

// Filter holds the configured banned terms. The term list is immutable after
// construction, so a Filter is safe for concurrent use.
type Filter struct {
	terms []string // lowercased, non-empty
}

// DefaultTerms is the fallback banned-term list used when none is configured.
var DefaultTerms = []string{"badword1", "badword2"}

// NewFilter builds a Filter from the given terms. Terms are lowercased;
// empty and whitespace-only entries are dropped. A nil or empty slice falls
// back to DefaultTerms.
func NewFilter(terms []string) *Filter {
	cleaned := make([]string, 0, len(terms))
	for _, term := range terms {
		term = strings.ToLower(strings.TrimSpace(term))
		if term != "" {
			cleaned = append(cleaned, term)
		}
	}
	if len(cleaned) == 0 {
		cleaned = append(cleaned, DefaultTerms...)
	}
	return &Filter{terms: cleaned}
}

// Check screens a message. A message is blocked when its lowercased text
// contains any banned term as a substring, or when a spam pattern fires.
// Term containment is deliberately substring-based: "xbadword1x" is blocked.
func (f *Filter) Check(text string) FilterResult {
	lower := strings.ToLower(text)
	for _, term := range f.terms {
		if strings.Contains(lower, term) {
			return FilterResult{Blocked: true, Reason: "blocked_keyword", Term: term}
		}
	}
	return checkSpamPatterns(text)
}

// urlPattern matches http/https and www-style links. Bare domains require a
// trailing slash so version strings like "v2.0" stay clean.
var urlPattern = regexp.MustCompile(`(?i)(https?://\S+|www\.\S+|\S+\.(com|net|org|io|co|xyz|info|biz|ru)/\S*)`)

// checkSpamPatterns applies the structural checks in order; first hit wins.
func checkSpamPatterns(text string) FilterResult {
	if urlPattern.MatchString(text) {
		return FilterResult{Blocked: true, Reason: "spam_pattern", Term: "url"}
	}
	if hasCharFlood(text) {
		return FilterResult{Blocked: true, Reason: "spam_pattern", Term: "char_flood"}
	}
	if hasWordFlood(text) {
		return FilterResult{Blocked: true, Reason: "spam_pattern", Term: "word_flood"}
	}
	return FilterResult{}
}

// hasCharFlood reports 6 or more consecutive identical runes. RE2 has no
// backreferences, so this is a linear scan.
func hasCharFlood(text string) bool {
	const threshold = 6

	count := 1
	prev := rune(-1)
	for _, r := range text {
		if r == prev {
			count++
			if count >= threshold {
				return true
			}
		} else {
			count = 1
			prev = r
		}
	}
	return false
}

// hasWordFlood reports the same word repeated 4 or more times in a row,
// case-insensitively.
func hasWordFlood(text string) bool {
	const threshold = 4

	words := strings.FieldsFunc(text, unicode.IsSpace)
	if len(words) < threshold {
		return false
	}

	count := 1
	prev := ""
	for _, w := range words {
		lower := strings.ToLower(w)
		if lower == prev {
			count++
			if count >= threshold {
				return true
			}
		} else {
			count = 1
			prev = lower
		}
	}
	return false
}
