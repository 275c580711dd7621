// Package moderation masks censored words in chat messages before they
// are broadcast. Matching is case-insensitive and powered by an
// Aho-Corasick automaton, so the cost per message stays linear in its
// length regardless of dictionary size.
package moderation

import (
	"strings"
	"unicode"

	goahocorasick "github.com/anknown/ahocorasick"
)

// Moderator rewrites messages by replacing every censored span with the
// mask rune. Safe for concurrent use once built.
type Moderator struct {
	matcher *goahocorasick.Machine
	mask    rune
}

// NewModerator builds the automaton from the word list. Empty or
// whitespace-only entries are skipped. An empty effective dictionary
// yields a nil Moderator, which censors nothing.
func NewModerator(words []string, mask rune) (*Moderator, error) {
	patterns := make([][]rune, 0, len(words))
	for _, w := range words {
		w = strings.TrimSpace(w)
		if w == "" {
			continue
		}
		patterns = append(patterns, lowerRunes(w))
	}
	if len(patterns) == 0 {
		return nil, nil
	}

	m := new(goahocorasick.Machine)
	if err := m.Build(patterns); err != nil {
		return nil, err
	}
	return &Moderator{matcher: m, mask: mask}, nil
}

// Censor returns the message with every dictionary match masked.
// A nil receiver passes the message through untouched, so callers do not
// need to special-case a disabled moderator.
//
// Lowercasing is rune for rune, which keeps match offsets aligned with
// the original text.
func (m *Moderator) Censor(message string) string {
	if m == nil || message == "" {
		return message
	}

	runes := []rune(message)
	matches := m.matcher.MultiPatternSearch(lowerRunes(message), false)
	if len(matches) == 0 {
		return message
	}

	for _, match := range matches {
		end := match.Pos + len(match.Word)
		if match.Pos < 0 || end > len(runes) {
			continue
		}
		for i := match.Pos; i < end; i++ {
			runes[i] = m.mask
		}
	}
	return string(runes)
}

func lowerRunes(s string) []rune {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		out = append(out, unicode.ToLower(r))
	}
	return out
}
