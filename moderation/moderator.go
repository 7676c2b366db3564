// Package moderation implements the optional send-path content filter.
// It runs on plaintext at the boundary, before sealing; nothing it sees is
// ever persisted.
package moderation

import (
	"unicode"

	goahocorasick "github.com/anknown/ahocorasick"
)

// Moderator censors forbidden words in outgoing messages using an
// Aho-Corasick automaton over a normalized view of the text. Matching is
// case-insensitive and ignores punctuation and spacing inside words, so
// trivially obfuscated spellings are still caught.
type Moderator struct {
	machine     *goahocorasick.Machine
	replacement rune
}

// New builds a moderator from a censored-word list. An empty list yields a
// nil moderator, which the pipeline treats as "filter disabled".
func New(words []string, replacement rune) (*Moderator, error) {
	if len(words) == 0 {
		return nil, nil
	}

	patterns := make([][]rune, 0, len(words))
	for _, w := range words {
		norm, _ := normalize([]rune(w))
		if len(norm) > 0 {
			patterns = append(patterns, norm)
		}
	}

	machine := new(goahocorasick.Machine)
	if err := machine.Build(patterns); err != nil {
		return nil, err
	}
	return &Moderator{machine: machine, replacement: replacement}, nil
}

// Censor replaces every matched span with the replacement rune, preserving
// the original length and spacing.
func (m *Moderator) Censor(text string) string {
	original := []rune(text)
	normalized, positions := normalize(original)
	if len(normalized) == 0 {
		return text
	}

	matches := m.machine.MultiPatternSearch(normalized, false)
	if len(matches) == 0 {
		return text
	}

	for _, match := range matches {
		start := match.Pos
		end := start + len(match.Word)
		if start < 0 || end > len(positions) {
			continue
		}
		// positions maps normalized indexes back onto the original runes.
		for i := positions[start]; i <= positions[end-1]; i++ {
			original[i] = m.replacement
		}
	}
	return string(original)
}

// normalize lowercases the input and drops punctuation, symbols and spaces,
// returning the cleaned runes together with each one's original index.
func normalize(in []rune) ([]rune, []int) {
	out := make([]rune, 0, len(in))
	positions := make([]int, 0, len(in))
	for i, r := range in {
		if unicode.IsPunct(r) || unicode.IsSpace(r) || unicode.IsSymbol(r) {
			continue
		}
		out = append(out, unicode.ToLower(r))
		positions = append(positions, i)
	}
	return out, positions
}
